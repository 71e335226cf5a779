package handler

import (
	"context"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/juju/clock"

	"sudooom.im.sync/internal/engine"
	"sudooom.im.sync/internal/model"
	apperrors "sudooom.im.sync/pkg/errors"
	"sudooom.im.sync/pkg/response"
)

// Backend 在引擎协程中执行 fn，engine.Loop 实现此接口
type Backend interface {
	Do(ctx context.Context, fn func(*engine.Engine)) error
}

// SyncHandler 同步引擎 HTTP 处理器
type SyncHandler struct {
	backend Backend
	clock   clock.Clock
}

// NewSyncHandler 创建处理器
func NewSyncHandler(backend Backend, clk clock.Clock) *SyncHandler {
	if clk == nil {
		clk = clock.WallClock
	}
	return &SyncHandler{backend: backend, clock: clk}
}

// SendRequest 发送消息请求
type SendRequest struct {
	Content     string             `json:"content"`
	Attachments []model.Attachment `json:"attachments"`
}

// PageRequest 翻页请求
type PageRequest struct {
	Direction model.PageDirection `json:"direction" binding:"required,oneof=older newer"`
}

// TrashRequest 删除到回收站请求
type TrashRequest struct {
	Reason string `json:"reason"`
}

// RestoreRequest 恢复请求，ChannelID 为空时恢复到原频道
type RestoreRequest struct {
	ChannelID string `json:"channelId"`
}

// UnreadRequest 未读修正请求
type UnreadRequest struct {
	Delta int `json:"delta"`
}

// TrashView 回收站条目展示
type TrashView struct {
	*model.TrashedMessage
	ExpiresIn      string `json:"expiresIn"`
	AttachmentSize string `json:"attachmentSize,omitempty"`
}

// run 在引擎中执行 fn 并按 fn 返回值写响应
func (h *SyncHandler) run(c *gin.Context, fn func(e *engine.Engine) (interface{}, error)) {
	var (
		data interface{}
		err  error
	)
	if doErr := h.backend.Do(c.Request.Context(), func(e *engine.Engine) {
		data, err = fn(e)
	}); doErr != nil {
		response.Unavailable(c)
		return
	}
	if err != nil {
		response.ErrorFromAppError(c, err)
		return
	}
	response.Success(c, data)
}

// ListChannels 频道列表（最近活跃在前）
func (h *SyncHandler) ListChannels(c *gin.Context) {
	h.run(c, func(e *engine.Engine) (interface{}, error) {
		return gin.H{
			"channels":      e.Channels(),
			"activeChannel": e.ActiveChannel(),
			"totalUnread":   e.TotalUnread(),
		}, nil
	})
}

// ListMessages 频道消息（按时间升序）
func (h *SyncHandler) ListMessages(c *gin.Context) {
	channelID := c.Param("id")
	h.run(c, func(e *engine.Engine) (interface{}, error) {
		if _, ok := e.Channel(channelID); !ok {
			return nil, apperrors.ErrUnknownEntity.Withf("channel %s", channelID)
		}
		return e.Messages(channelID), nil
	})
}

// SelectChannel 切换当前频道
func (h *SyncHandler) SelectChannel(c *gin.Context) {
	channelID := c.Param("id")
	h.run(c, func(e *engine.Engine) (interface{}, error) {
		if err := e.SelectChannel(channelID); err != nil {
			return nil, err
		}
		ch, _ := e.Channel(channelID)
		return ch, nil
	})
}

// FetchPage 请求一页历史消息
func (h *SyncHandler) FetchPage(c *gin.Context) {
	var req PageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithMsg(c, response.CodeInvalidParams, err.Error())
		return
	}
	channelID := c.Param("id")
	h.run(c, func(e *engine.Engine) (interface{}, error) {
		return nil, e.FetchPage(channelID, req.Direction)
	})
}

// SendMessage 乐观发送消息
func (h *SyncHandler) SendMessage(c *gin.Context) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithMsg(c, response.CodeInvalidParams, err.Error())
		return
	}
	channelID := c.Param("id")
	h.run(c, func(e *engine.Engine) (interface{}, error) {
		return e.SendMessage(channelID, req.Content, req.Attachments)
	})
}

// RetrySend 重试发送失败的消息
func (h *SyncHandler) RetrySend(c *gin.Context) {
	clientID := c.Param("clientId")
	h.run(c, func(e *engine.Engine) (interface{}, error) {
		return nil, e.RetrySend(clientID)
	})
}

// Typing 本地输入中
func (h *SyncHandler) Typing(c *gin.Context) {
	channelID := c.Param("id")
	h.run(c, func(e *engine.Engine) (interface{}, error) {
		return nil, e.NotifyTyping(channelID)
	})
}

// ListTyping 频道正在输入的用户
func (h *SyncHandler) ListTyping(c *gin.Context) {
	channelID := c.Param("id")
	h.run(c, func(e *engine.Engine) (interface{}, error) {
		return e.Typing(channelID), nil
	})
}

// CorrectUnread 修正频道未读数
func (h *SyncHandler) CorrectUnread(c *gin.Context) {
	var req UnreadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithMsg(c, response.CodeInvalidParams, err.Error())
		return
	}
	channelID := c.Param("id")
	h.run(c, func(e *engine.Engine) (interface{}, error) {
		applied, err := e.CorrectUnread(channelID, req.Delta)
		if err != nil {
			return nil, err
		}
		return gin.H{"applied": applied, "totalUnread": e.TotalUnread()}, nil
	})
}

// TrashMessage 删除消息到回收站
func (h *SyncHandler) TrashMessage(c *gin.Context) {
	var req TrashRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ErrorWithMsg(c, response.CodeInvalidParams, err.Error())
			return
		}
	}
	channelID := c.Param("id")
	messageID := c.Param("messageId")
	h.run(c, func(e *engine.Engine) (interface{}, error) {
		entry, err := e.TrashMessage(channelID, messageID, req.Reason)
		if err != nil {
			return nil, err
		}
		return h.trashView(entry), nil
	})
}

// ListTrash 回收站列表
func (h *SyncHandler) ListTrash(c *gin.Context) {
	h.run(c, func(e *engine.Engine) (interface{}, error) {
		entries := e.Trash()
		views := make([]TrashView, 0, len(entries))
		for _, entry := range entries {
			views = append(views, h.trashView(entry))
		}
		return views, nil
	})
}

// RestoreMessage 从回收站恢复
func (h *SyncHandler) RestoreMessage(c *gin.Context) {
	var req RestoreRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ErrorWithMsg(c, response.CodeInvalidParams, err.Error())
			return
		}
	}
	messageID := c.Param("messageId")
	h.run(c, func(e *engine.Engine) (interface{}, error) {
		return e.RestoreMessage(messageID, req.ChannelID)
	})
}

// DeleteMessage 从回收站彻底删除
func (h *SyncHandler) DeleteMessage(c *gin.Context) {
	messageID := c.Param("messageId")
	h.run(c, func(e *engine.Engine) (interface{}, error) {
		return nil, e.DeleteMessage(messageID)
	})
}

// ListNotifications 通知列表
func (h *SyncHandler) ListNotifications(c *gin.Context) {
	h.run(c, func(e *engine.Engine) (interface{}, error) {
		return e.Notifications(), nil
	})
}

// RemoveNotification 移除单条通知
func (h *SyncHandler) RemoveNotification(c *gin.Context) {
	id := c.Param("notificationId")
	h.run(c, func(e *engine.Engine) (interface{}, error) {
		return nil, e.RemoveNotification(id)
	})
}

// ClearNotifications 清除通知，可按 channelId 查询参数限定频道
func (h *SyncHandler) ClearNotifications(c *gin.Context) {
	channelID := c.Query("channelId")
	h.run(c, func(e *engine.Engine) (interface{}, error) {
		return gin.H{"cleared": e.ClearNotifications(channelID)}, nil
	})
}

// ListOnline 在线用户
func (h *SyncHandler) ListOnline(c *gin.Context) {
	h.run(c, func(e *engine.Engine) (interface{}, error) {
		return e.Online(), nil
	})
}

// Stats 引擎统计
func (h *SyncHandler) Stats(c *gin.Context) {
	h.run(c, func(e *engine.Engine) (interface{}, error) {
		return e.Stats(), nil
	})
}

// Snapshot 完整快照
func (h *SyncHandler) Snapshot(c *gin.Context) {
	h.run(c, func(e *engine.Engine) (interface{}, error) {
		return e.Snapshot(), nil
	})
}

func (h *SyncHandler) trashView(entry *model.TrashedMessage) TrashView {
	view := TrashView{
		TrashedMessage: entry,
		ExpiresIn:      humanize.RelTime(entry.ExpiresAt, h.clock.Now(), "ago", "from now"),
	}
	var size int64
	for _, a := range entry.Message.Attachments {
		size += a.Size
	}
	if size > 0 {
		view.AttachmentSize = humanize.IBytes(uint64(size))
	}
	return view
}

// parseDays 解析天数查询参数，非法时返回 def
func parseDays(raw string, def int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// ExpiringSoon 回收站中即将过期的条目，days 查询参数覆盖默认阈值
func (h *SyncHandler) ExpiringSoon(c *gin.Context) {
	days := parseDays(c.Query("days"), -1)
	h.run(c, func(e *engine.Engine) (interface{}, error) {
		views := make([]TrashView, 0)
		for _, entry := range e.Trash() {
			if (days < 0 && entry.IsExpiringSoon) || (days >= 0 && entry.DaysRemaining <= days) {
				views = append(views, h.trashView(entry))
			}
		}
		return views, nil
	})
}
