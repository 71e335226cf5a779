package engine

import (
	"context"

	"sudooom.im.sync/internal/model"
	apperrors "sudooom.im.sync/pkg/errors"
	"sudooom.im.sync/pkg/proto"
)

// emit 异步发送一个上行意图，失败只记录日志
func (e *Engine) emit(intent, channelID string, fn func(ctx context.Context) error) {
	e.async(func() {
		ctx, cancel := e.requestContext()
		defer cancel()
		if err := fn(ctx); err != nil {
			e.logger.Error("outbound intent failed", "intent", intent, "channelId", channelID, "error", err)
		}
	})
}

func (e *Engine) subscribe(channelID string) {
	e.emit("subscribe", channelID, func(ctx context.Context) error {
		return e.transport.Subscribe(ctx, channelID)
	})
}

func (e *Engine) unsubscribe(channelID string) {
	e.emit("unsubscribe", channelID, func(ctx context.Context) error {
		return e.transport.Unsubscribe(ctx, channelID)
	})
}

// SelectChannel 切换当前频道：清零未读、清除输入状态与通知、上报已读
func (e *Engine) SelectChannel(channelID string) error {
	cleared, previous, err := e.channels.SetActive(channelID)
	if err != nil {
		return err
	}
	e.unread.Decrement(cleared)

	e.typing.ClearChannel(channelID)
	if previous != "" && previous != channelID {
		e.typing.ClearChannel(previous)
		e.StopTyping(previous)
	}
	e.unread.ClearChannel(channelID)

	if last := e.messages.Last(channelID); last != nil && !last.Optimistic {
		req := &proto.MarkRead{
			ChannelId: channelID,
			MessageId: last.ID,
			UserId:    e.opts.LocalUserID,
			ReadAt:    proto.Millis(e.now()),
		}
		e.emit("mark_as_read", channelID, func(ctx context.Context) error {
			return e.transport.MarkAsRead(ctx, req)
		})
	}
	if e.messages.Len(channelID) == 0 {
		e.FetchPage(channelID, model.PageNewer)
	}

	e.logger.Debug("channel selected", "channelId", channelID, "previous", previous, "cleared", cleared)
	return nil
}

// LoadChannels 拉取初始频道列表和在线快照
func (e *Engine) LoadChannels() {
	e.async(func() {
		ctx, cancel := e.requestContext()
		defer cancel()

		channels, err := e.history.ListChannels(ctx, e.opts.LocalUserID)
		if err != nil {
			e.logger.Error("failed to load channels", "error", err)
		} else {
			e.post(func(e *Engine) { e.ApplyChannels(channels) })
		}

		if e.online == nil {
			return
		}
		users, err := e.online.OnlineUsers(ctx)
		if err != nil {
			e.logger.Error("failed to load online users", "error", err)
			return
		}
		e.post(func(e *Engine) { e.SetOnline(users) })
	})
}

// FetchPage 请求一页历史消息，结果经 ApplyPage 合并
// 切换频道不取消进行中的请求，迟到的结果按ID去重合并
func (e *Engine) FetchPage(channelID string, direction model.PageDirection) error {
	if !e.channels.Has(channelID) {
		return apperrors.ErrUnknownEntity.Withf("channel %s", channelID)
	}
	req := model.PageRequest{ChannelID: channelID, Direction: direction, Limit: e.opts.PageSize}
	switch direction {
	case model.PageOlder:
		if first := e.messages.First(channelID); first != nil {
			req.Cursor, req.CursorID = first.CreatedAt, first.ID
		}
	case model.PageNewer:
		if last := e.messages.Last(channelID); last != nil {
			req.Cursor, req.CursorID = last.CreatedAt, last.ID
		}
	default:
		return apperrors.ErrInvalidEvent.Withf("page direction %q", direction)
	}

	e.async(func() {
		ctx, cancel := e.requestContext()
		defer cancel()

		page, err := e.history.FetchPage(ctx, req)
		if err != nil {
			e.logger.Error("failed to fetch page",
				"channelId", req.ChannelID,
				"direction", req.Direction,
				"error", err)
			return
		}
		e.post(func(e *Engine) { e.ApplyPage(page) })
	})
	return nil
}

// TrashMessage 本地用户删除消息到回收站
func (e *Engine) TrashMessage(channelID, messageID, reason string) (*model.TrashedMessage, error) {
	return e.cut(channelID, messageID, e.opts.LocalUserID, reason)
}

// RestoreMessage 从回收站恢复到原频道，频道必须仍在目录中
func (e *Engine) RestoreMessage(messageID, channelID string) (*model.Message, error) {
	entry, ok := e.trash.Get(messageID)
	if !ok {
		return nil, apperrors.ErrUnknownEntity.Withf("trashed message %s", messageID)
	}
	if channelID == "" {
		channelID = entry.Message.ChannelID
	}
	if !e.channels.Has(channelID) {
		return nil, apperrors.ErrUnknownEntity.Withf("channel %s", channelID)
	}

	msg, err := e.trash.Restore(messageID, channelID)
	if err != nil {
		return nil, err
	}
	e.channels.Touch(channelID, msg.Summary(), msg.CreatedAt)
	e.replayPending(messageID)
	return msg, nil
}

// DeleteMessage 从回收站彻底删除
func (e *Engine) DeleteMessage(messageID string) error {
	if _, err := e.trash.PermanentlyDelete(messageID); err != nil {
		return err
	}
	e.pending.drop(messageID)
	return nil
}

// RecomputeExpiry 刷新回收站剩余天数并剔除过期条目
func (e *Engine) RecomputeExpiry() []*model.TrashedMessage {
	evicted := e.trash.RecomputeExpiry(e.now())
	for _, entry := range evicted {
		e.pending.drop(entry.Message.ID)
	}
	e.metrics.Evicted(len(evicted))
	return evicted
}

func localTypingTimerID(channelID string) string {
	return "local-typing:" + channelID
}

// NotifyTyping 本地用户正在输入：每个超时窗口最多上报一次 start，停止输入后自动上报 stop
func (e *Engine) NotifyTyping(channelID string) error {
	if !e.channels.Has(channelID) {
		return apperrors.ErrUnknownEntity.Withf("channel %s", channelID)
	}

	now := e.now()
	if last, ok := e.localTyping[channelID]; !ok || now.Sub(last) >= e.opts.TypingTimeout {
		e.localTyping[channelID] = now
		e.emit("typing_start", channelID, func(ctx context.Context) error {
			return e.transport.StartTyping(ctx, channelID)
		})
	}

	return e.timers.Schedule(localTypingTimerID(channelID), e.opts.TypingTimeout, func() {
		e.post(func(e *Engine) { e.StopTyping(channelID) })
	})
}

// StopTyping 本地用户停止输入
func (e *Engine) StopTyping(channelID string) bool {
	if _, ok := e.localTyping[channelID]; !ok {
		return false
	}
	delete(e.localTyping, channelID)
	e.timers.Cancel(localTypingTimerID(channelID))
	e.emit("typing_stop", channelID, func(ctx context.Context) error {
		return e.transport.StopTyping(ctx, channelID)
	})
	return true
}

// RemoveNotification 移除单条通知
func (e *Engine) RemoveNotification(id string) error {
	return e.unread.RemoveNotification(id)
}

// ClearNotifications 清除频道通知，channelID 为空时清除全部
func (e *Engine) ClearNotifications(channelID string) int {
	if channelID == "" {
		return e.unread.ClearAll()
	}
	return e.unread.ClearChannel(channelID)
}

// CorrectUnread 按频道修正未读数（外部已读同步），全局计数随之调整
func (e *Engine) CorrectUnread(channelID string, delta int) (int, error) {
	applied, err := e.channels.AdjustUnread(channelID, delta)
	if err != nil {
		return 0, err
	}
	e.unread.Apply(applied)
	return applied, nil
}

// Maintain 周期性维护：扫描超时的输入状态、丢弃过期的暂存事件、校验未读总数
func (e *Engine) Maintain() {
	now := e.now()

	for _, ind := range e.typing.Expire(now, e.opts.TypingTimeout) {
		e.timers.Cancel(typingTimerID(ind.ChannelID, ind.UserID))
	}

	for messageID, kinds := range e.pending.expire(now, e.opts.PendingTTL) {
		e.logger.Warn("discarding events for a message that never arrived",
			"messageId", messageID,
			"kinds", kinds,
			"ttl", e.opts.PendingTTL)
		e.metrics.Noop("stale_discarded")
	}

	if !e.UnreadConsistent() {
		sum := e.channels.SumUnread()
		e.logger.Warn("unread total drifted from channel sum, resetting",
			"total", e.unread.Total(),
			"sum", sum)
		e.unread.Reset(sum)
	}
}
