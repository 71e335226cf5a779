package engine

import (
	"strings"
	"time"

	"github.com/juju/retry"

	"sudooom.im.sync/internal/model"
	apperrors "sudooom.im.sync/pkg/errors"
	"sudooom.im.sync/pkg/proto"
)

// SendMessage 乐观发送：立即写入本地（Optimistic=true），异步请求服务端确认
func (e *Engine) SendMessage(channelID, content string, attachments []model.Attachment) (*model.Message, error) {
	if !e.channels.Has(channelID) {
		return nil, apperrors.ErrUnknownEntity.Withf("channel %s", channelID)
	}
	if strings.TrimSpace(content) == "" && len(attachments) == 0 {
		return nil, apperrors.ErrInvalidEvent.Withf("empty message")
	}

	id := e.ids.ClientMsgID()
	now := e.now()
	msg := &model.Message{
		ID:          id,
		ClientID:    id,
		ChannelID:   channelID,
		SenderID:    e.opts.LocalUserID,
		Content:     content,
		CreatedAt:   now,
		Attachments: attachments,
		Optimistic:  true,
	}
	if err := e.messages.Append(channelID, msg); err != nil {
		return nil, err
	}
	e.channels.Touch(channelID, msg.Summary(), now)
	e.StopTyping(channelID)

	req := &proto.SendMessageRequest{
		ClientMsgId: id,
		ChannelId:   channelID,
		SenderId:    e.opts.LocalUserID,
		Content:     content,
		Timestamp:   proto.Millis(now),
	}
	for _, a := range attachments {
		req.Attachments = append(req.Attachments, proto.AttachmentFromModel(a))
	}
	e.outbox[id] = req
	e.dispatchSend(req)

	return msg.Clone(), nil
}

// dispatchSend 在协作方协程中带重试地发送，结果回到引擎协程处理
func (e *Engine) dispatchSend(req *proto.SendMessageRequest) {
	e.async(func() {
		var ack *proto.MessageAck
		err := retry.Call(retry.CallArgs{
			Func: func() error {
				ctx, cancel := e.requestContext()
				defer cancel()

				a, err := e.transport.SendMessage(ctx, req)
				if err != nil {
					return err
				}
				if a.Code != 0 {
					return apperrors.ErrServerError.Withf("send rejected: [%d] %s", a.Code, a.Message)
				}
				ack = a
				return nil
			},
			IsFatalError: func(err error) bool {
				return !apperrors.Is(err, apperrors.ErrTransport)
			},
			NotifyFunc: func(err error, attempt int) {
				e.logger.Warn("send attempt failed",
					"clientMsgId", req.ClientMsgId,
					"attempt", attempt,
					"error", err)
			},
			Attempts: e.opts.SendAttempts,
			Delay:    e.opts.SendRetryDelay,
			Clock:    e.clock,
		})

		e.post(func(e *Engine) {
			if err != nil {
				e.failSend(req.ClientMsgId, sendCause(err))
				return
			}
			if err := e.ConfirmDelivery(req.ClientMsgId, ack.ServerMsgId, proto.FromMillis(ack.Timestamp)); err != nil {
				e.noop("message_ack", err, "clientMsgId", req.ClientMsgId)
			}
		})
	})
}

// sendCause 重试次数用尽时取最后一次错误，致命错误原样返回
func sendCause(err error) error {
	if retry.IsAttemptsExceeded(err) {
		return retry.LastError(err)
	}
	return err
}

// failSend 发送最终失败，消息保留为 Optimistic 并标记 Failed
func (e *Engine) failSend(clientID string, err error) {
	e.metrics.SendResult("failed")
	e.logger.Error("message send failed", "clientMsgId", clientID, "error", err)

	failed := true
	if perr := e.messages.Patch("", clientID, model.MessagePatch{Failed: &failed}); perr != nil {
		e.noop("message_send_failed", perr, "clientMsgId", clientID)
	}
}

// RetrySend 重新发送失败的消息
func (e *Engine) RetrySend(clientID string) error {
	m, ok := e.messages.Get(clientID)
	if !ok {
		return apperrors.ErrUnknownEntity.Withf("message %s", clientID)
	}
	if !m.Optimistic || !m.Failed {
		return apperrors.ErrDuplicateEvent.Withf("message %s is not in failed state", clientID)
	}

	failed := false
	e.messages.Patch("", clientID, model.MessagePatch{Failed: &failed})

	req, ok := e.outbox[clientID]
	if !ok {
		req = &proto.SendMessageRequest{
			ClientMsgId: clientID,
			ChannelId:   m.ChannelID,
			SenderId:    m.SenderID,
			Content:     m.Content,
			Timestamp:   proto.Millis(m.CreatedAt),
		}
		for _, a := range m.Attachments {
			req.Attachments = append(req.Attachments, proto.AttachmentFromModel(a))
		}
		e.outbox[clientID] = req
	}
	e.logger.Info("retrying message send", "clientMsgId", clientID)
	e.dispatchSend(req)
	return nil
}

// ConfirmDelivery 服务端确认送达：清除 Optimistic，必要时改用服务端ID
// 服务端副本已经通过推送到达时丢弃本地副本
func (e *Engine) ConfirmDelivery(clientID, serverID string, serverCreatedAt time.Time) error {
	delete(e.outbox, clientID)
	if serverID == "" {
		serverID = clientID
	}

	channelID, ok := e.messages.ChannelOf(clientID)
	if !ok {
		return apperrors.ErrUnknownEntity.Withf("optimistic message %s", clientID)
	}

	if serverID != clientID && e.messages.Has(serverID) {
		e.messages.Remove(clientID)
		e.forget(channelID, clientID)
		e.metrics.SendResult("ok")
		e.logger.Debug("optimistic copy dropped, server copy already present",
			"clientMsgId", clientID, "serverMsgId", serverID)
		return nil
	}

	if err := e.messages.Rekey(clientID, serverID, serverCreatedAt); err != nil {
		return err
	}
	confirmed := false
	e.messages.Patch(channelID, serverID, model.MessagePatch{Optimistic: &confirmed, Failed: &confirmed})

	if m, ok := e.messages.Get(serverID); ok {
		e.channels.ReplaceSummary(channelID, clientID, m.Summary())
	}
	e.replayPending(serverID)
	e.metrics.SendResult("ok")
	return nil
}

// reconcile 推送或历史中带 ClientMsgId 的服务端副本，替换本地乐观副本
func (e *Engine) reconcile(server *model.Message) error {
	if err := e.ConfirmDelivery(server.ClientID, server.ID, server.CreatedAt); err != nil {
		return err
	}
	return e.messages.Patch("", server.ID, model.PatchFrom(server))
}
