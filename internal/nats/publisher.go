package nats

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"

	apperrors "sudooom.im.sync/pkg/errors"
	"sudooom.im.sync/pkg/proto"
)

// Watcher 频道级推送订阅
type Watcher interface {
	Watch(channelID string) error
	Unwatch(channelID string) error
}

// IntentPublisher 上行意图发布器，实现引擎的 Transport
type IntentPublisher struct {
	nc      *nats.Conn
	userID  string
	watcher Watcher
	logger  *slog.Logger
}

// NewIntentPublisher 创建上行意图发布器，watcher 可为空
func NewIntentPublisher(nc *nats.Conn, userID string, watcher Watcher) *IntentPublisher {
	return &IntentPublisher{
		nc:      nc,
		userID:  userID,
		watcher: watcher,
		logger:  slog.Default().With("component", "nats"),
	}
}

// publish 序列化并发布
func (p *IntentPublisher) publish(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		p.logger.Error("Failed to marshal intent", "subject", subject, "error", err)
		return apperrors.ErrInvalidEvent.Wrap(err)
	}
	if err := p.nc.Publish(subject, data); err != nil {
		p.logger.Error("Failed to publish intent", "subject", subject, "error", err)
		return apperrors.ErrTransport.Wrap(err)
	}
	p.logger.Debug("Published intent", "subject", subject)
	return nil
}

// SendMessage 发送消息并等待服务端确认
func (p *IntentPublisher) SendMessage(ctx context.Context, req *proto.SendMessageRequest) (*proto.MessageAck, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, apperrors.ErrInvalidEvent.Wrap(err)
	}

	reply, err := p.nc.RequestWithContext(ctx, SubjectSendMessage, data)
	if err != nil {
		return nil, apperrors.ErrTransport.Wrap(err)
	}

	var ack proto.MessageAck
	if err := json.Unmarshal(reply.Data, &ack); err != nil {
		p.logger.Error("Failed to unmarshal message ack", "clientMsgId", req.ClientMsgId, "error", err)
		return nil, apperrors.ErrServerError.Wrap(err)
	}
	p.logger.Debug("Message acknowledged",
		"clientMsgId", ack.ClientMsgId,
		"serverMsgId", ack.ServerMsgId,
		"code", ack.Code)
	return &ack, nil
}

// MarkAsRead 上报已读
func (p *IntentPublisher) MarkAsRead(_ context.Context, req *proto.MarkRead) error {
	return p.publish(SubjectMarkRead, req)
}

// StartTyping 上报开始输入
func (p *IntentPublisher) StartTyping(_ context.Context, channelID string) error {
	return p.publish(SubjectTyping, &proto.TypingIntent{ChannelId: channelID, UserId: p.userID, Typing: true})
}

// StopTyping 上报停止输入
func (p *IntentPublisher) StopTyping(_ context.Context, channelID string) error {
	return p.publish(SubjectTyping, &proto.TypingIntent{ChannelId: channelID, UserId: p.userID, Typing: false})
}

// Subscribe 订阅频道推送并通知服务端
func (p *IntentPublisher) Subscribe(_ context.Context, channelID string) error {
	if p.watcher != nil {
		if err := p.watcher.Watch(channelID); err != nil {
			return apperrors.ErrTransport.Wrap(err)
		}
	}
	return p.publish(SubjectSubscription, &proto.Subscription{ChannelId: channelID, UserId: p.userID, Subscribe: true})
}

// Unsubscribe 取消频道推送并通知服务端
func (p *IntentPublisher) Unsubscribe(_ context.Context, channelID string) error {
	if p.watcher != nil {
		if err := p.watcher.Unwatch(channelID); err != nil {
			return apperrors.ErrTransport.Wrap(err)
		}
	}
	return p.publish(SubjectSubscription, &proto.Subscription{ChannelId: channelID, UserId: p.userID, Subscribe: false})
}
