package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"

	"sudooom.im.sync/pkg/proto"
)

// Dispatcher 推送事件的接收方（引擎事件循环）
type Dispatcher interface {
	Dispatch(ev *proto.PushEvent)
}

// DispatcherFunc 函数形式的 Dispatcher
type DispatcherFunc func(ev *proto.PushEvent)

// Dispatch 调用 f(ev)
func (f DispatcherFunc) Dispatch(ev *proto.PushEvent) {
	f(ev)
}

// SubscriberConfig 订阅器配置
type SubscriberConfig struct {
	UserID     string
	BufferSize int // 消息缓冲区大小
}

// EventSubscriber 推送订阅器
// 所有 Subject 的消息进入同一个缓冲通道，由单个协程按到达顺序解码并投递
type EventSubscriber struct {
	nc         *nats.Conn
	dispatcher Dispatcher
	config     SubscriberConfig
	logger     *slog.Logger

	mu       sync.Mutex
	userSub  *nats.Subscription
	channels map[string]*nats.Subscription // channelID -> 频道订阅

	msgChan    chan *nats.Msg
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// NewEventSubscriber 创建推送订阅器
func NewEventSubscriber(nc *nats.Conn, dispatcher Dispatcher, config SubscriberConfig) *EventSubscriber {
	if config.BufferSize <= 0 {
		config.BufferSize = 1024
	}
	return &EventSubscriber{
		nc:         nc,
		dispatcher: dispatcher,
		config:     config,
		logger:     slog.Default().With("component", "nats"),
		channels:   make(map[string]*nats.Subscription),
		msgChan:    make(chan *nats.Msg, config.BufferSize),
	}
}

// Start 订阅用户推送并启动投递协程
func (s *EventSubscriber) Start(ctx context.Context) error {
	if s.config.UserID == "" {
		return fmt.Errorf("subscriber requires a user id")
	}
	s.ctx, s.cancelFunc = context.WithCancel(ctx)

	subject := BuildUserEventsSubject(s.config.UserID)
	sub, err := s.nc.Subscribe(subject, s.enqueue)
	if err != nil {
		s.cancelFunc()
		return err
	}

	s.mu.Lock()
	s.userSub = sub
	s.mu.Unlock()

	s.wg.Add(1)
	go s.forward()

	s.logger.Info("NATS subscriber started", "subject", subject, "bufferSize", s.config.BufferSize)
	return nil
}

// enqueue NATS 回调：缓冲区满时阻塞，保持事件顺序
func (s *EventSubscriber) enqueue(msg *nats.Msg) {
	select {
	case s.msgChan <- msg:
		return
	default:
	}

	s.logger.Warn("Event buffer full, delivery may be delayed", "subject", msg.Subject, "bufferSize", s.config.BufferSize)
	select {
	case s.msgChan <- msg:
	case <-s.ctx.Done():
	}
}

// forward 投递协程
func (s *EventSubscriber) forward() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.msgChan:
			s.handle(msg)
		}
	}
}

// handle 解码并投递一条推送
func (s *EventSubscriber) handle(msg *nats.Msg) {
	ev, err := DecodeEvent(msg.Data)
	if err != nil {
		s.logger.Error("Failed to unmarshal push event", "subject", msg.Subject, "error", err)
		return
	}
	s.logger.Debug("Received push event", "subject", msg.Subject, "eventId", ev.EventId, "kind", ev.Payload.Kind())
	s.dispatcher.Dispatch(ev)
}

// DecodeEvent 解码推送事件
func DecodeEvent(data []byte) (*proto.PushEvent, error) {
	var ev proto.PushEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// Watch 订阅频道推送，重复调用无副作用
func (s *EventSubscriber) Watch(channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.channels[channelID]; ok {
		return nil
	}
	sub, err := s.nc.Subscribe(BuildChannelSubject(channelID), s.enqueue)
	if err != nil {
		return err
	}
	s.channels[channelID] = sub
	s.logger.Debug("Watching channel", "channelId", channelID)
	return nil
}

// Unwatch 取消频道推送订阅
func (s *EventSubscriber) Unwatch(channelID string) error {
	s.mu.Lock()
	sub, ok := s.channels[channelID]
	delete(s.channels, channelID)
	s.mu.Unlock()

	if !ok {
		return nil
	}
	s.logger.Debug("Unwatching channel", "channelId", channelID)
	return sub.Unsubscribe()
}

// Watching 当前订阅的频道数
func (s *EventSubscriber) Watching() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.channels)
}

// Stop 取消所有订阅并停止投递
func (s *EventSubscriber) Stop() error {
	s.mu.Lock()
	subs := make([]*nats.Subscription, 0, len(s.channels)+1)
	if s.userSub != nil {
		subs = append(subs, s.userSub)
		s.userSub = nil
	}
	for id, sub := range s.channels {
		subs = append(subs, sub)
		delete(s.channels, id)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			s.logger.Error("Failed to unsubscribe", "subject", sub.Subject, "error", err)
		}
	}

	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	s.wg.Wait()

	s.logger.Info("NATS subscriber stopped", "undelivered", len(s.msgChan))
	return nil
}

// GetBufferUsage 获取缓冲区使用情况（用于监控）
func (s *EventSubscriber) GetBufferUsage() (current int, capacity int) {
	return len(s.msgChan), cap(s.msgChan)
}
