package engine

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/juju/clock"

	"sudooom.im.sync/internal/model"
	"sudooom.im.sync/pkg/proto"
)

// nopTransport 不发送任何上行意图，发送消息直接以客户端ID确认
type nopTransport struct{}

func (nopTransport) SendMessage(_ context.Context, req *proto.SendMessageRequest) (*proto.MessageAck, error) {
	return &proto.MessageAck{ClientMsgId: req.ClientMsgId, ServerMsgId: req.ClientMsgId, Timestamp: req.Timestamp}, nil
}
func (nopTransport) MarkAsRead(context.Context, *proto.MarkRead) error { return nil }
func (nopTransport) StartTyping(context.Context, string) error         { return nil }
func (nopTransport) StopTyping(context.Context, string) error          { return nil }
func (nopTransport) Subscribe(context.Context, string) error           { return nil }
func (nopTransport) Unsubscribe(context.Context, string) error         { return nil }

// nopHistory 没有历史数据
type nopHistory struct{}

func (nopHistory) ListChannels(context.Context, string) ([]*model.Channel, error) { return nil, nil }
func (nopHistory) FetchPage(_ context.Context, req model.PageRequest) (*model.Page, error) {
	return &model.Page{ChannelID: req.ChannelID, Direction: req.Direction}, nil
}

// counterIDs 进程内递增的本地消息ID
type counterIDs struct {
	mu sync.Mutex
	n  int64
}

func (c *counterIDs) ClientMsgID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return "local-" + strconv.FormatInt(c.n, 10)
}

// ClockTimers 基于 clock.AfterFunc 的定时器
type ClockTimers struct {
	clock  clock.Clock
	mu     sync.Mutex
	timers map[string]clock.Timer
}

// NewClockTimers 创建定时器集合
func NewClockTimers(clk clock.Clock) *ClockTimers {
	return &ClockTimers{clock: clk, timers: make(map[string]clock.Timer)}
}

// Schedule 安排一次性回调，同ID的旧定时器被替换
func (c *ClockTimers) Schedule(id string, delay time.Duration, fn func()) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.timers[id]; ok {
		old.Stop()
	}
	var t clock.Timer
	t = c.clock.AfterFunc(delay, func() {
		c.mu.Lock()
		if c.timers[id] == t {
			delete(c.timers, id)
		}
		c.mu.Unlock()
		fn()
	})
	c.timers[id] = t
	return nil
}

// Cancel 取消定时器
func (c *ClockTimers) Cancel(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.timers[id]
	if !ok {
		return false
	}
	delete(c.timers, id)
	return t.Stop()
}

// Len 未触发的定时器数量
func (c *ClockTimers) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}
