package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/juju/clock/testclock"

	"sudooom.im.sync/internal/model"
	apperrors "sudooom.im.sync/pkg/errors"
	"sudooom.im.sync/pkg/proto"
)

var t0 = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

const me = "u-me"

// fakeTransport 记录上行意图
type fakeTransport struct {
	mu          sync.Mutex
	sends       []*proto.SendMessageRequest
	reads       []*proto.MarkRead
	typingStart []string
	typingStop  []string
	subscribed  []string
	unsubbed    []string

	sendErr error
	ack     func(req *proto.SendMessageRequest) *proto.MessageAck
}

func (f *fakeTransport) SendMessage(_ context.Context, req *proto.SendMessageRequest) (*proto.MessageAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, req)
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	if f.ack != nil {
		return f.ack(req), nil
	}
	return &proto.MessageAck{ClientMsgId: req.ClientMsgId, ServerMsgId: "srv-" + req.ClientMsgId, Timestamp: req.Timestamp}, nil
}

func (f *fakeTransport) MarkAsRead(_ context.Context, req *proto.MarkRead) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads = append(f.reads, req)
	return nil
}

func (f *fakeTransport) StartTyping(_ context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typingStart = append(f.typingStart, channelID)
	return nil
}

func (f *fakeTransport) StopTyping(_ context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typingStop = append(f.typingStop, channelID)
	return nil
}

func (f *fakeTransport) Subscribe(_ context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = append(f.subscribed, channelID)
	return nil
}

func (f *fakeTransport) Unsubscribe(_ context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubbed = append(f.unsubbed, channelID)
	return nil
}

// fakeHistory 返回预置的频道和分页
type fakeHistory struct {
	channels []*model.Channel
	pages    map[string]*model.Page
	requests []model.PageRequest
	err      error
}

func (f *fakeHistory) ListChannels(context.Context, string) ([]*model.Channel, error) {
	return f.channels, f.err
}

func (f *fakeHistory) FetchPage(_ context.Context, req model.PageRequest) (*model.Page, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, apperrors.ErrFetch.Wrap(f.err)
	}
	if p, ok := f.pages[req.ChannelID]; ok {
		return p, nil
	}
	return &model.Page{ChannelID: req.ChannelID, Direction: req.Direction}, nil
}

// manualTimers 测试中手动触发的定时器
type manualTimers struct {
	fns    map[string]func()
	delays map[string]time.Duration
}

func newManualTimers() *manualTimers {
	return &manualTimers{fns: map[string]func(){}, delays: map[string]time.Duration{}}
}

func (m *manualTimers) Schedule(id string, delay time.Duration, fn func()) error {
	m.fns[id] = fn
	m.delays[id] = delay
	return nil
}

func (m *manualTimers) Cancel(id string) bool {
	_, ok := m.fns[id]
	delete(m.fns, id)
	delete(m.delays, id)
	return ok
}

func (m *manualTimers) fire(id string) bool {
	fn, ok := m.fns[id]
	if !ok {
		return false
	}
	delete(m.fns, id)
	delete(m.delays, id)
	fn()
	return true
}

func (m *manualTimers) ids() []string {
	var out []string
	for id := range m.fns {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

type harness struct {
	engine    *Engine
	clock     *testclock.Clock
	transport *fakeTransport
	history   *fakeHistory
	timers    *manualTimers
}

func newHarness(mutators ...func(*Options)) *harness {
	h := &harness{
		clock:     testclock.NewClock(t0),
		transport: &fakeTransport{},
		history:   &fakeHistory{pages: map[string]*model.Page{}},
		timers:    newManualTimers(),
	}
	opts := DefaultOptions(me)
	opts.LocalUserName = "mika"
	opts.SendAttempts = 1
	for _, m := range mutators {
		m(&opts)
	}
	h.engine = New(opts, Deps{
		Transport: h.transport,
		History:   h.history,
		Timers:    h.timers,
		Clock:     h.clock,
	})
	return h
}

func channel(id string, minute, unread int, members ...string) *model.Channel {
	c := &model.Channel{ID: id, Name: id, LastMessageAt: t0.Add(time.Duration(minute) * time.Minute), Unread: unread}
	for _, m := range members {
		c.Members = append(c.Members, model.Member{UserID: m, DisplayName: "name-" + m})
	}
	return c
}

func message(id, channelID, sender string, sec int) *model.Message {
	return &model.Message{
		ID:        id,
		ChannelID: channelID,
		SenderID:  sender,
		Content:   "content " + id,
		CreatedAt: t0.Add(time.Duration(sec) * time.Second),
	}
}

func messageIDs(msgs []*model.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func channelIDs(chs []*model.Channel) []string {
	out := make([]string, len(chs))
	for i, c := range chs {
		out[i] = c.ID
	}
	return out
}

func unreadOf(e *Engine, channelID string) int {
	c, _ := e.Channel(channelID)
	if c == nil {
		return -1
	}
	return c.Unread
}
