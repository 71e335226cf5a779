package replay

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/juju/clock/testclock"

	"sudooom.im.sync/internal/model"
	"sudooom.im.sync/pkg/proto"
)

// virtualTimer 虚拟时钟上的一次性定时器
type virtualTimer struct {
	id       string
	deadline time.Time
	seq      int
	fn       func()
}

// virtualTimers 推进虚拟时钟时按到期顺序同步触发
type virtualTimers struct {
	clock  *testclock.Clock
	timers map[string]*virtualTimer
	seq    int
}

func newVirtualTimers(clk *testclock.Clock) *virtualTimers {
	return &virtualTimers{clock: clk, timers: make(map[string]*virtualTimer)}
}

// Schedule 安排回调，同ID替换
func (v *virtualTimers) Schedule(id string, delay time.Duration, fn func()) error {
	v.seq++
	v.timers[id] = &virtualTimer{id: id, deadline: v.clock.Now().Add(delay), seq: v.seq, fn: fn}
	return nil
}

// Cancel 取消定时器
func (v *virtualTimers) Cancel(id string) bool {
	if _, ok := v.timers[id]; !ok {
		return false
	}
	delete(v.timers, id)
	return true
}

// next 最早到期的定时器
func (v *virtualTimers) next() *virtualTimer {
	var first *virtualTimer
	for _, t := range v.timers {
		if first == nil || t.deadline.Before(first.deadline) ||
			(t.deadline.Equal(first.deadline) && t.seq < first.seq) {
			first = t
		}
	}
	return first
}

// Advance 推进时钟 d，途中到期的定时器在其到期时刻触发
func (v *virtualTimers) Advance(d time.Duration) int {
	target := v.clock.Now().Add(d)
	fired := 0
	for {
		t := v.next()
		if t == nil || t.deadline.After(target) {
			break
		}
		if wait := t.deadline.Sub(v.clock.Now()); wait > 0 {
			v.clock.Advance(wait)
		}
		delete(v.timers, t.id)
		t.fn()
		fired++
	}
	if wait := target.Sub(v.clock.Now()); wait > 0 {
		v.clock.Advance(wait)
	}
	return fired
}

// Len 未触发的定时器数量
func (v *virtualTimers) Len() int {
	return len(v.timers)
}

// recorder 记录上行意图，发送消息总是以 "srv-" 前缀的ID确认
type recorder struct {
	intents []string
}

func (r *recorder) add(format string, args ...any) {
	r.intents = append(r.intents, fmt.Sprintf(format, args...))
}

func (r *recorder) SendMessage(_ context.Context, req *proto.SendMessageRequest) (*proto.MessageAck, error) {
	r.add("send %s %s", req.ChannelId, req.ClientMsgId)
	return &proto.MessageAck{ClientMsgId: req.ClientMsgId, ServerMsgId: "srv-" + req.ClientMsgId, Timestamp: req.Timestamp}, nil
}

func (r *recorder) MarkAsRead(_ context.Context, req *proto.MarkRead) error {
	r.add("mark_read %s %s", req.ChannelId, req.MessageId)
	return nil
}

func (r *recorder) StartTyping(_ context.Context, channelID string) error {
	r.add("typing_start %s", channelID)
	return nil
}

func (r *recorder) StopTyping(_ context.Context, channelID string) error {
	r.add("typing_stop %s", channelID)
	return nil
}

func (r *recorder) Subscribe(_ context.Context, channelID string) error {
	r.add("subscribe %s", channelID)
	return nil
}

func (r *recorder) Unsubscribe(_ context.Context, channelID string) error {
	r.add("unsubscribe %s", channelID)
	return nil
}

// scriptHistory 脚本提供的历史数据
type scriptHistory struct {
	channels []*model.Channel
	messages map[string][]*model.Message // 按 CreatedAt 升序
}

func newScriptHistory(s *Script) (*scriptHistory, error) {
	h := &scriptHistory{messages: make(map[string][]*model.Message)}
	for i, raw := range s.Channels {
		var ch proto.Channel
		if err := viaJSON(raw, &ch); err != nil {
			return nil, fmt.Errorf("channel %d: %w", i, err)
		}
		h.channels = append(h.channels, ch.ToModel())
	}
	for channelID, list := range s.History {
		for i, raw := range list {
			var m proto.Message
			if err := viaJSON(raw, &m); err != nil {
				return nil, fmt.Errorf("history %s[%d]: %w", channelID, i, err)
			}
			msg := m.ToModel()
			msg.ChannelID = channelID
			h.messages[channelID] = append(h.messages[channelID], msg)
		}
		msgs := h.messages[channelID]
		sort.SliceStable(msgs, func(i, j int) bool {
			if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
				return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
			}
			return msgs[i].ID < msgs[j].ID
		})
	}
	return h, nil
}

func (h *scriptHistory) ListChannels(context.Context, string) ([]*model.Channel, error) {
	out := make([]*model.Channel, len(h.channels))
	for i, c := range h.channels {
		out[i] = c.Clone()
	}
	return out, nil
}

// FetchPage 与数据库仓库相同的游标语义：零游标取最新一页
func (h *scriptHistory) FetchPage(_ context.Context, req model.PageRequest) (*model.Page, error) {
	all := h.messages[req.ChannelID]
	var candidates []*model.Message
	for _, m := range all {
		if req.InPage(m) {
			candidates = append(candidates, m)
		}
	}

	page := &model.Page{ChannelID: req.ChannelID, Direction: req.Direction}
	limit := req.Limit
	if limit <= 0 || limit > len(candidates) {
		limit = len(candidates)
	}
	page.HasMore = len(candidates) > limit
	if req.Cursor.IsZero() || req.Direction == model.PageOlder {
		candidates = candidates[len(candidates)-limit:]
	} else {
		candidates = candidates[:limit]
	}
	for _, m := range candidates {
		page.Messages = append(page.Messages, m.Clone())
	}
	return page, nil
}

// staticPresence 脚本提供的在线快照
type staticPresence []string

func (p staticPresence) OnlineUsers(context.Context) ([]string, error) {
	return append([]string(nil), p...), nil
}
