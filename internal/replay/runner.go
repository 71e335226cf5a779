package replay

import (
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/juju/clock/testclock"

	"sudooom.im.sync/internal/engine"
	"sudooom.im.sync/internal/expiry"
	"sudooom.im.sync/internal/model"
)

// Result 回放结果
type Result struct {
	Snapshot engine.Snapshot `json:"snapshot"`
	Intents  []string        `json:"intents"` // 依次发出的上行意图
	Applied  int             `json:"applied"` // 改变了状态的推送事件数
	Ignored  int             `json:"ignored"` // 未改变状态的推送事件数
	Fired    int             `json:"fired"`   // 触发的定时器数
}

// Runner 回放执行器
type Runner struct {
	script    *Script
	engine    *engine.Engine
	clock     *testclock.Clock
	timers    *virtualTimers
	transport *recorder
	result    Result
	logger    *slog.Logger
}

// NewRunner 按脚本构建引擎
func NewRunner(s *Script) (*Runner, error) {
	history, err := newScriptHistory(s)
	if err != nil {
		return nil, err
	}

	clk := testclock.NewClock(s.Start)
	timers := newVirtualTimers(clk)
	transport := &recorder{}

	opts := engine.DefaultOptions(s.User.ID)
	opts.LocalUserName = s.User.Name
	if s.Options.TypingTimeout > 0 {
		opts.TypingTimeout = s.Options.TypingTimeout
	}
	if s.Options.TrashWindow > 0 || s.Options.ExpiringSoonDays > 0 {
		opts.Trash = expiry.Policy{Window: s.Options.TrashWindow, SoonDays: s.Options.ExpiringSoonDays}
	}
	if s.Options.PendingTTL > 0 {
		opts.PendingTTL = s.Options.PendingTTL
	}
	if s.Options.PageSize > 0 {
		opts.PageSize = s.Options.PageSize
	}
	if s.Options.MaxNotifications > 0 {
		opts.MaxNotifications = s.Options.MaxNotifications
	}

	e := engine.New(opts, engine.Deps{
		Transport: transport,
		History:   history,
		Presence:  staticPresence(s.Online),
		Timers:    timers,
		Clock:     clk,
	})

	return &Runner{
		script:    s,
		engine:    e,
		clock:     clk,
		timers:    timers,
		transport: transport,
		logger:    slog.Default().With("component", "replay"),
	}, nil
}

// Engine 被回放的引擎
func (r *Runner) Engine() *engine.Engine {
	return r.engine
}

// Run 加载初始数据并执行所有步骤，断言失败时返回错误
func (r *Runner) Run() (*Result, error) {
	r.engine.LoadChannels()

	for i, step := range r.script.Steps {
		if err := r.step(step); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	r.result.Snapshot = r.engine.Snapshot()
	r.result.Intents = append([]string(nil), r.transport.intents...)
	return &r.result, nil
}

func (r *Runner) step(step Step) error {
	if step.Advance > 0 {
		r.result.Fired += r.timers.Advance(step.Advance)
		r.engine.Maintain()
		r.engine.RecomputeExpiry()
	}

	if step.Event != nil {
		ev, err := decodeEvent(step.Event)
		if err != nil {
			return err
		}
		if r.engine.ApplyPush(ev) {
			r.result.Applied++
		} else {
			r.result.Ignored++
		}
	}

	if step.Intent != nil {
		if err := r.intent(step.Intent); err != nil {
			return fmt.Errorf("intent %s: %w", step.Intent.Action, err)
		}
	}

	if step.Expect != nil {
		return r.check(step.Expect)
	}
	return nil
}

// intent 执行界面意图，引擎返回的无变化错误只记录日志
func (r *Runner) intent(in *Intent) error {
	e := r.engine
	var err error
	switch in.Action {
	case "select":
		err = e.SelectChannel(in.Channel)
	case "send":
		_, err = e.SendMessage(in.Channel, in.Content, nil)
	case "retry":
		err = e.RetrySend(in.Message)
	case "fetch":
		err = e.FetchPage(in.Channel, model.PageDirection(in.Direction))
	case "trash":
		_, err = e.TrashMessage(in.Channel, in.Message, in.Reason)
	case "restore":
		_, err = e.RestoreMessage(in.Message, in.Channel)
	case "delete":
		err = e.DeleteMessage(in.Message)
	case "typing":
		err = e.NotifyTyping(in.Channel)
	case "stop_typing":
		e.StopTyping(in.Channel)
	case "correct_unread":
		_, err = e.CorrectUnread(in.Channel, in.Delta)
	case "remove_channel":
		err = e.RemoveChannel(in.Channel)
	case "remove_notification":
		err = e.RemoveNotification(in.Notification)
	case "clear_notifications":
		e.ClearNotifications(in.Channel)
	case "recompute_expiry":
		e.RecomputeExpiry()
	case "maintain":
		e.Maintain()
	default:
		return fmt.Errorf("unknown action")
	}
	if err != nil {
		r.logger.Info("intent had no effect", "action", in.Action, "error", err)
	}
	return nil
}

// check 核对断言
func (r *Runner) check(exp *Expect) error {
	e := r.engine
	var problems []string
	fail := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if exp.TotalUnread != nil && e.TotalUnread() != *exp.TotalUnread {
		fail("total_unread: expected %d, got %d", *exp.TotalUnread, e.TotalUnread())
	}
	if exp.ChannelOrder != nil {
		var got []string
		for _, c := range e.Channels() {
			got = append(got, c.ID)
		}
		if !equalStrings(exp.ChannelOrder, got) {
			fail("channel_order: expected %v, got %v", exp.ChannelOrder, got)
		}
	}
	for channelID, want := range exp.Unread {
		c, ok := e.Channel(channelID)
		if !ok {
			fail("unread %s: channel missing", channelID)
			continue
		}
		if c.Unread != want {
			fail("unread %s: expected %d, got %d", channelID, want, c.Unread)
		}
	}
	for channelID, want := range exp.Messages {
		var got []string
		for _, m := range e.Messages(channelID) {
			got = append(got, m.ID)
		}
		if !equalStrings(want, got) {
			fail("messages %s: expected %v, got %v", channelID, want, got)
		}
	}
	if exp.Trash != nil {
		var got []string
		for _, t := range e.Trash() {
			got = append(got, t.Message.ID)
		}
		if !equalStrings(exp.Trash, got) {
			fail("trash: expected %v, got %v", exp.Trash, got)
		}
	}
	for channelID, want := range exp.Typing {
		var got []string
		for _, t := range e.Typing(channelID) {
			got = append(got, t.UserID)
		}
		if !equalStrings(want, got) {
			fail("typing %s: expected %v, got %v", channelID, want, got)
		}
	}
	if exp.Online != nil && !equalStrings(exp.Online, e.Online()) {
		fail("online: expected %v, got %v", exp.Online, e.Online())
	}

	if len(problems) > 0 {
		return fmt.Errorf("expectation failed: %s", strings.Join(problems, "; "))
	}
	return nil
}

func equalStrings(want, got []string) bool {
	if len(want) == 0 && len(got) == 0 {
		return true
	}
	return reflect.DeepEqual(want, got)
}
