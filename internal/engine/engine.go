// Package engine 频道消息同步引擎
//
// Engine 持有整个内存状态树（频道目录、消息存储、回收站、未读计数、在线状态、输入状态），
// 所有状态修改都在同一个协程中完成，外部通过 Loop 串行投递事件和意图。
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/juju/clock"

	"sudooom.im.sync/internal/directory"
	"sudooom.im.sync/internal/expiry"
	"sudooom.im.sync/internal/metrics"
	"sudooom.im.sync/internal/model"
	"sudooom.im.sync/internal/presence"
	"sudooom.im.sync/internal/store"
	"sudooom.im.sync/internal/trash"
	"sudooom.im.sync/internal/typing"
	"sudooom.im.sync/internal/unread"
	"sudooom.im.sync/pkg/proto"
)

// Transport 上行意图的传输层
type Transport interface {
	SendMessage(ctx context.Context, req *proto.SendMessageRequest) (*proto.MessageAck, error)
	MarkAsRead(ctx context.Context, req *proto.MarkRead) error
	StartTyping(ctx context.Context, channelID string) error
	StopTyping(ctx context.Context, channelID string) error
	Subscribe(ctx context.Context, channelID string) error
	Unsubscribe(ctx context.Context, channelID string) error
}

// History 历史数据拉取
type History interface {
	ListChannels(ctx context.Context, userID string) ([]*model.Channel, error)
	FetchPage(ctx context.Context, req model.PageRequest) (*model.Page, error)
}

// PresenceSource 在线用户快照
type PresenceSource interface {
	OnlineUsers(ctx context.Context) ([]string, error)
}

// Timers 一次性定时器，回调在任意协程执行
type Timers interface {
	Schedule(id string, delay time.Duration, fn func()) error
	Cancel(id string) bool
}

// IDGenerator 本地消息ID生成
type IDGenerator interface {
	ClientMsgID() string
}

// Options 引擎参数
type Options struct {
	LocalUserID      string
	LocalUserName    string
	TypingTimeout    time.Duration
	Trash            expiry.Policy
	PendingTTL       time.Duration
	PageSize         int
	MaxNotifications int
	SendAttempts     int
	SendRetryDelay   time.Duration
	RequestTimeout   time.Duration
}

// DefaultOptions 默认参数
func DefaultOptions(localUserID string) Options {
	return Options{
		LocalUserID:      localUserID,
		TypingTimeout:    3 * time.Second,
		Trash:            expiry.DefaultPolicy(),
		PendingTTL:       5 * time.Second,
		PageSize:         50,
		MaxNotifications: unread.DefaultMaxNotifications,
		SendAttempts:     3,
		SendRetryDelay:   500 * time.Millisecond,
		RequestTimeout:   5 * time.Second,
	}
}

// Deps 外部协作方，nil 字段使用空实现
type Deps struct {
	Transport Transport
	History   History
	Presence  PresenceSource
	Timers    Timers
	Clock     clock.Clock
	IDs       IDGenerator
	Metrics   *metrics.Metrics
}

// Engine 同步引擎，非并发安全
type Engine struct {
	opts Options

	messages *store.MessageStore
	trash    *trash.Manager
	channels *directory.Directory
	unread   *unread.Accountant
	presence *presence.Tracker
	typing   *typing.Registry
	pending  *pendingBuffer

	outbox      map[string]*proto.SendMessageRequest // clientMsgID -> 待确认的发送
	localTyping map[string]time.Time                 // channelID -> 最近一次发布 typing-start
	listed      bool                                 // 已应用过频道列表

	transport Transport
	history   History
	online    PresenceSource
	timers    Timers
	clock     clock.Clock
	ids       IDGenerator
	metrics   *metrics.Metrics

	async func(func())
	post  func(func(*Engine))

	logger *slog.Logger
}

// New 创建同步引擎
func New(opts Options, deps Deps) *Engine {
	def := DefaultOptions(opts.LocalUserID)
	if opts.TypingTimeout <= 0 {
		opts.TypingTimeout = def.TypingTimeout
	}
	if opts.Trash.Window <= 0 {
		opts.Trash.Window = def.Trash.Window
	}
	if opts.Trash.SoonDays <= 0 {
		opts.Trash.SoonDays = def.Trash.SoonDays
	}
	if opts.PendingTTL <= 0 {
		opts.PendingTTL = def.PendingTTL
	}
	if opts.PageSize <= 0 {
		opts.PageSize = def.PageSize
	}
	if opts.SendAttempts <= 0 {
		opts.SendAttempts = def.SendAttempts
	}
	if opts.SendRetryDelay <= 0 {
		opts.SendRetryDelay = def.SendRetryDelay
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = def.RequestTimeout
	}

	if deps.Clock == nil {
		deps.Clock = clock.WallClock
	}
	if deps.Transport == nil {
		deps.Transport = nopTransport{}
	}
	if deps.History == nil {
		deps.History = nopHistory{}
	}
	if deps.Timers == nil {
		deps.Timers = NewClockTimers(deps.Clock)
	}
	if deps.IDs == nil {
		deps.IDs = &counterIDs{}
	}

	messages := store.NewMessageStore()
	e := &Engine{
		opts:        opts,
		messages:    messages,
		trash:       trash.NewManager(messages, opts.Trash),
		channels:    directory.New(),
		unread:      unread.NewAccountant(opts.MaxNotifications),
		presence:    presence.NewTracker(),
		typing:      typing.NewRegistry(opts.LocalUserID),
		pending:     newPendingBuffer(),
		outbox:      make(map[string]*proto.SendMessageRequest),
		localTyping: make(map[string]time.Time),
		transport:   deps.Transport,
		history:     deps.History,
		online:      deps.Presence,
		timers:      deps.Timers,
		clock:       deps.Clock,
		ids:         deps.IDs,
		metrics:     deps.Metrics,
		logger:      slog.Default().With("component", "engine"),
	}
	e.async = func(f func()) { f() }
	e.post = func(f func(*Engine)) { f(e) }
	return e
}

// LocalUserID 本地用户ID
func (e *Engine) LocalUserID() string {
	return e.opts.LocalUserID
}

func (e *Engine) now() time.Time {
	return e.clock.Now()
}

// requestContext 外部调用使用的超时上下文
func (e *Engine) requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), e.opts.RequestTimeout)
}

// ============== 快照读取 ==============

// Channels 有序频道列表副本
func (e *Engine) Channels() []*model.Channel {
	return e.channels.List()
}

// Channel 频道副本
func (e *Engine) Channel(channelID string) (*model.Channel, bool) {
	return e.channels.Get(channelID)
}

// Messages 频道消息副本（升序）
func (e *Engine) Messages(channelID string) []*model.Message {
	return e.messages.Messages(channelID)
}

// Message 消息副本
func (e *Engine) Message(messageID string) (*model.Message, bool) {
	return e.messages.Get(messageID)
}

// Trash 回收站条目副本，读取前按当前时间刷新剩余天数
func (e *Engine) Trash() []*model.TrashedMessage {
	e.RecomputeExpiry()
	return e.trash.List()
}

// Notifications 通知副本
func (e *Engine) Notifications() []model.Notification {
	return e.unread.Notifications()
}

// TotalUnread 全局未读数
func (e *Engine) TotalUnread() int {
	return e.unread.Total()
}

// Online 在线用户
func (e *Engine) Online() []string {
	return e.presence.Online()
}

// Typing 频道内正在输入的用户
func (e *Engine) Typing(channelID string) []model.TypingIndicator {
	return e.typing.List(channelID)
}

// ActiveChannel 当前查看的频道
func (e *Engine) ActiveChannel() string {
	return e.channels.Active()
}

// UnreadConsistent 全局未读数是否等于各频道未读数之和
func (e *Engine) UnreadConsistent() bool {
	return e.unread.Total() == e.channels.SumUnread()
}

// Stats 引擎统计
type Stats struct {
	Channels      int    `json:"channels"`
	Messages      int    `json:"messages"`
	Trash         int    `json:"trash"`
	Notifications int    `json:"notifications"`
	Pending       int    `json:"pending"`
	Outbox        int    `json:"outbox"`
	TotalUnread   int    `json:"totalUnread"`
	Online        int    `json:"online"`
	Typing        int    `json:"typing"`
	ActiveChannel string `json:"activeChannel,omitempty"`
}

// Stats 获取统计信息
func (e *Engine) Stats() Stats {
	return Stats{
		Channels:      e.channels.Len(),
		Messages:      e.messages.Total(),
		Trash:         e.trash.Len(),
		Notifications: e.unread.Len(),
		Pending:       e.pending.Len(),
		Outbox:        len(e.outbox),
		TotalUnread:   e.unread.Total(),
		Online:        e.presence.Count(),
		Typing:        e.typing.Count(),
		ActiveChannel: e.channels.Active(),
	}
}

// Snapshot 完整只读快照
type Snapshot struct {
	Channels      []*model.Channel                   `json:"channels"`
	Messages      map[string][]*model.Message        `json:"messages"`
	Trash         []*model.TrashedMessage            `json:"trash"`
	Notifications []model.Notification               `json:"notifications"`
	Typing        map[string][]model.TypingIndicator `json:"typing,omitempty"`
	Online        []string                           `json:"online"`
	Stats         Stats                              `json:"stats"`
}

// Snapshot 生成完整快照
func (e *Engine) Snapshot() Snapshot {
	s := Snapshot{
		Channels:      e.channels.List(),
		Messages:      make(map[string][]*model.Message),
		Trash:         e.Trash(),
		Notifications: e.unread.Notifications(),
		Typing:        make(map[string][]model.TypingIndicator),
		Online:        e.presence.Online(),
		Stats:         e.Stats(),
	}
	for _, id := range e.channels.IDs() {
		s.Messages[id] = e.messages.Messages(id)
		if t := e.typing.List(id); len(t) > 0 {
			s.Typing[id] = t
		}
	}
	return s
}

// observe 写入指标
func (e *Engine) observe() {
	st := e.Stats()
	e.metrics.Observe(metrics.State{
		Channels:      st.Channels,
		Messages:      st.Messages,
		Trash:         st.Trash,
		Notifications: st.Notifications,
		Pending:       st.Pending,
		TotalUnread:   st.TotalUnread,
		Online:        st.Online,
		Typing:        st.Typing,
	})
}
