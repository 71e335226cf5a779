package proto

// ============== 下行推送 (Server -> Sync) ==============

// PushEvent 推送事件封装，Payload 中只有一个字段非空
type PushEvent struct {
	EventId   string      `json:"EventId"`
	Timestamp int64       `json:"Timestamp"` // 服务端发出时间（毫秒）
	Payload   PushPayload `json:"Payload"`
}

// PushPayload 推送事件载荷
type PushPayload struct {
	NewMessage      *NewMessage      `json:"NewMessage,omitempty"`
	MessageUpdated  *MessageUpdated  `json:"MessageUpdated,omitempty"`
	MessageDeleted  *MessageDeleted  `json:"MessageDeleted,omitempty"`
	ReactionAdded   *ReactionAdded   `json:"ReactionAdded,omitempty"`
	ReactionRemoved *ReactionRemoved `json:"ReactionRemoved,omitempty"`
	ReadReceipt     *ReadReceipt     `json:"ReadReceipt,omitempty"`
	UserOnline      *UserPresence    `json:"UserOnline,omitempty"`
	UserOffline     *UserPresence    `json:"UserOffline,omitempty"`
	TypingStart     *Typing          `json:"TypingStart,omitempty"`
	TypingStop      *Typing          `json:"TypingStop,omitempty"`
	ChannelAdded    *ChannelEvent    `json:"ChannelAdded,omitempty"`
	ChannelUpdated  *ChannelEvent    `json:"ChannelUpdated,omitempty"`
	ChannelRemoved  *ChannelRemoved  `json:"ChannelRemoved,omitempty"`
}

// Message 消息
type Message struct {
	MessageId    string        `json:"MessageId"`
	ClientMsgId  string        `json:"ClientMsgId,omitempty"`
	ChannelId    string        `json:"ChannelId"`
	SenderId     string        `json:"SenderId"`
	Content      string        `json:"Content"`
	CreatedAt    int64         `json:"CreatedAt"`
	EditedAt     int64         `json:"EditedAt,omitempty"`
	Attachments  []Attachment  `json:"Attachments,omitempty"`
	Reactions    []Reaction    `json:"Reactions,omitempty"`
	ReadReceipts []ReadReceipt `json:"ReadReceipts,omitempty"`
}

// Attachment 附件
type Attachment struct {
	AttachmentId string `json:"AttachmentId"`
	Name         string `json:"Name"`
	Url          string `json:"Url"`
	MimeType     string `json:"MimeType"`
	Size         int64  `json:"Size"`
}

// Reaction 表情回应
type Reaction struct {
	ReactionId string `json:"ReactionId"`
	UserId     string `json:"UserId"`
	Emoji      string `json:"Emoji"`
	CreatedAt  int64  `json:"CreatedAt"`
}

// NewMessage 新消息
type NewMessage struct {
	ChannelId string  `json:"ChannelId"`
	Message   Message `json:"Message"`
}

// MessageUpdated 消息被编辑
type MessageUpdated struct {
	Message Message `json:"Message"`
}

// MessageDeleted 消息被删除，Permanent 为 true 时不进入回收站
type MessageDeleted struct {
	MessageId string `json:"MessageId"`
	ChannelId string `json:"ChannelId,omitempty"`
	DeletedBy string `json:"DeletedBy,omitempty"`
	Permanent bool   `json:"Permanent,omitempty"`
}

// ReactionAdded 新增表情回应
type ReactionAdded struct {
	MessageId string   `json:"MessageId"`
	Reaction  Reaction `json:"Reaction"`
}

// ReactionRemoved 移除表情回应，ReactionId 为空时按 (UserId, Emoji) 匹配
type ReactionRemoved struct {
	MessageId  string `json:"MessageId"`
	ReactionId string `json:"ReactionId,omitempty"`
	UserId     string `json:"UserId,omitempty"`
	Emoji      string `json:"Emoji,omitempty"`
}

// ReadReceipt 已读回执
type ReadReceipt struct {
	MessageId string `json:"MessageId,omitempty"`
	UserId    string `json:"UserId"`
	ReadAt    int64  `json:"ReadAt"`
}

// UserPresence 用户上下线
type UserPresence struct {
	UserId string `json:"UserId"`
}

// Typing 正在输入
type Typing struct {
	ChannelId   string `json:"ChannelId"`
	UserId      string `json:"UserId"`
	DisplayName string `json:"DisplayName,omitempty"`
}

// Member 频道成员
type Member struct {
	UserId      string `json:"UserId"`
	DisplayName string `json:"DisplayName"`
}

// Channel 频道
type Channel struct {
	ChannelId     string   `json:"ChannelId"`
	Name          string   `json:"Name"`
	Members       []Member `json:"Members,omitempty"`
	LastMessage   *Message `json:"LastMessage,omitempty"`
	LastMessageAt int64    `json:"LastMessageAt,omitempty"`
	UnreadCount   int      `json:"UnreadCount,omitempty"`
}

// ChannelEvent 频道新增或更新
type ChannelEvent struct {
	Channel Channel `json:"Channel"`
}

// ChannelRemoved 频道移除
type ChannelRemoved struct {
	ChannelId string `json:"ChannelId"`
}

// ============== 上行意图 (Sync -> Server) ==============

// SendMessageRequest 发送消息 (request/reply)
type SendMessageRequest struct {
	ClientMsgId string       `json:"ClientMsgId"`
	ChannelId   string       `json:"ChannelId"`
	SenderId    string       `json:"SenderId"`
	Content     string       `json:"Content"`
	Attachments []Attachment `json:"Attachments,omitempty"`
	Timestamp   int64        `json:"Timestamp"`
}

// MessageAck 消息确认
type MessageAck struct {
	ClientMsgId string `json:"ClientMsgId"`
	ServerMsgId string `json:"ServerMsgId"`
	Timestamp   int64  `json:"Timestamp"`
	Code        int    `json:"Code,omitempty"` // 非 0 表示服务端拒绝
	Message     string `json:"Message,omitempty"`
}

// MarkRead 标记已读
type MarkRead struct {
	ChannelId string `json:"ChannelId"`
	MessageId string `json:"MessageId"`
	UserId    string `json:"UserId"`
	ReadAt    int64  `json:"ReadAt"`
}

// TypingIntent 本地用户输入状态
type TypingIntent struct {
	ChannelId string `json:"ChannelId"`
	UserId    string `json:"UserId"`
	Typing    bool   `json:"Typing"`
}

// Subscription 订阅或取消订阅频道
type Subscription struct {
	ChannelId string `json:"ChannelId"`
	UserId    string `json:"UserId"`
	Subscribe bool   `json:"Subscribe"`
}
