package model

import "time"

// TypingIndicator 正在输入状态（不持久化）
type TypingIndicator struct {
	ChannelID   string    `json:"channelId"`
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	At          time.Time `json:"at"` // 最近一次更新时间
}

// NotificationKind 通知类型
type NotificationKind string

const (
	NotificationMessage NotificationKind = "message"
	NotificationMention NotificationKind = "mention"
)

// Notification 通知
type Notification struct {
	ID        string           `json:"id"`
	Kind      NotificationKind `json:"kind"`
	ChannelID string           `json:"channelId"`
	MessageID string           `json:"messageId,omitempty"`
	Preview   string           `json:"preview"`
	CreatedAt time.Time        `json:"createdAt"`
	Read      bool             `json:"read"`
}

// PageDirection 分页方向
type PageDirection string

const (
	// PageOlder 向前翻页，结果 prepend
	PageOlder PageDirection = "older"
	// PageNewer 向后翻页，结果 append
	PageNewer PageDirection = "newer"
)

// PageRequest 历史消息分页请求
// 游标为边界消息的 (CreatedAt, ID)，相同时间的消息按ID继续翻页
type PageRequest struct {
	ChannelID string        `json:"channelId"`
	Direction PageDirection `json:"direction"`
	Cursor    time.Time     `json:"cursor"` // 零值表示从最新开始
	CursorID  string        `json:"cursorId,omitempty"`
	Limit     int           `json:"limit"`
}

// InPage 判断消息是否落在游标指定的方向上
func (r PageRequest) InPage(m *Message) bool {
	if r.Cursor.IsZero() {
		return true
	}
	if !m.CreatedAt.Equal(r.Cursor) {
		if r.Direction == PageOlder {
			return m.CreatedAt.Before(r.Cursor)
		}
		return m.CreatedAt.After(r.Cursor)
	}
	if r.Direction == PageOlder {
		return m.ID < r.CursorID
	}
	return m.ID > r.CursorID
}

// Page 历史消息分页结果
type Page struct {
	ChannelID string        `json:"channelId"`
	Direction PageDirection `json:"direction"`
	Messages  []*Message    `json:"messages"`
	HasMore   bool          `json:"hasMore"`
}
