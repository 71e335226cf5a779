package model

import "time"

// Member 频道成员
type Member struct {
	UserID      string `json:"userId"`      // 用户ID
	DisplayName string `json:"displayName"` // 显示名称
	Online      bool   `json:"online"`      // 是否在线（由在线状态投影）
}

// MessageSummary 频道最后一条消息摘要
type MessageSummary struct {
	MessageID string    `json:"messageId"`
	SenderID  string    `json:"senderId"`
	Preview   string    `json:"preview"`
	CreatedAt time.Time `json:"createdAt"`
}

// Channel 频道
type Channel struct {
	ID            string          `json:"id"`                    // 频道ID
	Name          string          `json:"name"`                  // 频道名称
	Members       []Member        `json:"members"`               // 成员列表（有序）
	LastMessage   *MessageSummary `json:"lastMessage,omitempty"` // 最后一条消息
	LastMessageAt time.Time       `json:"lastMessageAt"`         // 最后消息时间
	Unread        int             `json:"unread"`                // 当前用户未读数（>=0）
}

// Clone 深拷贝频道
func (c *Channel) Clone() *Channel {
	if c == nil {
		return nil
	}
	cp := *c
	if c.Members != nil {
		cp.Members = append([]Member(nil), c.Members...)
	}
	if c.LastMessage != nil {
		s := *c.LastMessage
		cp.LastMessage = &s
	}
	return &cp
}

// HasMember 判断用户是否为频道成员
func (c *Channel) HasMember(userID string) bool {
	for _, m := range c.Members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

// MemberName 获取成员显示名称，未找到返回用户ID
func (c *Channel) MemberName(userID string) string {
	for _, m := range c.Members {
		if m.UserID == userID {
			return m.DisplayName
		}
	}
	return userID
}
