package model

import "time"

// Attachment 消息附件
type Attachment struct {
	ID       string `json:"id"`       // 附件ID
	Name     string `json:"name"`     // 文件名
	URL      string `json:"url"`      // 下载地址
	MimeType string `json:"mimeType"` // MIME 类型
	Size     int64  `json:"size"`     // 字节数
}

// Reaction 表情回应，同一 (UserID, Emoji) 最多一条
type Reaction struct {
	ID        string    `json:"id"`        // 回应ID
	UserID    string    `json:"userId"`    // 回应者
	Emoji     string    `json:"emoji"`     // 表情
	CreatedAt time.Time `json:"createdAt"` // 回应时间
}

// ReadReceipt 已读回执，每个读者最多一条
type ReadReceipt struct {
	UserID string    `json:"userId"` // 读者
	ReadAt time.Time `json:"readAt"` // 已读时间
}

// Message 频道消息
type Message struct {
	ID           string        `json:"id"`                     // 消息ID
	ClientID     string        `json:"clientId,omitempty"`     // 客户端生成的ID（本地发送）
	ChannelID    string        `json:"channelId"`              // 所属频道
	SenderID     string        `json:"senderId"`               // 发送者
	Content      string        `json:"content"`                // 消息内容
	CreatedAt    time.Time     `json:"createdAt"`              // 创建时间
	EditedAt     *time.Time    `json:"editedAt,omitempty"`     // 编辑时间
	Attachments  []Attachment  `json:"attachments,omitempty"`  // 附件
	Reactions    []Reaction    `json:"reactions,omitempty"`    // 表情回应
	ReadReceipts []ReadReceipt `json:"readReceipts,omitempty"` // 已读回执
	Optimistic   bool          `json:"optimistic"`             // 本地已显示、服务端尚未确认
	Failed       bool          `json:"failed,omitempty"`       // 发送最终失败，可重试
}

// Clone 深拷贝消息，快照读取时使用
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	if m.EditedAt != nil {
		t := *m.EditedAt
		c.EditedAt = &t
	}
	if m.Attachments != nil {
		c.Attachments = append([]Attachment(nil), m.Attachments...)
	}
	if m.Reactions != nil {
		c.Reactions = append([]Reaction(nil), m.Reactions...)
	}
	if m.ReadReceipts != nil {
		c.ReadReceipts = append([]ReadReceipt(nil), m.ReadReceipts...)
	}
	return &c
}

// Summary 生成频道列表使用的最后一条消息摘要
func (m *Message) Summary() *MessageSummary {
	return &MessageSummary{
		MessageID: m.ID,
		SenderID:  m.SenderID,
		Preview:   Preview(m.Content),
		CreatedAt: m.CreatedAt,
	}
}

// MessagePatch 消息部分字段更新，nil 字段不修改
type MessagePatch struct {
	Content     *string       `json:"content,omitempty"`
	EditedAt    *time.Time    `json:"editedAt,omitempty"`
	Attachments *[]Attachment `json:"attachments,omitempty"`
	Optimistic  *bool         `json:"optimistic,omitempty"`
	Failed      *bool         `json:"failed,omitempty"`
}

// IsEmpty 判断补丁是否不包含任何字段
func (p MessagePatch) IsEmpty() bool {
	return p.Content == nil && p.EditedAt == nil && p.Attachments == nil &&
		p.Optimistic == nil && p.Failed == nil
}

// Apply 将补丁合并到消息
func (p MessagePatch) Apply(m *Message) {
	if p.Content != nil {
		m.Content = *p.Content
	}
	if p.EditedAt != nil {
		t := *p.EditedAt
		m.EditedAt = &t
	}
	if p.Attachments != nil {
		m.Attachments = append([]Attachment(nil), (*p.Attachments)...)
	}
	if p.Optimistic != nil {
		m.Optimistic = *p.Optimistic
	}
	if p.Failed != nil {
		m.Failed = *p.Failed
	}
}

// PatchFrom 由一条完整的服务端消息生成编辑补丁（不修改身份、时间顺序）
func PatchFrom(m *Message) MessagePatch {
	content := m.Content
	optimistic := false
	p := MessagePatch{
		Content:    &content,
		Optimistic: &optimistic,
	}
	if m.EditedAt != nil {
		t := *m.EditedAt
		p.EditedAt = &t
	}
	if m.Attachments != nil {
		a := append([]Attachment(nil), m.Attachments...)
		p.Attachments = &a
	}
	return p
}

const previewLimit = 80

// Preview 截断消息内容作为摘要
func Preview(content string) string {
	r := []rune(content)
	if len(r) <= previewLimit {
		return content
	}
	return string(r[:previewLimit]) + "…"
}
