package proto

import (
	"time"

	"sudooom.im.sync/internal/model"
)

// Millis 时间转毫秒时间戳，零值为 0
func Millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// FromMillis 毫秒时间戳转时间，0 为零值
func FromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// ToModel 转换为领域消息
func (m *Message) ToModel() *model.Message {
	out := &model.Message{
		ID:        m.MessageId,
		ClientID:  m.ClientMsgId,
		ChannelID: m.ChannelId,
		SenderID:  m.SenderId,
		Content:   m.Content,
		CreatedAt: FromMillis(m.CreatedAt),
	}
	if m.EditedAt != 0 {
		t := FromMillis(m.EditedAt)
		out.EditedAt = &t
	}
	for _, a := range m.Attachments {
		out.Attachments = append(out.Attachments, a.ToModel())
	}
	for _, r := range m.Reactions {
		out.Reactions = append(out.Reactions, r.ToModel())
	}
	for _, rr := range m.ReadReceipts {
		out.ReadReceipts = append(out.ReadReceipts, rr.ToModel())
	}
	return out
}

// MessageFromModel 领域消息转换为线上格式
func MessageFromModel(m *model.Message) Message {
	out := Message{
		MessageId:   m.ID,
		ClientMsgId: m.ClientID,
		ChannelId:   m.ChannelID,
		SenderId:    m.SenderID,
		Content:     m.Content,
		CreatedAt:   Millis(m.CreatedAt),
	}
	if m.EditedAt != nil {
		out.EditedAt = Millis(*m.EditedAt)
	}
	for _, a := range m.Attachments {
		out.Attachments = append(out.Attachments, AttachmentFromModel(a))
	}
	for _, r := range m.Reactions {
		out.Reactions = append(out.Reactions, Reaction{
			ReactionId: r.ID,
			UserId:     r.UserID,
			Emoji:      r.Emoji,
			CreatedAt:  Millis(r.CreatedAt),
		})
	}
	for _, rr := range m.ReadReceipts {
		out.ReadReceipts = append(out.ReadReceipts, ReadReceipt{UserId: rr.UserID, ReadAt: Millis(rr.ReadAt)})
	}
	return out
}

// ToModel 转换为领域附件
func (a Attachment) ToModel() model.Attachment {
	return model.Attachment{
		ID:       a.AttachmentId,
		Name:     a.Name,
		URL:      a.Url,
		MimeType: a.MimeType,
		Size:     a.Size,
	}
}

// AttachmentFromModel 领域附件转换为线上格式
func AttachmentFromModel(a model.Attachment) Attachment {
	return Attachment{
		AttachmentId: a.ID,
		Name:         a.Name,
		Url:          a.URL,
		MimeType:     a.MimeType,
		Size:         a.Size,
	}
}

// ToModel 转换为领域表情回应
func (r Reaction) ToModel() model.Reaction {
	return model.Reaction{
		ID:        r.ReactionId,
		UserID:    r.UserId,
		Emoji:     r.Emoji,
		CreatedAt: FromMillis(r.CreatedAt),
	}
}

// ToModel 转换为领域已读回执
func (rr ReadReceipt) ToModel() model.ReadReceipt {
	return model.ReadReceipt{UserID: rr.UserId, ReadAt: FromMillis(rr.ReadAt)}
}

// ToModel 转换为领域频道
func (c *Channel) ToModel() *model.Channel {
	out := &model.Channel{
		ID:            c.ChannelId,
		Name:          c.Name,
		LastMessageAt: FromMillis(c.LastMessageAt),
		Unread:        c.UnreadCount,
	}
	for _, m := range c.Members {
		out.Members = append(out.Members, model.Member{UserID: m.UserId, DisplayName: m.DisplayName})
	}
	if c.LastMessage != nil {
		last := c.LastMessage.ToModel()
		out.LastMessage = last.Summary()
		if out.LastMessageAt.IsZero() {
			out.LastMessageAt = last.CreatedAt
		}
	}
	return out
}

// Kind 返回载荷类型名，用于日志和指标
func (p *PushPayload) Kind() string {
	switch {
	case p.NewMessage != nil:
		return "new_message"
	case p.MessageUpdated != nil:
		return "message_updated"
	case p.MessageDeleted != nil:
		return "message_deleted"
	case p.ReactionAdded != nil:
		return "reaction_added"
	case p.ReactionRemoved != nil:
		return "reaction_removed"
	case p.ReadReceipt != nil:
		return "read_receipt"
	case p.UserOnline != nil:
		return "user_online"
	case p.UserOffline != nil:
		return "user_offline"
	case p.TypingStart != nil:
		return "typing_start"
	case p.TypingStop != nil:
		return "typing_stop"
	case p.ChannelAdded != nil:
		return "channel_added"
	case p.ChannelUpdated != nil:
		return "channel_updated"
	case p.ChannelRemoved != nil:
		return "channel_removed"
	default:
		return "unknown"
	}
}
