package store

import (
	"slices"

	"sudooom.im.sync/internal/model"
	apperrors "sudooom.im.sync/pkg/errors"
)

// AddReaction 向消息添加表情回应，回收站中的消息也通过它修改
func AddReaction(m *model.Message, r model.Reaction) error {
	for _, existing := range m.Reactions {
		if (existing.UserID == r.UserID && existing.Emoji == r.Emoji) ||
			(r.ID != "" && existing.ID == r.ID) {
			return apperrors.ErrDuplicateEvent.Withf("reaction %s %s on %s", r.UserID, r.Emoji, m.ID)
		}
	}
	m.Reactions = append(m.Reactions, r)
	return nil
}

// RemoveReaction 移除第一条匹配的表情回应
func RemoveReaction(m *model.Message, match func(model.Reaction) bool) error {
	i := slices.IndexFunc(m.Reactions, match)
	if i < 0 {
		return apperrors.ErrUnknownEntity.Withf("reaction on %s", m.ID)
	}
	m.Reactions = slices.Delete(m.Reactions, i, i+1)
	if len(m.Reactions) == 0 {
		m.Reactions = nil
	}
	return nil
}

// AddReadReceipt 向消息添加已读回执
func AddReadReceipt(m *model.Message, rr model.ReadReceipt) error {
	for _, existing := range m.ReadReceipts {
		if existing.UserID == rr.UserID {
			return apperrors.ErrDuplicateEvent.Withf("receipt %s on %s", rr.UserID, m.ID)
		}
	}
	m.ReadReceipts = append(m.ReadReceipts, rr)
	return nil
}
