// Package trash 消息回收站生命周期
//
// 状态: Active -> Trashed -> Evicted（终态）或 Trashed -> Active（恢复）
package trash

import (
	"log/slog"
	"slices"
	"time"

	"sudooom.im.sync/internal/expiry"
	"sudooom.im.sync/internal/model"
	"sudooom.im.sync/internal/store"
	apperrors "sudooom.im.sync/pkg/errors"
)

// DefaultTombstoneLimit 记录已彻底删除消息ID的数量上限
const DefaultTombstoneLimit = 4096

// Manager 回收站管理器，在消息存储和回收站之间剪切消息
// 非并发安全，由同步引擎的单一协程持有
type Manager struct {
	store   *store.MessageStore
	policy  expiry.Policy
	entries []*model.TrashedMessage // 最新删除的在前

	tombstones     map[string]struct{}
	tombstoneOrder []string
	tombstoneLimit int

	logger *slog.Logger
}

// NewManager 创建回收站管理器
func NewManager(s *store.MessageStore, policy expiry.Policy) *Manager {
	return &Manager{
		store:          s,
		policy:         policy,
		tombstones:     make(map[string]struct{}),
		tombstoneLimit: DefaultTombstoneLimit,
		logger:         slog.Default().With("component", "trash"),
	}
}

// Trash 把消息从存储剪切到回收站前端
func (m *Manager) Trash(channelID, messageID, actorID, reason string, now time.Time) (*model.TrashedMessage, error) {
	if owner, ok := m.store.ChannelOf(messageID); !ok || (channelID != "" && owner != channelID) {
		return nil, apperrors.ErrUnknownEntity.Withf("message %s in channel %s", messageID, channelID)
	}
	msg, err := m.store.Remove(messageID)
	if err != nil {
		return nil, err
	}

	expiresAt, days, soon := m.policy.Evaluate(now, now)
	entry := &model.TrashedMessage{
		Message:        msg,
		TrashedAt:      now,
		TrashedBy:      actorID,
		Reason:         reason,
		ExpiresAt:      expiresAt,
		DaysRemaining:  days,
		IsExpiringSoon: soon,
	}
	m.entries = slices.Insert(m.entries, 0, entry)

	m.logger.Debug("message trashed",
		"messageId", messageID,
		"channelId", msg.ChannelID,
		"trashedBy", actorID)
	return entry.Clone(), nil
}

// Restore 从回收站移出并按时间顺序放回存储
// 存储中已有同ID消息时只移除回收站条目
func (m *Manager) Restore(messageID, channelID string) (*model.Message, error) {
	i := m.indexOf(messageID)
	if i < 0 {
		return nil, apperrors.ErrUnknownEntity.Withf("trashed message %s", messageID)
	}
	entry := m.entries[i]
	if channelID != "" && entry.Message.ChannelID != channelID {
		return nil, apperrors.ErrUnknownEntity.Withf("trashed message %s in channel %s", messageID, channelID)
	}

	m.entries = slices.Delete(m.entries, i, i+1)
	if err := m.store.InsertOrdered(entry.Message); err != nil {
		return nil, err
	}

	m.logger.Debug("message restored", "messageId", messageID, "channelId", entry.Message.ChannelID)
	return entry.Message.Clone(), nil
}

// PermanentlyDelete 无条件移出回收站，终态
func (m *Manager) PermanentlyDelete(messageID string) (*model.TrashedMessage, error) {
	i := m.indexOf(messageID)
	if i < 0 {
		return nil, apperrors.ErrUnknownEntity.Withf("trashed message %s", messageID)
	}
	entry := m.entries[i]
	m.entries = slices.Delete(m.entries, i, i+1)
	m.tombstone(messageID)
	return entry, nil
}

// Destroy 彻底删除消息，无论它在存储还是回收站中
func (m *Manager) Destroy(messageID string) (*model.Message, error) {
	if msg, err := m.store.Remove(messageID); err == nil {
		m.tombstone(messageID)
		return msg, nil
	}
	entry, err := m.PermanentlyDelete(messageID)
	if err != nil {
		return nil, err
	}
	return entry.Message, nil
}

// RecomputeExpiry 按当前时间刷新所有条目的剩余天数，剔除剩余天数为 0 的条目
// 剩余天数只会减少
func (m *Manager) RecomputeExpiry(now time.Time) []*model.TrashedMessage {
	var evicted []*model.TrashedMessage
	kept := m.entries[:0]
	for _, entry := range m.entries {
		_, days, _ := m.policy.Evaluate(entry.TrashedAt, now)
		if days > entry.DaysRemaining {
			days = entry.DaysRemaining
		}
		entry.DaysRemaining = days
		entry.IsExpiringSoon = expiry.IsExpiringSoon(days, m.soonDays())

		if days <= 0 {
			evicted = append(evicted, entry)
			m.tombstone(entry.Message.ID)
			continue
		}
		kept = append(kept, entry)
	}
	clear(m.entries[len(kept):])
	m.entries = kept

	if len(evicted) > 0 {
		m.logger.Info("trash entries evicted", "count", len(evicted), "remaining", len(m.entries))
	}
	return evicted
}

func (m *Manager) soonDays() int {
	if m.policy.SoonDays <= 0 {
		return expiry.DefaultSoonDays
	}
	return m.policy.SoonDays
}

// Mutate 修改回收站中的消息（编辑、回应、回执仍然作用于被删除的副本）
func (m *Manager) Mutate(messageID string, fn func(*model.Message) error) error {
	i := m.indexOf(messageID)
	if i < 0 {
		return apperrors.ErrUnknownEntity.Withf("trashed message %s", messageID)
	}
	return fn(m.entries[i].Message)
}

// Has 判断消息是否在回收站
func (m *Manager) Has(messageID string) bool {
	return m.indexOf(messageID) >= 0
}

// Get 获取回收站条目副本
func (m *Manager) Get(messageID string) (*model.TrashedMessage, bool) {
	i := m.indexOf(messageID)
	if i < 0 {
		return nil, false
	}
	return m.entries[i].Clone(), true
}

// List 返回回收站条目副本（最新删除在前）
func (m *Manager) List() []*model.TrashedMessage {
	out := make([]*model.TrashedMessage, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.Clone()
	}
	return out
}

// Len 回收站条目数
func (m *Manager) Len() int {
	return len(m.entries)
}

// IsTombstoned 判断消息是否已被彻底删除
func (m *Manager) IsTombstoned(messageID string) bool {
	_, ok := m.tombstones[messageID]
	return ok
}

func (m *Manager) indexOf(messageID string) int {
	return slices.IndexFunc(m.entries, func(e *model.TrashedMessage) bool {
		return e.Message.ID == messageID
	})
}

func (m *Manager) tombstone(messageID string) {
	if _, ok := m.tombstones[messageID]; ok {
		return
	}
	m.tombstones[messageID] = struct{}{}
	m.tombstoneOrder = append(m.tombstoneOrder, messageID)
	if len(m.tombstoneOrder) > m.tombstoneLimit {
		oldest := m.tombstoneOrder[0]
		m.tombstoneOrder = m.tombstoneOrder[1:]
		delete(m.tombstones, oldest)
	}
}
