// Package store 频道消息存储
package store

import (
	"slices"
	"sort"
	"time"

	"sudooom.im.sync/internal/model"
	apperrors "sudooom.im.sync/pkg/errors"
)

// MessageStore 按频道保存的有序消息序列
// 每个频道内消息按 (CreatedAt, ID) 升序；消息ID全局唯一
// 非并发安全，由同步引擎的单一协程持有
type MessageStore struct {
	channels map[string][]*model.Message
	index    map[string]string // messageID -> channelID
}

// NewMessageStore 创建消息存储
func NewMessageStore() *MessageStore {
	return &MessageStore{
		channels: make(map[string][]*model.Message),
		index:    make(map[string]string),
	}
}

// Append 插入一条消息，已存在相同ID时返回 ErrDuplicateEvent
// 推送乱序到达时插入到按时间排序的位置
func (s *MessageStore) Append(channelID string, msg *model.Message) error {
	if msg == nil || msg.ID == "" {
		return apperrors.ErrInvalidEvent.Withf("empty message")
	}
	if _, ok := s.index[msg.ID]; ok {
		return apperrors.ErrDuplicateEvent.Withf("message %s", msg.ID)
	}

	m := msg.Clone()
	m.ChannelID = channelID
	s.insert(channelID, m)
	return nil
}

// InsertOrdered 按 CreatedAt 把消息放回正确位置（回收站恢复使用）
func (s *MessageStore) InsertOrdered(msg *model.Message) error {
	return s.Append(msg.ChannelID, msg)
}

// less 消息排序：先按 CreatedAt，时间相同按 ID
func less(a, b *model.Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// insert 在第一条排在 m 之后的消息之前插入，没有则追加到末尾
func (s *MessageStore) insert(channelID string, m *model.Message) {
	msgs := s.channels[channelID]
	i := sort.Search(len(msgs), func(i int) bool {
		return less(m, msgs[i])
	})
	s.channels[channelID] = slices.Insert(msgs, i, m)
	s.index[m.ID] = channelID
}

// Prepend 合并一页更早的历史消息，过滤已存在的ID，返回实际新增的消息
func (s *MessageStore) Prepend(channelID string, page []*model.Message) []*model.Message {
	fresh := make([]*model.Message, 0, len(page))
	seen := make(map[string]struct{}, len(page))
	for _, msg := range page {
		if msg == nil || msg.ID == "" {
			continue
		}
		if _, ok := s.index[msg.ID]; ok {
			continue
		}
		if _, ok := seen[msg.ID]; ok {
			continue
		}
		seen[msg.ID] = struct{}{}
		m := msg.Clone()
		m.ChannelID = channelID
		fresh = append(fresh, m)
	}
	if len(fresh) == 0 {
		return nil
	}

	sort.SliceStable(fresh, func(i, j int) bool {
		return less(fresh[i], fresh[j])
	})

	existing := s.channels[channelID]
	if len(existing) == 0 || less(fresh[len(fresh)-1], existing[0]) {
		s.channels[channelID] = append(fresh, existing...)
	} else {
		s.channels[channelID] = merge(fresh, existing)
	}
	for _, m := range fresh {
		s.index[m.ID] = channelID
	}

	out := make([]*model.Message, len(fresh))
	for i, m := range fresh {
		out[i] = m.Clone()
	}
	return out
}

// merge 两个升序序列归并
func merge(older, existing []*model.Message) []*model.Message {
	out := make([]*model.Message, 0, len(older)+len(existing))
	i, j := 0, 0
	for i < len(older) && j < len(existing) {
		if less(existing[j], older[i]) {
			out = append(out, existing[j])
			j++
		} else {
			out = append(out, older[i])
			i++
		}
	}
	out = append(out, older[i:]...)
	return append(out, existing[j:]...)
}

// lookup 查找消息；channelID 为空时按索引定位
func (s *MessageStore) lookup(channelID, messageID string) (*model.Message, int, error) {
	owner, ok := s.index[messageID]
	if !ok || (channelID != "" && owner != channelID) {
		return nil, -1, apperrors.ErrUnknownEntity.Withf("message %s", messageID)
	}
	for i, m := range s.channels[owner] {
		if m.ID == messageID {
			return m, i, nil
		}
	}
	return nil, -1, apperrors.ErrUnknownEntity.Withf("message %s", messageID)
}

// Patch 合并部分字段，不改变顺序
func (s *MessageStore) Patch(channelID, messageID string, patch model.MessagePatch) error {
	m, _, err := s.lookup(channelID, messageID)
	if err != nil {
		return err
	}
	patch.Apply(m)
	return nil
}

// Mutate 在原位置修改消息
func (s *MessageStore) Mutate(messageID string, fn func(*model.Message) error) error {
	m, _, err := s.lookup("", messageID)
	if err != nil {
		return err
	}
	return fn(m)
}

// AddReaction 添加表情回应，同一 (UserID, Emoji) 已存在时返回 ErrDuplicateEvent
func (s *MessageStore) AddReaction(messageID string, r model.Reaction) error {
	m, _, err := s.lookup("", messageID)
	if err != nil {
		return err
	}
	return AddReaction(m, r)
}

// RemoveReaction 按回应ID移除
func (s *MessageStore) RemoveReaction(messageID, reactionID string) error {
	m, _, err := s.lookup("", messageID)
	if err != nil {
		return err
	}
	return RemoveReaction(m, func(r model.Reaction) bool { return r.ID == reactionID })
}

// RemoveReactionBy 按 (UserID, Emoji) 移除
func (s *MessageStore) RemoveReactionBy(messageID, userID, emoji string) error {
	m, _, err := s.lookup("", messageID)
	if err != nil {
		return err
	}
	return RemoveReaction(m, func(r model.Reaction) bool {
		return r.UserID == userID && r.Emoji == emoji
	})
}

// AddReadReceipt 添加已读回执，同一读者已存在时返回 ErrDuplicateEvent
func (s *MessageStore) AddReadReceipt(messageID string, rr model.ReadReceipt) error {
	m, _, err := s.lookup("", messageID)
	if err != nil {
		return err
	}
	return AddReadReceipt(m, rr)
}

// Remove 从存储中剪切一条消息
func (s *MessageStore) Remove(messageID string) (*model.Message, error) {
	m, i, err := s.lookup("", messageID)
	if err != nil {
		return nil, err
	}
	owner := s.index[messageID]
	s.channels[owner] = slices.Delete(s.channels[owner], i, i+1)
	if len(s.channels[owner]) == 0 {
		delete(s.channels, owner)
	}
	delete(s.index, messageID)
	return m, nil
}

// Rekey 服务端确认后替换消息ID与创建时间，并保持频道内有序
func (s *MessageStore) Rekey(oldID, newID string, createdAt time.Time) error {
	if oldID == newID {
		m, _, err := s.lookup("", oldID)
		if err != nil {
			return err
		}
		if !createdAt.IsZero() && !createdAt.Equal(m.CreatedAt) {
			s.Remove(oldID)
			m.CreatedAt = createdAt
			s.insert(m.ChannelID, m)
		}
		return nil
	}
	if _, ok := s.index[newID]; ok {
		return apperrors.ErrDuplicateEvent.Withf("message %s", newID)
	}
	m, err := s.Remove(oldID)
	if err != nil {
		return err
	}
	m.ID = newID
	if !createdAt.IsZero() {
		m.CreatedAt = createdAt
	}
	s.insert(m.ChannelID, m)
	return nil
}

// Has 判断消息是否存在
func (s *MessageStore) Has(messageID string) bool {
	_, ok := s.index[messageID]
	return ok
}

// Get 获取消息副本
func (s *MessageStore) Get(messageID string) (*model.Message, bool) {
	m, _, err := s.lookup("", messageID)
	if err != nil {
		return nil, false
	}
	return m.Clone(), true
}

// ChannelOf 获取消息所属频道
func (s *MessageStore) ChannelOf(messageID string) (string, bool) {
	ch, ok := s.index[messageID]
	return ch, ok
}

// Messages 返回频道消息副本（升序）
func (s *MessageStore) Messages(channelID string) []*model.Message {
	msgs := s.channels[channelID]
	out := make([]*model.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

// Last 频道最新一条消息副本
func (s *MessageStore) Last(channelID string) *model.Message {
	msgs := s.channels[channelID]
	if len(msgs) == 0 {
		return nil
	}
	return msgs[len(msgs)-1].Clone()
}

// First 频道最早一条消息副本
func (s *MessageStore) First(channelID string) *model.Message {
	msgs := s.channels[channelID]
	if len(msgs) == 0 {
		return nil
	}
	return msgs[0].Clone()
}

// Len 频道消息数
func (s *MessageStore) Len(channelID string) int {
	return len(s.channels[channelID])
}

// Total 所有频道消息总数
func (s *MessageStore) Total() int {
	return len(s.index)
}

// ChannelIDs 存储中有消息的频道ID（升序）
func (s *MessageStore) ChannelIDs() []string {
	ids := make([]string, 0, len(s.channels))
	for id := range s.channels {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// ClearChannel 清空频道消息，返回被移除的消息ID
func (s *MessageStore) ClearChannel(channelID string) []string {
	msgs := s.channels[channelID]
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
		delete(s.index, m.ID)
	}
	delete(s.channels, channelID)
	return ids
}
