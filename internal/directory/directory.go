// Package directory 频道目录
package directory

import (
	"slices"
	"sort"
	"time"

	"sudooom.im.sync/internal/model"
	apperrors "sudooom.im.sync/pkg/errors"
)

// Directory 按最后消息时间倒序排列的频道列表
// 当前查看的频道未读数恒为 0
// 非并发安全，由同步引擎的单一协程持有
type Directory struct {
	channels []*model.Channel
	index    map[string]*model.Channel
	active   string
}

// New 创建频道目录
func New() *Directory {
	return &Directory{index: make(map[string]*model.Channel)}
}

// Upsert 新增或更新频道
// 已存在的频道保留本地未读数；新频道采用传入的未读数，返回需要计入全局的增量
func (d *Directory) Upsert(ch *model.Channel) (delta int, added bool) {
	if ch == nil || ch.ID == "" {
		return 0, false
	}

	if existing, ok := d.index[ch.ID]; ok {
		if ch.Name != "" {
			existing.Name = ch.Name
		}
		if ch.Members != nil {
			existing.Members = append([]model.Member(nil), ch.Members...)
		}
		if ch.LastMessage != nil && !ch.LastMessageAt.Before(existing.LastMessageAt) {
			s := *ch.LastMessage
			existing.LastMessage = &s
			existing.LastMessageAt = ch.LastMessageAt
			d.reposition(existing)
		}
		return 0, false
	}

	c := ch.Clone()
	if c.Unread < 0 || c.ID == d.active {
		c.Unread = 0
	}
	d.index[c.ID] = c
	i := sort.Search(len(d.channels), func(i int) bool {
		return d.channels[i].LastMessageAt.Before(c.LastMessageAt)
	})
	d.channels = slices.Insert(d.channels, i, c)
	return c.Unread, true
}

// Remove 移除频道，返回被移除的频道以及它是否为当前频道
func (d *Directory) Remove(channelID string) (*model.Channel, bool, error) {
	c, ok := d.index[channelID]
	if !ok {
		return nil, false, apperrors.ErrUnknownEntity.Withf("channel %s", channelID)
	}
	delete(d.index, channelID)
	d.channels = slices.DeleteFunc(d.channels, func(x *model.Channel) bool { return x.ID == channelID })

	wasActive := d.active == channelID
	if wasActive {
		d.active = ""
	}
	return c, wasActive, nil
}

// SetActive 设置当前查看的频道并清零其未读数
// 返回被清除的未读数和之前的当前频道
func (d *Directory) SetActive(channelID string) (cleared int, previous string, err error) {
	c, ok := d.index[channelID]
	if !ok {
		return 0, "", apperrors.ErrUnknownEntity.Withf("channel %s", channelID)
	}
	previous = d.active
	d.active = channelID
	cleared = c.Unread
	c.Unread = 0
	return cleared, previous, nil
}

// ClearActive 取消当前频道选择
func (d *Directory) ClearActive() string {
	prev := d.active
	d.active = ""
	return prev
}

// Active 当前查看的频道ID
func (d *Directory) Active() string {
	return d.active
}

// ReplaceAll 用初始列表整体替换
// 频道ID集合未变化时不做任何事并返回 false；否则返回各频道未读数之和
func (d *Directory) ReplaceAll(channels []*model.Channel) (changed bool, sum int) {
	incoming := make(map[string]*model.Channel, len(channels))
	for _, ch := range channels {
		if ch != nil && ch.ID != "" {
			incoming[ch.ID] = ch
		}
	}
	if len(incoming) == len(d.index) {
		same := true
		for id := range incoming {
			if _, ok := d.index[id]; !ok {
				same = false
				break
			}
		}
		if same {
			return false, d.SumUnread()
		}
	}

	d.channels = make([]*model.Channel, 0, len(incoming))
	d.index = make(map[string]*model.Channel, len(incoming))
	for _, ch := range channels {
		if ch == nil || ch.ID == "" {
			continue
		}
		if _, dup := d.index[ch.ID]; dup {
			continue
		}
		c := ch.Clone()
		if c.Unread < 0 || c.ID == d.active {
			c.Unread = 0
		}
		d.index[c.ID] = c
		d.channels = append(d.channels, c)
	}
	if _, ok := d.index[d.active]; !ok {
		d.active = ""
	}
	sort.SliceStable(d.channels, func(i, j int) bool {
		return d.channels[i].LastMessageAt.After(d.channels[j].LastMessageAt)
	})
	return true, d.SumUnread()
}

// Touch 更新频道最后消息摘要并移到正确位置
// 早于当前最后消息的摘要（历史补齐、乱序）不改变排序
func (d *Directory) Touch(channelID string, summary *model.MessageSummary, at time.Time) (bool, error) {
	c, ok := d.index[channelID]
	if !ok {
		return false, apperrors.ErrUnknownEntity.Withf("channel %s", channelID)
	}
	if at.Before(c.LastMessageAt) {
		return false, nil
	}
	if summary != nil {
		s := *summary
		c.LastMessage = &s
	}
	c.LastMessageAt = at
	d.reposition(c)
	return true, nil
}

// ReplaceSummary 摘要指向 staleMessageID 时替换为新的摘要，最后消息时间只前进不后退
func (d *Directory) ReplaceSummary(channelID, staleMessageID string, summary *model.MessageSummary) bool {
	c, ok := d.index[channelID]
	if !ok || c.LastMessage == nil || c.LastMessage.MessageID != staleMessageID {
		return false
	}
	if summary == nil {
		c.LastMessage = nil
		return true
	}
	s := *summary
	c.LastMessage = &s
	if s.CreatedAt.After(c.LastMessageAt) {
		c.LastMessageAt = s.CreatedAt
		d.reposition(c)
	}
	return true
}

// reposition 把频道放到所有不晚于它的频道之前
func (d *Directory) reposition(c *model.Channel) {
	d.channels = slices.DeleteFunc(d.channels, func(x *model.Channel) bool { return x.ID == c.ID })
	i := sort.Search(len(d.channels), func(i int) bool {
		return !d.channels[i].LastMessageAt.After(c.LastMessageAt)
	})
	d.channels = slices.Insert(d.channels, i, c)
}

// IncrementUnread 增加频道未读数，当前频道不计
func (d *Directory) IncrementUnread(channelID string, n int) (int, error) {
	return d.AdjustUnread(channelID, n)
}

// AdjustUnread 调整频道未读数（下限 0），返回实际变化量
func (d *Directory) AdjustUnread(channelID string, delta int) (int, error) {
	c, ok := d.index[channelID]
	if !ok {
		return 0, apperrors.ErrUnknownEntity.Withf("channel %s", channelID)
	}
	if channelID == d.active {
		return 0, nil
	}
	next := c.Unread + delta
	if next < 0 {
		next = 0
	}
	applied := next - c.Unread
	c.Unread = next
	return applied, nil
}

// Has 判断频道是否存在
func (d *Directory) Has(channelID string) bool {
	_, ok := d.index[channelID]
	return ok
}

// Get 获取频道副本
func (d *Directory) Get(channelID string) (*model.Channel, bool) {
	c, ok := d.index[channelID]
	if !ok {
		return nil, false
	}
	return c.Clone(), true
}

// List 返回有序频道副本
func (d *Directory) List() []*model.Channel {
	out := make([]*model.Channel, len(d.channels))
	for i, c := range d.channels {
		out[i] = c.Clone()
	}
	return out
}

// IDs 返回有序频道ID
func (d *Directory) IDs() []string {
	out := make([]string, len(d.channels))
	for i, c := range d.channels {
		out[i] = c.ID
	}
	return out
}

// Each 按顺序遍历频道，回调可以修改成员在线标记
func (d *Directory) Each(fn func(*model.Channel)) {
	for _, c := range d.channels {
		fn(c)
	}
}

// SumUnread 各频道未读数之和
func (d *Directory) SumUnread() int {
	sum := 0
	for _, c := range d.channels {
		sum += c.Unread
	}
	return sum
}

// Len 频道数
func (d *Directory) Len() int {
	return len(d.channels)
}
