// Package unread 全局未读数与通知队列
package unread

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"sudooom.im.sync/internal/model"
	apperrors "sudooom.im.sync/pkg/errors"
)

// DefaultMaxNotifications 通知队列默认上限
const DefaultMaxNotifications = 200

// Accountant 全局未读计数和通知队列
// 计数下限为 0；非并发安全，由同步引擎的单一协程持有
type Accountant struct {
	total         int
	notifications []model.Notification // 最新在前
	max           int
}

// NewAccountant 创建未读计数器
func NewAccountant(maxNotifications int) *Accountant {
	if maxNotifications <= 0 {
		maxNotifications = DefaultMaxNotifications
	}
	return &Accountant{max: maxNotifications}
}

// Increment 增加全局未读数
func (a *Accountant) Increment(n int) int {
	if n <= 0 {
		return a.total
	}
	a.total += n
	return a.total
}

// Decrement 减少全局未读数，不低于 0
func (a *Accountant) Decrement(n int) int {
	if n <= 0 {
		return a.total
	}
	a.total -= n
	if a.total < 0 {
		a.total = 0
	}
	return a.total
}

// Apply 按带符号的增量调整
func (a *Accountant) Apply(delta int) int {
	if delta >= 0 {
		return a.Increment(delta)
	}
	return a.Decrement(-delta)
}

// Reset 以各频道之和重置全局未读数
func (a *Accountant) Reset(sum int) {
	if sum < 0 {
		sum = 0
	}
	a.total = sum
}

// Total 全局未读数
func (a *Accountant) Total() int {
	return a.total
}

// Notify 生成并加入一条通知
func (a *Accountant) Notify(kind model.NotificationKind, channelID, messageID, preview string, at time.Time) model.Notification {
	n := model.Notification{
		ID:        uuid.NewString(),
		Kind:      kind,
		ChannelID: channelID,
		MessageID: messageID,
		Preview:   preview,
		CreatedAt: at,
	}
	a.AddNotification(n)
	return n
}

// AddNotification 加入通知，相同ID或相同消息的通知只保留一条
// 超过上限时丢弃最旧的通知
func (a *Accountant) AddNotification(n model.Notification) bool {
	for _, existing := range a.notifications {
		if existing.ID == n.ID || (n.MessageID != "" && existing.MessageID == n.MessageID) {
			return false
		}
	}
	a.notifications = slices.Insert(a.notifications, 0, n)
	if len(a.notifications) > a.max {
		a.notifications = a.notifications[:a.max]
	}
	return true
}

// RemoveNotification 按ID移除通知
func (a *Accountant) RemoveNotification(id string) error {
	i := slices.IndexFunc(a.notifications, func(n model.Notification) bool { return n.ID == id })
	if i < 0 {
		return apperrors.ErrUnknownEntity.Withf("notification %s", id)
	}
	a.notifications = slices.Delete(a.notifications, i, i+1)
	return nil
}

// RemoveForMessage 移除指向某条消息的通知
func (a *Accountant) RemoveForMessage(messageID string) int {
	before := len(a.notifications)
	a.notifications = slices.DeleteFunc(a.notifications, func(n model.Notification) bool {
		return n.MessageID == messageID
	})
	return before - len(a.notifications)
}

// MarkRead 标记通知已读
func (a *Accountant) MarkRead(id string) error {
	for i := range a.notifications {
		if a.notifications[i].ID == id {
			a.notifications[i].Read = true
			return nil
		}
	}
	return apperrors.ErrUnknownEntity.Withf("notification %s", id)
}

// ClearChannel 移除频道的所有通知，返回移除数量
func (a *Accountant) ClearChannel(channelID string) int {
	before := len(a.notifications)
	a.notifications = slices.DeleteFunc(a.notifications, func(n model.Notification) bool {
		return n.ChannelID == channelID
	})
	return before - len(a.notifications)
}

// ClearAll 清空通知
func (a *Accountant) ClearAll() int {
	n := len(a.notifications)
	a.notifications = nil
	return n
}

// Notifications 通知副本（最新在前）
func (a *Accountant) Notifications() []model.Notification {
	return append([]model.Notification(nil), a.notifications...)
}

// Len 通知数量
func (a *Accountant) Len() int {
	return len(a.notifications)
}
