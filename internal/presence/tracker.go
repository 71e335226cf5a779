// Package presence 在线状态跟踪
package presence

import (
	"github.com/juju/collections/set"

	"sudooom.im.sync/internal/model"
)

// Tracker 在线用户集合
// 非并发安全，由同步引擎的单一协程持有
type Tracker struct {
	online set.Strings
}

// NewTracker 创建在线状态跟踪器
func NewTracker() *Tracker {
	return &Tracker{online: set.NewStrings()}
}

// SetOnline 用快照整体替换在线集合，返回集合是否变化
func (t *Tracker) SetOnline(userIDs []string) bool {
	next := set.NewStrings(userIDs...)
	if next.Size() == t.online.Size() && next.Difference(t.online).IsEmpty() {
		return false
	}
	t.online = next
	return true
}

// MarkOnline 标记用户上线，返回是否变化
func (t *Tracker) MarkOnline(userID string) bool {
	if userID == "" || t.online.Contains(userID) {
		return false
	}
	t.online.Add(userID)
	return true
}

// MarkOffline 标记用户离线，返回是否变化
func (t *Tracker) MarkOffline(userID string) bool {
	if !t.online.Contains(userID) {
		return false
	}
	t.online.Remove(userID)
	return true
}

// IsOnline 判断用户是否在线
func (t *Tracker) IsOnline(userID string) bool {
	return t.online.Contains(userID)
}

// Online 返回排序后的在线用户列表
func (t *Tracker) Online() []string {
	return t.online.SortedValues()
}

// Count 在线用户数
func (t *Tracker) Count() int {
	return t.online.Size()
}

// ProjectChannel 将在线集合投影到频道成员列表
func (t *Tracker) ProjectChannel(ch *model.Channel) {
	for i := range ch.Members {
		ch.Members[i].Online = t.online.Contains(ch.Members[i].UserID)
	}
}

// ProjectUser 只更新单个用户在频道中的在线标记
func (t *Tracker) ProjectUser(ch *model.Channel, userID string) {
	online := t.online.Contains(userID)
	for i := range ch.Members {
		if ch.Members[i].UserID == userID {
			ch.Members[i].Online = online
		}
	}
}
