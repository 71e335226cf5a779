// Package typing 正在输入状态登记
package typing

import (
	"time"

	"sudooom.im.sync/internal/model"
)

// Registry 按频道保存正在输入的用户
// 不持有定时器，超时移除由调用方安排
type Registry struct {
	localUserID string
	channels    map[string][]model.TypingIndicator
}

// NewRegistry 创建输入状态登记表
func NewRegistry(localUserID string) *Registry {
	return &Registry{
		localUserID: localUserID,
		channels:    make(map[string][]model.TypingIndicator),
	}
}

// Set 设置用户正在输入，本地用户被忽略；已存在则刷新时间
func (r *Registry) Set(channelID, userID, displayName string, at time.Time) bool {
	if userID == "" || userID == r.localUserID {
		return false
	}

	entries := r.channels[channelID]
	for i := range entries {
		if entries[i].UserID == userID {
			entries[i].At = at
			if displayName != "" {
				entries[i].DisplayName = displayName
			}
			return true
		}
	}

	r.channels[channelID] = append(entries, model.TypingIndicator{
		ChannelID:   channelID,
		UserID:      userID,
		DisplayName: displayName,
		At:          at,
	})
	return true
}

// Remove 移除用户的输入状态
func (r *Registry) Remove(channelID, userID string) bool {
	entries := r.channels[channelID]
	for i := range entries {
		if entries[i].UserID == userID {
			r.channels[channelID] = append(entries[:i:i], entries[i+1:]...)
			if len(r.channels[channelID]) == 0 {
				delete(r.channels, channelID)
			}
			return true
		}
	}
	return false
}

// RemoveIfAt 仅当条目时间未被刷新时移除，供超时回调使用
func (r *Registry) RemoveIfAt(channelID, userID string, at time.Time) bool {
	if ind, ok := r.Get(channelID, userID); !ok || !ind.At.Equal(at) {
		return false
	}
	return r.Remove(channelID, userID)
}

// ClearChannel 清空频道的输入状态，返回移除数量
func (r *Registry) ClearChannel(channelID string) int {
	n := len(r.channels[channelID])
	delete(r.channels, channelID)
	return n
}

// Get 获取用户的输入状态
func (r *Registry) Get(channelID, userID string) (model.TypingIndicator, bool) {
	for _, ind := range r.channels[channelID] {
		if ind.UserID == userID {
			return ind, true
		}
	}
	return model.TypingIndicator{}, false
}

// List 返回频道的输入状态副本
func (r *Registry) List(channelID string) []model.TypingIndicator {
	entries := r.channels[channelID]
	if len(entries) == 0 {
		return nil
	}
	return append([]model.TypingIndicator(nil), entries...)
}

// Expire 移除最后更新早于 now-timeout 的条目
func (r *Registry) Expire(now time.Time, timeout time.Duration) []model.TypingIndicator {
	var removed []model.TypingIndicator
	for channelID, entries := range r.channels {
		kept := entries[:0]
		for _, ind := range entries {
			if now.Sub(ind.At) >= timeout {
				removed = append(removed, ind)
				continue
			}
			kept = append(kept, ind)
		}
		if len(kept) == 0 {
			delete(r.channels, channelID)
		} else {
			r.channels[channelID] = kept
		}
	}
	return removed
}

// Count 所有频道的输入状态总数
func (r *Registry) Count() int {
	n := 0
	for _, entries := range r.channels {
		n += len(entries)
	}
	return n
}
