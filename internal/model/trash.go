package model

import "time"

// TrashedMessage 回收站中的消息
type TrashedMessage struct {
	Message        *Message  `json:"message"`
	TrashedAt      time.Time `json:"trashedAt"`        // 删除时间
	TrashedBy      string    `json:"trashedBy"`        // 删除者
	Reason         string    `json:"reason,omitempty"` // 删除原因
	ExpiresAt      time.Time `json:"expiresAt"`        // 过期时间（删除时间 + 保留窗口）
	DaysRemaining  int       `json:"daysRemaining"`    // 剩余天数
	IsExpiringSoon bool      `json:"isExpiringSoon"`   // 是否即将过期
}

// Clone 深拷贝回收站条目
func (t *TrashedMessage) Clone() *TrashedMessage {
	if t == nil {
		return nil
	}
	cp := *t
	cp.Message = t.Message.Clone()
	return &cp
}
