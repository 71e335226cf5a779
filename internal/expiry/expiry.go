// Package expiry 回收站保留期计算
package expiry

import (
	"math"
	"time"
)

const (
	// DefaultWindow 默认保留窗口 30 天
	DefaultWindow = 30 * 24 * time.Hour
	// DefaultSoonDays 剩余天数小于该值视为即将过期
	DefaultSoonDays = 7

	day = 24 * time.Hour
)

// ExpiresAt 计算过期时间
func ExpiresAt(trashedAt time.Time, window time.Duration) time.Time {
	if window <= 0 {
		window = DefaultWindow
	}
	return trashedAt.Add(window)
}

// DaysRemaining 计算剩余天数（向上取整，最小为 0）
func DaysRemaining(expiresAt, now time.Time) int {
	left := expiresAt.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(float64(left) / float64(day)))
}

// IsExpiringSoon 判断是否即将过期
func IsExpiringSoon(daysRemaining, threshold int) bool {
	return daysRemaining > 0 && daysRemaining < threshold
}

// Policy 保留策略
type Policy struct {
	Window   time.Duration
	SoonDays int
}

// DefaultPolicy 默认保留策略
func DefaultPolicy() Policy {
	return Policy{Window: DefaultWindow, SoonDays: DefaultSoonDays}
}

// Evaluate 计算某个删除时间在 now 时刻的过期信息
func (p Policy) Evaluate(trashedAt, now time.Time) (expiresAt time.Time, days int, soon bool) {
	soonDays := p.SoonDays
	if soonDays <= 0 {
		soonDays = DefaultSoonDays
	}
	expiresAt = ExpiresAt(trashedAt, p.Window)
	days = DaysRemaining(expiresAt, now)
	return expiresAt, days, IsExpiringSoon(days, soonDays)
}
