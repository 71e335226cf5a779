package task

import (
	"context"
	"time"
)

// TaskFunc 任务执行函数，target 为任务关联的对象（频道ID等）
type TaskFunc func(ctx context.Context, target string, metadata map[string]any) error

// Task 延迟任务
type Task struct {
	ID        string         `json:"id"`        // 任务唯一ID，重复调度同一ID会替换旧任务
	Version   int64          `json:"version"`   // 被替换的次数 + 1
	Target    string         `json:"target"`    // 操作对象标识
	Delay     int            `json:"delay"`     // 延迟秒数，超过一圈时按轮数计
	Fn        TaskFunc       `json:"-"`         // 执行函数
	Metadata  map[string]any `json:"metadata"`  // 元数据
	CreatedAt time.Time      `json:"createdAt"` // 创建时间

	rounds int // 剩余整圈数
}

// NewTask 创建新任务
func NewTask(id, target string, delay int, fn TaskFunc) *Task {
	return &Task{
		ID:        id,
		Version:   1,
		Target:    target,
		Delay:     delay,
		Fn:        fn,
		Metadata:  make(map[string]any),
		CreatedAt: time.Now(),
	}
}

// WithMetadata 添加元数据
func (t *Task) WithMetadata(key string, value any) *Task {
	t.Metadata[key] = value
	return t
}

// Execute 执行任务
func (t *Task) Execute(ctx context.Context) error {
	if t.Fn == nil {
		return nil
	}
	return t.Fn(ctx, t.Target, t.Metadata)
}

// DelaySeconds 把 time.Duration 换算为向上取整的秒数，最小 1 秒
func DelaySeconds(d time.Duration) int {
	if d <= time.Second {
		return 1
	}
	secs := int(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}
