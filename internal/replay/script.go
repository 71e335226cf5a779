// Package replay 按 YAML 脚本回放推送事件和界面意图，用于复现排序、未读和回收站问题
//
// 脚本中的事件与频道使用 NATS 线上 JSON 的字段名（PascalCase），时间推进使用虚拟时钟，
// 所有定时器在推进时按到期顺序同步触发，同一脚本总是得到同一结果。
package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"sudooom.im.sync/pkg/proto"
)

// Script 回放脚本
type Script struct {
	User     User                        `yaml:"user"`
	Start    time.Time                   `yaml:"start"`
	Options  Options                     `yaml:"options"`
	Channels []map[string]any            `yaml:"channels"` // 初始频道列表（proto.Channel）
	History  map[string][]map[string]any `yaml:"history"`  // channelID -> 历史消息（proto.Message）
	Online   []string                    `yaml:"online"`   // 初始在线用户
	Steps    []Step                      `yaml:"steps"`
}

// User 本地用户
type User struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// Options 引擎参数，零值使用默认值
type Options struct {
	TypingTimeout    time.Duration `yaml:"typing_timeout"`
	TrashWindow      time.Duration `yaml:"trash_window"`
	ExpiringSoonDays int           `yaml:"expiring_soon_days"`
	PendingTTL       time.Duration `yaml:"pending_ttl"`
	PageSize         int           `yaml:"page_size"`
	MaxNotifications int           `yaml:"max_notifications"`
}

// Step 一个回放步骤，字段按 advance、event、intent、expect 的顺序执行
type Step struct {
	Advance time.Duration  `yaml:"advance"`
	Event   map[string]any `yaml:"event"` // proto.PushEvent
	Intent  *Intent        `yaml:"intent"`
	Expect  *Expect        `yaml:"expect"`
}

// Intent 界面意图
type Intent struct {
	Action       string `yaml:"action"`
	Channel      string `yaml:"channel"`
	Message      string `yaml:"message"`
	Content      string `yaml:"content"`
	Direction    string `yaml:"direction"`
	Reason       string `yaml:"reason"`
	Delta        int    `yaml:"delta"`
	Notification string `yaml:"notification"`
}

// Expect 步骤执行后的断言，未设置的字段不检查
type Expect struct {
	TotalUnread  *int                `yaml:"total_unread"`
	ChannelOrder []string            `yaml:"channel_order"`
	Unread       map[string]int      `yaml:"unread"`
	Messages     map[string][]string `yaml:"messages"`
	Trash        []string            `yaml:"trash"`
	Typing       map[string][]string `yaml:"typing"`
	Online       []string            `yaml:"online"`
}

// Load 读取脚本文件
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	return Parse(data)
}

// Parse 解析脚本
func Parse(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}
	if s.User.ID == "" {
		return nil, fmt.Errorf("script user.id is required")
	}
	if s.Start.IsZero() {
		s.Start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	for i, step := range s.Steps {
		if step.Advance < 0 {
			return nil, fmt.Errorf("step %d: negative advance %s", i, step.Advance)
		}
	}
	return &s, nil
}

// viaJSON 将 YAML 解出的通用结构按线上 JSON 格式转换为目标类型
func viaJSON(in any, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// decodeEvent 转换推送事件
func decodeEvent(raw map[string]any) (*proto.PushEvent, error) {
	var ev proto.PushEvent
	if err := viaJSON(raw, &ev); err != nil {
		return nil, fmt.Errorf("invalid event: %w", err)
	}
	if ev.Payload.Kind() == "unknown" {
		return nil, fmt.Errorf("event without payload")
	}
	return &ev, nil
}
