package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/adhocore/gronx"
	"github.com/juju/clock"

	apperrors "sudooom.im.sync/pkg/errors"
	"sudooom.im.sync/pkg/proto"
)

// LoopConfig 事件循环参数
type LoopConfig struct {
	Buffer              int           // 任务队列容量
	MaintenanceInterval time.Duration // 输入状态、暂存事件扫描间隔
	ExpiryCron          string        // 回收站过期刷新的 cron 表达式
}

// Loop 引擎的串行事件循环
// 推送事件、HTTP 意图、异步结果和定时器回调都经这里排队，逐个在同一协程中应用
type Loop struct {
	engine *Engine
	cfg    LoopConfig
	clock  clock.Clock

	jobs chan func(*Engine)
	done chan struct{}

	running  atomic.Bool
	lastBeat atomic.Int64

	logger *slog.Logger
}

// NewLoop 创建事件循环，并把引擎的异步调用与回调切换到循环上
func NewLoop(e *Engine, cfg LoopConfig) (*Loop, error) {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1024
	}
	if cfg.MaintenanceInterval <= 0 {
		cfg.MaintenanceInterval = time.Second
	}
	if cfg.ExpiryCron == "" {
		cfg.ExpiryCron = "*/5 * * * *"
	}
	if !gronx.IsValid(cfg.ExpiryCron) {
		return nil, fmt.Errorf("invalid expiry cron expression: %s", cfg.ExpiryCron)
	}

	l := &Loop{
		engine: e,
		cfg:    cfg,
		clock:  e.clock,
		jobs:   make(chan func(*Engine), cfg.Buffer),
		done:   make(chan struct{}),
		logger: slog.Default().With("component", "loop"),
	}
	e.post = l.Post
	e.async = func(f func()) { go f() }
	return l, nil
}

// Run 运行事件循环直到 ctx 取消
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return fmt.Errorf("sync loop already running")
	}
	defer func() {
		l.running.Store(false)
		close(l.done)
	}()

	maintenance := l.clock.NewTimer(l.cfg.MaintenanceInterval)
	defer maintenance.Stop()
	expiryTimer := l.clock.NewTimer(l.untilNextExpiry())
	defer expiryTimer.Stop()

	l.beat()
	l.logger.Info("sync loop started",
		"buffer", l.cfg.Buffer,
		"maintenanceInterval", l.cfg.MaintenanceInterval,
		"expiryCron", l.cfg.ExpiryCron)

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("sync loop stopped", "pending", len(l.jobs))
			return nil

		case job := <-l.jobs:
			l.run(job)

		case <-maintenance.Chan():
			l.run(func(e *Engine) { e.Maintain() })
			maintenance.Reset(l.cfg.MaintenanceInterval)

		case <-expiryTimer.Chan():
			l.run(func(e *Engine) {
				if evicted := e.RecomputeExpiry(); len(evicted) > 0 {
					l.logger.Info("trash expiry recomputed", "evicted", len(evicted))
				}
			})
			expiryTimer.Reset(l.untilNextExpiry())
		}
	}
}

// untilNextExpiry 距离下一次 cron 触发的时间
func (l *Loop) untilNextExpiry() time.Duration {
	now := l.clock.Now()
	next, err := gronx.NextTickAfter(l.cfg.ExpiryCron, now, false)
	if err != nil {
		l.logger.Error("failed to compute next expiry tick", "cron", l.cfg.ExpiryCron, "error", err)
		return time.Minute
	}
	if wait := next.Sub(now); wait > 0 {
		return wait
	}
	return time.Second
}

// run 执行一个任务，panic 不会终止循环
func (l *Loop) run(job func(*Engine)) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("sync job panic", "panic", r)
		}
		l.engine.observe()
		l.engine.metrics.IntakeDepth(l.QueueDepth())
		l.beat()
	}()
	job(l.engine)
}

func (l *Loop) beat() {
	l.lastBeat.Store(l.clock.Now().UnixNano())
}

// Post 投递任务；队列已满时阻塞等待，循环停止后丢弃
func (l *Loop) Post(job func(*Engine)) {
	select {
	case l.jobs <- job:
		return
	case <-l.done:
		l.logger.Warn("sync loop stopped, job dropped")
		return
	default:
	}

	l.logger.Warn("intake queue full, job may be delayed", "buffer", l.cfg.Buffer)
	select {
	case l.jobs <- job:
	case <-l.done:
	}
}

// Dispatch 投递一条推送事件
func (l *Loop) Dispatch(ev *proto.PushEvent) {
	l.Post(func(e *Engine) { e.ApplyPush(ev) })
}

// Do 在循环中同步执行 fn，用于读取快照和执行界面意图
func (l *Loop) Do(ctx context.Context, fn func(*Engine)) error {
	finished := make(chan struct{})
	job := func(e *Engine) {
		defer close(finished)
		fn(e)
	}

	select {
	case l.jobs <- job:
	case <-l.done:
		return apperrors.ErrEngineDown
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-l.done:
		return apperrors.ErrEngineDown
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning 循环是否在运行
func (l *Loop) IsRunning() bool {
	return l.running.Load()
}

// Alive 循环正在运行且最近 staleAfter 内处理过任务或定时器
func (l *Loop) Alive(staleAfter time.Duration) bool {
	if !l.IsRunning() {
		return false
	}
	last := time.Unix(0, l.lastBeat.Load())
	return l.clock.Now().Sub(last) < staleAfter
}

// QueueDepth 队列中等待的任务数
func (l *Loop) QueueDepth() int {
	return len(l.jobs)
}
