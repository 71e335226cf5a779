// Package task 基于时间轮的延迟任务调度，实现引擎的一次性定时器
package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/juju/clock"
)

// Scheduler 任务调度器
type Scheduler struct {
	wheel      *TimeWheel
	workerPool *WorkerPool
	clock      clock.Clock
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	logger     *slog.Logger
	running    bool
	runningMu  sync.RWMutex
}

// NewScheduler 创建任务调度器，clk 为空时使用系统时钟
func NewScheduler(workerCount int, clk clock.Clock) *Scheduler {
	if clk == nil {
		clk = clock.WallClock
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		wheel:      NewTimeWheel(),
		workerPool: NewWorkerPool(workerCount),
		clock:      clk,
		ctx:        ctx,
		cancel:     cancel,
		logger:     slog.Default().With("component", "task"),
	}
}

// Start 启动调度器
func (s *Scheduler) Start() error {
	s.runningMu.Lock()
	if s.running {
		s.runningMu.Unlock()
		return fmt.Errorf("调度器已经在运行中")
	}
	s.running = true
	s.runningMu.Unlock()

	s.workerPool.Start()

	s.wg.Add(1)
	go s.tickLoop()

	s.logger.Info("任务调度器已启动")
	return nil
}

// tickLoop 每秒推进一次时间轮
func (s *Scheduler) tickLoop() {
	defer s.wg.Done()

	timer := s.clock.NewTimer(time.Second)
	defer timer.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-timer.Chan():
			s.onTick()
			timer.Reset(time.Second)
		}
	}
}

// onTick 时钟触发处理
func (s *Scheduler) onTick() {
	tasks := s.wheel.Tick()
	if len(tasks) == 0 {
		return
	}

	s.logger.Debug("时钟触发",
		"currentSlot", s.wheel.GetCurrentSlot(),
		"taskCount", len(tasks))

	s.workerPool.SubmitBatch(tasks)
}

// Stop 停止调度器
func (s *Scheduler) Stop() {
	s.runningMu.Lock()
	if !s.running {
		s.runningMu.Unlock()
		return
	}
	s.running = false
	s.runningMu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.workerPool.Stop()

	s.logger.Info("任务调度器已停止", "remaining", s.wheel.GetTotalTaskCount())
}

// AddTask 添加任务
func (s *Scheduler) AddTask(task *Task) error {
	s.runningMu.RLock()
	defer s.runningMu.RUnlock()

	if !s.running {
		return fmt.Errorf("调度器未运行")
	}
	if task == nil {
		return fmt.Errorf("任务不能为空")
	}
	if task.ID == "" {
		return fmt.Errorf("任务ID不能为空")
	}

	s.logger.Debug("添加任务",
		"taskID", task.ID,
		"target", task.Target,
		"delay", task.Delay)

	return s.wheel.AddTask(task)
}

// RemoveTask 删除任务
func (s *Scheduler) RemoveTask(taskID string) error {
	if taskID == "" {
		return fmt.Errorf("任务ID不能为空")
	}
	if !s.wheel.RemoveTask(taskID) {
		return fmt.Errorf("任务不存在: %s", taskID)
	}
	s.logger.Debug("删除任务", "taskID", taskID)
	return nil
}

// Schedule 一次性定时器：delay 向上取整到秒后执行 fn，同ID重复调度会替换旧任务
func (s *Scheduler) Schedule(id string, delay time.Duration, fn func()) error {
	task := NewTask(id, "", DelaySeconds(delay), func(context.Context, string, map[string]any) error {
		fn()
		return nil
	})
	task.CreatedAt = s.clock.Now()
	return s.AddTask(task)
}

// Cancel 取消定时器
func (s *Scheduler) Cancel(id string) bool {
	return s.wheel.RemoveTask(id)
}

// IsRunning 检查调度器是否运行中
func (s *Scheduler) IsRunning() bool {
	s.runningMu.RLock()
	defer s.runningMu.RUnlock()

	return s.running
}

// Stats 调度器统计
type Stats struct {
	Running  bool  `json:"running"`
	Slot     int   `json:"slot"`
	Pending  int   `json:"pending"`
	Workers  int   `json:"workers"`
	Executed int64 `json:"executed"`
	Failed   int64 `json:"failed"`
}

// Stats 获取调度器统计信息
func (s *Scheduler) Stats() Stats {
	return Stats{
		Running:  s.IsRunning(),
		Slot:     s.wheel.GetCurrentSlot(),
		Pending:  s.wheel.GetTotalTaskCount(),
		Workers:  s.workerPool.workerCount,
		Executed: s.workerPool.executed.Load(),
		Failed:   s.workerPool.failed.Load(),
	}
}
