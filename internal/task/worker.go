package task

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// WorkerPool 工作协程池
type WorkerPool struct {
	workerCount int
	taskChan    chan *Task
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	logger      *slog.Logger

	executed atomic.Int64
	failed   atomic.Int64
}

// NewWorkerPool 创建工作协程池
func NewWorkerPool(workerCount int) *WorkerPool {
	if workerCount <= 0 {
		workerCount = 4
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		workerCount: workerCount,
		taskChan:    make(chan *Task, workerCount*2),
		ctx:         ctx,
		cancel:      cancel,
		logger:      slog.Default().With("component", "task"),
	}
}

// Start 启动工作协程池
func (wp *WorkerPool) Start() {
	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}

	wp.logger.Info("工作协程池已启动", "workerCount", wp.workerCount)
}

// worker 工作协程
func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for {
		select {
		case <-wp.ctx.Done():
			return
		case task := <-wp.taskChan:
			if task != nil {
				wp.executeTask(id, task)
			}
		}
	}
}

// executeTask 执行任务，panic 按失败计
func (wp *WorkerPool) executeTask(workerID int, task *Task) {
	defer func() {
		if r := recover(); r != nil {
			wp.failed.Add(1)
			wp.logger.Error("任务执行 panic",
				"workerID", workerID,
				"taskID", task.ID,
				"target", task.Target,
				"panic", r)
		}
	}()

	if err := task.Execute(wp.ctx); err != nil {
		wp.failed.Add(1)
		wp.logger.Error("任务执行失败",
			"workerID", workerID,
			"taskID", task.ID,
			"target", task.Target,
			"version", task.Version,
			"error", err)
		return
	}
	wp.executed.Add(1)
}

// Submit 提交任务，通道满时阻塞直到有空位或工作池关闭
func (wp *WorkerPool) Submit(task *Task) {
	select {
	case wp.taskChan <- task:
		return
	case <-wp.ctx.Done():
		wp.logger.Warn("工作池已关闭,任务提交失败", "taskID", task.ID)
		return
	default:
	}

	wp.logger.Warn("任务通道已满,任务可能延迟执行", "taskID", task.ID)
	select {
	case wp.taskChan <- task:
	case <-wp.ctx.Done():
	}
}

// SubmitBatch 批量提交任务
func (wp *WorkerPool) SubmitBatch(tasks []*Task) {
	for _, task := range tasks {
		wp.Submit(task)
	}
}

// Stop 停止工作协程池，通道中未执行的任务被丢弃
func (wp *WorkerPool) Stop() {
	wp.cancel()
	wp.wg.Wait()

	wp.logger.Info("工作协程池已停止",
		"executed", wp.executed.Load(),
		"failed", wp.failed.Load(),
		"dropped", len(wp.taskChan))
}
