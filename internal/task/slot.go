package task

import "sync"

// Slot 时间轮槽位
type Slot struct {
	mu    sync.Mutex
	tasks map[string]*Task // key: taskID
}

// NewSlot 创建新槽位
func NewSlot() *Slot {
	return &Slot{
		tasks: make(map[string]*Task),
	}
}

// AddTask 添加任务到槽位
func (s *Slot) AddTask(task *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks[task.ID] = task
}

// RemoveTask 从槽位删除任务，返回被删除的任务
func (s *Slot) RemoveTask(taskID string) (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if ok {
		delete(s.tasks, taskID)
	}
	return task, ok
}

// TakeDue 取出本圈到期的任务，未到期的任务轮数减一后留在槽位中
func (s *Slot) TakeDue() []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.tasks) == 0 {
		return nil
	}

	var due []*Task
	for id, task := range s.tasks {
		if task.rounds > 0 {
			task.rounds--
			continue
		}
		due = append(due, task)
		delete(s.tasks, id)
	}
	return due
}

// Count 获取槽位任务数量
func (s *Slot) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.tasks)
}
