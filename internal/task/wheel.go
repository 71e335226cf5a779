package task

import "sync"

const (
	// SlotCount 时间轮槽位数量，每槽 1 秒
	SlotCount = 60
)

// TimeWheel 单层时间轮，超过一圈的延迟按轮数记录
type TimeWheel struct {
	slots [SlotCount]*Slot

	mu          sync.Mutex
	currentSlot int
	index       map[string]int // taskID -> 所在槽位
}

// NewTimeWheel 创建时间轮
func NewTimeWheel() *TimeWheel {
	tw := &TimeWheel{
		index: make(map[string]int),
	}
	for i := 0; i < SlotCount; i++ {
		tw.slots[i] = NewSlot()
	}
	return tw
}

// AddTask 添加任务，同ID的旧任务被替换并继承版本号
func (tw *TimeWheel) AddTask(task *Task) error {
	if task.Delay < 1 {
		task.Delay = 1
	}

	tw.mu.Lock()
	defer tw.mu.Unlock()

	if slot, ok := tw.index[task.ID]; ok {
		if old, removed := tw.slots[slot].RemoveTask(task.ID); removed && old != task {
			task.Version = old.Version + 1
		}
	}

	task.rounds = (task.Delay - 1) / SlotCount
	target := (tw.currentSlot + task.Delay) % SlotCount
	tw.slots[target].AddTask(task)
	tw.index[task.ID] = target
	return nil
}

// RemoveTask 删除任务
func (tw *TimeWheel) RemoveTask(taskID string) bool {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	slot, ok := tw.index[taskID]
	if !ok {
		return false
	}
	delete(tw.index, taskID)
	_, removed := tw.slots[slot].RemoveTask(taskID)
	return removed
}

// Tick 推进一格，返回到期的任务
func (tw *TimeWheel) Tick() []*Task {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	tw.currentSlot = (tw.currentSlot + 1) % SlotCount
	due := tw.slots[tw.currentSlot].TakeDue()
	for _, task := range due {
		delete(tw.index, task.ID)
	}
	return due
}

// GetCurrentSlot 获取当前槽位索引
func (tw *TimeWheel) GetCurrentSlot() int {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	return tw.currentSlot
}

// Has 任务是否在等待中
func (tw *TimeWheel) Has(taskID string) bool {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	_, ok := tw.index[taskID]
	return ok
}

// GetSlotTaskCount 获取指定槽位的任务数量
func (tw *TimeWheel) GetSlotTaskCount(slot int) int {
	if slot < 0 || slot >= SlotCount {
		return 0
	}
	return tw.slots[slot].Count()
}

// GetTotalTaskCount 获取所有槽位的任务总数
func (tw *TimeWheel) GetTotalTaskCount() int {
	total := 0
	for i := 0; i < SlotCount; i++ {
		total += tw.slots[i].Count()
	}
	return total
}
