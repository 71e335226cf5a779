package task

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
)

// TestNewTask 测试创建任务
func TestNewTask(t *testing.T) {
	task := NewTask("task-1", "channel-1", 5, nil).WithMetadata("kind", "typing")

	if task.ID != "task-1" {
		t.Errorf("期望 ID = task-1, 实际 = %s", task.ID)
	}
	if task.Target != "channel-1" {
		t.Errorf("期望 Target = channel-1, 实际 = %s", task.Target)
	}
	if task.Version != 1 {
		t.Errorf("期望 Version = 1, 实际 = %d", task.Version)
	}
	if task.Metadata["kind"] != "typing" {
		t.Errorf("期望 Metadata[kind] = typing, 实际 = %v", task.Metadata["kind"])
	}
	if err := task.Execute(context.Background()); err != nil {
		t.Errorf("空任务执行失败: %v", err)
	}
}

// TestDelaySeconds 测试延迟换算
func TestDelaySeconds(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want int
	}{
		{0, 1},
		{500 * time.Millisecond, 1},
		{time.Second, 1},
		{1500 * time.Millisecond, 2},
		{3 * time.Second, 3},
		{2 * time.Minute, 120},
	}
	for _, c := range cases {
		if got := DelaySeconds(c.in); got != c.want {
			t.Errorf("DelaySeconds(%v): 期望 %d, 实际 %d", c.in, c.want, got)
		}
	}
}

// TestSlotTakeDue 测试槽位按轮数取出任务
func TestSlotTakeDue(t *testing.T) {
	slot := NewSlot()

	now := NewTask("task-1", "", 1, nil)
	later := NewTask("task-2", "", 61, nil)
	later.rounds = 1
	slot.AddTask(now)
	slot.AddTask(later)

	due := slot.TakeDue()
	if len(due) != 1 || due[0].ID != "task-1" {
		t.Fatalf("期望取出 task-1, 实际 = %v", due)
	}
	if slot.Count() != 1 {
		t.Errorf("期望剩余1个任务, 实际 = %d", slot.Count())
	}

	due = slot.TakeDue()
	if len(due) != 1 || due[0].ID != "task-2" {
		t.Fatalf("期望取出 task-2, 实际 = %v", due)
	}

	if _, ok := slot.RemoveTask("task-not-exist"); ok {
		t.Error("期望删除失败")
	}
}

// TestTimeWheelTick 测试时间轮推进
func TestTimeWheelTick(t *testing.T) {
	wheel := NewTimeWheel()
	wheel.AddTask(NewTask("task-1", "", 1, nil))
	wheel.AddTask(NewTask("task-3", "", 3, nil))

	if tasks := wheel.Tick(); len(tasks) != 1 || tasks[0].ID != "task-1" {
		t.Fatalf("期望第1秒取出 task-1, 实际 = %v", tasks)
	}
	if tasks := wheel.Tick(); len(tasks) != 0 {
		t.Errorf("期望第2秒无任务, 实际 = %d", len(tasks))
	}
	if tasks := wheel.Tick(); len(tasks) != 1 || tasks[0].ID != "task-3" {
		t.Fatalf("期望第3秒取出 task-3, 实际 = %v", tasks)
	}
	if wheel.GetTotalTaskCount() != 0 {
		t.Errorf("期望时间轮为空, 实际 = %d", wheel.GetTotalTaskCount())
	}
}

// TestTimeWheelLongDelay 测试超过一圈的延迟
func TestTimeWheelLongDelay(t *testing.T) {
	wheel := NewTimeWheel()
	wheel.AddTask(NewTask("task-long", "", SlotCount+2, nil))

	for i := 1; i < SlotCount+2; i++ {
		if tasks := wheel.Tick(); len(tasks) != 0 {
			t.Fatalf("第%d秒不应有任务到期", i)
		}
	}
	if tasks := wheel.Tick(); len(tasks) != 1 {
		t.Fatalf("期望第%d秒到期, 实际 = %d", SlotCount+2, len(tasks))
	}
}

// TestTimeWheelReplaceAndRemove 测试重复调度与删除
func TestTimeWheelReplaceAndRemove(t *testing.T) {
	wheel := NewTimeWheel()
	wheel.AddTask(NewTask("task-1", "", 1, nil))
	replacement := NewTask("task-1", "", 3, nil)
	wheel.AddTask(replacement)

	if wheel.GetTotalTaskCount() != 1 {
		t.Fatalf("期望只有1个任务, 实际 = %d", wheel.GetTotalTaskCount())
	}
	if replacement.Version != 2 {
		t.Errorf("期望 Version = 2, 实际 = %d", replacement.Version)
	}
	if tasks := wheel.Tick(); len(tasks) != 0 {
		t.Errorf("旧任务不应再触发")
	}

	// 推进后删除，槽位由索引定位
	wheel.Tick()
	if !wheel.RemoveTask("task-1") {
		t.Error("期望删除成功")
	}
	if wheel.Has("task-1") || wheel.RemoveTask("task-1") {
		t.Error("期望任务已不存在")
	}
	if tasks := wheel.Tick(); len(tasks) != 0 {
		t.Errorf("已删除任务不应触发")
	}
}

// TestSchedulerStartStop 测试调度器启动和停止
func TestSchedulerStartStop(t *testing.T) {
	scheduler := NewScheduler(2, testclock.NewClock(time.Now()))

	if err := scheduler.Start(); err != nil {
		t.Fatalf("启动调度器失败: %v", err)
	}
	if !scheduler.IsRunning() {
		t.Error("期望调度器运行中")
	}
	if err := scheduler.Start(); err == nil {
		t.Error("期望重复启动失败")
	}

	scheduler.Stop()
	if scheduler.IsRunning() {
		t.Error("期望调度器已停止")
	}
	if err := scheduler.Schedule("x", time.Second, func() {}); err == nil {
		t.Error("期望停止后调度失败")
	}
}

// TestSchedulerSchedule 测试定时器按时钟触发
func TestSchedulerSchedule(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	scheduler := NewScheduler(2, clk)
	scheduler.Start()
	defer scheduler.Stop()

	fired := make(chan string, 4)
	if err := scheduler.Schedule("typing:a:u-2", 1500*time.Millisecond, func() { fired <- "typing" }); err != nil {
		t.Fatalf("调度失败: %v", err)
	}
	if err := scheduler.Schedule("cancelled", time.Second, func() { fired <- "cancelled" }); err != nil {
		t.Fatalf("调度失败: %v", err)
	}
	if !scheduler.Cancel("cancelled") {
		t.Error("期望取消成功")
	}

	for i := 0; i < 2; i++ {
		if err := clk.WaitAdvance(time.Second, time.Second, 1); err != nil {
			t.Fatalf("推进时钟失败: %v", err)
		}
	}

	select {
	case got := <-fired:
		if got != "typing" {
			t.Errorf("期望 typing 触发, 实际 = %s", got)
		}
	case <-time.After(time.Second):
		t.Fatal("定时器未触发")
	}

	select {
	case got := <-fired:
		t.Errorf("不应再有任务触发, 实际 = %s", got)
	case <-time.After(50 * time.Millisecond):
	}

	deadline := time.Now().Add(time.Second)
	for scheduler.Stats().Executed != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if st := scheduler.Stats(); st.Executed != 1 || st.Pending != 0 || !st.Running {
		t.Errorf("期望执行1个任务且无剩余, 实际 = %+v", st)
	}
}

// TestWorkerPoolPanicRecover 测试 panic 恢复
func TestWorkerPoolPanicRecover(t *testing.T) {
	pool := NewWorkerPool(1)
	pool.Start()
	defer pool.Stop()

	var executed atomic.Int32
	done := make(chan struct{})

	pool.Submit(NewTask("task-panic", "", 1, func(context.Context, string, map[string]any) error {
		executed.Add(1)
		panic("测试 panic")
	}))
	pool.Submit(NewTask("task-normal", "", 1, func(context.Context, string, map[string]any) error {
		executed.Add(1)
		close(done)
		return nil
	}))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("正常任务未执行")
	}
	if executed.Load() != 2 {
		t.Errorf("期望执行2个任务, 实际 = %d", executed.Load())
	}
	if pool.failed.Load() != 1 {
		t.Errorf("期望失败1个任务, 实际 = %d", pool.failed.Load())
	}
}

// BenchmarkTimeWheelTick 性能测试: 时间轮推进
func BenchmarkTimeWheelTick(b *testing.B) {
	wheel := NewTimeWheel()
	for i := 0; i < 100; i++ {
		wheel.AddTask(NewTask("task", "", 1+i%SlotCount, nil))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		wheel.Tick()
	}
}
