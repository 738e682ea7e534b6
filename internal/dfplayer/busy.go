package dfplayer

import "sync/atomic"

// BusyTracker 忙脚播放状态跟踪器。
// 模块忙脚为反逻辑：电平为低表示正在播放（硬件固有行为）。
// OnEdge 由边沿触发回调调用，可能运行在中断上下文：不阻塞、不做 I/O、
// 无额外分配，只更新一个原子布尔量。单写多读，读写之间无需互斥锁。
type BusyTracker struct {
	attached atomic.Bool
	playing  atomic.Bool
}

// NewBusyTracker 创建跟踪器；initialLevel 为挂接时刻的忙脚电平
func NewBusyTracker(initialLevel bool) *BusyTracker {
	t := &BusyTracker{}
	t.attached.Store(true)
	t.playing.Store(!initialLevel)
	return t
}

// OnEdge 忙脚电平变化回调：低电平记为播放中，高电平记为暂停/空闲
func (t *BusyTracker) OnEdge(level bool) {
	t.playing.Store(!level)
}

// Playing 返回最近一次观测到的播放标志
func (t *BusyTracker) Playing() bool {
	return t.playing.Load()
}

// Attached 跟踪器是否已挂接到硬件忙脚
func (t *BusyTracker) Attached() bool {
	return t.attached.Load()
}
