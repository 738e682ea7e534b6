package serialport

import (
	"context"
	"time"
)

// defaultBusyPollInterval 忙脚电平轮询周期。
// 一首曲目至少秒级，50ms 足以捕捉播放/停止的边沿。
const defaultBusyPollInterval = 50 * time.Millisecond

// LevelReader 数字输入电平读取
type LevelReader interface {
	ReadPinLevel(pin string) (bool, error)
}

// WatchPin 在后台轮询指定输入脚，电平变化时调用 onEdge。
// last 为调用方已读到的当前电平，读失败的轮次跳过，随 ctx 取消退出。
func WatchPin(ctx context.Context, r LevelReader, pin string, interval time.Duration, last bool, onEdge func(level bool)) {
	if interval <= 0 {
		interval = defaultBusyPollInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				level, err := r.ReadPinLevel(pin)
				if err != nil {
					continue
				}
				if level != last {
					last = level
					onEdge(level)
				}
			}
		}
	}()
}
