package health

import (
	"context"
	"fmt"
	"time"

	"github.com/taoyao-code/dfplayer-server/internal/dfplayer"
)

// SerialChecker 串口设备健康检查器：
// 向模块发起一次状态查询，验证串口链路与设备应答。
type SerialChecker struct {
	player *dfplayer.Player
	busy   *dfplayer.BusyTracker
}

// NewSerialChecker 创建串口健康检查器；busy 可为 nil
func NewSerialChecker(player *dfplayer.Player, busy *dfplayer.BusyTracker) *SerialChecker {
	return &SerialChecker{player: player, busy: busy}
}

// Name 返回检查器名称
func (c *SerialChecker) Name() string {
	return "serial"
}

// Check 执行健康检查
func (c *SerialChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()

	status, err := c.player.Status()
	if err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("status query failed: %v", err),
			Latency: time.Since(start),
		}
	}

	details := map[string]interface{}{
		"device_status": status.String(),
	}
	if c.busy != nil && c.busy.Attached() {
		details["busy_line"] = true
		details["playing"] = c.busy.Playing()
	} else {
		details["busy_line"] = false
	}

	return CheckResult{
		Status:  StatusHealthy,
		Message: "ok",
		Details: details,
		Latency: time.Since(start),
	}
}
