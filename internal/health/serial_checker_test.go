package health

import (
	"context"
	"testing"

	"github.com/taoyao-code/dfplayer-server/internal/dfplayer"
)

// queryTransport 固定应答一帧状态查询结果
type queryTransport struct {
	frame []byte
}

func (q *queryTransport) Write(p []byte) error { return nil }

func (q *queryTransport) Available() (int, error) {
	return len(q.frame), nil
}

func (q *queryTransport) Read(p []byte) (int, error) {
	n := copy(p, q.frame)
	return n, nil
}

func statusFrame(data uint16) []byte {
	const code = 0x42
	cs := dfplayer.Checksum(code, 0x00, data)
	return []byte{0x7E, 0xFF, 0x06, code, 0x00, byte(data >> 8), byte(data), byte(cs >> 8), byte(cs), 0xEF}
}

func TestSerialChecker_Healthy(t *testing.T) {
	player := dfplayer.New(&queryTransport{frame: statusFrame(0x0001)}, dfplayer.WithRetries(1))
	checker := NewSerialChecker(player, nil)

	if checker.Name() != "serial" {
		t.Fatalf("name=%s", checker.Name())
	}

	result := checker.Check(context.Background())
	if result.Status != StatusHealthy {
		t.Fatalf("期望StatusHealthy，实际: %v (%s)", result.Status, result.Message)
	}
	if result.Details["device_status"] != "playing" {
		t.Fatalf("device_status=%v", result.Details["device_status"])
	}
}

func TestSerialChecker_DeviceUnresponsive(t *testing.T) {
	player := dfplayer.New(&queryTransport{}, dfplayer.WithRetries(1))
	checker := NewSerialChecker(player, nil)

	result := checker.Check(context.Background())
	if result.Status != StatusUnhealthy {
		t.Fatalf("期望StatusUnhealthy，实际: %v", result.Status)
	}
}

func TestSerialChecker_BusyLineDetails(t *testing.T) {
	busy := dfplayer.NewBusyTracker(false) // 低电平 = 播放中
	player := dfplayer.New(&queryTransport{frame: statusFrame(0x0001)},
		dfplayer.WithRetries(1), dfplayer.WithBusyTracker(busy))
	checker := NewSerialChecker(player, busy)

	result := checker.Check(context.Background())
	if result.Details["busy_line"] != true {
		t.Fatalf("busy_line=%v", result.Details["busy_line"])
	}
	if result.Details["playing"] != true {
		t.Fatalf("playing=%v", result.Details["playing"])
	}
}
