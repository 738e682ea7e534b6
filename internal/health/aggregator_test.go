package health

import (
	"context"
	"testing"
	"time"
)

// staticChecker 固定结果的检查器
type staticChecker struct {
	name   string
	status Status
}

func (s *staticChecker) Name() string { return s.name }

func (s *staticChecker) Check(ctx context.Context) CheckResult {
	return CheckResult{Status: s.status, Message: "static", Latency: time.Millisecond}
}

func TestAggregator_OverallStatus(t *testing.T) {
	tests := []struct {
		name      string
		statuses  []Status
		want      Status
		wantReady bool
	}{
		{"全部健康", []Status{StatusHealthy, StatusHealthy}, StatusHealthy, true},
		{"部分降级仍就绪", []Status{StatusHealthy, StatusDegraded}, StatusDegraded, true},
		{"任一不健康则不就绪", []Status{StatusHealthy, StatusDegraded, StatusUnhealthy}, StatusUnhealthy, false},
		{"无检查器视为健康", nil, StatusHealthy, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := NewAggregator()
			for i, s := range tt.statuses {
				agg.AddChecker(&staticChecker{name: string(rune('a' + i)), status: s})
			}
			if got := agg.OverallStatus(context.Background()); got != tt.want {
				t.Errorf("OverallStatus = %v, want %v", got, tt.want)
			}
			if got := agg.Ready(context.Background()); got != tt.wantReady {
				t.Errorf("Ready = %v, want %v", got, tt.wantReady)
			}
		})
	}
}

func TestAggregator_CheckAllCollectsEveryChecker(t *testing.T) {
	agg := NewAggregator(
		&staticChecker{"serial", StatusHealthy},
		&staticChecker{"database", StatusHealthy},
	)
	agg.AddChecker(&staticChecker{"redis", StatusDegraded})

	results := agg.CheckAll(context.Background())
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for _, name := range []string{"serial", "database", "redis"} {
		if _, ok := results[name]; !ok {
			t.Errorf("missing result for %q", name)
		}
	}
}

func TestAggregator_ReportNow(t *testing.T) {
	agg := NewAggregator(&staticChecker{"serial", StatusUnhealthy})

	report := agg.ReportNow(context.Background())
	if report.Status != StatusUnhealthy {
		t.Errorf("report status = %v, want %v", report.Status, StatusUnhealthy)
	}
	if report.Timestamp.IsZero() {
		t.Error("report timestamp must be set")
	}
	if _, ok := report.Checks["serial"]; !ok {
		t.Error("report must carry per-checker results")
	}
}

func TestAggregator_Alive(t *testing.T) {
	if !NewAggregator().Alive() {
		t.Error("liveness must always pass while the process responds")
	}
}
