package health

import (
	"context"
	"sync"
	"time"
)

// Aggregator 汇总多个检查器，给探针一个总体结论
type Aggregator struct {
	mu       sync.RWMutex
	checkers []Checker
}

// NewAggregator 创建聚合器
func NewAggregator(checkers ...Checker) *Aggregator {
	return &Aggregator{checkers: checkers}
}

// AddChecker 追加检查器（子系统按配置逐个启用）
func (a *Aggregator) AddChecker(c Checker) {
	a.mu.Lock()
	a.checkers = append(a.checkers, c)
	a.mu.Unlock()
}

// CheckAll 并发执行全部检查
func (a *Aggregator) CheckAll(ctx context.Context) map[string]CheckResult {
	a.mu.RLock()
	checkers := make([]Checker, len(a.checkers))
	copy(checkers, a.checkers)
	a.mu.RUnlock()

	type named struct {
		name string
		res  CheckResult
	}
	ch := make(chan named, len(checkers))
	for _, c := range checkers {
		go func(c Checker) {
			ch <- named{c.Name(), c.Check(ctx)}
		}(c)
	}

	results := make(map[string]CheckResult, len(checkers))
	for range checkers {
		r := <-ch
		results[r.name] = r.res
	}
	return results
}

// Overall 由单次检查结果推导总体状态：
// 任一 Unhealthy 则整体 Unhealthy，否则任一 Degraded 则整体 Degraded
func Overall(results map[string]CheckResult) Status {
	overall := StatusHealthy
	for _, r := range results {
		switch r.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			overall = StatusDegraded
		}
	}
	return overall
}

// OverallStatus 执行全部检查并返回总体状态
func (a *Aggregator) OverallStatus(ctx context.Context) Status {
	return Overall(a.CheckAll(ctx))
}

// Ready 就绪探针结论；Degraded 仍算就绪
func (a *Aggregator) Ready(ctx context.Context) bool {
	return a.OverallStatus(ctx) != StatusUnhealthy
}

// Alive 存活探针结论。进程还能应答就算活着
func (a *Aggregator) Alive() bool {
	return true
}

// ReportNow 执行一轮检查并生成汇总报告
func (a *Aggregator) ReportNow(ctx context.Context) Report {
	results := a.CheckAll(ctx)
	return Report{
		Status:    Overall(results),
		Timestamp: time.Now(),
		Checks:    results,
	}
}
