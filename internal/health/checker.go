// Package health 提供组件健康检查与探针路由。
package health

import (
	"context"
	"time"
)

// Status 组件健康状态
type Status string

const (
	// StatusHealthy 正常服务
	StatusHealthy Status = "healthy"
	// StatusDegraded 旁路功能受损，控制面仍可用
	StatusDegraded Status = "degraded"
	// StatusUnhealthy 无法服务
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult 单项检查结果
type CheckResult struct {
	Status  Status                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
	Latency time.Duration          `json:"latency"`
}

// Checker 单个组件的健康检查
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// Report 一次完整检查的汇总，/health 的响应体
type Report struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}
