package health

import (
	"context"
	"fmt"
	"time"

	redisstorage "github.com/taoyao-code/dfplayer-server/internal/storage/redis"
)

// RedisChecker 队列存储（Redis）健康检查器。
// Redis 只承载插播队列与事件推送，断连降级不判死：
// 播放控制面不依赖它，不该因此摘掉就绪状态。
type RedisChecker struct {
	client *redisstorage.Client
}

// NewRedisChecker 创建Redis检查器
func NewRedisChecker(client *redisstorage.Client) *RedisChecker {
	return &RedisChecker{client: client}
}

// Name 返回检查器名称
func (c *RedisChecker) Name() string {
	return "redis"
}

// Check Ping后评估连接池占用与命中率
func (c *RedisChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()

	if err := c.client.HealthCheck(ctx); err != nil {
		return CheckResult{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("ping failed: %v", err),
			Latency: time.Since(start),
		}
	}

	stats := c.client.Stats()
	var utilization float64
	if stats.TotalConns > 0 {
		utilization = float64(stats.TotalConns-stats.IdleConns) / float64(stats.TotalConns)
	}

	status, message := StatusHealthy, "ok"
	if utilization > 0.9 {
		status, message = StatusDegraded, "connection pool near limit"
	}
	if stats.Hits > 0 && stats.Misses > stats.Hits {
		status, message = StatusDegraded, "low connection pool hit rate"
	}

	return CheckResult{
		Status:  status,
		Message: message,
		Details: map[string]interface{}{
			"total_conns": stats.TotalConns,
			"idle_conns":  stats.IdleConns,
			"stale_conns": stats.StaleConns,
			"hits":        stats.Hits,
			"misses":      stats.Misses,
			"timeouts":    stats.Timeouts,
			"utilization": fmt.Sprintf("%.1f%%", utilization*100),
		},
		Latency: time.Since(start),
	}
}
