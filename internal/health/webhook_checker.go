package health

import (
	"context"
	"fmt"
	"time"
)

// 积压超过该条数认为下游消费不过来
const defaultMaxBacklog = 1000

// QueueStats 事件队列深度统计
type QueueStats interface {
	QueueLength(ctx context.Context) (int64, error)
	DLQLength(ctx context.Context) (int64, error)
}

// WebhookQueueChecker 事件推送队列健康检查器。
// 队列不可达或积压过深只降级不判死：回调推送是旁路功能，
// 不应拖垮播放控制面的就绪状态。
type WebhookQueueChecker struct {
	queue      QueueStats
	maxBacklog int64
}

// NewWebhookQueueChecker 创建事件队列检查器
func NewWebhookQueueChecker(queue QueueStats) *WebhookQueueChecker {
	return &WebhookQueueChecker{queue: queue, maxBacklog: defaultMaxBacklog}
}

// Name 返回检查器名称
func (c *WebhookQueueChecker) Name() string {
	return "webhook_queue"
}

// Check 读取主队列与死信队列深度并评估积压情况
func (c *WebhookQueueChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()

	depth, err := c.queue.QueueLength(ctx)
	if err != nil {
		return CheckResult{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("queue length unavailable: %v", err),
			Latency: time.Since(start),
		}
	}
	dlqDepth, err := c.queue.DLQLength(ctx)
	if err != nil {
		return CheckResult{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("dlq length unavailable: %v", err),
			Latency: time.Since(start),
		}
	}

	status := StatusHealthy
	message := "ok"
	if depth > c.maxBacklog {
		status = StatusDegraded
		message = "event backlog too deep"
	}
	if dlqDepth > 0 {
		// 死信只提示，不影响状态
		message = fmt.Sprintf("%s (%d events in dlq)", message, dlqDepth)
	}

	return CheckResult{
		Status:  status,
		Message: message,
		Details: map[string]interface{}{
			"queue_depth": depth,
			"dlq_depth":   dlqDepth,
		},
		Latency: time.Since(start),
	}
}
