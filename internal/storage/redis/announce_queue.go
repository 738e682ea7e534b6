package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	announceQueueKey = "announce:queue" // 待播插播任务
	announceDLQKey   = "announce:dlq"   // 播放失败的死信任务

	// AnnounceMaxAttempts 单个任务的最大尝试次数
	AnnounceMaxAttempts = 3
)

// AnnounceJob 插播任务：播放 "ADVERT" 文件夹中的曲目，播完自动恢复原播放
type AnnounceJob struct {
	Track    int   `json:"track"`             // ADVERT 文件夹内曲目号（0-9999）
	Attempts int   `json:"attempts"`          // 已尝试次数
	QueuedAt int64 `json:"queued_at"`         // 入队时间（Unix秒）
	NotAfter int64 `json:"not_after,omitempty"` // 过期时间，0 表示不过期
}

// Expired 任务是否已过期
func (j *AnnounceJob) Expired(now time.Time) bool {
	return j.NotAfter > 0 && now.Unix() > j.NotAfter
}

// AnnounceQueue 基于 Redis List 的插播任务队列
type AnnounceQueue struct {
	rdb *redis.Client
}

// NewAnnounceQueue 创建插播队列
func NewAnnounceQueue(rdb *redis.Client) *AnnounceQueue {
	return &AnnounceQueue{rdb: rdb}
}

// Enqueue 入队一个插播任务
func (q *AnnounceQueue) Enqueue(ctx context.Context, job *AnnounceJob) error {
	if q == nil || q.rdb == nil {
		return fmt.Errorf("announce queue not initialized")
	}
	if job.QueuedAt == 0 {
		job.QueuedAt = time.Now().Unix()
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal announce job: %w", err)
	}
	if err := q.rdb.RPush(ctx, announceQueueKey, data).Err(); err != nil {
		return fmt.Errorf("redis rpush: %w", err)
	}
	return nil
}

// Dequeue 阻塞取出一个任务；队列空返回 (nil, nil)
func (q *AnnounceQueue) Dequeue(ctx context.Context, timeout time.Duration) (*AnnounceJob, error) {
	result, err := q.rdb.BLPop(ctx, timeout, announceQueueKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis blpop: %w", err)
	}
	if len(result) < 2 {
		return nil, fmt.Errorf("invalid blpop result")
	}
	var job AnnounceJob
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("unmarshal announce job: %w", err)
	}
	return &job, nil
}

// Requeue 失败重试：尝试次数未耗尽回到队尾，否则移入死信队列
func (q *AnnounceQueue) Requeue(ctx context.Context, job *AnnounceJob, reason string) error {
	job.Attempts++
	if job.Attempts >= AnnounceMaxAttempts {
		return q.moveToDLQ(ctx, job, reason)
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal announce job: %w", err)
	}
	return q.rdb.RPush(ctx, announceQueueKey, data).Err()
}

func (q *AnnounceQueue) moveToDLQ(ctx context.Context, job *AnnounceJob, reason string) error {
	record := map[string]interface{}{
		"job":       job,
		"reason":    reason,
		"timestamp": time.Now().Unix(),
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal dlq record: %w", err)
	}
	return q.rdb.RPush(ctx, announceDLQKey, data).Err()
}

// Length 队列长度
func (q *AnnounceQueue) Length(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, announceQueueKey).Result()
}

// DLQLength 死信队列长度
func (q *AnnounceQueue) DLQLength(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, announceDLQKey).Result()
}
