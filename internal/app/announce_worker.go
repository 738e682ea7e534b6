package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/dfplayer-server/internal/metrics"
	redisstore "github.com/taoyao-code/dfplayer-server/internal/storage/redis"
	"github.com/taoyao-code/dfplayer-server/internal/webhook"
)

const announceDequeueTimeout = 5 * time.Second

// AnnounceWorker 语音插播消费者：从 Redis 队列取任务，驱动 ADVERT 插播。
// 设备忙或串口故障时按次数回退重试，过期或超限任务入死信队列。
type AnnounceWorker struct {
	service *Service
	queue   *redisstore.AnnounceQueue
	logger  *zap.Logger
	metrics *metrics.AppMetrics
	events  EventSink
}

// NewAnnounceWorker 创建插播消费者
func NewAnnounceWorker(service *Service, queue *redisstore.AnnounceQueue, logger *zap.Logger, m *metrics.AppMetrics, events EventSink) *AnnounceWorker {
	return &AnnounceWorker{
		service: service,
		queue:   queue,
		logger:  logger,
		metrics: m,
		events:  events,
	}
}

// Start 启动消费循环，随 ctx 取消退出
func (w *AnnounceWorker) Start(ctx context.Context) {
	go w.run(ctx)
}

func (w *AnnounceWorker) run(ctx context.Context) {
	w.logger.Info("announce worker started")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("announce worker stopped")
			return
		default:
		}

		job, err := w.queue.Dequeue(ctx, announceDequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("announce dequeue failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if job == nil {
			continue
		}
		w.process(ctx, job)
	}
}

func (w *AnnounceWorker) process(ctx context.Context, job *redisstore.AnnounceJob) {
	if job.Expired(time.Now()) {
		w.logger.Warn("announce job expired", zap.Int("track", job.Track))
		w.observe("expired")
		return
	}

	if err := w.service.PlayAdvert(ctx, job.Track); err != nil {
		w.logger.Warn("announce play failed",
			zap.Int("track", job.Track),
			zap.Int("attempts", job.Attempts),
			zap.Error(err))
		w.observe("retry")
		if rerr := w.queue.Requeue(ctx, job, err.Error()); rerr != nil {
			w.logger.Error("announce requeue failed", zap.Error(rerr))
		}
		return
	}

	w.observe("ok")
	if w.events != nil {
		ev := webhook.NewEvent(webhook.EventAnnouncePlayed, w.service.Device(), map[string]interface{}{
			"track": job.Track,
		})
		if err := w.events.Enqueue(ctx, ev); err != nil {
			w.logger.Warn("event enqueue failed", zap.Error(err))
		}
	}
}

func (w *AnnounceWorker) observe(result string) {
	if w.metrics != nil {
		w.metrics.AnnounceTotal.WithLabelValues(result).Inc()
	}
}
