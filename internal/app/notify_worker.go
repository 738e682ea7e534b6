package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/dfplayer-server/internal/dfplayer"
	"github.com/taoyao-code/dfplayer-server/internal/metrics"
	"github.com/taoyao-code/dfplayer-server/internal/webhook"
)

const notifyPollInterval = 200 * time.Millisecond

// NotifyWorker 异步通知轮询器：
// 周期性读取设备主动上报的事件帧，分发到事件队列、历史库与曲目目录。
type NotifyWorker struct {
	service  *Service
	logger   *zap.Logger
	metrics  *metrics.AppMetrics
	history  PlayLogRepo
	catalog  CatalogRepo
	events   EventSink
	interval time.Duration
}

// NewNotifyWorker 创建通知轮询器；history/catalog/events 允许为 nil
func NewNotifyWorker(service *Service, logger *zap.Logger, m *metrics.AppMetrics, history PlayLogRepo, catalog CatalogRepo, events EventSink) *NotifyWorker {
	return &NotifyWorker{
		service:  service,
		logger:   logger,
		metrics:  m,
		history:  history,
		catalog:  catalog,
		events:   events,
		interval: notifyPollInterval,
	}
}

// Start 启动轮询循环，随 ctx 取消退出
func (w *NotifyWorker) Start(ctx context.Context) {
	go w.run(ctx)
}

func (w *NotifyWorker) run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("notify worker started", zap.Duration("interval", w.interval))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("notify worker stopped")
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

// poll 取一条待处理通知并分发；无通知时立即返回
func (w *NotifyWorker) poll(ctx context.Context) {
	n, err := w.service.Player().PollNotification()
	if err != nil {
		w.logger.Warn("notification poll failed", zap.Error(err))
		return
	}
	if n == nil {
		return
	}
	w.dispatch(ctx, n)
}

func (w *NotifyWorker) dispatch(ctx context.Context, n *dfplayer.Notification) {
	w.logger.Info("device notification",
		zap.String("kind", string(n.Kind)),
		zap.String("media", n.Media.String()),
		zap.Uint16("track", n.Track))

	if w.metrics != nil {
		w.metrics.NotifyTotal.WithLabelValues(string(n.Kind)).Inc()
		if n.Kind == dfplayer.NotificationTrackDone {
			w.metrics.PlayingGauge.Set(0)
		}
	}

	if w.history != nil {
		if err := w.history.InsertNotification(ctx, string(n.Kind), n.Media.String(), int(n.Track)); err != nil {
			w.logger.Warn("notification insert failed", zap.Error(err))
		}
	}

	if w.catalog != nil {
		switch n.Kind {
		case dfplayer.NotificationTrackDone:
			if err := w.catalog.MarkPlayed(ctx, n.Media.String(), int32(n.Track), time.Now()); err != nil {
				w.logger.Warn("mark played failed", zap.Error(err))
			}
		case dfplayer.NotificationEjected:
			if err := w.catalog.DeleteTracks(ctx, n.Media.String()); err != nil {
				w.logger.Warn("catalog cleanup failed", zap.Error(err))
			}
		}
	}

	if w.events != nil {
		if ev := webhook.FromNotification(w.service.Device(), n); ev != nil {
			if err := w.events.Enqueue(ctx, ev); err != nil {
				w.logger.Warn("event enqueue failed", zap.Error(err))
			}
		}
	}
}
