package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/taoyao-code/dfplayer-server/internal/api"
	"github.com/taoyao-code/dfplayer-server/internal/api/middleware"
	"github.com/taoyao-code/dfplayer-server/internal/app"
	cfgpkg "github.com/taoyao-code/dfplayer-server/internal/config"
	"github.com/taoyao-code/dfplayer-server/internal/dfplayer"
	"github.com/taoyao-code/dfplayer-server/internal/health"
	"github.com/taoyao-code/dfplayer-server/internal/httpserver"
	"github.com/taoyao-code/dfplayer-server/internal/logging"
	"github.com/taoyao-code/dfplayer-server/internal/metrics"
	"github.com/taoyao-code/dfplayer-server/internal/migrate"
	"github.com/taoyao-code/dfplayer-server/internal/serialport"
	"github.com/taoyao-code/dfplayer-server/internal/storage/gormrepo"
	pgstorage "github.com/taoyao-code/dfplayer-server/internal/storage/pg"
	redisstore "github.com/taoyao-code/dfplayer-server/internal/storage/redis"
	"github.com/taoyao-code/dfplayer-server/internal/webhook"
)

func main() {
	// 1) 加载配置
	cfg, err := cfgpkg.Load("")
	if err != nil {
		panic(err)
	}

	// 2) 初始化日志
	logger, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)
	log := zap.L()

	// 3) 指标注册与处理器
	reg := metrics.NewRegistry()
	metricsHandler := metrics.Handler(reg)
	appMetrics := metrics.NewAppMetrics(reg)

	// 4) 串口与驱动
	port, err := serialport.Open(cfg.Serial)
	if err != nil {
		log.Fatal("serial open error",
			zap.String("device", cfg.Serial.Device),
			zap.Error(err))
	}
	defer func() { _ = port.Close() }()

	playerOpts := []dfplayer.Option{
		dfplayer.WithRetries(cfg.Serial.Retries),
		dfplayer.WithRetryHook(appMetrics.RetryTotal.Inc),
	}
	var busy *dfplayer.BusyTracker
	busyLevel := cfg.BusyLine.InitialLevel
	if cfg.BusyLine.Enabled {
		level, err := port.ReadPinLevel(cfg.BusyLine.Pin)
		if err != nil {
			log.Warn("busy pin read failed, using configured fallback",
				zap.String("pin", cfg.BusyLine.Pin), zap.Error(err))
		} else {
			busyLevel = level
		}
		busy = dfplayer.NewBusyTracker(busyLevel)
		playerOpts = append(playerOpts, dfplayer.WithBusyTracker(busy))
	}
	player := dfplayer.New(port, playerOpts...)
	log.Info("dfplayer attached",
		zap.String("device", cfg.Serial.Device),
		zap.Int("baud", cfg.Serial.Baud),
		zap.Bool("busy_line", cfg.BusyLine.Enabled))

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	if busy != nil {
		serialport.WatchPin(rootCtx, port, cfg.BusyLine.Pin, cfg.BusyLine.PollInterval, busyLevel, busy.OnEdge)
		log.Info("busy line watcher started",
			zap.String("pin", cfg.BusyLine.Pin),
			zap.Duration("interval", cfg.BusyLine.PollInterval))
	}

	// 5) PostgreSQL：播放历史 + 曲目目录
	var (
		historyRepo *pgstorage.Repository
		catalogRepo *gormrepo.Repository
	)
	aggregator := health.NewAggregator(health.NewSerialChecker(player, busy))

	if cfg.Database.Enabled {
		pool, err := pgstorage.NewPool(rootCtx, cfg.Database.DSN,
			cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns,
			cfg.Database.ConnMaxLifetime, logger)
		if err != nil {
			log.Fatal("database connect error", zap.Error(err))
		}
		defer pool.Close()

		runner := migrate.Runner{Dir: cfg.Database.MigrationsDir}
		if err := runner.Up(rootCtx, pool); err != nil {
			log.Fatal("database migrate error", zap.Error(err))
		}
		historyRepo = &pgstorage.Repository{Pool: pool}
		aggregator.AddChecker(health.NewDatabaseChecker(pool))

		gdb, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{})
		if err != nil {
			log.Fatal("gorm open error", zap.Error(err))
		}
		catalogRepo = gormrepo.New(gdb)
		log.Info("database ready", zap.String("migrations", cfg.Database.MigrationsDir))
	}

	// 6) Redis：插播队列 + 事件队列
	var (
		redisClient   *redisstore.Client
		announceQueue *redisstore.AnnounceQueue
	)
	if cfg.Redis.Enabled {
		redisClient, err = redisstore.NewClient(cfg.Redis)
		if err != nil {
			log.Fatal("redis connect error", zap.Error(err))
		}
		defer func() { _ = redisClient.Close() }()
		announceQueue = redisstore.NewAnnounceQueue(redisClient.Client)
		aggregator.AddChecker(health.NewRedisChecker(redisClient))
		log.Info("redis ready", zap.String("addr", cfg.Redis.Addr))
	}

	// 7) 事件回调推送
	var events app.EventSink
	if cfg.Webhook.Enabled && redisClient != nil {
		pusher := webhook.NewPusher(&http.Client{Timeout: 10 * time.Second},
			cfg.Webhook.APIKey, cfg.Webhook.Secret)
		eventQueue := webhook.NewEventQueue(redisClient.Client, pusher, cfg.Webhook.URL, logger)
		eventQueue.ResultHook = func(result string) {
			appMetrics.WebhookPushTotal.WithLabelValues(result).Inc()
		}
		eventQueue.StartWorkers(rootCtx, cfg.Webhook.Workers)
		events = eventQueue
		aggregator.AddChecker(health.NewWebhookQueueChecker(eventQueue))
		log.Info("webhook pusher ready",
			zap.String("url", cfg.Webhook.URL),
			zap.Int("workers", cfg.Webhook.Workers))
	}

	// 8) 业务服务与后台Worker
	var historySink app.PlayLogRepo
	if historyRepo != nil {
		historySink = historyRepo
	}
	service := app.NewService(player, cfg.Serial.Device, logger, appMetrics, historySink, events)

	var catalogSink app.CatalogRepo
	if catalogRepo != nil {
		catalogSink = catalogRepo
	}
	notifyWorker := app.NewNotifyWorker(service, logger, appMetrics, historySink, catalogSink, events)
	notifyWorker.Start(rootCtx)

	if announceQueue != nil {
		announceWorker := app.NewAnnounceWorker(service, announceQueue, logger, appMetrics, events)
		announceWorker.Start(rootCtx)
	}

	// 9) 播放列表
	var runner *app.PlaylistRunner
	if cfg.Playlists.Path != "" {
		lists, err := app.LoadPlaylists(cfg.Playlists.Path)
		if err != nil {
			log.Warn("playlists load failed", zap.String("path", cfg.Playlists.Path), zap.Error(err))
			lists = nil
		}
		runner = app.NewPlaylistRunner(service, logger, lists)
		log.Info("playlists loaded", zap.Int("count", len(lists)))
	}

	// 10) HTTP 服务与路由
	httpSrv := httpserver.New(cfg.HTTP, cfg.Metrics.Path, metricsHandler, func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return aggregator.Ready(ctx)
	})
	var trackCatalog api.TrackCatalog
	if catalogRepo != nil {
		trackCatalog = catalogRepo
	}
	api.RegisterRoutes(httpSrv.Engine(), service, runner, announceQueue, historyRepo, trackCatalog,
		middleware.AuthConfig{Enabled: cfg.Auth.Enabled, APIKeys: cfg.Auth.APIKeys},
		middleware.RateLimitConfig{
			Enabled: cfg.RateLimit.Enabled,
			RPS:     cfg.RateLimit.RPS,
			Burst:   cfg.RateLimit.Burst,
			Hook: func(allowed bool) {
				result := "allowed"
				if !allowed {
					result = "rejected"
				}
				appMetrics.RateLimitTotal.WithLabelValues(result).Inc()
			},
		},
		logger)
	health.RegisterHTTPRoutes(httpSrv.Engine(), aggregator)

	go func() {
		if err := httpSrv.Start(); err != nil {
			log.Error("http server error", zap.Error(err))
		}
	}()
	log.Info("dfplayer server started", zap.String("addr", cfg.HTTP.Addr))

	// 信号处理，优雅关闭
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	rootCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(ctx)
}
