package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/dfplayer-server/internal/api/middleware"
	"github.com/taoyao-code/dfplayer-server/internal/app"
	pgstorage "github.com/taoyao-code/dfplayer-server/internal/storage/pg"
	redisstore "github.com/taoyao-code/dfplayer-server/internal/storage/redis"
)

// RegisterRoutes 注册播放控制路由
func RegisterRoutes(
	r *gin.Engine,
	service *app.Service,
	playlists *app.PlaylistRunner,
	announce *redisstore.AnnounceQueue,
	history *pgstorage.Repository,
	catalog TrackCatalog,
	authCfg middleware.AuthConfig,
	rateCfg middleware.RateLimitConfig,
	logger *zap.Logger,
) {
	if r == nil || service == nil {
		return
	}

	handler := NewPlayerHandler(service, playlists, announce, history, catalog, logger)

	r.Use(middleware.CORS())

	api := r.Group("/api")
	if authCfg.Enabled {
		api.Use(middleware.APIKeyAuth(authCfg, logger))
		logger.Info("api authentication enabled", zap.Int("api_keys_count", len(authCfg.APIKeys)))
	} else {
		logger.Warn("api authentication disabled - only for development!")
	}
	if rateCfg.Enabled {
		api.Use(middleware.RateLimit(rateCfg))
		logger.Info("api rate limit enabled",
			zap.Float64("rps", rateCfg.RPS),
			zap.Int("burst", rateCfg.Burst))
	}

	// 播放控制
	api.POST("/player/play", handler.Play)
	api.POST("/player/pause", handler.Pause)
	api.POST("/player/next", handler.Next)
	api.POST("/player/previous", handler.Previous)
	api.POST("/player/track", handler.PlayTrack)
	api.POST("/player/mp3", handler.PlayMP3)
	api.POST("/player/repeat-folder", handler.RepeatFolder)
	api.POST("/player/random", handler.PlayRandom)
	api.POST("/player/reset", handler.Reset)

	// 音量与模式
	api.PUT("/player/volume", handler.SetVolume)
	api.GET("/player/volume", handler.GetVolume)
	api.POST("/player/volume/up", handler.VolumeUp)
	api.POST("/player/volume/down", handler.VolumeDown)
	api.PUT("/player/equalizer", handler.SetEqualizer)
	api.GET("/player/equalizer", handler.GetEqualizer)
	api.PUT("/player/mode", handler.SetMode)
	api.PUT("/player/source", handler.SetSource)
	api.PUT("/player/standby", handler.SetStandby)

	// 状态查询
	api.GET("/player/status", handler.Status)
	api.GET("/player/version", handler.Version)
	api.GET("/player/media/:media/files", handler.FileCount)
	api.GET("/player/media/:media/current", handler.CurrentFile)

	// 插播
	api.POST("/announcements", handler.Announce)
	api.DELETE("/announcements/current", handler.AbortAnnounce)

	// 播放列表
	if playlists != nil {
		api.GET("/playlists", handler.ListPlaylists)
		api.GET("/playlists/:name", handler.GetPlaylist)
		api.POST("/playlists/:name/start", handler.StartPlaylist)
		api.POST("/playlists/stop", handler.StopPlaylist)
	}

	// 历史与曲目目录
	if history != nil {
		api.GET("/history", handler.History)
	}
	if catalog != nil {
		api.GET("/tracks", handler.ListTracks)
		api.PUT("/tracks", handler.RegisterTrack)
		api.GET("/tracks/:media/:folder/:track", handler.GetTrackInfo)
	}

	logger.Info("player routes registered")
}
