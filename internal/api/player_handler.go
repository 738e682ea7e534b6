package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/dfplayer-server/internal/app"
	"github.com/taoyao-code/dfplayer-server/internal/dfplayer"
	"github.com/taoyao-code/dfplayer-server/internal/storage/models"
	pgstorage "github.com/taoyao-code/dfplayer-server/internal/storage/pg"
	redisstore "github.com/taoyao-code/dfplayer-server/internal/storage/redis"
)

// TrackCatalog 曲目目录存储。
// 目录是平台侧维护的元数据层，设备本身只认 (介质, 文件夹, 曲目号)。
type TrackCatalog interface {
	UpsertTrack(ctx context.Context, t *models.Track) error
	GetTrack(ctx context.Context, media string, folder, trackNo int32) (*models.Track, error)
	ListTracks(ctx context.Context, media string, limit int) ([]models.Track, error)
}

// PlayerHandler 播放控制API处理器
type PlayerHandler struct {
	service   *app.Service
	playlists *app.PlaylistRunner
	announce  *redisstore.AnnounceQueue
	history   *pgstorage.Repository
	catalog   TrackCatalog
	logger    *zap.Logger
}

// NewPlayerHandler 创建播放控制API处理器；
// playlists/announce/history/catalog 允许为 nil（对应子系统未启用）
func NewPlayerHandler(
	service *app.Service,
	playlists *app.PlaylistRunner,
	announce *redisstore.AnnounceQueue,
	history *pgstorage.Repository,
	catalog TrackCatalog,
	logger *zap.Logger,
) *PlayerHandler {
	return &PlayerHandler{
		service:   service,
		playlists: playlists,
		announce:  announce,
		history:   history,
		catalog:   catalog,
		logger:    logger,
	}
}

// respondError 将驱动错误映射为HTTP状态码
func respondError(c *gin.Context, err error) {
	var ve *dfplayer.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_argument", "message": err.Error()})
	case errors.Is(err, dfplayer.ErrNoSuchFile):
		c.JSON(http.StatusNotFound, gin.H{"error": "no_such_file", "message": err.Error()})
	case errors.Is(err, dfplayer.ErrBusy):
		c.JSON(http.StatusConflict, gin.H{"error": "device_busy", "message": err.Error()})
	case errors.Is(err, dfplayer.ErrTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "device_timeout", "message": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "device_error", "message": err.Error()})
	}
}

// Play 播放
func (h *PlayerHandler) Play(c *gin.Context) {
	if err := h.service.Play(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Pause 暂停
func (h *PlayerHandler) Pause(c *gin.Context) {
	if err := h.service.Pause(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Next 下一曲
func (h *PlayerHandler) Next(c *gin.Context) {
	if err := h.service.Next(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Previous 上一曲
func (h *PlayerHandler) Previous(c *gin.Context) {
	if err := h.service.Previous(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// playTrackRequest 指定曲目播放请求。
// 曲目号0合法，不能用required（会把零值当缺失拒掉）
type playTrackRequest struct {
	Folder int `json:"folder" binding:"min=0,max=99"`
	Track  int `json:"track" binding:"min=0,max=9999"`
}

// PlayTrack 播放指定文件夹曲目
func (h *PlayerHandler) PlayTrack(c *gin.Context) {
	var req playTrackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	if err := h.service.PlayTrack(c.Request.Context(), req.Folder, req.Track); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "folder": req.Folder, "track": req.Track})
}

// playMP3Request MP3文件夹播放请求
type playMP3Request struct {
	Track int `json:"track" binding:"min=0,max=9999"`
}

// PlayMP3 播放MP3文件夹曲目
func (h *PlayerHandler) PlayMP3(c *gin.Context) {
	var req playMP3Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	if err := h.service.PlayFromMP3Folder(c.Request.Context(), req.Track); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "track": req.Track})
}

// volumeRequest 音量设置请求
type volumeRequest struct {
	Percent int `json:"percent" binding:"min=0,max=100"`
}

// SetVolume 按百分比设置音量
func (h *PlayerHandler) SetVolume(c *gin.Context) {
	var req volumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	if err := h.service.SetVolumePercent(c.Request.Context(), req.Percent); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "percent": req.Percent})
}

// GetVolume 查询音量级
func (h *PlayerHandler) GetVolume(c *gin.Context) {
	level, err := h.service.Volume(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"level": level, "max_level": dfplayer.MaxVolumeLevel})
}

// VolumeUp 音量加一级
func (h *PlayerHandler) VolumeUp(c *gin.Context) {
	if err := h.service.IncreaseVolume(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// VolumeDown 音量减一级
func (h *PlayerHandler) VolumeDown(c *gin.Context) {
	if err := h.service.DecreaseVolume(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// equalizerRequest 均衡器设置请求
type equalizerRequest struct {
	Mode int `json:"mode" binding:"min=0,max=5"`
}

// SetEqualizer 设置均衡器
func (h *PlayerHandler) SetEqualizer(c *gin.Context) {
	var req equalizerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	if err := h.service.SetEqualizer(c.Request.Context(), dfplayer.Equalizer(req.Mode)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "mode": dfplayer.Equalizer(req.Mode).String()})
}

// GetEqualizer 查询均衡器
func (h *PlayerHandler) GetEqualizer(c *gin.Context) {
	eq, err := h.service.Equalizer(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mode": eq.String()})
}

// modeRequest 循环模式设置请求
type modeRequest struct {
	Mode int `json:"mode" binding:"min=0,max=4"`
}

// SetMode 设置循环模式
func (h *PlayerHandler) SetMode(c *gin.Context) {
	var req modeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	if err := h.service.SetPlaybackMode(c.Request.Context(), dfplayer.PlaybackMode(req.Mode)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// sourceRequest 播放源设置请求
type sourceRequest struct {
	Source int `json:"source" binding:"min=0,max=4"`
}

// SetSource 选择播放源
func (h *PlayerHandler) SetSource(c *gin.Context) {
	var req sourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	if err := h.service.SetSource(c.Request.Context(), dfplayer.Source(req.Source)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// standbyRequest 待机设置请求
type standbyRequest struct {
	Enabled bool `json:"enabled"`
}

// SetStandby 进入/退出待机
func (h *PlayerHandler) SetStandby(c *gin.Context) {
	var req standbyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	if err := h.service.SetStandby(c.Request.Context(), req.Enabled); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// repeatFolderRequest 文件夹循环请求
type repeatFolderRequest struct {
	Folder int `json:"folder" binding:"required,min=1,max=99"`
}

// RepeatFolder 循环播放文件夹
func (h *PlayerHandler) RepeatFolder(c *gin.Context) {
	var req repeatFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	if err := h.service.RepeatFolder(c.Request.Context(), req.Folder); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// PlayRandom 随机播放
func (h *PlayerHandler) PlayRandom(c *gin.Context) {
	if err := h.service.PlayRandom(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Reset 复位模块
func (h *PlayerHandler) Reset(c *gin.Context) {
	if err := h.service.Reset(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Status 查询播放状态
func (h *PlayerHandler) Status(c *gin.Context) {
	snap, err := h.service.Status(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// Version 查询固件版本
func (h *PlayerHandler) Version(c *gin.Context) {
	v, err := h.service.Version(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"version": v})
}

// parseMedia 解析介质路径参数
func parseMedia(c *gin.Context) (dfplayer.Media, bool) {
	switch c.Param("media") {
	case "usb":
		return dfplayer.MediaUSB, true
	case "sdcard":
		return dfplayer.MediaSDCard, true
	case "flash":
		return dfplayer.MediaFlash, true
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_media", "message": "media must be usb, sdcard or flash"})
		return 0, false
	}
}

// FileCount 查询介质文件总数
func (h *PlayerHandler) FileCount(c *gin.Context) {
	media, ok := parseMedia(c)
	if !ok {
		return
	}
	n, err := h.service.FileCount(c.Request.Context(), media)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"media": media.String(), "count": n})
}

// CurrentFile 查询介质当前文件号
func (h *PlayerHandler) CurrentFile(c *gin.Context) {
	media, ok := parseMedia(c)
	if !ok {
		return
	}
	n, err := h.service.CurrentFileNumber(c.Request.Context(), media)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"media": media.String(), "current": n})
}

// announceRequest 插播请求
type announceRequest struct {
	Track int `json:"track" binding:"min=0,max=9999"`
	// TTLSeconds 任务有效期；超过后不再补播，0表示不过期
	TTLSeconds int `json:"ttl_seconds" binding:"min=0"`
}

// Announce 提交插播任务：
// 配置了Redis队列时异步入队，否则直接下发
func (h *PlayerHandler) Announce(c *gin.Context) {
	var req announceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	if h.announce == nil {
		if err := h.service.PlayAdvert(c.Request.Context(), req.Track); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "played", "track": req.Track})
		return
	}

	job := &redisstore.AnnounceJob{
		Track:    req.Track,
		QueuedAt: time.Now().Unix(),
	}
	if req.TTLSeconds > 0 {
		job.NotAfter = time.Now().Add(time.Duration(req.TTLSeconds) * time.Second).Unix()
	}
	if err := h.announce.Enqueue(c.Request.Context(), job); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "queue_unavailable", "message": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "track": req.Track})
}

// AbortAnnounce 中止插播
func (h *PlayerHandler) AbortAnnounce(c *gin.Context) {
	if err := h.service.AbortAdvert(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListPlaylists 列出所有播放列表
func (h *PlayerHandler) ListPlaylists(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"playlists": h.playlists.Names(),
		"running":   h.playlists.Current(),
	})
}

// GetPlaylist 查询播放列表内容
func (h *PlayerHandler) GetPlaylist(c *gin.Context) {
	name := c.Param("name")
	entries, err := h.playlists.Entries(name)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "entries": entries})
}

// StartPlaylist 开始执行播放列表
func (h *PlayerHandler) StartPlaylist(c *gin.Context) {
	name := c.Param("name")
	err := h.playlists.Start(c.Request.Context(), name)
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{"status": "started", "name": name})
	case errors.Is(err, app.ErrPlaylistNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
	case errors.Is(err, app.ErrPlaylistRunning):
		c.JSON(http.StatusConflict, gin.H{"error": "playlist_running", "message": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "message": err.Error()})
	}
}

// StopPlaylist 中止当前播放列表
func (h *PlayerHandler) StopPlaylist(c *gin.Context) {
	h.playlists.Stop()
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// History 查询播放历史
func (h *PlayerHandler) History(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		if vv, e := strconv.Atoi(v); e == nil {
			limit = vv
		}
	}
	entries, err := h.history.ListRecent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage_error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// registerTrackRequest 曲目登记请求。
// folder 取 -1 表示 "MP3" 文件夹（设备侧无文件夹号）
type registerTrackRequest struct {
	Media       string  `json:"media" binding:"required,oneof=usb sdcard flash"`
	Folder      int32   `json:"folder" binding:"min=-1,max=99"`
	TrackNo     int32   `json:"track_no" binding:"min=0,max=9999"`
	Title       *string `json:"title"`
	DurationSec *int32  `json:"duration_sec" binding:"omitempty,min=0"`
}

// RegisterTrack 登记或更新曲目元数据，按 (media, folder, track_no) 去重
func (h *PlayerHandler) RegisterTrack(c *gin.Context) {
	var req registerTrackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	track := &models.Track{
		Media:       req.Media,
		Folder:      req.Folder,
		TrackNo:     req.TrackNo,
		Title:       req.Title,
		DurationSec: req.DurationSec,
	}
	if err := h.catalog.UpsertTrack(c.Request.Context(), track); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage_error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "media": req.Media, "folder": req.Folder, "track_no": req.TrackNo})
}

// GetTrackInfo 按位置查询已登记的曲目
func (h *PlayerHandler) GetTrackInfo(c *gin.Context) {
	if _, ok := parseMedia(c); !ok {
		return
	}
	folder, err := strconv.ParseInt(c.Param("folder"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "folder must be an integer"})
		return
	}
	trackNo, err := strconv.ParseInt(c.Param("track"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "track must be an integer"})
		return
	}
	track, err := h.catalog.GetTrack(c.Request.Context(), c.Param("media"), int32(folder), int32(trackNo))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage_error", "message": err.Error()})
		return
	}
	if track == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "track is not registered"})
		return
	}
	c.JSON(http.StatusOK, track)
}

// ListTracks 查询曲目目录
func (h *PlayerHandler) ListTracks(c *gin.Context) {
	media := c.Query("media")
	limit := 100
	if v := c.Query("limit"); v != "" {
		if vv, e := strconv.Atoi(v); e == nil {
			limit = vv
		}
	}
	tracks, err := h.catalog.ListTracks(c.Request.Context(), media, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage_error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tracks": tracks})
}
