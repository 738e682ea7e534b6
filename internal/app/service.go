package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/dfplayer-server/internal/dfplayer"
	"github.com/taoyao-code/dfplayer-server/internal/metrics"
	"github.com/taoyao-code/dfplayer-server/internal/webhook"
)

// PlayLogRepo 播放历史仓储（pgx 实现，可空）
type PlayLogRepo interface {
	InsertPlayLog(ctx context.Context, op string, folder, track *int, success bool, errorKind *string) error
	InsertNotification(ctx context.Context, kind, media string, track int) error
}

// CatalogRepo 曲目目录仓储（gorm 实现，可空）
type CatalogRepo interface {
	MarkPlayed(ctx context.Context, media string, trackNo int32, at time.Time) error
	DeleteTracks(ctx context.Context, media string) error
}

// EventSink 事件出口（webhook 队列，可空）
type EventSink interface {
	Enqueue(ctx context.Context, event *webhook.StandardEvent) error
}

// Service 播放控制服务：包装驱动，补充历史记录、事件推送与指标。
// 驱动本身已保证命令串行，服务层不再额外加锁。
type Service struct {
	player  *dfplayer.Player
	device  string // 串口设备路径，作为事件来源标识
	logger  *zap.Logger
	metrics *metrics.AppMetrics
	history PlayLogRepo
	events  EventSink
}

// NewService 创建播放控制服务；history/events 允许为 nil（对应子系统未启用）
func NewService(player *dfplayer.Player, device string, logger *zap.Logger, m *metrics.AppMetrics, history PlayLogRepo, events EventSink) *Service {
	return &Service{
		player:  player,
		device:  device,
		logger:  logger,
		metrics: m,
		history: history,
		events:  events,
	}
}

// Player 暴露底层驱动（健康检查等只读用途）
func (s *Service) Player() *dfplayer.Player { return s.player }

// Device 串口设备路径
func (s *Service) Device() string { return s.device }

// errorKind 将驱动错误映射为稳定的指标/历史标签
func errorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, dfplayer.ErrBusy):
		return "busy"
	case errors.Is(err, dfplayer.ErrIncompleteFrame):
		return "incomplete_frame"
	case errors.Is(err, dfplayer.ErrChecksumMismatch):
		return "checksum"
	case errors.Is(err, dfplayer.ErrNoSuchFile):
		return "no_such_file"
	case errors.Is(err, dfplayer.ErrTimeout):
		return "timeout"
	case errors.Is(err, dfplayer.ErrMalformedFrame), errors.Is(err, dfplayer.ErrBadReplyChecksum), errors.Is(err, dfplayer.ErrUnexpectedCode):
		return "protocol"
	default:
		var de *dfplayer.DeviceError
		if errors.As(err, &de) {
			return "unknown_device_error"
		}
		var ve *dfplayer.ValidationError
		if errors.As(err, &ve) {
			return "validation"
		}
		return "transport"
	}
}

// record 统一的操作收尾：历史、日志、指标
func (s *Service) record(ctx context.Context, op string, folder, track *int, err error) {
	result := "ok"
	if err != nil {
		result = errorKind(err)
	}
	if s.metrics != nil {
		s.metrics.CommandTotal.WithLabelValues(op, result).Inc()
		if kind := errorKind(err); err != nil && kind != "validation" && kind != "protocol" && kind != "timeout" && kind != "transport" {
			s.metrics.DeviceErrorTotal.WithLabelValues(kind).Inc()
		}
	}
	if s.history != nil {
		var ek *string
		if err != nil {
			k := errorKind(err)
			ek = &k
		}
		if herr := s.history.InsertPlayLog(ctx, op, folder, track, err == nil, ek); herr != nil {
			s.logger.Warn("play log insert failed", zap.String("op", op), zap.Error(herr))
		}
	}
	if err != nil {
		s.logger.Warn("player command failed", zap.String("op", op), zap.Error(err))
	} else {
		s.logger.Debug("player command ok", zap.String("op", op))
	}
}

// emit 入队一个回调事件（未启用时为空操作）
func (s *Service) emit(ctx context.Context, ev *webhook.StandardEvent) {
	if s.events == nil || ev == nil {
		return
	}
	if err := s.events.Enqueue(ctx, ev); err != nil {
		s.logger.Warn("event enqueue failed", zap.String("event_type", string(ev.EventType)), zap.Error(err))
	}
}

// Play 播放当前选中文件
func (s *Service) Play(ctx context.Context) error {
	err := s.player.Play()
	s.record(ctx, "play", nil, nil, err)
	if err == nil {
		if s.metrics != nil {
			s.metrics.PlayingGauge.Set(1)
		}
		s.emit(ctx, webhook.NewEvent(webhook.EventPlaybackStarted, s.device, nil))
	}
	return err
}

// Pause 暂停播放
func (s *Service) Pause(ctx context.Context) error {
	err := s.player.Pause()
	s.record(ctx, "pause", nil, nil, err)
	if err == nil {
		if s.metrics != nil {
			s.metrics.PlayingGauge.Set(0)
		}
		s.emit(ctx, webhook.NewEvent(webhook.EventPlaybackPaused, s.device, nil))
	}
	return err
}

// Next 下一曲
func (s *Service) Next(ctx context.Context) error {
	err := s.player.Next()
	s.record(ctx, "next", nil, nil, err)
	return err
}

// Previous 上一曲
func (s *Service) Previous(ctx context.Context) error {
	err := s.player.Previous()
	s.record(ctx, "previous", nil, nil, err)
	return err
}

// PlayTrack 播放指定文件夹下的曲目
func (s *Service) PlayTrack(ctx context.Context, folder, track int) error {
	err := s.player.PlayTrack(folder, track)
	s.record(ctx, "play_track", &folder, &track, err)
	if err == nil {
		s.emit(ctx, webhook.NewEvent(webhook.EventPlaybackStarted, s.device, map[string]interface{}{
			"folder": folder,
			"track":  track,
		}))
	}
	return err
}

// PlayFromMP3Folder 播放 MP3 文件夹中的曲目
func (s *Service) PlayFromMP3Folder(ctx context.Context, track int) error {
	err := s.player.PlayFromMP3Folder(track)
	s.record(ctx, "play_mp3", nil, &track, err)
	if err == nil {
		s.emit(ctx, webhook.NewEvent(webhook.EventPlaybackStarted, s.device, map[string]interface{}{
			"mp3_track": track,
		}))
	}
	return err
}

// PlayAdvert 插播 ADVERT 曲目
func (s *Service) PlayAdvert(ctx context.Context, track int) error {
	err := s.player.PlayAdvert(track)
	s.record(ctx, "announce", nil, &track, err)
	return err
}

// AbortAdvert 中止插播
func (s *Service) AbortAdvert(ctx context.Context) error {
	err := s.player.AbortAdvert()
	s.record(ctx, "abort_announce", nil, nil, err)
	return err
}

// SetVolumePercent 按百分比设置音量
func (s *Service) SetVolumePercent(ctx context.Context, percent int) error {
	err := s.player.SetVolumePercent(percent)
	s.record(ctx, "set_volume", nil, nil, err)
	if err == nil {
		s.emit(ctx, webhook.NewEvent(webhook.EventVolumeChanged, s.device, map[string]interface{}{
			"percent": percent,
		}))
	}
	return err
}

// IncreaseVolume 音量加一级
func (s *Service) IncreaseVolume(ctx context.Context) error {
	err := s.player.IncreaseVolume()
	s.record(ctx, "volume_inc", nil, nil, err)
	return err
}

// DecreaseVolume 音量减一级
func (s *Service) DecreaseVolume(ctx context.Context) error {
	err := s.player.DecreaseVolume()
	s.record(ctx, "volume_dec", nil, nil, err)
	return err
}

// SetEqualizer 设置均衡器
func (s *Service) SetEqualizer(ctx context.Context, eq dfplayer.Equalizer) error {
	err := s.player.SetEqualizer(eq)
	s.record(ctx, "set_equalizer", nil, nil, err)
	return err
}

// SetPlaybackMode 设置循环模式
func (s *Service) SetPlaybackMode(ctx context.Context, mode dfplayer.PlaybackMode) error {
	err := s.player.SetPlaybackMode(mode)
	s.record(ctx, "set_mode", nil, nil, err)
	return err
}

// SetSource 选择播放源
func (s *Service) SetSource(ctx context.Context, src dfplayer.Source) error {
	err := s.player.SetSource(src)
	s.record(ctx, "set_source", nil, nil, err)
	return err
}

// SetStandby 进入/退出待机
func (s *Service) SetStandby(ctx context.Context, enabled bool) error {
	err := s.player.SetStandby(enabled)
	s.record(ctx, "standby", nil, nil, err)
	return err
}

// RepeatFolder 循环播放文件夹
func (s *Service) RepeatFolder(ctx context.Context, folder int) error {
	err := s.player.RepeatFolder(folder)
	s.record(ctx, "repeat_folder", &folder, nil, err)
	return err
}

// PlayRandom 随机播放
func (s *Service) PlayRandom(ctx context.Context) error {
	err := s.player.PlayRandom()
	s.record(ctx, "random", nil, nil, err)
	return err
}

// Reset 复位模块
func (s *Service) Reset(ctx context.Context) error {
	err := s.player.Reset()
	s.record(ctx, "reset", nil, nil, err)
	return err
}

// StatusSnapshot 状态查询汇总
type StatusSnapshot struct {
	Status  string `json:"status"`
	Playing bool   `json:"playing"`
	Volume  int    `json:"volume"`
}

// Status 查询播放状态、在播标志与音量
func (s *Service) Status(ctx context.Context) (*StatusSnapshot, error) {
	st, err := s.player.Status()
	s.record(ctx, "get_status", nil, nil, err)
	if err != nil {
		return nil, err
	}
	vol, err := s.player.Volume()
	s.record(ctx, "get_volume", nil, nil, err)
	if err != nil {
		return nil, err
	}
	playing, err := s.player.Playing()
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		if playing {
			s.metrics.PlayingGauge.Set(1)
		} else {
			s.metrics.PlayingGauge.Set(0)
		}
	}
	return &StatusSnapshot{Status: st.String(), Playing: playing, Volume: vol}, nil
}

// Playing 在播标志（忙脚优先，无串口往返）
func (s *Service) Playing() (bool, error) {
	return s.player.Playing()
}

// Volume 查询音量级
func (s *Service) Volume(ctx context.Context) (int, error) {
	v, err := s.player.Volume()
	s.record(ctx, "get_volume", nil, nil, err)
	return v, err
}

// Equalizer 查询均衡器模式
func (s *Service) Equalizer(ctx context.Context) (dfplayer.Equalizer, error) {
	eq, err := s.player.Equalizer()
	s.record(ctx, "get_equalizer", nil, nil, err)
	return eq, err
}

// PlaybackMode 查询循环模式
func (s *Service) PlaybackMode(ctx context.Context) (dfplayer.PlaybackMode, error) {
	m, err := s.player.PlaybackMode()
	s.record(ctx, "get_mode", nil, nil, err)
	return m, err
}

// Version 查询固件版本
func (s *Service) Version(ctx context.Context) (string, error) {
	v, err := s.player.Version()
	s.record(ctx, "get_version", nil, nil, err)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("0x%04X", v), nil
}

// FileCount 查询介质文件总数
func (s *Service) FileCount(ctx context.Context, media dfplayer.Media) (int, error) {
	n, err := s.player.FileCount(media)
	s.record(ctx, "file_count", nil, nil, err)
	return n, err
}

// CurrentFileNumber 查询介质当前文件号
func (s *Service) CurrentFileNumber(ctx context.Context, media dfplayer.Media) (int, error) {
	n, err := s.player.CurrentFileNumber(media)
	s.record(ctx, "current_file", nil, nil, err)
	return n, err
}
