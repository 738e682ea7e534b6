package webhook

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/taoyao-code/dfplayer-server/internal/dfplayer"
)

// EventType 事件类型
type EventType string

const (
	// EventPlaybackStarted 开始播放
	EventPlaybackStarted EventType = "playback.started"

	// EventPlaybackPaused 暂停播放
	EventPlaybackPaused EventType = "playback.paused"

	// EventTrackFinished 曲目播放完毕（设备异步通知）
	EventTrackFinished EventType = "track.finished"

	// EventMediaInserted 插入存储介质
	EventMediaInserted EventType = "media.inserted"

	// EventMediaEjected 拔出存储介质
	EventMediaEjected EventType = "media.ejected"

	// EventDeviceReady 模块就绪
	EventDeviceReady EventType = "device.ready"

	// EventVolumeChanged 音量变更
	EventVolumeChanged EventType = "volume.changed"

	// EventAnnouncePlayed 插播任务完成
	EventAnnouncePlayed EventType = "announce.played"
)

// StandardEvent 标准事件结构
type StandardEvent struct {
	// 基础字段
	EventID   string    `json:"event_id"`  // 事件唯一ID（用于去重）
	EventType EventType `json:"event_type"` // 事件类型
	Device    string    `json:"device"`     // 串口设备路径，标识事件来源模块
	Timestamp int64     `json:"timestamp"`  // 事件时间戳（Unix秒）
	Nonce     string    `json:"nonce"`      // 随机数（用于签名）

	// 业务数据
	Data map[string]interface{} `json:"data"` // 具体事件数据
}

// NewEvent 创建标准事件
func NewEvent(eventType EventType, device string, data map[string]interface{}) *StandardEvent {
	now := time.Now()
	return &StandardEvent{
		EventID:   uuid.NewString(),
		EventType: eventType,
		Device:    device,
		Timestamp: now.Unix(),
		Nonce:     fmt.Sprintf("%08x", uint32(now.UnixNano())),
		Data:      data,
	}
}

// FromNotification 将驱动解码出的异步通知映射为标准事件
func FromNotification(device string, n *dfplayer.Notification) *StandardEvent {
	switch n.Kind {
	case dfplayer.NotificationInserted:
		return NewEvent(EventMediaInserted, device, map[string]interface{}{
			"media": n.Media.String(),
		})
	case dfplayer.NotificationEjected:
		return NewEvent(EventMediaEjected, device, map[string]interface{}{
			"media": n.Media.String(),
		})
	case dfplayer.NotificationTrackDone:
		return NewEvent(EventTrackFinished, device, map[string]interface{}{
			"media": n.Media.String(),
			"track": n.Track,
		})
	case dfplayer.NotificationReady:
		return NewEvent(EventDeviceReady, device, map[string]interface{}{
			"usb":    n.Sources&dfplayer.MaskUSB != 0,
			"sdcard": n.Sources&dfplayer.MaskSDCard != 0,
			"flash":  n.Sources&dfplayer.MaskFlash != 0,
		})
	default:
		return nil
	}
}
