package models

import "time"

// 注意：
// - 保持与 db/migrations 完全对齐
// - 不使用 gorm.Model，显式声明每个字段，避免隐式 DeletedAt

// Track 映射 tracks 表：曲目目录元数据。
// 模块本身只认 (介质, 文件夹, 曲目号)，可读的标题等由平台侧维护。
type Track struct {
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// 介质：usb/sdcard/flash
	Media string `gorm:"column:media;type:text;not null;uniqueIndex:uq_track_location,priority:1"`
	// 文件夹号（0-99），MP3 文件夹记为 -1
	Folder int32 `gorm:"column:folder;not null;uniqueIndex:uq_track_location,priority:2"`
	// 文件夹内曲目号
	TrackNo int32 `gorm:"column:track_no;not null;uniqueIndex:uq_track_location,priority:3"`
	// 可读标题，可空
	Title *string `gorm:"column:title;type:text"`
	// 时长（秒），可空
	DurationSec *int32 `gorm:"column:duration_sec"`
	// 最近一次播放完毕时间
	LastPlayedAt *time.Time `gorm:"column:last_played_at"`
	// 累计播放完毕次数
	PlayCount int64 `gorm:"column:play_count;not null;default:0"`
	// 审计字段
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Track) TableName() string { return "tracks" }
