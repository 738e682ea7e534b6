package gormrepo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/taoyao-code/dfplayer-server/internal/storage/models"
)

// Repository 基于 GORM 的曲目目录仓储
type Repository struct {
	db *gorm.DB
}

// New 返回一个使用给定 *gorm.DB 的仓储实例
func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// UpsertTrack 登记或更新曲目元数据，按 (media, folder, track_no) 去重
func (r *Repository) UpsertTrack(ctx context.Context, t *models.Track) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "media"}, {Name: "folder"}, {Name: "track_no"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "duration_sec", "updated_at"}),
	}).Create(t).Error
}

// GetTrack 按位置查找曲目；不存在返回 (nil, nil)
func (r *Repository) GetTrack(ctx context.Context, media string, folder, trackNo int32) (*models.Track, error) {
	var t models.Track
	err := r.db.WithContext(ctx).
		Where("media = ? AND folder = ? AND track_no = ?", media, folder, trackNo).
		First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTracks 列出指定介质上已登记的曲目
func (r *Repository) ListTracks(ctx context.Context, media string, limit int) ([]models.Track, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	var out []models.Track
	err := r.db.WithContext(ctx).
		Where("media = ?", media).
		Order("folder, track_no").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// MarkPlayed 曲目播放完毕：刷新最近播放时间并累加播放计数。
// 未登记的曲目静默忽略（目录是可选的元数据层）。
func (r *Repository) MarkPlayed(ctx context.Context, media string, trackNo int32, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Track{}).
		Where("media = ? AND track_no = ?", media, trackNo).
		Updates(map[string]interface{}{
			"last_played_at": at,
			"play_count":     gorm.Expr("play_count + 1"),
		}).Error
}

// DeleteTracks 介质拔出时清理该介质的目录（可选行为，由服务层决定是否调用）
func (r *Repository) DeleteTracks(ctx context.Context, media string) error {
	return r.db.WithContext(ctx).Where("media = ?", media).Delete(&models.Track{}).Error
}
