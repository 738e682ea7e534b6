package pg

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository 播放历史持久化
type Repository struct {
	Pool *pgxpool.Pool
}

// PlayLogEntry 一条播放/控制历史记录
type PlayLogEntry struct {
	ID        int64
	Operation string // play/pause/next/play_track/announce/...
	Folder    *int
	Track     *int
	Success   bool
	ErrorKind *string
	CreatedAt time.Time
}

// InsertPlayLog 记录一次播放/控制操作
func (r *Repository) InsertPlayLog(ctx context.Context, op string, folder, track *int, success bool, errorKind *string) error {
	const q = `INSERT INTO play_log (operation, folder, track, success, error_kind, created_at)
               VALUES ($1,$2,$3,$4,$5,NOW())`
	_, err := r.Pool.Exec(ctx, q, op, folder, track, success, errorKind)
	return err
}

// ListRecent 按时间倒序返回最近的历史记录
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]PlayLogEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	const q = `SELECT id, operation, folder, track, success, error_kind, created_at
               FROM play_log ORDER BY id DESC LIMIT $1`
	rows, err := r.Pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PlayLogEntry
	for rows.Next() {
		var e PlayLogEntry
		if err := rows.Scan(&e.ID, &e.Operation, &e.Folder, &e.Track, &e.Success, &e.ErrorKind, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// InsertNotification 记录一条设备异步通知
func (r *Repository) InsertNotification(ctx context.Context, kind, media string, track int) error {
	const q = `INSERT INTO device_notifications (kind, media, track, created_at)
               VALUES ($1,$2,$3,NOW())`
	_, err := r.Pool.Exec(ctx, q, kind, media, track)
	return err
}
