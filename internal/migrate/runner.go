// Package migrate 启动时按版本号顺序应用 SQL 迁移。
package migrate

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Runner 迁移执行器。Dir 指向 *_up.sql 所在目录，
// 文件名形如 0001_play_log_up.sql，数字前缀即版本号。
type Runner struct {
	Dir string
}

// migration 一个待应用的迁移文件
type migration struct {
	version int64
	path    string
}

// Up 应用所有尚未记录在 schema_migrations 中的迁移，每个迁移单独成事务
func (r Runner) Up(ctx context.Context, db *pgxpool.Pool) error {
	if r.Dir == "" {
		return errors.New("migrations dir is empty")
	}
	if err := ensureVersionTable(ctx, db); err != nil {
		return err
	}
	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return err
	}

	fsys := os.DirFS(r.Dir)
	pending, err := discover(fsys)
	if err != nil {
		return err
	}
	for _, m := range pending {
		if applied[m.version] {
			continue
		}
		if err := apply(ctx, db, fsys, m); err != nil {
			return err
		}
	}
	return nil
}

func ensureVersionTable(ctx context.Context, db *pgxpool.Pool) error {
	_, err := db.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
        version BIGINT PRIMARY KEY,
        applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    )`)
	return err
}

func appliedVersions(ctx context.Context, db *pgxpool.Pool) (map[int64]bool, error) {
	rows, err := db.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	applied := make(map[int64]bool)
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// discover 收集目录下的 *_up.sql 并按版本升序返回；
// 前缀不是数字的文件跳过
func discover(fsys fs.FS) ([]migration, error) {
	var found []migration
	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		name := filepath.Base(path)
		if !strings.HasSuffix(name, "_up.sql") {
			return nil
		}
		prefix, _, ok := strings.Cut(name, "_")
		if !ok {
			return nil
		}
		version, err := strconv.ParseInt(prefix, 10, 64)
		if err != nil {
			return nil
		}
		found = append(found, migration{version: version, path: path})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(found, func(i, j int) bool { return found[i].version < found[j].version })
	return found, nil
}

// apply 在单个事务里执行迁移 SQL 并登记版本
func apply(ctx context.Context, db *pgxpool.Pool, fsys fs.FS, m migration) error {
	content, err := fs.ReadFile(fsys, m.path)
	if err != nil {
		return err
	}
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, string(content)); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO schema_migrations(version, applied_at) VALUES($1,$2)`,
		m.version, time.Now()); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}
