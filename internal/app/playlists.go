package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var (
	// ErrPlaylistNotFound 指定名称的播放列表不存在
	ErrPlaylistNotFound = errors.New("playlist not found")
	// ErrPlaylistRunning 已有播放列表在执行
	ErrPlaylistRunning = errors.New("a playlist is already running")
)

const playlistPollInterval = 500 * time.Millisecond

// PlaylistEntry 播放列表中的一项
type PlaylistEntry struct {
	Folder int `yaml:"folder" json:"folder"`
	Track  int `yaml:"track" json:"track"`
}

// playlistFile 播放列表配置文件结构
type playlistFile struct {
	Playlists map[string][]PlaylistEntry `yaml:"playlists"`
}

// LoadPlaylists 从 YAML 文件加载命名播放列表
func LoadPlaylists(path string) (map[string][]PlaylistEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read playlists: %w", err)
	}
	var f playlistFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse playlists: %w", err)
	}
	if f.Playlists == nil {
		f.Playlists = map[string][]PlaylistEntry{}
	}
	return f.Playlists, nil
}

// PlaylistRunner 按顺序执行命名播放列表：
// 逐项下发播放命令，轮询在播标志等待曲目结束后再播下一项。
// 同一时刻最多执行一个列表。
type PlaylistRunner struct {
	service   *Service
	logger    *zap.Logger
	playlists map[string][]PlaylistEntry

	mu      sync.Mutex
	cancel  context.CancelFunc
	current string
}

// NewPlaylistRunner 创建播放列表执行器
func NewPlaylistRunner(service *Service, logger *zap.Logger, playlists map[string][]PlaylistEntry) *PlaylistRunner {
	if playlists == nil {
		playlists = map[string][]PlaylistEntry{}
	}
	return &PlaylistRunner{
		service:   service,
		logger:    logger,
		playlists: playlists,
	}
}

// Names 所有播放列表名称（排序后返回）
func (r *PlaylistRunner) Names() []string {
	names := make([]string, 0, len(r.playlists))
	for name := range r.playlists {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Entries 指定播放列表的内容
func (r *PlaylistRunner) Entries(name string) ([]PlaylistEntry, error) {
	entries, ok := r.playlists[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPlaylistNotFound, name)
	}
	return entries, nil
}

// Current 正在执行的播放列表名称，空串表示空闲
func (r *PlaylistRunner) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Start 开始执行指定播放列表；已有列表在执行时返回 ErrPlaylistRunning
func (r *PlaylistRunner) Start(ctx context.Context, name string) error {
	entries, ok := r.playlists[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPlaylistNotFound, name)
	}

	r.mu.Lock()
	if r.cancel != nil {
		r.mu.Unlock()
		return ErrPlaylistRunning
	}
	// 执行协程的生命周期长于触发它的HTTP请求：
	// 剥离取消信号，仅保留请求上下文携带的值，停止只认 Stop()
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel
	r.current = name
	r.mu.Unlock()

	go r.run(runCtx, name, entries)
	return nil
}

// Stop 中止当前播放列表（空闲时为空操作）
func (r *PlaylistRunner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *PlaylistRunner) finish() {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.current = ""
	r.mu.Unlock()
}

func (r *PlaylistRunner) run(ctx context.Context, name string, entries []PlaylistEntry) {
	defer r.finish()

	r.logger.Info("playlist started", zap.String("playlist", name), zap.Int("entries", len(entries)))
	for i, entry := range entries {
		if ctx.Err() != nil {
			r.logger.Info("playlist aborted", zap.String("playlist", name), zap.Int("position", i))
			return
		}
		if err := r.service.PlayTrack(ctx, entry.Folder, entry.Track); err != nil {
			r.logger.Warn("playlist entry failed",
				zap.String("playlist", name),
				zap.Int("folder", entry.Folder),
				zap.Int("track", entry.Track),
				zap.Error(err))
			continue
		}
		if !r.waitForIdle(ctx) {
			r.logger.Info("playlist aborted", zap.String("playlist", name), zap.Int("position", i))
			return
		}
	}
	r.logger.Info("playlist finished", zap.String("playlist", name))
}

// waitForIdle 等待当前曲目播完；返回 false 表示被取消
func (r *PlaylistRunner) waitForIdle(ctx context.Context) bool {
	// 命令下发后给设备一点起播时间，避免立刻读到空闲
	select {
	case <-ctx.Done():
		return false
	case <-time.After(playlistPollInterval):
	}
	for {
		playing, err := r.service.Playing()
		if err != nil {
			r.logger.Warn("playing probe failed", zap.Error(err))
			return ctx.Err() == nil
		}
		if !playing {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(playlistPollInterval):
		}
	}
}
