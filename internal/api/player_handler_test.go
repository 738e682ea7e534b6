package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taoyao-code/dfplayer-server/internal/api/middleware"
	"github.com/taoyao-code/dfplayer-server/internal/app"
	"github.com/taoyao-code/dfplayer-server/internal/dfplayer"
	"github.com/taoyao-code/dfplayer-server/internal/storage/models"
)

// scriptTransport 脚本化串口：每次读窗口弹出一个预置帧
type scriptTransport struct {
	mu      sync.Mutex
	written [][]byte
	script  [][]byte
}

func (s *scriptTransport) Write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(p))
	copy(buf, p)
	s.written = append(s.written, buf)
	return nil
}

func (s *scriptTransport) Available() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.script) == 0 {
		return 0, nil
	}
	return len(s.script[0]), nil
}

func (s *scriptTransport) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.script) == 0 {
		return 0, nil
	}
	n := copy(p, s.script[0])
	s.script = s.script[1:]
	return n, nil
}

func deviceFrame(code byte, data uint16) []byte {
	cs := dfplayer.Checksum(code, 0x00, data)
	return []byte{0x7E, 0xFF, 0x06, code, 0x00, byte(data >> 8), byte(data), byte(cs >> 8), byte(cs), 0xEF}
}

func newTestRouter(t *testing.T, authCfg middleware.AuthConfig, script ...[]byte) (*gin.Engine, *scriptTransport) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tr := &scriptTransport{script: script}
	player := dfplayer.New(tr, dfplayer.WithRetries(1))
	service := app.NewService(player, "/dev/ttyUSB0", zap.NewNop(), nil, nil, nil)
	runner := app.NewPlaylistRunner(service, zap.NewNop(), map[string][]app.PlaylistEntry{
		"morning": {{Folder: 1, Track: 1}},
	})

	r := gin.New()
	RegisterRoutes(r, service, runner, nil, nil, nil,
		authCfg, middleware.RateLimitConfig{}, zap.NewNop())
	return r, tr
}

func doJSON(r *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestPlayerAPI_Play(t *testing.T) {
	r, tr := newTestRouter(t, middleware.AuthConfig{}, deviceFrame(0x41, 0))

	w := doJSON(r, "POST", "/api/player/play", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	tr.mu.Lock()
	defer tr.mu.Unlock()
	require.Len(t, tr.written, 1)
	assert.Equal(t, byte(0x0D), tr.written[0][3])
}

func TestPlayerAPI_SetVolume(t *testing.T) {
	r, tr := newTestRouter(t, middleware.AuthConfig{}, deviceFrame(0x41, 0))

	w := doJSON(r, "PUT", "/api/player/volume", map[string]int{"percent": 50}, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	tr.mu.Lock()
	defer tr.mu.Unlock()
	require.Len(t, tr.written, 1)
	assert.Equal(t, byte(0x06), tr.written[0][3])
	assert.Equal(t, byte(15), tr.written[0][6]) // 50% → 15级
}

func TestPlayerAPI_SetVolumeRejectsOutOfRange(t *testing.T) {
	r, tr := newTestRouter(t, middleware.AuthConfig{})

	w := doJSON(r, "PUT", "/api/player/volume", map[string]int{"percent": 150}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	tr.mu.Lock()
	defer tr.mu.Unlock()
	assert.Empty(t, tr.written)
}

func TestPlayerAPI_PlayTrackNoSuchFile(t *testing.T) {
	r, _ := newTestRouter(t, middleware.AuthConfig{}, deviceFrame(0x40, 0x0006))

	w := doJSON(r, "POST", "/api/player/track", map[string]int{"folder": 1, "track": 7}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "no_such_file", resp["error"])
}

func TestPlayerAPI_PlayTrackZeroAccepted(t *testing.T) {
	// 曲目号0是合法协议值，绑定校验不得把零值当缺失
	r, tr := newTestRouter(t, middleware.AuthConfig{},
		deviceFrame(0x41, 0), deviceFrame(0x41, 0))

	w := doJSON(r, "POST", "/api/player/track", map[string]int{"folder": 1, "track": 0}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(r, "POST", "/api/player/mp3", map[string]int{"track": 0}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	tr.mu.Lock()
	defer tr.mu.Unlock()
	require.Len(t, tr.written, 2)
	assert.Equal(t, byte(0x0F), tr.written[0][3])
	assert.Equal(t, byte(1), tr.written[0][5]) // folder
	assert.Equal(t, byte(0), tr.written[0][6]) // track 0
	assert.Equal(t, byte(0x12), tr.written[1][3])
}

func TestPlayerAPI_DeviceBusyConflict(t *testing.T) {
	r, _ := newTestRouter(t, middleware.AuthConfig{}, deviceFrame(0x40, 0x0000))

	w := doJSON(r, "POST", "/api/player/play", nil, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestPlayerAPI_Status(t *testing.T) {
	r, _ := newTestRouter(t, middleware.AuthConfig{},
		deviceFrame(0x42, 0x0001),
		deviceFrame(0x43, 0x0014),
		deviceFrame(0x42, 0x0001),
	)

	w := doJSON(r, "GET", "/api/player/status", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "playing", resp["status"])
	assert.Equal(t, true, resp["playing"])
	assert.Equal(t, float64(20), resp["volume"])
}

func TestPlayerAPI_InvalidMedia(t *testing.T) {
	r, _ := newTestRouter(t, middleware.AuthConfig{})

	w := doJSON(r, "GET", "/api/player/media/tape/files", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPlayerAPI_Playlists(t *testing.T) {
	r, _ := newTestRouter(t, middleware.AuthConfig{})

	w := doJSON(r, "GET", "/api/playlists", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Playlists []string `json:"playlists"`
		Running   string   `json:"running"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []string{"morning"}, resp.Playlists)
	assert.Empty(t, resp.Running)

	w = doJSON(r, "GET", "/api/playlists/unknown", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPlayerAPI_AuthRequired(t *testing.T) {
	cfg := middleware.AuthConfig{Enabled: true, APIKeys: []string{"sk_test_12345678"}}
	r, _ := newTestRouter(t, cfg, deviceFrame(0x41, 0))

	w := doJSON(r, "POST", "/api/player/play", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(r, "POST", "/api/player/play", nil, map[string]string{"X-API-Key": "wrong"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(r, "POST", "/api/player/play", nil, map[string]string{"X-API-Key": "sk_test_12345678"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPlayerAPI_BearerToken(t *testing.T) {
	cfg := middleware.AuthConfig{Enabled: true, APIKeys: []string{"sk_test_12345678"}}
	r, _ := newTestRouter(t, cfg, deviceFrame(0x41, 0))

	w := doJSON(r, "POST", "/api/player/play", nil, map[string]string{"Authorization": "Bearer sk_test_12345678"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPlayerAPI_RateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tr := &scriptTransport{}
	player := dfplayer.New(tr, dfplayer.WithRetries(1))
	service := app.NewService(player, "/dev/ttyUSB0", zap.NewNop(), nil, nil, nil)

	var mu sync.Mutex
	decisions := []bool{}

	r := gin.New()
	RegisterRoutes(r, service, nil, nil, nil, nil,
		middleware.AuthConfig{},
		middleware.RateLimitConfig{
			Enabled: true, RPS: 1, Burst: 1,
			Hook: func(allowed bool) {
				mu.Lock()
				decisions = append(decisions, allowed)
				mu.Unlock()
			},
		},
		zap.NewNop())

	// 第一个请求消耗掉桶里唯一的令牌
	w := doJSON(r, "GET", "/api/player/volume", nil, nil)
	assert.NotEqual(t, http.StatusTooManyRequests, w.Code)

	w = doJSON(r, "GET", "/api/player/volume", nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true, false}, decisions)
}

func TestPlayerAPI_StartPlaylistOutlivesRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tr := &scriptTransport{script: [][]byte{
		deviceFrame(0x41, 0), deviceFrame(0x41, 0), deviceFrame(0x41, 0),
	}}
	busy := dfplayer.NewBusyTracker(true) // 高电平 = 空闲，列表可立即推进
	player := dfplayer.New(tr, dfplayer.WithRetries(1), dfplayer.WithBusyTracker(busy))
	service := app.NewService(player, "/dev/ttyUSB0", zap.NewNop(), nil, nil, nil)
	runner := app.NewPlaylistRunner(service, zap.NewNop(), map[string][]app.PlaylistEntry{
		"demo": {{Folder: 1, Track: 1}, {Folder: 1, Track: 2}, {Folder: 2, Track: 3}},
	})

	r := gin.New()
	RegisterRoutes(r, service, runner, nil, nil, nil,
		middleware.AuthConfig{}, middleware.RateLimitConfig{}, zap.NewNop())

	// 真实HTTP服务：请求上下文在响应写回后即被取消，
	// 列表执行协程必须不受影响地把三条曲目播完
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/playlists/demo/start", "application/json", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		tr.mu.Lock()
		n := len(tr.written)
		tr.mu.Unlock()
		if n == 3 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()
	require.Len(t, tr.written, 3, "all playlist entries must be sent after the request ended")
	want := []struct{ folder, track byte }{{1, 1}, {1, 2}, {2, 3}}
	for i, w := range want {
		assert.Equal(t, byte(0x0F), tr.written[i][3], "entry %d command", i)
		assert.Equal(t, w.folder, tr.written[i][5], "entry %d folder", i)
		assert.Equal(t, w.track, tr.written[i][6], "entry %d track", i)
	}
}

// fakeTrackCatalog 内存曲目目录
type fakeTrackCatalog struct {
	mu     sync.Mutex
	tracks map[string]models.Track
}

func newFakeTrackCatalog() *fakeTrackCatalog {
	return &fakeTrackCatalog{tracks: map[string]models.Track{}}
}

func catalogKey(media string, folder, trackNo int32) string {
	return fmt.Sprintf("%s/%d/%d", media, folder, trackNo)
}

func (f *fakeTrackCatalog) UpsertTrack(ctx context.Context, t *models.Track) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracks[catalogKey(t.Media, t.Folder, t.TrackNo)] = *t
	return nil
}

func (f *fakeTrackCatalog) GetTrack(ctx context.Context, media string, folder, trackNo int32) (*models.Track, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tracks[catalogKey(media, folder, trackNo)]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (f *fakeTrackCatalog) ListTracks(ctx context.Context, media string, limit int) ([]models.Track, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Track
	for _, t := range f.tracks {
		if t.Media == media {
			out = append(out, t)
		}
	}
	return out, nil
}

func newCatalogRouter(t *testing.T) (*gin.Engine, *fakeTrackCatalog) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tr := &scriptTransport{}
	player := dfplayer.New(tr, dfplayer.WithRetries(1))
	service := app.NewService(player, "/dev/ttyUSB0", zap.NewNop(), nil, nil, nil)
	catalog := newFakeTrackCatalog()

	r := gin.New()
	RegisterRoutes(r, service, nil, nil, nil, catalog,
		middleware.AuthConfig{}, middleware.RateLimitConfig{}, zap.NewNop())
	return r, catalog
}

func TestPlayerAPI_RegisterAndLookupTrack(t *testing.T) {
	r, catalog := newCatalogRouter(t)

	title := "morning chime"
	w := doJSON(r, "PUT", "/api/tracks", map[string]interface{}{
		"media": "sdcard", "folder": 1, "track_no": 12, "title": title,
	}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	stored, err := catalog.GetTrack(context.Background(), "sdcard", 1, 12)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.NotNil(t, stored.Title)
	assert.Equal(t, title, *stored.Title)

	w = doJSON(r, "GET", "/api/tracks/sdcard/1/12", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got models.Track
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, int32(12), got.TrackNo)

	w = doJSON(r, "GET", "/api/tracks/sdcard/1/99", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPlayerAPI_RegisterTrackRejectsBadMedia(t *testing.T) {
	r, _ := newCatalogRouter(t)

	w := doJSON(r, "PUT", "/api/tracks", map[string]interface{}{
		"media": "tape", "folder": 1, "track_no": 1,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPlayerAPI_CORSPreflight(t *testing.T) {
	r, _ := newTestRouter(t, middleware.AuthConfig{})

	req := httptest.NewRequest("OPTIONS", "/api/player/play", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "X-API-Key")
}
