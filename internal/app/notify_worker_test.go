package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taoyao-code/dfplayer-server/internal/dfplayer"
	"github.com/taoyao-code/dfplayer-server/internal/webhook"
)

type fakeCatalog struct {
	mu      sync.Mutex
	played  []int32
	deleted []string
}

func (f *fakeCatalog) MarkPlayed(_ context.Context, _ string, trackNo int32, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.played = append(f.played, trackNo)
	return nil
}

func (f *fakeCatalog) DeleteTracks(_ context.Context, media string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, media)
	return nil
}

func TestNotifyWorker_DispatchTrackDone(t *testing.T) {
	svc, _, history, sink := newTestService(t, replyFrame(0x3D, 12))
	catalog := &fakeCatalog{}
	w := NewNotifyWorker(svc, zap.NewNop(), nil, history, catalog, sink)

	w.poll(context.Background())

	require.Len(t, history.logs, 1)
	assert.Equal(t, "notify:track_done", history.logs[0])

	require.Len(t, catalog.played, 1)
	assert.Equal(t, int32(12), catalog.played[0])

	require.Len(t, sink.events, 1)
	assert.Equal(t, webhook.EventTrackFinished, sink.events[0].EventType)
	assert.Equal(t, "sdcard", sink.events[0].Data["media"])
}

func TestNotifyWorker_MediaEjectedCleansCatalog(t *testing.T) {
	svc, _, _, sink := newTestService(t, replyFrame(0x3B, uint16(dfplayer.MediaSDCard)))
	catalog := &fakeCatalog{}
	w := NewNotifyWorker(svc, zap.NewNop(), nil, nil, catalog, sink)

	w.poll(context.Background())

	require.Len(t, catalog.deleted, 1)
	assert.Equal(t, "sdcard", catalog.deleted[0])

	require.Len(t, sink.events, 1)
	assert.Equal(t, webhook.EventMediaEjected, sink.events[0].EventType)
}

func TestNotifyWorker_NoNotificationIsQuiet(t *testing.T) {
	svc, _, history, sink := newTestService(t)
	w := NewNotifyWorker(svc, zap.NewNop(), nil, history, nil, sink)

	w.poll(context.Background())

	assert.Empty(t, history.logs)
	assert.Empty(t, sink.events)
}

func TestNotifyWorker_StopsOnCancel(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	w := NewNotifyWorker(svc, zap.NewNop(), nil, nil, nil, nil)
	w.interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}
