package migrate

import (
	"testing"
	"testing/fstest"
)

func TestDiscover(t *testing.T) {
	fsys := fstest.MapFS{
		"0002_device_notifications_up.sql":   {Data: []byte("CREATE TABLE b()")},
		"0001_play_log_up.sql":               {Data: []byte("CREATE TABLE a()")},
		"0010_tracks_up.sql":                 {Data: []byte("CREATE TABLE c()")},
		"0001_play_log_down.sql":             {Data: []byte("DROP TABLE a")},
		"notes.md":                           {Data: []byte("x")},
		"bad_prefix_up.sql":                  {Data: []byte("x")},
	}

	found, err := discover(fsys)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(found) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(found))
	}
	want := []int64{1, 2, 10}
	for i, m := range found {
		if m.version != want[i] {
			t.Errorf("position %d: expected version %d, got %d", i, want[i], m.version)
		}
	}
}

func TestDiscover_Empty(t *testing.T) {
	found, err := discover(fstest.MapFS{})
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(found) != 0 {
		t.Fatalf("expected no migrations, got %d", len(found))
	}
}
