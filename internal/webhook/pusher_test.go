package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestPusher_SendJSON_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") == "key" && r.Header.Get("X-Signature") != "" {
			w.WriteHeader(200)
			_, _ = w.Write([]byte(`{"ok":true}`))
			return
		}
		w.WriteHeader(401)
	}))
	defer ts.Close()

	p := NewPusher(nil, "key", "secret")
	code, body, err := p.SendJSON(context.Background(), ts.URL+"/hook", map[string]any{"x": 1})
	if err != nil || code != 200 {
		t.Fatalf("unexpected: code=%d err=%v", code, err)
	}
	if string(body) == "" {
		t.Fatalf("empty body")
	}
}

func TestPusher_SendJSON_RetriesOn5xx(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(502)
			return
		}
		w.WriteHeader(200)
	}))
	defer ts.Close()

	p := NewPusher(nil, "key", "secret")
	p.Backoff = []time.Duration{time.Millisecond}
	code, _, err := p.SendJSON(context.Background(), ts.URL+"/hook", map[string]any{})
	if err != nil || code != 200 {
		t.Fatalf("expected eventual success, code=%d err=%v", code, err)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestPusher_SendJSON_NoRetryOn4xx(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(400)
	}))
	defer ts.Close()

	p := NewPusher(nil, "key", "secret")
	code, _, err := p.SendJSON(context.Background(), ts.URL+"/hook", map[string]any{})
	if err != nil || code != 400 {
		t.Fatalf("4xx must be returned without error wrapping: code=%d err=%v", code, err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("4xx must not be retried, got %d attempts", calls)
	}
}
