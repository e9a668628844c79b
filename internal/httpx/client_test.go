package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ggonzalez94/edufi-cli/internal/cache"
	clierr "github.com/ggonzalez94/edufi-cli/internal/errors"
)

func TestDoJSONRetriesServerError(t *testing.T) {
	var count int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&count, 1)
		if n == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"x"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := New(2*time.Second, 1)
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	var out map[string]any
	if _, err := client.DoJSON(context.Background(), req, &out); err != nil {
		t.Fatalf("DoJSON failed: %v", err)
	}
	if out["ok"] != true {
		t.Fatalf("unexpected response: %#v", out)
	}
}

func TestDoJSONMapsStatusCodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth":
			w.WriteHeader(http.StatusForbidden)
		case "/limited":
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := New(2*time.Second, 0)
	cases := map[string]clierr.Code{
		"/auth":    clierr.CodeAuth,
		"/limited": clierr.CodeRateLimited,
		"/missing": clierr.CodeUnsupported,
	}
	for path, want := range cases {
		var out map[string]any
		err := GetJSON(context.Background(), client, srv.URL+path, nil, &out)
		if !clierr.Is(err, want) {
			t.Fatalf("%s: expected code %d, got %v", path, want, err)
		}
	}
}

func TestDoJSONHonoursLocalLimiter(t *testing.T) {
	var count int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&count, 1)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := New(2*time.Second, 0).WithLimiter(cache.NewLimiter(2, time.Hour))
	for i := 0; i < 2; i++ {
		var out map[string]any
		if err := GetJSON(context.Background(), client, srv.URL, nil, &out); err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
	}
	var out map[string]any
	err := GetJSON(context.Background(), client, srv.URL, nil, &out)
	if !clierr.Is(err, clierr.CodeRateLimited) {
		t.Fatalf("expected local rate limit, got %v", err)
	}
	if got := atomic.LoadInt32(&count); got != 2 {
		t.Fatalf("expected limited request not to reach the server, got %d hits", got)
	}
}
