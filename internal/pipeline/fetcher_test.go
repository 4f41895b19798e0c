package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/alma/internal/model"
)

func noSleep(t *testing.T) {
	t.Helper()
	orig := fetchSleepFunc
	fetchSleepFunc = func(context.Context, time.Duration) error { return nil }
	t.Cleanup(func() { fetchSleepFunc = orig })
}

// flakyServer answers with the given status codes in order, then 200
func flakyServer(t *testing.T, codes ...int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(hits.Add(1))
		if n <= len(codes) {
			w.WriteHeader(codes[n-1])
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Last-Modified", "Tue, 01 Sep 2026 10:00:00 GMT")
		_, _ = io.WriteString(w, "<html><body>Youth bail support</body></html>")
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestFetch_RecordsMeta(t *testing.T) {
	srv, _ := flakyServer(t)

	f := NewFetcherFromConfig(model.FetchConfig{Timeout: 5 * time.Second, UserAgent: "alma-test", MaxBodyBytes: 1 << 20})
	res, err := f.Fetch(context.Background(), srv.URL+"/programs/bail-support")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if !strings.Contains(res.HTML, "Youth bail support") {
		t.Errorf("unexpected body %q", res.HTML)
	}
	if res.Meta.StatusCode != http.StatusOK || res.Meta.Renderer != "http" {
		t.Errorf("unexpected meta %+v", res.Meta)
	}
	if res.Meta.LastModified == "" {
		t.Error("expected Last-Modified to be recorded")
	}
	if res.Subject != "bail support" {
		t.Errorf("expected subject from final path, got %q", res.Subject)
	}
}

func TestFetch_TruncatesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, strings.Repeat("a", 4096))
	}))
	defer srv.Close()

	f := NewFetcher(5*time.Second, "alma-test", 100, false, "", "", "")
	res, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(res.HTML) != 100 {
		t.Errorf("expected body capped at 100 bytes, got %d", len(res.HTML))
	}
}

func TestFetchWithRetry(t *testing.T) {
	tests := []struct {
		name     string
		codes    []int
		attempts int
		wantErr  bool
		wantHits int32
	}{
		{"ok first time", nil, 3, false, 1},
		{"two 503s then ok", []int{503, 503}, 3, false, 3},
		{"429 is retried", []int{429}, 3, false, 2},
		{"404 is final", []int{404}, 3, true, 1},
		{"403 is final", []int{403}, 3, true, 1},
		{"gives up", []int{500, 502, 503}, 3, true, 3},
		{"single attempt", []int{503}, 1, true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			noSleep(t)
			srv, hits := flakyServer(t, tt.codes...)

			f := NewFetcherFromConfig(model.FetchConfig{
				Timeout:      5 * time.Second,
				UserAgent:    "alma-test",
				MaxBodyBytes: 1 << 20,
				MaxAttempts:  tt.attempts,
			})
			_, err := f.FetchWithRetry(context.Background(), srv.URL)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FetchWithRetry error = %v, wantErr %v", err, tt.wantErr)
			}
			if got := hits.Load(); got != tt.wantHits {
				t.Errorf("expected %d requests, got %d", tt.wantHits, got)
			}
		})
	}
}

func TestFetchWithRetry_StatusErrorSurvivesWrapping(t *testing.T) {
	noSleep(t)
	srv, _ := flakyServer(t, 503, 503, 503)

	f := NewFetcher(5*time.Second, "alma-test", 1<<20, false, "", "", "")
	_, err := f.FetchWithRetry(context.Background(), srv.URL)

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError in chain, got %v", err)
	}
	if statusErr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", statusErr.Code)
	}
	if !strings.Contains(err.Error(), "giving up after 3 attempts") {
		t.Errorf("unexpected error text %q", err)
	}
}

func TestFetchWithRetry_StopsOnCancel(t *testing.T) {
	srv, hits := flakyServer(t, 503, 503)

	// The real wait, with the context cancelled mid-backoff
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	f := NewFetcher(5*time.Second, "alma-test", 1<<20, false, "", "", "")
	start := time.Now()
	_, err := f.FetchWithRetry(ctx, srv.URL)
	if err == nil {
		t.Fatal("expected error after cancellation")
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("backoff ignored cancellation, took %v", elapsed)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("expected no request after cancel, got %d", got)
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Errorf("expected the last status error to be kept, got %v", err)
	}
}

func TestSleepCtx(t *testing.T) {
	if err := sleepCtx(context.Background(), time.Millisecond); err != nil {
		t.Errorf("uncancelled wait failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepCtx(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestIsRetryableFetchError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"500", &StatusError{Code: 500, Status: "500 Internal Server Error"}, true},
		{"wrapped 502", fmt.Errorf("giving up: %w", &StatusError{Code: 502}), true},
		{"429", &StatusError{Code: 429}, true},
		{"404", &StatusError{Code: 404}, false},
		{"401", &StatusError{Code: 401}, false},
		{"transport", &transportError{err: errors.New("connection refused")}, true},
		{"plain", errors.New("read body: unexpected EOF"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryableFetchError(tt.err); got != tt.want {
				t.Errorf("isRetryableFetchError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
