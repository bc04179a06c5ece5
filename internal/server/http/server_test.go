package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rzbill/flare/internal/collector"
	cfgpkg "github.com/rzbill/flare/internal/config"
	logpkg "github.com/rzbill/flare/pkg/log"
	pebblestore "github.com/rzbill/flare/pkg/storage/pebble"
)

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.Archive.SweepIntervalMs = 3_600_000
	col, err := collector.Open(collector.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeNever, Config: cfg})
	if err != nil {
		t.Fatalf("open collector: %v", err)
	}
	t.Cleanup(func() { _ = col.Close() })
	logger, _ := logpkg.ApplyConfig(&logpkg.Config{Level: "error", Format: "text"})
	return New(col, logger, opts)
}

func TestHealthHandler(t *testing.T) {
	s := newTestServer(t, Options{})
	req := httptest.NewRequest(http.MethodGet, "/v1/healthz", nil)
	w := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(w, req)
	if w.Code != 200 {
		t.Fatalf("status: %d", w.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "ok" {
		t.Fatalf("status field: %v", resp["status"])
	}
}

func TestEventsHandlerAccepts(t *testing.T) {
	s := newTestServer(t, Options{})
	body := `{"events":[{"name":"click","time":1}],"metadata":{"sdkType":"flare-go"},"time":2}`
	req := httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status: %d body: %s", w.Code, w.Body.String())
	}
	var resp ingestResp
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.Events != 1 || resp.ID == "" {
		t.Fatalf("resp: %+v", resp)
	}
}

func TestEventsHandlerRejectsBadJSON(t *testing.T) {
	s := newTestServer(t, Options{})
	req := httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader("{nope"))
	w := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: %d", w.Code)
	}
}

func TestEventsHandlerMethodNotAllowed(t *testing.T) {
	s := newTestServer(t, Options{})
	req := httptest.NewRequest(http.MethodGet, "/v1/events", nil)
	w := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status: %d", w.Code)
	}
}

func TestFailureInjection(t *testing.T) {
	s := newTestServer(t, Options{FailEveryN: 2, FailStatus: 500})
	body := `{"events":[{"name":"a","time":1}]}`
	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader(body))
		w := httptest.NewRecorder()
		s.srv.Handler.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	want := []int{http.StatusAccepted, 500, http.StatusAccepted, 500}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("codes = %v, want %v", codes, want)
		}
	}
}

func TestBeaconHandlerAlways204(t *testing.T) {
	s := newTestServer(t, Options{})

	req := httptest.NewRequest(http.MethodPost, "/v1/beacon?k=client-abc", strings.NewReader(`{"events":[{"name":"bye","time":1}]}`))
	w := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status: %d", w.Code)
	}

	// Invalid payloads are swallowed: the sender is already gone.
	req = httptest.NewRequest(http.MethodPost, "/v1/beacon", strings.NewReader("junk"))
	w = httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status: %d", w.Code)
	}

	// Only the valid one was archived.
	if entries, _ := s.col.Archive().Stats(); entries != 1 {
		t.Fatalf("archived %d entries, want 1", entries)
	}
}

func TestCORSPreflightAndOrigins(t *testing.T) {
	s := newTestServer(t, Options{AllowedOrigins: []string{"https://app.example.com"}})

	req := httptest.NewRequest(http.MethodOptions, "/v1/events", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight status: %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("origin header: %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/v1/events", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("disallowed origin echoed: %q", got)
	}
}

func TestTailBacklog(t *testing.T) {
	s := newTestServer(t, Options{})
	for i := 0; i < 3; i++ {
		body := `{"events":[{"name":"e","time":1}]}`
		req := httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader(body))
		w := httptest.NewRecorder()
		s.srv.Handler.ServeHTTP(w, req)
		if w.Code != http.StatusAccepted {
			t.Fatalf("seed ingest status: %d", w.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/events/tail?limit=2", nil)
	w := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(w, req)
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type: %q", ct)
	}
	frames := strings.Count(w.Body.String(), "data: ")
	if frames != 2 {
		t.Fatalf("frames = %d, want 2:\n%s", frames, w.Body.String())
	}
}
