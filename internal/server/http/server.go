package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rzbill/flare/internal/collector"
	"github.com/rzbill/flare/pkg/log"
	"github.com/rzbill/flare/pkg/metadata"
)

// Options tunes the collector's HTTP surface.
type Options struct {
	// AllowedOrigins restricts CORS. Empty allows any origin.
	AllowedOrigins []string
	// FailEveryN, when positive, rejects every Nth ingest with FailStatus.
	// Operator tooling for exercising client retry and spool paths.
	FailEveryN int
	FailStatus int
	// MetricsHandler serves GET /metrics when set.
	MetricsHandler http.Handler
}

// Server is the collector's HTTP front.
type Server struct {
	col    *collector.Collector
	logger log.Logger
	opts   Options
	srv    *http.Server
	lis    net.Listener

	ingests atomic.Int64
}

// New builds a Server over col.
func New(col *collector.Collector, logger log.Logger, opts Options) *Server {
	mux := http.NewServeMux()
	s := &Server{col: col, logger: logger.WithComponent("http"), opts: opts}
	s.srv = &http.Server{Handler: s.cors(mux)}
	mux.HandleFunc("/v1/events", s.handleEvents)
	mux.HandleFunc("/v1/beacon", s.handleBeacon)
	mux.HandleFunc("/v1/events/tail", s.handleTailSSE)
	mux.HandleFunc("/v1/healthz", s.handleHealth)
	if opts.MetricsHandler != nil {
		mux.Handle("/metrics", opts.MetricsHandler)
	}
	return s
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		return err
	}
}

// Close releases the listener.
func (s *Server) Close() {
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

// Addr returns the bound address, empty before ListenAndServe.
func (s *Server) Addr() string {
	if s.lis == nil {
		return ""
	}
	return s.lis.Addr().String()
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := "*"
		if len(s.opts.AllowedOrigins) > 0 {
			origin = ""
			got := r.Header.Get("Origin")
			for _, allowed := range s.opts.AllowedOrigins {
				if allowed == got {
					origin = got
					break
				}
			}
		}
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Flare-Key, X-Flare-Client-Time")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.col.CheckHealth(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "not_serving"})
		return
	}
	entries, bytes := s.col.Archive().Stats()
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":         "ok",
		"version":        metadata.Version,
		"archiveEntries": entries,
		"archiveBytes":   bytes,
	})
}

type ingestResp struct {
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
	Events  int    `json:"events,omitempty"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	n := s.ingests.Add(1)
	if s.opts.FailEveryN > 0 && n%int64(s.opts.FailEveryN) == 0 {
		status := s.opts.FailStatus
		if status == 0 {
			status = http.StatusServiceUnavailable
		}
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(ingestResp{Success: false})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, collector.MaxPayloadBytes))
	if err != nil {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		return
	}
	rid, events, err := s.col.Ingest(r.Context(), body, time.Now().UnixMilli())
	if err != nil {
		s.logger.Warn("ingest rejected", log.Err(err), log.Str("remote", r.RemoteAddr))
		w.WriteHeader(statusFor(err))
		_ = json.NewEncoder(w).Encode(ingestResp{Success: false})
		return
	}

	resp := ingestResp{Success: true, Events: events}
	if !rid.IsZero() {
		resp.ID = rid.String()
	}
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(resp)
}

// handleBeacon accepts the teardown fallback. The sender cannot react, so
// the response is always 204; invalid payloads are only logged.
func (s *Server) handleBeacon(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, collector.MaxPayloadBytes))
	if err == nil {
		if _, _, ierr := s.col.Ingest(r.Context(), body, time.Now().UnixMilli()); ierr != nil {
			s.logger.Warn("beacon payload rejected", log.Err(ierr), log.Str("remote", r.RemoteAddr))
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func statusFor(err error) int {
	if errors.Is(err, collector.ErrBadPayload) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
