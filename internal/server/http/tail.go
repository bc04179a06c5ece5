package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rzbill/flare/internal/archive"
	"github.com/rzbill/flare/pkg/id"
)

const (
	defaultTailLimit = 20
	maxTailLimit     = 1000
	followPoll       = 15 * time.Second
)

// tailItem is one SSE frame on /v1/events/tail.
type tailItem struct {
	ID         string          `json:"id"`
	ReceivedAt int64           `json:"receivedAt"`
	Events     int             `json:"events"`
	Batch      json.RawMessage `json:"batch"`
}

type sseSink struct {
	w http.ResponseWriter
}

func (s sseSink) Send(it tailItem) error {
	if _, err := s.w.Write([]byte("data: ")); err != nil {
		return err
	}
	if err := json.NewEncoder(s.w).Encode(it); err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("\n")); err != nil {
		return err
	}
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

// handleTailSSE streams recent archive entries, oldest first, then follows
// new appends while the client stays connected and follow=true.
func (s *Server) handleTailSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := defaultTailLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxTailLimit {
		limit = maxTailLimit
	}
	follow := r.URL.Query().Get("follow") == "true"

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sink := sseSink{w: w}
	a := s.col.Archive()

	// Backlog: newest N entries, emitted in chronological order.
	recent, _ := a.Read(archive.ReadOptions{Reverse: true, Limit: limit})
	var cursor id.ID
	for i := len(recent) - 1; i >= 0; i-- {
		if err := sink.Send(entryItem(recent[i])); err != nil {
			return
		}
	}
	if len(recent) > 0 {
		cursor = recent[0].ID // newest
	}
	if !follow {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		default:
		}
		a.WaitForAppend(followPoll)

		opts := archive.ReadOptions{}
		if !cursor.IsZero() {
			opts.Start = cursor
		}
		entries, _ := a.Read(opts)
		for _, e := range entries {
			if e.ID == cursor {
				continue // Start is inclusive
			}
			if err := sink.Send(entryItem(e)); err != nil {
				return
			}
			cursor = e.ID
		}
	}
}

func entryItem(e archive.Entry) tailItem {
	return tailItem{
		ID:         e.ID.String(),
		ReceivedAt: e.ReceivedAt,
		Events:     e.Events,
		Batch:      json.RawMessage(e.Payload),
	}
}
