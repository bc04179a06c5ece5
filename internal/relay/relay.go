package relay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/rzbill/flare/pkg/event"
	logpkg "github.com/rzbill/flare/pkg/log"
	"github.com/rzbill/flare/pkg/logger"
)

// maxLineBytes bounds a single input line.
const maxLineBytes = 1 << 20

// Options configure a Relay.
type Options struct {
	// Filter is an optional CEL expression; events it rejects never reach
	// the pipeline.
	Filter string
	Logger logpkg.Logger
}

// Relay forwards NDJSON events from a reader into an EventLogger.
type Relay struct {
	pipeline *logger.EventLogger
	filter   Filter
	logger   logpkg.Logger
}

// New builds a Relay around an existing pipeline, compiling the filter once.
func New(pipeline *logger.EventLogger, opts Options) (*Relay, error) {
	if pipeline == nil {
		return nil, errors.New("relay: pipeline is required")
	}
	f, err := NewFilter(opts.Filter)
	if err != nil {
		return nil, fmt.Errorf("compile filter: %w", err)
	}
	lg := opts.Logger
	if lg == nil {
		lg = logpkg.NewNopLogger()
	}
	return &Relay{pipeline: pipeline, filter: f, logger: lg.WithComponent("relay")}, nil
}

// line is the accepted input shape. Only name is required; time overrides
// the enqueue stamp when present.
type line struct {
	Name     string                 `json:"name"`
	User     *event.User            `json:"user,omitempty"`
	Value    interface{}            `json:"value,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Time     int64                  `json:"time,omitempty"`
}

// Stats counts what one Run consumed.
type Stats struct {
	Lines     int
	Forwarded int
	Filtered  int
	Malformed int
}

// Run reads in until EOF or ctx cancellation, forwarding each parsed event
// through the filter into the pipeline. Blank lines are ignored, malformed
// lines are counted and skipped.
func (r *Relay) Run(ctx context.Context, in io.Reader) (Stats, error) {
	var st Stats
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		select {
		case <-ctx.Done():
			return st, ctx.Err()
		default:
		}
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		st.Lines++
		var ln line
		if err := json.Unmarshal(raw, &ln); err != nil || ln.Name == "" {
			st.Malformed++
			r.logger.Warn("skipping malformed line", logpkg.Int("line", st.Lines))
			continue
		}
		ev := event.New(ln.Name, ln.User, ln.Value, ln.Metadata)
		if ln.Time > 0 {
			ev.Time = ln.Time
		}
		if !r.filter.Match(ev) {
			st.Filtered++
			continue
		}
		r.pipeline.Log(ev)
		st.Forwarded++
	}
	if err := sc.Err(); err != nil {
		return st, err
	}
	r.logger.Info("input drained",
		logpkg.Int("lines", st.Lines),
		logpkg.Int("forwarded", st.Forwarded),
		logpkg.Int("filtered", st.Filtered),
		logpkg.Int("malformed", st.Malformed),
	)
	return st, nil
}
