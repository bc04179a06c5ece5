// Package lifecycle delivers application-lifetime signals to the pipeline.
//
// The pipeline never watches the process itself; it subscribes to a Source
// and reacts: Loaded arms the warm-up flushes, the other signals force a
// terminating flush while there is still a chance to run one.
package lifecycle

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// Signal is an application lifetime transition.
type Signal int

const (
	// Loaded fires when the host application has finished starting.
	Loaded Signal = iota
	// VisibilityLost fires when the application is no longer observable
	// (tab hidden, window minimized).
	VisibilityLost
	// Background fires when the application moves to the background.
	Background
	// Unload fires when the process is about to end.
	Unload
)

// String returns the signal name.
func (s Signal) String() string {
	switch s {
	case Loaded:
		return "loaded"
	case VisibilityLost:
		return "visibility_lost"
	case Background:
		return "background"
	case Unload:
		return "unload"
	default:
		return "unknown"
	}
}

// Terminal reports whether the process may not get another chance to flush
// after this signal.
func (s Signal) Terminal() bool {
	return s != Loaded
}

// Source emits lifecycle signals to subscribers.
type Source interface {
	// Subscribe registers fn and returns a cancel func. fn is invoked
	// synchronously on the emitting goroutine.
	Subscribe(fn func(Signal)) (cancel func())
}

// Signals is a manual fan-out Source. Host applications emit transitions
// explicitly; tests drive the pipeline through it.
type Signals struct {
	mu   sync.Mutex
	seq  int
	subs map[int]func(Signal)
}

// NewSignals creates an empty source.
func NewSignals() *Signals {
	return &Signals{subs: make(map[int]func(Signal))}
}

// Subscribe implements Source.
func (s *Signals) Subscribe(fn func(Signal)) func() {
	s.mu.Lock()
	id := s.seq
	s.seq++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Emit delivers sig to all current subscribers.
func (s *Signals) Emit(sig Signal) {
	s.mu.Lock()
	fns := make([]func(Signal), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(sig)
	}
}

// OSSource adapts SIGINT/SIGTERM to Unload for daemon embeddings. Signal
// watching starts on the first Subscribe.
type OSSource struct {
	signals *Signals
	once    sync.Once
	stop    func()
}

// NewOSSource creates an OS signal source.
func NewOSSource() *OSSource {
	return &OSSource{signals: NewSignals()}
}

// Subscribe implements Source.
func (o *OSSource) Subscribe(fn func(Signal)) func() {
	o.once.Do(o.start)
	return o.signals.Subscribe(fn)
}

func (o *OSSource) start() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		for range ch {
			o.signals.Emit(Unload)
		}
	}()
	o.stop = func() { signal.Stop(ch); close(ch) }
}

// Close stops signal watching. Safe to call without a prior Subscribe.
func (o *OSSource) Close() {
	if o.stop != nil {
		o.stop()
	}
}
