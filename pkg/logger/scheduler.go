package logger

import (
	"sync"
	"time"
)

// scheduler owns the pipeline's timers: the recurring flush ticker and the
// one-shot warm-up flushes that catch early high-volume logging. It is a
// resource with an explicit start/stop lifetime tied to the logger instance,
// never a package-level singleton.
type scheduler struct {
	interval time.Duration
	warmups  []time.Duration

	mu      sync.Mutex
	stop    chan struct{}
	armOnce sync.Once
	flush   func()
}

func newScheduler(interval time.Duration, warmups []time.Duration) *scheduler {
	return &scheduler{interval: interval, warmups: warmups}
}

// start launches the ticker loop. Idempotent.
func (s *scheduler) start(flush func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return
	}
	s.stop = make(chan struct{})
	s.flush = flush

	if s.interval > 0 {
		stop := s.stop
		go func() {
			ticker := time.NewTicker(s.interval)
			defer ticker.Stop()
			for {
				select {
				case <-stop:
					return
				case <-ticker.C:
					flush()
				}
			}
		}()
	}
}

// armWarmups schedules the one-shot warm-up flushes, measured from now.
// Idempotent: only the first call arms them.
func (s *scheduler) armWarmups() {
	s.armOnce.Do(func() {
		s.mu.Lock()
		stop := s.stop
		flush := s.flush
		s.mu.Unlock()
		if stop == nil || len(s.warmups) == 0 {
			return
		}

		warmups := append([]time.Duration(nil), s.warmups...)
		go func() {
			start := time.Now()
			for _, d := range warmups {
				wait := d - time.Since(start)
				if wait > 0 {
					select {
					case <-time.After(wait):
					case <-stop:
						return
					}
				}
				flush()
			}
		}()
	})
}

// stopAll halts the ticker and any pending warm-ups. Idempotent.
func (s *scheduler) stopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop == nil {
		return
	}
	close(s.stop)
	s.stop = nil
}
