package archive

import (
	"context"
	"math/rand"
	"time"

	"github.com/rzbill/flare/pkg/id"
	"github.com/rzbill/flare/pkg/log"
)

// StartSweeper runs a background loop applying both retention bounds. A
// non-positive maxAge or maxBytes disables that bound. Calling it again
// while running is a no-op.
func (a *Archive) StartSweeper(interval, maxAge time.Duration, maxBytes int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sweepStop != nil {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}
	a.sweepStop = make(chan struct{})
	stop := a.sweepStop

	go func() {
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		for {
			select {
			case <-stop:
				return
			case <-time.After(interval + time.Duration(rng.Int63n(int64(interval/10+1)))):
				a.sweep(maxAge, maxBytes)
			}
		}
	}()
}

// StopSweeper stops the background sweeper.
func (a *Archive) StopSweeper() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sweepStop != nil {
		close(a.sweepStop)
		a.sweepStop = nil
	}
}

func (a *Archive) sweep(maxAge time.Duration, maxBytes int64) {
	ctx := context.Background()
	if maxAge > 0 {
		cutoff := id.NowMs() - maxAge.Milliseconds()
		if n, err := a.TrimOlderThan(ctx, cutoff, 1024, 0); err != nil {
			a.logger.Warn("age trim failed", log.Err(err))
		} else if n > 0 {
			a.logger.Debug("age trim removed entries", log.Int("entries", n))
		}
	}
	if maxBytes > 0 {
		if n, err := a.TrimToMaxBytes(ctx, maxBytes, 1024, 0); err != nil {
			a.logger.Warn("bytes trim failed", log.Err(err))
		} else if n > 0 {
			a.logger.Debug("bytes trim removed entries", log.Int("entries", n))
		}
	}
	entries, _ := a.Stats()
	a.metrics.SetArchiveEntries(entries)
}
