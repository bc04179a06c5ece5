package logger

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rzbill/flare/pkg/log"
	"github.com/rzbill/flare/pkg/metrics"
	"github.com/rzbill/flare/pkg/storage"
)

// spool holds batches that could not be delivered, bounded by count, total
// event volume and age. Loss is always preferred over unbounded growth: every
// rejection and eviction is silent apart from logs and counters.
type spool struct {
	store          storage.Store
	key            string
	maxBatches     int
	maxEvents      int
	maxAge         time.Duration
	persistCeiling int
	logger         log.Logger
	metrics        *metrics.Metrics
	nowMs          func() int64

	mu      sync.Mutex
	batches []Batch
	events  int
}

func newSpool(store storage.Store, key string, maxBatches, maxEvents int, maxAge time.Duration, persistCeiling int, logger log.Logger, m *metrics.Metrics) *spool {
	return &spool{
		store:          store,
		key:            key,
		maxBatches:     maxBatches,
		maxEvents:      maxEvents,
		maxAge:         maxAge,
		persistCeiling: persistCeiling,
		logger:         logger,
		metrics:        m,
		nowMs:          func() int64 { return time.Now().UnixMilli() },
	}
}

// Add offers a failed batch to the spool. The batch's Time must already hold
// its failure time: fresh failures are stamped by the pipeline, replayed
// batches keep their persisted time so the age bound still applies.
func (s *spool) Add(b Batch) {
	if len(b.Events) == 0 {
		return
	}
	if s.maxAge > 0 && s.nowMs()-b.Time > s.maxAge.Milliseconds() {
		s.metrics.AddEventsDropped("age", len(b.Events))
		s.logger.Debug("spool rejected expired batch", log.Int("events", len(b.Events)))
		return
	}
	if len(b.Events) > s.maxEvents {
		s.metrics.AddEventsDropped("spool_full", len(b.Events))
		s.logger.Warn("spool rejected oversized batch", log.Int("events", len(b.Events)), log.Int("max_events", s.maxEvents))
		return
	}

	s.mu.Lock()
	// Evict oldest-arriving batches until the new one fits both caps.
	for len(s.batches) > 0 && (len(s.batches)+1 > s.maxBatches || s.events+len(b.Events) > s.maxEvents) {
		evicted := s.batches[0]
		s.batches = s.batches[1:]
		s.events -= len(evicted.Events)
		s.metrics.AddEventsDropped("spool_full", len(evicted.Events))
	}
	s.batches = append(s.batches, b)
	s.events += len(b.Events)
	batches, events := len(s.batches), s.events
	s.mu.Unlock()

	s.metrics.SetSpoolSize(batches, events)
}

// Stats returns the current batch and event counts.
func (s *spool) Stats() (batches, events int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches), s.events
}

// Persist serializes all held batches to the substrate under the spool key.
// A serialized size above the ceiling drops everything and writes nothing;
// any previously persisted blob is left in place for the next startup's
// replay pass. An empty spool removes the key.
func (s *spool) Persist() {
	s.mu.Lock()
	batches := s.batches
	events := s.events
	s.mu.Unlock()

	if len(batches) == 0 {
		_ = s.store.Remove(s.key)
		return
	}

	data, err := json.Marshal(batches)
	if err != nil {
		s.logger.Warn("spool serialization failed", log.Err(err))
		return
	}
	if s.persistCeiling > 0 && len(data) > s.persistCeiling {
		s.mu.Lock()
		s.batches = nil
		s.events = 0
		s.mu.Unlock()
		s.metrics.AddEventsDropped("persist_ceiling", events)
		s.metrics.SetSpoolSize(0, 0)
		s.logger.Warn("spool backlog exceeded persist ceiling, dropped",
			log.Int("bytes", len(data)), log.Int("ceiling", s.persistCeiling), log.Int("events", events))
		return
	}

	if err := s.store.Set(s.key, string(data)); err != nil {
		s.logger.Warn("spool persist failed", log.Err(err))
		return
	}
	s.logger.Debug("spool persisted", log.Int("batches", len(batches)), log.Int("bytes", len(data)))
}

// TakePersisted reads and clears the persisted spool in one step. Clearing at
// read time keeps the replay one-shot even across a crash mid-replay, and
// guarantees a racing shutdown persist is never deleted afterwards. Returns
// the parsed batches and the raw serialized size.
func (s *spool) TakePersisted() ([]Batch, int) {
	raw, ok := s.store.Get(s.key)
	if !ok || raw == "" {
		return nil, 0
	}
	_ = s.store.Remove(s.key)

	var batches []Batch
	if err := json.Unmarshal([]byte(raw), &batches); err != nil {
		s.logger.Warn("discarding unreadable spool", log.Err(err), log.Int("bytes", len(raw)))
		return nil, 0
	}
	return batches, len(raw)
}
