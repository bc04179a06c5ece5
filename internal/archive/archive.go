package archive

import (
	"context"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/rzbill/flare/pkg/id"
	"github.com/rzbill/flare/pkg/log"
	"github.com/rzbill/flare/pkg/metrics"
	pebblestore "github.com/rzbill/flare/pkg/storage/pebble"
)

// Record represents a single archivable ingest.
type Record struct {
	ReceivedAt int64 // ms
	Events     int
	Payload    []byte
}

// Archive provides append-only storage of accepted batches with bounded
// retention.
type Archive struct {
	db      *pebblestore.DB
	logger  log.Logger
	metrics *metrics.Metrics
	gen     *id.Generator

	mu        sync.Mutex
	notifyCh  chan struct{}
	sweepStop chan struct{}
}

// Open initializes an Archive over db.
func Open(db *pebblestore.DB, logger log.Logger, m *metrics.Metrics) *Archive {
	return &Archive{
		db:       db,
		logger:   logger.WithComponent("archive"),
		metrics:  m,
		gen:      id.NewGenerator(),
		notifyCh: make(chan struct{}),
	}
}

// Append stores the provided records as a single atomic batch. Returns the
// assigned IDs in record order.
func (a *Archive) Append(ctx context.Context, recs []Record) ([]id.ID, error) {
	if len(recs) == 0 {
		return nil, nil
	}

	b := a.db.NewBatch()
	defer b.Close()

	ids := make([]id.ID, len(recs))
	for i, r := range recs {
		rid := a.gen.Next()
		val := EncodeRecord(EncodeHeader(r.ReceivedAt, r.Events), r.Payload)
		if err := b.Set(KeyEntry(rid), val, nil); err != nil {
			return nil, err
		}
		ids[i] = rid
	}

	if err := a.db.CommitBatch(ctx, b); err != nil {
		return nil, err
	}

	// notify waiters
	a.mu.Lock()
	close(a.notifyCh)
	a.notifyCh = make(chan struct{})
	a.mu.Unlock()
	return ids, nil
}

// Stats scans the archive and returns entry count and total stored bytes.
func (a *Archive) Stats() (entries int, bytes int64) {
	low, high := entryBounds()
	iter, err := a.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: high})
	if err != nil {
		return 0, 0
	}
	defer iter.Close()
	for ok := iter.First(); ok; ok = iter.Next() {
		entries++
		bytes += int64(len(iter.Value()))
	}
	return entries, bytes
}
