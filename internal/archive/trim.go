package archive

import (
	"context"
	"time"

	"github.com/cockroachdb/pebble"
)

// TrimOlderThan deletes entries whose ID-embedded receive time is before
// cutoffMs. Keys are time-ordered, so the scan stops at the first entry at
// or past the cutoff. Deletes are committed in batches of up to batchLimit
// keys with an optional throttle between commits. Returns the number of
// deleted entries.
func (a *Archive) TrimOlderThan(ctx context.Context, cutoffMs int64, batchLimit int, throttle time.Duration) (int, error) {
	if batchLimit <= 0 {
		batchLimit = 1024
	}

	low, high := entryBounds()
	iter, err := a.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: high})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	deleted := 0
	for ok := iter.First(); ok; {
		b := a.db.NewBatch()
		n := 0
		for ok && n < batchLimit {
			rid, okID := idFromKey(iter.Key())
			if !okID || rid.Timestamp() >= cutoffMs {
				ok = false
				break
			}
			if err := b.Delete(iter.Key(), nil); err != nil {
				b.Close()
				return deleted, err
			}
			deleted++
			n++
			ok = iter.Next()
		}
		if n == 0 {
			b.Close()
			break
		}
		if err := a.db.CommitBatch(ctx, b); err != nil {
			b.Close()
			return deleted, err
		}
		b.Close()
		a.metrics.AddArchiveTrimmed(n)
		if throttle > 0 {
			time.Sleep(throttle)
		}
	}
	return deleted, nil
}

// TrimToMaxBytes approximates retention by total value bytes. If current
// bytes <= maxBytes, it is a no-op. Otherwise the oldest entries are deleted
// until the total fits. Batched and throttled like TrimOlderThan.
func (a *Archive) TrimToMaxBytes(ctx context.Context, maxBytes int64, batchLimit int, throttle time.Duration) (int, error) {
	if batchLimit <= 0 {
		batchLimit = 1024
	}
	if maxBytes < 0 {
		return 0, nil
	}

	low, high := entryBounds()
	iter, err := a.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: high})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	var total int64
	for ok := iter.First(); ok; ok = iter.Next() {
		total += int64(len(iter.Value()))
	}
	if total <= maxBytes {
		return 0, nil
	}

	deleted := 0
	for ok := iter.First(); ok && total > maxBytes; {
		b := a.db.NewBatch()
		n := 0
		for ok && n < batchLimit && total > maxBytes {
			total -= int64(len(iter.Value()))
			if err := b.Delete(iter.Key(), nil); err != nil {
				b.Close()
				return deleted, err
			}
			deleted++
			n++
			ok = iter.Next()
		}
		if n == 0 {
			b.Close()
			break
		}
		if err := a.db.CommitBatch(ctx, b); err != nil {
			b.Close()
			return deleted, err
		}
		b.Close()
		a.metrics.AddArchiveTrimmed(n)
		if throttle > 0 {
			time.Sleep(throttle)
		}
	}
	return deleted, nil
}
