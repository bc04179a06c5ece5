package archive

import (
	"github.com/cockroachdb/pebble"

	"github.com/rzbill/flare/pkg/id"
)

// ReadOptions controls a scan over archive entries.
type ReadOptions struct {
	Start   id.ID // zero means the first entry (last when Reverse)
	Limit   int
	Reverse bool
}

// Entry is a decoded archive record with its assigned ID.
type Entry struct {
	ID         id.ID
	ReceivedAt int64
	Events     int
	Payload    []byte
}

// Read returns up to Limit entries starting at Start (inclusive). Reverse
// scans descending. The returned ID is the resume position, zero when the
// scan is exhausted.
func (a *Archive) Read(opts ReadOptions) ([]Entry, id.ID) {
	low, high := entryBounds()
	iter, err := a.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: high})
	entries := make([]Entry, 0, readCap(opts.Limit))
	var next id.ID
	if err != nil {
		return entries, next
	}
	defer iter.Close()

	if opts.Reverse {
		if opts.Start.IsZero() {
			if !iter.Last() {
				return entries, next
			}
		} else {
			// SeekLT is exclusive, aim one key past Start so it is included.
			if !iter.SeekLT(append(KeyEntry(opts.Start), 0x00)) {
				return entries, next
			}
		}
		for iter.Valid() && (opts.Limit == 0 || len(entries) < opts.Limit) {
			if e, ok := decodeEntry(iter.Key(), iter.Value()); ok {
				entries = append(entries, e)
			}
			if !iter.Prev() {
				return entries, next
			}
		}
		if rid, ok := idFromKey(iter.Key()); ok {
			next = rid
		}
		return entries, next
	}

	if opts.Start.IsZero() {
		if !iter.First() {
			return entries, next
		}
	} else if !iter.SeekGE(KeyEntry(opts.Start)) {
		return entries, next
	}
	for iter.Valid() && (opts.Limit == 0 || len(entries) < opts.Limit) {
		if e, ok := decodeEntry(iter.Key(), iter.Value()); ok {
			entries = append(entries, e)
		}
		if !iter.Next() {
			return entries, next
		}
	}
	if rid, ok := idFromKey(iter.Key()); ok {
		next = rid
	}
	return entries, next
}

func decodeEntry(key, value []byte) (Entry, bool) {
	rid, ok := idFromKey(key)
	if !ok {
		return Entry{}, false
	}
	dec, ok := DecodeRecord(value)
	if !ok {
		return Entry{}, false
	}
	ms, events, ok := DecodeHeader(dec.Header)
	if !ok {
		return Entry{}, false
	}
	return Entry{ID: rid, ReceivedAt: ms, Events: events, Payload: dec.Payload}, true
}

func readCap(limit int) int {
	if limit > 0 {
		return limit
	}
	return 1
}
