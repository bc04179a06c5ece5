// Package archive implements the collector's durable ingest archive.
//
// # Overview
//
// Every accepted batch is appended as one entry, keyed by a 128-bit
// time-ordered ID so range scans return entries in arrival order:
//   - archive/e/{id16} (entries)
//
// Records are stored as: varint headerLen | header | payload |
// crc32c(header|payload). The header carries the receive time (ms) and the
// event count; the payload is the batch JSON exactly as received.
//
// API surface (internal)
//
//	a := archive.Open(db, logger, metrics)
//	// Append a batch of records atomically; returns assigned IDs
//	ids, _ := a.Append(ctx, []archive.Record{{ReceivedAt: ms, Events: 3, Payload: body}})
//
//	// Read forward/reverse with an optional start ID and limit
//	entries, next := a.Read(archive.ReadOptions{Limit: 100})
//	_ = next // resume position
//
//	// Blocking wait/notify, used by tail --follow
//	woke := a.WaitForAppend(200 * time.Millisecond)
//	_ = woke
//
//	// Retention (approximate):
//	//  - by age using the ID-embedded receive time
//	//  - by total stored bytes
//	// Both delete in bounded batches with an optional throttle between commits.
//	_, _ = a.TrimOlderThan(ctx, cutoffMs, 1024, 0)
//	_, _ = a.TrimToMaxBytes(ctx, maxBytes, 1024, 0)
//
// A background sweeper applies both retention bounds on an interval; the
// collector starts it at open and stops it at close.
package archive
