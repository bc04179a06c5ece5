package logger

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/rzbill/flare/pkg/event"
	"github.com/rzbill/flare/pkg/log"
	"github.com/rzbill/flare/pkg/storage/memory"
)

func mkBatch(n int, ts int64) Batch {
	events := make([]event.Event, n)
	for i := range events {
		events[i] = event.Event{Name: fmt.Sprintf("ev-%d", i), Time: ts}
	}
	return Batch{Events: events, Time: ts}
}

func newTestSpool(t *testing.T, store *memory.Store, maxBatches, maxEvents int, maxAge time.Duration, ceiling int) *spool {
	t.Helper()
	s := newSpool(store, SpoolKey, maxBatches, maxEvents, maxAge, ceiling, log.NewNopLogger(), nil)
	s.nowMs = func() int64 { return 1_000_000 }
	return s
}

func TestSpoolAddRejectsExpired(t *testing.T) {
	s := newTestSpool(t, memory.New(), 10, 100, time.Minute, 1<<20)

	s.Add(mkBatch(2, 1_000_000-time.Minute.Milliseconds()-1))
	if b, _ := s.Stats(); b != 0 {
		t.Fatalf("expired batch accepted, batches=%d", b)
	}

	s.Add(mkBatch(2, 1_000_000-time.Minute.Milliseconds()))
	if b, _ := s.Stats(); b != 1 {
		t.Fatalf("batch at age bound rejected, batches=%d", b)
	}
}

func TestSpoolAddRejectsOversized(t *testing.T) {
	s := newTestSpool(t, memory.New(), 10, 5, time.Hour, 1<<20)

	s.Add(mkBatch(6, 1_000_000))
	if b, e := s.Stats(); b != 0 || e != 0 {
		t.Fatalf("oversized batch accepted, batches=%d events=%d", b, e)
	}
}

func TestSpoolEvictsOldestOnBatchCap(t *testing.T) {
	s := newTestSpool(t, memory.New(), 3, 100, time.Hour, 1<<20)

	for i := 0; i < 4; i++ {
		b := mkBatch(1, 1_000_000)
		b.Events[0].Name = fmt.Sprintf("batch-%d", i)
		s.Add(b)
	}

	if b, _ := s.Stats(); b != 3 {
		t.Fatalf("batches = %d, want 3", b)
	}
	if got := s.batches[0].Events[0].Name; got != "batch-1" {
		t.Fatalf("oldest surviving batch = %q, want batch-1", got)
	}
	if got := s.batches[2].Events[0].Name; got != "batch-3" {
		t.Fatalf("newest batch = %q, want batch-3", got)
	}
}

func TestSpoolEvictsOldestOnEventCap(t *testing.T) {
	s := newTestSpool(t, memory.New(), 10, 10, time.Hour, 1<<20)

	s.Add(mkBatch(4, 1_000_000))
	s.Add(mkBatch(4, 1_000_000))
	s.Add(mkBatch(4, 1_000_000))

	b, e := s.Stats()
	if b != 2 || e != 8 {
		t.Fatalf("stats = (%d, %d), want (2, 8)", b, e)
	}
}

func TestSpoolPersistRoundTrip(t *testing.T) {
	store := memory.New()
	s := newTestSpool(t, store, 10, 100, time.Hour, 1<<20)

	s.Add(mkBatch(3, 1_000_000))
	s.Persist()

	if _, ok := store.Get(SpoolKey); !ok {
		t.Fatal("persist wrote nothing")
	}

	batches, rawLen := s.TakePersisted()
	if len(batches) != 1 || len(batches[0].Events) != 3 {
		t.Fatalf("took %d batches, want 1 with 3 events", len(batches))
	}
	if rawLen == 0 {
		t.Fatal("raw length not reported")
	}
	if _, ok := store.Get(SpoolKey); ok {
		t.Fatal("key survived TakePersisted")
	}
}

func TestSpoolPersistEmptyRemovesKey(t *testing.T) {
	store := memory.New()
	if err := store.Set(SpoolKey, `[{"events":[{"name":"old","time":1}],"time":1}]`); err != nil {
		t.Fatalf("seed: %v", err)
	}

	s := newTestSpool(t, store, 10, 100, time.Hour, 1<<20)
	s.Persist()

	if _, ok := store.Get(SpoolKey); ok {
		t.Fatal("empty persist left stale blob behind")
	}
}

func TestSpoolPersistCeilingDropsAllLeavesPriorBlob(t *testing.T) {
	store := memory.New()
	prior := `[{"events":[{"name":"old","time":1}],"time":1}]`
	if err := store.Set(SpoolKey, prior); err != nil {
		t.Fatalf("seed: %v", err)
	}

	s := newTestSpool(t, store, 10, 100, time.Hour, 8)
	s.Add(mkBatch(3, 1_000_000))
	s.Persist()

	if b, e := s.Stats(); b != 0 || e != 0 {
		t.Fatalf("spool not emptied after ceiling drop, stats = (%d, %d)", b, e)
	}
	got, ok := store.Get(SpoolKey)
	if !ok || got != prior {
		t.Fatalf("prior blob not left in place, got %q", got)
	}
}

func TestSpoolTakePersistedDiscardsBadJSON(t *testing.T) {
	store := memory.New()
	if err := store.Set(SpoolKey, "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	s := newTestSpool(t, store, 10, 100, time.Hour, 1<<20)
	batches, rawLen := s.TakePersisted()
	if batches != nil || rawLen != 0 {
		t.Fatalf("bad blob yielded (%v, %d)", batches, rawLen)
	}
	if _, ok := store.Get(SpoolKey); ok {
		t.Fatal("unreadable blob not cleared")
	}
}

func TestSpoolPersistedShape(t *testing.T) {
	store := memory.New()
	s := newTestSpool(t, store, 10, 100, time.Hour, 1<<20)

	b := mkBatch(1, 42)
	b.Metadata = map[string]string{"sdkType": "flare-go"}
	s.Add(b)
	s.Persist()

	raw, _ := store.Get(SpoolKey)
	var decoded []map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		t.Fatalf("unmarshal persisted blob: %v", err)
	}
	if len(decoded) != 1 {
		t.Fatalf("persisted %d batches, want 1", len(decoded))
	}
	for _, field := range []string{"events", "metadata", "time"} {
		if _, ok := decoded[0][field]; !ok {
			t.Fatalf("persisted batch missing %q field", field)
		}
	}
}
