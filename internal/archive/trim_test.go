package archive

import (
	"context"
	"testing"
	"time"

	"github.com/rzbill/flare/pkg/id"
)

// withIDClock pins the ID generator clock so entries can be minted in the
// past. The generator is monotonic, so timestamps must be set in ascending
// order.
func withIDClock(t *testing.T) func(ms int64) {
	t.Helper()
	old := id.NowMs
	t.Cleanup(func() { id.NowMs = old })
	return func(ms int64) {
		id.NowMs = func() int64 { return ms }
	}
}

func TestTrimOlderThanByAge(t *testing.T) {
	a := newTestArchive(t)
	setClock := withIDClock(t)
	now := time.Now().UnixMilli()

	setClock(now - 10_000)
	seedArchive(t, a, 1)
	setClock(now - 5_000)
	seedArchive(t, a, 1)
	setClock(now)
	seedArchive(t, a, 1)

	del, err := a.TrimOlderThan(context.Background(), now-1, 10, 0)
	if err != nil {
		t.Fatalf("trim: %v", err)
	}
	if del != 2 {
		t.Fatalf("expected 2 deleted, got %d", del)
	}
	entries, _ := a.Stats()
	if entries != 1 {
		t.Fatalf("expected 1 surviving entry, got %d", entries)
	}
}

func TestTrimOlderThanNoop(t *testing.T) {
	a := newTestArchive(t)
	seedArchive(t, a, 2)
	del, err := a.TrimOlderThan(context.Background(), 1, 10, 0)
	if err != nil {
		t.Fatalf("trim: %v", err)
	}
	if del != 0 {
		t.Fatalf("expected no deletions, got %d", del)
	}
}

func TestTrimToMaxBytes(t *testing.T) {
	a := newTestArchive(t)
	seedArchive(t, a, 3)

	_, total := a.Stats()
	budget := total / 2
	del, err := a.TrimToMaxBytes(context.Background(), budget, 10, 0)
	if err != nil {
		t.Fatalf("trim bytes: %v", err)
	}
	if del < 1 {
		t.Fatalf("expected at least 1 deletion")
	}
	if _, bytes := a.Stats(); bytes > budget {
		t.Fatalf("still over budget: %d > %d", bytes, budget)
	}
}

func TestTrimToMaxBytesDeletesOldestFirst(t *testing.T) {
	a := newTestArchive(t)
	ids := seedArchive(t, a, 3)

	_, total := a.Stats()
	if _, err := a.TrimToMaxBytes(context.Background(), total-1, 10, 0); err != nil {
		t.Fatalf("trim bytes: %v", err)
	}
	entries, _ := a.Read(ReadOptions{})
	for _, e := range entries {
		if e.ID == ids[0] {
			t.Fatalf("oldest entry survived a bytes trim")
		}
	}
}

func TestSweeperAppliesRetention(t *testing.T) {
	a := newTestArchive(t)
	seedArchive(t, a, 5)

	a.StartSweeper(10*time.Millisecond, 0, 1)
	t.Cleanup(a.StopSweeper)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if entries, _ := a.Stats(); entries < 5 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("sweeper never trimmed")
}
