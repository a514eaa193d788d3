package archive

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

type batchStore struct {
	remaining int
	calls     int
	failAt    int
	cutoffs   []time.Time
}

func (s *batchStore) ArchiveElapsed(_ context.Context, cutoff time.Time, limit int) (int, error) {
	s.calls++
	s.cutoffs = append(s.cutoffs, cutoff)
	if s.failAt > 0 && s.calls == s.failAt {
		return 0, errors.New("deadlock detected")
	}
	n := min(limit, s.remaining)
	s.remaining -= n
	return n, nil
}

func TestArchiver_RunsUntilShortBatch(t *testing.T) {
	now := time.Date(2030, 3, 11, 9, 0, 0, 0, time.UTC)
	store := &batchStore{remaining: 25}
	var observed []int

	a := New(store, zaptest.NewLogger(t), WithBatchSize(10), WithObserver(func(n int) { observed = append(observed, n) }))
	total, err := a.Run(context.Background(), now)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if total != 25 || store.calls != 3 {
		t.Fatalf("total=%d calls=%d, want 25 and 3", total, store.calls)
	}
	if len(observed) != 3 || observed[2] != 5 {
		t.Fatalf("observed batches %v", observed)
	}
	for _, c := range store.cutoffs {
		if !c.Equal(now) {
			t.Fatalf("cutoff drifted to %s", c)
		}
	}
}

func TestArchiver_ExactMultipleNeedsEmptyBatch(t *testing.T) {
	store := &batchStore{remaining: 20}
	total, err := New(store, nil, WithBatchSize(10)).Run(context.Background(), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if total != 20 || store.calls != 3 {
		t.Fatalf("total=%d calls=%d, want 20 and 3", total, store.calls)
	}
}

func TestArchiver_StopsOnError(t *testing.T) {
	store := &batchStore{remaining: 30, failAt: 2}
	total, err := New(store, nil, WithBatchSize(10)).Run(context.Background(), time.Now())
	if err == nil {
		t.Fatal("expected error")
	}
	if total != 10 {
		t.Fatalf("total = %d, want the 10 archived before the failure", total)
	}
}

func TestArchiver_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := &batchStore{remaining: 5}
	if _, err := New(store, nil).Run(ctx, time.Now()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if store.calls != 0 {
		t.Fatalf("store called %d times after cancel", store.calls)
	}
}
