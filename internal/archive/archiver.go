// Package archive moves appointments whose time has elapsed out of the live
// appointments table. Booked and rescheduled appointments are archived as
// completed; cancelled ones stay where they are.
package archive

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const defaultBatchSize = 500

type Store interface {
	// ArchiveElapsed moves at most limit non-cancelled appointments scheduled
	// before cutoff and reports how many moved.
	ArchiveElapsed(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

type Archiver struct {
	store      Store
	log        *zap.Logger
	batchSize  int
	onArchived func(n int)
}

type Option func(*Archiver)

func WithBatchSize(n int) Option {
	return func(a *Archiver) {
		if n > 0 {
			a.batchSize = n
		}
	}
}

// WithObserver is called after every non-empty batch.
func WithObserver(fn func(n int)) Option {
	return func(a *Archiver) { a.onArchived = fn }
}

func New(store Store, log *zap.Logger, opts ...Option) *Archiver {
	a := &Archiver{store: store, log: log, batchSize: defaultBatchSize}
	if a.log == nil {
		a.log = zap.NewNop()
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run archives everything elapsed at now, batch by batch, and returns the total.
func (a *Archiver) Run(ctx context.Context, now time.Time) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		n, err := a.store.ArchiveElapsed(ctx, now, a.batchSize)
		if err != nil {
			return total, fmt.Errorf("archive batch: %w", err)
		}
		if n > 0 {
			total += n
			if a.onArchived != nil {
				a.onArchived(n)
			}
			a.log.Debug("archived batch", zap.Int("count", n))
		}
		if n < a.batchSize {
			return total, nil
		}
	}
}
