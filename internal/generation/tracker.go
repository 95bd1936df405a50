package generation

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Polling cadence and wall-clock ceiling for long-running operations. These
// are system invariants, not per-request settings.
const (
	pollInterval    = 15 * time.Second
	maxPollDuration = 600 * time.Second
)

// OperationRefresher fetches the latest snapshot of a long-running operation.
type OperationRefresher interface {
	RefreshOperation(ctx context.Context, handle string) (Operation, error)
}

// Tracker drives a long-running operation to a terminal state by polling the
// provider at a fixed cadence. Each Await call owns its snapshot, so a single
// Tracker serves any number of concurrent calls.
type Tracker struct {
	refresher OperationRefresher
	logger    zerolog.Logger
	interval  time.Duration
	deadline  time.Duration

	// Overridable in tests to make polling deterministic.
	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewTracker constructs a Tracker with the fixed production cadence.
func NewTracker(refresher OperationRefresher, logger zerolog.Logger) *Tracker {
	return &Tracker{
		refresher: refresher,
		logger:    logger,
		interval:  pollInterval,
		deadline:  maxPollDuration,
		now:       time.Now,
		sleep:     sleepContext,
	}
}

// Await polls op until it is done and returns its result items. An operation
// that is already done is returned without any waiting. The deadline is
// measured from loop entry; once elapsed time exceeds it no further refresh
// is attempted and ErrPollTimeout is returned. A finished operation carrying
// a provider fault yields that fault, and one carrying no items yields
// ErrEmptyResult.
func (t *Tracker) Await(ctx context.Context, op Operation) ([]ResultItem, error) {
	start := t.now()
	for !op.Done {
		if err := t.sleep(ctx, t.interval); err != nil {
			return nil, err
		}
		elapsed := t.now().Sub(start)
		if elapsed > t.deadline {
			return nil, fmt.Errorf("%w after %s", ErrPollTimeout, elapsed.Round(time.Second))
		}
		if op.Handle == "" {
			return nil, ErrLostHandle
		}
		next, err := t.refresher.RefreshOperation(ctx, op.Handle)
		if err != nil {
			return nil, fmt.Errorf("refresh operation: %w", err)
		}
		op = next
		t.logger.Debug().
			Str("handle", op.Handle).
			Bool("done", op.Done).
			Dur("elapsed", elapsed).
			Msg("generation: polled operation")
	}

	if op.Fault != nil {
		return nil, op.Fault
	}
	if len(op.Items) == 0 {
		return nil, ErrEmptyResult
	}
	return op.Items, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
