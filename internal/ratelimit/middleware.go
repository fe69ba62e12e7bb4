package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/MrRuperto3/TAO-App/internal/logging"
)

// DefaultMaxWait bounds how long Wait blocks for budget.
const DefaultMaxWait = 2 * time.Minute

// ErrMaxWaitExceeded is returned when budget does not free up within MaxWait.
var ErrMaxWaitExceeded = errors.New("maximum wait time exceeded waiting for rate limit budget")

// Waiter blocks callers until the shared budget admits their request.
type Waiter struct {
	tracker *BudgetTracker
	maxWait time.Duration
}

// NewWaiter creates a waiter. maxWait <= 0 uses DefaultMaxWait.
func NewWaiter(tracker *BudgetTracker, maxWait time.Duration) *Waiter {
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	return &Waiter{tracker: tracker, maxWait: maxWait}
}

// Wait takes one request for endpoint from the pool matching priority,
// sleeping across windows until it fits, ctx ends, or maxWait elapses.
func (w *Waiter) Wait(ctx context.Context, endpoint string, priority Priority) error {
	log := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"endpoint": endpoint,
		"priority": priority.String(),
	})
	deadline := time.Now().Add(w.maxWait)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		allowed, wait := w.tracker.TryConsume(ctx, 1, priority)
		if allowed {
			if err := w.tracker.RecordEndpointUsage(ctx, endpoint, 1); err != nil {
				log.WithError(err).Debug("failed to record endpoint usage")
			}
			return nil
		}

		if time.Now().Add(wait).After(deadline) {
			log.Warn("quota wait exceeded")
			return ErrMaxWaitExceeded
		}

		log.WithField("wait", wait.String()).Info("waiting for upstream quota")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
