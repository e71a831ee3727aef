package app

import (
	"context"
	"errors"
	"time"

	"github.com/fossasia/eventyay-sub001/internal/domain"
)

const retryBackoff = 25 * time.Millisecond

// withRetry runs op and retries it exactly once, after a short backoff, when
// the database reports a transient conflict (deadlock victim, lock timeout).
// Expected business errors are never retried. A second conflict surfaces as
// plain domain.ErrConflict.
func withRetry(ctx context.Context, op func(ctx context.Context) error) error {
	err := op(ctx)
	if err == nil || !errors.Is(err, domain.ErrConflict) {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(retryBackoff):
	}

	if err := op(ctx); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return domain.ErrConflict
		}
		return err
	}
	return nil
}
