package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/itsneelabh/querysynth/core"
)

// CallWithTimeout runs fn under its own deadline.
//
// The call context is detached from parent cancellation: a task cancelled
// while a collaborator call is in flight lets that call finish (or time
// out) instead of interrupting it. Values such as trace spans still flow
// through. Cancellation is observed by the caller between calls.
//
// A deadline hit is reported as core.ErrTimeout wrapping the original error.
func CallWithTimeout[T any](parent context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx := context.WithoutCancel(parent)
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := fn(ctx)
	if err != nil && ctx.Err() == context.DeadlineExceeded {
		var zero T
		return zero, fmt.Errorf("call exceeded %s: %v: %w", timeout, err, core.ErrTimeout)
	}
	return result, err
}
