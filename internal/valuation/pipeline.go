package valuation

import (
	"context"
	"fmt"
)

// Calculator is a fetch -> stage -> compute valuation.
// Implementations own their intermediate values; nothing is shared across runs.
type Calculator[D, S, R any] interface {
	Fetch(ctx context.Context) (D, error)
	Stage(data D) (S, error)
	Compute(staged S) (R, error)
}

// Run executes the three stages of c in order.
func Run[D, S, R any](ctx context.Context, c Calculator[D, S, R]) (R, error) {
	return Compose(c.Fetch, c.Stage, c.Compute)(ctx)
}

// Compose chains three stage functions into one call. Errors are wrapped
// with the stage that produced them.
func Compose[D, S, R any](
	fetch func(context.Context) (D, error),
	stage func(D) (S, error),
	compute func(S) (R, error),
) func(context.Context) (R, error) {
	return func(ctx context.Context) (R, error) {
		var zero R
		data, err := fetch(ctx)
		if err != nil {
			return zero, fmt.Errorf("fetch: %w", err)
		}
		staged, err := stage(data)
		if err != nil {
			return zero, fmt.Errorf("stage: %w", err)
		}
		result, err := compute(staged)
		if err != nil {
			return zero, fmt.Errorf("compute: %w", err)
		}
		return result, nil
	}
}
