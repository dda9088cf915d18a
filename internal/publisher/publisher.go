package publisher

import (
	"context"

	"pubflow/internal/domain"
)

// Publisher performs the side-effecting publish for one task. Implementations
// drive the actual delivery channel (browser automation, an upload API) and
// are opaque to the scheduler. Publish must treat ctx cancellation as a
// best-effort stop signal; the scheduler's correctness does not depend on the
// call actually returning early.
type Publisher interface {
	Publish(ctx context.Context, task domain.Task) (domain.Result, error)
}

// Func adapts a plain function to the Publisher interface.
type Func func(ctx context.Context, task domain.Task) (domain.Result, error)

func (f Func) Publish(ctx context.Context, task domain.Task) (domain.Result, error) {
	return f(ctx, task)
}
