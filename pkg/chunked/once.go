package chunked

import (
	"context"
	"sync"
)

// Once runs an initialization function a single time. Callers arriving
// while it runs wait for its result; callers arriving later get the same
// result. A failed run is not retried.
type Once struct {
	mu   sync.Mutex
	done chan struct{}
	err  error
}

// Do starts fn on the first call and waits for it to finish. fn runs on a
// context detached from ctx's cancellation, so a caller that gives up
// waiting does not abort the run for others.
func (o *Once) Do(ctx context.Context, fn func(context.Context) error) error {
	o.mu.Lock()
	if o.done == nil {
		o.done = make(chan struct{})
		runCtx := context.WithoutCancel(ctx)
		go func() {
			o.err = fn(runCtx)
			close(o.done)
		}()
	}
	done := o.done
	o.mu.Unlock()

	select {
	case <-done:
		return o.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done reports whether the run has finished.
func (o *Once) Done() bool {
	o.mu.Lock()
	done := o.done
	o.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return true
	default:
		return false
	}
}
