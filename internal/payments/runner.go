package payments

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ovenly/backend/pkg/logger"
)

// Runner executes post-acknowledgement work.
type Runner interface {
	Go(ctx context.Context, fn func(ctx context.Context))
}

// AsyncRunner runs each job on its own goroutine with a context detached
// from the request and bounded by timeout.
type AsyncRunner struct {
	timeout time.Duration
	logg    *logger.Logger
	wg      sync.WaitGroup
}

func NewAsyncRunner(timeout time.Duration, logg *logger.Logger) *AsyncRunner {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &AsyncRunner{timeout: timeout, logg: logg}
}

func (r *AsyncRunner) Go(ctx context.Context, fn func(ctx context.Context)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		defer func() {
			if rec := recover(); rec != nil {
				r.logg.Error(jobCtx, "payment job panicked", fmt.Errorf("panic: %v", rec))
			}
		}()
		fn(jobCtx)
	}()
}

// Wait blocks until in-flight jobs finish or ctx ends.
func (r *AsyncRunner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SyncRunner runs jobs inline. Tests use it to observe results directly.
type SyncRunner struct{}

func (SyncRunner) Go(ctx context.Context, fn func(ctx context.Context)) {
	fn(ctx)
}
