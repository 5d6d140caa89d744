package controllers

import (
	"context"
	"errors"
	"net/http"

	"github.com/ovenly/backend/api/responses"
	"github.com/ovenly/backend/internal/cron"
	"github.com/ovenly/backend/internal/reconciliation"
	pkgerrors "github.com/ovenly/backend/pkg/errors"
	"github.com/ovenly/backend/pkg/logger"
)

type reconcileRunner interface {
	Run(ctx context.Context) (reconciliation.Summary, error)
}

// LockFactory returns a fresh lock handle per call; RedisLock tracks its
// owner token so handles must not be shared between requests.
type LockFactory func() (cron.Lock, error)

// AdminReconcile runs one reconciliation pass on demand. It answers 409 while
// the scheduled pass holds the lock.
func AdminReconcile(runner reconcileRunner, locks LockFactory, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if runner == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconciliation unavailable"))
			return
		}

		var (
			summary reconciliation.Summary
			runErr  error
		)
		pass := func(ctx context.Context) error {
			summary, runErr = runner.Run(ctx)
			return nil
		}

		if locks == nil {
			_ = pass(ctx)
		} else {
			lock, err := locks()
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reconciliation lock"))
				return
			}
			if err := cron.WithLock(ctx, lock, pass); err != nil {
				if errors.Is(err, cron.ErrLockHeld) {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "reconciliation already running"))
					return
				}
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reconciliation lock"))
				return
			}
		}

		if runErr != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, runErr, "reconciliation pass failed").
				WithDetails(map[string]any{"summary": summary}))
			return
		}
		responses.WriteSuccess(w, summary)
	}
}
