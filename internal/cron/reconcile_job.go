package cron

import (
	"context"
	"fmt"

	"github.com/ovenly/backend/internal/reconciliation"
	"github.com/ovenly/backend/pkg/logger"
)

const reconcileJobName = "payment-reconcile"

type reconciler interface {
	Run(ctx context.Context) (reconciliation.Summary, error)
}

// ReconcileJobParams wire the payment reconciliation job.
type ReconcileJobParams struct {
	Logger     *logger.Logger
	Reconciler reconciler
}

// ReconcileJob polls the provider for unresolved STK pushes.
type ReconcileJob struct {
	logg *logger.Logger
	svc  reconciler
}

func NewReconcileJob(params ReconcileJobParams) (*ReconcileJob, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	return &ReconcileJob{logg: params.Logger, svc: params.Reconciler}, nil
}

func (j *ReconcileJob) Name() string { return reconcileJobName }

func (j *ReconcileJob) Run(ctx context.Context) error {
	summary, err := j.svc.Run(ctx)
	if err != nil {
		return fmt.Errorf("reconcile payments: %w", err)
	}
	if summary.Errors > 0 {
		j.logg.Warn(j.logg.WithField(ctx, "errors", summary.Errors), "reconciliation pass finished with order errors")
	}
	return nil
}
