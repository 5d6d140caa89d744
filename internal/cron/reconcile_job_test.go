package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/ovenly/backend/internal/reconciliation"
	"github.com/ovenly/backend/pkg/logger"
)

type stubReconciler struct {
	summary reconciliation.Summary
	err     error
	runs    int
}

func (s *stubReconciler) Run(context.Context) (reconciliation.Summary, error) {
	s.runs++
	return s.summary, s.err
}

func TestReconcileJobRunsPass(t *testing.T) {
	rec := &stubReconciler{summary: reconciliation.Summary{Scanned: 2, Advanced: 1, Errors: 1}}
	job, err := NewReconcileJob(ReconcileJobParams{Logger: logger.Nop(), Reconciler: rec})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if job.Name() != "payment-reconcile" {
		t.Fatalf("unexpected job name %q", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if rec.runs != 1 {
		t.Fatalf("expected one pass, got %d", rec.runs)
	}
}

func TestReconcileJobPropagatesListingFailure(t *testing.T) {
	boom := errors.New("db down")
	job, err := NewReconcileJob(ReconcileJobParams{Logger: logger.Nop(), Reconciler: &stubReconciler{err: boom}})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if err := job.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestNewReconcileJobRequiresReconciler(t *testing.T) {
	if _, err := NewReconcileJob(ReconcileJobParams{Logger: logger.Nop()}); err == nil {
		t.Fatal("expected error")
	}
}
