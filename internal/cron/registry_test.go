package cron

import (
	"context"
	"testing"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryKeepsOrderAndCopies(t *testing.T) {
	jobA := &stubJob{name: "reconcile-payments"}
	jobB := &stubJob{name: "expire-holds"}
	registry, err := NewRegistry(jobA, nil, jobB)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	jobs := registry.Jobs()
	if len(jobs) != 2 || jobs[0] != jobA || jobs[1] != jobB {
		t.Fatalf("unexpected jobs %v", jobs)
	}
	jobs[0] = nil
	if registry.Jobs()[0] == nil {
		t.Fatalf("internal slice leaked")
	}
}

func TestRegistryRejectsDuplicateAndBlankNames(t *testing.T) {
	if _, err := NewRegistry(&stubJob{name: "reconcile-payments"}, &stubJob{name: "reconcile-payments"}); err == nil {
		t.Fatalf("expected duplicate name to be rejected")
	}
	var registry Registry
	if err := registry.Register(&stubJob{name: "  "}); err == nil {
		t.Fatalf("expected blank name to be rejected")
	}
	if err := registry.Register(&stubJob{name: "ok"}); err != nil {
		t.Fatalf("zero-value registry should accept jobs: %v", err)
	}
}
