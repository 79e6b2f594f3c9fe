package ingest

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type countingJob struct {
	calls atomic.Int32
}

func (j *countingJob) Run(ctx context.Context, now time.Time) (*RunReport, error) {
	j.calls.Add(1)
	return &RunReport{}, nil
}

func TestScheduler_RunsImmediatelyAndStops(t *testing.T) {
	job := &countingJob{}
	s := NewScheduler(job, "", time.UTC, quietLogger())

	var hooked atomic.Int32
	s.OnRun(func(*RunReport, error) { hooked.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for job.calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("job never ran")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	if hooked.Load() != job.calls.Load() {
		t.Errorf("hook calls = %d, job calls = %d", hooked.Load(), job.calls.Load())
	}
}

func TestScheduler_BadSpec(t *testing.T) {
	job := &countingJob{}
	s := NewScheduler(job, "every tuesday", time.UTC, quietLogger())

	if err := s.Run(context.Background()); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
	if job.calls.Load() != 0 {
		t.Errorf("job ran %d times with an invalid schedule", job.calls.Load())
	}
}
