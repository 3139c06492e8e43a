package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"hrmprivacy/internal/requestctx"
)

func TestEnqueuedJobRunsOnWorker(t *testing.T) {
	svc := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)

	done := make(chan string, 1)
	ok := svc.Enqueue(JobExportProcess, "x1", func(ctx context.Context) (any, error) {
		done <- requestctx.GetActorID(ctx)
		return nil, nil
	})
	if !ok {
		t.Fatal("expected job to be queued")
	}
	select {
	case actor := <-done:
		if actor != "job:"+JobExportProcess {
			t.Fatalf("unexpected actor %q", actor)
		}
	case <-time.After(time.Second):
		t.Fatal("job never ran")
	}
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	svc := newService(1)
	noop := func(context.Context) (any, error) { return nil, nil }
	if !svc.Enqueue(JobExportCleanup, "a", noop) {
		t.Fatal("first job must fit")
	}
	if svc.Enqueue(JobExportCleanup, "b", noop) {
		t.Fatal("expected full queue to drop the job")
	}
}

func TestRunNowReturnsResultAndRecoversPanics(t *testing.T) {
	svc := New()
	ctx := requestctx.WithActorID(context.Background(), "hr-1")

	details, err := svc.RunNow(ctx, JobRetentionSweep, "manual", func(ctx context.Context) (any, error) {
		if requestctx.GetActorID(ctx) != "hr-1" {
			return nil, errors.New("caller actor must be kept")
		}
		return 3, nil
	})
	if err != nil || details != 3 {
		t.Fatalf("run now: %v %v", details, err)
	}

	if _, err := svc.RunNow(ctx, JobRetentionSweep, "manual", func(context.Context) (any, error) {
		panic("boom")
	}); err == nil {
		t.Fatal("expected panic to surface as error")
	}
}

func TestSchedule(t *testing.T) {
	svc := New()
	noop := func(context.Context) (any, error) { return nil, nil }

	if err := svc.Schedule(JobRetentionSweep, "not a cron", noop); err == nil {
		t.Fatal("expected invalid spec error")
	}
	if err := svc.Schedule(JobExportCleanup, "off", noop); err != nil {
		t.Fatalf("off: %v", err)
	}
	if svc.NextRun(JobExportCleanup) != nil {
		t.Fatal("disabled schedule must have no next run")
	}
	if err := svc.Schedule(JobRetentionSweep, "0 2 * * *", noop); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	svc.Start(ctx)
	next := svc.NextRun(JobRetentionSweep)
	if next == nil || next.Hour() != 2 || next.Minute() != 0 {
		t.Fatalf("unexpected next run %v", next)
	}
	cancel()
	svc.Stop()
}
