package jobs_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"log/slog"

	dbfs "github.com/garnizeh/staffing/db"
	"github.com/garnizeh/staffing/internal/clock"
	"github.com/garnizeh/staffing/internal/db"
	"github.com/garnizeh/staffing/internal/events"
	"github.com/garnizeh/staffing/internal/jobs"
)

func setupRepo(t *testing.T, clk clock.Clock) *jobs.Repository {
	t.Helper()
	ctx := context.Background()
	d, err := db.New(ctx, filepath.Join(t.TempDir(), "jobs.db"), slog.Default())
	if err != nil {
		t.Fatalf("db.New: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	if err := db.Migrate(ctx, d, dbfs.Migrations); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return jobs.NewRepository(d, clk)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestEnqueueAndProcess(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t, nil)

	handled := make(chan struct{}, 1)
	handlers := map[string]jobs.Handler{
		"test": func(ctx context.Context, j *jobs.Job) error {
			handled <- struct{}{}
			return nil
		},
	}
	pool := jobs.NewWorkerPool(repo, handlers, slog.Default(), 1, 10*time.Millisecond)
	pool.Start(ctx)
	defer pool.Stop()

	id, err := pool.Enqueue(ctx, "test", map[string]string{"foo": "bar"}, 10, 3)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	select {
	case <-handled:
		// ok
	case <-time.After(3 * time.Second):
		t.Fatalf("handler was not called")
	}

	waitFor(t, "job done", func() bool {
		j, err := repo.GetJob(ctx, id)
		return err == nil && j != nil && j.Status == jobs.StatusDone
	})
}

func TestFetchNextClaimsOnce(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t, nil)

	if _, err := repo.Enqueue(ctx, &jobs.Job{Type: "x", Payload: []byte(`{}`)}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	first, err := repo.FetchNext(ctx)
	if err != nil || first == nil {
		t.Fatalf("expected a job, got %v err=%v", first, err)
	}
	if first.Status != jobs.StatusRunning || first.MaxAttempts != 5 {
		t.Fatalf("unexpected claimed job: %#v", first)
	}

	second, err := repo.FetchNext(ctx)
	if err != nil || second != nil {
		t.Fatalf("claimed job must not be fetched twice, got %#v err=%v", second, err)
	}
}

func TestRequeueStale(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	repo := setupRepo(t, clk)

	if _, err := repo.Enqueue(ctx, &jobs.Job{Type: "x"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if j, _ := repo.FetchNext(ctx); j == nil {
		t.Fatalf("expected to claim the job")
	}

	clk.Advance(10 * time.Minute)
	n, err := repo.RequeueStale(ctx, clk.Now().Add(-5*time.Minute))
	if err != nil || n != 1 {
		t.Fatalf("expected one requeued job, got %d err=%v", n, err)
	}
	if j, _ := repo.FetchNext(ctx); j == nil {
		t.Fatalf("requeued job should be fetchable again")
	}
}

func TestRetryWaitsForBackoff(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	repo := setupRepo(t, clk)

	var calls atomic.Int32
	handlers := map[string]jobs.Handler{
		"flaky": func(ctx context.Context, j *jobs.Job) error {
			if calls.Add(1) == 1 {
				return errors.New("transient")
			}
			return nil
		},
	}
	pool := jobs.NewWorkerPool(repo, handlers, slog.Default(), 1, 5*time.Millisecond)

	id, err := pool.Enqueue(ctx, "flaky", nil, 10, 3)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	pool.Start(ctx)
	defer pool.Stop()

	waitFor(t, "retry scheduled", func() bool {
		j, err := repo.GetJob(ctx, id)
		return err == nil && j != nil && j.Status == jobs.StatusRetry
	})
	j, _ := repo.GetJob(ctx, id)
	if j.Attempts != 1 || j.LastError != "transient" || j.NextTryAt == nil || !j.NextTryAt.Equal(clk.Now().Add(jobs.BackoffDuration(1))) {
		t.Fatalf("unexpected retry state: %#v", j)
	}

	time.Sleep(50 * time.Millisecond)
	if calls.Load() != 1 {
		t.Fatalf("job must not run again before its backoff elapses")
	}

	clk.Advance(jobs.BackoffDuration(1))
	waitFor(t, "job done after retry", func() bool {
		j, err := repo.GetJob(ctx, id)
		return err == nil && j != nil && j.Status == jobs.StatusDone
	})
}

func TestDeadLetterAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t, nil)

	handlers := map[string]jobs.Handler{
		"broken": func(ctx context.Context, j *jobs.Job) error { return errors.New("always fails") },
	}
	pool := jobs.NewWorkerPool(repo, handlers, slog.Default(), 2, 5*time.Millisecond)
	pool.Start(ctx)
	defer pool.Stop()

	if _, err := pool.Enqueue(ctx, "broken", nil, 10, 1); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := pool.Enqueue(ctx, "unknown", nil, 10, 3); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	waitFor(t, "dead letters", func() bool {
		a, _ := repo.CountDeadLetters(ctx, "broken")
		b, _ := repo.CountDeadLetters(ctx, "unknown")
		return a == 1 && b == 1
	})
}

func TestOutboxDeliversEvents(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t, nil)

	var rec events.Recorder
	pool := jobs.NewWorkerPool(repo, map[string]jobs.Handler{
		jobs.DeliverEventType: jobs.DeliverHandler(&rec),
	}, slog.Default(), 1, 5*time.Millisecond)

	pub := jobs.NewOutboxPublisher(repo, slog.Default(), 3)
	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	pub.Publish(ctx,
		events.Event{Kind: events.KindTransition, Entity: events.EntityWorker, EntityID: 1, From: "Ready", To: "ReservedAwaitingContract", At: at},
		events.Event{Kind: events.KindReserved, Entity: events.EntityReservation, EntityID: 2, Actor: "customer:9", At: at, Refs: map[string]int64{"worker": 1}},
	)

	pool.Start(ctx)
	defer pool.Stop()

	waitFor(t, "events delivered", func() bool { return len(rec.Events()) == 2 })

	evs := rec.Events()
	// domain events outrank audit records
	if evs[0].Kind != events.KindReserved || evs[1].Kind != events.KindTransition {
		t.Fatalf("unexpected delivery order: %v, %v", evs[0].Kind, evs[1].Kind)
	}
	if evs[0].Refs["worker"] != 1 || !evs[0].At.Equal(at) || evs[0].Actor != "customer:9" {
		t.Fatalf("event did not survive the round trip: %#v", evs[0])
	}
}

func TestBackoffDuration(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{3, 8 * time.Second},
		{8, 256 * time.Second},
		{9, 5 * time.Minute},
		{64, 5 * time.Minute},
	}
	for _, tt := range tests {
		if got := jobs.BackoffDuration(tt.attempt); got != tt.want {
			t.Fatalf("BackoffDuration(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
