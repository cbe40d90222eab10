package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/garnizeh/staffing/internal/clock"
	"github.com/garnizeh/staffing/internal/db"
)

const jobColumns = `id, type, payload, status, attempts, max_attempts, priority, scheduled_at, next_try_at, last_error, created, updated`

type Repository struct {
	db    *db.DB
	clock clock.Clock
}

func NewRepository(d *db.DB, clk clock.Clock) *Repository {
	if clk == nil {
		clk = clock.Real()
	}
	return &Repository{db: d, clock: clk}
}

func (r *Repository) now() time.Time { return r.clock.Now() }

// Enqueue inserts a job into the jobs table and returns the new ID
func (r *Repository) Enqueue(ctx context.Context, j *Job) (int64, error) {
	if j.MaxAttempts == 0 {
		j.MaxAttempts = 5
	}
	if j.ScheduledAt.IsZero() {
		j.ScheduledAt = r.now()
	}
	now := r.now().UnixMilli()
	q := `INSERT INTO jobs(type, payload, status, attempts, max_attempts, priority, scheduled_at, created, updated) VALUES(?,?,?,?,?,?,?,?,?) RETURNING id`
	var id int64
	err := r.db.QueryRow(ctx, q, j.Type, string(j.Payload), StatusQueued, j.Attempts, j.MaxAttempts, j.Priority, j.ScheduledAt.UnixMilli(), now, now).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("enqueue failed: %w", err)
	}
	return id, nil
}

// FetchNext claims the next due job, respecting priority and schedule. The
// claim is a single guarded UPDATE, so two workers never run the same job.
func (r *Repository) FetchNext(ctx context.Context) (*Job, error) {
	now := r.now().UnixMilli()
	q := `UPDATE jobs SET status = ?, updated = ? WHERE id = (
		SELECT id FROM jobs WHERE status IN (?, ?) AND (next_try_at IS NULL OR next_try_at <= ?) AND scheduled_at <= ?
		ORDER BY priority ASC, scheduled_at ASC, id ASC LIMIT 1
	) AND status IN (?, ?) RETURNING ` + jobColumns
	row := r.db.QueryRow(ctx, q, StatusRunning, now, StatusQueued, StatusRetry, now, now, StatusQueued, StatusRetry)
	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch next job: %w", err)
	}
	return j, nil
}

// GetJob returns a job by id, or nil when it no longer exists.
func (r *Repository) GetJob(ctx context.Context, id int64) (*Job, error) {
	j, err := scanJob(r.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get job %d: %w", id, err)
	}
	return j, nil
}

func scanJob(row interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		j           Job
		payload     sql.NullString
		scheduledAt int64
		nextTry     sql.NullInt64
		lastError   sql.NullString
		created     int64
		updated     int64
	)
	if err := row.Scan(&j.ID, &j.Type, &payload, &j.Status, &j.Attempts, &j.MaxAttempts, &j.Priority, &scheduledAt, &nextTry, &lastError, &created, &updated); err != nil {
		return nil, err
	}
	j.ScheduledAt = time.UnixMilli(scheduledAt).UTC()
	j.Created = time.UnixMilli(created).UTC()
	j.Updated = time.UnixMilli(updated).UTC()
	if payload.Valid {
		j.Payload = json.RawMessage(payload.String)
	}
	if nextTry.Valid {
		t := time.UnixMilli(nextTry.Int64).UTC()
		j.NextTryAt = &t
	}
	if lastError.Valid {
		j.LastError = lastError.String
	}
	return &j, nil
}

// UpdateJob updates attempts, status, next_try_at, last_error
func (r *Repository) UpdateJob(ctx context.Context, j *Job) error {
	var nextTry any
	if j.NextTryAt != nil {
		nextTry = j.NextTryAt.UnixMilli()
	}
	q := `UPDATE jobs SET status = ?, attempts = ?, next_try_at = ?, last_error = ?, updated = ? WHERE id = ?`
	_, err := r.db.Exec(ctx, q, j.Status, j.Attempts, nextTry, j.LastError, r.now().UnixMilli(), j.ID)
	return err
}

// RequeueStale hands jobs left running since before cutoff back to the
// queue. Such jobs belong to a worker that died mid-delivery.
func (r *Repository) RequeueStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.Exec(ctx, `UPDATE jobs SET status = ?, updated = ? WHERE status = ? AND updated < ?`,
		StatusRetry, r.now().UnixMilli(), StatusRunning, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("requeue stale jobs: %w", err)
	}
	return res.RowsAffected()
}

// MoveToDeadLetter moves a job to dead_letter_jobs and deletes the original
func (r *Repository) MoveToDeadLetter(ctx context.Context, j *Job) error {
	return r.db.WithinTx(ctx, func(tx *db.Tx) error {
		insert := `INSERT INTO dead_letter_jobs(job_id, type, payload, attempts, last_error, failed_at) VALUES(?,?,?,?,?,?)`
		if _, err := tx.Exec(ctx, insert, j.ID, j.Type, string(j.Payload), j.Attempts, j.LastError, r.now().UnixMilli()); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM jobs WHERE id = ?`, j.ID)
		return err
	})
}

// CountDeadLetters returns the number of dead-lettered jobs of a type.
func (r *Repository) CountDeadLetters(ctx context.Context, typ string) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM dead_letter_jobs WHERE type = ?`, typ).Scan(&n); err != nil {
		return 0, fmt.Errorf("count dead letters: %w", err)
	}
	return n, nil
}
