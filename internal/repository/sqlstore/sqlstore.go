package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/garnizeh/staffing/internal/clock"
	"github.com/garnizeh/staffing/internal/db"
	"github.com/garnizeh/staffing/pkg/repository"
)

// Store implements repository.Store on top of the internal DB wrapper. The
// same SQL serves SQLite and Postgres; placeholders are rebound and reads
// inside a transaction take row locks on Postgres.
type Store struct {
	repo
	conn   *db.DB
	logger *slog.Logger
}

// Ensure Store implements the public interfaces.
var _ repository.Store = (*Store)(nil)
var _ repository.Tx = (*repo)(nil)

type querier interface {
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRow(ctx context.Context, query string, args ...any) *sql.Row
	QueryRows(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// repo holds the entity methods; it runs either on the pool or on a tx.
type repo struct {
	q     querier
	lock  func(string) string
	clock clock.Clock
}

type Option func(*Store)

// WithClock overrides the time source used for created/updated columns.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

func New(conn *db.DB, logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		repo:   repo{q: conn, lock: func(q string) string { return q }, clock: clock.Real()},
		conn:   conn,
		logger: logger,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// WithinTx runs fn against a transactional view of the store.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	return s.conn.WithinTx(ctx, func(tx *db.Tx) error {
		return fn(ctx, &repo{q: tx, lock: tx.ForUpdate, clock: s.clock})
	})
}

func (r *repo) now() int64 {
	return toMillis(r.clock.Now())
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func ptrInt64(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func ptrString(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	v := n.String
	return &v
}

func changed(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
