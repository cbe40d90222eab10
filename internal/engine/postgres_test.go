package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garnizeh/staffing/internal/clock"
	dbpkg "github.com/garnizeh/staffing/internal/db"
	"github.com/garnizeh/staffing/internal/engine"
	"github.com/garnizeh/staffing/internal/events"
	"github.com/garnizeh/staffing/internal/otp"
	"github.com/garnizeh/staffing/internal/repository/sqlstore"
)

// These tests stop each transaction right after its second row lock and
// check which rows were locked, in which order, on the Postgres dialect.

var errHalt = errors.New("halt after lock")

var (
	workerCols      = []string{"id", "name", "status", "current_contract_id", "updated"}
	reservationCols = []string{"id", "worker_id", "customer_id", "state", "expires_at", "contract_id", "created", "updated"}
	paymentCols     = []string{"id", "contract_id", "token", "phone", "otp_hash", "otp_attempts", "otp_max_attempts", "status", "expires_at", "created", "updated"}
)

const (
	lockWorker         = `FROM workers WHERE id = \$1 FOR UPDATE$`
	lockReservation    = `FROM worker_reservations WHERE id = \$1 FOR UPDATE$`
	lockLiveForWorker  = `FROM worker_reservations WHERE worker_id = \$1 .* FOR UPDATE$`
	readReservation    = `FROM worker_reservations WHERE id = \$1$`
	listExpiredHolds   = `FROM worker_reservations WHERE state IN .* LIMIT \$4$`
	listExpiredSession = `FROM payment_sessions WHERE status = \$1 .* LIMIT \$3$`
)

func newPostgresEngine(t *testing.T) (*engine.Engine, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	clk := clock.NewFake(t0)
	store := sqlstore.New(dbpkg.Wrap(conn, dbpkg.Postgres, nil), nil, sqlstore.WithClock(clk))
	eng, err := engine.New(engine.Deps{
		Store:      store,
		Clock:      clk,
		Publisher:  &events.Recorder{},
		OTP:        otp.NewMemory(),
		BcryptCost: 4,
	})
	require.NoError(t, err)
	return eng, mock
}

func workerRow(status string) *sqlmock.Rows {
	return sqlmock.NewRows(workerCols).AddRow(int64(7), "Ana", status, nil, int64(0))
}

func reservationRow(state string, expiresAtMillis int64) *sqlmock.Rows {
	return sqlmock.NewRows(reservationCols).AddRow(int64(11), int64(7), int64(1), state, expiresAtMillis, nil, int64(0), int64(0))
}

func TestPostgresLockOrder_Reserve(t *testing.T) {
	eng, mock := newPostgresEngine(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockWorker).WithArgs(int64(7)).WillReturnRows(workerRow("Ready"))
	mock.ExpectQuery(lockLiveForWorker).WillReturnError(errHalt)
	mock.ExpectRollback()

	_, err := eng.Reservations.Reserve(context.Background(), 7, 1, customer)
	assert.ErrorIs(t, err, errHalt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLockOrder_CreateFromReservation(t *testing.T) {
	eng, mock := newPostgresEngine(t)

	mock.ExpectQuery(readReservation).WithArgs(int64(11)).
		WillReturnRows(reservationRow("AwaitingContract", t0.Add(5 * time.Minute).UnixMilli()))
	mock.ExpectBegin()
	mock.ExpectQuery(lockWorker).WithArgs(int64(7)).WillReturnRows(workerRow("ReservedAwaitingContract"))
	mock.ExpectQuery(lockReservation).WithArgs(int64(11)).WillReturnError(errHalt)
	mock.ExpectRollback()

	_, err := eng.Contracts.CreateFromReservation(context.Background(), 11, engine.ContractInput{TotalAmount: 100, Currency: "BRL"}, customer)
	assert.ErrorIs(t, err, errHalt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLockOrder_Cancel(t *testing.T) {
	eng, mock := newPostgresEngine(t)

	mock.ExpectQuery(readReservation).WithArgs(int64(11)).
		WillReturnRows(reservationRow("AwaitingContract", t0.Add(5 * time.Minute).UnixMilli()))
	mock.ExpectBegin()
	mock.ExpectQuery(lockWorker).WithArgs(int64(7)).WillReturnRows(workerRow("ReservedAwaitingContract"))
	mock.ExpectQuery(lockReservation).WithArgs(int64(11)).WillReturnError(errHalt)
	mock.ExpectRollback()

	err := eng.Reservations.Cancel(context.Background(), 11, customer)
	assert.ErrorIs(t, err, errHalt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLockOrder_Sweeper(t *testing.T) {
	eng, mock := newPostgresEngine(t)

	mock.ExpectQuery(listExpiredHolds).
		WillReturnRows(reservationRow("AwaitingContract", t0.Add(-5 * time.Minute).UnixMilli()))
	mock.ExpectBegin()
	mock.ExpectQuery(lockWorker).WithArgs(int64(7)).WillReturnRows(workerRow("ReservedAwaitingContract"))
	mock.ExpectQuery(lockReservation).WithArgs(int64(11)).WillReturnError(errHalt)
	mock.ExpectRollback()
	mock.ExpectQuery(listExpiredSession).WillReturnRows(sqlmock.NewRows(paymentCols))

	res, err := eng.Sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, engine.SweepResult{Failed: 1}, res)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLockOrder_Approve(t *testing.T) {
	eng, mock := newPostgresEngine(t)

	proposalCols := []string{"id", "request_id", "agency_id", "offered_qty", "approved_qty", "status", "notes", "created", "updated"}
	requestCols := []string{"id", "customer_id", "quantity_required", "quantity_awarded", "status", "created", "updated"}

	mock.ExpectQuery(`FROM supplier_proposals WHERE id = \$1$`).WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows(proposalCols).AddRow(int64(5), int64(2), int64(9), 3, 0, "Submitted", nil, int64(0), int64(0)))
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM recruitment_requests WHERE id = \$1 FOR UPDATE$`).WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows(requestCols).AddRow(int64(2), int64(1), 5, 0, "Open", int64(0), int64(0)))
	mock.ExpectQuery(`FROM supplier_proposals WHERE id = \$1 FOR UPDATE$`).WithArgs(int64(5)).WillReturnError(errHalt)
	mock.ExpectRollback()

	_, err := eng.Allocation.Approve(context.Background(), 5, 2, admin)
	assert.ErrorIs(t, err, errHalt)
	assert.NoError(t, mock.ExpectationsWereMet())
}
