package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/garnizeh/staffing/pkg/models"
)

const reservationColumns = `id, worker_id, customer_id, state, expires_at, contract_id, created, updated`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(row rowScanner) (*models.WorkerReservation, error) {
	var (
		res       models.WorkerReservation
		state     string
		expiresAt int64
		contract  sql.NullInt64
		created   int64
		updated   int64
	)
	if err := row.Scan(&res.ID, &res.WorkerID, &res.CustomerID, &state, &expiresAt, &contract, &created, &updated); err != nil {
		return nil, err
	}
	res.State = models.ReservationState(state)
	res.ExpiresAt = fromMillis(expiresAt)
	res.ContractID = ptrInt64(contract)
	res.Created = fromMillis(created)
	res.Updated = fromMillis(updated)
	return &res, nil
}

func (r *repo) CreateReservation(ctx context.Context, res *models.WorkerReservation) (int64, error) {
	if res == nil {
		return 0, fmt.Errorf("reservation is nil")
	}
	if res.ExpiresAt.IsZero() {
		return 0, fmt.Errorf("reservation expires_at is required")
	}

	now := r.now()
	var id int64
	err := r.q.QueryRow(ctx, `INSERT INTO worker_reservations (worker_id, customer_id, state, expires_at, contract_id, created, updated) VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		res.WorkerID, res.CustomerID, string(res.State), toMillis(res.ExpiresAt), nullInt64(res.ContractID), now, now).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert reservation: %w", err)
	}
	return id, nil
}

func (r *repo) GetReservation(ctx context.Context, id int64) (*models.WorkerReservation, error) {
	res, err := scanReservation(r.q.QueryRow(ctx, r.lock(`SELECT `+reservationColumns+` FROM worker_reservations WHERE id = ?`), id))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get reservation %d: %w", id, err)
	}
	return res, nil
}

func (r *repo) LiveReservationForWorker(ctx context.Context, workerID int64) (*models.WorkerReservation, error) {
	res, err := scanReservation(r.q.QueryRow(ctx, r.lock(`SELECT `+reservationColumns+` FROM worker_reservations WHERE worker_id = ? AND state IN (?, ?) ORDER BY id DESC LIMIT 1`),
		workerID, string(models.ReservationAwaitingContract), string(models.ReservationAwaitingPayment)))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("live reservation for worker %d: %w", workerID, err)
	}
	return res, nil
}

func (r *repo) AdvanceReservation(ctx context.Context, id int64, from, to models.ReservationState, expiresAt time.Time, contractID *int64) (bool, error) {
	ok, err := changed(r.q.Exec(ctx, `UPDATE worker_reservations SET state = ?, expires_at = ?, contract_id = ?, updated = ? WHERE id = ? AND state = ?`,
		string(to), toMillis(expiresAt), nullInt64(contractID), r.now(), id, string(from)))
	if err != nil {
		return false, fmt.Errorf("advance reservation %d: %w", id, err)
	}
	return ok, nil
}

func (r *repo) SetReservationState(ctx context.Context, id int64, from, to models.ReservationState) (bool, error) {
	ok, err := changed(r.q.Exec(ctx, `UPDATE worker_reservations SET state = ?, updated = ? WHERE id = ? AND state = ?`,
		string(to), r.now(), id, string(from)))
	if err != nil {
		return false, fmt.Errorf("update reservation %d: %w", id, err)
	}
	return ok, nil
}

// ListExpiredReservations returns live reservations whose expires_at is before now, oldest first.
func (r *repo) ListExpiredReservations(ctx context.Context, now time.Time, limit int) ([]models.WorkerReservation, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.q.QueryRows(ctx, `SELECT `+reservationColumns+` FROM worker_reservations WHERE state IN (?, ?) AND expires_at < ? ORDER BY expires_at ASC LIMIT ?`,
		string(models.ReservationAwaitingContract), string(models.ReservationAwaitingPayment), toMillis(now), limit)
	if err != nil {
		return nil, fmt.Errorf("list expired reservations: %w", err)
	}
	defer rows.Close()

	var out []models.WorkerReservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}
