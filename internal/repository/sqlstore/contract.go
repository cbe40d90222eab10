package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garnizeh/staffing/pkg/models"
)

func (r *repo) CreateContract(ctx context.Context, c *models.Contract) (int64, error) {
	if c == nil {
		return 0, fmt.Errorf("contract is nil")
	}

	now := r.now()
	var id int64
	err := r.q.QueryRow(ctx, `INSERT INTO contracts (customer_id, worker_id, reservation_id, status, total_amount, currency, start_date, notes, created, updated) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		c.CustomerID, c.WorkerID, c.ReservationID, string(c.Status), c.TotalAmount, c.Currency, nullString(c.StartDate), nullString(c.Notes), now, now).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert contract: %w", err)
	}
	return id, nil
}

func (r *repo) GetContract(ctx context.Context, id int64) (*models.Contract, error) {
	row := r.q.QueryRow(ctx, r.lock(`SELECT id, customer_id, worker_id, reservation_id, status, total_amount, currency, start_date, notes, created, updated FROM contracts WHERE id = ?`), id)
	var (
		c         models.Contract
		status    string
		startDate sql.NullString
		notes     sql.NullString
		created   int64
		updated   int64
	)
	if err := row.Scan(&c.ID, &c.CustomerID, &c.WorkerID, &c.ReservationID, &status, &c.TotalAmount, &c.Currency, &startDate, &notes, &created, &updated); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get contract %d: %w", id, err)
	}
	c.Status = models.ContractStatus(status)
	c.StartDate = ptrString(startDate)
	c.Notes = ptrString(notes)
	c.Created = fromMillis(created)
	c.Updated = fromMillis(updated)
	return &c, nil
}

func (r *repo) SetContractStatus(ctx context.Context, id int64, from, to models.ContractStatus) (bool, error) {
	ok, err := changed(r.q.Exec(ctx, `UPDATE contracts SET status = ?, updated = ? WHERE id = ? AND status = ?`,
		string(to), r.now(), id, string(from)))
	if err != nil {
		return false, fmt.Errorf("update contract %d: %w", id, err)
	}
	return ok, nil
}
