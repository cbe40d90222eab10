package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garnizeh/staffing/pkg/models"
)

func (r *repo) CreateWorker(ctx context.Context, w *models.Worker) (int64, error) {
	if w == nil {
		return 0, fmt.Errorf("worker is nil")
	}
	status := w.Status
	if status == "" {
		status = models.WorkerReady
	}

	var id int64
	err := r.q.QueryRow(ctx, `INSERT INTO workers (name, status, current_contract_id, updated) VALUES (?, ?, ?, ?) RETURNING id`,
		w.Name, string(status), nullInt64(w.CurrentContractID), r.now()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert worker: %w", err)
	}
	return id, nil
}

func (r *repo) GetWorker(ctx context.Context, id int64) (*models.Worker, error) {
	row := r.q.QueryRow(ctx, r.lock(`SELECT id, name, status, current_contract_id, updated FROM workers WHERE id = ?`), id)
	var (
		w        models.Worker
		status   string
		contract sql.NullInt64
		updated  int64
	)
	if err := row.Scan(&w.ID, &w.Name, &status, &contract, &updated); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get worker %d: %w", id, err)
	}
	w.Status = models.WorkerStatus(status)
	w.CurrentContractID = ptrInt64(contract)
	w.Updated = fromMillis(updated)
	return &w, nil
}

func (r *repo) SetWorkerStatus(ctx context.Context, id int64, from, to models.WorkerStatus, contractID *int64) (bool, error) {
	ok, err := changed(r.q.Exec(ctx, `UPDATE workers SET status = ?, current_contract_id = ?, updated = ? WHERE id = ? AND status = ?`,
		string(to), nullInt64(contractID), r.now(), id, string(from)))
	if err != nil {
		return false, fmt.Errorf("update worker %d: %w", id, err)
	}
	return ok, nil
}
