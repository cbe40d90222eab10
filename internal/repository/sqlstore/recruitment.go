package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/garnizeh/staffing/pkg/models"
)

func (r *repo) CreateRequest(ctx context.Context, req *models.RecruitmentRequest) (int64, error) {
	if req == nil {
		return 0, fmt.Errorf("recruitment request is nil")
	}
	status := req.Status
	if status == "" {
		status = models.RequestOpen
	}

	now := r.now()
	var id int64
	err := r.q.QueryRow(ctx, `INSERT INTO recruitment_requests (customer_id, quantity_required, quantity_awarded, status, created, updated) VALUES (?, ?, ?, ?, ?, ?) RETURNING id`,
		req.CustomerID, req.QuantityRequired, req.QuantityAwarded, string(status), now, now).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert recruitment request: %w", err)
	}
	return id, nil
}

func (r *repo) GetRequest(ctx context.Context, id int64) (*models.RecruitmentRequest, error) {
	row := r.q.QueryRow(ctx, r.lock(`SELECT id, customer_id, quantity_required, quantity_awarded, status, created, updated FROM recruitment_requests WHERE id = ?`), id)
	var (
		req     models.RecruitmentRequest
		status  string
		created int64
		updated int64
	)
	if err := row.Scan(&req.ID, &req.CustomerID, &req.QuantityRequired, &req.QuantityAwarded, &status, &created, &updated); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get recruitment request %d: %w", id, err)
	}
	req.Status = models.RequestStatus(status)
	req.Created = fromMillis(created)
	req.Updated = fromMillis(updated)
	return &req, nil
}

// AddAwarded is the capacity gate: the bound is checked and the increment
// applied by a single statement, so concurrent approvals cannot overshoot.
func (r *repo) AddAwarded(ctx context.Context, id int64, qty int) (int, bool, error) {
	in, statuses := statusIn(models.AwardableRequestStatuses())
	args := append([]any{qty, r.now(), id}, statuses...)
	args = append(args, qty)

	var awarded int
	err := r.q.QueryRow(ctx, `UPDATE recruitment_requests SET quantity_awarded = quantity_awarded + ?, updated = ? WHERE id = ? AND status IN `+in+` AND quantity_awarded + ? <= quantity_required RETURNING quantity_awarded`,
		args...).Scan(&awarded)
	if err != nil {
		if isNoRows(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("add awarded to request %d: %w", id, err)
	}
	return awarded, true, nil
}

func (r *repo) SetRequestStatus(ctx context.Context, id int64, from, to models.RequestStatus) (bool, error) {
	ok, err := changed(r.q.Exec(ctx, `UPDATE recruitment_requests SET status = ?, updated = ? WHERE id = ? AND status = ?`,
		string(to), r.now(), id, string(from)))
	if err != nil {
		return false, fmt.Errorf("update recruitment request %d: %w", id, err)
	}
	return ok, nil
}

const proposalColumns = `id, request_id, agency_id, offered_qty, approved_qty, status, notes, created, updated`

func scanProposal(row rowScanner) (*models.SupplierProposal, error) {
	var (
		p       models.SupplierProposal
		status  string
		notes   sql.NullString
		created int64
		updated int64
	)
	if err := row.Scan(&p.ID, &p.RequestID, &p.AgencyID, &p.OfferedQty, &p.ApprovedQty, &status, &notes, &created, &updated); err != nil {
		return nil, err
	}
	p.Status = models.ProposalStatus(status)
	p.Notes = ptrString(notes)
	p.Created = fromMillis(created)
	p.Updated = fromMillis(updated)
	return &p, nil
}

func (r *repo) CreateProposal(ctx context.Context, p *models.SupplierProposal) (int64, error) {
	if p == nil {
		return 0, fmt.Errorf("proposal is nil")
	}

	now := r.now()
	var id int64
	err := r.q.QueryRow(ctx, `INSERT INTO supplier_proposals (request_id, agency_id, offered_qty, approved_qty, status, notes, created, updated) VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		p.RequestID, p.AgencyID, p.OfferedQty, p.ApprovedQty, string(p.Status), nullString(p.Notes), now, now).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert proposal: %w", err)
	}
	return id, nil
}

func (r *repo) GetProposal(ctx context.Context, id int64) (*models.SupplierProposal, error) {
	p, err := scanProposal(r.q.QueryRow(ctx, r.lock(`SELECT `+proposalColumns+` FROM supplier_proposals WHERE id = ?`), id))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get proposal %d: %w", id, err)
	}
	return p, nil
}

func (r *repo) ActiveProposalForAgency(ctx context.Context, requestID, agencyID int64) (*models.SupplierProposal, error) {
	in, statuses := statusIn(models.ActiveProposalStatuses())
	args := append([]any{requestID, agencyID}, statuses...)

	p, err := scanProposal(r.q.QueryRow(ctx, `SELECT `+proposalColumns+` FROM supplier_proposals WHERE request_id = ? AND agency_id = ? AND status IN `+in+` ORDER BY id DESC LIMIT 1`,
		args...))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("active proposal for agency %d: %w", agencyID, err)
	}
	return p, nil
}

func (r *repo) ListProposals(ctx context.Context, requestID int64) ([]models.SupplierProposal, error) {
	rows, err := r.q.QueryRows(ctx, `SELECT `+proposalColumns+` FROM supplier_proposals WHERE request_id = ? ORDER BY id`, requestID)
	if err != nil {
		return nil, fmt.Errorf("list proposals for request %d: %w", requestID, err)
	}
	defer rows.Close()

	var out []models.SupplierProposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *repo) DecideProposal(ctx context.Context, id int64, from, to models.ProposalStatus, approvedQty int) (bool, error) {
	ok, err := changed(r.q.Exec(ctx, `UPDATE supplier_proposals SET status = ?, approved_qty = ?, updated = ? WHERE id = ? AND status = ?`,
		string(to), approvedQty, r.now(), id, string(from)))
	if err != nil {
		return false, fmt.Errorf("update proposal %d: %w", id, err)
	}
	return ok, nil
}

// statusIn renders an IN list with one placeholder per status.
func statusIn[S ~string](statuses []S) (string, []any) {
	args := make([]any, len(statuses))
	for i, st := range statuses {
		args[i] = string(st)
	}
	return "(" + strings.TrimSuffix(strings.Repeat("?, ", len(statuses)), ", ") + ")", args
}
