package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/garnizeh/staffing/internal/events"
	"github.com/garnizeh/staffing/pkg/models"
	"github.com/garnizeh/staffing/pkg/repository"
)

// ProposalInput is what an agency offers against a recruitment request.
type ProposalInput struct {
	OfferedQty int     `json:"offered_qty"`
	Notes      *string `json:"notes,omitempty"`
}

// Allocation awards recruitment request capacity to agency proposals.
type Allocation struct {
	*core
}

// Submit records an agency's offer. The remaining-capacity check here reads
// without a lock and only screens out offers that cannot fit; Approve is
// where capacity is enforced.
func (a *Allocation) Submit(ctx context.Context, requestID, agencyID int64, in ProposalInput, actor string) (_ *models.SupplierProposal, err error) {
	ctx, done := a.inst.Track(ctx, "submit_proposal")
	defer func() { done(err) }()

	if in.OfferedQty <= 0 {
		return nil, fmt.Errorf("offered_qty must be positive: %w", ErrInvalidInput)
	}

	snap, err := a.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, fmt.Errorf("recruitment request %d: %w", requestID, ErrNotFound)
	}
	if snap.Status != models.RequestOpen {
		return nil, fmt.Errorf("recruitment request %d is %s: %w", requestID, snap.Status, ErrInvalidTransition)
	}
	if in.OfferedQty > snap.Remaining() {
		return nil, fmt.Errorf("offer of %d exceeds remaining %d: %w", in.OfferedQty, snap.Remaining(), ErrCapacityExceeded)
	}

	b := newBatch(a.clock.Now(), actor)
	var out *models.SupplierProposal
	err = a.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		req, err := tx.GetRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if req == nil {
			return fmt.Errorf("recruitment request %d: %w", requestID, ErrNotFound)
		}
		if req.Status != models.RequestOpen {
			return fmt.Errorf("recruitment request %d is %s: %w", requestID, req.Status, ErrInvalidTransition)
		}

		existing, err := tx.ActiveProposalForAgency(ctx, requestID, agencyID)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("agency %d on request %d: %w", agencyID, requestID, ErrDuplicateProposal)
		}

		id, err := tx.CreateProposal(ctx, &models.SupplierProposal{
			RequestID:  requestID,
			AgencyID:   agencyID,
			OfferedQty: in.OfferedQty,
			Status:     models.ProposalSubmitted,
			Notes:      in.Notes,
		})
		if err != nil {
			return err
		}
		if out, err = tx.GetProposal(ctx, id); err != nil {
			return err
		}
		b.transition(events.EntityProposal, id, "", string(models.ProposalSubmitted), map[string]int64{"request": requestID, "agency": agencyID})
		return nil
	})
	if err != nil {
		return nil, a.settle(ctx, "submit_proposal", err)
	}

	a.publish(ctx, b)
	return out, nil
}

// Approve awards approvedQty of the proposal's offer. The award is a single
// conditional increment that fails when it would push the request past
// quantity_required; that failure is ErrCapacityExceeded and the caller may
// retry with a smaller quantity.
func (a *Allocation) Approve(ctx context.Context, proposalID int64, approvedQty int, actor string) (_ *models.SupplierProposal, err error) {
	ctx, done := a.inst.Track(ctx, "approve_proposal")
	defer func() { done(err) }()

	snap, err := a.store.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, fmt.Errorf("proposal %d: %w", proposalID, ErrNotFound)
	}

	b := newBatch(a.clock.Now(), actor)
	var out *models.SupplierProposal
	err = a.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		// request before proposal, the same order Submit locks them in
		req, err := tx.GetRequest(ctx, snap.RequestID)
		if err != nil {
			return err
		}
		p, err := tx.GetProposal(ctx, proposalID)
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("proposal %d: %w", proposalID, ErrNotFound)
		}
		if p.Status != models.ProposalSubmitted {
			return fmt.Errorf("proposal %d is %s: %w", proposalID, p.Status, ErrInvalidTransition)
		}
		if approvedQty <= 0 || approvedQty > p.OfferedQty {
			return fmt.Errorf("approved_qty %d outside 1..%d: %w", approvedQty, p.OfferedQty, ErrInvalidInput)
		}

		if req == nil {
			return a.conflict(ctx, "approve_proposal", "proposal %d points at missing request %d", p.ID, p.RequestID)
		}
		if req.Status == models.RequestClosed {
			return fmt.Errorf("recruitment request %d is closed: %w", req.ID, ErrInvalidTransition)
		}

		awarded, ok, err := tx.AddAwarded(ctx, req.ID, approvedQty)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("approving %d on request %d: %w", approvedQty, req.ID, ErrCapacityExceeded)
		}
		req.QuantityAwarded = awarded

		to := models.ProposalApproved
		if approvedQty < p.OfferedQty {
			to = models.ProposalPartiallyApproved
		}
		if err := decideProposal(ctx, tx, b, p, to, approvedQty); err != nil {
			return err
		}

		reqTo := models.RequestPartiallyAwarded
		if awarded >= req.QuantityRequired {
			reqTo = models.RequestFullyAwarded
		}
		if err := moveRequest(ctx, tx, b, req, reqTo); err != nil {
			return err
		}

		b.emit(events.KindProposalApproved, events.EntityProposal, p.ID, map[string]int64{
			"request":      req.ID,
			"agency":       p.AgencyID,
			"approved_qty": int64(approvedQty),
			"awarded":      int64(awarded),
		})
		out = p
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrCapacityExceeded) {
			a.inst.CapacityRejected(ctx)
		}
		return nil, a.settle(ctx, "approve_proposal", err)
	}

	a.publish(ctx, b)
	return out, nil
}

// Reject declines a Submitted proposal. No capacity changes.
func (a *Allocation) Reject(ctx context.Context, proposalID int64, actor string) (_ *models.SupplierProposal, err error) {
	ctx, done := a.inst.Track(ctx, "reject_proposal")
	defer func() { done(err) }()
	return a.close(ctx, proposalID, 0, models.ProposalRejected, events.KindProposalRejected, actor)
}

// Withdraw lets the owning agency pull a Submitted proposal.
func (a *Allocation) Withdraw(ctx context.Context, proposalID, agencyID int64, actor string) (_ *models.SupplierProposal, err error) {
	ctx, done := a.inst.Track(ctx, "withdraw_proposal")
	defer func() { done(err) }()
	return a.close(ctx, proposalID, agencyID, models.ProposalCancelled, events.KindCancelled, actor)
}

// close ends a Submitted proposal without awarding anything. A non-zero
// agencyID restricts the change to that agency's proposal.
func (a *Allocation) close(ctx context.Context, proposalID, agencyID int64, to models.ProposalStatus, kind events.Kind, actor string) (*models.SupplierProposal, error) {
	b := newBatch(a.clock.Now(), actor)
	var out *models.SupplierProposal
	err := a.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		p, err := tx.GetProposal(ctx, proposalID)
		if err != nil {
			return err
		}
		if p == nil || (agencyID != 0 && p.AgencyID != agencyID) {
			return fmt.Errorf("proposal %d: %w", proposalID, ErrNotFound)
		}
		if err := decideProposal(ctx, tx, b, p, to, 0); err != nil {
			return err
		}
		b.emit(kind, events.EntityProposal, p.ID, map[string]int64{"request": p.RequestID, "agency": p.AgencyID})
		out = p
		return nil
	})
	if err != nil {
		return nil, a.settle(ctx, "close_proposal", err)
	}
	a.publish(ctx, b)
	return out, nil
}

// CloseRequest stops a request from taking further awards. Proposals still
// Submitted stay as they are but can no longer be approved.
func (a *Allocation) CloseRequest(ctx context.Context, requestID int64, actor string) (_ *models.RecruitmentRequest, err error) {
	ctx, done := a.inst.Track(ctx, "close_request")
	defer func() { done(err) }()

	b := newBatch(a.clock.Now(), actor)
	var out *models.RecruitmentRequest
	err = a.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		req, err := tx.GetRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if req == nil {
			return fmt.Errorf("recruitment request %d: %w", requestID, ErrNotFound)
		}
		if err := moveRequest(ctx, tx, b, req, models.RequestClosed); err != nil {
			return err
		}
		out = req
		return nil
	})
	if err != nil {
		return nil, a.settle(ctx, "close_request", err)
	}
	a.publish(ctx, b)
	return out, nil
}
