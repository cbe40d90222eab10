package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/garnizeh/staffing/internal/events"
	"github.com/garnizeh/staffing/pkg/models"
	"github.com/garnizeh/staffing/pkg/repository"
)

// The helpers below validate a change against the transition table, apply
// it as a compare-and-set on the state the caller read, record the audit
// event and update the in-memory copy. A CAS that matches nothing returns
// errLostRace.

func moveWorker(ctx context.Context, tx repository.Tx, b *batch, w *models.Worker, to models.WorkerStatus, contractID *int64) error {
	if err := models.CheckWorker(w.Status, to); err != nil {
		return err
	}
	ok, err := tx.SetWorkerStatus(ctx, w.ID, w.Status, to, contractID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("worker %d: %w", w.ID, errLostRace)
	}
	b.transition(events.EntityWorker, w.ID, string(w.Status), string(to), nil)
	w.Status = to
	w.CurrentContractID = contractID
	return nil
}

func moveReservation(ctx context.Context, tx repository.Tx, b *batch, r *models.WorkerReservation, to models.ReservationState) error {
	if err := models.CheckReservation(r.State, to); err != nil {
		return err
	}
	ok, err := tx.SetReservationState(ctx, r.ID, r.State, to)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("reservation %d: %w", r.ID, errLostRace)
	}
	b.transition(events.EntityReservation, r.ID, string(r.State), string(to), map[string]int64{"worker": r.WorkerID})
	r.State = to
	return nil
}

func advanceReservation(ctx context.Context, tx repository.Tx, b *batch, r *models.WorkerReservation, to models.ReservationState, expiresAt time.Time, contractID *int64) error {
	if err := models.CheckReservation(r.State, to); err != nil {
		return err
	}
	ok, err := tx.AdvanceReservation(ctx, r.ID, r.State, to, expiresAt, contractID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("reservation %d: %w", r.ID, errLostRace)
	}
	b.transition(events.EntityReservation, r.ID, string(r.State), string(to), map[string]int64{"worker": r.WorkerID})
	r.State = to
	r.ExpiresAt = expiresAt
	r.ContractID = contractID
	return nil
}

func moveContract(ctx context.Context, tx repository.Tx, b *batch, c *models.Contract, to models.ContractStatus) error {
	if err := models.CheckContract(c.Status, to); err != nil {
		return err
	}
	ok, err := tx.SetContractStatus(ctx, c.ID, c.Status, to)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("contract %d: %w", c.ID, errLostRace)
	}
	b.transition(events.EntityContract, c.ID, string(c.Status), string(to), map[string]int64{"worker": c.WorkerID, "reservation": c.ReservationID})
	c.Status = to
	return nil
}

func movePayment(ctx context.Context, tx repository.Tx, b *batch, s *models.PaymentSession, to models.PaymentStatus) error {
	if err := models.CheckPayment(s.Status, to); err != nil {
		return err
	}
	ok, err := tx.SetPaymentStatus(ctx, s.ID, s.Status, to)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("payment session %d: %w", s.ID, errLostRace)
	}
	b.transition(events.EntityPayment, s.ID, string(s.Status), string(to), map[string]int64{"contract": s.ContractID})
	s.Status = to
	return nil
}

func moveRequest(ctx context.Context, tx repository.Tx, b *batch, r *models.RecruitmentRequest, to models.RequestStatus) error {
	if err := models.CheckRequest(r.Status, to); err != nil {
		return err
	}
	ok, err := tx.SetRequestStatus(ctx, r.ID, r.Status, to)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("recruitment request %d: %w", r.ID, errLostRace)
	}
	if r.Status != to {
		b.transition(events.EntityRequest, r.ID, string(r.Status), string(to), nil)
	}
	r.Status = to
	return nil
}

func decideProposal(ctx context.Context, tx repository.Tx, b *batch, p *models.SupplierProposal, to models.ProposalStatus, approvedQty int) error {
	if err := models.CheckProposal(p.Status, to); err != nil {
		return err
	}
	ok, err := tx.DecideProposal(ctx, p.ID, p.Status, to, approvedQty)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("proposal %d: %w", p.ID, errLostRace)
	}
	b.transition(events.EntityProposal, p.ID, string(p.Status), string(to), map[string]int64{"request": p.RequestID})
	p.Status = to
	p.ApprovedQty = approvedQty
	return nil
}
