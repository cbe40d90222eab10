package engine

import (
	"context"
	"fmt"
	"regexp"

	"github.com/garnizeh/staffing/internal/events"
	"github.com/garnizeh/staffing/pkg/models"
	"github.com/garnizeh/staffing/pkg/repository"
)

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// ContractInput is the customer-supplied part of a contract.
type ContractInput struct {
	TotalAmount int64   `json:"total_amount"`
	Currency    string  `json:"currency"`
	StartDate   *string `json:"start_date,omitempty"`
	Notes       *string `json:"notes,omitempty"`
}

func (in ContractInput) validate() error {
	if in.TotalAmount <= 0 {
		return fmt.Errorf("total_amount must be positive: %w", ErrInvalidInput)
	}
	if !currencyPattern.MatchString(in.Currency) {
		return fmt.Errorf("currency %q is not an ISO 4217 code: %w", in.Currency, ErrInvalidInput)
	}
	return nil
}

// Contracts drives a contract from creation through activation to completion.
type Contracts struct {
	*core
}

// CreateFromReservation turns an AwaitingContract reservation into an
// unpaid contract. The contract insert, the reservation advance and the
// worker move commit together. A lapsed reservation is expired on the spot
// and reported as ErrReservationExpired.
func (c *Contracts) CreateFromReservation(ctx context.Context, reservationID int64, in ContractInput, actor string) (_ *models.Contract, err error) {
	ctx, done := c.inst.Track(ctx, "create_contract")
	defer func() { done(err) }()

	if err := in.validate(); err != nil {
		return nil, err
	}

	snap, err := c.store.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, fmt.Errorf("reservation %d: %w: %w", reservationID, ErrReservationExpired, ErrNotFound)
	}

	t := c.cfg.Timeouts()
	now := c.clock.Now()
	b := newBatch(now, actor)

	var (
		out     *models.Contract
		outcome error
	)
	err = c.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		w, err := tx.GetWorker(ctx, snap.WorkerID)
		if err != nil {
			return err
		}
		res, err := tx.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if res == nil {
			return fmt.Errorf("reservation %d: %w: %w", reservationID, ErrReservationExpired, ErrNotFound)
		}
		if res.State != models.ReservationAwaitingContract {
			return fmt.Errorf("reservation %d is %s: %w", reservationID, res.State, ErrReservationExpired)
		}
		if res.Expired(now) {
			if err := c.endChain(ctx, tx, b, res, endExpire); err != nil {
				return err
			}
			outcome = fmt.Errorf("reservation %d lapsed at %s: %w", reservationID, res.ExpiresAt.Format("15:04:05"), ErrReservationExpired)
			return nil
		}

		if w == nil || w.Status != models.WorkerReservedAwaitingContract {
			return c.conflict(ctx, "create_contract", "reservation %d is AwaitingContract but worker %d is not ReservedAwaitingContract", res.ID, res.WorkerID)
		}

		contract := &models.Contract{
			CustomerID:    res.CustomerID,
			WorkerID:      res.WorkerID,
			ReservationID: res.ID,
			Status:        models.ContractAwaitingPayment,
			TotalAmount:   in.TotalAmount,
			Currency:      in.Currency,
			StartDate:     in.StartDate,
			Notes:         in.Notes,
		}
		id, err := tx.CreateContract(ctx, contract)
		if err != nil {
			return err
		}
		if err := advanceReservation(ctx, tx, b, res, models.ReservationAwaitingPayment, now.Add(t.PaymentTTL), &id); err != nil {
			return err
		}
		if err := moveWorker(ctx, tx, b, w, models.WorkerReservedAwaitingPayment, &id); err != nil {
			return err
		}
		if out, err = tx.GetContract(ctx, id); err != nil {
			return err
		}

		refs := map[string]int64{"reservation": res.ID, "worker": res.WorkerID}
		b.transition(events.EntityContract, id, "", string(models.ContractAwaitingPayment), refs)
		b.emit(events.KindContractCreated, events.EntityContract, id, refs)
		return nil
	})
	if err != nil {
		return nil, c.settle(ctx, "create_contract", err)
	}

	c.publish(ctx, b)
	if outcome != nil {
		return nil, outcome
	}
	c.logger.InfoContext(ctx, "contract created", "contract", out.ID, "reservation", reservationID)
	return out, nil
}

// Activate marks a paid contract Active, assigns the worker and completes
// the reservation.
func (c *Contracts) Activate(ctx context.Context, contractID int64, actor string) (_ *models.Contract, err error) {
	ctx, done := c.inst.Track(ctx, "activate_contract")
	defer func() { done(err) }()

	snap, err := c.store.GetContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, fmt.Errorf("contract %d: %w", contractID, ErrNotFound)
	}

	now := c.clock.Now()
	b := newBatch(now, actor)

	var (
		out     *models.Contract
		outcome error
	)
	err = c.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.GetWorker(ctx, snap.WorkerID); err != nil {
			return err
		}
		contract, err := tx.GetContract(ctx, contractID)
		if err != nil {
			return err
		}
		if contract == nil {
			return fmt.Errorf("contract %d: %w", contractID, ErrNotFound)
		}
		res, err := tx.GetReservation(ctx, contract.ReservationID)
		if err != nil {
			return err
		}
		if res != nil && res.State == models.ReservationAwaitingPayment && res.Expired(now) {
			if err := c.endChain(ctx, tx, b, res, endExpire); err != nil {
				return err
			}
			outcome = fmt.Errorf("reservation %d lapsed: %w", res.ID, ErrReservationExpired)
			return nil
		}

		out, err = c.activate(ctx, tx, b, contract)
		return err
	})
	if err != nil {
		return nil, c.settle(ctx, "activate_contract", err)
	}

	c.publish(ctx, b)
	if outcome != nil {
		return nil, outcome
	}
	return out, nil
}

// activate applies the activation writes inside the caller's transaction.
// Any mismatch between contract, worker and reservation is a state conflict.
func (c *Contracts) activate(ctx context.Context, tx repository.Tx, b *batch, contract *models.Contract) (*models.Contract, error) {
	const op = "activate_contract"
	if contract.Status != models.ContractAwaitingPayment {
		return nil, c.conflict(ctx, op, "contract %d is %s", contract.ID, contract.Status)
	}

	w, err := tx.GetWorker(ctx, contract.WorkerID)
	if err != nil {
		return nil, err
	}
	if w == nil || w.Status != models.WorkerReservedAwaitingPayment || w.CurrentContractID == nil || *w.CurrentContractID != contract.ID {
		return nil, c.conflict(ctx, op, "worker %d is not held for contract %d", contract.WorkerID, contract.ID)
	}

	res, err := tx.GetReservation(ctx, contract.ReservationID)
	if err != nil {
		return nil, err
	}
	if res == nil || res.State != models.ReservationAwaitingPayment {
		return nil, c.conflict(ctx, op, "reservation %d of contract %d is not AwaitingPayment", contract.ReservationID, contract.ID)
	}

	if err := moveContract(ctx, tx, b, contract, models.ContractActive); err != nil {
		return nil, err
	}
	if err := moveWorker(ctx, tx, b, w, models.WorkerAssignedToContract, w.CurrentContractID); err != nil {
		return nil, err
	}
	if err := moveReservation(ctx, tx, b, res, models.ReservationCompleted); err != nil {
		return nil, err
	}
	return tx.GetContract(ctx, contract.ID)
}

// Complete closes an Active contract and releases the worker.
func (c *Contracts) Complete(ctx context.Context, contractID int64, actor string) (_ *models.Contract, err error) {
	ctx, done := c.inst.Track(ctx, "complete_contract")
	defer func() { done(err) }()

	snap, err := c.store.GetContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, fmt.Errorf("contract %d: %w", contractID, ErrNotFound)
	}

	b := newBatch(c.clock.Now(), actor)
	var out *models.Contract
	err = c.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		w, err := tx.GetWorker(ctx, snap.WorkerID)
		if err != nil {
			return err
		}
		contract, err := tx.GetContract(ctx, contractID)
		if err != nil {
			return err
		}
		if contract == nil {
			return fmt.Errorf("contract %d: %w", contractID, ErrNotFound)
		}
		if contract.Status != models.ContractActive {
			return fmt.Errorf("contract %d is %s: %w", contractID, contract.Status, ErrInvalidTransition)
		}

		held := w != nil && w.CurrentContractID != nil && *w.CurrentContractID == contract.ID &&
			(w.Status == models.WorkerAssignedToContract || w.Status == models.WorkerInProgress)
		if !held {
			return c.conflict(ctx, "complete_contract", "worker %d is not assigned to contract %d", contract.WorkerID, contract.ID)
		}

		if err := moveContract(ctx, tx, b, contract, models.ContractCompleted); err != nil {
			return err
		}
		if err := moveWorker(ctx, tx, b, w, models.WorkerReady, nil); err != nil {
			return err
		}
		b.emit(events.KindContractCompleted, events.EntityContract, contract.ID, map[string]int64{"worker": w.ID})
		out, err = tx.GetContract(ctx, contract.ID)
		return err
	})
	if err != nil {
		return nil, c.settle(ctx, "complete_contract", err)
	}

	c.publish(ctx, b)
	return out, nil
}
