package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/garnizeh/staffing/internal/events"
	"github.com/garnizeh/staffing/pkg/models"
	"github.com/garnizeh/staffing/pkg/repository"
)

// Coordinator hands out workers to customers, one live reservation at a time.
type Coordinator struct {
	*core
}

// Reserve moves a Ready worker to ReservedAwaitingContract and opens a
// reservation that lapses after the reservation TTL. A worker whose
// previous reservation lapsed without being swept is released first.
func (c *Coordinator) Reserve(ctx context.Context, workerID, customerID int64, actor string) (_ *models.WorkerReservation, err error) {
	ctx, done := c.inst.Track(ctx, "reserve")
	defer func() { done(err) }()

	t := c.cfg.Timeouts()
	now := c.clock.Now()
	b := newBatch(now, actor)

	var out *models.WorkerReservation
	err = c.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		w, err := tx.GetWorker(ctx, workerID)
		if err != nil {
			return err
		}
		if w == nil {
			return fmt.Errorf("worker %d: %w", workerID, ErrNotFound)
		}

		live, err := tx.LiveReservationForWorker(ctx, workerID)
		if err != nil {
			return err
		}
		if live != nil {
			if !live.Expired(now) {
				return fmt.Errorf("worker %d is held by reservation %d: %w", workerID, live.ID, ErrResourceUnavailable)
			}
			if err := c.endChain(ctx, tx, b, live, endExpire); err != nil {
				return err
			}
			if w, err = tx.GetWorker(ctx, workerID); err != nil {
				return err
			}
		}

		if w.Status != models.WorkerReady {
			return fmt.Errorf("worker %d is %s: %w", workerID, w.Status, ErrResourceUnavailable)
		}
		if err := moveWorker(ctx, tx, b, w, models.WorkerReservedAwaitingContract, nil); err != nil {
			if errors.Is(err, errLostRace) {
				return fmt.Errorf("worker %d: %w", workerID, ErrResourceUnavailable)
			}
			return err
		}

		res := &models.WorkerReservation{
			WorkerID:   workerID,
			CustomerID: customerID,
			State:      models.ReservationAwaitingContract,
			ExpiresAt:  now.Add(t.ReservationTTL),
		}
		id, err := tx.CreateReservation(ctx, res)
		if err != nil {
			return err
		}
		if out, err = tx.GetReservation(ctx, id); err != nil {
			return err
		}

		refs := map[string]int64{"worker": workerID, "customer": customerID}
		b.transition(events.EntityReservation, id, "", string(models.ReservationAwaitingContract), refs)
		b.emit(events.KindReserved, events.EntityReservation, id, refs)
		return nil
	})
	if err != nil {
		return nil, c.settle(ctx, "reserve", err)
	}

	c.publish(ctx, b)
	c.logger.InfoContext(ctx, "worker reserved", "worker", workerID, "reservation", out.ID, "customer", customerID, "expires_at", out.ExpiresAt)
	return out, nil
}

// Cancel ends a live reservation at the customer's request, cascading to
// the worker, an unpaid contract and pending payment sessions.
func (c *Coordinator) Cancel(ctx context.Context, reservationID int64, actor string) (err error) {
	ctx, done := c.inst.Track(ctx, "cancel_reservation")
	defer func() { done(err) }()

	snap, err := c.store.GetReservation(ctx, reservationID)
	if err != nil {
		return err
	}
	if snap == nil {
		return fmt.Errorf("reservation %d: %w", reservationID, ErrNotFound)
	}

	b := newBatch(c.clock.Now(), actor)
	err = c.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.GetWorker(ctx, snap.WorkerID); err != nil {
			return err
		}
		res, err := tx.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if res == nil {
			return fmt.Errorf("reservation %d: %w", reservationID, ErrNotFound)
		}
		if res.State.Terminal() {
			return fmt.Errorf("reservation %d is %s: %w", reservationID, res.State, ErrInvalidTransition)
		}
		return c.endChain(ctx, tx, b, res, endCancel)
	})
	if err != nil {
		return c.settle(ctx, "cancel_reservation", err)
	}

	c.publish(ctx, b)
	c.logger.InfoContext(ctx, "reservation cancelled", "reservation", reservationID, "actor", actor)
	return nil
}
