package engine

import (
	"context"
	"fmt"

	"github.com/garnizeh/staffing/internal/events"
	"github.com/garnizeh/staffing/pkg/models"
	"github.com/garnizeh/staffing/pkg/repository"
)

type ending int

const (
	endCancel ending = iota
	endExpire
)

// endChain closes a live reservation and everything hanging off it: the
// reservation becomes Cancelled or Expired, the worker goes back to Ready,
// an unpaid contract is cancelled and its pending payment sessions end the
// same way as the reservation. Each write is state-guarded, so a chain
// already closed by someone else surfaces as errLostRace.
//
// Callers must already hold the worker row. Every transaction that touches
// more than one row of a worker's chain locks the worker first, taking its
// id from an unlocked read beforehand, then the reservation, the contract
// and the sessions. Single-row session updates are exempt.
func (c *core) endChain(ctx context.Context, tx repository.Tx, b *batch, res *models.WorkerReservation, how ending) error {
	resTo, payTo, kind := models.ReservationCancelled, models.PaymentCancelled, events.KindCancelled
	if how == endExpire {
		resTo, payTo, kind = models.ReservationExpired, models.PaymentExpired, events.KindExpired
	}

	if err := moveReservation(ctx, tx, b, res, resTo); err != nil {
		return err
	}

	refs := map[string]int64{"worker": res.WorkerID}

	w, err := tx.GetWorker(ctx, res.WorkerID)
	if err != nil {
		return err
	}
	if w == nil {
		return c.conflict(ctx, "end_chain", "reservation %d points at missing worker %d", res.ID, res.WorkerID)
	}
	switch w.Status {
	case models.WorkerReservedAwaitingContract, models.WorkerReservedAwaitingPayment:
		if res.ContractID != nil && (w.CurrentContractID == nil || *w.CurrentContractID != *res.ContractID) {
			return c.conflict(ctx, "end_chain", "worker %d holds contract %s, reservation %d holds %d", w.ID, idString(w.CurrentContractID), res.ID, *res.ContractID)
		}
		if err := moveWorker(ctx, tx, b, w, models.WorkerReady, nil); err != nil {
			return err
		}
	default:
		// a worker that is no longer held (e.g. Terminated) keeps its status
		c.logger.WarnContext(ctx, "reservation closed with worker not held", "reservation", res.ID, "worker", w.ID, "status", w.Status)
	}

	if res.ContractID != nil {
		refs["contract"] = *res.ContractID
		contract, err := tx.GetContract(ctx, *res.ContractID)
		if err != nil {
			return err
		}
		if contract == nil {
			return c.conflict(ctx, "end_chain", "reservation %d points at missing contract %d", res.ID, *res.ContractID)
		}
		if contract.Status == models.ContractAwaitingPayment {
			if err := moveContract(ctx, tx, b, contract, models.ContractCancelled); err != nil {
				return err
			}
		}

		sessions, err := tx.ListPendingSessionsForContract(ctx, contract.ID)
		if err != nil {
			return err
		}
		for i := range sessions {
			if err := movePayment(ctx, tx, b, &sessions[i], payTo); err != nil {
				return fmt.Errorf("end payment session: %w", err)
			}
		}
	}

	b.emit(kind, events.EntityReservation, res.ID, refs)
	return nil
}

func idString(id *int64) string {
	if id == nil {
		return "none"
	}
	return fmt.Sprint(*id)
}
