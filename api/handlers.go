package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/garnizeh/staffing/internal/engine"
	"github.com/garnizeh/staffing/pkg/repository"
)

// Handlers exposes the engine over HTTP. The store is used only for the
// unlocked reads behind ownership checks; every mutation goes through the
// engine.
type Handlers struct {
	eng   *engine.Engine
	store repository.Store
}

func NewHandlers(eng *engine.Engine, store repository.Store) *Handlers {
	return &Handlers{eng: eng, store: store}
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q: %w", mux.Vars(r)["id"], engine.ErrInvalidInput)
	}
	return id, nil
}

// caller returns the principal and, for customers and agencies, their numeric id.
func caller(r *http.Request) (Principal, int64, error) {
	p, ok := principalFrom(r.Context())
	if !ok {
		return Principal{}, 0, fmt.Errorf("no principal: %w", engine.ErrInvalidInput)
	}
	if p.Role == RoleAdmin {
		return p, 0, nil
	}
	id, err := p.ID()
	if err != nil {
		return p, 0, fmt.Errorf("%v: %w", err, engine.ErrInvalidInput)
	}
	return p, id, nil
}

// ownsReservation hides reservations of other customers behind ErrNotFound.
func (h *Handlers) ownsReservation(ctx context.Context, p Principal, customerID, reservationID int64) error {
	if p.Role == RoleAdmin {
		return nil
	}
	res, err := h.store.GetReservation(ctx, reservationID)
	if err != nil {
		return err
	}
	if res == nil || res.CustomerID != customerID {
		return fmt.Errorf("reservation %d: %w", reservationID, engine.ErrNotFound)
	}
	return nil
}

func (h *Handlers) ownsContract(ctx context.Context, p Principal, customerID, contractID int64) error {
	if p.Role == RoleAdmin {
		return nil
	}
	c, err := h.store.GetContract(ctx, contractID)
	if err != nil {
		return err
	}
	if c == nil || c.CustomerID != customerID {
		return fmt.Errorf("contract %d: %w", contractID, engine.ErrNotFound)
	}
	return nil
}

func (h *Handlers) ownsSession(ctx context.Context, p Principal, customerID int64, token string) error {
	s, err := h.store.GetPaymentSessionByToken(ctx, token)
	if err != nil {
		return err
	}
	if s == nil {
		return fmt.Errorf("payment session: %w", engine.ErrNotFound)
	}
	return h.ownsContract(ctx, p, customerID, s.ContractID)
}

func (h *Handlers) Reserve(w http.ResponseWriter, r *http.Request) {
	workerID, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, customerID, err := caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.eng.Reservations.Reserve(r.Context(), workerID, customerID, p.Actor())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, res, http.StatusCreated)
}

func (h *Handlers) CancelReservation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, customerID, err := caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.ownsReservation(r.Context(), p, customerID, id); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.eng.Reservations.Cancel(r.Context(), id, p.Actor()); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) CreateContract(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, customerID, err := caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in engine.ContractInput
	if !decodeValid(w, r, contractSchema, &in) {
		return
	}
	if err := h.ownsReservation(r.Context(), p, customerID, id); err != nil {
		writeError(w, r, err)
		return
	}

	c, err := h.eng.Contracts.CreateFromReservation(r.Context(), id, in, p.Actor())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, c, http.StatusCreated)
}

func (h *Handlers) CompleteContract(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, _, err := caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	c, err := h.eng.Contracts.Complete(r.Context(), id, p.Actor())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, c, http.StatusOK)
}

type sessionRequest struct {
	Phone string `json:"phone"`
}

func (h *Handlers) CreatePaymentSession(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, customerID, err := caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req sessionRequest
	if !decodeValid(w, r, sessionSchema, &req) {
		return
	}
	if err := h.ownsContract(r.Context(), p, customerID, id); err != nil {
		writeError(w, r, err)
		return
	}

	s, err := h.eng.Payments.CreateSession(r.Context(), id, req.Phone, p.Actor())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, s, http.StatusCreated)
}

type verifyRequest struct {
	Code string `json:"code"`
}

func (h *Handlers) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	p, customerID, err := caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req verifyRequest
	if !decodeValid(w, r, verifySchema, &req) {
		return
	}
	if err := h.ownsSession(r.Context(), p, customerID, token); err != nil {
		writeError(w, r, err)
		return
	}

	c, err := h.eng.Payments.VerifyOTPByToken(r.Context(), token, req.Code, p.Actor())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, c, http.StatusOK)
}

func (h *Handlers) CancelPayment(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	p, customerID, err := caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.ownsSession(r.Context(), p, customerID, token); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.eng.Payments.CancelByToken(r.Context(), token, p.Actor()); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) SubmitProposal(w http.ResponseWriter, r *http.Request) {
	requestID, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, agencyID, err := caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in engine.ProposalInput
	if !decodeValid(w, r, proposalSchema, &in) {
		return
	}

	prop, err := h.eng.Allocation.Submit(r.Context(), requestID, agencyID, in, p.Actor())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, prop, http.StatusCreated)
}

type approveRequest struct {
	ApprovedQty *int `json:"approved_qty,omitempty"`
}

// ApproveProposal awards approved_qty, or the full offer when it is omitted.
func (h *Handlers) ApproveProposal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, _, err := caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req approveRequest
	if !decodeValid(w, r, approveSchema, &req) {
		return
	}

	qty := 0
	if req.ApprovedQty != nil {
		qty = *req.ApprovedQty
	} else {
		current, err := h.store.GetProposal(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if current == nil {
			writeError(w, r, fmt.Errorf("proposal %d: %w", id, engine.ErrNotFound))
			return
		}
		qty = current.OfferedQty
	}

	prop, err := h.eng.Allocation.Approve(r.Context(), id, qty, p.Actor())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, prop, http.StatusOK)
}

func (h *Handlers) RejectProposal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, _, err := caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	prop, err := h.eng.Allocation.Reject(r.Context(), id, p.Actor())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, prop, http.StatusOK)
}

func (h *Handlers) WithdrawProposal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, agencyID, err := caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	prop, err := h.eng.Allocation.Withdraw(r.Context(), id, agencyID, p.Actor())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, prop, http.StatusOK)
}

func (h *Handlers) CloseRequest(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, _, err := caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	req, err := h.eng.Allocation.CloseRequest(r.Context(), id, p.Actor())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, req, http.StatusOK)
}

func (h *Handlers) Sweep(w http.ResponseWriter, r *http.Request) {
	res, err := h.eng.Sweeper.RunOnce(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, res, http.StatusOK)
}
