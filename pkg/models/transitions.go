package models

import (
	"errors"
	"fmt"
	"slices"
)

// ErrInvalidTransition is returned when a state change is not listed in the
// entity's transition table.
var ErrInvalidTransition = errors.New("invalid state transition")

// table maps a state to the states it may move to. States with no entry are terminal.
type table[S ~string] map[S][]S

func (t table[S]) allows(from, to S) bool {
	for _, s := range t[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (t table[S]) check(entity string, from, to S) error {
	if t.allows(from, to) {
		return nil
	}
	return fmt.Errorf("%s %s -> %s: %w", entity, from, to, ErrInvalidTransition)
}

var workerTransitions = table[WorkerStatus]{
	WorkerReady:                    {WorkerReservedAwaitingContract, WorkerTerminated},
	WorkerReservedAwaitingContract: {WorkerReservedAwaitingPayment, WorkerReady, WorkerTerminated},
	WorkerReservedAwaitingPayment:  {WorkerAssignedToContract, WorkerReady, WorkerTerminated},
	WorkerAssignedToContract:       {WorkerInProgress, WorkerReady, WorkerTerminated},
	WorkerInProgress:               {WorkerReady, WorkerTerminated},
}

var reservationTransitions = table[ReservationState]{
	ReservationAwaitingContract: {ReservationAwaitingPayment, ReservationCancelled, ReservationExpired},
	ReservationAwaitingPayment:  {ReservationCompleted, ReservationCancelled, ReservationExpired},
}

var contractTransitions = table[ContractStatus]{
	ContractAwaitingPayment: {ContractActive, ContractCancelled},
	ContractActive:          {ContractCompleted, ContractCancelled},
}

var paymentTransitions = table[PaymentStatus]{
	PaymentPending: {PaymentCompleted, PaymentCancelled, PaymentExpired},
}

var requestTransitions = table[RequestStatus]{
	RequestOpen:             {RequestPartiallyAwarded, RequestFullyAwarded, RequestClosed},
	RequestPartiallyAwarded: {RequestPartiallyAwarded, RequestFullyAwarded, RequestClosed},
	RequestFullyAwarded:     {RequestClosed},
}

var proposalTransitions = table[ProposalStatus]{
	ProposalSubmitted: {ProposalApproved, ProposalPartiallyApproved, ProposalRejected, ProposalCancelled},
}

func (s WorkerStatus) CanTransitionTo(to WorkerStatus) bool { return workerTransitions.allows(s, to) }
func (s WorkerStatus) Terminal() bool                       { return len(workerTransitions[s]) == 0 }

func (s ReservationState) CanTransitionTo(to ReservationState) bool {
	return reservationTransitions.allows(s, to)
}
func (s ReservationState) Terminal() bool { return len(reservationTransitions[s]) == 0 }

func (s ContractStatus) CanTransitionTo(to ContractStatus) bool {
	return contractTransitions.allows(s, to)
}
func (s ContractStatus) Terminal() bool { return len(contractTransitions[s]) == 0 }

func (s PaymentStatus) CanTransitionTo(to PaymentStatus) bool { return paymentTransitions.allows(s, to) }
func (s PaymentStatus) Terminal() bool                        { return len(paymentTransitions[s]) == 0 }

func (s RequestStatus) CanTransitionTo(to RequestStatus) bool { return requestTransitions.allows(s, to) }
func (s RequestStatus) Terminal() bool                        { return len(requestTransitions[s]) == 0 }

// AwardableRequestStatuses lists the request statuses approvals may still add to.
func AwardableRequestStatuses() []RequestStatus {
	return []RequestStatus{RequestOpen, RequestPartiallyAwarded}
}

// AcceptsAwards reports whether approvals may still add to the awarded quantity.
func (s RequestStatus) AcceptsAwards() bool {
	return slices.Contains(AwardableRequestStatuses(), s)
}

func (s ProposalStatus) CanTransitionTo(to ProposalStatus) bool {
	return proposalTransitions.allows(s, to)
}
func (s ProposalStatus) Terminal() bool { return len(proposalTransitions[s]) == 0 }

// ActiveProposalStatuses lists the statuses that hold an agency's one
// proposal slot on a request.
func ActiveProposalStatuses() []ProposalStatus {
	return []ProposalStatus{ProposalSubmitted, ProposalApproved, ProposalPartiallyApproved}
}

// Active reports whether the proposal still counts against its agency's one-per-request slot.
func (s ProposalStatus) Active() bool {
	return slices.Contains(ActiveProposalStatuses(), s)
}

// CheckWorker validates a worker status change against the transition table.
func CheckWorker(from, to WorkerStatus) error { return workerTransitions.check("worker", from, to) }

func CheckReservation(from, to ReservationState) error {
	return reservationTransitions.check("reservation", from, to)
}

func CheckContract(from, to ContractStatus) error {
	return contractTransitions.check("contract", from, to)
}

func CheckPayment(from, to PaymentStatus) error {
	return paymentTransitions.check("payment session", from, to)
}

func CheckRequest(from, to RequestStatus) error {
	return requestTransitions.check("recruitment request", from, to)
}

func CheckProposal(from, to ProposalStatus) error {
	return proposalTransitions.check("proposal", from, to)
}
