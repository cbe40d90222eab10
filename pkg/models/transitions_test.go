package models_test

import (
	"errors"
	"testing"
	"time"

	"github.com/garnizeh/staffing/pkg/models"
)

func TestReservationTransitions(t *testing.T) {
	tests := []struct {
		from, to models.ReservationState
		want     bool
	}{
		{models.ReservationAwaitingContract, models.ReservationAwaitingPayment, true},
		{models.ReservationAwaitingContract, models.ReservationExpired, true},
		{models.ReservationAwaitingContract, models.ReservationCompleted, false},
		{models.ReservationAwaitingPayment, models.ReservationCompleted, true},
		{models.ReservationAwaitingPayment, models.ReservationAwaitingContract, false},
		{models.ReservationExpired, models.ReservationCancelled, false},
		{models.ReservationCompleted, models.ReservationCancelled, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Fatalf("%s -> %s: got %v want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTerminalStates(t *testing.T) {
	for _, s := range []models.ReservationState{models.ReservationCompleted, models.ReservationCancelled, models.ReservationExpired} {
		if !s.Terminal() {
			t.Fatalf("expected %s to be terminal", s)
		}
	}
	if models.ReservationAwaitingPayment.Terminal() {
		t.Fatalf("AwaitingPayment must not be terminal")
	}
	for _, s := range []models.PaymentStatus{models.PaymentCompleted, models.PaymentCancelled, models.PaymentExpired} {
		if !s.Terminal() {
			t.Fatalf("expected payment %s to be terminal", s)
		}
	}
	if !models.ProposalRejected.Terminal() || models.ProposalSubmitted.Terminal() {
		t.Fatalf("unexpected proposal terminal flags")
	}
	if !models.WorkerTerminated.Terminal() {
		t.Fatalf("expected Terminated worker to be terminal")
	}
}

func TestCheckReturnsInvalidTransition(t *testing.T) {
	err := models.CheckContract(models.ContractCancelled, models.ContractActive)
	if !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if err := models.CheckWorker(models.WorkerReady, models.WorkerReservedAwaitingContract); err != nil {
		t.Fatalf("Ready -> ReservedAwaitingContract should be allowed: %v", err)
	}
	if err := models.CheckWorker(models.WorkerReady, models.WorkerAssignedToContract); err == nil {
		t.Fatalf("Ready -> AssignedToContract should be rejected")
	}
}

func TestRequestAcceptsAwards(t *testing.T) {
	if !models.RequestOpen.AcceptsAwards() || !models.RequestPartiallyAwarded.AcceptsAwards() {
		t.Fatalf("open and partially awarded requests accept awards")
	}
	if models.RequestFullyAwarded.AcceptsAwards() || models.RequestClosed.AcceptsAwards() {
		t.Fatalf("fully awarded and closed requests do not accept awards")
	}
}

func TestExpiredBoundary(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	r := models.WorkerReservation{ExpiresAt: now}
	if !r.Expired(now) {
		t.Fatalf("reservation must be expired exactly at expires_at")
	}
	if r.Expired(now.Add(-time.Millisecond)) {
		t.Fatalf("reservation must be live before expires_at")
	}
}
