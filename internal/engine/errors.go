package engine

import (
	"errors"

	"github.com/garnizeh/staffing/pkg/models"
)

var (
	// ErrResourceUnavailable means the worker is not free to reserve.
	ErrResourceUnavailable = errors.New("resource unavailable")
	// ErrReservationExpired means a provisional state lapsed before the next step.
	ErrReservationExpired = errors.New("reservation expired")
	// ErrStateConflict means related entities disagree. It points at a
	// concurrency-control defect and is never retried.
	ErrStateConflict     = errors.New("state conflict")
	ErrInvalidCode       = errors.New("invalid code")
	ErrAttemptsExceeded  = errors.New("otp attempts exceeded")
	ErrCapacityExceeded  = errors.New("capacity exceeded")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = models.ErrInvalidTransition
	ErrInvalidInput      = errors.New("invalid input")
	ErrDuplicateProposal = errors.New("agency already has an active proposal")
	ErrOTPDelivery       = errors.New("otp delivery failed")
)

// errLostRace reports a compare-and-set that matched no row.
var errLostRace = errors.New("state changed concurrently")
