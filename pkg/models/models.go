package models

import "time"

// Domain models matching the database schema in db/migrations/<dialect>/0001_init.sql

type WorkerStatus string

const (
	WorkerReady                    WorkerStatus = "Ready"
	WorkerReservedAwaitingContract WorkerStatus = "ReservedAwaitingContract"
	WorkerReservedAwaitingPayment  WorkerStatus = "ReservedAwaitingPayment"
	WorkerAssignedToContract       WorkerStatus = "AssignedToContract"
	WorkerInProgress               WorkerStatus = "InProgress"
	WorkerTerminated               WorkerStatus = "Terminated"
)

type ReservationState string

const (
	ReservationAwaitingContract ReservationState = "AwaitingContract"
	ReservationAwaitingPayment  ReservationState = "AwaitingPayment"
	ReservationCompleted        ReservationState = "Completed"
	ReservationCancelled        ReservationState = "Cancelled"
	ReservationExpired          ReservationState = "Expired"
)

type ContractStatus string

const (
	ContractAwaitingPayment ContractStatus = "AwaitingPayment"
	ContractActive          ContractStatus = "Active"
	ContractCancelled       ContractStatus = "Cancelled"
	ContractCompleted       ContractStatus = "Completed"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "Pending"
	PaymentCompleted PaymentStatus = "Completed"
	PaymentCancelled PaymentStatus = "Cancelled"
	PaymentExpired   PaymentStatus = "Expired"
)

type RequestStatus string

const (
	RequestOpen             RequestStatus = "Open"
	RequestPartiallyAwarded RequestStatus = "PartiallyAwarded"
	RequestFullyAwarded     RequestStatus = "FullyAwarded"
	RequestClosed           RequestStatus = "Closed"
)

type ProposalStatus string

const (
	ProposalSubmitted         ProposalStatus = "Submitted"
	ProposalApproved          ProposalStatus = "Approved"
	ProposalPartiallyApproved ProposalStatus = "PartiallyApproved"
	ProposalRejected          ProposalStatus = "Rejected"
	ProposalCancelled         ProposalStatus = "Cancelled"
)

type Worker struct {
	ID                int64        `json:"id" db:"id"`
	Name              string       `json:"name" db:"name"`
	Status            WorkerStatus `json:"status" db:"status"`
	CurrentContractID *int64       `json:"current_contract_id,omitempty" db:"current_contract_id"`
	Updated           time.Time    `json:"updated" db:"updated"`
}

type WorkerReservation struct {
	ID         int64            `json:"id" db:"id"`
	WorkerID   int64            `json:"worker_id" db:"worker_id"`
	CustomerID int64            `json:"customer_id" db:"customer_id"`
	State      ReservationState `json:"state" db:"state"`
	ExpiresAt  time.Time        `json:"expires_at" db:"expires_at"`
	ContractID *int64           `json:"contract_id,omitempty" db:"contract_id"`
	Created    time.Time        `json:"created" db:"created"`
	Updated    time.Time        `json:"updated" db:"updated"`
}

// Expired reports whether the reservation's TTL has lapsed at now.
func (r *WorkerReservation) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

type Contract struct {
	ID            int64          `json:"id" db:"id"`
	CustomerID    int64          `json:"customer_id" db:"customer_id"`
	WorkerID      int64          `json:"worker_id" db:"worker_id"`
	ReservationID int64          `json:"reservation_id" db:"reservation_id"`
	Status        ContractStatus `json:"status" db:"status"`
	TotalAmount   int64          `json:"total_amount" db:"total_amount"`
	Currency      string         `json:"currency" db:"currency"`
	StartDate     *string        `json:"start_date,omitempty" db:"start_date"`
	Notes         *string        `json:"notes,omitempty" db:"notes"`
	Created       time.Time      `json:"created" db:"created"`
	Updated       time.Time      `json:"updated" db:"updated"`
}

type PaymentSession struct {
	ID          int64  `json:"id" db:"id"`
	ContractID  int64  `json:"contract_id" db:"contract_id"`
	Token       string `json:"token" db:"token"`
	Phone       string `json:"phone" db:"phone"`
	OTPHash     string `json:"-" db:"otp_hash"`
	OTPAttempts int    `json:"otp_attempts" db:"otp_attempts"`
	// MaxOTPAttempts is fixed when the session opens; later config reloads
	// do not change it.
	MaxOTPAttempts int           `json:"otp_max_attempts" db:"otp_max_attempts"`
	Status         PaymentStatus `json:"status" db:"status"`
	ExpiresAt      time.Time     `json:"expires_at" db:"expires_at"`
	Created        time.Time     `json:"created" db:"created"`
	Updated        time.Time     `json:"updated" db:"updated"`
}

// Expired reports whether the session's TTL has lapsed at now.
func (s *PaymentSession) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

type RecruitmentRequest struct {
	ID               int64         `json:"id" db:"id"`
	CustomerID       int64         `json:"customer_id" db:"customer_id"`
	QuantityRequired int           `json:"quantity_required" db:"quantity_required"`
	QuantityAwarded  int           `json:"quantity_awarded" db:"quantity_awarded"`
	Status           RequestStatus `json:"status" db:"status"`
	Created          time.Time     `json:"created" db:"created"`
	Updated          time.Time     `json:"updated" db:"updated"`
}

// Remaining is the capacity not yet awarded. It is a snapshot, not a reservation.
func (r *RecruitmentRequest) Remaining() int {
	return r.QuantityRequired - r.QuantityAwarded
}

type SupplierProposal struct {
	ID          int64          `json:"id" db:"id"`
	RequestID   int64          `json:"request_id" db:"request_id"`
	AgencyID    int64          `json:"agency_id" db:"agency_id"`
	OfferedQty  int            `json:"offered_qty" db:"offered_qty"`
	ApprovedQty int            `json:"approved_qty" db:"approved_qty"`
	Status      ProposalStatus `json:"status" db:"status"`
	Notes       *string        `json:"notes,omitempty" db:"notes"`
	Created     time.Time      `json:"created" db:"created"`
	Updated     time.Time      `json:"updated" db:"updated"`
}
