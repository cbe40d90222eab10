package repository

import (
	"context"
	"time"

	"github.com/garnizeh/staffing/pkg/models"
)

// Repository interfaces for domain entities. These are the public contracts
// consumers should depend on; concrete implementations live under internal/.
//
// Getters return (nil, nil) when the row does not exist. Inside a Tx, getters
// used before a write lock the row where the backend supports it. Update
// methods are compare-and-set on the previous state and report whether a
// row changed; false means another writer got there first.

type WorkerRepo interface {
	CreateWorker(ctx context.Context, w *models.Worker) (int64, error)
	GetWorker(ctx context.Context, id int64) (*models.Worker, error)
	// SetWorkerStatus moves a worker from -> to and sets current_contract_id.
	SetWorkerStatus(ctx context.Context, id int64, from, to models.WorkerStatus, contractID *int64) (bool, error)
}

type ReservationRepo interface {
	CreateReservation(ctx context.Context, r *models.WorkerReservation) (int64, error)
	GetReservation(ctx context.Context, id int64) (*models.WorkerReservation, error)
	// LiveReservationForWorker returns the worker's non-terminal reservation, if any.
	LiveReservationForWorker(ctx context.Context, workerID int64) (*models.WorkerReservation, error)
	// AdvanceReservation moves a reservation from -> to, replacing expires_at and contract_id.
	AdvanceReservation(ctx context.Context, id int64, from, to models.ReservationState, expiresAt time.Time, contractID *int64) (bool, error)
	// SetReservationState moves a reservation from -> to leaving the other columns alone.
	SetReservationState(ctx context.Context, id int64, from, to models.ReservationState) (bool, error)
	ListExpiredReservations(ctx context.Context, now time.Time, limit int) ([]models.WorkerReservation, error)
}

type ContractRepo interface {
	CreateContract(ctx context.Context, c *models.Contract) (int64, error)
	GetContract(ctx context.Context, id int64) (*models.Contract, error)
	SetContractStatus(ctx context.Context, id int64, from, to models.ContractStatus) (bool, error)
}

type PaymentSessionRepo interface {
	CreatePaymentSession(ctx context.Context, s *models.PaymentSession) (int64, error)
	GetPaymentSession(ctx context.Context, id int64) (*models.PaymentSession, error)
	GetPaymentSessionByToken(ctx context.Context, token string) (*models.PaymentSession, error)
	ListPendingSessionsForContract(ctx context.Context, contractID int64) ([]models.PaymentSession, error)
	SetPaymentStatus(ctx context.Context, id int64, from, to models.PaymentStatus) (bool, error)
	// IncrementOTPAttempts bumps the counter of a Pending session whose
	// attempts are below the session's own cap and returns the new value.
	IncrementOTPAttempts(ctx context.Context, id int64) (int, bool, error)
	ListExpiredPaymentSessions(ctx context.Context, now time.Time, limit int) ([]models.PaymentSession, error)
}

type RecruitmentRepo interface {
	CreateRequest(ctx context.Context, r *models.RecruitmentRequest) (int64, error)
	GetRequest(ctx context.Context, id int64) (*models.RecruitmentRequest, error)
	// AddAwarded atomically increments quantity_awarded by qty when the
	// request still accepts awards and the result stays within
	// quantity_required. It returns the new awarded total.
	AddAwarded(ctx context.Context, id int64, qty int) (int, bool, error)
	SetRequestStatus(ctx context.Context, id int64, from, to models.RequestStatus) (bool, error)
}

type ProposalRepo interface {
	CreateProposal(ctx context.Context, p *models.SupplierProposal) (int64, error)
	GetProposal(ctx context.Context, id int64) (*models.SupplierProposal, error)
	ActiveProposalForAgency(ctx context.Context, requestID, agencyID int64) (*models.SupplierProposal, error)
	ListProposals(ctx context.Context, requestID int64) ([]models.SupplierProposal, error)
	// DecideProposal moves a proposal from -> to and records approved_qty.
	DecideProposal(ctx context.Context, id int64, from, to models.ProposalStatus, approvedQty int) (bool, error)
}

// Tx is the unit of work handed to Store.WithinTx callbacks.
type Tx interface {
	WorkerRepo
	ReservationRepo
	ContractRepo
	PaymentSessionRepo
	RecruitmentRepo
	ProposalRepo
}

// Store is the authoritative state store. Reads outside WithinTx are
// unlocked snapshots and must not feed a write.
type Store interface {
	Tx
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
