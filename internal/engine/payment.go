package engine

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/garnizeh/staffing/internal/events"
	"github.com/garnizeh/staffing/pkg/models"
	"github.com/garnizeh/staffing/pkg/repository"
)

var phonePattern = regexp.MustCompile(`^\+[1-9][0-9]{7,14}$`)

const otpDigits = 6

// Payments runs OTP-confirmed payment sessions for unpaid contracts.
type Payments struct {
	*core
	contracts   *Contracts
	otp         OTPSender
	bcryptCost  int
	allowBypass bool
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", otpDigits, n.Int64()), nil
}

// CreateSession opens a Pending session for an unpaid contract, replacing
// any session still pending for it, and enqueues a fresh code to phone.
func (p *Payments) CreateSession(ctx context.Context, contractID int64, phone, actor string) (_ *models.PaymentSession, err error) {
	ctx, done := p.inst.Track(ctx, "create_payment_session")
	defer func() { done(err) }()

	if !phonePattern.MatchString(phone) {
		return nil, fmt.Errorf("phone %q is not E.164: %w", phone, ErrInvalidInput)
	}

	code, err := generateCode()
	if err != nil {
		return nil, fmt.Errorf("generate otp: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), p.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash otp: %w", err)
	}

	snap, err := p.store.GetContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, fmt.Errorf("contract %d: %w", contractID, ErrNotFound)
	}

	t := p.cfg.Timeouts()
	now := p.clock.Now()
	b := newBatch(now, actor)

	var (
		out     *models.PaymentSession
		outcome error
	)
	err = p.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
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
		if contract.Status != models.ContractAwaitingPayment {
			return fmt.Errorf("contract %d is %s: %w", contractID, contract.Status, ErrInvalidTransition)
		}

		res, err := tx.GetReservation(ctx, contract.ReservationID)
		if err != nil {
			return err
		}
		if res == nil || res.State != models.ReservationAwaitingPayment {
			return p.conflict(ctx, "create_payment_session", "contract %d awaits payment but its reservation is not AwaitingPayment", contractID)
		}
		if res.Expired(now) {
			if err := p.endChain(ctx, tx, b, res, endExpire); err != nil {
				return err
			}
			outcome = fmt.Errorf("reservation %d lapsed: %w", res.ID, ErrReservationExpired)
			return nil
		}

		pending, err := tx.ListPendingSessionsForContract(ctx, contractID)
		if err != nil {
			return err
		}
		for i := range pending {
			if err := movePayment(ctx, tx, b, &pending[i], models.PaymentCancelled); err != nil {
				return err
			}
		}

		s := &models.PaymentSession{
			ContractID:     contractID,
			Token:          uuid.NewString(),
			Phone:          phone,
			OTPHash:        string(hash),
			MaxOTPAttempts: t.MaxOTPAttempts,
			Status:         models.PaymentPending,
			ExpiresAt:      now.Add(t.PaymentSessionTTL),
		}
		id, err := tx.CreatePaymentSession(ctx, s)
		if err != nil {
			return err
		}
		if out, err = tx.GetPaymentSession(ctx, id); err != nil {
			return err
		}
		b.transition(events.EntityPayment, id, "", string(models.PaymentPending), map[string]int64{"contract": contractID})
		return nil
	})
	if err != nil {
		return nil, p.settle(ctx, "create_payment_session", err)
	}
	p.publish(ctx, b)
	if outcome != nil {
		return nil, outcome
	}

	if err := p.otp.Send(ctx, phone, code); err != nil {
		p.logger.ErrorContext(ctx, "otp enqueue failed", "session", out.ID, "err", err)
		if cerr := p.cancel(ctx, out.ID, SystemActor); cerr != nil {
			p.logger.ErrorContext(ctx, "cancel undeliverable session", "session", out.ID, "err", cerr)
		}
		return nil, fmt.Errorf("session %d: %w: %w", out.ID, ErrOTPDelivery, err)
	}
	return out, nil
}

// VerifyOTP checks code against a Pending session. A wrong code uses up one
// attempt and the count is kept even though the call fails. The right code
// completes the session and activates the contract in one transaction.
func (p *Payments) VerifyOTP(ctx context.Context, sessionID int64, code, actor string) (*models.Contract, error) {
	return p.verify(ctx, code, actor, func(ctx context.Context, r repository.PaymentSessionRepo) (*models.PaymentSession, error) {
		return r.GetPaymentSession(ctx, sessionID)
	})
}

// VerifyOTPByToken is VerifyOTP keyed by the session's opaque token.
func (p *Payments) VerifyOTPByToken(ctx context.Context, token, code, actor string) (*models.Contract, error) {
	return p.verify(ctx, code, actor, func(ctx context.Context, r repository.PaymentSessionRepo) (*models.PaymentSession, error) {
		return r.GetPaymentSessionByToken(ctx, token)
	})
}

type sessionLookup func(ctx context.Context, r repository.PaymentSessionRepo) (*models.PaymentSession, error)

func (p *Payments) verify(ctx context.Context, code, actor string, lookup sessionLookup) (_ *models.Contract, err error) {
	ctx, done := p.inst.Track(ctx, "verify_otp")
	defer func() { done(err) }()

	now := p.clock.Now()
	b := newBatch(now, actor)

	// The hash of a session never changes, so the slow comparison runs
	// before the transaction opens.
	snap, err := lookup(ctx, p.store)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, fmt.Errorf("payment session: %w", ErrNotFound)
	}
	match := bypassAccepts(p.allowBypass, code) ||
		bcrypt.CompareHashAndPassword([]byte(snap.OTPHash), []byte(code)) == nil

	owner, err := p.store.GetContract(ctx, snap.ContractID)
	if err != nil {
		return nil, err
	}

	var (
		out     *models.Contract
		outcome error
	)
	err = p.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if owner != nil {
			if _, err := tx.GetWorker(ctx, owner.WorkerID); err != nil {
				return err
			}
		}
		s, err := tx.GetPaymentSession(ctx, snap.ID)
		if err != nil {
			return err
		}
		if s == nil {
			return fmt.Errorf("payment session %d: %w", snap.ID, ErrNotFound)
		}

		switch s.Status {
		case models.PaymentPending:
		case models.PaymentExpired:
			return fmt.Errorf("payment session %d: %w", s.ID, ErrReservationExpired)
		default:
			return fmt.Errorf("payment session %d is %s: %w", s.ID, s.Status, ErrInvalidTransition)
		}

		if s.Expired(now) {
			if err := movePayment(ctx, tx, b, s, models.PaymentExpired); err != nil {
				return err
			}
			b.emit(events.KindExpired, events.EntityPayment, s.ID, map[string]int64{"contract": s.ContractID})
			p.inst.OTPFailure(ctx, "expired")
			outcome = fmt.Errorf("payment session %d lapsed: %w", s.ID, ErrReservationExpired)
			return nil
		}
		if s.OTPAttempts >= s.MaxOTPAttempts {
			return fmt.Errorf("payment session %d: %w", s.ID, ErrAttemptsExceeded)
		}

		if !match {
			n, ok, err := tx.IncrementOTPAttempts(ctx, s.ID)
			if err != nil {
				return err
			}
			if !ok || n >= s.MaxOTPAttempts {
				outcome = fmt.Errorf("payment session %d: %w", s.ID, ErrAttemptsExceeded)
			} else {
				outcome = fmt.Errorf("payment session %d: %d of %d attempts used: %w", s.ID, n, s.MaxOTPAttempts, ErrInvalidCode)
			}
			return nil
		}

		contract, err := tx.GetContract(ctx, s.ContractID)
		if err != nil {
			return err
		}
		if contract == nil {
			return p.conflict(ctx, "verify_otp", "session %d points at missing contract %d", s.ID, s.ContractID)
		}
		res, err := tx.GetReservation(ctx, contract.ReservationID)
		if err != nil {
			return err
		}
		if res != nil && res.State == models.ReservationAwaitingPayment && res.Expired(now) {
			if err := p.endChain(ctx, tx, b, res, endExpire); err != nil {
				return err
			}
			outcome = fmt.Errorf("reservation %d lapsed: %w", res.ID, ErrReservationExpired)
			return nil
		}

		if err := movePayment(ctx, tx, b, s, models.PaymentCompleted); err != nil {
			return err
		}
		if out, err = p.contracts.activate(ctx, tx, b, contract); err != nil {
			return err
		}
		b.emit(events.KindPaymentCompleted, events.EntityPayment, s.ID, map[string]int64{"contract": contract.ID, "worker": contract.WorkerID})
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAttemptsExceeded) {
			p.inst.OTPFailure(ctx, "attempts_exceeded")
		}
		return nil, p.settle(ctx, "verify_otp", err)
	}

	p.publish(ctx, b)
	if outcome != nil {
		switch {
		case errors.Is(outcome, ErrInvalidCode):
			p.inst.OTPFailure(ctx, "mismatch")
		case errors.Is(outcome, ErrAttemptsExceeded):
			p.inst.OTPFailure(ctx, "attempts_exceeded")
		}
		return nil, outcome
	}
	p.logger.InfoContext(ctx, "payment completed", "session", snap.ID, "contract", out.ID)
	return out, nil
}

// Cancel ends a Pending session. Any other status is an invalid transition.
func (p *Payments) Cancel(ctx context.Context, sessionID int64, actor string) (err error) {
	ctx, done := p.inst.Track(ctx, "cancel_payment_session")
	defer func() { done(err) }()
	return p.cancel(ctx, sessionID, actor)
}

// CancelByToken is Cancel keyed by the session's opaque token.
func (p *Payments) CancelByToken(ctx context.Context, token, actor string) (err error) {
	ctx, done := p.inst.Track(ctx, "cancel_payment_session")
	defer func() { done(err) }()

	s, err := p.store.GetPaymentSessionByToken(ctx, token)
	if err != nil {
		return err
	}
	if s == nil {
		return fmt.Errorf("payment session: %w", ErrNotFound)
	}
	return p.cancel(ctx, s.ID, actor)
}

func (p *Payments) cancel(ctx context.Context, sessionID int64, actor string) error {
	b := newBatch(p.clock.Now(), actor)
	err := p.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		s, err := tx.GetPaymentSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if s == nil {
			return fmt.Errorf("payment session %d: %w", sessionID, ErrNotFound)
		}
		if err := movePayment(ctx, tx, b, s, models.PaymentCancelled); err != nil {
			return err
		}
		b.emit(events.KindCancelled, events.EntityPayment, s.ID, map[string]int64{"contract": s.ContractID})
		return nil
	})
	if err != nil {
		return p.settle(ctx, "cancel_payment_session", err)
	}
	p.publish(ctx, b)
	return nil
}
