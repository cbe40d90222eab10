package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/garnizeh/staffing/pkg/models"
)

const paymentColumns = `id, contract_id, token, phone, otp_hash, otp_attempts, otp_max_attempts, status, expires_at, created, updated`

func scanPaymentSession(row rowScanner) (*models.PaymentSession, error) {
	var (
		s         models.PaymentSession
		status    string
		expiresAt int64
		created   int64
		updated   int64
	)
	if err := row.Scan(&s.ID, &s.ContractID, &s.Token, &s.Phone, &s.OTPHash, &s.OTPAttempts, &s.MaxOTPAttempts, &status, &expiresAt, &created, &updated); err != nil {
		return nil, err
	}
	s.Status = models.PaymentStatus(status)
	s.ExpiresAt = fromMillis(expiresAt)
	s.Created = fromMillis(created)
	s.Updated = fromMillis(updated)
	return &s, nil
}

func (r *repo) CreatePaymentSession(ctx context.Context, s *models.PaymentSession) (int64, error) {
	if s == nil {
		return 0, fmt.Errorf("payment session is nil")
	}
	if s.Token == "" || s.OTPHash == "" {
		return 0, fmt.Errorf("payment session token and otp hash are required")
	}
	if s.MaxOTPAttempts < 1 {
		return 0, fmt.Errorf("payment session otp max attempts must be positive")
	}

	now := r.now()
	var id int64
	err := r.q.QueryRow(ctx, `INSERT INTO payment_sessions (contract_id, token, phone, otp_hash, otp_attempts, otp_max_attempts, status, expires_at, created, updated) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		s.ContractID, s.Token, s.Phone, s.OTPHash, s.OTPAttempts, s.MaxOTPAttempts, string(s.Status), toMillis(s.ExpiresAt), now, now).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert payment session: %w", err)
	}
	return id, nil
}

func (r *repo) GetPaymentSession(ctx context.Context, id int64) (*models.PaymentSession, error) {
	s, err := scanPaymentSession(r.q.QueryRow(ctx, r.lock(`SELECT `+paymentColumns+` FROM payment_sessions WHERE id = ?`), id))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get payment session %d: %w", id, err)
	}
	return s, nil
}

func (r *repo) GetPaymentSessionByToken(ctx context.Context, token string) (*models.PaymentSession, error) {
	s, err := scanPaymentSession(r.q.QueryRow(ctx, r.lock(`SELECT `+paymentColumns+` FROM payment_sessions WHERE token = ?`), token))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get payment session by token: %w", err)
	}
	return s, nil
}

func (r *repo) ListPendingSessionsForContract(ctx context.Context, contractID int64) ([]models.PaymentSession, error) {
	rows, err := r.q.QueryRows(ctx, r.lock(`SELECT `+paymentColumns+` FROM payment_sessions WHERE contract_id = ? AND status = ? ORDER BY id`),
		contractID, string(models.PaymentPending))
	if err != nil {
		return nil, fmt.Errorf("list pending sessions for contract %d: %w", contractID, err)
	}
	defer rows.Close()

	var out []models.PaymentSession
	for rows.Next() {
		s, err := scanPaymentSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *repo) SetPaymentStatus(ctx context.Context, id int64, from, to models.PaymentStatus) (bool, error) {
	ok, err := changed(r.q.Exec(ctx, `UPDATE payment_sessions SET status = ?, updated = ? WHERE id = ? AND status = ?`,
		string(to), r.now(), id, string(from)))
	if err != nil {
		return false, fmt.Errorf("update payment session %d: %w", id, err)
	}
	return ok, nil
}

func (r *repo) IncrementOTPAttempts(ctx context.Context, id int64) (int, bool, error) {
	var attempts int
	err := r.q.QueryRow(ctx, `UPDATE payment_sessions SET otp_attempts = otp_attempts + 1, updated = ? WHERE id = ? AND status = ? AND otp_attempts < otp_max_attempts RETURNING otp_attempts`,
		r.now(), id, string(models.PaymentPending)).Scan(&attempts)
	if err != nil {
		if isNoRows(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("increment otp attempts %d: %w", id, err)
	}
	return attempts, true, nil
}

func (r *repo) ListExpiredPaymentSessions(ctx context.Context, now time.Time, limit int) ([]models.PaymentSession, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.q.QueryRows(ctx, `SELECT `+paymentColumns+` FROM payment_sessions WHERE status = ? AND expires_at < ? ORDER BY expires_at ASC LIMIT ?`,
		string(models.PaymentPending), toMillis(now), limit)
	if err != nil {
		return nil, fmt.Errorf("list expired payment sessions: %w", err)
	}
	defer rows.Close()

	var out []models.PaymentSession
	for rows.Next() {
		s, err := scanPaymentSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}
