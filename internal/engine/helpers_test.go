package engine_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	dbfs "github.com/garnizeh/staffing/db"
	"github.com/garnizeh/staffing/internal/clock"
	"github.com/garnizeh/staffing/internal/config"
	dbpkg "github.com/garnizeh/staffing/internal/db"
	"github.com/garnizeh/staffing/internal/engine"
	"github.com/garnizeh/staffing/internal/events"
	"github.com/garnizeh/staffing/internal/otp"
	"github.com/garnizeh/staffing/internal/repository/sqlstore"
	"github.com/garnizeh/staffing/pkg/models"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

const (
	customer = "customer:1"
	admin    = "admin:1"
	phone    = "+5511999990000"
)

type harness struct {
	eng   *engine.Engine
	store *sqlstore.Store
	clk   *clock.Fake
	rec   *events.Recorder
	otp   *otp.Memory
	live  *config.Live
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, config.DefaultTimeouts())
}

func newHarnessWith(t *testing.T, timeouts config.Timeouts, opts ...func(*engine.Deps)) *harness {
	t.Helper()
	ctx := context.Background()

	d, err := dbpkg.New(ctx, filepath.Join(t.TempDir(), "engine.db"), nil)
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	if err := dbpkg.Migrate(ctx, d, dbfs.Migrations); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	h := &harness{
		clk:  clock.NewFake(t0),
		rec:  &events.Recorder{},
		otp:  otp.NewMemory(),
		live: config.NewLive(timeouts),
	}
	h.store = sqlstore.New(d, nil, sqlstore.WithClock(h.clk))
	deps := engine.Deps{
		Store:      h.store,
		Clock:      h.clk,
		Config:     h.live,
		Publisher:  h.rec,
		OTP:        h.otp,
		BcryptCost: 4,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	h.eng, err = engine.New(deps)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return h
}

func (h *harness) worker(t *testing.T) int64 {
	t.Helper()
	id, err := h.store.CreateWorker(context.Background(), &models.Worker{Name: "Ana"})
	if err != nil {
		t.Fatalf("CreateWorker: %v", err)
	}
	return id
}

func (h *harness) request(t *testing.T, required int) int64 {
	t.Helper()
	id, err := h.store.CreateRequest(context.Background(), &models.RecruitmentRequest{CustomerID: 1, QuantityRequired: required})
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	return id
}

// reserve and turn the reservation into an unpaid contract.
func (h *harness) contract(t *testing.T) (*models.WorkerReservation, *models.Contract) {
	t.Helper()
	ctx := context.Background()
	res, err := h.eng.Reservations.Reserve(ctx, h.worker(t), 1, customer)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	c, err := h.eng.Contracts.CreateFromReservation(ctx, res.ID, engine.ContractInput{TotalAmount: 150000, Currency: "BRL"}, customer)
	if err != nil {
		t.Fatalf("CreateFromReservation: %v", err)
	}
	return res, c
}

func (h *harness) session(t *testing.T, contractID int64) (*models.PaymentSession, string) {
	t.Helper()
	s, err := h.eng.Payments.CreateSession(context.Background(), contractID, phone, customer)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	code, ok := h.otp.Last(phone)
	if !ok {
		t.Fatalf("no otp sent to %s", phone)
	}
	return s, code
}

func (h *harness) getWorker(t *testing.T, id int64) *models.Worker {
	t.Helper()
	w, err := h.store.GetWorker(context.Background(), id)
	if err != nil || w == nil {
		t.Fatalf("GetWorker(%d): %#v, %v", id, w, err)
	}
	return w
}

func (h *harness) getReservation(t *testing.T, id int64) *models.WorkerReservation {
	t.Helper()
	r, err := h.store.GetReservation(context.Background(), id)
	if err != nil || r == nil {
		t.Fatalf("GetReservation(%d): %#v, %v", id, r, err)
	}
	return r
}

func (h *harness) getContract(t *testing.T, id int64) *models.Contract {
	t.Helper()
	c, err := h.store.GetContract(context.Background(), id)
	if err != nil || c == nil {
		t.Fatalf("GetContract(%d): %#v, %v", id, c, err)
	}
	return c
}

func (h *harness) getSession(t *testing.T, id int64) *models.PaymentSession {
	t.Helper()
	s, err := h.store.GetPaymentSession(context.Background(), id)
	if err != nil || s == nil {
		t.Fatalf("GetPaymentSession(%d): %#v, %v", id, s, err)
	}
	return s
}

func (h *harness) getRequest(t *testing.T, id int64) *models.RecruitmentRequest {
	t.Helper()
	r, err := h.store.GetRequest(context.Background(), id)
	if err != nil || r == nil {
		t.Fatalf("GetRequest(%d): %#v, %v", id, r, err)
	}
	return r
}

func withBypass(d *engine.Deps) { d.AllowBypass = true }

// sessionNotCoded opens sessions until the real code differs from code.
func (h *harness) sessionNotCoded(t *testing.T, contractID int64, code string) *models.PaymentSession {
	t.Helper()
	for range 5 {
		s, got := h.session(t, contractID)
		if got != code {
			return s
		}
	}
	t.Fatalf("every generated code was %s", code)
	return nil
}

// wrongCode returns a code that is neither code nor the fixed test code.
func wrongCode(code string) string {
	if code == "111111" {
		return "222222"
	}
	return "111111"
}
