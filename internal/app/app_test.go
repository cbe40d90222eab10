package app_test

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/goleak"

	"github.com/garnizeh/staffing/internal/app"
	"github.com/garnizeh/staffing/internal/config"
	"github.com/garnizeh/staffing/pkg/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))
}

func testConfig(t *testing.T, env string) *config.Config {
	t.Helper()
	cfg, err := config.LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	cfg.Env = env
	cfg.Database.DSN = filepath.Join(t.TempDir(), "app.db")
	cfg.Payment.BcryptCost = 4
	return cfg
}

func TestNew_Development(t *testing.T) {
	ctx := context.Background()
	a, err := app.New(ctx, testConfig(t, "development"), "test", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close(ctx)

	// migrations ran: the store accepts writes and the engine sees them
	workerID, err := a.Store.CreateWorker(ctx, &models.Worker{Name: "Ana"})
	if err != nil {
		t.Fatalf("CreateWorker: %v", err)
	}
	res, err := a.Engine.Reservations.Reserve(ctx, workerID, 9, "customer:9")
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if res.State != models.ReservationAwaitingContract {
		t.Fatalf("unexpected reservation state %q", res.State)
	}

	if a.Live.Timeouts() != config.DefaultTimeouts() {
		t.Fatalf("live timeouts should start from config")
	}
}

func TestNew_ProductionNeedsRedis(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, "production")
	if _, err := app.New(ctx, cfg, "test", nil); err == nil {
		t.Fatalf("expected error without redis in production")
	}
}

func TestNew_BadDialect(t *testing.T) {
	cfg := testConfig(t, "development")
	cfg.Database.Dialect = "mysql"
	if _, err := app.New(context.Background(), cfg, "test", nil); err == nil {
		t.Fatalf("expected dialect error")
	}
}
