package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/garnizeh/staffing/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func validConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	cfg.JWTSecret = "strongsecret"
	return cfg
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := config.LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig returned error for empty path: %v", err)
	}

	if cfg.Addr != ":8080" {
		t.Fatalf("unexpected Addr: got %q want %q", cfg.Addr, ":8080")
	}
	if cfg.Database.Dialect != "sqlite" || cfg.Database.DSN != "staffing.db" || !cfg.Database.MigrateOnStart {
		t.Fatalf("unexpected database defaults: %#v", cfg.Database)
	}
	if cfg.Timeouts != config.DefaultTimeouts() {
		t.Fatalf("unexpected timeouts: %#v", cfg.Timeouts)
	}
	if cfg.Timeouts.ReservationTTL != 300*time.Second || cfg.Timeouts.PaymentTTL != 900*time.Second ||
		cfg.Timeouts.PaymentSessionTTL != 300*time.Second || cfg.Timeouts.MaxOTPAttempts != 3 {
		t.Fatalf("engine timeouts do not match the documented defaults: %#v", cfg.Timeouts)
	}
	if cfg.Sweeper.Interval != 30*time.Second {
		t.Fatalf("unexpected sweeper interval: %v", cfg.Sweeper.Interval)
	}
}

func TestLoadConfig_FromFile(t *testing.T) {
	path := writeConfig(t, `
addr: ":9090"
jwt_secret: "filekey"
timeout: "30s"
database:
  dialect: postgres
  dsn: "postgres://localhost/staffing?sslmode=disable"
timeouts:
  reservation_ttl: "2m"
  max_otp_attempts: 5
payment:
  bcrypt_cost: 4
`)

	cfg, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig returned error for file: %v", err)
	}

	if cfg.Addr != ":9090" || cfg.JWTSecret != "filekey" || cfg.APITimeout != 30*time.Second {
		t.Fatalf("unexpected top-level values: %#v", cfg)
	}
	if cfg.Database.Dialect != "postgres" {
		t.Fatalf("unexpected dialect: %q", cfg.Database.Dialect)
	}
	if cfg.Timeouts.ReservationTTL != 2*time.Minute || cfg.Timeouts.MaxOTPAttempts != 5 {
		t.Fatalf("unexpected timeouts: %#v", cfg.Timeouts)
	}
	// keys absent from the file keep their defaults
	if cfg.Timeouts.PaymentTTL != 900*time.Second {
		t.Fatalf("expected default payment ttl, got %v", cfg.Timeouts.PaymentTTL)
	}
	if cfg.Payment.BcryptCost != 4 {
		t.Fatalf("unexpected bcrypt cost: %d", cfg.Payment.BcryptCost)
	}
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "addr: \":9090\"\ntimeouts:\n  payment_ttl: \"10m\"\n")
	t.Setenv("STAFFING_ADDR", ":7070")
	t.Setenv("STAFFING_PAYMENT_TTL", "20m")
	t.Setenv("STAFFING_REDIS_ADDR", "localhost:6379")

	cfg, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Addr != ":7070" {
		t.Fatalf("env should override file addr, got %q", cfg.Addr)
	}
	if cfg.Timeouts.PaymentTTL != 20*time.Minute {
		t.Fatalf("env should override nested timeout, got %v", cfg.Timeouts.PaymentTTL)
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("unexpected redis addr %q", cfg.Redis.Addr)
	}
}

func TestLoadConfig_EmptyFile(t *testing.T) {
	cfg, err := config.LoadConfig(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("empty file should load defaults, got %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("unexpected Addr %q", cfg.Addr)
	}
}

func TestLoadConfig_BadPath(t *testing.T) {
	if _, err := config.LoadConfig("/path/that/does/not/exist.yaml"); err == nil {
		t.Fatalf("expected error for nonexistent path, got nil")
	}
}

func TestLoadConfig_BadYAML(t *testing.T) {
	if _, err := config.LoadConfig(writeConfig(t, "addr: [unclosed\n")); err == nil {
		t.Fatalf("expected YAML decode error, got nil")
	}
}

func TestLoadConfig_BadEnv(t *testing.T) {
	t.Setenv("STAFFING_MAX_OTP_ATTEMPTS", "many")
	if _, err := config.LoadConfig(""); err == nil {
		t.Fatalf("expected env parse error, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *config.Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *config.Config) {}},
		{name: "insecure jwt in production", mutate: func(c *config.Config) { c.JWTSecret = "supersecretkey" }, wantErr: true},
		{name: "insecure jwt in development", mutate: func(c *config.Config) { c.JWTSecret = "supersecretkey"; c.Env = "development" }},
		{name: "unknown dialect", mutate: func(c *config.Config) { c.Database.Dialect = "mysql" }, wantErr: true},
		{name: "empty dsn", mutate: func(c *config.Config) { c.Database.DSN = "" }, wantErr: true},
		{name: "zero reservation ttl", mutate: func(c *config.Config) { c.Timeouts.ReservationTTL = 0 }, wantErr: true},
		{name: "no otp attempts", mutate: func(c *config.Config) { c.Timeouts.MaxOTPAttempts = 0 }, wantErr: true},
		{name: "bcrypt cost too low", mutate: func(c *config.Config) { c.Payment.BcryptCost = 1 }, wantErr: true},
		{name: "bypass in production", mutate: func(c *config.Config) { c.Payment.AllowBypass = true }, wantErr: true},
		{name: "bypass in staging", mutate: func(c *config.Config) { c.Payment.AllowBypass = true; c.Env = "staging" }},
		{name: "zero sweep interval", mutate: func(c *config.Config) { c.Sweeper.Interval = 0 }, wantErr: true},
		{name: "no job workers", mutate: func(c *config.Config) { c.Jobs.Workers = 0 }, wantErr: true},
		{name: "no rate limit", mutate: func(c *config.Config) { c.RateLimit.RPS = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Fatalf("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestLive_Reload(t *testing.T) {
	live := config.NewLive(config.DefaultTimeouts())
	if got := live.Timeouts().ReservationTTL; got != 300*time.Second {
		t.Fatalf("unexpected initial ttl %v", got)
	}

	path := writeConfig(t, "timeouts:\n  reservation_ttl: \"45s\"\n")
	if err := live.Reload(path); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := live.Timeouts().ReservationTTL; got != 45*time.Second {
		t.Fatalf("expected reloaded ttl 45s, got %v", got)
	}

	bad := writeConfig(t, "timeouts:\n  max_otp_attempts: 0\n")
	if err := live.Reload(bad); err == nil {
		t.Fatalf("expected reload to reject invalid timeouts")
	}
	if got := live.Timeouts().ReservationTTL; got != 45*time.Second {
		t.Fatalf("failed reload must keep previous value, got %v", got)
	}
}
