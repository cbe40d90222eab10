package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

const insecureJWTSecret = "supersecretkey"

type Config struct {
	Env           string          `yaml:"env" env:"STAFFING_ENV"`
	Addr          string          `yaml:"addr" env:"STAFFING_ADDR"`
	JWTSecret     string          `yaml:"jwt_secret" env:"STAFFING_JWT_SECRET"`
	APITimeout    time.Duration   `yaml:"timeout" env:"STAFFING_API_TIMEOUT"`
	TokenDuration time.Duration   `yaml:"token_duration" env:"STAFFING_TOKEN_DURATION"`
	Database      DatabaseConfig  `yaml:"database"`
	Timeouts      Timeouts        `yaml:"timeouts"`
	Payment       PaymentConfig   `yaml:"payment"`
	Sweeper       SweeperConfig   `yaml:"sweeper"`
	Jobs          JobsConfig      `yaml:"jobs"`
	Redis         RedisConfig     `yaml:"redis"`
	Telemetry     TelemetryConfig `yaml:"telemetry"`
	RateLimit     RateLimitConfig `yaml:"rate_limit"`
}

type DatabaseConfig struct {
	Dialect        string `yaml:"dialect" env:"STAFFING_DB_DIALECT"`
	DSN            string `yaml:"dsn" env:"STAFFING_DB_DSN"`
	MigrateOnStart bool   `yaml:"migrate_on_start" env:"STAFFING_DB_MIGRATE_ON_START"`
}

// Timeouts are the engine knobs that may change at runtime. They are read
// once at the start of every operation through Live.
type Timeouts struct {
	ReservationTTL    time.Duration `yaml:"reservation_ttl" env:"STAFFING_RESERVATION_TTL"`
	PaymentTTL        time.Duration `yaml:"payment_ttl" env:"STAFFING_PAYMENT_TTL"`
	PaymentSessionTTL time.Duration `yaml:"payment_session_ttl" env:"STAFFING_PAYMENT_SESSION_TTL"`
	MaxOTPAttempts    int           `yaml:"max_otp_attempts" env:"STAFFING_MAX_OTP_ATTEMPTS"`
}

type PaymentConfig struct {
	BcryptCost  int    `yaml:"bcrypt_cost" env:"STAFFING_BCRYPT_COST"`
	AllowBypass bool   `yaml:"allow_bypass" env:"STAFFING_ALLOW_OTP_BYPASS"`
	OTPQueue    string `yaml:"otp_queue" env:"STAFFING_OTP_QUEUE"`
}

type SweeperConfig struct {
	Interval  time.Duration `yaml:"interval" env:"STAFFING_SWEEP_INTERVAL"`
	BatchSize int           `yaml:"batch_size" env:"STAFFING_SWEEP_BATCH"`
}

type JobsConfig struct {
	Workers      int           `yaml:"workers" env:"STAFFING_JOB_WORKERS"`
	PollInterval time.Duration `yaml:"poll_interval" env:"STAFFING_JOB_POLL_INTERVAL"`
	MaxAttempts  int           `yaml:"max_attempts" env:"STAFFING_JOB_MAX_ATTEMPTS"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"STAFFING_REDIS_ADDR"`
	Password string `yaml:"password" env:"STAFFING_REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"STAFFING_REDIS_DB"`
	Stream   string `yaml:"stream" env:"STAFFING_REDIS_STREAM"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled" env:"STAFFING_OTEL_ENABLED"`
	Endpoint    string `yaml:"endpoint" env:"STAFFING_OTEL_ENDPOINT"`
	Insecure    bool   `yaml:"insecure" env:"STAFFING_OTEL_INSECURE"`
	ServiceName string `yaml:"service_name" env:"STAFFING_OTEL_SERVICE_NAME"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps" env:"STAFFING_OTP_RPS"`
	Burst int     `yaml:"burst" env:"STAFFING_OTP_BURST"`
}

// DefaultTimeouts returns the engine timeouts used when nothing overrides them.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		ReservationTTL:    300 * time.Second,
		PaymentTTL:        900 * time.Second,
		PaymentSessionTTL: 300 * time.Second,
		MaxOTPAttempts:    3,
	}
}

func defaults() *Config {
	return &Config{
		Env:           "production",
		Addr:          ":8080",
		JWTSecret:     insecureJWTSecret,
		APITimeout:    15 * time.Second,
		TokenDuration: time.Hour,
		Database: DatabaseConfig{
			Dialect:        "sqlite",
			DSN:            "staffing.db",
			MigrateOnStart: true,
		},
		Timeouts: DefaultTimeouts(),
		Payment: PaymentConfig{
			BcryptCost: bcrypt.DefaultCost,
			OTPQueue:   "otp:outbound",
		},
		Sweeper: SweeperConfig{
			Interval:  30 * time.Second,
			BatchSize: 100,
		},
		Jobs: JobsConfig{
			Workers:      2,
			PollInterval: time.Second,
			MaxAttempts:  5,
		},
		Redis: RedisConfig{
			Stream: "staffing:events",
		},
		Telemetry: TelemetryConfig{
			Endpoint:    "localhost:4317",
			ServiceName: "staffing",
		},
		RateLimit: RateLimitConfig{
			RPS:   1,
			Burst: 5,
		},
	}
}

// LoadConfig decodes the YAML file at path (if any) over the defaults and
// then applies STAFFING_* environment variables on top.
func LoadConfig(path string) (*Config, error) {
	cfg := defaults()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	return cfg, nil
}

// Development reports whether the config runs in a development environment.
func (c *Config) Development() bool {
	return strings.EqualFold(c.Env, "development")
}

// Production reports whether the config runs in production.
func (c *Config) Production() bool {
	return strings.EqualFold(c.Env, "production")
}

// Validate checks the config for values the server must not start with.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr is required")
	}
	if c.JWTSecret == "" {
		return errors.New("jwt_secret is required")
	}
	if c.JWTSecret == insecureJWTSecret && !c.Development() {
		return errors.New("jwt_secret uses the insecure default; set STAFFING_JWT_SECRET or STAFFING_ENV=development")
	}
	if c.APITimeout <= 0 || c.TokenDuration <= 0 {
		return errors.New("timeout and token_duration must be positive")
	}

	switch c.Database.Dialect {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.dialect %q is not supported", c.Database.Dialect)
	}
	if c.Database.DSN == "" {
		return errors.New("database.dsn is required")
	}

	if err := c.Timeouts.Validate(); err != nil {
		return err
	}

	if c.Payment.BcryptCost < bcrypt.MinCost || c.Payment.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("payment.bcrypt_cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if c.Payment.AllowBypass && c.Production() {
		return errors.New("payment.allow_bypass cannot be enabled in production")
	}

	if c.Sweeper.Interval <= 0 {
		return errors.New("sweeper.interval must be positive")
	}
	if c.Jobs.Workers < 1 || c.Jobs.MaxAttempts < 1 {
		return errors.New("jobs.workers and jobs.max_attempts must be at least 1")
	}
	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst < 1 {
		return errors.New("rate_limit.rps and rate_limit.burst must be positive")
	}

	return nil
}

func (t Timeouts) Validate() error {
	if t.ReservationTTL <= 0 || t.PaymentTTL <= 0 || t.PaymentSessionTTL <= 0 {
		return errors.New("timeouts must be positive")
	}
	if t.MaxOTPAttempts < 1 {
		return errors.New("timeouts.max_otp_attempts must be at least 1")
	}
	return nil
}
