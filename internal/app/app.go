// Package app assembles the staffing engine and its infrastructure from a
// Config. The server and the admin CLI share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	dbfs "github.com/garnizeh/staffing/db"
	"github.com/garnizeh/staffing/internal/clock"
	"github.com/garnizeh/staffing/internal/config"
	"github.com/garnizeh/staffing/internal/db"
	"github.com/garnizeh/staffing/internal/engine"
	"github.com/garnizeh/staffing/internal/events"
	"github.com/garnizeh/staffing/internal/jobs"
	"github.com/garnizeh/staffing/internal/observability"
	"github.com/garnizeh/staffing/internal/otp"
	"github.com/garnizeh/staffing/internal/repository/sqlstore"
)

type App struct {
	Config    *config.Config
	Live      *config.Live
	DB        *db.DB
	Store     *sqlstore.Store
	Engine    *engine.Engine
	Jobs      *jobs.WorkerPool
	Telemetry *observability.Provider

	redis  *redis.Client
	logger *slog.Logger
}

// New opens the database, applies migrations when configured and builds
// the engine. Events go through the job outbox to the log sink and, when
// Redis is configured, to the Redis stream.
func New(ctx context.Context, cfg *config.Config, version string, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Live: config.NewLive(cfg.Timeouts), logger: logger}

	dialect, err := db.ParseDialect(cfg.Database.Dialect)
	if err != nil {
		return nil, err
	}
	a.DB, err = db.Open(ctx, dialect, cfg.Database.DSN, logger)
	if err != nil {
		return nil, err
	}
	if cfg.Database.MigrateOnStart {
		if err := db.Migrate(ctx, a.DB, dbfs.Migrations); err != nil {
			a.Close(ctx)
			return nil, err
		}
	}

	a.Telemetry, err = observability.New(ctx, observability.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.Telemetry.Endpoint,
		Enabled:        cfg.Telemetry.Enabled,
		Insecure:       cfg.Telemetry.Insecure,
	}, logger)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	inst, err := a.Telemetry.Instruments()
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	sinks := events.MultiSink{events.NewLogSink(logger.With("component", "events"))}
	var sender engine.OTPSender
	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		sinks = append(sinks, events.NewRedisSink(a.redis, cfg.Redis.Stream))
		sender = otp.NewRedisQueue(a.redis, cfg.Payment.OTPQueue)
	} else {
		if !cfg.Development() {
			a.Close(ctx)
			return nil, errors.New("redis.addr is required outside development for otp delivery")
		}
		logger.Warn("redis not configured; otp codes stay in memory")
		sender = otp.NewMemory()
	}

	clk := clock.Real()
	jobRepo := jobs.NewRepository(a.DB, clk)
	a.Jobs = jobs.NewWorkerPool(jobRepo, map[string]jobs.Handler{
		jobs.DeliverEventType: jobs.DeliverHandler(sinks),
	}, logger.With("component", "jobs"), cfg.Jobs.Workers, cfg.Jobs.PollInterval)

	a.Store = sqlstore.New(a.DB, logger, sqlstore.WithClock(clk))
	a.Engine, err = engine.New(engine.Deps{
		Store:          a.Store,
		Clock:          clk,
		Config:         a.Live,
		Publisher:      jobs.NewOutboxPublisher(jobRepo, logger, cfg.Jobs.MaxAttempts),
		OTP:            sender,
		Instruments:    inst,
		Logger:         logger,
		BcryptCost:     cfg.Payment.BcryptCost,
		AllowBypass:    cfg.Payment.AllowBypass && !cfg.Production(),
		SweepBatchSize: cfg.Sweeper.BatchSize,
	})
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	return a, nil
}

// Close releases everything New opened. Background loops must be stopped first.
func (a *App) Close(ctx context.Context) {
	if a.Telemetry != nil {
		if err := a.Telemetry.Shutdown(ctx); err != nil {
			a.logger.Error("telemetry shutdown", "err", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close", "err", err)
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.logger.Error("db close", "err", err)
		}
	}
}
