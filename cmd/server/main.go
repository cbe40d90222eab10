package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/garnizeh/staffing/api"
	"github.com/garnizeh/staffing/internal/app"
	"github.com/garnizeh/staffing/internal/config"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	var configPath = flag.String("config", "", "Path to config YAML file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)
	api.SetLogger(logger)

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "err", err)
		os.Exit(1)
	}

	logger.Info("starting staffing server", "version", version, "build_time", buildTime, "env", cfg.Env)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	a, err := app.New(ctx, cfg, version, logger)
	if err != nil {
		logger.Error("failed to start", "err", err)
		os.Exit(1)
	}

	a.Jobs.Start(ctx)
	a.Engine.Sweeper.Start(ctx, cfg.Sweeper.Interval)

	handler := api.SetupRoutes(cfg, version, buildTime, a.Engine, a.Store)

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.APITimeout,
		WriteTimeout: cfg.APITimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	// SIGHUP reloads engine timeouts; everything else in the file needs a restart.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for s := range sig {
		if s != syscall.SIGHUP {
			break
		}
		if *configPath == "" {
			logger.Warn("sighup ignored: no config file")
			continue
		}
		if err := a.Live.Reload(*configPath); err != nil {
			logger.Error("reload failed", "err", err)
			continue
		}
		logger.Info("timeouts reloaded", "timeouts", a.Live.Timeouts())
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "err", err)
	}
	a.Engine.Sweeper.Stop()
	a.Jobs.Stop()
	stop()
	a.Close(shutdownCtx)

	logger.Info("server exited")
}
