// Package cli implements staffctl, the operator tool for the staffing
// service database.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/garnizeh/staffing/internal/config"
	"github.com/garnizeh/staffing/internal/db"
)

// NewRootCmd builds the staffctl command tree.
func NewRootCmd(version string) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "staffctl",
		Short:         "Operate the staffing service database",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config YAML file")

	load := func() (*config.Config, error) {
		return config.LoadConfig(configPath)
	}

	root.AddCommand(
		newMigrateCmd(load),
		newSweepCmd(load, version),
		newTokenCmd(load),
		newBackupCmd(load),
		newRestoreCmd(load),
		newSeedWorkerCmd(load),
		newOpenRequestCmd(load),
	)
	return root
}

type loader func() (*config.Config, error)

func openDB(ctx context.Context, cfg *config.Config) (*db.DB, error) {
	dialect, err := db.ParseDialect(cfg.Database.Dialect)
	if err != nil {
		return nil, err
	}
	return db.Open(ctx, dialect, cfg.Database.DSN, quietLogger())
}

// quietLogger sends library logs to stderr so stdout carries only results.
func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
