package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	dbfs "github.com/garnizeh/staffing/db"
	"github.com/garnizeh/staffing/internal/config"
	"github.com/garnizeh/staffing/internal/db"
)

func newMigrateCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			d, err := openDB(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer d.Close()

			if err := db.Migrate(cmd.Context(), d, dbfs.Migrations); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func newBackupCmd(load loader) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write a consistent copy of the SQLite database",
		Long: `Backup uses VACUUM INTO, so it is safe to run while the server is up.
The destination file must not exist. PostgreSQL deployments should use pg_dump.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if err := requireSQLite(cfg); err != nil {
				return err
			}
			if out == "" {
				out = sqlitePath(cfg.Database.DSN) + ".bak"
			}
			if _, err := os.Stat(out); err == nil {
				return fmt.Errorf("backup target %s already exists", out)
			}

			d, err := openDB(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer d.Close()

			if _, err := d.Exec(cmd.Context(), `VACUUM INTO ?`, out); err != nil {
				return fmt.Errorf("vacuum into %s: %w", out, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "backup written to %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Destination file (default <database>.bak)")
	return cmd
}

func newRestoreCmd(load loader) *cobra.Command {
	var from string
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Replace the SQLite database with a backup; the server must be stopped",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if err := requireSQLite(cfg); err != nil {
				return err
			}
			dst := sqlitePath(cfg.Database.DSN)
			if from == "" {
				from = dst + ".bak"
			}
			if err := copyFile(from, dst); err != nil {
				return fmt.Errorf("restore: %w", err)
			}
			// stale journal files would be replayed over the restored copy
			for _, suffix := range []string{"-wal", "-shm", "-journal"} {
				if err := os.Remove(dst + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("restore: %w", err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "database restored from %s\n", from)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "Backup file (default <database>.bak)")
	return cmd
}

func requireSQLite(cfg *config.Config) error {
	dialect, err := db.ParseDialect(cfg.Database.Dialect)
	if err != nil {
		return err
	}
	if dialect != db.SQLite {
		return fmt.Errorf("only sqlite databases are supported, got %s", dialect)
	}
	if p := sqlitePath(cfg.Database.DSN); p == "" || p == ":memory:" {
		return fmt.Errorf("database %q is not a file", cfg.Database.DSN)
	}
	return nil
}

// sqlitePath strips the file: scheme and query parameters from a DSN.
func sqlitePath(dsn string) string {
	p := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	return p
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
