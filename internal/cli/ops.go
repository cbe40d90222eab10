package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/garnizeh/staffing/api"
	"github.com/garnizeh/staffing/internal/app"
	"github.com/garnizeh/staffing/internal/repository/sqlstore"
	"github.com/garnizeh/staffing/pkg/models"
)

func newSweepCmd(load loader, version string) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one expiry sweep and print its counts",
		Long: `Sweep expires lapsed reservations and payment sessions once. Events
are queued in the job outbox and delivered by a running server.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), cfg, version, quietLogger())
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			res, err := a.Engine.Sweeper.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
}

func newTokenCmd(load loader) *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for a principal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.TokenDuration
			}
			tok, err := api.IssueToken(cfg.JWTSecret, subject, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "sub", "", "Principal id")
	cmd.Flags().StringVar(&role, "role", api.RoleCustomer, "customer, agency or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (default token_duration)")
	_ = cmd.MarkFlagRequired("sub")
	return cmd
}

func newSeedWorkerCmd(load loader) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "seed-worker",
		Short: "Create a Ready worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return errors.New("--name is required")
			}
			cfg, err := load()
			if err != nil {
				return err
			}
			d, err := openDB(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer d.Close()

			id, err := sqlstore.New(d, quietLogger()).CreateWorker(cmd.Context(), &models.Worker{Name: name, Status: models.WorkerReady})
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"id": id, "name": name, "status": models.WorkerReady})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Worker name")
	return cmd
}

func newOpenRequestCmd(load loader) *cobra.Command {
	var (
		customer int64
		qty      int
	)
	cmd := &cobra.Command{
		Use:   "open-request",
		Short: "Open a recruitment request for a customer",
		RunE: func(cmd *cobra.Command, args []string) error {
			if customer <= 0 || qty <= 0 {
				return errors.New("--customer and --qty must be positive")
			}
			cfg, err := load()
			if err != nil {
				return err
			}
			d, err := openDB(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer d.Close()

			id, err := sqlstore.New(d, quietLogger()).CreateRequest(cmd.Context(), &models.RecruitmentRequest{
				CustomerID:       customer,
				QuantityRequired: qty,
				Status:           models.RequestOpen,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"id": id, "customer_id": customer, "quantity_required": qty})
		},
	}
	cmd.Flags().Int64Var(&customer, "customer", 0, "Customer id")
	cmd.Flags().IntVar(&qty, "qty", 0, "Quantity required")
	return cmd
}
