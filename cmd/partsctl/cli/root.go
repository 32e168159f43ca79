// Package cli implements the partsctl operator commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/partsdesk/partsdesk/internal/app"
	"github.com/partsdesk/partsdesk/internal/inventory"
	"github.com/partsdesk/partsdesk/internal/platform/db"
	"github.com/partsdesk/partsdesk/internal/report"
)

// ErrDrift is returned by `stock verify` when balances disagree with the ledger.
var ErrDrift = errors.New("stock balances drifted from ledger")

// Env carries the process seams the commands depend on.
type Env struct {
	Stdout     io.Writer
	Stderr     io.Writer
	LoadConfig func() (*app.Config, error)
}

func (e Env) withDefaults() Env {
	if e.Stdout == nil {
		e.Stdout = os.Stdout
	}
	if e.Stderr == nil {
		e.Stderr = os.Stderr
	}
	if e.LoadConfig == nil {
		e.LoadConfig = app.LoadConfig
	}
	return e
}

type runtime struct {
	env    Env
	cfg    *app.Config
	logger *slog.Logger
}

func (rt *runtime) load() error {
	if rt.cfg != nil {
		return nil
	}
	cfg, err := rt.env.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	rt.cfg = cfg
	rt.logger = slog.New(slog.NewTextHandler(rt.env.Stderr, nil))
	return nil
}

func (rt *runtime) pool(ctx context.Context) (*pgxpool.Pool, error) {
	if err := rt.load(); err != nil {
		return nil, err
	}
	return db.New(ctx, rt.cfg.PGDSN, db.Options{MaxConns: 4})
}

// NewRootCommand assembles partsctl.
func NewRootCommand(env Env) *cobra.Command {
	rt := &runtime{env: env.withDefaults()}
	root := &cobra.Command{
		Use:           "partsctl",
		Short:         "Operator tooling for the partsdesk back office",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(rt.env.Stdout)
	root.SetErr(rt.env.Stderr)
	root.AddCommand(migrateCommand(rt), stockCommand(rt), jobsCommand(rt), reportCommand(rt))
	return root
}

func migrateCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pool, err := rt.pool(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()
			applied, err := db.Migrate(cmd.Context(), pool, rt.logger)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
				return nil
			}
			for _, name := range applied {
				fmt.Fprintln(cmd.OutOrStdout(), "applied", name)
			}
			return nil
		},
	}
}

func stockCommand(rt *runtime) *cobra.Command {
	stock := &cobra.Command{Use: "stock", Short: "Inventory ledger checks"}
	stock.AddCommand(&cobra.Command{
		Use:   "verify",
		Short: "Recompute stock from the ledger and compare with running balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pool, err := rt.pool(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()
			svc := inventory.NewService(inventory.NewRepository(pool), inventory.NewLedger(inventory.LedgerConfig{}), nil, rt.logger)
			found, err := svc.VerifyConservation(cmd.Context())
			if err != nil {
				return err
			}
			if err := RenderDiscrepancies(cmd.OutOrStdout(), found); err != nil {
				return err
			}
			if len(found) > 0 {
				return fmt.Errorf("%w: %d parts", ErrDrift, len(found))
			}
			return nil
		},
	})
	return stock
}

func jobsCommand(rt *runtime) *cobra.Command {
	jobsCmd := &cobra.Command{Use: "jobs", Short: "Background job helpers"}
	jobsCmd.AddCommand(&cobra.Command{
		Use:   "trigger <job>",
		Short: "Enqueue stock:integrity_scan or idempotency:cleanup now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := TaskFor(args[0]); err != nil {
				return err
			}
			if err := rt.load(); err != nil {
				return err
			}
			jc := NewJobsCLI(rt.cfg.AsynqRedis())
			defer jc.Close()
			info, err := jc.Trigger(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
			return nil
		},
	}, &cobra.Command{
		Use:   "stats",
		Short: "Show the default queue state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := rt.load(); err != nil {
				return err
			}
			jc := NewJobsCLI(rt.cfg.AsynqRedis())
			defer jc.Close()
			stats, err := jc.InspectQueue(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
				stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
			return nil
		},
	})
	return jobsCmd
}

func reportCommand(rt *runtime) *cobra.Command {
	var from, to, locale string
	pl := &cobra.Command{
		Use:   "pl",
		Short: "Print profit and loss for a date range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			start, err := time.Parse("2006-01-02", from)
			if err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			end, err := time.Parse("2006-01-02", to)
			if err != nil {
				return fmt.Errorf("--to: %w", err)
			}
			money, err := NewRupees(locale)
			if err != nil {
				return err
			}
			pool, err := rt.pool(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()
			result, err := report.NewService(report.NewRepository(pool), nil, rt.logger).ProfitAndLoss(cmd.Context(), start, end)
			if err != nil {
				return err
			}
			return RenderProfitAndLoss(cmd.OutOrStdout(), result, money)
		},
	}
	pl.Flags().StringVar(&from, "from", "", "first day, YYYY-MM-DD")
	pl.Flags().StringVar(&to, "to", "", "last day, YYYY-MM-DD")
	pl.Flags().StringVar(&locale, "locale", "en-IN", "number formatting locale")
	_ = pl.MarkFlagRequired("from")
	_ = pl.MarkFlagRequired("to")

	reportCmd := &cobra.Command{Use: "report", Short: "Financial reports"}
	reportCmd.AddCommand(pl)
	return reportCmd
}
