// Command invoicectl runs operational tasks against the invoicing database and
// job queue.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-invoicing/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-invoicing/internal/app"
	"github.com/odyssey-erp/odyssey-invoicing/internal/fiscal"
	"github.com/odyssey-erp/odyssey-invoicing/internal/masterdata"
	"github.com/odyssey-erp/odyssey-invoicing/internal/platform/db"
	"github.com/odyssey-erp/odyssey-invoicing/internal/platform/docstore"
	"github.com/odyssey-erp/odyssey-invoicing/internal/sales/invoices"
)

// exitError carries a command exit code through cobra.
type exitError int

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

func exitCode(code int) error {
	if code == 0 {
		return nil
	}
	return exitError(code)
}

type runtime struct {
	cfg    *app.Config
	logger *slog.Logger
	pool   *pgxpool.Pool
}

func (rt *runtime) connect(ctx context.Context) error {
	if rt.pool != nil {
		return nil
	}
	pool, err := db.New(ctx, rt.cfg.PGDSN, 2)
	if err != nil {
		return err
	}
	rt.pool = pool
	return nil
}

func (rt *runtime) close() {
	if rt.pool != nil {
		rt.pool.Close()
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt := &runtime{}
	defer rt.close()

	root := &cobra.Command{
		Use:           "invoicectl",
		Short:         "Operational tools for Odyssey invoicing",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			rt.cfg = cfg
			rt.logger = app.NewLogger(cfg)
			return nil
		},
	}
	root.PersistentFlags().Bool("json", false, "Print machine readable JSON")
	root.AddCommand(jobsCommand(rt), sequenceCommand(rt), fiscalCommand(rt))

	err := root.ExecuteContext(ctx)
	if err == nil {
		return
	}
	if code, ok := err.(exitError); ok {
		rt.close()
		os.Exit(int(code))
	}
	fmt.Fprintf(os.Stderr, "invoicectl: %v\n", err)
	rt.close()
	os.Exit(1)
}

func jsonFlag(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func jobsCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{Use: "jobs", Short: "Trigger and inspect background jobs"}

	var opts cli.TriggerOptions
	trigger := &cobra.Command{
		Use:   "trigger <task-type>",
		Short: "Enqueue a job now",
		Example: `  invoicectl jobs trigger invoices:duplicate_scan --branch br-1 --year 2025
  invoicectl jobs trigger maintenance:idempotency_cleanup --retention-hours 72`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobsCLI, err := cli.NewJobsCLI(rt.cfg.RedisAddr)
			if err != nil {
				return err
			}
			defer jobsCLI.Close()
			if opts.RetentionHours == 0 {
				opts.RetentionHours = rt.cfg.IdempotencyRetentionHours
			}
			info, err := jobsCLI.Trigger(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
			return nil
		},
	}
	trigger.Flags().StringVar(&opts.BranchID, "branch", "", "Branch to scan, empty for all")
	trigger.Flags().IntVar(&opts.Year, "year", 0, "Year to scan, 0 for all")
	trigger.Flags().IntVar(&opts.RetentionHours, "retention-hours", 0, "Idempotency key retention")

	inspect := &cobra.Command{
		Use:   "inspect",
		Short: "Show queue depth",
		RunE: func(cmd *cobra.Command, args []string) error {
			jobsCLI, err := cli.NewJobsCLI(rt.cfg.RedisAddr)
			if err != nil {
				return err
			}
			defer jobsCLI.Close()
			stats, err := jobsCLI.InspectQueue(cmd.Context())
			if err != nil {
				return err
			}
			if jsonFlag(cmd) {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(stats)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
				stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
			return nil
		},
	}

	var size int
	scheduled := &cobra.Command{
		Use:   "scheduled",
		Short: "List scheduled tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			jobsCLI, err := cli.NewJobsCLI(rt.cfg.RedisAddr)
			if err != nil {
				return err
			}
			defer jobsCLI.Close()
			tasks, err := jobsCLI.ListScheduled(cmd.Context(), size)
			if err != nil {
				return err
			}
			for _, t := range tasks {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", t.ID, t.Type, t.NextProcessAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
	scheduled.Flags().IntVar(&size, "size", 10, "Number of tasks to list")

	cmd.AddCommand(trigger, inspect, scheduled)
	return cmd
}

func sequenceCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{Use: "sequence", Short: "Inspect invoice and entry numbering"}

	build := func(ctx context.Context) (*cli.SequenceCLI, error) {
		if err := rt.connect(ctx); err != nil {
			return nil, err
		}
		docs := docstore.New(rt.pool)
		directory := masterdata.NewDirectory(masterdata.NewRepository(docs), nil, rt.logger)
		return cli.NewSequenceCLI(invoices.NewRepository(docs), directory), nil
	}

	var dupOpts cli.DuplicatesOptions
	duplicates := &cobra.Command{
		Use:   "duplicates",
		Short: "List invoice numbers issued more than once",
		RunE: func(cmd *cobra.Command, args []string) error {
			seqCLI, err := build(cmd.Context())
			if err != nil {
				return err
			}
			dupOpts.JSONOutput = jsonFlag(cmd)
			dupOpts.Stdout, dupOpts.Stderr = cmd.OutOrStdout(), cmd.ErrOrStderr()
			return exitCode(seqCLI.DuplicatesCommand(cmd.Context(), dupOpts))
		},
	}
	duplicates.Flags().StringVar(&dupOpts.BranchID, "branch", "", "Branch to scan, empty for all")
	duplicates.Flags().IntVar(&dupOpts.Year, "year", 0, "Year to scan, 0 for all")

	var statusOpts cli.StatusOptions
	status := &cobra.Command{
		Use:   "status",
		Short: "Show numbering counts for a branch and year",
		RunE: func(cmd *cobra.Command, args []string) error {
			seqCLI, err := build(cmd.Context())
			if err != nil {
				return err
			}
			statusOpts.JSONOutput = jsonFlag(cmd)
			statusOpts.Stdout, statusOpts.Stderr = cmd.OutOrStdout(), cmd.ErrOrStderr()
			return exitCode(seqCLI.StatusCommand(cmd.Context(), statusOpts))
		},
	}
	status.Flags().StringVar(&statusOpts.BranchID, "branch", "", "Branch id")
	status.Flags().IntVar(&statusOpts.Year, "year", 0, "Calendar year")

	cmd.AddCommand(duplicates, status)
	return cmd
}

func fiscalCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{Use: "fiscal", Short: "Manage financial years"}

	build := func(ctx context.Context) (*cli.FiscalCLI, error) {
		if err := rt.connect(ctx); err != nil {
			return nil, err
		}
		service := fiscal.NewService(fiscal.NewRepository(rt.pool), fiscal.NewRegistry(nil), fiscal.ServiceConfig{
			AutoCreateNext: rt.cfg.FiscalAutoCreateNext,
		}, rt.logger)
		return cli.NewFiscalCLI(service), nil
	}
	options := func(cmd *cobra.Command) cli.FiscalOptions {
		return cli.FiscalOptions{JSONOutput: jsonFlag(cmd), Stdout: cmd.OutOrStdout(), Stderr: cmd.ErrOrStderr()}
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List financial years",
		RunE: func(cmd *cobra.Command, args []string) error {
			fiscalCLI, err := build(cmd.Context())
			if err != nil {
				return err
			}
			return exitCode(fiscalCLI.ListCommand(cmd.Context(), options(cmd)))
		},
	}
	closeYear := &cobra.Command{
		Use:   "close <id>",
		Short: "Close a financial year",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fiscalCLI, err := build(cmd.Context())
			if err != nil {
				return err
			}
			return exitCode(fiscalCLI.CloseCommand(cmd.Context(), args[0], options(cmd)))
		},
	}

	cmd.AddCommand(list, closeYear)
	return cmd
}
