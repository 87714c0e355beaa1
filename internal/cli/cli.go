package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/ignatij/shopfloor/internal/config"
	internal_http "github.com/ignatij/shopfloor/internal/http"
	"github.com/ignatij/shopfloor/internal/log"
	"github.com/ignatij/shopfloor/internal/metrics"
	internal_storage "github.com/ignatij/shopfloor/internal/storage"
	"github.com/ignatij/shopfloor/pkg/jobcard"
	"github.com/ignatij/shopfloor/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// ImportFile is the YAML layout accepted by the import command.
type ImportFile struct {
	JobCards []models.JobCard `yaml:"job_cards"`
}

func SetupCLI(rootCmd *cobra.Command) {
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file (defaults to $SHOPFLOOR_CONFIG)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the job card REST API",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig(cmd)
			dsn, err := cfg.DatabaseDSN()
			exitOnErr("Failed to resolve database", err)
			store, err := internal_storage.InitStore(cfg.DB.Driver, dsn)
			exitOnErr("Failed to initialize store", err)
			defer store.Close()
			insecure, _ := cmd.Flags().GetBool("insecure")
			exitOnErr("Server stopped", internal_http.StartServer(cfg.Server.Addr, store, cfg.Server.Tokens,
				insecure || cfg.Server.Insecure))
		},
	}
	serveCmd.Flags().Bool("insecure", false, "Serve without bearer tokens (authentication disabled)")

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig(cmd)
			dsn, err := cfg.DatabaseDSN()
			exitOnErr("Failed to resolve database", err)
			exitOnErr("Failed to apply migrations", internal_storage.Migrate(cfg.DB.Driver, dsn))
			fmt.Fprintln(os.Stdout, "Migrations applied successfully")
		},
	}

	importCmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import the job cards of one or more production orders from YAML",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			withBackend(cmd, func(ctx context.Context, b Backend) error {
				return importJobCards(ctx, b, args[0], os.Stdout)
			})
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List job cards",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			filter := filterFromFlags(cmd)
			withBackend(cmd, func(ctx context.Context, b Backend) error {
				cards, err := b.ListStages(ctx, filter)
				if err != nil {
					return err
				}
				RenderJobCards(os.Stdout, cards)
				return nil
			})
		},
	}
	addFilterFlags(listCmd)

	ordersCmd := &cobra.Command{
		Use:   "orders",
		Short: "Show production order progress",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			filter := filterFromFlags(cmd)
			withCoordinator(cmd, filter, func(ctx context.Context, coord *jobcard.Coordinator) error {
				RenderOrders(os.Stdout, coord.Orders())
				return nil
			})
		},
	}
	addFilterFlags(ordersCmd)

	logsCmd := &cobra.Command{
		Use:   "logs ID",
		Short: "Show the time log of a job card",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			withBackend(cmd, func(ctx context.Context, b Backend) error {
				logs, err := b.ListLogs(ctx, args[0])
				if err != nil {
					return err
				}
				RenderLogs(os.Stdout, logs)
				return nil
			})
		},
	}

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Interactive operator terminal with live timers",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig(cmd)
			filter := filterFromFlags(cmd)
			if filter.ProductionOrder == "" && filter.Operator == "" {
				filter.Operator = cfg.Client.Operator
			}
			metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
			b, err := openBackend(cfg)
			exitOnErr("Failed to open backend", err)
			defer b.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			m := metrics.New()
			coord := jobcard.NewCoordinator(b, log.GetLogger(),
				jobcard.WithPersistTimeout(cfg.Client.PersistTimeout),
				jobcard.WithRecorder(m))
			defer coord.Close()
			exitOnErr("Failed to load job cards", coord.Load(ctx, filter))

			if metricsAddr != "" {
				go func() {
					if err := http.ListenAndServe(metricsAddr, m.Handler()); err != nil {
						log.GetLogger().Errorf("Metrics endpoint stopped: %v", err)
					}
				}()
			}

			RenderStages(os.Stdout, coord.Stages())
			sh := NewShell(coord, func(ctx context.Context) error { return coord.Load(ctx, filter) }, os.Stdout)
			sh.OnChange = func(stages []jobcard.StageView) { m.SetRunningTimers(countRunning(stages)) }
			exitOnErr("Shell failed", sh.Run(ctx, os.Stdin))
		},
	}
	addFilterFlags(watchCmd)
	watchCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9100)")

	rootCmd.AddCommand(serveCmd, migrateCmd, importCmd, listCmd, ordersCmd, logsCmd, watchCmd)
	rootCmd.AddCommand(transitionCommands()...)
}

// transitionCommands builds the one-shot start/pause/save/complete commands.
// Retry is only offered by watch since unconfirmed state lives in one session.
func transitionCommands() []*cobra.Command {
	var cmds []*cobra.Command
	for _, tc := range []struct {
		action jobcard.Action
		use    string
		short  string
		args   cobra.PositionalArgs
	}{
		{jobcard.ActionStart, "start ID", "Start or resume a job card", cobra.ExactArgs(1)},
		{jobcard.ActionPause, "pause ID", "Pause a running job card", cobra.ExactArgs(1)},
		{jobcard.ActionSave, "save ID QTY", "Record the completed quantity of a job card", cobra.ExactArgs(2)},
		{jobcard.ActionComplete, "complete ID [QTY]", "Complete a job card", cobra.RangeArgs(1, 2)},
	} {
		action := tc.action
		cmds = append(cmds, &cobra.Command{
			Use:   tc.use,
			Short: tc.short,
			Args:  tc.args,
			Run: func(cmd *cobra.Command, args []string) {
				withCoordinator(cmd, models.JobCardFilter{ID: args[0]}, func(ctx context.Context, coord *jobcard.Coordinator) error {
					return runTransition(ctx, coord, action, args, os.Stdout)
				})
			},
		})
	}
	return cmds
}

func runTransition(ctx context.Context, coord *jobcard.Coordinator, action jobcard.Action, args []string, out io.Writer) error {
	var (
		res jobcard.Result
		err error
	)
	id := args[0]
	switch action {
	case jobcard.ActionStart:
		res, err = coord.Start(ctx, id)
	case jobcard.ActionPause:
		res, err = coord.Pause(ctx, id)
	case jobcard.ActionRetry:
		res, err = coord.Retry(ctx, id)
	case jobcard.ActionSave:
		qty, perr := decimal.NewFromString(args[1])
		if perr != nil {
			return fmt.Errorf("invalid quantity %q", args[1])
		}
		res, err = coord.Save(ctx, id, qty)
	case jobcard.ActionComplete:
		var qty *decimal.Decimal
		if len(args) > 1 {
			q, perr := decimal.NewFromString(args[1])
			if perr != nil {
				return fmt.Errorf("invalid quantity %q", args[1])
			}
			qty = &q
		}
		res, err = coord.Complete(ctx, id, qty)
	default:
		return fmt.Errorf("unsupported action %q", action)
	}
	if err != nil {
		return err
	}
	RenderResult(out, action, res)
	return nil
}

func importJobCards(ctx context.Context, b Backend, path string, out io.Writer) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	var file ImportFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(file.JobCards) == 0 {
		return fmt.Errorf("%s contains no job cards", path)
	}
	for i := range file.JobCards {
		if file.JobCards[i].ID == "" {
			file.JobCards[i].ID = uuid.NewString()
		}
	}
	if err := b.ImportJobCards(ctx, file.JobCards); err != nil {
		return err
	}
	fmt.Fprintf(out, "Imported %d job cards\n", len(file.JobCards))
	return nil
}

func countRunning(stages []jobcard.StageView) int {
	n := 0
	for _, s := range stages {
		if s.Running {
			n++
		}
	}
	return n
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().String("order", "", "Only job cards of this production order")
	cmd.Flags().String("operator", "", "Only job cards assigned to this operator (defaults to $OPERATOR for watch)")
}

func filterFromFlags(cmd *cobra.Command) models.JobCardFilter {
	order, _ := cmd.Flags().GetString("order")
	operator, _ := cmd.Flags().GetString("operator")
	return models.JobCardFilter{ProductionOrder: order, Operator: operator}
}

func loadConfig(cmd *cobra.Command) *config.Config {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	exitOnErr("Failed to load config", err)
	log.Configure(cfg.Log.Level, cfg.Log.Format)
	return cfg
}

func withBackend(cmd *cobra.Command, fn func(ctx context.Context, b Backend) error) {
	runWithBackend(cmd, loadConfig(cmd), fn)
}

func runWithBackend(cmd *cobra.Command, cfg *config.Config, fn func(ctx context.Context, b Backend) error) {
	b, err := openBackend(cfg)
	exitOnErr("Failed to open backend", err)
	defer b.Close()
	exitOnErr("Command failed", fn(cmd.Context(), b))
}

func withCoordinator(cmd *cobra.Command, filter models.JobCardFilter, fn func(ctx context.Context, coord *jobcard.Coordinator) error) {
	cfg := loadConfig(cmd)
	runWithBackend(cmd, cfg, func(ctx context.Context, b Backend) error {
		coord := jobcard.NewCoordinator(b, log.GetLogger(), jobcard.WithPersistTimeout(cfg.Client.PersistTimeout))
		defer coord.Close()
		if err := coord.Load(ctx, filter); err != nil {
			return err
		}
		return fn(ctx, coord)
	})
}

func exitOnErr(msg string, err error) {
	if err == nil {
		return
	}
	log.GetLogger().Errorf("%s: %v", msg, err)
	fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	os.Exit(1)
}
