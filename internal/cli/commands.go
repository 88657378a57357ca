// Package cli implements the signallab command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"fx-signal-lab/internal/analysis"
	"fx-signal-lab/internal/app"
	"fx-signal-lab/internal/config"
	"fx-signal-lab/internal/domain"
	"fx-signal-lab/internal/logging"
	"fx-signal-lab/internal/reporting"
	"fx-signal-lab/internal/storage"
	"fx-signal-lab/internal/storage/migrations"
	"fx-signal-lab/internal/storage/postgres"
	"fx-signal-lab/internal/verification"
)

// state is shared by every subcommand after PersistentPreRunE.
type state struct {
	envFile  string
	logLevel string

	cfg    *config.Config
	logger zerolog.Logger
}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	st := &state{}

	rootCmd := &cobra.Command{
		Use:   "signallab",
		Short: "FX signal extraction and performance accounting",
		Long: `signallab turns market analysis text into BUY/SELL signals, verifies each
signal against the market after a fixed delay and aggregates trading statistics.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(st.envFile)
			if err != nil {
				return err
			}
			if st.logLevel != "" {
				cfg.App.LogLevel = st.logLevel
			}
			st.cfg = cfg
			st.logger = logging.New(cfg.App.LogLevel, cfg.App.LogFormat)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&st.envFile, "env-file", ".env", "Environment file to load")
	rootCmd.PersistentFlags().StringVar(&st.logLevel, "log-level", "", "Override LOG_LEVEL")

	rootCmd.AddCommand(newServeCmd(st))
	rootCmd.AddCommand(newAnalyzeCmd(st))
	rootCmd.AddCommand(newVerifyCmd(st))
	rootCmd.AddCommand(newStatsCmd(st))
	rootCmd.AddCommand(newReportCmd(st))
	rootCmd.AddCommand(newMigrateCmd(st))

	return rootCmd
}

// requireDurable rejects the memory backend for one-shot commands whose
// writes would be lost when the process exits.
func (st *state) requireDurable(name string) error {
	if st.cfg.Storage.Backend == "memory" {
		return fmt.Errorf("%s: STORAGE_BACKEND=memory does not persist between runs; use file, postgres or redis", name)
	}
	return nil
}

// withApp builds the service graph, runs fn and closes the graph.
func (st *state) withApp(ctx context.Context, fn func(a *app.App) error) error {
	a, err := app.New(ctx, st.cfg, st.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			st.logger.Warn().Err(err).Msg("close")
		}
	}()
	return fn(a)
}

func newServeCmd(st *state) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the verification loop and the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				st.cfg.API.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return st.withApp(ctx, func(a *app.App) error {
				g, gctx := errgroup.WithContext(ctx)
				g.Go(func() error {
					err := a.Verifier.Run(gctx)
					if errors.Is(err, context.Canceled) {
						return nil
					}
					return err
				})
				g.Go(func() error {
					return a.API.ListenAndServe(gctx, st.cfg.API.Addr)
				})

				err := g.Wait()
				st.logger.Info().Msg("shutdown complete")
				return err
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Override HTTP_ADDR")
	return cmd
}

func newAnalyzeCmd(st *state) *cobra.Command {
	var (
		pair   string
		file   string
		record bool
	)

	cmd := &cobra.Command{
		Use:   "analyze [TEXT]",
		Short: "Classify analysis text and optionally record the signal",
		Long: `Classify analysis text into BUY, SELL or NONE and extract entry, stop loss
and take profit. Text comes from the argument, --file, or stdin.
Example: signallab analyze --pair USD/JPY --record "買いエントリー 145.50 ..."`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pair, err := domain.NormalizePair(pair)
			if err != nil {
				return err
			}
			text, err := readText(cmd.InOrStdin(), args, file)
			if err != nil {
				return err
			}

			cls := analysis.Classify(text)
			out := cmd.OutOrStdout()
			renderClassification(out, pair, cls)

			if !record {
				return nil
			}
			if cls.Action == domain.ActionNone {
				fmt.Fprintln(out, "No actionable signal; nothing recorded.")
				return nil
			}
			if err := st.requireDurable("analyze --record"); err != nil {
				return err
			}

			return st.withApp(cmd.Context(), func(a *app.App) error {
				a.Metrics.RecordAnalyzed(string(cls.Action))
				sig := cls.Signal(pair)
				sig.Analysis = text

				rec, err := a.Ledger.Record(cmd.Context(), sig)
				if err != nil {
					return err
				}
				task, err := a.Ledger.Task(cmd.Context(), rec.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Recorded %s, verification at %s\n", rec.ID, task.VerifyAt.Format("2006-01-02 15:04 MST"))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&pair, "pair", "USD/JPY", "Currency pair the text is about")
	cmd.Flags().StringVar(&file, "file", "", "Read text from file")
	cmd.Flags().BoolVar(&record, "record", false, "Record actionable signals in the ledger")
	return cmd
}

func readText(stdin io.Reader, args []string, file string) (string, error) {
	switch {
	case len(args) == 1:
		return args[0], nil
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", file, err)
		}
		return string(b), nil
	default:
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		text := strings.TrimSpace(string(b))
		if text == "" {
			return "", errors.New("no analysis text given")
		}
		return text, nil
	}
}

func newVerifyCmd(st *state) *cobra.Command {
	var audit bool

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Run one verification pass over due signals",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			if err := st.requireDurable("verify"); err != nil {
				return err
			}

			return st.withApp(ctx, func(a *app.App) error {
				report, err := a.Verifier.RunOnce(ctx)
				if err != nil {
					return err
				}
				renderPass(out, report)

				if !audit {
					return nil
				}
				completed, err := a.Ledger.Completed(ctx, "")
				if err != nil {
					return err
				}
				renderAudit(out, verification.Audit(completed))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&audit, "audit", false, "Re-derive every completed result and report divergences")
	return cmd
}

func newStatsCmd(st *state) *cobra.Command {
	var (
		pair      string
		recompute bool
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show performance statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if pair != "" {
				norm, err := domain.NormalizePair(pair)
				if err != nil {
					return err
				}
				pair = norm
			}

			return st.withApp(ctx, func(a *app.App) error {
				var (
					stats *domain.PerformanceStatistics
					err   error
				)
				if recompute {
					stats, err = a.Aggregator.Recompute(ctx, pair)
				} else {
					stats, err = a.Aggregator.Latest(ctx, pair)
				}
				if err != nil {
					return err
				}
				renderStatistics(cmd.OutOrStdout(), stats)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&pair, "pair", "", "Currency pair (empty for all pairs)")
	cmd.Flags().BoolVar(&recompute, "recompute", false, "Recompute from the ledger and save a snapshot")
	return cmd
}

func newReportCmd(st *state) *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Write the Markdown and CSV performance report",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if outDir == "" {
				outDir = st.cfg.App.ReportDir
			}

			return st.withApp(ctx, func(a *app.App) error {
				r, err := reporting.NewGenerator(a.Ledger).Generate(ctx)
				if err != nil {
					return err
				}
				paths, err := reporting.WriteFiles(outDir, r)
				if err != nil {
					return err
				}
				for _, p := range paths {
					fmt.Fprintln(cmd.OutOrStdout(), p)
				}
				if n := len(r.IntegrityErrors); n > 0 {
					st.logger.Warn().Int("count", n).Msg("report contains integrity errors")
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&outDir, "out", "", "Output directory (default REPORT_DIR)")
	return cmd
}

func newMigrateCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply PostgreSQL and ClickHouse migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			sc := st.cfg.Storage
			ran := false

			if sc.PostgresDSN != "" {
				pool, err := postgres.NewPool(ctx, sc.PostgresDSN)
				if err != nil {
					return err
				}
				defer pool.Close()

				applied, err := migrations.RunPostgresMigrations(ctx, pool)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "postgres: %d migrations applied %v\n", len(applied), applied)
				ran = true
			}

			if sc.ClickhouseDSN != "" {
				conn, err := migrations.RunClickhouseMigrations(ctx, sc.ClickhouseDSN)
				if err != nil {
					return err
				}
				defer conn.Close()
				fmt.Fprintln(out, "clickhouse: schema up to date")
				ran = true
			}

			if !ran {
				return fmt.Errorf("%w: set POSTGRES_DSN or CLICKHOUSE_DSN", storage.ErrInvalidInput)
			}
			return nil
		},
	}
}
