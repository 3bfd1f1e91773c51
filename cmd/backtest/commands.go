package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Alias1177/Backtester/internal/config"
	"github.com/Alias1177/Backtester/internal/database"
	"github.com/Alias1177/Backtester/internal/dataio"
	"github.com/Alias1177/Backtester/internal/logger"
	"github.com/Alias1177/Backtester/internal/trading/backtest"
	"github.com/Alias1177/Backtester/models"
)

var errNoSignals = errors.New("bar file has no signal or weight column")

type runOptions struct {
	bars   []string
	mode   string
	outDir string
	saveDB bool
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "backtest",
		Short:         "Regime-adaptive bar-by-bar backtest simulator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")

	root.AddCommand(newRunCmd(&configPath))
	root.AddCommand(newValidateCmd(&configPath))
	root.AddCommand(newRunsCmd(&configPath))
	return root
}

// loadConfig reads the config and sets up the global logger from it
func loadConfig(path string) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	l := logger.Init(cfg.Logging.Level, !cfg.Logging.JSON)
	return cfg, l, nil
}

func newRunCmd(configPath *string) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Simulate one or more instruments",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, l, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			var store models.RunStore
			if opts.saveDB || cfg.Database.Enabled {
				db, err := database.New(cmd.Context(), cfg.Database.Params(), l)
				if err != nil {
					return err
				}
				defer db.Close()
				store = db
			}

			return runBacktests(cmd.Context(), cfg, opts, store, l, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringSliceVar(&opts.bars, "bars", nil, "bar CSV files, one instrument each")
	cmd.Flags().StringVar(&opts.mode, "mode", "", "signal kind: binary or weighted (overrides config)")
	cmd.Flags().StringVar(&opts.outDir, "out", ".", "directory for ledger CSV files")
	cmd.Flags().BoolVar(&opts.saveDB, "save-db", false, "store runs in PostgreSQL")
	_ = cmd.MarkFlagRequired("bars")
	return cmd
}

func newValidateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config OK: mode=%s capital=%.2f commission=%.4f\n",
				cfg.Mode, cfg.Backtest.InitialCapital, cfg.Backtest.CommissionRate)
			return nil
		},
	}
}

func newRunsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "runs SYMBOL",
		Short: "List stored runs for a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, l, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			db, err := database.New(cmd.Context(), cfg.Database.Params(), l)
			if err != nil {
				return err
			}
			defer db.Close()

			summaries, err := db.RunSummaries(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, s := range summaries {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s %s -> %s trades=%d halted=%t\n",
					s.CreatedAt.Format("2006-01-02 15:04:05"), s.ID, s.SignalKind,
					s.InitialCapital.StringFixed(2), s.FinalEquity.StringFixed(2), s.Trades, s.Halted)
			}
			return nil
		},
	}
}

// runBacktests simulates every bar file in turn. Each instrument gets its own
// portfolio state; nothing is aggregated across files.
func runBacktests(ctx context.Context, cfg *config.Config, opts runOptions, store models.RunStore, l zerolog.Logger, out io.Writer) error {
	if opts.mode != "" {
		cfg.Mode = opts.mode
	}
	kind, ok := models.ParseSignalKind(cfg.Mode)
	if !ok {
		return fmt.Errorf("%w: %q", backtest.ErrUnknownSignalKind, cfg.Mode)
	}
	if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	engine := backtest.NewEngine(cfg.Backtest, backtest.WithLogger(l))

	for _, path := range opts.bars {
		if err := ctx.Err(); err != nil {
			return err
		}

		symbol := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		bars, values, err := readBarFile(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		res, err := engine.Run(symbol, bars, models.Signals{Kind: kind, Values: values})
		if err != nil {
			return fmt.Errorf("%s: %w", symbol, err)
		}

		ledgerPath := filepath.Join(opts.outDir, symbol+"_ledger.csv")
		if err := writeLedgerFile(ledgerPath, res.Ledger); err != nil {
			return err
		}

		summary := backtest.Summarize(res, cfg.Backtest.InitialCapital)
		fmt.Fprint(out, backtest.FormatSummary(summary))

		if store != nil {
			id, err := store.SaveRun(ctx, models.RunRecord{
				Symbol:         symbol,
				SignalKind:     kind,
				InitialCapital: cfg.Backtest.InitialCapital,
				FinalEquity:    summary.FinalEquity,
				Halted:         summary.Halted,
				Ledger:         res.Ledger,
				Trades:         res.Trades,
			})
			if err != nil {
				return fmt.Errorf("save %s: %w", symbol, err)
			}
			fmt.Fprintf(out, "Stored as run %s\n", id)
		}

		l.Info().Str("symbol", symbol).Str("ledger", ledgerPath).Msg("Ledger written")
	}

	return nil
}

func readBarFile(path string) ([]models.Bar, []float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	bars, values, err := dataio.ReadBars(f)
	if err != nil {
		return nil, nil, err
	}
	if values == nil && len(bars) > 0 {
		return nil, nil, errNoSignals
	}
	return bars, values, nil
}

func writeLedgerFile(path string, rows []models.LedgerRow) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file %s: %w", path, err)
	}

	if err := dataio.WriteLedger(f, rows); err != nil {
		f.Close()
		return fmt.Errorf("write ledger %s: %w", path, err)
	}
	return f.Close()
}
