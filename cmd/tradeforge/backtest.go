package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tradeforge/tradeforge/internal/backtest"
	"github.com/tradeforge/tradeforge/internal/config"
	"github.com/tradeforge/tradeforge/internal/market"
	"github.com/tradeforge/tradeforge/internal/signal"
)

func newBacktestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Backtest a strategy over historical prices",
		Long: `Runs the trade simulator for each symbol over the given date range and
prints the aggregate statistics. Entry signals are OR-combined; exit
rules are checked in the order given on the command line.`,
		RunE: runBacktest,
	}

	cmd.Flags().StringSlice("symbols", nil, "Symbols to backtest (required)")
	cmd.Flags().String("from", "", "Start date YYYY-MM-DD (required)")
	cmd.Flags().String("to", "", "End date YYYY-MM-DD (required)")
	cmd.Flags().StringArray("signal", nil, "Entry signal, e.g. golden_cross:short=5,long=20 (repeatable)")
	cmd.Flags().Float64("stop-loss", 0, "Stop loss threshold, e.g. -0.05")
	cmd.Flags().Float64("take-profit", 0, "Take profit threshold, e.g. 0.1")
	cmd.Flags().Float64("trailing-stop", 0, "Trailing stop threshold, e.g. -0.03")
	cmd.Flags().Int("max-holding-days", 0, "Maximum holding days before forced exit")
	cmd.Flags().String("export", "", "Write the trade table to this CSV file")

	cmd.MarkFlagRequired("symbols")
	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("to")
	cmd.MarkFlagRequired("signal")

	return cmd
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	symbols, _ := cmd.Flags().GetStringSlice("symbols")
	from, to, err := parseDateRange(cmd.Flags())
	if err != nil {
		return err
	}

	bt := backtest.New(backtest.Config{
		Cash:               cfg.Backtest.Cash,
		MinHistory:         cfg.Backtest.MinHistory,
		MaxWorkers:         cfg.Backtest.MaxWorkers,
		TradingDaysPerYear: cfg.Backtest.TradingDaysPerYear,
	})

	signals, _ := cmd.Flags().GetStringArray("signal")
	for _, spec := range signals {
		name, params, err := parseSignalFlag(spec)
		if err != nil {
			return err
		}
		if err := bt.AddSignal(name, params); err != nil {
			return err
		}
	}
	if err := addExitFlags(cmd, bt); err != nil {
		return err
	}

	provider := buildProvider(cfg)

	results, err := bt.Run(cmd.Context(), provider, symbols, from, to)
	if err != nil {
		return err
	}

	printSummary(results)

	if path, _ := cmd.Flags().GetString("export"); path != "" {
		if err := results.ExportCSV(path); err != nil {
			return err
		}
		log.Info().Str("path", path).Msg("Trade table exported")
	}
	return nil
}

func printSummary(results *backtest.Results) {
	s := results.Summary()
	fmt.Printf("Trades:          %d\n", s.TotalTrades)
	fmt.Printf("Win rate:        %.2f%%\n", s.WinRate*100)
	fmt.Printf("Avg return:      %.2f%%\n", s.AvgReturn*100)
	fmt.Printf("Max return:      %.2f%%\n", s.MaxReturn*100)
	fmt.Printf("Max loss:        %.2f%%\n", s.MaxLoss*100)
	fmt.Printf("Profit factor:   %.2f\n", s.ProfitFactor)
	fmt.Printf("Sharpe ratio:    %.2f\n", s.SharpeRatio)
	fmt.Printf("Max drawdown:    %.2f%%\n", s.MaxDrawdown*100)
	fmt.Printf("Avg holding:     %.1f days\n", s.AvgHoldingDays)
	for symbol, err := range results.Failures() {
		fmt.Printf("Skipped %s: %v\n", symbol, err)
	}
}

// parseSignalFlag parses "name:key=value,key=value" into a registry name
// and its parameters. The parameter part is optional.
func parseSignalFlag(spec string) (string, signal.Params, error) {
	name, rest, found := strings.Cut(spec, ":")
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil, fmt.Errorf("invalid signal spec %q", spec)
	}
	params := signal.Params{}
	if !found || strings.TrimSpace(rest) == "" {
		return name, params, nil
	}
	for _, pair := range strings.Split(rest, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return "", nil, fmt.Errorf("invalid signal parameter %q in %q", pair, spec)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return "", nil, fmt.Errorf("invalid signal parameter value %q in %q", value, spec)
		}
		params[strings.TrimSpace(key)] = v
	}
	return name, params, nil
}

func addExitFlags(cmd *cobra.Command, bt *backtest.Backtester) error {
	for _, f := range []struct {
		flag string
		rule string
	}{
		{"stop-loss", backtest.RuleStopLoss},
		{"take-profit", backtest.RuleTakeProfit},
		{"trailing-stop", backtest.RuleTrailingStop},
	} {
		if !cmd.Flags().Changed(f.flag) {
			continue
		}
		v, _ := cmd.Flags().GetFloat64(f.flag)
		if err := bt.AddExitRule(f.rule, v); err != nil {
			return err
		}
	}
	if cmd.Flags().Changed("max-holding-days") {
		days, _ := cmd.Flags().GetInt("max-holding-days")
		if err := bt.AddExitRule(backtest.RuleMaxHoldingDays, float64(days)); err != nil {
			return err
		}
	}
	return nil
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func buildProvider(cfg config.Config) market.Provider {
	var provider market.Provider = market.NewCSVProvider(cfg.Data.Dir)
	if cfg.Data.RateLimitRPS > 0 {
		provider = market.RateLimited(provider, cfg.Data.RateLimitRPS, cfg.Data.RateLimitBurst)
	}
	if cfg.Data.CircuitBreaker {
		provider = market.WithBreaker(provider, "csv-prices")
	}
	return provider
}

func parseDateRange(flags *pflag.FlagSet) (time.Time, time.Time, error) {
	fromStr, _ := flags.GetString("from")
	toStr, _ := flags.GetString("to")
	from, err := time.Parse("2006-01-02", fromStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --from date %q: %w", fromStr, err)
	}
	to, err := time.Parse("2006-01-02", toStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --to date %q: %w", toStr, err)
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("--from must be before --to")
	}
	return from, to, nil
}

func outputPath(cfg config.Config, name string) (string, error) {
	if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	return filepath.Join(cfg.Output.Dir, name), nil
}
