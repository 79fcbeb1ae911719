package main

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tradeforge/tradeforge/internal/backtest"
	"github.com/tradeforge/tradeforge/internal/optimizer"
)

func newOptimizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Search a strategy parameter space",
		Long: `Evaluates every candidate parameter combination with a full backtest
and ranks them by the chosen metric. Dimensions are given as
--dim name=v1,v2,... using the fixed parameter names (ma_short,
ma_long, rsi_period, rsi_threshold, macd_fast, macd_slow, macd_signal,
bollinger_period, bollinger_std, volume_period, volume_multiplier,
stop_loss, take_profit, trailing_stop, max_holding_days).`,
		RunE: runOptimize,
	}

	cmd.Flags().StringSlice("symbols", nil, "Symbols to backtest (required)")
	cmd.Flags().String("from", "", "Start date YYYY-MM-DD (required)")
	cmd.Flags().String("to", "", "End date YYYY-MM-DD (required)")
	cmd.Flags().StringArray("dim", nil, "Search dimension, e.g. ma_short=5,10,20 (repeatable, required)")
	cmd.Flags().String("method", optimizer.MethodGrid, "Search method (grid|random)")
	cmd.Flags().Int("trials", 0, "Trial count for random search")
	cmd.Flags().String("metric", "sharpe_ratio", "Ranking metric")
	cmd.Flags().Int("jobs", 0, "Parallel trial workers (-1 = all cores)")
	cmd.Flags().String("validation", optimizer.ValidationNone, "Validation mode (none|walk_forward)")
	cmd.Flags().Float64("train-ratio", 0.7, "Walk-forward train fraction per window")
	cmd.Flags().Int("splits", 3, "Walk-forward window count")
	cmd.Flags().Duration("timeout", 0, "Run deadline, e.g. 10m (0 = none)")
	cmd.Flags().Int64("seed", 0, "Random sampling seed (0 = time-based)")
	cmd.Flags().Int("top", 5, "Number of top trials to print")
	cmd.Flags().Bool("no-stream", false, "Disable the JSONL trial stream")

	cmd.MarkFlagRequired("symbols")
	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("to")
	cmd.MarkFlagRequired("dim")

	return cmd
}

func runOptimize(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	symbols, _ := cmd.Flags().GetStringSlice("symbols")
	from, to, err := parseDateRange(cmd.Flags())
	if err != nil {
		return err
	}

	dims, _ := cmd.Flags().GetStringArray("dim")
	space, err := buildSearchSpace(dims)
	if err != nil {
		return err
	}

	metricName, _ := cmd.Flags().GetString("metric")
	method, _ := cmd.Flags().GetString("method")
	trials, _ := cmd.Flags().GetInt("trials")
	jobs, _ := cmd.Flags().GetInt("jobs")
	validation, _ := cmd.Flags().GetString("validation")
	trainRatio, _ := cmd.Flags().GetFloat64("train-ratio")
	splits, _ := cmd.Flags().GetInt("splits")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	seed, _ := cmd.Flags().GetInt64("seed")

	options := optimizer.Options{
		Method:     method,
		NTrials:    trials,
		Metric:     optimizer.MetricName(metricName),
		NJobs:      jobs,
		Validation: validation,
		TrainRatio: trainRatio,
		NSplits:    splits,
		Timeout:    timeout,
		Seed:       seed,
	}
	if noStream, _ := cmd.Flags().GetBool("no-stream"); !noStream {
		options.StreamPath, err = outputPath(cfg, "trials.jsonl")
		if err != nil {
			return err
		}
	}

	opt := optimizer.NewOptimizer(space, backtest.Config{
		Cash:               cfg.Backtest.Cash,
		MinHistory:         cfg.Backtest.MinHistory,
		MaxWorkers:         cfg.Backtest.MaxWorkers,
		TradingDaysPerYear: cfg.Backtest.TradingDaysPerYear,
	}, options)

	provider := buildProvider(cfg)

	results, runErr := opt.Run(cmd.Context(), provider, symbols, from, to)
	var timeoutErr *optimizer.TimeoutError
	if runErr != nil && !errors.As(runErr, &timeoutErr) {
		return runErr
	}
	if timeoutErr != nil {
		log.Warn().
			Dur("timeout", timeoutErr.Timeout).
			Int("completed", timeoutErr.Completed).
			Int("total", timeoutErr.Total).
			Msg("Run hit its deadline, showing partial results")
	}

	topN, _ := cmd.Flags().GetInt("top")
	printTrials(results, metricName, topN)

	savePath, err := outputPath(cfg, "results.json")
	if err != nil {
		return err
	}
	if err := results.Save(savePath); err != nil {
		return err
	}
	log.Info().Str("path", savePath).Msg("Results saved")
	return nil
}

func printTrials(results *optimizer.Results, metricName string, n int) {
	top := results.Top(n)
	if len(top) == 0 {
		fmt.Println("No trials completed.")
		return
	}
	fmt.Printf("Completed trials: %d\n", results.Len())
	for i, t := range top {
		fmt.Printf("%d. %s  %s=%.4f\n", i+1, formatParams(t.Params), metricName, t.Metrics[metricName])
		if len(t.OOSMetrics) > 0 {
			fmt.Printf("   out-of-sample %s=%.4f\n", metricName, t.OOSMetrics[metricName])
		}
	}
}

func formatParams(a optimizer.Assignment) string {
	names := make([]string, 0, len(a))
	for name := range a {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%s", name, strconv.FormatFloat(a[name], 'f', -1, 64)))
	}
	return strings.Join(parts, " ")
}

// buildSearchSpace parses repeated "name=v1,v2,..." flags and attaches the
// structural constraints implied by the parameter names.
func buildSearchSpace(dims []string) (*optimizer.SearchSpace, error) {
	space := optimizer.NewSearchSpace()
	declared := make(map[string]bool)
	for _, spec := range dims {
		name, rest, ok := strings.Cut(spec, "=")
		if !ok {
			return nil, fmt.Errorf("invalid dimension spec %q, want name=v1,v2,...", spec)
		}
		name = strings.TrimSpace(name)
		var values []float64
		for _, raw := range strings.Split(rest, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid value %q in dimension %q", raw, name)
			}
			values = append(values, v)
		}
		if err := space.AddDimension(name, values); err != nil {
			return nil, err
		}
		declared[name] = true
	}

	if declared["ma_short"] && declared["ma_long"] {
		space.AddConstraint(func(a optimizer.Assignment) bool {
			return a["ma_short"] < a["ma_long"]
		})
	}
	if declared["macd_fast"] && declared["macd_slow"] {
		space.AddConstraint(func(a optimizer.Assignment) bool {
			return a["macd_fast"] < a["macd_slow"]
		})
	}
	return space, nil
}
