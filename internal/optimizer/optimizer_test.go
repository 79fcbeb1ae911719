package optimizer

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeforge/tradeforge/internal/backtest"
	"github.com/tradeforge/tradeforge/internal/market"
)

// waveProvider serves an oscillating price series so short-window moving
// average crosses fire repeatedly.
func waveProvider(n int) (*market.MemoryProvider, time.Time, time.Time) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := make(market.Series, n)
	for i := range s {
		price := 100 + 15*math.Sin(float64(i)/5)
		s[i] = market.PriceBar{
			Date:   base.AddDate(0, 0, i),
			Open:   price,
			High:   price,
			Low:    price,
			Close:  price,
			Volume: 1000,
		}
	}
	p := market.NewMemoryProvider()
	p.SetPrices("WAVE", s)
	return p, base, base.AddDate(0, 0, n-1)
}

func testBTConfig() backtest.Config {
	return backtest.Config{Cash: 100_000, MinHistory: 5, TradingDaysPerYear: 252}
}

func maSpace(t *testing.T) *SearchSpace {
	t.Helper()
	space := NewSearchSpace()
	require.NoError(t, space.AddDimension("ma_short", []float64{2}))
	require.NoError(t, space.AddDimension("ma_long", []float64{3, 4}))
	require.NoError(t, space.AddDimension("stop_loss", []float64{-0.05, -0.10}))
	return space
}

func TestOptimizerGridRun(t *testing.T) {
	provider, from, to := waveProvider(120)
	streamPath := filepath.Join(t.TempDir(), "trials.jsonl")

	opt := NewOptimizer(maSpace(t), testBTConfig(), Options{
		Method:     MethodGrid,
		Metric:     MetricName("sharpe_ratio"),
		NJobs:      2,
		StreamPath: streamPath,
	})

	results, err := opt.Run(context.Background(), provider, []string{"WAVE"}, from, to)
	require.NoError(t, err)
	assert.Equal(t, 4, results.Len())
	assert.NotEmpty(t, results.RunID())

	best, err := results.Best()
	require.NoError(t, err)
	assert.Contains(t, best.Metrics, "sharpe_ratio")
	assert.Len(t, best.Params, 3)

	// Every completed trial was streamed.
	streamed, err := LoadStream(streamPath, MetricName("sharpe_ratio"))
	require.NoError(t, err)
	assert.Equal(t, results.Len(), streamed.Len())
}

func TestOptimizerTimeoutReturnsPartialResults(t *testing.T) {
	provider, from, to := waveProvider(120)
	streamPath := filepath.Join(t.TempDir(), "trials.jsonl")

	space := NewSearchSpace()
	require.NoError(t, space.AddDimension("ma_short", []float64{2, 3, 4}))
	require.NoError(t, space.AddDimension("ma_long", []float64{5, 6, 7, 8}))
	require.NoError(t, space.AddDimension("stop_loss", []float64{-0.03, -0.05, -0.08, -0.10}))

	opt := NewOptimizer(space, testBTConfig(), Options{
		Method:     MethodGrid,
		Metric:     MetricName("sharpe_ratio"),
		NJobs:      1,
		Timeout:    time.Nanosecond,
		StreamPath: streamPath,
	})

	results, err := opt.Run(context.Background(), provider, []string{"WAVE"}, from, to)
	require.Error(t, err)

	var timeout *TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, time.Nanosecond, timeout.Timeout)
	assert.Equal(t, 48, timeout.Total)
	assert.Less(t, timeout.Completed, timeout.Total)
	assert.Contains(t, err.Error(), "timed out")

	// Partial results are still usable and match the stream.
	require.NotNil(t, results)
	assert.Equal(t, timeout.Completed, results.Len())
	streamed, serr := LoadStream(streamPath, MetricName("sharpe_ratio"))
	require.NoError(t, serr)
	assert.Equal(t, timeout.Completed, streamed.Len())
}

func TestOptimizerRandomSampling(t *testing.T) {
	provider, from, to := waveProvider(120)

	opt := NewOptimizer(maSpace(t), testBTConfig(), Options{
		Method:  MethodRandom,
		NTrials: 3,
		Metric:  MetricName("total_return"),
		Seed:    42,
	})

	results, err := opt.Run(context.Background(), provider, []string{"WAVE"}, from, to)
	require.NoError(t, err)
	assert.Equal(t, 3, results.Len())
}

func TestOptimizerRandomRequiresTrialCount(t *testing.T) {
	provider, from, to := waveProvider(120)
	opt := NewOptimizer(maSpace(t), testBTConfig(), Options{Method: MethodRandom})
	_, err := opt.Run(context.Background(), provider, []string{"WAVE"}, from, to)
	assert.Error(t, err)
}

func TestOptimizerUnknownMethod(t *testing.T) {
	provider, from, to := waveProvider(120)
	opt := NewOptimizer(maSpace(t), testBTConfig(), Options{Method: "annealing"})
	_, err := opt.Run(context.Background(), provider, []string{"WAVE"}, from, to)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "annealing")
}

func TestOptimizerConstraintsRejectEverything(t *testing.T) {
	provider, from, to := waveProvider(120)
	space := maSpace(t)
	space.AddConstraint(func(Assignment) bool { return false })

	opt := NewOptimizer(space, testBTConfig(), Options{})
	_, err := opt.Run(context.Background(), provider, []string{"WAVE"}, from, to)
	assert.ErrorIs(t, err, ErrNoValidParameters)
}

func TestOptimizerWalkForwardProducesOOSMetrics(t *testing.T) {
	provider, from, to := waveProvider(200)

	space := NewSearchSpace()
	require.NoError(t, space.AddDimension("ma_short", []float64{2}))
	require.NoError(t, space.AddDimension("ma_long", []float64{3}))

	opt := NewOptimizer(space, testBTConfig(), Options{
		Method:     MethodGrid,
		Metric:     MetricName("sharpe_ratio"),
		Validation: ValidationWalkForward,
		NSplits:    2,
		TrainRatio: 0.5,
	})

	results, err := opt.Run(context.Background(), provider, []string{"WAVE"}, from, to)
	require.NoError(t, err)
	require.Equal(t, 1, results.Len())

	trial := results.Trials()[0]
	assert.NotEmpty(t, trial.Metrics)
	assert.NotEmpty(t, trial.OOSMetrics)
	assert.Contains(t, trial.OOSMetrics, "sharpe_ratio")
}

func TestOptimizerCancellation(t *testing.T) {
	provider, from, to := waveProvider(120)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	opt := NewOptimizer(maSpace(t), testBTConfig(), Options{NJobs: 1})
	_, err := opt.Run(ctx, provider, []string{"WAVE"}, from, to)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestAverageMetricsSkipsNaN(t *testing.T) {
	avg := averageMetrics([]map[string]float64{
		{"sharpe_ratio": 1.0, "profit_factor": math.NaN()},
		{"sharpe_ratio": 3.0, "profit_factor": 2.0},
	})
	assert.InDelta(t, 2.0, avg["sharpe_ratio"], 1e-12)
	assert.InDelta(t, 2.0, avg["profit_factor"], 1e-12)

	allNaN := averageMetrics([]map[string]float64{
		{"profit_factor": math.NaN()},
		{"profit_factor": math.NaN()},
	})
	assert.True(t, math.IsNaN(allNaN["profit_factor"]))
}
