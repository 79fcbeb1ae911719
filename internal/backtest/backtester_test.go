package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeforge/tradeforge/internal/market"
	"github.com/tradeforge/tradeforge/internal/signal"
)

func flatSeries(n int, price float64) market.Series {
	return testSeries(nil, constant(n, price))
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func testRange() (time.Time, time.Time) {
	return time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
}

func TestBacktesterRequiresSignal(t *testing.T) {
	bt := New(DefaultConfig())
	from, to := testRange()
	_, err := bt.Run(context.Background(), market.NewMemoryProvider(), []string{"AAA"}, from, to)
	assert.ErrorIs(t, err, ErrNoSignal)
}

func TestBacktesterRejectsUnknownNames(t *testing.T) {
	bt := New(DefaultConfig())
	assert.Error(t, bt.AddSignal("tea_leaves", signal.Params{}))
	assert.Error(t, bt.AddExitRule("hold_forever", 1))
	assert.Error(t, bt.SetEntryRule("same_day_close"))
	assert.NoError(t, bt.SetEntryRule(EntryNextDayOpen))
}

func TestBacktesterRecordsPartialFailures(t *testing.T) {
	provider := market.NewMemoryProvider()
	provider.SetPrices("GOOD", flatSeries(60, 100))

	bt := New(Config{Cash: 1000, MinHistory: 30, TradingDaysPerYear: 252})
	require.NoError(t, bt.AddSignal("golden_cross", signal.Params{"short": 2, "long": 3}))

	from, to := testRange()
	results, err := bt.Run(context.Background(), provider, []string{"GOOD", "MISSING"}, from, to)
	require.NoError(t, err)
	require.NotNil(t, results)

	require.Len(t, results.Failures(), 1)
	assert.ErrorIs(t, results.Failures()["MISSING"], market.ErrSymbolNotFound)
}

func TestBacktesterEscalatesWhenAllSymbolsFail(t *testing.T) {
	provider := market.NewMemoryProvider()
	provider.SetPrices("SHORT", flatSeries(5, 100))

	bt := New(Config{Cash: 1000, MinHistory: 30, TradingDaysPerYear: 252})
	require.NoError(t, bt.AddSignal("golden_cross", signal.Params{"short": 2, "long": 3}))

	from, to := testRange()
	_, err := bt.Run(context.Background(), provider, []string{"SHORT", "MISSING"}, from, to)
	require.Error(t, err)

	// The insufficient-data failure wins over the transport failure.
	var insufficient *InsufficientDataError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "SHORT", insufficient.Symbol)
	assert.Equal(t, 30, insufficient.Required)
	assert.Equal(t, 5, insufficient.Actual)
}

func TestBacktesterMergesTradesAcrossSymbols(t *testing.T) {
	// A decline followed by a recovery produces a short-window golden
	// cross; the -5% stop and end-of-data close each position.
	closes := []float64{100, 98, 96, 94, 92, 90, 88, 86, 84, 82,
		80, 78, 76, 74, 72, 70, 72, 75, 79, 84,
		90, 95, 100, 104, 107, 109, 110, 110, 109, 108,
		107, 106, 105, 104, 103, 102, 101, 100, 99, 98}
	provider := market.NewMemoryProvider()
	provider.SetPrices("AAA", testSeries(nil, closes))
	provider.SetPrices("BBB", testSeries(nil, closes))

	bt := New(Config{Cash: 100000, MinHistory: 10, TradingDaysPerYear: 252})
	require.NoError(t, bt.AddSignal("golden_cross", signal.Params{"short": 2, "long": 3}))
	require.NoError(t, bt.AddExitRule(RuleStopLoss, -0.05))

	from, to := testRange()
	results, err := bt.Run(context.Background(), provider, []string{"AAA", "BBB"}, from, to)
	require.NoError(t, err)
	require.NotEmpty(t, results.Trades())
	assert.Empty(t, results.Failures())

	// Identical histories produce identical trades per symbol.
	bySymbol := results.BySymbol()
	require.Len(t, bySymbol, 2)
	assert.Equal(t, bySymbol[0].Trades, bySymbol[1].Trades)
}

func TestBacktesterHonorsDateRange(t *testing.T) {
	provider := market.NewMemoryProvider()
	provider.SetPrices("AAA", flatSeries(60, 100))

	bt := New(Config{Cash: 1000, MinHistory: 30, TradingDaysPerYear: 252})
	require.NoError(t, bt.AddSignal("golden_cross", signal.Params{"short": 2, "long": 3}))

	// Range covers only the first 10 bars, below the history floor.
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 9)
	_, err := bt.Run(context.Background(), provider, []string{"AAA"}, from, to)

	var insufficient *InsufficientDataError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 10, insufficient.Actual)
}
