package backtest

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func testTrade(symbol string, exitDay int, returnPct, pnl float64) Trade {
	return Trade{
		Symbol:      symbol,
		EntryDate:   day(exitDay - 1),
		EntryPrice:  100,
		ExitDate:    day(exitDay),
		ExitPrice:   100 * (1 + returnPct),
		Shares:      10,
		PnL:         pnl,
		ReturnPct:   returnPct,
		HoldingDays: 1,
		ExitReason:  RuleStopLoss,
	}
}

func TestSummaryBasicStats(t *testing.T) {
	trades := []Trade{
		testTrade("AAA", 1, 0.10, 100),
		testTrade("AAA", 2, -0.05, -50),
		testTrade("BBB", 3, 0.20, 200),
		testTrade("BBB", 4, 0.0, 0),
	}
	r := NewResults(trades, nil, 252)
	s := r.Summary()

	assert.Equal(t, 4, s.TotalTrades)
	assert.InDelta(t, 0.5, s.WinRate, 1e-12) // zero-return trade is not a win
	assert.InDelta(t, 0.0625, s.AvgReturn, 1e-12)
	assert.InDelta(t, 0.20, s.MaxReturn, 1e-12)
	assert.InDelta(t, -0.05, s.MaxLoss, 1e-12)
	assert.InDelta(t, 6.0, s.ProfitFactor, 1e-12) // 300 gross profit / 50 gross loss
	assert.InDelta(t, 1.0, s.AvgHoldingDays, 1e-12)
}

func TestSummaryEmptyTrades(t *testing.T) {
	r := NewResults(nil, nil, 252)
	s := r.Summary()
	assert.Zero(t, s.TotalTrades)
	assert.Zero(t, s.WinRate)
	assert.Zero(t, s.SharpeRatio)
}

func TestProfitFactorUndefinedWithoutLosses(t *testing.T) {
	trades := []Trade{
		testTrade("AAA", 1, 0.10, 100),
		testTrade("AAA", 2, 0.20, 200),
	}
	r := NewResults(trades, nil, 252)
	assert.True(t, math.IsNaN(r.Summary().ProfitFactor))
}

func TestSharpeRatioAnnualization(t *testing.T) {
	trades := []Trade{
		testTrade("AAA", 1, 0.10, 100),
		testTrade("AAA", 2, 0.20, 200),
	}
	// mean 0.15, sample std ~0.0707107, annualized by sqrt(252)
	want := 0.15 / 0.07071067811865475 * math.Sqrt(252)
	r := NewResults(trades, nil, 252)
	assert.InDelta(t, want, r.Summary().SharpeRatio, 1e-9)

	// Sharpe scales with the annualization constant.
	r52 := NewResults(trades, nil, 52)
	assert.InDelta(t, want*math.Sqrt(52.0/252.0), r52.Summary().SharpeRatio, 1e-9)
}

func TestSharpeRatioZeroVariance(t *testing.T) {
	trades := []Trade{
		testTrade("AAA", 1, 0.10, 100),
		testTrade("AAA", 2, 0.10, 100),
	}
	r := NewResults(trades, nil, 252)
	assert.Zero(t, r.Summary().SharpeRatio)
}

func TestMaxDrawdownOrdersByExitDate(t *testing.T) {
	// In slice order the curve never draws down; ordered by exit date it
	// compounds +50%, -50%, +20%: peak 1.5, trough 0.75, drawdown 50%.
	trades := []Trade{
		testTrade("AAA", 3, 0.20, 20),
		testTrade("AAA", 1, 0.50, 50),
		testTrade("AAA", 2, -0.50, -50),
	}
	r := NewResults(trades, nil, 252)
	assert.InDelta(t, 0.5, r.Summary().MaxDrawdown, 1e-12)
}

func TestMetricsMapKeys(t *testing.T) {
	r := NewResults([]Trade{testTrade("AAA", 1, 0.10, 100)}, nil, 252)
	m := r.Metrics()
	for _, key := range []string{"total_return", "sharpe_ratio", "max_drawdown", "win_rate", "profit_factor"} {
		assert.Contains(t, m, key)
	}
}

func TestBySymbolSortedByPnL(t *testing.T) {
	trades := []Trade{
		testTrade("AAA", 1, 0.10, 100),
		testTrade("BBB", 2, 0.30, 300),
		testTrade("AAA", 3, -0.05, -50),
	}
	r := NewResults(trades, nil, 252)
	groups := r.BySymbol()
	require.Len(t, groups, 2)
	assert.Equal(t, "BBB", groups[0].Key)
	assert.Equal(t, "AAA", groups[1].Key)
	assert.Equal(t, 2, groups[1].Trades)
	assert.InDelta(t, 0.5, groups[1].WinRate, 1e-12)
	assert.InDelta(t, 50.0, groups[1].TotalPnL, 1e-12)
}

func TestBySectorSkipsUnmappedSymbols(t *testing.T) {
	trades := []Trade{
		testTrade("AAA", 1, 0.10, 100),
		testTrade("BBB", 2, 0.30, 300),
		testTrade("ZZZ", 3, 0.10, 100),
	}
	r := NewResults(trades, nil, 252)
	groups := r.BySector(map[string]string{"AAA": "tech", "BBB": "energy"})
	require.Len(t, groups, 2)
	for _, g := range groups {
		assert.NotEqual(t, "ZZZ", g.Key)
	}
}

func TestMonthlyAndYearlyReturns(t *testing.T) {
	trades := []Trade{
		testTrade("AAA", 5, 0.10, 100),   // 2024-01
		testTrade("AAA", 40, 0.20, 200),  // 2024-02
		testTrade("AAA", 400, 0.30, 300), // 2025
	}
	r := NewResults(trades, nil, 252)

	monthly := r.MonthlyReturns()
	require.Len(t, monthly, 3)
	assert.Equal(t, "2024-01", monthly[0].Key)
	assert.Equal(t, "2024-02", monthly[1].Key)

	yearly := r.YearlyReturns()
	require.Len(t, yearly, 2)
	assert.Equal(t, "2024", yearly[0].Key)
	assert.Equal(t, "2025", yearly[1].Key)
	assert.Equal(t, 2, yearly[0].Trades)
}

func TestExportCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.csv")
	r := NewResults([]Trade{testTrade("AAA", 1, 0.10, 100)}, nil, 252)
	require.NoError(t, r.ExportCSV(path))
	assert.FileExists(t, path)
}
