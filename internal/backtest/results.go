package backtest

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"sync"
)

// Summary holds the aggregate statistics of a trade collection. All values
// are pure functions of the trades; they are computed once and never
// mutated independently.
type Summary struct {
	TotalTrades    int     `json:"total_trades"`
	WinRate        float64 `json:"win_rate"`
	AvgReturn      float64 `json:"avg_return"`
	MaxReturn      float64 `json:"max_return"`
	MaxLoss        float64 `json:"max_loss"`
	ProfitFactor   float64 `json:"profit_factor"`
	MaxDrawdown    float64 `json:"max_drawdown"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
	AvgHoldingDays float64 `json:"avg_holding_days"`
}

// Results is an ordered collection of closed trades plus lazily computed
// aggregate statistics and grouping views.
type Results struct {
	trades             []Trade
	failures           map[string]error
	tradingDaysPerYear int

	once    sync.Once
	summary Summary
}

// NewResults wraps a merged trade collection. failures records per-symbol
// data errors that did not escalate.
func NewResults(trades []Trade, failures map[string]error, tradingDaysPerYear int) *Results {
	if tradingDaysPerYear <= 0 {
		tradingDaysPerYear = 252
	}
	return &Results{trades: trades, failures: failures, tradingDaysPerYear: tradingDaysPerYear}
}

// Trades returns the closed trades in merge order.
func (r *Results) Trades() []Trade { return r.trades }

// Failures returns per-symbol errors recorded during the run.
func (r *Results) Failures() map[string]error { return r.failures }

// Summary computes the aggregate statistics on first use.
func (r *Results) Summary() Summary {
	r.once.Do(func() { r.summary = r.computeSummary() })
	return r.summary
}

// Metrics returns the summary as the metric map consumed by the optimizer.
func (r *Results) Metrics() map[string]float64 {
	s := r.Summary()
	return map[string]float64{
		"total_return":  s.AvgReturn,
		"sharpe_ratio":  s.SharpeRatio,
		"max_drawdown":  s.MaxDrawdown,
		"win_rate":      s.WinRate,
		"profit_factor": s.ProfitFactor,
	}
}

func (r *Results) computeSummary() Summary {
	if len(r.trades) == 0 {
		return Summary{}
	}

	var s Summary
	s.TotalTrades = len(r.trades)
	s.MaxReturn = math.Inf(-1)
	s.MaxLoss = math.Inf(1)

	wins := 0
	var sumReturn, grossProfit, grossLoss, sumHolding float64
	for _, t := range r.trades {
		if t.ReturnPct > 0 {
			wins++
		}
		sumReturn += t.ReturnPct
		sumHolding += float64(t.HoldingDays)
		if t.ReturnPct > s.MaxReturn {
			s.MaxReturn = t.ReturnPct
		}
		if t.ReturnPct < s.MaxLoss {
			s.MaxLoss = t.ReturnPct
		}
		if t.PnL > 0 {
			grossProfit += t.PnL
		} else {
			grossLoss += -t.PnL
		}
	}

	n := float64(len(r.trades))
	s.WinRate = float64(wins) / n
	s.AvgReturn = sumReturn / n
	s.AvgHoldingDays = sumHolding / n

	if grossLoss > 0 {
		s.ProfitFactor = grossProfit / grossLoss
	} else {
		s.ProfitFactor = math.NaN() // undefined without losing trades
	}

	s.SharpeRatio = r.sharpeRatio(s.AvgReturn)
	s.MaxDrawdown = r.maxDrawdown()
	return s
}

// sharpeRatio is mean per-trade return over its standard deviation,
// annualized by sqrt of the configured trading days per year.
func (r *Results) sharpeRatio(mean float64) float64 {
	if len(r.trades) < 2 {
		return 0
	}
	var variance float64
	for _, t := range r.trades {
		d := t.ReturnPct - mean
		variance += d * d
	}
	variance /= float64(len(r.trades) - 1)
	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(float64(r.tradingDaysPerYear))
}

// maxDrawdown compounds all trades ordered by exit date into one equity
// curve and returns the largest peak-to-trough fractional decline. Trades
// are treated as sequential across symbols, not mark-to-market daily.
func (r *Results) maxDrawdown() float64 {
	ordered := make([]Trade, len(r.trades))
	copy(ordered, r.trades)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ExitDate.Before(ordered[j].ExitDate) })

	equity := 1.0
	peak := 1.0
	maxDD := 0.0
	for _, t := range ordered {
		equity *= 1 + t.ReturnPct
		if equity > peak {
			peak = equity
		}
		if dd := (peak - equity) / peak; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// GroupStats is one row of a grouping view.
type GroupStats struct {
	Key       string  `json:"key"`
	Trades    int     `json:"trades"`
	WinRate   float64 `json:"win_rate"`
	AvgReturn float64 `json:"avg_return"`
	TotalPnL  float64 `json:"total_pnl"`
}

// BySymbol re-aggregates the trades per symbol, sorted by total PnL
// descending.
func (r *Results) BySymbol() []GroupStats {
	return r.groupBy(func(t Trade) (string, bool) { return t.Symbol, true }, true)
}

// BySector re-aggregates the trades by the sector of each symbol. Symbols
// missing from the map are skipped.
func (r *Results) BySector(sectors map[string]string) []GroupStats {
	return r.groupBy(func(t Trade) (string, bool) {
		sector, ok := sectors[t.Symbol]
		return sector, ok
	}, true)
}

// MonthlyReturns re-aggregates the trades by exit month (YYYY-MM),
// sorted chronologically.
func (r *Results) MonthlyReturns() []GroupStats {
	return r.groupBy(func(t Trade) (string, bool) { return t.ExitDate.Format("2006-01"), true }, false)
}

// YearlyReturns re-aggregates the trades by exit year, sorted
// chronologically.
func (r *Results) YearlyReturns() []GroupStats {
	return r.groupBy(func(t Trade) (string, bool) { return t.ExitDate.Format("2006"), true }, false)
}

// groupBy is the single re-aggregation primitive behind every view: it
// never recomputes trades, only folds them by a key function.
func (r *Results) groupBy(key func(Trade) (string, bool), byPnL bool) []GroupStats {
	type acc struct {
		trades    int
		wins      int
		sumReturn float64
		totalPnL  float64
	}
	groups := make(map[string]*acc)
	for _, t := range r.trades {
		k, ok := key(t)
		if !ok {
			continue
		}
		g := groups[k]
		if g == nil {
			g = &acc{}
			groups[k] = g
		}
		g.trades++
		if t.ReturnPct > 0 {
			g.wins++
		}
		g.sumReturn += t.ReturnPct
		g.totalPnL += t.PnL
	}

	out := make([]GroupStats, 0, len(groups))
	for k, g := range groups {
		out = append(out, GroupStats{
			Key:       k,
			Trades:    g.trades,
			WinRate:   float64(g.wins) / float64(g.trades),
			AvgReturn: g.sumReturn / float64(g.trades),
			TotalPnL:  g.totalPnL,
		})
	}
	if byPnL {
		sort.Slice(out, func(i, j int) bool { return out[i].TotalPnL > out[j].TotalPnL })
	} else {
		sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	}
	return out
}

// ExportCSV writes the trade table to path. The export is one-way: the
// summary statistics are not included and the file cannot be reloaded.
func (r *Results) ExportCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{
		"symbol", "entry_date", "entry_price", "exit_date", "exit_price",
		"shares", "pnl", "return_pct", "holding_days", "exit_reason",
	}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, t := range r.trades {
		if err := w.Write([]string{
			t.Symbol,
			t.EntryDate.Format("2006-01-02"),
			formatFloat(t.EntryPrice),
			t.ExitDate.Format("2006-01-02"),
			formatFloat(t.ExitPrice),
			strconv.Itoa(t.Shares),
			formatFloat(t.PnL),
			formatFloat(t.ReturnPct),
			strconv.Itoa(t.HoldingDays),
			t.ExitReason,
		}); err != nil {
			return fmt.Errorf("failed to write trade row: %w", err)
		}
	}
	return nil
}

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
