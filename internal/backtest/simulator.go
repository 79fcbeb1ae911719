package backtest

import (
	"time"

	"github.com/tradeforge/tradeforge/internal/market"
	"github.com/tradeforge/tradeforge/internal/signal"
)

// Position is the single open position the simulator tracks for a symbol.
// It is owned exclusively by one simulator pass and destroyed on exit.
type Position struct {
	Symbol     string
	EntryDate  time.Time
	EntryPrice float64
	Shares     int
	Peak       float64 // highest close since entry, for trailing stops
	entryIndex int
}

// Trade is one closed round trip. Immutable once created.
type Trade struct {
	Symbol      string    `json:"symbol"`
	EntryDate   time.Time `json:"entry_date"`
	EntryPrice  float64   `json:"entry_price"`
	ExitDate    time.Time `json:"exit_date"`
	ExitPrice   float64   `json:"exit_price"`
	Shares      int       `json:"shares"`
	PnL         float64   `json:"pnl"`
	ReturnPct   float64   `json:"return_pct"`
	HoldingDays int       `json:"holding_days"`
	ExitReason  string    `json:"exit_reason"`
}

// Simulator converts one price history into closed trades for one symbol
// under one strategy configuration: entry detectors (OR-combined), an
// ordered exit-rule list and the next_day_open entry timing rule.
type Simulator struct {
	detectors []signal.Detector
	exits     []ExitRule
	cash      float64
}

// NewSimulator creates a simulator for the given strategy configuration.
// cash bounds position size: shares = floor(cash / entry price).
func NewSimulator(detectors []signal.Detector, exits []ExitRule, cash float64) *Simulator {
	return &Simulator{detectors: detectors, exits: exits, cash: cash}
}

// warmup is the longest warm-up any configured detector requires.
func (s *Simulator) warmup() int {
	w := 0
	for _, d := range s.detectors {
		if d.Warmup() > w {
			w = d.Warmup()
		}
	}
	return w
}

// Run executes the single-position state machine over the series.
//
// One pass, chronological: the combined entry series is computed once up
// front. While flat, the first signal day schedules an entry at the next
// bar's open (no following bar means no trade). Signal days while a
// position is open or pending are ignored. While open, exit rules are
// evaluated in declared order each bar and the first trigger closes the
// trade at that bar's close. A position still open after the last bar is
// force-closed at the last close with reason "end_of_data".
func (s *Simulator) Run(symbol string, series market.Series) ([]Trade, error) {
	if required := s.warmup(); len(series) < required {
		return nil, &InsufficientDataError{Symbol: symbol, Required: required, Actual: len(series)}
	}

	entries := s.detectEntries(series)

	var trades []Trade
	var pos *Position
	pending := false

	for i, bar := range series {
		if pos == nil && pending {
			shares := 0
			if bar.Open > 0 {
				shares = int(s.cash / bar.Open)
			}
			pos = &Position{
				Symbol:     symbol,
				EntryDate:  bar.Date,
				EntryPrice: bar.Open,
				Shares:     shares,
				Peak:       bar.Open,
				entryIndex: i,
			}
			pending = false
		}

		if pos != nil {
			if bar.Close > pos.Peak {
				pos.Peak = bar.Close
			}
			elapsed := i - pos.entryIndex
			for _, rule := range s.exits {
				triggered, reason := rule.Evaluate(pos, bar, elapsed)
				if triggered {
					trades = append(trades, closeTrade(pos, bar.Date, bar.Close, elapsed, reason))
					pos = nil
					break
				}
			}
			continue
		}

		if entries[i] {
			pending = true
		}
	}

	if pos != nil {
		last := series[len(series)-1]
		trades = append(trades, closeTrade(pos, last.Date, last.Close, len(series)-1-pos.entryIndex, ReasonEndOfData))
	}

	return trades, nil
}

// detectEntries ORs together the boolean series of every detector.
func (s *Simulator) detectEntries(series market.Series) []bool {
	combined := make([]bool, len(series))
	for _, d := range s.detectors {
		for i, v := range d.Detect(series) {
			combined[i] = combined[i] || v
		}
	}
	return combined
}

func closeTrade(pos *Position, exitDate time.Time, exitPrice float64, holdingDays int, reason string) Trade {
	returnPct := (exitPrice - pos.EntryPrice) / pos.EntryPrice
	return Trade{
		Symbol:      pos.Symbol,
		EntryDate:   pos.EntryDate,
		EntryPrice:  pos.EntryPrice,
		ExitDate:    exitDate,
		ExitPrice:   exitPrice,
		Shares:      pos.Shares,
		PnL:         (exitPrice - pos.EntryPrice) * float64(pos.Shares),
		ReturnPct:   returnPct,
		HoldingDays: holdingDays,
		ExitReason:  reason,
	}
}
