package backtest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tradeforge/tradeforge/internal/market"
	"github.com/tradeforge/tradeforge/internal/signal"
	"github.com/tradeforge/tradeforge/internal/telemetry"
)

// Config holds backtester settings that are not part of the strategy
// itself.
type Config struct {
	Cash               float64 // position sizing budget per symbol
	MinHistory         int     // minimum bars regardless of signal warm-up
	MaxWorkers         int     // symbol-level parallelism cap, 0 = min(symbols, 4)
	TradingDaysPerYear int     // Sharpe annualization constant
}

// DefaultConfig returns the default backtester configuration.
func DefaultConfig() Config {
	return Config{
		Cash:               1_000_000,
		MinHistory:         30,
		MaxWorkers:         0,
		TradingDaysPerYear: 252,
	}
}

// Backtester runs the trade simulator independently per symbol and merges
// all produced trades into one result set.
type Backtester struct {
	config    Config
	detectors []signal.Detector
	exits     []ExitRule
	entryRule string
}

// New creates a backtester with the given configuration.
func New(config Config) *Backtester {
	if config.Cash <= 0 {
		config.Cash = 1_000_000
	}
	if config.TradingDaysPerYear <= 0 {
		config.TradingDaysPerYear = 252
	}
	return &Backtester{config: config, entryRule: EntryNextDayOpen}
}

// AddSignal configures an entry signal by registry name. Multiple signals
// are OR-combined into one entry series.
func (b *Backtester) AddSignal(name string, params signal.Params) error {
	det, err := signal.New(name, params)
	if err != nil {
		return err
	}
	b.detectors = append(b.detectors, det)
	return nil
}

// AddExitRule appends a validated exit rule. Declaration order is the
// same-bar tie-break order: earlier rules win.
func (b *Backtester) AddExitRule(name string, threshold float64) error {
	rule, err := NewExitRule(name, threshold)
	if err != nil {
		return err
	}
	b.exits = append(b.exits, rule)
	return nil
}

// SetEntryRule selects the entry timing rule. Only next_day_open is
// supported.
func (b *Backtester) SetEntryRule(name string) error {
	if name != EntryNextDayOpen {
		return &InvalidRuleError{Rule: name, Reason: "unknown entry rule (available: " + EntryNextDayOpen + ")"}
	}
	b.entryRule = name
	return nil
}

// Run backtests every symbol over [from, to] and merges the trades.
//
// Symbols are simulated in parallel on a bounded worker pool (default
// min(len(symbols), 4)). Each worker is a pure function of its inputs;
// the only shared state is the read-only price provider. A symbol with
// too little history is recorded as a failure and contributes no trades;
// the call fails only when no signal is configured or every symbol fails.
func (b *Backtester) Run(ctx context.Context, provider market.Provider, symbols []string, from, to time.Time) (*Results, error) {
	if len(b.detectors) == 0 {
		return nil, ErrNoSignal
	}

	workers := b.config.MaxWorkers
	if workers <= 0 {
		workers = len(symbols)
		if workers > 4 {
			workers = 4
		}
	}

	sim := NewSimulator(b.detectors, b.exits, b.config.Cash)

	var mu sync.Mutex
	var allTrades []Trade
	failures := make(map[string]error)

	jobs := make(chan string)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for symbol := range jobs {
				trades, err := b.runSymbol(ctx, sim, provider, symbol, from, to)
				mu.Lock()
				if err != nil {
					failures[symbol] = err
					log.Warn().Err(err).Str("symbol", symbol).Msg("Symbol backtest failed")
					telemetry.SymbolFailures.Inc()
				} else {
					allTrades = append(allTrades, trades...)
				}
				mu.Unlock()
			}
		}()
	}

	for _, symbol := range symbols {
		jobs <- symbol
	}
	close(jobs)
	wg.Wait()

	if len(symbols) > 0 && len(failures) == len(symbols) {
		// Every symbol failed: escalate, preferring the insufficient-data
		// variant over transport errors.
		var first error
		for _, err := range failures {
			if first == nil {
				first = err
			}
			var insufficient *InsufficientDataError
			if errors.As(err, &insufficient) {
				return nil, err
			}
		}
		return nil, first
	}

	telemetry.TradesSimulated.Add(float64(len(allTrades)))
	log.Debug().
		Int("symbols", len(symbols)).
		Int("trades", len(allTrades)).
		Int("failures", len(failures)).
		Msg("Backtest run completed")

	return NewResults(allTrades, failures, b.config.TradingDaysPerYear), nil
}

func (b *Backtester) runSymbol(ctx context.Context, sim *Simulator, provider market.Provider, symbol string, from, to time.Time) ([]Trade, error) {
	series, err := provider.GetPrices(ctx, symbol, from, to)
	if err != nil {
		return nil, err
	}
	if len(series) < b.config.MinHistory {
		return nil, &InsufficientDataError{Symbol: symbol, Required: b.config.MinHistory, Actual: len(series)}
	}
	return sim.Run(symbol, series)
}
