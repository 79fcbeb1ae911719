// Package signal implements the entry-signal catalog: named detectors that
// turn a price history into a boolean series of candidate entry days.
//
// The registry is populated from init functions at startup and never mutated
// afterwards, so concurrent lookups from backtest workers need no locking.
package signal

import (
	"fmt"
	"sort"

	"github.com/tradeforge/tradeforge/internal/market"
)

// Params carries the numeric parameters of a signal instance, keyed by the
// parameter names each detector documents.
type Params map[string]float64

// Float returns the named parameter or def when absent.
func (p Params) Float(key string, def float64) float64 {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

// Int returns the named parameter truncated to int, or def when absent.
func (p Params) Int(key string, def int) int {
	if v, ok := p[key]; ok {
		return int(v)
	}
	return def
}

// Detector marks candidate entry days over a price history. Detect returns
// a boolean series aligned to the input; days inside the warm-up window are
// always false.
type Detector interface {
	Name() string
	Warmup() int
	Detect(s market.Series) []bool
}

// Factory builds a configured detector from parameters.
type Factory func(p Params) (Detector, error)

var registry = map[string]Factory{}

// Register adds a detector factory under a fixed name. It is intended to be
// called from init functions only; registering a duplicate name panics.
func Register(name string, f Factory) {
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("signal: duplicate registration for %q", name))
	}
	registry[name] = f
}

// New builds a detector by name.
func New(name string, p Params) (Detector, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown signal %q (available: %v)", name, Names())
	}
	return f(p)
}

// Names lists all registered signal names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
