package backtest

import (
	"errors"
	"fmt"
)

// ErrNoSignal is returned when Run is called before any entry signal was
// configured. This is a configuration error and fails before any
// simulation starts.
var ErrNoSignal = errors.New("no signal configured")

// InsufficientDataError reports a price history shorter than the warm-up
// the configured signal requires. Per-symbol occurrences are recorded on
// the result set; the error escalates to the run level only when every
// symbol fails.
type InsufficientDataError struct {
	Symbol   string
	Required int
	Actual   int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %s: required %d bars, got %d", e.Symbol, e.Required, e.Actual)
}

// InvalidRuleError reports an unknown rule name or a rule parameter that
// fails validation.
type InvalidRuleError struct {
	Rule   string
	Reason string
}

func (e *InvalidRuleError) Error() string {
	return fmt.Sprintf("invalid rule %q: %s", e.Rule, e.Reason)
}
