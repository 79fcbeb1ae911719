package backtest

import (
	"fmt"

	"github.com/tradeforge/tradeforge/internal/market"
)

// Exit rule and entry rule names accepted by the catalog.
const (
	RuleStopLoss       = "stop_loss"
	RuleTakeProfit     = "take_profit"
	RuleTrailingStop   = "trailing_stop"
	RuleMaxHoldingDays = "max_holding_days"

	EntryNextDayOpen = "next_day_open"

	// ReasonEndOfData closes a position still open on the final bar.
	ReasonEndOfData = "end_of_data"
)

// ExitRule decides whether an open position must close on the current bar.
// Rules are evaluated in the order they were declared; the first rule that
// triggers on a bar wins and the rest are skipped for that bar.
type ExitRule interface {
	Name() string
	// Evaluate inspects the open position against the current bar.
	// elapsedDays is the number of trading days since entry.
	Evaluate(pos *Position, bar market.PriceBar, elapsedDays int) (triggered bool, reason string)
}

// NewExitRule builds a validated exit rule by name. threshold is a return
// fraction for price rules (negative for stop_loss/trailing_stop, positive
// for take_profit) and a day count for max_holding_days.
func NewExitRule(name string, threshold float64) (ExitRule, error) {
	switch name {
	case RuleStopLoss:
		if threshold >= 0 {
			return nil, &InvalidRuleError{Rule: name, Reason: fmt.Sprintf("threshold must be negative (e.g. -0.10), got %g", threshold)}
		}
		return &stopLoss{threshold: threshold}, nil
	case RuleTakeProfit:
		if threshold <= 0 {
			return nil, &InvalidRuleError{Rule: name, Reason: fmt.Sprintf("threshold must be positive (e.g. 0.20), got %g", threshold)}
		}
		return &takeProfit{threshold: threshold}, nil
	case RuleTrailingStop:
		if threshold >= 0 {
			return nil, &InvalidRuleError{Rule: name, Reason: fmt.Sprintf("threshold must be negative (e.g. -0.05), got %g", threshold)}
		}
		return &trailingStop{threshold: threshold}, nil
	case RuleMaxHoldingDays:
		days := int(threshold)
		if days < 1 {
			return nil, &InvalidRuleError{Rule: name, Reason: fmt.Sprintf("days must be >= 1, got %g", threshold)}
		}
		return &maxHoldingDays{days: days}, nil
	default:
		return nil, &InvalidRuleError{Rule: name, Reason: fmt.Sprintf("unknown exit rule (available: %s, %s, %s, %s)",
			RuleStopLoss, RuleTakeProfit, RuleTrailingStop, RuleMaxHoldingDays)}
	}
}

// stopLoss triggers when the return from entry drops to the threshold.
type stopLoss struct {
	threshold float64
}

func (r *stopLoss) Name() string { return RuleStopLoss }

func (r *stopLoss) Evaluate(pos *Position, bar market.PriceBar, _ int) (bool, string) {
	if (bar.Close-pos.EntryPrice)/pos.EntryPrice <= r.threshold {
		return true, RuleStopLoss
	}
	return false, ""
}

// takeProfit triggers when the return from entry reaches the threshold.
type takeProfit struct {
	threshold float64
}

func (r *takeProfit) Name() string { return RuleTakeProfit }

func (r *takeProfit) Evaluate(pos *Position, bar market.PriceBar, _ int) (bool, string) {
	if (bar.Close-pos.EntryPrice)/pos.EntryPrice >= r.threshold {
		return true, RuleTakeProfit
	}
	return false, ""
}

// trailingStop triggers when price falls from the running peak by the
// threshold. The simulator maintains the peak on the position each bar.
type trailingStop struct {
	threshold float64
}

func (r *trailingStop) Name() string { return RuleTrailingStop }

func (r *trailingStop) Evaluate(pos *Position, bar market.PriceBar, _ int) (bool, string) {
	if (bar.Close-pos.Peak)/pos.Peak <= r.threshold {
		return true, RuleTrailingStop
	}
	return false, ""
}

// maxHoldingDays triggers once the position has been held for the
// configured number of trading days.
type maxHoldingDays struct {
	days int
}

func (r *maxHoldingDays) Name() string { return RuleMaxHoldingDays }

func (r *maxHoldingDays) Evaluate(_ *Position, _ market.PriceBar, elapsedDays int) (bool, string) {
	if elapsedDays >= r.days {
		return true, RuleMaxHoldingDays
	}
	return false, ""
}
