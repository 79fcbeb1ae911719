package optimizer

import (
	"encoding/json"
	"math"

	"github.com/tradeforge/tradeforge/internal/backtest"
	"github.com/tradeforge/tradeforge/internal/signal"
)

// MetricMap is a metric map that survives JSON encoding: NaN values
// (profit_factor without losing trades) are written as null and read back
// as NaN.
type MetricMap map[string]float64

func (m MetricMap) MarshalJSON() ([]byte, error) {
	out := make(map[string]*float64, len(m))
	for name, v := range m {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			out[name] = nil
			continue
		}
		v := v
		out[name] = &v
	}
	return json.Marshal(out)
}

func (m *MetricMap) UnmarshalJSON(b []byte) error {
	var raw map[string]*float64
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(MetricMap, len(raw))
	for name, v := range raw {
		if v == nil {
			out[name] = math.NaN()
			continue
		}
		out[name] = *v
	}
	*m = out
	return nil
}

// Trial is the outcome of evaluating one parameter assignment: its
// in-sample metrics and, under walk-forward validation, the out-of-sample
// metrics. Immutable once created. The full backtest result set is not
// embedded, to bound memory across large runs.
type Trial struct {
	Params     Assignment `json:"params"`
	Metrics    MetricMap  `json:"metrics"`
	OOSMetrics MetricMap  `json:"oos_metrics,omitempty"`
}

// configureBacktester translates a parameter assignment into a concrete
// strategy configuration. The mapping is fixed:
//
//	ma_short + ma_long                      -> golden_cross signal
//	rsi_period and/or rsi_threshold         -> rsi_oversold signal
//	macd_fast + macd_slow (+ macd_signal)   -> macd_cross signal
//	bollinger_period (+ bollinger_std)      -> bollinger_breakout signal
//	volume_period (+ volume_multiplier)     -> volume_spike signal
//	stop_loss, take_profit, trailing_stop,
//	max_holding_days                        -> exit rules, declared in that order
func configureBacktester(bt *backtest.Backtester, a Assignment) error {
	if _, ok := a["ma_short"]; ok {
		if _, ok := a["ma_long"]; ok {
			err := bt.AddSignal("golden_cross", signal.Params{
				"short": a["ma_short"],
				"long":  a["ma_long"],
			})
			if err != nil {
				return err
			}
		}
	}

	_, hasPeriod := a["rsi_period"]
	_, hasThreshold := a["rsi_threshold"]
	if hasPeriod || hasThreshold {
		params := signal.Params{}
		if hasPeriod {
			params["period"] = a["rsi_period"]
		}
		if hasThreshold {
			params["threshold"] = a["rsi_threshold"]
		}
		if err := bt.AddSignal("rsi_oversold", params); err != nil {
			return err
		}
	}

	if _, ok := a["macd_fast"]; ok {
		if _, ok := a["macd_slow"]; ok {
			params := signal.Params{
				"fast": a["macd_fast"],
				"slow": a["macd_slow"],
			}
			if v, ok := a["macd_signal"]; ok {
				params["signal"] = v
			}
			if err := bt.AddSignal("macd_cross", params); err != nil {
				return err
			}
		}
	}

	if v, ok := a["bollinger_period"]; ok {
		params := signal.Params{"period": v}
		if std, ok := a["bollinger_std"]; ok {
			params["num_std"] = std
		}
		if err := bt.AddSignal("bollinger_breakout", params); err != nil {
			return err
		}
	}

	if v, ok := a["volume_period"]; ok {
		params := signal.Params{"period": v}
		if mult, ok := a["volume_multiplier"]; ok {
			params["multiplier"] = mult
		}
		if err := bt.AddSignal("volume_spike", params); err != nil {
			return err
		}
	}

	for _, rule := range []string{
		backtest.RuleStopLoss,
		backtest.RuleTakeProfit,
		backtest.RuleTrailingStop,
		backtest.RuleMaxHoldingDays,
	} {
		if v, ok := a[rule]; ok {
			if err := bt.AddExitRule(rule, v); err != nil {
				return err
			}
		}
	}

	return nil
}
