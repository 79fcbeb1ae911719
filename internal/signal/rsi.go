package signal

import (
	"fmt"
	"math"

	"github.com/tradeforge/tradeforge/internal/indicators"
	"github.com/tradeforge/tradeforge/internal/market"
)

func init() {
	Register("rsi_oversold", func(p Params) (Detector, error) {
		return newRSI(p, true)
	})
	Register("rsi_overbought", func(p Params) (Detector, error) {
		return newRSI(p, false)
	})
}

// rsiThreshold fires when RSI crosses the threshold: downward for
// oversold, upward for overbought.
type rsiThreshold struct {
	period    int
	threshold float64
	oversold  bool
}

func newRSI(p Params, oversold bool) (Detector, error) {
	def := 70.0
	if oversold {
		def = 30.0
	}
	r := &rsiThreshold{
		period:    p.Int("period", 14),
		threshold: p.Float("threshold", def),
		oversold:  oversold,
	}
	if r.period <= 0 {
		return nil, fmt.Errorf("rsi period must be positive, got %d", r.period)
	}
	if r.threshold <= 0 || r.threshold >= 100 {
		return nil, fmt.Errorf("rsi threshold must be in (0, 100), got %g", r.threshold)
	}
	return r, nil
}

func (r *rsiThreshold) Name() string {
	if r.oversold {
		return "rsi_oversold"
	}
	return "rsi_overbought"
}

func (r *rsiThreshold) Warmup() int { return r.period + 2 }

func (r *rsiThreshold) Detect(s market.Series) []bool {
	rsi := indicators.RSI(s.Closes(), r.period)

	out := make([]bool, len(s))
	for i := 1; i < len(s); i++ {
		if math.IsNaN(rsi[i-1]) || math.IsNaN(rsi[i]) {
			continue
		}
		if r.oversold {
			out[i] = rsi[i-1] >= r.threshold && rsi[i] < r.threshold
		} else {
			out[i] = rsi[i-1] <= r.threshold && rsi[i] > r.threshold
		}
	}
	return out
}
