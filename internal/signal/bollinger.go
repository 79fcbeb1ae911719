package signal

import (
	"fmt"
	"math"

	"github.com/tradeforge/tradeforge/internal/indicators"
	"github.com/tradeforge/tradeforge/internal/market"
)

func init() {
	Register("bollinger_breakout", func(p Params) (Detector, error) {
		b := &bollingerBreakout{
			period: p.Int("period", 20),
			numStd: p.Float("num_std", 2.0),
		}
		if b.period <= 1 {
			return nil, fmt.Errorf("bollinger period must be > 1, got %d", b.period)
		}
		if b.numStd <= 0 {
			return nil, fmt.Errorf("bollinger num_std must be positive, got %g", b.numStd)
		}
		return b, nil
	})
}

// bollingerBreakout fires when the close crosses above the upper band.
type bollingerBreakout struct {
	period int
	numStd float64
}

func (b *bollingerBreakout) Name() string { return "bollinger_breakout" }

func (b *bollingerBreakout) Warmup() int { return b.period + 1 }

func (b *bollingerBreakout) Detect(s market.Series) []bool {
	closes := s.Closes()
	_, upper, _ := indicators.Bollinger(closes, b.period, b.numStd)

	out := make([]bool, len(s))
	for i := 1; i < len(s); i++ {
		if math.IsNaN(upper[i-1]) || math.IsNaN(upper[i]) {
			continue
		}
		out[i] = closes[i-1] <= upper[i-1] && closes[i] > upper[i]
	}
	return out
}
