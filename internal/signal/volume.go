package signal

import (
	"fmt"
	"math"

	"github.com/tradeforge/tradeforge/internal/indicators"
	"github.com/tradeforge/tradeforge/internal/market"
)

func init() {
	Register("volume_spike", func(p Params) (Detector, error) {
		v := &volumeSpike{
			period:     p.Int("period", 20),
			multiplier: p.Float("multiplier", 2.0),
		}
		if v.period <= 0 {
			return nil, fmt.Errorf("volume_spike period must be positive, got %d", v.period)
		}
		if v.multiplier <= 1 {
			return nil, fmt.Errorf("volume_spike multiplier must be > 1, got %g", v.multiplier)
		}
		return v, nil
	})
}

// volumeSpike fires when volume exceeds its moving average by a multiplier
// on an up day.
type volumeSpike struct {
	period     int
	multiplier float64
}

func (v *volumeSpike) Name() string { return "volume_spike" }

func (v *volumeSpike) Warmup() int { return v.period + 1 }

func (v *volumeSpike) Detect(s market.Series) []bool {
	volumes := s.Volumes()
	closes := s.Closes()
	volMA := indicators.SMA(volumes, v.period)

	out := make([]bool, len(s))
	for i := 1; i < len(s); i++ {
		if math.IsNaN(volMA[i]) {
			continue
		}
		out[i] = volumes[i] > volMA[i]*v.multiplier && closes[i] > closes[i-1]
	}
	return out
}
