package signal

import (
	"fmt"
	"math"

	"github.com/tradeforge/tradeforge/internal/indicators"
	"github.com/tradeforge/tradeforge/internal/market"
)

func init() {
	Register("golden_cross", func(p Params) (Detector, error) {
		return newCross(p, true)
	})
	Register("dead_cross", func(p Params) (Detector, error) {
		return newCross(p, false)
	})
}

// maCross fires when SMA(short) crosses SMA(long): above for a golden
// cross, below for a dead cross.
type maCross struct {
	short, long int
	golden      bool
}

func newCross(p Params, golden bool) (Detector, error) {
	c := &maCross{
		short:  p.Int("short", 5),
		long:   p.Int("long", 25),
		golden: golden,
	}
	if c.short <= 0 || c.long <= 0 {
		return nil, fmt.Errorf("ma cross periods must be positive, got short=%d long=%d", c.short, c.long)
	}
	if c.short >= c.long {
		return nil, fmt.Errorf("ma cross requires short < long, got short=%d long=%d", c.short, c.long)
	}
	return c, nil
}

func (c *maCross) Name() string {
	if c.golden {
		return "golden_cross"
	}
	return "dead_cross"
}

func (c *maCross) Warmup() int { return c.long + 1 }

func (c *maCross) Detect(s market.Series) []bool {
	closes := s.Closes()
	smaShort := indicators.SMA(closes, c.short)
	smaLong := indicators.SMA(closes, c.long)

	out := make([]bool, len(s))
	for i := 1; i < len(s); i++ {
		if math.IsNaN(smaShort[i-1]) || math.IsNaN(smaLong[i-1]) {
			continue
		}
		if c.golden {
			out[i] = smaShort[i-1] <= smaLong[i-1] && smaShort[i] > smaLong[i]
		} else {
			out[i] = smaShort[i-1] >= smaLong[i-1] && smaShort[i] < smaLong[i]
		}
	}
	return out
}
