package signal

import (
	"fmt"
	"math"

	"github.com/tradeforge/tradeforge/internal/indicators"
	"github.com/tradeforge/tradeforge/internal/market"
)

func init() {
	Register("macd_cross", func(p Params) (Detector, error) {
		m := &macdCross{
			fast:    p.Int("fast", 12),
			slow:    p.Int("slow", 26),
			signalP: p.Int("signal", 9),
		}
		if m.fast <= 0 || m.slow <= 0 || m.signalP <= 0 {
			return nil, fmt.Errorf("macd periods must be positive, got fast=%d slow=%d signal=%d", m.fast, m.slow, m.signalP)
		}
		if m.fast >= m.slow {
			return nil, fmt.Errorf("macd requires fast < slow, got fast=%d slow=%d", m.fast, m.slow)
		}
		return m, nil
	})
}

// macdCross fires when the MACD line crosses above its signal line.
type macdCross struct {
	fast, slow, signalP int
}

func (m *macdCross) Name() string { return "macd_cross" }

func (m *macdCross) Warmup() int { return m.slow + m.signalP + 1 }

func (m *macdCross) Detect(s market.Series) []bool {
	line, sig := indicators.MACD(s.Closes(), m.fast, m.slow, m.signalP)

	out := make([]bool, len(s))
	for i := 1; i < len(s); i++ {
		if math.IsNaN(line[i-1]) || math.IsNaN(sig[i-1]) || math.IsNaN(line[i]) || math.IsNaN(sig[i]) {
			continue
		}
		out[i] = line[i-1] <= sig[i-1] && line[i] > sig[i]
	}
	return out
}
