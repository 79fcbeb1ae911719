package optimizer

import (
	"encoding/json"
	"fmt"
	"math"
)

// lowerIsBetter lists metrics whose natural direction is "lower is
// better"; they are negated before ranking.
var lowerIsBetter = map[string]bool{
	"max_drawdown": true,
}

// Metric selects the ranking rule for an optimization run: either a single
// metric name or a mapping of metric name to weight combined into one
// weighted-sum score. It is resolved into a scorer exactly once at run
// start and never re-interpreted downstream.
type Metric struct {
	Name    string             `json:"name,omitempty"`
	Weights map[string]float64 `json:"weights,omitempty"`
}

// MetricName ranks by a single metric.
func MetricName(name string) Metric { return Metric{Name: name} }

// MetricWeights ranks by a weighted sum of metrics.
func MetricWeights(weights map[string]float64) Metric { return Metric{Weights: weights} }

// IsZero reports whether no metric was configured.
func (m Metric) IsZero() bool { return m.Name == "" && len(m.Weights) == 0 }

func (m Metric) String() string {
	if len(m.Weights) > 0 {
		b, _ := json.Marshal(m.Weights)
		return string(b)
	}
	return m.Name
}

// scorer maps a trial's metric map to one comparable score, higher is
// better.
type scorer func(metrics map[string]float64) float64

// resolve fixes the scoring function for a run. Missing metric values
// score as -Inf for a single metric (never preferred) and as zero terms
// in a weighted sum.
func (m Metric) resolve() (scorer, error) {
	if len(m.Weights) > 0 {
		weights := make(map[string]float64, len(m.Weights))
		for name, w := range m.Weights {
			weights[name] = w
		}
		return func(metrics map[string]float64) float64 {
			score := 0.0
			for name, w := range weights {
				v, ok := metrics[name]
				if !ok || math.IsNaN(v) {
					continue
				}
				if lowerIsBetter[name] {
					v = -v
				}
				score += v * w
			}
			return score
		}, nil
	}
	if m.Name == "" {
		return nil, fmt.Errorf("no ranking metric configured")
	}
	name := m.Name
	negate := lowerIsBetter[name]
	return func(metrics map[string]float64) float64 {
		v, ok := metrics[name]
		if !ok || math.IsNaN(v) {
			return math.Inf(-1)
		}
		if negate {
			return -v
		}
		return v
	}, nil
}
