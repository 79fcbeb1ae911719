package indicators

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMA(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	out := SMA(x, 3)
	require.Len(t, out, 5)
	assert.True(t, math.IsNaN(out[0]))
	assert.True(t, math.IsNaN(out[1]))
	assert.InDelta(t, 2.0, out[2], 1e-12)
	assert.InDelta(t, 3.0, out[3], 1e-12)
	assert.InDelta(t, 4.0, out[4], 1e-12)
}

func TestEMASeedAndSmoothing(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	out := EMA(x, 3)
	assert.True(t, math.IsNaN(out[1]))
	assert.InDelta(t, 2.0, out[2], 1e-12) // seeded with SMA(3)
	// k = 0.5: (4-2)*0.5+2 = 3, (5-3)*0.5+3 = 4
	assert.InDelta(t, 3.0, out[3], 1e-12)
	assert.InDelta(t, 4.0, out[4], 1e-12)
}

func TestRSIBounds(t *testing.T) {
	up := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	out := RSI(up, 3)
	assert.True(t, math.IsNaN(out[2]))
	// Monotonic gains pin RSI at 100.
	assert.InDelta(t, 100.0, out[3], 1e-12)
	assert.InDelta(t, 100.0, out[7], 1e-12)

	down := []float64{8, 7, 6, 5, 4, 3, 2, 1}
	out = RSI(down, 3)
	assert.InDelta(t, 0.0, out[7], 1e-12)
}

func TestRSIWilderSmoothing(t *testing.T) {
	x := []float64{10, 11, 10, 11, 12}
	out := RSI(x, 2)
	// Seed window: gain 1, loss 1 -> RSI 50.
	assert.InDelta(t, 50.0, out[2], 1e-9)
	// Next bar: avgGain=(0.5*1+1)/2=0.75, avgLoss=0.25 -> RSI 75.
	assert.InDelta(t, 75.0, out[3], 1e-9)
}

func TestMACDAlignment(t *testing.T) {
	x := make([]float64, 40)
	for i := range x {
		x[i] = float64(i + 1)
	}
	line, signal := MACD(x, 3, 6, 4)
	require.Len(t, line, 40)
	require.Len(t, signal, 40)
	assert.True(t, math.IsNaN(line[4]))
	assert.False(t, math.IsNaN(line[5]))
	assert.True(t, math.IsNaN(signal[7]))
	assert.False(t, math.IsNaN(signal[8]))
}

func TestBollingerBands(t *testing.T) {
	x := []float64{2, 4, 2, 4, 2, 4}
	middle, upper, lower := Bollinger(x, 4, 2)
	assert.InDelta(t, 3.0, middle[3], 1e-12)
	// Population std of {2,4,2,4} is 1.
	assert.InDelta(t, 5.0, upper[3], 1e-12)
	assert.InDelta(t, 1.0, lower[3], 1e-12)
}

func TestRollingStdConstantSeries(t *testing.T) {
	x := []float64{3, 3, 3, 3, 3}
	out := RollingStd(x, 3)
	assert.InDelta(t, 0.0, out[4], 1e-12)
}
