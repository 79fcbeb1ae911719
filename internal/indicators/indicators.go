// Package indicators provides the pure price-series functions consumed by
// the signal catalog. All outputs are aligned to the input length with NaN
// during the warm-up window.
package indicators

import "math"

// SMA is the simple moving average over period p.
func SMA(x []float64, p int) []float64 {
	out := nanSlice(len(x))
	if p <= 0 {
		return out
	}
	var sum float64
	for i := range x {
		sum += x[i]
		if i >= p {
			sum -= x[i-p]
		}
		if i >= p-1 {
			out[i] = sum / float64(p)
		}
	}
	return out
}

// EMA is the exponential moving average with smoothing 2/(p+1), seeded with
// SMA(p).
func EMA(x []float64, p int) []float64 {
	out := nanSlice(len(x))
	if p <= 0 || len(x) < p {
		return out
	}
	var seed float64
	for i := 0; i < p; i++ {
		seed += x[i]
	}
	out[p-1] = seed / float64(p)

	k := 2.0 / float64(p+1)
	for i := p; i < len(x); i++ {
		out[i] = (x[i]-out[i-1])*k + out[i-1]
	}
	return out
}

// RSI is Wilder's relative strength index over period p, in [0, 100].
func RSI(x []float64, p int) []float64 {
	out := nanSlice(len(x))
	if p <= 0 || len(x) <= p {
		return out
	}

	var avgGain, avgLoss float64
	for i := 1; i <= p; i++ {
		d := x[i] - x[i-1]
		if d > 0 {
			avgGain += d
		} else {
			avgLoss -= d
		}
	}
	avgGain /= float64(p)
	avgLoss /= float64(p)
	out[p] = rsiValue(avgGain, avgLoss)

	for i := p + 1; i < len(x); i++ {
		d := x[i] - x[i-1]
		gain, loss := 0.0, 0.0
		if d > 0 {
			gain = d
		} else {
			loss = -d
		}
		avgGain = (avgGain*float64(p-1) + gain) / float64(p)
		avgLoss = (avgLoss*float64(p-1) + loss) / float64(p)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// MACD returns the MACD line (EMA(fast)-EMA(slow)) and its signal line
// (EMA of the MACD line over signalP).
func MACD(x []float64, fast, slow, signalP int) (line, signal []float64) {
	emaFast := EMA(x, fast)
	emaSlow := EMA(x, slow)

	line = nanSlice(len(x))
	for i := range x {
		if !math.IsNaN(emaFast[i]) && !math.IsNaN(emaSlow[i]) {
			line[i] = emaFast[i] - emaSlow[i]
		}
	}

	// Signal line is an EMA over the defined portion of the MACD line.
	signal = nanSlice(len(x))
	start := 0
	for start < len(line) && math.IsNaN(line[start]) {
		start++
	}
	if len(line)-start >= signalP && signalP > 0 {
		sub := EMA(line[start:], signalP)
		copy(signal[start:], sub)
	}
	return line, signal
}

// Bollinger returns the middle band (SMA), upper and lower bands at
// numStd standard deviations over period p.
func Bollinger(x []float64, p int, numStd float64) (middle, upper, lower []float64) {
	middle = SMA(x, p)
	std := RollingStd(x, p)
	upper = nanSlice(len(x))
	lower = nanSlice(len(x))
	for i := range x {
		if !math.IsNaN(middle[i]) && !math.IsNaN(std[i]) {
			upper[i] = middle[i] + numStd*std[i]
			lower[i] = middle[i] - numStd*std[i]
		}
	}
	return middle, upper, lower
}

// RollingStd is the population standard deviation over a window of p points.
func RollingStd(x []float64, p int) []float64 {
	out := nanSlice(len(x))
	if p <= 0 {
		return out
	}
	var sum, sum2 float64
	for i := range x {
		sum += x[i]
		sum2 += x[i] * x[i]
		if i >= p {
			sum -= x[i-p]
			sum2 -= x[i-p] * x[i-p]
		}
		if i >= p-1 {
			m := sum / float64(p)
			v := sum2/float64(p) - m*m
			if v < 0 {
				v = 0 // float cancellation
			}
			out[i] = math.Sqrt(v)
		}
	}
	return out
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
