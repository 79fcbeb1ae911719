package market

import (
	"time"
)

// PriceBar is one day of OHLCV data for a single symbol. Bars are provided
// by a history Provider and are read-only to the engine.
type PriceBar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Series is an ordered price history, oldest bar first.
type Series []PriceBar

// Closes returns the close column of the series.
func (s Series) Closes() []float64 {
	out := make([]float64, len(s))
	for i, b := range s {
		out[i] = b.Close
	}
	return out
}

// Volumes returns the volume column of the series.
func (s Series) Volumes() []float64 {
	out := make([]float64, len(s))
	for i, b := range s {
		out[i] = b.Volume
	}
	return out
}

// Between returns the sub-series with from <= Date <= to.
func (s Series) Between(from, to time.Time) Series {
	lo := 0
	for lo < len(s) && s[lo].Date.Before(from) {
		lo++
	}
	hi := lo
	for hi < len(s) && !s[hi].Date.After(to) {
		hi++
	}
	return s[lo:hi]
}

// First returns the earliest bar date, or the zero time for an empty series.
func (s Series) First() time.Time {
	if len(s) == 0 {
		return time.Time{}
	}
	return s[0].Date
}

// Last returns the latest bar date, or the zero time for an empty series.
func (s Series) Last() time.Time {
	if len(s) == 0 {
		return time.Time{}
	}
	return s[len(s)-1].Date
}
