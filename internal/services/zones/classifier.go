// Package zones classifies a close against a trailing high/low range and scores trend strength.
package zones

import (
	"errors"
	"fmt"

	"Tradeflow/internal/domain/models"
)

var (
	// ErrInvariant means the band partition failed to match a close. It is never recoverable.
	ErrInvariant  = errors.New("zones: invariant violated")
	ErrEmptyRange = errors.New("zones: empty lookback window")
)

// Band is one of the six ordered price bands.
type Band int

const (
	NewLow Band = iota + 1
	BandLong
	MidLow
	MidHigh
	BandShort
	NewHigh
)

var bandNames = map[Band]string{
	NewLow:    "NewLow",
	BandLong:  "Long",
	MidLow:    "MidLow",
	MidHigh:   "MidHigh",
	BandShort: "Short",
	NewHigh:   "NewHigh",
}

func (b Band) String() string {
	if s, ok := bandNames[b]; ok {
		return s
	}
	return fmt.Sprintf("Band(%d)", int(b))
}

// Range is the high/low of a lookback window. Breakpoints are derived on read.
type Range struct {
	High float64
	Low  float64
}

// NewRange computes the range of bars. The caller passes the window without the in-progress bar.
func NewRange(bars []models.Bar) (Range, error) {
	if len(bars) == 0 {
		return Range{}, ErrEmptyRange
	}
	r := Range{High: bars[0].High, Low: bars[0].Low}
	for _, b := range bars[1:] {
		if b.High > r.High {
			r.High = b.High
		}
		if b.Low < r.Low {
			r.Low = b.Low
		}
	}
	return r, nil
}

func (r Range) Spread() float64 { return r.High - r.Low }
func (r Range) B30() float64    { return r.Low + 0.3*r.Spread() }
func (r Range) Mid() float64    { return r.Low + 0.5*r.Spread() }
func (r Range) B70() float64    { return r.High - 0.3*r.Spread() }

// Position is where price sits in the range, 0 at the low and 1 at the high.
func (r Range) Position(price float64) float64 {
	if r.Spread() == 0 {
		return 0.5
	}
	return (price - r.Low) / r.Spread()
}

type rule struct {
	band  Band
	match func(r Range, close float64) bool
}

// rules are evaluated in order; the first match wins.
var rules = []rule{
	{NewLow, func(r Range, c float64) bool { return c <= r.Low }},
	{BandLong, func(r Range, c float64) bool { return r.Low < c && c <= r.B30() }},
	{MidLow, func(r Range, c float64) bool { return r.B30() < c && c <= r.Mid() }},
	{MidHigh, func(r Range, c float64) bool { return r.Mid() < c && c <= r.B70() }},
	{BandShort, func(r Range, c float64) bool { return r.B70() < c && c <= r.High }},
	{NewHigh, func(r Range, c float64) bool { return c > r.High }},
}

// Classify places close into exactly one band.
func Classify(r Range, close float64) (Band, error) {
	for _, rl := range rules {
		if rl.match(r, close) {
			return rl.band, nil
		}
	}
	return 0, fmt.Errorf("%w: close %v matched no band of range [%v, %v]", ErrInvariant, close, r.Low, r.High)
}

// Quality buckets the range width against volatility.
type Quality string

const (
	QualityTight  Quality = "tight"
	QualityNormal Quality = "normal"
	QualityWide   Quality = "wide"
)

// RangeQuality compares the spread to atr: below 1.5 ATR is tight, above 4 ATR is wide.
func RangeQuality(r Range, atr float64) Quality {
	if atr <= 0 {
		return QualityNormal
	}
	ratio := r.Spread() / atr
	switch {
	case ratio < 1.5:
		return QualityTight
	case ratio > 4:
		return QualityWide
	default:
		return QualityNormal
	}
}
