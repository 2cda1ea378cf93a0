package features

import (
	"math"

	"github.com/markcheno/go-talib"

	"Tradeflow/internal/domain/models"
)

// TrendConfig holds the indicator periods of the trend window.
type TrendConfig struct {
	ShortPeriod int
	LongPeriod  int
	BandPeriod  int
	BandDev     float64
	ATRPeriod   int
}

func DefaultTrendConfig() TrendConfig {
	return TrendConfig{ShortPeriod: 9, LongPeriod: 21, BandPeriod: 20, BandDev: 2, ATRPeriod: 14}
}

// warmup is the number of bars needed before every indicator has a value.
func (c TrendConfig) warmup() int {
	n := c.LongPeriod
	for _, p := range []int{c.ShortPeriod, c.BandPeriod, c.ATRPeriod + 1} {
		if p > n {
			n = p
		}
	}
	return n
}

// TrendSample computes the sample for the newest bar. ok is false until enough
// bars exist for the slowest indicator.
func TrendSample(bars []models.Bar, cfg TrendConfig) (models.TrendSample, bool) {
	need := cfg.warmup()
	if len(bars) < need {
		return models.TrendSample{}, false
	}
	// talib recomputes whole series; a few multiples of the warmup is enough for EMA convergence.
	if window := 4 * need; len(bars) > window {
		bars = bars[len(bars)-window:]
	}

	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	closes := make([]float64, len(bars))
	for i, b := range bars {
		highs[i], lows[i], closes[i] = b.High, b.Low, b.Close
	}

	short := last(talib.Ema(closes, cfg.ShortPeriod))
	long := last(talib.Ema(closes, cfg.LongPeriod))
	upper, _, lower := talib.BBands(closes, cfg.BandPeriod, cfg.BandDev, cfg.BandDev, talib.SMA)
	atr := last(talib.Atr(highs, lows, closes, cfg.ATRPeriod))

	return models.TrendSample{
		Timestamp:    bars[len(bars)-1].Timestamp,
		ShortMA:      short,
		LongMA:       long,
		ChannelWidth: math.Max(last(upper)-last(lower), 0),
		ATR:          atr,
		Golden:       short > long,
		Death:        short < long,
	}, true
}

// Momentum is the RSI of the closes, or 50 when there is not enough data.
func Momentum(bars []models.Bar, period int) float64 {
	if len(bars) <= period {
		return 50
	}
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return last(talib.Rsi(closes, period))
}

func last(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	v := xs[len(xs)-1]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
