package zones

import (
	"math"

	"Tradeflow/internal/domain/models"
)

// TrendStrength is clamp(|short-long| / width, 0, 1) * 100, or 0 when width is 0.
func TrendStrength(s models.TrendSample) float64 {
	if s.ChannelWidth == 0 {
		return 0
	}
	ratio := math.Abs(s.ShortMA-s.LongMA) / s.ChannelWidth
	return math.Min(math.Max(ratio, 0), 1) * 100
}

// CrossKind selects which moving-average cross to look for.
type CrossKind int

const (
	GoldenCross CrossKind = iota
	DeathCross
)

func (k CrossKind) flag(s models.TrendSample) bool {
	if k == GoldenCross {
		return s.Golden
	}
	return s.Death
}

// CrossedAgo reports whether the cross happened exactly n samples ago: the flag
// is set on the sample n back from the newest and unset on the one before it.
func CrossedAgo(samples []models.TrendSample, n int, kind CrossKind) bool {
	if n < 0 || len(samples) < n+2 {
		return false
	}
	at := len(samples) - 1 - n
	return kind.flag(samples[at]) && !kind.flag(samples[at-1])
}

// MinutesSinceCross returns how many samples back the most recent cross of kind
// occurred, or 999 when none is in the window.
func MinutesSinceCross(samples []models.TrendSample, kind CrossKind) int {
	for n := 0; n+2 <= len(samples); n++ {
		if CrossedAgo(samples, n, kind) {
			return n
		}
	}
	return 999
}
