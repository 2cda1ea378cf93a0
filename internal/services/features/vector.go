package features

import (
	"Tradeflow/internal/domain/models"
	"Tradeflow/internal/services/zones"
)

// VectorLength is the input width the prediction model was trained with.
const VectorLength = 69

const returnLags = 60

// VectorInput is everything the model vector is built from.
type VectorInput struct {
	Bars            []models.Bar // trading timeframe, oldest first, newest included
	Trend           []models.TrendSample
	Range           zones.Range
	MinutesFromOpen int
}

// ModelVector lays out 60 lagged log returns (newest first, zero padded)
// followed by nine scalar features.
func ModelVector(in VectorInput) []float64 {
	out := make([]float64, 0, VectorLength)

	rets := ComputeLogReturns(in.Bars)
	for i := 0; i < returnLags; i++ {
		idx := len(rets) - 1 - i
		if idx < 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, rets[idx])
	}

	var sample models.TrendSample
	if len(in.Trend) > 0 {
		sample = in.Trend[len(in.Trend)-1]
	}
	closePx := 0.0
	if len(in.Bars) > 0 {
		closePx = in.Bars[len(in.Bars)-1].Close
	}
	rel := func(v float64) float64 {
		if closePx == 0 {
			return 0
		}
		return v / closePx
	}

	out = append(out,
		zones.TrendStrength(sample)/100,
		rel(sample.ShortMA-sample.LongMA),
		rel(sample.ChannelWidth),
		float64(zones.MinutesSinceCross(in.Trend, zones.GoldenCross)),
		float64(zones.MinutesSinceCross(in.Trend, zones.DeathCross)),
		in.Range.Position(closePx),
		rel(in.Range.Spread()),
		RealizedVolatility(rets, 30, BarsPerYear(models.TF1m)),
		float64(in.MinutesFromOpen)/390,
	)
	return out
}
