package usecase

import (
	"context"
	"fmt"

	"Tradeflow/internal/domain/models"
	domsvc "Tradeflow/internal/domain/service"
	"Tradeflow/internal/services/features"
	"Tradeflow/internal/services/zones"
)

// ZoneFadeProbe fades the edges of the trailing range: a close in the lower
// band buys, a close in the upper band sells.
type ZoneFadeProbe struct {
	build OrderConstructor
}

func NewZoneFadeProbe(build OrderConstructor) *ZoneFadeProbe {
	return &ZoneFadeProbe{build: build}
}

func (p *ZoneFadeProbe) Name() string { return "zone_fade" }

func (p *ZoneFadeProbe) Propose(_ context.Context, ec EntryContext) (Proposal, bool, error) {
	if ec.Session.InQuietWindow(ec.Bar.Timestamp) || ec.Market.Quality == zones.QualityWide {
		return Proposal{}, false, nil
	}
	var side models.Side
	switch ec.Market.Band {
	case zones.BandLong:
		side = models.Long
	case zones.BandShort:
		side = models.Short
	default:
		return Proposal{}, false, nil
	}
	return Proposal{Side: side, Descriptor: Describe(p.Name(), ec, ""), Build: p.build}, true, nil
}

// PlanZoneProbe enters when price trades into an active plan zone. Each zone
// is traded at most once per day.
type PlanZoneProbe struct {
	tf    models.Timeframe
	build OrderConstructor
}

func NewPlanZoneProbe(tf models.Timeframe, build OrderConstructor) *PlanZoneProbe {
	return &PlanZoneProbe{tf: tf, build: build}
}

func (p *PlanZoneProbe) Name() string { return "plan_zone" }

func (p *PlanZoneProbe) Propose(_ context.Context, ec EntryContext) (Proposal, bool, error) {
	used := make(map[string]bool, len(ec.State.Orders))
	for _, o := range ec.State.Orders {
		if id := DescriptorZone(o.Strategy); id != "" {
			used[id] = true
		}
	}

	for _, z := range ec.State.Signals[p.tf].Zones {
		if used[z.ID] || !z.Active(ec.Bar.Timestamp) || !z.Contains(ec.Bar.Close) {
			continue
		}
		side := models.Long
		if z.Kind == models.ZoneSupply {
			side = models.Short
		}
		return Proposal{Side: side, Descriptor: Describe(p.Name(), ec, z.ID), Build: p.build}, true, nil
	}
	return Proposal{}, false, nil
}

// TrendCrossProbe follows a moving-average cross that happened exactly
// minutesAgo samples back, provided the trend is strong enough.
type TrendCrossProbe struct {
	minutesAgo  int
	minStrength float64
	build       OrderConstructor
}

func NewTrendCrossProbe(minutesAgo int, minStrength float64, build OrderConstructor) *TrendCrossProbe {
	return &TrendCrossProbe{minutesAgo: minutesAgo, minStrength: minStrength, build: build}
}

func (p *TrendCrossProbe) Name() string { return "trend_cross" }

func (p *TrendCrossProbe) Propose(_ context.Context, ec EntryContext) (Proposal, bool, error) {
	if zones.TrendStrength(ec.Market.Trend) < p.minStrength {
		return Proposal{}, false, nil
	}
	var side models.Side
	switch {
	case zones.CrossedAgo(ec.State.Trend, p.minutesAgo, zones.GoldenCross):
		side = models.Long
	case zones.CrossedAgo(ec.State.Trend, p.minutesAgo, zones.DeathCross):
		side = models.Short
	default:
		return Proposal{}, false, nil
	}
	return Proposal{Side: side, Descriptor: Describe(p.Name(), ec, ""), Build: p.build}, true, nil
}

// ModelProbe asks the prediction service for the best setup and uses its stop
// distance.
type ModelProbe struct {
	predictor domsvc.Predictor
	threshold float64
	tf        models.Timeframe
	risk      *RiskConstructor
}

func NewModelProbe(predictor domsvc.Predictor, threshold float64, tf models.Timeframe, risk *RiskConstructor) *ModelProbe {
	return &ModelProbe{predictor: predictor, threshold: threshold, tf: tf, risk: risk}
}

func (p *ModelProbe) Name() string { return "model" }

func (p *ModelProbe) Propose(ctx context.Context, ec EntryContext) (Proposal, bool, error) {
	vec := features.ModelVector(features.VectorInput{
		Bars:            ec.State.Bars[p.tf],
		Trend:           ec.State.Trend,
		Range:           ec.Market.Range,
		MinutesFromOpen: ec.Session.MinutesFromOpen(ec.Bar.Timestamp),
	})
	pred, err := p.predictor.Predict(ctx, vec, p.threshold)
	if err != nil {
		return Proposal{}, false, fmt.Errorf("model probe: %w", err)
	}
	if !pred.Found {
		return Proposal{}, false, nil
	}
	desc := Describe(fmt.Sprintf("model:%s_%d", pred.Side, pred.StopTicks), ec, "")
	return Proposal{Side: pred.Side, Descriptor: desc, Build: p.risk.WithStopTicks(pred.StopTicks)}, true, nil
}

var (
	_ Probe = (*ZoneFadeProbe)(nil)
	_ Probe = (*PlanZoneProbe)(nil)
	_ Probe = (*TrendCrossProbe)(nil)
	_ Probe = (*ModelProbe)(nil)
)
