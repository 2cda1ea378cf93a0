// Package structure is the built-in structure detector: fractal swing points,
// plan zones built from higher-timeframe swings, and session running extremes.
package structure

import (
	"context"
	"fmt"
	"math"
	"time"

	"Tradeflow/internal/domain/models"
	domsvc "Tradeflow/internal/domain/service"
	"Tradeflow/pkg/calendar"
)

type Config struct {
	// SwingStrength is the number of bars on each side a swing must dominate.
	SwingStrength    int
	ZoneTimeframe    models.Timeframe
	ExtremeTimeframe models.Timeframe
}

type Detector struct {
	cfg Config
	cal *calendar.Calendar
}

func NewDetector(cfg Config, cal *calendar.Calendar) *Detector {
	if cfg.SwingStrength <= 0 {
		cfg.SwingStrength = 2
	}
	if cfg.ZoneTimeframe == "" {
		cfg.ZoneTimeframe = models.TF1h
	}
	if cfg.ExtremeTimeframe == "" {
		cfg.ExtremeTimeframe = models.TF1m
	}
	return &Detector{cfg: cfg, cal: cal}
}

func (d *Detector) Detect(ctx context.Context, state *models.TradingDayState, tf models.Timeframe) (models.SignalSet, error) {
	if err := ctx.Err(); err != nil {
		return models.SignalSet{}, err
	}
	day, err := d.cal.ParseDate(state.TradingDate)
	if err != nil {
		return models.SignalSet{}, fmt.Errorf("detect: %w", err)
	}
	session, err := d.cal.Session(day)
	if err != nil {
		return models.SignalSet{}, fmt.Errorf("detect: %w", err)
	}

	bars := state.Bars[tf]
	set := models.SignalSet{Swings: swings(bars, tf, d.cfg.SwingStrength)}
	if tf == d.cfg.ZoneTimeframe {
		// Planning zones become tradable at the open of the trading date.
		set.Zones = zonesFromSwings(bars, set.Swings, session.Open)
	}
	if tf == d.cfg.ExtremeTimeframe {
		set.Extremes = extremes(bars, session)
	}
	return set, nil
}

// swings marks bar i when its high (low) strictly exceeds the k bars on either
// side. Outside bars that qualify both ways are skipped.
func swings(bars []models.Bar, tf models.Timeframe, k int) []models.SwingPoint {
	var out []models.SwingPoint
	for i := k; i+k < len(bars); i++ {
		high, low := true, true
		for j := i - k; j <= i+k; j++ {
			if j == i {
				continue
			}
			if bars[j].High >= bars[i].High {
				high = false
			}
			if bars[j].Low <= bars[i].Low {
				low = false
			}
		}
		switch {
		case high && low:
		case high:
			out = append(out, models.SwingPoint{Timestamp: bars[i].Timestamp, Price: bars[i].High, Kind: models.PointHigh, Timeframe: tf})
		case low:
			out = append(out, models.SwingPoint{Timestamp: bars[i].Timestamp, Price: bars[i].Low, Kind: models.PointLow, Timeframe: tf})
		}
	}
	return out
}

// zonesFromSwings turns each swing bar's wick into a zone: upper wick of a swing
// high becomes supply, lower wick of a swing low becomes demand.
func zonesFromSwings(bars []models.Bar, points []models.SwingPoint, start time.Time) []models.PlanZone {
	byTime := make(map[int64]models.Bar, len(bars))
	for _, b := range bars {
		byTime[b.Timestamp.UnixNano()] = b
	}

	out := make([]models.PlanZone, 0, len(points))
	for _, p := range points {
		b := byTime[p.Timestamp.UnixNano()]
		z := models.PlanZone{
			Timestamp: p.Timestamp,
			Timeframe: p.Timeframe,
			StartTime: start,
		}
		if p.Kind == models.PointHigh {
			z.Kind = models.ZoneSupply
			z.Low, z.High = math.Max(b.Open, b.Close), b.High
		} else {
			z.Kind = models.ZoneDemand
			z.Low, z.High = b.Low, math.Min(b.Open, b.Close)
		}
		if z.StartTime.Before(p.Timestamp) {
			z.StartTime = p.Timestamp
		}
		z.ID = fmt.Sprintf("%s-%s-%d", z.Kind, p.Timeframe, p.Timestamp.Unix())
		out = append(out, z)
	}
	return out
}

// extremes records each new session high or low. The first session bar only
// seeds the running values; an outside bar reports the side it closed toward.
func extremes(bars []models.Bar, s calendar.Session) []models.DaytimeExtreme {
	var out []models.DaytimeExtreme
	seeded := false
	var hi, lo float64
	for _, b := range bars {
		if !s.Contains(b.Start()) {
			continue
		}
		if !seeded {
			hi, lo, seeded = b.High, b.Low, true
			continue
		}
		newHigh, newLow := b.High > hi, b.Low < lo
		if newHigh {
			hi = b.High
		}
		if newLow {
			lo = b.Low
		}
		switch {
		case newHigh && newLow:
			if b.IsBullish() {
				out = append(out, models.DaytimeExtreme{Timestamp: b.Timestamp, Price: hi, Kind: models.PointHigh})
			} else {
				out = append(out, models.DaytimeExtreme{Timestamp: b.Timestamp, Price: lo, Kind: models.PointLow})
			}
		case newHigh:
			out = append(out, models.DaytimeExtreme{Timestamp: b.Timestamp, Price: hi, Kind: models.PointHigh})
		case newLow:
			out = append(out, models.DaytimeExtreme{Timestamp: b.Timestamp, Price: lo, Kind: models.PointLow})
		}
	}
	return out
}

var _ domsvc.StructureDetector = (*Detector)(nil)
