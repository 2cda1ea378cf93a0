package models

import "time"

// PointKind tells whether a structural point is a high or a low.
type PointKind string

const (
	PointHigh PointKind = "high"
	PointLow  PointKind = "low"
)

// ZoneKind tells whether a plan zone is expected to attract buyers or sellers.
type ZoneKind string

const (
	ZoneDemand ZoneKind = "demand"
	ZoneSupply ZoneKind = "supply"
)

type SwingPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
	Kind      PointKind `json:"kind"`
	Timeframe Timeframe `json:"timeframe"`
}

// PlanZone is a supply/demand band. Timestamp is when it was detected,
// StartTime is when it becomes tradable.
type PlanZone struct {
	ID        string    `json:"id"`
	Kind      ZoneKind  `json:"kind"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Timestamp time.Time `json:"timestamp"`
	StartTime time.Time `json:"startTime"`
	Timeframe Timeframe `json:"timeframe"`
}

// Contains reports whether price lies inside [Low, High].
func (z PlanZone) Contains(price float64) bool {
	return price >= z.Low && price <= z.High
}

// Active reports whether the zone has started by t.
func (z PlanZone) Active(t time.Time) bool {
	return !t.Before(z.StartTime)
}

// DaytimeExtreme is the session's running high or low as of Timestamp.
type DaytimeExtreme struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
	Kind      PointKind `json:"kind"`
}

// SignalSet holds the derived structure for one timeframe. Each slice is
// strictly time-ordered by Timestamp.
type SignalSet struct {
	Swings   []SwingPoint     `json:"swings,omitempty"`
	Zones    []PlanZone       `json:"zones,omitempty"`
	Extremes []DaytimeExtreme `json:"extremes,omitempty"`
}

// Clone copies the slices so the result shares nothing with s.
func (s SignalSet) Clone() SignalSet {
	return SignalSet{
		Swings:   append([]SwingPoint(nil), s.Swings...),
		Zones:    append([]PlanZone(nil), s.Zones...),
		Extremes: append([]DaytimeExtreme(nil), s.Extremes...),
	}
}

// TrendSample is one point of the rolling moving-average / volatility window.
type TrendSample struct {
	Timestamp    time.Time `json:"timestamp"`
	ShortMA      float64   `json:"shortMA"`
	LongMA       float64   `json:"longMA"`
	ChannelWidth float64   `json:"channelWidth"`
	ATR          float64   `json:"atr"`
	Golden       bool      `json:"golden"`
	Death        bool      `json:"death"`
}
