package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrInvalidEvent = errors.New("invalid event")

// EventType is the discriminant of the event union; values are the wire case names.
type EventType string

const (
	EventBar            EventType = "Bar"
	EventSwingPoint     EventType = "SwingPoint"
	EventPlanZone       EventType = "PlanZone"
	EventDaytimeExtreme EventType = "DaytimeExtreme"
	EventOrder          EventType = "Order"
	EventPhaseComplete  EventType = "PhaseComplete"
	EventPhaseErrored   EventType = "PhaseErrored"
)

// Event is the only externally visible record of a state change.
// Exactly one payload matching Type is set; PhaseComplete carries none and
// PhaseErrored carries Error.
type Event struct {
	Type        EventType `json:"eventType"`
	Timestamp   time.Time `json:"timestamp"`
	TradingDate string    `json:"tradingDate,omitempty"`
	Phase       Phase     `json:"phase,omitempty"`
	Timeframe   Timeframe `json:"timeframe,omitempty"`

	Bar            *Bar            `json:"bar,omitempty"`
	SwingPoint     *SwingPoint     `json:"swingPoint,omitempty"`
	PlanZone       *PlanZone       `json:"planZone,omitempty"`
	DaytimeExtreme *DaytimeExtreme `json:"daytimeExtreme,omitempty"`
	Order          *Order          `json:"order,omitempty"`
	Error          string          `json:"error,omitempty"`
}

func NewBarEvent(b Bar) Event {
	return Event{Type: EventBar, Timestamp: b.Timestamp, Timeframe: b.Timeframe, Bar: &b}
}

func NewSwingPointEvent(at time.Time, p SwingPoint) Event {
	return Event{Type: EventSwingPoint, Timestamp: at, Timeframe: p.Timeframe, SwingPoint: &p}
}

func NewPlanZoneEvent(at time.Time, z PlanZone) Event {
	return Event{Type: EventPlanZone, Timestamp: at, Timeframe: z.Timeframe, PlanZone: &z}
}

func NewDaytimeExtremeEvent(at time.Time, tf Timeframe, e DaytimeExtreme) Event {
	return Event{Type: EventDaytimeExtreme, Timestamp: at, Timeframe: tf, DaytimeExtreme: &e}
}

func NewOrderEvent(at time.Time, o Order) Event {
	return Event{Type: EventOrder, Timestamp: at, Order: &o}
}

func NewPhaseCompleteEvent(at time.Time) Event {
	return Event{Type: EventPhaseComplete, Timestamp: at}
}

func NewPhaseErroredEvent(at time.Time, err error) Event {
	return Event{Type: EventPhaseErrored, Timestamp: at, Error: err.Error()}
}

// Validate checks that the payload matches the discriminant.
func (e Event) Validate() error {
	set := 0
	for _, present := range []bool{e.Bar != nil, e.SwingPoint != nil, e.PlanZone != nil, e.DaytimeExtreme != nil, e.Order != nil} {
		if present {
			set++
		}
	}

	if e.Type != EventPhaseErrored && e.Error != "" {
		return fmt.Errorf("%w: eventType %q carries an error", ErrInvalidEvent, e.Type)
	}

	var ok bool
	switch e.Type {
	case EventBar:
		ok = set == 1 && e.Bar != nil
	case EventSwingPoint:
		ok = set == 1 && e.SwingPoint != nil
	case EventPlanZone:
		ok = set == 1 && e.PlanZone != nil
	case EventDaytimeExtreme:
		ok = set == 1 && e.DaytimeExtreme != nil
	case EventOrder:
		ok = set == 1 && e.Order != nil
	case EventPhaseComplete:
		ok = set == 0
	case EventPhaseErrored:
		ok = set == 0 && e.Error != ""
	default:
		return fmt.Errorf("%w: unknown eventType %q", ErrInvalidEvent, e.Type)
	}
	if !ok {
		return fmt.Errorf("%w: payload does not match eventType %q", ErrInvalidEvent, e.Type)
	}
	return nil
}

// UnmarshalJSON rejects unknown case names and mismatched payloads.
func (e *Event) UnmarshalJSON(data []byte) error {
	type plain Event
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	ev := Event(p)
	if err := ev.Validate(); err != nil {
		return err
	}
	*e = ev
	return nil
}
