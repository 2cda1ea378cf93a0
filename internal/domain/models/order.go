package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidSide  = errors.New("order side must be Long or Short")
	ErrInvalidOrder = errors.New("invalid order")
)

type Side string

const (
	Long  Side = "Long"
	Short Side = "Short"
)

func (s Side) Valid() bool { return s == Long || s == Short }

type EntryType string

const (
	EntryLimit  EntryType = "Limit"
	EntryMarket EntryType = "Market"
)

type OrderStatus string

const (
	StatusPlanned   OrderStatus = "Planned"
	StatusPlaceNow  OrderStatus = "PlaceNow"
	StatusPlaced    OrderStatus = "Placed"
	StatusFilled    OrderStatus = "Filled"
	StatusProfit    OrderStatus = "Profit"
	StatusLoss      OrderStatus = "Loss"
	StatusCancelled OrderStatus = "Cancelled"
)

// IsTerminal reports whether no further transition is possible.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusProfit || s == StatusLoss || s == StatusCancelled
}

var transitions = map[OrderStatus][]OrderStatus{
	StatusPlanned:  {StatusPlaced, StatusCancelled},
	StatusPlaceNow: {StatusPlaced, StatusFilled, StatusCancelled},
	StatusPlaced:   {StatusFilled, StatusCancelled},
	StatusFilled:   {StatusFilled, StatusProfit, StatusLoss},
}

// CanTransition reports whether from -> to moves forward along the lifecycle graph.
// Staying in place is allowed for every non-terminal status.
func CanTransition(from, to OrderStatus) bool {
	if from == to {
		return !from.IsTerminal()
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Order is one bracket order. Values are only ever changed through the broker.
type Order struct {
	ID               string      `json:"id"`
	Side             Side        `json:"side"`
	EntryType        EntryType   `json:"entryType"`
	Status           OrderStatus `json:"status"`
	Entry            float64     `json:"entry"`
	Stop             float64     `json:"stop"`
	Target           float64     `json:"target"`
	TrailDistance    float64     `json:"trailDistance,omitempty"`
	Risk             float64     `json:"risk"`
	Contracts        int         `json:"contracts"`
	ProfitMultiplier float64     `json:"profitMultiplier"`
	Strategy         string      `json:"strategy"`
	CancelReason     string      `json:"cancelReason,omitempty"`
	FillPrice        float64     `json:"fillPrice,omitempty"`
	ExitPrice        float64     `json:"exitPrice,omitempty"`
	CreatedAt        time.Time   `json:"createdAt"`
	PlacedAt         *time.Time  `json:"placedAt,omitempty"`
	FilledAt         *time.Time  `json:"filledAt,omitempty"`
	ClosedAt         *time.Time  `json:"closedAt,omitempty"`
}

// OrderParams carries what a strategy decided; NewOrder turns it into a Planned or PlaceNow order.
type OrderParams struct {
	ID               string
	Side             Side
	EntryType        EntryType
	Entry            float64
	Stop             float64
	Target           float64
	TrailDistance    float64
	Risk             float64
	Contracts        int
	ProfitMultiplier float64
	Strategy         string
	CreatedAt        time.Time
}

// NewOrder validates p. A side other than Long/Short is a construction error.
func NewOrder(p OrderParams) (Order, error) {
	if !p.Side.Valid() {
		return Order{}, fmt.Errorf("%w: got %q", ErrInvalidSide, p.Side)
	}
	if p.Contracts < 1 {
		return Order{}, fmt.Errorf("%w: contracts %d", ErrInvalidOrder, p.Contracts)
	}
	if p.Side == Long && !(p.Stop < p.Entry && p.Entry < p.Target) {
		return Order{}, fmt.Errorf("%w: long needs stop < entry < target (%.2f/%.2f/%.2f)", ErrInvalidOrder, p.Stop, p.Entry, p.Target)
	}
	if p.Side == Short && !(p.Target < p.Entry && p.Entry < p.Stop) {
		return Order{}, fmt.Errorf("%w: short needs target < entry < stop (%.2f/%.2f/%.2f)", ErrInvalidOrder, p.Target, p.Entry, p.Stop)
	}

	status := StatusPlanned
	entryType := p.EntryType
	if entryType == "" {
		entryType = EntryLimit
	}
	if entryType == EntryMarket {
		status = StatusPlaceNow
	}

	return Order{
		ID:               p.ID,
		Side:             p.Side,
		EntryType:        entryType,
		Status:           status,
		Entry:            p.Entry,
		Stop:             p.Stop,
		Target:           p.Target,
		TrailDistance:    p.TrailDistance,
		Risk:             p.Risk,
		Contracts:        p.Contracts,
		ProfitMultiplier: p.ProfitMultiplier,
		Strategy:         p.Strategy,
		CreatedAt:        p.CreatedAt,
	}, nil
}

func (o Order) IsLong() bool { return o.Side == Long }

// IsOpen reports whether the lifecycle still has work to do on the order.
func (o Order) IsOpen() bool { return !o.Status.IsTerminal() }

// PointsAt is the per-contract result of exiting at price, in price points.
func (o Order) PointsAt(price float64) float64 {
	fill := o.FillPrice
	if fill == 0 {
		fill = o.Entry
	}
	if o.IsLong() {
		return price - fill
	}
	return fill - price
}
