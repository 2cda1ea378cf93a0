// Package broker holds the simulated broker used for replays and paper trading.
package broker

import (
	"context"
	"errors"
	"fmt"

	"Tradeflow/internal/domain/models"
	domsvc "Tradeflow/internal/domain/service"
	"Tradeflow/pkg/logger"
	"Tradeflow/pkg/util"
)

var ErrRejected = errors.New("broker: order rejected")

// Paper fills limit orders at their entry and market orders at the triggering bar's close.
type Paper struct {
	tick       float64
	pointValue float64
	logger     *logger.Logger
}

type Option func(*Paper)

func WithTickSize(tick float64) Option {
	return func(p *Paper) { p.tick = tick }
}

func WithPointValue(v float64) Option {
	return func(p *Paper) { p.pointValue = v }
}

func NewPaper(l *logger.Logger, opts ...Option) *Paper {
	p := &Paper{tick: 0.25, pointValue: 50, logger: l}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Paper) PlaceOrder(_ context.Context, o models.Order, bar models.Bar) (models.Order, error) {
	if o.Status != models.StatusPlanned && o.Status != models.StatusPlaceNow {
		return o, reject(o, "place")
	}
	ts := bar.Timestamp
	o.Status = models.StatusPlaced
	o.PlacedAt = &ts
	return o, nil
}

func (p *Paper) FillOrder(_ context.Context, o models.Order, bar models.Bar) (models.Order, error) {
	if o.Status != models.StatusPlaced && o.Status != models.StatusPlaceNow {
		return o, reject(o, "fill")
	}
	ts := bar.Timestamp
	if o.PlacedAt == nil {
		o.PlacedAt = &ts
	}
	o.FillPrice = o.Entry
	if o.EntryType == models.EntryMarket {
		o.FillPrice = util.RoundToTick(bar.Close, p.tick)
	}
	o.Status = models.StatusFilled
	o.FilledAt = &ts
	return o, nil
}

func (p *Paper) ExitOrder(_ context.Context, o models.Order, bar models.Bar) (models.Order, error) {
	if o.Status != models.StatusFilled || o.ExitPrice <= 0 {
		return o, reject(o, "exit")
	}
	ts := bar.Timestamp
	o.ExitPrice = util.RoundToTick(o.ExitPrice, p.tick)
	o.ClosedAt = &ts
	points := o.PointsAt(o.ExitPrice)
	if points > 0 {
		o.Status = models.StatusProfit
	} else {
		o.Status = models.StatusLoss
	}
	p.logger.Info("paper exit",
		logger.String("order_id", o.ID),
		logger.String("status", string(o.Status)),
		logger.Float64("exit", o.ExitPrice),
		logger.Float64("pnl", util.Money(points, o.Contracts, p.pointValue)),
	)
	return o, nil
}

func (p *Paper) CancelOrder(_ context.Context, o models.Order, bar models.Bar) (models.Order, error) {
	switch o.Status {
	case models.StatusPlanned, models.StatusPlaceNow, models.StatusPlaced:
	default:
		return o, reject(o, "cancel")
	}
	ts := bar.Timestamp
	o.Status = models.StatusCancelled
	o.ClosedAt = &ts
	if o.CancelReason == "" {
		o.CancelReason = "cancelled"
	}
	return o, nil
}

func (p *Paper) ResetStop(_ context.Context, o models.Order, _ models.Bar) (models.Order, error) {
	if o.Status != models.StatusFilled {
		return o, reject(o, "reset stop")
	}
	o.Stop = util.RoundToTick(o.Stop, p.tick)
	return o, nil
}

func reject(o models.Order, op string) error {
	return fmt.Errorf("%w: %s %s in status %s", ErrRejected, op, o.ID, o.Status)
}

var _ domsvc.Broker = (*Paper)(nil)
