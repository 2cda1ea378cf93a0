package usecase

import (
	"context"
	"fmt"
	"time"

	"Tradeflow/internal/domain/models"
	domrepo "Tradeflow/internal/domain/repository"
	domsvc "Tradeflow/internal/domain/service"
	"Tradeflow/pkg/calendar"
	"Tradeflow/pkg/logger"
	"Tradeflow/pkg/util"
)

// TieBreak decides a bar that crosses both stop and target.
type TieBreak string

const (
	// TieBreakBarDirection: for a long, a bearish or doji bar is a target hit
	// and a bullish bar a stop hit. Mirrored for shorts.
	TieBreakBarDirection TieBreak = "bar_direction"
	// TieBreakStopFirst always takes the stop.
	TieBreakStopFirst TieBreak = "stop_first"
)

func ParseTieBreak(s string) (TieBreak, error) {
	switch TieBreak(s) {
	case TieBreakBarDirection, "":
		return TieBreakBarDirection, nil
	case TieBreakStopFirst:
		return TieBreakStopFirst, nil
	}
	return "", fmt.Errorf("unknown tie break policy %q", s)
}

func (t TieBreak) stopWins(o models.Order, bar models.Bar) bool {
	if t == TieBreakStopFirst {
		return true
	}
	if o.IsLong() {
		return bar.IsBullish()
	}
	return bar.IsBearish()
}

// RuleEnv is what a rule may consult besides the order and the bar.
type RuleEnv struct {
	Broker     domsvc.Broker
	Session    calendar.Session
	TieBreak   TieBreak
	StaleAfter time.Duration
	TickSize   float64
}

// Rule is one guarded transition. Apply returns the order unchanged when its
// guard does not hold.
type Rule struct {
	Name  string
	Apply func(ctx context.Context, env RuleEnv, o models.Order, bar models.Bar) (models.Order, error)
}

// DefaultRules is the transition chain in priority order.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "limit_fill", Apply: limitFill},
		{Name: "stop_hit", Apply: stopHit},
		{Name: "target_hit", Apply: targetHit},
		{Name: "place_market", Apply: placeMarket},
		{Name: "place_limit", Apply: placeLimit},
		{Name: "trail_stop", Apply: trailStop},
		{Name: "cancel_stale", Apply: cancelStale},
		{Name: "session_close", Apply: sessionClose},
	}
}

func limitFill(ctx context.Context, env RuleEnv, o models.Order, bar models.Bar) (models.Order, error) {
	if o.Status != models.StatusPlaced {
		return o, nil
	}
	crossed := bar.Low <= o.Entry
	if !o.IsLong() {
		crossed = bar.High >= o.Entry
	}
	if !crossed {
		return o, nil
	}
	return env.Broker.FillOrder(ctx, o, bar)
}

func crossings(o models.Order, bar models.Bar) (stop, target bool) {
	if o.IsLong() {
		return bar.Low <= o.Stop, bar.High >= o.Target
	}
	return bar.High >= o.Stop, bar.Low <= o.Target
}

func stopHit(ctx context.Context, env RuleEnv, o models.Order, bar models.Bar) (models.Order, error) {
	if o.Status != models.StatusFilled {
		return o, nil
	}
	stop, target := crossings(o, bar)
	if !stop || (target && !env.TieBreak.stopWins(o, bar)) {
		return o, nil
	}
	o.ExitPrice = o.Stop
	return env.Broker.ExitOrder(ctx, o, bar)
}

func targetHit(ctx context.Context, env RuleEnv, o models.Order, bar models.Bar) (models.Order, error) {
	if o.Status != models.StatusFilled {
		return o, nil
	}
	stop, target := crossings(o, bar)
	if !target || (stop && env.TieBreak.stopWins(o, bar)) {
		return o, nil
	}
	o.ExitPrice = o.Target
	return env.Broker.ExitOrder(ctx, o, bar)
}

func placeMarket(ctx context.Context, env RuleEnv, o models.Order, bar models.Bar) (models.Order, error) {
	if o.Status != models.StatusPlaceNow {
		return o, nil
	}
	placed, err := env.Broker.PlaceOrder(ctx, o, bar)
	if err != nil {
		return o, err
	}
	return env.Broker.FillOrder(ctx, placed, bar)
}

// placeLimit rests the order once price is on the right side of the entry.
func placeLimit(ctx context.Context, env RuleEnv, o models.Order, bar models.Bar) (models.Order, error) {
	if o.Status != models.StatusPlanned {
		return o, nil
	}
	favorable := bar.Close >= o.Entry
	if !o.IsLong() {
		favorable = bar.Close <= o.Entry
	}
	if !favorable {
		return o, nil
	}
	return env.Broker.PlaceOrder(ctx, o, bar)
}

// trailStop only ever tightens the stop.
func trailStop(ctx context.Context, env RuleEnv, o models.Order, bar models.Bar) (models.Order, error) {
	if o.Status != models.StatusFilled || o.TrailDistance <= 0 {
		return o, nil
	}
	if o.IsLong() {
		candidate := util.FloorToTick(bar.High-o.TrailDistance, env.TickSize)
		if candidate <= o.Stop || candidate >= bar.Close {
			return o, nil
		}
		o.Stop = candidate
	} else {
		candidate := util.CeilToTick(bar.Low+o.TrailDistance, env.TickSize)
		if candidate >= o.Stop || candidate <= bar.Close {
			return o, nil
		}
		o.Stop = candidate
	}
	return env.Broker.ResetStop(ctx, o, bar)
}

func cancelStale(ctx context.Context, env RuleEnv, o models.Order, bar models.Bar) (models.Order, error) {
	if env.StaleAfter <= 0 || (o.Status != models.StatusPlanned && o.Status != models.StatusPlaced) {
		return o, nil
	}
	if bar.Timestamp.Sub(o.CreatedAt) < env.StaleAfter {
		return o, nil
	}
	o.CancelReason = "stale"
	return env.Broker.CancelOrder(ctx, o, bar)
}

func sessionClose(ctx context.Context, env RuleEnv, o models.Order, bar models.Bar) (models.Order, error) {
	if !env.Session.InNearClose(bar.Timestamp) && bar.Timestamp.Before(env.Session.Close) {
		return o, nil
	}
	switch o.Status {
	case models.StatusPlanned, models.StatusPlaceNow, models.StatusPlaced:
		o.CancelReason = "session_close"
		return env.Broker.CancelOrder(ctx, o, bar)
	case models.StatusFilled:
		o.ExitPrice = bar.Close
		return env.Broker.ExitOrder(ctx, o, bar)
	}
	return o, nil
}

// Lifecycle folds the rule chain over every open order on each bar.
type Lifecycle struct {
	rules      []Rule
	broker     domsvc.Broker
	tieBreak   TieBreak
	staleAfter time.Duration
	tickSize   float64
	metrics    domrepo.Metrics
	logger     *logger.Logger
}

type LifecycleOption func(*Lifecycle)

func WithRules(rules ...Rule) LifecycleOption {
	return func(l *Lifecycle) { l.rules = rules }
}

func WithTieBreak(t TieBreak) LifecycleOption {
	return func(l *Lifecycle) { l.tieBreak = t }
}

func WithStaleAfter(d time.Duration) LifecycleOption {
	return func(l *Lifecycle) { l.staleAfter = d }
}

func WithLifecycleTickSize(tick float64) LifecycleOption {
	return func(l *Lifecycle) { l.tickSize = tick }
}

func NewLifecycle(broker domsvc.Broker, m domrepo.Metrics, l *logger.Logger, opts ...LifecycleOption) *Lifecycle {
	lc := &Lifecycle{
		rules:    DefaultRules(),
		broker:   broker,
		tieBreak: TieBreakBarDirection,
		tickSize: 0.25,
		metrics:  m,
		logger:   l,
	}
	for _, opt := range opts {
		opt(lc)
	}
	return lc
}

// Apply runs the chain over orders in place and returns the indexes of orders
// that changed. Later rules see the result of earlier ones. A broker error or
// a backwards transition leaves the order as it was before that rule.
func (l *Lifecycle) Apply(ctx context.Context, orders []models.Order, bar models.Bar, session calendar.Session) []int {
	env := RuleEnv{
		Broker:     l.broker,
		Session:    session,
		TieBreak:   l.tieBreak,
		StaleAfter: l.staleAfter,
		TickSize:   l.tickSize,
	}

	var changed []int
	for i := range orders {
		if !orders[i].IsOpen() {
			continue
		}
		before := orders[i]
		cur := before
		for _, rule := range l.rules {
			if !cur.IsOpen() {
				break
			}
			next, err := rule.Apply(ctx, env, cur, bar)
			if err != nil {
				l.metrics.RecordError("broker")
				l.logger.Warn("lifecycle rule failed",
					logger.String("rule", rule.Name),
					logger.String("order_id", cur.ID),
					logger.Error(err),
				)
				continue
			}
			if !models.CanTransition(cur.Status, next.Status) {
				l.metrics.RecordError("transition")
				l.logger.Error("rejected backwards transition",
					logger.String("rule", rule.Name),
					logger.String("order_id", cur.ID),
					logger.String("from", string(cur.Status)),
					logger.String("to", string(next.Status)),
				)
				continue
			}
			if next.Status != cur.Status {
				l.metrics.RecordOrderTransition(string(cur.Status), string(next.Status))
				l.logger.Debug("order transition",
					logger.String("rule", rule.Name),
					logger.String("order_id", cur.ID),
					logger.String("from", string(cur.Status)),
					logger.String("to", string(next.Status)),
				)
			}
			cur = next
		}
		if orderChanged(before, cur) {
			orders[i] = cur
			changed = append(changed, i)
		}
	}
	return changed
}

func orderChanged(a, b models.Order) bool {
	return a.Status != b.Status || a.Stop != b.Stop || a.ExitPrice != b.ExitPrice ||
		a.FillPrice != b.FillPrice || a.CancelReason != b.CancelReason
}
