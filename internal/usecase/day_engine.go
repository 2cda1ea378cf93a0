package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"Tradeflow/internal/domain/models"
	domrepo "Tradeflow/internal/domain/repository"
	domsvc "Tradeflow/internal/domain/service"
	"Tradeflow/internal/services/features"
	"Tradeflow/internal/services/zones"
	"Tradeflow/pkg/calendar"
	"Tradeflow/pkg/logger"
)

// FatalError aborts the day: an invariant no longer holds.
type FatalError struct {
	TradingDate string
	At          time.Time
	Err         error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal at %s %s: %v", e.TradingDate, e.At.Format(time.RFC3339), e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// Sink receives events in emission order. Emit may block for backpressure and
// returns an error only when ctx ends.
type Sink interface {
	Emit(ctx context.Context, e models.Event) error
}

type SinkFunc func(ctx context.Context, e models.Event) error

func (f SinkFunc) Emit(ctx context.Context, e models.Event) error { return f(ctx, e) }

// Window bounds one replay: bars whose bucket starts in [Start, End).
type Window struct {
	Phase      models.Phase
	Start      time.Time
	End        time.Time
	Timeframes []models.Timeframe
	// Trading enables the lifecycle and strategies on the trading timeframe.
	Trading bool
}

type EngineConfig struct {
	Symbol           string
	TradingTimeframe models.Timeframe
	TrendCapacity    int
	Trend            features.TrendConfig
}

// seenSet records which derived signals were already emitted, by timestamp.
type seenSet struct {
	swings   map[int64]bool
	zones    map[int64]bool
	extremes map[int64]bool
}

func newSeenSet() *seenSet {
	return &seenSet{swings: map[int64]bool{}, zones: map[int64]bool{}, extremes: map[int64]bool{}}
}

// DayEngine owns one trading day's state. Replay is the single writer; readers
// use Snapshot.
type DayEngine struct {
	cfg       EngineConfig
	session   calendar.Session
	state     *models.TradingDayState
	snapshot  atomic.Pointer[models.TradingDayState]
	source    domrepo.BarSource
	detector  domsvc.StructureDetector
	lifecycle *Lifecycle
	strategy  *StrategyEngine
	metrics   domrepo.Metrics
	logger    *logger.Logger

	seen map[models.Timeframe]*seenSet
	// caughtUp holds zones emitted on reaching their start, keyed by id and start.
	caughtUp map[string]bool
}

func NewDayEngine(
	date string,
	session calendar.Session,
	cfg EngineConfig,
	source domrepo.BarSource,
	detector domsvc.StructureDetector,
	lifecycle *Lifecycle,
	strategy *StrategyEngine,
	m domrepo.Metrics,
	l *logger.Logger,
) *DayEngine {
	if cfg.TradingTimeframe == "" {
		cfg.TradingTimeframe = models.TF1m
	}
	if cfg.Trend == (features.TrendConfig{}) {
		cfg.Trend = features.DefaultTrendConfig()
	}
	e := &DayEngine{
		cfg:       cfg,
		session:   session,
		state:     models.NewTradingDayState(date, cfg.TrendCapacity),
		source:    source,
		detector:  detector,
		lifecycle: lifecycle,
		strategy:  strategy,
		metrics:   m,
		logger:    l.With(logger.String("trading_date", date)),
		seen:      make(map[models.Timeframe]*seenSet),
		caughtUp:  make(map[string]bool),
	}
	e.snapshot.Store(e.state.Clone())
	return e
}

func (e *DayEngine) TradingDate() string { return e.state.TradingDate }

func (e *DayEngine) Session() calendar.Session { return e.session }

// Snapshot is the state as of the last fully applied bar.
func (e *DayEngine) Snapshot() *models.TradingDayState {
	return e.snapshot.Load()
}

// Replay advances the day through w, emitting to sink. It stops between bars
// when ctx ends and returns a *FatalError on invariant violations.
func (e *DayEngine) Replay(ctx context.Context, w Window, sink Sink) error {
	tfs := models.SortTimeframes(append([]models.Timeframe(nil), w.Timeframes...))
	if len(tfs) == 0 {
		return fmt.Errorf("replay %s: no timeframes", w.Phase)
	}

	pending := e.pendingCatchUp(w)

	merged, err := domrepo.OpenMerged(ctx, e.source, tfs, w.Start, w.End)
	if err != nil {
		return fmt.Errorf("replay %s: %w", w.Phase, err)
	}
	defer merged.Close()

	started := time.Now()
	processed := 0

	// Bars sharing an end time are emitted as a group: every Bar event first,
	// then the derived events, so a Bar event always precedes the signals of
	// its timestamp.
	var (
		groupAt time.Time
		barEvts []models.Event
		derived []models.Event
	)
	flush := func() error {
		for _, ev := range append(barEvts, derived...) {
			ev.TradingDate = e.state.TradingDate
			ev.Phase = w.Phase
			if err := sink.Emit(ctx, ev); err != nil {
				return err
			}
		}
		barEvts, derived = barEvts[:0], derived[:0]
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		bar, ok, err := merged.Next(ctx)
		if err != nil {
			return fmt.Errorf("replay %s: read bars: %w", w.Phase, err)
		}
		if !ok {
			break
		}
		if bar.Timestamp.Before(groupAt) {
			e.metrics.RecordError("out_of_order")
			e.logger.Warn("skipping bar behind the feed",
				logger.String("timeframe", string(bar.Timeframe)),
				logger.Time("timestamp", bar.Timestamp),
			)
			continue
		}
		if !bar.Timestamp.Equal(groupAt) {
			if err := flush(); err != nil {
				return err
			}
		}

		events, skip, err := e.apply(ctx, w, bar, &pending)
		if err != nil {
			return err
		}
		if skip {
			continue
		}
		processed++
		groupAt = bar.Timestamp
		barEvts = append(barEvts, events[0])
		derived = append(derived, events[1:]...)
	}
	if err := flush(); err != nil {
		return err
	}

	e.metrics.RecordLatency("replay_"+string(w.Phase), time.Since(started).Seconds())
	e.logger.Info("replay finished",
		logger.String("phase", string(w.Phase)),
		logger.Int("bars", processed),
		logger.Duration("elapsed", time.Since(started)),
	)
	return nil
}

// apply fully processes one bar and returns the events to emit, in order.
func (e *DayEngine) apply(ctx context.Context, w Window, bar models.Bar, pending *[]models.PlanZone) ([]models.Event, bool, error) {
	if start := bar.Start(); start.Before(w.Start) || !start.Before(w.End) {
		return nil, true, nil
	}
	if err := bar.Validate(); err != nil {
		e.metrics.RecordError("invalid_bar")
		e.logger.Warn("skipping bar", logger.Error(err))
		return nil, true, nil
	}
	if err := e.state.AppendBar(bar); err != nil {
		e.metrics.RecordError("out_of_order")
		e.logger.Warn("skipping bar", logger.Error(err))
		return nil, true, nil
	}

	events := []models.Event{models.NewBarEvent(bar)}
	events = append(events, e.detect(ctx, bar)...)

	if bar.Timeframe == e.cfg.TradingTimeframe {
		e.metrics.RecordLastPrice(e.cfg.Symbol, bar.Close)
		if sample, ok := features.TrendSample(e.state.Bars[bar.Timeframe], e.cfg.Trend); ok {
			e.state.PushTrend(sample)
		}
	}

	if err := e.state.CheckInvariants(); err != nil {
		return nil, false, &FatalError{TradingDate: e.state.TradingDate, At: bar.Timestamp, Err: err}
	}

	events = append(events, e.catchUp(bar, pending)...)

	if w.Trading && bar.Timeframe == e.cfg.TradingTimeframe {
		orderEvents, err := e.trade(ctx, bar)
		if err != nil {
			return nil, false, &FatalError{TradingDate: e.state.TradingDate, At: bar.Timestamp, Err: err}
		}
		events = append(events, orderEvents...)
	}

	e.snapshot.Store(e.state.Clone())
	return events, false, nil
}

// detect recomputes signals for the bar's timeframe and returns events for the
// ones not seen before. A detector failure leaves the signals unchanged.
func (e *DayEngine) detect(ctx context.Context, bar models.Bar) []models.Event {
	tf := bar.Timeframe
	set, err := e.detector.Detect(ctx, e.state, tf)
	if err != nil {
		e.metrics.RecordError("detector")
		e.logger.Warn("structure detection failed", logger.String("timeframe", string(tf)), logger.Error(err))
		return nil
	}
	e.state.Signals[tf] = set

	seen, ok := e.seen[tf]
	if !ok {
		seen = newSeenSet()
		e.seen[tf] = seen
	}

	var events []models.Event
	for _, p := range set.Swings {
		if key := p.Timestamp.UnixNano(); !seen.swings[key] {
			seen.swings[key] = true
			events = append(events, models.NewSwingPointEvent(bar.Timestamp, p))
		}
	}
	for _, z := range set.Zones {
		if key := z.Timestamp.UnixNano(); !seen.zones[key] {
			seen.zones[key] = true
			events = append(events, models.NewPlanZoneEvent(bar.Timestamp, z))
		}
	}
	for _, x := range set.Extremes {
		if key := x.Timestamp.UnixNano(); !seen.extremes[key] {
			seen.extremes[key] = true
			events = append(events, models.NewDaytimeExtremeEvent(bar.Timestamp, tf, x))
		}
	}
	return events
}

func catchUpKey(z models.PlanZone) string {
	return fmt.Sprintf("%s@%d", z.ID, z.StartTime.UnixNano())
}

// pendingCatchUp collects zones known before the window opens whose start
// lies at or after it.
func (e *DayEngine) pendingCatchUp(w Window) []models.PlanZone {
	var out []models.PlanZone
	for _, set := range e.state.Signals {
		for _, z := range set.Zones {
			if z.StartTime.Before(w.Start) || e.caughtUp[catchUpKey(z)] {
				continue
			}
			out = append(out, z)
		}
	}
	return out
}

// catchUp emits each pending zone once, on the first bar starting at or after
// the zone's start.
func (e *DayEngine) catchUp(bar models.Bar, pending *[]models.PlanZone) []models.Event {
	var events []models.Event
	rest := (*pending)[:0]
	for _, z := range *pending {
		key := catchUpKey(z)
		if e.caughtUp[key] {
			continue
		}
		if bar.Start().Before(z.StartTime) {
			rest = append(rest, z)
			continue
		}
		e.caughtUp[key] = true
		events = append(events, models.NewPlanZoneEvent(bar.Timestamp, z))
	}
	*pending = rest
	return events
}

// trade runs the lifecycle over existing orders, then asks the strategies for
// a new one.
func (e *DayEngine) trade(ctx context.Context, bar models.Bar) ([]models.Event, error) {
	var events []models.Event
	for _, i := range e.lifecycle.Apply(ctx, e.state.Orders, bar, e.session) {
		events = append(events, models.NewOrderEvent(bar.Timestamp, e.state.Orders[i]))
	}

	order, ok, err := e.strategy.Evaluate(ctx, e.state, e.session)
	if err != nil {
		if errors.Is(err, zones.ErrInvariant) || errors.Is(err, models.ErrInvalidSide) {
			return nil, err
		}
		e.logger.Warn("strategy evaluation failed", logger.Error(err))
		return events, nil
	}
	if ok {
		e.state.Orders = append(e.state.Orders, order)
		e.metrics.RecordOrderTransition("", string(order.Status))
		events = append(events, models.NewOrderEvent(bar.Timestamp, order))
	}
	return events, nil
}
