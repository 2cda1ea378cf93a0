package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"Tradeflow/internal/domain/models"
	"Tradeflow/internal/services/features"
	"Tradeflow/internal/services/zones"
	"Tradeflow/pkg/calendar"
	"Tradeflow/pkg/logger"
	"Tradeflow/pkg/util"
)

// Market is the per-bar view shared by every probe.
type Market struct {
	Range    zones.Range
	Band     zones.Band
	Quality  zones.Quality
	Trend    models.TrendSample
	Momentum float64
}

// EntryContext is what preconditions and probes see for the current trading bar.
type EntryContext struct {
	State   *models.TradingDayState
	Bar     models.Bar
	Session calendar.Session
	Market  Market
}

// Precondition gates order creation. All must hold.
type Precondition struct {
	Name  string
	Check func(EntryContext) bool
}

func NoActiveOrder() Precondition {
	return Precondition{Name: "no_active_order", Check: func(ec EntryContext) bool {
		_, active := ec.State.ActiveOrder()
		return !active
	}}
}

func NotNearClose() Precondition {
	return Precondition{Name: "not_near_close", Check: func(ec EntryContext) bool {
		return !ec.Session.InNearClose(ec.Bar.Timestamp)
	}}
}

// OrderConstructor turns an accepted proposal into a concrete order.
type OrderConstructor func(ec EntryContext, p Proposal) (models.Order, error)

// Proposal is a probe's entry idea.
type Proposal struct {
	Side       models.Side
	Descriptor string
	Build      OrderConstructor
}

// Probe is one entry strategy. ok=false means it declines this bar.
type Probe interface {
	Name() string
	Propose(ctx context.Context, ec EntryContext) (p Proposal, ok bool, err error)
}

// StrategyEngine picks at most one new order per bar: preconditions are
// and-gated and the first proposing probe wins.
type StrategyEngine struct {
	preconditions []Precondition
	probes        []Probe
	lookback      int
	momentum      int
	tf            models.Timeframe
	logger        *logger.Logger
}

type StrategyOption func(*StrategyEngine)

func WithPreconditions(p ...Precondition) StrategyOption {
	return func(s *StrategyEngine) { s.preconditions = p }
}

func WithLookback(n int) StrategyOption {
	return func(s *StrategyEngine) {
		if n > 0 {
			s.lookback = n
		}
	}
}

func WithMomentumPeriod(n int) StrategyOption {
	return func(s *StrategyEngine) {
		if n > 0 {
			s.momentum = n
		}
	}
}

func WithTradingTimeframe(tf models.Timeframe) StrategyOption {
	return func(s *StrategyEngine) { s.tf = tf }
}

func NewStrategyEngine(l *logger.Logger, probes []Probe, opts ...StrategyOption) *StrategyEngine {
	s := &StrategyEngine{
		preconditions: []Precondition{NoActiveOrder(), NotNearClose()},
		probes:        probes,
		lookback:      30,
		momentum:      14,
		tf:            models.TF1m,
		logger:        l,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Evaluate runs the gate and the probes for the latest trading bar. An error is
// returned only for invariant violations; probe failures are logged and the
// next probe is tried.
func (s *StrategyEngine) Evaluate(ctx context.Context, state *models.TradingDayState, session calendar.Session) (models.Order, bool, error) {
	bar, ok := state.LatestBar(s.tf)
	if !ok {
		return models.Order{}, false, nil
	}
	ec := EntryContext{State: state, Bar: bar, Session: session}

	for _, pc := range s.preconditions {
		if !pc.Check(ec) {
			return models.Order{}, false, nil
		}
	}

	market, ok, err := s.market(state, bar)
	if err != nil || !ok {
		return models.Order{}, false, err
	}
	ec.Market = market

	for _, probe := range s.probes {
		p, ok, err := probe.Propose(ctx, ec)
		if err != nil {
			if errors.Is(err, zones.ErrInvariant) || errors.Is(err, models.ErrInvalidSide) {
				return models.Order{}, false, err
			}
			s.logger.Warn("probe failed", logger.String("probe", probe.Name()), logger.Error(err))
			continue
		}
		if !ok {
			continue
		}

		order, err := p.Build(ec, p)
		if err != nil {
			if errors.Is(err, models.ErrInvalidSide) {
				return models.Order{}, false, err
			}
			s.logger.Warn("order construction failed", logger.String("probe", probe.Name()), logger.Error(err))
			return models.Order{}, false, nil
		}
		s.logger.Info("entry proposed",
			logger.String("probe", probe.Name()),
			logger.String("side", string(order.Side)),
			logger.String("strategy", order.Strategy),
			logger.Float64("entry", order.Entry),
		)
		return order, true, nil
	}
	return models.Order{}, false, nil
}

// market classifies the latest close against the lookback window. ok=false
// while there is not yet a previous bar.
func (s *StrategyEngine) market(state *models.TradingDayState, bar models.Bar) (Market, bool, error) {
	window := state.Lookback(s.tf, s.lookback)
	r, err := zones.NewRange(window)
	if errors.Is(err, zones.ErrEmptyRange) {
		return Market{}, false, nil
	}
	if err != nil {
		return Market{}, false, err
	}
	band, err := zones.Classify(r, bar.Close)
	if err != nil {
		return Market{}, false, err
	}

	var trend models.TrendSample
	if n := len(state.Trend); n > 0 {
		trend = state.Trend[n-1]
	}
	return Market{
		Range:    r,
		Band:     band,
		Quality:  zones.RangeQuality(r, trend.ATR),
		Trend:    trend,
		Momentum: features.Momentum(state.Bars[s.tf], s.momentum),
	}, true, nil
}

// Describe builds the strategy descriptor
// <probe>|<prior_trend>|<range_quality>|<band>|<momentum>|<time_of_day>[|zone=<id>].
func Describe(probe string, ec EntryContext, zoneID string) string {
	parts := []string{
		probe,
		priorTrend(ec.Market.Trend),
		string(ec.Market.Quality),
		ec.Market.Band.String(),
		momentumBucket(ec.Market.Momentum),
		timeOfDay(ec.Session, ec.Bar),
	}
	if zoneID != "" {
		parts = append(parts, "zone="+zoneID)
	}
	return strings.Join(parts, "|")
}

// DescriptorZone extracts the zone id from a descriptor, if any.
func DescriptorZone(descriptor string) string {
	for _, part := range strings.Split(descriptor, "|") {
		if id, ok := strings.CutPrefix(part, "zone="); ok {
			return id
		}
	}
	return ""
}

func priorTrend(s models.TrendSample) string {
	switch {
	case s.Golden:
		return "up"
	case s.Death:
		return "down"
	default:
		return "flat"
	}
}

func momentumBucket(rsi float64) string {
	switch {
	case rsi >= 70:
		return "overbought"
	case rsi > 0 && rsi <= 30:
		return "oversold"
	default:
		return "neutral"
	}
}

func timeOfDay(s calendar.Session, bar models.Bar) string {
	switch {
	case s.MinutesFromOpen(bar.Timestamp) <= 60:
		return "open"
	case s.InQuietWindow(bar.Timestamp):
		return "midday"
	case s.Close.Sub(bar.Timestamp).Minutes() <= 60:
		return "late"
	default:
		return "session"
	}
}

// RiskConfig sizes and brackets new orders.
type RiskConfig struct {
	TickSize         float64 `yaml:"tick_size" default:"0.25"`
	PointValue       float64 `yaml:"point_value" default:"50"`
	StopTicks        int     `yaml:"stop_ticks" default:"16"`
	ProfitMultiplier float64 `yaml:"profit_multiplier" default:"2"`
	MaxRisk          float64 `yaml:"max_risk" default:"1000"`
	MaxContracts     int     `yaml:"max_contracts" default:"5"`
	TrailTicks       int     `yaml:"trail_ticks" default:"0"`
	MarketEntry      bool    `yaml:"market_entry" default:"false"`
}

// orderNamespace scopes the name-based order ids so replays are reproducible.
var orderNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("tradeflow.order"))

// RiskConstructor builds bracket orders around the trading bar's close.
type RiskConstructor struct {
	cfg RiskConfig
}

func NewRiskConstructor(cfg RiskConfig) *RiskConstructor {
	return &RiskConstructor{cfg: cfg}
}

// Default uses the configured stop distance.
func (r *RiskConstructor) Default() OrderConstructor {
	return r.WithStopTicks(r.cfg.StopTicks)
}

// WithStopTicks brackets the entry with a stop stopTicks away and a target at
// ProfitMultiplier times that risk.
func (r *RiskConstructor) WithStopTicks(stopTicks int) OrderConstructor {
	return func(ec EntryContext, p Proposal) (models.Order, error) {
		if !p.Side.Valid() {
			return models.Order{}, fmt.Errorf("%w: got %q", models.ErrInvalidSide, p.Side)
		}
		if stopTicks <= 0 {
			return models.Order{}, fmt.Errorf("%w: stop ticks %d", models.ErrInvalidOrder, stopTicks)
		}

		tick := decimal.NewFromFloat(r.cfg.TickSize)
		entry := decimal.NewFromFloat(util.RoundToTick(ec.Bar.Close, r.cfg.TickSize))
		riskPts := tick.Mul(decimal.NewFromInt(int64(stopTicks)))
		reward := riskPts.Mul(decimal.NewFromFloat(r.cfg.ProfitMultiplier))

		stop, target := entry.Sub(riskPts), entry.Add(reward)
		if p.Side == models.Short {
			stop, target = entry.Add(riskPts), entry.Sub(reward)
		}

		risk, _ := riskPts.Float64()
		contracts := r.contracts(risk)
		entryType := models.EntryLimit
		if r.cfg.MarketEntry {
			entryType = models.EntryMarket
		}

		e, _ := entry.Float64()
		s, _ := stop.Float64()
		t, _ := target.Float64()
		return models.NewOrder(models.OrderParams{
			ID:               orderID(ec.State.TradingDate, ec.Bar, p),
			Side:             p.Side,
			EntryType:        entryType,
			Entry:            e,
			Stop:             s,
			Target:           util.RoundToTick(t, r.cfg.TickSize),
			TrailDistance:    float64(r.cfg.TrailTicks) * r.cfg.TickSize,
			Risk:             util.Money(risk, contracts, r.cfg.PointValue),
			Contracts:        contracts,
			ProfitMultiplier: r.cfg.ProfitMultiplier,
			Strategy:         p.Descriptor,
			CreatedAt:        ec.Bar.Timestamp,
		})
	}
}

// contracts is floor(maxRisk / per-contract risk) clamped to [1, MaxContracts].
func (r *RiskConstructor) contracts(riskPts float64) int {
	perContract := util.Money(riskPts, 1, r.cfg.PointValue)
	n := 1
	if perContract > 0 && r.cfg.MaxRisk > 0 {
		n = int(math.Floor(r.cfg.MaxRisk / perContract))
	}
	if r.cfg.MaxContracts > 0 && n > r.cfg.MaxContracts {
		n = r.cfg.MaxContracts
	}
	if n < 1 {
		n = 1
	}
	return n
}

func orderID(date string, bar models.Bar, p Proposal) string {
	name := fmt.Sprintf("%s|%d|%s|%s", date, bar.Timestamp.UnixNano(), p.Side, p.Descriptor)
	return uuid.NewSHA1(orderNamespace, []byte(name)).String()
}
