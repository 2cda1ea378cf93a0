package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Tradeflow/internal/domain/models"
	domsvc "Tradeflow/internal/domain/service"
	"Tradeflow/pkg/logger"
)

// rangeState builds a trading state whose lookback spans 100..110 and whose
// latest bar closes at lastClose.
func rangeState(t *testing.T, lastClose float64, last time.Time) *models.TradingDayState {
	t.Helper()
	st := models.NewTradingDayState("2024-03-14", 0)
	start := last.Add(-10 * time.Minute)
	for i := 0; i < 10; i++ {
		ts := start.Add(time.Duration(i) * time.Minute)
		lo, hi := 104.0, 106.0
		if i == 2 {
			lo = 100
		}
		if i == 7 {
			hi = 110
		}
		require.NoError(t, st.AppendBar(bar1m(ts, 105, hi, lo, 105)))
	}
	require.NoError(t, st.AppendBar(bar1m(last, lastClose, lastClose+0.25, lastClose-0.25, lastClose)))
	return st
}

func defaultRisk() RiskConfig {
	return RiskConfig{TickSize: 0.25, PointValue: 50, StopTicks: 16, ProfitMultiplier: 2, MaxRisk: 1000, MaxContracts: 5}
}

type stubProbe struct {
	name  string
	side  models.Side
	ok    bool
	err   error
	calls int
	build OrderConstructor
}

func (p *stubProbe) Name() string { return p.name }

func (p *stubProbe) Propose(_ context.Context, ec EntryContext) (Proposal, bool, error) {
	p.calls++
	if p.err != nil || !p.ok {
		return Proposal{}, false, p.err
	}
	return Proposal{Side: p.side, Descriptor: Describe(p.name, ec, ""), Build: p.build}, true, nil
}

func TestStrategyEngine_FirstMatchWins(t *testing.T) {
	rc := NewRiskConstructor(defaultRisk())
	first := &stubProbe{name: "first", side: models.Short, ok: true, build: rc.Default()}
	second := &stubProbe{name: "second", side: models.Long, ok: true, build: rc.Default()}
	declines := &stubProbe{name: "declines"}

	se := NewStrategyEngine(logger.Nop(), []Probe{declines, first, second})
	order, ok, err := se.Evaluate(context.Background(), rangeState(t, 105, at(11, 0)), testSession(t))
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, models.Short, order.Side)
	assert.True(t, strings.HasPrefix(order.Strategy, "first|"))
	assert.Equal(t, 1, declines.calls)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 0, second.calls)
}

func TestStrategyEngine_Preconditions(t *testing.T) {
	rc := NewRiskConstructor(defaultRisk())
	probe := &stubProbe{name: "p", side: models.Long, ok: true, build: rc.Default()}
	se := NewStrategyEngine(logger.Nop(), []Probe{probe})

	t.Run("active order blocks", func(t *testing.T) {
		st := rangeState(t, 105, at(11, 0))
		st.Orders = append(st.Orders, filledLong(t))
		_, ok, err := se.Evaluate(context.Background(), st, testSession(t))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("near close blocks", func(t *testing.T) {
		_, ok, err := se.Evaluate(context.Background(), rangeState(t, 105, at(15, 50)), testSession(t))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("terminal orders do not block", func(t *testing.T) {
		st := rangeState(t, 105, at(11, 0))
		done := filledLong(t)
		done.Status = models.StatusLoss
		st.Orders = append(st.Orders, done)
		_, ok, err := se.Evaluate(context.Background(), st, testSession(t))
		require.NoError(t, err)
		assert.True(t, ok)
	})

	assert.Equal(t, 1, probe.calls)
}

func TestStrategyEngine_ProbeErrorFallsThrough(t *testing.T) {
	rc := NewRiskConstructor(defaultRisk())
	broken := &stubProbe{name: "broken", err: errors.New("upstream down")}
	next := &stubProbe{name: "next", side: models.Long, ok: true, build: rc.Default()}

	se := NewStrategyEngine(logger.Nop(), []Probe{broken, next})
	order, ok, err := se.Evaluate(context.Background(), rangeState(t, 105, at(11, 0)), testSession(t))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.Long, order.Side)
}

func TestStrategyEngine_InvalidSideIsFatal(t *testing.T) {
	rc := NewRiskConstructor(defaultRisk())
	bad := &stubProbe{name: "bad", side: models.Side("Flat"), ok: true, build: rc.Default()}

	se := NewStrategyEngine(logger.Nop(), []Probe{bad})
	_, _, err := se.Evaluate(context.Background(), rangeState(t, 105, at(11, 0)), testSession(t))
	assert.ErrorIs(t, err, models.ErrInvalidSide)
}

func TestZoneFadeProbe(t *testing.T) {
	rc := NewRiskConstructor(defaultRisk())
	se := NewStrategyEngine(logger.Nop(), []Probe{NewZoneFadeProbe(rc.Default())})

	tests := []struct {
		close float64
		at    time.Time
		side  models.Side
		ok    bool
	}{
		{102, at(11, 0), models.Long, true},
		{108, at(11, 0), models.Short, true},
		{105, at(11, 0), "", false},
		{111, at(11, 0), "", false},
		{102, at(12, 30), "", false}, // quiet window
	}
	for _, tt := range tests {
		order, ok, err := se.Evaluate(context.Background(), rangeState(t, tt.close, tt.at), testSession(t))
		require.NoError(t, err)
		assert.Equal(t, tt.ok, ok, "close %v", tt.close)
		if ok {
			assert.Equal(t, tt.side, order.Side)
			assert.Equal(t, "zone_fade", strings.Split(order.Strategy, "|")[0])
		}
	}
}

func TestPlanZoneProbe_OncePerZone(t *testing.T) {
	rc := NewRiskConstructor(defaultRisk())
	se := NewStrategyEngine(logger.Nop(), []Probe{NewPlanZoneProbe(models.TF1h, rc.Default())})

	st := rangeState(t, 105, at(11, 0))
	zone := models.PlanZone{ID: "demand-1h-1", Kind: models.ZoneDemand, High: 105.5, Low: 104.5, Timestamp: at(8, 0), StartTime: at(9, 30), Timeframe: models.TF1h}
	st.Signals[models.TF1h] = models.SignalSet{Zones: []models.PlanZone{zone}}

	order, ok, err := se.Evaluate(context.Background(), st, testSession(t))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.Long, order.Side)
	assert.Equal(t, "demand-1h-1", DescriptorZone(order.Strategy))

	order.Status = models.StatusCancelled
	st.Orders = append(st.Orders, order)
	_, ok, err = se.Evaluate(context.Background(), st, testSession(t))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPlanZoneProbe_InactiveZone(t *testing.T) {
	rc := NewRiskConstructor(defaultRisk())
	se := NewStrategyEngine(logger.Nop(), []Probe{NewPlanZoneProbe(models.TF1h, rc.Default())})

	st := rangeState(t, 105, at(11, 0))
	st.Signals[models.TF1h] = models.SignalSet{Zones: []models.PlanZone{
		{ID: "later", Kind: models.ZoneSupply, High: 106, Low: 104, StartTime: at(13, 0), Timeframe: models.TF1h},
	}}
	_, ok, err := se.Evaluate(context.Background(), st, testSession(t))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTrendCrossProbe(t *testing.T) {
	rc := NewRiskConstructor(defaultRisk())
	se := NewStrategyEngine(logger.Nop(), []Probe{NewTrendCrossProbe(2, 20, rc.Default())})

	st := rangeState(t, 105, at(11, 0))
	base := at(10, 55)
	flags := []bool{false, false, true, true, true}
	for i, golden := range flags {
		st.PushTrend(models.TrendSample{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			ShortMA:   105.5, LongMA: 105, ChannelWidth: 2,
			Golden: golden, Death: !golden,
		})
	}

	order, ok, err := se.Evaluate(context.Background(), st, testSession(t))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.Long, order.Side)
	assert.Contains(t, order.Strategy, "|up|")
}

type stubPredictor struct {
	pred     domsvc.Prediction
	features int
}

func (p *stubPredictor) Predict(_ context.Context, features []float64, _ float64) (domsvc.Prediction, error) {
	p.features = len(features)
	return p.pred, nil
}

func TestModelProbe(t *testing.T) {
	rc := NewRiskConstructor(defaultRisk())
	pred := &stubPredictor{pred: domsvc.Prediction{Found: true, Setup: 1, Side: models.Short, StopTicks: 4, Probability: 0.9}}
	se := NewStrategyEngine(logger.Nop(), []Probe{NewModelProbe(pred, 0.7, models.TF1m, rc)})

	order, ok, err := se.Evaluate(context.Background(), rangeState(t, 105, at(11, 0)), testSession(t))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 69, pred.features)
	assert.Equal(t, models.Short, order.Side)
	assert.Equal(t, 105.0, order.Entry)
	assert.Equal(t, 106.0, order.Stop)
	assert.Equal(t, 103.0, order.Target)
	assert.True(t, strings.HasPrefix(order.Strategy, "model:Short_4|"))

	pred.pred = domsvc.Prediction{Confidence: "none"}
	_, ok, err = se.Evaluate(context.Background(), rangeState(t, 105, at(11, 0)), testSession(t))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRiskConstructor(t *testing.T) {
	rc := NewRiskConstructor(defaultRisk())
	st := rangeState(t, 100.1, at(11, 0))
	ec := EntryContext{State: st, Bar: bar1m(at(11, 0), 100, 100.5, 99.5, 100.1), Session: testSession(t)}

	long, err := rc.Default()(ec, Proposal{Side: models.Long, Descriptor: "x"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPlanned, long.Status)
	assert.Equal(t, 100.0, long.Entry)
	assert.Equal(t, 96.0, long.Stop)
	assert.Equal(t, 108.0, long.Target)
	assert.Equal(t, 5, long.Contracts)
	assert.Equal(t, 1000.0, long.Risk)
	assert.Equal(t, at(11, 0), long.CreatedAt)

	again, err := rc.Default()(ec, Proposal{Side: models.Long, Descriptor: "x"})
	require.NoError(t, err)
	assert.Equal(t, long.ID, again.ID)

	short, err := rc.WithStopTicks(40)(ec, Proposal{Side: models.Short, Descriptor: "x"})
	require.NoError(t, err)
	assert.Equal(t, 110.0, short.Stop)
	assert.Equal(t, 80.0, short.Target)
	assert.Equal(t, 2, short.Contracts)
	assert.NotEqual(t, long.ID, short.ID)

	cfg := defaultRisk()
	cfg.MarketEntry = true
	cfg.MaxRisk = 10
	mkt, err := NewRiskConstructor(cfg).Default()(ec, Proposal{Side: models.Long})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPlaceNow, mkt.Status)
	assert.Equal(t, 1, mkt.Contracts)
}

func TestDescriptorZone(t *testing.T) {
	assert.Equal(t, "z1", DescriptorZone("plan_zone|up|normal|Long|neutral|open|zone=z1"))
	assert.Equal(t, "", DescriptorZone("zone_fade|up|normal|Long|neutral|open"))
}
