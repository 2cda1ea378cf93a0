package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Tradeflow/internal/domain/models"
	"Tradeflow/internal/services/broker"
	"Tradeflow/pkg/calendar"
	"Tradeflow/pkg/logger"
	"Tradeflow/pkg/metrics"
)

var testDay = time.Date(2024, 3, 14, 0, 0, 0, 0, calendar.Eastern)

func testSession(t *testing.T) calendar.Session {
	t.Helper()
	s, err := calendar.New().Session(testDay)
	require.NoError(t, err)
	return s
}

// at returns a time on the test day in exchange time.
func at(hour, minute int) time.Time {
	return time.Date(2024, 3, 14, hour, minute, 0, 0, calendar.Eastern)
}

func bar1m(ts time.Time, o, h, l, c float64) models.Bar {
	return models.Bar{Timestamp: ts, Timeframe: models.TF1m, Open: o, High: h, Low: l, Close: c, Volume: 10}
}

func newTestLifecycle(opts ...LifecycleOption) *Lifecycle {
	return NewLifecycle(broker.NewPaper(logger.Nop()), metrics.New(prometheus.NewRegistry()), logger.Nop(), opts...)
}

func filledLong(t *testing.T) models.Order {
	t.Helper()
	o, err := models.NewOrder(models.OrderParams{ID: "long", Side: models.Long, Entry: 100, Stop: 95, Target: 110, Contracts: 1, CreatedAt: at(10, 0)})
	require.NoError(t, err)
	o.Status = models.StatusFilled
	o.FillPrice = 100
	return o
}

func filledShort(t *testing.T) models.Order {
	t.Helper()
	o, err := models.NewOrder(models.OrderParams{ID: "short", Side: models.Short, Entry: 100, Stop: 105, Target: 90, Contracts: 1, CreatedAt: at(10, 0)})
	require.NoError(t, err)
	o.Status = models.StatusFilled
	o.FillPrice = 100
	return o
}

func TestLifecycle_TieBreak(t *testing.T) {
	tests := []struct {
		name   string
		policy TieBreak
		order  func(*testing.T) models.Order
		bar    models.Bar
		want   models.OrderStatus
		exit   float64
	}{
		{"long bearish bar takes target", TieBreakBarDirection, filledLong, bar1m(at(10, 5), 105, 111, 94, 100), models.StatusProfit, 110},
		{"long doji takes target", TieBreakBarDirection, filledLong, bar1m(at(10, 5), 100, 111, 94, 100), models.StatusProfit, 110},
		{"long bullish bar takes stop", TieBreakBarDirection, filledLong, bar1m(at(10, 5), 96, 111, 94, 108), models.StatusLoss, 95},
		{"short bullish bar takes target", TieBreakBarDirection, filledShort, bar1m(at(10, 5), 95, 106, 89, 100), models.StatusProfit, 90},
		{"short bearish bar takes stop", TieBreakBarDirection, filledShort, bar1m(at(10, 5), 104, 106, 89, 92), models.StatusLoss, 105},
		{"stop first on bearish bar", TieBreakStopFirst, filledLong, bar1m(at(10, 5), 105, 111, 94, 100), models.StatusLoss, 95},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lc := newTestLifecycle(WithTieBreak(tt.policy))
			orders := []models.Order{tt.order(t)}
			changed := lc.Apply(context.Background(), orders, tt.bar, testSession(t))
			assert.Equal(t, []int{0}, changed)
			assert.Equal(t, tt.want, orders[0].Status)
			assert.Equal(t, tt.exit, orders[0].ExitPrice)
		})
	}
}

func TestLifecycle_LimitOrderFlow(t *testing.T) {
	ctx := context.Background()
	lc := newTestLifecycle()
	sess := testSession(t)

	o, err := models.NewOrder(models.OrderParams{ID: "o1", Side: models.Long, Entry: 100, Stop: 95, Target: 110, Contracts: 1, CreatedAt: at(10, 0)})
	require.NoError(t, err)
	orders := []models.Order{o}

	// price below entry: nothing to rest yet
	assert.Empty(t, lc.Apply(ctx, orders, bar1m(at(10, 1), 99, 99.5, 98, 99), sess))
	assert.Equal(t, models.StatusPlanned, orders[0].Status)

	assert.Equal(t, []int{0}, lc.Apply(ctx, orders, bar1m(at(10, 2), 101, 102, 100.5, 101), sess))
	assert.Equal(t, models.StatusPlaced, orders[0].Status)

	// fill and target in the same bar
	assert.Equal(t, []int{0}, lc.Apply(ctx, orders, bar1m(at(10, 3), 101, 110.5, 99.75, 110), sess))
	assert.Equal(t, models.StatusProfit, orders[0].Status)
	assert.Equal(t, 100.0, orders[0].FillPrice)

	// terminal orders are left alone
	assert.Empty(t, lc.Apply(ctx, orders, bar1m(at(10, 4), 110, 111, 90, 91), sess))
	assert.Equal(t, models.StatusProfit, orders[0].Status)
}

func TestLifecycle_MarketOrderFillsImmediately(t *testing.T) {
	lc := newTestLifecycle()
	o, err := models.NewOrder(models.OrderParams{ID: "m", Side: models.Short, EntryType: models.EntryMarket, Entry: 100, Stop: 105, Target: 90, Contracts: 2, CreatedAt: at(10, 0)})
	require.NoError(t, err)
	orders := []models.Order{o}

	lc.Apply(context.Background(), orders, bar1m(at(10, 1), 100, 100.5, 99.5, 100.25), testSession(t))
	assert.Equal(t, models.StatusFilled, orders[0].Status)
	assert.Equal(t, 100.25, orders[0].FillPrice)
	require.NotNil(t, orders[0].PlacedAt)
}

func TestLifecycle_TrailOnlyTightens(t *testing.T) {
	ctx := context.Background()
	lc := newTestLifecycle()
	sess := testSession(t)

	o := filledLong(t)
	o.TrailDistance = 2
	orders := []models.Order{o}

	lc.Apply(ctx, orders, bar1m(at(10, 1), 100, 104, 100, 103.5), sess)
	assert.Equal(t, 102.0, orders[0].Stop)

	assert.Empty(t, lc.Apply(ctx, orders, bar1m(at(10, 2), 103, 103.5, 102.5, 103), sess))
	assert.Equal(t, 102.0, orders[0].Stop)

	s := filledShort(t)
	s.TrailDistance = 2
	shorts := []models.Order{s}
	lc.Apply(ctx, shorts, bar1m(at(10, 1), 100, 100, 96, 96.5), sess)
	assert.Equal(t, 98.0, shorts[0].Stop)
}

func TestLifecycle_SessionClose(t *testing.T) {
	lc := newTestLifecycle()
	sess := testSession(t)

	planned, err := models.NewOrder(models.OrderParams{ID: "p", Side: models.Long, Entry: 90, Stop: 85, Target: 95, Contracts: 1, CreatedAt: at(15, 40)})
	require.NoError(t, err)
	placed := planned
	placed.ID = "placed"
	placed.Status = models.StatusPlaced
	filled := filledLong(t)

	orders := []models.Order{planned, placed, filled}
	changed := lc.Apply(context.Background(), orders, bar1m(at(15, 51), 102, 103, 101, 102.5), sess)

	assert.Equal(t, []int{0, 1, 2}, changed)
	assert.Equal(t, models.StatusCancelled, orders[0].Status)
	assert.Equal(t, "session_close", orders[0].CancelReason)
	assert.Equal(t, models.StatusCancelled, orders[1].Status)
	assert.Equal(t, models.StatusProfit, orders[2].Status)
	assert.Equal(t, 102.5, orders[2].ExitPrice)
}

func TestLifecycle_CancelStale(t *testing.T) {
	lc := newTestLifecycle(WithStaleAfter(15 * time.Minute))
	o, err := models.NewOrder(models.OrderParams{ID: "s", Side: models.Long, Entry: 100, Stop: 95, Target: 110, Contracts: 1, CreatedAt: at(10, 0)})
	require.NoError(t, err)
	o.Status = models.StatusPlaced
	orders := []models.Order{o}

	assert.Empty(t, lc.Apply(context.Background(), orders, bar1m(at(10, 14), 102, 103, 101, 102), testSession(t)))
	lc.Apply(context.Background(), orders, bar1m(at(10, 15), 102, 103, 101, 102), testSession(t))
	assert.Equal(t, models.StatusCancelled, orders[0].Status)
	assert.Equal(t, "stale", orders[0].CancelReason)
}

func TestLifecycle_RejectsBackwardsTransition(t *testing.T) {
	regress := Rule{Name: "regress", Apply: func(_ context.Context, _ RuleEnv, o models.Order, _ models.Bar) (models.Order, error) {
		o.Status = models.StatusPlanned
		return o, nil
	}}
	lc := newTestLifecycle(WithRules(regress))
	orders := []models.Order{filledLong(t)}

	assert.Empty(t, lc.Apply(context.Background(), orders, bar1m(at(10, 1), 100, 101, 99, 100), testSession(t)))
	assert.Equal(t, models.StatusFilled, orders[0].Status)
}

type failingBroker struct {
	*broker.Paper
	failID string
}

func (b failingBroker) ExitOrder(ctx context.Context, o models.Order, bar models.Bar) (models.Order, error) {
	if o.ID == b.failID {
		return o, errors.New("broker unavailable")
	}
	return b.Paper.ExitOrder(ctx, o, bar)
}

func TestLifecycle_BrokerErrorIsPerOrder(t *testing.T) {
	b := failingBroker{Paper: broker.NewPaper(logger.Nop()), failID: "bad"}
	lc := NewLifecycle(b, metrics.New(prometheus.NewRegistry()), logger.Nop())

	bad := filledLong(t)
	bad.ID = "bad"
	good := filledLong(t)
	orders := []models.Order{bad, good}

	changed := lc.Apply(context.Background(), orders, bar1m(at(10, 1), 100, 111, 99, 110), testSession(t))
	assert.Equal(t, []int{1}, changed)
	assert.Equal(t, models.StatusFilled, orders[0].Status)
	assert.Equal(t, models.StatusProfit, orders[1].Status)
}

func TestLifecycle_StatusOnlyMovesForward(t *testing.T) {
	ctx := context.Background()
	lc := newTestLifecycle(WithStaleAfter(5 * time.Minute))
	sess := testSession(t)

	o, err := models.NewOrder(models.OrderParams{ID: "f", Side: models.Long, Entry: 100, Stop: 98, Target: 103, TrailDistance: 1, Contracts: 1, CreatedAt: at(9, 30)})
	require.NoError(t, err)
	orders := []models.Order{o}

	rank := map[models.OrderStatus]int{
		models.StatusPlanned: 0, models.StatusPlaceNow: 0, models.StatusPlaced: 1,
		models.StatusFilled: 2, models.StatusProfit: 3, models.StatusLoss: 3, models.StatusCancelled: 3,
	}
	prices := []float64{100.5, 101, 99.5, 100, 101.5, 102.5, 101, 99, 97, 100, 104}
	prev := orders[0].Status
	for i, p := range prices {
		lc.Apply(ctx, orders, bar1m(at(9, 31+i), p, p+0.75, p-0.75, p), sess)
		cur := orders[0].Status
		assert.GreaterOrEqual(t, rank[cur], rank[prev], "bar %d: %s -> %s", i, prev, cur)
		if prev.IsTerminal() {
			assert.Equal(t, prev, cur)
		}
		prev = cur
	}
}

func TestParseTieBreak(t *testing.T) {
	tb, err := ParseTieBreak("")
	require.NoError(t, err)
	assert.Equal(t, TieBreakBarDirection, tb)

	tb, err = ParseTieBreak("stop_first")
	require.NoError(t, err)
	assert.Equal(t, TieBreakStopFirst, tb)

	_, err = ParseTieBreak("coin_flip")
	assert.Error(t, err)
}
