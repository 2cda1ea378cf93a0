package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrderRejectsUnknownSide(t *testing.T) {
	_, err := NewOrder(OrderParams{Side: "Flat", Entry: 100, Stop: 95, Target: 110, Contracts: 1})
	assert.True(t, errors.Is(err, ErrInvalidSide))
}

func TestNewOrderStatusFollowsEntryType(t *testing.T) {
	limit, err := NewOrder(OrderParams{Side: Long, Entry: 100, Stop: 95, Target: 110, Contracts: 1})
	require.NoError(t, err)
	assert.Equal(t, StatusPlanned, limit.Status)
	assert.Equal(t, EntryLimit, limit.EntryType)

	market, err := NewOrder(OrderParams{Side: Short, EntryType: EntryMarket, Entry: 100, Stop: 105, Target: 90, Contracts: 2})
	require.NoError(t, err)
	assert.Equal(t, StatusPlaceNow, market.Status)
}

func TestNewOrderRejectsInvertedBracket(t *testing.T) {
	_, err := NewOrder(OrderParams{Side: Long, Entry: 100, Stop: 105, Target: 110, Contracts: 1})
	assert.True(t, errors.Is(err, ErrInvalidOrder))
	_, err = NewOrder(OrderParams{Side: Short, Entry: 100, Stop: 95, Target: 90, Contracts: 1})
	assert.True(t, errors.Is(err, ErrInvalidOrder))
}

func TestCanTransitionNeverLeavesTerminal(t *testing.T) {
	all := []OrderStatus{StatusPlanned, StatusPlaceNow, StatusPlaced, StatusFilled, StatusProfit, StatusLoss, StatusCancelled}
	for _, from := range []OrderStatus{StatusProfit, StatusLoss, StatusCancelled} {
		for _, to := range all {
			assert.False(t, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
	assert.True(t, CanTransition(StatusPlanned, StatusPlaced))
	assert.True(t, CanTransition(StatusPlaceNow, StatusFilled))
	assert.True(t, CanTransition(StatusFilled, StatusFilled))
	assert.False(t, CanTransition(StatusFilled, StatusPlaced))
	assert.False(t, CanTransition(StatusPlaced, StatusPlanned))
	assert.False(t, CanTransition(StatusFilled, StatusCancelled))
}

func TestPointsAt(t *testing.T) {
	fill := time.Now()
	o := Order{Side: Short, Entry: 100, FillPrice: 101, FilledAt: &fill}
	assert.InDelta(t, 3.0, o.PointsAt(98), 1e-9)
	o.Side = Long
	assert.InDelta(t, -3.0, o.PointsAt(98), 1e-9)
}

func TestBarValidate(t *testing.T) {
	ts := time.Date(2024, 3, 14, 14, 31, 0, 0, time.UTC)
	ok := Bar{Timestamp: ts, Timeframe: TF1m, Open: 100, High: 101, Low: 99, Close: 100.5}
	assert.NoError(t, ok.Validate())

	bad := ok
	bad.Low = 100.2
	assert.True(t, errors.Is(bad.Validate(), ErrInvalidBar))

	bad = ok
	bad.High = 100.4
	assert.True(t, errors.Is(bad.Validate(), ErrInvalidBar))

	assert.Equal(t, ts.Add(-time.Minute), ok.Start())
}
