package structure

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Tradeflow/internal/domain/models"
	"Tradeflow/pkg/calendar"
)

func bar(ts time.Time, tf models.Timeframe, o, h, l, c float64) models.Bar {
	return models.Bar{Timestamp: ts, Timeframe: tf, Open: o, High: h, Low: l, Close: c}
}

func TestDetectSwingsAndZones(t *testing.T) {
	cal := calendar.New()
	d := NewDetector(Config{SwingStrength: 1, ZoneTimeframe: models.TF1h}, cal)

	state := models.NewTradingDayState("2024-03-14", 10)
	t0 := time.Date(2024, 3, 12, 11, 0, 0, 0, calendar.Eastern)
	h := func(i int) time.Time { return t0.Add(time.Duration(i) * time.Hour) }
	for _, b := range []models.Bar{
		bar(h(0), models.TF1h, 100, 101, 99, 100.5),
		bar(h(1), models.TF1h, 100.5, 104, 100, 102), // swing high, wick 102..104
		bar(h(2), models.TF1h, 102, 103, 97, 98),
		bar(h(3), models.TF1h, 98, 99, 95, 97), // swing low, wick 95..97
		bar(h(4), models.TF1h, 97, 100, 96, 99),
	} {
		require.NoError(t, state.AppendBar(b))
	}

	set, err := d.Detect(context.Background(), state, models.TF1h)
	require.NoError(t, err)
	require.Len(t, set.Swings, 2)
	assert.Equal(t, models.PointHigh, set.Swings[0].Kind)
	assert.Equal(t, 104.0, set.Swings[0].Price)
	assert.Equal(t, models.PointLow, set.Swings[1].Kind)

	require.Len(t, set.Zones, 2)
	supply := set.Zones[0]
	assert.Equal(t, models.ZoneSupply, supply.Kind)
	assert.Equal(t, 102.0, supply.Low)
	assert.Equal(t, 104.0, supply.High)
	assert.Equal(t, time.Date(2024, 3, 14, 9, 30, 0, 0, calendar.Eastern), supply.StartTime)
	assert.Equal(t, models.ZoneDemand, set.Zones[1].Kind)
	assert.Equal(t, 95.0, set.Zones[1].Low)
	assert.Equal(t, 97.0, set.Zones[1].High)
	assert.Empty(t, set.Extremes)
}

func TestDetectExtremesOnlyInSession(t *testing.T) {
	cal := calendar.New()
	d := NewDetector(Config{}, cal)

	state := models.NewTradingDayState("2024-03-14", 10)
	open := time.Date(2024, 3, 14, 9, 30, 0, 0, calendar.Eastern)
	m := func(i int) time.Time { return open.Add(time.Duration(i) * time.Minute) }
	for _, b := range []models.Bar{
		bar(m(0), models.TF1m, 100, 120, 80, 100), // premarket bar, ignored
		bar(m(1), models.TF1m, 100, 101, 99, 100), // seeds 101/99
		bar(m(2), models.TF1m, 100, 102, 99.5, 101),
		bar(m(3), models.TF1m, 101, 101.5, 98, 98.5),
		bar(m(4), models.TF1m, 98.5, 103, 97, 102.5), // outside, bullish
	} {
		require.NoError(t, state.AppendBar(b))
	}

	set, err := d.Detect(context.Background(), state, models.TF1m)
	require.NoError(t, err)
	require.Len(t, set.Extremes, 3)
	assert.Equal(t, models.DaytimeExtreme{Timestamp: m(2), Price: 102, Kind: models.PointHigh}, set.Extremes[0])
	assert.Equal(t, models.DaytimeExtreme{Timestamp: m(3), Price: 98, Kind: models.PointLow}, set.Extremes[1])
	assert.Equal(t, models.DaytimeExtreme{Timestamp: m(4), Price: 103, Kind: models.PointHigh}, set.Extremes[2])
	assert.Empty(t, set.Zones)
	require.NoError(t, state.CheckInvariants())
}

func TestDetectDoesNotMutateState(t *testing.T) {
	cal := calendar.New()
	d := NewDetector(Config{}, cal)
	state := models.NewTradingDayState("2024-03-14", 10)
	open := time.Date(2024, 3, 14, 9, 31, 0, 0, calendar.Eastern)
	require.NoError(t, state.AppendBar(bar(open, models.TF1m, 1, 2, 0.5, 1.5)))

	before := state.Clone()
	_, err := d.Detect(context.Background(), state, models.TF1m)
	require.NoError(t, err)
	assert.Equal(t, before, state)
}

func TestDetectRejectsHoliday(t *testing.T) {
	d := NewDetector(Config{}, calendar.New())
	_, err := d.Detect(context.Background(), models.NewTradingDayState("2024-12-25", 10), models.TF1m)
	assert.Error(t, err)
}
