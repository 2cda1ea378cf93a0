package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Tradeflow/internal/domain/models"
	"Tradeflow/pkg/logger"
)

func TestPaperLifecycle(t *testing.T) {
	ctx := context.Background()
	p := NewPaper(logger.Nop())
	ts := time.Date(2024, 3, 14, 14, 0, 0, 0, time.UTC)
	bar := models.Bar{Timestamp: ts, Timeframe: models.TF1m, Open: 100, High: 101, Low: 99, Close: 100.5}

	o, err := models.NewOrder(models.OrderParams{ID: "o1", Side: models.Long, Entry: 100, Stop: 95, Target: 110, Contracts: 1})
	require.NoError(t, err)

	o, err = p.PlaceOrder(ctx, o, bar)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPlaced, o.Status)
	require.NotNil(t, o.PlacedAt)

	o, err = p.FillOrder(ctx, o, bar)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFilled, o.Status)
	assert.Equal(t, 100.0, o.FillPrice)

	o.ExitPrice = 95
	o, err = p.ExitOrder(ctx, o, bar)
	require.NoError(t, err)
	assert.Equal(t, models.StatusLoss, o.Status)
	require.NotNil(t, o.ClosedAt)

	_, err = p.CancelOrder(ctx, o, bar)
	assert.True(t, errors.Is(err, ErrRejected))
}

func TestPaperMarketFillUsesClose(t *testing.T) {
	ctx := context.Background()
	p := NewPaper(logger.Nop(), WithTickSize(0.25))
	bar := models.Bar{Timestamp: time.Now(), Timeframe: models.TF1m, Open: 100, High: 101, Low: 99, Close: 100.6}

	o, err := models.NewOrder(models.OrderParams{ID: "o2", Side: models.Short, EntryType: models.EntryMarket, Entry: 100, Stop: 104, Target: 92, Contracts: 1})
	require.NoError(t, err)
	o, err = p.FillOrder(ctx, o, bar)
	require.NoError(t, err)
	assert.Equal(t, 100.5, o.FillPrice)

	o.ExitPrice = 99
	o, err = p.ExitOrder(ctx, o, bar)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProfit, o.Status)
}
