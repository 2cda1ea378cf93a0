package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Tradeflow/internal/domain/models"
)

func TestBarRangeShiftsToEndTimes(t *testing.T) {
	from := time.Date(2024, 3, 14, 13, 30, 0, 0, time.UTC)
	to := from.Add(time.Hour)

	lo, hi := barRange(models.TF5m, from, to)
	assert.Equal(t, from.Add(5*time.Minute), lo, "first bar starting at from ends 5m later")
	assert.Equal(t, to.Add(5*time.Minute), hi)

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	lo, _ = barRange(models.TF1m, from.In(ny), to)
	assert.Equal(t, time.UTC, lo.Location())
}

func TestBarSchemaUsesTableDatabase(t *testing.T) {
	stmts := BarSchema("market.es_bars")
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE DATABASE IF NOT EXISTS market", stmts[0])
	assert.Contains(t, stmts[1], "CREATE TABLE IF NOT EXISTS market.es_bars")
	assert.Contains(t, stmts[1], "ORDER BY (symbol, timeframe, ts)")

	assert.Contains(t, BarSchema("bars")[0], "tradeflow")
}
