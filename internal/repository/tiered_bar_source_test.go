package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Tradeflow/internal/domain/models"
)

func drainAll(t *testing.T, s *TieredBarSource, tfs []models.Timeframe, from, to time.Time) []string {
	t.Helper()
	it, err := s.MergedBars(context.Background(), tfs, from, to)
	require.NoError(t, err)
	defer it.Close()
	var out []string
	for {
		b, ok, err := it.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			return out
		}
		out = append(out, b.Timestamp.Format("15:04")+"/"+string(b.Timeframe))
	}
}

func TestTieredBarSourceSplitsAtBucketInProgress(t *testing.T) {
	history := NewMemoryBarSource()
	for i := 1; i <= 10; i++ {
		history.Add(minuteBar(models.TF1m, streamOpen.Add(time.Duration(i)*time.Minute)))
	}
	history.Add(minuteBar(models.TF5m, streamOpen.Add(5*time.Minute)), minuteBar(models.TF5m, streamOpen.Add(10*time.Minute)))

	live := NewStreamBarSource()
	for i := 6; i <= 16; i++ {
		end := streamOpen.Add(time.Duration(i) * time.Minute)
		if i%5 == 0 {
			require.NoError(t, live.Append(minuteBar(models.TF5m, end)))
		}
		require.NoError(t, live.Append(minuteBar(models.TF1m, end)))
	}
	require.NoError(t, live.Close())

	s := NewTieredBarSource(history, live)
	// 13:37:30: the 5m bucket in progress started at 13:35.
	s.now = func() time.Time { return streamOpen.Add(7*time.Minute + 30*time.Second) }
	tfs := []models.Timeframe{models.TF5m, models.TF1m}

	got := drainAll(t, s, tfs, streamOpen, streamOpen.Add(15*time.Minute))
	assert.Equal(t, []string{
		// history: buckets starting before 13:35
		"13:31/1m", "13:32/1m", "13:33/1m", "13:34/1m", "13:35/5m", "13:35/1m",
		// live: buckets starting at or after 13:35
		"13:36/1m", "13:37/1m", "13:38/1m", "13:39/1m", "13:40/5m", "13:40/1m",
		"13:41/1m", "13:42/1m", "13:43/1m", "13:44/1m", "13:45/5m", "13:45/1m",
	}, got)

	past := drainAll(t, s, tfs, streamOpen, streamOpen.Add(5*time.Minute))
	assert.Len(t, past, 6, "a window ending before the split reads history only")

	ahead := drainAll(t, s, []models.Timeframe{models.TF1m}, streamOpen.Add(10*time.Minute), streamOpen.Add(12*time.Minute))
	assert.Equal(t, []string{"13:41/1m", "13:42/1m"}, ahead)

	_, err := s.MergedBars(context.Background(), nil, streamOpen, streamOpen)
	assert.Error(t, err)
}
