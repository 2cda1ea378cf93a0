package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Tradeflow/internal/domain/models"
)

var streamOpen = time.Date(2024, 3, 14, 13, 30, 0, 0, time.UTC)

func minuteBar(tf models.Timeframe, end time.Time) models.Bar {
	return models.Bar{Timeframe: tf, Timestamp: end, Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 1}
}

func TestStreamBarSourceBlocksUntilBarsArrive(t *testing.T) {
	s := NewStreamBarSource()
	it, err := s.MergedBars(context.Background(), []models.Timeframe{models.TF5m, models.TF1m}, streamOpen, streamOpen.Add(5*time.Minute))
	require.NoError(t, err)
	defer it.Close()

	got := make(chan models.Bar, 16)
	errc := make(chan error, 1)
	go func() {
		for {
			b, ok, err := it.Next(context.Background())
			if err != nil || !ok {
				errc <- err
				close(got)
				return
			}
			got <- b
		}
	}()

	require.NoError(t, s.Append(minuteBar(models.TF1m, streamOpen.Add(time.Minute))))
	select {
	case b := <-got:
		assert.Equal(t, streamOpen.Add(time.Minute), b.Timestamp)
	case <-time.After(2 * time.Second):
		t.Fatal("reader did not wake up")
	}

	for i := 2; i <= 5; i++ {
		require.NoError(t, s.Append(minuteBar(models.TF1m, streamOpen.Add(time.Duration(i)*time.Minute))))
	}
	require.NoError(t, s.Append(
		minuteBar(models.TF5m, streamOpen.Add(5*time.Minute)),
		minuteBar(models.TF1h, streamOpen.Add(time.Hour)),
		minuteBar(models.TF1m, streamOpen.Add(6*time.Minute)),
	))

	var rest []models.Bar
	for b := range got {
		rest = append(rest, b)
	}
	require.NoError(t, <-errc)
	require.Len(t, rest, 5, "four 1m bars and one 5m bar; the 1h bar is not wanted")
	assert.Equal(t, models.TF5m, rest[4].Timeframe)
}

func TestStreamBarSourceCancelAndClose(t *testing.T) {
	s := NewStreamBarSource()
	it, err := s.Bars(context.Background(), models.TF1m, streamOpen, streamOpen.Add(time.Hour))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, err = it.Next(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	require.NoError(t, s.Append(minuteBar(models.TF1m, streamOpen.Add(time.Minute))))
	require.NoError(t, s.Close())

	b, ok, err := it.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok, "buffered bars are drained after close")
	assert.Equal(t, streamOpen.Add(time.Minute), b.Timestamp)

	_, ok, err = it.Next(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, s.Append(minuteBar(models.TF1m, streamOpen.Add(2*time.Minute))), ErrStreamClosed)
}

func TestStreamBarSourceRetention(t *testing.T) {
	s := NewStreamBarSource(WithRetention(3))
	for i := 1; i <= 5; i++ {
		require.NoError(t, s.Append(minuteBar(models.TF1m, streamOpen.Add(time.Duration(i)*time.Minute))))
	}
	require.NoError(t, s.Close())

	it, err := s.Bars(context.Background(), models.TF1m, streamOpen, streamOpen.Add(time.Hour))
	require.NoError(t, err)
	var ends []time.Time
	for {
		b, ok, err := it.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		ends = append(ends, b.Timestamp)
	}
	require.Len(t, ends, 3)
	assert.Equal(t, streamOpen.Add(3*time.Minute), ends[0])

	assert.Error(t, NewStreamBarSource().Append(models.Bar{Timeframe: "7m"}))
}
