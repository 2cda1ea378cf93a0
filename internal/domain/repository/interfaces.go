package repository

import (
	"context"
	"errors"
	"time"

	"Tradeflow/internal/domain/models"
)

var ErrNotFound = errors.New("not found")

// BarIterator is a lazy, finite, non-restartable sequence of bars.
// Next returns ok=false once the sequence is exhausted.
type BarIterator interface {
	Next(ctx context.Context) (bar models.Bar, ok bool, err error)
	Close() error
}

// BarSource provides bars of one timeframe whose bucket starts in [from, to),
// ordered by timestamp.
type BarSource interface {
	Bars(ctx context.Context, tf models.Timeframe, from, to time.Time) (BarIterator, error)
}

// MergedBarSource yields bars of several timeframes as one stream ordered by
// timestamp, coarsest timeframe first on ties. Live feeds implement it so a
// slow timeframe does not hold back a fast one.
type MergedBarSource interface {
	MergedBars(ctx context.Context, tfs []models.Timeframe, from, to time.Time) (BarIterator, error)
}

// Publisher delivers events to external consumers. Delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, e models.Event) error
	Close() error
}

// PhaseCache remembers finished phases so a repeated start is a no-op.
type PhaseCache interface {
	Get(ctx context.Context, date string, phase models.Phase) (models.PhaseStatus, error)
	Put(ctx context.Context, status models.PhaseStatus) error
	// Claim guards a (date, phase) run across replicas; release must be called when done.
	Claim(ctx context.Context, date string, phase models.Phase, ttl time.Duration) (release func(), ok bool, err error)
}

// DayArchive stores the final state of a trading day once trading completes.
type DayArchive interface {
	Save(ctx context.Context, state *models.TradingDayState) error
	Load(ctx context.Context, date string) (*models.TradingDayState, error)
}

type Metrics interface {
	RecordEventPublished(eventType string)
	RecordPublishFailure(eventType string)
	RecordError(kind string)
	RecordOrderTransition(from, to string)
	RecordLastPrice(symbol string, price float64)
	SetPipelineDepth(n int)
	RecordLatency(op string, seconds float64)
}
