package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"Tradeflow/internal/domain/models"
	domrepo "Tradeflow/internal/domain/repository"
	pkgkafka "Tradeflow/pkg/kafka"
	"Tradeflow/pkg/logger"
)

// BarAppender receives live bars, e.g. the stream bar source.
type BarAppender interface {
	Append(bars ...models.Bar) error
}

// BarStore persists bars for later replays.
type BarStore interface {
	StoreBatch(ctx context.Context, bars []models.Bar) error
}

// BarFeedHandler consumes closed bars from Kafka and feeds the live stream.
type BarFeedHandler struct {
	topic   string
	symbol  string
	stream  BarAppender
	store   BarStore
	metrics domrepo.Metrics
	logger  *logger.Logger
}

// NewBarFeedHandler builds the handler. store may be nil.
func NewBarFeedHandler(topic, symbol string, stream BarAppender, store BarStore, m domrepo.Metrics, l *logger.Logger) *BarFeedHandler {
	return &BarFeedHandler{topic: topic, symbol: symbol, stream: stream, store: store, metrics: m, logger: l}
}

func (h *BarFeedHandler) Topic() string { return h.topic }

// feedBar is the wire shape: {symbol, tf, t, o, h, l, c, v}, t is the bar end
// in epoch seconds or milliseconds.
type feedBar struct {
	Symbol    string  `json:"symbol"`
	Timeframe string  `json:"tf"`
	T         int64   `json:"t"`
	O         float64 `json:"o"`
	H         float64 `json:"h"`
	L         float64 `json:"l"`
	C         float64 `json:"c"`
	V         float64 `json:"v"`
}

func (m feedBar) bar() (models.Bar, error) {
	tf, err := models.ParseTimeframe(m.Timeframe)
	if err != nil {
		return models.Bar{}, err
	}
	ts := time.Unix(m.T, 0)
	if m.T > 1e11 { // ms
		ts = time.UnixMilli(m.T)
	}
	b := models.Bar{Timestamp: ts.UTC(), Timeframe: tf, Open: m.O, High: m.H, Low: m.L, Close: m.C, Volume: m.V}
	return b, b.Validate()
}

func (h *BarFeedHandler) Handle(ctx context.Context, data []byte) error {
	var m feedBar
	if err := json.Unmarshal(data, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("decode bar: %w", err)
	}
	if h.symbol != "" && !strings.EqualFold(m.Symbol, h.symbol) {
		return nil
	}
	b, err := m.bar()
	if err != nil {
		// Bad bars are dropped, not retried.
		h.metrics.RecordError("invalid_bar")
		h.logger.Warn("dropping feed bar",
			logger.String("symbol", m.Symbol),
			logger.String("trace_id", pkgkafka.TraceID(ctx)),
			logger.Error(err))
		return nil
	}
	h.metrics.RecordLatency("feed_lag", time.Since(b.Timestamp).Seconds())

	if err := h.stream.Append(b); err != nil {
		h.metrics.RecordError("feed_append")
		return fmt.Errorf("append bar: %w", err)
	}

	if h.store != nil {
		start := time.Now()
		if err := h.store.StoreBatch(ctx, []models.Bar{b}); err != nil {
			h.metrics.RecordError("bar_store")
			h.logger.Warn("persist bar failed", logger.Time("timestamp", b.Timestamp), logger.Error(err))
		}
		h.metrics.RecordLatency("bar_store", time.Since(start).Seconds())
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*BarFeedHandler)(nil)
