package service

import (
	"context"

	"Tradeflow/internal/domain/models"
)

// StructureDetector derives swing points, plan zones and daytime extremes.
// It must be a pure function of the state it is given and must not modify it;
// it returns the complete signal set for tf.
type StructureDetector interface {
	Detect(ctx context.Context, state *models.TradingDayState, tf models.Timeframe) (models.SignalSet, error)
}

// Broker executes order operations. Each call takes the order and the bar that
// triggered it and returns the updated order.
type Broker interface {
	PlaceOrder(ctx context.Context, o models.Order, bar models.Bar) (models.Order, error)
	FillOrder(ctx context.Context, o models.Order, bar models.Bar) (models.Order, error)
	// ExitOrder closes a filled order at o.ExitPrice.
	ExitOrder(ctx context.Context, o models.Order, bar models.Bar) (models.Order, error)
	CancelOrder(ctx context.Context, o models.Order, bar models.Bar) (models.Order, error)
	// ResetStop moves the protective stop to o.Stop.
	ResetStop(ctx context.Context, o models.Order, bar models.Bar) (models.Order, error)
}

// Prediction is the oracle's best setup for the current features. Found is
// false when no setup cleared the threshold.
type Prediction struct {
	Found       bool
	Setup       int
	Side        models.Side
	StopTicks   int
	Probability float64
	Confidence  string
}

// Predictor is the external price-prediction model.
type Predictor interface {
	Predict(ctx context.Context, features []float64, threshold float64) (Prediction, error)
}
