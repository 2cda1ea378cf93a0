package analytics

import (
	"context"
	"fmt"

	"Tradeflow/internal/domain/models"
	domsvc "Tradeflow/internal/domain/service"
	"Tradeflow/pkg/logger"
)

// Setups are indexed Long_4=0, Short_4=1, Long_5=2, ... up to 100 ticks.
const (
	minStopTicks = 4
	maxStopTicks = 100
	SetupCount   = 2 * (maxStopTicks - minStopTicks + 1)
)

// SetupFromIndex decodes a setup index into its side and stop distance in ticks.
func SetupFromIndex(idx int) (models.Side, int, error) {
	if idx < 0 || idx >= SetupCount {
		return "", 0, fmt.Errorf("setup index %d out of range [0, %d)", idx, SetupCount)
	}
	side := models.Long
	if idx%2 == 1 {
		side = models.Short
	}
	return side, minStopTicks + idx/2, nil
}

// ConfidenceLabel buckets a probability the way the model service does.
func ConfidenceLabel(p *float64) string {
	switch {
	case p == nil:
		return "none"
	case *p < 0.6:
		return "low"
	case *p < 0.8:
		return "medium"
	default:
		return "high"
	}
}

// HTTPPredictor calls the prediction model service's POST /predict.
type HTTPPredictor struct {
	base     *HTTPServiceBase
	attempts int
	logger   *logger.Logger
}

func NewHTTPPredictor(base *HTTPServiceBase, attempts int, l *logger.Logger) *HTTPPredictor {
	return &HTTPPredictor{base: base, attempts: attempts, logger: l}
}

type predictRequest struct {
	Features  []float64 `json:"features"`
	Threshold float64   `json:"threshold"`
}

type predictResponse struct {
	BestSetup       *int     `json:"best_setup"`
	Probability     *float64 `json:"probability"`
	SetupName       *string  `json:"setup_name"`
	Confidence      string   `json:"confidence"`
	InferenceTimeMs float64  `json:"inference_time_ms"`
}

func (p *HTTPPredictor) Predict(ctx context.Context, features []float64, threshold float64) (domsvc.Prediction, error) {
	var resp predictResponse
	err := p.base.PostJSONWithRetry(ctx, "/predict", predictRequest{Features: features, Threshold: threshold}, &resp, p.attempts)
	if err != nil {
		return domsvc.Prediction{}, fmt.Errorf("predict: %w", err)
	}

	out := domsvc.Prediction{Confidence: resp.Confidence}
	if out.Confidence == "" {
		out.Confidence = ConfidenceLabel(resp.Probability)
	}
	if resp.BestSetup == nil || resp.Probability == nil {
		return out, nil
	}

	side, ticks, err := SetupFromIndex(*resp.BestSetup)
	if err != nil {
		return domsvc.Prediction{}, fmt.Errorf("predict: %w", err)
	}
	out.Found = true
	out.Setup = *resp.BestSetup
	out.Side = side
	out.StopTicks = ticks
	out.Probability = *resp.Probability

	p.logger.Debug("prediction",
		logger.Int("setup", out.Setup),
		logger.Float64("probability", out.Probability),
		logger.Float64("inference_ms", resp.InferenceTimeMs),
	)
	return out, nil
}

type healthResponse struct {
	Status string `json:"status"`
}

// Health pings GET /health.
func (p *HTTPPredictor) Health(ctx context.Context) error {
	var h healthResponse
	if err := p.base.GetJSON(ctx, "/health", &h); err != nil {
		return err
	}
	if h.Status != "" && h.Status != "healthy" && h.Status != "ok" {
		return fmt.Errorf("model service status %q", h.Status)
	}
	return nil
}

var _ domsvc.Predictor = (*HTTPPredictor)(nil)
