package models

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidBar = errors.New("invalid bar")

// Bar is one OHLCV candle. Timestamp marks the end of the bucket.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Timeframe Timeframe `json:"timeframe"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Validate enforces non-negative prices and low <= {open, close} <= high.
func (b Bar) Validate() error {
	switch {
	case b.Open < 0 || b.High < 0 || b.Low < 0 || b.Close < 0 || b.Volume < 0:
		return fmt.Errorf("%w: negative value at %s", ErrInvalidBar, b.Timestamp.Format(time.RFC3339))
	case b.Low > b.Open || b.Low > b.Close:
		return fmt.Errorf("%w: low %.4f above body at %s", ErrInvalidBar, b.Low, b.Timestamp.Format(time.RFC3339))
	case b.High < b.Open || b.High < b.Close:
		return fmt.Errorf("%w: high %.4f below body at %s", ErrInvalidBar, b.High, b.Timestamp.Format(time.RFC3339))
	}
	return nil
}

// Start is the beginning of the bucket the bar covers.
func (b Bar) Start() time.Time {
	return b.Timestamp.Add(-b.Timeframe.Duration())
}

func (b Bar) IsBullish() bool { return b.Close > b.Open }
func (b Bar) IsBearish() bool { return b.Close < b.Open }
func (b Bar) IsDoji() bool    { return b.Close == b.Open }
