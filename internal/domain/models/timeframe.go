package models

import (
	"errors"
	"fmt"
	"time"
)

var ErrUnknownTimeframe = errors.New("unknown timeframe")

// Timeframe represents bar resolution buckets.
type Timeframe string

const (
	TF1m Timeframe = "1m"
	TF5m Timeframe = "5m"
	TF1h Timeframe = "1h"
	TF1d Timeframe = "1d"
)

// Duration returns the bucket length, or 0 for an unknown timeframe.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TF1m:
		return time.Minute
	case TF5m:
		return 5 * time.Minute
	case TF1h:
		return time.Hour
	case TF1d:
		return 24 * time.Hour
	default:
		return 0
	}
}

// Valid returns true if tf is a supported timeframe.
func (tf Timeframe) Valid() bool {
	return tf.Duration() > 0
}

// ParseTimeframe validates a raw timeframe string.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if !tf.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownTimeframe, s)
	}
	return tf, nil
}

// SortTimeframes orders timeframes coarsest first, so that on a shared bar-end
// timestamp higher-timeframe structure is updated before the trading timeframe.
func SortTimeframes(tfs []Timeframe) []Timeframe {
	out := append([]Timeframe(nil), tfs...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Duration() > out[j-1].Duration(); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
