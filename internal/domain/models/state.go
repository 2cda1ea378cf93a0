package models

import (
	"errors"
	"fmt"
	"time"
)

var ErrOutOfOrder = errors.New("bar out of order")

// TradingDayState is everything known about one trading day. It is owned by a
// single writer; readers get a Clone.
type TradingDayState struct {
	TradingDate string                  `json:"tradingDate"`
	Bars        map[Timeframe][]Bar     `json:"bars"`
	Signals     map[Timeframe]SignalSet `json:"signals"`
	Trend       []TrendSample           `json:"trend"`
	Orders      []Order                 `json:"orders"`

	trendCapacity int
}

// NewTradingDayState creates an empty state. trendCapacity bounds the rolling trend window.
func NewTradingDayState(date string, trendCapacity int) *TradingDayState {
	if trendCapacity <= 0 {
		trendCapacity = 120
	}
	return &TradingDayState{
		TradingDate:   date,
		Bars:          make(map[Timeframe][]Bar),
		Signals:       make(map[Timeframe]SignalSet),
		trendCapacity: trendCapacity,
	}
}

// AppendBar adds b to its timeframe. Bars must arrive strictly after the last one.
func (s *TradingDayState) AppendBar(b Bar) error {
	if last, ok := s.LatestBar(b.Timeframe); ok && !b.Timestamp.After(last.Timestamp) {
		return fmt.Errorf("%w: %s %s not after %s", ErrOutOfOrder, b.Timeframe,
			b.Timestamp.Format(time.RFC3339), last.Timestamp.Format(time.RFC3339))
	}
	s.Bars[b.Timeframe] = append(s.Bars[b.Timeframe], b)
	return nil
}

func (s *TradingDayState) LatestBar(tf Timeframe) (Bar, bool) {
	bars := s.Bars[tf]
	if len(bars) == 0 {
		return Bar{}, false
	}
	return bars[len(bars)-1], true
}

// Lookback returns up to n bars before the latest one on tf, excluding the latest.
func (s *TradingDayState) Lookback(tf Timeframe, n int) []Bar {
	bars := s.Bars[tf]
	if len(bars) < 2 || n <= 0 {
		return nil
	}
	end := len(bars) - 1
	start := end - n
	if start < 0 {
		start = 0
	}
	return bars[start:end]
}

// PushTrend appends a sample, dropping the oldest once the window is full.
func (s *TradingDayState) PushTrend(sample TrendSample) {
	s.Trend = append(s.Trend, sample)
	if over := len(s.Trend) - s.trendCapacity; over > 0 {
		s.Trend = append(s.Trend[:0:0], s.Trend[over:]...)
	}
}

// ActiveOrder returns the first order that has not reached a terminal status.
func (s *TradingDayState) ActiveOrder() (Order, bool) {
	for _, o := range s.Orders {
		if o.IsOpen() {
			return o, true
		}
	}
	return Order{}, false
}

// Clone deep-copies the state so the result can be handed to readers.
func (s *TradingDayState) Clone() *TradingDayState {
	out := &TradingDayState{
		TradingDate:   s.TradingDate,
		Bars:          make(map[Timeframe][]Bar, len(s.Bars)),
		Signals:       make(map[Timeframe]SignalSet, len(s.Signals)),
		Trend:         append([]TrendSample(nil), s.Trend...),
		Orders:        append([]Order(nil), s.Orders...),
		trendCapacity: s.trendCapacity,
	}
	for tf, bars := range s.Bars {
		out.Bars[tf] = append([]Bar(nil), bars...)
	}
	for tf, set := range s.Signals {
		out.Signals[tf] = set.Clone()
	}
	return out
}

// CheckInvariants verifies every derived sequence is strictly ordered and does
// not run ahead of the bars of its timeframe.
func (s *TradingDayState) CheckInvariants() error {
	for tf, set := range s.Signals {
		last, ok := s.LatestBar(tf)
		if !ok {
			if len(set.Swings)+len(set.Zones)+len(set.Extremes) > 0 {
				return fmt.Errorf("%s: signals without bars", tf)
			}
			continue
		}
		check := func(name string, ts []time.Time) error {
			for i, t := range ts {
				if i > 0 && !t.After(ts[i-1]) {
					return fmt.Errorf("%s %s: timestamps not strictly increasing at %d", tf, name, i)
				}
				if t.After(last.Timestamp) {
					return fmt.Errorf("%s %s: %s after latest bar %s", tf, name,
						t.Format(time.RFC3339), last.Timestamp.Format(time.RFC3339))
				}
			}
			return nil
		}
		swings := make([]time.Time, len(set.Swings))
		for i, p := range set.Swings {
			swings[i] = p.Timestamp
		}
		zones := make([]time.Time, len(set.Zones))
		for i, z := range set.Zones {
			zones[i] = z.Timestamp
		}
		extremes := make([]time.Time, len(set.Extremes))
		for i, e := range set.Extremes {
			extremes[i] = e.Timestamp
		}
		if err := check("swings", swings); err != nil {
			return err
		}
		if err := check("zones", zones); err != nil {
			return err
		}
		if err := check("extremes", extremes); err != nil {
			return err
		}
	}
	return nil
}
