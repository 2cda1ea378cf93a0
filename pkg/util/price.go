package util

import "github.com/shopspring/decimal"

// RoundToTick snaps price to the nearest multiple of tick.
func RoundToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	t := decimal.NewFromFloat(tick)
	v := decimal.NewFromFloat(price).Div(t).Round(0).Mul(t)
	f, _ := v.Float64()
	return f
}

// FloorToTick snaps price down to a multiple of tick.
func FloorToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	t := decimal.NewFromFloat(tick)
	f, _ := decimal.NewFromFloat(price).Div(t).Floor().Mul(t).Float64()
	return f
}

// CeilToTick snaps price up to a multiple of tick.
func CeilToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	t := decimal.NewFromFloat(tick)
	f, _ := decimal.NewFromFloat(price).Div(t).Ceil().Mul(t).Float64()
	return f
}

// Money multiplies points by contracts and point value without float drift.
func Money(points float64, contracts int, pointValue float64) float64 {
	f, _ := decimal.NewFromFloat(points).
		Mul(decimal.NewFromInt(int64(contracts))).
		Mul(decimal.NewFromFloat(pointValue)).
		Round(2).
		Float64()
	return f
}
