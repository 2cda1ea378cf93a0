package util

import "testing"

func TestRoundToTick(t *testing.T) {
	cases := []struct {
		price, tick, want float64
	}{
		{4500.13, 0.25, 4500.25},
		{4500.12, 0.25, 4500.0},
		{4500.10, 0, 4500.10},
		{101.3, 0.5, 101.5},
	}
	for _, tc := range cases {
		if got := RoundToTick(tc.price, tc.tick); got != tc.want {
			t.Fatalf("RoundToTick(%v, %v) = %v, want %v", tc.price, tc.tick, got, tc.want)
		}
	}
}

func TestFloorCeilToTick(t *testing.T) {
	if got := FloorToTick(4500.24, 0.25); got != 4500.0 {
		t.Fatalf("floor = %v", got)
	}
	if got := CeilToTick(4500.01, 0.25); got != 4500.25 {
		t.Fatalf("ceil = %v", got)
	}
}

func TestMoney(t *testing.T) {
	if got := Money(2.25, 3, 50); got != 337.5 {
		t.Fatalf("money = %v", got)
	}
	if got := Money(-0.1, 3, 12.5); got != -3.75 {
		t.Fatalf("money = %v", got)
	}
}
