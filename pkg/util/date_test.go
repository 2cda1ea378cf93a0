package util

import (
	"testing"
	"time"
)

func TestParseClock(t *testing.T) {
	got, ok := ParseClock("12:30")
	if !ok || got != 12*time.Hour+30*time.Minute {
		t.Fatalf("unexpected clock %v %v", got, ok)
	}
	if _, ok := ParseClock("25:00"); ok {
		t.Fatalf("expected failure")
	}
}

func TestParseIntDefault(t *testing.T) {
	if got := ParseIntDefault("9090", 8080); got != 9090 {
		t.Fatalf("unexpected %d", got)
	}
	if got := ParseIntDefault("", 8080); got != 8080 {
		t.Fatalf("expected default, got %d", got)
	}
	if got := ParseIntDefault("x", 8080); got != 8080 {
		t.Fatalf("expected default, got %d", got)
	}
}
