package worker

import (
	"math"
	"testing"
)

func TestCalculateCostKnownModel(t *testing.T) {
	// gpt-4o: 2.50 / 10.00 每百万 token
	got := CalculateCost(1_000_000, 500_000, "gpt-4o")
	want := 2.50 + 5.00
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("cost = %f, want %f", got, want)
	}
}

func TestCalculateCostUnknownModelUsesDefault(t *testing.T) {
	got := CalculateCost(1_000_000, 1_000_000, "some-future-model")
	want := 0.075 + 0.30
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("cost = %f, want %f", got, want)
	}
}

func TestCalculateCostZeroUsage(t *testing.T) {
	if got := CalculateCost(0, 0, "gpt-4o-mini"); got != 0 {
		t.Errorf("expected zero cost, got %f", got)
	}
}
