package models

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseRegime(t *testing.T) {
	tests := []struct {
		input    string
		expected Regime
	}{
		{"", RegimeTrendUp},
		{"  ", RegimeTrendUp},
		{"TrendUp", RegimeTrendUp},
		{"bull", RegimeTrendUp},
		{"SIDEWAYS", RegimeSideways},
		{"ranging", RegimeSideways},
		{"crash_bear", RegimeCrashBear},
		{"Volatile", Regime("Volatile")},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseRegime(tt.input))
		})
	}
}

func TestParseSignalKind(t *testing.T) {
	kind, ok := ParseSignalKind(" Weighted ")
	assert.True(t, ok)
	assert.Equal(t, SignalWeighted, kind)
	assert.Equal(t, "weighted", kind.String())

	_, ok = ParseSignalKind("auto")
	assert.False(t, ok)
	assert.Equal(t, "unknown", SignalKind(0).String())
}

func TestSignals(t *testing.T) {
	s := Signals{Kind: SignalWeighted, Values: []float64{-0.2, 0.4, 0.5, 1.7, math.NaN()}}

	assert.Equal(t, []float64{0, 0.4, 0.5, 1, 0}, []float64{s.Weight(0), s.Weight(1), s.Weight(2), s.Weight(3), s.Weight(4)})
	assert.False(t, s.Enter(1))
	assert.True(t, s.Enter(2))
	assert.False(t, s.Enter(4))
}

func TestExitReasonString(t *testing.T) {
	assert.Equal(t, "", ExitNone.String())
	assert.Equal(t, "circuit_breaker", ExitCircuitBreaker.String())
	assert.Equal(t, "rebalance", ExitRebalance.String())
}

func TestHoldingPeriods(t *testing.T) {
	entry := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 3, HoldingPeriods(entry, entry.AddDate(0, 0, 3), 10, 11), "timestamps win over bar count")
	assert.Equal(t, 0, HoldingPeriods(entry, entry.Add(20*time.Hour), 0, 1), "partial days are not counted")
	assert.Equal(t, 4, HoldingPeriods(time.Time{}, time.Time{}, 2, 6))
	assert.Equal(t, 0, HoldingPeriods(entry, entry.AddDate(0, 0, -1), 0, 0))
}

func TestBacktestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultBacktestConfig().Validate())

	tests := []struct {
		name   string
		mutate func(c *BacktestConfig)
	}{
		{"zero capital", func(c *BacktestConfig) { c.InitialCapital = 0 }},
		{"nan capital", func(c *BacktestConfig) { c.InitialCapital = math.NaN() }},
		{"commission", func(c *BacktestConfig) { c.CommissionRate = 1 }},
		{"weight cap", func(c *BacktestConfig) { c.MaxSinglePositionWeight = 1.2 }},
		{"drawdown", func(c *BacktestConfig) { c.MaxDrawdownPct = 0 }},
		{"cash buffer", func(c *BacktestConfig) { c.CashBuffer = -0.1 }},
		{"stop pct", func(c *BacktestConfig) { c.Risk.MaxStopLossPct = 1 }},
		{"multiplier", func(c *BacktestConfig) { c.Risk.TrailingStopATR = -1 }},
		{"time stop", func(c *BacktestConfig) { c.Risk.MaxHoldingPeriods = -2 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultBacktestConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}
