package risk

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Alias1177/Backtester/models"
)

func TestParametersForRegime(t *testing.T) {
	tests := []struct {
		name     string
		regime   models.Regime
		expected RiskParameters
	}{
		{"crash bear is tight", models.RegimeCrashBear, RiskParameters{1.5, 1.5, 5.0}},
		{"sideways is medium", models.RegimeSideways, RiskParameters{2.0, 2.5, 3.0}},
		{"unknown falls back to sideways", models.Regime("Volatile"), RiskParameters{2.0, 2.5, 3.0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParametersForRegime(tt.regime))
		})
	}

	up := ParametersForRegime(models.RegimeTrendUp)
	assert.Equal(t, 3.0, up.StopMult)
	assert.Equal(t, 3.5, up.TrailMult)
	assert.True(t, math.IsInf(up.TPMult, 1))
}

func TestManagerParametersFixed(t *testing.T) {
	cfg := models.DefaultRiskConfig()
	cfg.RegimeAdaptive = false
	cfg.StopLossATR = 4
	cfg.TrailingStopATR = 5
	cfg.TakeProfitATR = 6

	m := NewManager(cfg)
	assert.Equal(t, RiskParameters{4, 5, 6}, m.Parameters(models.RegimeCrashBear))
	assert.Equal(t, RiskParameters{4, 5, 6}, m.Parameters(models.RegimeTrendUp))
}

func TestATROrFallback(t *testing.T) {
	assert.Equal(t, 2.5, ATROrFallback(2.5, 100))
	assert.InDelta(t, 3.0, ATROrFallback(math.NaN(), 100), 1e-12)
	assert.InDelta(t, 1.5, ATROrFallback(math.Inf(1), 50), 1e-12)
	assert.Equal(t, 0.0, ATROrFallback(0, 50))
}

func TestCheckExit(t *testing.T) {
	cfg := models.DefaultRiskConfig()
	m := NewManager(cfg)
	sideways := ParametersForRegime(models.RegimeSideways)
	trendUp := ParametersForRegime(models.RegimeTrendUp)

	tests := []struct {
		name   string
		in     ExitInputs
		reason models.ExitReason
	}{
		{
			name:   "hold inside the band",
			in:     ExitInputs{CurrentPrice: 101, EntryPrice: 100, PeakPrice: 101, ATR: 2, Regime: models.RegimeSideways, Params: sideways},
			reason: models.ExitNone,
		},
		{
			name:   "atr stop",
			in:     ExitInputs{CurrentPrice: 95.9, EntryPrice: 100, PeakPrice: 100, ATR: 2, Regime: models.RegimeSideways, Params: sideways},
			reason: models.ExitStopLoss,
		},
		{
			// ATR stop at 70 is looser than the 10% hard stop at 90
			name:   "hard stop bounds a wide atr stop",
			in:     ExitInputs{CurrentPrice: 89, EntryPrice: 100, PeakPrice: 100, ATR: 10, Regime: models.RegimeTrendUp, Params: trendUp},
			reason: models.ExitStopLoss,
		},
		{
			name:   "trailing stop after a run-up",
			in:     ExitInputs{CurrentPrice: 104, EntryPrice: 100, PeakPrice: 110, ATR: 2, Regime: models.RegimeSideways, Params: sideways},
			reason: models.ExitTrailingStop,
		},
		{
			name:   "take profit in sideways regime",
			in:     ExitInputs{CurrentPrice: 106, EntryPrice: 100, PeakPrice: 106, ATR: 2, Regime: models.RegimeSideways, Params: sideways},
			reason: models.ExitTakeProfit,
		},
		{
			name:   "no take profit in trend up even with sideways multiples",
			in:     ExitInputs{CurrentPrice: 120, EntryPrice: 100, PeakPrice: 120, ATR: 2, Regime: models.RegimeTrendUp, Params: sideways},
			reason: models.ExitNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := m.CheckExit(tt.in)
			assert.Equal(t, tt.reason, d.Reason)
			assert.Equal(t, tt.reason != models.ExitNone, d.Sell)
		})
	}
}

func TestCheckExitStopCarriesHardStop(t *testing.T) {
	m := NewManager(models.DefaultRiskConfig())
	d := m.CheckExit(ExitInputs{CurrentPrice: 80, EntryPrice: 100, PeakPrice: 100, ATR: 10,
		Regime: models.RegimeTrendUp, Params: ParametersForRegime(models.RegimeTrendUp)})

	assert.True(t, d.Sell)
	assert.Equal(t, models.ExitStopLoss, d.Reason)
	assert.InDelta(t, 90.0, d.FillCap, 1e-9)
	assert.InDelta(t, 90.0, d.Level, 1e-9)
}

func TestCheckExitTrailingDisabled(t *testing.T) {
	cfg := models.DefaultRiskConfig()
	cfg.TrailingStopActive = false
	m := NewManager(cfg)

	d := m.CheckExit(ExitInputs{CurrentPrice: 104, EntryPrice: 100, PeakPrice: 110, ATR: 2,
		Regime: models.RegimeTrendUp, Params: ParametersForRegime(models.RegimeTrendUp)})
	assert.False(t, d.Sell)
}

func TestCheckExitTimeStop(t *testing.T) {
	cfg := models.DefaultRiskConfig()
	cfg.MaxHoldingPeriods = 10
	m := NewManager(cfg)
	in := ExitInputs{CurrentPrice: 100, EntryPrice: 100, PeakPrice: 100, ATR: 2,
		Regime: models.RegimeTrendUp, Params: ParametersForRegime(models.RegimeTrendUp)}

	in.DaysHeld = 9
	assert.False(t, m.CheckExit(in).Sell)

	in.DaysHeld = 10
	d := m.CheckExit(in)
	assert.True(t, d.Sell)
	assert.Equal(t, models.ExitTimeStop, d.Reason)
}

func TestStopDistance(t *testing.T) {
	m := NewManager(models.DefaultRiskConfig())
	// ATR stop at 96, hard stop at 90: the ATR stop is tighter
	assert.InDelta(t, 0.04, m.StopDistance(100, 2, ParametersForRegime(models.RegimeSideways)), 1e-12)
	// ATR stop at 70, hard stop wins
	assert.InDelta(t, 0.10, m.StopDistance(100, 10, ParametersForRegime(models.RegimeTrendUp)), 1e-12)
	assert.Equal(t, 0.0, m.StopDistance(0, 1, ParametersForRegime(models.RegimeTrendUp)))
}
