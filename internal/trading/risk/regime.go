package risk

import (
	"math"

	"github.com/Alias1177/Backtester/models"
)

// RiskParameters holds ATR multiples for the three exit levels
type RiskParameters struct {
	StopMult  float64 `json:"stop_mult"`
	TrailMult float64 `json:"trail_mult"`
	TPMult    float64 `json:"tp_mult"`
}

var regimeTable = map[models.Regime]RiskParameters{
	// Tight stops, quick profit taking
	models.RegimeCrashBear: {StopMult: 1.5, TrailMult: 1.5, TPMult: 5.0},
	models.RegimeSideways:  {StopMult: 2.0, TrailMult: 2.5, TPMult: 3.0},
	// Let winners run: take-profit is never reached
	models.RegimeTrendUp: {StopMult: 3.0, TrailMult: 3.5, TPMult: math.Inf(1)},
}

// ParametersForRegime maps a regime label to its exit parameters.
// Unknown regimes get the Sideways set.
func ParametersForRegime(regime models.Regime) RiskParameters {
	if p, ok := regimeTable[regime]; ok {
		return p
	}
	return regimeTable[models.RegimeSideways]
}

// ATROrFallback substitutes 3% of close when ATR is missing. A zero ATR is a
// real reading and is kept.
func ATROrFallback(atr, close float64) float64 {
	if math.IsNaN(atr) || math.IsInf(atr, 0) || atr < 0 {
		return close * 0.03
	}
	return atr
}
