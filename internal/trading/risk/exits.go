package risk

import (
	"math"

	"github.com/Alias1177/Backtester/models"
)

// ExitInputs contains the per-bar data needed for exit evaluation
type ExitInputs struct {
	CurrentPrice float64
	EntryPrice   float64
	PeakPrice    float64
	ATR          float64
	DaysHeld     int
	Regime       models.Regime
	Params       RiskParameters
}

// ExitDecision is the outcome of CheckExit. FillCap is only set for stop-loss
// exits and is the hard stop level the fill is protected at.
type ExitDecision struct {
	Sell    bool
	Reason  models.ExitReason
	Level   float64 // price level that triggered the exit
	FillCap float64
}

// Hold is the zero decision
var Hold = ExitDecision{}

// Manager evaluates exit conditions against an immutable RiskConfig
type Manager struct {
	cfg models.RiskConfig
}

// NewManager creates a risk manager for the given config
func NewManager(cfg models.RiskConfig) *Manager {
	return &Manager{cfg: cfg}
}

// Parameters returns the exit parameters to use for a bar in the given regime
func (m *Manager) Parameters(regime models.Regime) RiskParameters {
	if m.cfg.RegimeAdaptive {
		return ParametersForRegime(regime)
	}
	return RiskParameters{
		StopMult:  m.cfg.StopLossATR,
		TrailMult: m.cfg.TrailingStopATR,
		TPMult:    m.cfg.TakeProfitATR,
	}
}

// EffectiveStop returns the tighter of the ATR stop and the hard percentage stop
func (m *Manager) EffectiveStop(entryPrice, atr float64, params RiskParameters) (effective, hard float64) {
	dynamicStop := entryPrice - atr*params.StopMult
	hard = entryPrice * (1 - m.cfg.MaxStopLossPct)
	return math.Max(dynamicStop, hard), hard
}

// CheckExit applies stop-loss, trailing-stop, take-profit and time-stop rules
// in that order. The first rule that fires wins.
func (m *Manager) CheckExit(in ExitInputs) ExitDecision {
	effectiveStop, hardStop := m.EffectiveStop(in.EntryPrice, in.ATR, in.Params)
	if in.CurrentPrice < effectiveStop {
		return ExitDecision{Sell: true, Reason: models.ExitStopLoss, Level: effectiveStop, FillCap: hardStop}
	}

	if m.cfg.TrailingStopActive && in.CurrentPrice > in.EntryPrice {
		trailStop := in.PeakPrice - in.ATR*in.Params.TrailMult
		if in.CurrentPrice < trailStop {
			return ExitDecision{Sell: true, Reason: models.ExitTrailingStop, Level: trailStop}
		}
	}

	// Take-profit is disabled while the trend is up
	if in.Regime != models.RegimeTrendUp {
		target := in.EntryPrice + in.ATR*in.Params.TPMult
		if in.CurrentPrice >= target {
			return ExitDecision{Sell: true, Reason: models.ExitTakeProfit, Level: target}
		}
	}

	if m.cfg.MaxHoldingPeriods > 0 && in.DaysHeld >= m.cfg.MaxHoldingPeriods {
		return ExitDecision{Sell: true, Reason: models.ExitTimeStop, Level: in.CurrentPrice}
	}

	return Hold
}

// StopDistance returns the fractional distance between close and the stop a
// fresh entry at close would get.
func (m *Manager) StopDistance(close, atr float64, params RiskParameters) float64 {
	if close <= 0 {
		return 0
	}
	stop, _ := m.EffectiveStop(close, atr, params)
	return (close - stop) / close
}
