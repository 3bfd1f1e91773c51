package models

import (
	"errors"
	"fmt"
)

// RiskConfig holds the exit-rule parameters. It is built once and passed by
// value; nothing mutates it during a run.
type RiskConfig struct {
	StopLossATR        float64 `yaml:"atrStopLossMultiplier"`
	TakeProfitATR      float64 `yaml:"atrTakeProfitMultiplier"`
	TrailingStopATR    float64 `yaml:"atrTrailingStopMultiplier"`
	MaxStopLossPct     float64 `yaml:"maxStopLossPct"`
	TrailingStopActive bool    `yaml:"trailingStopActive"`
	RegimeAdaptive     bool    `yaml:"regimeAdaptive"`    // use the per-regime table instead of the fixed multipliers
	MaxHoldingPeriods  int     `yaml:"maxHoldingPeriods"` // time stop, 0 disables
}

// BacktestConfig holds everything a single-instrument run needs
type BacktestConfig struct {
	InitialCapital          float64    `yaml:"initialCapital"`
	CommissionRate          float64    `yaml:"commissionRate"`
	MinHoldingPeriods       int        `yaml:"minHoldingPeriods"`
	RiskPerTrade            float64    `yaml:"riskPerTrade"`
	MaxSinglePositionWeight float64    `yaml:"maxSinglePositionWeight"`
	EnableRiskSizing        bool       `yaml:"enableRiskSizing"`
	EnableKellySizing       bool       `yaml:"enableKellySizing"`
	KellyHistoryLimit       int        `yaml:"kellyHistoryLimit"` // 0 keeps the full history
	MaxDrawdownPct          float64    `yaml:"maxDrawdownPct"`    // circuit breaker threshold
	RebalanceThreshold      float64    `yaml:"rebalanceThreshold"`
	CashBuffer              float64    `yaml:"cashBuffer"` // binary-mode entries keep this share of cash back
	VolumeLookback          int        `yaml:"volumeLookback"`
	Risk                    RiskConfig `yaml:"risk"`
}

// DefaultRiskConfig returns the Sideways multipliers as fixed fallbacks
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		StopLossATR:        2.0,
		TakeProfitATR:      3.0,
		TrailingStopATR:    2.5,
		MaxStopLossPct:     0.10,
		TrailingStopActive: true,
		RegimeAdaptive:     true,
	}
}

// DefaultBacktestConfig returns the stock simulation settings
func DefaultBacktestConfig() BacktestConfig {
	return BacktestConfig{
		InitialCapital:          100000,
		CommissionRate:          0.002,
		MinHoldingPeriods:       3,
		RiskPerTrade:            0.02,
		MaxSinglePositionWeight: 0.95,
		MaxDrawdownPct:          0.30,
		RebalanceThreshold:      0.10,
		CashBuffer:              0.01,
		VolumeLookback:          20,
		Risk:                    DefaultRiskConfig(),
	}
}

// ErrInvalidConfig is returned for configuration that cannot drive a run
var ErrInvalidConfig = errors.New("invalid backtest config")

// Validate checks the ranges a run depends on
func (c BacktestConfig) Validate() error {
	switch {
	case !(c.InitialCapital > 0):
		return fmt.Errorf("%w: initial capital must be positive, got %v", ErrInvalidConfig, c.InitialCapital)
	case c.CommissionRate < 0 || c.CommissionRate >= 1:
		return fmt.Errorf("%w: commission rate %v outside [0,1)", ErrInvalidConfig, c.CommissionRate)
	case c.MinHoldingPeriods < 0:
		return fmt.Errorf("%w: min holding periods must not be negative", ErrInvalidConfig)
	case c.RiskPerTrade < 0:
		return fmt.Errorf("%w: risk per trade must not be negative", ErrInvalidConfig)
	case c.MaxSinglePositionWeight <= 0 || c.MaxSinglePositionWeight > 1:
		return fmt.Errorf("%w: max single position weight %v outside (0,1]", ErrInvalidConfig, c.MaxSinglePositionWeight)
	case c.MaxDrawdownPct <= 0 || c.MaxDrawdownPct > 1:
		return fmt.Errorf("%w: max drawdown %v outside (0,1]", ErrInvalidConfig, c.MaxDrawdownPct)
	case c.RebalanceThreshold < 0:
		return fmt.Errorf("%w: rebalance threshold must not be negative", ErrInvalidConfig)
	case c.CashBuffer < 0 || c.CashBuffer >= 1:
		return fmt.Errorf("%w: cash buffer %v outside [0,1)", ErrInvalidConfig, c.CashBuffer)
	case c.KellyHistoryLimit < 0:
		return fmt.Errorf("%w: kelly history limit must not be negative", ErrInvalidConfig)
	case c.Risk.MaxStopLossPct <= 0 || c.Risk.MaxStopLossPct >= 1:
		return fmt.Errorf("%w: max stop loss %v outside (0,1)", ErrInvalidConfig, c.Risk.MaxStopLossPct)
	case c.Risk.StopLossATR < 0 || c.Risk.TrailingStopATR < 0 || c.Risk.TakeProfitATR < 0:
		return fmt.Errorf("%w: ATR multipliers must not be negative", ErrInvalidConfig)
	case c.Risk.MaxHoldingPeriods < 0:
		return fmt.Errorf("%w: max holding periods must not be negative", ErrInvalidConfig)
	}
	return nil
}
