package risk

import (
	"math"
)

// KellyConfig holds Kelly sizer settings
type KellyConfig struct {
	InitialFraction float64 `json:"initial_fraction"` // returned until enough samples, and the Kelly scale-down factor
	MaxFraction     float64 `json:"max_fraction"`
	MinFraction     float64 `json:"min_fraction"`
	MinSamples      int     `json:"min_samples"`   // required count of wins and of losses
	HistoryLimit    int     `json:"history_limit"` // 0 keeps every trade
}

// DefaultKellyConfig returns the standard fractional-Kelly settings
func DefaultKellyConfig() KellyConfig {
	return KellyConfig{
		InitialFraction: 0.25,
		MaxFraction:     0.50,
		MinFraction:     0.05,
		MinSamples:      5,
	}
}

// KellySizer sizes entries from the realized trade history of one run.
// It is not safe to share between runs.
type KellySizer struct {
	cfg     KellyConfig
	history []float64
	next    int // ring write position once the history is full
}

// NewKellySizer creates a sizer with an empty history
func NewKellySizer(cfg KellyConfig) *KellySizer {
	return &KellySizer{cfg: cfg}
}

// AddTrade records a realized percentage return
func (s *KellySizer) AddTrade(pnlPct float64) {
	if s.cfg.HistoryLimit <= 0 || len(s.history) < s.cfg.HistoryLimit {
		s.history = append(s.history, pnlPct)
		return
	}
	s.history[s.next] = pnlPct
	s.next = (s.next + 1) % s.cfg.HistoryLimit
}

// Trades returns the history oldest first
func (s *KellySizer) Trades() []float64 {
	out := make([]float64, 0, len(s.history))
	out = append(out, s.history[s.next:]...)
	out = append(out, s.history[:s.next]...)
	return out
}

// CalculateKelly returns the capital fraction to risk on the next entry
func (s *KellySizer) CalculateKelly() float64 {
	var wins, losses []float64
	for _, r := range s.history {
		if r > 0 {
			wins = append(wins, r)
		} else {
			losses = append(losses, r)
		}
	}

	if len(wins) < s.cfg.MinSamples || len(losses) < s.cfg.MinSamples {
		return s.cfg.InitialFraction
	}

	p := float64(len(wins)) / float64(len(s.history))
	avgWin := mean(wins)
	avgLoss := 1.0
	if len(losses) > 0 {
		avgLoss = math.Abs(mean(losses))
	}
	if avgLoss == 0 {
		avgLoss = 1.0
	}

	b := avgWin / avgLoss
	kelly := (p*b - (1 - p)) / b
	if kelly <= 0 {
		// No edge, no bet
		return 0
	}

	return clip(kelly*s.cfg.InitialFraction, s.cfg.MinFraction, s.cfg.MaxFraction)
}

// PositionSize returns the cash amount to commit given a model confidence in [0,1]
func (s *KellySizer) PositionSize(capital, confidence float64) float64 {
	return capital * s.CalculateKelly() * confidence
}

// RiskBudgetWeight caps a target weight so that a stop-out loses at most
// riskPerTrade of equity.
func RiskBudgetWeight(targetWeight, riskPerTrade, stopDistance float64) float64 {
	if stopDistance <= 0 {
		return targetWeight
	}
	return math.Min(targetWeight, riskPerTrade/stopDistance)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	var sum float64
	for _, v := range values {
		sum += v
	}

	return sum / float64(len(values))
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
