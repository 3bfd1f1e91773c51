package models

import (
	"math"
	"strings"
	"time"
)

// Regime is the market regime label attached to each bar by the upstream model
type Regime string

const (
	RegimeTrendUp   Regime = "TrendUp"
	RegimeSideways  Regime = "Sideways"
	RegimeCrashBear Regime = "CrashBear"
)

// ParseRegime maps a raw label to a Regime. An empty label means the column
// was missing and defaults to TrendUp; anything unrecognised is kept as-is so
// the risk layer can apply its own fallback.
func ParseRegime(s string) Regime {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return RegimeTrendUp
	case "trendup", "trend_up", "trending_up", "bull":
		return RegimeTrendUp
	case "sideways", "ranging", "range":
		return RegimeSideways
	case "crashbear", "crash_bear", "bear", "crash":
		return RegimeCrashBear
	}
	return Regime(strings.TrimSpace(s))
}

// Bar represents a single enriched price bar
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume,omitempty"`
	ATR    float64   `json:"atr"` // NaN when missing
	Regime Regime    `json:"regime"`
}

// SignalKind tells the engine how to read a signal series
type SignalKind int

const (
	SignalBinary SignalKind = iota + 1
	SignalWeighted
)

func (k SignalKind) String() string {
	switch k {
	case SignalBinary:
		return "binary"
	case SignalWeighted:
		return "weighted"
	default:
		return "unknown"
	}
}

// ParseSignalKind accepts "binary" or "weighted"
func ParseSignalKind(s string) (SignalKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "binary", "flag":
		return SignalBinary, true
	case "weighted", "weight":
		return SignalWeighted, true
	}
	return 0, false
}

// Signals is a per-bar signal series aligned 1:1 with the bar table
type Signals struct {
	Kind   SignalKind
	Values []float64
}

// Enter reports whether a binary signal is "1" at bar i
func (s Signals) Enter(i int) bool {
	return s.Values[i] >= 0.5
}

// Weight returns the target weight at bar i clamped to [0,1]
func (s Signals) Weight(i int) float64 {
	w := s.Values[i]
	if math.IsNaN(w) || w <= 0 {
		return 0
	}
	if w > 1 {
		return 1
	}
	return w
}

// ExitReason is the nullable reason column of the ledger
type ExitReason int

const (
	ExitNone ExitReason = iota
	ExitStopLoss
	ExitTrailingStop
	ExitTakeProfit
	ExitTimeStop
	ExitSignalLost
	ExitRebalance
	ExitCircuitBreaker
)

func (r ExitReason) String() string {
	switch r {
	case ExitNone:
		return ""
	case ExitStopLoss:
		return "stop_loss"
	case ExitTrailingStop:
		return "trailing_stop"
	case ExitTakeProfit:
		return "take_profit"
	case ExitTimeStop:
		return "time_stop"
	case ExitSignalLost:
		return "signal_lost"
	case ExitRebalance:
		return "rebalance"
	case ExitCircuitBreaker:
		return "circuit_breaker"
	default:
		return "unknown"
	}
}

// TradeRecord is emitted on every full position close
type TradeRecord struct {
	EntryTime  time.Time  `json:"entry_time"`
	ExitTime   time.Time  `json:"exit_time"`
	EntryPrice float64    `json:"entry_price"`
	ExitPrice  float64    `json:"exit_price"`
	Quantity   float64    `json:"quantity"`
	PnLPct     float64    `json:"pnl_pct"`
	Reason     ExitReason `json:"reason"`
}

// LedgerRow is the per-bar output of a run. Cash, HoldingsQty and Close are
// carried for invariant checks and are not part of the exported ledger file.
type LedgerRow struct {
	Index         int        `json:"index"`
	Time          time.Time  `json:"time"`
	Position      int        `json:"position"`
	ActualWeight  float64    `json:"actual_weight"`
	TradeExecuted bool       `json:"trade_executed"`
	ExitReason    ExitReason `json:"exit_reason"`
	Equity        float64    `json:"equity"`

	Cash        float64 `json:"-"`
	HoldingsQty float64 `json:"-"`
	Close       float64 `json:"-"`
}

// PortfolioState is the mutable account state of one run
type PortfolioState struct {
	Cash                    float64   `json:"cash"`
	HoldingsQty             float64   `json:"holdings_qty"`
	EntryPrice              float64   `json:"entry_price"`
	EntryTime               time.Time `json:"entry_time"`
	EntryIndex              int       `json:"entry_index"`
	PeakPrice               float64   `json:"peak_price"`
	DaysHeld                int       `json:"days_held"`
	Equity                  float64   `json:"equity"`
	PeakEquity              float64   `json:"peak_equity"`
	CircuitBreakerTriggered bool      `json:"circuit_breaker_triggered"`
}

// Long reports whether the state holds a position
func (p *PortfolioState) Long() bool {
	return p.HoldingsQty > 0
}
