package execution

import (
	"math"
)

// Model prices fills against available liquidity
type Model interface {
	// Slippage returns the fractional cost applied on top of the fill price
	Slippage(qty, avgVolume float64) float64
	// MarketImpact returns the fill price after the order's own price impact
	MarketImpact(price, qty, avgVolume float64, isBuy bool) float64
}

const (
	defaultSlippage = 0.001
	impactThreshold = 0.10
	impactCoef      = 0.001
	maxImpact       = 0.10
)

// VolumeModel buckets slippage by participation rate and adds linear impact
// above 10% participation.
type VolumeModel struct{}

// NewVolumeModel returns the default participation-based model
func NewVolumeModel() VolumeModel {
	return VolumeModel{}
}

// Participation returns qty/avgVolume, or false when volume is unknown
func Participation(qty, avgVolume float64) (float64, bool) {
	if math.IsNaN(avgVolume) || avgVolume <= 0 {
		return 0, false
	}
	return qty / avgVolume, true
}

func (VolumeModel) Slippage(qty, avgVolume float64) float64 {
	participation, ok := Participation(qty, avgVolume)
	if !ok {
		return defaultSlippage
	}

	switch {
	case participation < 0.01:
		return 0.0002
	case participation < 0.05:
		return 0.0005
	default:
		return 0.001
	}
}

func (VolumeModel) MarketImpact(price, qty, avgVolume float64, isBuy bool) float64 {
	participation, ok := Participation(qty, avgVolume)
	if !ok || participation <= impactThreshold {
		return price
	}

	impact := math.Min((participation-impactThreshold)*impactCoef, maxImpact)
	if isBuy {
		return price * (1 + impact)
	}
	return price * (1 - impact)
}

// Frictionless fills at the quoted price with no slippage
type Frictionless struct{}

func (Frictionless) Slippage(qty, avgVolume float64) float64 { return 0 }

func (Frictionless) MarketImpact(price, qty, avgVolume float64, isBuy bool) float64 { return price }

// AverageVolume keeps a trailing mean of bar volume
type AverageVolume struct {
	window []float64
	next   int
	size   int
}

// NewAverageVolume creates a trailing window of the given length (minimum 1)
func NewAverageVolume(lookback int) *AverageVolume {
	if lookback < 1 {
		lookback = 1
	}
	return &AverageVolume{window: make([]float64, lookback)}
}

// Push adds a bar volume and returns the mean over the filled window
func (a *AverageVolume) Push(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		v = 0
	}
	a.window[a.next] = v
	a.next = (a.next + 1) % len(a.window)
	if a.size < len(a.window) {
		a.size++
	}

	// summed fresh each bar so an all-zero window averages to exactly 0
	var sum float64
	for _, w := range a.window[:a.size] {
		sum += w
	}
	return sum / float64(a.size)
}
