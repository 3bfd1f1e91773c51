package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKellyInsufficientSample(t *testing.T) {
	s := NewKellySizer(DefaultKellyConfig())
	assert.Equal(t, 0.25, s.CalculateKelly())

	for i := 0; i < 10; i++ {
		s.AddTrade(0.03)
	}
	for i := 0; i < 4; i++ {
		s.AddTrade(-0.02)
	}
	// four losses do not meet the five-loss minimum
	assert.Equal(t, 0.25, s.CalculateKelly())
}

func TestKellyMinimumSampleMet(t *testing.T) {
	s := NewKellySizer(DefaultKellyConfig())
	for i := 0; i < 5; i++ {
		s.AddTrade(0.03)
		s.AddTrade(-0.02)
	}

	k := s.CalculateKelly()
	// p=0.5, b=1.5, kelly=1/6, scaled by 0.25 and raised to the 0.05 floor
	assert.GreaterOrEqual(t, k, 0.05)
	assert.LessOrEqual(t, k, 0.50)
	assert.InDelta(t, 0.05, k, 1e-12)
}

func TestKellyCappedAtMax(t *testing.T) {
	cfg := DefaultKellyConfig()
	cfg.InitialFraction = 1.0
	s := NewKellySizer(cfg)
	for i := 0; i < 9; i++ {
		s.AddTrade(0.10)
	}
	for i := 0; i < 5; i++ {
		s.AddTrade(-0.01)
	}

	assert.Equal(t, 0.50, s.CalculateKelly())
}

func TestKellyNoEdge(t *testing.T) {
	s := NewKellySizer(DefaultKellyConfig())
	for i := 0; i < 5; i++ {
		s.AddTrade(0.01)
	}
	for i := 0; i < 10; i++ {
		s.AddTrade(-0.03)
	}

	assert.Equal(t, 0.0, s.CalculateKelly())
	assert.Equal(t, 0.0, s.PositionSize(10000, 1))
}

func TestKellyZeroReturnCountsAsLoss(t *testing.T) {
	s := NewKellySizer(DefaultKellyConfig())
	for i := 0; i < 5; i++ {
		s.AddTrade(0.02)
		s.AddTrade(0)
	}
	// all losses are zero, so the average-loss guard of 1.0 applies
	// b=0.02, kelly=(0.01-0.5)/0.02 < 0
	assert.Equal(t, 0.0, s.CalculateKelly())
}

func TestPositionSize(t *testing.T) {
	s := NewKellySizer(DefaultKellyConfig())
	assert.InDelta(t, 10000*0.25*0.8, s.PositionSize(10000, 0.8), 1e-9)
}

func TestKellyHistoryLimit(t *testing.T) {
	cfg := DefaultKellyConfig()
	cfg.HistoryLimit = 3
	s := NewKellySizer(cfg)

	for _, r := range []float64{0.1, 0.2, 0.3, 0.4, 0.5} {
		s.AddTrade(r)
	}

	trades := s.Trades()
	require.Len(t, trades, 3)
	assert.Equal(t, []float64{0.3, 0.4, 0.5}, trades)
}

func TestTradesUnbounded(t *testing.T) {
	s := NewKellySizer(DefaultKellyConfig())
	for i := 0; i < 250; i++ {
		s.AddTrade(float64(i))
	}
	trades := s.Trades()
	require.Len(t, trades, 250)
	assert.Equal(t, 0.0, trades[0])
	assert.Equal(t, 249.0, trades[249])
}

func TestRiskBudgetWeight(t *testing.T) {
	assert.InDelta(t, 0.5, RiskBudgetWeight(0.8, 0.02, 0.04), 1e-12)
	assert.InDelta(t, 0.3, RiskBudgetWeight(0.3, 0.02, 0.04), 1e-12)
	assert.Equal(t, 0.8, RiskBudgetWeight(0.8, 0.02, 0))
}
