package backtest

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/Alias1177/Backtester/models"
)

// Summary holds headline statistics of a finished run
type Summary struct {
	Symbol             string         `json:"symbol"`
	Bars               int            `json:"bars"`
	InitialCapital     float64        `json:"initial_capital"`
	FinalEquity        float64        `json:"final_equity"`
	TotalReturnPercent float64        `json:"total_return_percent"`
	MaxDrawdown        float64        `json:"max_drawdown"` // percent
	TotalTrades        int            `json:"total_trades"`
	WinningTrades      int            `json:"winning_trades"`
	LosingTrades       int            `json:"losing_trades"`
	WinPercentage      float64        `json:"win_percentage"`
	AverageGainPercent float64        `json:"average_gain_percent"`
	AverageLossPercent float64        `json:"average_loss_percent"`
	ProfitFactor       float64        `json:"profit_factor"`
	SharpeRatio        float64        `json:"sharpe_ratio"`
	Exposure           float64        `json:"exposure"` // share of bars with a position
	Halted             bool           `json:"halted"`
	ExitReasons        map[string]int `json:"exit_reasons"`
}

// Summarize computes performance metrics from a run result
func Summarize(res *Result, initialCapital float64) Summary {
	s := Summary{
		Symbol:         res.Symbol,
		Bars:           len(res.Ledger),
		InitialCapital: initialCapital,
		FinalEquity:    initialCapital,
		Halted:         res.Final.CircuitBreakerTriggered,
		ExitReasons:    make(map[string]int),
	}
	if len(res.Ledger) > 0 {
		s.FinalEquity = res.Ledger[len(res.Ledger)-1].Equity
	}
	if initialCapital > 0 {
		s.TotalReturnPercent = (s.FinalEquity - initialCapital) / initialCapital * 100
	}

	// Drawdown, exposure and bar returns from the equity curve
	peak := initialCapital
	prev := initialCapital
	maxDrawdown := 0.0
	longBars := 0
	returns := make([]float64, 0, len(res.Ledger))
	for _, row := range res.Ledger {
		if row.Equity > peak {
			peak = row.Equity
		}
		if peak > 0 {
			if dd := (peak - row.Equity) / peak; dd > maxDrawdown {
				maxDrawdown = dd
			}
		}
		if prev > 0 {
			returns = append(returns, (row.Equity-prev)/prev)
		}
		prev = row.Equity
		if row.Position == 1 {
			longBars++
		}
		if row.ExitReason != models.ExitNone {
			s.ExitReasons[row.ExitReason.String()]++
		}
	}
	s.MaxDrawdown = maxDrawdown * 100
	if len(res.Ledger) > 0 {
		s.Exposure = float64(longBars) / float64(len(res.Ledger))
	}

	mean := calculateMean(returns)
	if stdDev := calculateStdDev(returns, mean); stdDev > 0 {
		s.SharpeRatio = mean / stdDev * math.Sqrt(252) // Annualized Sharpe
	}

	// Trade statistics
	var totalGain, totalLoss float64
	for _, t := range res.Trades {
		s.TotalTrades++
		if t.PnLPct > 0 {
			s.WinningTrades++
			totalGain += t.PnLPct
		} else {
			s.LosingTrades++
			totalLoss += -t.PnLPct
		}
	}
	if s.TotalTrades > 0 {
		s.WinPercentage = float64(s.WinningTrades) / float64(s.TotalTrades) * 100
	}
	if s.WinningTrades > 0 {
		s.AverageGainPercent = totalGain / float64(s.WinningTrades) * 100
	}
	if s.LosingTrades > 0 {
		s.AverageLossPercent = totalLoss / float64(s.LosingTrades) * 100
	}
	if totalLoss > 0 {
		s.ProfitFactor = totalGain / totalLoss
	} else {
		s.ProfitFactor = totalGain // If no losses
	}

	return s
}

// Helper functions
func calculateMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	var sum float64
	for _, v := range values {
		sum += v
	}

	return sum / float64(len(values))
}

func calculateStdDev(values []float64, mean float64) float64 {
	if len(values) < 2 {
		return 0
	}

	var sumSquaredDiff float64
	for _, v := range values {
		diff := v - mean
		sumSquaredDiff += diff * diff
	}

	return math.Sqrt(sumSquaredDiff / float64(len(values)-1))
}

// FormatSummary creates a human-readable summary of a run
func FormatSummary(s Summary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "\n===== BACKTEST %s =====\n", s.Symbol)
	fmt.Fprintf(&b, "Bars: %d (exposure %.1f%%)\n", s.Bars, s.Exposure*100)
	fmt.Fprintf(&b, "Equity: %.2f -> %.2f (%+.2f%%)\n", s.InitialCapital, s.FinalEquity, s.TotalReturnPercent)
	fmt.Fprintf(&b, "Maximum drawdown: %.2f%%\n", s.MaxDrawdown)
	fmt.Fprintf(&b, "Trades: %d, winning %d (%.2f%%)\n", s.TotalTrades, s.WinningTrades, s.WinPercentage)
	fmt.Fprintf(&b, "Average gain: %.2f%%, average loss: %.2f%%\n", s.AverageGainPercent, s.AverageLossPercent)
	fmt.Fprintf(&b, "Profit factor: %.2f\n", s.ProfitFactor)
	fmt.Fprintf(&b, "Sharpe ratio: %.2f\n", s.SharpeRatio)

	if len(s.ExitReasons) > 0 {
		b.WriteString("\nExits by reason:\n")

		reasons := make([]string, 0, len(s.ExitReasons))
		for reason := range s.ExitReasons {
			reasons = append(reasons, reason)
		}
		sort.Strings(reasons)

		for _, reason := range reasons {
			fmt.Fprintf(&b, "- %s: %d\n", reason, s.ExitReasons[reason])
		}
	}

	if s.Halted {
		b.WriteString("\nCircuit breaker fired: trading halted for the rest of the run\n")
	}

	return b.String()
}
