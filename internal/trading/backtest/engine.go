package backtest

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/Alias1177/Backtester/internal/trading/execution"
	"github.com/Alias1177/Backtester/internal/trading/risk"
	"github.com/Alias1177/Backtester/models"
)

var (
	ErrLengthMismatch    = errors.New("signal series length does not match bars")
	ErrInvalidBar        = errors.New("bar is missing a required price")
	ErrUnknownSignalKind = errors.New("unknown signal kind")
)

const (
	// a weight decrease below this share of the current quantity closes the position
	fullExitFraction = 0.10
	qtyEpsilon       = 1e-9
)

// Engine runs single-instrument simulations. It holds only immutable
// configuration; every Run gets its own portfolio state and Kelly sizer.
type Engine struct {
	config models.BacktestConfig
	risk   *risk.Manager
	exec   execution.Model
	logger zerolog.Logger
}

// Option customises an Engine
type Option func(*Engine)

// WithExecutionModel replaces the default volume-based fill model
func WithExecutionModel(m execution.Model) Option {
	return func(e *Engine) {
		e.exec = m
	}
}

// WithLogger sets the engine logger
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = l.With().Str("component", "backtest").Logger()
	}
}

// NewEngine creates a new backtesting engine
func NewEngine(cfg models.BacktestConfig, opts ...Option) *Engine {
	e := &Engine{
		config: cfg,
		risk:   risk.NewManager(cfg.Risk),
		exec:   execution.NewVolumeModel(),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Result is everything a run produces
type Result struct {
	Symbol        string                `json:"symbol"`
	Kind          models.SignalKind     `json:"kind"`
	Ledger        []models.LedgerRow    `json:"ledger"`
	Trades        []models.TradeRecord  `json:"trades"`
	Final         models.PortfolioState `json:"final"`
	KellyFraction float64               `json:"kelly_fraction"`
}

// Run simulates one instrument bar by bar. Bars must be in chronological
// order. Only precondition violations return an error.
func (e *Engine) Run(symbol string, bars []models.Bar, signals models.Signals) (*Result, error) {
	if err := e.config.Validate(); err != nil {
		return nil, err
	}
	if signals.Kind != models.SignalBinary && signals.Kind != models.SignalWeighted {
		return nil, fmt.Errorf("%w: %d", ErrUnknownSignalKind, signals.Kind)
	}
	if len(signals.Values) != len(bars) {
		return nil, fmt.Errorf("%w: %d signals for %d bars", ErrLengthMismatch, len(signals.Values), len(bars))
	}
	for i, b := range bars {
		if err := validateBar(b); err != nil {
			return nil, fmt.Errorf("bar %d: %w", i, err)
		}
	}

	kelly := risk.DefaultKellyConfig()
	kelly.HistoryLimit = e.config.KellyHistoryLimit

	r := &run{
		e:       e,
		symbol:  symbol,
		signals: signals,
		sizer:   risk.NewKellySizer(kelly),
		volume:  execution.NewAverageVolume(e.config.VolumeLookback),
		ledger:  make([]models.LedgerRow, 0, len(bars)),
		state: models.PortfolioState{
			Cash:       e.config.InitialCapital,
			Equity:     e.config.InitialCapital,
			PeakEquity: e.config.InitialCapital,
		},
	}

	for i, bar := range bars {
		r.step(i, bar)
	}

	e.logger.Info().
		Str("symbol", symbol).
		Str("mode", signals.Kind.String()).
		Int("bars", len(bars)).
		Int("trades", len(r.trades)).
		Float64("final_equity", r.state.Equity).
		Bool("halted", r.state.CircuitBreakerTriggered).
		Msg("Backtest finished")

	return &Result{
		Symbol:        symbol,
		Kind:          signals.Kind,
		Ledger:        r.ledger,
		Trades:        r.trades,
		Final:         r.state,
		KellyFraction: r.sizer.CalculateKelly(),
	}, nil
}

func validateBar(b models.Bar) error {
	for _, field := range []struct {
		name  string
		value float64
	}{{"open", b.Open}, {"high", b.High}, {"low", b.Low}, {"close", b.Close}} {
		if math.IsNaN(field.value) || math.IsInf(field.value, 0) || field.value <= 0 {
			return fmt.Errorf("%w: %s=%v", ErrInvalidBar, field.name, field.value)
		}
	}
	return nil
}

// run is the mutable state of a single simulation
type run struct {
	e       *Engine
	symbol  string
	signals models.Signals
	state   models.PortfolioState
	sizer   *risk.KellySizer
	volume  *execution.AverageVolume
	ledger  []models.LedgerRow
	trades  []models.TradeRecord
}

func (r *run) step(i int, bar models.Bar) {
	st := &r.state
	cfg := r.e.config
	avgVolume := r.volume.Push(bar.Volume)

	if st.CircuitBreakerTriggered {
		r.record(i, bar, false, models.ExitNone)
		return
	}

	r.revalue(bar.Close)
	if st.Equity > st.PeakEquity {
		st.PeakEquity = st.Equity
	}
	drawdown := 0.0
	if st.PeakEquity > 0 {
		drawdown = (st.Equity - st.PeakEquity) / st.PeakEquity
	}

	// The breaker overrides everything else and never resets
	if drawdown < -cfg.MaxDrawdownPct {
		traded := r.liquidate(i, bar)
		st.CircuitBreakerTriggered = true
		r.e.logger.Warn().
			Str("symbol", r.symbol).
			Int("bar", i).
			Float64("drawdown", drawdown).
			Float64("cash", st.Cash).
			Msg("Circuit breaker triggered, trading halted")
		r.record(i, bar, traded, models.ExitCircuitBreaker)
		return
	}

	params := r.e.risk.Parameters(bar.Regime)
	atr := risk.ATROrFallback(bar.ATR, bar.Close)

	exit := risk.Hold
	if st.Long() {
		st.DaysHeld = models.HoldingPeriods(st.EntryTime, bar.Time, st.EntryIndex, i)
		st.PeakPrice = math.Max(st.PeakPrice, bar.High)
		exit = r.e.risk.CheckExit(risk.ExitInputs{
			CurrentPrice: bar.Close,
			EntryPrice:   st.EntryPrice,
			PeakPrice:    st.PeakPrice,
			ATR:          atr,
			DaysHeld:     st.DaysHeld,
			Regime:       bar.Regime,
			Params:       params,
		})
	}

	var (
		traded bool
		reason models.ExitReason
	)
	switch {
	case exit.Sell:
		price := bar.Close
		if exit.Reason == models.ExitStopLoss {
			// protective stop never fills below the hard stop level
			price = math.Max(price, exit.FillCap)
		}
		traded = r.sell(i, bar, st.HoldingsQty, price, avgVolume, exit.Reason)
		reason = exit.Reason
	case r.signals.Kind == models.SignalBinary:
		traded, reason = r.binaryDecision(i, bar, avgVolume)
	default:
		traded, reason = r.weightedDecision(i, bar, atr, params, avgVolume)
	}

	r.revalue(bar.Close)
	r.record(i, bar, traded, reason)
}

func (r *run) binaryDecision(i int, bar models.Bar, avgVolume float64) (bool, models.ExitReason) {
	st := &r.state
	cfg := r.e.config
	enter := r.signals.Enter(i)

	switch {
	case enter && !st.Long():
		return r.buyWithCash(i, bar, st.Cash*(1-cfg.CashBuffer), avgVolume), models.ExitNone
	case !enter && st.Long() && st.DaysHeld >= cfg.MinHoldingPeriods:
		return r.sell(i, bar, st.HoldingsQty, bar.Close, avgVolume, models.ExitSignalLost), models.ExitSignalLost
	}
	return false, models.ExitNone
}

func (r *run) weightedDecision(i int, bar models.Bar, atr float64, params risk.RiskParameters, avgVolume float64) (bool, models.ExitReason) {
	st := &r.state
	cfg := r.e.config

	weight := r.signals.Weight(i)
	switch {
	case cfg.EnableRiskSizing:
		weight = risk.RiskBudgetWeight(weight, cfg.RiskPerTrade, r.e.risk.StopDistance(bar.Close, atr, params))
	case cfg.EnableKellySizing:
		if st.Equity > 0 {
			weight = r.sizer.PositionSize(st.Equity, weight) / st.Equity
		}
	}
	weight = math.Max(0, math.Min(weight, cfg.MaxSinglePositionWeight))

	targetQty := st.Equity * weight / bar.Close
	delta := targetQty - st.HoldingsQty

	// ignore weight wobble below the rebalance threshold
	if math.Abs(delta)/math.Max(st.HoldingsQty, qtyEpsilon) <= cfg.RebalanceThreshold {
		return false, models.ExitNone
	}

	if delta > 0 {
		return r.buyQty(i, bar, delta, avgVolume), models.ExitNone
	}

	if st.DaysHeld < cfg.MinHoldingPeriods {
		return false, models.ExitNone
	}
	if targetQty < fullExitFraction*st.HoldingsQty {
		return r.sell(i, bar, st.HoldingsQty, bar.Close, avgVolume, models.ExitSignalLost), models.ExitSignalLost
	}
	return r.sell(i, bar, -delta, bar.Close, avgVolume, models.ExitRebalance), models.ExitRebalance
}

// buyWithCash spends exactly budget, sizing the order so that fill price,
// slippage and commission fit inside it.
func (r *run) buyWithCash(i int, bar models.Bar, budget, avgVolume float64) bool {
	if budget <= 0 {
		return false
	}
	estimate := budget / bar.Close
	slippage := r.e.exec.Slippage(estimate, avgVolume)
	price := r.e.exec.MarketImpact(bar.Close, estimate, avgVolume, true)

	unitCost := price * (1 + slippage) * (1 + r.e.config.CommissionRate)
	qty := budget / unitCost
	if qty <= 0 {
		return false
	}
	r.open(i, bar, qty, price, budget)
	return true
}

// buyQty buys qty shares, or nothing if cash does not cover the full cost
func (r *run) buyQty(i int, bar models.Bar, qty, avgVolume float64) bool {
	slippage := r.e.exec.Slippage(qty, avgVolume)
	price := r.e.exec.MarketImpact(bar.Close, qty, avgVolume, true)
	cost := qty * price * (1 + slippage) * (1 + r.e.config.CommissionRate)

	if cost > r.state.Cash {
		r.e.logger.Debug().
			Str("symbol", r.symbol).
			Int("bar", i).
			Float64("cost", cost).
			Float64("cash", r.state.Cash).
			Msg("Insufficient cash, buy skipped")
		return false
	}
	r.open(i, bar, qty, price, cost)
	return true
}

func (r *run) open(i int, bar models.Bar, qty, price, cost float64) {
	st := &r.state
	if st.Long() {
		// quantity-weighted cost basis across scale-ins
		st.EntryPrice = (st.EntryPrice*st.HoldingsQty + price*qty) / (st.HoldingsQty + qty)
	} else {
		st.EntryPrice = price
		st.EntryTime = bar.Time
		st.EntryIndex = i
		st.PeakPrice = bar.Close
		st.DaysHeld = 0
	}
	st.HoldingsQty += qty
	st.Cash -= cost

	r.e.logger.Debug().
		Str("symbol", r.symbol).
		Int("bar", i).
		Float64("qty", qty).
		Float64("price", price).
		Float64("entry_price", st.EntryPrice).
		Msg("Buy filled")
}

// sell sells qty shares at price; selling the full holding closes the trade
func (r *run) sell(i int, bar models.Bar, qty, price, avgVolume float64, reason models.ExitReason) bool {
	st := &r.state
	if qty <= 0 || !st.Long() {
		return false
	}
	full := qty >= st.HoldingsQty
	if full {
		qty = st.HoldingsQty
	}

	slippage := r.e.exec.Slippage(qty, avgVolume)
	fill := r.e.exec.MarketImpact(price, qty, avgVolume, false)
	st.Cash += qty * fill * (1 - slippage) * (1 - r.e.config.CommissionRate)

	r.e.logger.Debug().
		Str("symbol", r.symbol).
		Int("bar", i).
		Float64("qty", qty).
		Float64("price", fill).
		Str("reason", reason.String()).
		Msg("Sell filled")

	if full {
		r.close(bar, qty, fill, reason)
	} else {
		st.HoldingsQty -= qty
	}
	return true
}

// liquidate force-sells everything at the bar open, net of commission only
func (r *run) liquidate(i int, bar models.Bar) bool {
	st := &r.state
	if !st.Long() {
		return false
	}
	qty := st.HoldingsQty
	st.Cash += qty * bar.Open * (1 - r.e.config.CommissionRate)
	r.close(bar, qty, bar.Open, models.ExitCircuitBreaker)
	return true
}

func (r *run) close(bar models.Bar, qty, fill float64, reason models.ExitReason) {
	st := &r.state
	trade := models.TradeRecord{
		EntryTime:  st.EntryTime,
		ExitTime:   bar.Time,
		EntryPrice: st.EntryPrice,
		ExitPrice:  fill,
		Quantity:   qty,
		PnLPct:     (fill - st.EntryPrice) / st.EntryPrice,
		Reason:     reason,
	}
	r.trades = append(r.trades, trade)
	r.sizer.AddTrade(trade.PnLPct)

	st.HoldingsQty = 0
	st.EntryPrice = 0
	st.EntryTime = time.Time{}
	st.EntryIndex = 0
	st.PeakPrice = 0
	st.DaysHeld = 0
}

func (r *run) revalue(close float64) {
	st := &r.state
	holdingsValue := 0.0
	if st.HoldingsQty > 0 {
		holdingsValue = st.HoldingsQty * close
	}
	st.Equity = st.Cash + holdingsValue
}

func (r *run) record(i int, bar models.Bar, traded bool, reason models.ExitReason) {
	st := &r.state
	if st.CircuitBreakerTriggered {
		st.Equity = st.Cash
	}

	row := models.LedgerRow{
		Index:         i,
		Time:          bar.Time,
		TradeExecuted: traded,
		ExitReason:    reason,
		Equity:        st.Equity,
		Cash:          st.Cash,
		HoldingsQty:   st.HoldingsQty,
		Close:         bar.Close,
	}
	if st.Long() {
		row.Position = 1
		if st.Equity > 0 {
			row.ActualWeight = st.HoldingsQty * bar.Close / st.Equity
		}
	}
	r.ledger = append(r.ledger, row)
}
