package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidParameter indicates an out-of-range strategy parameter. It is
// returned before any simulation work starts.
var ErrInvalidParameter = errors.New("invalid parameter")

// Frequency is the rebalance cadence.
type Frequency string

const (
	FreqDaily   Frequency = "daily"
	FreqWeekly  Frequency = "weekly"
	FreqMonthly Frequency = "monthly"
)

// Valid reports whether f is a supported rebalance frequency.
func (f Frequency) Valid() bool {
	switch f {
	case FreqDaily, FreqWeekly, FreqMonthly:
		return true
	}
	return false
}

// Params is the immutable parameter set for one backtest run. A zero value
// is not usable; construct from config and call Validate before running.
type Params struct {
	LookbackPeriod       int       // trading periods for momentum lookback
	TopNHoldings         int       // number of top-ranked assets to hold
	PositionSize         float64   // total target exposure, e.g. 0.95
	RebalanceFreq        Frequency // daily | weekly | monthly
	MaxPositionSize      float64   // per-asset weight cap
	StopLossPct          float64   // negative threshold vs cost basis, e.g. -0.10
	TrailingStopPct      float64   // positive magnitude vs high-water mark, e.g. 0.05
	MinMomentumThreshold float64   // minimum score to be considered for buying
	TransactionCost      float64   // proportional cost rate per trade
	MinCashBuffer        float64   // minimum cash as fraction of equity
	InitialCapital       float64
}

// Validate checks every parameter range and fails fast with
// ErrInvalidParameter on the first violation.
func (p Params) Validate() error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidParameter, fmt.Sprintf(format, args...))
	}

	if p.LookbackPeriod <= 0 {
		return fail("lookback_period must be positive, got %d", p.LookbackPeriod)
	}
	if p.TopNHoldings <= 0 {
		return fail("top_n_holdings must be positive, got %d", p.TopNHoldings)
	}
	if p.PositionSize <= 0 || p.PositionSize > 1 {
		return fail("position_size must be in (0, 1], got %g", p.PositionSize)
	}
	if p.MaxPositionSize <= 0 || p.MaxPositionSize > 1 {
		return fail("max_position_size must be in (0, 1], got %g", p.MaxPositionSize)
	}
	if !p.RebalanceFreq.Valid() {
		return fail("rebalance_freq must be daily, weekly, or monthly, got %q", p.RebalanceFreq)
	}
	if p.StopLossPct > 0 {
		return fail("stop_loss_pct must be zero or negative, got %g", p.StopLossPct)
	}
	if p.TrailingStopPct < 0 {
		return fail("trailing_stop_pct must be zero or positive, got %g", p.TrailingStopPct)
	}
	if p.TransactionCost < 0 {
		return fail("transaction_cost must be zero or positive, got %g", p.TransactionCost)
	}
	if p.MinCashBuffer < 0 || p.MinCashBuffer >= 1 {
		return fail("min_cash_buffer must be in [0, 1), got %g", p.MinCashBuffer)
	}
	if p.InitialCapital <= 0 {
		return fail("initial_capital must be positive, got %g", p.InitialCapital)
	}
	return nil
}
