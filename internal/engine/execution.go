package engine

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/matrixjoeq/xquant/internal/domain"
)

// rebalanceBand is the minimum weight deviation from target that triggers a
// trade during rebalancing. Smaller drifts are left alone to avoid churning
// fees on noise.
const rebalanceBand = 0.01

// minNotional is the smallest trade the simulator bothers to execute.
const minNotional = 1e-6

// ExecutionSimulator converts target weights and forced exits into simulated
// fills, charging a proportional transaction cost on every trade and keeping
// post-trade cash at or above the configured buffer.
type ExecutionSimulator struct {
	costRate      float64
	minCashBuffer float64
	log           *slog.Logger
}

// NewExecutionSimulator creates an ExecutionSimulator with the given
// proportional cost rate and minimum cash buffer fraction.
func NewExecutionSimulator(costRate, minCashBuffer float64, log *slog.Logger) *ExecutionSimulator {
	if log == nil {
		log = slog.Default()
	}
	return &ExecutionSimulator{
		costRate:      costRate,
		minCashBuffer: minCashBuffer,
		log:           log.With("component", "execution"),
	}
}

// ExecuteExits fills forced-exit sell orders in full at the current prices.
// Sells always execute regardless of the cash buffer since they free cash.
func (e *ExecutionSimulator) ExecuteExits(l *Ledger, orders []domain.Order, prices map[string]float64, date time.Time) error {
	for _, o := range orders {
		if o.Side != domain.OrderSideSell {
			return fmt.Errorf("forced exit for %s is not a sell", o.Symbol)
		}
		price, ok := prices[o.Symbol]
		if !ok {
			return fmt.Errorf("no price for forced exit of %s on %s", o.Symbol, date.Format("2006-01-02"))
		}
		cost := o.Qty * price * e.costRate
		if err := l.ApplyFill(date, o.Symbol, domain.OrderSideSell, o.Qty, price, cost, o.Reason); err != nil {
			return fmt.Errorf("applying exit for %s: %w", o.Symbol, err)
		}
	}
	return nil
}

// Rebalance trades the ledger toward the target weights at the current
// prices. Order of operations: full liquidations of non-target holdings,
// sells down to reduced targets, then buys — so sell proceeds are available
// before the cash-buffer check constrains the buys. If executing all buys
// would leave cash below minCashBuffer x equity, buy notionals are scaled
// down uniformly; they are never silently dropped.
func (e *ExecutionSimulator) Rebalance(l *Ledger, targets []domain.TargetWeight, prices map[string]float64, date time.Time) error {
	equity := l.Equity(prices)
	if equity <= 0 {
		return fmt.Errorf("non-positive equity %.4f at %s", equity, date.Format("2006-01-02"))
	}

	targetWeight := make(map[string]float64, len(targets))
	for _, tw := range targets {
		targetWeight[tw.Symbol] = tw.Weight
	}

	// Phase 1: sells. Positions() is sorted, keeping fill order stable.
	for _, pos := range l.Positions() {
		price, ok := prices[pos.Symbol]
		if !ok {
			// No tradable price today; hold and let the next bar deal with it.
			continue
		}
		current := pos.Qty * price

		want, held := targetWeight[pos.Symbol]
		if !held {
			cost := current * e.costRate
			if err := l.ApplyFill(date, pos.Symbol, domain.OrderSideSell, pos.Qty, price, cost, domain.OrderReasonRebalance); err != nil {
				return fmt.Errorf("liquidating %s: %w", pos.Symbol, err)
			}
			continue
		}

		excess := current - want*equity
		if excess/equity <= rebalanceBand {
			continue
		}
		qty := excess / price
		cost := excess * e.costRate
		if err := l.ApplyFill(date, pos.Symbol, domain.OrderSideSell, qty, price, cost, domain.OrderReasonRebalance); err != nil {
			return fmt.Errorf("reducing %s: %w", pos.Symbol, err)
		}
	}

	// Phase 2: buys, gathered first so the buffer scaling is uniform.
	type buy struct {
		symbol string
		value  float64
		price  float64
	}
	var (
		buys       []buy
		totalSpend float64
	)
	for _, tw := range targets {
		price, ok := prices[tw.Symbol]
		if !ok {
			e.log.Warn("no price for target, skipping buy", "symbol", tw.Symbol, "date", date.Format("2006-01-02"))
			continue
		}
		var current float64
		if pos, held := l.Position(tw.Symbol); held {
			current = pos.Qty * price
		}
		deficit := tw.Weight*equity - current
		if deficit/equity <= rebalanceBand {
			continue
		}
		buys = append(buys, buy{symbol: tw.Symbol, value: deficit, price: price})
		totalSpend += deficit * (1 + e.costRate)
	}
	sort.Slice(buys, func(i, j int) bool { return buys[i].symbol < buys[j].symbol })

	if len(buys) == 0 {
		return nil
	}

	available := l.Cash() - e.minCashBuffer*equity
	if available < 0 {
		available = 0
	}
	scale := 1.0
	if totalSpend > available {
		scale = available / totalSpend
		e.log.Info("buy orders scaled down to preserve cash buffer",
			"date", date.Format("2006-01-02"),
			"requested", totalSpend, "available", available, "scale", scale)
	}

	for _, b := range buys {
		value := b.value * scale
		if value < minNotional {
			continue
		}
		qty := value / b.price
		cost := value * e.costRate
		if err := l.ApplyFill(date, b.symbol, domain.OrderSideBuy, qty, b.price, cost, domain.OrderReasonRebalance); err != nil {
			return fmt.Errorf("buying %s: %w", b.symbol, err)
		}
	}
	return nil
}
