// Package engine contains the simulation core: the portfolio ledger, the
// risk manager, the execution simulator, and the backtest loop that drives
// them one trading date at a time.
package engine

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/matrixjoeq/xquant/internal/domain"
)

// ErrCashConstraint indicates a fill that would drive cash negative. The
// execution layer downsizes buys before they reach the ledger, so hitting
// this inside a run means an accounting invariant broke and the run must
// abort.
var ErrCashConstraint = errors.New("cash constraint violation")

// qtyEpsilon is the quantity below which a position counts as closed.
const qtyEpsilon = 1e-9

// Ledger is the authoritative portfolio state: cash, open positions, the
// realized trade log, and the append-only equity curve. It advances one bar
// at a time and is owned by a single backtest run.
type Ledger struct {
	cash      float64
	positions map[string]*domain.Position
	snapshots []domain.Snapshot
	fills     []domain.Fill
	lastPrice map[string]float64
	realized  float64
}

// NewLedger creates a Ledger holding only cash.
func NewLedger(initialCapital float64) *Ledger {
	return &Ledger{
		cash:      initialCapital,
		positions: make(map[string]*domain.Position),
		lastPrice: make(map[string]float64),
	}
}

// MarkToMarket revalues open positions at the given prices, advances each
// position's high-water mark, and appends a snapshot to the equity curve.
// Positions without a price today keep their last seen price for valuation;
// prices are never invented for scoring.
func (l *Ledger) MarkToMarket(date time.Time, prices map[string]float64) domain.Snapshot {
	for sym, pos := range l.positions {
		p, ok := prices[sym]
		if !ok {
			continue
		}
		l.lastPrice[sym] = p
		if p > pos.HighWaterMark {
			pos.HighWaterMark = p
		}
	}

	snap := domain.Snapshot{
		Date:          date,
		Cash:          l.cash,
		HoldingsValue: l.holdingsValue(),
	}
	snap.Equity = snap.Cash + snap.HoldingsValue
	l.snapshots = append(l.snapshots, snap)
	return snap
}

// ApplyFill executes one trade against the ledger at the given price,
// charging cost against cash. Buys recompute the average cost basis as a
// quantity-weighted average; sells recognize realized P&L and leave the
// remaining shares' basis unchanged. A buy that would drive cash negative
// fails with ErrCashConstraint; a sell may not exceed the open quantity.
func (l *Ledger) ApplyFill(date time.Time, symbol string, side domain.OrderSide, qty, price, cost float64, reason domain.OrderReason) error {
	if qty <= 0 {
		return fmt.Errorf("fill quantity must be positive, got %g for %s", qty, symbol)
	}
	if price <= 0 {
		return fmt.Errorf("fill price must be positive, got %g for %s", price, symbol)
	}

	notional := qty * price

	switch side {
	case domain.OrderSideBuy:
		spend := notional + cost
		if spend > l.cash+1e-6 {
			return fmt.Errorf("%w: buy %s for %.2f with cash %.2f", ErrCashConstraint, symbol, spend, l.cash)
		}
		l.cash -= spend

		pos := l.positions[symbol]
		if pos == nil {
			l.positions[symbol] = &domain.Position{
				Symbol:        symbol,
				Qty:           qty,
				AvgCost:       price,
				EntryDate:     date,
				HighWaterMark: price,
			}
		} else {
			pos.AvgCost = (pos.Qty*pos.AvgCost + notional) / (pos.Qty + qty)
			pos.Qty += qty
			if price > pos.HighWaterMark {
				pos.HighWaterMark = price
			}
		}

	case domain.OrderSideSell:
		pos := l.positions[symbol]
		if pos == nil || qty > pos.Qty+qtyEpsilon {
			return fmt.Errorf("sell of %g %s exceeds open quantity", qty, symbol)
		}
		l.cash += notional - cost
		l.realized += (price-pos.AvgCost)*qty - cost
		pos.Qty -= qty
		if pos.Qty <= qtyEpsilon {
			delete(l.positions, symbol)
		}

	default:
		return fmt.Errorf("unknown order side %q", side)
	}

	l.lastPrice[symbol] = price
	l.fills = append(l.fills, domain.Fill{
		Date:     date,
		Symbol:   symbol,
		Side:     side,
		Qty:      qty,
		Price:    price,
		Notional: notional,
		Cost:     cost,
		Reason:   reason,
	})
	return nil
}

// Cash returns the current cash balance.
func (l *Ledger) Cash() float64 { return l.cash }

// RealizedPnL returns cumulative realized profit and loss net of costs.
func (l *Ledger) RealizedPnL() float64 { return l.realized }

// Position returns a copy of the open position for symbol, if any.
func (l *Ledger) Position(symbol string) (domain.Position, bool) {
	pos, ok := l.positions[symbol]
	if !ok {
		return domain.Position{}, false
	}
	return *pos, true
}

// Positions returns copies of all open positions sorted by symbol, so
// downstream iteration is deterministic.
func (l *Ledger) Positions() []domain.Position {
	out := make([]domain.Position, 0, len(l.positions))
	for _, pos := range l.positions {
		out = append(out, *pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Equity returns cash plus holdings valued at the given prices, falling back
// to each position's last seen price.
func (l *Ledger) Equity(prices map[string]float64) float64 {
	total := l.cash
	for sym, pos := range l.positions {
		p, ok := prices[sym]
		if !ok {
			p = l.lastPrice[sym]
		}
		total += pos.Qty * p
	}
	return total
}

// Snapshots returns the equity curve recorded so far.
func (l *Ledger) Snapshots() []domain.Snapshot { return l.snapshots }

// Fills returns the realized trade log.
func (l *Ledger) Fills() []domain.Fill { return l.fills }

// holdingsValue values all open positions at their last seen prices.
func (l *Ledger) holdingsValue() float64 {
	var total float64
	for sym, pos := range l.positions {
		total += pos.Qty * l.lastPrice[sym]
	}
	return total
}

// Dump renders the full ledger state for post-mortem diagnosis when a run
// aborts on an invariant violation.
func (l *Ledger) Dump() string {
	s := fmt.Sprintf("cash=%.4f realized=%.4f positions=%d", l.cash, l.realized, len(l.positions))
	for _, pos := range l.Positions() {
		s += fmt.Sprintf("\n  %s qty=%.4f avg_cost=%.4f hwm=%.4f entry=%s",
			pos.Symbol, pos.Qty, pos.AvgCost, pos.HighWaterMark,
			pos.EntryDate.Format("2006-01-02"))
	}
	return s
}
