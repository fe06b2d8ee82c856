// Package domain defines the core types shared across the xquant engine:
// price bars, positions, orders, target weights, ledger snapshots, and the
// strategy parameter set.
package domain

import "time"

// Variant identifies the price-adjustment convention of a bar series.
type Variant string

const (
	// VariantNone is the unadjusted (as-traded) price series.
	VariantNone Variant = "none"
	// VariantForward is the forward-adjusted price series.
	VariantForward Variant = "forward"
	// VariantBackward is the backward-adjusted price series.
	VariantBackward Variant = "backward"
)

// Valid reports whether v is a known adjustment variant.
func (v Variant) Valid() bool {
	switch v {
	case VariantNone, VariantForward, VariantBackward:
		return true
	}
	return false
}

// Bar is one daily OHLCV bar for one instrument under one adjustment
// variant. Bars are immutable once ingested.
type Bar struct {
	Symbol string
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
	Amount float64 // traded value, price x volume as reported upstream
}

// OrderSide is the direction of a simulated order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderReason records why an order was issued.
type OrderReason string

const (
	OrderReasonRebalance    OrderReason = "rebalance"
	OrderReasonStopLoss     OrderReason = "stop_loss"
	OrderReasonTrailingStop OrderReason = "trailing_stop"
)

// Order is an ephemeral trade instruction, created by the sizer or the risk
// manager and consumed by the execution simulator within the same bar.
type Order struct {
	Symbol string
	Side   OrderSide
	Qty    float64
	Reason OrderReason
}

// Position is an open long holding. Owned exclusively by the ledger: created
// on the first fill that establishes non-zero quantity, mutated on every
// partial fill, destroyed when quantity returns to zero.
type Position struct {
	Symbol        string
	Qty           float64
	AvgCost       float64 // quantity-weighted average cost basis
	EntryDate     time.Time
	HighWaterMark float64 // highest price seen since entry, never decreases
}

// MomentumScore is a trailing-return score for one instrument as of a date.
// Recomputed at each rebalance, never persisted.
type MomentumScore struct {
	Symbol   string
	AsOf     time.Time
	Lookback int
	Score    float64
}

// TargetWeight is a desired portfolio weight for one instrument, produced
// fresh at each rebalance.
type TargetWeight struct {
	Symbol string
	Weight float64
}

// Snapshot is one point of the equity curve. Snapshots are append-only;
// Cash + HoldingsValue must equal Equity to floating-point tolerance.
type Snapshot struct {
	Date          time.Time
	Cash          float64
	HoldingsValue float64
	Equity        float64
}

// Fill is one executed trade in the realized trade log.
type Fill struct {
	Date     time.Time
	Symbol   string
	Side     OrderSide
	Qty      float64
	Price    float64
	Notional float64 // Qty x Price
	Cost     float64 // transaction cost charged against cash
	Reason   OrderReason
}
