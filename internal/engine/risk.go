package engine

import (
	"log/slog"

	"github.com/matrixjoeq/xquant/internal/domain"
)

// RiskManager monitors open positions between rebalances and emits forced
// full-exit orders on stop-loss or trailing-stop breaches. It runs every
// trading date, before any rebalance logic.
type RiskManager struct {
	stopLossPct     float64 // negative threshold vs average cost basis
	trailingStopPct float64 // positive magnitude vs high-water mark
	log             *slog.Logger
}

// NewRiskManager creates a RiskManager with the given stop thresholds.
func NewRiskManager(stopLossPct, trailingStopPct float64, log *slog.Logger) *RiskManager {
	if log == nil {
		log = slog.Default()
	}
	return &RiskManager{
		stopLossPct:     stopLossPct,
		trailingStopPct: trailingStopPct,
		log:             log.With("component", "risk"),
	}
}

// Check evaluates each open position against the current prices and returns
// full-exit orders for every breach. Both rules reference the position's own
// figures: stop-loss against average cost basis, trailing stop against the
// high-water mark. Stop-loss takes priority when both would fire on the same
// bar. Positions without a current price are left alone.
func (rm *RiskManager) Check(positions []domain.Position, prices map[string]float64) []domain.Order {
	var orders []domain.Order
	for _, pos := range positions {
		price, ok := prices[pos.Symbol]
		if !ok || pos.Qty <= 0 {
			continue
		}

		if rm.stopLossPct < 0 && pos.AvgCost > 0 {
			ret := price/pos.AvgCost - 1
			if ret <= rm.stopLossPct {
				rm.log.Info("stop loss triggered",
					"symbol", pos.Symbol, "return", ret, "threshold", rm.stopLossPct)
				orders = append(orders, domain.Order{
					Symbol: pos.Symbol,
					Side:   domain.OrderSideSell,
					Qty:    pos.Qty,
					Reason: domain.OrderReasonStopLoss,
				})
				continue
			}
		}

		if rm.trailingStopPct > 0 && pos.HighWaterMark > 0 {
			drop := price/pos.HighWaterMark - 1
			if drop <= -rm.trailingStopPct {
				rm.log.Info("trailing stop triggered",
					"symbol", pos.Symbol, "drop", drop, "threshold", -rm.trailingStopPct)
				orders = append(orders, domain.Order{
					Symbol: pos.Symbol,
					Side:   domain.OrderSideSell,
					Qty:    pos.Qty,
					Reason: domain.OrderReasonTrailingStop,
				})
			}
		}
	}
	return orders
}
