package engine

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/matrixjoeq/xquant/internal/domain"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestLedgerBuyCreatesPosition(t *testing.T) {
	l := NewLedger(10_000)

	if err := l.ApplyFill(day(2024, 1, 2), "A", domain.OrderSideBuy, 50, 100, 5, domain.OrderReasonRebalance); err != nil {
		t.Fatalf("ApplyFill: %v", err)
	}

	pos, ok := l.Position("A")
	if !ok {
		t.Fatal("position A not created")
	}
	if pos.Qty != 50 || pos.AvgCost != 100 {
		t.Errorf("position = {qty %g, avg %g}, want {50, 100}", pos.Qty, pos.AvgCost)
	}
	if pos.HighWaterMark != 100 {
		t.Errorf("HighWaterMark = %g, want entry price 100", pos.HighWaterMark)
	}
	if got, want := l.Cash(), 10_000-50*100.0-5; got != want {
		t.Errorf("cash = %g, want %g", got, want)
	}
}

func TestLedgerWeightedAverageCostOnBuys(t *testing.T) {
	l := NewLedger(100_000)

	// 100 @ 10, then 50 @ 16: avg = (1000 + 800) / 150 = 12.
	if err := l.ApplyFill(day(2024, 1, 2), "A", domain.OrderSideBuy, 100, 10, 0, domain.OrderReasonRebalance); err != nil {
		t.Fatalf("first buy: %v", err)
	}
	if err := l.ApplyFill(day(2024, 1, 3), "A", domain.OrderSideBuy, 50, 16, 0, domain.OrderReasonRebalance); err != nil {
		t.Fatalf("second buy: %v", err)
	}

	pos, _ := l.Position("A")
	if math.Abs(pos.AvgCost-12) > 1e-12 {
		t.Errorf("AvgCost = %g, want 12", pos.AvgCost)
	}
	if pos.Qty != 150 {
		t.Errorf("Qty = %g, want 150", pos.Qty)
	}
}

func TestLedgerSellKeepsBasisAndRealizesPnL(t *testing.T) {
	l := NewLedger(100_000)
	if err := l.ApplyFill(day(2024, 1, 2), "A", domain.OrderSideBuy, 100, 10, 0, domain.OrderReasonRebalance); err != nil {
		t.Fatalf("buy: %v", err)
	}

	// Sell 40 @ 15 with cost 6: realized = (15-10)*40 - 6 = 194.
	if err := l.ApplyFill(day(2024, 1, 5), "A", domain.OrderSideSell, 40, 15, 6, domain.OrderReasonRebalance); err != nil {
		t.Fatalf("sell: %v", err)
	}

	pos, ok := l.Position("A")
	if !ok {
		t.Fatal("position A should remain open")
	}
	if pos.AvgCost != 10 {
		t.Errorf("AvgCost after sell = %g, want unchanged 10", pos.AvgCost)
	}
	if pos.Qty != 60 {
		t.Errorf("Qty = %g, want 60", pos.Qty)
	}
	if math.Abs(l.RealizedPnL()-194) > 1e-9 {
		t.Errorf("RealizedPnL = %g, want 194", l.RealizedPnL())
	}

	// Selling the rest destroys the position.
	if err := l.ApplyFill(day(2024, 1, 6), "A", domain.OrderSideSell, 60, 15, 0, domain.OrderReasonRebalance); err != nil {
		t.Fatalf("final sell: %v", err)
	}
	if _, ok := l.Position("A"); ok {
		t.Error("position A should be destroyed at zero quantity")
	}
}

func TestLedgerRejectsOversellAndShorting(t *testing.T) {
	l := NewLedger(10_000)
	if err := l.ApplyFill(day(2024, 1, 2), "A", domain.OrderSideBuy, 10, 100, 0, domain.OrderReasonRebalance); err != nil {
		t.Fatalf("buy: %v", err)
	}

	if err := l.ApplyFill(day(2024, 1, 3), "A", domain.OrderSideSell, 11, 100, 0, domain.OrderReasonRebalance); err == nil {
		t.Error("oversell accepted; long-only ledger must reject it")
	}
	if err := l.ApplyFill(day(2024, 1, 3), "B", domain.OrderSideSell, 1, 100, 0, domain.OrderReasonRebalance); err == nil {
		t.Error("sell of unheld symbol accepted")
	}
}

func TestLedgerRejectsNegativeCash(t *testing.T) {
	l := NewLedger(1_000)

	err := l.ApplyFill(day(2024, 1, 2), "A", domain.OrderSideBuy, 20, 100, 0, domain.OrderReasonRebalance)
	if err == nil {
		t.Fatal("buy driving cash negative was accepted")
	}
	if !errors.Is(err, ErrCashConstraint) {
		t.Errorf("error = %v, want ErrCashConstraint", err)
	}
	if l.Cash() != 1_000 {
		t.Errorf("cash mutated on rejected fill: %g", l.Cash())
	}
}

func TestLedgerHighWaterMarkMonotonic(t *testing.T) {
	l := NewLedger(10_000)
	if err := l.ApplyFill(day(2024, 1, 2), "A", domain.OrderSideBuy, 10, 100, 0, domain.OrderReasonRebalance); err != nil {
		t.Fatalf("buy: %v", err)
	}

	l.MarkToMarket(day(2024, 1, 3), map[string]float64{"A": 120})
	l.MarkToMarket(day(2024, 1, 4), map[string]float64{"A": 110})

	pos, _ := l.Position("A")
	if pos.HighWaterMark != 120 {
		t.Errorf("HighWaterMark = %g, want 120 (must not decrease)", pos.HighWaterMark)
	}

	// Close and re-enter: the mark resets to the new entry price.
	if err := l.ApplyFill(day(2024, 1, 5), "A", domain.OrderSideSell, 10, 110, 0, domain.OrderReasonStopLoss); err != nil {
		t.Fatalf("sell: %v", err)
	}
	if err := l.ApplyFill(day(2024, 1, 8), "A", domain.OrderSideBuy, 10, 90, 0, domain.OrderReasonRebalance); err != nil {
		t.Fatalf("re-entry buy: %v", err)
	}
	pos, _ = l.Position("A")
	if pos.HighWaterMark != 90 {
		t.Errorf("HighWaterMark after re-entry = %g, want 90", pos.HighWaterMark)
	}
	if !pos.EntryDate.Equal(day(2024, 1, 8)) {
		t.Errorf("EntryDate after re-entry = %v, want 2024-01-08", pos.EntryDate)
	}
}

func TestLedgerSnapshotCashConservation(t *testing.T) {
	l := NewLedger(1_000_000)
	if err := l.ApplyFill(day(2024, 1, 2), "A", domain.OrderSideBuy, 1000, 350, 350, domain.OrderReasonRebalance); err != nil {
		t.Fatalf("buy: %v", err)
	}

	snap := l.MarkToMarket(day(2024, 1, 3), map[string]float64{"A": 360})
	if rel := math.Abs(snap.Cash+snap.HoldingsValue-snap.Equity) / snap.Equity; rel > 1e-6 {
		t.Errorf("cash + holdings != equity: relative error %g", rel)
	}
	if want := 1000 * 360.0; snap.HoldingsValue != want {
		t.Errorf("HoldingsValue = %g, want %g", snap.HoldingsValue, want)
	}
}
