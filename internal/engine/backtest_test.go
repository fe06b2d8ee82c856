package engine

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/matrixjoeq/xquant/internal/domain"
	"github.com/matrixjoeq/xquant/internal/store"
)

// fixtureStore seeds a MemoryStore with one bar per (symbol, date, close).
func fixtureStore(t *testing.T, closes map[string][]float64, start time.Time) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore()
	for sym, series := range closes {
		bars := make([]domain.Bar, len(series))
		for i, c := range series {
			bars[i] = domain.Bar{
				Symbol: sym,
				Date:   start.AddDate(0, 0, i),
				Open:   c, High: c, Low: c, Close: c,
				Volume: 1_000_000,
				Amount: c * 1_000_000,
			}
		}
		if err := s.WriteBars(context.Background(), bars, domain.VariantNone); err != nil {
			t.Fatalf("seeding %s: %v", sym, err)
		}
	}
	return s
}

func baseParams() domain.Params {
	return domain.Params{
		LookbackPeriod:       1,
		TopNHoldings:         1,
		PositionSize:         0.9,
		RebalanceFreq:        domain.FreqDaily,
		MaxPositionSize:      1.0,
		StopLossPct:          0, // stops disabled unless a test enables them
		TrailingStopPct:      0,
		MinMomentumThreshold: -1, // accept any score unless a test tightens it
		TransactionCost:      0,
		MinCashBuffer:        0,
		InitialCapital:       1_000_000,
	}
}

func run(t *testing.T, s store.BarStore, cfg RunConfig) *Result {
	t.Helper()
	res, err := NewBacktester(s, nil).Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return res
}

func TestBacktestRotationSelectsTopAsset(t *testing.T) {
	start := day(2024, 1, 1)
	// Day 2: B outperforms, B is bought. Day 3: A overtakes, B is
	// liquidated and A takes the 0.9 target weight.
	s := fixtureStore(t, map[string][]float64{
		"A": {100, 101, 120},
		"B": {100, 110, 111},
	}, start)

	res := run(t, s, RunConfig{
		Universe: []string{"A", "B"},
		Variant:  domain.VariantNone,
		Start:    start,
		End:      start.AddDate(0, 0, 2),
		Params:   baseParams(),
	})

	if len(res.FinalPositions) != 1 || res.FinalPositions[0].Symbol != "A" {
		t.Fatalf("final positions = %v, want only A", res.FinalPositions)
	}

	// Final holding carries the full 0.9 target weight.
	last := res.Snapshots[len(res.Snapshots)-1]
	weight := res.FinalPositions[0].Qty * 120 / last.Equity
	if math.Abs(weight-0.9) > 1e-9 {
		t.Errorf("A weight = %g, want 0.9", weight)
	}

	// B's liquidation shows in the trade log as a rebalance sell.
	var sawSellB bool
	for _, f := range res.Fills {
		if f.Symbol == "B" && f.Side == domain.OrderSideSell && f.Reason == domain.OrderReasonRebalance {
			sawSellB = true
		}
	}
	if !sawSellB {
		t.Error("B was not liquidated on rotation")
	}
}

func TestBacktestStopLossBeforeRebalance(t *testing.T) {
	start := day(2024, 1, 1)
	// Entry at 102 on day 2; day 3 crashes to 89 (-12.7%), breaching the
	// -10% stop. The exit must execute before the day's rebalance, and the
	// exited instrument sits out that rebalance.
	s := fixtureStore(t, map[string][]float64{
		"A": {100, 102, 89},
	}, start)

	p := baseParams()
	p.StopLossPct = -0.10

	res := run(t, s, RunConfig{
		Universe: []string{"A"},
		Variant:  domain.VariantNone,
		Start:    start,
		End:      start.AddDate(0, 0, 2),
		Params:   p,
	})

	var stopFill *domain.Fill
	for i := range res.Fills {
		if res.Fills[i].Reason == domain.OrderReasonStopLoss {
			stopFill = &res.Fills[i]
		}
		if res.Fills[i].Date.Equal(start.AddDate(0, 0, 2)) && res.Fills[i].Side == domain.OrderSideBuy {
			t.Error("instrument re-bought on its stop-out date")
		}
	}
	if stopFill == nil {
		t.Fatal("no stop-loss fill recorded")
	}
	if !stopFill.Date.Equal(start.AddDate(0, 0, 2)) || stopFill.Price != 89 {
		t.Errorf("stop fill = %+v, want exit at 89 on the breach date", *stopFill)
	}
	if len(res.FinalPositions) != 0 {
		t.Errorf("final positions = %v, want none after stop-out", res.FinalPositions)
	}
}

func TestBacktestTrailingStop(t *testing.T) {
	start := day(2024, 1, 1)
	// Entry near 100, ride to 120, fall to 113: 113/120-1 = -5.8% breaches
	// the 5% trailing stop even though the position is still profitable.
	s := fixtureStore(t, map[string][]float64{
		"A": {100, 101, 120, 113},
	}, start)

	p := baseParams()
	p.TrailingStopPct = 0.05

	res := run(t, s, RunConfig{
		Universe: []string{"A"},
		Variant:  domain.VariantNone,
		Start:    start,
		End:      start.AddDate(0, 0, 3),
		Params:   p,
	})

	var sawTrailing bool
	for _, f := range res.Fills {
		if f.Reason == domain.OrderReasonTrailingStop {
			sawTrailing = true
			if f.Price != 113 {
				t.Errorf("trailing exit price = %g, want 113", f.Price)
			}
		}
	}
	if !sawTrailing {
		t.Fatal("trailing stop never fired")
	}
	if len(res.FinalPositions) != 0 {
		t.Errorf("final positions = %v, want none", res.FinalPositions)
	}
}

func TestBacktestSkipsRebalanceOnInsufficientHistory(t *testing.T) {
	start := day(2024, 1, 1)
	s := fixtureStore(t, map[string][]float64{
		"A": {100, 101, 102},
	}, start)

	p := baseParams()
	p.LookbackPeriod = 10 // never enough history in a 3-bar range

	res := run(t, s, RunConfig{
		Universe: []string{"A"},
		Variant:  domain.VariantNone,
		Start:    start,
		End:      start.AddDate(0, 0, 2),
		Params:   p,
	})

	if len(res.Fills) != 0 {
		t.Errorf("fills = %v, want none when every rebalance is skipped", res.Fills)
	}
	if len(res.RebalanceDates) != 0 {
		t.Errorf("rebalance dates = %v, want none", res.RebalanceDates)
	}
	// The run still produces a flat equity curve.
	for _, snap := range res.Snapshots {
		if snap.Equity != 1_000_000 {
			t.Errorf("equity = %g on %v, want flat 1000000", snap.Equity, snap.Date)
		}
	}
}

func TestBacktestEquityCurveInvariant(t *testing.T) {
	start := day(2024, 1, 1)
	s := fixtureStore(t, map[string][]float64{
		"A": {100, 104, 99, 107, 103, 111},
		"B": {50, 51, 53, 50, 55, 54},
		"C": {200, 198, 202, 207, 205, 213},
	}, start)

	p := baseParams()
	p.TopNHoldings = 2
	p.MaxPositionSize = 0.4
	p.TransactionCost = 0.001
	p.MinCashBuffer = 0.05
	p.StopLossPct = -0.10
	p.TrailingStopPct = 0.05

	res := run(t, s, RunConfig{
		Universe: []string{"A", "B", "C"},
		Variant:  domain.VariantNone,
		Start:    start,
		End:      start.AddDate(0, 0, 5),
		Params:   p,
	})

	for _, snap := range res.Snapshots {
		diff := math.Abs(snap.Cash + snap.HoldingsValue - snap.Equity)
		if diff/snap.Equity > 1e-6 {
			t.Errorf("snapshot %v violates cash+holdings==equity by %g", snap.Date, diff)
		}
		if snap.Cash < 0 {
			t.Errorf("snapshot %v has negative cash %g", snap.Date, snap.Cash)
		}
	}
}

func TestBacktestDeterministic(t *testing.T) {
	start := day(2024, 1, 1)
	closes := map[string][]float64{
		"A": {100, 104, 99, 107, 103, 111},
		"B": {50, 51, 53, 50, 55, 54},
	}
	cfg := RunConfig{
		Universe: []string{"A", "B"},
		Variant:  domain.VariantNone,
		Start:    start,
		End:      start.AddDate(0, 0, 5),
		Params:   baseParams(),
	}

	r1 := run(t, fixtureStore(t, closes, start), cfg)
	r2 := run(t, fixtureStore(t, closes, start), cfg)

	if len(r1.Snapshots) != len(r2.Snapshots) {
		t.Fatalf("snapshot counts differ: %d vs %d", len(r1.Snapshots), len(r2.Snapshots))
	}
	for i := range r1.Snapshots {
		if r1.Snapshots[i].Equity != r2.Snapshots[i].Equity {
			t.Errorf("equity differs at %d: %g vs %g", i, r1.Snapshots[i].Equity, r2.Snapshots[i].Equity)
		}
	}
	if len(r1.Fills) != len(r2.Fills) {
		t.Fatalf("fill counts differ: %d vs %d", len(r1.Fills), len(r2.Fills))
	}
	for i := range r1.Fills {
		if r1.Fills[i] != r2.Fills[i] {
			t.Errorf("fill %d differs: %+v vs %+v", i, r1.Fills[i], r2.Fills[i])
		}
	}
}

func TestBacktestRejectsInvalidConfig(t *testing.T) {
	s := store.NewMemoryStore()
	bt := NewBacktester(s, nil)

	p := baseParams()
	p.TopNHoldings = 0
	if _, err := bt.Run(context.Background(), RunConfig{
		Universe: []string{"A"},
		Variant:  domain.VariantNone,
		Start:    day(2024, 1, 1),
		End:      day(2024, 1, 5),
		Params:   p,
	}); err == nil {
		t.Error("Run accepted top_n_holdings = 0")
	}

	if _, err := bt.Run(context.Background(), RunConfig{
		Universe: nil,
		Variant:  domain.VariantNone,
		Start:    day(2024, 1, 1),
		End:      day(2024, 1, 5),
		Params:   baseParams(),
	}); err == nil {
		t.Error("Run accepted an empty universe")
	}
}
