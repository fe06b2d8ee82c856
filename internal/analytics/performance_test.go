package analytics

import (
	"math"
	"testing"
	"time"

	"github.com/matrixjoeq/xquant/internal/domain"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func curve(start time.Time, equities ...float64) []domain.Snapshot {
	snaps := make([]domain.Snapshot, len(equities))
	for i, eq := range equities {
		snaps[i] = domain.Snapshot{Date: start.AddDate(0, 0, i), Cash: eq, Equity: eq}
	}
	return snaps
}

func TestSummarizeTotalAndAnnualizedReturn(t *testing.T) {
	// 10% over exactly one calendar year annualizes to itself.
	snaps := []domain.Snapshot{
		{Date: day(2023, 1, 1), Equity: 1_000_000},
		{Date: day(2023, 7, 1), Equity: 1_050_000},
		{Date: day(2024, 1, 1).Add(-6 * time.Hour), Equity: 1_100_000},
	}
	// Stretch the last date to exactly 365.25 days after the first.
	snaps[2].Date = snaps[0].Date.Add(time.Duration(365.25 * 24 * float64(time.Hour)))

	s := Summarize(snaps, []time.Time{snaps[0].Date})
	if math.Abs(s.TotalReturn-0.10) > 1e-12 {
		t.Errorf("TotalReturn = %g, want 0.10", s.TotalReturn)
	}
	if math.Abs(s.AnnualizedReturn-0.10) > 1e-9 {
		t.Errorf("AnnualizedReturn = %g, want 0.10 over one year", s.AnnualizedReturn)
	}
	if s.Periods != 3 {
		t.Errorf("Periods = %d, want 3", s.Periods)
	}
}

func TestSummarizeAnnualizedCompounds(t *testing.T) {
	// 21% over two years compounds to 10% per year.
	snaps := []domain.Snapshot{
		{Date: day(2022, 1, 1), Equity: 100},
		{Date: day(2023, 1, 1), Equity: 105},
		{Date: snaps0TwoYears(), Equity: 121},
	}
	s := Summarize(snaps, nil)
	if math.Abs(s.AnnualizedReturn-0.10) > 1e-9 {
		t.Errorf("AnnualizedReturn = %g, want 0.10", s.AnnualizedReturn)
	}
}

func snaps0TwoYears() time.Time {
	return day(2022, 1, 1).Add(time.Duration(2 * 365.25 * 24 * float64(time.Hour)))
}

func TestSummarizeFlatCurve(t *testing.T) {
	snaps := curve(day(2024, 1, 1), 100, 100, 100, 100)
	s := Summarize(snaps, []time.Time{day(2024, 1, 1)})

	if s.TotalReturn != 0 {
		t.Errorf("TotalReturn = %g, want 0", s.TotalReturn)
	}
	if s.Volatility != 0 {
		t.Errorf("Volatility = %g, want 0 on a flat curve", s.Volatility)
	}
	if s.SharpeRatio != 0 {
		t.Errorf("SharpeRatio = %g, want 0 when volatility is 0", s.SharpeRatio)
	}
	if s.MaxDrawdown != 0 {
		t.Errorf("MaxDrawdown = %g, want 0", s.MaxDrawdown)
	}
}

func TestSummarizeVolatility(t *testing.T) {
	// Daily returns +1%, -1%, +1%: mean 1/3%, sample stddev known in closed
	// form, annualized by sqrt(252).
	snaps := curve(day(2024, 1, 1), 100, 101, 99.99, 100.9899)
	s := Summarize(snaps, nil)

	returns := []float64{0.01, -0.01, 0.01}
	mean := (returns[0] + returns[1] + returns[2]) / 3
	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= 2
	want := math.Sqrt(variance) * math.Sqrt(252)

	if math.Abs(s.Volatility-want) > 1e-9 {
		t.Errorf("Volatility = %g, want %g", s.Volatility, want)
	}
}

func TestMaxDrawdown(t *testing.T) {
	// Peak 120, trough 90: drawdown -25%. The later recovery to 110 and the
	// earlier dip from 100 to 95 are both shallower.
	snaps := curve(day(2024, 1, 1), 100, 95, 120, 100, 90, 110)
	s := Summarize(snaps, nil)

	if math.Abs(s.MaxDrawdown-(-0.25)) > 1e-12 {
		t.Errorf("MaxDrawdown = %g, want -0.25", s.MaxDrawdown)
	}
	if s.MaxDrawdown > 0 {
		t.Error("MaxDrawdown must be reported as a non-positive number")
	}
}

func TestWinRateOverRebalancePeriods(t *testing.T) {
	start := day(2024, 1, 1)
	// Rebalances at day 0, 2, 4. Periods: [0,2] 100->110 win,
	// [2,4] 110->105 loss, tail [4,end] 105->112 win. 2/3.
	snaps := curve(start, 100, 108, 110, 102, 105, 112)
	rebalances := []time.Time{start, start.AddDate(0, 0, 2), start.AddDate(0, 0, 4)}

	s := Summarize(snaps, rebalances)
	if math.Abs(s.WinRate-2.0/3.0) > 1e-12 {
		t.Errorf("WinRate = %g, want 2/3", s.WinRate)
	}
	if s.Rebalances != 3 {
		t.Errorf("Rebalances = %d, want 3", s.Rebalances)
	}
}

func TestWinRateWithoutRebalances(t *testing.T) {
	snaps := curve(day(2024, 1, 1), 100, 110)
	if s := Summarize(snaps, nil); s.WinRate != 0 {
		t.Errorf("WinRate = %g, want 0 with no rebalances", s.WinRate)
	}
}

func TestSummarizeDegenerateCurves(t *testing.T) {
	if s := Summarize(nil, nil); s.TotalReturn != 0 || s.Periods != 0 {
		t.Errorf("empty curve: %+v, want zero summary", s)
	}
	one := curve(day(2024, 1, 1), 100)
	if s := Summarize(one, nil); s.TotalReturn != 0 || s.Periods != 1 {
		t.Errorf("single snapshot: %+v, want zero returns", s)
	}
}
