// Package analytics derives risk-adjusted performance statistics from a
// recorded equity curve. It is a pure consumer: nothing here mutates ledger
// state.
package analytics

import (
	"math"
	"time"

	"github.com/matrixjoeq/xquant/internal/domain"
)

// tradingDaysPerYear annualizes daily-return volatility.
const tradingDaysPerYear = 252

// Summary holds the performance statistics of one backtest run.
type Summary struct {
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	Volatility       float64 `json:"volatility"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	MaxDrawdown      float64 `json:"max_drawdown"` // reported as a negative number
	WinRate          float64 `json:"win_rate"`     // rebalance periods with non-negative return
	Periods          int     `json:"periods"`      // trading dates in the curve
	Rebalances       int     `json:"rebalances"`   // executed rebalance events
}

// Summarize computes performance statistics over the ordered equity curve.
// rebalanceDates are the dates on which a rebalance actually executed; they
// bound the periods used for the win rate.
//
// Annualized return compounds the total return over elapsed calendar years.
// Volatility is the standard deviation of daily returns scaled by sqrt(252).
// Sharpe is annualized return over annualized volatility, reported as zero
// when volatility is zero.
func Summarize(snapshots []domain.Snapshot, rebalanceDates []time.Time) Summary {
	s := Summary{Periods: len(snapshots), Rebalances: len(rebalanceDates)}
	if len(snapshots) < 2 || snapshots[0].Equity <= 0 {
		return s
	}

	first, last := snapshots[0], snapshots[len(snapshots)-1]
	s.TotalReturn = last.Equity/first.Equity - 1

	years := last.Date.Sub(first.Date).Hours() / (24 * 365.25)
	if years > 0 {
		s.AnnualizedReturn = math.Pow(1+s.TotalReturn, 1/years) - 1
	} else {
		s.AnnualizedReturn = s.TotalReturn
	}

	s.Volatility = annualizedVolatility(snapshots)
	if s.Volatility > 0 {
		s.SharpeRatio = s.AnnualizedReturn / s.Volatility
	}

	s.MaxDrawdown = maxDrawdown(snapshots)
	s.WinRate = winRate(snapshots, rebalanceDates)
	return s
}

func annualizedVolatility(snapshots []domain.Snapshot) float64 {
	returns := make([]float64, 0, len(snapshots)-1)
	for i := 1; i < len(snapshots); i++ {
		if snapshots[i-1].Equity <= 0 {
			continue
		}
		returns = append(returns, snapshots[i].Equity/snapshots[i-1].Equity-1)
	}
	if len(returns) < 2 {
		return 0
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)

	return math.Sqrt(variance) * math.Sqrt(tradingDaysPerYear)
}

// maxDrawdown returns the maximum peak-to-trough decline as a negative
// fraction, or zero for a curve that never declines.
func maxDrawdown(snapshots []domain.Snapshot) float64 {
	var (
		peak float64
		mdd  float64
	)
	for _, snap := range snapshots {
		if snap.Equity > peak {
			peak = snap.Equity
		}
		if peak > 0 {
			if dd := snap.Equity/peak - 1; dd < mdd {
				mdd = dd
			}
		}
	}
	return mdd
}

// winRate is the fraction of rebalance periods with non-negative return.
// A period runs from one executed rebalance to the next, with the tail from
// the final rebalance to the end of the curve counted as a period.
func winRate(snapshots []domain.Snapshot, rebalanceDates []time.Time) float64 {
	if len(rebalanceDates) == 0 {
		return 0
	}

	equityAt := make(map[int64]float64, len(snapshots))
	for _, snap := range snapshots {
		equityAt[snap.Date.Unix()] = snap.Equity
	}

	var marks []float64
	for _, d := range rebalanceDates {
		if eq, ok := equityAt[d.Unix()]; ok {
			marks = append(marks, eq)
		}
	}
	if lastEq := snapshots[len(snapshots)-1].Equity; len(marks) > 0 {
		last := rebalanceDates[len(rebalanceDates)-1]
		if !snapshots[len(snapshots)-1].Date.Equal(last) {
			marks = append(marks, lastEq)
		}
	}
	if len(marks) < 2 {
		return 0
	}

	var wins, periods int
	for i := 1; i < len(marks); i++ {
		if marks[i-1] <= 0 {
			continue
		}
		periods++
		if marks[i] >= marks[i-1] {
			wins++
		}
	}
	if periods == 0 {
		return 0
	}
	return float64(wins) / float64(periods)
}
