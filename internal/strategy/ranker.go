// Package strategy provides the pluggable pieces of the rotation strategy:
// momentum ranking, position sizing, and the rebalance schedule. Alternate
// ranking or sizing rules implement the Ranker and Sizer interfaces and plug
// into the engine without touching the simulation loop.
package strategy

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/matrixjoeq/xquant/internal/domain"
)

// ErrInsufficientHistory indicates that fewer instruments could be scored
// than the selection step requires. The ranker still returns the valid
// scores; the caller decides whether to proceed with fewer holdings or skip
// the rebalance.
var ErrInsufficientHistory = errors.New("insufficient history")

// Ranker scores a universe of instruments as of a date and returns a ranked
// ordering, best first.
type Ranker interface {
	Rank(asOf time.Time, series []*domain.Series) ([]domain.MomentumScore, error)
}

// Compile-time interface check.
var _ Ranker = (*MomentumRanker)(nil)

// MomentumRanker scores instruments by trailing return over a lookback
// window of trading periods, measured on each instrument's own bar series.
type MomentumRanker struct {
	Lookback int // trading periods, > 0
	MinValid int // minimum scorable instruments before ErrInsufficientHistory
}

// NewMomentumRanker creates a MomentumRanker with the given lookback window.
// minValid is normally the top-N of the selection step.
func NewMomentumRanker(lookback, minValid int) *MomentumRanker {
	return &MomentumRanker{Lookback: lookback, MinValid: minValid}
}

// Rank computes close[asOf]/close[asOf-Lookback] - 1 for every instrument
// with a bar on asOf and at least Lookback bars of prior history. Instruments
// lacking history are excluded, never zero-scored. The result is sorted by
// descending score with ties broken by ascending symbol, so identical inputs
// always rank identically.
//
// When fewer than MinValid instruments score, Rank returns the valid scores
// together with ErrInsufficientHistory.
func (r *MomentumRanker) Rank(asOf time.Time, series []*domain.Series) ([]domain.MomentumScore, error) {
	if r.Lookback <= 0 {
		return nil, fmt.Errorf("%w: lookback must be positive, got %d",
			domain.ErrInvalidParameter, r.Lookback)
	}

	scores := make([]domain.MomentumScore, 0, len(series))
	for _, s := range series {
		i := s.IndexOf(asOf)
		if i < 0 || i < r.Lookback {
			continue
		}
		past := s.CloseAt(i - r.Lookback)
		if past <= 0 {
			continue
		}
		scores = append(scores, domain.MomentumScore{
			Symbol:   s.Symbol,
			AsOf:     asOf,
			Lookback: r.Lookback,
			Score:    s.CloseAt(i)/past - 1,
		})
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].Symbol < scores[j].Symbol
	})

	if len(scores) < r.MinValid {
		return scores, fmt.Errorf("%w: %d of %d instruments scorable at %s, need %d",
			ErrInsufficientHistory, len(scores), len(series),
			asOf.Format("2006-01-02"), r.MinValid)
	}
	return scores, nil
}
