package strategy

import "github.com/matrixjoeq/xquant/internal/domain"

// Sizer converts a ranked instrument list into target portfolio weights.
type Sizer interface {
	Size(ranked []domain.MomentumScore) []domain.TargetWeight
}

// Compile-time interface check.
var _ Sizer = (*EqualWeightSizer)(nil)

// EqualWeightSizer selects the top N instruments whose score clears the
// momentum threshold and assigns them equal weight, capped per asset.
//
// When the equal split would exceed MaxPositionSize the excess is NOT
// redistributed across the remaining instruments: total exposure is
// under-deployed and the remainder stays in cash, keeping per-asset risk
// bounded.
type EqualWeightSizer struct {
	TopN            int
	MinMomentum     float64
	PositionSize    float64 // total target exposure
	MaxPositionSize float64 // per-asset cap
}

// NewEqualWeightSizer creates an EqualWeightSizer from the strategy params.
func NewEqualWeightSizer(p domain.Params) *EqualWeightSizer {
	return &EqualWeightSizer{
		TopN:            p.TopNHoldings,
		MinMomentum:     p.MinMomentumThreshold,
		PositionSize:    p.PositionSize,
		MaxPositionSize: p.MaxPositionSize,
	}
}

// Size returns target weights for the top instruments. Fewer than TopN may
// be selected when the threshold filters candidates out; zero selected means
// fully in cash. Guarantees sum(weights) <= PositionSize and every weight
// <= MaxPositionSize.
func (s *EqualWeightSizer) Size(ranked []domain.MomentumScore) []domain.TargetWeight {
	var selected []string
	for _, sc := range ranked {
		if sc.Score < s.MinMomentum {
			continue
		}
		selected = append(selected, sc.Symbol)
		if len(selected) == s.TopN {
			break
		}
	}
	if len(selected) == 0 {
		return nil
	}

	weight := s.PositionSize / float64(len(selected))
	if weight > s.MaxPositionSize {
		weight = s.MaxPositionSize
	}

	targets := make([]domain.TargetWeight, len(selected))
	for i, sym := range selected {
		targets[i] = domain.TargetWeight{Symbol: sym, Weight: weight}
	}
	return targets
}
