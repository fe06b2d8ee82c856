package strategy

import (
	"fmt"
	"time"

	"github.com/matrixjoeq/xquant/internal/domain"
)

// RebalanceDays marks which trading dates are rebalance events. It is a pure
// function of the calendar: the same dates and frequency always produce the
// same marks.
//
//   - daily: every trading date.
//   - weekly: the first trading date of each ISO week.
//   - monthly: the first trading date of each calendar month.
//
// dates must be in ascending order (the engine builds them from store-
// validated series).
func RebalanceDays(dates []time.Time, freq domain.Frequency) ([]bool, error) {
	if !freq.Valid() {
		return nil, fmt.Errorf("%w: rebalance_freq %q", domain.ErrInvalidParameter, freq)
	}

	marks := make([]bool, len(dates))
	for i, d := range dates {
		if i == 0 {
			marks[i] = true
			continue
		}
		switch freq {
		case domain.FreqDaily:
			marks[i] = true
		case domain.FreqWeekly:
			py, pw := dates[i-1].ISOWeek()
			cy, cw := d.ISOWeek()
			marks[i] = py != cy || pw != cw
		case domain.FreqMonthly:
			prev := dates[i-1]
			marks[i] = prev.Year() != d.Year() || prev.Month() != d.Month()
		}
	}
	return marks, nil
}
