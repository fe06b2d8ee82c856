package domain

import (
	"sort"
	"time"
)

// Series is one instrument's ordered daily bar history. Bars must be in
// strictly ascending date order with unique dates; the bar store guarantees
// this on read.
type Series struct {
	Symbol string
	Bars   []Bar
}

// Len returns the number of bars in the series.
func (s *Series) Len() int { return len(s.Bars) }

// IndexOf returns the position of the bar dated exactly date, or -1 if the
// series has no bar on that date.
func (s *Series) IndexOf(date time.Time) int {
	i := sort.Search(len(s.Bars), func(i int) bool {
		return !s.Bars[i].Date.Before(date)
	})
	if i < len(s.Bars) && s.Bars[i].Date.Equal(date) {
		return i
	}
	return -1
}

// CloseAt returns the closing price at index i.
func (s *Series) CloseAt(i int) float64 { return s.Bars[i].Close }

// UnionDates merges the trading dates of several series into one ascending,
// de-duplicated calendar. The result is the same for the same inputs
// regardless of map iteration order upstream.
func UnionDates(series []*Series) []time.Time {
	seen := make(map[int64]time.Time)
	for _, s := range series {
		for _, b := range s.Bars {
			seen[b.Date.Unix()] = b.Date
		}
	}
	out := make([]time.Time, 0, len(seen))
	for _, d := range seen {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
