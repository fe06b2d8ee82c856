// Package store defines the price-series storage contract used by the
// backtest engine and provides SQLite, Parquet, and in-memory
// implementations.
//
// Stores never forward-fill: a missing trading date is the caller's problem
// to surface, not the store's to paper over.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/matrixjoeq/xquant/internal/domain"
)

// ErrDataGap indicates a structural defect in a stored series: duplicate or
// out-of-order dates for one (symbol, variant).
var ErrDataGap = errors.New("data gap")

// ErrDataSource indicates a failure of the underlying storage backend.
var ErrDataSource = errors.New("data source error")

// BarStore persists and retrieves daily price bars per instrument and
// adjustment variant.
type BarStore interface {
	// WriteBars persists a batch of bars under the given variant. Re-writing
	// a (symbol, date) pair replaces the stored bar.
	WriteBars(ctx context.Context, bars []domain.Bar, variant domain.Variant) error

	// ReadBars returns bars for the symbol and variant within [start, end],
	// in strictly ascending date order with unique dates, or fails with
	// ErrDataGap/ErrDataSource. Missing dates are not filled.
	ReadBars(ctx context.Context, symbol string, variant domain.Variant, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols stored under the variant.
	ListSymbols(ctx context.Context, variant domain.Variant) ([]string, error)
}

// ReadSeries reads a full series through the store and wraps it in a
// domain.Series. It is the one loading path the engine uses.
func ReadSeries(ctx context.Context, s BarStore, symbol string, variant domain.Variant, start, end time.Time) (*domain.Series, error) {
	bars, err := s.ReadBars(ctx, symbol, variant, start, end)
	if err != nil {
		return nil, fmt.Errorf("reading series for %s: %w", symbol, err)
	}
	return &domain.Series{Symbol: symbol, Bars: bars}, nil
}

// Open constructs the bar store named by backend: "sqlite", "parquet" or
// "memory". The returned closer releases backend resources; it is a no-op
// for backends that hold none.
func Open(backend, dataDir, sqlitePath string) (BarStore, func() error, error) {
	noop := func() error { return nil }
	switch backend {
	case "sqlite":
		s, err := NewSQLiteStore(sqlitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "parquet":
		return NewParquetStore(dataDir), noop, nil
	case "memory":
		return NewMemoryStore(), noop, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown store backend %q", ErrDataSource, backend)
	}
}

// checkAscending verifies strictly ascending, date-unique bars and returns
// ErrDataGap naming the first offending date otherwise.
func checkAscending(symbol string, bars []domain.Bar) error {
	for i := 1; i < len(bars); i++ {
		if !bars[i].Date.After(bars[i-1].Date) {
			return fmt.Errorf("%w: %s has non-ascending or duplicate date %s",
				ErrDataGap, symbol, bars[i].Date.Format("2006-01-02"))
		}
	}
	return nil
}

// sortBars orders bars ascending by date in place.
func sortBars(bars []domain.Bar) {
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
}
