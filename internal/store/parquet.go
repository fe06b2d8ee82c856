package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/matrixjoeq/xquant/internal/domain"
)

// Compile-time interface check.
var _ BarStore = (*ParquetStore)(nil)

// ParquetStore implements BarStore using Parquet files on disk, one file per
// (variant, symbol, year).
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// barRecord is the on-disk Parquet schema for daily bars.
type barRecord struct {
	Symbol string  `parquet:"symbol"`
	Date   int64   `parquet:"date,timestamp(millisecond)"` // Unix ms, midnight UTC
	Open   float64 `parquet:"open"`
	High   float64 `parquet:"high"`
	Low    float64 `parquet:"low"`
	Close  float64 `parquet:"close"`
	Volume int64   `parquet:"volume"`
	Amount float64 `parquet:"amount"`
}

// WriteBars writes bars to Parquet files grouped by symbol and year under
// the variant directory, merging with any existing file contents.
// Layout: <DataDir>/daily/<variant>/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) WriteBars(_ context.Context, bars []domain.Bar, variant domain.Variant) error {
	if len(bars) == 0 {
		return nil
	}

	type key struct {
		symbol string
		year   int
	}
	groups := make(map[key][]barRecord)
	for _, b := range bars {
		k := key{symbol: b.Symbol, year: b.Date.Year()}
		groups[k] = append(groups[k], barRecord{
			Symbol: b.Symbol,
			Date:   b.Date.UnixMilli(),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
			Amount: b.Amount,
		})
	}

	for k, records := range groups {
		path := s.barPath(k.symbol, variant, k.year)

		// Merge with existing records so partial rewrites keep history.
		existing, _ := readParquetFile(path)
		merged := mergeBarRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("%w: writing bars for %s/%d: %v", ErrDataSource, k.symbol, k.year, err)
		}
	}
	return nil
}

// ReadBars reads bars for the symbol and variant within [start, end].
func (s *ParquetStore) ReadBars(_ context.Context, symbol string, variant domain.Variant, start, end time.Time) ([]domain.Bar, error) {
	var bars []domain.Bar
	for year := start.Year(); year <= end.Year(); year++ {
		path := s.barPath(symbol, variant, year)

		records, err := readParquetFile(path)
		if err != nil {
			// No file for this year — nothing stored.
			continue
		}

		for _, r := range records {
			d := time.UnixMilli(r.Date).UTC()
			if d.Before(start) || d.After(end) {
				continue
			}
			bars = append(bars, domain.Bar{
				Symbol: r.Symbol,
				Date:   d,
				Open:   r.Open,
				High:   r.High,
				Low:    r.Low,
				Close:  r.Close,
				Volume: r.Volume,
				Amount: r.Amount,
			})
		}
	}
	sortBars(bars)
	if err := checkAscending(symbol, bars); err != nil {
		return nil, err
	}
	return bars, nil
}

// ListSymbols lists all symbols that have bar data under the variant.
func (s *ParquetStore) ListSymbols(_ context.Context, variant domain.Variant) ([]string, error) {
	dir := filepath.Join(s.DataDir, "daily", string(variant))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: listing %s: %v", ErrDataSource, dir, err)
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// barPath returns the Parquet file path for one (symbol, variant, year).
func (s *ParquetStore) barPath(symbol string, variant domain.Variant, year int) string {
	return filepath.Join(s.DataDir, "daily", string(variant),
		strings.ToUpper(symbol), fmt.Sprintf("%d.parquet", year))
}

func writeParquetFile(path string, records []barRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile(path string) ([]barRecord, error) {
	return parquet.ReadFile[barRecord](path)
}

// mergeBarRecords deduplicates records by date, preferring incoming over
// existing, and returns them sorted by date.
func mergeBarRecords(existing, incoming []barRecord) []barRecord {
	seen := make(map[int64]barRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.Date] = r
	}
	for _, r := range incoming {
		seen[r.Date] = r
	}

	merged := make([]barRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Date < merged[j].Date
	})
	return merged
}
