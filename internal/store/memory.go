package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/matrixjoeq/xquant/internal/domain"
)

// Compile-time interface check.
var _ BarStore = (*MemoryStore)(nil)

// MemoryStore is an in-memory BarStore used for tests and as a fixture
// source for synthetic backtests. Safe for concurrent use.
type MemoryStore struct {
	mu   sync.RWMutex
	bars map[domain.Variant]map[string][]domain.Bar
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bars: make(map[domain.Variant]map[string][]domain.Bar),
	}
}

// WriteBars stores the bars, replacing any existing bar for the same
// (symbol, date).
func (s *MemoryStore) WriteBars(_ context.Context, bars []domain.Bar, variant domain.Variant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bySymbol := s.bars[variant]
	if bySymbol == nil {
		bySymbol = make(map[string][]domain.Bar)
		s.bars[variant] = bySymbol
	}

	for _, b := range bars {
		existing := bySymbol[b.Symbol]
		replaced := false
		for i := range existing {
			if existing[i].Date.Equal(b.Date) {
				existing[i] = b
				replaced = true
				break
			}
		}
		if !replaced {
			existing = append(existing, b)
		}
		bySymbol[b.Symbol] = existing
	}

	for sym := range bySymbol {
		sortBars(bySymbol[sym])
	}
	return nil
}

// ReadBars returns the stored bars for the symbol within [start, end].
func (s *MemoryStore) ReadBars(_ context.Context, symbol string, variant domain.Variant, start, end time.Time) ([]domain.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Bar
	for _, b := range s.bars[variant][symbol] {
		if b.Date.Before(start) || b.Date.After(end) {
			continue
		}
		out = append(out, b)
	}
	if err := checkAscending(symbol, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListSymbols returns all symbols stored under the variant, sorted.
func (s *MemoryStore) ListSymbols(_ context.Context, variant domain.Variant) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var symbols []string
	for sym := range s.bars[variant] {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	return symbols, nil
}
