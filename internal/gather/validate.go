package gather

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/matrixjoeq/xquant/internal/domain"
	"github.com/matrixjoeq/xquant/internal/store"
)

// maxCalendarGapDays flags series with suspiciously long holes. Ordinary
// weekends and holiday clusters stay under this.
const maxCalendarGapDays = 10

// Issue is one data-quality finding for a stored series.
type Issue struct {
	Symbol string
	Date   time.Time
	Kind   string // "missing", "ordering", "price", "volume", "gap"
	Detail string
}

func (i Issue) String() string {
	if i.Date.IsZero() {
		return fmt.Sprintf("%s: %s: %s", i.Symbol, i.Kind, i.Detail)
	}
	return fmt.Sprintf("%s %s: %s: %s", i.Symbol, i.Date.Format("2006-01-02"), i.Kind, i.Detail)
}

// SymbolStatus summarizes one stored series.
type SymbolStatus struct {
	Symbol string
	Bars   int
	First  time.Time
	Last   time.Time
}

// Validate checks every symbol's stored series for structural and sanity
// defects: missing data, ordering violations, non-positive or inconsistent
// prices, negative volume, and calendar gaps longer than holidays explain.
// It returns all findings; an empty slice means the data is clean.
func Validate(ctx context.Context, s store.BarStore, symbols []string, variant domain.Variant, log *slog.Logger) ([]Issue, error) {
	if log == nil {
		log = slog.Default()
	}

	var issues []Issue
	for _, sym := range symbols {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		bars, err := readAll(ctx, s, sym, variant)
		if err != nil {
			// Ordering defects are reported as findings, not failures.
			issues = append(issues, Issue{Symbol: sym, Kind: "ordering", Detail: err.Error()})
			continue
		}
		if len(bars) == 0 {
			issues = append(issues, Issue{Symbol: sym, Kind: "missing", Detail: "no bars stored"})
			continue
		}

		issues = append(issues, checkBars(sym, bars)...)
	}

	log.Info("validation done", "symbols", len(symbols), "issues", len(issues))
	return issues, nil
}

// Status reports bar count and date coverage per symbol. Symbols with no
// stored bars appear with a zero count.
func Status(ctx context.Context, s store.BarStore, symbols []string, variant domain.Variant) ([]SymbolStatus, error) {
	statuses := make([]SymbolStatus, 0, len(symbols))
	for _, sym := range symbols {
		bars, err := readAll(ctx, s, sym, variant)
		if err != nil {
			return nil, err
		}
		st := SymbolStatus{Symbol: sym, Bars: len(bars)}
		if len(bars) > 0 {
			st.First = bars[0].Date
			st.Last = bars[len(bars)-1].Date
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}

func checkBars(symbol string, bars []domain.Bar) []Issue {
	var issues []Issue
	for i, b := range bars {
		switch {
		case b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0:
			issues = append(issues, Issue{Symbol: symbol, Date: b.Date, Kind: "price",
				Detail: "non-positive price"})
		case b.High < b.Low:
			issues = append(issues, Issue{Symbol: symbol, Date: b.Date, Kind: "price",
				Detail: fmt.Sprintf("high %g below low %g", b.High, b.Low)})
		case b.Close > b.High || b.Close < b.Low:
			issues = append(issues, Issue{Symbol: symbol, Date: b.Date, Kind: "price",
				Detail: fmt.Sprintf("close %g outside [%g, %g]", b.Close, b.Low, b.High)})
		}
		if b.Volume < 0 {
			issues = append(issues, Issue{Symbol: symbol, Date: b.Date, Kind: "volume",
				Detail: fmt.Sprintf("negative volume %d", b.Volume)})
		}
		if i > 0 {
			if days := int(b.Date.Sub(bars[i-1].Date).Hours() / 24); days > maxCalendarGapDays {
				issues = append(issues, Issue{Symbol: symbol, Date: b.Date, Kind: "gap",
					Detail: fmt.Sprintf("%d calendar days since previous bar", days)})
			}
		}
	}
	return issues
}

// readAll reads a symbol's entire stored series regardless of range.
func readAll(ctx context.Context, s store.BarStore, symbol string, variant domain.Variant) ([]domain.Bar, error) {
	start := time.Time{}
	end := time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
	return s.ReadBars(ctx, symbol, variant, start, end)
}
