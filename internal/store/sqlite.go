package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/matrixjoeq/xquant/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ BarStore = (*SQLiteStore)(nil)

// dateLayout is the canonical on-disk date format for daily bars.
const dateLayout = "2006-01-02"

// SQLiteStore implements BarStore backed by a SQLite database with one
// daily_prices table keyed by (symbol, variant, date).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, runs the
// schema migration, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrDataSource, dbPath, err)
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS daily_prices (
	symbol  TEXT NOT NULL,
	variant TEXT NOT NULL,
	date    TEXT NOT NULL,
	open    REAL NOT NULL,
	high    REAL NOT NULL,
	low     REAL NOT NULL,
	close   REAL NOT NULL,
	volume  INTEGER NOT NULL,
	amount  REAL NOT NULL,
	PRIMARY KEY (symbol, variant, date)
);
CREATE INDEX IF NOT EXISTS idx_daily_prices_variant_symbol
	ON daily_prices (variant, symbol);`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("%w: migrating schema: %v", ErrDataSource, err)
	}
	return nil
}

// WriteBars upserts the bars inside a single transaction.
func (s *SQLiteStore) WriteBars(ctx context.Context, bars []domain.Bar, variant domain.Variant) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", ErrDataSource, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO daily_prices (symbol, variant, date, open, high, low, close, volume, amount)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (symbol, variant, date) DO UPDATE SET
	open = excluded.open, high = excluded.high, low = excluded.low,
	close = excluded.close, volume = excluded.volume, amount = excluded.amount`)
	if err != nil {
		return fmt.Errorf("%w: preparing upsert: %v", ErrDataSource, err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx,
			b.Symbol, string(variant), b.Date.Format(dateLayout),
			b.Open, b.High, b.Low, b.Close, b.Volume, b.Amount,
		); err != nil {
			return fmt.Errorf("%w: inserting %s/%s: %v",
				ErrDataSource, b.Symbol, b.Date.Format(dateLayout), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrDataSource, err)
	}
	return nil
}

// ReadBars returns bars for the symbol and variant within [start, end] in
// ascending date order. SQLite enforces date uniqueness via the primary key;
// a malformed date value surfaces as ErrDataGap.
func (s *SQLiteStore) ReadBars(ctx context.Context, symbol string, variant domain.Variant, start, end time.Time) ([]domain.Bar, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT date, open, high, low, close, volume, amount
FROM daily_prices
WHERE symbol = ? AND variant = ? AND date BETWEEN ? AND ?
ORDER BY date`,
		symbol, string(variant), start.Format(dateLayout), end.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("%w: querying %s: %v", ErrDataSource, symbol, err)
	}
	defer rows.Close()

	var bars []domain.Bar
	for rows.Next() {
		var (
			dateStr string
			b       domain.Bar
		)
		if err := rows.Scan(&dateStr, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.Amount); err != nil {
			return nil, fmt.Errorf("%w: scanning %s: %v", ErrDataSource, symbol, err)
		}
		d, err := time.ParseInLocation(dateLayout, dateStr, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("%w: %s has malformed date %q", ErrDataGap, symbol, dateStr)
		}
		b.Symbol = symbol
		b.Date = d
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrDataSource, symbol, err)
	}
	if err := checkAscending(symbol, bars); err != nil {
		return nil, err
	}
	return bars, nil
}

// ListSymbols returns all distinct symbols stored under the variant.
func (s *SQLiteStore) ListSymbols(ctx context.Context, variant domain.Variant) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT symbol FROM daily_prices WHERE variant = ? ORDER BY symbol`,
		string(variant))
	if err != nil {
		return nil, fmt.Errorf("%w: listing symbols: %v", ErrDataSource, err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, fmt.Errorf("%w: scanning symbol: %v", ErrDataSource, err)
		}
		symbols = append(symbols, sym)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: listing symbols: %v", ErrDataSource, err)
	}
	return symbols, nil
}
