package gather

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"github.com/matrixjoeq/xquant/internal/domain"
	"github.com/matrixjoeq/xquant/internal/store"
	"github.com/matrixjoeq/xquant/internal/util"
)

var _ Gatherer = (*DailyBarGatherer)(nil)

// barFetcher is the slice of the Alpaca market-data client the gatherer
// needs. Tests substitute a fake.
type barFetcher interface {
	GetMultiBars(symbols []string, req marketdata.GetBarsRequest) (map[string][]marketdata.Bar, error)
}

// DailyBarGatherer pulls daily OHLCV bars for a fixed universe of symbols
// from the Alpaca market-data API and writes them through the bar store.
// A pass is idempotent: re-running over the same range rewrites the same
// rows.
type DailyBarGatherer struct {
	client  barFetcher
	store   store.BarStore
	symbols []string
	variant domain.Variant
	rng     DateRange
	limiter *util.RateLimiter
	batch   int
	backoff time.Duration // base delay between fetch retries
	log     *slog.Logger
}

// DailyBarOptions configures a DailyBarGatherer.
type DailyBarOptions struct {
	APIKey          string
	APISecret       string
	DataURL         string // empty: Alpaca default
	Symbols         []string
	Variant         domain.Variant
	Range           DateRange
	BatchSize       int // symbols per API call; <=0 means 200
	RateLimitPerMin int // <=0 means 200
}

// NewDailyBarGatherer creates a gatherer for the configured universe.
func NewDailyBarGatherer(opts DailyBarOptions, s store.BarStore, log *slog.Logger) *DailyBarGatherer {
	clientOpts := marketdata.ClientOpts{
		APIKey:    opts.APIKey,
		APISecret: opts.APISecret,
	}
	if opts.DataURL != "" {
		clientOpts.BaseURL = opts.DataURL
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 200
	}
	if opts.RateLimitPerMin <= 0 {
		opts.RateLimitPerMin = 200
	}
	if log == nil {
		log = slog.Default()
	}

	return &DailyBarGatherer{
		client:  marketdata.NewClient(clientOpts),
		store:   s,
		symbols: opts.Symbols,
		variant: opts.Variant,
		rng:     opts.Range,
		limiter: util.NewRateLimiter(opts.RateLimitPerMin),
		batch:   opts.BatchSize,
		backoff: time.Second,
		log:     log.With("gatherer", "alpaca-daily"),
	}
}

// Name returns the gatherer identifier.
func (g *DailyBarGatherer) Name() string { return "alpaca-daily" }

// Run fetches daily bars for every universe symbol in the configured range
// and writes them to the store, batch by batch.
func (g *DailyBarGatherer) Run(ctx context.Context) error {
	if len(g.symbols) == 0 {
		return fmt.Errorf("%w: empty universe", domain.ErrInvalidParameter)
	}
	if g.rng.End.Before(g.rng.Start) {
		return fmt.Errorf("%w: end %s before start %s", domain.ErrInvalidParameter,
			g.rng.End.Format("2006-01-02"), g.rng.Start.Format("2006-01-02"))
	}

	runStart := time.Now()
	var written, missing int

	for i := 0; i < len(g.symbols); i += g.batch {
		end := min(i+g.batch, len(g.symbols))
		batch := g.symbols[i:end]

		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}

		bars, err := g.fetchBatch(ctx, batch)
		if err != nil {
			return fmt.Errorf("%w: fetching %v: %v", store.ErrDataSource, batch, err)
		}

		hit := make(map[string]struct{}, len(batch))
		for _, b := range bars {
			hit[b.Symbol] = struct{}{}
		}
		for _, sym := range batch {
			if _, ok := hit[sym]; !ok {
				missing++
				g.log.Warn("no bars returned", "symbol", sym)
			}
		}

		if len(bars) > 0 {
			if err := g.store.WriteBars(ctx, bars, g.variant); err != nil {
				return fmt.Errorf("writing batch: %w", err)
			}
			written += len(bars)
		}

		g.log.Info("batch done",
			"symbols", len(batch),
			"bars", len(bars),
			"elapsed", time.Since(runStart).Round(time.Second),
		)
	}

	g.log.Info("gather complete", "bars", written, "empty_symbols", missing)
	return nil
}

// fetchBatch fetches one multi-symbol request, retrying transient failures.
func (g *DailyBarGatherer) fetchBatch(ctx context.Context, symbols []string) ([]domain.Bar, error) {
	var multiBars map[string][]marketdata.Bar
	err := util.Retry(ctx, 3, g.backoff, func() error {
		var err error
		multiBars, err = g.client.GetMultiBars(symbols, marketdata.GetBarsRequest{
			TimeFrame: marketdata.OneDay,
			Start:     g.rng.Start,
			End:       g.rng.End,
			Feed:      "sip",
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	var bars []domain.Bar
	for symbol, alpacaBars := range multiBars {
		for _, ab := range alpacaBars {
			bars = append(bars, domain.Bar{
				Symbol: strings.ToUpper(symbol),
				Date:   dateOnly(ab.Timestamp),
				Open:   ab.Open,
				High:   ab.High,
				Low:    ab.Low,
				Close:  ab.Close,
				Volume: int64(ab.Volume),
				Amount: ab.VWAP * float64(ab.Volume),
			})
		}
	}
	return bars, nil
}

// dateOnly truncates a bar timestamp to its UTC calendar date. Daily bars
// are keyed by date, never by intraday time.
func dateOnly(ts time.Time) time.Time {
	y, m, d := ts.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
