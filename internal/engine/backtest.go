package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/matrixjoeq/xquant/internal/analytics"
	"github.com/matrixjoeq/xquant/internal/domain"
	"github.com/matrixjoeq/xquant/internal/store"
	"github.com/matrixjoeq/xquant/internal/strategy"
)

// RunConfig describes one backtest run: the universe, the date range, the
// adjustment variant to read, and the strategy parameters.
type RunConfig struct {
	Universe []string
	Variant  domain.Variant
	Start    time.Time
	End      time.Time
	Params   domain.Params
}

// Result is the read-only outcome of a run: the equity curve, the realized
// trade log, the executed rebalance dates, the performance summary, and the
// final open positions.
type Result struct {
	Params         domain.Params     `json:"params"`
	Snapshots      []domain.Snapshot `json:"snapshots"`
	Fills          []domain.Fill     `json:"fills"`
	RebalanceDates []time.Time       `json:"rebalance_dates"`
	FinalPositions []domain.Position `json:"final_positions"`
	Summary        analytics.Summary `json:"summary"`
}

// Backtester replays historical bars through the rotation strategy. Each Run
// owns an isolated ledger, so independent runs may execute concurrently;
// parallelism belongs across runs, never inside one run's date loop.
type Backtester struct {
	store  store.BarStore
	ranker strategy.Ranker // nil: momentum ranker built from params
	sizer  strategy.Sizer  // nil: equal-weight sizer built from params
	log    *slog.Logger
}

// NewBacktester creates a Backtester reading bars from the given store with
// the default momentum ranking and equal-weight sizing.
func NewBacktester(s store.BarStore, log *slog.Logger) *Backtester {
	if log == nil {
		log = slog.Default()
	}
	return &Backtester{store: s, log: log.With("component", "backtest")}
}

// WithRanker replaces the ranking rule. Returns the backtester for chaining.
func (bt *Backtester) WithRanker(r strategy.Ranker) *Backtester {
	bt.ranker = r
	return bt
}

// WithSizer replaces the sizing rule. Returns the backtester for chaining.
func (bt *Backtester) WithSizer(s strategy.Sizer) *Backtester {
	bt.sizer = s
	return bt
}

// Run executes the simulation over the configured date range and returns the
// result. Identical inputs always produce an identical equity curve.
func (bt *Backtester) Run(ctx context.Context, cfg RunConfig) (*Result, error) {
	if err := cfg.Params.Validate(); err != nil {
		return nil, err
	}
	if len(cfg.Universe) == 0 {
		return nil, fmt.Errorf("%w: empty universe", domain.ErrInvalidParameter)
	}
	if !cfg.Variant.Valid() {
		return nil, fmt.Errorf("%w: adjustment variant %q", domain.ErrInvalidParameter, cfg.Variant)
	}
	if cfg.End.Before(cfg.Start) {
		return nil, fmt.Errorf("%w: end %s before start %s", domain.ErrInvalidParameter,
			cfg.End.Format("2006-01-02"), cfg.Start.Format("2006-01-02"))
	}

	series, err := bt.loadSeries(ctx, cfg)
	if err != nil {
		return nil, err
	}

	calendar := domain.UnionDates(series)
	if len(calendar) == 0 {
		return nil, fmt.Errorf("%w: no bars for universe %v in range", store.ErrDataGap, cfg.Universe)
	}

	marks, err := strategy.RebalanceDays(calendar, cfg.Params.RebalanceFreq)
	if err != nil {
		return nil, err
	}

	ranker := bt.ranker
	if ranker == nil {
		ranker = strategy.NewMomentumRanker(cfg.Params.LookbackPeriod, cfg.Params.TopNHoldings)
	}
	sizer := bt.sizer
	if sizer == nil {
		sizer = strategy.NewEqualWeightSizer(cfg.Params)
	}

	ledger := NewLedger(cfg.Params.InitialCapital)
	risk := NewRiskManager(cfg.Params.StopLossPct, cfg.Params.TrailingStopPct, bt.log)
	exec := NewExecutionSimulator(cfg.Params.TransactionCost, cfg.Params.MinCashBuffer, bt.log)

	// Per-series cursors advance the carried price map in one pass.
	cursors := make([]int, len(series))
	prices := make(map[string]float64, len(series))

	var rebalanceDates []time.Time

	for i, date := range calendar {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Advance carried closes; symbols without a bar today keep their
		// last close for valuation only. Scoring still requires a real bar
		// at the as-of date (the ranker checks the series itself).
		for si, s := range series {
			for cursors[si] < s.Len() && !s.Bars[cursors[si]].Date.After(date) {
				prices[s.Symbol] = s.Bars[cursors[si]].Close
				cursors[si]++
			}
		}

		ledger.MarkToMarket(date, prices)

		// Forced exits come first; exited instruments sit out today's
		// rebalance and may re-enter at the next one.
		exited := make(map[string]bool)
		if exits := risk.Check(ledger.Positions(), prices); len(exits) > 0 {
			if err := exec.ExecuteExits(ledger, exits, prices, date); err != nil {
				return nil, bt.fatal(ledger, date, err)
			}
			for _, o := range exits {
				exited[o.Symbol] = true
			}
		}

		if !marks[i] {
			continue
		}

		rankable := make([]*domain.Series, 0, len(series))
		for _, s := range series {
			if !exited[s.Symbol] {
				rankable = append(rankable, s)
			}
		}

		ranked, err := ranker.Rank(date, rankable)
		if err != nil {
			if errors.Is(err, strategy.ErrInsufficientHistory) {
				// Policy: skip this rebalance and hold prior weights.
				bt.log.Warn("skipping rebalance", "date", date.Format("2006-01-02"), "err", err)
				continue
			}
			return nil, bt.fatal(ledger, date, err)
		}

		targets := sizer.Size(ranked)
		if err := exec.Rebalance(ledger, targets, prices, date); err != nil {
			return nil, bt.fatal(ledger, date, err)
		}
		rebalanceDates = append(rebalanceDates, date)
	}

	return &Result{
		Params:         cfg.Params,
		Snapshots:      ledger.Snapshots(),
		Fills:          ledger.Fills(),
		RebalanceDates: rebalanceDates,
		FinalPositions: ledger.Positions(),
		Summary:        analytics.Summarize(ledger.Snapshots(), rebalanceDates),
	}, nil
}

// loadSeries reads every universe symbol's bars up front. Store failures
// propagate; the simulation never starts on broken data.
func (bt *Backtester) loadSeries(ctx context.Context, cfg RunConfig) ([]*domain.Series, error) {
	series := make([]*domain.Series, 0, len(cfg.Universe))
	for _, sym := range cfg.Universe {
		s, err := store.ReadSeries(ctx, bt.store, sym, cfg.Variant, cfg.Start, cfg.End)
		if err != nil {
			return nil, err
		}
		if s.Len() == 0 {
			bt.log.Warn("no bars for symbol in range", "symbol", sym)
		}
		series = append(series, s)
	}
	return series, nil
}

// fatal logs the full ledger state for diagnosis and wraps the error.
// Mid-run invariant violations abort the run; nothing is retried.
func (bt *Backtester) fatal(l *Ledger, date time.Time, err error) error {
	bt.log.Error("run aborted", "date", date.Format("2006-01-02"), "err", err, "ledger", l.Dump())
	return fmt.Errorf("run aborted at %s: %w", date.Format("2006-01-02"), err)
}
