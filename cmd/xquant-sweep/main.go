// xquant-sweep grid-searches lookback x top-N over the configured universe.
// Runs share nothing, so they execute in parallel across a worker pool. The
// per-combination metrics land in a CSV sorted by Sharpe ratio.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"syscall"

	"github.com/matrixjoeq/xquant/internal/analytics"
	"github.com/matrixjoeq/xquant/internal/config"
	"github.com/matrixjoeq/xquant/internal/engine"
	"github.com/matrixjoeq/xquant/internal/store"
	"github.com/matrixjoeq/xquant/internal/util"
)

type job struct {
	lookback int
	topN     int
}

type outcome struct {
	job     job
	summary analytics.Summary
	err     error
}

func main() {
	var (
		cfgPath = flag.String("config", "config/xquant.yaml", "path to configuration file")
		outPath = flag.String("out", "results/sweep.csv", "path for the results CSV")
		workers = flag.Int("workers", 0, "override worker count")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	if *workers > 0 {
		cfg.Sweep.Workers = *workers
	}
	if cfg.Sweep.Workers <= 0 {
		cfg.Sweep.Workers = 1
	}
	if len(cfg.Sweep.Lookbacks) == 0 || len(cfg.Sweep.TopNs) == 0 {
		log.Fatal("sweep.lookbacks and sweep.top_ns must be non-empty")
	}

	baseParams, err := cfg.Backtest.Params()
	if err != nil {
		log.Fatalf("invalid parameters: %v", err)
	}
	startDate, endDate, err := cfg.Backtest.Range()
	if err != nil {
		log.Fatalf("invalid range: %v", err)
	}
	variant, err := cfg.Backtest.AdjustVariant()
	if err != nil {
		log.Fatalf("invalid variant: %v", err)
	}

	barStore, closeStore, err := store.Open(cfg.Storage.Backend, cfg.Storage.DataDir, cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("opening store: %v", err)
	}
	defer closeStore()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	jobs := make(chan job)
	results := make(chan outcome)

	var wg sync.WaitGroup
	for w := 0; w < cfg.Sweep.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				params := baseParams
				params.LookbackPeriod = j.lookback
				params.TopNHoldings = j.topN

				res, err := engine.NewBacktester(barStore, logger).Run(ctx, engine.RunConfig{
					Universe: cfg.Universe,
					Variant:  variant,
					Start:    startDate,
					End:      endDate,
					Params:   params,
				})
				out := outcome{job: j, err: err}
				if err == nil {
					out.summary = res.Summary
				}
				results <- out
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, lb := range cfg.Sweep.Lookbacks {
			for _, n := range cfg.Sweep.TopNs {
				select {
				case jobs <- job{lookback: lb, topN: n}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	var done []outcome
	for out := range results {
		if out.err != nil {
			logger.Error("combination failed",
				"lookback", out.job.lookback, "top_n", out.job.topN, "err", out.err)
			continue
		}
		logger.Info("combination done",
			"lookback", out.job.lookback,
			"top_n", out.job.topN,
			"sharpe", out.summary.SharpeRatio,
			"total_return", out.summary.TotalReturn,
		)
		done = append(done, out)
	}
	if err := ctx.Err(); err != nil {
		log.Fatalf("sweep interrupted: %v", err)
	}
	if len(done) == 0 {
		log.Fatal("no combination completed")
	}

	sort.Slice(done, func(i, j int) bool {
		return done[i].summary.SharpeRatio > done[j].summary.SharpeRatio
	})

	if err := writeCSV(*outPath, done); err != nil {
		log.Fatalf("writing %s: %v", *outPath, err)
	}

	best := done[0]
	logger.Info("sweep done",
		"combinations", len(done),
		"best_lookback", best.job.lookback,
		"best_top_n", best.job.topN,
		"best_sharpe", best.summary.SharpeRatio,
		"out", *outPath,
	)
}

func writeCSV(path string, done []outcome) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"lookback", "top_n", "total_return", "annualized_return",
		"volatility", "sharpe_ratio", "max_drawdown", "win_rate", "rebalances"}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, out := range done {
		s := out.summary
		row := []string{
			strconv.Itoa(out.job.lookback),
			strconv.Itoa(out.job.topN),
			formatFloat(s.TotalReturn),
			formatFloat(s.AnnualizedReturn),
			formatFloat(s.Volatility),
			formatFloat(s.SharpeRatio),
			formatFloat(s.MaxDrawdown),
			formatFloat(s.WinRate),
			strconv.Itoa(s.Rebalances),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
