// xquant-backtest runs one momentum-rotation backtest from the configuration
// file and writes the report set (text, CSVs, JSON) to the output directory.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/matrixjoeq/xquant/internal/config"
	"github.com/matrixjoeq/xquant/internal/engine"
	"github.com/matrixjoeq/xquant/internal/report"
	"github.com/matrixjoeq/xquant/internal/store"
	"github.com/matrixjoeq/xquant/internal/util"
)

func main() {
	var (
		cfgPath  = flag.String("config", "config/xquant.yaml", "path to configuration file")
		outDir   = flag.String("out", "results", "directory for report files")
		start    = flag.String("start", "", "override backtest start date (YYYY-MM-DD)")
		end      = flag.String("end", "", "override backtest end date (YYYY-MM-DD)")
		lookback = flag.Int("lookback", 0, "override lookback period in trading days")
		topN     = flag.Int("top-n", 0, "override number of holdings")
	)
	flag.Parse()

	if p := os.Getenv("XQUANT_CONFIG"); p != "" && *cfgPath == "config/xquant.yaml" {
		*cfgPath = p
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if *start != "" {
		cfg.Backtest.Start = *start
	}
	if *end != "" {
		cfg.Backtest.End = *end
	}
	if *lookback > 0 {
		cfg.Backtest.LookbackPeriod = *lookback
	}
	if *topN > 0 {
		cfg.Backtest.TopNHoldings = *topN
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	params, err := cfg.Backtest.Params()
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

	logger.Info("starting backtest",
		"universe", len(cfg.Universe),
		"start", cfg.Backtest.Start,
		"end", cfg.Backtest.End,
		"lookback", params.LookbackPeriod,
		"top_n", params.TopNHoldings,
		"freq", params.RebalanceFreq,
	)

	res, err := engine.NewBacktester(barStore, logger).Run(ctx, engine.RunConfig{
		Universe: cfg.Universe,
		Variant:  variant,
		Start:    startDate,
		End:      endDate,
		Params:   params,
	})
	if err != nil {
		log.Fatalf("backtest failed: %v", err)
	}

	if err := report.WriteFiles(*outDir, res); err != nil {
		log.Fatalf("writing reports: %v", err)
	}
	if err := report.WriteText(os.Stdout, res); err != nil {
		log.Fatalf("writing summary: %v", err)
	}

	logger.Info("backtest done",
		"total_return", res.Summary.TotalReturn,
		"sharpe", res.Summary.SharpeRatio,
		"max_drawdown", res.Summary.MaxDrawdown,
		"rebalances", res.Summary.Rebalances,
		"out", *outDir,
	)
}
