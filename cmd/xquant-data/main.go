// xquant-data is the data pipeline CLI: gather daily bars from Alpaca,
// validate stored series, or print per-symbol coverage.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/matrixjoeq/xquant/internal/config"
	"github.com/matrixjoeq/xquant/internal/domain"
	"github.com/matrixjoeq/xquant/internal/gather"
	"github.com/matrixjoeq/xquant/internal/store"
	"github.com/matrixjoeq/xquant/internal/util"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: xquant-data <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  run        Gather daily bars for the configured universe\n")
	fmt.Fprintf(os.Stderr, "  validate   Check stored series for gaps and bad prices\n")
	fmt.Fprintf(os.Stderr, "  status     Print per-symbol bar counts and date coverage\n")
	fmt.Fprintf(os.Stderr, "\n")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	command := os.Args[1]

	fs := flag.NewFlagSet(command, flag.ExitOnError)
	cfgPath := fs.String("config", "config/xquant.yaml", "path to configuration file")
	symbol := fs.String("symbol", "", "restrict to one symbol")
	endDate := fs.String("end", "", "gather end date (YYYY-MM-DD), default today")
	fs.Parse(os.Args[2:])

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	// Dual logger: stdout + dated file, so long gather runs leave a trail.
	logFileName := fmt.Sprintf("/tmp/xquant-data-%s.log", time.Now().Format("2006-01-02"))
	logFile, err := os.Create(logFileName)
	if err != nil {
		log.Fatalf("creating log file: %v", err)
	}
	defer logFile.Close()

	logger := util.NewLoggerTo(io.MultiWriter(os.Stdout, logFile), cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	symbols := cfg.Universe
	if *symbol != "" {
		symbols = []string{*symbol}
	}
	if len(symbols) == 0 {
		log.Fatal("no symbols: set universe in config or pass -symbol")
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

	switch command {
	case "run":
		if err := runGather(ctx, cfg, barStore, symbols, variant, *endDate, logger); err != nil {
			log.Fatalf("gather failed: %v", err)
		}

	case "validate":
		issues, err := gather.Validate(ctx, barStore, symbols, variant, logger)
		if err != nil {
			log.Fatalf("validate failed: %v", err)
		}
		for _, iss := range issues {
			fmt.Println(iss)
		}
		if len(issues) > 0 {
			os.Exit(1)
		}
		fmt.Printf("%d symbols clean\n", len(symbols))

	case "status":
		statuses, err := gather.Status(ctx, barStore, symbols, variant)
		if err != nil {
			log.Fatalf("status failed: %v", err)
		}
		fmt.Printf("%-10s %8s  %-10s  %-10s\n", "SYMBOL", "BARS", "FIRST", "LAST")
		for _, st := range statuses {
			first, last := "-", "-"
			if st.Bars > 0 {
				first = st.First.Format("2006-01-02")
				last = st.Last.Format("2006-01-02")
			}
			fmt.Printf("%-10s %8d  %-10s  %-10s\n", st.Symbol, st.Bars, first, last)
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", command)
		usage()
		os.Exit(1)
	}
}

func runGather(ctx context.Context, cfg *config.Config, s store.BarStore, symbols []string, variant domain.Variant, endOverride string, logger *slog.Logger) error {
	start, err := time.Parse("2006-01-02", cfg.Gather.StartDate)
	if err != nil {
		return fmt.Errorf("parsing gather start_date %q: %w", cfg.Gather.StartDate, err)
	}
	end := time.Now().UTC().Truncate(24 * time.Hour)
	if endOverride != "" {
		end, err = time.Parse("2006-01-02", endOverride)
		if err != nil {
			return fmt.Errorf("parsing -end %q: %w", endOverride, err)
		}
	}

	g := gather.NewDailyBarGatherer(gather.DailyBarOptions{
		APIKey:          cfg.Alpaca.APIKey,
		APISecret:       cfg.Alpaca.APISecret,
		DataURL:         cfg.Alpaca.DataURL,
		Symbols:         symbols,
		Variant:         variant,
		Range:           gather.DateRange{Start: start, End: end},
		BatchSize:       cfg.Gather.BatchSize,
		RateLimitPerMin: cfg.Gather.RateLimitPerMin,
	}, s, logger)

	return g.Run(ctx)
}
