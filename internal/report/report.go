// Package report renders backtest results for human and machine consumers:
// a text performance report, equity-curve and trade-log CSVs, and a JSON
// result document.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/matrixjoeq/xquant/internal/domain"
	"github.com/matrixjoeq/xquant/internal/engine"
)

const dateLayout = "2006-01-02"

// WriteText renders the human-readable performance report.
func WriteText(w io.Writer, res *engine.Result) error {
	finalValue := res.Params.InitialCapital
	if n := len(res.Snapshots); n > 0 {
		finalValue = res.Snapshots[n-1].Equity
	}
	s := res.Summary

	var buys, sells int
	for _, f := range res.Fills {
		switch f.Side {
		case domain.OrderSideBuy:
			buys++
		case domain.OrderSideSell:
			sells++
		}
	}

	_, err := fmt.Fprintf(w, `Momentum Rotation Strategy - Performance Report
===============================================

1. Overall Performance
----------------------
Initial Capital:   %.2f
Final Value:       %.2f
Total Return:      %.2f%%
Annualized Return: %.2f%%
Volatility:        %.2f%%
Sharpe Ratio:      %.2f
Maximum Drawdown:  %.2f%%

2. Trade Analysis
-----------------
Total Fills:  %d (buys %d, sells %d)
Rebalances:   %d
Win Rate:     %.2f%%

3. Final Positions
------------------
`,
		res.Params.InitialCapital, finalValue,
		s.TotalReturn*100, s.AnnualizedReturn*100, s.Volatility*100,
		s.SharpeRatio, s.MaxDrawdown*100,
		len(res.Fills), buys, sells, s.Rebalances, s.WinRate*100)
	if err != nil {
		return err
	}

	if len(res.FinalPositions) == 0 {
		_, err = fmt.Fprintln(w, "(all cash)")
		return err
	}
	for _, pos := range res.FinalPositions {
		if _, err := fmt.Fprintf(w, "%s: qty %.4f @ avg cost %.4f\n", pos.Symbol, pos.Qty, pos.AvgCost); err != nil {
			return err
		}
	}
	return nil
}

// WriteEquityCSV writes the equity curve, one row per trading date.
func WriteEquityCSV(w io.Writer, snapshots []domain.Snapshot) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"date", "cash", "holdings_value", "equity"}); err != nil {
		return err
	}
	for _, snap := range snapshots {
		row := []string{
			snap.Date.Format(dateLayout),
			formatFloat(snap.Cash),
			formatFloat(snap.HoldingsValue),
			formatFloat(snap.Equity),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTradesCSV writes the realized trade log, one row per fill.
func WriteTradesCSV(w io.Writer, fills []domain.Fill) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"date", "symbol", "side", "qty", "price", "notional", "cost", "reason"}); err != nil {
		return err
	}
	for _, f := range fills {
		row := []string{
			f.Date.Format(dateLayout),
			f.Symbol,
			string(f.Side),
			formatFloat(f.Qty),
			formatFloat(f.Price),
			formatFloat(f.Notional),
			formatFloat(f.Cost),
			string(f.Reason),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes the complete result as an indented JSON document.
func WriteJSON(w io.Writer, res *engine.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// WriteFiles writes the full report set into dir, creating it if needed:
// performance_report.txt, equity_curve.csv, trades.csv, result.json.
func WriteFiles(dir string, res *engine.Result) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating report dir: %w", err)
	}
	writers := []struct {
		name  string
		write func(io.Writer) error
	}{
		{"performance_report.txt", func(w io.Writer) error { return WriteText(w, res) }},
		{"equity_curve.csv", func(w io.Writer) error { return WriteEquityCSV(w, res.Snapshots) }},
		{"trades.csv", func(w io.Writer) error { return WriteTradesCSV(w, res.Fills) }},
		{"result.json", func(w io.Writer) error { return WriteJSON(w, res) }},
	}
	for _, spec := range writers {
		if err := writeFile(filepath.Join(dir, spec.name), spec.write); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
