package store

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/franalgaba/hyperliquid-backtesting/pkg/types"
)

// ExportResult writes result.json, trades.csv, and equity.csv into dir.
// Each file is written to a .tmp sibling and renamed into place so a crash
// mid-write never leaves a partial file behind.
func ExportResult(dir string, res *types.SimResult) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := writeJSON(filepath.Join(dir, "result.json"), res); err != nil {
		return err
	}
	if err := writeTradesCSV(filepath.Join(dir, "trades.csv"), res.Trades); err != nil {
		return err
	}
	return writeEquityCSV(filepath.Join(dir, "equity.csv"), res.EquityCurve)
}

func writeJSON(path string, res *types.SimResult) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	return atomicWrite(path, data)
}

func writeTradesCSV(path string, trades []types.Trade) error {
	return writeCSV(path,
		[]string{"ts_ms", "symbol", "side", "size", "price", "fee", "order_id"},
		len(trades),
		func(i int) []string {
			t := trades[i]
			return []string{
				strconv.FormatUint(t.TsMs, 10),
				t.Symbol,
				string(t.Side),
				strconv.FormatFloat(t.Size, 'g', -1, 64),
				strconv.FormatFloat(t.Price, 'g', -1, 64),
				strconv.FormatFloat(t.Fee, 'g', -1, 64),
				strconv.FormatUint(t.OrderID, 10),
			}
		})
}

func writeEquityCSV(path string, points []types.EquityPoint) error {
	return writeCSV(path,
		[]string{"ts_ms", "equity", "cash", "position_value"},
		len(points),
		func(i int) []string {
			p := points[i]
			return []string{
				strconv.FormatUint(p.TsMs, 10),
				strconv.FormatFloat(p.Equity, 'g', -1, 64),
				strconv.FormatFloat(p.Cash, 'g', -1, 64),
				strconv.FormatFloat(p.PositionValue, 'g', -1, 64),
			}
		})
}

func writeCSV(path string, header []string, n int, row func(i int) []string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return fmt.Errorf("write header: %w", err)
	}
	for i := 0; i < n; i++ {
		if err := w.Write(row(i)); err != nil {
			f.Close()
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flush %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	return os.Rename(tmp, path)
}

func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	return os.Rename(tmp, path)
}
