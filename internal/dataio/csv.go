package dataio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Alias1177/Backtester/models"
)

var ErrMissingColumn = errors.New("missing required column")

var requiredColumns = []string{"open", "high", "low", "close"}

// accepted date layouts, tried in order
var dateLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

// LedgerHeader is the column order of exported ledgers
var LedgerHeader = []string{"date", "position", "actual_weight", "trade_executed", "exit_reason", "equity"}

// ReadBars parses a bar CSV with a header row. It returns the bars and the
// signal column (nil when the file has no signal or weight column).
func ReadBars(r io.Reader) ([]models.Bar, []float64, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return nil, nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
	}

	signalCol, hasSignal := cols["signal"]
	if !hasSignal {
		signalCol, hasSignal = cols["weight"]
	}
	dateCol, hasDate := cols["date"]
	if !hasDate {
		dateCol, hasDate = cols["time"]
	}

	var bars []models.Bar
	var signals []float64
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", line, err)
		}

		field := func(name string) string {
			if idx, ok := cols[name]; ok && idx < len(record) {
				return strings.TrimSpace(record[idx])
			}
			return ""
		}

		var bar models.Bar
		if hasDate && dateCol < len(record) {
			if bar.Time, err = parseTime(strings.TrimSpace(record[dateCol])); err != nil {
				return nil, nil, fmt.Errorf("line %d: %w", line, err)
			}
		}

		prices := []*float64{&bar.Open, &bar.High, &bar.Low, &bar.Close}
		for i, name := range requiredColumns {
			v, err := strconv.ParseFloat(field(name), 64)
			if err != nil {
				return nil, nil, fmt.Errorf("line %d: %s: %w", line, name, err)
			}
			*prices[i] = v
		}

		if bar.Volume, err = optionalFloat(field("volume"), 0); err != nil {
			return nil, nil, fmt.Errorf("line %d: volume: %w", line, err)
		}
		if bar.ATR, err = optionalFloat(field("atr"), math.NaN()); err != nil {
			return nil, nil, fmt.Errorf("line %d: atr: %w", line, err)
		}
		bar.Regime = models.ParseRegime(field("regime"))

		if hasSignal {
			raw := ""
			if signalCol < len(record) {
				raw = strings.TrimSpace(record[signalCol])
			}
			v, err := optionalFloat(raw, 0)
			if err != nil {
				return nil, nil, fmt.Errorf("line %d: signal: %w", line, err)
			}
			signals = append(signals, v)
		}

		bars = append(bars, bar)
	}

	return bars, signals, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

func optionalFloat(s string, fallback float64) (float64, error) {
	if s == "" || strings.EqualFold(s, "nan") {
		return fallback, nil
	}
	return strconv.ParseFloat(s, 64)
}

// WriteLedger writes ledger rows as CSV. Dates are written as RFC3339 when
// the bar had a timestamp and as the bar index otherwise.
func WriteLedger(w io.Writer, rows []models.LedgerRow) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(LedgerHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, row := range rows {
		date := strconv.Itoa(row.Index)
		if !row.Time.IsZero() {
			date = row.Time.UTC().Format(time.RFC3339)
		}
		record := []string{
			date,
			strconv.Itoa(row.Position),
			formatFixed(row.ActualWeight, 6),
			strconv.FormatBool(row.TradeExecuted),
			row.ExitReason.String(),
			formatFixed(row.Equity, 2),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// decimal panics on non-finite input
func formatFixed(v float64, places int32) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return decimal.NewFromFloat(v).StringFixed(places)
}
