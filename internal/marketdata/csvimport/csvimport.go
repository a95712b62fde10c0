// Package csvimport loads OHLCV history from CSV files into the candle store.
//
// Rows are date,open,high,low,close[,volume]. The date may be a unix
// timestamp in seconds or milliseconds, RFC 3339, or "2006-01-02 15:04:05"
// (UTC). A leading header row is skipped.
package csvimport

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"chartscan/internal/logger"
	"chartscan/internal/marketdata/tfbuilder"
	"chartscan/internal/model"
)

const batchSize = 1000

var layouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"}

// Read parses every row of r as a tick of symbol. Malformed rows are
// skipped and reported together in the returned error; the good rows are
// returned either way.
func Read(r io.Reader, symbol string) ([]model.Tick, error) {
	cr := csv.NewReader(bufio.NewReader(r))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	var (
		ticks []model.Tick
		errs  []error
	)
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("line %d: %w", line, err))
			continue
		}
		if line == 1 && isHeader(rec) {
			continue
		}
		t, err := parseRow(rec, symbol)
		if err != nil {
			errs = append(errs, fmt.Errorf("line %d: %w", line, err))
			continue
		}
		ticks = append(ticks, t)
	}
	return ticks, errors.Join(errs...)
}

func isHeader(rec []string) bool {
	if len(rec) == 0 {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(rec[0])) {
	case "date", "time", "timestamp", "timestamp_ms", "datetime":
		return true
	}
	return false
}

func parseRow(rec []string, symbol string) (model.Tick, error) {
	if len(rec) < 5 {
		return model.Tick{}, fmt.Errorf("want at least 5 fields, got %d", len(rec))
	}
	date, err := parseDate(strings.TrimSpace(rec[0]))
	if err != nil {
		return model.Tick{}, err
	}
	var v [5]float64
	for i := 1; i < len(rec) && i <= 5; i++ {
		if v[i-1], err = strconv.ParseFloat(strings.TrimSpace(rec[i]), 64); err != nil {
			return model.Tick{}, fmt.Errorf("field %d: %w", i+1, err)
		}
	}
	return model.Tick{Symbol: symbol, Date: date, Open: v[0], High: v[1], Low: v[2], Close: v[3], Volume: v[4]}, nil
}

func parseDate(s string) (time.Time, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		// Anything past year 2286 in seconds is a millisecond stamp.
		if n > 9_999_999_999 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// Stats summarizes an import.
type Stats struct {
	Rows    int // ticks pushed
	Stale   int // ticks older than the bucket being built
	Candles int // candles written
}

// Import resamples ticks of symbol into tf and writes every bar, the last
// one included, to w. ticks must be sorted by date.
func Import(ctx context.Context, w model.CandleWriter, symbol string, tf model.TimeFrame, ticks []model.Tick) (Stats, error) {
	log := logger.For("csvimport").With().Str("symbol", symbol).Str("tf", tf.String()).Logger()
	rs := tfbuilder.New(tf)
	batch := make([]model.Candle, 0, batchSize)
	var st Stats

	write := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := w.WriteCandles(ctx, symbol, tf, batch); err != nil {
			return fmt.Errorf("write %d candles: %w", len(batch), err)
		}
		st.Candles += len(batch)
		batch = batch[:0]
		return nil
	}

	for _, t := range ticks {
		res, err := rs.Push(t)
		if errors.Is(err, model.ErrStaleTick) {
			st.Stale++
			continue
		}
		if err != nil {
			return st, err
		}
		st.Rows++
		if res.Closed == nil {
			continue
		}
		batch = append(batch, *res.Closed)
		if len(batch) >= batchSize {
			if err := write(); err != nil {
				return st, err
			}
		}
	}
	if c, ok := rs.Flush(); ok {
		batch = append(batch, c)
	}
	if err := write(); err != nil {
		return st, err
	}
	log.Info().Int("rows", st.Rows).Int("stale", st.Stale).Int("candles", st.Candles).Msg("import complete")
	return st, nil
}
