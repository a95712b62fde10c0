package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"chartscan/internal/model"
)

// ReadCandles returns candles of symbol and tf with from <= date < to,
// ordered by date ascending for correct replay order. A zero to means no
// upper bound. Stored formation tags are not restored: the instrument
// classifies candles itself as they are replayed.
func (s *Store) ReadCandles(ctx context.Context, symbol string, tf model.TimeFrame, from, to time.Time) ([]model.Candle, error) {
	upper := int64(1<<62 - 1)
	if !to.IsZero() {
		upper = to.Unix()
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume
		FROM candles
		WHERE symbol = ? AND tf = ? AND ts >= ? AND ts < ?
		ORDER BY ts ASC
	`, symbol, tf.String(), from.Unix(), upper)
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles: %w", err)
	}
	defer rows.Close()

	var candles []model.Candle
	for rows.Next() {
		var (
			c  model.Candle
			ts int64
		)
		if err := rows.Scan(&ts, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan candles: %w", err)
		}
		c.Date = time.Unix(ts, 0).UTC()
		c.IsClosed = true
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// Symbols lists every symbol with candles stored for tf, sorted by name.
func (s *Store) Symbols(ctx context.Context, tf model.TimeFrame) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT symbol FROM candles WHERE tf = ? ORDER BY symbol`, tf.String())
	if err != nil {
		return nil, fmt.Errorf("sqlite query symbols: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, err
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}

// LastDate returns the date of the newest stored candle, or the zero time
// when nothing is stored for symbol and tf.
func (s *Store) LastDate(ctx context.Context, symbol string, tf model.TimeFrame) (time.Time, error) {
	var ts sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(ts) FROM candles WHERE symbol = ? AND tf = ?`,
		symbol, tf.String(),
	).Scan(&ts)
	if err != nil {
		return time.Time{}, err
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return time.Unix(ts.Int64, 0).UTC(), nil
}
