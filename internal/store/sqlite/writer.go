// Package sqlite stores candle history per symbol and timeframe.
// Live engines append closed candles through a batching loop; replays and
// warm-up read them back in date order.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"chartscan/internal/logger"
	"chartscan/internal/model"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// Record is one closed candle headed for the store.
type Record struct {
	Symbol    string
	TimeFrame model.TimeFrame
	Candle    model.Candle
}

// Store is a single-writer SQLite candle store with transaction batching.
type Store struct {
	db  *sql.DB
	log zerolog.Logger

	// OnCommit is called with the duration of every committed batch (optional).
	OnCommit func(d time.Duration)
}

var (
	_ model.CandleWriter = (*Store)(nil)
	_ model.CandleReader = (*Store)(nil)
)

// Open opens (or creates) the candle database at path in WAL mode.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer; readers share the same connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	l := logger.For("sqlite")
	l.Info().Str("path", path).Msg("opened candle store")
	return &Store{db: db, log: l}, nil
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			symbol      TEXT    NOT NULL,
			tf          TEXT    NOT NULL,
			ts          INTEGER NOT NULL,
			candle_type TEXT    NOT NULL DEFAULT 'Default',
			open        REAL    NOT NULL,
			high        REAL    NOT NULL,
			low         REAL    NOT NULL,
			close       REAL    NOT NULL,
			volume      REAL    NOT NULL DEFAULT 0,
			PRIMARY KEY (symbol, tf, ts)
		);
	`)
	return err
}

// WriteCandles upserts candles of one symbol and timeframe in a single transaction.
func (s *Store) WriteCandles(ctx context.Context, symbol string, tf model.TimeFrame, candles []model.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	batch := make([]Record, len(candles))
	for i, c := range candles {
		batch[i] = Record{Symbol: symbol, TimeFrame: tf, Candle: c}
	}
	return s.insertBatch(ctx, batch)
}

// Run reads records from ch and inserts them in batched transactions.
// Flushes every batchSize records OR every flushDelay, whichever first.
// Blocks until ctx is cancelled or ch is closed.
func (s *Store) Run(ctx context.Context, ch <-chan Record) {
	batch := make([]Record, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// The run context may already be done; the last batch still goes in.
		if err := s.insertBatch(context.Background(), batch); err != nil {
			s.log.Error().Err(err).Int("candles", len(batch)).Msg("batch insert failed")
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case rec, ok := <-ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, rec)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// insertBatch inserts a batch of records in a single transaction.
func (s *Store) insertBatch(ctx context.Context, batch []Record) error {
	start := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO candles (symbol, tf, ts, candle_type, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, r := range batch {
		c := r.Candle
		_, err := stmt.ExecContext(ctx, r.Symbol, r.TimeFrame.String(), c.Date.Unix(), c.Type.String(),
			c.Open, c.High, c.Low, c.Close, c.Volume)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("insert %s %s %v: %w", r.Symbol, r.TimeFrame, c.Date, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	d := time.Since(start)
	if s.OnCommit != nil {
		s.OnCommit(d)
	}
	s.log.Debug().Int("candles", len(batch)).Dur("took", d).Msg("committed")
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
