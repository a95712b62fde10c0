package execution

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"chartscan/internal/logger"
	"chartscan/internal/model"
)

// Journal persists entries and round trips to SQLite for analysis and audit.
type Journal struct {
	mu  sync.Mutex
	db  *sql.DB
	log zerolog.Logger
}

var _ model.TradeJournal = (*Journal)(nil)

// NewJournal opens (or creates) a SQLite journal database.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_sync=NORMAL")
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS trade_entries (
		id          TEXT PRIMARY KEY,
		symbol      TEXT NOT NULL,
		bar_index   INTEGER NOT NULL,
		trade_type  TEXT NOT NULL,
		price       TEXT NOT NULL,
		quantity    TEXT NOT NULL,
		spread      TEXT NOT NULL,
		order_id    TEXT,
		entered_at  DATETIME NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS trade_exits (
		id            TEXT PRIMARY KEY,
		entry_id      TEXT NOT NULL REFERENCES trade_entries(id),
		bar_index     INTEGER NOT NULL,
		trade_type    TEXT NOT NULL,
		price_out     TEXT NOT NULL,
		profit        TEXT NOT NULL,
		profit_per    REAL NOT NULL,
		run_up        TEXT NOT NULL,
		run_up_per    REAL NOT NULL,
		draw_down     TEXT NOT NULL,
		draw_down_per REAL NOT NULL,
		exited_at     DATETIME NOT NULL,
		created_at    DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_entries_symbol ON trade_entries(symbol);
	CREATE INDEX IF NOT EXISTS idx_exits_exited_at ON trade_exits(exited_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	l := logger.For("journal")
	l.Info().Str("path", dbPath).Msg("opened trade journal")
	return &Journal{db: db, log: l}, nil
}

// RecordEntry persists an entry fill. Recording the same entry twice is a no-op.
func (j *Journal) RecordEntry(ctx context.Context, in model.TradeIn) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO trade_entries (id, symbol, bar_index, trade_type, price, quantity, spread, order_id, entered_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.ID, in.Symbol, in.Index, in.Type.String(),
		in.Price.String(), in.Quantity.String(), in.Spread.String(), in.OrderID,
		in.Date.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("journal entry %s: %w", in.ID, err)
	}
	return nil
}

// RecordExit persists a closed trade together with its entry.
func (j *Journal) RecordExit(ctx context.Context, out model.TradeOut) error {
	if err := j.RecordEntry(ctx, out.TradeIn); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO trade_exits (id, entry_id, bar_index, trade_type, price_out, profit, profit_per,
		 run_up, run_up_per, draw_down, draw_down_per, exited_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		out.ID, out.TradeIn.ID, out.IndexOut, out.Type.String(), out.PriceOut.String(),
		out.Profit.String(), out.ProfitPer, out.RunUp.String(), out.RunUpPer,
		out.DrawDown.String(), out.DrawDownPer, out.DateOut.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("journal exit %s: %w", out.ID, err)
	}
	return nil
}

// TradeRecord is a row of the closed-trades view.
type TradeRecord struct {
	ID        string          `json:"id"`
	EntryID   string          `json:"entry_id"`
	Symbol    string          `json:"symbol"`
	EntryType string          `json:"entry_type"`
	ExitType  string          `json:"exit_type"`
	Price     decimal.Decimal `json:"price"`
	PriceOut  decimal.Decimal `json:"price_out"`
	Quantity  decimal.Decimal `json:"quantity"`
	Profit    decimal.Decimal `json:"profit"`
	ProfitPer float64         `json:"profit_per"`
	EnteredAt string          `json:"entered_at"`
	ExitedAt  string          `json:"exited_at"`
}

// Trades returns the last limit closed trades, newest first.
func (j *Journal) Trades(ctx context.Context, limit int) ([]TradeRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.QueryContext(ctx,
		`SELECT x.id, e.id, e.symbol, e.trade_type, x.trade_type, e.price, x.price_out, e.quantity,
		        x.profit, x.profit_per, e.entered_at, x.exited_at
		 FROM trade_exits x JOIN trade_entries e ON e.id = x.entry_id
		 ORDER BY x.exited_at DESC, x.rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []TradeRecord
	for rows.Next() {
		var (
			t                            TradeRecord
			price, priceOut, qty, profit string
		)
		if err := rows.Scan(&t.ID, &t.EntryID, &t.Symbol, &t.EntryType, &t.ExitType, &price, &priceOut, &qty,
			&profit, &t.ProfitPer, &t.EnteredAt, &t.ExitedAt); err != nil {
			j.log.Warn().Err(err).Msg("skipping unreadable trade row")
			continue
		}
		for _, f := range []struct {
			name string
			raw  string
			dst  *decimal.Decimal
		}{
			{"price", price, &t.Price},
			{"price_out", priceOut, &t.PriceOut},
			{"quantity", qty, &t.Quantity},
			{"profit", profit, &t.Profit},
		} {
			v, err := decimal.NewFromString(f.raw)
			if err != nil {
				return nil, fmt.Errorf("trade %s: %s: %w", t.ID, f.name, err)
			}
			*f.dst = v
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
