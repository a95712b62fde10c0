package model

import (
	"context"
	"time"
)

// ── Storage Port Interfaces ──
// These decouple the engine from Redis and SQLite.

// CandleWriter persists closed candles of one symbol/timeframe.
type CandleWriter interface {
	WriteCandles(ctx context.Context, symbol string, tf TimeFrame, candles []Candle) error
	Close() error
}

// CandleReader loads candle history for replay and warm-up.
type CandleReader interface {
	// ReadCandles returns candles with from <= date < to, oldest first.
	// A zero to means no upper bound.
	ReadCandles(ctx context.Context, symbol string, tf TimeFrame, from, to time.Time) ([]Candle, error)

	// Symbols lists every symbol stored for tf.
	Symbols(ctx context.Context, tf TimeFrame) ([]string, error)

	Close() error
}

// TradeJournal records fills for audit and restart.
type TradeJournal interface {
	RecordEntry(ctx context.Context, in TradeIn) error
	RecordExit(ctx context.Context, out TradeOut) error
	Close() error
}

// RecordPublisher fans engine output out to downstream consumers.
type RecordPublisher interface {
	PublishPattern(ctx context.Context, symbol string, tf TimeFrame, p Pattern) error
	PublishOrder(ctx context.Context, o Order) error
	PublishTradeIn(ctx context.Context, in TradeIn) error
	PublishTradeOut(ctx context.Context, out TradeOut) error

	// SaveSnapshot stores the latest JSON-encoded instrument snapshot.
	// Raw bytes keep model free of an instrument import.
	SaveSnapshot(ctx context.Context, symbol string, tf TimeFrame, data []byte) error

	Close() error
}
