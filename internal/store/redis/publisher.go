// Package redis publishes engine output to Redis: patterns, orders and
// trades go to capped streams, instrument snapshots to plain keys, and every
// write is echoed on a pub/sub channel for live dashboards.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"chartscan/internal/logger"
	"chartscan/internal/model"
)

const defaultStreamMaxLen = 10000

// Config configures the Redis publisher.
type Config struct {
	Addr         string // e.g. "localhost:6379"
	Password     string
	DB           int
	StreamMaxLen int64 // approximate cap per stream, 0 uses the default
}

// PatternStream is the stream patterns of symbol on tf are appended to.
func PatternStream(symbol string, tf model.TimeFrame) string {
	return "patterns:" + tf.String() + ":" + symbol
}

// OrderStream is the stream order updates of symbol are appended to.
func OrderStream(symbol string) string { return "orders:" + symbol }

// TradeStream is the stream entry and exit fills of symbol are appended to.
func TradeStream(symbol string) string { return "trades:" + symbol }

// SnapshotKey holds the latest instrument snapshot of symbol on tf.
func SnapshotKey(symbol string, tf model.TimeFrame) string {
	return "snapshot:" + tf.String() + ":" + symbol
}

// Channel is the pub/sub channel mirroring a stream or key.
func Channel(key string) string { return "pub:" + key }

// write is one pipelined publish: an XADD and/or a SET, then a PUBLISH.
type write struct {
	Stream string
	Key    string
	Data   []byte
}

type patternRecord struct {
	Symbol    string          `json:"symbol"`
	TimeFrame model.TimeFrame `json:"timeframe"`
	Pattern   model.Pattern   `json:"pattern"`
}

type tradeRecord struct {
	Event    string          `json:"event"`
	TradeIn  *model.TradeIn  `json:"trade_in,omitempty"`
	TradeOut *model.TradeOut `json:"trade_out,omitempty"`
}

func patternWrite(symbol string, tf model.TimeFrame, p model.Pattern) (write, error) {
	data, err := json.Marshal(patternRecord{Symbol: symbol, TimeFrame: tf, Pattern: p})
	if err != nil {
		return write{}, fmt.Errorf("marshal pattern: %w", err)
	}
	return write{Stream: PatternStream(symbol, tf), Data: data}, nil
}

func orderWrite(o model.Order) (write, error) {
	data, err := json.Marshal(o)
	if err != nil {
		return write{}, fmt.Errorf("marshal order %s: %w", o.ID, err)
	}
	return write{Stream: OrderStream(o.Symbol), Data: data}, nil
}

func tradeWrite(symbol string, rec tradeRecord) (write, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return write{}, fmt.Errorf("marshal %s: %w", rec.Event, err)
	}
	return write{Stream: TradeStream(symbol), Data: data}, nil
}

// Publisher writes engine records to Redis. It implements model.RecordPublisher.
type Publisher struct {
	client *goredis.Client
	maxLen int64
	log    zerolog.Logger
	buf    *BufferedWriter

	// OnWrite is called with the round-trip time of every pipeline (optional).
	OnWrite func(d time.Duration)
}

var _ model.RecordPublisher = (*Publisher)(nil)

// New connects to Redis and pings the server.
func New(cfg Config) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	maxLen := cfg.StreamMaxLen
	if maxLen <= 0 {
		maxLen = defaultStreamMaxLen
	}
	l := logger.For("redis")
	l.Info().Str("addr", cfg.Addr).Msg("connected")
	return &Publisher{client: client, maxLen: maxLen, log: l}, nil
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// EnableBreaker routes every write through cb. While cb is open, writes are
// buffered (up to maxBuffer, oldest dropped first) and replayed once it closes.
func (p *Publisher) EnableBreaker(ctx context.Context, cb *CircuitBreaker, maxBuffer int) *BufferedWriter {
	p.buf = newBufferedWriter(ctx, p.exec, cb, maxBuffer)
	return p.buf
}

// PublishPattern appends a detected or updated pattern.
func (p *Publisher) PublishPattern(ctx context.Context, symbol string, tf model.TimeFrame, pat model.Pattern) error {
	w, err := patternWrite(symbol, tf, pat)
	if err != nil {
		return err
	}
	return p.submit(ctx, w)
}

// PublishOrder appends an order state change.
func (p *Publisher) PublishOrder(ctx context.Context, o model.Order) error {
	w, err := orderWrite(o)
	if err != nil {
		return err
	}
	return p.submit(ctx, w)
}

// PublishTradeIn appends an entry fill.
func (p *Publisher) PublishTradeIn(ctx context.Context, in model.TradeIn) error {
	w, err := tradeWrite(in.Symbol, tradeRecord{Event: "trade_in", TradeIn: &in})
	if err != nil {
		return err
	}
	return p.submit(ctx, w)
}

// PublishTradeOut appends a closed round trip.
func (p *Publisher) PublishTradeOut(ctx context.Context, out model.TradeOut) error {
	w, err := tradeWrite(out.TradeIn.Symbol, tradeRecord{Event: "trade_out", TradeOut: &out})
	if err != nil {
		return err
	}
	return p.submit(ctx, w)
}

// SaveSnapshot overwrites the latest snapshot of symbol on tf.
func (p *Publisher) SaveSnapshot(ctx context.Context, symbol string, tf model.TimeFrame, data []byte) error {
	return p.submit(ctx, write{Key: SnapshotKey(symbol, tf), Data: data})
}

func (p *Publisher) submit(ctx context.Context, w write) error {
	if p.buf != nil {
		return p.buf.Write(ctx, w)
	}
	return p.exec(ctx, w)
}

// exec sends w as one pipeline.
func (p *Publisher) exec(ctx context.Context, w write) error {
	start := time.Now()
	data := string(w.Data)

	pipe := p.client.Pipeline()
	target := w.Key
	if w.Stream != "" {
		target = w.Stream
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: w.Stream,
			MaxLen: p.maxLen,
			Approx: true,
			Values: map[string]interface{}{"data": data},
		})
	}
	if w.Key != "" {
		pipe.Set(ctx, w.Key, data, 0)
	}
	pipe.Publish(ctx, Channel(target), data)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline %s: %w", target, err)
	}
	if p.OnWrite != nil {
		p.OnWrite(time.Since(start))
	}
	return nil
}

// Close closes the Redis client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
