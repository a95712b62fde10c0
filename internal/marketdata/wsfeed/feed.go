// Package wsfeed connects to a plain-JSON WebSocket candle server and turns
// its messages into ticks.
//
// A message is one object or an array of objects. Bars carry OHLCV:
//
//	{"symbol":"EURUSD","date":"2024-03-01T09:00:00Z","open":1.08,"high":1.09,"low":1.07,"close":1.085,"volume":120}
//
// Trades carry a single price instead and become open=high=low=close ticks:
//
//	{"symbol":"BTCUSD","date":"2024-03-01T09:00:01.250Z","price":64000.5,"qty":0.2}
package wsfeed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"chartscan/internal/logger"
	"chartscan/internal/model"
)

// Config holds the feed connection settings.
type Config struct {
	// URL of the candle server, e.g. "ws://localhost:9001/ws".
	URL string

	// Symbols, when set, are sent as {"action":"subscribe","symbols":[...]}
	// right after connecting.
	Symbols []string

	// ReconnectDelay is the initial reconnection delay. Defaults to 2s.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration
}

func (c *Config) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

// message is the wire form of a bar or a trade.
type message struct {
	Symbol string    `json:"symbol"`
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
	Price  float64   `json:"price"`
	Qty    float64   `json:"qty"`
}

func (m message) tick() (model.Tick, error) {
	if m.Symbol == "" {
		return model.Tick{}, errors.New("missing symbol")
	}
	if m.Date.IsZero() {
		return model.Tick{}, errors.New("missing date")
	}
	if m.Open == 0 && m.Close == 0 && m.Price != 0 {
		return model.Tick{
			Symbol: m.Symbol, Date: m.Date.UTC(),
			Open: m.Price, High: m.Price, Low: m.Price, Close: m.Price,
			Volume: m.Qty,
		}, nil
	}
	return model.Tick{
		Symbol: m.Symbol, Date: m.Date.UTC(),
		Open: m.Open, High: m.High, Low: m.Low, Close: m.Close,
		Volume: m.Volume,
	}, nil
}

// Decode parses one wire message into ticks. Malformed entries of an array
// are skipped and reported together in the returned error.
func Decode(raw []byte) ([]model.Tick, error) {
	raw = bytes.TrimSpace(raw)
	var msgs []message
	if len(raw) > 0 && raw[0] == '[' {
		if err := json.Unmarshal(raw, &msgs); err != nil {
			return nil, err
		}
	} else {
		var m message
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		msgs = []message{m}
	}

	ticks := make([]model.Tick, 0, len(msgs))
	var errs []error
	for i, m := range msgs {
		t, err := m.tick()
		if err != nil {
			errs = append(errs, fmt.Errorf("entry %d: %w", i, err))
			continue
		}
		ticks = append(ticks, t)
	}
	return ticks, errors.Join(errs...)
}

// Feed streams ticks from a WebSocket server and reconnects with backoff.
type Feed struct {
	cfg Config
	log zerolog.Logger

	// Hooks (optional)
	OnConnect    func(connected bool) // connection state changed
	OnReconnect  func()               // a reconnection is about to be attempted
	OnBadMessage func()               // a message could not be decoded
}

// New creates a Feed. Returns an error if the URL is not a ws/wss URL.
func New(cfg Config) (*Feed, error) {
	cfg.defaults()
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("feed url %q: scheme must be ws or wss", cfg.URL)
	}
	return &Feed{cfg: cfg, log: logger.For("wsfeed").With().Str("url", cfg.URL).Logger()}, nil
}

// Start connects and pushes ticks into out until ctx is cancelled.
// Sends block, so a slow consumer slows the reader down instead of losing bars.
func (f *Feed) Start(ctx context.Context, out chan<- model.Tick) error {
	delay := f.cfg.ReconnectDelay
	for {
		if ctx.Err() != nil {
			return nil
		}

		connected, err := f.runOnce(ctx, out)
		if err == nil {
			return nil
		}
		if connected {
			delay = f.cfg.ReconnectDelay
		}

		f.log.Warn().Err(err).Dur("retry_in", delay).Msg("disconnected")
		if f.OnReconnect != nil {
			f.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > f.cfg.MaxReconnectDelay {
			delay = f.cfg.MaxReconnectDelay
		}
	}
}

// runOnce makes one connection and reads until it drops or ctx is cancelled.
// A nil error means ctx ended the session.
func (f *Feed) runOnce(ctx context.Context, out chan<- model.Tick) (bool, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.cfg.URL, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	f.log.Info().Msg("connected")
	f.setConnected(true)
	defer f.setConnected(false)

	if len(f.cfg.Symbols) > 0 {
		sub := map[string]interface{}{"action": "subscribe", "symbols": f.cfg.Symbols}
		if err := conn.WriteJSON(sub); err != nil {
			return true, fmt.Errorf("subscribe: %w", err)
		}
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"),
				time.Now().Add(time.Second))
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return true, nil
			}
			return true, err
		}

		ticks, err := Decode(raw)
		if err != nil {
			f.log.Warn().Err(err).Bytes("raw", raw).Msg("bad message")
			if f.OnBadMessage != nil {
				f.OnBadMessage()
			}
		}
		for _, t := range ticks {
			select {
			case out <- t:
			case <-ctx.Done():
				return true, nil
			}
		}
	}
}

func (f *Feed) setConnected(v bool) {
	if f.OnConnect != nil {
		f.OnConnect(v)
	}
}
