// Package gateway pushes engine records to WebSocket clients.
//
// Every record the Redis publisher announces on a "pub:" channel is wrapped
// in an envelope and fanned out to the clients subscribed to its symbol:
//
//	{"channel":"pub:patterns:H1:EURUSD","data":{...},"ts":"...","seq":12,"channel_seq":3}
//
// Clients talk JSON:
//
//	{"type":"SUBSCRIBE","symbols":["EURUSD"]}    only receive these symbols
//	{"type":"UNSUBSCRIBE","symbols":["EURUSD"]}
//	{"type":"RESUME","channel":"...","from_seq":3} replay missed envelopes
//	{"ping":1700000000000}                        answered with a pong
//
// A client without subscriptions receives everything.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"chartscan/internal/logger"
	redisstore "chartscan/internal/store/redis"
)

const sendBuffer = 256

type latestEntry struct {
	Data json.RawMessage
	TS   time.Time
	Seq  int64
}

// Hub tracks the connected clients and the latest envelope per channel.
type Hub struct {
	mu          sync.RWMutex
	clients     map[*Client]struct{}
	latest      map[string]latestEntry
	seq         int64
	channelSeqs map[string]int64
	replayBufs  map[string]*ReplayBuffer
	replayCap   int

	upgrader websocket.Upgrader
	log      zerolog.Logger
	now      func() time.Time

	// OnSlowClient is called when an envelope is dropped because a
	// client's send buffer is full.
	OnSlowClient func()
}

// NewHub creates a Hub keeping replayCap envelopes per channel for resume.
func NewHub(replayCap int) *Hub {
	return &Hub{
		clients:     make(map[*Client]struct{}),
		latest:      make(map[string]latestEntry),
		channelSeqs: make(map[string]int64),
		replayBufs:  make(map[string]*ReplayBuffer),
		replayCap:   replayCap,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: logger.For("gateway"),
		now: time.Now,
	}
}

// Run relays every record announced on Redis until ctx is cancelled.
func (h *Hub) Run(ctx context.Context, rdb *goredis.Client) {
	ps := rdb.PSubscribe(ctx, redisstore.Channel("*"))
	defer ps.Close()
	h.log.Info().Msg("relaying record channels")

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.Broadcast(msg.Channel, []byte(msg.Payload))
		}
	}
}

// Broadcast sends data, a JSON document, on channel to every matching client.
func (h *Hub) Broadcast(channel string, data []byte) {
	now := h.now().UTC()

	h.mu.Lock()
	h.seq++
	h.channelSeqs[channel]++
	seq, channelSeq := h.seq, h.channelSeqs[channel]
	h.latest[channel] = latestEntry{Data: data, TS: now, Seq: channelSeq}
	rb, ok := h.replayBufs[channel]
	if !ok {
		rb = NewReplayBuffer(h.replayCap)
		h.replayBufs[channel] = rb
	}
	h.mu.Unlock()

	env := buildEnvelope(channel, data, now, seq, channelSeq)
	rb.Push(channelSeq, env)

	symbol := symbolOf(channel)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.matches(symbol) && !c.trySend(env) && h.OnSlowClient != nil {
			h.OnSlowClient()
		}
	}
}

// buildEnvelope writes the envelope by hand; data is already JSON.
func buildEnvelope(channel string, data []byte, now time.Time, seq, channelSeq int64) []byte {
	buf := make([]byte, 0, len(channel)+len(data)+128)
	buf = append(buf, `{"channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"channel_seq":`...)
	buf = strconv.AppendInt(buf, channelSeq, 10)
	buf = append(buf, '}')
	return buf
}

// symbolOf returns the symbol a record channel belongs to: its last segment,
// e.g. "pub:patterns:H1:EURUSD" or "pub:orders:EURUSD".
func symbolOf(channel string) string {
	if i := strings.LastIndexByte(channel, ':'); i >= 0 {
		return channel[i+1:]
	}
	return channel
}

// ServeHTTP upgrades the request and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	c := newClient(h, conn)

	h.mu.Lock()
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	h.log.Info().Int("clients", count).Str("remote", r.RemoteAddr).Msg("ws client connected")

	h.sendLatest(c)
	go c.writePump()
	go c.readPump()
}

// sendLatest sends the last envelope of every channel c is subscribed to.
func (h *Hub) sendLatest(c *Client) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for channel, e := range h.latest {
		if !c.matches(symbolOf(channel)) {
			continue
		}
		env, err := json.Marshal(map[string]any{
			"channel":     channel,
			"data":        e.Data,
			"ts":          e.TS.Format(time.RFC3339Nano),
			"channel_seq": e.Seq,
			"initial":     true,
		})
		if err != nil {
			continue
		}
		c.trySend(env)
	}
}

// replay returns the buffered envelopes of channel from fromSeq on.
func (h *Hub) replay(channel string, fromSeq int64) [][]byte {
	h.mu.RLock()
	rb, ok := h.replayBufs[channel]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	return rb.Since(fromSeq)
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	count := len(h.clients)
	h.mu.Unlock()
	if ok {
		h.log.Info().Int("clients", count).Msg("ws client disconnected")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.conn.Close()
	}
}
