package gateway

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	readLimit  = 4096
)

// Client is one WebSocket peer.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu      sync.RWMutex
	symbols map[string]struct{}
}

type request struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
	Channel string   `json:"channel"`
	FromSeq int64    `json:"from_seq"`
	Ping    int64    `json:"ping"`
}

func newClient(h *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		symbols: make(map[string]struct{}),
	}
}

// matches reports whether the client wants records of symbol.
func (c *Client) matches(symbol string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.symbols) == 0 {
		return true
	}
	_, ok := c.symbols[symbol]
	return ok
}

// trySend queues msg without blocking and reports whether it was queued.
func (c *Client) trySend(msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) reply(v any) {
	if b, err := json.Marshal(v); err == nil {
		c.trySend(b)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// Coalesce whatever is queued into one frame, newline separated.
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)
			for n := len(c.send); n > 0; n-- {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(readLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var req request
		if err := json.Unmarshal(raw, &req); err != nil {
			c.reply(map[string]any{"type": "error", "message": "invalid JSON"})
			continue
		}
		c.handle(req)
	}
}

func (c *Client) handle(req request) {
	switch req.Type {
	case "SUBSCRIBE":
		c.mu.Lock()
		for _, s := range req.Symbols {
			c.symbols[s] = struct{}{}
		}
		c.mu.Unlock()
		c.reply(map[string]any{"type": "subscribed", "symbols": c.subscriptions()})
		c.hub.sendLatest(c)

	case "UNSUBSCRIBE":
		c.mu.Lock()
		for _, s := range req.Symbols {
			delete(c.symbols, s)
		}
		c.mu.Unlock()
		c.reply(map[string]any{"type": "unsubscribed", "symbols": c.subscriptions()})

	case "RESUME":
		for _, env := range c.hub.replay(req.Channel, req.FromSeq) {
			if !c.trySend(env) {
				break
			}
		}

	default:
		if req.Ping > 0 {
			c.reply(map[string]any{"type": "pong", "ping": req.Ping, "server_ts": time.Now().UnixMilli()})
			return
		}
		c.reply(map[string]any{"type": "error", "message": "unknown request " + req.Type})
	}
}

func (c *Client) subscriptions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.symbols))
	for s := range c.symbols {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
