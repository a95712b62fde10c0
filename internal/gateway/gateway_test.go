package gateway

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Type       string          `json:"type"`
	Channel    string          `json:"channel"`
	Data       json.RawMessage `json:"data"`
	TS         string          `json:"ts"`
	Seq        int64           `json:"seq"`
	ChannelSeq int64           `json:"channel_seq"`
	Initial    bool            `json:"initial"`
	Symbols    []string        `json:"symbols"`
	Ping       int64           `json:"ping"`
}

func TestBuildEnvelope(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 1, 0, time.UTC)
	buf := buildEnvelope("pub:orders:EURUSD", []byte(`{"id":"o-1","price":"1.1"}`), now, 42, 7)

	var env envelope
	require.NoError(t, json.Unmarshal(buf, &env), "raw: %s", buf)
	assert.Equal(t, "pub:orders:EURUSD", env.Channel)
	assert.Equal(t, int64(42), env.Seq)
	assert.Equal(t, int64(7), env.ChannelSeq)
	assert.JSONEq(t, `{"id":"o-1","price":"1.1"}`, string(env.Data))

	ts, err := time.Parse(time.RFC3339Nano, env.TS)
	require.NoError(t, err)
	assert.True(t, ts.Equal(now))
}

func TestSymbolOf(t *testing.T) {
	assert.Equal(t, "EURUSD", symbolOf("pub:patterns:H1:EURUSD"))
	assert.Equal(t, "BTCUSD", symbolOf("pub:trades:BTCUSD"))
	assert.Equal(t, "plain", symbolOf("plain"))
}

func TestReplayBuffer_SinceAndWraparound(t *testing.T) {
	rb := NewReplayBuffer(5)
	for i := int64(1); i <= 8; i++ {
		rb.Push(i, []byte{byte('0' + i)})
	}
	assert.Equal(t, 5, rb.Len())

	got := rb.Since(1)
	require.Len(t, got, 5)
	assert.Equal(t, "4", string(got[0]))
	assert.Equal(t, "8", string(got[4]))

	got = rb.Since(7)
	require.Len(t, got, 2)
	assert.Equal(t, "7", string(got[0]))

	assert.Empty(t, NewReplayBuffer(10).Since(1))
}

// wsReader splits coalesced frames back into single messages.
type wsReader struct {
	t       *testing.T
	conn    *websocket.Conn
	pending [][]byte
}

func (r *wsReader) next() envelope {
	r.t.Helper()
	for len(r.pending) == 0 {
		require.NoError(r.t, r.conn.SetReadDeadline(time.Now().Add(3*time.Second)))
		_, raw, err := r.conn.ReadMessage()
		require.NoError(r.t, err)
		r.pending = bytes.Split(raw, []byte{'\n'})
	}
	msg := r.pending[0]
	r.pending = r.pending[1:]
	var env envelope
	require.NoError(r.t, json.Unmarshal(msg, &env), "raw: %s", msg)
	return env
}

func (r *wsReader) until(typ string) envelope {
	r.t.Helper()
	for i := 0; i < 20; i++ {
		if env := r.next(); env.Type == typ {
			return env
		}
	}
	r.t.Fatalf("no %q message", typ)
	return envelope{}
}

func dial(t *testing.T, h *Hub) (*websocket.Conn, func()) {
	srv := httptest.NewServer(h)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn, func() {
		conn.Close()
		srv.Close()
	}
}

func TestHub_SubscribeFilterAndResume(t *testing.T) {
	h := NewHub(10)
	h.Broadcast("pub:orders:EURUSD", []byte(`{"id":"old"}`))

	conn, done := dial(t, h)
	defer done()
	r := &wsReader{t: t, conn: conn}

	first := r.next()
	assert.True(t, first.Initial)
	assert.Equal(t, "pub:orders:EURUSD", first.Channel)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "SUBSCRIBE", "symbols": []string{"EURUSD"}}))
	ack := r.until("subscribed")
	assert.Equal(t, []string{"EURUSD"}, ack.Symbols)
	assert.True(t, r.next().Initial)
	assert.Equal(t, 1, h.ClientCount())

	var slow int
	h.OnSlowClient = func() { slow++ }
	h.Broadcast("pub:orders:GBPUSD", []byte(`{"id":"other"}`))
	h.Broadcast("pub:orders:EURUSD", []byte(`{"id":"new"}`))

	env := r.next()
	assert.Equal(t, "pub:orders:EURUSD", env.Channel)
	assert.JSONEq(t, `{"id":"new"}`, string(env.Data))
	assert.Equal(t, int64(2), env.ChannelSeq)
	assert.Equal(t, int64(3), env.Seq)
	assert.Zero(t, slow)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "RESUME", "channel": "pub:orders:EURUSD", "from_seq": 1}))
	assert.JSONEq(t, `{"id":"old"}`, string(r.next().Data))
	assert.JSONEq(t, `{"id":"new"}`, string(r.next().Data))

	require.NoError(t, conn.WriteJSON(map[string]any{"ping": 99}))
	pong := r.until("pong")
	assert.Equal(t, int64(99), pong.Ping)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "UNSUBSCRIBE", "symbols": []string{"EURUSD"}}))
	assert.Empty(t, r.until("unsubscribed").Symbols)
}

func TestHub_RemovesClosedClients(t *testing.T) {
	h := NewHub(10)
	conn, done := dial(t, h)
	defer done()

	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	conn.Close()
	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)

	h.Broadcast("pub:orders:EURUSD", []byte(`{}`))
}
