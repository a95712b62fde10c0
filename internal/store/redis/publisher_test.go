package redis

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartscan/internal/model"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "patterns:H1:EURUSD", PatternStream("EURUSD", model.H1))
	assert.Equal(t, "orders:EURUSD", OrderStream("EURUSD"))
	assert.Equal(t, "trades:EURUSD", TradeStream("EURUSD"))
	assert.Equal(t, "snapshot:M15:BTCUSD", SnapshotKey("BTCUSD", model.M15))
	assert.Equal(t, "pub:orders:X", Channel(OrderStream("X")))
}

func TestRecordWrites(t *testing.T) {
	w, err := patternWrite("EURUSD", model.H4, model.Pattern{Index: 42, Type: model.PatternDoubleTop})
	require.NoError(t, err)
	assert.Equal(t, "patterns:H4:EURUSD", w.Stream)
	assert.Empty(t, w.Key)

	var pat map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Data, &pat))
	assert.Equal(t, "EURUSD", pat["symbol"])
	assert.Equal(t, "H4", pat["timeframe"])
	assert.Equal(t, "DoubleTop", pat["pattern"].(map[string]interface{})["pattern_type"])

	w, err = orderWrite(model.Order{ID: "o1", Symbol: "BTCUSD", Type: model.StopLossShort})
	require.NoError(t, err)
	assert.Equal(t, "orders:BTCUSD", w.Stream)
	assert.Contains(t, string(w.Data), `"order_type":"StopLossShort"`)

	in := model.TradeIn{ID: "t1", Symbol: "BTCUSD", Type: model.EntryLong, Price: decimal.NewFromInt(100)}
	w, err = tradeWrite(in.Symbol, tradeRecord{Event: "trade_in", TradeIn: &in})
	require.NoError(t, err)
	assert.Equal(t, "trades:BTCUSD", w.Stream)

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Data, &rec))
	assert.Equal(t, "trade_in", rec["event"])
	assert.NotContains(t, rec, "trade_out")
}

// fakeRedis records writes and fails while down is set.
type fakeRedis struct {
	mu      sync.Mutex
	down    bool
	written []string
}

func (f *fakeRedis) exec(_ context.Context, w write) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return errFail
	}
	f.written = append(f.written, string(w.Data))
	return nil
}

func (f *fakeRedis) setDown(down bool) {
	f.mu.Lock()
	f.down = down
	f.mu.Unlock()
}

func (f *fakeRedis) writes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.written...)
}

func data(s string) write { return write{Stream: "s", Data: []byte(s)} }

func TestBufferedWriter_BuffersWhileOpenAndReplays(t *testing.T) {
	ctx := context.Background()
	cb, clk := newBreaker(1)
	fake := &fakeRedis{down: true}
	bw := newBufferedWriter(ctx, fake.exec, cb, 2)

	var buffered int
	flushed := make(chan int, 1)
	bw.OnBuffer = func() { buffered++ }
	bw.OnFlush = func(n int) { flushed <- n }

	// the failure that trips the breaker is reported, not buffered
	assert.ErrorIs(t, bw.Write(ctx, data("a")), errFail)
	require.Equal(t, StateOpen, cb.CurrentState())

	require.NoError(t, bw.Write(ctx, data("b")))
	require.NoError(t, bw.Write(ctx, data("c")))
	require.NoError(t, bw.Write(ctx, data("d")))
	assert.Equal(t, 3, buffered)
	assert.Equal(t, 2, bw.PendingCount(), "oldest write dropped at capacity")

	fake.setDown(false)
	clk.advance(2 * time.Second)
	require.NoError(t, bw.Write(ctx, data("e")))

	select {
	case n := <-flushed:
		assert.Equal(t, 2, n)
	case <-time.After(2 * time.Second):
		t.Fatal("buffer was not replayed")
	}
	assert.Equal(t, []string{"e", "c", "d"}, fake.writes())
	assert.Zero(t, bw.PendingCount())
}
