package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartscan/internal/model"
)

func TestFanOut_BroadcastsToAll(t *testing.T) {
	fo := NewFanOut[int](10)
	out1 := fo.Subscribe()
	out2 := fo.Subscribe()

	input := make(chan int)
	go fo.Run(context.Background(), input)
	input <- 7
	close(input)

	for _, out := range []<-chan int{out1, out2} {
		select {
		case v := <-out:
			assert.Equal(t, 7, v)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for value")
		}
		_, open := <-out
		assert.False(t, open, "outputs close with the input")
	}
}

func TestFanOut_DropsForSlowSubscriber(t *testing.T) {
	fo := NewFanOut[int](1)
	fast := fo.Subscribe()
	slow := fo.Subscribe()

	var drops []int
	fo.OnDrop = func(idx int) { drops = append(drops, idx) }

	input := make(chan int)
	done := make(chan struct{})
	go func() {
		fo.Run(context.Background(), input)
		close(done)
	}()

	input <- 1
	<-fast
	input <- 2
	close(input)
	<-done

	assert.Equal(t, []int{1}, drops)
	assert.Equal(t, 1, <-slow)
	assert.Equal(t, 2, <-fast)
}

// recorder collects ticks per symbol and the goroutine-safety of the calls.
type recorder struct {
	mu   sync.Mutex
	seen map[string][]float64
}

func (r *recorder) handler(symbol string) (Handler, error) {
	if symbol == "BAD" {
		return nil, errors.New("unknown symbol")
	}
	return HandlerFunc(func(_ context.Context, t model.Tick) {
		r.mu.Lock()
		r.seen[t.Symbol] = append(r.seen[t.Symbol], t.Close)
		r.mu.Unlock()
	}), nil
}

func TestRouter_KeepsPerSymbolOrder(t *testing.T) {
	rec := &recorder{seen: make(map[string][]float64)}
	factoryCalls := map[string]int{}
	r := NewRouter(100, func(s string) (Handler, error) {
		factoryCalls[s]++
		return rec.handler(s)
	})

	input := make(chan model.Tick)
	done := make(chan struct{})
	go func() {
		r.Run(context.Background(), input)
		close(done)
	}()

	for i := 0; i < 50; i++ {
		input <- model.Tick{Symbol: "A", Close: float64(i)}
		input <- model.Tick{Symbol: "B", Close: float64(-i)}
		input <- model.Tick{Symbol: "BAD", Close: 1}
	}
	assert.Equal(t, []string{"A", "B"}, r.Symbols())
	close(input)
	<-done

	require.Len(t, rec.seen["A"], 50)
	require.Len(t, rec.seen["B"], 50)
	for i := 0; i < 50; i++ {
		assert.Equal(t, float64(i), rec.seen["A"][i])
		assert.Equal(t, float64(-i), rec.seen["B"][i])
	}
	assert.NotContains(t, rec.seen, "BAD")
	assert.Equal(t, map[string]int{"A": 1, "B": 1, "BAD": 1}, factoryCalls)
}

func TestRouter_DropsWhenLaneIsFull(t *testing.T) {
	release := make(chan struct{})
	r := NewRouter(1, func(string) (Handler, error) {
		return HandlerFunc(func(context.Context, model.Tick) { <-release }), nil
	})
	var dropped []string
	r.OnDrop = func(s string) { dropped = append(dropped, s) }

	ctx := context.Background()
	r.dispatch(ctx, model.Tick{Symbol: "A"}) // taken by the blocked handler, or buffered
	require.Eventually(t, func() bool { return r.Stats()["A"].Len == 0 }, time.Second, time.Millisecond)
	r.dispatch(ctx, model.Tick{Symbol: "A"}) // buffered
	r.dispatch(ctx, model.Tick{Symbol: "A"}) // dropped

	assert.Equal(t, []string{"A"}, dropped)
	assert.Equal(t, ChannelStat{Len: 1, Cap: 1}, r.Stats()["A"])

	close(release)
	r.shutdown()
}
