package bus

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"chartscan/internal/logger"
	"chartscan/internal/model"
)

// Handler processes the ticks of one symbol. It is only ever called from that
// symbol's goroutine, so it needs no locking of its own.
type Handler interface {
	Handle(ctx context.Context, t model.Tick)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, t model.Tick)

func (f HandlerFunc) Handle(ctx context.Context, t model.Tick) { f(ctx, t) }

// Factory builds the handler of a symbol the first time it is seen. An error
// rejects the symbol for the rest of the run.
type Factory func(symbol string) (Handler, error)

// Router dispatches ticks to one goroutine per symbol. Ticks of a symbol are
// handled in arrival order; different symbols run in parallel.
type Router struct {
	factory Factory
	bufSize int
	log     zerolog.Logger

	mu       sync.RWMutex
	lanes    map[string]chan model.Tick
	rejected map[string]struct{}
	wg       sync.WaitGroup

	// OnDrop is called when a tick is dropped because the symbol's lane is full.
	OnDrop func(symbol string)
}

// NewRouter creates a Router whose lanes buffer bufSize ticks.
func NewRouter(bufSize int, factory Factory) *Router {
	return &Router{
		factory:  factory,
		bufSize:  bufSize,
		log:      logger.For("router"),
		lanes:    make(map[string]chan model.Tick),
		rejected: make(map[string]struct{}),
	}
}

// Run dispatches input until ctx is cancelled or input is closed. It then
// closes every lane and waits for the handlers to drain them.
func (r *Router) Run(ctx context.Context, input <-chan model.Tick) {
	defer r.shutdown()
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-input:
			if !ok {
				return
			}
			r.dispatch(ctx, t)
		}
	}
}

func (r *Router) dispatch(ctx context.Context, t model.Tick) {
	lane, ok := r.lane(ctx, t.Symbol)
	if !ok {
		return
	}
	select {
	case lane <- t:
	default:
		if r.OnDrop != nil {
			r.OnDrop(t.Symbol)
		}
		r.log.Warn().Str("symbol", t.Symbol).Time("date", t.Date).Msg("lane full, dropping tick")
	}
}

// lane returns the channel of symbol, starting its goroutine on first use.
func (r *Router) lane(ctx context.Context, symbol string) (chan model.Tick, bool) {
	r.mu.RLock()
	lane, ok := r.lanes[symbol]
	_, bad := r.rejected[symbol]
	r.mu.RUnlock()
	if ok || bad {
		return lane, ok
	}

	h, err := r.factory(symbol)
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.rejected[symbol] = struct{}{}
		r.log.Error().Err(err).Str("symbol", symbol).Msg("symbol rejected")
		return nil, false
	}

	lane = make(chan model.Tick, r.bufSize)
	r.lanes[symbol] = lane
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for t := range lane {
			h.Handle(ctx, t)
		}
	}()
	r.log.Info().Str("symbol", symbol).Msg("lane started")
	return lane, true
}

func (r *Router) shutdown() {
	r.mu.Lock()
	for _, lane := range r.lanes {
		close(lane)
	}
	r.mu.Unlock()
	r.wg.Wait()
}

// Symbols lists the symbols with a running lane, sorted.
func (r *Router) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.lanes))
	for s := range r.lanes {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Stats returns the fill level of every lane.
func (r *Router) Stats() map[string]ChannelStat {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := make(map[string]ChannelStat, len(r.lanes))
	for s, lane := range r.lanes {
		stats[s] = ChannelStat{Len: len(lane), Cap: cap(lane)}
	}
	return stats
}
