// Package replay emits stored candle history as ticks, in date order across
// symbols, at a configurable speed.
package replay

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"chartscan/internal/logger"
	"chartscan/internal/model"
)

// maxGap caps the simulated wait between two ticks.
const maxGap = 5 * time.Second

// Request selects what to replay. A zero From or To leaves that side open.
type Request struct {
	Symbols   []string // empty replays every stored symbol
	TimeFrame model.TimeFrame
	From      time.Time
	To        time.Time
	// Speed is the playback rate: 1 is real time, 10 is ten times faster,
	// 0 emits as fast as the consumer reads.
	Speed float64
}

// Replayer reads candles from a store and replays them as ticks.
type Replayer struct {
	reader model.CandleReader
	log    zerolog.Logger
}

// New creates a Replayer backed by reader.
func New(reader model.CandleReader) *Replayer {
	return &Replayer{reader: reader, log: logger.For("replay")}
}

// Load reads the requested candles and returns them as ticks sorted by date.
// Ticks of different symbols sharing a date keep the order of req.Symbols.
func (r *Replayer) Load(ctx context.Context, req Request) ([]model.Tick, error) {
	symbols := req.Symbols
	if len(symbols) == 0 {
		var err error
		if symbols, err = r.reader.Symbols(ctx, req.TimeFrame); err != nil {
			return nil, fmt.Errorf("replay symbols: %w", err)
		}
	}

	var ticks []model.Tick
	for _, sym := range symbols {
		candles, err := r.reader.ReadCandles(ctx, sym, req.TimeFrame, req.From, req.To)
		if err != nil {
			return nil, fmt.Errorf("replay %s: %w", sym, err)
		}
		for _, c := range candles {
			ticks = append(ticks, c.Tick(sym))
		}
	}
	sort.SliceStable(ticks, func(a, b int) bool { return ticks[a].Date.Before(ticks[b].Date) })
	return ticks, nil
}

// Run replays the requested history into out and returns the number of
// ticks emitted. It does not close out.
func (r *Replayer) Run(ctx context.Context, req Request, out chan<- model.Tick) (int, error) {
	ticks, err := r.Load(ctx, req)
	if err != nil {
		return 0, err
	}
	if len(ticks) == 0 {
		r.log.Warn().Str("tf", req.TimeFrame.String()).Msg("no candles to replay")
		return 0, nil
	}
	r.log.Info().Int("ticks", len(ticks)).Float64("speed", req.Speed).Msg("replay started")

	var prev time.Time
	emitted := 0
	for _, t := range ticks {
		if req.Speed > 0 && !prev.IsZero() {
			if gap := t.Date.Sub(prev); gap > 0 {
				wait := time.Duration(float64(gap) / req.Speed)
				if wait > maxGap {
					wait = maxGap
				}
				select {
				case <-ctx.Done():
					return emitted, ctx.Err()
				case <-time.After(wait):
				}
			}
		}
		prev = t.Date

		select {
		case <-ctx.Done():
			r.log.Info().Int("ticks", emitted).Msg("replay canceled")
			return emitted, ctx.Err()
		case out <- t:
			emitted++
		}
	}

	r.log.Info().Int("ticks", emitted).Msg("replay complete")
	return emitted, nil
}

// Stream runs the replay in a goroutine and closes the returned channel when
// it ends. The error channel receives the final error, if any, and is closed.
func (r *Replayer) Stream(ctx context.Context, req Request, buffer int) (<-chan model.Tick, <-chan error) {
	out := make(chan model.Tick, buffer)
	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		defer close(out)
		if _, err := r.Run(ctx, req, out); err != nil {
			errc <- err
		}
	}()
	return out, errc
}
