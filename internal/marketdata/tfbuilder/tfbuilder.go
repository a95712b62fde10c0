// Package tfbuilder provides an incremental timeframe resampler.
// It consumes ticks (raw trades or lower-timeframe bars) for one instrument
// and maintains the "forming" candle of the active timeframe, updated in O(1)
// per tick. When a tick lands in a new bucket the forming candle is
// finalized and handed back to the caller.
package tfbuilder

import (
	"fmt"
	"time"

	"chartscan/internal/model"
)

// Result describes what a tick did to the forming candle.
type Result struct {
	// Candle is the forming candle after the tick was merged.
	Candle model.Candle
	// NewBucket is set when the tick opened a new bucket.
	NewBucket bool
	// Closed is the candle finalized by the bucket rollover, if any.
	Closed *model.Candle
}

// Resampler buckets ticks of one symbol into one timeframe.
// Not goroutine-safe: it is owned by the instrument's single writer.
type Resampler struct {
	tf      model.TimeFrame
	bucket  time.Time
	candle  model.Candle
	started bool

	// Metrics hooks
	OnClosed func(c model.Candle) // called on finalized candle (optional)
	OnStale  func(t model.Tick)   // called when a stale tick is rejected (optional)
}

// New creates a resampler for tf.
func New(tf model.TimeFrame) *Resampler {
	return &Resampler{tf: tf}
}

// TimeFrame returns the bucketing interval.
func (r *Resampler) TimeFrame() model.TimeFrame { return r.tf }

// Forming returns the candle of the current bucket.
func (r *Resampler) Forming() (model.Candle, bool) {
	return r.candle, r.started
}

// Push merges t into the forming candle. A tick older than the forming
// bucket is rejected with model.ErrStaleTick and leaves the state untouched.
func (r *Resampler) Push(t model.Tick) (Result, error) {
	bucket := r.tf.Bucket(t.Date)

	if r.started && bucket.Before(r.bucket) {
		if r.OnStale != nil {
			r.OnStale(t)
		}
		return Result{}, fmt.Errorf("%w: %s tick %v behind bucket %v", model.ErrStaleTick, t.Symbol, t.Date, r.bucket)
	}

	if !r.started || bucket.After(r.bucket) {
		var closed *model.Candle
		if r.started {
			fin := r.candle
			fin.IsClosed = true
			closed = &fin
			if r.OnClosed != nil {
				r.OnClosed(fin)
			}
		}
		r.bucket = bucket
		r.started = true
		r.candle = model.Candle{
			Date:   bucket,
			Open:   t.Open,
			High:   t.High,
			Low:    t.Low,
			Close:  t.Close,
			Volume: t.Volume,
		}
		return Result{Candle: r.candle, NewBucket: true, Closed: closed}, nil
	}

	// Same bucket: merge OHLCV
	fc := &r.candle
	if t.High > fc.High {
		fc.High = t.High
	}
	if t.Low < fc.Low {
		fc.Low = t.Low
	}
	fc.Close = t.Close
	fc.Volume += t.Volume

	return Result{Candle: *fc}, nil
}

// Flush finalizes the forming candle at end of stream.
func (r *Resampler) Flush() (model.Candle, bool) {
	if !r.started {
		return model.Candle{}, false
	}
	fin := r.candle
	fin.IsClosed = true
	r.started = false
	if r.OnClosed != nil {
		r.OnClosed(fin)
	}
	return fin, true
}

// Reset drops the forming state, e.g. before a bulk reload.
func (r *Resampler) Reset() {
	r.started = false
	r.candle = model.Candle{}
	r.bucket = time.Time{}
}

// Seed makes c the forming candle without emitting anything.
func (r *Resampler) Seed(c model.Candle) {
	r.bucket = r.tf.Bucket(c.Date)
	r.started = true
	r.candle = c
	r.candle.Date = r.bucket
	r.candle.IsClosed = false
}
