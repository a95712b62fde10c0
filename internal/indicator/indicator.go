// Package indicator provides streaming technical indicators over candle data.
//
// Every indicator is a value-typed state plus a pure step function. The
// committed state covers every bar except the last one, so the still-open
// bar can be recomputed any number of times from a throwaway copy without
// the recursive filters drifting.
package indicator

import (
	"fmt"

	"chartscan/internal/model"
)

// Sample is one output point. A, B and C carry the indicator's lines
// (e.g. MACD, signal, histogram). Ready is false during warm-up.
type Sample struct {
	A     float64 `json:"a"`
	B     float64 `json:"b"`
	C     float64 `json:"c"`
	Ready bool    `json:"ready"`
}

// Indicator is the interface for all streaming indicators. Its series is
// aligned index-for-index with the instrument's candles.
type Indicator interface {
	// Name returns the indicator name (e.g., "EMA(9)", "MACD(12,26,9)").
	Name() string

	// Next commits the previous bar and appends a sample for c, a newly opened bar.
	Next(c model.Candle)

	// Update recomputes the last sample for the still-open bar. Idempotent.
	Update(c model.Candle) error

	// Peek returns what Update(c) would store, without touching the series.
	Peek(c model.Candle) (Sample, error)

	// EvictOldest drops the sample at index 0.
	EvictOldest() error

	// DuplicateLast pads the series with a copy of the last sample.
	DuplicateLast() error

	Len() int
	Last() (Sample, error)
	At(i int) (Sample, error)
	Series() []Sample
}

// stepFunc advances state s by one bar. It must not mutate memory shared
// with s (slices are copied on write), so states can be cloned by assignment.
type stepFunc[S any] func(s S, c model.Candle) (S, Sample)

// stream adapts a state/step pair to the Indicator interface.
type stream[S any] struct {
	name      string
	step      stepFunc[S]
	committed S
	pending   model.Candle
	open      bool
	data      []Sample
}

func newStream[S any](name string, init S, step stepFunc[S]) *stream[S] {
	return &stream[S]{name: name, step: step, committed: init}
}

func (s *stream[S]) Name() string { return s.name }

func (s *stream[S]) Next(c model.Candle) {
	if s.open {
		s.committed, _ = s.step(s.committed, s.pending)
	}
	_, sample := s.step(s.committed, c)
	s.data = append(s.data, sample)
	s.pending = c
	s.open = true
}

func (s *stream[S]) Update(c model.Candle) error {
	if !s.open || len(s.data) == 0 {
		return fmt.Errorf("%s update: %w", s.name, model.ErrEmptySeries)
	}
	_, sample := s.step(s.committed, c)
	s.data[len(s.data)-1] = sample
	s.pending = c
	return nil
}

func (s *stream[S]) Peek(c model.Candle) (Sample, error) {
	if !s.open {
		return Sample{}, fmt.Errorf("%s peek: %w", s.name, model.ErrEmptySeries)
	}
	_, sample := s.step(s.committed, c)
	return sample, nil
}

func (s *stream[S]) EvictOldest() error {
	if len(s.data) == 0 {
		return fmt.Errorf("%s evict: %w", s.name, model.ErrEmptySeries)
	}
	s.data[0] = Sample{}
	s.data = s.data[1:]
	return nil
}

// DuplicateLast does not advance the recursive state: the padded bar was
// never seen by the indicator.
func (s *stream[S]) DuplicateLast() error {
	if len(s.data) == 0 {
		return fmt.Errorf("%s duplicate: %w", s.name, model.ErrEmptySeries)
	}
	s.data = append(s.data, s.data[len(s.data)-1])
	return nil
}

func (s *stream[S]) Len() int { return len(s.data) }

func (s *stream[S]) Last() (Sample, error) {
	if len(s.data) == 0 {
		return Sample{}, fmt.Errorf("%s last: %w", s.name, model.ErrEmptySeries)
	}
	return s.data[len(s.data)-1], nil
}

func (s *stream[S]) At(i int) (Sample, error) {
	if i < 0 || i >= len(s.data) {
		return Sample{}, fmt.Errorf("%s at %d (len %d): %w", s.name, i, len(s.data), model.ErrIndexOutOfRange)
	}
	return s.data[i], nil
}

// Series returns a copy of the output series.
func (s *stream[S]) Series() []Sample {
	out := make([]Sample, len(s.data))
	copy(out, s.data)
	return out
}
