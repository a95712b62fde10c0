package model

import "errors"

var (
	// ErrInvalidCandle is returned for malformed OHLC input.
	ErrInvalidCandle = errors.New("invalid candle")
	// ErrWrongInstrumentConf is returned when an instrument is built with missing or bad fields.
	ErrWrongInstrumentConf = errors.New("wrong instrument configuration")
	// ErrInvalidPeak is returned for peak points that break index ordering.
	ErrInvalidPeak = errors.New("invalid peak")
	// ErrEmptySeries is returned when reading from an empty series.
	ErrEmptySeries = errors.New("empty series")
	// ErrIndexOutOfRange is returned for reads past the series bounds.
	ErrIndexOutOfRange = errors.New("index out of range")
	// ErrInvariant signals an internal state that should be unreachable.
	ErrInvariant = errors.New("internal invariant violated")
	// ErrStaleTick is returned for ticks older than the forming bucket.
	ErrStaleTick = errors.New("stale tick")
)
