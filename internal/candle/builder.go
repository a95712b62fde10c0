// Package candle turns raw OHLCV tuples into validated, classified candles.
package candle

import (
	"fmt"
	"math"
	"time"

	"chartscan/internal/model"
)

// History is the number of previous candles classification looks at.
const History = 4

// Input is the raw tuple a candle is built from. Every field is required.
type Input struct {
	Date     time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
	IsClosed bool
}

// FromTick converts a normalized tick into builder input.
func FromTick(t model.Tick, closed bool) Input {
	return Input{
		Date:     t.Date,
		Open:     t.Open,
		High:     t.High,
		Low:      t.Low,
		Close:    t.Close,
		Volume:   t.Volume,
		IsClosed: closed,
	}
}

// FromCandle converts an existing candle back into builder input, used to
// re-classify an open candle after it was mutated.
func FromCandle(c model.Candle) Input {
	return Input{
		Date:     c.Date,
		Open:     c.Open,
		High:     c.High,
		Low:      c.Low,
		Close:    c.Close,
		Volume:   c.Volume,
		IsClosed: c.IsClosed,
	}
}

// Options controls classification.
type Options struct {
	// Classify enables formation tagging; when false every candle is Default.
	Classify bool
	// Logarithmic evaluates formations on ln(OHLC).
	Logarithmic bool
}

// Build validates in and returns the candle, tagged with the formation it
// completes together with prev (oldest first, at most History are used).
// High and low are widened to cover open and close when the tuple is off by rounding.
func Build(in Input, prev []model.Candle, opts Options) (model.Candle, error) {
	if err := validate(in); err != nil {
		return model.Candle{}, err
	}

	c := model.Candle{
		Type:     model.CandleDefault,
		Date:     in.Date.UTC(),
		Open:     in.Open,
		High:     math.Max(in.High, math.Max(in.Open, in.Close)),
		Low:      math.Min(in.Low, math.Min(in.Open, in.Close)),
		Close:    in.Close,
		Volume:   in.Volume,
		IsClosed: in.IsClosed,
	}

	if opts.Classify {
		if len(prev) > History {
			prev = prev[len(prev)-History:]
		}
		bars := make([]bar, 0, len(prev)+1)
		for _, p := range prev {
			bars = append(bars, toBar(p, opts.Logarithmic))
		}
		bars = append(bars, toBar(c, opts.Logarithmic))
		c.Type = classify(bars)
	}
	return c, nil
}

func validate(in Input) error {
	if in.Date.IsZero() {
		return fmt.Errorf("%w: missing date", model.ErrInvalidCandle)
	}
	for _, f := range [...]struct {
		name string
		v    float64
	}{{"open", in.Open}, {"high", in.High}, {"low", in.Low}, {"close", in.Close}} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) || f.v <= 0 {
			return fmt.Errorf("%w: %s=%v", model.ErrInvalidCandle, f.name, f.v)
		}
	}
	if math.IsNaN(in.Volume) || math.IsInf(in.Volume, 0) || in.Volume < 0 {
		return fmt.Errorf("%w: volume=%v", model.ErrInvalidCandle, in.Volume)
	}
	if in.High < in.Low {
		return fmt.Errorf("%w: high %v < low %v", model.ErrInvalidCandle, in.High, in.Low)
	}
	return nil
}

func toBar(c model.Candle, logarithmic bool) bar {
	if !logarithmic {
		return bar{o: c.Open, h: c.High, l: c.Low, c: c.Close}
	}
	return bar{o: math.Log(c.Open), h: math.Log(c.High), l: math.Log(c.Low), c: math.Log(c.Close)}
}
