// Package peak maintains local and extrema price peaks over the
// closed-candle window of an instrument.
package peak

import (
	"fmt"

	"chartscan/config"
	"chartscan/internal/model"
)

// Peaks holds the raw closed-candle series and the peaks found on them.
// Indices are candle indices within the instrument window.
type Peaks struct {
	cfg config.Peaks

	Highs  []float64 `json:"-"`
	Lows   []float64 `json:"-"`
	Closes []float64 `json:"-"`

	LocalMaxima []model.Point `json:"local_maxima"`
	LocalMinima []model.Point `json:"local_minima"`

	SmoothHighs   []float64     `json:"-"`
	SmoothLows    []float64     `json:"-"`
	ExtremaMaxima []model.Point `json:"extrema_maxima"`
	ExtremaMinima []model.Point `json:"extrema_minima"`
}

// New creates an empty peak detector.
func New(cfg config.Peaks) *Peaks {
	if cfg.LocalRadius < 1 {
		cfg.LocalRadius = 1
	}
	if cfg.ExtremaRadius < 1 {
		cfg.ExtremaRadius = cfg.LocalRadius
	}
	return &Peaks{cfg: cfg}
}

// Len is the number of closed candles held.
func (p *Peaks) Len() int { return len(p.Highs) }

// Next appends c to the raw series. Open candles are ignored.
func (p *Peaks) Next(c model.Candle) {
	if !c.IsClosed {
		return
	}
	p.Highs = append(p.Highs, c.High)
	p.Lows = append(p.Lows, c.Low)
	p.Closes = append(p.Closes, c.Close)
}

// CalculatePeaks recomputes every peak over the closed window.
// maxPrice and minPrice bound the window and scale the prominence filter;
// smoothing is the width of the moving average the extrema run on.
func (p *Peaks) CalculatePeaks(maxPrice, minPrice float64, smoothing int) {
	p.calculate(p.Highs, p.Lows, maxPrice, minPrice, smoothing)
}

// Update recomputes the peaks as if the open candle c were closed, without
// committing it to the raw series.
func (p *Peaks) Update(c model.Candle, maxPrice, minPrice float64, smoothing int) {
	highs := append(p.Highs[:len(p.Highs):len(p.Highs)], c.High)
	lows := append(p.Lows[:len(p.Lows):len(p.Lows)], c.Low)
	p.calculate(highs, lows, maxPrice, minPrice, smoothing)
}

func (p *Peaks) calculate(highs, lows []float64, maxPrice, minPrice float64, smoothing int) {
	minProm := 0.0
	if p.cfg.Prominence > 0 && maxPrice > minPrice {
		minProm = (maxPrice - minPrice) * p.cfg.Prominence
	}

	maxIdx, minIdx := find(highs, lows, p.cfg.LocalRadius, minProm)
	p.LocalMaxima = points(maxIdx, highs)
	p.LocalMinima = points(minIdx, lows)

	if smoothing < 1 {
		smoothing = 1
	}
	p.SmoothHighs = smooth(highs, smoothing)
	p.SmoothLows = smooth(lows, smoothing)
	maxIdx, minIdx = find(p.SmoothHighs, p.SmoothLows, p.cfg.ExtremaRadius, minProm)
	p.ExtremaMaxima = points(maxIdx, highs)
	p.ExtremaMinima = points(minIdx, lows)
}

// EvictOldest drops index 0 and shifts every peak one bar to the left.
func (p *Peaks) EvictOldest() error {
	if len(p.Highs) == 0 {
		return fmt.Errorf("peaks evict: %w", model.ErrEmptySeries)
	}
	p.Highs = p.Highs[1:]
	p.Lows = p.Lows[1:]
	p.Closes = p.Closes[1:]
	if len(p.SmoothHighs) > 0 {
		p.SmoothHighs = p.SmoothHighs[1:]
		p.SmoothLows = p.SmoothLows[1:]
	}
	p.LocalMaxima = shift(p.LocalMaxima)
	p.LocalMinima = shift(p.LocalMinima)
	p.ExtremaMaxima = shift(p.ExtremaMaxima)
	p.ExtremaMinima = shift(p.ExtremaMinima)
	return nil
}

// Validate checks that every point list is strictly increasing and that
// maxima and minima never share an index.
func (p *Peaks) Validate() error {
	for _, pair := range [...][2][]model.Point{
		{p.LocalMaxima, p.LocalMinima},
		{p.ExtremaMaxima, p.ExtremaMinima},
	} {
		for _, side := range pair {
			for i := 1; i < len(side); i++ {
				if side[i].Index <= side[i-1].Index {
					return fmt.Errorf("%w: index %d after %d", model.ErrInvalidPeak, side[i].Index, side[i-1].Index)
				}
			}
		}
		seen := make(map[int]struct{}, len(pair[0]))
		for _, pt := range pair[0] {
			seen[pt.Index] = struct{}{}
		}
		for _, pt := range pair[1] {
			if _, ok := seen[pt.Index]; ok {
				return fmt.Errorf("%w: index %d is both maximum and minimum", model.ErrInvalidPeak, pt.Index)
			}
		}
	}
	return nil
}

// Reset clears every series.
func (p *Peaks) Reset() {
	*p = Peaks{cfg: p.cfg}
}

func shift(pts []model.Point) []model.Point {
	out := make([]model.Point, 0, len(pts))
	for _, pt := range pts {
		pt.Index--
		if pt.Index >= 0 {
			out = append(out, pt)
		}
	}
	return out
}

func points(idx []int, prices []float64) []model.Point {
	out := make([]model.Point, len(idx))
	for i, j := range idx {
		out[i] = model.Point{Index: j, Price: prices[j]}
	}
	return out
}
