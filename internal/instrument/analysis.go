package instrument

import (
	"math"
	"slices"

	"chartscan/internal/divergence"
	"chartscan/internal/levels"
	"chartscan/internal/model"
)

// analyze recomputes everything derived from the closed bars: price range,
// peaks, patterns, divergences and horizontal levels.
func (i *Instrument) analyze() {
	candles := i.candles.Slice()
	closed := candles
	if n := len(closed); n > 0 && !closed[n-1].IsClosed {
		closed = closed[:n-1]
	}
	if len(closed) == 0 {
		return
	}
	i.minPrice, i.maxPrice = priceRange(closed)

	eng := i.cfg.Engine
	i.peaks.CalculatePeaks(i.maxPrice, i.minPrice, eng.Peaks.Smoothing)
	if err := i.peaks.Validate(); err != nil {
		i.log.Warn().Err(err).Msg("peaks invalid, skipping bar analysis")
		return
	}

	if eng.Patterns.Enabled {
		for _, size := range []model.PatternSize{model.PatternLocal, model.PatternExtrema} {
			maxima, minima := i.peaks.LocalMaxima, i.peaks.LocalMinima
			if size == model.PatternExtrema {
				maxima, minima = i.peaks.ExtremaMaxima, i.peaks.ExtremaMinima
			}
			found := i.detector.Detect(size, maxima, minima, candles)
			added := i.patterns.Merge(size, found)
			i.events.Patterns = append(i.events.Patterns, added...)
		}
	}

	if eng.Divergences {
		found := divergence.Detect(i.peaks.LocalMaxima, i.peaks.LocalMinima, divergence.Sources(i.bank), candles)
		for _, d := range found {
			if !slices.Contains(i.divergences, d) {
				i.divergences = append(i.divergences, d)
				i.events.Divergences = append(i.events.Divergences, d)
			}
		}
	}

	if eng.HorizontalLevels {
		i.levels = levels.Detect(i.peaks.LocalMaxima, i.peaks.LocalMinima, eng.Patterns.EqualThreshold, closed[len(closed)-1].Close)
	}
}

// refreshPatterns recomputes breakout states against the window including
// the open candle.
func (i *Instrument) refreshPatterns() {
	if i.patterns.Len() == 0 {
		return
	}
	changed := i.patterns.Refresh(i.detector, i.candles.Slice())
	i.events.Breakouts = append(i.events.Breakouts, changed...)
}

func priceRange(candles []model.Candle) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, c := range candles {
		lo = min(lo, c.Low)
		hi = max(hi, c.High)
	}
	return lo, hi
}

func shiftDivergences(ds []model.Divergence) []model.Divergence {
	out := ds[:0]
	for _, d := range ds {
		if d.Index > 0 {
			d.Index--
			out = append(out, d)
		}
	}
	return out
}

func shiftLevels(ls []model.HorizontalLevel) []model.HorizontalLevel {
	out := ls[:0]
	for _, l := range ls {
		if l.LastIndex > 0 {
			l.LastIndex--
			l.FirstIndex = max(l.FirstIndex-1, 0)
			out = append(out, l)
		}
	}
	return out
}
