// Package pattern classifies geometric chart patterns on alternating price
// peaks and tracks their breakouts.
package pattern

import (
	"slices"

	"chartscan/config"
	"chartscan/internal/model"
)

// Detector finds patterns on peak sequences. It holds no state between
// calls; Detect is a pure function of its arguments.
type Detector struct {
	cfg config.Patterns
}

// New returns a detector for cfg.
func New(cfg config.Patterns) *Detector {
	if cfg.MaxPoints < 2 {
		cfg.MaxPoints = 2
	}
	return &Detector{cfg: cfg}
}

// Detect scans windows of alternating peaks from the most recent one
// backwards and returns the patterns they form, newest first. With the
// first scan policy it stops at the first classified window.
func (d *Detector) Detect(size model.PatternSize, maxima, minima []model.Point, candles []model.Candle) []model.Pattern {
	pts := merge(maxima, minima, d.cfg.MaxPoints)
	var out []model.Pattern
	for end := len(pts); end >= 4; end-- {
		p, ok := d.classify(size, pts[:end], candles)
		if !ok {
			continue
		}
		out = append(out, p)
		if d.cfg.ScanPolicy != config.ScanAll {
			break
		}
	}
	return out
}

// classify looks at the window ending at the last of pts. A head and
// shoulders on the last five points takes precedence over whatever its
// four-point tail forms; otherwise the four-point chain decides.
func (d *Detector) classify(size model.PatternSize, pts []peakPoint, candles []model.Candle) (model.Pattern, bool) {
	thr := d.cfg.EqualThreshold
	if len(pts) >= 5 {
		if w, ok := newWindow(pts[len(pts)-5:]); ok && hasMinimumBars(w.points, d.cfg.MinPoints) {
			if typ, ok := isHeadShoulders(w, thr); ok {
				return d.build(size, typ, w, candles), true
			}
		}
	}
	w, ok := newWindow(pts[len(pts)-4:])
	if !ok || !hasMinimumBars(w.points, d.cfg.MinPoints) {
		return model.Pattern{}, false
	}
	for _, c := range chain {
		if typ, ok := c(w, thr); ok {
			return d.build(size, typ, w, candles), true
		}
	}
	return model.Pattern{}, false
}

func (d *Detector) build(size model.PatternSize, typ model.PatternType, w window, candles []model.Candle) model.Pattern {
	last := w.last()
	p := model.Pattern{
		Index:      last.Index,
		Type:       typ,
		Size:       size,
		Direction:  w.dir,
		DataPoints: append(slices.Clone(w.points), project(w)),
		Target:     target(w, measure(typ, w), expectedBreak(typ, w.dir)),
		Active:     d.active(w, measure(typ, w), candles),
	}
	if last.Index < len(candles) {
		p.Date = candles[last.Index].Date
	}
	return p
}

// project extends the window with the next point of the band opposite to
// its last point, one mean gap further.
func project(w window) model.Point {
	first, last := w.first(), w.last()
	gap := (last.Index - first.Index) / (len(w.points) - 1)
	if gap < 1 {
		gap = 1
	}
	band := w.upper()
	if last == w.tops[len(w.tops)-1] {
		band = w.lower()
	}
	idx := last.Index + gap
	return model.Point{Index: idx, Price: band.at(idx)}
}

// expectedBreak is the side a pattern usually resolves to. Neutral
// formations follow the window direction.
func expectedBreak(typ model.PatternType, dir model.PatternDirection) model.BreakDirection {
	switch typ {
	case model.PatternDoubleTop, model.PatternTriangleDown, model.PatternChannelUp, model.PatternLowerHighsLowerLows:
		return model.BreakDown
	case model.PatternDoubleBottom, model.PatternTriangleUp, model.PatternChannelDown, model.PatternHigherHighsHigherLows:
		return model.BreakUp
	}
	if dir == model.DirectionTop {
		return model.BreakDown
	}
	return model.BreakUp
}

// target extrapolates height h from the band price is expected to break.
func target(w window, h float64, dir model.BreakDirection) float64 {
	i := w.last().Index
	if dir == model.BreakUp {
		return w.upper().at(i) + h
	}
	return w.lower().at(i) - h
}
