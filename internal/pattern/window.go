package pattern

import (
	"math"
	"sort"

	"chartscan/internal/model"
)

type peakPoint struct {
	model.Point
	top bool
}

// window is a run of alternating peaks, oldest first.
type window struct {
	points  []model.Point
	tops    []model.Point
	bottoms []model.Point
	dir     model.PatternDirection
}

// newWindow splits pp into tops and bottoms. It fails when the points do
// not alternate between maxima and minima.
func newWindow(pp []peakPoint) (window, bool) {
	w := window{points: make([]model.Point, len(pp))}
	for i, p := range pp {
		if i > 0 && p.top == pp[i-1].top {
			return window{}, false
		}
		w.points[i] = p.Point
		if p.top {
			w.tops = append(w.tops, p.Point)
		} else {
			w.bottoms = append(w.bottoms, p.Point)
		}
	}
	w.dir = model.DirectionBottom
	if pp[0].top {
		w.dir = model.DirectionTop
	}
	return w, true
}

// fromPattern rebuilds the window of a detected pattern from its real data
// points (the projected point is dropped).
func fromPattern(p model.Pattern) (window, bool) {
	if len(p.DataPoints) < 5 {
		return window{}, false
	}
	pts := p.DataPoints[:len(p.DataPoints)-1]
	pp := make([]peakPoint, len(pts))
	for i, pt := range pts {
		pp[i] = peakPoint{Point: pt, top: (i%2 == 0) == (p.Direction == model.DirectionTop)}
	}
	return newWindow(pp)
}

func (w window) upper() line { return lineThrough(w.tops[0], w.tops[len(w.tops)-1]) }
func (w window) lower() line { return lineThrough(w.bottoms[0], w.bottoms[len(w.bottoms)-1]) }
func (w window) first() model.Point { return w.points[0] }
func (w window) last() model.Point  { return w.points[len(w.points)-1] }

// measure is the height a breakout projects: the head's distance to the
// neckline for head and shoulders, the band distance otherwise.
func measure(typ model.PatternType, w window) float64 {
	if typ == model.PatternHeadShoulders && len(w.points) == 5 {
		head, neck := w.tops[1], w.lower()
		if w.dir == model.DirectionBottom {
			head, neck = w.bottoms[1], w.upper()
		}
		return math.Abs(head.Price - neck.at(head.Index))
	}
	return math.Abs(w.height())
}

// height is the band distance at the last real point.
func (w window) height() float64 {
	i := w.last().Index
	return w.upper().at(i) - w.lower().at(i)
}

// merge takes the most recent n points of each side and returns them as one
// index-sorted sequence.
func merge(maxima, minima []model.Point, n int) []peakPoint {
	if n > 0 {
		maxima = tail(maxima, n)
		minima = tail(minima, n)
	}
	out := make([]peakPoint, 0, len(maxima)+len(minima))
	for _, p := range maxima {
		out = append(out, peakPoint{Point: p, top: true})
	}
	for _, p := range minima {
		out = append(out, peakPoint{Point: p})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

func tail(pts []model.Point, n int) []model.Point {
	if len(pts) > n {
		return pts[len(pts)-n:]
	}
	return pts
}
