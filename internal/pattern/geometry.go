package pattern

import (
	"math"

	"chartscan/internal/model"
)

const (
	// slopeTolerance is the relative slope difference two bands may have
	// and still count as parallel.
	slopeTolerance = 0.35
	// looseSlopeTolerance applies to the second, looser descending channel check.
	looseSlopeTolerance = 0.6
)

// line is y = slope*x + icpt over candle indices.
type line struct {
	slope float64
	icpt  float64
}

func lineThrough(a, b model.Point) line {
	if a.Index == b.Index {
		return line{icpt: (a.Price + b.Price) / 2}
	}
	s := (b.Price - a.Price) / float64(b.Index-a.Index)
	return line{slope: s, icpt: a.Price - s*float64(a.Index)}
}

func (l line) at(i int) float64 { return l.slope*float64(i) + l.icpt }

// isEqual reports whether a and b are within thr percent of their mean.
func isEqual(a, b, thr float64) bool {
	mean := (math.Abs(a) + math.Abs(b)) / 2
	if mean == 0 {
		return a == b
	}
	return math.Abs(a-b)/mean*100 <= thr
}

func rising(a, b model.Point, thr float64) bool  { return b.Price > a.Price && !isEqual(a.Price, b.Price, thr) }
func falling(a, b model.Point, thr float64) bool { return b.Price < a.Price && !isEqual(a.Price, b.Price, thr) }

func upperBandEqual(w window, thr float64) bool {
	return isEqual(w.tops[0].Price, w.tops[1].Price, thr)
}

func lowerBandEqual(w window, thr float64) bool {
	return isEqual(w.bottoms[0].Price, w.bottoms[1].Price, thr)
}

// bandsHaveSameSlope reports whether both bands point the same way with
// slopes differing by at most tol relative to the steeper one.
func bandsHaveSameSlope(w window, tol float64) bool {
	st, sb := w.upper().slope, w.lower().slope
	if st == 0 || sb == 0 || (st > 0) != (sb > 0) {
		return false
	}
	return math.Abs(st-sb) <= tol*math.Max(math.Abs(st), math.Abs(sb))
}

func parallelLines(w window) bool { return bandsHaveSameSlope(w, slopeTolerance) }

// hasMinimumBars reports whether consecutive points are at least minBars apart.
func hasMinimumBars(pts []model.Point, minBars int) bool {
	for i := 1; i < len(pts); i++ {
		if pts[i].Index-pts[i-1].Index < minBars {
			return false
		}
	}
	return true
}
