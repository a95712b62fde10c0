package pattern

import "chartscan/internal/model"

// classifier returns the pattern a window forms, if any.
type classifier func(w window, thr float64) (model.PatternType, bool)

// chain is evaluated in order on every four-point window; the first match wins.
var chain = []classifier{
	isRectangle,
	isDouble,
	isChannel,
	isTriangle,
	isChannelDownLoose,
	isBroadening,
	isTriangleSym,
	isTrend,
}

func isRectangle(w window, thr float64) (model.PatternType, bool) {
	return model.PatternRectangle, upperBandEqual(w, thr) && lowerBandEqual(w, thr)
}

// isDouble matches two equal extremes where the opposite band broke away
// from them: equal tops with a lower second trough, or the mirror.
func isDouble(w window, thr float64) (model.PatternType, bool) {
	t, b := w.tops, w.bottoms
	switch w.dir {
	case model.DirectionTop:
		if upperBandEqual(w, thr) && falling(b[0], b[1], thr) {
			return model.PatternDoubleTop, true
		}
	case model.DirectionBottom:
		if lowerBandEqual(w, thr) && rising(t[0], t[1], thr) {
			return model.PatternDoubleBottom, true
		}
	}
	return model.PatternNone, false
}

func isChannel(w window, thr float64) (model.PatternType, bool) {
	t, b := w.tops, w.bottoms
	if !parallelLines(w) {
		return model.PatternNone, false
	}
	if rising(t[0], t[1], thr) && rising(b[0], b[1], thr) {
		return model.PatternChannelUp, true
	}
	if falling(t[0], t[1], thr) && falling(b[0], b[1], thr) {
		return model.PatternChannelDown, true
	}
	return model.PatternNone, false
}

// isTriangle matches the ascending (flat top, rising bottoms) and
// descending (falling tops, flat bottom) triangles.
func isTriangle(w window, thr float64) (model.PatternType, bool) {
	t, b := w.tops, w.bottoms
	if upperBandEqual(w, thr) && rising(b[0], b[1], thr) {
		return model.PatternTriangleUp, true
	}
	if lowerBandEqual(w, thr) && falling(t[0], t[1], thr) {
		return model.PatternTriangleDown, true
	}
	return model.PatternNone, false
}

func isChannelDownLoose(w window, thr float64) (model.PatternType, bool) {
	t, b := w.tops, w.bottoms
	ok := falling(t[0], t[1], thr) && falling(b[0], b[1], thr) && bandsHaveSameSlope(w, looseSlopeTolerance)
	return model.PatternChannelDown, ok
}

func isBroadening(w window, thr float64) (model.PatternType, bool) {
	t, b := w.tops, w.bottoms
	return model.PatternBroadening, rising(t[0], t[1], thr) && falling(b[0], b[1], thr)
}

func isTriangleSym(w window, thr float64) (model.PatternType, bool) {
	t, b := w.tops, w.bottoms
	return model.PatternTriangleSym, falling(t[0], t[1], thr) && rising(b[0], b[1], thr)
}

func isTrend(w window, thr float64) (model.PatternType, bool) {
	t, b := w.tops, w.bottoms
	if rising(t[0], t[1], thr) && rising(b[0], b[1], thr) {
		return model.PatternHigherHighsHigherLows, true
	}
	if falling(t[0], t[1], thr) && falling(b[0], b[1], thr) {
		return model.PatternLowerHighsLowerLows, true
	}
	return model.PatternNone, false
}

// isHeadShoulders matches a five-point window whose middle extreme stands
// out beyond two equal shoulders, with a roughly flat neckline. Bottom
// windows give the inverse formation.
func isHeadShoulders(w window, thr float64) (model.PatternType, bool) {
	if len(w.points) != 5 {
		return model.PatternNone, false
	}
	var shoulders, neck []model.Point
	var headOut bool
	switch w.dir {
	case model.DirectionTop:
		shoulders, neck = w.tops, w.bottoms
		headOut = rising(shoulders[0], shoulders[1], thr) && falling(shoulders[1], shoulders[2], thr)
	case model.DirectionBottom:
		shoulders, neck = w.bottoms, w.tops
		headOut = falling(shoulders[0], shoulders[1], thr) && rising(shoulders[1], shoulders[2], thr)
	default:
		return model.PatternNone, false
	}
	ok := headOut &&
		isEqual(shoulders[0].Price, shoulders[2].Price, thr) &&
		isEqual(neck[0].Price, neck[1].Price, 2*thr)
	return model.PatternHeadShoulders, ok
}
