package indicator

import (
	"fmt"
	"math"

	"chartscan/internal/model"
)

type atrState struct {
	count     int
	prevClose float64
	tr        wilder
}

// NewATR creates ATR(period) with Wilder smoothing of the true range.
// The first bar has no previous close and only seeds the state.
func NewATR(period int) Indicator {
	return newStream(fmt.Sprintf("ATR(%d)", period), atrState{tr: wilder{period: period}}, stepATR)
}

func stepATR(s atrState, c model.Candle) (atrState, Sample) {
	s.count++
	if s.count == 1 {
		s.prevClose = c.Close
		return s, Sample{A: c.High - c.Low}
	}
	s.tr = s.tr.push(trueRange(c, s.prevClose))
	s.prevClose = c.Close
	return s, Sample{A: s.tr.value, Ready: s.tr.ready()}
}

func trueRange(c model.Candle, prevClose float64) float64 {
	return math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
}
