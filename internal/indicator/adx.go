package indicator

import (
	"fmt"
	"math"

	"chartscan/internal/model"
)

type adxState struct {
	count     int
	prevHigh  float64
	prevLow   float64
	prevClose float64
	tr        wilderSum
	plusDM    wilderSum
	minusDM   wilderSum
	dx        wilder
}

// NewADX creates Wilder's directional movement system. A is ADX, B is +DI
// and C is -DI. DI lines are available after period bars, ADX after twice that.
func NewADX(period int) Indicator {
	init := adxState{
		tr:      wilderSum{period: period},
		plusDM:  wilderSum{period: period},
		minusDM: wilderSum{period: period},
		dx:      wilder{period: period},
	}
	return newStream(fmt.Sprintf("ADX(%d)", period), init, stepADX)
}

func stepADX(s adxState, c model.Candle) (adxState, Sample) {
	s.count++
	if s.count == 1 {
		s.prevHigh, s.prevLow, s.prevClose = c.High, c.Low, c.Close
		return s, Sample{}
	}

	up := c.High - s.prevHigh
	down := s.prevLow - c.Low
	plus, minus := 0.0, 0.0
	if up > down && up > 0 {
		plus = up
	}
	if down > up && down > 0 {
		minus = down
	}
	s.tr = s.tr.push(trueRange(c, s.prevClose))
	s.plusDM = s.plusDM.push(plus)
	s.minusDM = s.minusDM.push(minus)
	s.prevHigh, s.prevLow, s.prevClose = c.High, c.Low, c.Close

	if !s.tr.ready() || s.tr.value == 0 {
		return s, Sample{}
	}
	pdi := 100 * s.plusDM.value / s.tr.value
	mdi := 100 * s.minusDM.value / s.tr.value
	dx := 0.0
	if pdi+mdi > 0 {
		dx = 100 * math.Abs(pdi-mdi) / (pdi + mdi)
	}
	s.dx = s.dx.push(dx)
	return s, Sample{A: s.dx.value, B: pdi, C: mdi, Ready: s.dx.ready()}
}
