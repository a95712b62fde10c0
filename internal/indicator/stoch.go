package indicator

import (
	"fmt"

	"chartscan/internal/model"
)

type stochState struct {
	highs, lows, k window
}

// NewStochastic creates the stochastic oscillator. A is %K over period
// bars, B is %D, the SMA(smooth) of %K.
func NewStochastic(period, smooth int) Indicator {
	init := stochState{highs: newWindow(period), lows: newWindow(period), k: newWindow(smooth)}
	return newStream(fmt.Sprintf("STOCH(%d,%d)", period, smooth), init, stepStoch)
}

func stepStoch(s stochState, c model.Candle) (stochState, Sample) {
	s.highs = s.highs.push(c.High)
	s.lows = s.lows.push(c.Low)
	hh, ll := s.highs.max(), s.lows.min()
	k := 50.0
	if hh > ll {
		k = 100 * (c.Close - ll) / (hh - ll)
	}
	if !s.highs.full() {
		return s, Sample{A: k, B: k}
	}
	s.k = s.k.push(k)
	return s, Sample{A: k, B: s.k.mean(), Ready: s.k.full()}
}
