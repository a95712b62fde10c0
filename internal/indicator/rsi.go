package indicator

import (
	"fmt"

	"chartscan/internal/model"
)

// rsiState is the Relative Strength Index using Wilder's smoothing.
// O(1) per bar, no history scans.
type rsiState struct {
	count     int
	prevClose float64
	gain      wilder
	loss      wilder
}

// NewRSI creates RSI(period). A is the index in [0, 100]; 50 while warming up.
func NewRSI(period int) Indicator {
	init := rsiState{gain: wilder{period: period}, loss: wilder{period: period}}
	return newStream(fmt.Sprintf("RSI(%d)", period), init, stepRSI)
}

func stepRSI(s rsiState, c model.Candle) (rsiState, Sample) {
	s.count++
	if s.count == 1 {
		// First bar: just record price, no delta yet
		s.prevClose = c.Close
		return s, Sample{A: 50}
	}

	delta := c.Close - s.prevClose
	s.prevClose = c.Close

	gain, loss := 0.0, 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}
	s.gain = s.gain.push(gain)
	s.loss = s.loss.push(loss)

	if !s.gain.ready() {
		return s, Sample{A: 50}
	}
	return s, Sample{A: rsiValue(s.gain.value, s.loss.value), Ready: true}
}

func rsiValue(avgGain, avgLoss float64) float64 {
	total := avgGain + avgLoss
	if total == 0 {
		return 50
	}
	return 100 * avgGain / total
}
