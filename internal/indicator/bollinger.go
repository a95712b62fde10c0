package indicator

import (
	"fmt"

	"chartscan/internal/model"
)

// NewBollinger creates Bollinger Bands over SMA(period) of the close.
// A is the upper band, B the middle, C the lower.
func NewBollinger(period int, deviation float64) Indicator {
	return newStream(fmt.Sprintf("BB(%d,%g)", period, deviation), newWindow(period), func(w window, c model.Candle) (window, Sample) {
		w = w.push(c.Close)
		mid, sd := w.mean(), w.std()
		return w, Sample{A: mid + deviation*sd, B: mid, C: mid - deviation*sd, Ready: w.full()}
	})
}

// NewStdDev creates the population standard deviation of the close.
func NewStdDev(period int) Indicator {
	return newStream(fmt.Sprintf("STDDEV(%d)", period), newWindow(period), func(w window, c model.Candle) (window, Sample) {
		w = w.push(c.Close)
		return w, Sample{A: w.std(), Ready: w.full()}
	})
}
