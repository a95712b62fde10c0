package indicator

import (
	"fmt"

	"chartscan/internal/model"
)

// ema is an exponential moving average seeded with SMA(period).
// O(1) per bar, no window storage.
type ema struct {
	period     int
	multiplier float64
	count      int
	sum        float64
	value      float64
}

func newEMAState(period int) ema {
	return ema{period: period, multiplier: 2.0 / float64(period+1)}
}

func (e ema) push(price float64) ema {
	e.count++
	if e.count <= e.period {
		// Accumulate for initial SMA seed
		e.sum += price
		e.value = e.sum / float64(e.count)
		return e
	}
	// EMA = (Price * multiplier) + (EMA_prev * (1 - multiplier))
	e.value = (price * e.multiplier) + (e.value * (1 - e.multiplier))
	return e
}

func (e ema) ready() bool { return e.count >= e.period }

// NewEMA creates an EMA of the close. Sample.A is the average.
func NewEMA(period int) Indicator {
	return newStream(fmt.Sprintf("EMA(%d)", period), newEMAState(period), func(s ema, c model.Candle) (ema, Sample) {
		s = s.push(c.Close)
		return s, Sample{A: s.value, Ready: s.ready()}
	})
}
