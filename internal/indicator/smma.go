package indicator

// wilder is Wilder's smoothed moving average (SMMA).
// First value is SMA(period), then SMMA = (prev*(period-1) + v) / period.
// Before it is ready the value is the running mean.
type wilder struct {
	period int
	count  int
	sum    float64
	value  float64
}

func (w wilder) push(v float64) wilder {
	w.count++
	if w.count <= w.period {
		w.sum += v
		w.value = w.sum / float64(w.count)
		return w
	}
	p := float64(w.period)
	w.value = (w.value*(p-1) + v) / p
	return w
}

func (w wilder) ready() bool { return w.count >= w.period }

// wilderSum is Wilder's running-total smoothing used by DMI:
// the first value is the plain sum, then sum = sum - sum/period + v.
type wilderSum struct {
	period int
	count  int
	value  float64
}

func (w wilderSum) push(v float64) wilderSum {
	w.count++
	if w.count <= w.period {
		w.value += v
		return w
	}
	w.value = w.value - w.value/float64(w.period) + v
	return w
}

func (w wilderSum) ready() bool { return w.count >= w.period }
