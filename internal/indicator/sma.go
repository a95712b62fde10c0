package indicator

import "math"

// window is a fixed-length rolling window of the most recent values.
// push returns a new window and never writes to the receiver's slice.
type window struct {
	n    int
	vals []float64
}

func newWindow(n int) window { return window{n: n} }

func (w window) push(v float64) window {
	start := 0
	if len(w.vals) == w.n {
		start = 1
	}
	vals := make([]float64, 0, w.n)
	vals = append(vals, w.vals[start:]...)
	vals = append(vals, v)
	return window{n: w.n, vals: vals}
}

func (w window) full() bool { return len(w.vals) == w.n }

func (w window) mean() float64 {
	if len(w.vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range w.vals {
		sum += v
	}
	return sum / float64(len(w.vals))
}

// std is the population standard deviation.
func (w window) std() float64 {
	if len(w.vals) == 0 {
		return 0
	}
	m := w.mean()
	ss := 0.0
	for _, v := range w.vals {
		ss += (v - m) * (v - m)
	}
	return math.Sqrt(ss / float64(len(w.vals)))
}

func (w window) max() float64 {
	out := math.Inf(-1)
	for _, v := range w.vals {
		out = math.Max(out, v)
	}
	return out
}

func (w window) min() float64 {
	out := math.Inf(1)
	for _, v := range w.vals {
		out = math.Min(out, v)
	}
	return out
}
