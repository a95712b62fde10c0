package peak

// find returns the indices of local maxima of highs and local minima of
// lows. A maximum is >= every high within radius to its right and strictly
// > every high within radius to its left, so the leftmost bar of a plateau
// wins. Windows are truncated at the edges. An index that qualifies as
// both is dropped from both. minProm > 0 additionally requires the peak to
// stand that far above (below) the opposite extreme of its window.
func find(highs, lows []float64, radius int, minProm float64) (maxima, minima []int) {
	n := len(highs)
	for i := 0; i < n; i++ {
		lo, hi := max(0, i-radius), min(n-1, i+radius)
		if isMax(highs, i, lo, hi) && (minProm == 0 || highs[i]-minOf(lows, lo, hi) >= minProm) {
			maxima = append(maxima, i)
		}
		if isMin(lows, i, lo, hi) && (minProm == 0 || maxOf(highs, lo, hi)-lows[i] >= minProm) {
			minima = append(minima, i)
		}
	}
	return disjoint(maxima, minima)
}

func isMax(v []float64, i, lo, hi int) bool {
	for j := lo; j < i; j++ {
		if v[j] >= v[i] {
			return false
		}
	}
	for j := i + 1; j <= hi; j++ {
		if v[j] > v[i] {
			return false
		}
	}
	return true
}

func isMin(v []float64, i, lo, hi int) bool {
	for j := lo; j < i; j++ {
		if v[j] <= v[i] {
			return false
		}
	}
	for j := i + 1; j <= hi; j++ {
		if v[j] < v[i] {
			return false
		}
	}
	return true
}

func minOf(v []float64, lo, hi int) float64 {
	m := v[lo]
	for j := lo + 1; j <= hi; j++ {
		m = min(m, v[j])
	}
	return m
}

func maxOf(v []float64, lo, hi int) float64 {
	m := v[lo]
	for j := lo + 1; j <= hi; j++ {
		m = max(m, v[j])
	}
	return m
}

// disjoint removes indices present in both sorted lists.
func disjoint(a, b []int) ([]int, []int) {
	common := make(map[int]struct{})
	for i, j := 0, 0; i < len(a) && j < len(b); {
		switch {
		case a[i] == b[j]:
			common[a[i]] = struct{}{}
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	if len(common) == 0 {
		return a, b
	}
	return without(a, common), without(b, common)
}

func without(v []int, drop map[int]struct{}) []int {
	out := make([]int, 0, len(v))
	for _, x := range v {
		if _, ok := drop[x]; !ok {
			out = append(out, x)
		}
	}
	return out
}

// smooth is a centered moving average of the given width, truncated at the edges.
func smooth(v []float64, width int) []float64 {
	out := make([]float64, len(v))
	half := width / 2
	for i := range v {
		lo, hi := max(0, i-half), min(len(v)-1, i+half)
		sum := 0.0
		for j := lo; j <= hi; j++ {
			sum += v[j]
		}
		out[i] = sum / float64(hi-lo+1)
	}
	return out
}
