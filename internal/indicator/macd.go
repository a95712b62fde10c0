package indicator

import (
	"fmt"

	"chartscan/internal/model"
)

type macdState struct {
	fast, slow, signal ema
}

// NewMACD creates MACD(fast, slow, signal). A is the MACD line, B the
// signal line and C the histogram. The signal EMA starts once the slow
// EMA is seeded.
func NewMACD(fast, slow, signal int) Indicator {
	init := macdState{fast: newEMAState(fast), slow: newEMAState(slow), signal: newEMAState(signal)}
	return newStream(fmt.Sprintf("MACD(%d,%d,%d)", fast, slow, signal), init, stepMACD)
}

func stepMACD(s macdState, c model.Candle) (macdState, Sample) {
	s.fast = s.fast.push(c.Close)
	s.slow = s.slow.push(c.Close)
	if !s.fast.ready() || !s.slow.ready() {
		return s, Sample{}
	}
	line := s.fast.value - s.slow.value
	s.signal = s.signal.push(line)
	return s, Sample{
		A:     line,
		B:     s.signal.value,
		C:     line - s.signal.value,
		Ready: s.signal.ready(),
	}
}
