// Package divergence finds disagreements between price peaks and
// oscillator readings at the same bars.
package divergence

import (
	"chartscan/internal/indicator"
	"chartscan/internal/model"
)

// Source is one oscillator line aligned with the candles.
type Source struct {
	Name   string
	Values []indicator.Sample
	Line   func(indicator.Sample) float64
}

// Sources returns the oscillators of bank that divergences are checked
// against: RSI, MACD histogram and stochastic %K, when enabled.
func Sources(bank *indicator.Bank) []Source {
	var out []Source
	if ind := bank.RSI(); ind != nil {
		out = append(out, Source{Name: ind.Name(), Values: ind.Series(), Line: lineA})
	}
	if ind := bank.MACD(); ind != nil {
		out = append(out, Source{Name: ind.Name(), Values: ind.Series(), Line: lineC})
	}
	if ind := bank.Stochastic(); ind != nil {
		out = append(out, Source{Name: ind.Name(), Values: ind.Series(), Line: lineA})
	}
	return out
}

func lineA(s indicator.Sample) float64 { return s.A }
func lineC(s indicator.Sample) float64 { return s.C }

// Detect compares the two most recent minima (bullish: lower low in price,
// higher low on the oscillator) and maxima (bearish: higher high in price,
// lower high on the oscillator) against every source. Samples still
// warming up are ignored.
func Detect(maxima, minima []model.Point, sources []Source, candles []model.Candle) []model.Divergence {
	var out []model.Divergence
	for _, src := range sources {
		if d, ok := check(minima, src, candles, model.DivergenceBullish); ok {
			out = append(out, d)
		}
		if d, ok := check(maxima, src, candles, model.DivergenceBearish); ok {
			out = append(out, d)
		}
	}
	return out
}

func check(pts []model.Point, src Source, candles []model.Candle, typ model.DivergenceType) (model.Divergence, bool) {
	if len(pts) < 2 {
		return model.Divergence{}, false
	}
	a, b := pts[len(pts)-2], pts[len(pts)-1]
	if b.Index >= len(src.Values) || b.Index >= len(candles) || a.Index < 0 {
		return model.Divergence{}, false
	}
	sa, sb := src.Values[a.Index], src.Values[b.Index]
	if !sa.Ready || !sb.Ready {
		return model.Divergence{}, false
	}
	oa, ob := src.Line(sa), src.Line(sb)

	var ok bool
	switch typ {
	case model.DivergenceBullish:
		ok = b.Price < a.Price && ob > oa
	case model.DivergenceBearish:
		ok = b.Price > a.Price && ob < oa
	}
	if !ok {
		return model.Divergence{}, false
	}
	return model.Divergence{
		Index:     b.Index,
		Date:      candles[b.Index].Date,
		Indicator: src.Name,
		Type:      typ,
	}, true
}
