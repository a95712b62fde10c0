package strategy

import (
	"fmt"

	"chartscan/internal/model"
)

// PatternBreakout enters in the direction a chart pattern broke on the
// closed candle, with the pattern target as take profit.
type PatternBreakout struct {
	name        string
	extremaOnly bool
}

// NewPatternBreakout creates the strategy. With extremaOnly set, patterns
// found on local peaks are ignored.
func NewPatternBreakout(extremaOnly bool) *PatternBreakout {
	return &PatternBreakout{name: "Pattern_Breakout", extremaOnly: extremaOnly}
}

func (s *PatternBreakout) Name() string {
	return s.name
}

func (s *PatternBreakout) OnCandle(m Market, index int) *Signal {
	set := m.Patterns()
	if set == nil {
		return nil
	}
	// Extrema patterns come first: they span more bars.
	candidates := set.Extrema
	if !s.extremaOnly {
		candidates = append(candidates[:len(candidates):len(candidates)], set.Local...)
	}
	for _, p := range candidates {
		a := p.Active
		if !a.Active || a.Index != index || a.Status != model.StatusActive {
			continue
		}
		sig := &Signal{
			StrategyName: s.name,
			Symbol:       m.Symbol(),
			Index:        index,
			Date:         a.Date,
			TakeProfit:   a.Target,
			Reason:       fmt.Sprintf("%s %s breakout %s", p.Size, p.Type, a.BreakDirection),
		}
		switch a.BreakDirection {
		case model.BreakUp:
			sig.Action = ActionBuy
		case model.BreakDown:
			sig.Action = ActionSell
		default:
			continue
		}
		return sig
	}
	return nil
}
