package strategy

import (
	"github.com/rs/zerolog"

	"chartscan/internal/indicator"
	"chartscan/internal/logger"
)

// EMACrossover trades the crossings of the bank's EMA_A (fast) and EMA_B
// (slow).
//
// Buy signal: fast EMA crosses above slow EMA (golden cross)
// Sell signal: fast EMA crosses below slow EMA (death cross)
//
// With the RSI filter on, a cross into an overbought (>70) or oversold
// (<30) market only exits the opposite position.
type EMACrossover struct {
	name      string
	rsiFilter bool
	log       zerolog.Logger
}

// NewEMACrossover creates a new EMA crossover strategy.
func NewEMACrossover(rsiFilter bool) *EMACrossover {
	return &EMACrossover{
		name:      "EMA_Crossover",
		rsiFilter: rsiFilter,
		log:       logger.For("strategy"),
	}
}

func (s *EMACrossover) Name() string {
	return s.name
}

func (s *EMACrossover) OnCandle(m Market, index int) *Signal {
	bank := m.Indicators()
	fast, slow := bank.EMAA(), bank.EMAB()
	if fast == nil || slow == nil || index < 1 {
		return nil
	}
	f0, f1, ok1 := pair(fast, index)
	s0, s1, ok2 := pair(slow, index)
	if !ok1 || !ok2 {
		return nil
	}
	c, err := m.CandleAt(index)
	if err != nil {
		return nil
	}

	sig := &Signal{StrategyName: s.name, Symbol: m.Symbol(), Index: index, Date: c.Date}

	// Golden cross: fast crosses above slow
	if f0.A <= s0.A && f1.A > s1.A {
		if rsi, ok := s.rsi(bank, index); ok && rsi > 70 {
			s.log.Debug().Str("symbol", m.Symbol()).Float64("rsi", rsi).Msg("golden cross filtered by RSI > 70")
			sig.Action, sig.Reason = ActionExit, "EMA golden cross into overbought RSI"
			return sig
		}
		sig.Action, sig.Reason = ActionBuy, "EMA golden cross (fast > slow)"
		return sig
	}

	// Death cross: fast crosses below slow
	if f0.A >= s0.A && f1.A < s1.A {
		if rsi, ok := s.rsi(bank, index); ok && rsi < 30 {
			s.log.Debug().Str("symbol", m.Symbol()).Float64("rsi", rsi).Msg("death cross filtered by RSI < 30")
			sig.Action, sig.Reason = ActionExit, "EMA death cross into oversold RSI"
			return sig
		}
		sig.Action, sig.Reason = ActionSell, "EMA death cross (fast < slow)"
		return sig
	}
	return nil
}

func (s *EMACrossover) rsi(bank *indicator.Bank, index int) (float64, bool) {
	if !s.rsiFilter || bank.RSI() == nil {
		return 0, false
	}
	v, err := bank.RSI().At(index)
	if err != nil || !v.Ready {
		return 0, false
	}
	return v.A, true
}

// pair returns the samples at index-1 and index when both are warmed up.
func pair(ind indicator.Indicator, index int) (prev, cur indicator.Sample, ok bool) {
	prev, err := ind.At(index - 1)
	if err != nil || !prev.Ready {
		return prev, cur, false
	}
	cur, err = ind.At(index)
	if err != nil || !cur.Ready {
		return prev, cur, false
	}
	return prev, cur, true
}
