// Package strategy provides the signal generators that drive orders.
//
// A Strategy looks at an instrument after one of its candles closed and
// emits a trading signal (BUY/SELL/EXIT). The Engine holds the registered
// strategies and collects their signals.
package strategy

import (
	"fmt"
	"strings"
	"time"

	"chartscan/internal/indicator"
	"chartscan/internal/model"
	"chartscan/internal/pattern"
)

// Signal represents a trading signal emitted by a strategy.
type Signal struct {
	StrategyName string    `json:"strategy_name"`
	Action       Action    `json:"action"` // BUY, SELL, EXIT
	Symbol       string    `json:"symbol"`
	Index        int       `json:"index"`
	Date         time.Time `json:"date"`
	Price        float64   `json:"price"`       // 0 = market order
	TakeProfit   float64   `json:"take_profit"` // 0 = none
	Reason       string    `json:"reason"`
}

// Action represents a trading action.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionExit Action = "EXIT"
)

// Market is the read side of an instrument a strategy needs.
// *instrument.Instrument satisfies it.
type Market interface {
	Symbol() string
	Len() int
	CandleAt(i int) (model.Candle, error)
	Indicators() *indicator.Bank
	Patterns() *pattern.Set
}

// Strategy is the interface that all trading strategies must implement.
type Strategy interface {
	// Name returns the unique name of the strategy.
	Name() string

	// OnCandle is called once candle index of m closed.
	// Return a Signal if the strategy wants to act, or nil to skip.
	OnCandle(m Market, index int) *Signal
}

// Engine manages registered strategies and routes closed candles to them.
// It is called from the goroutine that owns the instrument.
type Engine struct {
	strategies []Strategy
}

// NewEngine creates a strategy engine with the given strategies.
func NewEngine(strategies ...Strategy) *Engine {
	return &Engine{strategies: strategies}
}

// Register adds a strategy to the engine.
func (e *Engine) Register(s Strategy) {
	e.strategies = append(e.strategies, s)
}

// Names lists the registered strategies.
func (e *Engine) Names() []string {
	out := make([]string, len(e.strategies))
	for i, s := range e.strategies {
		out[i] = s.Name()
	}
	return out
}

// Evaluate runs every strategy on the closed candle index and returns
// their signals in registration order.
func (e *Engine) Evaluate(m Market, index int) []Signal {
	var out []Signal
	for _, s := range e.strategies {
		if sig := s.OnCandle(m, index); sig != nil {
			out = append(out, *sig)
		}
	}
	return out
}

// FromNames builds an Engine from strategy names, as given on the command
// line: ema, ema_rsi, breakout and breakout_extrema.
func FromNames(names []string) (*Engine, error) {
	e := NewEngine()
	for _, n := range names {
		switch strings.ToLower(strings.TrimSpace(n)) {
		case "":
		case "ema":
			e.Register(NewEMACrossover(false))
		case "ema_rsi":
			e.Register(NewEMACrossover(true))
		case "breakout":
			e.Register(NewPatternBreakout(false))
		case "breakout_extrema":
			e.Register(NewPatternBreakout(true))
		default:
			return nil, fmt.Errorf("unknown strategy %q", n)
		}
	}
	return e, nil
}
