// Package portfolio tracks open positions, realized P&L and the equity
// curve of a backtest or live session.
//
// It keeps one open trade per symbol, marks it to the latest close and
// provides exposure summaries.
package portfolio

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"chartscan/internal/model"
)

// Position is the open trade of one symbol.
type Position struct {
	Entry     model.TradeIn   `json:"entry"`
	LastPrice decimal.Decimal `json:"last_price"`
}

// UnrealizedPnL marks the position to LastPrice.
func (p *Position) UnrealizedPnL() decimal.Decimal {
	diff := p.LastPrice.Sub(p.Entry.Price)
	if !p.Entry.IsLong() {
		diff = diff.Neg()
	}
	return diff.Mul(p.Entry.Quantity)
}

// Portfolio tracks all open positions.
type Portfolio struct {
	mu        sync.RWMutex
	positions map[string]*Position // key = symbol
}

// New creates a new empty Portfolio.
func New() *Portfolio {
	return &Portfolio{
		positions: make(map[string]*Position),
	}
}

// Open registers the entry as the open position of its symbol. It reports
// false when the symbol already has one.
func (pf *Portfolio) Open(in model.TradeIn) bool {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	if _, ok := pf.positions[in.Symbol]; ok {
		return false
	}
	pf.positions[in.Symbol] = &Position{Entry: in, LastPrice: in.Price}
	return true
}

// Close removes and returns the open position of symbol.
func (pf *Portfolio) Close(symbol string) (Position, bool) {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	pos, ok := pf.positions[symbol]
	if !ok {
		return Position{}, false
	}
	delete(pf.positions, symbol)
	return *pos, true
}

// Position returns the open position of symbol.
func (pf *Portfolio) Position(symbol string) (Position, bool) {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	pos, ok := pf.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// UpdatePrice marks the position of symbol to price.
func (pf *Portfolio) UpdatePrice(symbol string, price float64) {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	if pos, ok := pf.positions[symbol]; ok {
		pos.LastPrice = decimal.NewFromFloat(price)
	}
}

// GetPositions returns a snapshot of all positions ordered by symbol.
func (pf *Portfolio) GetPositions() []Position {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	result := make([]Position, 0, len(pf.positions))
	for _, p := range pf.positions {
		result = append(result, *p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Entry.Symbol < result[j].Entry.Symbol })
	return result
}

// Len is the number of open positions.
func (pf *Portfolio) Len() int {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	return len(pf.positions)
}

// TotalUnrealizedPnL returns the unrealized P&L across all positions.
func (pf *Portfolio) TotalUnrealizedPnL() decimal.Decimal {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	total := decimal.Zero
	for _, p := range pf.positions {
		total = total.Add(p.UnrealizedPnL())
	}
	return total
}
