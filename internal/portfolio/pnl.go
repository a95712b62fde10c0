package portfolio

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"chartscan/internal/model"
)

// EquityPoint is the account equity after a closed trade.
type EquityPoint struct {
	Date   time.Time       `json:"date"`
	Equity decimal.Decimal `json:"equity"`
}

// Ledger records closed trades and derives the performance summary.
type Ledger struct {
	mu      sync.RWMutex
	initial decimal.Decimal
	equity  decimal.Decimal
	peak    decimal.Decimal
	maxDD   decimal.Decimal
	trades  []model.TradeOut
	curve   []EquityPoint
}

// NewLedger starts a ledger at initialEquity.
func NewLedger(initialEquity decimal.Decimal) *Ledger {
	return &Ledger{
		initial: initialEquity,
		equity:  initialEquity,
		peak:    initialEquity,
		trades:  make([]model.TradeOut, 0, 128),
	}
}

// RecordTrade books a closed trade and returns the new equity.
func (l *Ledger) RecordTrade(out model.TradeOut) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.trades = append(l.trades, out)
	l.equity = l.equity.Add(out.Profit)
	if l.equity.GreaterThan(l.peak) {
		l.peak = l.equity
	}
	if dd := l.peak.Sub(l.equity); dd.GreaterThan(l.maxDD) {
		l.maxDD = dd
	}
	l.curve = append(l.curve, EquityPoint{Date: out.DateOut, Equity: l.equity})
	return l.equity
}

// Equity returns the current realized equity.
func (l *Ledger) Equity() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.equity
}

// DrawdownPct is the current distance from the equity peak in percent.
func (l *Ledger) DrawdownPct() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.peak.IsPositive() {
		return 0
	}
	return l.peak.Sub(l.equity).Div(l.peak).Mul(decimal.NewFromInt(100)).InexactFloat64()
}

// GetTrades returns a snapshot of all closed trades.
func (l *Ledger) GetTrades() []model.TradeOut {
	l.mu.RLock()
	defer l.mu.RUnlock()
	cp := make([]model.TradeOut, len(l.trades))
	copy(cp, l.trades)
	return cp
}

// EquityCurve returns a snapshot of the equity after every trade.
func (l *Ledger) EquityCurve() []EquityPoint {
	l.mu.RLock()
	defer l.mu.RUnlock()
	cp := make([]EquityPoint, len(l.curve))
	copy(cp, l.curve)
	return cp
}

// Summary is the performance report of a ledger.
type Summary struct {
	InitialEquity  decimal.Decimal `json:"initial_equity"`
	FinalEquity    decimal.Decimal `json:"final_equity"`
	NetProfit      decimal.Decimal `json:"net_profit"`
	NetProfitPct   float64         `json:"net_profit_pct"`
	GrossProfit    decimal.Decimal `json:"gross_profit"`
	GrossLoss      decimal.Decimal `json:"gross_loss"`
	ProfitFactor   float64         `json:"profit_factor"`
	TotalTrades    int             `json:"total_trades"`
	Winners        int             `json:"winners"`
	Losers         int             `json:"losers"`
	WinRate        float64         `json:"win_rate"`
	AvgTrade       decimal.Decimal `json:"avg_trade"`
	MaxRunUp       decimal.Decimal `json:"max_run_up"`
	MaxDrawDown    decimal.Decimal `json:"max_draw_down"`
	MaxEquityDD    decimal.Decimal `json:"max_equity_drawdown"`
	MaxEquityDDPct float64         `json:"max_equity_drawdown_pct"`
	LongTrades     int             `json:"long_trades"`
	ShortTrades    int             `json:"short_trades"`
}

// GetSummary returns the performance summary of every recorded trade.
func (l *Ledger) GetSummary() Summary {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s := Summary{
		InitialEquity: l.initial,
		FinalEquity:   l.equity,
		NetProfit:     l.equity.Sub(l.initial),
		GrossProfit:   decimal.Zero,
		GrossLoss:     decimal.Zero,
		AvgTrade:      decimal.Zero,
		MaxRunUp:      decimal.Zero,
		MaxDrawDown:   decimal.Zero,
		MaxEquityDD:   l.maxDD,
		TotalTrades:   len(l.trades),
	}
	for _, t := range l.trades {
		switch {
		case t.Profit.IsPositive():
			s.Winners++
			s.GrossProfit = s.GrossProfit.Add(t.Profit)
		case t.Profit.IsNegative():
			s.Losers++
			s.GrossLoss = s.GrossLoss.Add(t.Profit.Neg())
		}
		if t.TradeIn.IsLong() {
			s.LongTrades++
		} else {
			s.ShortTrades++
		}
		s.MaxRunUp = decimal.Max(s.MaxRunUp, t.RunUp)
		s.MaxDrawDown = decimal.Max(s.MaxDrawDown, t.DrawDown)
	}

	hundred := decimal.NewFromInt(100)
	if l.initial.IsPositive() {
		s.NetProfitPct = s.NetProfit.Div(l.initial).Mul(hundred).InexactFloat64()
	}
	if s.TotalTrades > 0 {
		s.WinRate = float64(s.Winners) / float64(s.TotalTrades) * 100
		s.AvgTrade = s.NetProfit.Div(decimal.NewFromInt(int64(s.TotalTrades)))
	}
	if s.GrossLoss.IsPositive() {
		s.ProfitFactor = s.GrossProfit.Div(s.GrossLoss).InexactFloat64()
	}
	if l.maxDD.IsPositive() {
		s.MaxEquityDDPct = l.maxDDPct()
	}
	return s
}

// maxDDPct replays the curve to express the worst drawdown relative to the
// peak it started from.
func (l *Ledger) maxDDPct() float64 {
	peak := l.initial
	worst := 0.0
	for _, p := range l.curve {
		if p.Equity.GreaterThan(peak) {
			peak = p.Equity
		}
		if !peak.IsPositive() {
			continue
		}
		if pct := peak.Sub(p.Equity).Div(peak).InexactFloat64() * 100; pct > worst {
			worst = pct
		}
	}
	return worst
}
