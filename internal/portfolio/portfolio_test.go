package portfolio

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartscan/internal/model"
)

var day = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func entry(symbol string, long bool, price float64) model.TradeIn {
	typ := model.EntryLong
	if !long {
		typ = model.EntryShort
	}
	return model.TradeIn{ID: symbol + "-in", Symbol: symbol, Date: day, Type: typ,
		Price: decimal.NewFromFloat(price), Quantity: decimal.NewFromInt(2)}
}

func closed(profit float64, long bool, i int) model.TradeOut {
	return model.TradeOut{
		TradeIn:  entry("EURUSD", long, 100),
		DateOut:  day.Add(time.Duration(i) * time.Hour),
		Profit:   decimal.NewFromFloat(profit),
		RunUp:    decimal.NewFromFloat(profit + 5),
		DrawDown: decimal.NewFromInt(3),
	}
}

func TestPortfolio_OpenMarkClose(t *testing.T) {
	pf := New()
	require.True(t, pf.Open(entry("EURUSD", true, 100)))
	require.False(t, pf.Open(entry("EURUSD", false, 101)), "one position per symbol")
	require.True(t, pf.Open(entry("BTCUSD", false, 200)))

	pf.UpdatePrice("EURUSD", 103)
	pf.UpdatePrice("BTCUSD", 190)
	pf.UpdatePrice("XAUUSD", 1)

	assert.True(t, pf.TotalUnrealizedPnL().Equal(decimal.NewFromInt(26)), "got %s", pf.TotalUnrealizedPnL())
	positions := pf.GetPositions()
	require.Len(t, positions, 2)
	assert.Equal(t, "BTCUSD", positions[0].Entry.Symbol)

	pos, ok := pf.Close("EURUSD")
	require.True(t, ok)
	assert.True(t, pos.UnrealizedPnL().Equal(decimal.NewFromInt(6)))
	_, ok = pf.Close("EURUSD")
	assert.False(t, ok)
	assert.Equal(t, 1, pf.Len())
}

func TestLedger_Summary(t *testing.T) {
	l := NewLedger(decimal.NewFromInt(1000))
	l.RecordTrade(closed(100, true, 1))
	l.RecordTrade(closed(-50, false, 2))
	l.RecordTrade(closed(-50, true, 3))
	eq := l.RecordTrade(closed(30, true, 4))
	assert.True(t, eq.Equal(decimal.NewFromInt(1030)))

	s := l.GetSummary()
	assert.Equal(t, 4, s.TotalTrades)
	assert.Equal(t, 2, s.Winners)
	assert.Equal(t, 2, s.Losers)
	assert.Equal(t, 3, s.LongTrades)
	assert.Equal(t, 1, s.ShortTrades)
	assert.InDelta(t, 50, s.WinRate, 1e-9)
	assert.InDelta(t, 1.3, s.ProfitFactor, 1e-9)
	assert.InDelta(t, 3, s.NetProfitPct, 1e-9)
	assert.True(t, s.AvgTrade.Equal(decimal.NewFromFloat(7.5)), "avg %s", s.AvgTrade)
	assert.True(t, s.MaxEquityDD.Equal(decimal.NewFromInt(100)), "dd %s", s.MaxEquityDD)
	assert.InDelta(t, 100.0/1100*100, s.MaxEquityDDPct, 1e-9)
	assert.True(t, s.MaxRunUp.Equal(decimal.NewFromInt(105)))

	assert.Len(t, l.EquityCurve(), 4)
	assert.InDelta(t, 70.0/1100*100, l.DrawdownPct(), 1e-9)
}

func TestLedger_EmptySummary(t *testing.T) {
	s := NewLedger(decimal.NewFromInt(500)).GetSummary()
	assert.Zero(t, s.TotalTrades)
	assert.Zero(t, s.WinRate)
	assert.Zero(t, s.ProfitFactor)
	assert.True(t, s.FinalEquity.Equal(decimal.NewFromInt(500)))
}

func TestRiskManager_CanTrade(t *testing.T) {
	pf := New()
	l := NewLedger(decimal.NewFromInt(1000))
	rm := NewRiskManager(RiskLimits{MaxOpenPositions: 1, MaxDrawdownPct: 10}, pf, l)

	ok, _ := rm.CanTrade("EURUSD")
	assert.True(t, ok)

	pf.Open(entry("EURUSD", true, 100))
	ok, reason := rm.CanTrade("EURUSD")
	assert.False(t, ok)
	assert.Equal(t, "position already open", reason)
	ok, reason = rm.CanTrade("BTCUSD")
	assert.False(t, ok)
	assert.Equal(t, "max open positions reached", reason)

	pf.Close("EURUSD")
	l.RecordTrade(closed(-150, true, 1))
	ok, reason = rm.CanTrade("EURUSD")
	assert.False(t, ok)
	assert.Contains(t, reason, "drawdown")

	st := rm.GetStatus()
	assert.Equal(t, "850", st.Equity)
	assert.InDelta(t, 15, st.DrawdownPct, 1e-9)
}
