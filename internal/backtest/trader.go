// Package backtest simulates order fills over candle streams. The same
// Trader drives historical replays and live paper trading.
package backtest

import (
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"chartscan/config"
	"chartscan/internal/execution"
	"chartscan/internal/logger"
	"chartscan/internal/model"
	"chartscan/internal/portfolio"
	"chartscan/internal/strategy"
)

// Market is the instrument surface a Trader drives.
// *instrument.Instrument satisfies it.
type Market interface {
	strategy.Market
	CurrentCandle() (model.Candle, error)
}

// Accounts are the books shared by every Trader of a session.
type Accounts struct {
	Portfolio *portfolio.Portfolio
	Ledger    *portfolio.Ledger
	Risk      *portfolio.RiskManager
}

// NewAccounts opens empty books at the configured initial equity.
func NewAccounts(cfg config.Backtest, limits portfolio.RiskLimits) Accounts {
	pf := portfolio.New()
	ledger := portfolio.NewLedger(cfg.InitialEquity)
	return Accounts{Portfolio: pf, Ledger: ledger, Risk: portfolio.NewRiskManager(limits, pf, ledger)}
}

// Report is what happened on one closed candle.
type Report struct {
	Signals   []strategy.Signal
	Orders    []model.Order // created, fulfilled or canceled
	TradeIns  []model.TradeIn
	TradeOuts []model.TradeOut
}

func (r Report) Empty() bool {
	return len(r.Signals) == 0 && len(r.Orders) == 0 && len(r.TradeIns) == 0 && len(r.TradeOuts) == 0
}

// Trader turns the signals of one instrument into simulated orders and
// fills. It keeps at most one open trade. Calls must come from the
// goroutine that owns the instrument.
type Trader struct {
	m          Market
	strategies *strategy.Engine
	acc        Accounts

	orderCfg config.Orders
	limits   execution.Limits
	size     decimal.Decimal
	leverage decimal.Decimal
	stopLoss model.StopLossType

	orders    []model.Order
	open      *model.TradeIn
	openTrade string

	log zerolog.Logger
}

// NewTrader creates a Trader for m. Stops are ATR based when the ATR
// indicator is enabled.
func NewTrader(m Market, strategies *strategy.Engine, cfg config.Config, acc Accounts) *Trader {
	sl := model.StopLossNone
	if cfg.Engine.Indicators.ATR && cfg.Orders.ATRStopLoss > 0 {
		sl = model.StopLossAtr
	}
	return &Trader{
		m:          m,
		strategies: strategies,
		acc:        acc,
		orderCfg:   cfg.Orders,
		limits:     execution.LimitsFrom(cfg.Orders),
		size:       cfg.Backtest.OrderSize,
		leverage:   cfg.Backtest.Leverage,
		stopLoss:   sl,
		log:        logger.For("trader").With().Str("symbol", m.Symbol()).Logger(),
	}
}

// Orders returns the pending orders.
func (t *Trader) Orders() []model.Order { return execution.Pending(t.orders) }

// OpenTrade returns the entry of the open trade, if any.
func (t *Trader) OpenTrade() (model.TradeIn, bool) {
	if t.open == nil {
		return model.TradeIn{}, false
	}
	return *t.open, true
}

// OnClose resolves the pending orders against the closed candle index,
// then runs the strategies on it.
func (t *Trader) OnClose(index int) Report {
	var rep Report
	t.resolve(index, &rep)

	if c, err := t.m.CandleAt(index); err == nil {
		t.acc.Portfolio.UpdatePrice(t.m.Symbol(), c.Close)
	}
	for _, sig := range t.strategies.Evaluate(t.m, index) {
		rep.Signals = append(rep.Signals, sig)
		t.act(index, sig, &rep)
	}
	t.orders = execution.Pending(t.orders)
	return rep
}

// Flatten closes the open trade at the close of index and cancels every
// pending order.
func (t *Trader) Flatten(index int) Report {
	var rep Report
	t.exitMarket(index, &rep)
	c, _ := t.m.CandleAt(index)
	for _, o := range t.orders {
		if o.IsPending() {
			t.cancelTrade(o.TradeID, c, &rep)
		}
	}
	t.orders = nil
	return rep
}

func (t *Trader) resolve(index int, rep *Report) {
	for n, i := len(t.orders)+1, 0; i < n; i++ {
		op, orders := execution.Resolve(index, t.m, t.orders)
		if op.Type == model.OperationNone {
			return
		}
		t.orders = orders
		o := *op.Order
		rep.Orders = append(rep.Orders, o)
		if op.Type == model.MarketInOrder {
			t.fillEntry(index, o, rep)
		} else {
			t.fillExit(index, o, rep)
		}
	}
}

func (t *Trader) fillEntry(index int, o model.Order, rep *Report) {
	c, _ := t.m.CandleAt(index)
	if t.open != nil {
		t.log.Warn().Str("trade", o.TradeID).Msg("entry filled while a trade is open, canceling it")
		t.cancelTrade(o.TradeID, c, rep)
		return
	}
	entry := model.EntryLong
	if o.Type == model.SellOrderShort {
		entry = model.EntryShort
	}
	in, err := execution.ResolveTradeIn(index, decimal.NewFromFloat(o.TargetPrice), t.orderCfg.Spread,
		decimal.NewFromFloat(o.Quantity), entry, t.m)
	if err != nil {
		t.log.Error().Err(err).Str("order", o.ID).Msg("trade in")
		t.cancelTrade(o.TradeID, c, rep)
		return
	}
	in.Symbol = t.m.Symbol()
	in.OrderID = o.ID
	t.acc.Portfolio.Open(in)
	t.open, t.openTrade = &in, o.TradeID
	rep.TradeIns = append(rep.TradeIns, in)
	t.log.Info().Str("type", in.Type.String()).Str("price", in.Price.String()).Int("index", index).Msg("trade opened")
}

func (t *Trader) fillExit(index int, o model.Order, rep *Report) {
	if t.open == nil || o.TradeID != t.openTrade {
		c, _ := t.m.CandleAt(index)
		t.cancelTrade(o.TradeID, c, rep)
		return
	}
	var exit model.TradeType
	switch {
	case o.Type.IsStopLoss():
		exit = model.StopLoss
	case o.Type == model.TakeProfitLong || o.Type == model.TakeProfitShort:
		exit = model.TakeProfit
	case t.open.IsLong():
		exit = model.ExitLong
	default:
		exit = model.ExitShort
	}
	t.closeAt(index, decimal.NewFromFloat(o.TargetPrice), exit, rep)
}

func (t *Trader) act(index int, sig strategy.Signal, rep *Report) {
	switch sig.Action {
	case strategy.ActionExit:
		t.exitMarket(index, rep)
	case strategy.ActionBuy, strategy.ActionSell:
		long := sig.Action == strategy.ActionBuy
		if t.open != nil {
			if t.open.IsLong() == long {
				return
			}
			t.exitMarket(index, rep)
		}
		t.enter(sig, long, rep)
	}
}

func (t *Trader) enter(sig strategy.Signal, long bool, rep *Report) {
	if ok, reason := t.acc.Risk.CanTrade(t.m.Symbol()); !ok {
		t.log.Debug().Str("strategy", sig.StrategyName).Str("reason", reason).Msg("entry blocked")
		return
	}
	cur, err := t.m.CurrentCandle()
	if err != nil {
		return
	}
	// A new signal replaces entries that never filled.
	for _, o := range t.orders {
		if o.IsPending() && o.Type.IsEntry() {
			t.cancelTrade(o.TradeID, cur, rep)
		}
	}

	req := execution.OrderRequest{
		Type:       model.BuyOrderLong,
		Target:     sig.Price,
		Quantity:   t.size.InexactFloat64(),
		StopLoss:   t.stopLoss,
		TakeProfit: sig.TakeProfit,
	}
	if !long {
		req.Type = model.SellOrderShort
	}
	orders, err := execution.PrepareOrders(t.m.Len()-1, t.m, req, t.orderCfg)
	if err != nil {
		t.log.Warn().Err(err).Str("strategy", sig.StrategyName).Msg("entry skipped")
		return
	}
	queue := t.orders
	for _, o := range orders {
		if queue, err = execution.AddPending(queue, o, t.limits); err != nil {
			t.log.Warn().Err(err).Str("strategy", sig.StrategyName).Msg("entry skipped")
			return
		}
	}
	t.orders = queue
	rep.Orders = append(rep.Orders, orders...)
}

// exitMarket closes the open trade at the close of index.
func (t *Trader) exitMarket(index int, rep *Report) {
	if t.open == nil {
		return
	}
	c, err := t.m.CandleAt(index)
	if err != nil {
		return
	}
	exit := model.ExitLong
	if !t.open.IsLong() {
		exit = model.ExitShort
	}
	t.closeAt(index, decimal.NewFromFloat(c.Close), exit, rep)
}

func (t *Trader) closeAt(index int, price decimal.Decimal, exit model.TradeType, rep *Report) {
	out, err := execution.ResolveTradeOut(index, price, exit, *t.open, t.m, t.leverage)
	if err != nil {
		t.log.Error().Err(err).Str("trade", t.openTrade).Msg("trade out")
		return
	}
	equity := t.acc.Ledger.RecordTrade(out)
	t.acc.Portfolio.Close(t.m.Symbol())
	c, _ := t.m.CandleAt(index)
	t.cancelTrade(t.openTrade, c, rep)
	t.open, t.openTrade = nil, ""
	rep.TradeOuts = append(rep.TradeOuts, out)
	t.log.Info().Str("exit", exit.String()).Str("profit", out.Profit.String()).Str("equity", equity.String()).Msg("trade closed")
}

// cancelTrade cancels the pending orders of tradeID and reports them.
func (t *Trader) cancelTrade(tradeID string, at model.Candle, rep *Report) {
	before := t.orders
	t.orders = execution.CancelTradeOrders(tradeID, t.orders, at.Date)
	for i, o := range t.orders {
		if before[i].IsPending() && o.Status == model.OrderCanceled {
			rep.Orders = append(rep.Orders, o)
		}
	}
}
