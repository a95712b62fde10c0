// Package execution decides when orders fire and turns fills into trade
// records. It is the order/trade resolver shared by the backtester and the
// live engine; it owns no broker connection.
package execution

import (
	"errors"
	"fmt"
	"time"

	"chartscan/config"
	"chartscan/internal/model"
)

// ErrOrderCapReached is returned when admitting an order would exceed the
// pending cap of its class.
var ErrOrderCapReached = errors.New("pending order cap reached")

// ErrInvalidOrder is returned for requests that cannot produce orders.
var ErrInvalidOrder = errors.New("invalid order request")

// Limits caps the concurrent pending orders per class. A cap <= 0 means
// no limit.
type Limits struct {
	MaxBuy      int
	MaxSell     int
	MaxStopLoss int
}

// LimitsFrom reads the caps from the order configuration.
func LimitsFrom(cfg config.Orders) Limits {
	return Limits{MaxBuy: cfg.MaxBuyOrders, MaxSell: cfg.MaxSellOrders, MaxStopLoss: cfg.MaxStopLosses}
}

type orderClass int

const (
	classBuy orderClass = iota
	classSell
	classStopLoss
)

func (c orderClass) String() string {
	switch c {
	case classSell:
		return "sell"
	case classStopLoss:
		return "stop-loss"
	}
	return "buy"
}

// classOf groups order types by the side of the market they hit. Take
// profits count with the side that closes the position.
func classOf(t model.OrderType) orderClass {
	switch t {
	case model.StopLossLong, model.StopLossShort:
		return classStopLoss
	case model.SellOrderLong, model.SellOrderShort, model.TakeProfitLong:
		return classSell
	}
	return classBuy
}

func (l Limits) capFor(c orderClass) int {
	switch c {
	case classSell:
		return l.MaxSell
	case classStopLoss:
		return l.MaxStopLoss
	}
	return l.MaxBuy
}

// AddPending admits o to the pending queue. When its class is full the
// queue is returned unchanged with ErrOrderCapReached; existing orders are
// never dropped to make room.
func AddPending(pending []model.Order, o model.Order, limits Limits) ([]model.Order, error) {
	class := classOf(o.Type)
	if limit := limits.capFor(class); limit > 0 {
		n := 0
		for _, p := range pending {
			if p.IsPending() && classOf(p.Type) == class {
				n++
			}
		}
		if n >= limit {
			return pending, fmt.Errorf("%w: %d %s orders pending", ErrOrderCapReached, n, class)
		}
	}
	return append(pending[:len(pending):len(pending)], o), nil
}

// OrderActivated reports whether a pending order fires on cur: the high
// crossed over the target from below, the low crossed under it from above,
// or the close already satisfies the order condition.
func OrderActivated(o model.Order, prev, cur model.Candle) bool {
	if !o.IsPending() {
		return false
	}
	t := o.TargetPrice
	if prev.High < t && cur.High >= t {
		return true
	}
	if prev.Low > t && cur.Low <= t {
		return true
	}
	switch o.Condition {
	case model.ConditionGreater:
		return cur.Close >= t
	case model.ConditionLower:
		return cur.Close <= t
	case model.ConditionEqual:
		return cur.Low <= t && cur.High >= t
	}
	return false
}

// CancelTradeOrders cancels every pending order of tradeID, e.g. the
// remaining protective order once the other one closed the trade.
func CancelTradeOrders(tradeID string, orders []model.Order, at time.Time) []model.Order {
	out := make([]model.Order, len(orders))
	for i, o := range orders {
		if o.TradeID == tradeID && o.IsPending() {
			o.Status = model.OrderCanceled
			o.UpdatedAt = at
		}
		out[i] = o
	}
	return out
}

// Pending returns the orders still waiting for activation.
func Pending(orders []model.Order) []model.Order {
	var out []model.Order
	for _, o := range orders {
		if o.IsPending() {
			out = append(out, o)
		}
	}
	return out
}
