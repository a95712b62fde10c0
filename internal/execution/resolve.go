package execution

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"chartscan/internal/model"
)

// Bars gives access to the candle window by index.
type Bars interface {
	CandleAt(i int) (model.Candle, error)
}

// Resolve checks the pending orders against bar index and fulfills the
// first one that fires. Protective orders of a trade wait until its entry
// order is filled. The returned slice is a copy with the new status.
func Resolve(index int, bars Bars, orders []model.Order) (model.Operation, []model.Order) {
	none := model.Operation{Type: model.OperationNone}
	if index < 1 {
		return none, orders
	}
	cur, err := bars.CandleAt(index)
	if err != nil {
		return none, orders
	}
	prev, err := bars.CandleAt(index - 1)
	if err != nil {
		return none, orders
	}

	waiting := make(map[string]bool)
	for _, o := range orders {
		if o.IsPending() && o.Type.IsEntry() {
			waiting[o.TradeID] = true
		}
	}

	for i, o := range orders {
		if !o.Type.IsEntry() && waiting[o.TradeID] {
			continue
		}
		if !OrderActivated(o, prev, cur) {
			continue
		}
		out := make([]model.Order, len(orders))
		copy(out, orders)
		o.Status = model.OrderFulfilled
		o.IndexFulfilled = index
		o.FulfilledAt = cur.Date
		o.UpdatedAt = cur.Date
		out[i] = o

		op := model.Operation{Type: model.MarketOutOrder, Order: &o}
		if o.Type.IsEntry() {
			op.Type = model.MarketInOrder
		}
		return op, out
	}
	return none, orders
}

// ResolveTradeIn opens a trade at price on bar index.
func ResolveTradeIn(index int, price, spread, quantity decimal.Decimal, entry model.TradeType, bars Bars) (model.TradeIn, error) {
	if !entry.IsEntry() {
		return model.TradeIn{}, fmt.Errorf("%w: %s is not an entry", ErrInvalidOrder, entry)
	}
	if !quantity.IsPositive() || !price.IsPositive() {
		return model.TradeIn{}, fmt.Errorf("%w: price %s quantity %s", ErrInvalidOrder, price, quantity)
	}
	c, err := bars.CandleAt(index)
	if err != nil {
		return model.TradeIn{}, fmt.Errorf("trade in: %w", err)
	}
	return model.TradeIn{
		ID:       uuid.NewString(),
		Index:    index,
		Date:     c.Date,
		Type:     entry,
		Price:    price,
		Quantity: quantity,
		Spread:   spread,
	}, nil
}

var hundred = decimal.NewFromInt(100)

// ResolveTradeOut closes in at price on bar index.
//
// Profit is (exit - entry) * quantity, sign flipped for shorts, minus the
// spread paid on entry. Percentages are relative to the leveraged
// investment entry*quantity/leverage. Run-up and drawdown are the largest
// favorable and adverse excursions between the entry and exit bars, both
// reported as non-negative amounts.
func ResolveTradeOut(index int, price decimal.Decimal, exit model.TradeType, in model.TradeIn, bars Bars, leverage decimal.Decimal) (model.TradeOut, error) {
	if exit.IsEntry() {
		return model.TradeOut{}, fmt.Errorf("%w: %s is not an exit", ErrInvalidOrder, exit)
	}
	if !leverage.IsPositive() {
		return model.TradeOut{}, fmt.Errorf("%w: leverage %s", ErrInvalidOrder, leverage)
	}
	out, err := bars.CandleAt(index)
	if err != nil {
		return model.TradeOut{}, fmt.Errorf("trade out: %w", err)
	}
	if out.Date.Before(in.Date) {
		return model.TradeOut{}, fmt.Errorf("%w: exit %v before entry %v", model.ErrIndexOutOfRange, out.Date, in.Date)
	}

	hi, lo := excursion(index, in, bars)
	sign := decimal.NewFromInt(1)
	runUp, drawDown := hi.Sub(in.Price), in.Price.Sub(lo)
	if !in.IsLong() {
		sign = sign.Neg()
		runUp, drawDown = in.Price.Sub(lo), hi.Sub(in.Price)
	}
	runUp = decimal.Max(runUp, decimal.Zero).Mul(in.Quantity)
	drawDown = decimal.Max(drawDown, decimal.Zero).Mul(in.Quantity)

	profit := price.Sub(in.Price).Mul(in.Quantity).Mul(sign).Sub(in.Spread.Mul(in.Quantity))
	investment := in.Price.Mul(in.Quantity).Div(leverage)

	return model.TradeOut{
		ID:          uuid.NewString(),
		TradeIn:     in,
		IndexOut:    index,
		DateOut:     out.Date,
		Type:        exit,
		PriceOut:    price,
		Profit:      profit,
		ProfitPer:   percentOf(profit, investment),
		RunUp:       runUp,
		RunUpPer:    percentOf(runUp, investment),
		DrawDown:    drawDown,
		DrawDownPer: percentOf(drawDown, investment),
	}, nil
}

// excursion returns the highest high and lowest low from the exit bar back
// to the entry bar. It walks by date so an entry index made stale by
// window eviction does not matter.
func excursion(index int, in model.TradeIn, bars Bars) (hi, lo decimal.Decimal) {
	hi, lo = in.Price, in.Price
	for i := index; i >= 0; i-- {
		c, err := bars.CandleAt(i)
		if err != nil || c.Date.Before(in.Date) {
			break
		}
		hi = decimal.Max(hi, decimal.NewFromFloat(c.High))
		lo = decimal.Min(lo, decimal.NewFromFloat(c.Low))
	}
	return hi, lo
}

func percentOf(v, base decimal.Decimal) float64 {
	if base.IsZero() {
		return 0
	}
	return v.Div(base).Mul(hundred).InexactFloat64()
}
