package execution

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartscan/internal/model"
)

func order(t model.OrderType, target float64, cond model.OrderCondition) model.Order {
	return model.Order{ID: t.String(), TradeID: "trade-1", Type: t, Status: model.OrderPending, Condition: cond, TargetPrice: target}
}

func TestOrderActivated(t *testing.T) {
	cases := []struct {
		name      string
		order     model.Order
		prev, cur model.Candle
		want      bool
	}{
		{
			name:  "cross over",
			order: order(model.BuyOrderLong, 100, model.ConditionGreater),
			prev:  model.Candle{High: 95, Low: 90, Close: 94},
			cur:   model.Candle{High: 105, Low: 96, Close: 104},
			want:  true,
		},
		{
			name:  "catch up below target",
			order: order(model.SellOrderShort, 100, model.ConditionLower),
			prev:  model.Candle{High: 105, Low: 97, Close: 99},
			cur:   model.Candle{High: 99, Low: 96, Close: 98},
			want:  true,
		},
		{
			name:  "cross under",
			order: order(model.StopLossLong, 95, model.ConditionLower),
			prev:  model.Candle{High: 101, Low: 97, Close: 99},
			cur:   model.Candle{High: 99, Low: 94, Close: 96},
			want:  true,
		},
		{
			name:  "target not reached",
			order: order(model.BuyOrderLong, 100, model.ConditionGreater),
			prev:  model.Candle{High: 95, Low: 90, Close: 94},
			cur:   model.Candle{High: 99, Low: 95, Close: 98},
			want:  false,
		},
		{
			name:  "equal needs the bar to span the target",
			order: order(model.BuyOrderLong, 100, model.ConditionEqual),
			prev:  model.Candle{High: 100.5, Low: 99.5, Close: 100},
			cur:   model.Candle{High: 100.4, Low: 99.8, Close: 100.1},
			want:  true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, OrderActivated(tc.order, tc.prev, tc.cur))
		})
	}

	filled := order(model.BuyOrderLong, 100, model.ConditionGreater)
	filled.Status = model.OrderFulfilled
	assert.False(t, OrderActivated(filled, model.Candle{High: 95}, model.Candle{High: 105, Close: 104}))
}

func TestAddPending_EnforcesCaps(t *testing.T) {
	limits := Limits{MaxBuy: 2, MaxSell: 1, MaxStopLoss: 1}

	var queue []model.Order
	var err error
	queue, err = AddPending(queue, order(model.BuyOrderLong, 100, model.ConditionGreater), limits)
	require.NoError(t, err)
	queue, err = AddPending(queue, order(model.BuyOrderLong, 101, model.ConditionGreater), limits)
	require.NoError(t, err)

	before := append([]model.Order(nil), queue...)
	got, err := AddPending(queue, order(model.BuyOrderLong, 102, model.ConditionGreater), limits)
	assert.ErrorIs(t, err, ErrOrderCapReached)
	assert.Equal(t, before, got)
	assert.Len(t, queue, 2)

	queue, err = AddPending(queue, order(model.StopLossLong, 95, model.ConditionLower), limits)
	require.NoError(t, err, "stop losses have their own cap")
	_, err = AddPending(queue, order(model.StopLossShort, 105, model.ConditionGreater), limits)
	assert.ErrorIs(t, err, ErrOrderCapReached)

	queue[0].Status = model.OrderCanceled
	queue, err = AddPending(queue, order(model.BuyOrderShort, 99, model.ConditionLower), limits)
	require.NoError(t, err, "canceled orders free their slot")
	assert.Len(t, queue, 4)

	_, err = AddPending(nil, order(model.TakeProfitLong, 110, model.ConditionGreater), Limits{})
	assert.NoError(t, err, "zero caps do not limit")
}

func TestCancelTradeOrders(t *testing.T) {
	at := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	orders := []model.Order{
		order(model.StopLossLong, 95, model.ConditionLower),
		order(model.TakeProfitLong, 110, model.ConditionGreater),
		{ID: "other", TradeID: "trade-2", Status: model.OrderPending},
	}
	orders[0].Status = model.OrderFulfilled

	got := CancelTradeOrders("trade-1", orders, at)
	assert.Equal(t, model.OrderFulfilled, got[0].Status)
	assert.Equal(t, model.OrderCanceled, got[1].Status)
	assert.Equal(t, at, got[1].UpdatedAt)
	assert.Equal(t, model.OrderPending, got[2].Status)
	assert.Equal(t, model.OrderPending, orders[1].Status, "input is not modified")

	assert.Len(t, Pending(got), 1)
}
