package execution

import (
	"fmt"

	"github.com/google/uuid"

	"chartscan/config"
	"chartscan/internal/indicator"
	"chartscan/internal/model"
)

// DefaultPipSize is used when a request asks for a pip stop without one.
const DefaultPipSize = 0.0001

// Market is the instrument state order preparation reads.
type Market interface {
	Symbol() string
	CurrentCandle() (model.Candle, error)
	Indicators() *indicator.Bank
}

// OrderRequest describes the entry a strategy asks for.
type OrderRequest struct {
	Type     model.OrderType // BuyOrderLong or SellOrderShort
	Target   float64         // entry price; 0 enters at the current close
	Quantity float64

	StopLoss      model.StopLossType
	StopLossValue float64 // price, pips or percent depending on StopLoss; unused for Atr
	PipSize       float64

	TakeProfit float64 // absolute price; 0 for none
}

// PrepareOrders builds the entry order of a new trade together with its
// stop loss and optional take profit. All orders share a trade id.
func PrepareOrders(index int, m Market, req OrderRequest, cfg config.Orders) ([]model.Order, error) {
	if !req.Type.IsEntry() {
		return nil, fmt.Errorf("%w: %s is not an entry", ErrInvalidOrder, req.Type)
	}
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity %v", ErrInvalidOrder, req.Quantity)
	}
	cur, err := m.CurrentCandle()
	if err != nil {
		return nil, fmt.Errorf("prepare orders: %w", err)
	}

	long := req.Type == model.BuyOrderLong
	entry := req.Target
	if entry <= 0 {
		entry = cur.Close
	}
	tradeID := uuid.NewString()
	newOrder := func(t model.OrderType, target float64, cond model.OrderCondition) model.Order {
		return model.Order{
			ID:           uuid.NewString(),
			TradeID:      tradeID,
			Symbol:       m.Symbol(),
			IndexCreated: index,
			Type:         t,
			Status:       model.OrderPending,
			Condition:    cond,
			OriginPrice:  cur.Close,
			TargetPrice:  target,
			Quantity:     req.Quantity,
			CreatedAt:    cur.Date,
			UpdatedAt:    cur.Date,
		}
	}

	orders := []model.Order{newOrder(req.Type, entry, conditionFor(entry, cur.Close))}

	if req.StopLoss != model.StopLossNone {
		sl, err := stopLossTarget(m, req, entry, long, cfg)
		if err != nil {
			return nil, err
		}
		if long {
			orders = append(orders, newOrder(model.StopLossLong, sl, model.ConditionLower))
		} else {
			orders = append(orders, newOrder(model.StopLossShort, sl, model.ConditionGreater))
		}
	}

	if req.TakeProfit > 0 {
		switch {
		case long && req.TakeProfit > entry:
			orders = append(orders, newOrder(model.TakeProfitLong, req.TakeProfit, model.ConditionGreater))
		case !long && req.TakeProfit < entry:
			orders = append(orders, newOrder(model.TakeProfitShort, req.TakeProfit, model.ConditionLower))
		default:
			return nil, fmt.Errorf("%w: take profit %v on the wrong side of %v", ErrInvalidOrder, req.TakeProfit, entry)
		}
	}
	return orders, nil
}

func conditionFor(target, price float64) model.OrderCondition {
	switch {
	case target > price:
		return model.ConditionGreater
	case target < price:
		return model.ConditionLower
	}
	return model.ConditionEqual
}

// stopLossTarget places the stop on the losing side of entry, widened by
// the spread when STOP_LOSS_SPREAD is set.
func stopLossTarget(m Market, req OrderRequest, entry float64, long bool, cfg config.Orders) (float64, error) {
	var dist float64
	switch req.StopLoss {
	case model.StopLossAtr:
		atr := m.Indicators().ATR()
		if atr == nil {
			return 0, fmt.Errorf("%w: atr stop loss with ATR disabled", ErrInvalidOrder)
		}
		s, err := atr.Last()
		if err != nil {
			return 0, fmt.Errorf("atr stop loss: %w", err)
		}
		if !s.Ready {
			return 0, fmt.Errorf("%w: ATR still warming up", ErrInvalidOrder)
		}
		dist = s.A * cfg.ATRStopLoss
	case model.StopLossPrice:
		if req.StopLossValue <= 0 {
			return 0, fmt.Errorf("%w: stop price %v", ErrInvalidOrder, req.StopLossValue)
		}
		dist = entry - req.StopLossValue
		if !long {
			dist = -dist
		}
	case model.StopLossPips:
		pip := req.PipSize
		if pip <= 0 {
			pip = DefaultPipSize
		}
		dist = req.StopLossValue * pip
	case model.StopLossPercentage:
		dist = entry * req.StopLossValue / 100
	default:
		return 0, fmt.Errorf("%w: stop loss type %s", ErrInvalidOrder, req.StopLoss)
	}
	if dist <= 0 {
		return 0, fmt.Errorf("%w: stop loss on the wrong side of entry", ErrInvalidOrder)
	}
	if cfg.StopLossSpread {
		dist += cfg.Spread.InexactFloat64()
	}
	if long {
		return entry - dist, nil
	}
	return entry + dist, nil
}
