package model

import (
	"encoding/json"
	"time"
)

// OrderType distinguishes entries, exits and protective orders per side.
type OrderType int

const (
	BuyOrderLong OrderType = iota
	BuyOrderShort
	SellOrderLong
	SellOrderShort
	TakeProfitLong
	TakeProfitShort
	StopLossLong
	StopLossShort
)

var orderTypeNames = [...]string{
	"BuyOrderLong", "BuyOrderShort", "SellOrderLong", "SellOrderShort",
	"TakeProfitLong", "TakeProfitShort", "StopLossLong", "StopLossShort",
}

func (t OrderType) String() string {
	if t < 0 || int(t) >= len(orderTypeNames) {
		return "Unknown"
	}
	return orderTypeNames[t]
}

func (t OrderType) MarshalJSON() ([]byte, error) { return json.Marshal(t.String()) }

// IsEntry reports whether the order opens a position.
func (t OrderType) IsEntry() bool { return t == BuyOrderLong || t == SellOrderShort }

// IsStopLoss reports whether the order is a stop loss.
func (t OrderType) IsStopLoss() bool { return t == StopLossLong || t == StopLossShort }

// IsLong reports whether the order belongs to a long trade.
func (t OrderType) IsLong() bool {
	switch t {
	case BuyOrderLong, SellOrderLong, TakeProfitLong, StopLossLong:
		return true
	}
	return false
}

// OrderStatus is the order lifecycle state.
type OrderStatus int

const (
	OrderPending OrderStatus = iota
	OrderFulfilled
	OrderCanceled
)

func (s OrderStatus) String() string {
	switch s {
	case OrderFulfilled:
		return "Fulfilled"
	case OrderCanceled:
		return "Canceled"
	}
	return "Pending"
}

func (s OrderStatus) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

// OrderCondition is the price relation that fires an order that was created
// after price already moved through the target.
type OrderCondition int

const (
	ConditionGreater OrderCondition = iota
	ConditionEqual
	ConditionLower
)

func (c OrderCondition) String() string {
	switch c {
	case ConditionEqual:
		return "Equal"
	case ConditionLower:
		return "Lower"
	}
	return "Greater"
}

func (c OrderCondition) MarshalJSON() ([]byte, error) { return json.Marshal(c.String()) }

// StopLossType selects how a stop-loss target is derived.
type StopLossType int

const (
	StopLossAtr StopLossType = iota
	StopLossPrice
	StopLossPips
	StopLossPercentage
	StopLossNone
)

func (t StopLossType) String() string {
	switch t {
	case StopLossPrice:
		return "Price"
	case StopLossPips:
		return "Pips"
	case StopLossPercentage:
		return "Percentage"
	case StopLossNone:
		return "None"
	}
	return "Atr"
}

// Order is a pending or resolved order of a trade.
type Order struct {
	ID             string         `json:"id"`
	TradeID        string         `json:"trade_id"`
	Symbol         string         `json:"symbol"`
	IndexCreated   int            `json:"index_created"`
	IndexFulfilled int            `json:"index_fulfilled"`
	Type           OrderType      `json:"order_type"`
	Status         OrderStatus    `json:"status"`
	Condition      OrderCondition `json:"condition"`
	OriginPrice    float64        `json:"origin_price"`
	TargetPrice    float64        `json:"target_price"`
	Quantity       float64        `json:"quantity"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	FulfilledAt    time.Time      `json:"fulfilled_at"`
}

// IsPending reports whether the order still waits for activation.
func (o Order) IsPending() bool { return o.Status == OrderPending }
