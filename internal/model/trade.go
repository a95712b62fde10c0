package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// TradeType tags entry and exit fills.
type TradeType int

const (
	EntryLong TradeType = iota
	EntryShort
	ExitLong
	ExitShort
	StopLoss
	TakeProfit
)

var tradeTypeNames = [...]string{"EntryLong", "EntryShort", "ExitLong", "ExitShort", "StopLoss", "TakeProfit"}

func (t TradeType) String() string {
	if t < 0 || int(t) >= len(tradeTypeNames) {
		return "Unknown"
	}
	return tradeTypeNames[t]
}

func (t TradeType) MarshalJSON() ([]byte, error) { return json.Marshal(t.String()) }

// IsEntry reports whether t opens a position.
func (t TradeType) IsEntry() bool { return t == EntryLong || t == EntryShort }

// TradeIn is an entry fill.
type TradeIn struct {
	ID       string          `json:"id"`
	Symbol   string          `json:"symbol"`
	Index    int             `json:"index"`
	Date     time.Time       `json:"date"`
	Type     TradeType       `json:"trade_type"`
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Spread   decimal.Decimal `json:"spread"`
	OrderID  string          `json:"order_id,omitempty"`
}

// IsLong reports whether the entry opened a long position.
func (t TradeIn) IsLong() bool { return t.Type == EntryLong }

// TradeOut is an exit fill with the realized result of the round trip.
type TradeOut struct {
	ID          string          `json:"id"`
	TradeIn     TradeIn         `json:"trade_in"`
	IndexOut    int             `json:"index_out"`
	DateOut     time.Time       `json:"date_out"`
	Type        TradeType       `json:"trade_type"`
	PriceOut    decimal.Decimal `json:"price_out"`
	Profit      decimal.Decimal `json:"profit"`
	ProfitPer   float64         `json:"profit_per"`
	RunUp       decimal.Decimal `json:"run_up"`
	RunUpPer    float64         `json:"run_up_per"`
	DrawDown    decimal.Decimal `json:"draw_down"`
	DrawDownPer float64         `json:"draw_down_per"`
}

// OperationType is the decision the resolver emits for a bar.
type OperationType int

const (
	OperationNone OperationType = iota
	MarketIn
	MarketOut
	MarketInOrder
	MarketOutOrder
	OrderInOut
)

var operationTypeNames = [...]string{"None", "MarketIn", "MarketOut", "MarketInOrder", "MarketOutOrder", "OrderInOut"}

func (o OperationType) String() string {
	if o < 0 || int(o) >= len(operationTypeNames) {
		return "Unknown"
	}
	return operationTypeNames[o]
}

func (o OperationType) MarshalJSON() ([]byte, error) { return json.Marshal(o.String()) }

// Operation is the resolver output. Order is set for order-driven operations.
type Operation struct {
	Type  OperationType `json:"operation_type"`
	Order *Order        `json:"order,omitempty"`
}
