package model

import (
	"encoding/json"
	"math"
	"time"
)

// CandleType tags the formation a candle completes together with its predecessors.
type CandleType int

const (
	CandleDefault CandleType = iota
	CandleDoji
	CandleKarakasa
	CandleBearishKarakasa
	CandleMarubozu
	CandleBearishMarubozu
	CandleHarami
	CandleBearishHarami
	CandleEngulfing
	CandleBearishEngulfing
	CandleHangingMan
	CandleBullishStar
	CandleBearishStar
	CandleMorningStar
	CandleEveningStar
	CandleBullishGap
	CandleBearishGap
	CandleBullishCrows
	CandleBearishCrows
	CandleThreeInRow
	CandleThreeOutRow
	CandleReversal
)

var candleTypeNames = [...]string{
	"Default", "Doji", "Karakasa", "BearishKarakasa", "Marubozu", "BearishMarubozu",
	"Harami", "BearishHarami", "Engulfing", "BearishEngulfing", "HangingMan",
	"BullishStar", "BearishStar", "MorningStar", "EveningStar", "BullishGap",
	"BearishGap", "BullishCrows", "BearishCrows", "ThreeInRow", "ThreeOutRow", "Reversal",
}

func (t CandleType) String() string {
	if t < 0 || int(t) >= len(candleTypeNames) {
		return "Unknown"
	}
	return candleTypeNames[t]
}

// MarshalJSON encodes the type by name.
func (t CandleType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// Candle is one OHLCV bar of an instrument's active timeframe.
// Open candles are mutated in place until their bucket closes.
type Candle struct {
	Type     CandleType `json:"type"`
	Date     time.Time  `json:"date"` // bucket start (UTC)
	Open     float64    `json:"open"`
	High     float64    `json:"high"`
	Low      float64    `json:"low"`
	Close    float64    `json:"close"`
	Volume   float64    `json:"volume"`
	IsClosed bool       `json:"is_closed"`
}

// Valid reports whether the OHLC invariant holds.
func (c Candle) Valid() bool {
	return c.High >= math.Max(c.Open, c.Close) && c.Low <= math.Min(c.Open, c.Close)
}

// Body is the absolute open/close distance.
func (c Candle) Body() float64 { return math.Abs(c.Close - c.Open) }

// Range is high minus low.
func (c Candle) Range() float64 { return c.High - c.Low }

// IsBullish reports close > open.
func (c Candle) IsBullish() bool { return c.Close > c.Open }

// IsBearish reports close < open.
func (c Candle) IsBearish() bool { return c.Close < c.Open }
