package model

import "time"

// Tick is the normalized candle tuple handed to the core by feeds and replays.
// A tick may be a raw trade (open=high=low=close) or an already aggregated
// lower-timeframe bar.
type Tick struct {
	Symbol string    `json:"symbol"`
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Tick returns c as a tick of symbol, for replaying stored history.
func (c Candle) Tick(symbol string) Tick {
	return Tick{
		Symbol: symbol,
		Date:   c.Date,
		Open:   c.Open,
		High:   c.High,
		Low:    c.Low,
		Close:  c.Close,
		Volume: c.Volume,
	}
}
