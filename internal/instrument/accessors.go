package instrument

import (
	"fmt"
	"slices"
	"time"

	"chartscan/internal/indicator"
	"chartscan/internal/model"
	"chartscan/internal/pattern"
	"chartscan/internal/peak"
)

func (i *Instrument) Symbol() string             { return i.cfg.Symbol }
func (i *Instrument) Market() string             { return i.cfg.Market }
func (i *Instrument) TimeFrame() model.TimeFrame { return i.cfg.TimeFrame }

// MaxBars is the bound of the candle window.
func (i *Instrument) MaxBars() int { return i.maxBars }

// Len is the number of candles held, the open one included.
func (i *Instrument) Len() int { return i.candles.Len() }

// Data returns a copy of the candle window, oldest first.
func (i *Instrument) Data() []model.Candle { return i.candles.Slice() }

// CandleAt returns candle idx of the window.
func (i *Instrument) CandleAt(idx int) (model.Candle, error) { return i.candles.At(idx) }

// CurrentCandle returns the open (newest) candle.
func (i *Instrument) CurrentCandle() (model.Candle, error) {
	c, err := i.candles.Last()
	if err != nil {
		return model.Candle{}, fmt.Errorf("%s current candle: %w", i.cfg.Symbol, err)
	}
	return c, nil
}

// CurrentPrice is the close of the open candle, 0 before the first tick.
func (i *Instrument) CurrentPrice() float64 {
	c, err := i.candles.Last()
	if err != nil {
		return 0
	}
	return c.Close
}

func (i *Instrument) Indicators() *indicator.Bank { return i.bank }
func (i *Instrument) Peaks() *peak.Peaks          { return i.peaks }
func (i *Instrument) Patterns() *pattern.Set      { return &i.patterns }

func (i *Instrument) Divergences() []model.Divergence           { return i.divergences }
func (i *Instrument) HorizontalLevels() []model.HorizontalLevel { return i.levels }

// MinPrice and MaxPrice bound the closed bars as of the last close.
func (i *Instrument) MinPrice() float64 { return i.minPrice }
func (i *Instrument) MaxPrice() float64 { return i.maxPrice }

// Events returns and clears the events collected since the previous call.
func (i *Instrument) Events() Events {
	ev := i.events
	i.events = Events{}
	return ev
}

// Snapshot is an immutable summary of the instrument, safe to share.
type Snapshot struct {
	Symbol      string                      `json:"symbol"`
	Market      string                      `json:"market"`
	TimeFrame   model.TimeFrame             `json:"timeframe"`
	Date        time.Time                   `json:"date"`
	Bars        int                         `json:"bars"`
	Candle      model.Candle                `json:"candle"`
	MinPrice    float64                     `json:"min_price"`
	MaxPrice    float64                     `json:"max_price"`
	Indicators  map[string]indicator.Sample `json:"indicators"`
	LocalMaxima []model.Point               `json:"local_maxima"`
	LocalMinima []model.Point               `json:"local_minima"`
	Patterns    pattern.Set                 `json:"patterns"`
	Divergences []model.Divergence          `json:"divergences"`
	Levels      []model.HorizontalLevel     `json:"horizontal_levels"`
}

// Snapshot copies the current state.
func (i *Instrument) Snapshot() Snapshot {
	s := Snapshot{
		Symbol:      i.cfg.Symbol,
		Market:      i.cfg.Market,
		TimeFrame:   i.cfg.TimeFrame,
		Bars:        i.candles.Len(),
		MinPrice:    i.minPrice,
		MaxPrice:    i.maxPrice,
		Indicators:  i.bank.Snapshot(),
		LocalMaxima: slices.Clone(i.peaks.LocalMaxima),
		LocalMinima: slices.Clone(i.peaks.LocalMinima),
		Patterns:    i.patterns.Clone(),
		Divergences: slices.Clone(i.divergences),
		Levels:      slices.Clone(i.levels),
	}
	if c, err := i.candles.Last(); err == nil {
		s.Candle = c
		s.Date = c.Date
	}
	return s
}
