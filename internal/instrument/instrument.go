// Package instrument maintains the incremental analysis state of one
// symbol on one timeframe: candles, indicators, peaks and patterns, all
// kept aligned on a bounded window of bars.
//
// An Instrument has a single writer. Callers that share it across
// goroutines must hand out Snapshot values instead.
package instrument

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"chartscan/config"
	"chartscan/internal/candle"
	"chartscan/internal/indicator"
	"chartscan/internal/logger"
	"chartscan/internal/marketdata/tfbuilder"
	"chartscan/internal/model"
	"chartscan/internal/pattern"
	"chartscan/internal/peak"
	"chartscan/internal/ringbuf"
)

// Config identifies the instrument and carries the engine settings.
type Config struct {
	Symbol    string
	Market    string
	TimeFrame model.TimeFrame
	Engine    config.Engine
}

func (c Config) validate() error {
	var errs []error
	if c.Symbol == "" {
		errs = append(errs, errors.New("symbol is required"))
	}
	if !c.TimeFrame.Valid() {
		errs = append(errs, fmt.Errorf("unknown timeframe %d", c.TimeFrame))
	}
	if c.Engine.NumBars <= 0 {
		errs = append(errs, fmt.Errorf("num bars %d", c.Engine.NumBars))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", model.ErrWrongInstrumentConf, err)
	}
	return nil
}

// Events collects what happened since the last call to Instrument.Events.
type Events struct {
	Closed      []model.Candle
	Patterns    []model.Pattern // newly detected
	Breakouts   []model.Pattern // breakout status changed
	Divergences []model.Divergence
}

// Instrument is the per-symbol aggregate.
type Instrument struct {
	cfg     Config
	opts    candle.Options
	maxBars int
	log     zerolog.Logger

	resampler *tfbuilder.Resampler
	candles   *ringbuf.Window[model.Candle]
	bank      *indicator.Bank
	peaks     *peak.Peaks
	detector  *pattern.Detector
	patterns  pattern.Set

	divergences []model.Divergence
	levels      []model.HorizontalLevel
	minPrice    float64
	maxPrice    float64

	events Events
}

// New validates cfg and returns an empty instrument.
func New(cfg Config) (*Instrument, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	bank, err := indicator.NewBank(cfg.Engine.Indicators)
	if err != nil {
		return nil, fmt.Errorf("instrument %s: %w", cfg.Symbol, err)
	}
	maxBars := cfg.Engine.MaxBars(cfg.TimeFrame)
	return &Instrument{
		cfg:       cfg,
		opts:      candle.Options{Classify: cfg.Engine.CandleTypes, Logarithmic: cfg.Engine.Logarithmic},
		maxBars:   maxBars,
		log:       logger.For("instrument").With().Str("symbol", cfg.Symbol).Str("tf", cfg.TimeFrame.String()).Logger(),
		resampler: tfbuilder.New(cfg.TimeFrame),
		candles:   ringbuf.New[model.Candle](maxBars),
		bank:      bank,
		peaks:     peak.New(cfg.Engine.Peaks),
		detector:  pattern.New(cfg.Engine.Patterns),
	}, nil
}

// SetData replaces the state with history. Every bar but the last one ends
// up closed; peaks and patterns are computed once at the end.
func (i *Instrument) SetData(history []model.Tick) error {
	bank, err := indicator.NewBank(i.cfg.Engine.Indicators)
	if err != nil {
		return err
	}
	i.bank = bank
	i.resampler.Reset()
	i.candles.Reset()
	i.peaks.Reset()
	i.patterns = pattern.Set{}
	i.divergences, i.levels = nil, nil
	i.events = Events{}

	var skipped int
	for _, t := range history {
		if _, err := i.step(t, false); err != nil {
			if errors.Is(err, model.ErrInvalidCandle) || errors.Is(err, model.ErrStaleTick) {
				skipped++
				continue
			}
			return err
		}
	}
	if skipped > 0 {
		i.log.Warn().Int("skipped", skipped).Int("bars", i.candles.Len()).Msg("history contained bad bars")
	}
	i.analyze()
	i.events = Events{}
	return nil
}

// Next merges one tick into the instrument and returns the open candle.
// A malformed tick fails with model.ErrInvalidCandle and a tick older than
// the open bar with model.ErrStaleTick; neither changes the state.
func (i *Instrument) Next(t model.Tick) (model.Candle, error) {
	return i.step(t, true)
}

func (i *Instrument) step(t model.Tick, analyze bool) (model.Candle, error) {
	if _, err := candle.Build(candle.FromTick(t, false), nil, candle.Options{}); err != nil {
		return model.Candle{}, err
	}
	res, err := i.resampler.Push(t)
	if err != nil {
		return model.Candle{}, err
	}

	if !res.NewBucket {
		c, err := i.rebuildLast(res.Candle)
		if err != nil {
			return model.Candle{}, err
		}
		if err := i.bank.Update(c); err != nil {
			i.log.Warn().Err(err).Msg("indicator update")
		}
		if analyze {
			i.peaks.Update(c, max(i.maxPrice, c.High), minPositive(i.minPrice, c.Low), i.cfg.Engine.Peaks.Smoothing)
			i.refreshPatterns()
		}
		return c, nil
	}

	if res.Closed != nil && i.candles.Len() > 0 {
		closed, err := i.rebuildLast(*res.Closed)
		if err != nil {
			return model.Candle{}, err
		}
		if err := i.bank.Update(closed); err != nil {
			i.log.Warn().Err(err).Msg("indicator update")
		}
		i.peaks.Next(closed)
		i.events.Closed = append(i.events.Closed, closed)
		if analyze {
			i.analyze()
		}
	}

	c, err := candle.Build(candle.FromCandle(res.Candle), i.candles.Tail(candle.History), i.opts)
	if err != nil {
		return model.Candle{}, err
	}
	if old, evicted := i.candles.Push(c); evicted {
		i.evict(old)
	}
	if err := i.bank.Next(c); err != nil {
		i.log.Warn().Err(err).Msg("indicator next")
	}
	if i.bank.Len() > i.candles.Len() {
		if err := i.bank.EvictOldest(); err != nil {
			i.log.Warn().Err(err).Msg("indicator evict")
		}
	}
	if analyze {
		i.refreshPatterns()
	}
	return c, nil
}

// rebuildLast re-classifies the open candle after the resampler changed it
// and stores it in place.
func (i *Instrument) rebuildLast(raw model.Candle) (model.Candle, error) {
	n := i.candles.Len()
	prev := i.candles.Tail(candle.History + 1)
	if len(prev) > 0 {
		prev = prev[:len(prev)-1]
	}
	c, err := candle.Build(candle.FromCandle(raw), prev, i.opts)
	if err != nil {
		return model.Candle{}, err
	}
	if n == 0 {
		return c, fmt.Errorf("%w: no open candle", model.ErrInvariant)
	}
	return c, i.candles.SetLast(c)
}

// evict drops the state of bar 0 after the candle window let it go.
func (i *Instrument) evict(old model.Candle) {
	if old.IsClosed && i.peaks.Len() > 0 {
		if err := i.peaks.EvictOldest(); err != nil {
			i.log.Warn().Err(err).Msg("peaks evict")
		}
	}
	i.patterns.EvictOldest()
	i.divergences = shiftDivergences(i.divergences)
	i.levels = shiftLevels(i.levels)
}

func minPositive(a, b float64) float64 {
	if a <= 0 {
		return b
	}
	return min(a, b)
}
