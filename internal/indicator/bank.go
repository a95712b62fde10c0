package indicator

import (
	"errors"
	"fmt"

	"chartscan/config"
	"chartscan/internal/model"
)

// Kind identifies a fixed indicator slot of the bank.
type Kind int

const (
	KindEMAA Kind = iota
	KindEMAB
	KindEMAC
	KindMACD
	KindRSI
	KindATR
	KindBB
	KindStoch
	KindStdDev
	KindADX
	numKinds
)

var kindNames = [numKinds]string{"EMA_A", "EMA_B", "EMA_C", "MACD", "RSI", "ATR", "BB", "STOCH", "STDDEV", "ADX"}

func (k Kind) String() string {
	if k < 0 || k >= numKinds {
		return "Unknown"
	}
	return kindNames[k]
}

// Kinds lists every slot in bank order.
func Kinds() []Kind {
	out := make([]Kind, numKinds)
	for i := range out {
		out[i] = Kind(i)
	}
	return out
}

// Bank holds the instrument's indicators in fixed typed slots selected from
// configuration at construction. A paused slot keeps its series aligned by
// duplicating its last sample on every new bar.
type Bank struct {
	cfg    config.Indicators
	slots  [numKinds]Indicator
	paused [numKinds]bool
	n      int // bars seen by the bank, after eviction
}

// NewBank builds the indicators enabled in cfg.
func NewBank(cfg config.Indicators) (*Bank, error) {
	b := &Bank{cfg: cfg}
	for _, k := range Kinds() {
		if !enabledIn(cfg, k) {
			continue
		}
		ind, err := build(cfg, k)
		if err != nil {
			return nil, err
		}
		b.slots[k] = ind
	}
	return b, nil
}

func enabledIn(cfg config.Indicators, k Kind) bool {
	switch k {
	case KindEMAA, KindEMAB, KindEMAC:
		return cfg.EMA
	case KindMACD:
		return cfg.MACD
	case KindRSI:
		return cfg.RSI
	case KindATR:
		return cfg.ATR
	case KindBB:
		return cfg.BB
	case KindStoch:
		return cfg.Stoch
	case KindStdDev:
		return cfg.StdDev
	case KindADX:
		return cfg.ADX
	}
	return false
}

func build(cfg config.Indicators, k Kind) (Indicator, error) {
	var periods []int
	var ctor func() Indicator
	switch k {
	case KindEMAA:
		periods, ctor = []int{cfg.EMAA}, func() Indicator { return NewEMA(cfg.EMAA) }
	case KindEMAB:
		periods, ctor = []int{cfg.EMAB}, func() Indicator { return NewEMA(cfg.EMAB) }
	case KindEMAC:
		periods, ctor = []int{cfg.EMAC}, func() Indicator { return NewEMA(cfg.EMAC) }
	case KindMACD:
		periods = []int{cfg.MACDA, cfg.MACDB, cfg.MACDC}
		ctor = func() Indicator { return NewMACD(cfg.MACDA, cfg.MACDB, cfg.MACDC) }
	case KindRSI:
		periods, ctor = []int{cfg.RSIPeriod}, func() Indicator { return NewRSI(cfg.RSIPeriod) }
	case KindATR:
		periods, ctor = []int{cfg.ATRPeriod}, func() Indicator { return NewATR(cfg.ATRPeriod) }
	case KindBB:
		periods, ctor = []int{cfg.BBPeriod}, func() Indicator { return NewBollinger(cfg.BBPeriod, cfg.BBDeviation) }
	case KindStoch:
		periods = []int{cfg.StochPeriod, cfg.StochSmooth}
		ctor = func() Indicator { return NewStochastic(cfg.StochPeriod, cfg.StochSmooth) }
	case KindStdDev:
		periods, ctor = []int{cfg.StdDevPeriod}, func() Indicator { return NewStdDev(cfg.StdDevPeriod) }
	case KindADX:
		periods, ctor = []int{cfg.ADXPeriod}, func() Indicator { return NewADX(cfg.ADXPeriod) }
	default:
		return nil, fmt.Errorf("%w: indicator kind %d", model.ErrInvariant, k)
	}
	for _, p := range periods {
		if p <= 0 {
			return nil, fmt.Errorf("%w: %s period %d", model.ErrWrongInstrumentConf, k, p)
		}
	}
	return ctor(), nil
}

// Get returns the active indicator in slot k, or nil when disabled or paused.
func (b *Bank) Get(k Kind) Indicator {
	if k < 0 || k >= numKinds || b.paused[k] {
		return nil
	}
	return b.slots[k]
}

func (b *Bank) EMAA() Indicator       { return b.Get(KindEMAA) }
func (b *Bank) EMAB() Indicator       { return b.Get(KindEMAB) }
func (b *Bank) EMAC() Indicator       { return b.Get(KindEMAC) }
func (b *Bank) MACD() Indicator       { return b.Get(KindMACD) }
func (b *Bank) RSI() Indicator        { return b.Get(KindRSI) }
func (b *Bank) ATR() Indicator        { return b.Get(KindATR) }
func (b *Bank) Bollinger() Indicator  { return b.Get(KindBB) }
func (b *Bank) Stochastic() Indicator { return b.Get(KindStoch) }
func (b *Bank) StdDev() Indicator     { return b.Get(KindStdDev) }
func (b *Bank) ADX() Indicator        { return b.Get(KindADX) }

// Enabled lists the active slots.
func (b *Bank) Enabled() []Kind {
	var out []Kind
	for _, k := range Kinds() {
		if b.Get(k) != nil {
			out = append(out, k)
		}
	}
	return out
}

// Len is the number of bars the bank's series cover.
func (b *Bank) Len() int { return b.n }

// Next appends a sample for the newly opened bar c to every slot.
func (b *Bank) Next(c model.Candle) error {
	var errs []error
	for k, ind := range b.slots {
		if ind == nil {
			continue
		}
		if b.paused[k] {
			// A slot paused before its first bar has nothing to pad and stays empty.
			if ind.Len() > 0 {
				if err := ind.DuplicateLast(); err != nil {
					errs = append(errs, err)
				}
			}
			continue
		}
		ind.Next(c)
	}
	b.n++
	return errors.Join(errs...)
}

// Update recomputes the open bar of every active slot.
func (b *Bank) Update(c model.Candle) error {
	var errs []error
	for k, ind := range b.slots {
		if ind == nil || b.paused[k] {
			continue
		}
		if err := ind.Update(c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// EvictOldest drops index 0 from every slot.
func (b *Bank) EvictOldest() error {
	if b.n == 0 {
		return fmt.Errorf("bank evict: %w", model.ErrEmptySeries)
	}
	var errs []error
	for _, ind := range b.slots {
		if ind == nil || ind.Len() == 0 {
			continue
		}
		if err := ind.EvictOldest(); err != nil {
			errs = append(errs, err)
		}
	}
	b.n--
	return errors.Join(errs...)
}

// Disable pauses slot k. Its series keeps padding so it can be resumed aligned.
func (b *Bank) Disable(k Kind) {
	if k >= 0 && k < numKinds && b.slots[k] != nil {
		b.paused[k] = true
	}
}

// Enable turns slot k on. When candles (aligned with the bank) are given the
// indicator is rebuilt from them; otherwise a paused slot resumes from its
// padded series, and a slot that never existed is padded from its first bar.
// A slot paused before it saw any bar can only be resumed from candles.
func (b *Bank) Enable(k Kind, candles []model.Candle) error {
	if k < 0 || k >= numKinds {
		return fmt.Errorf("%w: indicator kind %d", model.ErrInvariant, k)
	}
	if len(candles) > 0 {
		if len(candles) != b.n {
			return fmt.Errorf("enable %s: %d candles for %d bars: %w", k, len(candles), b.n, model.ErrIndexOutOfRange)
		}
		ind, err := build(b.cfg, k)
		if err != nil {
			return err
		}
		for _, c := range candles {
			ind.Next(c)
		}
		b.slots[k] = ind
		b.paused[k] = false
		return nil
	}

	if ind := b.slots[k]; ind != nil {
		if ind.Len() != b.n {
			return fmt.Errorf("resume %s: %d samples for %d bars: %w", k, ind.Len(), b.n, model.ErrEmptySeries)
		}
		b.paused[k] = false
		return nil
	}
	if b.n > 0 {
		return fmt.Errorf("enable %s without history: %w", k, model.ErrEmptySeries)
	}
	ind, err := build(b.cfg, k)
	if err != nil {
		return err
	}
	b.slots[k] = ind
	return nil
}

// Snapshot returns the last sample of every active slot keyed by slot name.
func (b *Bank) Snapshot() map[string]Sample {
	out := make(map[string]Sample)
	for _, k := range b.Enabled() {
		if s, err := b.slots[k].Last(); err == nil {
			out[k.String()] = s
		}
	}
	return out
}
