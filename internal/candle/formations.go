package candle

import (
	"math"

	"chartscan/internal/model"
)

const (
	dojiBodyRatio     = 0.1  // body / range below which a candle is a doji
	marubozuBodyRatio = 0.95 // body / range above which a candle has no shadows
	shadowRatio       = 2.0  // long shadow vs body for karakasa and hanging man
	smallShadowRatio  = 0.1  // short shadow vs range
	starBodyRatio     = 0.3  // star body vs previous body
	haramiBodyRatio   = 0.5
	longBodyRatio     = 0.6
)

type bar struct{ o, h, l, c float64 }

func (b bar) body() float64      { return math.Abs(b.c - b.o) }
func (b bar) rng() float64       { return b.h - b.l }
func (b bar) top() float64       { return math.Max(b.o, b.c) }
func (b bar) bottom() float64    { return math.Min(b.o, b.c) }
func (b bar) upperWick() float64 { return b.h - b.top() }
func (b bar) lowerWick() float64 { return b.bottom() - b.l }
func (b bar) bull() bool         { return b.c > b.o }
func (b bar) bear() bool         { return b.c < b.o }
func (b bar) mid() float64       { return (b.o + b.c) / 2 }

func (b bar) long() bool {
	r := b.rng()
	return r > 0 && b.body() >= r*longBodyRatio
}

// formation is one predicate of the classification chain. bars is oldest
// first with the candle being classified last.
type formation struct {
	need  int // number of bars including the current one
	match func(bars []bar) (model.CandleType, bool)
}

// chain is evaluated in order; the first match wins.
var chain = []formation{
	{3, threeInRow},
	{3, crows},
	{5, reversal},
	{2, gap},
	{2, karakasa},
	{2, engulfing},
	{3, star3},
	{2, star},
	{1, marubozu},
	{3, hangingMan},
	{2, harami},
	{1, doji},
}

func classify(bars []bar) model.CandleType {
	for _, f := range chain {
		if len(bars) < f.need {
			continue
		}
		if t, ok := f.match(bars[len(bars)-f.need:]); ok {
			return t
		}
	}
	return model.CandleDefault
}

// threeInRow: three bodies in one direction, each closing beyond the last and
// opening inside the previous body.
func threeInRow(b []bar) (model.CandleType, bool) {
	a, m, z := b[0], b[1], b[2]
	if a.bull() && m.bull() && z.bull() &&
		m.c > a.c && z.c > m.c &&
		m.o >= a.o && m.o <= a.c && z.o >= m.o && z.o <= m.c {
		return model.CandleThreeInRow, true
	}
	if a.bear() && m.bear() && z.bear() &&
		m.c < a.c && z.c < m.c &&
		m.o <= a.o && m.o >= a.c && z.o <= m.o && z.o >= m.c {
		return model.CandleThreeOutRow, true
	}
	return 0, false
}

// crows: a long candle, a gap away from it against the trend, then a candle
// that opens inside the gapped body and closes back inside the first body.
func crows(b []bar) (model.CandleType, bool) {
	a, m, z := b[0], b[1], b[2]
	if a.bull() && a.long() && m.bear() && m.bottom() > a.c &&
		z.bear() && z.o <= m.o && z.o >= m.c && z.c < a.c && z.c > a.o {
		return model.CandleBearishCrows, true
	}
	if a.bear() && a.long() && m.bull() && m.top() < a.c &&
		z.bull() && z.o >= m.o && z.o <= m.c && z.c > a.c && z.c < a.o {
		return model.CandleBullishCrows, true
	}
	return 0, false
}

// reversal: four closes trending one way, then a candle closing past the
// extreme where the run started.
func reversal(b []bar) (model.CandleType, bool) {
	up, down := true, true
	for i := 1; i < 4; i++ {
		up = up && b[i].c > b[i-1].c
		down = down && b[i].c < b[i-1].c
	}
	z := b[4]
	if up && z.bear() && z.c < b[0].l {
		return model.CandleReversal, true
	}
	if down && z.bull() && z.c > b[0].h {
		return model.CandleReversal, true
	}
	return 0, false
}

func gap(b []bar) (model.CandleType, bool) {
	p, z := b[0], b[1]
	if z.bull() && z.l > p.h {
		return model.CandleBullishGap, true
	}
	if z.bear() && z.h < p.l {
		return model.CandleBearishGap, true
	}
	return 0, false
}

func hammerShape(z bar) bool {
	body := z.body()
	return body > 0 && z.lowerWick() >= shadowRatio*body && z.upperWick() <= smallShadowRatio*z.rng()
}

func invertedHammerShape(z bar) bool {
	body := z.body()
	return body > 0 && z.upperWick() >= shadowRatio*body && z.lowerWick() <= smallShadowRatio*z.rng()
}

// karakasa: hammer after a down bar, inverted hammer after an up bar.
func karakasa(b []bar) (model.CandleType, bool) {
	p, z := b[0], b[1]
	if p.bear() && hammerShape(z) {
		return model.CandleKarakasa, true
	}
	if p.bull() && invertedHammerShape(z) {
		return model.CandleBearishKarakasa, true
	}
	return 0, false
}

func engulfing(b []bar) (model.CandleType, bool) {
	p, z := b[0], b[1]
	if p.bear() && z.bull() && z.o <= p.c && z.c >= p.o && z.body() > p.body() {
		return model.CandleEngulfing, true
	}
	if p.bull() && z.bear() && z.o >= p.c && z.c <= p.o && z.body() > p.body() {
		return model.CandleBearishEngulfing, true
	}
	return 0, false
}

// star3 covers morning and evening stars.
func star3(b []bar) (model.CandleType, bool) {
	a, m, z := b[0], b[1], b[2]
	if !a.long() || m.body() > a.body()*starBodyRatio {
		return 0, false
	}
	if a.bear() && m.top() < a.c && z.bull() && z.c > a.mid() {
		return model.CandleMorningStar, true
	}
	if a.bull() && m.bottom() > a.c && z.bear() && z.c < a.mid() {
		return model.CandleEveningStar, true
	}
	return 0, false
}

// star: a small body gapping away from the previous close.
func star(b []bar) (model.CandleType, bool) {
	p, z := b[0], b[1]
	if p.body() == 0 || z.body() > p.body()*starBodyRatio {
		return 0, false
	}
	if p.bear() && z.top() < p.c {
		return model.CandleBullishStar, true
	}
	if p.bull() && z.bottom() > p.c {
		return model.CandleBearishStar, true
	}
	return 0, false
}

func marubozu(b []bar) (model.CandleType, bool) {
	z := b[0]
	r := z.rng()
	if r == 0 || z.body() < r*marubozuBodyRatio {
		return 0, false
	}
	if z.bull() {
		return model.CandleMarubozu, true
	}
	if z.bear() {
		return model.CandleBearishMarubozu, true
	}
	return 0, false
}

// hangingMan: hammer shape at the top of two rising closes.
func hangingMan(b []bar) (model.CandleType, bool) {
	a, m, z := b[0], b[1], b[2]
	if m.c > a.c && m.bull() && hammerShape(z) && z.bottom() > m.mid() {
		return model.CandleHangingMan, true
	}
	return 0, false
}

func harami(b []bar) (model.CandleType, bool) {
	p, z := b[0], b[1]
	if !p.long() || z.body() > p.body()*haramiBodyRatio {
		return 0, false
	}
	if p.bear() && z.bull() && z.o >= p.c && z.c <= p.o {
		return model.CandleHarami, true
	}
	if p.bull() && z.bear() && z.o <= p.c && z.c >= p.o {
		return model.CandleBearishHarami, true
	}
	return 0, false
}

func doji(b []bar) (model.CandleType, bool) {
	z := b[0]
	r := z.rng()
	if r > 0 && z.body()/r < dojiBodyRatio {
		return model.CandleDoji, true
	}
	return 0, false
}
