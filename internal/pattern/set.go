package pattern

import (
	"slices"
	"time"

	"chartscan/internal/model"
)

// Set holds the patterns found on an instrument, per peak series.
type Set struct {
	Local   []model.Pattern `json:"local_patterns"`
	Extrema []model.Pattern `json:"extrema_patterns"`

	// breakout state last reported per pattern
	seen map[key]announced
}

type announced struct {
	status model.PatternStatus // StatusPending when nothing is reported
	bar    time.Time           // open bar of the last refresh
}

type key struct {
	size  model.PatternSize
	typ   model.PatternType
	dir   model.PatternDirection
	first int
}

func keyOf(p model.Pattern) key {
	k := key{size: p.Size, typ: p.Type, dir: p.Direction, first: -1}
	if len(p.DataPoints) > 0 {
		k.first = p.DataPoints[0].Index
	}
	return k
}

func (s *Set) list(size model.PatternSize) *[]model.Pattern {
	if size == model.PatternExtrema {
		return &s.Extrema
	}
	return &s.Local
}

// Merge adds found to the series of the given size. A pattern of the same
// type starting on the same point replaces the stored one. It returns the
// patterns that were not known before.
func (s *Set) Merge(size model.PatternSize, found []model.Pattern) []model.Pattern {
	dst := s.list(size)
	var added []model.Pattern
	for _, p := range found {
		k := keyOf(p)
		i := slices.IndexFunc(*dst, func(q model.Pattern) bool { return keyOf(q) == k })
		if i >= 0 {
			(*dst)[i] = p
			continue
		}
		*dst = append(*dst, p)
		added = append(added, p)
		if p.Active.Status != model.StatusPending {
			s.mark(k, announced{status: p.Active.Status})
		}
	}
	return added
}

func (s *Set) mark(k key, a announced) {
	if s.seen == nil {
		s.seen = make(map[key]announced)
	}
	s.seen[k] = a
}

// Refresh recomputes the breakout state of every open pattern against
// candles, whose last entry is the open bar, and returns the patterns that
// reached a status not reported before. An open bar crossing back and forth
// reports its breakout once; a breakout is only reported again after a bar
// closed with the pattern back inside its bands.
func (s *Set) Refresh(d *Detector, candles []model.Candle) []model.Pattern {
	if len(candles) == 0 {
		return nil
	}
	bar := candles[len(candles)-1].Date
	var changed []model.Pattern
	for _, l := range []*[]model.Pattern{&s.Local, &s.Extrema} {
		for i := range *l {
			p := &(*l)[i]
			k := keyOf(*p)
			a := s.seen[k]
			if !a.bar.Equal(bar) {
				// first look at a new bar: p still holds the closing state
				if p.Active.Status == model.StatusPending {
					a.status = model.StatusPending
				}
				a.bar = bar
			}
			d.Refresh(p, candles)
			if st := p.Active.Status; st != model.StatusPending && st != a.status {
				a.status = st
				changed = append(changed, *p)
			}
			s.mark(k, a)
		}
	}
	return changed
}

// EvictOldest shifts every pattern one bar left and drops those whose
// first data point left the window.
func (s *Set) EvictOldest() {
	seen := make(map[key]announced, len(s.seen))
	for _, l := range []*[]model.Pattern{&s.Local, &s.Extrema} {
		kept := (*l)[:0]
		for _, p := range *l {
			if len(p.DataPoints) == 0 || p.DataPoints[0].Index == 0 {
				continue
			}
			a, ok := s.seen[keyOf(p)]
			p.Shift(-1)
			if ok {
				seen[keyOf(p)] = a
			}
			kept = append(kept, p)
		}
		*l = kept
	}
	s.seen = seen
}

// Len is the total number of patterns held.
func (s *Set) Len() int { return len(s.Local) + len(s.Extrema) }

// Clone returns a deep copy safe to hand to other goroutines.
func (s *Set) Clone() Set {
	c := Set{Local: make([]model.Pattern, len(s.Local)), Extrema: make([]model.Pattern, len(s.Extrema))}
	for i, p := range s.Local {
		p.DataPoints = slices.Clone(p.DataPoints)
		c.Local[i] = p
	}
	for i, p := range s.Extrema {
		p.DataPoints = slices.Clone(p.DataPoints)
		c.Extrema[i] = p
	}
	return c
}
