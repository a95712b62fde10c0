package pattern

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartscan/config"
	"chartscan/internal/model"
)

var cfg = config.Patterns{Enabled: true, MaxPoints: 5, MinPoints: 2, EqualThreshold: 1, ScanPolicy: config.ScanFirst}

func pt(i int, p float64) model.Point { return model.Point{Index: i, Price: p} }

// split sorts alternating points into maxima and minima, the first being a
// maximum when topFirst is set.
func split(topFirst bool, pts ...model.Point) (maxima, minima []model.Point) {
	for i, p := range pts {
		if (i%2 == 0) == topFirst {
			maxima = append(maxima, p)
		} else {
			minima = append(minima, p)
		}
	}
	return maxima, minima
}

func flat(n int, price float64) []model.Candle {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]model.Candle, n)
	for i := range out {
		out[i] = model.Candle{
			Date: t0.Add(time.Duration(i) * time.Hour),
			Open: price, High: price + 1, Low: price - 1, Close: price, IsClosed: true,
		}
	}
	return out
}

func rectangle() (maxima, minima []model.Point) {
	return split(true, pt(0, 100), pt(5, 90), pt(10, 100), pt(15, 90))
}

func TestIsRectangle(t *testing.T) {
	pp := []peakPoint{{pt(0, 100), true}, {pt(5, 90), false}, {pt(10, 100), true}, {pt(15, 90), false}}
	w, ok := newWindow(pp)
	require.True(t, ok)
	_, isRect := isRectangle(w, 1)
	assert.True(t, isRect)
	assert.Equal(t, model.DirectionTop, w.dir)

	pp[2].Price = 102
	w, _ = newWindow(pp)
	_, isRect = isRectangle(w, 1)
	assert.False(t, isRect)
}

func TestDetect_Rectangle(t *testing.T) {
	maxima, minima := rectangle()
	candles := flat(16, 95)
	got := New(cfg).Detect(model.PatternLocal, maxima, minima, candles)
	require.Len(t, got, 1)

	p := got[0]
	assert.Equal(t, model.PatternRectangle, p.Type)
	assert.Equal(t, model.DirectionTop, p.Direction)
	assert.Equal(t, 15, p.Index)
	assert.Equal(t, candles[15].Date, p.Date)
	require.Len(t, p.DataPoints, 5)
	assert.Equal(t, pt(20, 100), p.DataPoints[4])
	assert.InDelta(t, 80, p.Target, 1e-9)
	assert.False(t, p.Active.Active)
	assert.Equal(t, model.StatusPending, p.Active.Status)
}

func TestDetect_Classification(t *testing.T) {
	cases := []struct {
		name     string
		topFirst bool
		pts      []model.Point
		want     model.PatternType
	}{
		{"rectangle", true, []model.Point{pt(0, 100), pt(5, 90), pt(10, 100), pt(15, 90)}, model.PatternRectangle},
		{"double top", true, []model.Point{pt(0, 100), pt(5, 90), pt(10, 100.5), pt(15, 85)}, model.PatternDoubleTop},
		{"double bottom", false, []model.Point{pt(0, 90), pt(5, 100), pt(10, 90.3), pt(15, 105)}, model.PatternDoubleBottom},
		{"channel up", true, []model.Point{pt(0, 100), pt(5, 90), pt(10, 110), pt(15, 100)}, model.PatternChannelUp},
		{"channel down", true, []model.Point{pt(0, 110), pt(5, 100), pt(10, 100), pt(15, 90)}, model.PatternChannelDown},
		{"triangle up", true, []model.Point{pt(0, 100), pt(5, 90), pt(10, 100.2), pt(15, 95)}, model.PatternTriangleUp},
		{"triangle down", false, []model.Point{pt(0, 90), pt(5, 110), pt(10, 90.2), pt(15, 100)}, model.PatternTriangleDown},
		{"loose channel down", true, []model.Point{pt(0, 110), pt(5, 100), pt(10, 100), pt(15, 94)}, model.PatternChannelDown},
		{"broadening", true, []model.Point{pt(0, 100), pt(5, 90), pt(10, 105), pt(15, 85)}, model.PatternBroadening},
		{"triangle sym", true, []model.Point{pt(0, 110), pt(5, 90), pt(10, 105), pt(15, 95)}, model.PatternTriangleSym},
		{"higher highs", true, []model.Point{pt(0, 100), pt(5, 90), pt(10, 110), pt(15, 92)}, model.PatternHigherHighsHigherLows},
		{"lower lows", true, []model.Point{pt(0, 110), pt(5, 100), pt(10, 100), pt(15, 98)}, model.PatternLowerHighsLowerLows},
	}
	d := New(cfg)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			maxima, minima := split(tc.topFirst, tc.pts...)
			got := d.Detect(model.PatternLocal, maxima, minima, flat(16, 95))
			require.Len(t, got, 1)
			assert.Equal(t, tc.want, got[0].Type, "got %s", got[0].Type)
		})
	}
}

func TestDetect_HeadShoulders(t *testing.T) {
	maxima, minima := split(true, pt(0, 100), pt(5, 90), pt(10, 110), pt(15, 90), pt(20, 100))
	got := New(cfg).Detect(model.PatternExtrema, maxima, minima, flat(21, 95))
	require.Len(t, got, 1)

	p := got[0]
	assert.Equal(t, model.PatternHeadShoulders, p.Type)
	assert.Equal(t, model.PatternExtrema, p.Size)
	assert.Equal(t, model.DirectionTop, p.Direction)
	require.Len(t, p.DataPoints, 6)
	assert.Equal(t, pt(25, 90), p.DataPoints[5])
	assert.InDelta(t, 70, p.Target, 1e-9, "neckline minus the head's height")
}

func TestDetect_InverseHeadShouldersTarget(t *testing.T) {
	maxima, minima := split(false, pt(0, 100), pt(5, 110), pt(10, 90), pt(15, 110), pt(20, 100))
	got := New(cfg).Detect(model.PatternExtrema, maxima, minima, flat(21, 105))
	require.Len(t, got, 1)

	p := got[0]
	assert.Equal(t, model.PatternHeadShoulders, p.Type)
	assert.Equal(t, model.DirectionBottom, p.Direction)
	assert.InDelta(t, 130, p.Target, 1e-9, "neckline plus the head's depth")
}

func TestDetect_RejectsDegenerateWindows(t *testing.T) {
	d := New(cfg)

	tight, tightMin := split(true, pt(0, 100), pt(1, 90), pt(2, 100), pt(3, 90))
	assert.Empty(t, d.Detect(model.PatternLocal, tight, tightMin, flat(4, 95)))

	maxima := []model.Point{pt(0, 100), pt(5, 100), pt(10, 100)}
	minima := []model.Point{pt(15, 90)}
	assert.Empty(t, d.Detect(model.PatternLocal, maxima, minima, flat(16, 95)))

	assert.Empty(t, d.Detect(model.PatternLocal, nil, nil, nil))
}

func zigzag() (maxima, minima []model.Point) {
	return split(true,
		pt(0, 110), pt(5, 100), pt(10, 112), pt(15, 101), pt(20, 114),
		pt(25, 104), pt(30, 116), pt(35, 103), pt(40, 118), pt(45, 106),
	)
}

func TestDetect_ScanPolicy(t *testing.T) {
	maxima, minima := zigzag()
	candles := flat(46, 110)

	first := New(cfg).Detect(model.PatternLocal, maxima, minima, candles)
	allCfg := cfg
	allCfg.ScanPolicy = config.ScanAll
	all := New(allCfg).Detect(model.PatternLocal, maxima, minima, candles)

	require.Len(t, first, 1)
	require.GreaterOrEqual(t, len(all), len(first))
	assert.Equal(t, first[0], all[0])
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i].Index, all[i-1].Index, "newest first")
	}
}

func TestDetect_Deterministic(t *testing.T) {
	maxima, minima := zigzag()
	candles := flat(46, 110)
	allCfg := cfg
	allCfg.ScanPolicy = config.ScanAll
	d := New(allCfg)
	assert.Equal(t, d.Detect(model.PatternLocal, maxima, minima, candles), d.Detect(model.PatternLocal, maxima, minima, candles))
}

func TestDetect_MaxPointsLimitsHistory(t *testing.T) {
	maxima, minima := zigzag()
	small := cfg
	small.MaxPoints = 2
	small.ScanPolicy = config.ScanAll
	got := New(small).Detect(model.PatternLocal, maxima, minima, flat(46, 110))
	for _, p := range got {
		assert.GreaterOrEqual(t, p.DataPoints[0].Index, 30)
	}
}

func TestActive_BreakoutSuccess(t *testing.T) {
	maxima, minima := rectangle()
	candles := flat(20, 95)
	candles[16].Close, candles[16].High = 101, 101.5
	candles[17].High = 111

	p := New(cfg).Detect(model.PatternLocal, maxima, minima, candles)[0]
	assert.True(t, p.Active.Active)
	assert.True(t, p.Active.Completed)
	assert.Equal(t, 16, p.Active.Index)
	assert.Equal(t, model.BreakUp, p.Active.BreakDirection)
	assert.InDelta(t, 110, p.Active.Target, 1e-9)
	assert.Equal(t, model.StatusSuccess, p.Active.Status)
}

func TestActive_BreakoutFail(t *testing.T) {
	maxima, minima := rectangle()
	candles := flat(20, 95)
	candles[16].Close, candles[16].High = 101, 101.5
	candles[17].Close, candles[17].Low = 89, 88.5

	p := New(cfg).Detect(model.PatternLocal, maxima, minima, candles)[0]
	assert.Equal(t, model.StatusFail, p.Active.Status)
	assert.True(t, p.Active.Completed)
}

func TestActive_CatchUpNeedsThreshold(t *testing.T) {
	maxima, minima := rectangle()
	candles := flat(20, 95)
	candles[15].Close = 89.5
	candles[16].Close = 89.6
	candles[17].Close = 88

	p := New(cfg).Detect(model.PatternLocal, maxima, minima, candles)[0]
	require.True(t, p.Active.Active)
	assert.Equal(t, 17, p.Active.Index)
	assert.Equal(t, model.BreakDown, p.Active.BreakDirection)
	assert.Equal(t, model.StatusActive, p.Active.Status)
	assert.InDelta(t, 80, p.Active.Target, 1e-9)
}

func TestRefresh_TracksOpenCandle(t *testing.T) {
	maxima, minima := rectangle()
	d := New(cfg)
	candles := flat(17, 95)
	p := d.Detect(model.PatternLocal, maxima, minima, candles)[0]
	require.False(t, p.Active.Active)

	candles[16].Close, candles[16].High = 101, 101
	d.Refresh(&p, candles)
	assert.True(t, p.Active.Active)

	candles[16].Close = 99
	d.Refresh(&p, candles)
	assert.False(t, p.Active.Active, "breakout undone while the bar is open")
}

func TestSet_MergeRefreshEvict(t *testing.T) {
	maxima, minima := rectangle()
	d := New(cfg)
	candles := flat(17, 95)
	found := d.Detect(model.PatternLocal, maxima, minima, candles)

	var s Set
	assert.Len(t, s.Merge(model.PatternLocal, found), 1)
	assert.Empty(t, s.Merge(model.PatternLocal, found), "same type and first point is a duplicate")
	assert.Equal(t, 1, s.Len())

	candles[16].Close, candles[16].High = 101, 101
	changed := s.Refresh(d, candles)
	require.Len(t, changed, 1)
	assert.Equal(t, model.StatusActive, changed[0].Active.Status)

	snap := s.Clone()
	s.EvictOldest()
	assert.Empty(t, s.Local, "first point left the window")
	assert.Equal(t, 0, snap.Local[0].DataPoints[0].Index)
}

func TestSet_RefreshReportsBreakoutOncePerBar(t *testing.T) {
	maxima, minima := rectangle()
	d := New(cfg)
	candles := flat(17, 95)
	var s Set
	s.Merge(model.PatternLocal, d.Detect(model.PatternLocal, maxima, minima, candles))

	var reported []model.PatternStatus
	for i, px := range []float64{101, 99, 101, 99} {
		candles[16].Close, candles[16].High = px, max(px, 96)
		for _, p := range s.Refresh(d, candles) {
			reported = append(reported, p.Active.Status)
		}
		assert.Equal(t, px > 100, s.Local[0].Active.Active, "tick %d", i)
	}
	assert.Equal(t, []model.PatternStatus{model.StatusActive}, reported)

	// the bar closed back inside, so a breakout on the next bar is new
	next := candles[16]
	next.Date = next.Date.Add(time.Hour)
	candles = append(candles, next)
	assert.Empty(t, s.Refresh(d, candles))

	candles[17].Close, candles[17].High = 101, 101
	changed := s.Refresh(d, candles)
	require.Len(t, changed, 1)
	assert.Equal(t, 17, changed[0].Active.Index)
}

func TestSet_RefreshKeepsBreakoutAcrossBars(t *testing.T) {
	maxima, minima := rectangle()
	d := New(cfg)
	candles := flat(17, 95)
	var s Set
	s.Merge(model.PatternLocal, d.Detect(model.PatternLocal, maxima, minima, candles))

	candles[16].Close, candles[16].High = 101, 101
	require.Len(t, s.Refresh(d, candles), 1)

	// next bar dips inside and comes back: still the same breakout
	next := candles[16]
	next.Date = next.Date.Add(time.Hour)
	candles = append(candles, next)
	for _, px := range []float64{99.5, 101} {
		candles[17].Close = px
		assert.Empty(t, s.Refresh(d, candles))
	}
}

func TestSet_EvictShifts(t *testing.T) {
	maxima, minima := split(true, pt(3, 100), pt(8, 90), pt(13, 100), pt(18, 90))
	var s Set
	s.Merge(model.PatternExtrema, New(cfg).Detect(model.PatternExtrema, maxima, minima, flat(19, 95)))
	s.EvictOldest()
	require.Len(t, s.Extrema, 1)
	assert.Equal(t, 2, s.Extrema[0].DataPoints[0].Index)
	assert.Equal(t, 17, s.Extrema[0].Index)
}
