package instrument

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartscan/config"
	"chartscan/internal/model"
)

var t0 = time.Date(2024, 2, 5, 9, 0, 0, 0, time.UTC)

func testConfig(numBars int) Config {
	eng := config.Default().Engine
	eng.NumBars = numBars
	return Config{Symbol: "EURUSD", Market: "fx", TimeFrame: model.M1, Engine: eng}
}

func newInstrument(t *testing.T, numBars int) *Instrument {
	t.Helper()
	inst, err := New(testConfig(numBars))
	require.NoError(t, err)
	return inst
}

func bar(minute int, mid float64) model.Tick {
	return model.Tick{
		Symbol: "EURUSD",
		Date:   t0.Add(time.Duration(minute) * time.Minute),
		Open:   mid, High: mid + 0.5, Low: mid - 0.5, Close: mid, Volume: 1,
	}
}

func trade(at time.Duration, price float64) model.Tick {
	return model.Tick{Symbol: "EURUSD", Date: t0.Add(at), Open: price, High: price, Low: price, Close: price, Volume: 1}
}

func TestNew_ValidatesConfig(t *testing.T) {
	cases := map[string]func(*Config){
		"empty symbol": func(c *Config) { c.Symbol = "" },
		"no timeframe": func(c *Config) { c.TimeFrame = 0 },
		"zero bars":    func(c *Config) { c.Engine.NumBars = 0 },
		"bad ema slot": func(c *Config) { c.Engine.Indicators.EMAA = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig(100)
			mutate(&cfg)
			_, err := New(cfg)
			assert.ErrorIs(t, err, model.ErrWrongInstrumentConf)
		})
	}
}

func TestNext_BuildsAndClosesCandles(t *testing.T) {
	inst := newInstrument(t, 100)

	c, err := inst.Next(trade(5*time.Second, 100))
	require.NoError(t, err)
	assert.False(t, c.IsClosed)
	assert.Equal(t, t0, c.Date)

	_, err = inst.Next(trade(20*time.Second, 102))
	require.NoError(t, err)
	c, err = inst.Next(trade(40*time.Second, 99))
	require.NoError(t, err)
	assert.Equal(t, 102.0, c.High)
	assert.Equal(t, 99.0, c.Low)
	assert.Equal(t, 99.0, c.Close)
	assert.Equal(t, 1, inst.Len())

	_, err = inst.Next(trade(70*time.Second, 101))
	require.NoError(t, err)
	data := inst.Data()
	require.Len(t, data, 2)
	assert.True(t, data[0].IsClosed)
	assert.Equal(t, 3.0, data[0].Volume)
	assert.False(t, data[1].IsClosed)
	assert.Equal(t, 101.0, inst.CurrentPrice())
	assert.Equal(t, 1, inst.Peaks().Len())
	assert.Equal(t, 2, inst.Indicators().Len())

	ev := inst.Events()
	require.Len(t, ev.Closed, 1)
	assert.Equal(t, data[0], ev.Closed[0])
	assert.Empty(t, inst.Events().Closed)
}

func TestNext_RejectsBadTicks(t *testing.T) {
	inst := newInstrument(t, 100)
	_, err := inst.CurrentCandle()
	assert.ErrorIs(t, err, model.ErrEmptySeries)

	_, err = inst.Next(bar(5, 100))
	require.NoError(t, err)
	before := inst.Data()

	bad := bar(5, 100)
	bad.High, bad.Low = 99, 101
	_, err = inst.Next(bad)
	assert.ErrorIs(t, err, model.ErrInvalidCandle)

	nan := bar(5, 100)
	nan.Close = math.NaN()
	_, err = inst.Next(nan)
	assert.ErrorIs(t, err, model.ErrInvalidCandle)

	_, err = inst.Next(bar(3, 100))
	assert.ErrorIs(t, err, model.ErrStaleTick)

	assert.Equal(t, before, inst.Data())
}

func TestNext_OpenBarUpdatesAreIdempotent(t *testing.T) {
	a := newInstrument(t, 1000)
	b := newInstrument(t, 1000)
	rng := rand.New(rand.NewSource(11))
	price := 100.0
	for m := 0; m < 60; m++ {
		price += rng.NormFloat64()
		tk := bar(m, price)
		_, err := a.Next(tk)
		require.NoError(t, err)
		_, err = b.Next(tk)
		require.NoError(t, err)
	}

	// a sees the last bar tick by tick, b sees the merged bar once
	for _, p := range []float64{price + 1, price + 3, price - 2, price + 0.5} {
		_, err := a.Next(trade(60*time.Minute+time.Second, p))
		require.NoError(t, err)
	}
	_, err := b.Next(model.Tick{
		Symbol: "EURUSD", Date: t0.Add(60*time.Minute + time.Second),
		Open: price + 1, High: price + 3, Low: price - 2, Close: price + 0.5, Volume: 4,
	})
	require.NoError(t, err)

	ca, _ := a.CurrentCandle()
	cb, _ := b.CurrentCandle()
	assert.Equal(t, cb, ca)
	assert.Equal(t, b.Indicators().Snapshot(), a.Indicators().Snapshot())
}

func TestNext_EvictionKeepsSeriesAligned(t *testing.T) {
	inst := newInstrument(t, 50)
	require.Equal(t, 50, inst.MaxBars())

	rng := rand.New(rand.NewSource(5))
	price := 100.0
	for m := 0; m < 300; m++ {
		for s := 0; s < 3; s++ {
			price += rng.NormFloat64() * 0.3
			_, err := inst.Next(trade(time.Duration(m)*time.Minute+time.Duration(s*15)*time.Second, price))
			require.NoError(t, err)
		}
	}

	assert.Equal(t, 50, inst.Len())
	assert.Equal(t, 50, inst.Indicators().Len())
	for _, k := range inst.Indicators().Enabled() {
		assert.Equal(t, 50, inst.Indicators().Get(k).Len(), k.String())
	}
	assert.Equal(t, 49, inst.Peaks().Len())
	require.NoError(t, inst.Peaks().Validate())

	for _, p := range append(inst.Patterns().Local, inst.Patterns().Extrema...) {
		assert.GreaterOrEqual(t, p.DataPoints[0].Index, 0)
	}
	for _, d := range inst.Divergences() {
		assert.GreaterOrEqual(t, d.Index, 0)
		assert.Less(t, d.Index, 50)
	}
}

func sine(i int) float64 { return 100 + 10*math.Sin(2*math.Pi*float64(i)/20) }

func TestNext_DetectsRectangleOnOscillation(t *testing.T) {
	inst := newInstrument(t, 1000)
	for m := 0; m < 100; m++ {
		_, err := inst.Next(bar(m, sine(m)))
		require.NoError(t, err)
	}

	var types []model.PatternType
	for _, p := range inst.Patterns().Local {
		types = append(types, p.Type)
	}
	assert.Contains(t, types, model.PatternRectangle)

	ev := inst.Events()
	assert.NotEmpty(t, ev.Patterns)

	var support, resistance bool
	for _, l := range inst.HorizontalLevels() {
		if l.Type == model.LevelSupport && math.Abs(l.Price-89.5) < 0.5 {
			support = true
		}
		if l.Type == model.LevelResistance && math.Abs(l.Price-110.5) < 0.5 {
			resistance = true
		}
	}
	assert.True(t, support, "support near the troughs")
	assert.True(t, resistance, "resistance near the crests")
	assert.Greater(t, inst.MaxPrice(), inst.MinPrice())
}

func TestSetData_BulkLoad(t *testing.T) {
	inst := newInstrument(t, 60)
	history := make([]model.Tick, 0, 100)
	for m := 0; m < 100; m++ {
		history = append(history, bar(m, sine(m)))
	}
	bad := bar(100, 1)
	bad.Low = -1
	history = append(history, bad)

	require.NoError(t, inst.SetData(history))
	data := inst.Data()
	require.Len(t, data, 60)
	for _, c := range data[:59] {
		assert.True(t, c.IsClosed)
	}
	assert.False(t, data[59].IsClosed)
	assert.Equal(t, t0.Add(99*time.Minute), data[59].Date)
	assert.Equal(t, 60, inst.Indicators().Len())
	assert.Equal(t, 59, inst.Peaks().Len())
	assert.NotEmpty(t, inst.Peaks().LocalMaxima)
	assert.Empty(t, inst.Events().Closed)

	_, err := inst.Next(bar(100, sine(100)))
	require.NoError(t, err)
	assert.Equal(t, 60, inst.Len())
}

func TestSnapshot_IsDetached(t *testing.T) {
	inst := newInstrument(t, 1000)
	for m := 0; m < 40; m++ {
		_, err := inst.Next(bar(m, sine(m)))
		require.NoError(t, err)
	}
	snap := inst.Snapshot()
	assert.Equal(t, "EURUSD", snap.Symbol)
	assert.Equal(t, 40, snap.Bars)
	assert.Equal(t, t0.Add(39*time.Minute), snap.Date)
	assert.Contains(t, snap.Indicators, "EMA_A")
	require.NotEmpty(t, snap.LocalMaxima)

	snap.LocalMaxima[0].Index = -5
	assert.NotEqual(t, -5, inst.Peaks().LocalMaxima[0].Index)
}
