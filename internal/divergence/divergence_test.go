package divergence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartscan/config"
	"chartscan/internal/indicator"
	"chartscan/internal/model"
)

func candles(n int) []model.Candle {
	t0 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	out := make([]model.Candle, n)
	for i := range out {
		out[i] = model.Candle{Date: t0.Add(time.Duration(i) * time.Hour), Open: 1, High: 1, Low: 1, Close: 1}
	}
	return out
}

func series(n int, at map[int]float64) []indicator.Sample {
	out := make([]indicator.Sample, n)
	for i := range out {
		out[i] = indicator.Sample{A: 50, Ready: true}
	}
	for i, v := range at {
		out[i].A = v
	}
	return out
}

func TestDetect_Bullish(t *testing.T) {
	minima := []model.Point{{Index: 3, Price: 100}, {Index: 10, Price: 95}}
	src := Source{Name: "RSI(14)", Values: series(12, map[int]float64{3: 25, 10: 35}), Line: lineA}
	cs := candles(12)

	got := Detect(nil, minima, []Source{src}, cs)
	require.Len(t, got, 1)
	assert.Equal(t, model.DivergenceBullish, got[0].Type)
	assert.Equal(t, 10, got[0].Index)
	assert.Equal(t, cs[10].Date, got[0].Date)
	assert.Equal(t, "RSI(14)", got[0].Indicator)
}

func TestDetect_Bearish(t *testing.T) {
	maxima := []model.Point{{Index: 2, Price: 100}, {Index: 8, Price: 104}}
	src := Source{Name: "RSI(14)", Values: series(10, map[int]float64{2: 75, 8: 65}), Line: lineA}

	got := Detect(maxima, nil, []Source{src}, candles(10))
	require.Len(t, got, 1)
	assert.Equal(t, model.DivergenceBearish, got[0].Type)
}

func TestDetect_NoDivergenceWhenAligned(t *testing.T) {
	maxima := []model.Point{{Index: 2, Price: 100}, {Index: 8, Price: 104}}
	src := Source{Name: "RSI(14)", Values: series(10, map[int]float64{2: 65, 8: 75}), Line: lineA}
	assert.Empty(t, Detect(maxima, nil, []Source{src}, candles(10)))
}

func TestDetect_SkipsWarmupAndOutOfRange(t *testing.T) {
	minima := []model.Point{{Index: 1, Price: 100}, {Index: 5, Price: 95}}
	values := series(8, map[int]float64{1: 20, 5: 30})
	values[1].Ready = false
	src := Source{Name: "RSI(14)", Values: values, Line: lineA}
	assert.Empty(t, Detect(nil, minima, []Source{src}, candles(8)))

	far := []model.Point{{Index: 1, Price: 100}, {Index: 20, Price: 95}}
	assert.Empty(t, Detect(nil, far, []Source{src}, candles(8)))
}

func TestSources_FollowsBank(t *testing.T) {
	cfg := config.Default().Engine.Indicators
	cfg.Stoch = false
	bank, err := indicator.NewBank(cfg)
	require.NoError(t, err)

	var names []string
	for _, s := range Sources(bank) {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{bank.RSI().Name(), bank.MACD().Name()}, names)
}
