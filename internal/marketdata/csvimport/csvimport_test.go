package csvimport

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartscan/internal/model"
)

type memWriter struct {
	calls   int
	candles []model.Candle
	err     error
}

func (w *memWriter) WriteCandles(_ context.Context, _ string, _ model.TimeFrame, candles []model.Candle) error {
	if w.err != nil {
		return w.err
	}
	w.calls++
	w.candles = append(w.candles, candles...)
	return nil
}

func (w *memWriter) Close() error { return nil }

const sample = `date,open,high,low,close,volume
2024-03-01 09:00:00,100,101,99,100.5,10
2024-03-01T09:30:00Z,100.5,103,100,102,5
1709287200,102,102.5,98,99,1
2024-03-01 09:45:00,1,1,1,1,1
oops,1,2,3
1709290800000,99,100,97,98
`

func TestRead(t *testing.T) {
	ticks, err := Read(strings.NewReader(sample), "EURUSD")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 6")
	assert.NotContains(t, err.Error(), "line 1")

	require.Len(t, ticks, 5)
	assert.Equal(t, "EURUSD", ticks[0].Symbol)
	assert.Equal(t, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), ticks[0].Date)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), ticks[2].Date)
	assert.Equal(t, time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC), ticks[4].Date)
	assert.Equal(t, 0.0, ticks[4].Volume)
	assert.Equal(t, 102.5, ticks[2].High)
}

func TestRead_NoHeader(t *testing.T) {
	ticks, err := Read(strings.NewReader("1709283600,1,2,0.5,1.5,3\n"), "X")
	require.NoError(t, err)
	require.Len(t, ticks, 1)
	assert.Equal(t, 3.0, ticks[0].Volume)
}

func TestImport_ResamplesIntoTimeFrame(t *testing.T) {
	ticks, _ := Read(strings.NewReader(sample), "EURUSD")
	w := &memWriter{}

	st, err := Import(context.Background(), w, "EURUSD", model.H1, ticks)
	require.NoError(t, err)
	assert.Equal(t, Stats{Rows: 4, Stale: 1, Candles: 3}, st)
	assert.Equal(t, 1, w.calls)

	require.Len(t, w.candles, 3)
	first := w.candles[0]
	assert.Equal(t, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), first.Date)
	assert.Equal(t, 100.0, first.Open)
	assert.Equal(t, 103.0, first.High)
	assert.Equal(t, 99.0, first.Low)
	assert.Equal(t, 102.0, first.Close)
	assert.Equal(t, 15.0, first.Volume)
	for _, c := range w.candles {
		assert.True(t, c.IsClosed)
	}
}

func TestImport_WriteError(t *testing.T) {
	ticks, _ := Read(strings.NewReader(sample), "EURUSD")
	w := &memWriter{err: errors.New("readonly")}

	_, err := Import(context.Background(), w, "EURUSD", model.H1, ticks)
	assert.ErrorContains(t, err, "readonly")
}
