package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartscan/config"
	"chartscan/internal/api"
	"chartscan/internal/backtest"
	"chartscan/internal/instrument"
	"chartscan/internal/model"
	"chartscan/internal/notification"
	"chartscan/internal/pattern"
	sqlitestore "chartscan/internal/store/sqlite"
	"chartscan/internal/strategy"
)

var t0 = time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

type scripted map[int]strategy.Action

func (s scripted) Name() string { return "scripted" }

func (s scripted) OnCandle(m strategy.Market, index int) *strategy.Signal {
	a, ok := s[index]
	if !ok {
		return nil
	}
	return &strategy.Signal{StrategyName: "scripted", Action: a, Symbol: m.Symbol(), Index: index}
}

type fakePublisher struct {
	mu        sync.Mutex
	patterns  int
	orders    int
	ins       []model.TradeIn
	outs      []model.TradeOut
	snapshots map[string]int
}

func newFakePublisher() *fakePublisher { return &fakePublisher{snapshots: make(map[string]int)} }

func (p *fakePublisher) PublishPattern(context.Context, string, model.TimeFrame, model.Pattern) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.patterns++
	return nil
}

func (p *fakePublisher) PublishOrder(context.Context, model.Order) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orders++
	return nil
}

func (p *fakePublisher) PublishTradeIn(_ context.Context, in model.TradeIn) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ins = append(p.ins, in)
	return nil
}

func (p *fakePublisher) PublishTradeOut(_ context.Context, out model.TradeOut) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outs = append(p.outs, out)
	return nil
}

func (p *fakePublisher) SaveSnapshot(_ context.Context, symbol string, _ model.TimeFrame, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(data) > 0 {
		p.snapshots[symbol]++
	}
	return nil
}

func (p *fakePublisher) Close() error { return nil }

type fakeJournal struct {
	mu    sync.Mutex
	ins   []model.TradeIn
	outs  []model.TradeOut
	fails bool
}

func (j *fakeJournal) RecordEntry(_ context.Context, in model.TradeIn) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ins = append(j.ins, in)
	if j.fails {
		return errors.New("disk full")
	}
	return nil
}

func (j *fakeJournal) RecordExit(_ context.Context, out model.TradeOut) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.outs = append(j.outs, out)
	if j.fails {
		return errors.New("disk full")
	}
	return nil
}

func (j *fakeJournal) Close() error { return nil }

type fakeHistory struct {
	candles []model.Candle
	err     error
	from    time.Time
}

func (h *fakeHistory) LastDate(context.Context, string, model.TimeFrame) (time.Time, error) {
	if h.err != nil || len(h.candles) == 0 {
		return time.Time{}, h.err
	}
	return h.candles[len(h.candles)-1].Date, nil
}

func (h *fakeHistory) ReadCandles(_ context.Context, _ string, _ model.TimeFrame, from, _ time.Time) ([]model.Candle, error) {
	h.from = from
	var out []model.Candle
	for _, c := range h.candles {
		if !c.Date.Before(from) {
			out = append(out, c)
		}
	}
	return out, nil
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.TimeFrame = model.M1
	cfg.Engine.NumBars = 500
	cfg.Symbols = []string{"EURUSD"}
	return cfg
}

func bar(sym string, i int, b [4]float64) model.Tick {
	return model.Tick{Symbol: sym, Date: t0.Add(time.Duration(i) * time.Minute),
		Open: b[0], High: b[1], Low: b[2], Close: b[3], Volume: 1}
}

var flat = [4]float64{100, 101, 99, 100}

func TestService_LiveRoundTrip(t *testing.T) {
	pub := newFakePublisher()
	journal := &fakeJournal{}
	candles := make(chan sqlitestore.Record, 64)
	alerts := make(chan notification.Alert, 256)
	snaps := api.NewSnapshotStore()

	svc, err := New(testConfig(), Deps{
		Strategies: strategy.NewEngine(scripted{20: strategy.ActionBuy}),
		Candles:    candles,
		Journal:    journal,
		Publisher:  pub,
		Alerts:     alerts,
		Snapshots:  snaps,
	})
	require.NoError(t, err)

	ticks := make(chan model.Tick, 64)
	for i := 0; i < 30; i++ {
		b := flat
		if i == 22 {
			b = [4]float64{100, 105, 100, 104.5}
		}
		ticks <- bar("EURUSD", i, b)
		if i == 5 {
			ticks <- bar("GBPUSD", i, flat)
		}
	}
	close(ticks)
	svc.Run(context.Background(), ticks)

	assert.Equal(t, []string{"EURUSD"}, svc.Symbols())
	assert.Len(t, candles, 29)

	require.Len(t, journal.ins, 1)
	require.Len(t, journal.outs, 1)
	assert.Equal(t, model.EntryLong, journal.ins[0].Type)
	assert.Equal(t, model.TakeProfit, journal.outs[0].Type)

	assert.Len(t, pub.ins, 1)
	assert.Len(t, pub.outs, 1)
	assert.Positive(t, pub.orders)
	assert.Equal(t, 29, pub.snapshots["EURUSD"])

	close(alerts)
	var titles []string
	for a := range alerts {
		titles = append(titles, a.Title)
	}
	assert.Contains(t, titles, fmt.Sprintf("EURUSD %s", model.EntryLong))
	assert.Contains(t, titles, fmt.Sprintf("EURUSD %s", model.TakeProfit))

	v, ok := snaps.Get("EURUSD")
	require.True(t, ok)
	assert.Equal(t, 30, v.Snapshot.Bars)

	assert.Equal(t, 1, svc.Accounts().Ledger.GetSummary().TotalTrades)
}

func TestService_RejectsUnknownSymbol(t *testing.T) {
	svc, err := New(testConfig(), Deps{Strategies: strategy.NewEngine()})
	require.NoError(t, err)

	_, err = svc.NewWorker("GBPUSD")
	assert.ErrorIs(t, err, ErrSymbolNotAllowed)
	_, ok := svc.Worker("GBPUSD")
	assert.False(t, ok)
}

func TestService_AcceptsAnySymbolWithoutList(t *testing.T) {
	cfg := testConfig()
	cfg.Symbols = nil
	svc, err := New(cfg, Deps{Strategies: strategy.NewEngine()})
	require.NoError(t, err)

	_, err = svc.NewWorker("GBPUSD")
	require.NoError(t, err)
	assert.Equal(t, []string{"GBPUSD"}, svc.Symbols())
}

func TestNew_RequiresStrategies(t *testing.T) {
	_, err := New(testConfig(), Deps{})
	assert.Error(t, err)
}

func TestWorker_WarmsUpFromHistory(t *testing.T) {
	hist := &fakeHistory{}
	for i := 0; i < 10; i++ {
		hist.candles = append(hist.candles, model.Candle{
			Date: t0.Add(time.Duration(i) * time.Minute), Open: 100, High: 101, Low: 99, Close: 100, Volume: 1, IsClosed: true,
		})
	}
	candles := make(chan sqlitestore.Record, 4)
	snaps := api.NewSnapshotStore()
	svc, err := New(testConfig(), Deps{
		Strategies: strategy.NewEngine(),
		History:    hist,
		Candles:    candles,
		Snapshots:  snaps,
	})
	require.NoError(t, err)

	h, err := svc.NewWorker("EURUSD")
	require.NoError(t, err)
	w := h.(*Worker)

	assert.Equal(t, t0.Add(9*time.Minute).Add(-499*time.Minute), hist.from)
	assert.Equal(t, 10, w.Session().Instrument.Len())
	v, ok := snaps.Get("EURUSD")
	require.True(t, ok)
	assert.Equal(t, 10, v.Snapshot.Bars)
	assert.Empty(t, candles, "history is not persisted again")

	w.Handle(context.Background(), bar("EURUSD", 10, flat))
	assert.Equal(t, 11, w.Session().Instrument.Len())
	require.Len(t, candles, 1)
	rec := <-candles
	assert.Equal(t, t0.Add(9*time.Minute), rec.Candle.Date)
	assert.Equal(t, model.M1, rec.TimeFrame)
}

func TestWorker_HistoryFailureStartsCold(t *testing.T) {
	svc, err := New(testConfig(), Deps{
		Strategies: strategy.NewEngine(),
		History:    &fakeHistory{err: errors.New("locked")},
	})
	require.NoError(t, err)

	h, err := svc.NewWorker("EURUSD")
	require.NoError(t, err)
	assert.Equal(t, 0, h.(*Worker).Session().Instrument.Len())
}

func TestWorker_IgnoresBadTicksAndSinkErrors(t *testing.T) {
	journal := &fakeJournal{fails: true}
	alerts := make(chan notification.Alert)
	svc, err := New(testConfig(), Deps{
		Strategies: strategy.NewEngine(scripted{1: strategy.ActionBuy}),
		Journal:    journal,
		Alerts:     alerts,
	})
	require.NoError(t, err)
	h, err := svc.NewWorker("EURUSD")
	require.NoError(t, err)
	w := h.(*Worker)
	ctx := context.Background()

	w.Handle(ctx, bar("EURUSD", 0, flat))
	w.Handle(ctx, bar("EURUSD", 1, [4]float64{100, 101, 99, 0}))
	assert.Equal(t, 1, w.Session().Instrument.Len())

	for i := 1; i < 4; i++ {
		w.Handle(ctx, bar("EURUSD", i, flat))
	}
	assert.Equal(t, 4, w.Session().Instrument.Len())
	assert.Len(t, journal.ins, 1, "entry attempted despite the failing journal and the unread alert queue")
}

func TestWorker_OneBreakoutAlertPerOpenBar(t *testing.T) {
	alerts := make(chan notification.Alert, 16)
	pub := newFakePublisher()
	svc, err := New(testConfig(), Deps{Strategies: strategy.NewEngine(), Publisher: pub, Alerts: alerts})
	require.NoError(t, err)
	h, err := svc.NewWorker("EURUSD")
	require.NoError(t, err)
	w := h.(*Worker)

	candles := make([]model.Candle, 17)
	for i := range candles {
		candles[i] = model.Candle{Date: t0.Add(time.Duration(i) * time.Minute), Open: 95, High: 96, Low: 94, Close: 95, IsClosed: true}
	}
	maxima := []model.Point{{Index: 0, Price: 100}, {Index: 10, Price: 100}}
	minima := []model.Point{{Index: 5, Price: 90}, {Index: 15, Price: 90}}
	d := pattern.New(testConfig().Engine.Patterns)
	var set pattern.Set
	require.Len(t, set.Merge(model.PatternLocal, d.Detect(model.PatternLocal, maxima, minima, candles)), 1)

	for _, px := range []float64{101, 99, 101, 99} {
		candles[16].Close, candles[16].High = px, max(px, 96)
		ev := instrument.Events{Breakouts: set.Refresh(d, candles)}
		w.onEvents(context.Background(), backtest.Step{Events: ev})
	}
	pending := set.Local[0]
	require.Equal(t, model.StatusPending, pending.Active.Status)
	w.onEvents(context.Background(), backtest.Step{Events: instrument.Events{Breakouts: []model.Pattern{pending}}})

	close(alerts)
	var got []notification.Alert
	for a := range alerts {
		got = append(got, a)
	}
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Title, model.StatusActive.String())
	assert.Equal(t, 1, pub.patterns)
}
