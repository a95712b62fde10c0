package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"chartscan/internal/backtest"
	"chartscan/internal/logger"
	"chartscan/internal/model"
	"chartscan/internal/notification"
	sqlitestore "chartscan/internal/store/sqlite"
)

// Worker drives the instrument and trader of one symbol. Handle is only
// called from the symbol's router lane.
type Worker struct {
	svc     *Service
	session *backtest.Session
	log     zerolog.Logger
}

// Session exposes the instrument and trader. Only safe to use once the
// router stopped.
func (w *Worker) Session() *backtest.Session { return w.session }

// warmUp loads the last MaxBars stored candles into the instrument.
func (w *Worker) warmUp() error {
	h := w.svc.deps.History
	if h == nil {
		return nil
	}
	inst := w.session.Instrument
	ctx, cancel := context.WithTimeout(context.Background(), warmupTimeout)
	defer cancel()

	last, err := h.LastDate(ctx, inst.Symbol(), inst.TimeFrame())
	if err != nil {
		return fmt.Errorf("last date: %w", err)
	}
	if last.IsZero() {
		return nil
	}
	from := last.Add(-time.Duration(inst.MaxBars()-1) * inst.TimeFrame().Duration())
	candles, err := h.ReadCandles(ctx, inst.Symbol(), inst.TimeFrame(), from, time.Time{})
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}
	history := make([]model.Tick, len(candles))
	for i, c := range candles {
		history[i] = c.Tick(inst.Symbol())
	}
	if err := inst.SetData(history); err != nil {
		return fmt.Errorf("set data: %w", err)
	}
	w.publishSnapshot(ctx)
	w.log.Info().Int("bars", inst.Len()).Time("last", last).Msg("warmed up from history")
	return nil
}

// Handle merges t and fans out whatever it caused.
func (w *Worker) Handle(ctx context.Context, t model.Tick) {
	d := w.svc.deps
	began := time.Now()
	st, err := w.session.Step(t)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrInvalidCandle):
			d.Metrics.TickRejected("invalid")
		case errors.Is(err, model.ErrStaleTick):
			d.Metrics.TickRejected("stale")
		default:
			w.log.Error().Err(err).Msg("tick failed")
			return
		}
		w.log.Debug().Err(err).Time("date", t.Date).Msg("tick rejected")
		return
	}
	d.Metrics.TickProcessed(t.Symbol, time.Since(began))
	if d.Health != nil {
		d.Health.SetLastTickTime(time.Now())
	}

	closed := st.Events.Closed
	if len(closed) > 0 {
		ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(t.Symbol, closed[len(closed)-1].Date))
	}
	w.onEvents(ctx, st)
	if len(closed) == 0 {
		return
	}
	w.onReport(ctx, st.Report)
	w.publishSnapshot(ctx)
}

func (w *Worker) onEvents(ctx context.Context, st backtest.Step) {
	d := w.svc.deps
	inst := w.session.Instrument
	sym, tf := inst.Symbol(), inst.TimeFrame()
	ev := st.Events

	for _, c := range ev.Closed {
		d.Metrics.CandleClosed(sym)
		if d.Candles != nil {
			select {
			case d.Candles <- sqlitestore.Record{Symbol: sym, TimeFrame: tf, Candle: c}:
			case <-ctx.Done():
			}
		}
	}
	for _, p := range ev.Patterns {
		d.Metrics.PatternFound(p)
		w.publish("pattern", func() error { return d.Publisher.PublishPattern(ctx, sym, tf, p) })
		w.alert(notification.PatternAlert(sym, tf, p))
	}
	for _, p := range ev.Breakouts {
		if p.Active.Status == model.StatusPending {
			continue
		}
		d.Metrics.PatternBreakout(p)
		w.publish("breakout", func() error { return d.Publisher.PublishPattern(ctx, sym, tf, p) })
		w.alert(notification.BreakoutAlert(sym, tf, p))
	}
	for _, dv := range ev.Divergences {
		d.Metrics.DivergenceFound(dv)
		w.alert(notification.DivergenceAlert(sym, tf, dv))
	}
}

func (w *Worker) onReport(ctx context.Context, rep backtest.Report) {
	d := w.svc.deps
	log := logger.Ctx(ctx, w.log)
	for _, sig := range rep.Signals {
		log.Info().
			Str("strategy", sig.StrategyName).
			Str("action", string(sig.Action)).
			Int("index", sig.Index).
			Str("reason", sig.Reason).
			Msg("signal")
	}
	for _, o := range rep.Orders {
		d.Metrics.OrderChanged(o)
		w.publish("order", func() error { return d.Publisher.PublishOrder(ctx, o) })
	}
	for _, in := range rep.TradeIns {
		if d.Journal != nil {
			if err := d.Journal.RecordEntry(ctx, in); err != nil {
				log.Error().Err(err).Str("trade_id", in.ID).Msg("journal entry")
			}
		}
		w.publish("trade in", func() error { return d.Publisher.PublishTradeIn(ctx, in) })
		w.alert(notification.TradeInAlert(in))
	}
	for _, out := range rep.TradeOuts {
		if d.Journal != nil {
			if err := d.Journal.RecordExit(ctx, out); err != nil {
				log.Error().Err(err).Str("trade_id", out.TradeIn.ID).Msg("journal exit")
			}
		}
		d.Metrics.TradeClosed(out, d.Accounts.Ledger.Equity().InexactFloat64())
		w.publish("trade out", func() error { return d.Publisher.PublishTradeOut(ctx, out) })
		w.alert(notification.TradeOutAlert(out))
	}
}

func (w *Worker) publishSnapshot(ctx context.Context) {
	d := w.svc.deps
	snap := w.session.Instrument.Snapshot()
	if d.Snapshots != nil {
		d.Snapshots.Put(snap, w.session.Trader.Orders())
	}
	if d.Publisher == nil {
		return
	}
	data, err := json.Marshal(snap)
	if err != nil {
		w.log.Error().Err(err).Msg("encode snapshot")
		return
	}
	w.publish("snapshot", func() error { return d.Publisher.SaveSnapshot(ctx, snap.Symbol, snap.TimeFrame, data) })
}

func (w *Worker) publish(what string, fn func() error) {
	if w.svc.deps.Publisher == nil {
		return
	}
	if err := fn(); err != nil {
		w.log.Warn().Err(err).Str("record", what).Msg("publish failed")
	}
}

// alert never blocks the lane; a full alert queue drops the alert.
func (w *Worker) alert(a notification.Alert) {
	ch := w.svc.deps.Alerts
	if ch == nil {
		return
	}
	select {
	case ch <- a:
	default:
		w.log.Warn().Str("title", a.Title).Msg("alert queue full, dropped")
	}
}
