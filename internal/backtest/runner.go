package backtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"chartscan/config"
	"chartscan/internal/instrument"
	"chartscan/internal/logger"
	"chartscan/internal/metrics"
	"chartscan/internal/model"
	"chartscan/internal/portfolio"
	"chartscan/internal/strategy"
)

// Result is the outcome of a backtest run.
type Result struct {
	Summary  portfolio.Summary `json:"summary"`
	Trades   []model.TradeOut  `json:"trades"`
	Ticks    int               `json:"ticks"`
	Bars     int               `json:"bars"`
	Skipped  int               `json:"skipped"`
	Patterns int               `json:"patterns"`
	Breaks   map[string]int    `json:"breakouts"`
	Signals  int               `json:"signals"`
	Symbols  []string          `json:"symbols"`
	Elapsed  time.Duration     `json:"elapsed"`
}

// Session is one instrument with its trader.
type Session struct {
	Instrument *instrument.Instrument
	Trader     *Trader
}

// Runner replays ticks through instruments, strategies and the simulated
// order book.
type Runner struct {
	cfg        config.Config
	strategies *strategy.Engine
	acc        Accounts
	journal    model.TradeJournal
	metrics    *metrics.Metrics
	sessions   map[string]*Session
	log        zerolog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithJournal records every fill in j.
func WithJournal(j model.TradeJournal) Option { return func(r *Runner) { r.journal = j } }

// WithMetrics reports progress to m.
func WithMetrics(m *metrics.Metrics) Option { return func(r *Runner) { r.metrics = m } }

// WithRiskLimits replaces the default risk limits.
func WithRiskLimits(l portfolio.RiskLimits) Option {
	return func(r *Runner) { r.acc = NewAccounts(r.cfg.Backtest, l) }
}

// NewRunner creates a Runner for the instruments of cfg.
func NewRunner(cfg config.Config, strategies *strategy.Engine, opts ...Option) *Runner {
	r := &Runner{
		cfg:        cfg,
		strategies: strategies,
		acc:        NewAccounts(cfg.Backtest, portfolio.DefaultRiskLimits()),
		sessions:   make(map[string]*Session),
		log:        logger.For("backtest"),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// NewSession builds the instrument of symbol and its trader.
func NewSession(symbol string, cfg config.Config, strategies *strategy.Engine, acc Accounts) (*Session, error) {
	inst, err := instrument.New(instrument.Config{
		Symbol:    symbol,
		Market:    cfg.Market,
		TimeFrame: cfg.TimeFrame,
		Engine:    cfg.Engine,
	})
	if err != nil {
		return nil, err
	}
	return &Session{Instrument: inst, Trader: NewTrader(inst, strategies, cfg, acc)}, nil
}

// Step is what one tick did to a session.
type Step struct {
	Events instrument.Events
	Report Report
}

// Step feeds t to the instrument and, when t closed a bar, lets the trader
// act on that bar.
func (s *Session) Step(t model.Tick) (Step, error) {
	if _, err := s.Instrument.Next(t); err != nil {
		return Step{}, err
	}
	st := Step{Events: s.Instrument.Events()}
	if len(st.Events.Closed) > 0 {
		// The bar that just closed sits right before the one t opened.
		st.Report = s.Trader.OnClose(s.Instrument.Len() - 2)
	}
	return st, nil
}

// Session returns the session of symbol, creating it on first use.
func (r *Runner) Session(symbol string) (*Session, error) {
	if s, ok := r.sessions[symbol]; ok {
		return s, nil
	}
	s, err := NewSession(symbol, r.cfg, r.strategies, r.acc)
	if err != nil {
		return nil, err
	}
	r.sessions[symbol] = s
	return s, nil
}

// Run consumes ticks until the channel closes or ctx is canceled, then
// closes every open trade at the last price.
func (r *Runner) Run(ctx context.Context, ticks <-chan model.Tick) (Result, error) {
	start := time.Now()
	res := Result{Breaks: make(map[string]int)}

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			runErr = ctx.Err()
			break loop
		case t, ok := <-ticks:
			if !ok {
				break loop
			}
			res.Ticks++
			if err := r.step(ctx, t, &res); err != nil {
				runErr = err
				break loop
			}
		}
	}

	for sym, s := range r.sessions {
		if n := s.Instrument.Len(); n > 0 {
			r.record(ctx, s.Trader.Flatten(n-1))
		}
		res.Symbols = append(res.Symbols, sym)
	}
	sort.Strings(res.Symbols)
	res.Summary = r.acc.Ledger.GetSummary()
	res.Trades = r.acc.Ledger.GetTrades()
	res.Elapsed = time.Since(start)

	r.log.Info().
		Int("ticks", res.Ticks).
		Int("bars", res.Bars).
		Int("trades", res.Summary.TotalTrades).
		Str("net_profit", res.Summary.NetProfit.String()).
		Dur("elapsed", res.Elapsed).
		Msg("backtest complete")
	return res, runErr
}

func (r *Runner) step(ctx context.Context, t model.Tick, res *Result) error {
	s, err := r.Session(t.Symbol)
	if err != nil {
		return fmt.Errorf("session %q: %w", t.Symbol, err)
	}
	began := time.Now()
	st, err := s.Step(t)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrInvalidCandle):
			r.metrics.TickRejected("invalid")
		case errors.Is(err, model.ErrStaleTick):
			r.metrics.TickRejected("stale")
		default:
			return fmt.Errorf("%s: %w", t.Symbol, err)
		}
		res.Skipped++
		return nil
	}
	r.metrics.TickProcessed(t.Symbol, time.Since(began))

	ev := st.Events
	res.Patterns += len(ev.Patterns)
	for _, p := range ev.Patterns {
		r.metrics.PatternFound(p)
	}
	for _, p := range ev.Breakouts {
		res.Breaks[p.Active.Status.String()]++
		r.metrics.PatternBreakout(p)
	}
	for _, d := range ev.Divergences {
		r.metrics.DivergenceFound(d)
	}
	if len(ev.Closed) == 0 {
		return nil
	}
	res.Bars += len(ev.Closed)
	r.metrics.CandleClosed(t.Symbol)
	res.Signals += len(st.Report.Signals)
	r.record(ctx, st.Report)
	return nil
}

func (r *Runner) record(ctx context.Context, rep Report) {
	for _, o := range rep.Orders {
		r.metrics.OrderChanged(o)
	}
	if r.journal != nil {
		for _, in := range rep.TradeIns {
			if err := r.journal.RecordEntry(ctx, in); err != nil {
				r.log.Error().Err(err).Msg("journal entry")
			}
		}
	}
	for _, out := range rep.TradeOuts {
		if r.journal != nil {
			if err := r.journal.RecordExit(ctx, out); err != nil {
				r.log.Error().Err(err).Msg("journal exit")
			}
		}
		r.metrics.TradeClosed(out, r.acc.Ledger.Equity().InexactFloat64())
	}
}
