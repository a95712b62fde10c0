// Package engine runs the live analysis: one instrument and trader per
// symbol, fed by the tick router, with every event fanned out to storage,
// the record publisher, alerts and the API snapshot store.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chartscan/config"
	"chartscan/internal/api"
	"chartscan/internal/backtest"
	"chartscan/internal/logger"
	"chartscan/internal/marketdata/bus"
	"chartscan/internal/metrics"
	"chartscan/internal/model"
	"chartscan/internal/notification"
	"chartscan/internal/portfolio"
	sqlitestore "chartscan/internal/store/sqlite"
	"chartscan/internal/strategy"
)

const (
	laneSize      = 1024
	warmupTimeout = 30 * time.Second
)

// ErrSymbolNotAllowed rejects ticks of symbols outside the configured list.
var ErrSymbolNotAllowed = errors.New("engine: symbol not configured")

// History is the stored candle history instruments warm up from.
type History interface {
	ReadCandles(ctx context.Context, symbol string, tf model.TimeFrame, from, to time.Time) ([]model.Candle, error)
	LastDate(ctx context.Context, symbol string, tf model.TimeFrame) (time.Time, error)
}

// Deps are the collaborators of a Service. Everything but Strategies is
// optional; a nil sink is skipped.
type Deps struct {
	Strategies *strategy.Engine
	Accounts   backtest.Accounts
	History    History
	Candles    chan<- sqlitestore.Record
	Journal    model.TradeJournal
	Publisher  model.RecordPublisher
	Alerts     chan<- notification.Alert
	Snapshots  *api.SnapshotStore
	Metrics    *metrics.Metrics
	Health     *metrics.HealthStatus
}

// Service owns the per-symbol workers.
type Service struct {
	cfg     config.Config
	deps    Deps
	allowed map[string]struct{}
	log     zerolog.Logger

	mu      sync.RWMutex
	workers map[string]*Worker
}

// New creates a Service. An empty cfg.Symbols accepts every symbol.
func New(cfg config.Config, deps Deps) (*Service, error) {
	if deps.Strategies == nil {
		return nil, fmt.Errorf("engine: strategies required")
	}
	if deps.Accounts.Ledger == nil {
		deps.Accounts = backtest.NewAccounts(cfg.Backtest, portfolio.DefaultRiskLimits())
	}
	s := &Service{
		cfg:     cfg,
		deps:    deps,
		log:     logger.For("engine"),
		workers: make(map[string]*Worker),
	}
	if len(cfg.Symbols) > 0 {
		s.allowed = make(map[string]struct{}, len(cfg.Symbols))
		for _, sym := range cfg.Symbols {
			s.allowed[sym] = struct{}{}
		}
	}
	return s, nil
}

// Accounts returns the books shared by every worker.
func (s *Service) Accounts() backtest.Accounts { return s.deps.Accounts }

// Run routes ticks to their workers until ticks closes or ctx is
// cancelled, and returns once every worker drained its lane.
func (s *Service) Run(ctx context.Context, ticks <-chan model.Tick) {
	router := bus.NewRouter(laneSize, s.NewWorker)
	router.OnDrop = s.deps.Metrics.RouterDropped

	s.log.Info().
		Str("timeframe", s.cfg.TimeFrame.String()).
		Strs("symbols", s.cfg.Symbols).
		Strs("strategies", s.deps.Strategies.Names()).
		Msg("engine started")
	router.Run(ctx, ticks)
	s.log.Info().Int("instruments", len(s.Symbols())).Msg("engine stopped")
}

// NewWorker builds and warms up the worker of symbol. It is the router's
// factory, so it runs once per symbol.
func (s *Service) NewWorker(symbol string) (bus.Handler, error) {
	if s.allowed != nil {
		if _, ok := s.allowed[symbol]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrSymbolNotAllowed, symbol)
		}
	}
	sess, err := backtest.NewSession(symbol, s.cfg, s.deps.Strategies, s.deps.Accounts)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", symbol, err)
	}
	w := &Worker{
		svc:     s,
		session: sess,
		log:     s.log.With().Str("symbol", symbol).Logger(),
	}
	if err := w.warmUp(); err != nil {
		w.log.Warn().Err(err).Msg("warm-up failed, starting cold")
	}

	s.mu.Lock()
	s.workers[symbol] = w
	symbols := s.symbolsLocked()
	s.mu.Unlock()

	s.deps.Metrics.InstrumentsActive(len(symbols))
	if s.deps.Health != nil {
		s.deps.Health.SetInstruments(symbols)
	}
	return w, nil
}

// Worker returns the worker of symbol, if one was started.
func (s *Service) Worker(symbol string) (*Worker, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workers[symbol]
	return w, ok
}

// Symbols lists the symbols with a worker, sorted.
func (s *Service) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.symbolsLocked()
}

func (s *Service) symbolsLocked() []string {
	out := make([]string, 0, len(s.workers))
	for sym := range s.workers {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}
