// cmd/engine runs the live analysis engine: market data from the websocket
// feed, per-symbol instruments with paper trading, and the record fan-out
// to SQLite, Redis, alerts and the HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"chartscan/config"
	"chartscan/internal/api"
	"chartscan/internal/backtest"
	"chartscan/internal/engine"
	"chartscan/internal/execution"
	"chartscan/internal/gateway"
	"chartscan/internal/logger"
	"chartscan/internal/marketdata/bus"
	"chartscan/internal/marketdata/wsfeed"
	"chartscan/internal/metrics"
	"chartscan/internal/model"
	"chartscan/internal/notification"
	"chartscan/internal/portfolio"
	redisstore "chartscan/internal/store/redis"
	sqlitestore "chartscan/internal/store/sqlite"
	"chartscan/internal/strategy"
)

func main() {
	strategies := flag.String("strategies", "ema_rsi,breakout", "Comma-separated strategies: ema, ema_rsi, breakout, breakout_extrema")
	journalPath := flag.String("journal", "data/trades.db", "Path to the trade journal database")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger.Init("engine", cfg.LogLevel, cfg.LogPretty)
	log := logger.For("main")

	if cfg.FeedURL == "" {
		log.Fatal().Msg("FEED_URL is required")
	}
	strat, err := strategy.FromNames(strings.Split(*strategies, ","))
	if err != nil {
		log.Fatal().Err(err).Msg("strategies")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- Metrics & health ----
	prom := metrics.NewMetrics(nil)
	health := metrics.NewHealthStatus()
	health.StaleAfter = 2 * time.Minute
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- SQLite candle store (off the hot path) ----
	for _, p := range []string{cfg.SQLitePath, *journalPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			log.Fatal().Err(err).Str("path", p).Msg("create data dir")
		}
	}
	store, err := sqlitestore.Open(cfg.SQLitePath)
	if err != nil {
		log.Fatal().Err(err).Msg("sqlite open failed")
	}
	defer store.Close()
	store.OnCommit = func(d time.Duration) { prom.SQLiteCommitDur.Observe(d.Seconds()) }

	candleCh := make(chan sqlitestore.Record, 5000)
	storeDone := make(chan struct{})
	go func() {
		store.Run(ctx, candleCh)
		close(storeDone)
	}()

	journal, err := execution.NewJournal(*journalPath)
	if err != nil {
		log.Fatal().Err(err).Msg("journal open failed")
	}
	defer journal.Close()

	// ---- Redis publisher behind a circuit breaker ----
	var publisher model.RecordPublisher
	pub, err := redisstore.New(redisstore.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, continuing without record publishing")
	} else {
		defer pub.Close()
		pub.OnWrite = func(d time.Duration) { prom.RedisWriteDur.Observe(d.Seconds()) }
		cb := redisstore.NewCircuitBreaker(5, 10*time.Second)
		cb.OnStateChange = func(from, to redisstore.State) {
			prom.RedisCircuitBreakerState.Set(float64(to))
			if to == redisstore.StateOpen {
				prom.RedisCircuitBreakerTrips.Inc()
			}
			log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("redis circuit breaker")
		}
		bw := pub.EnableBreaker(ctx, cb, 10000)
		bw.OnBuffer = prom.RedisBufferedWrites.Inc
		publisher = pub
		health.Watch("redis", func(ctx context.Context) error { return pub.Client().Ping(ctx).Err() })
	}
	health.Watch("sqlite", store.DB().PingContext)
	health.StartLivenessChecker(ctx, 10*time.Second)

	// ---- Alerts: log locally, remote notifiers on their own lane ----
	alertCh := make(chan notification.Alert, 1000)
	alertFan := bus.NewFanOut[notification.Alert](256)
	var remote notification.Multi
	if cfg.TelegramToken != "" {
		tg, err := notification.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			log.Warn().Err(err).Msg("telegram disabled")
		} else {
			remote = append(remote, tg)
		}
	}
	if cfg.WebhookURL != "" {
		remote = append(remote, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	go notification.Run(ctx, notification.NewLogNotifier(), alertFan.Subscribe())
	if len(remote) > 0 {
		go notification.Run(ctx, remote, alertFan.Subscribe())
	}
	alertFan.OnDrop = func(idx int) {
		log.Warn().Int("subscriber", idx).Msg("alert dropped, notifier too slow")
	}
	go alertFan.Run(ctx, alertCh)

	// ---- Engine ----
	acc := backtest.NewAccounts(cfg.Backtest, portfolio.DefaultRiskLimits())
	snaps := api.NewSnapshotStore()
	svc, err := engine.New(*cfg, engine.Deps{
		Strategies: strat,
		Accounts:   acc,
		History:    store,
		Candles:    candleCh,
		Journal:    journal,
		Publisher:  publisher,
		Alerts:     alertCh,
		Snapshots:  snaps,
		Metrics:    prom,
		Health:     health,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("engine init failed")
	}

	// ---- HTTP API, with the live record stream when Redis is up ----
	apiDeps := api.Deps{
		Snapshots: snaps,
		Ledger:    acc.Ledger,
		Positions: acc.Portfolio,
		Risk:      acc.Risk,
		Trades:    journal,

		AllowOrigins: cfg.CORSOrigins,
	}
	hub := gateway.NewHub(500)
	defer hub.Close()
	if pub != nil {
		go hub.Run(ctx, pub.Client())
		apiDeps.Stream = hub
	}
	apiSrv := api.NewServer(cfg.HTTPAddr, apiDeps)
	apiSrv.Start()

	// ---- Market data feed ----
	feed, err := wsfeed.New(wsfeed.Config{URL: cfg.FeedURL, Symbols: cfg.Symbols})
	if err != nil {
		log.Fatal().Err(err).Msg("feed config")
	}
	feed.OnConnect = health.SetFeedConnected
	feed.OnReconnect = prom.FeedReconnected
	feed.OnBadMessage = func() { prom.TickRejected("malformed") }

	tickCh := make(chan model.Tick, 10000)
	go func() {
		defer close(tickCh)
		if err := feed.Start(ctx, tickCh); err != nil {
			log.Error().Err(err).Msg("feed stopped")
		}
	}()

	log.Info().
		Str("feed", cfg.FeedURL).
		Str("timeframe", cfg.TimeFrame.String()).
		Strs("strategies", strat.Names()).
		Str("api", cfg.HTTPAddr).
		Msg("all systems running")

	// Blocks until the feed stops and every worker drained.
	svc.Run(ctx, tickCh)

	// ---- Graceful shutdown ----
	log.Info().Msg("shutting down")
	close(candleCh)
	<-storeDone

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiSrv.Stop(shutCtx); err != nil {
		log.Error().Err(err).Msg("api shutdown")
	}
	if err := metricsSrv.Stop(shutCtx); err != nil {
		log.Error().Err(err).Msg("metrics shutdown")
	}

	sum := acc.Ledger.GetSummary()
	log.Info().
		Int("trades", sum.TotalTrades).
		Str("net_profit", sum.NetProfit.String()).
		Str("equity", acc.Ledger.Equity().String()).
		Msg("shutdown complete")
}
