// Package metrics exposes the engine's Prometheus metrics and the health
// endpoint.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"chartscan/internal/model"
)

// Metrics holds all Prometheus metrics for the analysis engine.
// Helper methods are safe on a nil *Metrics so components can run without
// a registry (tests, one-off backtests).
type Metrics struct {
	TicksTotal     *prometheus.CounterVec // labels: symbol
	CandlesClosed  *prometheus.CounterVec // labels: symbol
	RejectedTicks  *prometheus.CounterVec // labels: reason=invalid|stale
	TickComputeDur prometheus.Histogram
	Instruments    prometheus.Gauge

	// Analysis output
	PatternsTotal    *prometheus.CounterVec // labels: type, size
	BreakoutsTotal   *prometheus.CounterVec // labels: type, status
	DivergencesTotal *prometheus.CounterVec // labels: type

	// Orders and trades
	OrdersTotal  *prometheus.CounterVec // labels: type, status
	TradesClosed *prometheus.CounterVec // labels: symbol, exit
	Equity       prometheus.Gauge

	// Feed and routing backpressure
	FeedReconnects prometheus.Counter
	RouterDrops    *prometheus.CounterVec // labels: symbol

	// Storage
	RedisWriteDur   prometheus.Histogram
	SQLiteCommitDur prometheus.Histogram

	// Circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisBufferedWrites      prometheus.Counter
}

// NewMetrics creates the metrics and registers them with reg, or with the
// default registry when reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		TicksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartscan_ticks_total",
			Help: "Ticks merged into instruments",
		}, []string{"symbol"}),
		CandlesClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartscan_candles_closed_total",
			Help: "Candles closed per instrument",
		}, []string{"symbol"}),
		RejectedTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartscan_rejected_ticks_total",
			Help: "Ticks rejected as malformed or older than the open bar",
		}, []string{"reason"}),
		TickComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chartscan_tick_compute_duration_seconds",
			Help:    "Instrument update latency per tick",
			Buckets: []float64{0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		}),
		Instruments: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chartscan_instruments",
			Help: "Instruments currently tracked",
		}),

		PatternsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartscan_patterns_total",
			Help: "Chart patterns detected",
		}, []string{"type", "size"}),
		BreakoutsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartscan_pattern_breakouts_total",
			Help: "Pattern status changes after a breakout",
		}, []string{"type", "status"}),
		DivergencesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartscan_divergences_total",
			Help: "Price/oscillator divergences detected",
		}, []string{"type"}),

		OrdersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartscan_orders_total",
			Help: "Orders created, fulfilled or canceled",
		}, []string{"type", "status"}),
		TradesClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartscan_trades_closed_total",
			Help: "Round trips closed",
		}, []string{"symbol", "exit"}),
		Equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chartscan_equity",
			Help: "Realized account equity",
		}),

		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartscan_feed_reconnects_total",
			Help: "Candle feed reconnection attempts",
		}),
		RouterDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartscan_router_drops_total",
			Help: "Ticks dropped because an instrument queue was full",
		}, []string{"symbol"}),

		RedisWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chartscan_redis_write_duration_seconds",
			Help:    "Redis write latency",
			Buckets: prometheus.DefBuckets,
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chartscan_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chartscan_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartscan_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisBufferedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartscan_redis_buffered_writes_total",
			Help: "Writes buffered locally during Redis circuit breaker open state",
		}),
	}

	reg.MustRegister(
		m.TicksTotal,
		m.CandlesClosed,
		m.RejectedTicks,
		m.TickComputeDur,
		m.Instruments,
		m.PatternsTotal,
		m.BreakoutsTotal,
		m.DivergencesTotal,
		m.OrdersTotal,
		m.TradesClosed,
		m.Equity,
		m.FeedReconnects,
		m.RouterDrops,
		m.RedisWriteDur,
		m.SQLiteCommitDur,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisBufferedWrites,
	)

	return m
}

// TickProcessed records one merged tick and its compute time.
func (m *Metrics) TickProcessed(symbol string, d time.Duration) {
	if m == nil {
		return
	}
	m.TicksTotal.WithLabelValues(symbol).Inc()
	m.TickComputeDur.Observe(d.Seconds())
}

// TickRejected counts a tick the instrument refused.
func (m *Metrics) TickRejected(reason string) {
	if m == nil {
		return
	}
	m.RejectedTicks.WithLabelValues(reason).Inc()
}

// CandleClosed counts a closed candle.
func (m *Metrics) CandleClosed(symbol string) {
	if m == nil {
		return
	}
	m.CandlesClosed.WithLabelValues(symbol).Inc()
}

// PatternFound counts a newly detected pattern.
func (m *Metrics) PatternFound(p model.Pattern) {
	if m == nil {
		return
	}
	m.PatternsTotal.WithLabelValues(p.Type.String(), p.Size.String()).Inc()
}

// PatternBreakout counts a breakout status change.
func (m *Metrics) PatternBreakout(p model.Pattern) {
	if m == nil {
		return
	}
	m.BreakoutsTotal.WithLabelValues(p.Type.String(), p.Active.Status.String()).Inc()
}

// DivergenceFound counts a detected divergence.
func (m *Metrics) DivergenceFound(d model.Divergence) {
	if m == nil {
		return
	}
	m.DivergencesTotal.WithLabelValues(d.Type.String()).Inc()
}

// OrderChanged counts an order in its current status.
func (m *Metrics) OrderChanged(o model.Order) {
	if m == nil {
		return
	}
	m.OrdersTotal.WithLabelValues(o.Type.String(), o.Status.String()).Inc()
}

// TradeClosed counts a round trip and publishes the resulting equity.
func (m *Metrics) TradeClosed(out model.TradeOut, equity float64) {
	if m == nil {
		return
	}
	m.TradesClosed.WithLabelValues(out.TradeIn.Symbol, out.Type.String()).Inc()
	m.Equity.Set(equity)
}

// RouterDropped counts a tick dropped in front of a busy instrument.
func (m *Metrics) RouterDropped(symbol string) {
	if m == nil {
		return
	}
	m.RouterDrops.WithLabelValues(symbol).Inc()
}

// InstrumentsActive publishes the number of live instruments.
func (m *Metrics) InstrumentsActive(n int) {
	if m == nil {
		return
	}
	m.Instruments.Set(float64(n))
}

// FeedReconnected counts a reconnect of the market data feed.
func (m *Metrics) FeedReconnected() {
	if m == nil {
		return
	}
	m.FeedReconnects.Inc()
}
