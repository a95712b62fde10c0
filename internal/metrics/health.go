package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"chartscan/internal/logger"
)

// CheckFunc checks one dependency, e.g. a Redis PING.
type CheckFunc func(ctx context.Context) error

type dependency struct {
	check     CheckFunc
	ok        bool
	latencyMs float64
	err       string
}

// HealthStatus tracks the feed and the watched dependencies of the engine.
// The feed must be up for the engine to be healthy; a failing dependency
// or a feed that went quiet only degrades it.
type HealthStatus struct {
	mu  sync.RWMutex
	now func() time.Time

	// StaleAfter marks a connected feed stale when no tick arrived for
	// this long. Zero disables the check.
	StaleAfter time.Duration

	started     time.Time
	feedUp      bool
	lastTick    time.Time
	instruments []string
	deps        map[string]*dependency
	lastCheck   time.Time
}

// NewHealthStatus returns a health status with no dependencies watched.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		now:     time.Now,
		started: time.Now(),
		deps:    make(map[string]*dependency),
	}
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.feedUp = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.lastTick = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetInstruments(symbols []string) {
	h.mu.Lock()
	h.instruments = symbols
	h.mu.Unlock()
}

// Watch registers a dependency. It reports unhealthy until first checked.
func (h *HealthStatus) Watch(name string, p CheckFunc) {
	h.mu.Lock()
	h.deps[name] = &dependency{check: p, err: "not checked yet"}
	h.mu.Unlock()
}

// Check runs every watched dependency check once.
func (h *HealthStatus) Check(ctx context.Context) {
	h.mu.RLock()
	checks := make(map[string]CheckFunc, len(h.deps))
	for name, d := range h.deps {
		checks[name] = d.check
	}
	h.mu.RUnlock()

	for name, p := range checks {
		start := h.now()
		err := p(ctx)
		ms := float64(h.now().Sub(start).Microseconds()) / 1000

		h.mu.Lock()
		if d, ok := h.deps[name]; ok {
			d.ok, d.latencyMs, d.err = err == nil, ms, ""
			if err != nil {
				d.err = err.Error()
			}
		}
		h.lastCheck = h.now()
		h.mu.Unlock()
	}
}

// StartLivenessChecker checks the dependencies now and then every interval
// until ctx is done.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, interval time.Duration) {
	run := func() {
		checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		h.Check(checkCtx)
		cancel()
	}
	go func() {
		run()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				run()
			}
		}
	}()
}

// FeedHealth is the feed part of a HealthReport.
type FeedHealth struct {
	Connected bool   `json:"connected"`
	Stale     bool   `json:"stale"`
	LastTick  string `json:"last_tick,omitempty"`
	TickAge   string `json:"tick_age,omitempty"`
}

// DependencyHealth is the last check result of one dependency.
type DependencyHealth struct {
	OK        bool    `json:"ok"`
	LatencyMs float64 `json:"latency_ms"`
	Error     string  `json:"error,omitempty"`
}

// HealthReport is the JSON body of /healthz.
type HealthReport struct {
	Status       string                      `json:"status"`
	Uptime       string                      `json:"uptime"`
	Feed         FeedHealth                  `json:"feed"`
	Dependencies map[string]DependencyHealth `json:"dependencies"`
	Instruments  []string                    `json:"instruments"`
	LastCheckAt  string                      `json:"last_check_at,omitempty"`
}

// Report summarizes the health and returns the HTTP status to answer with:
// 200 when healthy, 503 when degraded or unhealthy.
func (h *HealthStatus) Report() (HealthReport, int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	now := h.now()

	r := HealthReport{
		Status:       "healthy",
		Uptime:       now.Sub(h.started).Round(time.Second).String(),
		Feed:         FeedHealth{Connected: h.feedUp},
		Dependencies: make(map[string]DependencyHealth, len(h.deps)),
		Instruments:  append([]string(nil), h.instruments...),
	}
	sort.Strings(r.Instruments)
	if !h.lastCheck.IsZero() {
		r.LastCheckAt = h.lastCheck.Format(time.RFC3339)
	}
	if !h.lastTick.IsZero() {
		age := now.Sub(h.lastTick)
		r.Feed.LastTick = h.lastTick.Format(time.RFC3339)
		r.Feed.TickAge = age.Round(time.Millisecond).String()
		r.Feed.Stale = h.feedUp && h.StaleAfter > 0 && age > h.StaleAfter
	}

	degraded := r.Feed.Stale
	for name, d := range h.deps {
		r.Dependencies[name] = DependencyHealth{OK: d.ok, LatencyMs: d.latencyMs, Error: d.err}
		degraded = degraded || !d.ok
	}

	switch {
	case !h.feedUp:
		r.Status = "unhealthy"
	case degraded:
		r.Status = "degraded"
	}
	if r.Status != "healthy" {
		return r, http.StatusServiceUnavailable
	}
	return r, http.StatusOK
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report, code := h.Report()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(report)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
	log  zerolog.Logger
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", health)

	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: logger.For("metrics"),
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		s.log.Info().Str("addr", s.addr).Msg("metrics server listening")
		if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("metrics server error")
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
