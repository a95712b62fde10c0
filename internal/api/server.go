// Package api serves a read-only JSON view of the running engine: instrument
// snapshots, open positions, the trade journal and performance.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"chartscan/internal/execution"
	"chartscan/internal/logger"
	"chartscan/internal/portfolio"
)

// Ledger is the performance source.
type Ledger interface {
	GetSummary() portfolio.Summary
	EquityCurve() []portfolio.EquityPoint
}

// Positions lists the open positions.
type Positions interface {
	GetPositions() []portfolio.Position
}

// Risk reports the risk status.
type Risk interface {
	GetStatus() portfolio.Status
}

// TradeLister reads closed trades, newest first.
type TradeLister interface {
	Trades(ctx context.Context, limit int) ([]execution.TradeRecord, error)
}

// Deps are the data sources of the API. Nil sources answer 404.
type Deps struct {
	Snapshots *SnapshotStore
	Ledger    Ledger
	Positions Positions
	Risk      Risk
	Trades    TradeLister

	// Stream serves the live record WebSocket at /api/v1/stream.
	Stream http.Handler

	// AllowOrigins enables CORS for these origins; "*" allows any.
	AllowOrigins []string
}

const (
	defaultTradeLimit = 50
	maxTradeLimit     = 1000
)

// Server is the HTTP API server.
type Server struct {
	deps   Deps
	router *gin.Engine
	srv    *http.Server
	log    zerolog.Logger
}

// NewServer builds the routes. Call Start to listen on addr.
func NewServer(addr string, deps Deps) *Server {
	s := &Server{deps: deps, router: gin.New(), log: logger.For("api")}
	s.router.Use(gin.Recovery(), s.requestLogger())
	if len(deps.AllowOrigins) > 0 {
		s.router.Use(cors.New(corsConfig(deps.AllowOrigins)))
	}
	s.routes()
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func corsConfig(origins []string) cors.Config {
	c := cors.DefaultConfig()
	c.AllowMethods = []string{"GET", "OPTIONS"}
	c.AllowHeaders = []string{"Origin", "Content-Type"}
	c.ExposeHeaders = []string{"Content-Length"}
	for _, o := range origins {
		if o == "*" {
			c.AllowAllOrigins = true
			return c
		}
	}
	c.AllowOrigins = origins
	return c
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() {
	v1 := s.router.Group("/api/v1")
	v1.GET("/health", s.handleHealth)
	v1.GET("/instruments", s.handleInstruments)
	v1.GET("/instruments/:symbol", s.handleInstrument)
	v1.GET("/instruments/:symbol/patterns", s.handlePatterns)
	v1.GET("/instruments/:symbol/indicators", s.handleIndicators)
	v1.GET("/instruments/:symbol/orders", s.handleOrders)
	v1.GET("/positions", s.handlePositions)
	v1.GET("/summary", s.handleSummary)
	v1.GET("/equity", s.handleEquity)
	v1.GET("/risk", s.handleRisk)
	v1.GET("/trades", s.handleTrades)
	if s.deps.Stream != nil {
		v1.GET("/stream", gin.WrapH(s.deps.Stream))
	}
}

// Start serves in a goroutine.
func (s *Server) Start() {
	go func() {
		s.log.Info().Str("addr", s.srv.Addr).Msg("listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("server stopped")
		}
	}()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	}
}

func errorResponse(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": true, "message": message})
}

func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func (s *Server) handleHealth(c *gin.Context) {
	n := 0
	if s.deps.Snapshots != nil {
		n = s.deps.Snapshots.Len()
	}
	successResponse(c, gin.H{"status": "ok", "instruments": n})
}

// instrumentSummary is one row of GET /instruments.
type instrumentSummary struct {
	Symbol    string    `json:"symbol"`
	TimeFrame string    `json:"timeframe"`
	Date      time.Time `json:"date"`
	Bars      int       `json:"bars"`
	Close     float64   `json:"close"`
	Patterns  int       `json:"patterns"`
	Orders    int       `json:"orders"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Server) handleInstruments(c *gin.Context) {
	if s.deps.Snapshots == nil {
		successResponse(c, []instrumentSummary{})
		return
	}
	out := make([]instrumentSummary, 0, s.deps.Snapshots.Len())
	for _, sym := range s.deps.Snapshots.Symbols() {
		v, ok := s.deps.Snapshots.Get(sym)
		if !ok {
			continue
		}
		snap := v.Snapshot
		out = append(out, instrumentSummary{
			Symbol:    sym,
			TimeFrame: snap.TimeFrame.String(),
			Date:      snap.Date,
			Bars:      snap.Bars,
			Close:     snap.Candle.Close,
			Patterns:  len(snap.Patterns.Local) + len(snap.Patterns.Extrema),
			Orders:    len(v.Orders),
			UpdatedAt: v.UpdatedAt,
		})
	}
	successResponse(c, out)
}

// view resolves :symbol or answers 404.
func (s *Server) view(c *gin.Context) (View, bool) {
	sym := c.Param("symbol")
	if s.deps.Snapshots != nil {
		if v, ok := s.deps.Snapshots.Get(sym); ok {
			return v, true
		}
	}
	errorResponse(c, http.StatusNotFound, "unknown instrument "+sym)
	return View{}, false
}

func (s *Server) handleInstrument(c *gin.Context) {
	if v, ok := s.view(c); ok {
		successResponse(c, v.Snapshot)
	}
}

func (s *Server) handlePatterns(c *gin.Context) {
	if v, ok := s.view(c); ok {
		successResponse(c, v.Snapshot.Patterns)
	}
}

func (s *Server) handleIndicators(c *gin.Context) {
	if v, ok := s.view(c); ok {
		successResponse(c, v.Snapshot.Indicators)
	}
}

func (s *Server) handleOrders(c *gin.Context) {
	if v, ok := s.view(c); ok {
		successResponse(c, v.Orders)
	}
}

type positionView struct {
	portfolio.Position
	Unrealized string `json:"unrealized_pnl"`
}

func (s *Server) handlePositions(c *gin.Context) {
	if s.deps.Positions == nil {
		errorResponse(c, http.StatusNotFound, "positions not available")
		return
	}
	positions := s.deps.Positions.GetPositions()
	out := make([]positionView, len(positions))
	for i := range positions {
		out[i] = positionView{Position: positions[i], Unrealized: positions[i].UnrealizedPnL().String()}
	}
	successResponse(c, out)
}

func (s *Server) handleSummary(c *gin.Context) {
	if s.deps.Ledger == nil {
		errorResponse(c, http.StatusNotFound, "ledger not available")
		return
	}
	successResponse(c, s.deps.Ledger.GetSummary())
}

func (s *Server) handleEquity(c *gin.Context) {
	if s.deps.Ledger == nil {
		errorResponse(c, http.StatusNotFound, "ledger not available")
		return
	}
	successResponse(c, s.deps.Ledger.EquityCurve())
}

func (s *Server) handleRisk(c *gin.Context) {
	if s.deps.Risk == nil {
		errorResponse(c, http.StatusNotFound, "risk manager not available")
		return
	}
	successResponse(c, s.deps.Risk.GetStatus())
}

// handleTrades returns closed trades, newest first.
// GET /api/v1/trades?limit=50
func (s *Server) handleTrades(c *gin.Context) {
	if s.deps.Trades == nil {
		errorResponse(c, http.StatusNotFound, "trade journal not available")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultTradeLimit)))
	if err != nil || limit < 1 || limit > maxTradeLimit {
		errorResponse(c, http.StatusBadRequest, "limit must be between 1 and 1000")
		return
	}
	trades, err := s.deps.Trades.Trades(c.Request.Context(), limit)
	if err != nil {
		s.log.Error().Err(err).Msg("read trades")
		errorResponse(c, http.StatusInternalServerError, "failed to read trades")
		return
	}
	if trades == nil {
		trades = []execution.TradeRecord{}
	}
	successResponse(c, trades)
}
