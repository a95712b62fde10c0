package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"chartscan/internal/model"
)

// Config holds all application configuration loaded from environment variables.
// It is built once at startup and handed to components by value.
type Config struct {
	Engine   Engine
	Orders   Orders
	Backtest Backtest

	// Instruments
	Symbols   []string
	Market    string
	TimeFrame model.TimeFrame

	// Infrastructure
	LogLevel       string
	LogPretty      bool
	SQLitePath     string
	RedisAddr      string
	RedisPassword  string
	MetricsAddr    string
	HTTPAddr       string
	CORSOrigins    []string
	FeedURL        string
	TelegramToken  string
	TelegramChatID int64
	WebhookURL     string
}

// Engine is the per-instrument analysis configuration.
type Engine struct {
	NumBars          int
	Indicators       Indicators
	Peaks            Peaks
	Patterns         Patterns
	Divergences      bool
	HorizontalLevels bool
	Logarithmic      bool
	CandleTypes      bool
}

// Indicators toggles and parameterizes the indicator bank.
type Indicators struct {
	EMA, MACD, RSI, ATR, BB, Stoch, StdDev, ADX bool

	EMAA, EMAB, EMAC    int
	MACDA, MACDB, MACDC int
	RSIPeriod           int
	ATRPeriod           int
	BBPeriod            int
	BBDeviation         float64
	StochPeriod         int
	StochSmooth         int
	StdDevPeriod        int
	ADXPeriod           int
}

// Peaks parameterizes local and extrema peak detection.
type Peaks struct {
	LocalRadius   int
	ExtremaRadius int
	Smoothing     int
	Prominence    float64 // fraction of the window price range, 0 disables
}

// ScanPolicy controls how many pattern windows are classified per scan.
type ScanPolicy string

const (
	ScanFirst ScanPolicy = "first"
	ScanAll   ScanPolicy = "all"
)

// Patterns parameterizes the pattern engine.
type Patterns struct {
	Enabled        bool
	MaxPoints      int
	MinPoints      int     // minimum bars between consecutive data points
	EqualThreshold float64 // percent
	ScanPolicy     ScanPolicy
}

// Orders parameterizes order preparation and the pending queue.
type Orders struct {
	MaxBuyOrders   int
	MaxSellOrders  int
	MaxStopLosses  int
	ATRStopLoss    float64
	StopLossSpread bool
	Spread         decimal.Decimal
}

// Backtest parameterizes position sizing and the ledger.
type Backtest struct {
	Leverage      decimal.Decimal
	OrderSize     decimal.Decimal
	InitialEquity decimal.Decimal
}

// Default returns the configuration used when no environment is set.
func Default() Config {
	return Config{
		Engine: Engine{
			NumBars: 100000,
			Indicators: Indicators{
				EMA: true, MACD: true, RSI: true, ATR: true, BB: true, Stoch: true, StdDev: true, ADX: true,
				EMAA: 9, EMAB: 21, EMAC: 50,
				MACDA: 12, MACDB: 26, MACDC: 9,
				RSIPeriod:    14,
				ATRPeriod:    14,
				BBPeriod:     20,
				BBDeviation:  2,
				StochPeriod:  14,
				StochSmooth:  3,
				StdDevPeriod: 20,
				ADXPeriod:    14,
			},
			Peaks: Peaks{LocalRadius: 2, ExtremaRadius: 5, Smoothing: 3},
			Patterns: Patterns{
				Enabled:        true,
				MaxPoints:      5,
				MinPoints:      2,
				EqualThreshold: 1.0,
				ScanPolicy:     ScanFirst,
			},
			Divergences:      true,
			HorizontalLevels: true,
			CandleTypes:      true,
		},
		Orders: Orders{
			MaxBuyOrders:  1,
			MaxSellOrders: 1,
			MaxStopLosses: 1,
			ATRStopLoss:   2,
			Spread:        decimal.Zero,
		},
		Backtest: Backtest{
			Leverage:      decimal.NewFromInt(1),
			OrderSize:     decimal.NewFromInt(1),
			InitialEquity: decimal.NewFromInt(10000),
		},
		Market:      "default",
		TimeFrame:   model.H1,
		LogLevel:    "info",
		SQLitePath:  "data/chartscan.db",
		RedisAddr:   "localhost:6379",
		MetricsAddr: ":9090",
		HTTPAddr:    ":8080",
	}
}

// Load reads configuration from the environment, after loading .env when present.
// Malformed values are collected and returned together; callers treat a
// non-nil error as fatal.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (*Config, error) {
	d := Default()
	p := &parser{get: getenv}

	cfg := &Config{
		Engine: Engine{
			NumBars: p.getInt("NUM_BARS", d.Engine.NumBars),
			Indicators: Indicators{
				EMA:    p.getBool("INDICATORS_EMA", d.Engine.Indicators.EMA),
				MACD:   p.getBool("INDICATORS_MACD", d.Engine.Indicators.MACD),
				RSI:    p.getBool("INDICATORS_RSI", d.Engine.Indicators.RSI),
				ATR:    p.getBool("INDICATORS_ATR", d.Engine.Indicators.ATR),
				BB:     p.getBool("INDICATORS_BB", d.Engine.Indicators.BB),
				Stoch:  p.getBool("INDICATORS_STOCH", d.Engine.Indicators.Stoch),
				StdDev: p.getBool("INDICATORS_STDDEV", d.Engine.Indicators.StdDev),
				ADX:    p.getBool("INDICATORS_ADX", d.Engine.Indicators.ADX),

				EMAA:         p.getInt("EMA_A", d.Engine.Indicators.EMAA),
				EMAB:         p.getInt("EMA_B", d.Engine.Indicators.EMAB),
				EMAC:         p.getInt("EMA_C", d.Engine.Indicators.EMAC),
				MACDA:        p.getInt("MACD_A", d.Engine.Indicators.MACDA),
				MACDB:        p.getInt("MACD_B", d.Engine.Indicators.MACDB),
				MACDC:        p.getInt("MACD_C", d.Engine.Indicators.MACDC),
				RSIPeriod:    p.getInt("RSI_PERIOD", d.Engine.Indicators.RSIPeriod),
				ATRPeriod:    p.getInt("ATR_PERIOD", d.Engine.Indicators.ATRPeriod),
				BBPeriod:     p.getInt("BB_PERIOD", d.Engine.Indicators.BBPeriod),
				BBDeviation:  p.getFloat("BB_DEVIATION", d.Engine.Indicators.BBDeviation),
				StochPeriod:  p.getInt("STOCH_PERIOD", d.Engine.Indicators.StochPeriod),
				StochSmooth:  p.getInt("STOCH_SMOOTH", d.Engine.Indicators.StochSmooth),
				StdDevPeriod: p.getInt("STDDEV_PERIOD", d.Engine.Indicators.StdDevPeriod),
				ADXPeriod:    p.getInt("ADX_PERIOD", d.Engine.Indicators.ADXPeriod),
			},
			Peaks: Peaks{
				LocalRadius:   p.getInt("PEAKS_LOCAL_RADIUS", d.Engine.Peaks.LocalRadius),
				ExtremaRadius: p.getInt("PEAKS_EXTREMA_RADIUS", d.Engine.Peaks.ExtremaRadius),
				Smoothing:     p.getInt("PEAKS_SMOOTHING", d.Engine.Peaks.Smoothing),
				Prominence:    p.getFloat("PEAKS_PROMINENCE", d.Engine.Peaks.Prominence),
			},
			Patterns: Patterns{
				Enabled:        p.getBool("PATTERNS", d.Engine.Patterns.Enabled),
				MaxPoints:      p.getInt("PATTERNS_MAX_POINTS", d.Engine.Patterns.MaxPoints),
				MinPoints:      p.getInt("PATTERNS_MIN_POINTS", d.Engine.Patterns.MinPoints),
				EqualThreshold: p.getFloat("EQUAL_THRESHOLD", d.Engine.Patterns.EqualThreshold),
				ScanPolicy:     p.getScanPolicy("PATTERNS_SCAN_POLICY", d.Engine.Patterns.ScanPolicy),
			},
			Divergences:      p.getBool("DIVERGENCES", d.Engine.Divergences),
			HorizontalLevels: p.getBool("HORIZONTAL_LEVELS", d.Engine.HorizontalLevels),
			Logarithmic:      p.getBool("LOGARITHMIC_SCANNER", d.Engine.Logarithmic),
			CandleTypes:      p.getBool("CANDLE_TYPES", d.Engine.CandleTypes),
		},
		Orders: Orders{
			MaxBuyOrders:   p.getInt("MAX_BUY_ORDERS", d.Orders.MaxBuyOrders),
			MaxSellOrders:  p.getInt("MAX_SELL_ORDERS", d.Orders.MaxSellOrders),
			MaxStopLosses:  p.getInt("MAX_STOP_LOSSES", d.Orders.MaxStopLosses),
			ATRStopLoss:    p.getFloat("ATR_STOP_LOSS", d.Orders.ATRStopLoss),
			StopLossSpread: p.getBool("STOP_LOSS_SPREAD", d.Orders.StopLossSpread),
			Spread:         p.getDecimal("SPREAD", d.Orders.Spread),
		},
		Backtest: Backtest{
			Leverage:      p.getDecimal("LEVERAGE", d.Backtest.Leverage),
			OrderSize:     p.getDecimal("ORDER_SIZE", d.Backtest.OrderSize),
			InitialEquity: p.getDecimal("INITIAL_EQUITY", d.Backtest.InitialEquity),
		},

		Symbols:   p.getList("SYMBOLS"),
		Market:    getEnv(getenv, "MARKET", d.Market),
		TimeFrame: p.getTimeFrame("TIMEFRAME", d.TimeFrame),

		LogLevel:       getEnv(getenv, "LOG_LEVEL", d.LogLevel),
		LogPretty:      p.getBool("LOG_PRETTY", d.LogPretty),
		SQLitePath:     getEnv(getenv, "SQLITE_PATH", d.SQLitePath),
		RedisAddr:      getEnv(getenv, "REDIS_ADDR", d.RedisAddr),
		RedisPassword:  getenv("REDIS_PASSWORD"),
		MetricsAddr:    getEnv(getenv, "METRICS_ADDR", d.MetricsAddr),
		HTTPAddr:       getEnv(getenv, "HTTP_ADDR", d.HTTPAddr),
		CORSOrigins:    p.getList("CORS_ORIGINS"),
		FeedURL:        getenv("FEED_URL"),
		TelegramToken:  getenv("TELEGRAM_TOKEN"),
		TelegramChatID: p.getInt64("TELEGRAM_CHAT_ID", 0),
		WebhookURL:     getenv("ALERT_WEBHOOK_URL"),
	}

	if cfg.Engine.NumBars <= 0 {
		p.fail("NUM_BARS", fmt.Errorf("must be positive, got %d", cfg.Engine.NumBars))
	}
	if cfg.Engine.Patterns.MaxPoints < 4 {
		p.fail("PATTERNS_MAX_POINTS", fmt.Errorf("must be at least 4, got %d", cfg.Engine.Patterns.MaxPoints))
	}
	if cfg.Backtest.Leverage.LessThanOrEqual(decimal.Zero) {
		p.fail("LEVERAGE", fmt.Errorf("must be positive, got %s", cfg.Backtest.Leverage))
	}

	if len(p.errs) > 0 {
		return nil, errors.Join(p.errs...)
	}
	return cfg, nil
}

// MaxBars is the history window for tf: NUM_BARS / minutes, at least 1.
func (e Engine) MaxBars(tf model.TimeFrame) int {
	m := tf.Minutes()
	if m <= 0 {
		return e.NumBars
	}
	n := e.NumBars / m
	if n < 1 {
		return 1
	}
	return n
}

func getEnv(getenv func(string) string, key, fallback string) string {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// parser reads typed values and records every malformed key.
type parser struct {
	get  func(string) string
	errs []error
}

func (p *parser) fail(key string, err error) {
	p.errs = append(p.errs, fmt.Errorf("[config] %s: %w", key, err))
}

func (p *parser) raw(key string) (string, bool) {
	v := strings.TrimSpace(p.get(key))
	return v, v != ""
}

func (p *parser) getInt(key string, fallback int) int {
	v, ok := p.raw(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, err)
		return fallback
	}
	return n
}

func (p *parser) getInt64(key string, fallback int64) int64 {
	v, ok := p.raw(key)
	if !ok {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		p.fail(key, err)
		return fallback
	}
	return n
}

func (p *parser) getFloat(key string, fallback float64) float64 {
	v, ok := p.raw(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, err)
		return fallback
	}
	return f
}

func (p *parser) getBool(key string, fallback bool) bool {
	v, ok := p.raw(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, err)
		return fallback
	}
	return b
}

func (p *parser) getDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	v, ok := p.raw(key)
	if !ok {
		return fallback
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		p.fail(key, err)
		return fallback
	}
	return d
}

func (p *parser) getTimeFrame(key string, fallback model.TimeFrame) model.TimeFrame {
	v, ok := p.raw(key)
	if !ok {
		return fallback
	}
	tf, err := model.ParseTimeFrame(v)
	if err != nil {
		p.fail(key, err)
		return fallback
	}
	return tf
}

func (p *parser) getScanPolicy(key string, fallback ScanPolicy) ScanPolicy {
	v, ok := p.raw(key)
	if !ok {
		return fallback
	}
	switch s := ScanPolicy(strings.ToLower(v)); s {
	case ScanFirst, ScanAll:
		return s
	default:
		p.fail(key, fmt.Errorf("unknown scan policy %q", v))
		return fallback
	}
}

func (p *parser) getList(key string) []string {
	v, ok := p.raw(key)
	if !ok {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, s := range parts {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
