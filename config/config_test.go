package config

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartscan/internal/model"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(envMap(nil))
	require.NoError(t, err)

	assert.Equal(t, 100000, cfg.Engine.NumBars)
	assert.Equal(t, model.H1, cfg.TimeFrame)
	assert.Equal(t, 9, cfg.Engine.Indicators.EMAA)
	assert.Equal(t, 26, cfg.Engine.Indicators.MACDB)
	assert.Equal(t, ScanFirst, cfg.Engine.Patterns.ScanPolicy)
	assert.Equal(t, 1.0, cfg.Engine.Patterns.EqualThreshold)
	assert.True(t, cfg.Backtest.InitialEquity.Equal(decimal.NewFromInt(10000)))
	assert.Empty(t, cfg.Symbols)
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg, err := FromEnv(envMap(map[string]string{
		"NUM_BARS":             "1200",
		"TIMEFRAME":            "m15",
		"SYMBOLS":              "EURUSD, BTCUSD ,",
		"INDICATORS_ADX":       "false",
		"PATTERNS_SCAN_POLICY": "ALL",
		"MAX_BUY_ORDERS":       "2",
		"SPREAD":               "0.0002",
		"TELEGRAM_CHAT_ID":     "-100123",
		"ALERT_WEBHOOK_URL":    "https://hooks.example.com/x",
		"CORS_ORIGINS":         "http://localhost:5173",
	}))
	require.NoError(t, err)

	assert.Equal(t, 1200, cfg.Engine.NumBars)
	assert.Equal(t, model.M15, cfg.TimeFrame)
	assert.Equal(t, []string{"EURUSD", "BTCUSD"}, cfg.Symbols)
	assert.False(t, cfg.Engine.Indicators.ADX)
	assert.Equal(t, ScanAll, cfg.Engine.Patterns.ScanPolicy)
	assert.Equal(t, 2, cfg.Orders.MaxBuyOrders)
	assert.Equal(t, "0.0002", cfg.Orders.Spread.String())
	assert.Equal(t, int64(-100123), cfg.TelegramChatID)
	assert.Equal(t, "https://hooks.example.com/x", cfg.WebhookURL)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.CORSOrigins)
}

func TestFromEnv_MalformedValuesAreReportedTogether(t *testing.T) {
	_, err := FromEnv(envMap(map[string]string{
		"NUM_BARS":        "lots",
		"EQUAL_THRESHOLD": "1,5",
		"TIMEFRAME":       "H2",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NUM_BARS")
	assert.Contains(t, err.Error(), "EQUAL_THRESHOLD")
	assert.Contains(t, err.Error(), "TIMEFRAME")
}

func TestFromEnv_RejectsNonPositiveBars(t *testing.T) {
	_, err := FromEnv(envMap(map[string]string{"NUM_BARS": "0"}))
	require.Error(t, err)
}

func TestEngine_MaxBars(t *testing.T) {
	e := Engine{NumBars: 500}
	assert.Equal(t, 500, e.MaxBars(model.M1))
	assert.Equal(t, 33, e.MaxBars(model.M15))
	assert.Equal(t, 8, e.MaxBars(model.H1))
	assert.Equal(t, 1, e.MaxBars(model.D1))
}
