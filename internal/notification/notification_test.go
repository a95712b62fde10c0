package notification

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartscan/internal/model"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func TestAlertBuilders(t *testing.T) {
	p := model.Pattern{
		Date:       t0,
		Type:       model.PatternDoubleTop,
		Size:       model.PatternExtrema,
		Direction:  model.DirectionTop,
		DataPoints: make([]model.Point, 4),
		Active: model.PatternActive{
			Active: true, Index: 41, Date: t0, Price: 98.5,
			Status: model.StatusActive, BreakDirection: model.BreakDown, Target: 95,
		},
	}
	a := PatternAlert("EURUSD", model.H1, p)
	assert.Equal(t, "EURUSD H1 DoubleTop", a.Title)
	assert.Equal(t, AlertInfo, a.Level)

	b := BreakoutAlert("EURUSD", model.H1, p)
	assert.Equal(t, "EURUSD H1 DoubleTop Active", b.Title)
	assert.Equal(t, AlertWarning, b.Level)
	assert.Contains(t, b.Message, "at 98.5 (bar 41), target 95")

	out := model.TradeOut{
		TradeIn:  model.TradeIn{Symbol: "BTCUSD", Type: model.EntryLong, Price: decimal.NewFromInt(100)},
		Type:     model.StopLoss,
		PriceOut: decimal.NewFromInt(96),
		Profit:   decimal.NewFromInt(-4),
		DateOut:  t0,
	}
	c := TradeOutAlert(out)
	assert.Equal(t, "BTCUSD StopLoss", c.Title)
	assert.Equal(t, AlertWarning, c.Level)
	assert.Equal(t, "BTCUSD", c.Symbol)
}

type failing struct{ calls int }

func (f *failing) Send(context.Context, Alert) error {
	f.calls++
	return errors.New("down")
}

type collect struct{ got []Alert }

func (c *collect) Send(_ context.Context, a Alert) error {
	c.got = append(c.got, a)
	return nil
}

func TestMultiAndRun(t *testing.T) {
	f, c := &failing{}, &collect{}
	m := Multi{f, NewLogNotifier(), c}
	assert.Error(t, m.Send(context.Background(), Alert{Title: "x"}))

	ch := make(chan Alert, 2)
	ch <- Alert{Title: "a"}
	ch <- Alert{Title: "b"}
	close(ch)
	Run(context.Background(), m, ch)

	assert.Equal(t, 3, f.calls)
	require.Len(t, c.got, 3)
	assert.Equal(t, "b", c.got[2].Title)
}

type fakeBot struct{ sent []tgbotapi.MessageConfig }

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.sent = append(b.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func TestTelegram_FormatsMarkdownV2(t *testing.T) {
	bot := &fakeBot{}
	n := newTelegram(bot, 42)
	require.NoError(t, n.Send(context.Background(), Alert{Level: AlertCritical, Title: "EURUSD H1", Message: "profit -4.5 (1.2%)"}))

	require.Len(t, bot.sent, 1)
	msg := bot.sent[0]
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Equal(t, tgbotapi.ModeMarkdownV2, msg.ParseMode)
	assert.Equal(t, "🚨 *EURUSD H1*\n\nprofit \\-4\\.5 \\(1\\.2%\\)", msg.Text)
}

func TestTelegram_RequiresChat(t *testing.T) {
	_, err := NewTelegramNotifier("token", 0)
	assert.Error(t, err)
}

func TestWebhook_PostsJSON(t *testing.T) {
	var got Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	require.NoError(t, n.Send(context.Background(), Alert{Level: AlertInfo, Symbol: "X", Title: "t", Message: "m", Time: t0}))
	assert.Equal(t, "X", got.Symbol)
	assert.True(t, got.Time.Equal(t0))

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer bad.Close()
	assert.Error(t, NewWebhookNotifier(bad.URL).Send(context.Background(), Alert{}))
}
