// Package notification delivers alerts about pattern breakouts, divergences
// and fills to external channels.
package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"chartscan/internal/logger"
	"chartscan/internal/model"
)

// AlertLevel is the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert is one notification.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Symbol  string     `json:"symbol,omitempty"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
	Time    time.Time  `json:"time"`
}

// Notifier delivers alerts to one backend.
type Notifier interface {
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the structured log.
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{log: logger.For("notify")}
}

func (n *LogNotifier) Send(_ context.Context, a Alert) error {
	n.log.Info().
		Str("level", string(a.Level)).
		Str("symbol", a.Symbol).
		Str("title", a.Title).
		Msg(a.Message)
	return nil
}

// Multi sends every alert to each notifier and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, a Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run sends every alert read from ch until ch is closed or ctx is done.
// Delivery failures are logged and do not stop the loop.
func Run(ctx context.Context, n Notifier, ch <-chan Alert) {
	l := logger.For("notify")
	for {
		select {
		case <-ctx.Done():
			return
		case a, ok := <-ch:
			if !ok {
				return
			}
			if err := n.Send(ctx, a); err != nil {
				l.Warn().Err(err).Str("title", a.Title).Msg("alert not delivered")
			}
		}
	}
}

// PatternAlert announces a newly detected pattern.
func PatternAlert(symbol string, tf model.TimeFrame, p model.Pattern) Alert {
	return Alert{
		Level:  AlertInfo,
		Symbol: symbol,
		Title:  fmt.Sprintf("%s %s %s", symbol, tf, p.Type),
		Message: fmt.Sprintf("%s %s pattern (%s) with %d points, target %.5g",
			p.Size, p.Type, p.Direction, len(p.DataPoints), p.Target),
		Time: p.Date,
	}
}

// BreakoutAlert announces a pattern breakout status change.
func BreakoutAlert(symbol string, tf model.TimeFrame, p model.Pattern) Alert {
	level := AlertWarning
	if p.Active.Status == model.StatusFail {
		level = AlertInfo
	}
	return Alert{
		Level:  level,
		Symbol: symbol,
		Title:  fmt.Sprintf("%s %s %s %s", symbol, tf, p.Type, p.Active.Status),
		Message: fmt.Sprintf("%s at %.5g (bar %d), target %.5g",
			p.Active.BreakDirection, p.Active.Price, p.Active.Index, p.Active.Target),
		Time: p.Active.Date,
	}
}

// DivergenceAlert announces a price/oscillator divergence.
func DivergenceAlert(symbol string, tf model.TimeFrame, d model.Divergence) Alert {
	return Alert{
		Level:   AlertInfo,
		Symbol:  symbol,
		Title:   fmt.Sprintf("%s %s %s divergence", symbol, tf, d.Type),
		Message: fmt.Sprintf("%s on %s", d.Type, d.Indicator),
		Time:    d.Date,
	}
}

// TradeInAlert announces an entry fill.
func TradeInAlert(in model.TradeIn) Alert {
	return Alert{
		Level:   AlertWarning,
		Symbol:  in.Symbol,
		Title:   fmt.Sprintf("%s %s", in.Symbol, in.Type),
		Message: fmt.Sprintf("%s %s @ %s", in.Type, in.Quantity, in.Price),
		Time:    in.Date,
	}
}

// TradeOutAlert announces a closed trade.
func TradeOutAlert(out model.TradeOut) Alert {
	level := AlertInfo
	if out.Profit.IsNegative() {
		level = AlertWarning
	}
	return Alert{
		Level:  level,
		Symbol: out.TradeIn.Symbol,
		Title:  fmt.Sprintf("%s %s", out.TradeIn.Symbol, out.Type),
		Message: fmt.Sprintf("%s %s -> %s, profit %s (%.2f%%)",
			out.TradeIn.Type, out.TradeIn.Price, out.PriceOut, out.Profit, out.ProfitPer),
		Time: out.DateOut,
	}
}
