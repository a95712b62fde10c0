package portfolio

import (
	"fmt"

	"github.com/rs/zerolog"

	"chartscan/internal/logger"
)

// RiskLimits defines configurable risk management thresholds. Zero disables
// a limit.
type RiskLimits struct {
	MaxOpenPositions int     `json:"max_open_positions"`
	MaxDrawdownPct   float64 `json:"max_drawdown_pct"` // 0-100
}

// DefaultRiskLimits returns conservative default limits.
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{
		MaxOpenPositions: 5,
		MaxDrawdownPct:   25,
	}
}

// RiskManager gates new entries on the open positions and the equity
// drawdown of the ledger.
type RiskManager struct {
	limits    RiskLimits
	portfolio *Portfolio
	ledger    *Ledger
	log       zerolog.Logger
}

// NewRiskManager creates a RiskManager over pf and ledger.
func NewRiskManager(limits RiskLimits, pf *Portfolio, ledger *Ledger) *RiskManager {
	return &RiskManager{
		limits:    limits,
		portfolio: pf,
		ledger:    ledger,
		log:       logger.For("risk"),
	}
}

// CanTrade checks whether a new entry on symbol is allowed. It returns a
// reason when it is not.
func (rm *RiskManager) CanTrade(symbol string) (bool, string) {
	if _, open := rm.portfolio.Position(symbol); open {
		return false, "position already open"
	}
	if n := rm.limits.MaxOpenPositions; n > 0 && rm.portfolio.Len() >= n {
		return false, "max open positions reached"
	}
	if limit := rm.limits.MaxDrawdownPct; limit > 0 {
		if dd := rm.ledger.DrawdownPct(); dd > limit {
			rm.log.Warn().Str("symbol", symbol).Float64("drawdown_pct", dd).Msg("entry blocked by drawdown")
			return false, fmt.Sprintf("drawdown %.2f%% exceeds %.2f%%", dd, limit)
		}
	}
	return true, ""
}

// Status is the current risk view.
type Status struct {
	Equity        string     `json:"equity"`
	DrawdownPct   float64    `json:"drawdown_pct"`
	OpenPositions int        `json:"open_positions"`
	Limits        RiskLimits `json:"limits"`
}

// GetStatus returns current risk status.
func (rm *RiskManager) GetStatus() Status {
	return Status{
		Equity:        rm.ledger.Equity().String(),
		DrawdownPct:   rm.ledger.DrawdownPct(),
		OpenPositions: rm.portfolio.Len(),
		Limits:        rm.limits,
	}
}
