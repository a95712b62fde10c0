package model

import (
	"encoding/json"
	"time"
)

// DivergenceType is the direction of a price/oscillator divergence.
type DivergenceType int

const (
	DivergenceNone DivergenceType = iota
	DivergenceBullish
	DivergenceBearish
)

func (d DivergenceType) String() string {
	switch d {
	case DivergenceBullish:
		return "Bullish"
	case DivergenceBearish:
		return "Bearish"
	}
	return "None"
}

func (d DivergenceType) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

// Divergence marks price and an oscillator disagreeing on the last two peaks.
type Divergence struct {
	Index     int            `json:"index"`
	Date      time.Time      `json:"date"`
	Indicator string         `json:"indicator"`
	Type      DivergenceType `json:"divergence_type"`
}

// LevelType tells on which side of price a horizontal level lies.
type LevelType int

const (
	LevelSupport LevelType = iota
	LevelResistance
)

func (l LevelType) String() string {
	if l == LevelResistance {
		return "Resistance"
	}
	return "Support"
}

func (l LevelType) MarshalJSON() ([]byte, error) { return json.Marshal(l.String()) }

// HorizontalLevel is a price touched by at least two peaks.
type HorizontalLevel struct {
	Price      float64   `json:"price"`
	Touches    int       `json:"touches"`
	Type       LevelType `json:"level_type"`
	FirstIndex int       `json:"first_index"`
	LastIndex  int       `json:"last_index"`
}
