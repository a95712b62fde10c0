package model

import (
	"encoding/json"
	"time"
)

// Point is an (index, price) pair: a peak or a pattern data point.
type Point struct {
	Index int     `json:"index"`
	Price float64 `json:"price"`
}

// PatternType enumerates the geometric chart patterns.
type PatternType int

const (
	PatternNone PatternType = iota
	PatternTriangleSym
	PatternTriangleUp
	PatternTriangleDown
	PatternRectangle
	PatternChannelUp
	PatternChannelDown
	PatternBroadening
	PatternDoubleTop
	PatternDoubleBottom
	PatternHeadShoulders
	PatternHigherHighsHigherLows
	PatternLowerHighsLowerLows
)

var patternTypeNames = [...]string{
	"None", "TriangleSym", "TriangleUp", "TriangleDown", "Rectangle", "ChannelUp",
	"ChannelDown", "Broadening", "DoubleTop", "DoubleBottom", "HeadShoulders",
	"HigherHighsHigherLows", "LowerHighsLowerLows",
}

func (t PatternType) String() string {
	if t < 0 || int(t) >= len(patternTypeNames) {
		return "Unknown"
	}
	return patternTypeNames[t]
}

func (t PatternType) MarshalJSON() ([]byte, error) { return json.Marshal(t.String()) }

// PatternSize selects which peak series a pattern was found on.
type PatternSize int

const (
	PatternLocal PatternSize = iota
	PatternExtrema
)

func (s PatternSize) String() string {
	if s == PatternExtrema {
		return "Extrema"
	}
	return "Local"
}

func (s PatternSize) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

// PatternDirection tells whether the pattern window starts on a top or a bottom.
type PatternDirection int

const (
	DirectionNone PatternDirection = iota
	DirectionTop
	DirectionBottom
)

func (d PatternDirection) String() string {
	switch d {
	case DirectionTop:
		return "Top"
	case DirectionBottom:
		return "Bottom"
	}
	return "None"
}

func (d PatternDirection) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

// BreakDirection is the side on which price left the pattern.
type BreakDirection int

const (
	BreakNone BreakDirection = iota
	BreakUp
	BreakDown
)

func (b BreakDirection) String() string {
	switch b {
	case BreakUp:
		return "Up"
	case BreakDown:
		return "Down"
	}
	return "None"
}

func (b BreakDirection) MarshalJSON() ([]byte, error) { return json.Marshal(b.String()) }

// PatternStatus is the lifecycle stage of a detected pattern.
type PatternStatus int

const (
	StatusPending PatternStatus = iota // boundaries not breached yet
	StatusActive                       // breached, target not reached
	StatusSuccess                      // target reached
	StatusFail                         // closed back beyond the opposite band
)

func (s PatternStatus) String() string {
	switch s {
	case StatusActive:
		return "Active"
	case StatusSuccess:
		return "Success"
	case StatusFail:
		return "Fail"
	}
	return "Pending"
}

func (s PatternStatus) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

// PatternActive records the breakout of a pattern.
type PatternActive struct {
	Active         bool           `json:"active"`
	Completed      bool           `json:"completed"`
	Index          int            `json:"index"`
	Date           time.Time      `json:"date"`
	Price          float64        `json:"price"`
	Status         PatternStatus  `json:"status"`
	BreakDirection BreakDirection `json:"break_direction"`
	Target         float64        `json:"target"`
}

// Pattern is a geometric formation found on alternating peaks.
type Pattern struct {
	Index      int              `json:"index"` // candle index of the last real data point
	Date       time.Time        `json:"date"`
	Type       PatternType      `json:"pattern_type"`
	Size       PatternSize      `json:"pattern_size"`
	DataPoints []Point          `json:"data_points"`
	Direction  PatternDirection `json:"direction"`
	Active     PatternActive    `json:"active"`
	Target     float64          `json:"target"`
}

// Shift moves every index of the pattern by delta (negative on eviction).
func (p *Pattern) Shift(delta int) {
	p.Index += delta
	for i := range p.DataPoints {
		p.DataPoints[i].Index += delta
	}
	if p.Active.Active {
		p.Active.Index += delta
	}
}
