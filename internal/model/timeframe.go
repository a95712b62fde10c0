package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TimeFrame is the bucketing interval candles are aggregated into.
type TimeFrame int

const (
	M1 TimeFrame = iota + 1
	M5
	M15
	M30
	H1
	H4
	D1
	W1
	MN
)

var timeFrameNames = map[TimeFrame]string{
	M1: "M1", M5: "M5", M15: "M15", M30: "M30",
	H1: "H1", H4: "H4", D1: "D1", W1: "W1", MN: "MN",
}

var timeFrameMinutes = map[TimeFrame]int{
	M1: 1, M5: 5, M15: 15, M30: 30,
	H1: 60, H4: 240, D1: 1440, W1: 10080, MN: 43200,
}

// ParseTimeFrame accepts "M1".."MN" (case-insensitive).
func ParseTimeFrame(s string) (TimeFrame, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for tf, name := range timeFrameNames {
		if name == s {
			return tf, nil
		}
	}
	return 0, fmt.Errorf("unknown timeframe %q", s)
}

func (tf TimeFrame) String() string {
	if name, ok := timeFrameNames[tf]; ok {
		return name
	}
	return "Unknown"
}

// MarshalJSON encodes the timeframe by name.
func (tf TimeFrame) MarshalJSON() ([]byte, error) {
	return json.Marshal(tf.String())
}

// Valid reports whether tf is a known timeframe.
func (tf TimeFrame) Valid() bool {
	_, ok := timeFrameNames[tf]
	return ok
}

// Minutes is the nominal bucket length in minutes (a month counts as 30 days).
func (tf TimeFrame) Minutes() int {
	return timeFrameMinutes[tf]
}

// Duration is the nominal bucket length.
func (tf TimeFrame) Duration() time.Duration {
	return time.Duration(tf.Minutes()) * time.Minute
}

// Bucket returns the UTC start of the bucket containing t.
// Weeks start on Monday and months on day 1.
func (tf TimeFrame) Bucket(t time.Time) time.Time {
	t = t.UTC()
	switch tf {
	case W1:
		day := t.Truncate(24 * time.Hour)
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case MN:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		d := tf.Duration()
		if d <= 0 {
			return t
		}
		// Intraday and daily lengths divide a day, so buckets line up with the Unix epoch.
		return t.Truncate(d)
	}
}
