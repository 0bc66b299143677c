// Package market describes the market data feed contract and the bar polling logic built on it.
package market

import (
	"fmt"
	"strings"
	"time"
)

// Timeframe is a bar granularity.
type Timeframe string

const (
	M1  Timeframe = "1min"
	M2  Timeframe = "2min"
	M3  Timeframe = "3min"
	M4  Timeframe = "4min"
	M5  Timeframe = "5min"
	M6  Timeframe = "6min"
	M10 Timeframe = "10min"
	M12 Timeframe = "12min"
	M15 Timeframe = "15min"
	M20 Timeframe = "20min"
	M30 Timeframe = "30min"
	H1  Timeframe = "1h"
	H2  Timeframe = "2h"
	H3  Timeframe = "3h"
	H4  Timeframe = "4h"
	H6  Timeframe = "6h"
	H8  Timeframe = "8h"
	H12 Timeframe = "12h"
	D1  Timeframe = "1d"
	W1  Timeframe = "1w"
	MN1 Timeframe = "1M"
)

var durations = map[Timeframe]time.Duration{
	M1:  time.Minute,
	M2:  2 * time.Minute,
	M3:  3 * time.Minute,
	M4:  4 * time.Minute,
	M5:  5 * time.Minute,
	M6:  6 * time.Minute,
	M10: 10 * time.Minute,
	M12: 12 * time.Minute,
	M15: 15 * time.Minute,
	M20: 20 * time.Minute,
	M30: 30 * time.Minute,
	H1:  time.Hour,
	H2:  2 * time.Hour,
	H3:  3 * time.Hour,
	H4:  4 * time.Hour,
	H6:  6 * time.Hour,
	H8:  8 * time.Hour,
	H12: 12 * time.Hour,
	D1:  24 * time.Hour,
	W1:  7 * 24 * time.Hour,
	MN1: 30 * 24 * time.Hour,
}

// ParseTimeframe accepts the canonical spelling; "1M" (month) is case sensitive, the rest are not.
func ParseTimeframe(s string) (Timeframe, error) {
	s = strings.TrimSpace(s)
	if s == string(MN1) {
		return MN1, nil
	}
	tf := Timeframe(strings.ToLower(s))
	if tf == "1m" {
		tf = M1
	}
	if _, ok := durations[tf]; !ok {
		return "", fmt.Errorf("unknown timeframe %q", s)
	}
	return tf, nil
}

// Duration approximates the bar length; months count as 30 days.
func (tf Timeframe) Duration() time.Duration { return durations[tf] }

// Valid reports whether tf is one of the enumerated timeframes.
func (tf Timeframe) Valid() bool {
	_, ok := durations[tf]
	return ok
}
