package model

import "time"

// Bar represents a single candlestick sample within a history range.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Quote is the latest snapshot for a ticker. Open and PrevClose are zero
// when the source omits them; consumers treat non-positive values as
// missing.
type Quote struct {
	Symbol     string
	Price      float64
	Open       float64
	PrevClose  float64
	Time       time.Time
	SourceZone string
}

// DerivedMetrics holds change values computed from a quote and its
// history. Nil fields mean the metric is unavailable and must render as
// "N/A" downstream, never as zero.
type DerivedMetrics struct {
	DailyAbs  *float64
	DailyPct  *float64
	HourlyAbs *float64
	HourlyPct *float64
}
