package model

import "time"

// TimeRange is a named historical window. Span is the logical width of
// the window and orders ranges for metric selection; Fetch is how far
// back the source is asked to go (intraday ranges request a full trading
// day so fine-grained bars are always available); Interval is the source
// sampling step; TTL is the refresh cadence, zero meaning every cycle.
type TimeRange struct {
	Name     string
	Span     time.Duration
	Fetch    time.Duration
	Interval string
	TTL      time.Duration
}

// DefaultTimeRange is the chart range selected when none is configured.
const DefaultTimeRange = "30 Days"

// MetricsTimeRange is the fine-grained range refreshed every cycle so
// hourly change always has one-minute samples to work from.
const MetricsTimeRange = "10 Mins"

// timeRanges is ordered longest to shortest, the order range selectors
// present them in.
var timeRanges = []TimeRange{
	{Name: "6 Months", Span: 182 * 24 * time.Hour, Fetch: 182 * 24 * time.Hour, Interval: "1wk", TTL: 6 * time.Hour},
	{Name: "30 Days", Span: 30 * 24 * time.Hour, Fetch: 30 * 24 * time.Hour, Interval: "1d", TTL: time.Hour},
	{Name: "7 Days", Span: 7 * 24 * time.Hour, Fetch: 7 * 24 * time.Hour, Interval: "1h", TTL: 15 * time.Minute},
	{Name: "24 Hrs", Span: 24 * time.Hour, Fetch: 24 * time.Hour, Interval: "15m", TTL: 5 * time.Minute},
	{Name: "6 Hrs", Span: 6 * time.Hour, Fetch: 24 * time.Hour, Interval: "5m", TTL: 2 * time.Minute},
	{Name: "10 Mins", Span: 10 * time.Minute, Fetch: 24 * time.Hour, Interval: "1m", TTL: 0},
}

// TimeRanges returns the canonical range set, longest first.
func TimeRanges() []TimeRange {
	out := make([]TimeRange, len(timeRanges))
	copy(out, timeRanges)
	return out
}

// RangeNames returns the canonical range names, longest first.
func RangeNames() []string {
	names := make([]string, len(timeRanges))
	for i, r := range timeRanges {
		names[i] = r.Name
	}
	return names
}

// RangeByName looks up a range by its display name.
func RangeByName(name string) (TimeRange, bool) {
	for _, r := range timeRanges {
		if r.Name == name {
			return r, true
		}
	}
	return TimeRange{}, false
}
