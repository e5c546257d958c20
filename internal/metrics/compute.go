package metrics

import (
	"sort"
	"time"

	"github.com/navillusj/ASX-Share-Monitor/internal/model"
)

// MinHourlyAge is how much older than the latest sample the hourly
// reference sample must be.
const MinHourlyAge = time.Hour

// Daily returns the day change for a quote: price minus open, falling
// back to previous close when the source omitted the open. ok is false
// when neither base is available; callers must render the metric as
// unavailable, never as zero.
func Daily(q *model.Quote) (abs, pct float64, ok bool) {
	if q == nil || q.Price <= 0 {
		return 0, 0, false
	}
	base := q.Open
	if base <= 0 {
		base = q.PrevClose
	}
	if base <= 0 {
		return 0, 0, false
	}
	abs = q.Price - base
	pct = abs / base * 100
	return abs, pct, true
}

// Hourly returns the change between the current price and the most
// recent sample at least MinHourlyAge older than the latest sample in
// bars. Bars must be ascending in time. ok is false when the series is
// empty or too short to reach back a full hour.
func Hourly(price float64, bars []model.Bar) (abs, pct float64, ok bool) {
	if price <= 0 || len(bars) < 2 {
		return 0, 0, false
	}
	cutoff := bars[len(bars)-1].Time.Add(-MinHourlyAge)
	// First index newer than the cutoff; the sample before it is the most
	// recent one old enough to serve as the reference.
	i := sort.Search(len(bars), func(i int) bool {
		return bars[i].Time.After(cutoff)
	})
	if i == 0 {
		return 0, 0, false
	}
	ref := bars[i-1].Close
	if ref <= 0 {
		return 0, 0, false
	}
	abs = price - ref
	pct = abs / ref * 100
	return abs, pct, true
}

// Compute derives the full metric set for a ticker from its current
// quote and its finest-grained history. Unavailable metrics stay nil.
func Compute(q *model.Quote, bars []model.Bar) model.DerivedMetrics {
	var m model.DerivedMetrics
	if q == nil {
		return m
	}
	if abs, pct, ok := Daily(q); ok {
		m.DailyAbs, m.DailyPct = ptr(abs), ptr(pct)
	}
	if abs, pct, ok := Hourly(q.Price, bars); ok {
		m.HourlyAbs, m.HourlyPct = ptr(abs), ptr(pct)
	}
	return m
}

func ptr(v float64) *float64 { return &v }
