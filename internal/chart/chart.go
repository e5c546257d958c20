package chart

import (
	"sort"
	"time"

	"github.com/navillusj/ASX-Share-Monitor/internal/model"
	"github.com/navillusj/ASX-Share-Monitor/internal/store"
	"github.com/navillusj/ASX-Share-Monitor/internal/timezone"
)

// TooltipThresholdPx is the maximum horizontal screen distance at which a
// series contributes a tooltip entry.
const TooltipThresholdPx = 20.0

// Samples newer than this render with a time of day; older ones date-only.
const intradayWindow = 36 * time.Hour

// Point is one drawn sample, already in the display zone.
type Point struct {
	Time  time.Time
	Price float64
}

// Series is one drawn line.
type Series struct {
	Symbol  string
	Stale   bool
	Metrics model.DerivedMetrics
	Points  []Point
}

// TooltipEntry is one series' contribution to a tooltip query.
type TooltipEntry struct {
	Symbol     string
	Time       time.Time
	TimeLabel  string
	Price      float64
	Metrics    model.DerivedMetrics
	DistancePx float64
}

// View is the drawn set for one range: the visible series that hold data,
// normalized to the display zone, under a shared padded time domain.
// A View is immutable once built; rebuild it after each reconcile or
// visibility change.
type View struct {
	series   []Series
	min, max time.Time
	now      func() time.Time
}

// Build assembles the drawn set from range histories. Hidden series and
// series without samples are left out of both drawing and tooltip
// resolution; their cached history stays in the store untouched.
func Build(histories []store.SeriesHistory, tz *timezone.Normalizer) *View {
	v := &View{now: time.Now}

	var rawMin, rawMax time.Time
	for _, h := range histories {
		if !h.Visible || len(h.Bars) == 0 {
			continue
		}
		s := Series{
			Symbol:  h.Symbol,
			Stale:   h.Stale,
			Metrics: h.Metrics,
			Points:  make([]Point, len(h.Bars)),
		}
		for i, b := range h.Bars {
			s.Points[i] = Point{Time: tz.ToDisplay(b.Time), Price: b.Close}
		}
		first, last := s.Points[0].Time, s.Points[len(s.Points)-1].Time
		if rawMin.IsZero() || first.Before(rawMin) {
			rawMin = first
		}
		if rawMax.IsZero() || last.After(rawMax) {
			rawMax = last
		}
		v.series = append(v.series, s)
	}

	if len(v.series) == 0 {
		return v
	}

	// Pad the domain by 0.5% of the span on each side so lines don't touch
	// the plot edge. A single-instant domain gets a minute instead.
	pad := time.Duration(float64(rawMax.Sub(rawMin)) * 0.005)
	if pad == 0 {
		pad = time.Minute
	}
	v.min = rawMin.Add(-pad)
	v.max = rawMax.Add(pad)
	return v
}

// Empty reports whether nothing is drawn.
func (v *View) Empty() bool { return len(v.series) == 0 }

// Series returns the drawn lines in watchlist order.
func (v *View) Series() []Series { return v.series }

// Domain returns the shared padded time domain.
func (v *View) Domain() (time.Time, time.Time) { return v.min, v.max }

// Locate resolves a tooltip query at a pointer x-position on a plot of the
// given pixel width. For each drawn series it finds the sample nearest in
// screen distance (ties toward the earlier sample) and returns every series
// within TooltipThresholdPx, nearest first. Several close-together lines
// therefore produce several entries, not just the single best.
func (v *View) Locate(pointerX, plotWidth float64) []TooltipEntry {
	if v.Empty() || plotWidth <= 0 {
		return nil
	}
	span := v.max.Sub(v.min)
	if span <= 0 {
		return nil
	}
	pxPerNano := plotWidth / float64(span)
	target := v.min.Add(time.Duration(pointerX / pxPerNano))

	cutoff := v.now().Add(-intradayWindow)

	var entries []TooltipEntry
	for _, s := range v.series {
		p := s.Points[nearestIdx(s.Points, target)]
		dist := float64(absDuration(p.Time.Sub(target))) * pxPerNano
		if dist >= TooltipThresholdPx {
			continue
		}
		entries = append(entries, TooltipEntry{
			Symbol:     s.Symbol,
			Time:       p.Time,
			TimeLabel:  timeLabel(p.Time, cutoff),
			Price:      p.Price,
			Metrics:    s.Metrics,
			DistancePx: dist,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].DistancePx < entries[j].DistancePx
	})
	return entries
}

// nearestIdx finds the sample closest in time to target; on an exact tie
// between neighbours the earlier sample wins.
func nearestIdx(points []Point, target time.Time) int {
	i := sort.Search(len(points), func(k int) bool {
		return !points[k].Time.Before(target)
	})
	if i == 0 {
		return 0
	}
	if i == len(points) {
		return len(points) - 1
	}
	before := target.Sub(points[i-1].Time)
	after := points[i].Time.Sub(target)
	if after < before {
		return i
	}
	return i - 1
}

func timeLabel(t, intradayCutoff time.Time) string {
	if t.After(intradayCutoff) {
		return t.Format("2006-01-02 15:04:05")
	}
	return t.Format("2006-01-02")
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
