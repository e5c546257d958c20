package metrics

import (
	"math"
	"testing"
	"time"

	"github.com/navillusj/ASX-Share-Monitor/internal/model"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

// minuteBars builds n ascending one-minute bars ending at end, with the
// close price set by price(i) where i counts from the oldest bar.
func minuteBars(end time.Time, n int, price func(i int) float64) []model.Bar {
	bars := make([]model.Bar, n)
	for i := 0; i < n; i++ {
		bars[i] = model.Bar{
			Time:  end.Add(-time.Duration(n-1-i) * time.Minute),
			Close: price(i),
		}
	}
	return bars
}

func TestDaily_FromOpen(t *testing.T) {
	q := &model.Quote{Symbol: "BHP.AX", Price: 45.20, Open: 45.00}
	abs, pct, ok := Daily(q)
	if !ok {
		t.Fatal("expected daily change to be available")
	}
	if !approx(abs, 0.20) {
		t.Errorf("abs = %v, want 0.20", abs)
	}
	if !approx(pct, 0.20/45.00*100) {
		t.Errorf("pct = %v, want %v", pct, 0.20/45.00*100)
	}
}

func TestDaily_FallsBackToPrevClose(t *testing.T) {
	q := &model.Quote{Symbol: "CBA.AX", Price: 101.00, Open: 0, PrevClose: 100.00}
	abs, pct, ok := Daily(q)
	if !ok {
		t.Fatal("expected fallback to previous close")
	}
	if !approx(abs, 1.00) || !approx(pct, 1.00) {
		t.Errorf("got abs=%v pct=%v, want 1.00 and 1.00", abs, pct)
	}
}

func TestDaily_BothBasesMissing(t *testing.T) {
	q := &model.Quote{Symbol: "PL8.AX", Price: 1.50}
	if _, _, ok := Daily(q); ok {
		t.Error("expected unavailable daily change when open and previous close are both missing")
	}
}

func TestDaily_NilQuote(t *testing.T) {
	if _, _, ok := Daily(nil); ok {
		t.Error("expected unavailable daily change for nil quote")
	}
}

func TestHourly_UsesSampleAtLeastOneHourOld(t *testing.T) {
	end := time.Date(2024, 6, 3, 14, 0, 0, 0, time.UTC)
	// 90 one-minute bars: the reference must be the bar at exactly
	// end-60m, not anything newer.
	bars := minuteBars(end, 90, func(i int) float64 { return 40.0 + float64(i)*0.01 })
	price := 42.00
	refIdx := 90 - 1 - 60 // bar sitting exactly one hour before the latest
	want := price - bars[refIdx].Close

	abs, pct, ok := Hourly(price, bars)
	if !ok {
		t.Fatal("expected hourly change to be available")
	}
	if !approx(abs, want) {
		t.Errorf("abs = %v, want %v", abs, want)
	}
	if !approx(pct, want/bars[refIdx].Close*100) {
		t.Errorf("pct = %v, want %v", pct, want/bars[refIdx].Close*100)
	}
}

func TestHourly_SeriesTooShort(t *testing.T) {
	end := time.Date(2024, 6, 3, 14, 0, 0, 0, time.UTC)
	bars := minuteBars(end, 30, func(i int) float64 { return 40.0 })
	if _, _, ok := Hourly(42.0, bars); ok {
		t.Error("expected unavailable hourly change for a 30-minute series")
	}
}

func TestHourly_EmptyAndSingleSample(t *testing.T) {
	if _, _, ok := Hourly(42.0, nil); ok {
		t.Error("expected unavailable hourly change for empty history")
	}
	one := []model.Bar{{Time: time.Now(), Close: 41.0}}
	if _, _, ok := Hourly(42.0, one); ok {
		t.Error("expected unavailable hourly change for a single sample")
	}
}

func TestHourly_SparseSamplesPickMostRecentOldEnough(t *testing.T) {
	end := time.Date(2024, 6, 3, 14, 0, 0, 0, time.UTC)
	bars := []model.Bar{
		{Time: end.Add(-3 * time.Hour), Close: 10.0},
		{Time: end.Add(-90 * time.Minute), Close: 11.0},
		{Time: end.Add(-59 * time.Minute), Close: 12.0}, // too new
		{Time: end, Close: 13.0},
	}
	abs, _, ok := Hourly(13.0, bars)
	if !ok {
		t.Fatal("expected hourly change to be available")
	}
	if !approx(abs, 2.0) {
		t.Errorf("abs = %v, want 2.0 (reference must be the -90m sample)", abs)
	}
}

func TestCompute_AssemblesNullableFields(t *testing.T) {
	end := time.Date(2024, 6, 3, 14, 0, 0, 0, time.UTC)
	bars := minuteBars(end, 120, func(i int) float64 { return 45.0 })
	q := &model.Quote{Symbol: "BHP.AX", Price: 45.20, Open: 45.00}

	m := Compute(q, bars)
	if m.DailyAbs == nil || !approx(*m.DailyAbs, 0.20) {
		t.Errorf("DailyAbs = %v, want 0.20", m.DailyAbs)
	}
	if m.HourlyAbs == nil || !approx(*m.HourlyAbs, 0.20) {
		t.Errorf("HourlyAbs = %v, want 0.20", m.HourlyAbs)
	}

	bare := Compute(&model.Quote{Symbol: "X.AX", Price: 5}, nil)
	if bare.DailyAbs != nil || bare.DailyPct != nil {
		t.Error("expected nil daily fields without open or previous close")
	}
	if bare.HourlyAbs != nil || bare.HourlyPct != nil {
		t.Error("expected nil hourly fields without history")
	}

	empty := Compute(nil, bars)
	if empty.DailyAbs != nil || empty.HourlyAbs != nil {
		t.Error("expected zero metrics for nil quote")
	}
}
