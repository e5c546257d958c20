package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/navillusj/ASX-Share-Monitor/internal/collector"
	"github.com/navillusj/ASX-Share-Monitor/internal/model"
	"github.com/navillusj/ASX-Share-Monitor/internal/recorder"
	"github.com/navillusj/ASX-Share-Monitor/internal/store"
)

// captureRecorder keeps cycle records in memory for assertions.
type captureRecorder struct {
	mu      sync.Mutex
	records []*recorder.CycleRecord
}

func (c *captureRecorder) RecordCycle(r *recorder.CycleRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, r)
	return nil
}

func (c *captureRecorder) Close() error { return nil }

func (c *captureRecorder) last(t *testing.T) *recorder.CycleRecord {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.records) == 0 {
		t.Fatal("no cycle recorded")
	}
	return c.records[len(c.records)-1]
}

// stallSource holds every quote fetch until release is closed, so tests can
// observe a cycle mid-flight.
type stallSource struct {
	inner   collector.Source
	entered chan string
	release chan struct{}
}

func newStallSource(inner collector.Source) *stallSource {
	return &stallSource{inner: inner, entered: make(chan string, 16), release: make(chan struct{})}
}

func (s *stallSource) Name() string { return "stall" }

func (s *stallSource) FetchQuote(ctx context.Context, symbol string) (*model.Quote, error) {
	s.entered <- symbol
	select {
	case <-s.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.inner.FetchQuote(ctx, symbol)
}

func (s *stallSource) FetchBars(ctx context.Context, symbol string, r model.TimeRange) ([]model.Bar, error) {
	return s.inner.FetchBars(ctx, symbol, r)
}

func newTestStore(t *testing.T, symbols ...string) *store.Store {
	t.Helper()
	st := store.New()
	for _, sym := range symbols {
		if _, err := st.Add(sym); err != nil {
			t.Fatalf("Add(%q) failed: %v", sym, err)
		}
	}
	return st
}

func TestRunNow_AppliesQuotesAndHistories(t *testing.T) {
	st := newTestStore(t, "BHP", "CBA")
	mock := collector.NewMockSource(45)
	mock.SetQuote(model.Quote{Symbol: "BHP.AX", Price: 45.20, Open: 45.00, Time: time.Now()})
	rec := &captureRecorder{}

	s := New(Config{ActiveRange: "30 Days"}, mock, st, rec)
	if !s.RunNow() {
		t.Fatal("RunNow should have run a cycle")
	}

	snaps := st.Snapshot()
	if len(snaps) != 2 {
		t.Fatalf("expected 2 tickers, got %d", len(snaps))
	}
	if snaps[0].Quote == nil || snaps[0].Quote.Price != 45.20 {
		t.Errorf("BHP quote not applied: %+v", snaps[0].Quote)
	}
	if snaps[1].Quote == nil {
		t.Error("CBA should carry a generated quote")
	}

	// Both the active range and the metrics range are fetched on the
	// first cycle.
	for _, rangeName := range []string{"30 Days", model.MetricsTimeRange} {
		bars, err := st.History("BHP.AX", rangeName)
		if err != nil || len(bars) == 0 {
			t.Errorf("history %q not applied: %v", rangeName, err)
		}
	}

	last := rec.last(t)
	if last.Trigger != recorder.TriggerManual || last.Attempted != 2 || last.Succeeded != 2 {
		t.Errorf("cycle record = %+v, want manual/2/2", last)
	}
	if last.ID == uuid.Nil {
		t.Error("cycle record must carry an ID")
	}
	if got := s.State(); got != StateIdle {
		t.Errorf("state after cycle = %v, want idle", got)
	}
}

func TestRunNow_PartialFailureIsolation(t *testing.T) {
	st := newTestStore(t, "BHP", "CBA")
	mock := collector.NewMockSource(45)
	mock.SetQuoteError("CBA.AX", errors.New("HTTP 502"))
	rec := &captureRecorder{}

	s := New(Config{ActiveRange: "30 Days"}, mock, st, rec)
	if !s.RunNow() {
		t.Fatal("RunNow should have run a cycle")
	}

	snaps := st.Snapshot()
	if snaps[0].Quote == nil || snaps[0].Stale {
		t.Error("BHP must update normally despite CBA failing")
	}
	if !snaps[1].Stale || snaps[1].Failures != 1 {
		t.Errorf("CBA should be stale with 1 failure, got stale=%v failures=%d",
			snaps[1].Stale, snaps[1].Failures)
	}

	last := rec.last(t)
	if last.Succeeded != 1 || last.Failed != 1 {
		t.Errorf("record = %d ok / %d failed, want 1/1", last.Succeeded, last.Failed)
	}
}

func TestRunNow_KeepsFetchingPastFailureThreshold(t *testing.T) {
	st := newTestStore(t, "BHP")
	mock := collector.NewMockSource(45)
	mock.SetQuoteError("BHP.AX", errors.New("HTTP 502"))

	s := New(Config{ActiveRange: "30 Days", FailureThreshold: 2}, mock, st, nil)
	for i := 0; i < 3; i++ {
		if !s.RunNow() {
			t.Fatalf("cycle %d should have run", i+1)
		}
	}

	if got := mock.QuoteCalls("BHP.AX"); got != 3 {
		t.Errorf("quote fetched %d times, want one per cycle past the threshold", got)
	}
	snap := st.Snapshot()[0]
	if !snap.Stale || snap.Failures != 3 {
		t.Errorf("got stale=%v failures=%d, want stale with 3 consecutive failures", snap.Stale, snap.Failures)
	}
}

func TestRunNow_ReusesFreshHistories(t *testing.T) {
	st := newTestStore(t, "BHP")
	mock := collector.NewMockSource(45)

	s := New(Config{ActiveRange: "30 Days"}, mock, st, nil)
	s.RunNow()
	s.RunNow()

	// "30 Days" has an hour-long cadence, so the second cycle must reuse
	// the cache; the metrics feed refreshes every cycle.
	if got := mock.BarsCalls("BHP.AX", "30 Days"); got != 1 {
		t.Errorf("30 Days fetched %d times, want 1", got)
	}
	if got := mock.BarsCalls("BHP.AX", model.MetricsTimeRange); got != 2 {
		t.Errorf("metrics range fetched %d times, want 2", got)
	}
	if got := mock.QuoteCalls("BHP.AX"); got != 2 {
		t.Errorf("quotes fetched %d times, want one per cycle", got)
	}
}

func TestVisibilityToggleTriggersNoFetch(t *testing.T) {
	st := newTestStore(t, "BHP")
	mock := collector.NewMockSource(45)

	s := New(Config{ActiveRange: "30 Days"}, mock, st, nil)
	s.RunNow()
	base := mock.BarsCalls("BHP.AX", "30 Days")

	if err := st.SetVisible("BHP.AX", false); err != nil {
		t.Fatal(err)
	}
	if err := st.SetVisible("BHP.AX", true); err != nil {
		t.Fatal(err)
	}
	s.RunNow()

	if got := mock.BarsCalls("BHP.AX", "30 Days"); got != base {
		t.Errorf("visibility toggle caused %d extra history fetches", got-base)
	}
	series := st.RangeSnapshot("30 Days")
	if len(series) != 1 || !series[0].Visible || len(series[0].Bars) == 0 {
		t.Error("ticker must return to the drawn set with its cached history")
	}
}

func TestRunNow_DropsOverlappingTrigger(t *testing.T) {
	st := newTestStore(t, "BHP")
	src := newStallSource(collector.NewMockSource(45))

	s := New(Config{ActiveRange: "30 Days"}, src, st, nil)

	done := make(chan bool, 1)
	go func() { done <- s.RunNow() }()

	<-src.entered
	if s.RunNow() {
		t.Error("a trigger during a running cycle must be dropped, not queued")
	}
	if got := s.State(); got != StateFetching {
		t.Errorf("state mid-cycle = %v, want fetching", got)
	}

	close(src.release)
	if !<-done {
		t.Error("the original cycle should have completed")
	}
}

func TestCycle_DiscardsTickerRemovedMidFlight(t *testing.T) {
	st := newTestStore(t, "BHP", "CBA")
	src := newStallSource(collector.NewMockSource(45))

	s := New(Config{ActiveRange: "30 Days"}, src, st, nil)

	done := make(chan bool, 1)
	go func() { done <- s.RunNow() }()

	// Both fetches in flight; drop CBA before they finish.
	<-src.entered
	<-src.entered
	if err := st.Remove("CBA.AX"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	close(src.release)
	<-done

	snaps := st.Snapshot()
	if len(snaps) != 1 || snaps[0].Symbol != "BHP.AX" {
		t.Fatalf("expected only BHP after removal, got %+v", snaps)
	}
	if snaps[0].Quote == nil {
		t.Error("the surviving ticker's result must still apply")
	}
}

func TestSetActiveRange(t *testing.T) {
	st := newTestStore(t, "BHP")
	mock := collector.NewMockSource(45)

	s := New(Config{ActiveRange: "30 Days"}, mock, st, nil)
	s.RunNow()

	if err := s.SetActiveRange("90 Days"); err == nil {
		t.Error("unknown range must be rejected")
	} else if !errors.Is(err, store.ErrUnknownRange) {
		t.Errorf("error = %v, want ErrUnknownRange", err)
	}

	if err := s.SetActiveRange("7 Days"); err != nil {
		t.Fatalf("SetActiveRange failed: %v", err)
	}
	if got := s.ActiveRange().Name; got != "7 Days" {
		t.Errorf("ActiveRange = %q, want 7 Days", got)
	}

	// The switch kicks an asynchronous cycle that pulls the new range.
	deadline := time.After(2 * time.Second)
	for mock.BarsCalls("BHP.AX", "7 Days") == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for the range-change cycle")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

type gaugeSource struct {
	inner collector.Source
	mu    sync.Mutex
	cur   int
	max   int
}

func (g *gaugeSource) Name() string { return "gauge" }

func (g *gaugeSource) FetchQuote(ctx context.Context, symbol string) (*model.Quote, error) {
	g.mu.Lock()
	g.cur++
	if g.cur > g.max {
		g.max = g.cur
	}
	g.mu.Unlock()

	time.Sleep(10 * time.Millisecond)

	g.mu.Lock()
	g.cur--
	g.mu.Unlock()
	return g.inner.FetchQuote(ctx, symbol)
}

func (g *gaugeSource) FetchBars(ctx context.Context, symbol string, r model.TimeRange) ([]model.Bar, error) {
	return g.inner.FetchBars(ctx, symbol, r)
}

func TestCycle_BoundsConcurrency(t *testing.T) {
	st := newTestStore(t, "BHP", "CBA", "NAB", "WBC", "ANZ", "WES")
	src := &gaugeSource{inner: collector.NewMockSource(45)}

	s := New(Config{ActiveRange: "30 Days", Concurrency: 2}, src, st, nil)
	s.RunNow()

	src.mu.Lock()
	defer src.mu.Unlock()
	if src.max > 2 {
		t.Errorf("observed %d concurrent fetches, limit is 2", src.max)
	}
	if src.max == 0 {
		t.Error("no fetches observed")
	}
}

func TestStartStop(t *testing.T) {
	st := newTestStore(t, "BHP")
	mock := collector.NewMockSource(45)

	// Hour-long interval: only the startup cycle runs during the test.
	s := New(Config{Interval: time.Hour, ActiveRange: "30 Days"}, mock, st, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	select {
	case <-st.Changes():
	case <-time.After(2 * time.Second):
		t.Fatal("no change notification from the startup cycle")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}
