package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/navillusj/ASX-Share-Monitor/internal/collector"
	"github.com/navillusj/ASX-Share-Monitor/internal/model"
	"github.com/navillusj/ASX-Share-Monitor/internal/recorder"
	"github.com/navillusj/ASX-Share-Monitor/internal/store"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// State is the refresh cycle phase.
type State int32

const (
	StateIdle State = iota
	StateFetching
	StateReconciling
)

func (st State) String() string {
	switch st {
	case StateFetching:
		return "fetching"
	case StateReconciling:
		return "reconciling"
	default:
		return "idle"
	}
}

// Config holds scheduler configuration.
type Config struct {
	Interval         time.Duration // cycle cadence
	Concurrency      int           // max concurrent ticker fetches
	FetchTimeout     time.Duration // per-ticker fetch budget
	FailureThreshold int           // consecutive quote failures before the stale warning
	ActiveRange      string        // display range driving history fetches
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:         30 * time.Second,
		Concurrency:      5,
		FetchTimeout:     20 * time.Second,
		FailureThreshold: 3,
		ActiveRange:      model.DefaultTimeRange,
	}
}

// Scheduler drives periodic refresh cycles: it fetches quotes and stale
// histories for every watched ticker concurrently, then reconciles the
// results into the store as one batch. At most one cycle runs at a time;
// triggers arriving while one is in flight are dropped, not queued.
type Scheduler struct {
	cfg    Config
	source collector.Source
	store  *store.Store
	rec    recorder.Recorder
	cron   *cron.Cron

	mu          sync.Mutex // guards activeRange, ctx, cancel
	activeRange model.TimeRange
	ctx         context.Context
	cancel      context.CancelFunc

	cycleMu sync.Mutex // held for the duration of one cycle
	state   atomic.Int32
	wg      sync.WaitGroup
}

// New creates a Scheduler. Zero config fields fall back to DefaultConfig.
func New(cfg Config, src collector.Source, st *store.Store, rec recorder.Recorder) *Scheduler {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = def.FetchTimeout
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	active, ok := model.RangeByName(cfg.ActiveRange)
	if !ok {
		active, _ = model.RangeByName(model.DefaultTimeRange)
	}
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	return &Scheduler{
		cfg:         cfg,
		source:      src,
		store:       st,
		rec:         rec,
		cron:        cron.New(cron.WithSeconds()),
		activeRange: active,
	}
}

// Start registers the periodic cycle and runs the first one immediately so
// the view has data before the first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	spec := fmt.Sprintf("@every %s", s.cfg.Interval)
	if _, err := s.cron.AddFunc(spec, func() { s.runCycle(recorder.TriggerInterval) }); err != nil {
		return fmt.Errorf("register refresh cycle: %w", err)
	}
	s.cron.Start()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runCycle(recorder.TriggerInterval)
	}()

	log.Printf("[INFO] scheduler started: interval=%s concurrency=%d range=%q",
		s.cfg.Interval, s.cfg.Concurrency, s.activeRange.Name)
	return nil
}

// Stop cancels in-flight fetches and waits for the current cycle to drain.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	stopped := s.cron.Stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		<-stopped.Done()
		close(done)
	}()

	select {
	case <-done:
		log.Println("[INFO] scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State reports the current cycle phase.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// RunNow triggers an immediate refresh cycle and blocks until it completes.
// Returns false if a cycle was already in flight (the trigger is dropped).
func (s *Scheduler) RunNow() bool {
	return s.runCycle(recorder.TriggerManual)
}

// ActiveRange returns the range whose history the cycles keep fresh.
func (s *Scheduler) ActiveRange() model.TimeRange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeRange
}

// SetActiveRange switches the display range and kicks off a cycle so tickers
// without cached history at the new range get it without waiting for the
// next tick. Cached ranges are reused, not refetched.
func (s *Scheduler) SetActiveRange(name string) error {
	r, ok := model.RangeByName(name)
	if !ok {
		return fmt.Errorf("%w: %q", store.ErrUnknownRange, name)
	}

	s.mu.Lock()
	changed := s.activeRange.Name != r.Name
	s.activeRange = r
	s.mu.Unlock()

	if changed {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runCycle(recorder.TriggerRangeChange)
		}()
	}
	return nil
}

// runContext returns the lifecycle context, or a background one when the
// scheduler is driven manually without Start.
func (s *Scheduler) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

func (s *Scheduler) setState(st State) {
	s.state.Store(int32(st))
}

// runCycle performs one Idle -> Fetching -> Reconciling -> Idle pass.
// Reports whether the cycle actually ran.
func (s *Scheduler) runCycle(trigger string) bool {
	if !s.cycleMu.TryLock() {
		log.Printf("[INFO] refresh already in flight, %s trigger dropped", trigger)
		return false
	}
	defer s.cycleMu.Unlock()

	ctx := s.runContext()
	if ctx.Err() != nil {
		return false
	}

	symbols := s.store.Symbols()
	if len(symbols) == 0 {
		return true
	}

	start := time.Now()
	ranges := s.cycleRanges()

	s.setState(StateFetching)
	defer s.setState(StateIdle)

	// Join-all barrier: every ticker's outcome lands in its slot before
	// anything is applied.
	results := make([]store.CycleResult, len(symbols))
	sem := make(chan struct{}, s.cfg.Concurrency)
	var wg sync.WaitGroup

	for i, sym := range symbols {
		wg.Add(1)
		go func(i int, sym string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[i] = store.CycleResult{Symbol: sym, QuoteErr: ctx.Err()}
				return
			}

			results[i] = s.fetchTicker(ctx, sym, ranges)
		}(i, sym)
	}
	wg.Wait()

	s.setState(StateReconciling)
	stats := s.store.Reconcile(results)

	for _, err := range stats.Rejections {
		log.Printf("[ERROR] reconcile: %v", err)
	}
	s.warnStaleTickers()

	s.record(trigger, start, results)

	log.Printf("[INFO] %s cycle done: %d tickers, %d quotes ok, %d failed, %d histories in %s",
		trigger, len(symbols), stats.QuotesApplied, stats.QuotesFailed,
		stats.HistoriesApplied, time.Since(start).Round(time.Millisecond))
	return true
}

// cycleRanges returns the ranges a cycle keeps fresh: the active display
// range plus the fine-grained range backing the hourly metrics.
func (s *Scheduler) cycleRanges() []model.TimeRange {
	s.mu.Lock()
	active := s.activeRange
	s.mu.Unlock()

	metrics, _ := model.RangeByName(model.MetricsTimeRange)
	if active.Name == metrics.Name {
		return []model.TimeRange{active}
	}
	return []model.TimeRange{active, metrics}
}

// fetchTicker fetches one ticker's quote and any stale histories. A quote
// failure never blocks the history fetches and vice versa.
func (s *Scheduler) fetchTicker(parent context.Context, sym string, ranges []model.TimeRange) store.CycleResult {
	res := store.CycleResult{Symbol: sym}

	ctx, cancel := context.WithTimeout(parent, s.cfg.FetchTimeout)
	defer cancel()

	q, err := s.source.FetchQuote(ctx, sym)
	if err != nil {
		log.Printf("[WARN] quote fetch %s: %v", sym, err)
		res.QuoteErr = err
	} else {
		res.Quote = q
	}

	for _, r := range ranges {
		if !s.store.NeedsHistory(sym, r.Name, time.Now()) {
			continue
		}
		bars, err := s.source.FetchBars(ctx, sym, r)
		if err != nil {
			// The range stays stale and is retried next cycle.
			log.Printf("[WARN] history fetch %s %s: %v", sym, r.Name, err)
			continue
		}
		if res.Histories == nil {
			res.Histories = make(map[string][]model.Bar, len(ranges))
		}
		res.Histories[r.Name] = bars
	}
	return res
}

// warnStaleTickers logs each ticker the moment its consecutive failure
// count reaches the threshold. The table keeps flagging it after that.
func (s *Scheduler) warnStaleTickers() {
	for _, snap := range s.store.Snapshot() {
		if snap.Failures == s.cfg.FailureThreshold {
			log.Printf("[WARN] %s stale after %d consecutive failures", snap.Symbol, snap.Failures)
		}
	}
}

func (s *Scheduler) record(trigger string, start time.Time, results []store.CycleResult) {
	rec := &recorder.CycleRecord{
		ID:        uuid.New(),
		Trigger:   trigger,
		StartedAt: start,
		Duration:  time.Since(start),
		Attempted: len(results),
	}
	for _, r := range results {
		qr := recorder.QuoteRecord{Symbol: r.Symbol}
		if r.QuoteErr != nil {
			qr.Error = r.QuoteErr.Error()
			rec.Failed++
		} else if r.Quote != nil {
			qr.Price = r.Quote.Price
			rec.Succeeded++
		}
		rec.Quotes = append(rec.Quotes, qr)
	}
	if err := s.rec.RecordCycle(rec); err != nil {
		log.Printf("[ERROR] record cycle: %v", err)
	}
}
