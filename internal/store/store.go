package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/navillusj/ASX-Share-Monitor/internal/metrics"
	"github.com/navillusj/ASX-Share-Monitor/internal/model"
)

// entry is the store-private state for one ticker.
type entry struct {
	symbol    string
	quote     *model.Quote
	stale     bool
	failures  int
	lastErr   string
	visible   bool
	history   map[string][]model.Bar
	fetchedAt map[string]time.Time
}

// finestBars returns the history of the shortest-window range that has
// data, the feed for hourly change.
func (e *entry) finestBars() []model.Bar {
	ranges := model.TimeRanges()
	for i := len(ranges) - 1; i >= 0; i-- {
		if bars := e.history[ranges[i].Name]; len(bars) > 0 {
			return bars
		}
	}
	return nil
}

// TickerSnapshot is a consistent read-only copy of one ticker's state.
// Metrics are derived from the quote and history under the same lock the
// copy is taken with.
type TickerSnapshot struct {
	Symbol    string
	Quote     *model.Quote
	Stale     bool
	Failures  int
	LastError string
	Visible   bool
	Metrics   model.DerivedMetrics
}

// SeriesHistory is the chart-facing projection of one ticker at a given
// range.
type SeriesHistory struct {
	Symbol  string
	Visible bool
	Stale   bool
	Metrics model.DerivedMetrics
	Bars    []model.Bar
}

// CycleResult carries one ticker's outcomes from a refresh cycle into
// reconciliation. Histories holds only successfully fetched ranges.
type CycleResult struct {
	Symbol    string
	Quote     *model.Quote
	QuoteErr  error
	Histories map[string][]model.Bar
}

// ReconcileStats summarizes one batch reconciliation.
type ReconcileStats struct {
	QuotesApplied     int
	QuotesFailed      int
	Discarded         int
	HistoriesApplied  int
	HistoriesRejected int
	Rejections        []error
}

// Store is the single source of truth for all monitored tickers. All
// mutation is serialized by one mutex; readers receive deep copies and
// never observe a partially applied refresh cycle.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
	changes chan struct{}
	now     func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		entries: make(map[string]*entry),
		changes: make(chan struct{}, 1),
		now:     time.Now,
	}
}

// Changes signals that projections should be re-pulled. The channel is
// coalescing: notifications collapse while nobody is receiving.
func (s *Store) Changes() <-chan struct{} {
	return s.changes
}

func (s *Store) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// Add normalizes a raw symbol and creates its state with empty history
// and the series visible on the chart. It returns the canonical symbol,
// failing with ErrEmptySymbol or ErrDuplicateTicker.
func (s *Store) Add(raw string) (string, error) {
	symbol := model.NormalizeSymbol(raw)
	if symbol == "" {
		return "", fmt.Errorf("add %q: %w", raw, ErrEmptySymbol)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[symbol]; exists {
		return "", fmt.Errorf("add %s: %w", symbol, ErrDuplicateTicker)
	}
	s.entries[symbol] = &entry{
		symbol:    symbol,
		visible:   true,
		history:   make(map[string][]model.Bar),
		fetchedAt: make(map[string]time.Time),
	}
	s.order = append(s.order, symbol)
	s.notify()
	return symbol, nil
}

// Remove deletes a ticker and all its state, failing with
// ErrUnknownTicker when it is not monitored.
func (s *Store) Remove(symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[symbol]; !exists {
		return fmt.Errorf("remove %s: %w", symbol, ErrUnknownTicker)
	}
	delete(s.entries, symbol)
	for i, sym := range s.order {
		if sym == symbol {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.notify()
	return nil
}

// ApplyQuote replaces a ticker's quote after a successful fetch, clearing
// staleness and the consecutive-failure counter.
func (s *Store) ApplyQuote(symbol string, q model.Quote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.applyQuoteLocked(symbol, q); err != nil {
		return err
	}
	s.notify()
	return nil
}

func (s *Store) applyQuoteLocked(symbol string, q model.Quote) error {
	e, exists := s.entries[symbol]
	if !exists {
		return fmt.Errorf("apply quote %s: %w", symbol, ErrUnknownTicker)
	}
	qc := q
	e.quote = &qc
	e.stale = false
	e.failures = 0
	e.lastErr = ""
	return nil
}

// RecordFailure marks a fetch failure: the previous quote is retained,
// the ticker is flagged stale, and the consecutive-failure counter
// grows. It returns the updated counter.
func (s *Store) RecordFailure(symbol string, fetchErr error) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.recordFailureLocked(symbol, fetchErr)
	if err != nil {
		return 0, err
	}
	s.notify()
	return n, nil
}

func (s *Store) recordFailureLocked(symbol string, fetchErr error) (int, error) {
	e, exists := s.entries[symbol]
	if !exists {
		return 0, fmt.Errorf("record failure %s: %w", symbol, ErrUnknownTicker)
	}
	e.stale = true
	e.failures++
	if fetchErr != nil {
		e.lastErr = fetchErr.Error()
	}
	return e.failures, nil
}

// ApplyHistory atomically replaces one range's sequence. Sequences must
// be strictly ascending in timestamp; violations fail with
// ErrUnsortedHistory and leave the prior sequence untouched. An empty
// sequence is a no-op.
func (s *Store) ApplyHistory(symbol, rangeName string, bars []model.Bar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.applyHistoryLocked(symbol, rangeName, bars); err != nil {
		return err
	}
	s.notify()
	return nil
}

func (s *Store) applyHistoryLocked(symbol, rangeName string, bars []model.Bar) error {
	if _, ok := model.RangeByName(rangeName); !ok {
		return fmt.Errorf("apply history %s: %q: %w", symbol, rangeName, ErrUnknownRange)
	}
	e, exists := s.entries[symbol]
	if !exists {
		return fmt.Errorf("apply history %s: %w", symbol, ErrUnknownTicker)
	}
	if len(bars) == 0 {
		return nil
	}
	for i := 1; i < len(bars); i++ {
		if !bars[i].Time.After(bars[i-1].Time) {
			return fmt.Errorf("apply history %s %q at index %d: %w", symbol, rangeName, i, ErrUnsortedHistory)
		}
	}
	seq := make([]model.Bar, len(bars))
	copy(seq, bars)
	e.history[rangeName] = seq
	e.fetchedAt[rangeName] = s.now()
	return nil
}

// Reconcile applies one refresh cycle's outcomes as a single batch under
// the writer lock, so readers see either none or all of the cycle.
// Results for tickers removed mid-cycle are silently discarded. One
// change notification fires at the end.
func (s *Store) Reconcile(results []CycleResult) ReconcileStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats ReconcileStats
	for _, r := range results {
		if _, exists := s.entries[r.Symbol]; !exists {
			stats.Discarded++
			continue
		}
		if r.QuoteErr != nil {
			s.recordFailureLocked(r.Symbol, r.QuoteErr)
			stats.QuotesFailed++
		} else if r.Quote != nil {
			s.applyQuoteLocked(r.Symbol, *r.Quote)
			stats.QuotesApplied++
		}
		for rangeName, bars := range r.Histories {
			if err := s.applyHistoryLocked(r.Symbol, rangeName, bars); err != nil {
				stats.HistoriesRejected++
				stats.Rejections = append(stats.Rejections, err)
				continue
			}
			stats.HistoriesApplied++
		}
	}
	s.notify()
	return stats
}

// SetVisible flips a ticker's chart visibility. History is never
// discarded by visibility changes.
func (s *Store) SetVisible(symbol string, visible bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, exists := s.entries[symbol]
	if !exists {
		return fmt.Errorf("set visible %s: %w", symbol, ErrUnknownTicker)
	}
	e.visible = visible
	s.notify()
	return nil
}

// Snapshot returns insertion-ordered deep copies of every ticker with
// metrics derived under the read lock, so a row's metrics always match
// the quote and history it was copied with.
func (s *Store) Snapshot() []TickerSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]TickerSnapshot, 0, len(s.order))
	for _, symbol := range s.order {
		e := s.entries[symbol]
		snap := TickerSnapshot{
			Symbol:    e.symbol,
			Stale:     e.stale,
			Failures:  e.failures,
			LastError: e.lastErr,
			Visible:   e.visible,
			Metrics:   metrics.Compute(e.quote, e.finestBars()),
		}
		if e.quote != nil {
			qc := *e.quote
			snap.Quote = &qc
		}
		out = append(out, snap)
	}
	return out
}

// RangeSnapshot returns insertion-ordered copies of every ticker's
// history at the given range, with visibility and metrics for chart
// drawing and tooltips.
func (s *Store) RangeSnapshot(rangeName string) []SeriesHistory {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]SeriesHistory, 0, len(s.order))
	for _, symbol := range s.order {
		e := s.entries[symbol]
		sh := SeriesHistory{
			Symbol:  e.symbol,
			Visible: e.visible,
			Stale:   e.stale,
			Metrics: metrics.Compute(e.quote, e.finestBars()),
		}
		if bars := e.history[rangeName]; len(bars) > 0 {
			sh.Bars = make([]model.Bar, len(bars))
			copy(sh.Bars, bars)
		}
		out = append(out, sh)
	}
	return out
}

// History returns a copy of one ticker's cached sequence for a range.
func (s *Store) History(symbol, rangeName string) ([]model.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, exists := s.entries[symbol]
	if !exists {
		return nil, fmt.Errorf("history %s: %w", symbol, ErrUnknownTicker)
	}
	bars := e.history[rangeName]
	if len(bars) == 0 {
		return nil, nil
	}
	out := make([]model.Bar, len(bars))
	copy(out, bars)
	return out, nil
}

// NeedsHistory reports whether a range's cache is stale per its cadence:
// never fetched, or fetched longer ago than the range TTL. A zero TTL
// refreshes every cycle.
func (s *Store) NeedsHistory(symbol, rangeName string, now time.Time) bool {
	r, ok := model.RangeByName(rangeName)
	if !ok {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, exists := s.entries[symbol]
	if !exists {
		return false
	}
	fetched, ok := e.fetchedAt[rangeName]
	if !ok {
		return true
	}
	return now.Sub(fetched) >= r.TTL
}

// Symbols returns the monitored symbols in insertion order.
func (s *Store) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Len returns the number of monitored tickers.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
