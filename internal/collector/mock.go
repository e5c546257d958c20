package collector

import (
	"context"
	"sync"
	"time"

	"github.com/navillusj/ASX-Share-Monitor/internal/model"
)

// MockSource returns controllable fixed data for development and
// testing. Every fetch is counted per symbol so tests can assert that
// cached data is reused instead of refetched.
type MockSource struct {
	mu         sync.Mutex
	basePrice  float64
	quotes     map[string]model.Quote
	bars       map[string][]model.Bar
	quoteErrs  map[string]error
	barsErrs   map[string]error
	quoteCalls map[string]int
	barsCalls  map[string]int
}

var _ Source = (*MockSource)(nil)

// NewMockSource creates a mock whose generated quotes hover around
// basePrice.
func NewMockSource(basePrice float64) *MockSource {
	return &MockSource{
		basePrice:  basePrice,
		quotes:     make(map[string]model.Quote),
		bars:       make(map[string][]model.Bar),
		quoteErrs:  make(map[string]error),
		barsErrs:   make(map[string]error),
		quoteCalls: make(map[string]int),
		barsCalls:  make(map[string]int),
	}
}

func (m *MockSource) Name() string { return "mock" }

// SetQuote cans the quote returned for its symbol.
func (m *MockSource) SetQuote(q model.Quote) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes[q.Symbol] = q
}

// SetQuoteError makes quote fetches for a symbol fail.
func (m *MockSource) SetQuoteError(symbol string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quoteErrs[symbol] = err
}

// SetBars cans the sequence returned for a symbol at a range.
func (m *MockSource) SetBars(symbol, rangeName string, bars []model.Bar) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bars[symbol+"|"+rangeName] = bars
}

// SetBarsError makes history fetches for a symbol at a range fail.
func (m *MockSource) SetBarsError(symbol, rangeName string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.barsErrs[symbol+"|"+rangeName] = err
}

// QuoteCalls reports how many quote fetches a symbol has seen.
func (m *MockSource) QuoteCalls(symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.quoteCalls[symbol]
}

// BarsCalls reports how many history fetches a symbol has seen at a
// range.
func (m *MockSource) BarsCalls(symbol, rangeName string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.barsCalls[symbol+"|"+rangeName]
}

func (m *MockSource) FetchQuote(ctx context.Context, symbol string) (*model.Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quoteCalls[symbol]++
	if err := m.quoteErrs[symbol]; err != nil {
		return nil, err
	}
	if q, ok := m.quotes[symbol]; ok {
		qc := q
		return &qc, nil
	}
	return &model.Quote{
		Symbol:     symbol,
		Price:      m.basePrice,
		Open:       m.basePrice * 0.99,
		PrevClose:  m.basePrice * 0.985,
		Time:       time.Now(),
		SourceZone: "Australia/Sydney",
	}, nil
}

func (m *MockSource) FetchBars(ctx context.Context, symbol string, r model.TimeRange) ([]model.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.barsCalls[symbol+"|"+r.Name]++
	if err := m.barsErrs[symbol+"|"+r.Name]; err != nil {
		return nil, err
	}
	if bars, ok := m.bars[symbol+"|"+r.Name]; ok {
		out := make([]model.Bar, len(bars))
		copy(out, bars)
		return out, nil
	}
	return generateBars(m.basePrice, r), nil
}

// generateBars builds an ascending sequence ending now, sampled at the
// range's interval.
func generateBars(basePrice float64, r model.TimeRange) []model.Bar {
	step := intervalDuration(r.Interval)
	count := int(r.Fetch / step)
	if count > 200 {
		count = 200
	}
	if count < 2 {
		count = 2
	}
	end := time.Now()
	bars := make([]model.Bar, count)
	for i := 0; i < count; i++ {
		p := basePrice * (1 + float64(i-count/2)*0.001)
		bars[i] = model.Bar{
			Time:   end.Add(-time.Duration(count-1-i) * step),
			Open:   p * 0.999,
			High:   p * 1.005,
			Low:    p * 0.995,
			Close:  p,
			Volume: 1000000,
		}
	}
	return bars
}

func intervalDuration(interval string) time.Duration {
	switch interval {
	case "1wk":
		return 7 * 24 * time.Hour
	case "1d":
		return 24 * time.Hour
	case "1h":
		return time.Hour
	case "15m":
		return 15 * time.Minute
	case "5m":
		return 5 * time.Minute
	default:
		return time.Minute
	}
}
