package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/navillusj/ASX-Share-Monitor/internal/model"
)

// DefaultBaseURL is the public Yahoo Finance chart endpoint.
const DefaultBaseURL = "https://query1.finance.yahoo.com"

// YahooSource implements Source using the Yahoo Finance chart API.
type YahooSource struct {
	client     *http.Client
	baseURL    string
	retries    int
	retryDelay time.Duration
}

var _ Source = (*YahooSource)(nil)

// YahooOption configures a YahooSource.
type YahooOption func(*YahooSource)

// WithBaseURL overrides the API endpoint, used by tests and proxies.
func WithBaseURL(u string) YahooOption {
	return func(s *YahooSource) { s.baseURL = u }
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) YahooOption {
	return func(s *YahooSource) { s.client.Timeout = d }
}

// WithRetries sets how many times transient failures are retried.
func WithRetries(n int) YahooOption {
	return func(s *YahooSource) {
		if n >= 0 {
			s.retries = n
		}
	}
}

// WithRetryDelay sets the base backoff between retries.
func WithRetryDelay(d time.Duration) YahooOption {
	return func(s *YahooSource) { s.retryDelay = d }
}

// WithProxy routes requests through an HTTP proxy.
func WithProxy(proxyURL string) YahooOption {
	return func(s *YahooSource) {
		if u, err := url.Parse(proxyURL); err == nil && proxyURL != "" {
			s.client.Transport = &http.Transport{Proxy: http.ProxyURL(u)}
		}
	}
}

// NewYahooSource creates a Yahoo Finance source.
func NewYahooSource(opts ...YahooOption) *YahooSource {
	s := &YahooSource{
		client:     &http.Client{Timeout: 15 * time.Second},
		baseURL:    DefaultBaseURL,
		retries:    2,
		retryDelay: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *YahooSource) Name() string { return "yahoo" }

// yahooChart is the response structure from the Yahoo Finance chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol               string  `json:"symbol"`
				Currency             string  `json:"currency"`
				ExchangeTimezoneName string  `json:"exchangeTimezoneName"`
				RegularMarketPrice   float64 `json:"regularMarketPrice"`
				RegularMarketTime    int64   `json:"regularMarketTime"`
				ChartPreviousClose   float64 `json:"chartPreviousClose"`
				PreviousClose        float64 `json:"previousClose"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []interface{} `json:"open"`
					High   []interface{} `json:"high"`
					Low    []interface{} `json:"low"`
					Close  []interface{} `json:"close"`
					Volume []interface{} `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	meta struct {
		symbol     string
		zone       string
		price      float64
		prevClose  float64
		marketTime int64
	}
	bars []model.Bar
}

func toFloat(v interface{}) float64 {
	if v == nil {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}

// statusError reports a non-2xx response. Server-side and throttling
// statuses are retryable.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("yahoo: status %d, body: %s", e.code, e.body)
}

func (e *statusError) retryable() bool {
	return e.code >= 500 || e.code == http.StatusTooManyRequests
}

// FetchQuote returns the latest quote for a symbol from today's chart.
// The open comes from today's bar when present; a response without a
// positive market price is a failure.
func (s *YahooSource) FetchQuote(ctx context.Context, symbol string) (*model.Quote, error) {
	q := url.Values{}
	q.Set("interval", "1d")
	q.Set("range", "1d")

	res, err := s.fetchChart(ctx, symbol, q)
	if err != nil {
		return nil, err
	}
	if res.meta.price <= 0 {
		return nil, fmt.Errorf("yahoo: no current price for %s", symbol)
	}

	quote := &model.Quote{
		Symbol:     symbol,
		Price:      res.meta.price,
		PrevClose:  res.meta.prevClose,
		SourceZone: res.meta.zone,
	}
	if len(res.bars) > 0 {
		quote.Open = res.bars[len(res.bars)-1].Open
	}
	if res.meta.marketTime > 0 {
		quote.Time = time.Unix(res.meta.marketTime, 0)
	} else if len(res.bars) > 0 {
		quote.Time = res.bars[len(res.bars)-1].Time
	}
	return quote, nil
}

// FetchBars returns the bar sequence for a range, ascending and without
// duplicate timestamps. An empty response is a failure.
func (s *YahooSource) FetchBars(ctx context.Context, symbol string, r model.TimeRange) ([]model.Bar, error) {
	now := time.Now()
	q := url.Values{}
	q.Set("interval", r.Interval)
	q.Set("period1", fmt.Sprintf("%d", now.Add(-r.Fetch).Unix()))
	q.Set("period2", fmt.Sprintf("%d", now.Unix()))

	res, err := s.fetchChart(ctx, symbol, q)
	if err != nil {
		return nil, err
	}
	if len(res.bars) == 0 {
		return nil, fmt.Errorf("yahoo: no history for %s at %s", symbol, r.Name)
	}
	return res.bars, nil
}

func (s *YahooSource) fetchChart(ctx context.Context, symbol string, query url.Values) (*chartResult, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?%s", s.baseURL, url.PathEscape(symbol), query.Encode())

	body, err := s.getWithRetry(ctx, u)
	if err != nil {
		return nil, err
	}

	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("yahoo decode: %w", err)
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo api error: %s", chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 {
		return nil, fmt.Errorf("yahoo: no data returned for %s", symbol)
	}

	result := chart.Chart.Result[0]
	res := &chartResult{}
	res.meta.symbol = result.Meta.Symbol
	res.meta.zone = result.Meta.ExchangeTimezoneName
	res.meta.price = result.Meta.RegularMarketPrice
	res.meta.marketTime = result.Meta.RegularMarketTime
	res.meta.prevClose = result.Meta.ChartPreviousClose
	if res.meta.prevClose <= 0 {
		res.meta.prevClose = result.Meta.PreviousClose
	}

	if len(result.Timestamp) == 0 || len(result.Indicators.Quote) == 0 {
		return res, nil
	}
	quote := result.Indicators.Quote[0]
	bars := make([]model.Bar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(quote.Close) {
			break
		}
		c := toFloat(quote.Close[i])
		if c == 0 {
			continue // skip null bars (holidays, halted sessions)
		}
		bars = append(bars, model.Bar{
			Time:   time.Unix(ts, 0),
			Open:   toFloat(at(quote.Open, i)),
			High:   toFloat(at(quote.High, i)),
			Low:    toFloat(at(quote.Low, i)),
			Close:  c,
			Volume: toFloat(at(quote.Volume, i)),
		})
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	res.bars = dedupeBars(bars)
	return res, nil
}

func at(vals []interface{}, i int) interface{} {
	if i < len(vals) {
		return vals[i]
	}
	return nil
}

// dedupeBars drops repeated timestamps from a sorted sequence, keeping
// the later entry (the source occasionally repeats the in-progress bar).
func dedupeBars(bars []model.Bar) []model.Bar {
	if len(bars) < 2 {
		return bars
	}
	out := bars[:1]
	for _, b := range bars[1:] {
		if b.Time.Equal(out[len(out)-1].Time) {
			out[len(out)-1] = b
			continue
		}
		out = append(out, b)
	}
	return out
}

func (s *YahooSource) getWithRetry(ctx context.Context, u string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if attempt > 0 {
			backoff := s.retryDelay << (attempt - 1)
			// Fixed floor plus jitter so concurrent fetches spread out.
			wait := backoff/2 + time.Duration(rand.Int63n(int64(backoff)))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		body, err := s.get(ctx, u)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if se, ok := err.(*statusError); ok && !se.retryable() {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func (s *YahooSource) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yahoo fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("yahoo read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{code: resp.StatusCode, body: string(body)}
	}
	return body, nil
}
