package collector

import (
	"context"

	"github.com/navillusj/ASX-Share-Monitor/internal/model"
)

// Source defines the interface for fetching market data. A failed or
// malformed response is always reported as an error, never as a
// zero-valued quote or empty sequence.
type Source interface {
	FetchQuote(ctx context.Context, symbol string) (*model.Quote, error)
	FetchBars(ctx context.Context, symbol string, r model.TimeRange) ([]model.Bar, error)
	Name() string
}
