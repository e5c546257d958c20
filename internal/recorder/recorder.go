package recorder

import (
	"time"

	"github.com/google/uuid"
)

// Cycle triggers.
const (
	TriggerInterval    = "interval"
	TriggerManual      = "manual"
	TriggerRangeChange = "range-change"
)

// QuoteRecord holds the outcome of one ticker's fetch within a cycle.
type QuoteRecord struct {
	Symbol string
	Price  float64 // zero when the fetch failed
	Error  string  // empty on success
}

// CycleRecord holds all data for one completed refresh cycle.
type CycleRecord struct {
	ID        uuid.UUID
	Trigger   string
	StartedAt time.Time
	Duration  time.Duration
	Attempted int
	Succeeded int
	Failed    int
	Quotes    []QuoteRecord
}

// Recorder persists refresh history for analysis.
type Recorder interface {
	RecordCycle(rec *CycleRecord) error
	Close() error
}
