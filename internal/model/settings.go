package model

import "time"

// Settings holds the user-facing display configuration persisted between
// runs.
type Settings struct {
	TimeRange string    `json:"time_range"`
	Timezone  string    `json:"timezone"`
	Tickers   []string  `json:"tickers"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultTickers seed the watchlist on first run.
var DefaultTickers = []string{"BHP.AX", "PL8.AX"}
