package settings

import (
	"encoding/json"
	"os"
	"sort"
	"time"

	"github.com/navillusj/ASX-Share-Monitor/internal/model"
	"github.com/navillusj/ASX-Share-Monitor/internal/timezone"
)

// Defaults returns the display settings used when nothing has been saved yet.
func Defaults() *model.Settings {
	return &model.Settings{
		TimeRange: model.DefaultTimeRange,
		Timezone:  timezone.DefaultZone,
		Tickers:   append([]string(nil), model.DefaultTickers...),
	}
}

// Load reads display settings from a JSON file. Returns the defaults if the
// file doesn't exist. A corrupt file also yields the defaults, together with
// the parse error so the caller can log it and keep going.
func Load(filePath string) (*model.Settings, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return Defaults(), nil
		}
		return Defaults(), err
	}
	var s model.Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return Defaults(), err
	}
	applyFallbacks(&s)
	return &s, nil
}

// Save writes display settings to a JSON file.
func Save(filePath string, s *model.Settings) error {
	s.Tickers = NormalizeWatchlist(s.Tickers)
	s.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filePath, data, 0644)
}

// NormalizeWatchlist canonicalizes, deduplicates and sorts a ticker list.
// Entries that normalize to nothing are dropped.
func NormalizeWatchlist(tickers []string) []string {
	seen := make(map[string]struct{}, len(tickers))
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		sym := model.NormalizeSymbol(t)
		if sym == "" {
			continue
		}
		if _, ok := seen[sym]; ok {
			continue
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// applyFallbacks replaces unusable fields with defaults so a stale or
// hand-edited file can never leave the app without a working view.
func applyFallbacks(s *model.Settings) {
	if _, ok := model.RangeByName(s.TimeRange); !ok {
		s.TimeRange = model.DefaultTimeRange
	}
	if s.Timezone == "" {
		s.Timezone = timezone.DefaultZone
	}
	s.Tickers = NormalizeWatchlist(s.Tickers)
	if len(s.Tickers) == 0 {
		s.Tickers = append([]string(nil), model.DefaultTickers...)
	}
}
