package model

import "strings"

// DefaultExchangeSuffix completes bare symbols, which are assumed to be
// ASX listings.
const DefaultExchangeSuffix = ".AX"

// NormalizeSymbol returns the canonical form of a raw ticker symbol:
// trimmed, uppercased, stray dots removed, and the default exchange
// suffix appended when no exchange qualifier is present. Normalizing an
// already-canonical symbol returns it unchanged. An empty result means
// the input held nothing usable.
func NormalizeSymbol(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.Trim(s, ".")
	if s == "" {
		return ""
	}
	if !strings.Contains(s, ".") {
		s += DefaultExchangeSuffix
	}
	return s
}
