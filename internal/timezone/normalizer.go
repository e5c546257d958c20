package timezone

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	// Embed the IANA database so supported zones resolve without host
	// tzdata.
	_ "time/tzdata"
)

// ErrInvalidTimezone indicates a zone identifier outside the supported
// set. Callers fall back to DefaultZone rather than failing outright.
var ErrInvalidTimezone = errors.New("invalid timezone")

// DefaultZone is used when no zone is configured or the configured one is
// invalid.
const DefaultZone = "Australia/Sydney"

// supportedZones are the selectable display zones. Sydney observes
// daylight saving, Brisbane and Perth do not.
var supportedZones = []string{
	"Australia/Sydney",
	"Australia/Brisbane",
	"Australia/Perth",
}

// SupportedZones returns the selectable zone identifiers in display order.
func SupportedZones() []string {
	out := make([]string, len(supportedZones))
	copy(out, supportedZones)
	return out
}

// Normalizer converts timestamps into the configured display timezone.
// Conversion never changes the instant, so applying it twice is the same
// as applying it once.
type Normalizer struct {
	mu   sync.RWMutex
	name string
	loc  *time.Location
}

// New returns a Normalizer for the given zone identifier, failing with
// ErrInvalidTimezone when it is not in the supported set.
func New(name string) (*Normalizer, error) {
	loc, err := load(name)
	if err != nil {
		return nil, err
	}
	return &Normalizer{name: name, loc: loc}, nil
}

// NewOrDefault returns a Normalizer for the given zone, falling back to
// DefaultZone when the name is invalid. The returned error reports the
// fallback; the Normalizer is always usable.
func NewOrDefault(name string) (*Normalizer, error) {
	n, err := New(name)
	if err == nil {
		return n, nil
	}
	fallback, ferr := New(DefaultZone)
	if ferr != nil {
		return nil, ferr
	}
	return fallback, err
}

func load(name string) (*time.Location, error) {
	supported := false
	for _, z := range supportedZones {
		if z == name {
			supported = true
			break
		}
	}
	if !supported {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, name)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load zone %q: %w", name, err)
	}
	return loc, nil
}

// ToDisplay converts a timestamp into the display zone.
func (n *Normalizer) ToDisplay(t time.Time) time.Time {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return t.In(n.loc)
}

// Zone returns the configured zone identifier.
func (n *Normalizer) Zone() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.name
}

// City returns the tail of the zone identifier, e.g. "Sydney", used for
// compact display labels.
func (n *Normalizer) City() string {
	zone := n.Zone()
	if i := strings.LastIndex(zone, "/"); i >= 0 {
		return zone[i+1:]
	}
	return zone
}

// SetZone switches the display zone, failing with ErrInvalidTimezone and
// leaving the current zone untouched when the name is not supported.
func (n *Normalizer) SetZone(name string) error {
	loc, err := load(name)
	if err != nil {
		return err
	}
	n.mu.Lock()
	n.name = name
	n.loc = loc
	n.mu.Unlock()
	return nil
}
