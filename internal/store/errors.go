package store

import "errors"

var (
	// ErrDuplicateTicker is returned when adding a symbol that is already
	// monitored.
	ErrDuplicateTicker = errors.New("duplicate ticker")

	// ErrUnknownTicker is returned when operating on a symbol that is not
	// in the store.
	ErrUnknownTicker = errors.New("unknown ticker")

	// ErrEmptySymbol is returned when a raw symbol normalizes to nothing.
	ErrEmptySymbol = errors.New("empty symbol")

	// ErrUnsortedHistory is returned when a history sequence is not
	// strictly ascending in timestamp. The prior sequence is left
	// untouched.
	ErrUnsortedHistory = errors.New("history not strictly ascending")

	// ErrUnknownRange is returned when a history operation names a range
	// outside the canonical set.
	ErrUnknownRange = errors.New("unknown range")
)
