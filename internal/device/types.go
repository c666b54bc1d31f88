package device

import (
	"fmt"
	"strings"
)

// Mode describes how the device itself interprets its physical pulse.
// It is reported to viewers and never applied server-side.
type Mode string

// Supported modes.
const (
	ModeIncrement Mode = "increment"
	ModeDecrement Mode = "decrement"
)

// DefaultMode is assigned to newly created devices.
const DefaultMode = ModeIncrement

// ParseMode normalises case and surrounding whitespace and validates the
// result. Any other value yields ErrInvalidMode.
func ParseMode(raw string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(raw)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, raw)
	}
	return m, nil
}

// Valid reports whether m is one of the supported modes.
func (m Mode) Valid() bool {
	return m == ModeIncrement || m == ModeDecrement
}

// Device is the persisted state of one counter.
type Device struct {
	Pin          string `json:"pin"`
	CurrentCount int64  `json:"current_count"`
	Enabled      bool   `json:"enabled"`
	Mode         Mode   `json:"mode"`
}

// LogEntry is one accepted change. Entries are never modified.
type LogEntry struct {
	ID       int64  `json:"id"`
	Pin      string `json:"pin"`
	Change   int    `json:"change"`
	NewCount int64  `json:"new_count"`
	// Timestamp is Unix seconds at receipt.
	Timestamp int64 `json:"ts"`
}

// Log query bounds.
const (
	DefaultLogLimit = 50
	MaxLogLimit     = 500
)

// ClampLogLimit maps a requested page size into [1, MaxLogLimit].
// Callers apply DefaultLogLimit when no size was requested.
func ClampLogLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	if limit > MaxLogLimit {
		return MaxLogLimit
	}
	return limit
}

// validChange reports whether delta is a unit step.
func validChange(delta int) bool {
	return delta == 1 || delta == -1
}
