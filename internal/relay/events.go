package relay

import (
	"encoding/json"
	"time"
)

// CountEvent is fanned out after an accepted counter change.
type CountEvent struct {
	Topic    string `json:"topic"`
	Pin      string `json:"pin"`
	Change   int    `json:"change"`
	NewCount int64  `json:"new_count"`
	TS       int64  `json:"ts"`
}

// ToggleEvent is fanned out after a toggle decision. A rejected toggle has
// NotAuthorized set and Enabled false; it changes no state.
type ToggleEvent struct {
	Pin           string `json:"pin"`
	Enabled       bool   `json:"enabled"`
	NotAuthorized bool   `json:"not_authorized,omitempty"`
	UUID          string `json:"uuid"`
	TS            int64  `json:"ts"`
}

// Broadcaster delivers an encoded event to viewers subscribed to pin.
type Broadcaster interface {
	Broadcast(pin string, payload []byte)
}

// CountRecorder receives accepted counter changes for telemetry.
type CountRecorder interface {
	RecordCount(pin string, change int, newCount int64, at time.Time)
}

// emit encodes event and hands it to out. Encoding these structs cannot
// fail, so an error is only logged.
func emit(out Broadcaster, logger Logger, pin string, event any) {
	if out == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		logger.Error("encoding event failed", "pin", pin, "error", err)
		return
	}
	out.Broadcast(pin, payload)
}

// Logger defines the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
