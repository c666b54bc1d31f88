package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nerrad567/countrelay/internal/device"
)

// minTopicSegments is the shortest accepted topic: two prefix segments,
// the pin and the action.
const minTopicSegments = 4

// Topic actions.
const (
	ActionCount  = "count"
	ActionToggle = "toggle"
)

// CounterStore applies counter changes.
type CounterStore interface {
	ApplyChange(ctx context.Context, pin string, delta int, at time.Time) (int64, error)
}

// Stats counts routed messages by result.
type Stats struct {
	Processed uint64 `json:"processed"`
	Ignored   uint64 `json:"ignored"`
	Failed    uint64 `json:"failed"`
}

// Router parses device topics and dispatches them to the counter or the
// access-control path.
//
// Thread Safety:
//   - Route may be called concurrently; same-pin ordering is the caller's
//     responsibility (the Supervisor routes sequentially).
type Router struct {
	counters  CounterStore
	gate      *Gate
	out       Broadcaster
	telemetry CountRecorder
	logger    Logger

	processed atomic.Uint64
	ignored   atomic.Uint64
	failed    atomic.Uint64
}

// NewRouter creates a Router. out may be nil.
func NewRouter(counters CounterStore, gate *Gate, out Broadcaster) *Router {
	return &Router{
		counters: counters,
		gate:     gate,
		out:      out,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the router.
func (r *Router) SetLogger(logger Logger) {
	r.logger = logger
}

// SetTelemetry attaches an optional recorder for accepted counter changes.
func (r *Router) SetTelemetry(rec CountRecorder) {
	r.telemetry = rec
}

// Stats returns message totals since the router was created.
func (r *Router) Stats() Stats {
	return Stats{
		Processed: r.processed.Load(),
		Ignored:   r.ignored.Load(),
		Failed:    r.failed.Load(),
	}
}

// Route handles one broker message received at time at.
func (r *Router) Route(ctx context.Context, topic string, payload []byte, at time.Time) Outcome {
	out := r.route(ctx, topic, payload, at)
	switch {
	case out.Status == Processed:
		r.processed.Add(1)
	case out.Reason == ReasonStoreFailure:
		r.failed.Add(1)
	default:
		r.ignored.Add(1)
		r.logger.Debug("message ignored", "topic", topic, "reason", out.Reason)
	}
	return out
}

func (r *Router) route(ctx context.Context, topic string, payload []byte, at time.Time) Outcome {
	pin, action, reason := parseTopic(topic)
	if reason != "" {
		return ignored(action, pin, reason)
	}

	fields, ok := decodeFields(payload)
	if !ok {
		return ignored(action, pin, ReasonBadPayload)
	}

	switch action {
	case ActionCount:
		return r.count(ctx, topic, pin, fields, at)
	default:
		return r.toggle(ctx, pin, fields, at)
	}
}

// parseTopic extracts the pin and action of a device topic. A non-empty
// reason means the topic is dropped.
func parseTopic(topic string) (pin, action, reason string) {
	parts := strings.Split(topic, "/")
	if len(parts) < minTopicSegments {
		return "", "", ReasonShortTopic
	}
	action = parts[len(parts)-1]
	pin = parts[len(parts)-2]
	if action != ActionCount && action != ActionToggle {
		return pin, action, ReasonUnknownAction
	}
	if pin == "" {
		return pin, action, ReasonEmptyPin
	}
	return pin, action, ""
}

// decodeFields parses a JSON object payload, keeping numbers exact.
func decodeFields(payload []byte) (map[string]any, bool) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil || fields == nil {
		return nil, false
	}
	return fields, true
}

// unitChange returns the change field when it is exactly -1 or +1.
func unitChange(fields map[string]any) (int, bool) {
	n, ok := fields["change"].(json.Number)
	if !ok {
		return 0, false
	}
	v, err := n.Int64()
	if err != nil || (v != -1 && v != 1) {
		return 0, false
	}
	return int(v), true
}

func (r *Router) count(ctx context.Context, topic, pin string, fields map[string]any, at time.Time) Outcome {
	change, ok := unitChange(fields)
	if !ok {
		return ignored(ActionCount, pin, ReasonBadChange)
	}

	newCount, err := r.counters.ApplyChange(ctx, pin, change, at)
	switch {
	case errors.Is(err, device.ErrDeviceDisabled):
		return ignored(ActionCount, pin, ReasonDeviceDisabled)
	case errors.Is(err, device.ErrInvalidPin):
		return ignored(ActionCount, pin, ReasonEmptyPin)
	case err != nil:
		r.logger.Error("applying counter change failed", "pin", pin, "change", change, "error", err)
		return ignored(ActionCount, pin, ReasonStoreFailure)
	}

	emit(r.out, r.logger, pin, CountEvent{
		Topic:    topic,
		Pin:      pin,
		Change:   change,
		NewCount: newCount,
		TS:       at.Unix(),
	})
	if r.telemetry != nil {
		r.telemetry.RecordCount(pin, change, newCount, at)
	}
	return processed(ActionCount, pin, ReasonApplied)
}

func (r *Router) toggle(ctx context.Context, pin string, fields map[string]any, at time.Time) Outcome {
	enabled := true
	if raw, present := fields["enabled"]; present {
		b, ok := raw.(bool)
		if !ok {
			return ignored(ActionToggle, pin, ReasonBadPayload)
		}
		enabled = b
	}

	var credential string
	if raw, present := fields["uuid"]; present && raw != nil {
		s, ok := raw.(string)
		if !ok {
			return ignored(ActionToggle, pin, ReasonBadPayload)
		}
		credential = s
	}

	res, err := r.gate.Toggle(ctx, pin, credential, enabled, at)
	if err != nil {
		r.logger.Error("toggle failed", "pin", pin, "error", err)
		return ignored(ActionToggle, pin, ReasonStoreFailure)
	}

	switch res.Decision {
	case DecisionGranted:
		return processed(ActionToggle, pin, ReasonToggleGranted)
	case DecisionRejected:
		return processed(ActionToggle, pin, ReasonToggleRejected)
	default:
		return ignored(ActionToggle, pin, ReasonNoOwner)
	}
}
