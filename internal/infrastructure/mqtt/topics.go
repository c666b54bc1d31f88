package mqtt

import "strings"

// Topic actions understood by the relay.
const (
	ActionCount  = "count"
	ActionToggle = "toggle"
	ActionReset  = "reset"
)

// Topics builds topics under a device prefix such as "ynov/bdx/lidl".
//
//	topics := mqtt.NewTopics("ynov/bdx/lidl/#")
//	topics.Reset("A1") // "ynov/bdx/lidl/A1/reset"
type Topics struct {
	Prefix string
}

// NewTopics creates a builder from a prefix or a subscription filter.
// Trailing "/#", "/+" and "/" are removed.
func NewTopics(prefixOrFilter string) Topics {
	p := strings.TrimSpace(prefixOrFilter)
	for {
		trimmed := strings.TrimSuffix(strings.TrimSuffix(strings.TrimSuffix(p, "/#"), "/+"), "/")
		if trimmed == p {
			break
		}
		p = trimmed
	}
	return Topics{Prefix: p}
}

func (t Topics) join(parts ...string) string {
	if t.Prefix == "" {
		return strings.Join(parts, "/")
	}
	return t.Prefix + "/" + strings.Join(parts, "/")
}

// Count returns the topic a device publishes counter changes on.
//
// Example: ynov/bdx/lidl/A1/count
func (t Topics) Count(pin string) string {
	return t.join(pin, ActionCount)
}

// Toggle returns the topic a device publishes badge swipes on.
//
// Example: ynov/bdx/lidl/A1/toggle
func (t Topics) Toggle(pin string) string {
	return t.join(pin, ActionToggle)
}

// Reset returns the topic the relay publishes the unlink signal on.
//
// Example: ynov/bdx/lidl/A1/reset
func (t Topics) Reset(pin string) string {
	return t.join(pin, ActionReset)
}

// Status returns the relay's retained online/offline topic.
//
// Example: ynov/bdx/lidl/relay/status
func (t Topics) Status() string {
	return t.join("relay", "status")
}

// All returns the multi-level wildcard covering every device topic.
//
// Example: ynov/bdx/lidl/#
func (t Topics) All() string {
	return t.join("#")
}
