package relay

import "fmt"

// Status is the result class of routing one message.
type Status int

const (
	// Processed means the message changed state or produced an event.
	Processed Status = iota
	// Ignored means the message was dropped.
	Ignored
)

func (s Status) String() string {
	switch s {
	case Processed:
		return "processed"
	case Ignored:
		return "ignored"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Reasons attached to an Outcome.
const (
	ReasonApplied        = "applied"
	ReasonToggleGranted  = "toggle_granted"
	ReasonToggleRejected = "toggle_rejected"
	ReasonShortTopic     = "short_topic"
	ReasonEmptyPin       = "empty_pin"
	ReasonUnknownAction  = "unknown_action"
	ReasonBadPayload     = "bad_payload"
	ReasonBadChange      = "bad_change"
	ReasonDeviceDisabled = "device_disabled"
	ReasonNoOwner        = "no_owner"
	ReasonStoreFailure   = "store_failure"
)

// Outcome describes what Route did with one message. It is never an
// error: drops are expected on a shared broker.
type Outcome struct {
	Status Status
	Reason string
	Action string
	Pin    string
}

func processed(action, pin, reason string) Outcome {
	return Outcome{Status: Processed, Reason: reason, Action: action, Pin: pin}
}

func ignored(action, pin, reason string) Outcome {
	return Outcome{Status: Ignored, Reason: reason, Action: action, Pin: pin}
}
