package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, device.ErrDeviceDisabled) {
//	    // drop the event
//	}
var (
	// ErrDeviceNotFound is returned when a pin has no device row.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceDisabled is returned when a change targets a gated-off device.
	ErrDeviceDisabled = errors.New("device: disabled")

	// ErrInvalidPin is returned for an empty pin.
	ErrInvalidPin = errors.New("device: invalid pin")

	// ErrInvalidChange is returned when a delta is not -1 or +1.
	ErrInvalidChange = errors.New("device: invalid change")

	// ErrInvalidMode is returned when a mode is not increment or decrement.
	ErrInvalidMode = errors.New("device: invalid mode")
)
