package hub

import "errors"

var (
	// ErrNotAuthenticated is returned when a client that has not been
	// authenticated is registered or subscribed.
	ErrNotAuthenticated = errors.New("hub: client not authenticated")

	// ErrClientClosed is returned for operations on a closed client.
	ErrClientClosed = errors.New("hub: client closed")

	// ErrNotRegistered is returned when subscribing a client the hub does
	// not know.
	ErrNotRegistered = errors.New("hub: client not registered")
)
