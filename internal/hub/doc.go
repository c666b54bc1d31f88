// Package hub fans device events out to live viewer connections.
//
// Each viewer is a Client with its own state machine:
//
//	Connecting ──Authenticate──▶ Authenticated ──Subscribe──▶ Subscribed
//	     │                            │                          │ ▲
//	     └────────────────────────────┴──────────────────────────┴─┴─▶ Closed
//
// Subscribe filters the proposed pins through the ownership directory and
// replaces the active set; there is no incremental add or remove. Only
// Subscribed clients whose set contains an event's pin receive it.
//
// Broadcast never blocks: a client whose send buffer is full is treated as
// a failed send and is unregistered. Unregister is idempotent, so the read
// loop and a broadcast may both clean up the same client.
//
// The hub is transport-agnostic. The api package pumps each Client's Send
// channel into a WebSocket and feeds received frames to ParseRequest.
package hub
