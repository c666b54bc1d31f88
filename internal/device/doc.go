// Package device provides the Device Store for the counter relay.
//
// A device is a physical counter identified by an opaque pin. The store
// holds its running count, its enabled flag and its advisory mode, plus an
// append-only log of every accepted change.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────┐
//	│                       Device Store                        │
//	│                                                           │
//	│  ┌──────────────────┐         ┌──────────────────────┐   │
//	│  │  pinLocks        │         │  SQLite              │   │
//	│  │  (locks.go)      │────────▶│  devices, logs       │   │
//	│  │  striped mutexes │         │  one tx per change   │   │
//	│  └──────────────────┘         └──────────────────────┘   │
//	└──────────────────────────────────────────────────────────┘
//
// # Invariants
//
//   - current_count equals the sum of logged changes for the pin. The
//     counter update and its log row are written in the same transaction.
//   - Changes for one pin are serialised by that pin's lock stripe; other
//     pins proceed independently.
//   - A disabled device rejects changes with ErrDeviceDisabled.
//   - Mode is metadata. It never flips the sign of a change.
//
// # Usage
//
//	store := device.NewStore(db)
//	store.SetLogger(log)
//
//	newCount, err := store.ApplyChange(ctx, "A1", 1, time.Now())
//	if errors.Is(err, device.ErrDeviceDisabled) {
//	    // gated off by a fleet toggle
//	}
package device
