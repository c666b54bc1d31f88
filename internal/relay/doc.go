// Package relay turns broker messages into device state changes and viewer
// events.
//
// # Architecture
//
//	broker ──▶ Supervisor ──▶ Router ──┬──▶ device.Store.ApplyChange ──┐
//	           (reconnect)    (parse)  │                              ├──▶ Broadcaster (hub)
//	                                   └──▶ Gate (RFID, fleet toggle) ─┘
//
// Topics have the shape <prefix...>/<pin>/<action> with at least four
// segments. Actions other than count and toggle, malformed payloads and
// out-of-range changes are dropped; Route reports each drop as an Ignored
// Outcome carrying the reason.
//
// A toggle is authorised when the presented badge UID exactly equals the
// stored rfid_uid of an owner of the pin. The requested state is then
// applied to every pin that owner holds, not only the one swiped.
//
// The Supervisor owns the broker connection. It drains messages
// sequentially, waits a fixed delay after any failure, and dials again
// until its context is cancelled.
package relay
