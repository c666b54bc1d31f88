// Package api implements the HTTP and WebSocket surface of the counter relay.
//
// This package provides:
//   - Account endpoints: register, login (sets the token cookie), logout, me
//   - Device endpoints: link, unlink, list, read, change mode, read logs
//   - Badge registration for the RFID fleet toggle
//   - Access-decision history per device
//   - The /ws viewer endpoint bridging WebSocket connections to the hub
//   - /health and /metrics for operators
//   - Middleware stack (request ID, logging, recovery, CORS, body limit, auth)
//
// # Authentication
//
// A session is a JWT issued by the auth package. It is read from the token
// cookie, or from an Authorization: Bearer header for non-browser clients.
// A WebSocket handshake without a valid session is upgraded and immediately
// closed with code 1008 (policy violation).
//
// # Ownership
//
// Every per-device endpoint answers 403 unless the caller owns the pin.
// Unlinking the last owner purges the device and its logs and publishes a
// reset signal to the device over MQTT.
package api
