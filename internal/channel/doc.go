// Package channel implements the websocket transport between the bridge and
// mobile devices.
//
// # Protocol
//
// All frames are JSON envelopes with a type, timestamp, and raw payload:
//
//	{"type": "register", "timestamp": "...", "payload": {...}}
//
// Frame types:
//
//   - register: First frame from the device. Carries the pairing token, the
//     display name, and optionally a push token. Answered with "registered".
//   - heartbeat: Device liveness signal, also the reply to a server "ping".
//   - ping: Server liveness probe.
//   - input_request: Server asks the device for human input.
//   - answer: Device resolves an input request.
//   - error: Server-side rejection before closing the connection.
//
// # Connection Lifecycle
//
// The handler upgrades the HTTP request, waits up to ten seconds for a valid
// register frame, and hands the connection to the broker. A writer goroutine
// drains a buffered outbound queue so broker fan-out never blocks on a slow
// device; a full queue drops the frame and logs it. When the read loop exits
// for any reason the session is marked disconnected, which starts the broker's
// grace period rather than evicting the device.
//
// Malformed frames are logged and skipped. Only transport errors end the
// connection.
package channel
