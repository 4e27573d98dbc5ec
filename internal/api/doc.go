// Package api serves the agent-facing HTTP surface of handoff-bridge.
//
// # Endpoints
//
//   - POST /api/input-request: Blocks until a paired device answers, the
//     timeout fires, or the caller gives up. The agent process calls this
//     when it needs a human decision.
//   - GET /api/status: Snapshot of known devices and pending requests.
//   - POST /api/export: Writes a conversation transcript to local files.
//   - GET /health: Liveness probe, unauthenticated.
//
// Everything under /api requires the configured bearer token.
//
// # Error Mapping
//
// Broker failures map to HTTP statuses the calling agent can branch on:
// 503 when no device can be reached or the server is shutting down, 408 when
// the request timed out or was cancelled.
package api
