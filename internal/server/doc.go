// Package server wires the handoff-bridge components into one HTTP server.
//
// New() builds the full graph: device store, pairing token signer, push
// sender, broker (seeded with stored push addresses), websocket handler, and
// the agent API, all mounted on a single router. Run(ctx) listens, optionally
// advertises over mDNS, and blocks until the context is cancelled or the
// server fails, then shuts everything down gracefully. Shutdown fails pending
// input requests fast so agents do not hang on a dead server.
package server
