// Package broker is the mobile input-request broker: it tracks connected
// devices and turns a remote agent's blocking "ask the human" call into an
// asynchronous round trip to zero-or-more devices.
//
// # Overview
//
// A request enters through RequestInput, fans out to every live channel and,
// for push-capable devices with no live channel, to the push fallback. The
// first answer to arrive wins; everything else - late answers, duplicate
// answers, answers for unknown request IDs - is dropped silently.
//
// # Broker
//
// The Broker is the single entry point used by the HTTP layer:
//
//	b := broker.New(broker.Options{Push: sender, Logger: logger})
//
// Key operations:
//
//   - RequestInput(ctx, req): Block until answer, timeout, or cancellation
//   - CancelInputRequest(id): Cancel an outstanding request (idempotent)
//   - Status(): Non-blocking snapshot of sessions and pending requests
//   - Register / MarkDisconnected / HandleHeartbeat: Channel-layer callbacks
//   - Resolve(requestID, answer, deviceID): Deliver a device's answer
//   - Shutdown(): Close channels, reject pending continuations, stop probes
//
// # Sessions
//
// The registry keeps one session per device identifier with at most one live
// channel at any time. Registering over an existing live channel closes the
// old one, then redelivers every pending request the device has not yet been
// notified of - this is how a device that was offline when a request was
// issued still receives it after reconnecting.
//
// A push address, once learned, survives session eviction in a separate
// durable map so fallback delivery stays possible for devices that never
// reconnect within the grace period (default 5 minutes).
//
// # Liveness
//
// The monitor probes every live channel on a fixed period (default 30s). A
// channel whose probe goes unanswered by the next tick is force-closed and
// the session demoted to disconnected.
//
// # Pending Requests
//
// Each pending request owns a single-fire result channel. Resolve, expiry,
// cancellation and shutdown are mutually exclusive: whichever removes the
// entry from the table under the lock delivers the one result, and the
// others become no-ops. Entries are never persisted.
//
// # Concurrency
//
// One mutex serializes all state. RequestInput releases it before suspending
// on the result channel. Channel sends made under the lock are non-blocking
// enqueues (see Channel); push sends are dispatched on their own goroutines
// outside the lock.
package broker
