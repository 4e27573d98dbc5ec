// Package store provides the persistent device directory using SQLite.
//
// # Overview
//
// The directory remembers every device that has ever paired: its ID, display
// name, push address, and last-seen time. The broker holds live session state
// in memory; the store is what survives restarts, so a bridge that comes back
// up can still reach known devices over push before any of them reconnect.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//
// Use ":memory:" for tests.
//
// # Push Address Handling
//
// A reconnect without a push address must not erase a previously stored one;
// devices do not resend their push token on every connection. UpsertDevice
// therefore only overwrites push_address when the incoming record carries a
// non-empty value.
package store
