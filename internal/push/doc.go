// Package push delivers input-request notifications to devices that are not
// currently connected.
//
// The sender speaks the Expo push API: one JSON POST per notification, with
// the request ID and options in the data payload so the mobile app can open
// straight into the answer screen. Push delivery is advisory. Failures are
// logged and reported as a boolean to the broker, never surfaced to the
// agent waiting on the request.
package push
