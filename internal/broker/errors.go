// ABOUTME: Sentinel errors for input-request brokering outcomes.
// ABOUTME: Callers classify failures with errors.Is against these values.

package broker

import "errors"

var (
	// ErrNoRecipients indicates no live device and no known push address exists,
	// so an input request could never be delivered to anyone.
	ErrNoRecipients = errors.New("no recipients: no connected devices and no push-capable devices")

	// ErrTimeout indicates the request deadline elapsed with no answer.
	ErrTimeout = errors.New("input request timed out")

	// ErrCancelled indicates the request was cancelled before an answer arrived.
	ErrCancelled = errors.New("input request cancelled")

	// ErrShuttingDown indicates the broker is shutting down and rejected the operation.
	ErrShuttingDown = errors.New("broker shutting down")
)
