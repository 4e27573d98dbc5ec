// ABOUTME: Device session state and the channel contract the broker delivers through.
// ABOUTME: A session tracks one device identifier; its channel is the live connection, if any.

package broker

import "time"

// CloseReason explains why the broker is closing a device channel.
type CloseReason string

const (
	// CloseReplaced means a newer connection registered under the same device ID.
	CloseReplaced CloseReason = "replaced by newer connection"
	// CloseUnresponsive means the device failed to answer a liveness probe.
	CloseUnresponsive CloseReason = "liveness probe unanswered"
	// CloseShutdown means the server is shutting down.
	CloseShutdown CloseReason = "server shutting down"
)

// AnswerShape hints how the companion app should render the input prompt.
type AnswerShape string

const (
	ShapeText   AnswerShape = "text"
	ShapeYesNo  AnswerShape = "yes_no"
	ShapeNumber AnswerShape = "number"
)

// InputNotice is the "need input" message fanned out to devices.
type InputNotice struct {
	RequestID string
	Prompt    string
	Options   []string
	Shape     AnswerShape
}

// Channel is a live bidirectional connection to a device. Implementations must
// make SendInputRequest and SendPing non-blocking (enqueue into an outbound
// buffer); the broker calls them while holding its lock. Close may block and
// is only called outside the lock.
type Channel interface {
	SendInputRequest(notice *InputNotice) error
	SendPing() error
	Close(reason CloseReason) error
}

// session is one registry entry. All fields are guarded by the broker mutex.
type session struct {
	deviceID string
	name     string

	channel        Channel // nil while disconnected
	live           bool
	awaitingPong   bool
	lastSeen       time.Time
	disconnectedAt time.Time
}

// SessionInfo is a point-in-time snapshot of one device session.
type SessionInfo struct {
	DeviceID    string    `json:"device_id"`
	Name        string    `json:"name"`
	Live        bool      `json:"live"`
	LastSeen    time.Time `json:"last_seen"`
	PushCapable bool      `json:"push_capable"`
}

// Snapshot is a non-blocking read of broker state for the status endpoint.
type Snapshot struct {
	Sessions        []SessionInfo `json:"sessions"`
	LiveCount       int           `json:"live_count"`
	PushDevices     int           `json:"push_devices"`
	PendingRequests int           `json:"pending_requests"`
}
