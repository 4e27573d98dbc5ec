// ABOUTME: JSON message envelope exchanged with companion devices.
// ABOUTME: A type discriminator, a timestamp, and a type-specific payload.

package channel

import (
	"encoding/json"
	"fmt"
	"time"
)

// Envelope wraps every frame on the device channel.
type Envelope struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Envelope types. register/heartbeat/answer are device-to-server;
// registered/ping/input_request/error are server-to-device.
const (
	TypeRegister     = "register"
	TypeRegistered   = "registered"
	TypeHeartbeat    = "heartbeat"
	TypePing         = "ping"
	TypeInputRequest = "input_request"
	TypeAnswer       = "answer"
	TypeError        = "error"
)

// RegisterPayload is the first frame a device sends after connecting.
// Device identity comes from the pairing token; the payload may refresh the
// display name and supply the current push token.
type RegisterPayload struct {
	Token      string `json:"token"`
	DeviceName string `json:"device_name,omitempty"`
	PushToken  string `json:"push_token,omitempty"`
}

// RegisteredPayload acknowledges a successful handshake.
type RegisteredPayload struct {
	DeviceID string `json:"device_id"`
}

// InputRequestPayload asks the device holder for an answer.
type InputRequestPayload struct {
	RequestID string   `json:"request_id"`
	Prompt    string   `json:"prompt"`
	Options   []string `json:"options,omitempty"`
	InputType string   `json:"input_type"`
}

// AnswerPayload carries a device's answer to a pending request.
type AnswerPayload struct {
	RequestID string `json:"request_id"`
	Answer    string `json:"answer"`
}

// ErrorPayload reports a handshake or protocol failure to the device.
type ErrorPayload struct {
	Message string `json:"message"`
}

// NewEnvelope builds an envelope of the given type around a payload.
// A nil payload produces an envelope with no payload field.
func NewEnvelope(msgType string, payload any) (*Envelope, error) {
	env := &Envelope{Type: msgType, Timestamp: time.Now().UTC()}
	if payload == nil {
		return env, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", msgType, err)
	}
	env.Payload = raw
	return env, nil
}

// DecodePayload unmarshals the envelope payload into dst.
func (e *Envelope) DecodePayload(dst any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s envelope has no payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("decoding %s payload: %w", e.Type, err)
	}
	return nil
}
