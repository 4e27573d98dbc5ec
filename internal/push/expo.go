// ABOUTME: Push fallback adapter speaking the Expo push HTTP protocol.
// ABOUTME: Every failure is converted to a boolean; errors never reach the broker.

package push

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

const sendTimeout = 10 * time.Second

// message is the request body for one push send.
type message struct {
	To       string         `json:"to"`
	Title    string         `json:"title"`
	Body     string         `json:"body"`
	Sound    string         `json:"sound"`
	Priority string         `json:"priority"`
	Data     map[string]any `json:"data"`
}

// receipt is the per-ticket status in the provider's response.
type receipt struct {
	Data struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"data"`
}

// ExpoSender sends one best-effort alert per call to an Expo-style push
// endpoint. It holds no request state; the broker tracks what was pushed.
type ExpoSender struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

// NewExpoSender creates a sender targeting the given push endpoint.
func NewExpoSender(endpoint string, logger *slog.Logger) *ExpoSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpoSender{
		endpoint: endpoint,
		client:   &http.Client{Timeout: sendTimeout},
		logger:   logger.With("component", "push"),
	}
}

// Send delivers one alert to one push address and reports success. Invalid
// tokens, provider errors and network failures all come back as false.
func (s *ExpoSender) Send(address, requestID, prompt string, options []string) bool {
	payload := message{
		To:       address,
		Title:    "Input needed",
		Body:     prompt,
		Sound:    "default",
		Priority: "high",
		Data: map[string]any{
			"type":       "input_request",
			"request_id": requestID,
			"options":    options,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("encoding push payload failed", "request_id", requestID, "error", err)
		return false
	}

	resp, err := s.client.Post(s.endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		s.logger.Warn("push request failed", "request_id", requestID, "error", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.logger.Warn("push provider rejected request",
			"request_id", requestID,
			"status", resp.StatusCode,
		)
		return false
	}

	// Providers report per-ticket errors (e.g. DeviceNotRegistered) in a 200.
	var rec receipt
	if err := json.NewDecoder(resp.Body).Decode(&rec); err == nil && rec.Data.Status == "error" {
		s.logger.Warn("push ticket errored",
			"request_id", requestID,
			"message", rec.Data.Message,
		)
		return false
	}

	return true
}

// Close releases idle connections held by the HTTP client.
func (s *ExpoSender) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
