// ABOUTME: End-to-end tests for the device WebSocket endpoint.
// ABOUTME: Real broker, real handler, gorilla client dialing an httptest server.

package channel

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/handoff-bridge/internal/auth"
	"github.com/2389/handoff-bridge/internal/broker"
)

type channelFixture struct {
	broker *broker.Broker
	tokens *auth.DeviceTokens
	url    string
}

func setupChannel(t *testing.T) *channelFixture {
	t.Helper()

	b := broker.New(broker.Options{
		LivenessInterval: time.Hour,
		Logger:           slog.Default(),
	})
	t.Cleanup(b.Shutdown)

	tokens, err := auth.NewDeviceTokens([]byte("test-secret"), time.Hour)
	require.NoError(t, err)

	srv := httptest.NewServer(NewHandler(b, tokens, slog.Default()))
	t.Cleanup(srv.Close)

	return &channelFixture{
		broker: b,
		tokens: tokens,
		url:    "ws" + strings.TrimPrefix(srv.URL, "http"),
	}
}

// dialAndRegister connects and completes the handshake for a device.
func (f *channelFixture) dialAndRegister(t *testing.T, deviceID, name, pushToken string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(f.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	token, err := f.tokens.Issue(deviceID, name)
	require.NoError(t, err)

	reg, err := NewEnvelope(TypeRegister, RegisterPayload{Token: token, PushToken: pushToken})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(reg))

	var ack Envelope
	require.NoError(t, conn.ReadJSON(&ack))
	require.Equal(t, TypeRegistered, ack.Type)

	var payload RegisteredPayload
	require.NoError(t, ack.DecodePayload(&payload))
	require.Equal(t, deviceID, payload.DeviceID)

	return conn
}

func TestDeviceAnswersInputRequest(t *testing.T) {
	f := setupChannel(t)
	conn := f.dialAndRegister(t, "phone-1", "Test Phone", "")

	require.Equal(t, 1, f.broker.Status().LiveCount)

	type result struct {
		answer *broker.Answer
		err    error
	}
	resCh := make(chan result, 1)
	go func() {
		answer, err := f.broker.RequestInput(context.Background(), broker.InputRequest{
			Prompt:  "pick one",
			Options: []string{"1", "2", "3"},
			Shape:   broker.ShapeNumber,
			Timeout: 5 * time.Second,
		})
		resCh <- result{answer, err}
	}()

	// Device receives the fanned-out request.
	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))
	require.Equal(t, TypeInputRequest, env.Type)
	var notice InputRequestPayload
	require.NoError(t, env.DecodePayload(&notice))
	assert.Equal(t, "pick one", notice.Prompt)
	assert.Equal(t, "number", notice.InputType)

	// Device answers.
	reply, err := NewEnvelope(TypeAnswer, AnswerPayload{RequestID: notice.RequestID, Answer: "2"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(reply))

	select {
	case res := <-resCh:
		require.NoError(t, res.err)
		assert.Equal(t, "2", res.answer.Value)
		assert.Equal(t, "phone-1", res.answer.RespondedBy)
	case <-time.After(2 * time.Second):
		t.Fatal("caller never unblocked")
	}
}

func TestHandshakeRejectsBadToken(t *testing.T) {
	f := setupChannel(t)

	conn, _, err := websocket.DefaultDialer.Dial(f.url, nil)
	require.NoError(t, err)
	defer conn.Close()

	reg, err := NewEnvelope(TypeRegister, RegisterPayload{Token: "not-a-token"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(reg))

	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, TypeError, env.Type)

	assert.Equal(t, 0, f.broker.Status().LiveCount)
}

func TestHandshakeRequiresRegisterFrame(t *testing.T) {
	f := setupChannel(t)

	conn, _, err := websocket.DefaultDialer.Dial(f.url, nil)
	require.NoError(t, err)
	defer conn.Close()

	hb, err := NewEnvelope(TypeHeartbeat, nil)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(hb))

	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, TypeError, env.Type)
}

func TestPushTokenLearnedFromHandshake(t *testing.T) {
	f := setupChannel(t)
	f.dialAndRegister(t, "phone-1", "Phone", "ExponentPushToken[abc]")

	snap := f.broker.Status()
	require.Len(t, snap.Sessions, 1)
	assert.True(t, snap.Sessions[0].PushCapable)
	assert.Equal(t, 1, snap.PushDevices)
}

func TestDisconnectMarksSessionOffline(t *testing.T) {
	f := setupChannel(t)
	conn := f.dialAndRegister(t, "phone-1", "Phone", "")

	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for f.broker.Status().LiveCount != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, 0, f.broker.Status().LiveCount)
	// The session itself survives for the grace period.
	assert.Len(t, f.broker.Status().Sessions, 1)
}

func TestMalformedFramesAreIsolated(t *testing.T) {
	f := setupChannel(t)
	conn := f.dialAndRegister(t, "phone-1", "Phone", "")

	// Garbage must not kill the connection or other state.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))

	hb, err := NewEnvelope(TypeHeartbeat, nil)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(hb))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, f.broker.Status().LiveCount)
}

func TestReconnectReplacesChannel(t *testing.T) {
	f := setupChannel(t)
	first := f.dialAndRegister(t, "phone-1", "Phone", "")
	_ = f.dialAndRegister(t, "phone-1", "Phone", "")

	// Old connection gets closed by the server.
	first.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := first.ReadMessage(); err != nil {
			break
		}
	}

	snap := f.broker.Status()
	assert.Equal(t, 1, snap.LiveCount)
	assert.Len(t, snap.Sessions, 1)
}
