// ABOUTME: Tests for the device channel envelope encoding
// ABOUTME: Covers payload round trips and decode failures

package channel

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	env, err := NewEnvelope(TypeInputRequest, InputRequestPayload{
		RequestID: "req-1",
		Prompt:    "pick one",
		Options:   []string{"1", "2", "3"},
		InputType: "number",
	})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), env.Timestamp, time.Second)

	raw, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded Envelope
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, TypeInputRequest, decoded.Type)

	var payload InputRequestPayload
	require.NoError(t, decoded.DecodePayload(&payload))
	assert.Equal(t, "req-1", payload.RequestID)
	assert.Equal(t, []string{"1", "2", "3"}, payload.Options)
}

func TestEnvelopeWithoutPayload(t *testing.T) {
	env, err := NewEnvelope(TypePing, nil)
	require.NoError(t, err)
	assert.Empty(t, env.Payload)

	var payload AnswerPayload
	assert.Error(t, env.DecodePayload(&payload))
}

func TestDecodePayloadMalformed(t *testing.T) {
	env := &Envelope{Type: TypeAnswer, Payload: json.RawMessage(`{"request_id":`)}
	var payload AnswerPayload
	assert.Error(t, env.DecodePayload(&payload))
}
