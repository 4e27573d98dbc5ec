// ABOUTME: Tests for the device session registry: reconnects, push addresses, snapshots.
// ABOUTME: Validates the one-live-channel-per-device invariant.

package broker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterReplacesLiveChannel(t *testing.T) {
	b := newTestBroker(t, Options{})

	first := newFakeChannel()
	require.NoError(t, b.Register("phone-1", "Phone", "", first))

	second := newFakeChannel()
	require.NoError(t, b.Register("phone-1", "Phone", "", second))

	// Exactly the old channel is closed, with the replacement reason.
	reasons := first.closeReasons()
	require.Len(t, reasons, 1)
	assert.Equal(t, CloseReplaced, reasons[0])
	assert.Empty(t, second.closeReasons())

	snap := b.Status()
	assert.Equal(t, 1, snap.LiveCount)
	require.Len(t, snap.Sessions, 1)
	assert.True(t, snap.Sessions[0].Live)
}

func TestPushAddressSurvivesReconnectWithoutOne(t *testing.T) {
	b := newTestBroker(t, Options{})

	require.NoError(t, b.Register("phone-1", "Phone", "token-original", newFakeChannel()))

	// Reconnect without a push address must not erase the learned one.
	require.NoError(t, b.Register("phone-1", "Phone", "", newFakeChannel()))
	snap := b.Status()
	require.Len(t, snap.Sessions, 1)
	assert.True(t, snap.Sessions[0].PushCapable)

	// A new address on reconnect overwrites.
	require.NoError(t, b.Register("phone-1", "Phone", "token-new", newFakeChannel()))
	b.mu.Lock()
	addr := b.pushAddrs["phone-1"]
	b.mu.Unlock()
	assert.Equal(t, "token-new", addr)
}

func TestMarkDisconnectedIgnoresStaleChannel(t *testing.T) {
	b := newTestBroker(t, Options{})

	old := newFakeChannel()
	require.NoError(t, b.Register("phone-1", "Phone", "", old))
	current := newFakeChannel()
	require.NoError(t, b.Register("phone-1", "Phone", "", current))

	// The replaced connection's close event arrives late; the session must
	// stay live on the current channel.
	b.MarkDisconnected("phone-1", old)
	assert.Equal(t, 1, b.Status().LiveCount)

	b.MarkDisconnected("phone-1", current)
	assert.Equal(t, 0, b.Status().LiveCount)
}

func TestStatusSnapshot(t *testing.T) {
	b := newTestBroker(t, Options{})

	require.NoError(t, b.Register("phone-1", "Live Phone", "token-1", newFakeChannel()))
	b.SeedPushAddresses(map[string]string{"phone-2": "token-2"})

	snap := b.Status()
	assert.Equal(t, 1, snap.LiveCount)
	assert.Equal(t, 2, snap.PushDevices)
	assert.Equal(t, 0, snap.PendingRequests)
	require.Len(t, snap.Sessions, 1)
	assert.Equal(t, "phone-1", snap.Sessions[0].DeviceID)
	assert.Equal(t, "Live Phone", snap.Sessions[0].Name)
	assert.True(t, snap.Sessions[0].PushCapable)
	assert.WithinDuration(t, time.Now(), snap.Sessions[0].LastSeen, time.Second)
}

func TestSeedPushAddressesDoesNotOverwrite(t *testing.T) {
	b := newTestBroker(t, Options{})

	require.NoError(t, b.Register("phone-1", "Phone", "learned-live", newFakeChannel()))
	b.SeedPushAddresses(map[string]string{
		"phone-1": "stale-from-disk",
		"phone-2": "token-2",
		"phone-3": "",
	})

	b.mu.Lock()
	defer b.mu.Unlock()
	assert.Equal(t, "learned-live", b.pushAddrs["phone-1"])
	assert.Equal(t, "token-2", b.pushAddrs["phone-2"])
	_, hasEmpty := b.pushAddrs["phone-3"]
	assert.False(t, hasEmpty)
}

// recordingDirectory captures UpsertDevice calls.
type recordingDirectory struct {
	mu   sync.Mutex
	recs []DeviceRecord
	done chan struct{}
}

func (d *recordingDirectory) UpsertDevice(_ context.Context, rec DeviceRecord) error {
	d.mu.Lock()
	d.recs = append(d.recs, rec)
	d.mu.Unlock()
	select {
	case d.done <- struct{}{}:
	default:
	}
	return nil
}

func TestRegisterPersistsDevice(t *testing.T) {
	dir := &recordingDirectory{done: make(chan struct{}, 4)}
	b := newTestBroker(t, Options{Directory: dir})

	require.NoError(t, b.Register("phone-1", "Phone", "token-1", newFakeChannel()))

	select {
	case <-dir.done:
	case <-time.After(time.Second):
		t.Fatal("device never persisted")
	}

	dir.mu.Lock()
	defer dir.mu.Unlock()
	require.Len(t, dir.recs, 1)
	assert.Equal(t, "phone-1", dir.recs[0].DeviceID)
	assert.Equal(t, "token-1", dir.recs[0].PushAddress)
}
