// ABOUTME: Device session registry: registration, reconnect handling, disconnects.
// ABOUTME: At most one live channel per device identifier at any time.

package broker

import (
	"context"
	"time"
)

// Register installs a channel for a device. If the device already has a live
// channel the old one is closed first, then any pending requests the device
// has not yet acknowledged are redelivered. A push address supplied here
// overwrites the durable entry; an empty one leaves a previously learned
// address intact.
func (b *Broker) Register(deviceID, name, pushAddress string, ch Channel) error {
	now := time.Now()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrShuttingDown
	}

	s, exists := b.sessions[deviceID]
	var replaced Channel
	if exists {
		if s.channel != nil {
			replaced = s.channel
		}
	} else {
		s = &session{deviceID: deviceID}
		b.sessions[deviceID] = s
	}
	s.name = name
	s.channel = ch
	s.live = true
	s.awaitingPong = false
	s.lastSeen = now

	if pushAddress != "" {
		b.pushAddrs[deviceID] = pushAddress
	}

	b.redeliverLocked(s)
	total := len(b.sessions)
	live := b.liveCountLocked()
	b.mu.Unlock()

	if replaced != nil {
		_ = replaced.Close(CloseReplaced)
	}

	b.logger.Info("device connected",
		"device_id", deviceID,
		"name", name,
		"push_capable", pushAddress != "",
		"reconnect", exists,
		"total_devices", total,
		"live_devices", live,
	)

	if b.directory != nil {
		go b.persistDevice(DeviceRecord{
			DeviceID:    deviceID,
			Name:        name,
			PushAddress: pushAddress,
			LastSeen:    now,
		})
	}
	return nil
}

// MarkDisconnected records that a device's channel closed. The channel handle
// must be passed so a close event from an already-replaced connection does not
// demote the session that superseded it.
func (b *Broker) MarkDisconnected(deviceID string, ch Channel) {
	b.mu.Lock()
	s, ok := b.sessions[deviceID]
	if !ok || s.channel != ch {
		b.mu.Unlock()
		return
	}
	s.channel = nil
	s.live = false
	s.awaitingPong = false
	s.disconnectedAt = time.Now()
	live := b.liveCountLocked()
	b.mu.Unlock()

	b.logger.Info("device disconnected", "device_id", deviceID, "live_devices", live)
}

// HandleHeartbeat acknowledges the latest liveness probe for a device.
func (b *Broker) HandleHeartbeat(deviceID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.sessions[deviceID]
	if !ok || !s.live {
		return
	}
	s.awaitingPong = false
	s.lastSeen = time.Now()
}

// persistDevice writes the device record to the directory off the hot path.
func (b *Broker) persistDevice(rec DeviceRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.directory.UpsertDevice(ctx, rec); err != nil {
		b.logger.Warn("persisting device failed", "device_id", rec.DeviceID, "error", err)
	}
}
