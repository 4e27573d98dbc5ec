// ABOUTME: Liveness monitor: periodic probes, demotion of silent channels, eviction.
// ABOUTME: Channel failure is detected here, not assumed from transport close events.

package broker

import "time"

// runMonitor probes every live channel on a fixed period until Shutdown.
func (b *Broker) runMonitor() {
	defer close(b.monitorDone)

	ticker := time.NewTicker(b.livenessInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.livenessSweep()
		case <-b.stopMonitor:
			return
		}
	}
}

// livenessSweep demotes sessions whose previous probe went unanswered, probes
// the rest, and evicts sessions disconnected past the grace period. Silent
// network partitions do not always surface as close events, so an unanswered
// probe is treated as a dead channel and force-closed.
func (b *Broker) livenessSweep() {
	now := time.Now()

	b.mu.Lock()
	var demoted []Channel
	for deviceID, s := range b.sessions {
		if s.live {
			if s.awaitingPong {
				demoted = append(demoted, s.channel)
				s.channel = nil
				s.live = false
				s.awaitingPong = false
				s.disconnectedAt = now
				b.logger.Warn("device unresponsive, closing channel", "device_id", deviceID)
				continue
			}
			if err := s.channel.SendPing(); err != nil {
				demoted = append(demoted, s.channel)
				s.channel = nil
				s.live = false
				s.disconnectedAt = now
				b.logger.Warn("liveness probe send failed, closing channel",
					"device_id", deviceID,
					"error", err,
				)
				continue
			}
			s.awaitingPong = true
			continue
		}

		// Push address, if any, is retained in the durable map.
		if now.Sub(s.disconnectedAt) > b.gracePeriod {
			delete(b.sessions, deviceID)
			b.logger.Info("evicting device session after grace period", "device_id", deviceID)
		}
	}
	b.mu.Unlock()

	for _, ch := range demoted {
		_ = ch.Close(CloseUnresponsive)
	}
}
