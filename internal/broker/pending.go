// ABOUTME: Pending request table: fan-out, redelivery, and single-fire settlement.
// ABOUTME: Whoever removes an entry under the lock owns its one result delivery.

package broker

import "time"

// outcome is the settled result of a pending request.
type outcome struct {
	answer   string
	deviceID string
	err      error
}

// pendingRequest is one outstanding input request. The notified sets and timer
// are guarded by the broker mutex; result is a single-fire channel written by
// exactly one code path (the one that removed the entry from the table).
type pendingRequest struct {
	id         string
	prompt     string
	options    []string
	shape      AnswerShape
	projectTag string
	createdAt  time.Time
	deadline   time.Time

	notifiedLive map[string]struct{}
	notifiedPush map[string]struct{}

	timer  *time.Timer
	result chan outcome
}

func newPendingRequest(id string, req InputRequest, timeout time.Duration) *pendingRequest {
	now := time.Now()
	return &pendingRequest{
		id:           id,
		prompt:       req.Prompt,
		options:      req.Options,
		shape:        req.Shape,
		projectTag:   req.ProjectTag,
		createdAt:    now,
		deadline:     now.Add(timeout),
		notifiedLive: make(map[string]struct{}),
		notifiedPush: make(map[string]struct{}),
		result:       make(chan outcome, 1),
	}
}

func (p *pendingRequest) notice() *InputNotice {
	return &InputNotice{
		RequestID: p.id,
		Prompt:    p.prompt,
		Options:   p.options,
		Shape:     p.shape,
	}
}

// pushTarget pairs a device ID with its durable push address.
type pushTarget struct {
	deviceID string
	address  string
}

// fanOutLocked delivers the request to every live channel. Sends are
// non-blocking enqueues, so holding the lock here is fine. Caller holds b.mu.
func (b *Broker) fanOutLocked(p *pendingRequest) {
	for _, s := range b.sessions {
		if !s.live || s.channel == nil {
			continue
		}
		if err := s.channel.SendInputRequest(p.notice()); err != nil {
			b.logger.Warn("live delivery failed",
				"request_id", p.id,
				"device_id", s.deviceID,
				"error", err,
			)
			continue
		}
		p.notifiedLive[s.deviceID] = struct{}{}
	}
}

// pushTargetsLocked returns every push-capable device without a live channel.
// Caller holds b.mu; the actual sends happen outside the lock.
func (b *Broker) pushTargetsLocked(p *pendingRequest) []pushTarget {
	if b.push == nil {
		return nil
	}
	var targets []pushTarget
	for deviceID, addr := range b.pushAddrs {
		if s, ok := b.sessions[deviceID]; ok && s.live {
			continue
		}
		targets = append(targets, pushTarget{deviceID: deviceID, address: addr})
	}
	return targets
}

// sendPush performs one best-effort push attempt and records success in the
// request's notified-push set. There is no automatic re-push.
func (b *Broker) sendPush(t pushTarget, requestID string, req InputRequest) {
	ok := b.push.Send(t.address, requestID, req.Prompt, req.Options)

	b.mu.Lock()
	p, stillPending := b.pending[requestID]
	if stillPending && ok {
		p.notifiedPush[t.deviceID] = struct{}{}
	}
	b.mu.Unlock()

	if !ok {
		b.logger.Warn("push delivery failed",
			"request_id", requestID,
			"device_id", t.deviceID,
		)
		return
	}
	b.logger.Debug("push delivered", "request_id", requestID, "device_id", t.deviceID)
}

// redeliverLocked sends every pending request the device has not yet seen live.
// Called on (re)connect. Caller holds b.mu.
func (b *Broker) redeliverLocked(s *session) {
	for _, p := range b.pending {
		if _, seen := p.notifiedLive[s.deviceID]; seen {
			continue
		}
		if err := s.channel.SendInputRequest(p.notice()); err != nil {
			b.logger.Warn("redelivery failed",
				"request_id", p.id,
				"device_id", s.deviceID,
				"error", err,
			)
			continue
		}
		p.notifiedLive[s.deviceID] = struct{}{}
		b.logger.Debug("redelivered pending request",
			"request_id", p.id,
			"device_id", s.deviceID,
		)
	}
}

// Resolve fulfills a pending request with a device's answer. Late, duplicate,
// or unknown request IDs are silent no-ops.
func (b *Broker) Resolve(requestID, answer, deviceID string) {
	if !b.settle(requestID, outcome{answer: answer, deviceID: deviceID}) {
		b.logger.Debug("answer for unknown or settled request",
			"request_id", requestID,
			"device_id", deviceID,
		)
		return
	}
	b.logger.Info("input request answered",
		"request_id", requestID,
		"device_id", deviceID,
	)
}

// expire is fired by the per-request deadline timer.
func (b *Broker) expire(requestID string) {
	if b.settle(requestID, outcome{err: ErrTimeout}) {
		b.logger.Info("input request expired", "request_id", requestID)
	}
}

// settle removes the entry and delivers its one result. Returns false when the
// request already settled, making every completion path idempotent.
func (b *Broker) settle(requestID string, out outcome) bool {
	b.mu.Lock()
	p, ok := b.pending[requestID]
	if !ok {
		b.mu.Unlock()
		return false
	}
	delete(b.pending, requestID)
	if p.timer != nil {
		p.timer.Stop()
	}
	if out.deviceID != "" {
		if s, exists := b.sessions[out.deviceID]; exists {
			s.lastSeen = time.Now()
		}
	}
	b.mu.Unlock()

	p.result <- out
	return true
}
