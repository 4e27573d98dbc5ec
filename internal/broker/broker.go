// ABOUTME: Broker facade coordinating device sessions, pending requests and fan-out.
// ABOUTME: Single entry point for the HTTP layer: RequestInput (blocking) and Status.

package broker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultRequestTimeout = 60 * time.Second
	defaultLivenessPeriod = 30 * time.Second
	defaultGracePeriod    = 5 * time.Minute
)

// PushSender delivers a one-way best-effort alert to a durable push address.
// Implementations convert every internal failure to false; an error must never
// cross into the broker.
type PushSender interface {
	Send(address, requestID, prompt string, options []string) bool
}

// DeviceDirectory persists device metadata so push addresses survive restarts.
// Calls are dispatched on their own goroutine, never under the broker lock.
type DeviceDirectory interface {
	UpsertDevice(ctx context.Context, rec DeviceRecord) error
}

// DeviceRecord is the durable view of a device.
type DeviceRecord struct {
	DeviceID    string
	Name        string
	PushAddress string
	LastSeen    time.Time
}

// Options configures a Broker. Zero values fall back to defaults.
type Options struct {
	DefaultTimeout   time.Duration
	LivenessInterval time.Duration
	GracePeriod      time.Duration
	Push             PushSender      // optional; nil disables push fallback
	Directory        DeviceDirectory // optional; nil disables persistence
	Logger           *slog.Logger
}

// InputRequest describes one "ask the human" call.
type InputRequest struct {
	Prompt     string
	Options    []string // empty = free text
	Shape      AnswerShape
	Timeout    time.Duration // 0 = broker default
	ProjectTag string
}

// Answer is the result of a resolved input request.
type Answer struct {
	Value       string
	RespondedBy string
	Elapsed     time.Duration
}

// Broker tracks connected devices and brokers blocking input requests to them.
// One mutex serializes all registry, pending-table, and notifier state; the
// blocking RequestInput call never waits while holding it.
type Broker struct {
	mu        sync.Mutex
	sessions  map[string]*session
	pushAddrs map[string]string // device ID -> push address, survives session eviction
	pending   map[string]*pendingRequest
	closed    bool

	defaultTimeout   time.Duration
	livenessInterval time.Duration
	gracePeriod      time.Duration

	push      PushSender
	directory DeviceDirectory
	logger    *slog.Logger

	stopMonitor chan struct{}
	monitorDone chan struct{}
}

// New creates a Broker and starts its liveness monitor.
func New(opts Options) *Broker {
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = defaultRequestTimeout
	}
	if opts.LivenessInterval <= 0 {
		opts.LivenessInterval = defaultLivenessPeriod
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = defaultGracePeriod
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	b := &Broker{
		sessions:         make(map[string]*session),
		pushAddrs:        make(map[string]string),
		pending:          make(map[string]*pendingRequest),
		defaultTimeout:   opts.DefaultTimeout,
		livenessInterval: opts.LivenessInterval,
		gracePeriod:      opts.GracePeriod,
		push:             opts.Push,
		directory:        opts.Directory,
		logger:           opts.Logger,
		stopMonitor:      make(chan struct{}),
		monitorDone:      make(chan struct{}),
	}

	go b.runMonitor()
	return b
}

// RequestInput blocks until a device answers, the deadline expires, the request
// is cancelled, or ctx is done. It fails immediately with ErrNoRecipients when
// no delivery path exists at all.
func (b *Broker) RequestInput(ctx context.Context, req InputRequest) (*Answer, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = b.defaultTimeout
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrShuttingDown
	}
	if b.liveCountLocked() == 0 && len(b.pushAddrs) == 0 {
		b.mu.Unlock()
		return nil, ErrNoRecipients
	}

	p := newPendingRequest(uuid.New().String(), req, timeout)
	b.pending[p.id] = p
	b.fanOutLocked(p)
	pushTargets := b.pushTargetsLocked(p)
	p.timer = time.AfterFunc(timeout, func() { b.expire(p.id) })
	b.mu.Unlock()

	b.logger.Info("input request created",
		"request_id", p.id,
		"prompt", req.Prompt,
		"options", req.Options,
		"timeout", timeout,
		"project", req.ProjectTag,
	)

	// Push sends are fire-and-forget network calls, dispatched outside the lock.
	for _, t := range pushTargets {
		go b.sendPush(t, p.id, req)
	}

	start := time.Now()
	select {
	case out := <-p.result:
		if out.err != nil {
			return nil, out.err
		}
		return &Answer{
			Value:       out.answer,
			RespondedBy: out.deviceID,
			Elapsed:     time.Since(start),
		}, nil

	case <-ctx.Done():
		b.CancelInputRequest(p.id)
		return nil, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
	}
}

// CancelInputRequest cancels an outstanding request. Equivalent in effect to
// expiry with a distinct reason; a no-op if the request already settled.
func (b *Broker) CancelInputRequest(requestID string) {
	if b.settle(requestID, outcome{err: ErrCancelled}) {
		b.logger.Info("input request cancelled", "request_id", requestID)
	}
}

// Status returns a snapshot of broker state. It never blocks on I/O and never
// mutates anything.
func (b *Broker) Status() *Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := &Snapshot{
		Sessions:        make([]SessionInfo, 0, len(b.sessions)),
		PushDevices:     len(b.pushAddrs),
		PendingRequests: len(b.pending),
	}
	for _, s := range b.sessions {
		_, pushCapable := b.pushAddrs[s.deviceID]
		snap.Sessions = append(snap.Sessions, SessionInfo{
			DeviceID:    s.deviceID,
			Name:        s.name,
			Live:        s.live,
			LastSeen:    s.lastSeen,
			PushCapable: pushCapable,
		})
		if s.live {
			snap.LiveCount++
		}
	}
	return snap
}

// SeedPushAddresses loads durable push addresses learned in a previous run.
// Addresses already learned in this process are not overwritten.
func (b *Broker) SeedPushAddresses(addrs map[string]string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for deviceID, addr := range addrs {
		if addr == "" {
			continue
		}
		if _, ok := b.pushAddrs[deviceID]; !ok {
			b.pushAddrs[deviceID] = addr
		}
	}
}

// Shutdown stops the liveness monitor, closes every live channel with a
// shutdown reason, and rejects every pending continuation exactly once.
func (b *Broker) Shutdown() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true

	var channels []Channel
	for _, s := range b.sessions {
		if s.channel != nil {
			channels = append(channels, s.channel)
			s.channel = nil
			s.live = false
		}
	}

	var rejected []*pendingRequest
	for id, p := range b.pending {
		delete(b.pending, id)
		if p.timer != nil {
			p.timer.Stop()
		}
		rejected = append(rejected, p)
	}
	b.mu.Unlock()

	close(b.stopMonitor)
	<-b.monitorDone

	for _, ch := range channels {
		_ = ch.Close(CloseShutdown)
	}
	for _, p := range rejected {
		p.result <- outcome{err: ErrShuttingDown}
	}

	if closer, ok := b.push.(io.Closer); ok {
		_ = closer.Close()
	}

	b.logger.Info("broker shut down",
		"closed_channels", len(channels),
		"rejected_requests", len(rejected),
	)
}

// liveCountLocked counts sessions with a live channel. Caller holds b.mu.
func (b *Broker) liveCountLocked() int {
	n := 0
	for _, s := range b.sessions {
		if s.live {
			n++
		}
	}
	return n
}
