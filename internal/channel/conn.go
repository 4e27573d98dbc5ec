// ABOUTME: Per-device WebSocket connection implementing the broker's Channel contract.
// ABOUTME: All outbound frames go through a buffered queue and a single writer goroutine.

package channel

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/2389/handoff-bridge/internal/broker"
)

const (
	writeWait    = 10 * time.Second
	sendBufSize  = 32
	maxFrameSize = 64 * 1024
)

var (
	errChannelClosed = errors.New("channel closed")
	errBufferFull    = errors.New("outbound buffer full")
)

// wsConn is one device's live channel. The broker calls SendInputRequest and
// SendPing while holding its lock, so both only enqueue; the writer goroutine
// does the actual network I/O.
type wsConn struct {
	deviceID string
	conn     *websocket.Conn
	send     chan *Envelope
	done     chan struct{}
	once     sync.Once
	logger   *slog.Logger
}

func newWSConn(deviceID string, conn *websocket.Conn, logger *slog.Logger) *wsConn {
	c := &wsConn{
		deviceID: deviceID,
		conn:     conn,
		send:     make(chan *Envelope, sendBufSize),
		done:     make(chan struct{}),
		logger:   logger,
	}
	go c.writeLoop()
	return c
}

// SendInputRequest enqueues a "need input" frame for the device.
func (c *wsConn) SendInputRequest(notice *broker.InputNotice) error {
	env, err := NewEnvelope(TypeInputRequest, InputRequestPayload{
		RequestID: notice.RequestID,
		Prompt:    notice.Prompt,
		Options:   notice.Options,
		InputType: string(notice.Shape),
	})
	if err != nil {
		return err
	}
	return c.enqueue(env)
}

// SendPing enqueues a liveness probe.
func (c *wsConn) SendPing() error {
	env, err := NewEnvelope(TypePing, nil)
	if err != nil {
		return err
	}
	return c.enqueue(env)
}

func (c *wsConn) enqueue(env *Envelope) error {
	select {
	case <-c.done:
		return errChannelClosed
	default:
	}
	select {
	case c.send <- env:
		return nil
	default:
		// A full buffer means the device stopped reading; treat as broken.
		return errBufferFull
	}
}

// Close sends a best-effort close frame carrying the reason and tears the
// connection down. Safe to call multiple times and from any goroutine.
func (c *wsConn) Close(reason broker.CloseReason) error {
	c.once.Do(func() {
		close(c.done)
		deadline := time.Now().Add(writeWait)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(reason))
		if err := c.conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
			c.logger.Debug("writing close frame failed", "device_id", c.deviceID, "error", err)
		}
		_ = c.conn.Close()
	})
	return nil
}

func (c *wsConn) writeLoop() {
	for {
		select {
		case env := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(env); err != nil {
				c.logger.Debug("write failed", "device_id", c.deviceID, "error", err)
				_ = c.Close(broker.CloseReason("write failed"))
				return
			}
		case <-c.done:
			return
		}
	}
}
