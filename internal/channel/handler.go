// ABOUTME: WebSocket endpoint for companion devices: handshake and read loop.
// ABOUTME: Dispatches heartbeat and answer frames into the broker.

package channel

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/2389/handoff-bridge/internal/auth"
	"github.com/2389/handoff-bridge/internal/broker"
)

const handshakeTimeout = 10 * time.Second

// Handler upgrades device connections and bridges them into the broker.
type Handler struct {
	broker   *broker.Broker
	tokens   *auth.DeviceTokens
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler creates the device channel endpoint.
func NewHandler(b *broker.Broker, tokens *auth.DeviceTokens, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		broker: b,
		tokens: tokens,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The bridge is reached over LAN or a tunnel, not from browsers.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger.With("component", "channel"),
	}
}

// ServeHTTP handles one device connection for its whole lifetime.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	conn.SetReadLimit(maxFrameSize)

	claims, reg, err := h.handshake(conn)
	if err != nil {
		h.logger.Warn("device handshake rejected", "remote", r.RemoteAddr, "error", err)
		h.rejectAndClose(conn, err)
		return
	}

	name := reg.DeviceName
	if name == "" {
		name = claims.Name
	}

	ch := newWSConn(claims.DeviceID, conn, h.logger)
	if err := h.broker.Register(claims.DeviceID, name, reg.PushToken, ch); err != nil {
		_ = ch.Close(broker.CloseShutdown)
		return
	}

	if ack, err := NewEnvelope(TypeRegistered, RegisteredPayload{DeviceID: claims.DeviceID}); err == nil {
		_ = ch.enqueue(ack)
	}

	h.readLoop(conn, ch, claims.DeviceID)

	h.broker.MarkDisconnected(claims.DeviceID, ch)
	_ = ch.Close(broker.CloseReason("connection closed"))
}

// handshake reads and verifies the mandatory register frame.
func (h *Handler) handshake(conn *websocket.Conn) (*auth.DeviceClaims, *RegisterPayload, error) {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	defer conn.SetReadDeadline(time.Time{})

	var env Envelope
	if err := conn.ReadJSON(&env); err != nil {
		return nil, nil, err
	}
	if env.Type != TypeRegister {
		return nil, nil, errUnexpectedFrame(env.Type)
	}

	var reg RegisterPayload
	if err := env.DecodePayload(&reg); err != nil {
		return nil, nil, err
	}

	claims, err := h.tokens.Verify(reg.Token)
	if err != nil {
		return nil, nil, err
	}
	return claims, &reg, nil
}

// rejectAndClose tells the device why the handshake failed, then hangs up.
func (h *Handler) rejectAndClose(conn *websocket.Conn, cause error) {
	if env, err := NewEnvelope(TypeError, ErrorPayload{Message: cause.Error()}); err == nil {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteJSON(env)
	}
	_ = conn.Close()
}

// readLoop dispatches inbound frames until the connection dies. Malformed
// frames are isolated to this connection: logged and skipped.
func (h *Handler) readLoop(conn *websocket.Conn, ch *wsConn, deviceID string) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			h.logger.Debug("read loop ended", "device_id", deviceID, "error", err)
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			h.logger.Debug("malformed frame", "device_id", deviceID, "error", err)
			continue
		}

		switch env.Type {
		case TypeHeartbeat:
			h.broker.HandleHeartbeat(deviceID)

		case TypeAnswer:
			var ans AnswerPayload
			if err := env.DecodePayload(&ans); err != nil {
				h.logger.Debug("malformed answer", "device_id", deviceID, "error", err)
				continue
			}
			h.broker.Resolve(ans.RequestID, ans.Answer, deviceID)

		default:
			h.logger.Debug("unknown frame type", "device_id", deviceID, "type", env.Type)
		}
	}
}

// errUnexpectedFrame names a frame type that arrived out of order.
type errUnexpectedFrame string

func (e errUnexpectedFrame) Error() string {
	return "expected register frame, got " + string(e)
}
