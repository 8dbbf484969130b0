package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/solovey/codemesh/internal/application/config"
	"github.com/solovey/codemesh/internal/application/constant"
	"github.com/solovey/codemesh/internal/application/metric"
	"github.com/solovey/codemesh/internal/domain/events"
	"github.com/solovey/codemesh/internal/infra/adapters/memory"
	"github.com/solovey/codemesh/internal/relay"
)

type WebSocketHandler struct {
	upgrader *websocket.Upgrader

	conns memory.ConnectionRepository
	relay *relay.Relay
}

func NewWebSocketHandler(cfg *config.Config, conns memory.ConnectionRepository, r *relay.Relay) *WebSocketHandler {
	return &WebSocketHandler{
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(req *http.Request) bool {
				if cfg.Debug {
					return true
				}

				return req.Header.Get("Origin") == cfg.Domain
			},
		},
		conns: conns,
		relay: r,
	}
}

// Handle runs one signaling connection: a single read loop per client,
// so events from one sender reach the relay in FIFO order.
func (h *WebSocketHandler) Handle(c echo.Context) error {
	connID := uuid.NewString()

	// The client learns its own id from the handshake response so that
	// it can tell itself apart in roster snapshots.
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), http.Header{"X-Conn-Id": {connID}})
	if err != nil {
		slog.Error("WebSocket upgrade error", slog.Any(constant.Error, err))
		return err
	}
	defer ws.Close()

	h.conns.Add(connID, ws)
	metric.IncrementWSActiveConnections()

	defer func() {
		h.relay.HandleDisconnect(connID)
		h.conns.Remove(connID)
		metric.DecrementWSActiveConnections()
	}()

	if err := ws.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		return err
	}
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					return
				}
			case <-c.Request().Context().Done():
				return
			}
		}
	}()

	slog.Info("WebSocket connection established", slog.String(constant.ConnID, connID))

	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Error("websocket read error",
					slog.String(constant.ConnID, connID),
					slog.Any(constant.Error, err),
				)
			}

			return nil
		}

		var env events.Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			slog.Error("unmarshal websocket message", slog.Any(constant.Error, err))
			continue
		}

		if err := h.dispatch(connID, env); err != nil {
			slog.Error("handle message",
				slog.String(constant.ConnID, connID),
				slog.String(constant.Event, env.Type),
				slog.Any(constant.Error, err),
			)
		}
	}
}

// dispatch decodes the envelope and routes it to the relay. Errors here
// are per-message: a malformed event never drops the connection.
func (h *WebSocketHandler) dispatch(connID string, env events.Envelope) error {
	switch env.Type {
	case events.TypeJoinRoom:
		var ev events.JoinRoom
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return err
		}
		h.relay.HandleJoin(connID, ev)

	case events.TypeCodeChange:
		var ev events.CodeChange
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return err
		}
		h.relay.HandleCodeChange(connID, ev)

	case events.TypeCursorMove:
		var ev events.CursorMove
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return err
		}
		h.relay.HandleCursorMove(connID, ev)

	case events.TypeSendMessage:
		var ev events.SendMessage
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return err
		}
		h.relay.HandleSendMessage(connID, ev)

	case events.TypeCallUser:
		var ev events.CallUser
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return err
		}
		h.relay.HandleCallUser(connID, ev)

	case events.TypeAnswerCall:
		var ev events.AnswerCall
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return err
		}
		h.relay.HandleAnswerCall(connID, ev)

	case events.TypeICECandidate:
		var ev events.ICECandidate
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return err
		}
		h.relay.HandleCandidate(connID, ev)

	case events.TypePing:
		h.conns.Write(connID, events.Envelope{Type: events.TypePong})

	default:
		slog.Warn("unknown message type",
			slog.String(constant.ConnID, connID),
			slog.String(constant.Event, env.Type),
		)
	}

	return nil
}
