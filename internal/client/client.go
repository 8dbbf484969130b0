// Package client implements the signaling side of a room participant:
// a WebSocket connection to the relay plus typed send helpers and a
// read loop that dispatches incoming events. It satisfies rtc.Signaler
// so a Mesh can drive its handshakes through the same connection.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/solovey/codemesh/internal/application/constant"
	"github.com/solovey/codemesh/internal/domain/events"
	"github.com/solovey/codemesh/internal/registry"
)

// Handlers holds per-event callbacks. Nil fields are skipped.
type Handlers struct {
	OnRoomInfo       func(participants map[string]registry.ParticipantState)
	OnUserJoined     func(ev events.UserJoined)
	OnUserLeft       func(ev events.UserLeft)
	OnCodeUpdate     func(code string)
	OnCursorUpdate   func(ev events.CursorUpdate)
	OnReceiveMessage func(ev events.ReceiveMessage)
	OnCallMade       func(ev events.CallMade)
	OnAnswerMade     func(ev events.AnswerMade)
	OnCandidate      func(ev events.ICECandidate)
	OnError          func(ev events.Error)
}

type Client struct {
	conn   *websocket.Conn
	connID string

	writeMu  sync.Mutex
	handlers Handlers
}

// Dial connects to the relay endpoint and returns a ready client. The
// server assigns the connection id during the handshake.
func Dial(ctx context.Context, rawURL string, header http.Header) (*Client, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, rawURL, header)
	if err != nil {
		return nil, fmt.Errorf("dial signaling endpoint: %w", err)
	}

	connID := resp.Header.Get("X-Conn-Id")
	if connID == "" {
		conn.Close()
		return nil, fmt.Errorf("handshake response missing connection id")
	}

	return &Client{conn: conn, connID: connID}, nil
}

// ConnID is the identity the relay knows this client by.
func (c *Client) ConnID() string {
	return c.connID
}

// SetHandlers must be called before Run.
func (c *Client) SetHandlers(h Handlers) {
	c.handlers = h
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// JoinRoom enters a collaboration room. The roster arrives
// asynchronously via OnRoomInfo.
func (c *Client) JoinRoom(roomID, displayName, avatarRef string) error {
	return c.send(events.TypeJoinRoom, events.JoinRoom{
		RoomID:      roomID,
		DisplayName: displayName,
		AvatarRef:   avatarRef,
	})
}

// SendCode publishes a full-document replacement.
func (c *Client) SendCode(roomID, code string) error {
	return c.send(events.TypeCodeChange, events.CodeChange{RoomID: roomID, Code: code})
}

func (c *Client) SendCursor(roomID string, pos registry.Position) error {
	return c.send(events.TypeCursorMove, events.CursorMove{RoomID: roomID, Position: pos})
}

func (c *Client) SendChat(roomID, message string) error {
	return c.send(events.TypeSendMessage, events.SendMessage{RoomID: roomID, Message: message})
}

// SendOffer, SendAnswer and SendCandidate implement rtc.Signaler.

func (c *Client) SendOffer(to string, offer webrtc.SessionDescription) error {
	return c.send(events.TypeCallUser, events.CallUser{To: to, Offer: offer})
}

func (c *Client) SendAnswer(to string, answer webrtc.SessionDescription) error {
	return c.send(events.TypeAnswerCall, events.AnswerCall{To: to, Answer: answer})
}

func (c *Client) SendCandidate(to string, candidate webrtc.ICECandidateInit) error {
	return c.send(events.TypeICECandidate, events.ICECandidate{To: to, Candidate: candidate})
}

// Run reads events until the connection closes or ctx is cancelled.
// Events are dispatched in arrival order on the calling goroutine.
func (c *Client) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		c.conn.Close()
	}()

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read signaling event: %w", err)
		}

		var env events.Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			slog.Error("unmarshal signaling event", slog.Any(constant.Error, err))
			continue
		}

		if err := c.dispatch(env); err != nil {
			slog.Error("handle signaling event",
				slog.String(constant.Event, env.Type),
				slog.Any(constant.Error, err),
			)
		}
	}
}

func (c *Client) dispatch(env events.Envelope) error {
	switch env.Type {
	case events.TypeRoomInfo:
		var ev events.RoomInfo
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return err
		}
		if c.handlers.OnRoomInfo != nil {
			c.handlers.OnRoomInfo(ev.Participants)
		}

	case events.TypeUserJoined:
		var ev events.UserJoined
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return err
		}
		if c.handlers.OnUserJoined != nil {
			c.handlers.OnUserJoined(ev)
		}

	case events.TypeUserLeft:
		var ev events.UserLeft
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return err
		}
		if c.handlers.OnUserLeft != nil {
			c.handlers.OnUserLeft(ev)
		}

	case events.TypeCodeUpdate:
		var ev events.CodeUpdate
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return err
		}
		if c.handlers.OnCodeUpdate != nil {
			c.handlers.OnCodeUpdate(ev.Code)
		}

	case events.TypeCursorUpdate:
		var ev events.CursorUpdate
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return err
		}
		if c.handlers.OnCursorUpdate != nil {
			c.handlers.OnCursorUpdate(ev)
		}

	case events.TypeReceiveMessage:
		var ev events.ReceiveMessage
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return err
		}
		if c.handlers.OnReceiveMessage != nil {
			c.handlers.OnReceiveMessage(ev)
		}

	case events.TypeCallMade:
		var ev events.CallMade
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return err
		}
		if c.handlers.OnCallMade != nil {
			c.handlers.OnCallMade(ev)
		}

	case events.TypeAnswerMade:
		var ev events.AnswerMade
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return err
		}
		if c.handlers.OnAnswerMade != nil {
			c.handlers.OnAnswerMade(ev)
		}

	case events.TypeICECandidate:
		var ev events.ICECandidate
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return err
		}
		if c.handlers.OnCandidate != nil {
			c.handlers.OnCandidate(ev)
		}

	case events.TypeError:
		var ev events.Error
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return err
		}
		if c.handlers.OnError != nil {
			c.handlers.OnError(ev)
		}

	case events.TypePong:
		// Keepalive reply; nothing to do.

	default:
		slog.Warn("unknown signaling event", slog.String(constant.Event, env.Type))
	}

	return nil
}

func (c *Client) send(eventType string, payload any) error {
	env, err := events.Marshal(eventType, payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", eventType, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return c.conn.WriteJSON(env)
}
