// Package events defines the closed set of messages exchanged over the
// signaling WebSocket, in both directions.
package events

import (
	"encoding/json"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/solovey/codemesh/internal/registry"
)

// Envelope wraps every message; Data is decoded based on Type.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Inbound event types (client to server).
const (
	TypeJoinRoom     = "join-room"
	TypeCodeChange   = "code-change"
	TypeCursorMove   = "cursor-move"
	TypeSendMessage  = "send-message"
	TypeCallUser     = "call-user"
	TypeAnswerCall   = "answer-call"
	TypeICECandidate = "ice-candidate"
	TypePing         = "ping"
)

// Outbound event types (server to client).
const (
	TypeRoomInfo       = "room-info"
	TypeUserJoined     = "user-joined"
	TypeUserLeft       = "user-left"
	TypeCodeUpdate     = "code-update"
	TypeCursorUpdate   = "cursor-update"
	TypeReceiveMessage = "receive-message"
	TypeCallMade       = "call-made"
	TypeAnswerMade     = "answer-made"
	TypePong           = "pong"
	TypeError          = "error"
)

// JoinRoom is sent once per connection to enter a collaboration room.
type JoinRoom struct {
	RoomID      string `json:"roomId"`
	DisplayName string `json:"displayName"`
	AvatarRef   string `json:"avatarRef"`
}

// CodeChange carries a full-document replacement. Last write wins;
// concurrent edits are not merged.
type CodeChange struct {
	RoomID string `json:"roomId"`
	Code   string `json:"code"`
}

type CursorMove struct {
	RoomID   string            `json:"roomId"`
	Position registry.Position `json:"position"`
}

type SendMessage struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

// CallUser starts a handshake with one named room member.
type CallUser struct {
	To    string                    `json:"to"`
	Offer webrtc.SessionDescription `json:"offer"`
}

type AnswerCall struct {
	To     string                    `json:"to"`
	Answer webrtc.SessionDescription `json:"answer"`
}

// ICECandidate is relayed point-to-point in either direction. From is
// filled in by the server on the way out.
type ICECandidate struct {
	To        string                  `json:"to,omitempty"`
	From      string                  `json:"from,omitempty"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

type RoomInfo struct {
	Participants map[string]registry.ParticipantState `json:"participants"`
}

type UserJoined struct {
	ConnID       string                               `json:"connId"`
	DisplayName  string                               `json:"displayName"`
	AvatarRef    string                               `json:"avatarRef"`
	Participants map[string]registry.ParticipantState `json:"participants"`
}

type UserLeft struct {
	ConnID      string `json:"connId"`
	DisplayName string `json:"displayName"`
}

type CodeUpdate struct {
	Code string `json:"code"`
}

// CursorUpdate is annotated with the sender's name and color as known
// to the registry at forward time, not as cached by the sender.
type CursorUpdate struct {
	ConnID      string            `json:"connId"`
	DisplayName string            `json:"displayName"`
	Position    registry.Position `json:"position"`
	ColorIndex  int               `json:"colorIndex"`
	Color       string            `json:"color"`
}

type ReceiveMessage struct {
	DisplayName string    `json:"displayName"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
}

type CallMade struct {
	From  string                    `json:"from"`
	Offer webrtc.SessionDescription `json:"offer"`
}

type AnswerMade struct {
	From   string                    `json:"from"`
	Answer webrtc.SessionDescription `json:"answer"`
}

type Error struct {
	Message string `json:"message"`
}

// Marshal wraps payload into an Envelope of the given type.
func Marshal(eventType string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: eventType, Data: data}, nil
}
