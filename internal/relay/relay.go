// Package relay forwards collaboration events between room members. It
// is a thin pub/sub layer over the registry: presence and edit events
// fan out to the room, signaling messages go to exactly one target.
package relay

import (
	"log/slog"
	"sync"
	"time"

	"github.com/solovey/codemesh/internal/application/constant"
	"github.com/solovey/codemesh/internal/application/metric"
	"github.com/solovey/codemesh/internal/domain/events"
	"github.com/solovey/codemesh/internal/infra/adapters/memory"
	"github.com/solovey/codemesh/internal/registry"
)

type Relay struct {
	reg   *registry.Registry
	conns memory.ConnectionRepository

	// roomOf remembers which room each connection joined so that a
	// disconnect can be routed without the client naming the room.
	mu     sync.Mutex
	roomOf map[string]string

	now func() time.Time
}

func New(reg *registry.Registry, conns memory.ConnectionRepository) *Relay {
	return &Relay{
		reg:    reg,
		conns:  conns,
		roomOf: make(map[string]string),
		now:    time.Now,
	}
}

// HandleJoin adds connID to the room and broadcasts presence. The full
// participant snapshot travels with both events so every member
// converges on the same view even across reconnects.
func (r *Relay) HandleJoin(connID string, ev events.JoinRoom) {
	r.mu.Lock()
	prev, wasJoined := r.roomOf[connID]
	r.roomOf[connID] = ev.RoomID
	r.mu.Unlock()

	// A connection carries at most one room membership. Joining a new
	// room evicts it from the old one first, so the old room can still
	// reach zero members and be destroyed.
	if wasJoined && prev != ev.RoomID {
		r.leaveRoom(connID, prev)
	}

	state, snapshot := r.reg.Join(ev.RoomID, connID, ev.DisplayName, ev.AvatarRef)

	metric.RecordRelayedEvent(events.TypeJoinRoom)
	metric.SetActiveRooms(r.reg.RoomCount())

	slog.Info("participant joined room",
		slog.String(constant.ConnID, connID),
		slog.String(constant.UserName, ev.DisplayName),
		slog.String(constant.RoomID, ev.RoomID),
	)

	r.send(connID, events.TypeRoomInfo, events.RoomInfo{Participants: snapshot})

	joined := events.UserJoined{
		ConnID:       connID,
		DisplayName:  state.DisplayName,
		AvatarRef:    state.AvatarRef,
		Participants: snapshot,
	}
	for _, target := range r.reg.BroadcastTargets(ev.RoomID, connID) {
		r.send(target, events.TypeUserJoined, joined)
	}
}

// HandleCodeChange forwards the document verbatim to all other members.
// No diffing, no merge: last write wins at whole-document granularity.
func (r *Relay) HandleCodeChange(connID string, ev events.CodeChange) {
	metric.RecordRelayedEvent(events.TypeCodeChange)

	update := events.CodeUpdate{Code: ev.Code}
	for _, target := range r.reg.BroadcastTargets(ev.RoomID, connID) {
		r.send(target, events.TypeCodeUpdate, update)
	}
}

// HandleCursorMove records the sender's cursor and forwards it to the
// room, annotated with the name and color the registry holds right now.
func (r *Relay) HandleCursorMove(connID string, ev events.CursorMove) {
	r.reg.UpdateCursor(ev.RoomID, connID, ev.Position)

	state, ok := r.reg.Participant(ev.RoomID, connID)
	if !ok {
		// Not a member: the cursor write above was already a no-op.
		return
	}

	metric.RecordRelayedEvent(events.TypeCursorMove)

	update := events.CursorUpdate{
		ConnID:      connID,
		DisplayName: state.DisplayName,
		Position:    ev.Position,
		ColorIndex:  state.ColorIndex,
		Color:       state.Color(),
	}
	for _, target := range r.reg.BroadcastTargets(ev.RoomID, connID) {
		r.send(target, events.TypeCursorUpdate, update)
	}
}

// HandleSendMessage fans a chat message out to the rest of the room.
func (r *Relay) HandleSendMessage(connID string, ev events.SendMessage) {
	state, ok := r.reg.Participant(ev.RoomID, connID)
	if !ok {
		return
	}

	metric.RecordRelayedEvent(events.TypeSendMessage)

	msg := events.ReceiveMessage{
		DisplayName: state.DisplayName,
		Message:     ev.Message,
		Timestamp:   r.now().UTC(),
	}
	for _, target := range r.reg.BroadcastTargets(ev.RoomID, connID) {
		r.send(target, events.TypeReceiveMessage, msg)
	}
}

// HandleCallUser relays an offer to exactly one target. If the target
// is gone the message is dropped; the caller's own handshake timer is
// responsible for noticing the lack of progress.
func (r *Relay) HandleCallUser(connID string, ev events.CallUser) {
	metric.RecordRelayedEvent(events.TypeCallUser)
	r.send(ev.To, events.TypeCallMade, events.CallMade{From: connID, Offer: ev.Offer})
}

func (r *Relay) HandleAnswerCall(connID string, ev events.AnswerCall) {
	metric.RecordRelayedEvent(events.TypeAnswerCall)
	r.send(ev.To, events.TypeAnswerMade, events.AnswerMade{From: connID, Answer: ev.Answer})
}

func (r *Relay) HandleCandidate(connID string, ev events.ICECandidate) {
	metric.RecordRelayedEvent(events.TypeICECandidate)
	r.send(ev.To, events.TypeICECandidate, events.ICECandidate{From: connID, Candidate: ev.Candidate})
}

// HandleDisconnect removes connID from its room and notifies the
// remaining members. The room is destroyed if it became empty.
func (r *Relay) HandleDisconnect(connID string) {
	r.mu.Lock()
	roomID, ok := r.roomOf[connID]
	delete(r.roomOf, connID)
	r.mu.Unlock()

	if !ok {
		return
	}

	r.leaveRoom(connID, roomID)
}

// leaveRoom removes connID from roomID in the registry and fans out
// user-left to whoever remains.
func (r *Relay) leaveRoom(connID, roomID string) {
	state, wasMember := r.reg.Participant(roomID, connID)

	departed, _ := r.reg.Leave(roomID, connID)
	metric.SetActiveRooms(r.reg.RoomCount())

	if !departed || !wasMember {
		return
	}

	slog.Info("participant left room",
		slog.String(constant.ConnID, connID),
		slog.String(constant.UserName, state.DisplayName),
		slog.String(constant.RoomID, roomID),
	)

	left := events.UserLeft{ConnID: connID, DisplayName: state.DisplayName}
	for _, target := range r.reg.BroadcastTargets(roomID, connID) {
		r.send(target, events.TypeUserLeft, left)
	}
}

func (r *Relay) send(connID, eventType string, payload any) {
	env, err := events.Marshal(eventType, payload)
	if err != nil {
		slog.Error("marshal event",
			slog.String(constant.Event, eventType),
			slog.Any(constant.Error, err),
		)
		return
	}

	r.conns.Write(connID, env)
}
