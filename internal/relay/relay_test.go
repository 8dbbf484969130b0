package relay

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solovey/codemesh/internal/domain/events"
	"github.com/solovey/codemesh/internal/registry"
)

// fakeConns records every write per registered connection instead of
// touching a real websocket. Like the real repository, a write to a
// connID that was never added (or already removed) is a silent drop.
type fakeConns struct {
	mu         sync.Mutex
	registered map[string]bool
	writes     map[string][]events.Envelope
}

func newFakeConns() *fakeConns {
	return &fakeConns{
		registered: make(map[string]bool),
		writes:     make(map[string][]events.Envelope),
	}
}

func (f *fakeConns) Add(connID string, conn *websocket.Conn) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.registered[connID] = true
}

func (f *fakeConns) Remove(connID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.registered, connID)
}

func (f *fakeConns) Write(connID string, payload any) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.registered[connID] {
		return false
	}

	env, ok := payload.(events.Envelope)
	if !ok {
		return false
	}
	f.writes[connID] = append(f.writes[connID], env)
	return true
}

func (f *fakeConns) sent(connID string) []events.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]events.Envelope, len(f.writes[connID]))
	copy(out, f.writes[connID])
	return out
}

func (f *fakeConns) lastOfType(t *testing.T, connID, eventType string) events.Envelope {
	t.Helper()

	var found *events.Envelope
	for _, env := range f.sent(connID) {
		if env.Type == eventType {
			e := env
			found = &e
		}
	}
	require.NotNil(t, found, "no %s event sent to %s", eventType, connID)
	return *found
}

func (f *fakeConns) countOfType(connID, eventType string) int {
	n := 0
	for _, env := range f.sent(connID) {
		if env.Type == eventType {
			n++
		}
	}
	return n
}

func newTestRelay() (*Relay, *fakeConns) {
	conns := newFakeConns()
	r := New(registry.New(), conns)
	r.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return r, conns
}

func join(r *Relay, connID, roomID, name string) {
	r.conns.(*fakeConns).Add(connID, nil)
	r.HandleJoin(connID, events.JoinRoom{RoomID: roomID, DisplayName: name})
}

func TestJoinSendsRoomInfoToSenderAndUserJoinedToOthers(t *testing.T) {
	r, conns := newTestRelay()

	join(r, "conn-a", "room-1", "Alice")
	join(r, "conn-b", "room-1", "Bob")

	info := conns.lastOfType(t, "conn-b", events.TypeRoomInfo)
	var roomInfo events.RoomInfo
	require.NoError(t, json.Unmarshal(info.Data, &roomInfo))
	assert.Len(t, roomInfo.Participants, 2)

	joined := conns.lastOfType(t, "conn-a", events.TypeUserJoined)
	var userJoined events.UserJoined
	require.NoError(t, json.Unmarshal(joined.Data, &userJoined))
	assert.Equal(t, "conn-b", userJoined.ConnID)
	assert.Equal(t, "Bob", userJoined.DisplayName)
	assert.Len(t, userJoined.Participants, 2)

	// The joiner never receives its own user-joined.
	assert.Zero(t, conns.countOfType("conn-b", events.TypeUserJoined))
}

func TestCodeChangeFansOutExcludingSender(t *testing.T) {
	r, conns := newTestRelay()

	join(r, "conn-a", "room-1", "Alice")
	join(r, "conn-b", "room-1", "Bob")
	join(r, "conn-c", "room-1", "Carol")
	join(r, "conn-x", "room-2", "Xavier")

	r.HandleCodeChange("conn-a", events.CodeChange{RoomID: "room-1", Code: "package main"})

	for _, target := range []string{"conn-b", "conn-c"} {
		env := conns.lastOfType(t, target, events.TypeCodeUpdate)
		var update events.CodeUpdate
		require.NoError(t, json.Unmarshal(env.Data, &update))
		assert.Equal(t, "package main", update.Code)
	}

	assert.Zero(t, conns.countOfType("conn-a", events.TypeCodeUpdate), "sender must not echo")
	assert.Zero(t, conns.countOfType("conn-x", events.TypeCodeUpdate), "other rooms must not leak")
}

func TestSequentialCodeChangesArriveInOrder(t *testing.T) {
	r, conns := newTestRelay()

	join(r, "conn-a", "room-1", "Alice")
	join(r, "conn-b", "room-1", "Bob")

	r.HandleCodeChange("conn-a", events.CodeChange{RoomID: "room-1", Code: "v1"})
	r.HandleCodeChange("conn-a", events.CodeChange{RoomID: "room-1", Code: "v2"})
	r.HandleCodeChange("conn-a", events.CodeChange{RoomID: "room-1", Code: "v3"})

	var got []string
	for _, env := range conns.sent("conn-b") {
		if env.Type != events.TypeCodeUpdate {
			continue
		}
		var update events.CodeUpdate
		require.NoError(t, json.Unmarshal(env.Data, &update))
		got = append(got, update.Code)
	}

	assert.Equal(t, []string{"v1", "v2", "v3"}, got)
}

func TestCursorMoveAnnotatesWithRegistryState(t *testing.T) {
	r, conns := newTestRelay()

	join(r, "conn-a", "room-1", "Alice")
	join(r, "conn-b", "room-1", "Bob")

	r.HandleCursorMove("conn-b", events.CursorMove{
		RoomID:   "room-1",
		Position: registry.Position{Line: 5, Column: 12},
	})

	env := conns.lastOfType(t, "conn-a", events.TypeCursorUpdate)
	var update events.CursorUpdate
	require.NoError(t, json.Unmarshal(env.Data, &update))

	assert.Equal(t, "conn-b", update.ConnID)
	assert.Equal(t, "Bob", update.DisplayName)
	assert.Equal(t, 5, update.Position.Line)
	assert.Equal(t, 12, update.Position.Column)
	assert.Equal(t, 1, update.ColorIndex)
	assert.Equal(t, registry.Palette[1], update.Color)
}

func TestCursorMoveFromNonMemberIsDropped(t *testing.T) {
	r, conns := newTestRelay()

	join(r, "conn-a", "room-1", "Alice")

	r.HandleCursorMove("conn-ghost", events.CursorMove{
		RoomID:   "room-1",
		Position: registry.Position{Line: 1, Column: 1},
	})

	assert.Zero(t, conns.countOfType("conn-a", events.TypeCursorUpdate))
}

func TestSendMessageCarriesServerTimestamp(t *testing.T) {
	r, conns := newTestRelay()

	join(r, "conn-a", "room-1", "Alice")
	join(r, "conn-b", "room-1", "Bob")

	r.HandleSendMessage("conn-a", events.SendMessage{RoomID: "room-1", Message: "hello"})

	env := conns.lastOfType(t, "conn-b", events.TypeReceiveMessage)
	var msg events.ReceiveMessage
	require.NoError(t, json.Unmarshal(env.Data, &msg))

	assert.Equal(t, "Alice", msg.DisplayName)
	assert.Equal(t, "hello", msg.Message)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), msg.Timestamp)
	assert.Zero(t, conns.countOfType("conn-a", events.TypeReceiveMessage))
}

func TestSignalingIsPointToPoint(t *testing.T) {
	r, conns := newTestRelay()

	join(r, "conn-a", "room-1", "Alice")
	join(r, "conn-b", "room-1", "Bob")
	join(r, "conn-c", "room-1", "Carol")

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"}
	r.HandleCallUser("conn-a", events.CallUser{To: "conn-b", Offer: offer})

	env := conns.lastOfType(t, "conn-b", events.TypeCallMade)
	var made events.CallMade
	require.NoError(t, json.Unmarshal(env.Data, &made))
	assert.Equal(t, "conn-a", made.From)
	assert.Equal(t, "v=0 offer", made.Offer.SDP)

	assert.Zero(t, conns.countOfType("conn-c", events.TypeCallMade), "third parties must not see the offer")

	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"}
	r.HandleAnswerCall("conn-b", events.AnswerCall{To: "conn-a", Answer: answer})

	env = conns.lastOfType(t, "conn-a", events.TypeAnswerMade)
	var answered events.AnswerMade
	require.NoError(t, json.Unmarshal(env.Data, &answered))
	assert.Equal(t, "conn-b", answered.From)

	r.HandleCandidate("conn-a", events.ICECandidate{
		To:        "conn-b",
		Candidate: webrtc.ICECandidateInit{Candidate: "candidate:1"},
	})

	env = conns.lastOfType(t, "conn-b", events.TypeICECandidate)
	var cand events.ICECandidate
	require.NoError(t, json.Unmarshal(env.Data, &cand))
	assert.Equal(t, "conn-a", cand.From)
	assert.Equal(t, "candidate:1", cand.Candidate.Candidate)
}

func TestSignalingToDepartedTargetIsSilentlyDropped(t *testing.T) {
	r, conns := newTestRelay()

	join(r, "conn-a", "room-1", "Alice")

	r.HandleCallUser("conn-a", events.CallUser{To: "conn-gone", Offer: webrtc.SessionDescription{}})

	assert.Empty(t, conns.sent("conn-gone"))
	// The sender gets no error back either.
	assert.Zero(t, conns.countOfType("conn-a", events.TypeError))

	// Same for a target whose writer was torn down after it joined.
	join(r, "conn-b", "room-1", "Bob")
	conns.Remove("conn-b")
	before := len(conns.sent("conn-b"))

	r.HandleCallUser("conn-a", events.CallUser{
		To:    "conn-b",
		Offer: webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"},
	})

	assert.Len(t, conns.sent("conn-b"), before)
}

func TestDisconnectNotifiesRoomAndDestroysWhenEmpty(t *testing.T) {
	r, conns := newTestRelay()

	join(r, "conn-a", "room-1", "Alice")
	join(r, "conn-b", "room-1", "Bob")

	r.HandleDisconnect("conn-a")

	env := conns.lastOfType(t, "conn-b", events.TypeUserLeft)
	var left events.UserLeft
	require.NoError(t, json.Unmarshal(env.Data, &left))
	assert.Equal(t, "conn-a", left.ConnID)
	assert.Equal(t, "Alice", left.DisplayName)

	r.HandleDisconnect("conn-b")
	assert.False(t, r.reg.Exists("room-1"))
}

func TestJoiningAnotherRoomLeavesTheFirst(t *testing.T) {
	r, conns := newTestRelay()

	join(r, "conn-a", "room-1", "Alice")
	join(r, "conn-b", "room-1", "Bob")

	join(r, "conn-a", "room-2", "Alice")

	// Bob sees Alice leave room-1 the moment she joins room-2.
	env := conns.lastOfType(t, "conn-b", events.TypeUserLeft)
	var left events.UserLeft
	require.NoError(t, json.Unmarshal(env.Data, &left))
	assert.Equal(t, "conn-a", left.ConnID)
	assert.Equal(t, 1, r.reg.MemberCount("room-1"))

	// Disconnecting conn-a now only touches room-2.
	r.HandleDisconnect("conn-a")
	assert.False(t, r.reg.Exists("room-2"))
	assert.True(t, r.reg.Exists("room-1"))

	r.HandleDisconnect("conn-b")
	assert.False(t, r.reg.Exists("room-1"), "room-1 must not survive with a stale member")
}

func TestSwitchingRoomsAloneDestroysTheOldRoom(t *testing.T) {
	r, _ := newTestRelay()

	join(r, "conn-a", "room-1", "Alice")
	join(r, "conn-a", "room-2", "Alice")

	assert.False(t, r.reg.Exists("room-1"))
	assert.True(t, r.reg.Exists("room-2"))

	r.HandleDisconnect("conn-a")
	assert.False(t, r.reg.Exists("room-2"))
}

func TestRejoiningTheSameRoomDoesNotEvict(t *testing.T) {
	r, conns := newTestRelay()

	join(r, "conn-a", "room-1", "Alice")
	join(r, "conn-b", "room-1", "Bob")

	join(r, "conn-a", "room-1", "Alice")

	assert.Zero(t, conns.countOfType("conn-b", events.TypeUserLeft))
	assert.Equal(t, 2, r.reg.MemberCount("room-1"))
}

func TestDisconnectWithoutJoinIsNoOp(t *testing.T) {
	r, conns := newTestRelay()

	join(r, "conn-a", "room-1", "Alice")
	r.HandleDisconnect("conn-never-joined")

	assert.Zero(t, conns.countOfType("conn-a", events.TypeUserLeft))
	assert.True(t, r.reg.Exists("room-1"))
}

func TestFullEditSessionScenario(t *testing.T) {
	r, conns := newTestRelay()

	// Alice opens the room and starts typing alone.
	join(r, "conn-a", "room-1", "Alice")
	r.HandleCodeChange("conn-a", events.CodeChange{RoomID: "room-1", Code: "draft"})

	// Bob joins and receives the roster, then Alice's next edit.
	join(r, "conn-b", "room-1", "Bob")
	r.HandleCodeChange("conn-a", events.CodeChange{RoomID: "room-1", Code: "draft 2"})

	env := conns.lastOfType(t, "conn-b", events.TypeCodeUpdate)
	var update events.CodeUpdate
	require.NoError(t, json.Unmarshal(env.Data, &update))
	assert.Equal(t, "draft 2", update.Code)

	// Bob's cursor and a chat line reach Alice.
	r.HandleCursorMove("conn-b", events.CursorMove{RoomID: "room-1", Position: registry.Position{Line: 2, Column: 1}})
	r.HandleSendMessage("conn-b", events.SendMessage{RoomID: "room-1", Message: "looks good"})

	assert.Equal(t, 1, conns.countOfType("conn-a", events.TypeCursorUpdate))
	assert.Equal(t, 1, conns.countOfType("conn-a", events.TypeReceiveMessage))

	// Alice leaves; Bob is told, and the room survives until he goes too.
	r.HandleDisconnect("conn-a")
	assert.Equal(t, 1, conns.countOfType("conn-b", events.TypeUserLeft))
	assert.True(t, r.reg.Exists("room-1"))

	r.HandleDisconnect("conn-b")
	assert.False(t, r.reg.Exists("room-1"))
}
