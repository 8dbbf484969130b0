package client

import (
	"encoding/json"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solovey/codemesh/internal/domain/events"
	"github.com/solovey/codemesh/internal/registry"
)

func envelope(t *testing.T, eventType string, payload any) events.Envelope {
	t.Helper()

	env, err := events.Marshal(eventType, payload)
	require.NoError(t, err)
	return env
}

func TestDispatchRoutesEventsToHandlers(t *testing.T) {
	c := &Client{connID: "self"}

	var (
		gotRoster  map[string]registry.ParticipantState
		gotJoined  events.UserJoined
		gotLeft    events.UserLeft
		gotCode    string
		gotCursor  events.CursorUpdate
		gotMessage events.ReceiveMessage
		gotOffer   events.CallMade
		gotAnswer  events.AnswerMade
		gotCand    events.ICECandidate
	)

	c.SetHandlers(Handlers{
		OnRoomInfo:       func(p map[string]registry.ParticipantState) { gotRoster = p },
		OnUserJoined:     func(ev events.UserJoined) { gotJoined = ev },
		OnUserLeft:       func(ev events.UserLeft) { gotLeft = ev },
		OnCodeUpdate:     func(code string) { gotCode = code },
		OnCursorUpdate:   func(ev events.CursorUpdate) { gotCursor = ev },
		OnReceiveMessage: func(ev events.ReceiveMessage) { gotMessage = ev },
		OnCallMade:       func(ev events.CallMade) { gotOffer = ev },
		OnAnswerMade:     func(ev events.AnswerMade) { gotAnswer = ev },
		OnCandidate:      func(ev events.ICECandidate) { gotCand = ev },
	})

	require.NoError(t, c.dispatch(envelope(t, events.TypeRoomInfo, events.RoomInfo{
		Participants: map[string]registry.ParticipantState{"peer-a": {DisplayName: "Alice"}},
	})))
	require.Contains(t, gotRoster, "peer-a")

	require.NoError(t, c.dispatch(envelope(t, events.TypeUserJoined, events.UserJoined{ConnID: "peer-b", DisplayName: "Bob"})))
	assert.Equal(t, "peer-b", gotJoined.ConnID)

	require.NoError(t, c.dispatch(envelope(t, events.TypeUserLeft, events.UserLeft{ConnID: "peer-b"})))
	assert.Equal(t, "peer-b", gotLeft.ConnID)

	require.NoError(t, c.dispatch(envelope(t, events.TypeCodeUpdate, events.CodeUpdate{Code: "v2"})))
	assert.Equal(t, "v2", gotCode)

	require.NoError(t, c.dispatch(envelope(t, events.TypeCursorUpdate, events.CursorUpdate{
		ConnID: "peer-a", Position: registry.Position{Line: 4, Column: 2}, Color: registry.Palette[0],
	})))
	assert.Equal(t, 4, gotCursor.Position.Line)
	assert.Equal(t, registry.Palette[0], gotCursor.Color)

	require.NoError(t, c.dispatch(envelope(t, events.TypeReceiveMessage, events.ReceiveMessage{Message: "hi"})))
	assert.Equal(t, "hi", gotMessage.Message)

	require.NoError(t, c.dispatch(envelope(t, events.TypeCallMade, events.CallMade{
		From:  "peer-a",
		Offer: webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "o"},
	})))
	assert.Equal(t, "peer-a", gotOffer.From)

	require.NoError(t, c.dispatch(envelope(t, events.TypeAnswerMade, events.AnswerMade{
		From:   "peer-a",
		Answer: webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "a"},
	})))
	assert.Equal(t, "peer-a", gotAnswer.From)
	assert.Equal(t, webrtc.SDPTypeAnswer, gotAnswer.Answer.Type)

	require.NoError(t, c.dispatch(envelope(t, events.TypeICECandidate, events.ICECandidate{
		From:      "peer-a",
		Candidate: webrtc.ICECandidateInit{Candidate: "cand-1"},
	})))
	assert.Equal(t, "cand-1", gotCand.Candidate.Candidate)
}

func TestDispatchToleratesNilHandlersAndUnknownTypes(t *testing.T) {
	c := &Client{connID: "self"}

	assert.NoError(t, c.dispatch(envelope(t, events.TypeCodeUpdate, events.CodeUpdate{Code: "x"})))
	assert.NoError(t, c.dispatch(events.Envelope{Type: "something-new", Data: json.RawMessage(`{}`)}))
	assert.NoError(t, c.dispatch(events.Envelope{Type: events.TypePong}))
}

func TestDispatchRejectsMalformedPayload(t *testing.T) {
	c := &Client{connID: "self"}
	c.SetHandlers(Handlers{OnCodeUpdate: func(string) { t.Fatal("handler must not run on malformed payload") }})

	err := c.dispatch(events.Envelope{Type: events.TypeCodeUpdate, Data: json.RawMessage(`not-json`)})
	assert.Error(t, err)
}
