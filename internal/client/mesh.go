package client

import (
	"github.com/solovey/codemesh/internal/domain/events"
	"github.com/solovey/codemesh/internal/registry"
	"github.com/solovey/codemesh/internal/rtc"
)

// MeshHandlers pre-wires the peer-to-peer events to a Mesh. The caller
// may fill in the collaboration callbacks on the returned value before
// passing it to SetHandlers.
func (c *Client) MeshHandlers(m *rtc.Mesh) Handlers {
	return Handlers{
		OnRoomInfo: func(participants map[string]registry.ParticipantState) {
			m.HandleRoomInfo(c.connID, participants)
		},
		OnUserJoined: func(ev events.UserJoined) {
			m.HandleUserJoined(ev.ConnID, ev.DisplayName)
		},
		OnUserLeft: func(ev events.UserLeft) {
			m.HandleUserLeft(ev.ConnID)
		},
		OnCallMade: func(ev events.CallMade) {
			m.HandleOffer(ev.From, ev.Offer)
		},
		OnAnswerMade: func(ev events.AnswerMade) {
			m.HandleAnswer(ev.From, ev.Answer)
		},
		OnCandidate: func(ev events.ICECandidate) {
			m.HandleCandidate(ev.From, ev.Candidate)
		},
	}
}
