// Package rtc implements the client side of the video mesh: one peer
// session per remote participant, driven by a mesh orchestrator and
// signaled through the collaboration server.
package rtc

import (
	"fmt"

	"github.com/pion/webrtc/v4"
)

// TrackSender is the writable half of an outbound track attached to a
// peer connection.
type TrackSender interface {
	ReplaceTrack(track webrtc.TrackLocal) error
}

// PeerConnector is the subset of a WebRTC peer connection the session
// state machine needs. Production code wraps pion; tests use doubles.
type PeerConnector interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	AddTrack(track webrtc.TrackLocal) (TrackSender, error)

	ICEConnectionState() webrtc.ICEConnectionState

	OnICECandidate(fn func(*webrtc.ICECandidate))
	OnICEConnectionStateChange(fn func(webrtc.ICEConnectionState))
	OnConnectionStateChange(fn func(webrtc.PeerConnectionState))
	OnTrack(fn func(*webrtc.TrackRemote, *webrtc.RTPReceiver))

	Close() error
}

// ConnectorFactory creates a fresh peer connection for one session.
type ConnectorFactory func() (PeerConnector, error)

type pionConnector struct {
	pc *webrtc.PeerConnection
}

// NewPionFactory returns a ConnectorFactory backed by pion/webrtc with
// the given ICE servers.
func NewPionFactory(iceServers []webrtc.ICEServer) ConnectorFactory {
	return func() (PeerConnector, error) {
		pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
		if err != nil {
			return nil, fmt.Errorf("new peer connection: %w", err)
		}

		return &pionConnector{pc: pc}, nil
	}
}

func (c *pionConnector) CreateOffer() (webrtc.SessionDescription, error) {
	return c.pc.CreateOffer(nil)
}

func (c *pionConnector) CreateAnswer() (webrtc.SessionDescription, error) {
	return c.pc.CreateAnswer(nil)
}

func (c *pionConnector) SetLocalDescription(desc webrtc.SessionDescription) error {
	return c.pc.SetLocalDescription(desc)
}

func (c *pionConnector) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(desc)
}

func (c *pionConnector) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(candidate)
}

func (c *pionConnector) AddTrack(track webrtc.TrackLocal) (TrackSender, error) {
	sender, err := c.pc.AddTrack(track)
	if err != nil {
		return nil, err
	}
	return sender, nil
}

func (c *pionConnector) ICEConnectionState() webrtc.ICEConnectionState {
	return c.pc.ICEConnectionState()
}

func (c *pionConnector) OnICECandidate(fn func(*webrtc.ICECandidate)) {
	c.pc.OnICECandidate(fn)
}

func (c *pionConnector) OnICEConnectionStateChange(fn func(webrtc.ICEConnectionState)) {
	c.pc.OnICEConnectionStateChange(fn)
}

func (c *pionConnector) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	c.pc.OnConnectionStateChange(fn)
}

func (c *pionConnector) OnTrack(fn func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	c.pc.OnTrack(fn)
}

func (c *pionConnector) Close() error {
	return c.pc.Close()
}
