package rtc

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/solovey/codemesh/internal/application/constant"
)

// State is the lifecycle state of a peer session.
type State int

const (
	StateNew State = iota
	StateOfferSent
	StateAnswering
	StateConnected
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateOfferSent:
		return "offer_sent"
	case StateAnswering:
		return "answering"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// TrackKind distinguishes the two sender slots of a session.
type TrackKind string

const (
	TrackVideo TrackKind = "video"
	TrackAudio TrackKind = "audio"
)

// Session owns the connection to a single remote participant: the peer
// connection handle, its track senders, and the queue of remote
// candidates that arrived before negotiation was ready.
//
// All handshake steps run under the session mutex, so no two steps for
// the same session are ever in flight concurrently.
type Session struct {
	remoteID string

	mu        sync.Mutex
	pc        PeerConnector
	state     State
	senders   map[TrackKind]TrackSender
	queue     []webrtc.ICECandidateInit
	remoteSet bool

	retryTimer    *time.Timer
	retryInterval time.Duration

	signaler Signaler

	// onRetry re-initiates the full offer flow through the orchestrator,
	// which rebuilds the session with the current local tracks.
	onRetry  func(remoteID string)
	onFailed func(remoteID string)
}

func newSession(
	remoteID string,
	pc PeerConnector,
	signaler Signaler,
	retryInterval time.Duration,
	onRetry func(string),
	onFailed func(string),
) *Session {
	s := &Session{
		remoteID:      remoteID,
		pc:            pc,
		state:         StateNew,
		senders:       make(map[TrackKind]TrackSender, 2),
		retryInterval: retryInterval,
		signaler:      signaler,
		onRetry:       onRetry,
		onFailed:      onFailed,
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		if err := signaler.SendCandidate(remoteID, c.ToJSON()); err != nil {
			slog.Error("send candidate",
				slog.String(constant.RemoteID, remoteID),
				slog.Any(constant.Error, err),
			)
		}
	})

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		switch state {
		case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
			s.disarmRetry()
		case webrtc.ICEConnectionStateFailed:
			s.fail()
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			s.fail()
		}
	})

	return s
}

// RemoteID returns the remote participant this session connects to.
func (s *Session) RemoteID() string { return s.remoteID }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// QueuedCandidates returns the number of candidates still waiting for a
// remote description.
func (s *Session) QueuedCandidates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// addLocalTrack attaches an outbound track and remembers its sender.
func (s *Session) addLocalTrack(kind TrackKind, track webrtc.TrackLocal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocalTrackLocked(kind, track)
}

func (s *Session) addLocalTrackLocked(kind TrackKind, track webrtc.TrackLocal) error {
	sender, err := s.pc.AddTrack(track)
	if err != nil {
		return fmt.Errorf("add %s track: %w", kind, err)
	}
	s.senders[kind] = sender
	return nil
}

// SendOffer creates and sends a local offer, moving the session to
// OFFER_SENT and arming the handshake retry timer.
func (s *Session) SendOffer() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed || s.state == StateFailed {
		return fmt.Errorf("session %s: offer on %s session", s.remoteID, s.state)
	}

	offer, err := s.pc.CreateOffer()
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}

	if err := s.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}

	if err := s.signaler.SendOffer(s.remoteID, offer); err != nil {
		return fmt.Errorf("signal offer: %w", err)
	}

	s.state = StateOfferSent
	s.armRetryLocked()

	return nil
}

// HandleRemoteOffer answers an incoming offer: set the remote
// description, drain queued candidates, send the answer back.
func (s *Session) HandleRemoteOffer(offer webrtc.SessionDescription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed || s.state == StateFailed {
		return fmt.Errorf("session %s: remote offer on %s session", s.remoteID, s.state)
	}

	s.state = StateAnswering

	if err := s.pc.SetRemoteDescription(offer); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	s.remoteSet = true
	s.drainQueueLocked()

	answer, err := s.pc.CreateAnswer()
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}

	if err := s.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}

	if err := s.signaler.SendAnswer(s.remoteID, answer); err != nil {
		return fmt.Errorf("signal answer: %w", err)
	}

	s.state = StateConnected

	return nil
}

// HandleRemoteAnswer completes an offer we initiated. Answers arriving
// for a session that is not waiting for one are ignored.
func (s *Session) HandleRemoteAnswer(answer webrtc.SessionDescription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateOfferSent {
		return nil
	}

	if err := s.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	s.remoteSet = true
	s.drainQueueLocked()

	s.state = StateConnected

	return nil
}

// HandleCandidate applies a remote candidate, or queues it FIFO when no
// remote description has been accepted yet.
func (s *Session) HandleCandidate(candidate webrtc.ICECandidateInit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed || s.state == StateFailed {
		return nil
	}

	if !s.remoteSet {
		s.queue = append(s.queue, candidate)
		return nil
	}

	return s.pc.AddICECandidate(candidate)
}

// drainQueueLocked applies every queued candidate in arrival order and
// clears the queue. Called exactly when a remote description is
// accepted, so no candidate is applied early, out of order, or twice.
func (s *Session) drainQueueLocked() {
	for _, candidate := range s.queue {
		if err := s.pc.AddICECandidate(candidate); err != nil {
			slog.Error("apply queued candidate",
				slog.String(constant.RemoteID, s.remoteID),
				slog.Any(constant.Error, err),
			)
		}
	}
	s.queue = nil
}

// replaceTrack swaps the outbound track of the given kind on the
// existing sender. It reports false when the session has no sender of
// that kind, in which case the caller decides whether to add one.
func (s *Session) replaceTrack(kind TrackKind, track webrtc.TrackLocal) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed || s.state == StateFailed {
		return true, nil
	}

	sender, ok := s.senders[kind]
	if !ok {
		return false, nil
	}

	return true, sender.ReplaceTrack(track)
}

func (s *Session) armRetryLocked() {
	if s.retryTimer != nil {
		s.retryTimer.Stop()
	}
	s.retryTimer = time.AfterFunc(s.retryInterval, s.retryFired)
}

func (s *Session) disarmRetry() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
}

// retryFired re-offers through the orchestrator if the handshake has
// made no ICE progress. A timer firing after the session connected,
// failed, or closed is a no-op.
func (s *Session) retryFired() {
	s.mu.Lock()

	if s.state != StateOfferSent {
		s.mu.Unlock()
		return
	}

	ice := s.pc.ICEConnectionState()
	if ice != webrtc.ICEConnectionStateNew && ice != webrtc.ICEConnectionStateChecking {
		s.mu.Unlock()
		return
	}

	s.mu.Unlock()

	slog.Warn("handshake timeout, re-offering", slog.String(constant.RemoteID, s.remoteID))

	// Outside the lock: the orchestrator will close this session and
	// build a replacement with the current local tracks.
	s.onRetry(s.remoteID)
}

func (s *Session) fail() {
	s.mu.Lock()

	if s.state == StateClosed || s.state == StateFailed || s.state == StateNew {
		s.mu.Unlock()
		return
	}

	s.state = StateFailed
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}

	s.mu.Unlock()

	slog.Warn("peer session failed", slog.String(constant.RemoteID, s.remoteID))

	if s.onFailed != nil {
		s.onFailed(s.remoteID)
	}
}

// Close releases the connection and cancels the retry timer. Closing an
// already-closed session is harmless.
func (s *Session) Close() {
	s.mu.Lock()

	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}

	s.state = StateClosed
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	s.queue = nil
	pc := s.pc

	s.mu.Unlock()

	if err := pc.Close(); err != nil {
		slog.Error("close peer connection",
			slog.String(constant.RemoteID, s.remoteID),
			slog.Any(constant.Error, err),
		)
	}
}
