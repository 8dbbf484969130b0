package rtc

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/solovey/codemesh/internal/application/constant"
	"github.com/solovey/codemesh/internal/registry"
)

// Signaler delivers handshake messages to one named room member
// through the collaboration server.
type Signaler interface {
	SendOffer(to string, offer webrtc.SessionDescription) error
	SendAnswer(to string, answer webrtc.SessionDescription) error
	SendCandidate(to string, candidate webrtc.ICECandidateInit) error
}

const defaultRetryInterval = 10 * time.Second

// Mesh maintains the full-mesh set of peer sessions for one room:
// creating and destroying sessions as participants churn, driving the
// offer/answer handshake, and propagating local track changes to every
// live session. Failures are isolated per remote id.
type Mesh struct {
	signaler Signaler
	factory  ConnectorFactory
	source   MediaSource

	retryInterval time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
	media    *localMedia

	// pending holds remote ids learned before local media was ready,
	// at most one entry per id, flushed in arrival order.
	pending []string

	// toggleMu serializes media toggles; an overlapping toggle waits
	// for the in-flight one instead of interleaving track replacement
	// across the mesh.
	toggleMu sync.Mutex

	onRemoteTrack func(remoteID string, track *webrtc.TrackRemote)
}

type MeshOption func(*Mesh)

// WithRetryInterval overrides the 10 second handshake retry timer.
func WithRetryInterval(d time.Duration) MeshOption {
	return func(m *Mesh) { m.retryInterval = d }
}

// WithRemoteTrackHandler registers the callback invoked when media
// from a remote participant starts arriving.
func WithRemoteTrackHandler(fn func(remoteID string, track *webrtc.TrackRemote)) MeshOption {
	return func(m *Mesh) { m.onRemoteTrack = fn }
}

func NewMesh(signaler Signaler, factory ConnectorFactory, source MediaSource, opts ...MeshOption) *Mesh {
	m := &Mesh{
		signaler:      signaler,
		factory:       factory,
		source:        source,
		retryInterval: defaultRetryInterval,
		sessions:      make(map[string]*Session),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// StartMedia acquires the local camera and microphone tracks and
// flushes any calls queued while media was pending. Acquisition
// failure is terminal for this attempt: the error is returned and
// nothing is retried automatically.
func (m *Mesh) StartMedia(videoOn, audioOn bool) error {
	videoTrack, err := m.source.AcquireTrack(TrackVideo)
	if err != nil {
		return fmt.Errorf("acquire video: %w", err)
	}

	audioTrack, err := m.source.AcquireTrack(TrackAudio)
	if err != nil {
		return fmt.Errorf("acquire audio: %w", err)
	}

	m.mu.Lock()
	m.media = &localMedia{
		videoTrack:   videoTrack,
		audioTrack:   audioTrack,
		videoEnabled: videoOn,
		audioEnabled: audioOn,
	}
	queued := m.pending
	m.pending = nil
	m.mu.Unlock()

	for _, remoteID := range queued {
		m.initiateCall(remoteID)
	}

	return nil
}

// HandleRoomInfo reacts to the full room roster received on join: for
// every remote id with no session yet, a handshake is initiated, or
// queued until local media is ready.
func (m *Mesh) HandleRoomInfo(selfID string, participants map[string]registry.ParticipantState) {
	for remoteID := range participants {
		if remoteID == selfID {
			continue
		}

		m.mu.Lock()
		_, exists := m.sessions[remoteID]
		m.mu.Unlock()

		if !exists {
			m.initiateCall(remoteID)
		}
	}
}

// HandleUserJoined records a newcomer. The newcomer drives the
// handshake from its own room roster, so no offer is sent from here.
func (m *Mesh) HandleUserJoined(remoteID, displayName string) {
	slog.Info("participant joined, awaiting their offer",
		slog.String(constant.RemoteID, remoteID),
		slog.String(constant.UserName, displayName),
	)
}

// HandleUserLeft tears down the session for a departed participant:
// the retry timer is cancelled and queued candidates are dropped with
// the session.
func (m *Mesh) HandleUserLeft(remoteID string) {
	m.mu.Lock()
	sess := m.sessions[remoteID]
	delete(m.sessions, remoteID)
	m.pending = removeID(m.pending, remoteID)
	m.mu.Unlock()

	if sess != nil {
		sess.Close()
	}
}

// HandleOffer answers an incoming offer, replacing any session that
// already exists for that remote id. At most one session per remote id
// exists at any time.
func (m *Mesh) HandleOffer(from string, offer webrtc.SessionDescription) {
	sess, err := m.createSession(from)
	if err != nil {
		slog.Error("create answering session",
			slog.String(constant.RemoteID, from),
			slog.Any(constant.Error, err),
		)
		return
	}

	if err := sess.HandleRemoteOffer(offer); err != nil {
		slog.Error("answer offer",
			slog.String(constant.RemoteID, from),
			slog.Any(constant.Error, err),
		)
	}
}

// HandleAnswer completes a handshake we initiated. Answers for unknown
// remote ids are dropped.
func (m *Mesh) HandleAnswer(from string, answer webrtc.SessionDescription) {
	m.mu.Lock()
	sess := m.sessions[from]
	m.mu.Unlock()

	if sess == nil {
		return
	}

	if err := sess.HandleRemoteAnswer(answer); err != nil {
		slog.Error("apply answer",
			slog.String(constant.RemoteID, from),
			slog.Any(constant.Error, err),
		)
	}
}

// HandleCandidate routes a relayed candidate to its session. A
// candidate for an unknown remote id is dropped.
func (m *Mesh) HandleCandidate(from string, candidate webrtc.ICECandidateInit) {
	m.mu.Lock()
	sess := m.sessions[from]
	m.mu.Unlock()

	if sess == nil {
		return
	}

	if err := sess.HandleCandidate(candidate); err != nil {
		slog.Error("apply candidate",
			slog.String(constant.RemoteID, from),
			slog.Any(constant.Error, err),
		)
	}
}

// initiateCall starts (or restarts) the offer flow towards remoteID
// with the current local media. Without media yet, the id is queued at
// most once and flushed by StartMedia.
func (m *Mesh) initiateCall(remoteID string) {
	m.mu.Lock()
	if m.media == nil {
		if !containsID(m.pending, remoteID) {
			m.pending = append(m.pending, remoteID)
		}
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	sess, err := m.createSession(remoteID)
	if err != nil {
		slog.Error("create session",
			slog.String(constant.RemoteID, remoteID),
			slog.Any(constant.Error, err),
		)
		return
	}

	if err := sess.SendOffer(); err != nil {
		slog.Error("send offer",
			slog.String(constant.RemoteID, remoteID),
			slog.Any(constant.Error, err),
		)
		m.dropSession(remoteID, sess)
	}
}

// createSession builds a fresh session for remoteID with the current
// local tracks attached, force-closing any prior session for that id.
func (m *Mesh) createSession(remoteID string) (*Session, error) {
	pc, err := m.factory()
	if err != nil {
		return nil, fmt.Errorf("peer connection factory: %w", err)
	}

	sess := newSession(remoteID, pc, m.signaler, m.retryInterval, m.retryCall, m.sessionFailed)

	if handler := m.onRemoteTrack; handler != nil {
		pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
			handler(remoteID, track)
		})
	}

	m.mu.Lock()
	var tracks []struct {
		kind  TrackKind
		track webrtc.TrackLocal
	}
	if m.media != nil {
		for _, kind := range []TrackKind{TrackVideo, TrackAudio} {
			if t := m.media.track(kind); t != nil {
				tracks = append(tracks, struct {
					kind  TrackKind
					track webrtc.TrackLocal
				}{kind, t})
			}
		}
	}
	old := m.sessions[remoteID]
	m.sessions[remoteID] = sess
	m.mu.Unlock()

	if old != nil {
		old.Close()
	}

	for _, t := range tracks {
		if err := sess.addLocalTrack(t.kind, t.track); err != nil {
			slog.Error("attach local track",
				slog.String(constant.RemoteID, remoteID),
				slog.Any(constant.Error, err),
			)
		}
	}

	return sess, nil
}

// retryCall re-initiates a stuck handshake, but only while the remote
// id is still known; a retry racing a teardown must not resurrect the
// peer.
func (m *Mesh) retryCall(remoteID string) {
	m.mu.Lock()
	_, exists := m.sessions[remoteID]
	m.mu.Unlock()

	if !exists {
		return
	}

	m.initiateCall(remoteID)
}

func (m *Mesh) sessionFailed(remoteID string) {
	m.mu.Lock()
	sess := m.sessions[remoteID]
	if sess != nil {
		delete(m.sessions, remoteID)
	}
	m.mu.Unlock()

	if sess != nil {
		sess.Close()
	}
}

func (m *Mesh) dropSession(remoteID string, sess *Session) {
	m.mu.Lock()
	if m.sessions[remoteID] == sess {
		delete(m.sessions, remoteID)
	}
	m.mu.Unlock()

	sess.Close()
}

// ToggleVideo turns the local camera on or off across every live
// session. Off replaces the sender track with nil; on re-acquires the
// track when the previous one was released. Sessions that never had a
// video sender get one added, which may require renegotiation on that
// connection only.
func (m *Mesh) ToggleVideo(enabled bool) error {
	m.toggleMu.Lock()
	defer m.toggleMu.Unlock()

	return m.toggleTrack(TrackVideo, enabled)
}

// ToggleAudio mutes or unmutes the microphone across the mesh.
func (m *Mesh) ToggleAudio(enabled bool) error {
	m.toggleMu.Lock()
	defer m.toggleMu.Unlock()

	return m.toggleTrack(TrackAudio, enabled)
}

func (m *Mesh) toggleTrack(kind TrackKind, enabled bool) error {
	m.mu.Lock()
	media := m.media
	m.mu.Unlock()

	if media == nil {
		return fmt.Errorf("local media not started")
	}

	var track webrtc.TrackLocal

	if enabled {
		track = media.track(kind)
		if track == nil {
			acquired, err := m.source.AcquireTrack(kind)
			if err != nil {
				return fmt.Errorf("reacquire %s: %w", kind, err)
			}
			track = acquired
		}
	}

	m.mu.Lock()
	if kind == TrackVideo {
		media.videoTrack = track
		media.videoEnabled = enabled
	} else {
		media.audioTrack = track
		media.audioEnabled = enabled
	}
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, sess := range sessions {
		replaced, err := sess.replaceTrack(kind, track)
		if err != nil {
			slog.Error("replace track",
				slog.String(constant.RemoteID, sess.RemoteID()),
				slog.Any(constant.Error, err),
			)
			continue
		}

		if !replaced && track != nil {
			// No sender of this kind yet (camera was fully released
			// earlier): add one. Peers already connected keep working
			// without an explicit renegotiation cycle.
			if err := sess.addLocalTrack(kind, track); err != nil {
				slog.Error("add track",
					slog.String(constant.RemoteID, sess.RemoteID()),
					slog.Any(constant.Error, err),
				)
			}
		}
	}

	return nil
}

// Session returns the live session for remoteID, if any.
func (m *Mesh) Session(remoteID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[remoteID]
	return sess, ok
}

// SessionCount returns the number of live sessions.
func (m *Mesh) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.sessions)
}

// PendingCalls returns the remote ids queued until media is ready.
func (m *Mesh) PendingCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, len(m.pending))
	copy(out, m.pending)
	return out
}

// Close tears down every session.
func (m *Mesh) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.pending = nil
	m.mu.Unlock()

	for _, sess := range sessions {
		sess.Close()
	}
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
