package rtc

import (
	"errors"
	"io"
	"log/slog"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/solovey/codemesh/internal/application/constant"
)

// PacketReader yields encoded RTP packets from a local capture
// pipeline (camera/microphone encoder).
type PacketReader interface {
	ReadRTP() (*rtp.Packet, error)
}

// MediaSource acquires local outbound tracks. Acquisition may fail
// (device busy, permission denied); the failure is terminal for that
// attempt and surfaced to the caller.
type MediaSource interface {
	AcquireTrack(kind TrackKind) (webrtc.TrackLocal, error)
}

// localMedia is the orchestrator-owned state of the client's own
// camera and microphone. Sessions hold senders referencing these
// tracks, never their own copy.
type localMedia struct {
	videoTrack webrtc.TrackLocal
	audioTrack webrtc.TrackLocal

	videoEnabled bool
	audioEnabled bool
}

func (m *localMedia) track(kind TrackKind) webrtc.TrackLocal {
	if kind == TrackVideo {
		return m.videoTrack
	}
	return m.audioTrack
}

// RTPMediaSource feeds capture packets into static RTP tracks. Each
// acquired track is pumped by its own goroutine until the reader is
// exhausted.
type RTPMediaSource struct {
	video PacketReader
	audio PacketReader
}

func NewRTPMediaSource(video, audio PacketReader) *RTPMediaSource {
	return &RTPMediaSource{video: video, audio: audio}
}

func (s *RTPMediaSource) AcquireTrack(kind TrackKind) (webrtc.TrackLocal, error) {
	var (
		reader PacketReader
		codec  webrtc.RTPCodecCapability
	)

	switch kind {
	case TrackVideo:
		reader = s.video
		codec = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}
	case TrackAudio:
		reader = s.audio
		codec = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}
	}

	if reader == nil {
		return nil, errors.New("no capture source for " + string(kind))
	}

	track, err := webrtc.NewTrackLocalStaticRTP(codec, string(kind), "codemesh")
	if err != nil {
		return nil, err
	}

	go pump(reader, track)

	return track, nil
}

func pump(reader PacketReader, track *webrtc.TrackLocalStaticRTP) {
	for {
		pkt, err := reader.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Error("capture read", slog.Any(constant.Error, err))
			}
			return
		}

		if err := track.WriteRTP(pkt); err != nil {
			if !errors.Is(err, io.ErrClosedPipe) {
				slog.Error("track write", slog.Any(constant.Error, err))
			}
			return
		}
	}
}
