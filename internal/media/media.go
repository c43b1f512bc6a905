// Package media abstracts local capture and remote playback so the rtc
// core never touches devices directly. Capture failures are session
// preconditions, surfaced as typed errors the UI can distinguish.
package media

import (
	"context"
	"errors"
	"sync"
)

// Capture failure taxonomy. Fatal to starting a session; no partial
// session is left behind.
var (
	ErrPermissionDenied = errors.New("media permission denied")
	ErrNoDevice         = errors.New("no capture device available")
)

// Kind discriminates audio from video tracks.
type Kind string

const (
	Audio Kind = "audio"
	Video Kind = "video"
)

// Track is one local outbound media track. The enabled flag is shared
// across every peer link the track is attached to: muting is
// session-wide by design, not per-peer.
type Track interface {
	ID() string
	Kind() Kind
	Enabled() bool
	SetEnabled(bool)
	Close() error
}

// CaptureRequest selects which kinds of tracks to acquire.
type CaptureRequest struct {
	Audio bool
	Video bool
}

// Capturer acquires local media. Implementations: SyntheticCapturer for
// the CLI, FakeCapturer for tests.
type Capturer interface {
	Capture(ctx context.Context, req CaptureRequest) (*LocalMedia, error)
}

// LocalMedia bundles the acquired local tracks for a session.
type LocalMedia struct {
	tracks []Track
}

// NewLocalMedia wraps already-created tracks.
func NewLocalMedia(tracks []Track) *LocalMedia {
	return &LocalMedia{tracks: tracks}
}

// Tracks returns every local track.
func (m *LocalMedia) Tracks() []Track {
	return m.tracks
}

// SetAudioEnabled flips the enabled flag on all audio tracks.
func (m *LocalMedia) SetAudioEnabled(enabled bool) {
	for _, t := range m.tracks {
		if t.Kind() == Audio {
			t.SetEnabled(enabled)
		}
	}
}

// SetVideoEnabled flips the enabled flag on all video tracks.
func (m *LocalMedia) SetVideoEnabled(enabled bool) {
	for _, t := range m.tracks {
		if t.Kind() == Video {
			t.SetEnabled(enabled)
		}
	}
}

// Close stops every track.
func (m *LocalMedia) Close() {
	for _, t := range m.tracks {
		t.Close()
	}
}

// RemoteTrack describes one inbound track from a peer. Source holds the
// transport-specific handle (a *webrtc.TrackRemote for pion) for callers
// that need to read samples.
type RemoteTrack struct {
	ID     string
	Kind   Kind
	Source any
}

// RemoteStream is the per-peer playback sink: it collects the inbound
// tracks from exactly one peer, created on the first track received.
type RemoteStream struct {
	PeerID string

	mu     sync.Mutex
	tracks []RemoteTrack
}

// NewRemoteStream creates an empty sink for a peer.
func NewRemoteStream(peerID string) *RemoteStream {
	return &RemoteStream{PeerID: peerID}
}

// AddTrack appends an inbound track.
func (s *RemoteStream) AddTrack(t RemoteTrack) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks = append(s.tracks, t)
}

// Tracks returns a snapshot of the inbound tracks.
func (s *RemoteStream) Tracks() []RemoteTrack {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RemoteTrack, len(s.tracks))
	copy(out, s.tracks)
	return out
}
