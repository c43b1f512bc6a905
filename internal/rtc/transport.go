// Package rtc implements the call core: per-peer link management,
// offer/answer/ICE negotiation over a signaling channel, and roster-driven
// reconciliation of the peer mesh. All state is owned by a single
// event-loop goroutine per Session; transport callbacks and signaling
// pushes are converted to events and serialized through it.
package rtc

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/AmanBang/meshcall/internal/media"
)

// ConnState mirrors the underlying peer connection lifecycle.
type ConnState int

const (
	StateNew ConnState = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateFailed
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Callbacks receive asynchronous transport events for one connection.
// Implementations must treat them as fire-and-forget notifications; the
// session wraps them to post into its event loop.
type Callbacks struct {
	OnCandidate   func(webrtc.ICECandidateInit)
	OnTrack       func(media.RemoteTrack)
	OnStateChange func(ConnState)
}

// Connection is the transport capability for one peer link. The core
// never reaches below this interface, which is what lets tests run
// against FakeTransport without a network stack.
type Connection interface {
	AddTrack(t media.Track) error
	CreateOffer(ctx context.Context) (webrtc.SessionDescription, error)
	CreateAnswer(ctx context.Context) (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	HasRemoteDescription() bool
	AddICECandidate(cand webrtc.ICECandidateInit) error
	Close() error
}

// Transport creates peer connections.
type Transport interface {
	NewConnection(cb Callbacks) (Connection, error)
}
