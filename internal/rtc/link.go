package rtc

import "github.com/AmanBang/meshcall/internal/media"

// NegotiationStage tracks the offer/answer handshake for one link from
// the local side's perspective.
type NegotiationStage int

const (
	StageNew NegotiationStage = iota
	StageOfferSent
	StageOfferReceived
	StageAnswerSent
	StageAnswerReceived
	StageConnected
	StageClosed
)

func (s NegotiationStage) String() string {
	switch s {
	case StageNew:
		return "new"
	case StageOfferSent:
		return "offer-sent"
	case StageOfferReceived:
		return "offer-received"
	case StageAnswerSent:
		return "answer-sent"
	case StageAnswerReceived:
		return "answer-received"
	case StageConnected:
		return "connected"
	case StageClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// PeerLink is the negotiation and transport state for exactly one remote
// participant. At most one PeerLink exists per peer; the link manager
// enforces this. All fields are owned by the session event loop.
type PeerLink struct {
	peerID string
	conn   Connection
	stage  NegotiationStage
	state  ConnState
	stream *media.RemoteStream
}

// Stream returns the playback sink for this peer's inbound tracks.
func (l *PeerLink) Stream() *media.RemoteStream {
	return l.stream
}
