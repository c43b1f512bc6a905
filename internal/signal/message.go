package signal

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// Message is one signaling payload exchanged between two peers. Exactly
// three variants exist; consumers dispatch with a type switch instead of
// probing for fields.
type Message interface {
	isMessage()
}

// Offer carries a session description proposed by the initiating side.
type Offer struct {
	SDP string
}

// Answer carries the responding session description.
type Answer struct {
	SDP string
}

// Candidate carries one trickled ICE candidate.
type Candidate struct {
	Candidate webrtc.ICECandidateInit
}

func (Offer) isMessage()     {}
func (Answer) isMessage()    {}
func (Candidate) isMessage() {}

// Envelope is a received Message together with its sender identity. The
// recipient is implicit: channels only deliver messages addressed to the
// subscribing identity.
type Envelope struct {
	From string
	Msg  Message
}

// wireMessage is the JSON shape on the wire: {"type":"offer"|"answer",
// "sdp":...} for descriptions, {"candidate":{...}} for candidates.
type wireMessage struct {
	Type      string                   `json:"type,omitempty"`
	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}

// EncodeMessage marshals a Message to its wire JSON.
func EncodeMessage(msg Message) ([]byte, error) {
	var wire wireMessage
	switch m := msg.(type) {
	case Offer:
		wire.Type = "offer"
		wire.SDP = m.SDP
	case Answer:
		wire.Type = "answer"
		wire.SDP = m.SDP
	case Candidate:
		cand := m.Candidate
		wire.Candidate = &cand
	default:
		return nil, fmt.Errorf("unknown signal message type %T", msg)
	}
	return json.Marshal(wire)
}

// DecodeMessage parses wire JSON back into a Message.
func DecodeMessage(data []byte) (Message, error) {
	var wire wireMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("parsing signal message: %w", err)
	}

	if wire.Candidate != nil {
		return Candidate{Candidate: *wire.Candidate}, nil
	}

	switch wire.Type {
	case "offer":
		return Offer{SDP: wire.SDP}, nil
	case "answer":
		return Answer{SDP: wire.SDP}, nil
	default:
		return nil, fmt.Errorf("unknown signal message type %q", wire.Type)
	}
}
