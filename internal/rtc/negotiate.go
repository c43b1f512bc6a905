package rtc

import (
	"github.com/pion/webrtc/v4"

	"github.com/AmanBang/meshcall/internal/media"
	"github.com/AmanBang/meshcall/internal/signal"
)

// Offer/answer negotiation for one link. The side with the
// lexicographically smaller ID initiates; the other side only answers.
// Signaling is at-least-once, so every handler tolerates replays: a
// message that does not fit the link's current stage is dropped.

// dropLink discards a link together with the candidates queued for it,
// so a later redial starts from a clean slate.
func (s *Session) dropLink(peerID string) {
	s.queue.clear(peerID)
	s.manager.closeLink(peerID)
}

// initiate starts negotiation toward peerID. Safe to call again for a
// peer already past StageNew; it does nothing then.
func (s *Session) initiate(peerID string) {
	link, err := s.manager.ensureLink(peerID)
	if err != nil {
		s.logger.Error("initiating call failed", "peer", peerID, "error", err)
		return
	}
	if link.stage != StageNew {
		return
	}

	offer, err := link.conn.CreateOffer(s.ctx)
	if err != nil {
		s.logger.Error("creating offer failed", "peer", peerID, "error", err)
		s.dropLink(peerID)
		return
	}
	if err := link.conn.SetLocalDescription(offer); err != nil {
		s.logger.Error("applying local offer failed", "peer", peerID, "error", err)
		s.dropLink(peerID)
		return
	}
	link.stage = StageOfferSent

	if err := s.channel.Send(s.ctx, peerID, signal.Offer{SDP: offer.SDP}); err != nil {
		s.logger.Warn("sending offer failed", "peer", peerID, "error", err)
	}
	s.logger.Debug("offer sent", "peer", peerID)
}

// handleOffer answers an inbound offer. Inbound offers are honored even
// when the mesh is at capacity; refusing them would leave the initiator
// negotiating against silence.
func (s *Session) handleOffer(from string, offer signal.Offer) {
	link, err := s.manager.ensureLink(from)
	if err != nil {
		s.logger.Error("answering offer failed", "peer", from, "error", err)
		return
	}

	switch link.stage {
	case StageNew:
	case StageOfferSent:
		// Glare. The smaller ID is the initiator; its offer stands and
		// the peer is expected to answer it.
		if s.selfID < from {
			s.logger.Warn("offer from peer that should answer, dropping", "peer", from)
			return
		}
		s.logger.Warn("yielding initiator role", "peer", from)
	default:
		// Replay of an offer already processed.
		s.logger.Debug("duplicate offer dropped", "peer", from, "stage", link.stage)
		return
	}

	desc := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDP}
	if err := link.conn.SetRemoteDescription(desc); err != nil {
		s.logger.Error("applying remote offer failed", "peer", from, "error", err)
		s.dropLink(from)
		return
	}
	link.stage = StageOfferReceived
	s.queue.drainIfReady(from, link, s.logger)

	answer, err := link.conn.CreateAnswer(s.ctx)
	if err != nil {
		s.logger.Error("creating answer failed", "peer", from, "error", err)
		s.dropLink(from)
		return
	}
	if err := link.conn.SetLocalDescription(answer); err != nil {
		s.logger.Error("applying local answer failed", "peer", from, "error", err)
		s.dropLink(from)
		return
	}
	link.stage = StageAnswerSent

	if err := s.channel.Send(s.ctx, from, signal.Answer{SDP: answer.SDP}); err != nil {
		s.logger.Warn("sending answer failed", "peer", from, "error", err)
	}
	s.logger.Debug("answer sent", "peer", from)
}

func (s *Session) handleAnswer(from string, answer signal.Answer) {
	link := s.manager.get(from)
	if link == nil || link.stage != StageOfferSent {
		s.logger.Debug("answer without pending offer dropped", "peer", from)
		return
	}

	desc := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer.SDP}
	if err := link.conn.SetRemoteDescription(desc); err != nil {
		s.logger.Error("applying remote answer failed", "peer", from, "error", err)
		s.dropLink(from)
		return
	}
	link.stage = StageAnswerReceived
	s.queue.drainIfReady(from, link, s.logger)
	s.logger.Debug("answer applied", "peer", from)
}

// handleCandidate buffers an inbound ICE candidate and applies it as
// soon as the link can accept it. Candidates may precede the offer that
// explains them; the queue holds them until then.
func (s *Session) handleCandidate(from string, cand signal.Candidate) {
	s.queue.enqueue(from, cand.Candidate)
	s.queue.drainIfReady(from, s.manager.get(from), s.logger)
}

// handleLocalCandidate trickles a locally gathered candidate to its
// peer.
func (s *Session) handleLocalCandidate(peerID string, cand webrtc.ICECandidateInit) {
	if s.manager.get(peerID) == nil {
		return
	}
	if err := s.channel.Send(s.ctx, peerID, signal.Candidate{Candidate: cand}); err != nil {
		s.logger.Warn("sending ICE candidate failed", "peer", peerID, "error", err)
	}
}

func (s *Session) handleStateChange(peerID string, state ConnState) {
	link := s.manager.get(peerID)
	if link == nil {
		return
	}
	link.state = state

	switch state {
	case StateConnected:
		link.stage = StageConnected
		// Stored signals served their purpose; drop them so a future
		// renegotiation is not poisoned by replays.
		if err := s.channel.Clear(s.ctx, s.selfID, peerID); err != nil {
			s.logger.Debug("clearing stored signals failed", "peer", peerID, "error", err)
		}
		s.logger.Info("peer connected", "peer", peerID)
	case StateFailed:
		s.logger.Warn("peer connection failed", "peer", peerID)
		s.dropLink(peerID)
	case StateDisconnected:
		// Often transient; ICE may recover on its own. Failed is the
		// signal to tear down.
		s.logger.Warn("peer connection disconnected", "peer", peerID)
	}
}

func (s *Session) handleTrack(peerID string, track media.RemoteTrack) {
	link := s.manager.get(peerID)
	if link == nil {
		return
	}
	link.stream.AddTrack(track)
	s.logger.Debug("remote track added", "peer", peerID, "kind", track.Kind)
}
