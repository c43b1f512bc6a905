package rtc

import "github.com/AmanBang/meshcall/internal/signal"

// reconcile converges the link table toward a roster snapshot. Closures
// run before initiations so a departed peer's slot frees up in the same
// pass. Snapshots are idempotent; applying the same roster twice changes
// nothing.
func (s *Session) reconcile(roster []signal.Participant) {
	present := make(map[string]signal.Participant, len(roster))
	for _, p := range roster {
		if p.ID == s.selfID {
			continue
		}
		present[p.ID] = p
	}
	s.roster = present

	// Departed or offline peers lose their link and any queued
	// candidates.
	for _, peerID := range s.manager.peerIDs() {
		p, ok := present[peerID]
		if ok && p.Online {
			continue
		}
		s.logger.Info("peer left, closing link", "peer", peerID)
		s.dropLink(peerID)
	}

	// Initiate toward online peers we have no link with. Only the side
	// with the smaller ID dials, so both sides never offer at once. The
	// peer cap bounds outbound dials; inbound offers are still answered
	// in handleOffer.
	for peerID, p := range present {
		if !p.Online || s.manager.get(peerID) != nil {
			continue
		}
		if s.selfID >= peerID {
			continue
		}
		if s.maxPeers > 0 && s.manager.count() >= s.maxPeers {
			s.logger.Warn("mesh full, not dialing", "peer", peerID, "limit", s.maxPeers)
			continue
		}
		s.initiate(peerID)
	}
}
