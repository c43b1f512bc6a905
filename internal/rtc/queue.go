package rtc

import (
	"log/slog"

	"github.com/pion/webrtc/v4"
)

// candidateQueue buffers ICE candidates that arrived before the remote
// description of their link was applied. Candidates for peers with no
// link yet are queued speculatively; the queue for a peer is drained
// exactly once its link has a remote description, in arrival order.
type candidateQueue struct {
	pending map[string][]webrtc.ICECandidateInit
}

func newCandidateQueue() *candidateQueue {
	return &candidateQueue{pending: make(map[string][]webrtc.ICECandidateInit)}
}

func (q *candidateQueue) enqueue(peerID string, cand webrtc.ICECandidateInit) {
	q.pending[peerID] = append(q.pending[peerID], cand)
}

// drainIfReady applies every queued candidate for peerID if the link has
// a remote description, then clears the queue. Not ready → untouched.
// A candidate the connection rejects is logged and skipped; one bad
// candidate must not strand the rest.
func (q *candidateQueue) drainIfReady(peerID string, link *PeerLink, logger *slog.Logger) {
	if link == nil || !link.conn.HasRemoteDescription() {
		return
	}
	queued, ok := q.pending[peerID]
	if !ok {
		return
	}

	for _, cand := range queued {
		if err := link.conn.AddICECandidate(cand); err != nil {
			logger.Warn("applying queued ICE candidate failed", "peer", peerID, "error", err)
		}
	}
	delete(q.pending, peerID)
}

func (q *candidateQueue) clear(peerID string) {
	delete(q.pending, peerID)
}

func (q *candidateQueue) clearAll() {
	q.pending = make(map[string][]webrtc.ICECandidateInit)
}

func (q *candidateQueue) size(peerID string) int {
	return len(q.pending[peerID])
}
