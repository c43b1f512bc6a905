package rtc

import (
	"log/slog"

	"github.com/pion/webrtc/v4"

	"github.com/AmanBang/meshcall/internal/media"
)

// linkManager owns the peer-link table for one session. It is the only
// component that creates or destroys links; the negotiation and roster
// code operate through it. Its methods are called exclusively from the
// session event loop, so the table needs no locking.
type linkManager struct {
	transport Transport
	local     *media.LocalMedia
	logger    *slog.Logger

	// emit posts a transport event into the session loop. Callbacks fire
	// on transport goroutines; emit must not block after teardown.
	emit func(event)

	links map[string]*PeerLink
}

func newLinkManager(transport Transport, local *media.LocalMedia, emit func(event), logger *slog.Logger) *linkManager {
	return &linkManager{
		transport: transport,
		local:     local,
		logger:    logger,
		emit:      emit,
		links:     make(map[string]*PeerLink),
	}
}

// ensureLink returns the existing link for peerID or creates one:
// transport connection, local tracks attached, event handlers wired,
// playback sink registered. Idempotent.
func (m *linkManager) ensureLink(peerID string) (*PeerLink, error) {
	if link, ok := m.links[peerID]; ok {
		return link, nil
	}

	conn, err := m.transport.NewConnection(Callbacks{
		OnCandidate: func(cand webrtc.ICECandidateInit) {
			m.emit(candidateEvent{peer: peerID, cand: cand})
		},
		OnTrack: func(t media.RemoteTrack) {
			m.emit(trackEvent{peer: peerID, track: t})
		},
		OnStateChange: func(state ConnState) {
			m.emit(stateEvent{peer: peerID, state: state})
		},
	})
	if err != nil {
		return nil, newPeerError("create connection", peerID, err)
	}

	for _, t := range m.local.Tracks() {
		if err := conn.AddTrack(t); err != nil {
			conn.Close()
			return nil, newPeerError("attach local track", peerID, err)
		}
	}

	link := &PeerLink{
		peerID: peerID,
		conn:   conn,
		stage:  StageNew,
		state:  StateNew,
		stream: media.NewRemoteStream(peerID),
	}
	m.links[peerID] = link

	m.logger.Debug("peer link created", "peer", peerID)
	return link, nil
}

// get returns the link for peerID, or nil.
func (m *linkManager) get(peerID string) *PeerLink {
	return m.links[peerID]
}

// closeLink tears down one link: transport connection closed, table
// entry removed. A missing link is a no-op. Isolation matters here: one
// failed peer must not disturb the rest of the mesh, so errors are
// logged and swallowed.
func (m *linkManager) closeLink(peerID string) {
	link, ok := m.links[peerID]
	if !ok {
		return
	}

	if err := link.conn.Close(); err != nil {
		m.logger.Warn("closing peer connection", "peer", peerID, "error", err)
	}
	link.stage = StageClosed
	link.state = StateClosed
	delete(m.links, peerID)

	m.logger.Debug("peer link closed", "peer", peerID)
}

// closeAll tears down every link; used on session teardown.
func (m *linkManager) closeAll() {
	for peerID := range m.links {
		m.closeLink(peerID)
	}
}

// peerIDs returns the peers that currently have links.
func (m *linkManager) peerIDs() []string {
	ids := make([]string, 0, len(m.links))
	for id := range m.links {
		ids = append(ids, id)
	}
	return ids
}

func (m *linkManager) count() int {
	return len(m.links)
}
