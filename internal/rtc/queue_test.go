package rtc

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/pion/webrtc/v4"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func cand(s string) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{Candidate: s}
}

func TestQueueHoldsUntilRemoteDescription(t *testing.T) {
	q := newCandidateQueue()
	conn := &FakeConnection{}
	link := &PeerLink{peerID: "carol", conn: conn}

	q.enqueue("carol", cand("c1"))
	q.enqueue("carol", cand("c2"))
	q.enqueue("carol", cand("c3"))

	q.drainIfReady("carol", link, testLogger())
	if got := len(conn.AppliedCandidates()); got != 0 {
		t.Fatalf("applied %d candidates before remote description", got)
	}
	if q.size("carol") != 3 {
		t.Fatalf("queue size = %d, want 3", q.size("carol"))
	}

	desc := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"}
	if err := conn.SetRemoteDescription(desc); err != nil {
		t.Fatal(err)
	}

	q.drainIfReady("carol", link, testLogger())
	applied := conn.AppliedCandidates()
	if len(applied) != 3 {
		t.Fatalf("applied %d candidates, want 3", len(applied))
	}
	for i, want := range []string{"c1", "c2", "c3"} {
		if applied[i].Candidate != want {
			t.Errorf("applied[%d] = %q, want %q", i, applied[i].Candidate, want)
		}
	}
	if q.size("carol") != 0 {
		t.Fatalf("queue not emptied after drain, size = %d", q.size("carol"))
	}
}

func TestQueueDrainsOnce(t *testing.T) {
	q := newCandidateQueue()
	conn := &FakeConnection{}
	link := &PeerLink{peerID: "carol", conn: conn}
	conn.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"})

	q.enqueue("carol", cand("c1"))
	q.drainIfReady("carol", link, testLogger())
	q.drainIfReady("carol", link, testLogger())

	if got := len(conn.AppliedCandidates()); got != 1 {
		t.Fatalf("applied %d candidates, want 1", got)
	}
}

func TestQueueSpeculativeForUnknownPeer(t *testing.T) {
	q := newCandidateQueue()

	q.enqueue("ghost", cand("c1"))
	q.drainIfReady("ghost", nil, testLogger())

	if q.size("ghost") != 1 {
		t.Fatalf("queue for unknown peer lost its candidate")
	}
}

func TestQueueClearDiscards(t *testing.T) {
	q := newCandidateQueue()
	q.enqueue("carol", cand("c1"))
	q.enqueue("dave", cand("c2"))

	q.clear("carol")
	if q.size("carol") != 0 || q.size("dave") != 1 {
		t.Fatalf("clear removed the wrong entries")
	}

	q.clearAll()
	if q.size("dave") != 0 {
		t.Fatalf("clearAll left entries behind")
	}
}

// Keeps a bad candidate from stranding the ones behind it.
func TestQueueSkipsRejectedCandidate(t *testing.T) {
	q := newCandidateQueue()
	conn := &rejectingConnection{}
	link := &PeerLink{peerID: "carol", conn: conn}

	q.enqueue("carol", cand("bad"))
	q.enqueue("carol", cand("good"))
	q.drainIfReady("carol", link, testLogger())

	if len(conn.applied) != 1 || conn.applied[0].Candidate != "good" {
		t.Fatalf("applied = %v, want only the good candidate", conn.applied)
	}
	if q.size("carol") != 0 {
		t.Fatalf("queue kept candidates after drain")
	}
}

// rejectingConnection refuses candidates named "bad".
type rejectingConnection struct {
	FakeConnection
	applied []webrtc.ICECandidateInit
}

func (c *rejectingConnection) HasRemoteDescription() bool { return true }

func (c *rejectingConnection) AddICECandidate(cand webrtc.ICECandidateInit) error {
	if cand.Candidate == "bad" {
		return errAlwaysReject
	}
	c.applied = append(c.applied, cand)
	return nil
}

var errAlwaysReject = errors.New("candidate rejected")
