package rtc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AmanBang/meshcall/internal/media"
	"github.com/AmanBang/meshcall/internal/signal"
)

// waitFor polls cond until it holds or the deadline passes. The event
// loop is asynchronous; assertions on its effects need to wait.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type testPeer struct {
	session   *Session
	transport *FakeTransport
}

func startPeer(t *testing.T, bus *signal.MemoryBus, id, name string, maxPeers int) *testPeer {
	t.Helper()

	transport := NewFakeTransport()
	sess := NewSession(Options{
		SelfID:    id,
		Name:      name,
		RoomID:    "room-1",
		Channel:   bus.For(id),
		Presence:  bus,
		Transport: transport,
		Capturer:  &media.FakeCapturer{},
		Capture:   media.CaptureRequest{Audio: true, Video: true},
		MaxPeers:  maxPeers,
		Logger:    testLogger(),
	})
	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("starting session %s: %v", id, err)
	}
	t.Cleanup(func() {
		sess.Leave()
		<-sess.Done()
	})
	return &testPeer{session: sess, transport: transport}
}

func (p *testPeer) conn(t *testing.T, i int) *FakeConnection {
	t.Helper()
	conns := p.transport.Connections()
	if len(conns) <= i {
		t.Fatalf("connection %d not created (have %d)", i, len(conns))
	}
	return conns[i]
}

func TestTwoPeerNegotiation(t *testing.T) {
	bus := signal.NewMemoryBus()
	alice := startPeer(t, bus, "alice", "Alice", 0)
	bob := startPeer(t, bus, "bob", "Bob", 0)

	// alice sorts before bob, so alice dials and bob only answers.
	waitFor(t, "bob to answer alice's offer", func() bool {
		conns := bob.transport.Connections()
		return len(conns) == 1 && conns[0].AnswerCalls() == 1
	})
	waitFor(t, "alice to apply bob's answer", func() bool {
		conns := alice.transport.Connections()
		return len(conns) == 1 && conns[0].RemoteDescription() != nil
	})

	if got := alice.conn(t, 0).OfferCalls(); got != 1 {
		t.Errorf("alice sent %d offers, want 1", got)
	}
	if got := bob.conn(t, 0).OfferCalls(); got != 0 {
		t.Errorf("bob sent %d offers, want 0", got)
	}

	alice.conn(t, 0).EmitState(StateConnected)
	bob.conn(t, 0).EmitState(StateConnected)
	waitFor(t, "both snapshots to report a connected peer", func() bool {
		a, err := alice.session.Snapshot()
		if err != nil {
			return false
		}
		b, err := bob.session.Snapshot()
		if err != nil {
			return false
		}
		return a.Connected == 1 && b.Connected == 1
	})

	snap, err := alice.session.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Peers) != 1 || snap.Peers[0].ID != "bob" || snap.Peers[0].Name != "Bob" {
		t.Fatalf("alice snapshot peers = %+v", snap.Peers)
	}
	if snap.Peers[0].Stage != StageConnected {
		t.Errorf("alice's link to bob at stage %v, want connected", snap.Peers[0].Stage)
	}
}

func TestDuplicateOfferAnsweredOnce(t *testing.T) {
	bus := signal.NewMemoryBus()
	bob := startPeer(t, bus, "bob", "Bob", 0)

	offer := signal.Offer{SDP: "v=0 replayed-offer"}
	if err := bus.SendFrom("alice", "bob", offer); err != nil {
		t.Fatal(err)
	}
	if err := bus.SendFrom("alice", "bob", offer); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "bob to answer", func() bool {
		conns := bob.transport.Connections()
		return len(conns) == 1 && conns[0].AnswerCalls() >= 1
	})

	// Give the replay a chance to be mishandled before asserting.
	time.Sleep(50 * time.Millisecond)
	if got := len(bob.transport.Connections()); got != 1 {
		t.Fatalf("duplicate offer created %d connections, want 1", got)
	}
	if got := bob.conn(t, 0).AnswerCalls(); got != 1 {
		t.Fatalf("bob answered %d times, want 1", got)
	}
}

func TestCandidatesBeforeOfferApplyInOrder(t *testing.T) {
	bus := signal.NewMemoryBus()
	bob := startPeer(t, bus, "bob", "Bob", 0)

	for _, c := range []string{"c1", "c2", "c3"} {
		if err := bus.SendFrom("carol", "bob", signal.Candidate{Candidate: cand(c)}); err != nil {
			t.Fatal(err)
		}
	}
	if err := bus.SendFrom("carol", "bob", signal.Offer{SDP: "v=0 carol-offer"}); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "queued candidates to apply after the offer", func() bool {
		conns := bob.transport.Connections()
		return len(conns) == 1 && len(conns[0].AppliedCandidates()) == 3
	})

	applied := bob.conn(t, 0).AppliedCandidates()
	for i, want := range []string{"c1", "c2", "c3"} {
		if applied[i].Candidate != want {
			t.Errorf("applied[%d] = %q, want %q", i, applied[i].Candidate, want)
		}
	}
}

func TestMediaFailureAbortsStart(t *testing.T) {
	bus := signal.NewMemoryBus()
	sess := NewSession(Options{
		SelfID:    "alice",
		Name:      "Alice",
		RoomID:    "room-1",
		Channel:   bus.For("alice"),
		Presence:  bus,
		Transport: NewFakeTransport(),
		Capturer:  &media.FakeCapturer{Err: media.ErrPermissionDenied},
		Capture:   media.CaptureRequest{Audio: true},
		Logger:    testLogger(),
	})

	err := sess.Start(context.Background())
	if !errors.Is(err, ErrMediaUnavailable) {
		t.Fatalf("Start error = %v, want ErrMediaUnavailable", err)
	}
	if !errors.Is(err, media.ErrPermissionDenied) {
		t.Fatalf("Start error = %v, want it to wrap ErrPermissionDenied", err)
	}

	// No partial session: the room must not have seen alice at all.
	var roster []signal.Participant
	cancel, err := bus.Watch(context.Background(), func(r []signal.Participant) { roster = r })
	if err != nil {
		t.Fatal(err)
	}
	defer cancel()
	waitFor(t, "initial roster snapshot", func() bool { return roster != nil })
	if len(roster) != 0 {
		t.Fatalf("roster = %+v, want empty", roster)
	}
}

func TestLeaveTearsDownCompletely(t *testing.T) {
	bus := signal.NewMemoryBus()
	alice := startPeer(t, bus, "alice", "Alice", 0)
	bob := startPeer(t, bus, "bob", "Bob", 0)

	waitFor(t, "link established", func() bool {
		return len(alice.transport.Connections()) == 1 && len(bob.transport.Connections()) == 1
	})
	aliceConn := alice.conn(t, 0)
	bobConn := bob.conn(t, 0)

	if err := alice.session.Leave(); err != nil {
		t.Fatal(err)
	}
	<-alice.session.Done()

	if !aliceConn.Closed() {
		t.Error("alice's peer connection left open after Leave")
	}
	for _, tr := range aliceConn.Tracks() {
		if !tr.(*media.FakeTrack).Closed() {
			t.Errorf("local track %s left open after Leave", tr.ID())
		}
	}

	// Presence retraction reaches bob, who drops his side of the link.
	waitFor(t, "bob to close his link to alice", func() bool { return bobConn.Closed() })
	snap, err := bob.session.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Peers) != 0 {
		t.Fatalf("bob still sees peers %+v after alice left", snap.Peers)
	}

	// Second Leave is a no-op.
	if err := alice.session.Leave(); err != nil {
		t.Fatalf("second Leave: %v", err)
	}
}

func TestToggleMuteIsSessionWide(t *testing.T) {
	bus := signal.NewMemoryBus()
	alice := startPeer(t, bus, "alice", "Alice", 0)
	bob := startPeer(t, bus, "bob", "Bob", 0)

	waitFor(t, "link established", func() bool {
		return len(alice.transport.Connections()) == 1
	})

	muted, err := alice.session.ToggleMute()
	if err != nil {
		t.Fatal(err)
	}
	if !muted {
		t.Fatal("first toggle should mute")
	}

	for _, tr := range alice.conn(t, 0).Tracks() {
		if tr.Kind() == media.Audio && tr.Enabled() {
			t.Error("audio track still enabled while muted")
		}
		if tr.Kind() == media.Video && !tr.Enabled() {
			t.Error("video track disabled by an audio mute")
		}
	}

	waitFor(t, "bob to see alice muted", func() bool {
		snap, err := bob.session.Snapshot()
		if err != nil || len(snap.Peers) != 1 {
			return false
		}
		return snap.Peers[0].Muted
	})

	muted, err = alice.session.ToggleMute()
	if err != nil {
		t.Fatal(err)
	}
	if muted {
		t.Fatal("second toggle should unmute")
	}
}

func TestToggleVideo(t *testing.T) {
	bus := signal.NewMemoryBus()
	alice := startPeer(t, bus, "alice", "Alice", 0)

	enabled, err := alice.session.ToggleVideo()
	if err != nil {
		t.Fatal(err)
	}
	if enabled {
		t.Fatal("first toggle should disable video")
	}
	snap, err := alice.session.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if snap.VideoEnabled {
		t.Fatal("snapshot still reports video enabled")
	}
}

func TestRemoteTrackLandsInPeerStream(t *testing.T) {
	bus := signal.NewMemoryBus()
	alice := startPeer(t, bus, "alice", "Alice", 0)
	_ = startPeer(t, bus, "bob", "Bob", 0)

	waitFor(t, "link established", func() bool {
		return len(alice.transport.Connections()) == 1
	})

	alice.conn(t, 0).EmitTrack(media.RemoteTrack{ID: "bob-audio", Kind: media.Audio})

	waitFor(t, "track to appear in bob's stream", func() bool {
		snap, err := alice.session.Snapshot()
		if err != nil || len(snap.Peers) != 1 || snap.Peers[0].Stream == nil {
			return false
		}
		tracks := snap.Peers[0].Stream.Tracks()
		return len(tracks) == 1 && tracks[0].ID == "bob-audio"
	})
}

func TestFailedConnectionTornDown(t *testing.T) {
	bus := signal.NewMemoryBus()
	alice := startPeer(t, bus, "alice", "Alice", 0)
	_ = startPeer(t, bus, "bob", "Bob", 0)

	waitFor(t, "link established", func() bool {
		return len(alice.transport.Connections()) == 1
	})
	conn := alice.conn(t, 0)

	conn.EmitState(StateFailed)
	waitFor(t, "failed link to close", func() bool { return conn.Closed() })

	snap, err := alice.session.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Peers) != 1 || snap.Peers[0].Stage != StageNew {
		t.Fatalf("peer status after failure = %+v, want a fresh unlinked peer", snap.Peers)
	}
}

func TestMeshCapLimitsOutboundDials(t *testing.T) {
	bus := signal.NewMemoryBus()
	alice := startPeer(t, bus, "a-alice", "Alice", 1)

	for _, id := range []string{"b-peer", "c-peer"} {
		err := bus.Join(context.Background(), signal.Participant{ID: id, Name: id, Online: true})
		if err != nil {
			t.Fatal(err)
		}
	}

	waitFor(t, "first dial", func() bool {
		return len(alice.transport.Connections()) == 1
	})
	time.Sleep(50 * time.Millisecond)
	if got := len(alice.transport.Connections()); got != 1 {
		t.Fatalf("dialed %d peers with a cap of 1", got)
	}

	// Inbound offers are still answered at capacity.
	if err := bus.SendFrom("z-late", "a-alice", signal.Offer{SDP: "v=0 late"}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "offer answered despite full mesh", func() bool {
		conns := alice.transport.Connections()
		return len(conns) == 2 && conns[1].AnswerCalls() == 1
	})
}

func TestRosterTieBreak(t *testing.T) {
	tests := []struct {
		name     string
		peer     string
		wantDial bool
	}{
		{name: "larger peer is dialed", peer: "zed", wantDial: true},
		{name: "smaller peer is waited on", peer: "aaron", wantDial: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := signal.NewMemoryBus()
			self := startPeer(t, bus, "mike", "Mike", 0)

			err := bus.Join(context.Background(), signal.Participant{ID: tt.peer, Online: true})
			if err != nil {
				t.Fatal(err)
			}

			if tt.wantDial {
				waitFor(t, "dial toward larger peer", func() bool {
					conns := self.transport.Connections()
					return len(conns) == 1 && conns[0].OfferCalls() == 1
				})
			} else {
				time.Sleep(50 * time.Millisecond)
				if got := len(self.transport.Connections()); got != 0 {
					t.Fatalf("dialed the smaller peer, %d connections", got)
				}
			}
		})
	}
}

func TestRosterConvergence(t *testing.T) {
	bus := signal.NewMemoryBus()
	alice := startPeer(t, bus, "alice", "Alice", 0)
	bob := startPeer(t, bus, "bob", "Bob", 0)
	carol := startPeer(t, bus, "carol", "Carol", 0)

	// Full mesh: alice dials bob and carol, bob dials carol.
	waitFor(t, "full mesh", func() bool {
		return len(alice.transport.Connections()) == 2 &&
			len(bob.transport.Connections()) == 2 &&
			len(carol.transport.Connections()) == 2
	})

	if err := bob.session.Leave(); err != nil {
		t.Fatal(err)
	}
	<-bob.session.Done()

	waitFor(t, "alice and carol to converge on each other", func() bool {
		a, err := alice.session.Snapshot()
		if err != nil {
			return false
		}
		c, err := carol.session.Snapshot()
		if err != nil {
			return false
		}
		return len(a.Peers) == 1 && a.Peers[0].ID == "carol" &&
			len(c.Peers) == 1 && c.Peers[0].ID == "alice"
	})
}

func TestStartTwiceFails(t *testing.T) {
	bus := signal.NewMemoryBus()
	alice := startPeer(t, bus, "alice", "Alice", 0)

	if err := alice.session.Start(context.Background()); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("second Start = %v, want ErrSessionActive", err)
	}
}

func TestUpdatesCoalesce(t *testing.T) {
	bus := signal.NewMemoryBus()
	alice := startPeer(t, bus, "alice", "Alice", 0)
	_ = startPeer(t, bus, "bob", "Bob", 0)

	waitFor(t, "link established", func() bool {
		return len(alice.transport.Connections()) == 1
	})

	// However many events fired, the channel holds at most the latest
	// snapshot and it reflects current state.
	var snap Snapshot
	select {
	case snap = <-alice.session.Updates():
	case <-time.After(2 * time.Second):
		t.Fatal("no update published")
	}
	if snap.RoomID != "room-1" {
		t.Fatalf("update snapshot room = %q", snap.RoomID)
	}
}
