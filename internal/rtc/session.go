package rtc

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/AmanBang/meshcall/internal/media"
	"github.com/AmanBang/meshcall/internal/signal"
)

// teardownTimeout bounds the final presence retraction and signal
// cleanup when a session ends.
const teardownTimeout = 2 * time.Second

// event is the union of everything the session loop reacts to. Signal
// and roster events come from the rendezvous layer, candidate, track and
// state events from transport callbacks, and cmd from the public API.
type event interface{ isEvent() }

type signalEvent struct{ env signal.Envelope }

type rosterEvent struct{ roster []signal.Participant }

type candidateEvent struct {
	peer string
	cand webrtc.ICECandidateInit
}

type trackEvent struct {
	peer  string
	track media.RemoteTrack
}

type stateEvent struct {
	peer  string
	state ConnState
}

type cmd struct {
	run  func()
	done chan struct{}
}

func (signalEvent) isEvent()    {}
func (rosterEvent) isEvent()    {}
func (candidateEvent) isEvent() {}
func (trackEvent) isEvent()     {}
func (stateEvent) isEvent()     {}
func (cmd) isEvent()            {}

// Options configures a Session.
type Options struct {
	SelfID string
	Name   string
	RoomID string

	Channel  signal.Channel
	Presence signal.Presence

	Transport Transport
	Capturer  media.Capturer
	Capture   media.CaptureRequest

	// MaxPeers caps outbound dials; zero means unlimited.
	MaxPeers int

	Logger *slog.Logger
}

// PeerStatus is the observable state of one remote participant.
type PeerStatus struct {
	ID           string
	Name         string
	Muted        bool
	VideoEnabled bool
	State        ConnState
	Stage        NegotiationStage
	Stream       *media.RemoteStream
}

// Snapshot is a point-in-time view of the whole session, safe to read
// outside the event loop.
type Snapshot struct {
	Active       bool
	RoomID       string
	Muted        bool
	VideoEnabled bool
	Connected    int
	Peers        []PeerStatus
}

// Session is one participant's end of a room call: it owns the local
// media, one link per remote peer, and the negotiation state for each.
// Every mutation runs on a single event loop goroutine; the exported
// methods post commands into it and wait.
type Session struct {
	selfID   string
	selfName string
	roomID   string
	maxPeers int

	channel  signal.Channel
	presence signal.Presence
	capturer media.Capturer
	capture  media.CaptureRequest
	logger   *slog.Logger

	manager *linkManager
	queue   *candidateQueue
	local   *media.LocalMedia
	roster  map[string]signal.Participant

	muted        bool
	videoEnabled bool
	transport    Transport

	ctx         context.Context
	cancel      context.CancelFunc
	events      chan event
	updates     chan Snapshot
	done        chan struct{}
	cancelSub   func()
	cancelWatch func()
	started     bool
}

func NewSession(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		selfID:       opts.SelfID,
		selfName:     opts.Name,
		roomID:       opts.RoomID,
		maxPeers:     opts.MaxPeers,
		channel:      opts.Channel,
		presence:     opts.Presence,
		transport:    opts.Transport,
		capturer:     opts.Capturer,
		capture:      opts.Capture,
		logger:       logger.With("room", opts.RoomID, "self", opts.SelfID),
		queue:        newCandidateQueue(),
		roster:       make(map[string]signal.Participant),
		videoEnabled: opts.Capture.Video,
		events:       make(chan event, 64),
		updates:      make(chan Snapshot, 1),
		done:         make(chan struct{}),
	}
}

// Start acquires local media, joins the room and runs the event loop.
// Media failure aborts the whole session; nothing is joined or
// subscribed on error.
func (s *Session) Start(ctx context.Context) error {
	if s.started {
		return ErrSessionActive
	}

	local, err := s.capturer.Capture(ctx, s.capture)
	if err != nil {
		return newError("acquire local media", fmt.Errorf("%w: %w", ErrMediaUnavailable, err))
	}
	s.local = local

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.manager = newLinkManager(s.transport, s.local, s.post, s.logger)

	cancelSub, err := s.channel.Subscribe(s.ctx, s.selfID, func(env signal.Envelope) {
		s.post(signalEvent{env: env})
	})
	if err != nil {
		s.failStart()
		return newError("subscribe signaling", err)
	}
	s.cancelSub = cancelSub

	cancelWatch, err := s.presence.Watch(s.ctx, func(roster []signal.Participant) {
		s.post(rosterEvent{roster: roster})
	})
	if err != nil {
		s.failStart()
		return newError("watch roster", err)
	}
	s.cancelWatch = cancelWatch

	if err := s.presence.Join(s.ctx, s.participant()); err != nil {
		s.failStart()
		return newError("join room", err)
	}

	s.started = true
	go s.run()

	s.logger.Info("session started")
	return nil
}

// failStart undoes the partial setup of a Start that cannot complete.
func (s *Session) failStart() {
	if s.cancelSub != nil {
		s.cancelSub()
		s.cancelSub = nil
	}
	if s.cancelWatch != nil {
		s.cancelWatch()
		s.cancelWatch = nil
	}
	s.cancel()
	s.local.Close()
	s.local = nil
}

func (s *Session) participant() signal.Participant {
	return signal.Participant{
		ID:           s.selfID,
		Name:         s.selfName,
		Muted:        s.muted,
		VideoEnabled: s.videoEnabled,
		Online:       true,
	}
}

// post delivers an event into the loop unless the session is done.
// Callbacks keep firing briefly after teardown; those must not block.
func (s *Session) post(ev event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *Session) run() {
	defer s.teardown()

	for {
		select {
		case <-s.ctx.Done():
			return
		case ev := <-s.events:
			switch ev := ev.(type) {
			case signalEvent:
				s.handleSignal(ev.env)
			case rosterEvent:
				s.reconcile(ev.roster)
			case candidateEvent:
				s.handleLocalCandidate(ev.peer, ev.cand)
			case trackEvent:
				s.handleTrack(ev.peer, ev.track)
			case stateEvent:
				s.handleStateChange(ev.peer, ev.state)
			case cmd:
				ev.run()
				close(ev.done)
				if s.ctx.Err() != nil {
					return
				}
			}
			s.publishUpdate()
		}
	}
}

func (s *Session) handleSignal(env signal.Envelope) {
	switch msg := env.Msg.(type) {
	case signal.Offer:
		s.handleOffer(env.From, msg)
	case signal.Answer:
		s.handleAnswer(env.From, msg)
	case signal.Candidate:
		s.handleCandidate(env.From, msg)
	default:
		s.logger.Warn("unknown signal dropped", "peer", env.From)
	}
}

func (s *Session) teardown() {
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()

	s.cancelSub()
	s.cancelWatch()

	for _, peerID := range s.manager.peerIDs() {
		if err := s.channel.Clear(ctx, s.selfID, peerID); err != nil {
			s.logger.Debug("clearing stored signals failed", "peer", peerID, "error", err)
		}
	}
	s.manager.closeAll()
	s.queue.clearAll()
	s.local.Close()

	if err := s.presence.Leave(ctx, s.selfID); err != nil {
		s.logger.Debug("retracting presence failed", "error", err)
	}

	close(s.done)
	s.logger.Info("session ended")
}

// do runs fn on the event loop and waits for it.
func (s *Session) do(fn func()) error {
	c := cmd{run: fn, done: make(chan struct{})}
	select {
	case s.events <- c:
	case <-s.done:
		return ErrSessionClosed
	}
	select {
	case <-c.done:
		return nil
	case <-s.done:
		select {
		case <-c.done:
			return nil
		default:
			return ErrSessionClosed
		}
	}
}

// Leave ends the session: links closed, media released, presence
// retracted. Returns once teardown has begun; Done unblocks when it has
// finished. Leaving twice is harmless.
func (s *Session) Leave() error {
	err := s.do(func() { s.cancel() })
	if err == ErrSessionClosed {
		return nil
	}
	return err
}

// Done is closed once the session has fully torn down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// ToggleMute flips the session-wide audio mute and republishes presence
// so peers see the change.
func (s *Session) ToggleMute() (bool, error) {
	var muted bool
	err := s.do(func() {
		s.muted = !s.muted
		s.local.SetAudioEnabled(!s.muted)
		muted = s.muted
		if err := s.presence.Update(s.ctx, s.participant()); err != nil {
			s.logger.Warn("publishing mute state failed", "error", err)
		}
	})
	return muted, err
}

// ToggleVideo flips the session-wide video flag.
func (s *Session) ToggleVideo() (bool, error) {
	var enabled bool
	err := s.do(func() {
		s.videoEnabled = !s.videoEnabled
		s.local.SetVideoEnabled(s.videoEnabled)
		enabled = s.videoEnabled
		if err := s.presence.Update(s.ctx, s.participant()); err != nil {
			s.logger.Warn("publishing video state failed", "error", err)
		}
	})
	return enabled, err
}

// Snapshot returns the current session state.
func (s *Session) Snapshot() (Snapshot, error) {
	var snap Snapshot
	err := s.do(func() { snap = s.snapshot() })
	return snap, err
}

// Updates returns a channel carrying the latest snapshot after each
// state change. Slow consumers see only the most recent one; stale
// snapshots are dropped, never queued.
func (s *Session) Updates() <-chan Snapshot {
	return s.updates
}

func (s *Session) publishUpdate() {
	snap := s.snapshot()
	select {
	case <-s.updates:
	default:
	}
	select {
	case s.updates <- snap:
	default:
	}
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		Active:       s.ctx.Err() == nil,
		RoomID:       s.roomID,
		Muted:        s.muted,
		VideoEnabled: s.videoEnabled,
	}

	for id, p := range s.roster {
		status := PeerStatus{
			ID:           id,
			Name:         p.Name,
			Muted:        p.Muted,
			VideoEnabled: p.VideoEnabled,
			State:        StateNew,
			Stage:        StageNew,
		}
		if link := s.manager.get(id); link != nil {
			status.State = link.state
			status.Stage = link.stage
			status.Stream = link.stream
			if link.state == StateConnected {
				snap.Connected++
			}
		}
		snap.Peers = append(snap.Peers, status)
	}
	sort.Slice(snap.Peers, func(i, j int) bool { return snap.Peers[i].ID < snap.Peers[j].ID })

	return snap
}
