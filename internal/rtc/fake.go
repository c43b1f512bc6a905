package rtc

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/AmanBang/meshcall/internal/media"
)

// Compile-time interface checks.
var (
	_ Transport  = (*FakeTransport)(nil)
	_ Connection = (*FakeConnection)(nil)
)

// FakeTransport is an in-memory Transport for tests. Connections record
// every description and candidate applied to them, and expose Emit
// methods for driving transport events by hand.
type FakeTransport struct {
	mu    sync.Mutex
	conns []*FakeConnection

	// NextErr, when set, fails the next NewConnection call.
	NextErr error
}

func NewFakeTransport() *FakeTransport {
	return &FakeTransport{}
}

func (t *FakeTransport) NewConnection(cb Callbacks) (Connection, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.NextErr != nil {
		err := t.NextErr
		t.NextErr = nil
		return nil, err
	}

	conn := &FakeConnection{cb: cb, index: len(t.conns)}
	t.conns = append(t.conns, conn)
	return conn, nil
}

// Connections returns every connection created so far.
func (t *FakeTransport) Connections() []*FakeConnection {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*FakeConnection, len(t.conns))
	copy(out, t.conns)
	return out
}

// FakeConnection is a scripted Connection.
type FakeConnection struct {
	cb    Callbacks
	index int

	mu          sync.Mutex
	localDesc   *webrtc.SessionDescription
	remoteDesc  *webrtc.SessionDescription
	applied     []webrtc.ICECandidateInit
	tracks      []media.Track
	offerCalls  int
	answerCalls int
	closed      bool
}

func (c *FakeConnection) AddTrack(t media.Track) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracks = append(c.tracks, t)
	return nil
}

func (c *FakeConnection) CreateOffer(context.Context) (webrtc.SessionDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offerCalls++
	return webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  fmt.Sprintf("v=0 fake-offer-%d-%d", c.index, c.offerCalls),
	}, nil
}

func (c *FakeConnection) CreateAnswer(context.Context) (webrtc.SessionDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.answerCalls++
	return webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  fmt.Sprintf("v=0 fake-answer-%d-%d", c.index, c.answerCalls),
	}, nil
}

func (c *FakeConnection) SetLocalDescription(desc webrtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.localDesc = &desc
	return nil
}

func (c *FakeConnection) SetRemoteDescription(desc webrtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remoteDesc = &desc
	return nil
}

func (c *FakeConnection) HasRemoteDescription() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remoteDesc != nil
}

func (c *FakeConnection) AddICECandidate(cand webrtc.ICECandidateInit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.remoteDesc == nil {
		return fmt.Errorf("no remote description")
	}
	c.applied = append(c.applied, cand)
	return nil
}

func (c *FakeConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// EmitCandidate fires the OnCandidate callback, as pion would after
// gathering a candidate.
func (c *FakeConnection) EmitCandidate(cand webrtc.ICECandidateInit) {
	if c.cb.OnCandidate != nil {
		c.cb.OnCandidate(cand)
	}
}

// EmitTrack fires the OnTrack callback.
func (c *FakeConnection) EmitTrack(t media.RemoteTrack) {
	if c.cb.OnTrack != nil {
		c.cb.OnTrack(t)
	}
}

// EmitState fires the OnStateChange callback.
func (c *FakeConnection) EmitState(state ConnState) {
	if c.cb.OnStateChange != nil {
		c.cb.OnStateChange(state)
	}
}

// Accessors for test assertions.

func (c *FakeConnection) OfferCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offerCalls
}

func (c *FakeConnection) AnswerCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.answerCalls
}

func (c *FakeConnection) AppliedCandidates() []webrtc.ICECandidateInit {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]webrtc.ICECandidateInit, len(c.applied))
	copy(out, c.applied)
	return out
}

func (c *FakeConnection) RemoteDescription() *webrtc.SessionDescription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remoteDesc
}

func (c *FakeConnection) LocalDescription() *webrtc.SessionDescription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.localDesc
}

func (c *FakeConnection) Tracks() []media.Track {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]media.Track, len(c.tracks))
	copy(out, c.tracks)
	return out
}

func (c *FakeConnection) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
