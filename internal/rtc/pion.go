package rtc

import (
	"context"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/AmanBang/meshcall/internal/config"
	"github.com/AmanBang/meshcall/internal/media"
)

// Compile-time interface checks.
var (
	_ Transport  = (*PionTransport)(nil)
	_ Connection = (*pionConnection)(nil)
)

// PionTransport creates pion/webrtc peer connections with the configured
// ICE servers.
type PionTransport struct {
	iceServers []webrtc.ICEServer
}

// NewPionTransport builds the ICE server list from config, STUN first
// then TURN, the order pion tries them in.
func NewPionTransport(cfg *config.Config) *PionTransport {
	iceServers := []webrtc.ICEServer{{URLs: cfg.GetSTUNServers()}}

	if turnServers := cfg.GetTURNServers(); turnServers != nil {
		username, password := cfg.GetTURNCredentials()
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       turnServers,
			Username:   username,
			Credential: password,
		})
	}

	return &PionTransport{iceServers: iceServers}
}

func (t *PionTransport) NewConnection(cb Callbacks) (Connection, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: t.iceServers})
	if err != nil {
		return nil, fmt.Errorf("creating PeerConnection: %w", err)
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		// nil marks the end of gathering; trickle ICE has nothing to
		// send for it.
		if c == nil {
			return
		}
		if cb.OnCandidate != nil {
			cb.OnCandidate(c.ToJSON())
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if cb.OnTrack != nil {
			cb.OnTrack(media.RemoteTrack{
				ID:     track.ID(),
				Kind:   remoteKind(track.Kind()),
				Source: track,
			})
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		if cb.OnStateChange != nil {
			cb.OnStateChange(connState(state))
		}
	})

	return &pionConnection{pc: pc}, nil
}

type pionConnection struct {
	pc *webrtc.PeerConnection
}

func (c *pionConnection) AddTrack(t media.Track) error {
	rtp, ok := t.(interface{ RTPTrack() webrtc.TrackLocal })
	if !ok {
		return fmt.Errorf("track %s has no RTP representation", t.ID())
	}
	if _, err := c.pc.AddTrack(rtp.RTPTrack()); err != nil {
		return fmt.Errorf("adding track %s: %w", t.ID(), err)
	}
	return nil
}

func (c *pionConnection) CreateOffer(context.Context) (webrtc.SessionDescription, error) {
	return c.pc.CreateOffer(nil)
}

func (c *pionConnection) CreateAnswer(context.Context) (webrtc.SessionDescription, error) {
	return c.pc.CreateAnswer(nil)
}

func (c *pionConnection) SetLocalDescription(desc webrtc.SessionDescription) error {
	return c.pc.SetLocalDescription(desc)
}

func (c *pionConnection) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(desc)
}

func (c *pionConnection) HasRemoteDescription() bool {
	return c.pc.RemoteDescription() != nil
}

func (c *pionConnection) AddICECandidate(cand webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(cand)
}

func (c *pionConnection) Close() error {
	return c.pc.Close()
}

func remoteKind(k webrtc.RTPCodecType) media.Kind {
	if k == webrtc.RTPCodecTypeVideo {
		return media.Video
	}
	return media.Audio
}

func connState(s webrtc.PeerConnectionState) ConnState {
	switch s {
	case webrtc.PeerConnectionStateNew:
		return StateNew
	case webrtc.PeerConnectionStateConnecting:
		return StateConnecting
	case webrtc.PeerConnectionStateConnected:
		return StateConnected
	case webrtc.PeerConnectionStateDisconnected:
		return StateDisconnected
	case webrtc.PeerConnectionStateFailed:
		return StateFailed
	default:
		return StateClosed
	}
}
