package media

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
)

const sampleInterval = 20 * time.Millisecond

// opusSilence is a minimal valid Opus frame (TOC byte + DTX payload).
// Sent while the track is enabled so the RTP stream stays alive.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// SyntheticCapturer produces pion static-sample tracks. The audio track
// carries Opus silence; callers that have real frames write them through
// WriteSample on the underlying track. It stands in for device capture,
// which is the embedding application's concern.
type SyntheticCapturer struct{}

// NewSyntheticCapturer creates a capturer that always succeeds.
func NewSyntheticCapturer() *SyntheticCapturer {
	return &SyntheticCapturer{}
}

func (c *SyntheticCapturer) Capture(_ context.Context, req CaptureRequest) (*LocalMedia, error) {
	var tracks []Track

	if req.Audio {
		t, err := newSyntheticTrack(Audio, webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus})
		if err != nil {
			return nil, fmt.Errorf("creating audio track: %w", err)
		}
		tracks = append(tracks, t)
	}

	if req.Video {
		t, err := newSyntheticTrack(Video, webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8})
		if err != nil {
			for _, created := range tracks {
				created.Close()
			}
			return nil, fmt.Errorf("creating video track: %w", err)
		}
		tracks = append(tracks, t)
	}

	if len(tracks) == 0 {
		return nil, ErrNoDevice
	}
	return NewLocalMedia(tracks), nil
}

type syntheticTrack struct {
	id      string
	kind    Kind
	track   *webrtc.TrackLocalStaticSample
	enabled atomic.Bool
	done    chan struct{}
	once    sync.Once
}

func newSyntheticTrack(kind Kind, codec webrtc.RTPCodecCapability) (*syntheticTrack, error) {
	id := uuid.New().String()
	local, err := webrtc.NewTrackLocalStaticSample(codec, string(kind)+"-"+id[:8], "meshcall")
	if err != nil {
		return nil, err
	}

	t := &syntheticTrack{
		id:    id,
		kind:  kind,
		track: local,
		done:  make(chan struct{}),
	}
	t.enabled.Store(true)

	if kind == Audio {
		go t.pump()
	}
	return t, nil
}

// pump keeps the audio stream alive with silence frames. Disabled tracks
// write nothing, which is how mute manifests on the wire.
func (t *syntheticTrack) pump() {
	ticker := time.NewTicker(sampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			if !t.enabled.Load() {
				continue
			}
			sample := pionmedia.Sample{Data: opusSilence, Duration: sampleInterval}
			if err := t.track.WriteSample(sample); err != nil {
				return
			}
		}
	}
}

func (t *syntheticTrack) ID() string         { return t.id }
func (t *syntheticTrack) Kind() Kind         { return t.kind }
func (t *syntheticTrack) Enabled() bool      { return t.enabled.Load() }
func (t *syntheticTrack) SetEnabled(on bool) { t.enabled.Store(on) }

func (t *syntheticTrack) Close() error {
	t.once.Do(func() { close(t.done) })
	return nil
}

// RTPTrack exposes the pion track for the transport layer.
func (t *syntheticTrack) RTPTrack() webrtc.TrackLocal { return t.track }
