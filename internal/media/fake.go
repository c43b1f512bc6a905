package media

import (
	"context"
	"sync/atomic"
)

// FakeCapturer is an in-memory Capturer for tests. Err, when set, is
// returned from Capture so tests can exercise the acquisition-failure
// path.
type FakeCapturer struct {
	Err error
}

func (c *FakeCapturer) Capture(_ context.Context, req CaptureRequest) (*LocalMedia, error) {
	if c.Err != nil {
		return nil, c.Err
	}

	var tracks []Track
	if req.Audio {
		tracks = append(tracks, NewFakeTrack("fake-audio", Audio))
	}
	if req.Video {
		tracks = append(tracks, NewFakeTrack("fake-video", Video))
	}
	return NewLocalMedia(tracks), nil
}

// FakeTrack records its enabled flag and nothing else.
type FakeTrack struct {
	id      string
	kind    Kind
	enabled atomic.Bool
	closed  atomic.Bool
}

func NewFakeTrack(id string, kind Kind) *FakeTrack {
	t := &FakeTrack{id: id, kind: kind}
	t.enabled.Store(true)
	return t
}

func (t *FakeTrack) ID() string         { return t.id }
func (t *FakeTrack) Kind() Kind         { return t.kind }
func (t *FakeTrack) Enabled() bool      { return t.enabled.Load() }
func (t *FakeTrack) SetEnabled(on bool) { t.enabled.Store(on) }

func (t *FakeTrack) Close() error {
	t.closed.Store(true)
	return nil
}

// Closed reports whether Close was called; used by teardown tests.
func (t *FakeTrack) Closed() bool { return t.closed.Load() }
