package call

import (
	"context"
	"sync"

	"github.com/tutorlink/tutorlink-client/internal/media"
)

type fakeTrack struct {
	kind    media.TrackKind
	enabled bool
	stopped bool
	closed  bool
}

func newFakeTrack(kind media.TrackKind) *fakeTrack {
	return &fakeTrack{kind: kind, enabled: true}
}

func (t *fakeTrack) Kind() media.TrackKind { return t.kind }
func (t *fakeTrack) SetEnabled(enabled bool) error {
	t.enabled = enabled
	return nil
}
func (t *fakeTrack) Stop()  { t.stopped = true }
func (t *fakeTrack) Close() { t.closed = true }

type fakeRemoteTrack struct {
	kind   media.TrackKind
	played bool
}

func (t *fakeRemoteTrack) Kind() media.TrackKind { return t.kind }
func (t *fakeRemoteTrack) Play()                 { t.played = true }

type fakeClient struct {
	mu       sync.Mutex
	handlers media.Handlers
	calls    []string

	joinErr      error
	publishErr   error
	leaveErr     error
	subscribeErr error

	published []media.Track
	remote    map[media.RemotePublication]*fakeRemoteTrack
}

func newFakeClient() *fakeClient {
	return &fakeClient{remote: make(map[media.RemotePublication]*fakeRemoteTrack)}
}

func (c *fakeClient) record(call string) {
	c.mu.Lock()
	c.calls = append(c.calls, call)
	c.mu.Unlock()
}

func (c *fakeClient) callLog() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func (c *fakeClient) SetHandlers(h media.Handlers) {
	c.mu.Lock()
	c.handlers = h
	c.mu.Unlock()
}

func (c *fakeClient) Join(ctx context.Context, appID, room, token, participantID string) error {
	c.record("join")
	return c.joinErr
}

func (c *fakeClient) Publish(ctx context.Context, tracks ...media.Track) error {
	c.record("publish")
	if c.publishErr != nil {
		return c.publishErr
	}
	c.mu.Lock()
	c.published = append(c.published, tracks...)
	c.mu.Unlock()
	return nil
}

func (c *fakeClient) Subscribe(ctx context.Context, pub media.RemotePublication) (media.RemoteTrack, error) {
	c.record("subscribe")
	if c.subscribeErr != nil {
		return nil, c.subscribeErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	track, ok := c.remote[pub]
	if !ok {
		track = &fakeRemoteTrack{kind: pub.Kind}
		c.remote[pub] = track
	}
	return track, nil
}

func (c *fakeClient) Leave(ctx context.Context) error {
	c.record("leave")
	return c.leaveErr
}

type fakeSource struct {
	combinedErr error
	audioErr    error

	audio *fakeTrack
	video *fakeTrack
}

func (s *fakeSource) AcquireAudioVideo(context.Context) (media.Track, media.Track, error) {
	if s.combinedErr != nil {
		return nil, nil, s.combinedErr
	}
	s.audio = newFakeTrack(media.TrackAudio)
	s.video = newFakeTrack(media.TrackVideo)
	return s.audio, s.video, nil
}

func (s *fakeSource) AcquireAudio(context.Context) (media.Track, error) {
	if s.audioErr != nil {
		return nil, s.audioErr
	}
	s.audio = newFakeTrack(media.TrackAudio)
	return s.audio, nil
}

type fakeProvider struct {
	client *fakeClient
	source *fakeSource
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{client: newFakeClient(), source: &fakeSource{}}
}

func (p *fakeProvider) CreateClient(mode, codec string) (media.Client, error) {
	return p.client, nil
}

func (p *fakeProvider) TrackSource() media.TrackSource { return p.source }
