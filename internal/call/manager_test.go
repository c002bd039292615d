package call

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tutorlink/tutorlink-client/internal/media"
)

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func newTestManager(appID string, provider media.Provider, cb Callbacks) *Manager {
	return NewManager(appID, provider, cb, testLogger())
}

func TestJoinWithoutAppIDFailsFast(t *testing.T) {
	provider := newFakeProvider()
	var reported error
	m := newTestManager("", provider, Callbacks{
		OnError: func(err error) { reported = err },
	})

	err := m.Join(context.Background(), "room-1", "token", "p1")
	if !errors.Is(err, ErrAppIDMissing) {
		t.Fatalf("expected ErrAppIDMissing, got %v", err)
	}
	if m.State() != StateError {
		t.Fatalf("expected error state, got %s", m.State())
	}
	if !errors.Is(reported, ErrAppIDMissing) {
		t.Fatalf("expected OnError with ErrAppIDMissing, got %v", reported)
	}
	if calls := provider.client.callLog(); len(calls) != 0 {
		t.Fatalf("no connection must be attempted, got %v", calls)
	}
}

func TestJoinPublishesAfterRoomJoin(t *testing.T) {
	provider := newFakeProvider()
	var sequence []string
	m := newTestManager("app-1", provider, Callbacks{
		OnLocalJoined: func(participantID string) {
			sequence = append(sequence, "local_joined:"+participantID)
		},
	})

	if err := m.Join(context.Background(), "room-1", "token", "p1"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if m.State() != StateConnected {
		t.Fatalf("expected connected, got %s", m.State())
	}

	calls := provider.client.callLog()
	if len(calls) != 2 || calls[0] != "join" || calls[1] != "publish" {
		t.Fatalf("expected join then publish, got %v", calls)
	}
	if len(sequence) != 1 || sequence[0] != "local_joined:p1" {
		t.Fatalf("expected one attendance signal after publish, got %v", sequence)
	}
	if len(provider.client.published) != 2 {
		t.Fatalf("expected both tracks published, got %d", len(provider.client.published))
	}
}

func TestJoinAudioOnlyFallback(t *testing.T) {
	provider := newFakeProvider()
	provider.source.combinedErr = errors.New("NOT_READABLE: Device in use")

	var deviceErrs []media.DeviceErrorKind
	m := newTestManager("app-1", provider, Callbacks{
		OnDeviceError: func(kind media.DeviceErrorKind, msg string) {
			deviceErrs = append(deviceErrs, kind)
		},
	})

	if err := m.Join(context.Background(), "room-1", "token", "p1"); err != nil {
		t.Fatalf("join: %v", err)
	}

	snap := m.Snapshot()
	if !snap.IsAudioOnly {
		t.Fatal("expected audio-only session")
	}
	audio, video := m.LocalTracks()
	if audio == nil || video != nil {
		t.Fatalf("expected audio track only, got audio=%v video=%v", audio, video)
	}
	if len(deviceErrs) != 1 || deviceErrs[0] != media.DeviceNotReadable {
		t.Fatalf("unexpected device errors: %v", deviceErrs)
	}
	if len(provider.client.published) != 1 {
		t.Fatalf("expected one published track, got %d", len(provider.client.published))
	}
}

func TestJoinWithNoMediaStillConnects(t *testing.T) {
	provider := newFakeProvider()
	provider.source.combinedErr = errors.New("NOT_FOUND: Requested device not found")
	provider.source.audioErr = errors.New("NOT_FOUND: Requested device not found")

	localJoined := false
	m := newTestManager("app-1", provider, Callbacks{
		OnLocalJoined: func(string) { localJoined = true },
	})

	if err := m.Join(context.Background(), "room-1", "token", "p1"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if m.State() != StateConnected {
		t.Fatalf("expected connected receive-only session, got %s", m.State())
	}
	if !localJoined {
		t.Fatal("attendance signal must fire even without local media")
	}
	for _, c := range provider.client.callLog() {
		if c == "publish" {
			t.Fatal("nothing to publish without tracks")
		}
	}
}

func TestJoinRoomFailureEntersErrorState(t *testing.T) {
	provider := newFakeProvider()
	provider.client.joinErr = errors.New("boom")
	m := newTestManager("app-1", provider, Callbacks{})

	if err := m.Join(context.Background(), "room-1", "token", "p1"); err == nil {
		t.Fatal("expected join error")
	}
	if m.State() != StateError {
		t.Fatalf("expected error state, got %s", m.State())
	}
}

func TestLeaveAlwaysReachesIdle(t *testing.T) {
	provider := newFakeProvider()
	provider.client.leaveErr = errors.New("network down")
	m := newTestManager("app-1", provider, Callbacks{})

	if err := m.Join(context.Background(), "room-1", "token", "p1"); err != nil {
		t.Fatalf("join: %v", err)
	}
	audioTrack := provider.source.audio
	videoTrack := provider.source.video

	m.Leave(context.Background())

	if m.State() != StateIdle {
		t.Fatalf("expected idle after failed network leave, got %s", m.State())
	}
	audio, video := m.LocalTracks()
	if audio != nil || video != nil {
		t.Fatal("expected track handles reset to nil")
	}
	if !audioTrack.stopped || !audioTrack.closed || !videoTrack.stopped || !videoTrack.closed {
		t.Fatal("local tracks must be released unconditionally")
	}
}

func TestLeaveIsIdempotent(t *testing.T) {
	provider := newFakeProvider()
	m := newTestManager("app-1", provider, Callbacks{})

	m.Leave(context.Background())
	if m.State() != StateIdle {
		t.Fatalf("leave on idle session must stay idle, got %s", m.State())
	}

	if err := m.Join(context.Background(), "room-1", "token", "p1"); err != nil {
		t.Fatalf("join: %v", err)
	}
	m.Leave(context.Background())
	m.Leave(context.Background())
	if m.State() != StateIdle {
		t.Fatalf("expected idle, got %s", m.State())
	}
}

func TestToggleAudioRoundTrip(t *testing.T) {
	provider := newFakeProvider()
	m := newTestManager("app-1", provider, Callbacks{})

	if err := m.Join(context.Background(), "room-1", "token", "p1"); err != nil {
		t.Fatalf("join: %v", err)
	}

	if err := m.ToggleAudio(); err != nil {
		t.Fatalf("toggle audio: %v", err)
	}
	if snap := m.Snapshot(); !snap.IsAudioMuted {
		t.Fatal("expected muted after first toggle")
	}
	if provider.source.audio.enabled {
		t.Fatal("track must be disabled while muted")
	}

	if err := m.ToggleAudio(); err != nil {
		t.Fatalf("toggle audio: %v", err)
	}
	snap := m.Snapshot()
	if snap.IsAudioMuted {
		t.Fatal("expected unmuted after second toggle")
	}
	if snap.State != StateConnected {
		t.Fatalf("toggling must not change call state, got %s", snap.State)
	}
}

func TestTogglesAreNoopsWithoutTracks(t *testing.T) {
	provider := newFakeProvider()
	m := newTestManager("app-1", provider, Callbacks{})

	if err := m.ToggleAudio(); err != nil {
		t.Fatalf("toggle audio: %v", err)
	}
	if err := m.ToggleVideo(); err != nil {
		t.Fatalf("toggle video: %v", err)
	}
	snap := m.Snapshot()
	if snap.IsAudioMuted || snap.IsVideoMuted {
		t.Fatal("mute flags must stay false without local tracks")
	}
}

func findParticipant(snap Snapshot, id string) *Participant {
	for i := range snap.Participants {
		if snap.Participants[i].ID == id {
			return &snap.Participants[i]
		}
	}
	return nil
}

func TestOnUserJoinedFiresPerSubscribedPublication(t *testing.T) {
	provider := newFakeProvider()
	var joined []string
	m := newTestManager("app-1", provider, Callbacks{
		OnUserJoined: func(id string) { joined = append(joined, id) },
	})

	if err := m.Join(context.Background(), "room-1", "token", "p1"); err != nil {
		t.Fatalf("join: %v", err)
	}
	handlers := provider.client.handlers

	handlers.TrackPublished(media.RemotePublication{ParticipantID: "r1", Kind: media.TrackVideo})
	handlers.TrackPublished(media.RemotePublication{ParticipantID: "r1", Kind: media.TrackAudio})
	handlers.TrackPublished(media.RemotePublication{ParticipantID: "r2", Kind: media.TrackAudio})

	want := []string{"r1", "r1", "r2"}
	if len(joined) != len(want) {
		t.Fatalf("expected %v, got %v", want, joined)
	}
	for i := range want {
		if joined[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, joined)
		}
	}

	// A failed subscribe reports nothing.
	provider.client.subscribeErr = errors.New("sfu unavailable")
	handlers.TrackPublished(media.RemotePublication{ParticipantID: "r3", Kind: media.TrackVideo})
	if len(joined) != 3 {
		t.Fatalf("failed subscribe must not report a join, got %v", joined)
	}
}

func TestRemoteParticipantBookkeeping(t *testing.T) {
	provider := newFakeProvider()
	var left []string
	m := newTestManager("app-1", provider, Callbacks{
		OnUserLeft: func(id string) { left = append(left, id) },
	})

	if err := m.Join(context.Background(), "room-1", "token", "p1"); err != nil {
		t.Fatalf("join: %v", err)
	}
	handlers := provider.client.handlers

	// Video publish adds the participant.
	handlers.TrackPublished(media.RemotePublication{ParticipantID: "r1", Kind: media.TrackVideo})
	p := findParticipant(m.Snapshot(), "r1")
	if p == nil || p.VideoTrack == nil {
		t.Fatalf("expected participant with video track, got %+v", p)
	}

	// Audio publish plays the track without altering the set.
	handlers.TrackPublished(media.RemotePublication{ParticipantID: "r2", Kind: media.TrackAudio})
	if findParticipant(m.Snapshot(), "r2") != nil {
		t.Fatal("audio-only publisher must not enter the participant set")
	}
	audioTrack := provider.client.remote[media.RemotePublication{ParticipantID: "r2", Kind: media.TrackAudio}]
	if !audioTrack.played {
		t.Fatal("remote audio must be played immediately")
	}

	// Unpublish blanks the video but keeps the participant.
	handlers.TrackUnpublished(media.RemotePublication{ParticipantID: "r1", Kind: media.TrackVideo})
	p = findParticipant(m.Snapshot(), "r1")
	if p == nil {
		t.Fatal("participant must survive a video unpublish")
	}
	if p.VideoTrack != nil {
		t.Fatal("video track must be blanked after unpublish")
	}

	// A later re-publish restores the tile.
	handlers.TrackPublished(media.RemotePublication{ParticipantID: "r1", Kind: media.TrackVideo})
	p = findParticipant(m.Snapshot(), "r1")
	if p == nil || p.VideoTrack == nil {
		t.Fatal("expected video track restored")
	}

	// Only an explicit left event removes the participant.
	handlers.ParticipantLeft("r1")
	if findParticipant(m.Snapshot(), "r1") != nil {
		t.Fatal("participant must be removed after left event")
	}
	if len(left) != 1 || left[0] != "r1" {
		t.Fatalf("expected OnUserLeft for r1, got %v", left)
	}
}
