// Package media isolates the real-time media transport SDK behind small
// interfaces so the call layer never touches vendor types directly.
package media

import "context"

// TrackKind distinguishes audio and video tracks.
type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

// Track is a locally captured media track handle.
type Track interface {
	Kind() TrackKind
	// SetEnabled toggles capture without unpublishing the track.
	SetEnabled(enabled bool) error
	Stop()
	Close()
}

// RemoteTrack is a subscribed track owned by a remote participant.
type RemoteTrack interface {
	Kind() TrackKind
	Play()
}

// RemotePublication announces that a remote participant published or
// unpublished a track of the given kind.
type RemotePublication struct {
	ParticipantID string
	Kind          TrackKind
}

// Handlers receives remote participant events from the transport.
// Callbacks are invoked in arrival order for a single connection.
type Handlers struct {
	TrackPublished   func(pub RemotePublication)
	TrackUnpublished func(pub RemotePublication)
	ParticipantLeft  func(participantID string)
}

// Client is one connection to the media transport.
type Client interface {
	SetHandlers(h Handlers)
	Join(ctx context.Context, appID, room, token, participantID string) error
	Publish(ctx context.Context, tracks ...Track) error
	Subscribe(ctx context.Context, pub RemotePublication) (RemoteTrack, error)
	Leave(ctx context.Context) error
}

// TrackSource acquires local capture tracks from the SDK's track factory.
type TrackSource interface {
	// AcquireAudioVideo attempts combined microphone+camera capture.
	AcquireAudioVideo(ctx context.Context) (audio Track, video Track, err error)
	// AcquireAudio attempts microphone-only capture.
	AcquireAudio(ctx context.Context) (Track, error)
}

// Provider creates clients and exposes the track source.
type Provider interface {
	// CreateClient opens a connection with the given mode and codec.
	CreateClient(mode, codec string) (Client, error)
	TrackSource() TrackSource
}
