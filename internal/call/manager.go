// Package call owns the live audio/video session lifecycle: joining a room,
// publishing local tracks, tracking remote participants, and tearing down.
package call

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tutorlink/tutorlink-client/internal/media"
)

// ErrAppIDMissing is returned when a join is attempted without a configured
// media application id. No connection is attempted in that case.
var ErrAppIDMissing = errors.New("media application id is not configured")

// Callbacks notify the embedding application about session events.
// All callbacks are optional.
type Callbacks struct {
	// OnLocalJoined fires exactly once per successful join, after publish
	// completes. Used externally for attendance recording.
	OnLocalJoined func(participantID string)
	// OnUserJoined fires for every remote publication that was subscribed,
	// so a participant publishing audio and video reports twice.
	OnUserJoined func(participantID string)
	// OnUserLeft fires when a remote participant leaves the room.
	OnUserLeft func(participantID string)
	// OnError fires for join-time failures.
	OnError func(err error)
	// OnDeviceError fires for classified device failures, including ones
	// recovered by degradation.
	OnDeviceError media.DeviceReporter
}

// Participant is a remote call participant and its latest published tracks.
type Participant struct {
	ID         string
	AudioTrack media.RemoteTrack
	VideoTrack media.RemoteTrack
}

// Snapshot is a copy of the observable session state.
type Snapshot struct {
	State           State
	IsAudioMuted    bool
	IsVideoMuted    bool
	IsAudioOnly     bool
	LastError       string
	LastDeviceError media.DeviceErrorKind
	Participants    []Participant
}

// Manager drives one call session at a time against the media provider.
type Manager struct {
	appID    string
	provider media.Provider
	cb       Callbacks
	log      *zerolog.Logger

	mu         sync.Mutex
	client     media.Client
	state      State
	localAudio media.Track
	localVideo media.Track
	remote     map[string]*Participant
	audioMuted bool
	videoMuted bool
	audioOnly  bool
	lastErr    string
	lastDevErr media.DeviceErrorKind
}

// NewManager builds an idle call manager.
func NewManager(appID string, provider media.Provider, cb Callbacks, logger *zerolog.Logger) *Manager {
	return &Manager{
		appID:    appID,
		provider: provider,
		cb:       cb,
		log:      logger,
		state:    StateIdle,
		remote:   make(map[string]*Participant),
	}
}

// Join connects to a room, acquires and publishes local tracks, and
// transitions to connected. Any failure during the sequence moves the
// session to the error state and is reported through OnError.
func (m *Manager) Join(ctx context.Context, room, token, participantID string) error {
	if m.appID == "" {
		m.mu.Lock()
		m.state = StateError
		m.lastErr = ErrAppIDMissing.Error()
		m.mu.Unlock()
		if m.cb.OnError != nil {
			m.cb.OnError(ErrAppIDMissing)
		}
		return ErrAppIDMissing
	}

	m.mu.Lock()
	m.state = StateConnecting
	m.lastErr = ""
	if m.client == nil {
		client, err := m.provider.CreateClient("rtc", "vp8")
		if err != nil {
			m.failLocked(fmt.Errorf("create media client: %w", err))
			m.mu.Unlock()
			return err
		}
		m.client = client
	}
	client := m.client
	m.mu.Unlock()

	client.SetHandlers(media.Handlers{
		TrackPublished:   m.handleTrackPublished,
		TrackUnpublished: m.handleTrackUnpublished,
		ParticipantLeft:  m.handleParticipantLeft,
	})

	if err := client.Join(ctx, m.appID, room, token, participantID); err != nil {
		err = fmt.Errorf("join room: %w", err)
		m.mu.Lock()
		m.failLocked(err)
		m.mu.Unlock()
		return err
	}

	acq := media.AcquireTracks(ctx, m.provider.TrackSource(), m.reportDeviceError)

	var tracks []media.Track
	if acq.Audio != nil {
		tracks = append(tracks, acq.Audio)
	}
	if acq.Video != nil {
		tracks = append(tracks, acq.Video)
	}
	if len(tracks) > 0 {
		if err := client.Publish(ctx, tracks...); err != nil {
			err = fmt.Errorf("publish tracks: %w", err)
			m.mu.Lock()
			m.failLocked(err)
			m.mu.Unlock()
			return err
		}
	}

	m.mu.Lock()
	m.localAudio = acq.Audio
	m.localVideo = acq.Video
	m.audioOnly = acq.AudioOnly
	if acq.AudioOnly {
		m.lastDevErr = media.DeviceNotReadable
	} else {
		m.lastDevErr = ""
	}
	m.state = StateConnected
	m.mu.Unlock()

	m.log.Info().Str("room", room).Bool("audio_only", acq.AudioOnly).Msg("joined call")

	// Attendance signal, strictly after publish.
	if m.cb.OnLocalJoined != nil {
		m.cb.OnLocalJoined(participantID)
	}
	return nil
}

// Leave tears down the session. It is idempotent and always brings the
// session back to idle: local tracks are released unconditionally and a
// failing network leave is logged, not surfaced.
func (m *Manager) Leave(ctx context.Context) {
	m.mu.Lock()
	client := m.client
	if client == nil && m.state == StateIdle {
		m.mu.Unlock()
		return
	}
	m.state = StateDisconnecting
	audio, video := m.localAudio, m.localVideo
	m.mu.Unlock()

	if audio != nil {
		audio.Stop()
		audio.Close()
	}
	if video != nil {
		video.Stop()
		video.Close()
	}

	if client != nil {
		if err := client.Leave(ctx); err != nil {
			m.log.Warn().Err(err).Msg("leave call failed, resetting local state anyway")
		}
	}

	m.mu.Lock()
	m.localAudio = nil
	m.localVideo = nil
	m.remote = make(map[string]*Participant)
	m.audioMuted = false
	m.videoMuted = false
	m.audioOnly = false
	m.lastErr = ""
	m.lastDevErr = ""
	m.state = StateIdle
	m.mu.Unlock()
}

// ToggleAudio flips the local audio mute flag. No-op without a local audio
// track; never changes the call state.
func (m *Manager) ToggleAudio() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.localAudio == nil {
		return nil
	}
	muted := !m.audioMuted
	if err := m.localAudio.SetEnabled(!muted); err != nil {
		return fmt.Errorf("toggle audio: %w", err)
	}
	m.audioMuted = muted
	return nil
}

// ToggleVideo flips the local video mute flag. No-op without a local video
// track; never changes the call state.
func (m *Manager) ToggleVideo() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.localVideo == nil {
		return nil
	}
	muted := !m.videoMuted
	if err := m.localVideo.SetEnabled(!muted); err != nil {
		return fmt.Errorf("toggle video: %w", err)
	}
	m.videoMuted = muted
	return nil
}

// State returns the current call state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LocalTracks returns the current local track handles.
func (m *Manager) LocalTracks() (audio, video media.Track) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.localAudio, m.localVideo
}

// Snapshot copies the observable session state for the UI.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		State:           m.state,
		IsAudioMuted:    m.audioMuted,
		IsVideoMuted:    m.videoMuted,
		IsAudioOnly:     m.audioOnly,
		LastError:       m.lastErr,
		LastDeviceError: m.lastDevErr,
	}
	for _, p := range m.remote {
		snap.Participants = append(snap.Participants, *p)
	}
	return snap
}

func (m *Manager) failLocked(err error) {
	m.state = StateError
	m.lastErr = err.Error()
	if m.cb.OnError != nil {
		go m.cb.OnError(err)
	}
	m.log.Error().Err(err).Msg("call join failed")
}

func (m *Manager) reportDeviceError(kind media.DeviceErrorKind, msg string) {
	m.mu.Lock()
	m.lastDevErr = kind
	m.mu.Unlock()
	m.log.Warn().Str("kind", string(kind)).Msg("device error during acquisition")
	if m.cb.OnDeviceError != nil {
		m.cb.OnDeviceError(kind, msg)
	}
}

// handleTrackPublished subscribes to a freshly published remote track.
// Video publications upsert the participant entry; audio is played
// immediately without touching the tracked set, so a flaky camera never
// drops the participant tile.
func (m *Manager) handleTrackPublished(pub media.RemotePublication) {
	m.mu.Lock()
	client := m.client
	m.mu.Unlock()
	if client == nil {
		return
	}

	track, err := client.Subscribe(context.Background(), pub)
	if err != nil {
		m.log.Warn().Err(err).Str("participant", pub.ParticipantID).Msg("subscribe to remote track failed")
		return
	}

	switch pub.Kind {
	case media.TrackVideo:
		m.mu.Lock()
		p, ok := m.remote[pub.ParticipantID]
		if !ok {
			p = &Participant{ID: pub.ParticipantID}
			m.remote[pub.ParticipantID] = p
		}
		p.VideoTrack = track
		m.mu.Unlock()
	case media.TrackAudio:
		track.Play()
	}

	if m.cb.OnUserJoined != nil {
		m.cb.OnUserJoined(pub.ParticipantID)
	}
}

// handleTrackUnpublished blanks the track on the existing entry. The
// participant stays in the set until an explicit left event.
func (m *Manager) handleTrackUnpublished(pub media.RemotePublication) {
	if pub.Kind != media.TrackVideo {
		return
	}
	m.mu.Lock()
	if p, ok := m.remote[pub.ParticipantID]; ok {
		p.VideoTrack = nil
	}
	m.mu.Unlock()
}

func (m *Manager) handleParticipantLeft(participantID string) {
	m.mu.Lock()
	delete(m.remote, participantID)
	m.mu.Unlock()
	if m.cb.OnUserLeft != nil {
		m.cb.OnUserLeft(participantID)
	}
}
