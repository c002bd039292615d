// Package app wires the client runtime together: REST client, cache store,
// realtime channel, and cache coordinator, all keyed to one credential.
package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tutorlink/tutorlink-client/internal/api"
	"github.com/tutorlink/tutorlink-client/internal/auth"
	"github.com/tutorlink/tutorlink-client/internal/cache"
	"github.com/tutorlink/tutorlink-client/internal/cachesync"
	"github.com/tutorlink/tutorlink-client/internal/call"
	"github.com/tutorlink/tutorlink-client/internal/config"
	"github.com/tutorlink/tutorlink-client/internal/media"
	"github.com/tutorlink/tutorlink-client/internal/realtime"
)

// App holds the per-credential runtime. The realtime channel exists only
// while a credential is set; installing a different credential destroys the
// old channel and builds a fresh one rather than rebinding in place.
type App struct {
	cfg    config.Config
	log    *zerolog.Logger
	dialer realtime.Dialer

	store *cache.Store
	api   *api.Client

	mu       sync.Mutex
	token    string
	identity *auth.Identity
	channel  *realtime.Channel
	coord    *cachesync.Coordinator
	cancel   context.CancelFunc
}

// New builds an app with no credential. The cache store and REST client are
// credential-agnostic: the client reads the current token per request.
func New(cfg config.Config, logger *zerolog.Logger) *App {
	a := &App{
		cfg:    cfg,
		log:    logger,
		dialer: realtime.WebsocketDialer{},
		store:  cache.New(logger),
	}
	a.api = api.New(cfg.APIBaseURL, a.currentToken, logger)
	api.RegisterCoreGroups(a.store, a.api)
	return a
}

func (a *App) currentToken() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.token
}

// detachLocked removes the current channel wiring from the app and returns
// it for destruction. Callers destroy outside the lock because Close blocks
// on the run loop.
func (a *App) detachLocked() (*cachesync.Coordinator, *realtime.Channel, context.CancelFunc) {
	coord, ch, cancel := a.coord, a.channel, a.cancel
	a.coord, a.channel, a.cancel = nil, nil, nil
	return coord, ch, cancel
}

func destroy(coord *cachesync.Coordinator, ch *realtime.Channel, cancel context.CancelFunc) {
	if coord != nil {
		coord.Close()
	}
	if ch != nil {
		ch.Close()
	}
	if cancel != nil {
		cancel()
	}
}

// SetCredential installs an access token and (re)builds the realtime channel
// bound to it. Installing the already-current token is a no-op.
func (a *App) SetCredential(ctx context.Context, token string) (*auth.Identity, error) {
	identity, err := auth.IdentityFromToken(token)
	if err != nil {
		return nil, fmt.Errorf("set credential: %w", err)
	}

	a.mu.Lock()
	if token == a.token {
		id := a.identity
		a.mu.Unlock()
		return id, nil
	}
	coord, ch, cancel := a.detachLocked()
	a.mu.Unlock()
	destroy(coord, ch, cancel)

	chCtx, chCancel := context.WithCancel(ctx)
	channel := realtime.New(realtime.Options{
		URL:               a.cfg.RealtimeURL,
		Token:             token,
		ReconnectAttempts: a.cfg.ReconnectAttempts,
		ReconnectDelay:    a.cfg.ReconnectDelay,
		ReconnectDelayMax: a.cfg.ReconnectDelayMax,
	}, a.dialer, a.log)
	coordinator := cachesync.New(chCtx, a.store, a.log)
	coordinator.Bind(channel)

	a.mu.Lock()
	a.token = token
	a.identity = identity
	a.channel = channel
	a.coord = coordinator
	a.cancel = chCancel
	a.mu.Unlock()

	channel.Start(chCtx)
	a.log.Info().Str("user_id", identity.UserID).Str("role", string(identity.Role)).Msg("credential installed")
	return identity, nil
}

// ClearCredential drops the token and destroys the channel.
func (a *App) ClearCredential() {
	a.mu.Lock()
	coord, ch, cancel := a.detachLocked()
	a.token = ""
	a.identity = nil
	a.mu.Unlock()
	destroy(coord, ch, cancel)
}

// Channel returns the live realtime channel, or nil without a credential.
func (a *App) Channel() *realtime.Channel {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.channel
}

// Identity returns the identity of the installed credential, or nil.
func (a *App) Identity() *auth.Identity {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.identity
}

// Cache returns the shared query cache.
func (a *App) Cache() *cache.Store { return a.store }

// API returns the REST client.
func (a *App) API() *api.Client { return a.api }

// NewCallManager builds a call manager bound to the configured media
// application id. The id may be empty; the manager reports that at join time.
func (a *App) NewCallManager(provider media.Provider, cb call.Callbacks) *call.Manager {
	return call.NewManager(a.cfg.MediaAppID, provider, cb, a.log)
}

// Close tears down the channel and clears the credential.
func (a *App) Close() {
	a.ClearCredential()
}
