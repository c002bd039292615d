// Package realtime maintains the single authenticated push connection and
// exposes a typed subscribe surface plus chat room membership operations.
package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Options configures a channel.
type Options struct {
	URL   string
	Token string
	// ReconnectAttempts bounds consecutive failed dials. Zero or negative
	// means retry forever.
	ReconnectAttempts int
	// ReconnectDelay grows linearly per consecutive failure, capped at
	// ReconnectDelayMax.
	ReconnectDelay    time.Duration
	ReconnectDelayMax time.Duration
}

type subscription struct {
	kind    EventKind
	handler func(data json.RawMessage)
}

// Channel is one auto-reconnecting realtime connection bound to a single
// credential. It is created only when both credential and identity are
// present; credential changes destroy and recreate it (see internal/app).
type Channel struct {
	opts   Options
	dialer Dialer
	log    *zerolog.Logger

	mu        sync.Mutex
	conn      Conn
	connected bool
	subs      map[int]subscription
	nextSubID int
	onConnect []func()
	rooms     map[string]struct{}

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a channel; Start must be called to connect.
func New(opts Options, dialer Dialer, logger *zerolog.Logger) *Channel {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = time.Second
	}
	if opts.ReconnectDelayMax < opts.ReconnectDelay {
		opts.ReconnectDelayMax = opts.ReconnectDelay
	}
	return &Channel{
		opts:   opts,
		dialer: dialer,
		log:    logger,
		subs:   make(map[int]subscription),
		rooms:  make(map[string]struct{}),
		done:   make(chan struct{}),
	}
}

// Start begins connecting and dispatching in the background.
func (c *Channel) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	go c.run(ctx)
}

// Close tears the connection down and stops reconnecting.
func (c *Channel) Close() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
		<-c.done
	}
}

// IsConnected reports current connectivity. Consumers observe this flag;
// reconnection itself is internal.
func (c *Channel) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// OnConnect registers a hook invoked after every successful (re)connection.
// The cache coordinator uses this for its conservative resync. A hook
// registered while a connection is already up runs immediately, so late
// consumers do not wait for the next reconnect.
func (c *Channel) OnConnect(hook func()) {
	c.mu.Lock()
	c.onConnect = append(c.onConnect, hook)
	connected := c.connected
	c.mu.Unlock()
	if connected {
		hook()
	}
}

// Subscribe registers a handler for an event kind and returns an
// unsubscribe func.
func (c *Channel) Subscribe(kind EventKind, handler func(data json.RawMessage)) func() {
	c.mu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subs[id] = subscription{kind: kind, handler: handler}
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// OnNewMessage is a typed convenience over Subscribe for chat consumers.
func (c *Channel) OnNewMessage(handler func(msg Message)) func() {
	return c.Subscribe(EventMessageSent, func(data json.RawMessage) {
		var payload MessageSentData
		if err := json.Unmarshal(data, &payload); err != nil {
			c.log.Warn().Err(err).Msg("bad message payload")
			return
		}
		handler(payload.Message)
	})
}

// JoinRoom subscribes to a chat room's events. A strict no-op while
// disconnected: room membership is meaningless without a live connection,
// so nothing is queued for replay.
func (c *Channel) JoinRoom(ctx context.Context, chatID string) {
	c.roomOp(ctx, OpJoinChat, chatID, true)
}

// LeaveRoom unsubscribes from a chat room. No-op while disconnected.
func (c *Channel) LeaveRoom(ctx context.Context, chatID string) {
	c.roomOp(ctx, OpLeaveChat, chatID, false)
}

// Rooms returns the ids of rooms joined on the current connection.
func (c *Channel) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		ids = append(ids, id)
	}
	return ids
}

func (c *Channel) roomOp(ctx context.Context, op, chatID string, join bool) {
	c.mu.Lock()
	conn := c.conn
	if !c.connected || conn == nil {
		c.mu.Unlock()
		return
	}
	if join {
		c.rooms[chatID] = struct{}{}
	} else {
		delete(c.rooms, chatID)
	}
	c.mu.Unlock()

	env, err := NewEnvelope(op, RoomData{ChatID: chatID})
	if err != nil {
		c.log.Error().Err(err).Msg("encode room op")
		return
	}
	if err := conn.Write(ctx, env); err != nil {
		c.log.Warn().Err(err).Str("op", op).Str("chat_id", chatID).Msg("room op failed")
	}
}

func (c *Channel) run(ctx context.Context) {
	defer close(c.done)

	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := c.dialer.Dial(ctx, c.opts.URL, c.opts.Token)
		if err != nil {
			attempt++
			if c.opts.ReconnectAttempts > 0 && attempt >= c.opts.ReconnectAttempts {
				c.log.Error().Err(err).Int("attempts", attempt).Msg("realtime connection gave up")
				return
			}
			delay := backoffDelay(attempt, c.opts.ReconnectDelay, c.opts.ReconnectDelayMax)
			c.log.Warn().Err(err).Dur("retry_in", delay).Msg("realtime dial failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}
		attempt = 0

		c.mu.Lock()
		c.conn = conn
		c.connected = true
		hooks := append([]func(){}, c.onConnect...)
		c.mu.Unlock()

		c.log.Info().Str("url", c.opts.URL).Msg("realtime connected")
		// A reconnect implies an unknown number of missed push events, so
		// hooks must run before any newly delivered event is dispatched.
		for _, hook := range hooks {
			hook()
		}

		c.readLoop(ctx, conn)

		c.mu.Lock()
		c.connected = false
		c.conn = nil
		// Membership does not survive a connection.
		c.rooms = make(map[string]struct{})
		c.mu.Unlock()
		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}
		c.log.Warn().Msg("realtime disconnected, reconnecting")
	}
}

func (c *Channel) readLoop(ctx context.Context, conn Conn) {
	for {
		env, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.log.Warn().Err(err).Msg("realtime read failed")
			}
			return
		}
		c.dispatch(env)
	}
}

func (c *Channel) dispatch(env Envelope) {
	kind := EventKind(env.Event)

	c.mu.Lock()
	handlers := make([]func(json.RawMessage), 0, len(c.subs))
	for _, sub := range c.subs {
		if sub.kind == kind {
			handlers = append(handlers, sub.handler)
		}
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(env.Data)
	}
}

// backoffDelay is the linearly growing, capped reconnect delay.
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base * time.Duration(attempt)
	if d > max {
		d = max
	}
	return d
}
