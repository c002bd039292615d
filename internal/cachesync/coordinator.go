// Package cachesync translates realtime push events into deterministic,
// idempotent invalidation and refetch of named query groups. It is the only
// writer of cache staleness: views read through their own fetchers and never
// mutate the store in response to events.
package cachesync

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/tutorlink/tutorlink-client/internal/cache"
	"github.com/tutorlink/tutorlink-client/internal/realtime"
)

// step is one cache operation target: an exact group key, or a structural
// predicate for keys parameterized by values unknown at subscribe time.
type step struct {
	key  cache.Key
	name string
	pred func(cache.Key) bool
}

func exact(segments ...string) step {
	return step{key: cache.K(segments...)}
}

// trialSessionStep matches every {"sessions","trial",<requestID>} group.
// The originating request id is not carried by the event, so the match is
// structural.
func trialSessionStep() step {
	return step{
		name: "sessions/trial/*",
		pred: func(k cache.Key) bool {
			return len(k) >= 2 && k[0] == "sessions" && k[1] == "trial"
		},
	}
}

// reconnectSteps is the conservative full-resync set applied after every
// successful (re)connection: missed push events could have touched any of
// these.
func reconnectSteps() []step {
	return []step{
		exact("sessions"),
		exact("trial-request"),
		exact("messages"),
	}
}

// stepsFor maps one inbound event onto its affected groups, in application
// order.
func stepsFor(kind realtime.EventKind, data json.RawMessage, log *zerolog.Logger) []step {
	switch kind {
	case realtime.EventMessageSent:
		var payload realtime.MessageSentData
		if err := json.Unmarshal(data, &payload); err != nil {
			log.Warn().Err(err).Msg("bad message event payload")
			return []step{exact("chats")}
		}
		return []step{
			exact("messages", payload.Message.ChatID),
			exact("chats"),
		}

	case realtime.EventTrialRequestCreated, realtime.EventTrialRequestTaken:
		return []step{
			exact("matching-requests"),
			exact("trial-requests", "available"),
		}

	case realtime.EventTrialRequestAccepted:
		return []step{
			exact("trial-request"),
			exact("my-requests"),
			exact("chats"),
		}

	case realtime.EventProposalUpdated:
		var payload realtime.ProposalUpdatedData
		if err := json.Unmarshal(data, &payload); err != nil {
			log.Warn().Err(err).Msg("bad proposal event payload")
			return []step{
				exact("trial-request"),
				exact("sessions"),
				trialSessionStep(),
				exact("chats"),
			}
		}
		return []step{
			exact("messages", payload.ChatID),
			exact("trial-request"),
			exact("sessions"),
			trialSessionStep(),
			exact("chats"),
		}

	case realtime.EventFeedbackSubmitted:
		var payload realtime.FeedbackSubmittedData
		if err := json.Unmarshal(data, &payload); err != nil {
			log.Warn().Err(err).Msg("bad feedback event payload")
			return []step{exact("sessions")}
		}
		return []step{
			exact("session-feedback", payload.SessionID),
			exact("messages", payload.ChatID),
			exact("sessions"),
		}

	case realtime.EventStudentReviewSubmitted:
		var payload realtime.StudentReviewSubmittedData
		if err := json.Unmarshal(data, &payload); err != nil {
			log.Warn().Err(err).Msg("bad review event payload")
			return nil
		}
		return []step{
			exact("review", "session", payload.SessionID),
			exact("messages", payload.ChatID),
		}
	}
	return nil
}

// handledKinds is the closed set of event kinds the coordinator consumes.
var handledKinds = []realtime.EventKind{
	realtime.EventMessageSent,
	realtime.EventTrialRequestCreated,
	realtime.EventTrialRequestAccepted,
	realtime.EventTrialRequestTaken,
	realtime.EventProposalUpdated,
	realtime.EventFeedbackSubmitted,
	realtime.EventStudentReviewSubmitted,
}

// Coordinator subscribes to the realtime channel and drives the cache store.
type Coordinator struct {
	ctx    context.Context
	store  *cache.Store
	log    *zerolog.Logger
	unsubs []func()
}

// New builds a coordinator. ctx bounds the refetch calls it issues.
func New(ctx context.Context, store *cache.Store, logger *zerolog.Logger) *Coordinator {
	return &Coordinator{ctx: ctx, store: store, log: logger}
}

// Bind subscribes the coordinator to every handled event kind and registers
// the reconnect resync hook.
func (c *Coordinator) Bind(ch *realtime.Channel) {
	for _, kind := range handledKinds {
		kind := kind
		c.unsubs = append(c.unsubs, ch.Subscribe(kind, func(data json.RawMessage) {
			c.Handle(kind, data)
		}))
	}
	ch.OnConnect(c.ResyncAfterReconnect)
}

// Close detaches all subscriptions.
func (c *Coordinator) Close() {
	for _, unsub := range c.unsubs {
		unsub()
	}
	c.unsubs = nil
}

// Handle applies the cache operations for one inbound event.
func (c *Coordinator) Handle(kind realtime.EventKind, data json.RawMessage) {
	steps := stepsFor(kind, data, c.log)
	c.log.Debug().Str("event", string(kind)).Int("groups", len(steps)).Msg("applying cache invalidation")
	c.apply(steps)
}

// ResyncAfterReconnect marks the reconnect set stale and refetches it. The
// fixed set mirrors what the server pushes while connected; see DESIGN.md
// for the open question about its completeness.
func (c *Coordinator) ResyncAfterReconnect() {
	c.log.Info().Msg("realtime reconnected, resyncing cache groups")
	c.apply(reconnectSteps())
}

// apply performs mark-stale then force-refetch per step, in order. Both
// operations are idempotent, so replays of the same event are harmless.
func (c *Coordinator) apply(steps []step) {
	for _, st := range steps {
		if st.pred != nil {
			c.store.InvalidateFunc(st.pred)
			c.store.RefetchFunc(c.ctx, st.pred)
			continue
		}
		c.store.Invalidate(st.key)
		c.store.Refetch(c.ctx, st.key)
	}
}
