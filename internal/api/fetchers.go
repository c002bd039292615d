package api

import (
	"context"

	"github.com/tutorlink/tutorlink-client/internal/cache"
)

// RegisterCoreGroups wires the always-present query groups to their REST
// fetchers. Per-chat and per-session groups are registered lazily as views
// open them.
func RegisterCoreGroups(store *cache.Store, client *Client) {
	store.Register(cache.K("chats"), func(ctx context.Context) (any, error) {
		return client.Chats(ctx)
	})
	store.Register(cache.K("sessions"), func(ctx context.Context) (any, error) {
		return client.Sessions(ctx)
	})
	store.Register(cache.K("trial-request"), func(ctx context.Context) (any, error) {
		return client.CurrentTrialRequest(ctx)
	})
	store.Register(cache.K("my-requests"), func(ctx context.Context) (any, error) {
		return client.MyRequests(ctx)
	})
	store.Register(cache.K("matching-requests"), func(ctx context.Context) (any, error) {
		return client.MatchingRequests(ctx)
	})
	store.Register(cache.K("trial-requests", "available"), func(ctx context.Context) (any, error) {
		return client.AvailableTrialRequests(ctx)
	})
}

// RegisterChatMessages adds the message group for one chat.
func RegisterChatMessages(store *cache.Store, client *Client, chatID string) cache.Key {
	key := cache.K("messages", chatID)
	store.Register(key, func(ctx context.Context) (any, error) {
		return client.Messages(ctx, chatID)
	})
	return key
}

// RegisterTrialSession adds the trial-session group for one request.
func RegisterTrialSession(store *cache.Store, client *Client, requestID string) cache.Key {
	key := cache.K("sessions", "trial", requestID)
	store.Register(key, func(ctx context.Context) (any, error) {
		return client.TrialSession(ctx, requestID)
	})
	return key
}

// RegisterSessionFeedback adds the tutor-feedback group for one session.
func RegisterSessionFeedback(store *cache.Store, client *Client, sessionID string) cache.Key {
	key := cache.K("session-feedback", sessionID)
	store.Register(key, func(ctx context.Context) (any, error) {
		return client.FeedbackBySession(ctx, sessionID)
	})
	return key
}

// RegisterSessionReview adds the student-review group for one session.
func RegisterSessionReview(store *cache.Store, client *Client, sessionID string) cache.Key {
	key := cache.K("review", "session", sessionID)
	store.Register(key, func(ctx context.Context) (any, error) {
		return client.ReviewBySession(ctx, sessionID)
	})
	return key
}
