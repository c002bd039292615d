package cachesync

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tutorlink/tutorlink-client/internal/cache"
	"github.com/tutorlink/tutorlink-client/internal/realtime"
)

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

type fixture struct {
	store    *cache.Store
	coord    *Coordinator
	fetchers map[string]*countingFetcher
}

type countingFetcher struct {
	mu    sync.Mutex
	calls int
}

func (f *countingFetcher) fetch(context.Context) (any, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return nil, nil
}

func (f *countingFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newFixture(t *testing.T, keys ...cache.Key) *fixture {
	t.Helper()
	store := cache.New(testLogger())
	fx := &fixture{
		store:    store,
		coord:    New(context.Background(), store, testLogger()),
		fetchers: make(map[string]*countingFetcher),
	}
	for _, key := range keys {
		f := &countingFetcher{}
		fx.fetchers[key.String()] = f
		store.Register(key, f.fetch)
	}
	return fx
}

func (fx *fixture) calls(key cache.Key) int {
	return fx.fetchers[key.String()].count()
}

// assertTouched verifies that exactly the listed groups were refetched once
// and every other registered group was left alone.
func (fx *fixture) assertTouched(t *testing.T, touched ...cache.Key) {
	t.Helper()
	want := make(map[string]bool, len(touched))
	for _, key := range touched {
		want[key.String()] = true
	}
	for name, f := range fx.fetchers {
		if want[name] && f.count() != 1 {
			t.Fatalf("group %s: expected one refetch, got %d", name, f.count())
		}
		if !want[name] && f.count() != 0 {
			t.Fatalf("group %s: must not be touched, got %d refetches", name, f.count())
		}
	}
}

func mustMarshal(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

func allGroups() []cache.Key {
	return []cache.Key{
		cache.K("messages", "c1"),
		cache.K("messages", "c2"),
		cache.K("chats"),
		cache.K("sessions"),
		cache.K("sessions", "trial", "r1"),
		cache.K("trial-request"),
		cache.K("my-requests"),
		cache.K("matching-requests"),
		cache.K("trial-requests", "available"),
		cache.K("session-feedback", "s1"),
		cache.K("review", "session", "s1"),
	}
}

func TestMessageSentInvalidation(t *testing.T) {
	fx := newFixture(t, allGroups()...)

	fx.coord.Handle(realtime.EventMessageSent, mustMarshal(t, realtime.MessageSentData{
		Message: realtime.Message{ID: "m1", ChatID: "c1"},
	}))

	fx.assertTouched(t,
		cache.K("messages", "c1"),
		cache.K("chats"),
	)
}

func TestTrialRequestCreatedInvalidation(t *testing.T) {
	fx := newFixture(t, allGroups()...)

	fx.coord.Handle(realtime.EventTrialRequestCreated, mustMarshal(t, realtime.TrialRequestData{RequestID: "r1"}))

	fx.assertTouched(t,
		cache.K("matching-requests"),
		cache.K("trial-requests", "available"),
	)
}

func TestTrialRequestTakenInvalidation(t *testing.T) {
	fx := newFixture(t, allGroups()...)

	fx.coord.Handle(realtime.EventTrialRequestTaken, mustMarshal(t, realtime.TrialRequestData{RequestID: "r1"}))

	fx.assertTouched(t,
		cache.K("matching-requests"),
		cache.K("trial-requests", "available"),
	)
}

func TestTrialRequestAcceptedInvalidation(t *testing.T) {
	fx := newFixture(t, allGroups()...)

	fx.coord.Handle(realtime.EventTrialRequestAccepted, mustMarshal(t, realtime.TrialRequestData{RequestID: "r1"}))

	fx.assertTouched(t,
		cache.K("trial-request"),
		cache.K("my-requests"),
		cache.K("chats"),
	)
}

func TestProposalUpdatedInvalidation(t *testing.T) {
	fx := newFixture(t, allGroups()...)

	fx.coord.Handle(realtime.EventProposalUpdated, mustMarshal(t, realtime.ProposalUpdatedData{
		ChatID:    "c1",
		Status:    "ACCEPTED",
		SessionID: "s1",
	}))

	fx.assertTouched(t,
		cache.K("messages", "c1"),
		cache.K("trial-request"),
		cache.K("sessions"),
		cache.K("sessions", "trial", "r1"),
		cache.K("chats"),
	)
}

func TestFeedbackSubmittedInvalidation(t *testing.T) {
	fx := newFixture(t, allGroups()...)

	fx.coord.Handle(realtime.EventFeedbackSubmitted, mustMarshal(t, realtime.FeedbackSubmittedData{
		SessionID:  "s1",
		ChatID:     "c1",
		FeedbackID: "f1",
	}))

	fx.assertTouched(t,
		cache.K("session-feedback", "s1"),
		cache.K("messages", "c1"),
		cache.K("sessions"),
	)
}

func TestStudentReviewSubmittedInvalidation(t *testing.T) {
	fx := newFixture(t, allGroups()...)

	fx.coord.Handle(realtime.EventStudentReviewSubmitted, mustMarshal(t, realtime.StudentReviewSubmittedData{
		SessionID: "s1",
		ChatID:    "c1",
		ReviewID:  "rv1",
	}))

	fx.assertTouched(t,
		cache.K("review", "session", "s1"),
		cache.K("messages", "c1"),
	)
}

func TestResyncAfterReconnect(t *testing.T) {
	fx := newFixture(t, allGroups()...)

	fx.coord.ResyncAfterReconnect()

	// The messages prefix covers every per-chat group.
	fx.assertTouched(t,
		cache.K("sessions"),
		cache.K("sessions", "trial", "r1"),
		cache.K("trial-request"),
		cache.K("messages", "c1"),
		cache.K("messages", "c2"),
	)
}

func TestInvalidationIsIdempotent(t *testing.T) {
	fx := newFixture(t, allGroups()...)

	payload := mustMarshal(t, realtime.MessageSentData{Message: realtime.Message{ChatID: "c1"}})
	fx.coord.Handle(realtime.EventMessageSent, payload)
	fx.coord.Handle(realtime.EventMessageSent, payload)

	if got := fx.calls(cache.K("messages", "c1")); got != 2 {
		t.Fatalf("each event applies its own refetch, got %d", got)
	}
	if got := fx.calls(cache.K("sessions")); got != 0 {
		t.Fatalf("unrelated group touched %d times", got)
	}
}

func TestMarkStalePrecedesRefetch(t *testing.T) {
	store := cache.New(testLogger())
	coord := New(context.Background(), store, testLogger())

	key := cache.K("chats")
	staleAtFetch := false
	store.Register(key, func(context.Context) (any, error) {
		staleAtFetch = store.IsStale(key)
		return nil, nil
	})

	coord.Handle(realtime.EventTrialRequestAccepted, mustMarshal(t, realtime.TrialRequestData{RequestID: "r1"}))

	if !staleAtFetch {
		t.Fatal("group must be marked stale before its refetch runs")
	}
	if store.IsStale(key) {
		t.Fatal("group must be fresh after the refetch")
	}
}

// connOnlyDialer hands out a single quiet connection so the channel can
// establish and trigger the coordinator's reconnect hook.
type connOnlyDialer struct{}

type quietConn struct{}

func (quietConn) Read(ctx context.Context) (realtime.Envelope, error) {
	<-ctx.Done()
	return realtime.Envelope{}, ctx.Err()
}
func (quietConn) Write(ctx context.Context, env realtime.Envelope) error { return nil }
func (quietConn) Close() error                                           { return nil }

func (connOnlyDialer) Dial(ctx context.Context, url, token string) (realtime.Conn, error) {
	return quietConn{}, nil
}

func TestBindRunsResyncOnConnect(t *testing.T) {
	fx := newFixture(t, cache.K("sessions"), cache.K("trial-request"), cache.K("messages", "c1"), cache.K("chats"))

	ch := realtime.New(realtime.Options{
		URL:            "ws://test/ws",
		Token:          "token",
		ReconnectDelay: time.Millisecond,
	}, connOnlyDialer{}, testLogger())

	fx.coord.Bind(ch)
	ch.Start(context.Background())
	defer ch.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if fx.calls(cache.K("sessions")) == 1 &&
			fx.calls(cache.K("trial-request")) == 1 &&
			fx.calls(cache.K("messages", "c1")) == 1 &&
			fx.calls(cache.K("chats")) == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("resync not applied on connect: sessions=%d trial-request=%d messages=%d chats=%d",
		fx.calls(cache.K("sessions")), fx.calls(cache.K("trial-request")),
		fx.calls(cache.K("messages", "c1")), fx.calls(cache.K("chats")))
}
