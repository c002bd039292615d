package devserver

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestUserRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user := &User{
		ID:           "u1",
		Name:         "alice",
		PasswordHash: "hash",
		Role:         "tutor",
		Subjects:     []string{"math", "physics"},
	}
	require.NoError(t, store.CreateUser(ctx, user))

	got, err := store.UserByName(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, []string{"math", "physics"}, got.Subjects)

	missing, err := store.UserByName(ctx, "nobody")
	require.NoError(t, err)
	require.Nil(t, missing)

	// Names are unique.
	require.Error(t, store.CreateUser(ctx, &User{ID: "u2", Name: "alice", Role: "student"}))
}

func TestMessagesKeepChatOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateUser(ctx, &User{ID: "s1", Name: "alice", Role: "student"}))
	require.NoError(t, store.CreateUser(ctx, &User{ID: "t1", Name: "bob", Role: "tutor"}))
	require.NoError(t, store.CreateChat(ctx, &Chat{ID: "c1", StudentID: "s1", TutorID: "t1"}))

	base := time.Now().UTC()
	for i, text := range []string{"first", "second", "third"} {
		require.NoError(t, store.SaveMessage(ctx, &Message{
			ID:        text,
			ChatID:    "c1",
			SenderID:  "s1",
			Text:      text,
			Kind:      MessageKindText,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	msgs, err := store.MessagesByChat(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.Equal(t, "first", msgs[0].Text)
	require.Equal(t, "third", msgs[2].Text)
}

func TestAcceptTrialRequestIsExclusive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateUser(ctx, &User{ID: "s1", Name: "alice", Role: "student"}))
	require.NoError(t, store.CreateTrialRequest(ctx, &TrialRequest{
		ID: "r1", StudentID: "s1", Subject: "math", Status: TrialPending,
	}))

	require.NoError(t, store.AcceptTrialRequest(ctx, "r1", "t1", "c1"))

	// A second accept finds no pending row.
	require.Error(t, store.AcceptTrialRequest(ctx, "r1", "t2", "c2"))

	got, err := store.TrialRequestByID(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, TrialAccepted, got.Status)
	require.Equal(t, "t1", got.TutorID)
	require.Equal(t, "c1", got.ChatID)

	byChat, err := store.TrialRequestByChat(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, "r1", byChat.ID)
}

func TestProposalUpdateRequiresProposalKind(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateUser(ctx, &User{ID: "s1", Name: "alice", Role: "student"}))
	require.NoError(t, store.CreateUser(ctx, &User{ID: "t1", Name: "bob", Role: "tutor"}))
	require.NoError(t, store.CreateChat(ctx, &Chat{ID: "c1", StudentID: "s1", TutorID: "t1"}))
	require.NoError(t, store.SaveMessage(ctx, &Message{
		ID: "m1", ChatID: "c1", SenderID: "s1", Text: "plain", Kind: MessageKindText, CreatedAt: time.Now().UTC(),
	}))
	require.NoError(t, store.SaveMessage(ctx, &Message{
		ID: "m2", ChatID: "c1", SenderID: "t1", Text: "proposal", Kind: MessageKindProposal,
		ProposalStatus: ProposalProposed, CreatedAt: time.Now().UTC(),
	}))

	require.Error(t, store.UpdateProposal(ctx, "m1", ProposalAccepted, "sess1"))
	require.NoError(t, store.UpdateProposal(ctx, "m2", ProposalAccepted, "sess1"))

	got, err := store.MessageByID(ctx, "m2")
	require.NoError(t, err)
	require.Equal(t, ProposalAccepted, got.ProposalStatus)
	require.Equal(t, "sess1", got.SessionID)

	// The session links back to its originating proposal message.
	bySession, err := store.ProposalMessageBySession(ctx, "sess1")
	require.NoError(t, err)
	require.NotNil(t, bySession)
	require.Equal(t, "m2", bySession.ID)

	missing, err := store.ProposalMessageBySession(ctx, "sess-unknown")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestFeedbackAndReviewAreOnePerSession(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateSession(ctx, &Session{
		ID: "sess1", ChatID: "c1", TutorID: "t1", StudentID: "s1",
		Status: SessionCompleted, StartTime: time.Now().UTC(), EndTime: time.Now().UTC(),
	}))

	require.NoError(t, store.SaveFeedback(ctx, &Feedback{ID: "f1", SessionID: "sess1", TutorID: "t1", Rating: 5}))
	require.Error(t, store.SaveFeedback(ctx, &Feedback{ID: "f2", SessionID: "sess1", TutorID: "t1", Rating: 4}))

	require.NoError(t, store.SaveReview(ctx, &Review{
		ID: "rv1", SessionID: "sess1", StudentID: "s1", Ratings: map[string]int{"clarity": 5},
	}))
	require.Error(t, store.SaveReview(ctx, &Review{ID: "rv2", SessionID: "sess1", StudentID: "s1"}))

	rev, err := store.ReviewBySession(ctx, "sess1")
	require.NoError(t, err)
	require.Equal(t, 5, rev.Ratings["clarity"])
}
