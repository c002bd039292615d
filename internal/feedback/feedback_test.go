package feedback

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tutorlink/tutorlink-client/internal/auth"
)

type fakeSource struct {
	feedback *TutorFeedback
	review   *StudentReview

	feedbackErr error
	reviewErr   error

	reviewFetches atomic.Int32
}

func (s *fakeSource) FeedbackBySession(ctx context.Context, sessionID string) (*TutorFeedback, error) {
	return s.feedback, s.feedbackErr
}

func (s *fakeSource) ReviewBySession(ctx context.Context, sessionID string) (*StudentReview, error) {
	s.reviewFetches.Add(1)
	return s.review, s.reviewErr
}

func TestTutorOfferedReviewUntilSubmitted(t *testing.T) {
	src := &fakeSource{}

	status, err := Resolve(context.Background(), src, "s1", auth.RoleTutor, true)
	require.NoError(t, err)
	require.False(t, status.HasReview)
	require.True(t, status.CanLeaveReview)
}

func TestFeedbackSubmittedBeforeStudentReview(t *testing.T) {
	src := &fakeSource{
		feedback: &TutorFeedback{ID: "f1", SessionID: "s1", FeedbackText: "great progress"},
	}

	tutorView, err := Resolve(context.Background(), src, "s1", auth.RoleTutor, true)
	require.NoError(t, err)
	studentView, err := Resolve(context.Background(), src, "s1", auth.RoleStudent, true)
	require.NoError(t, err)

	// The badge flips for both roles at once.
	require.True(t, tutorView.HasReview)
	require.True(t, studentView.HasReview)
	require.Equal(t, "great progress", studentView.FeedbackText)

	// The affordance moves from tutor to student.
	require.False(t, tutorView.CanLeaveReview)
	require.True(t, studentView.CanLeaveReview)
}

func TestStudentCannotReviewBeforeTutorFeedback(t *testing.T) {
	src := &fakeSource{}

	status, err := Resolve(context.Background(), src, "s1", auth.RoleStudent, true)
	require.NoError(t, err)
	require.False(t, status.HasReview)
	require.False(t, status.CanLeaveReview)
}

func TestStudentAffordanceClosesAfterOwnReview(t *testing.T) {
	src := &fakeSource{
		feedback: &TutorFeedback{ID: "f1", SessionID: "s1"},
		review:   &StudentReview{ID: "rv1", SessionID: "s1"},
	}

	status, err := Resolve(context.Background(), src, "s1", auth.RoleStudent, true)
	require.NoError(t, err)
	require.True(t, status.HasReview)
	require.False(t, status.CanLeaveReview)
}

func TestReviewFetchedOnlyForCompletedSessions(t *testing.T) {
	src := &fakeSource{}

	_, err := Resolve(context.Background(), src, "s1", auth.RoleStudent, false)
	require.NoError(t, err)
	require.Zero(t, src.reviewFetches.Load())

	_, err = Resolve(context.Background(), src, "s1", auth.RoleStudent, true)
	require.NoError(t, err)
	require.Equal(t, int32(1), src.reviewFetches.Load())
}

func TestNoAffordanceForIncompleteSessions(t *testing.T) {
	src := &fakeSource{}

	tutorView, err := Resolve(context.Background(), src, "s1", auth.RoleTutor, false)
	require.NoError(t, err)
	require.False(t, tutorView.CanLeaveReview)

	studentView, err := Resolve(context.Background(), src, "s1", auth.RoleStudent, false)
	require.NoError(t, err)
	require.False(t, studentView.CanLeaveReview)
}

func TestResolvePropagatesFetchErrors(t *testing.T) {
	src := &fakeSource{reviewErr: errors.New("backend down")}

	_, err := Resolve(context.Background(), src, "s1", auth.RoleStudent, true)
	require.Error(t, err)
}
