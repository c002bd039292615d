// Package feedback reconciles the two independent per-session feedback
// streams (tutor-authored feedback, student-authored review) into one
// UI-facing status. The records are never merged in storage; only the
// derived flags are combined.
package feedback

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tutorlink/tutorlink-client/internal/auth"
)

// TutorFeedback is the tutor-authored record for a completed session.
type TutorFeedback struct {
	ID           string    `json:"_id"`
	SessionID    string    `json:"sessionId"`
	TutorID      string    `json:"tutorId"`
	Rating       int       `json:"rating"`
	FeedbackText string    `json:"feedbackText,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// StudentReview is the student-authored record for a completed session.
type StudentReview struct {
	ID        string         `json:"_id"`
	SessionID string         `json:"sessionId"`
	StudentID string         `json:"studentId"`
	Ratings   map[string]int `json:"ratings"`
	Comment   string         `json:"comment,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Source fetches the two records. Implementations return (nil, nil) when a
// record simply does not exist yet.
type Source interface {
	FeedbackBySession(ctx context.Context, sessionID string) (*TutorFeedback, error)
	ReviewBySession(ctx context.Context, sessionID string) (*StudentReview, error)
}

// Status is the reconciled, role-aware view of a session's feedback state.
type Status struct {
	// HasReview reports whether the tutor has left feedback. It carries the
	// same meaning for both viewer roles: the badge reflects completion of
	// the feedback loop, not the viewer's own submission.
	HasReview    bool
	FeedbackText string
	// CanLeaveReview is the role-dependent affordance: a tutor is offered
	// it until they submit feedback; a student only after the tutor has
	// submitted and before their own review exists.
	CanLeaveReview bool
}

// Resolve fetches tutor feedback and, for completed sessions only, the
// student review, in parallel, then derives the display status.
func Resolve(ctx context.Context, src Source, sessionID string, role auth.Role, completed bool) (Status, error) {
	var (
		wg     sync.WaitGroup
		fb     *TutorFeedback
		fbErr  error
		rev    *StudentReview
		revErr error
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		fb, fbErr = src.FeedbackBySession(ctx, sessionID)
	}()

	if completed {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rev, revErr = src.ReviewBySession(ctx, sessionID)
		}()
	}
	wg.Wait()

	if err := errors.Join(fbErr, revErr); err != nil {
		return Status{}, err
	}

	var status Status
	// Both branches currently derive this the same way.
	if role == auth.RoleTutor {
		status.HasReview = fb != nil
	} else {
		status.HasReview = fb != nil
	}
	if fb != nil {
		status.FeedbackText = fb.FeedbackText
	}

	if completed {
		switch role {
		case auth.RoleTutor:
			status.CanLeaveReview = fb == nil
		case auth.RoleStudent:
			// Students cannot review before the tutor's feedback closes
			// the loop.
			status.CanLeaveReview = fb != nil && rev == nil
		}
	}
	return status, nil
}
