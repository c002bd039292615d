// Package devserver is a self-contained backend emulator for local
// development: REST API, realtime push endpoint, and sqlite persistence in
// one process, speaking exactly the protocol the client packages consume.
package devserver

import (
	"context"
	"time"
)

// User is a registered platform user.
type User struct {
	ID           string
	Name         string
	PasswordHash string
	Role         string
	Subjects     []string
	CreatedAt    time.Time
}

// Chat is a student/tutor conversation.
type Chat struct {
	ID              string
	StudentID       string
	TutorID         string
	LastMessageText string
	UpdatedAt       time.Time
}

// Message is a persisted chat message. Proposal messages additionally carry
// a status and, once accepted, the spawned session id.
type Message struct {
	ID             string
	ChatID         string
	SenderID       string
	Text           string
	Kind           string
	ProposalStatus string
	SessionID      string
	CreatedAt      time.Time
}

// Message kinds.
const (
	MessageKindText     = "text"
	MessageKindProposal = "proposal"
)

// Proposal statuses. PROPOSED and COUNTER_PROPOSED are the open states; the
// rest are terminal except that COMPLETED follows ACCEPTED when the spawned
// session finishes.
const (
	ProposalProposed        = "PROPOSED"
	ProposalAccepted        = "ACCEPTED"
	ProposalRejected        = "REJECTED"
	ProposalCounterProposed = "COUNTER_PROPOSED"
	ProposalCancelled       = "CANCELLED"
	ProposalCompleted       = "COMPLETED"
)

// TrialRequest is a student's open request for a trial session.
type TrialRequest struct {
	ID        string
	StudentID string
	TutorID   string
	ChatID    string
	Subject   string
	Status    string
	CreatedAt time.Time
}

// Trial request statuses.
const (
	TrialPending  = "PENDING"
	TrialAccepted = "ACCEPTED"
)

// Session is a scheduled or completed tutoring session.
type Session struct {
	ID             string
	ChatID         string
	TrialRequestID string
	TutorID        string
	StudentID      string
	Status         string
	StartTime      time.Time
	EndTime        time.Time
}

// Session statuses.
const (
	SessionScheduled = "SCHEDULED"
	SessionCompleted = "COMPLETED"
)

// Feedback is the tutor-authored record for a session.
type Feedback struct {
	ID           string
	SessionID    string
	TutorID      string
	Rating       int
	FeedbackText string
	CreatedAt    time.Time
}

// Review is the student-authored record for a session.
type Review struct {
	ID        string
	SessionID string
	StudentID string
	Ratings   map[string]int
	Comment   string
	CreatedAt time.Time
}

// Store is the persistence surface of the emulator. Implementations return
// (nil, nil) from the ByX lookups when no record exists.
type Store interface {
	CreateUser(ctx context.Context, u *User) error
	UserByName(ctx context.Context, name string) (*User, error)
	UserByID(ctx context.Context, id string) (*User, error)

	CreateChat(ctx context.Context, c *Chat) error
	ChatByID(ctx context.Context, id string) (*Chat, error)
	ChatsByUser(ctx context.Context, userID string) ([]*Chat, error)
	TouchChat(ctx context.Context, chatID, lastMessageText string) error

	SaveMessage(ctx context.Context, m *Message) error
	MessageByID(ctx context.Context, id string) (*Message, error)
	MessagesByChat(ctx context.Context, chatID string) ([]*Message, error)
	UpdateProposal(ctx context.Context, messageID, status, sessionID string) error
	ProposalMessageBySession(ctx context.Context, sessionID string) (*Message, error)

	CreateTrialRequest(ctx context.Context, r *TrialRequest) error
	TrialRequestByID(ctx context.Context, id string) (*TrialRequest, error)
	TrialRequestByChat(ctx context.Context, chatID string) (*TrialRequest, error)
	CurrentTrialRequest(ctx context.Context, studentID string) (*TrialRequest, error)
	TrialRequestsByStudent(ctx context.Context, studentID string) ([]*TrialRequest, error)
	PendingTrialRequests(ctx context.Context) ([]*TrialRequest, error)
	AcceptTrialRequest(ctx context.Context, requestID, tutorID, chatID string) error

	CreateSession(ctx context.Context, s *Session) error
	SessionByID(ctx context.Context, id string) (*Session, error)
	SessionByTrialRequest(ctx context.Context, requestID string) (*Session, error)
	SessionsByUser(ctx context.Context, userID string) ([]*Session, error)
	UpdateSessionStatus(ctx context.Context, sessionID, status string) error

	SaveFeedback(ctx context.Context, f *Feedback) error
	FeedbackBySession(ctx context.Context, sessionID string) (*Feedback, error)
	SaveReview(ctx context.Context, r *Review) error
	ReviewBySession(ctx context.Context, sessionID string) (*Review, error)

	Close() error
}
