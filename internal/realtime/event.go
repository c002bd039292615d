package realtime

import "encoding/json"

// EventKind names a push event delivered over the realtime channel.
type EventKind string

const (
	// EventMessageSent notifies about a new chat message.
	EventMessageSent EventKind = "MESSAGE_SENT"
	// EventTrialRequestCreated notifies tutors about a new trial request.
	EventTrialRequestCreated EventKind = "TRIAL_REQUEST_CREATED"
	// EventTrialRequestAccepted notifies a student their request was accepted.
	EventTrialRequestAccepted EventKind = "TRIAL_REQUEST_ACCEPTED"
	// EventTrialRequestTaken notifies tutors a request was claimed by another.
	EventTrialRequestTaken EventKind = "TRIAL_REQUEST_TAKEN"
	// EventProposalUpdated notifies about a session proposal status change.
	EventProposalUpdated EventKind = "PROPOSAL_UPDATED"
	// EventFeedbackSubmitted notifies that a tutor submitted session feedback.
	EventFeedbackSubmitted EventKind = "FEEDBACK_SUBMITTED"
	// EventStudentReviewSubmitted notifies that a student submitted a review.
	EventStudentReviewSubmitted EventKind = "STUDENT_REVIEW_SUBMITTED"
)

// Client-to-server operations.
const (
	OpJoinChat  = "JOIN_CHAT"
	OpLeaveChat = "LEAVE_CHAT"
)

// Envelope is the wire format for both directions: a named event plus a
// JSON payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data into an envelope.
func NewEnvelope(event string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: raw}, nil
}

// Message is a chat message as carried by push events.
type Message struct {
	ID         string `json:"_id"`
	ChatID     string `json:"chatId"`
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
	Text       string `json:"text,omitempty"`
	Type       string `json:"type"`
	CreatedAt  string `json:"createdAt"`
}

// MessageSentData is the payload of EventMessageSent.
type MessageSentData struct {
	Message Message `json:"message"`
}

// TrialRequestData is the payload of the trial request lifecycle events.
type TrialRequestData struct {
	RequestID string `json:"requestId"`
}

// ProposalUpdatedData is the payload of EventProposalUpdated.
type ProposalUpdatedData struct {
	MessageID string `json:"messageId"`
	ChatID    string `json:"chatId"`
	Status    string `json:"status"`
	SessionID string `json:"sessionId,omitempty"`
}

// FeedbackSubmittedData is the payload of EventFeedbackSubmitted.
type FeedbackSubmittedData struct {
	SessionID  string `json:"sessionId"`
	ChatID     string `json:"chatId"`
	FeedbackID string `json:"feedbackId"`
}

// StudentReviewSubmittedData is the payload of EventStudentReviewSubmitted.
type StudentReviewSubmittedData struct {
	SessionID string `json:"sessionId"`
	ChatID    string `json:"chatId"`
	ReviewID  string `json:"reviewId"`
}

// RoomData addresses a chat room for join/leave operations.
type RoomData struct {
	ChatID string `json:"chatId"`
}
