// Package api is the REST client for the tutorlink backend. The wire shapes
// here are consumed by the cache fetchers and the feedback view; the backend
// itself is an external collaborator.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/tutorlink/tutorlink-client/internal/feedback"
	"github.com/tutorlink/tutorlink-client/internal/realtime"
)

// Chat is a conversation between a student and a tutor.
type Chat struct {
	ID              string    `json:"_id"`
	ParticipantIDs  []string  `json:"participantIds"`
	LastMessageText string    `json:"lastMessageText,omitempty"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// TrialRequest is a student's request for a trial session.
type TrialRequest struct {
	ID        string    `json:"_id"`
	StudentID string    `json:"studentId"`
	TutorID   string    `json:"tutorId,omitempty"`
	ChatID    string    `json:"chatId,omitempty"`
	Subject   string    `json:"subject"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// Session is a scheduled or completed tutoring session.
type Session struct {
	ID             string    `json:"_id"`
	ChatID         string    `json:"chatId"`
	TrialRequestID string    `json:"trialRequestId,omitempty"`
	TutorID        string    `json:"tutorId"`
	StudentID      string    `json:"studentId"`
	Status         string    `json:"status"`
	StartTime      time.Time `json:"startTime"`
	EndTime        time.Time `json:"endTime"`
}

// CallToken carries media transport join credentials for a session room.
type CallToken struct {
	URL      string `json:"url"`
	Token    string `json:"token"`
	Room     string `json:"room"`
	Identity string `json:"identity"`
}

// TokenFunc supplies the current access token per request, so a credential
// refresh does not require rebuilding the client.
type TokenFunc func() string

// Client talks to the REST backend.
type Client struct {
	baseURL string
	token   TokenFunc
	http    *http.Client
	log     *zerolog.Logger
}

// New builds a client for the given base URL.
func New(baseURL string, token TokenFunc, logger *zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
		log:     logger,
	}
}

// StatusError reports a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Body: string(data)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// isNotFound reports a 404 response, which the optional-record endpoints
// use to mean "does not exist yet".
func isNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// Register creates an account and returns an access token.
func (c *Client) Register(ctx context.Context, name, password, role string, subjects []string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	err := c.do(ctx, http.MethodPost, "/api/register", map[string]any{
		"name":     name,
		"password": password,
		"role":     role,
		"subjects": subjects,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Token, nil
}

// Login authenticates with the backend and returns an access token.
func (c *Client) Login(ctx context.Context, name, password string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	err := c.do(ctx, http.MethodPost, "/api/login", map[string]string{
		"name":     name,
		"password": password,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Token, nil
}

// Chats lists the caller's conversations.
func (c *Client) Chats(ctx context.Context) ([]Chat, error) {
	var chats []Chat
	if err := c.do(ctx, http.MethodGet, "/api/chats", nil, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

// Messages lists the messages of one chat.
func (c *Client) Messages(ctx context.Context, chatID string) ([]realtime.Message, error) {
	var msgs []realtime.Message
	if err := c.do(ctx, http.MethodGet, "/api/chats/"+chatID+"/messages", nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// SendMessage posts a message to a chat.
func (c *Client) SendMessage(ctx context.Context, chatID, text string) (*realtime.Message, error) {
	var msg realtime.Message
	err := c.do(ctx, http.MethodPost, "/api/chats/"+chatID+"/messages", map[string]string{"text": text}, &msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// SendProposal posts a session proposal message to a chat.
func (c *Client) SendProposal(ctx context.Context, chatID string, start, end time.Time) (*realtime.Message, error) {
	var msg realtime.Message
	err := c.do(ctx, http.MethodPost, "/api/chats/"+chatID+"/proposals", map[string]any{
		"startTime": start,
		"endTime":   end,
	}, &msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// Sessions lists the caller's sessions.
func (c *Client) Sessions(ctx context.Context) ([]Session, error) {
	var sessions []Session
	if err := c.do(ctx, http.MethodGet, "/api/sessions", nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// TrialSession returns the session spawned by a trial request, or nil if
// none exists yet.
func (c *Client) TrialSession(ctx context.Context, requestID string) (*Session, error) {
	var session Session
	err := c.do(ctx, http.MethodGet, "/api/trial-sessions/"+requestID, nil, &session)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// CurrentTrialRequest returns the student's active trial request, or nil.
func (c *Client) CurrentTrialRequest(ctx context.Context) (*TrialRequest, error) {
	var req TrialRequest
	err := c.do(ctx, http.MethodGet, "/api/trial-requests/current", nil, &req)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// MyRequests lists the student's trial requests.
func (c *Client) MyRequests(ctx context.Context) ([]TrialRequest, error) {
	var reqs []TrialRequest
	if err := c.do(ctx, http.MethodGet, "/api/trial-requests/mine", nil, &reqs); err != nil {
		return nil, err
	}
	return reqs, nil
}

// MatchingRequests lists trial requests matching the tutor's subjects.
func (c *Client) MatchingRequests(ctx context.Context) ([]TrialRequest, error) {
	var reqs []TrialRequest
	if err := c.do(ctx, http.MethodGet, "/api/trial-requests/matching", nil, &reqs); err != nil {
		return nil, err
	}
	return reqs, nil
}

// AvailableTrialRequests lists unclaimed trial requests.
func (c *Client) AvailableTrialRequests(ctx context.Context) ([]TrialRequest, error) {
	var reqs []TrialRequest
	if err := c.do(ctx, http.MethodGet, "/api/trial-requests/available", nil, &reqs); err != nil {
		return nil, err
	}
	return reqs, nil
}

// CreateTrialRequest files a new trial request for the student.
func (c *Client) CreateTrialRequest(ctx context.Context, subject string) (*TrialRequest, error) {
	var req TrialRequest
	err := c.do(ctx, http.MethodPost, "/api/trial-requests", map[string]string{"subject": subject}, &req)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// AcceptTrialRequest claims a trial request for the calling tutor.
func (c *Client) AcceptTrialRequest(ctx context.Context, requestID string) error {
	return c.do(ctx, http.MethodPost, "/api/trial-requests/accept", map[string]string{"requestId": requestID}, nil)
}

// UpdateProposal transitions a session proposal message's status.
func (c *Client) UpdateProposal(ctx context.Context, messageID, status string) error {
	return c.do(ctx, http.MethodPost, "/api/proposals/"+messageID, map[string]string{"status": status}, nil)
}

// CompleteSession marks a session as completed.
func (c *Client) CompleteSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodPost, "/api/sessions/"+sessionID+"/complete", nil, nil)
}

// FeedbackBySession returns the tutor feedback for a session, or nil when it
// does not exist yet.
func (c *Client) FeedbackBySession(ctx context.Context, sessionID string) (*feedback.TutorFeedback, error) {
	var fb feedback.TutorFeedback
	err := c.do(ctx, http.MethodGet, "/api/sessions/"+sessionID+"/feedback", nil, &fb)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &fb, nil
}

// ReviewBySession returns the student review for a session, or nil when it
// does not exist yet.
func (c *Client) ReviewBySession(ctx context.Context, sessionID string) (*feedback.StudentReview, error) {
	var rev feedback.StudentReview
	err := c.do(ctx, http.MethodGet, "/api/sessions/"+sessionID+"/review", nil, &rev)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rev, nil
}

// SubmitFeedback records the tutor's feedback for a session.
func (c *Client) SubmitFeedback(ctx context.Context, sessionID string, rating int, text string) error {
	return c.do(ctx, http.MethodPost, "/api/sessions/"+sessionID+"/feedback", map[string]any{
		"rating":       rating,
		"feedbackText": text,
	}, nil)
}

// SubmitReview records the student's review for a session.
func (c *Client) SubmitReview(ctx context.Context, sessionID string, ratings map[string]int, comment string) error {
	return c.do(ctx, http.MethodPost, "/api/sessions/"+sessionID+"/review", map[string]any{
		"ratings": ratings,
		"comment": comment,
	}, nil)
}

// CallToken fetches media join credentials for a session's call room.
func (c *Client) CallToken(ctx context.Context, sessionID string) (*CallToken, error) {
	var token CallToken
	if err := c.do(ctx, http.MethodGet, "/api/sessions/"+sessionID+"/call-token", nil, &token); err != nil {
		return nil, err
	}
	return &token, nil
}

var _ feedback.Source = (*Client)(nil)
