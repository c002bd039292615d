package devserver

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tutorlink/tutorlink-client/internal/auth"
	"github.com/tutorlink/tutorlink-client/internal/realtime"
)

const (
	contextKeyUserID = "user_id"
	contextKeyName   = "name"
	contextKeyRole   = "role"
)

// Handlers serves the REST API and emits push events for every mutation.
type Handlers struct {
	store  Store
	hub    *Hub
	tokens *CallTokenIssuer
	jwt    *auth.JWTConfig
	log    *zerolog.Logger
}

// NewHandlers builds the REST handler set.
func NewHandlers(store Store, hub *Hub, tokens *CallTokenIssuer, jwt *auth.JWTConfig, logger *zerolog.Logger) *Handlers {
	return &Handlers{store: store, hub: hub, tokens: tokens, jwt: jwt, log: logger}
}

// ErrorResponse is the error body for every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// AuthMiddleware validates the bearer token and stores the caller identity
// in the request context.
func AuthMiddleware(jwt *auth.JWTConfig, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "missing authorization header"})
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid authorization header format"})
			c.Abort()
			return
		}
		claims, err := auth.ValidateToken(jwt, parts[1])
		if err != nil {
			logger.Debug().Err(err).Msg("invalid token")
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
			c.Abort()
			return
		}
		c.Set(contextKeyUserID, claims.UserID)
		c.Set(contextKeyName, claims.Name)
		c.Set(contextKeyRole, string(claims.Role))
		c.Next()
	}
}

// LoggerMiddleware logs every request after it completes.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("http request")
	}
}

func caller(c *gin.Context) (userID, name, role string) {
	return c.GetString(contextKeyUserID), c.GetString(contextKeyName), c.GetString(contextKeyRole)
}

// ==== auth ====

// RegisterRequest is the registration request body.
type RegisterRequest struct {
	Name     string   `json:"name" binding:"required,min=2,max=64"`
	Password string   `json:"password" binding:"required,min=6"`
	Role     string   `json:"role" binding:"required,oneof=student tutor"`
	Subjects []string `json:"subjects"`
}

// LoginRequest is the login request body.
type LoginRequest struct {
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse carries an access token.
type AuthResponse struct {
	Token string `json:"token"`
}

// Register creates a user and returns a token.
// POST /api/register
func (h *Handlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	existing, err := h.store.UserByName(c.Request.Context(), req.Name)
	if err != nil {
		h.fail(c, err, "lookup user")
		return
	}
	if existing != nil {
		c.JSON(http.StatusConflict, ErrorResponse{Error: "user already exists"})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.fail(c, err, "hash password")
		return
	}
	user := &User{
		ID:           uuid.NewString(),
		Name:         req.Name,
		PasswordHash: hash,
		Role:         req.Role,
		Subjects:     req.Subjects,
	}
	if err := h.store.CreateUser(c.Request.Context(), user); err != nil {
		h.fail(c, err, "create user")
		return
	}

	token, err := auth.GenerateToken(h.jwt, user.ID, user.Name, auth.Role(user.Role))
	if err != nil {
		h.fail(c, err, "generate token")
		return
	}
	h.log.Info().Str("name", req.Name).Str("role", req.Role).Msg("user registered")
	c.JSON(http.StatusCreated, AuthResponse{Token: token})
}

// Login authenticates a user.
// POST /api/login
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	user, err := h.store.UserByName(c.Request.Context(), req.Name)
	if err != nil {
		h.fail(c, err, "lookup user")
		return
	}
	if user == nil || auth.ComparePassword(user.PasswordHash, req.Password) != nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})
		return
	}

	token, err := auth.GenerateToken(h.jwt, user.ID, user.Name, auth.Role(user.Role))
	if err != nil {
		h.fail(c, err, "generate token")
		return
	}
	c.JSON(http.StatusOK, AuthResponse{Token: token})
}

// ==== chats and messages ====

type chatView struct {
	ID              string    `json:"_id"`
	ParticipantIDs  []string  `json:"participantIds"`
	LastMessageText string    `json:"lastMessageText,omitempty"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func toChatView(c *Chat) chatView {
	return chatView{
		ID:              c.ID,
		ParticipantIDs:  []string{c.StudentID, c.TutorID},
		LastMessageText: c.LastMessageText,
		UpdatedAt:       c.UpdatedAt,
	}
}

func (h *Handlers) toWireMessage(ctx context.Context, m *Message) realtime.Message {
	senderName := ""
	if sender, err := h.store.UserByID(ctx, m.SenderID); err == nil && sender != nil {
		senderName = sender.Name
	}
	return realtime.Message{
		ID:         m.ID,
		ChatID:     m.ChatID,
		SenderID:   m.SenderID,
		SenderName: senderName,
		Text:       m.Text,
		Type:       m.Kind,
		CreatedAt:  m.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// ListChats returns the caller's conversations.
// GET /api/chats
func (h *Handlers) ListChats(c *gin.Context) {
	userID, _, _ := caller(c)
	chats, err := h.store.ChatsByUser(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err, "list chats")
		return
	}
	views := make([]chatView, 0, len(chats))
	for _, chat := range chats {
		views = append(views, toChatView(chat))
	}
	c.JSON(http.StatusOK, views)
}

// ListMessages returns a chat's messages.
// GET /api/chats/:id/messages
func (h *Handlers) ListMessages(c *gin.Context) {
	chat, ok := h.memberChat(c)
	if !ok {
		return
	}
	msgs, err := h.store.MessagesByChat(c.Request.Context(), chat.ID)
	if err != nil {
		h.fail(c, err, "list messages")
		return
	}
	views := make([]realtime.Message, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, h.toWireMessage(c.Request.Context(), m))
	}
	c.JSON(http.StatusOK, views)
}

// SendMessageRequest is the message posting body.
type SendMessageRequest struct {
	Text string `json:"text" binding:"required"`
}

// SendMessage persists a text message and pushes it to the chat room.
// POST /api/chats/:id/messages
func (h *Handlers) SendMessage(c *gin.Context) {
	chat, ok := h.memberChat(c)
	if !ok {
		return
	}
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	userID, _, _ := caller(c)
	msg := &Message{
		ID:        uuid.NewString(),
		ChatID:    chat.ID,
		SenderID:  userID,
		Text:      req.Text,
		Kind:      MessageKindText,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.SaveMessage(c.Request.Context(), msg); err != nil {
		h.fail(c, err, "save message")
		return
	}
	if err := h.store.TouchChat(c.Request.Context(), chat.ID, req.Text); err != nil {
		h.fail(c, err, "touch chat")
		return
	}

	wire := h.toWireMessage(c.Request.Context(), msg)
	h.hub.EmitToRoom(chat.ID, string(realtime.EventMessageSent), realtime.MessageSentData{Message: wire})
	c.JSON(http.StatusCreated, wire)
}

// ProposalRequest is the session proposal body.
type ProposalRequest struct {
	StartTime time.Time `json:"startTime" binding:"required"`
	EndTime   time.Time `json:"endTime" binding:"required"`
}

// SendProposal posts a session proposal message into a chat.
// POST /api/chats/:id/proposals
func (h *Handlers) SendProposal(c *gin.Context) {
	chat, ok := h.memberChat(c)
	if !ok {
		return
	}
	_, _, role := caller(c)
	if role != string(auth.RoleTutor) {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "only tutors send proposals"})
		return
	}
	var req ProposalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	userID, _, _ := caller(c)
	msg := &Message{
		ID:             uuid.NewString(),
		ChatID:         chat.ID,
		SenderID:       userID,
		Text:           "Session proposal: " + req.StartTime.Format(time.RFC3339),
		Kind:           MessageKindProposal,
		ProposalStatus: ProposalProposed,
		CreatedAt:      time.Now().UTC(),
	}
	if err := h.store.SaveMessage(c.Request.Context(), msg); err != nil {
		h.fail(c, err, "save proposal")
		return
	}

	wire := h.toWireMessage(c.Request.Context(), msg)
	h.hub.EmitToRoom(chat.ID, string(realtime.EventMessageSent), realtime.MessageSentData{Message: wire})
	c.JSON(http.StatusCreated, wire)
}

// UpdateProposalRequest is the proposal transition body. COMPLETED is not
// accepted here: it is driven by completing the spawned session.
type UpdateProposalRequest struct {
	Status string `json:"status" binding:"required,oneof=ACCEPTED REJECTED COUNTER_PROPOSED CANCELLED"`
}

// UpdateProposal transitions an open proposal and, on acceptance, spawns
// the session. A counter-proposed proposal stays open for a later accept.
// POST /api/proposals/:messageID
func (h *Handlers) UpdateProposal(c *gin.Context) {
	msg, err := h.store.MessageByID(c.Request.Context(), c.Param("messageID"))
	if err != nil {
		h.fail(c, err, "lookup proposal")
		return
	}
	if msg == nil || msg.Kind != MessageKindProposal {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "proposal not found"})
		return
	}
	if msg.ProposalStatus != ProposalProposed && msg.ProposalStatus != ProposalCounterProposed {
		c.JSON(http.StatusConflict, ErrorResponse{Error: "proposal already resolved"})
		return
	}
	var req UpdateProposalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	chat, err := h.store.ChatByID(c.Request.Context(), msg.ChatID)
	if err != nil {
		h.fail(c, err, "lookup chat")
		return
	}
	if chat == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "chat not found"})
		return
	}

	sessionID := ""
	if req.Status == ProposalAccepted {
		requestID := ""
		if tr, err := h.store.TrialRequestByChat(c.Request.Context(), chat.ID); err == nil && tr != nil {
			requestID = tr.ID
		}
		session := &Session{
			ID:             uuid.NewString(),
			ChatID:         chat.ID,
			TrialRequestID: requestID,
			TutorID:        chat.TutorID,
			StudentID:      chat.StudentID,
			Status:         SessionScheduled,
			StartTime:      time.Now().UTC().Add(24 * time.Hour),
			EndTime:        time.Now().UTC().Add(25 * time.Hour),
		}
		if err := h.store.CreateSession(c.Request.Context(), session); err != nil {
			h.fail(c, err, "create session")
			return
		}
		sessionID = session.ID
	}

	if err := h.store.UpdateProposal(c.Request.Context(), msg.ID, req.Status, sessionID); err != nil {
		h.fail(c, err, "update proposal")
		return
	}

	h.hub.EmitToRoom(chat.ID, string(realtime.EventProposalUpdated), realtime.ProposalUpdatedData{
		MessageID: msg.ID,
		ChatID:    chat.ID,
		Status:    req.Status,
		SessionID: sessionID,
	})
	c.Status(http.StatusNoContent)
}

// ==== trial requests ====

type trialRequestView struct {
	ID        string    `json:"_id"`
	StudentID string    `json:"studentId"`
	TutorID   string    `json:"tutorId,omitempty"`
	ChatID    string    `json:"chatId,omitempty"`
	Subject   string    `json:"subject"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

func toTrialRequestView(r *TrialRequest) trialRequestView {
	return trialRequestView{
		ID:        r.ID,
		StudentID: r.StudentID,
		TutorID:   r.TutorID,
		ChatID:    r.ChatID,
		Subject:   r.Subject,
		Status:    r.Status,
		CreatedAt: r.CreatedAt,
	}
}

func trialRequestViews(reqs []*TrialRequest) []trialRequestView {
	views := make([]trialRequestView, 0, len(reqs))
	for _, r := range reqs {
		views = append(views, toTrialRequestView(r))
	}
	return views
}

// CreateTrialRequestRequest is the trial request creation body.
type CreateTrialRequestRequest struct {
	Subject string `json:"subject" binding:"required"`
}

// CreateTrialRequest files a student's trial request and notifies tutors.
// POST /api/trial-requests
func (h *Handlers) CreateTrialRequest(c *gin.Context) {
	userID, _, role := caller(c)
	if role != string(auth.RoleStudent) {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "only students create trial requests"})
		return
	}
	var req CreateTrialRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	tr := &TrialRequest{
		ID:        uuid.NewString(),
		StudentID: userID,
		Subject:   req.Subject,
		Status:    TrialPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.CreateTrialRequest(c.Request.Context(), tr); err != nil {
		h.fail(c, err, "create trial request")
		return
	}

	h.hub.EmitToAll(string(realtime.EventTrialRequestCreated), realtime.TrialRequestData{RequestID: tr.ID})
	c.JSON(http.StatusCreated, toTrialRequestView(tr))
}

// CurrentTrialRequest returns the student's active request or 404.
// GET /api/trial-requests/current
func (h *Handlers) CurrentTrialRequest(c *gin.Context) {
	userID, _, _ := caller(c)
	tr, err := h.store.CurrentTrialRequest(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err, "current trial request")
		return
	}
	if tr == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no active trial request"})
		return
	}
	c.JSON(http.StatusOK, toTrialRequestView(tr))
}

// MyTrialRequests lists the student's requests.
// GET /api/trial-requests/mine
func (h *Handlers) MyTrialRequests(c *gin.Context) {
	userID, _, _ := caller(c)
	reqs, err := h.store.TrialRequestsByStudent(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err, "list trial requests")
		return
	}
	c.JSON(http.StatusOK, trialRequestViews(reqs))
}

// MatchingTrialRequests lists pending requests in the tutor's subjects.
// GET /api/trial-requests/matching
func (h *Handlers) MatchingTrialRequests(c *gin.Context) {
	userID, _, _ := caller(c)
	user, err := h.store.UserByID(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err, "lookup tutor")
		return
	}
	pending, err := h.store.PendingTrialRequests(c.Request.Context())
	if err != nil {
		h.fail(c, err, "list trial requests")
		return
	}

	subjects := make(map[string]bool)
	if user != nil {
		for _, s := range user.Subjects {
			subjects[s] = true
		}
	}
	matching := make([]*TrialRequest, 0, len(pending))
	for _, r := range pending {
		if subjects[r.Subject] {
			matching = append(matching, r)
		}
	}
	c.JSON(http.StatusOK, trialRequestViews(matching))
}

// AvailableTrialRequests lists every pending request.
// GET /api/trial-requests/available
func (h *Handlers) AvailableTrialRequests(c *gin.Context) {
	reqs, err := h.store.PendingTrialRequests(c.Request.Context())
	if err != nil {
		h.fail(c, err, "list trial requests")
		return
	}
	c.JSON(http.StatusOK, trialRequestViews(reqs))
}

// AcceptTrialRequestRequest names the request a tutor claims.
type AcceptTrialRequestRequest struct {
	RequestID string `json:"requestId" binding:"required"`
}

// AcceptTrialRequest claims a pending request for the calling tutor: a chat
// is opened, the student is notified, and the rest of the tutors see the
// request disappear.
// POST /api/trial-requests/accept
func (h *Handlers) AcceptTrialRequest(c *gin.Context) {
	userID, _, role := caller(c)
	if role != string(auth.RoleTutor) {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "only tutors accept trial requests"})
		return
	}
	var req AcceptTrialRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	tr, err := h.store.TrialRequestByID(c.Request.Context(), req.RequestID)
	if err != nil {
		h.fail(c, err, "lookup trial request")
		return
	}
	if tr == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "trial request not found"})
		return
	}
	if tr.Status != TrialPending {
		c.JSON(http.StatusConflict, ErrorResponse{Error: "trial request already taken"})
		return
	}

	chat := &Chat{
		ID:        uuid.NewString(),
		StudentID: tr.StudentID,
		TutorID:   userID,
	}
	if err := h.store.CreateChat(c.Request.Context(), chat); err != nil {
		h.fail(c, err, "create chat")
		return
	}
	if err := h.store.AcceptTrialRequest(c.Request.Context(), tr.ID, userID, chat.ID); err != nil {
		h.fail(c, err, "accept trial request")
		return
	}

	h.hub.EmitToUsers(string(realtime.EventTrialRequestAccepted), realtime.TrialRequestData{RequestID: tr.ID}, tr.StudentID, userID)
	h.hub.EmitToAll(string(realtime.EventTrialRequestTaken), realtime.TrialRequestData{RequestID: tr.ID})
	c.Status(http.StatusNoContent)
}

// ==== sessions ====

type sessionView struct {
	ID             string    `json:"_id"`
	ChatID         string    `json:"chatId"`
	TrialRequestID string    `json:"trialRequestId,omitempty"`
	TutorID        string    `json:"tutorId"`
	StudentID      string    `json:"studentId"`
	Status         string    `json:"status"`
	StartTime      time.Time `json:"startTime"`
	EndTime        time.Time `json:"endTime"`
}

func toSessionView(s *Session) sessionView {
	return sessionView{
		ID:             s.ID,
		ChatID:         s.ChatID,
		TrialRequestID: s.TrialRequestID,
		TutorID:        s.TutorID,
		StudentID:      s.StudentID,
		Status:         s.Status,
		StartTime:      s.StartTime,
		EndTime:        s.EndTime,
	}
}

// ListSessions returns the caller's sessions.
// GET /api/sessions
func (h *Handlers) ListSessions(c *gin.Context) {
	userID, _, _ := caller(c)
	sessions, err := h.store.SessionsByUser(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err, "list sessions")
		return
	}
	views := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, toSessionView(s))
	}
	c.JSON(http.StatusOK, views)
}

// TrialSession returns the session spawned by a trial request or 404.
// GET /api/trial-sessions/:requestID
func (h *Handlers) TrialSession(c *gin.Context) {
	session, err := h.store.SessionByTrialRequest(c.Request.Context(), c.Param("requestID"))
	if err != nil {
		h.fail(c, err, "lookup trial session")
		return
	}
	if session == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no session for trial request"})
		return
	}
	c.JSON(http.StatusOK, toSessionView(session))
}

// CompleteSession marks a session completed so the feedback flow can run.
// The originating proposal moves to COMPLETED and both participants are
// notified directly, since neither needs to be in the chat room to care.
// POST /api/sessions/:id/complete
func (h *Handlers) CompleteSession(c *gin.Context) {
	session, ok := h.participantSession(c)
	if !ok {
		return
	}
	if session.Status == SessionCompleted {
		c.JSON(http.StatusConflict, ErrorResponse{Error: "session already completed"})
		return
	}
	if err := h.store.UpdateSessionStatus(c.Request.Context(), session.ID, SessionCompleted); err != nil {
		h.fail(c, err, "complete session")
		return
	}

	messageID := ""
	if msg, err := h.store.ProposalMessageBySession(c.Request.Context(), session.ID); err == nil && msg != nil {
		if err := h.store.UpdateProposal(c.Request.Context(), msg.ID, ProposalCompleted, session.ID); err != nil {
			h.fail(c, err, "complete proposal")
			return
		}
		messageID = msg.ID
	}

	h.hub.EmitToUsers(string(realtime.EventProposalUpdated), realtime.ProposalUpdatedData{
		MessageID: messageID,
		ChatID:    session.ChatID,
		Status:    ProposalCompleted,
		SessionID: session.ID,
	}, session.StudentID, session.TutorID)
	c.Status(http.StatusNoContent)
}

// ==== feedback and reviews ====

type feedbackView struct {
	ID           string    `json:"_id"`
	SessionID    string    `json:"sessionId"`
	TutorID      string    `json:"tutorId"`
	Rating       int       `json:"rating"`
	FeedbackText string    `json:"feedbackText,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

type reviewView struct {
	ID        string         `json:"_id"`
	SessionID string         `json:"sessionId"`
	StudentID string         `json:"studentId"`
	Ratings   map[string]int `json:"ratings"`
	Comment   string         `json:"comment,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// SessionFeedback returns the tutor feedback for a session or 404.
// GET /api/sessions/:id/feedback
func (h *Handlers) SessionFeedback(c *gin.Context) {
	session, ok := h.participantSession(c)
	if !ok {
		return
	}
	fb, err := h.store.FeedbackBySession(c.Request.Context(), session.ID)
	if err != nil {
		h.fail(c, err, "lookup feedback")
		return
	}
	if fb == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no feedback"})
		return
	}
	c.JSON(http.StatusOK, feedbackView{
		ID: fb.ID, SessionID: fb.SessionID, TutorID: fb.TutorID,
		Rating: fb.Rating, FeedbackText: fb.FeedbackText, CreatedAt: fb.CreatedAt,
	})
}

// SubmitFeedbackRequest is the feedback body.
type SubmitFeedbackRequest struct {
	Rating       int    `json:"rating" binding:"required,min=1,max=5"`
	FeedbackText string `json:"feedbackText"`
}

// SubmitFeedback records tutor feedback for a completed session.
// POST /api/sessions/:id/feedback
func (h *Handlers) SubmitFeedback(c *gin.Context) {
	session, ok := h.participantSession(c)
	if !ok {
		return
	}
	userID, _, role := caller(c)
	if role != string(auth.RoleTutor) {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "only tutors submit feedback"})
		return
	}
	if session.Status != SessionCompleted {
		c.JSON(http.StatusConflict, ErrorResponse{Error: "session is not completed"})
		return
	}
	var req SubmitFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	fb := &Feedback{
		ID:           uuid.NewString(),
		SessionID:    session.ID,
		TutorID:      userID,
		Rating:       req.Rating,
		FeedbackText: req.FeedbackText,
	}
	if err := h.store.SaveFeedback(c.Request.Context(), fb); err != nil {
		h.fail(c, err, "save feedback")
		return
	}

	h.hub.EmitToUsers(string(realtime.EventFeedbackSubmitted), realtime.FeedbackSubmittedData{
		SessionID:  session.ID,
		ChatID:     session.ChatID,
		FeedbackID: fb.ID,
	}, session.StudentID, session.TutorID)
	c.Status(http.StatusCreated)
}

// SessionReview returns the student review for a session or 404.
// GET /api/sessions/:id/review
func (h *Handlers) SessionReview(c *gin.Context) {
	session, ok := h.participantSession(c)
	if !ok {
		return
	}
	rev, err := h.store.ReviewBySession(c.Request.Context(), session.ID)
	if err != nil {
		h.fail(c, err, "lookup review")
		return
	}
	if rev == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no review"})
		return
	}
	c.JSON(http.StatusOK, reviewView{
		ID: rev.ID, SessionID: rev.SessionID, StudentID: rev.StudentID,
		Ratings: rev.Ratings, Comment: rev.Comment, CreatedAt: rev.CreatedAt,
	})
}

// SubmitReviewRequest is the review body.
type SubmitReviewRequest struct {
	Ratings map[string]int `json:"ratings" binding:"required"`
	Comment string         `json:"comment"`
}

// SubmitReview records the student's review once tutor feedback exists.
// POST /api/sessions/:id/review
func (h *Handlers) SubmitReview(c *gin.Context) {
	session, ok := h.participantSession(c)
	if !ok {
		return
	}
	userID, _, role := caller(c)
	if role != string(auth.RoleStudent) {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "only students submit reviews"})
		return
	}
	fb, err := h.store.FeedbackBySession(c.Request.Context(), session.ID)
	if err != nil {
		h.fail(c, err, "lookup feedback")
		return
	}
	if fb == nil {
		c.JSON(http.StatusConflict, ErrorResponse{Error: "tutor feedback not submitted yet"})
		return
	}
	var req SubmitReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	rev := &Review{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		StudentID: userID,
		Ratings:   req.Ratings,
		Comment:   req.Comment,
	}
	if err := h.store.SaveReview(c.Request.Context(), rev); err != nil {
		h.fail(c, err, "save review")
		return
	}

	h.hub.EmitToUsers(string(realtime.EventStudentReviewSubmitted), realtime.StudentReviewSubmittedData{
		SessionID: session.ID,
		ChatID:    session.ChatID,
		ReviewID:  rev.ID,
	}, session.StudentID, session.TutorID)
	c.Status(http.StatusCreated)
}

// SessionCallToken mints media join credentials for a session participant.
// GET /api/sessions/:id/call-token
func (h *Handlers) SessionCallToken(c *gin.Context) {
	session, ok := h.participantSession(c)
	if !ok {
		return
	}
	userID, name, _ := caller(c)
	info, err := h.tokens.Issue(session.ID, userID, name)
	if err != nil {
		h.fail(c, err, "issue call token")
		return
	}
	c.JSON(http.StatusOK, info)
}

// ==== helpers ====

// memberChat loads the chat from the :id param and rejects non-members.
func (h *Handlers) memberChat(c *gin.Context) (*Chat, bool) {
	chat, err := h.store.ChatByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "lookup chat")
		return nil, false
	}
	if chat == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "chat not found"})
		return nil, false
	}
	userID, _, _ := caller(c)
	if chat.StudentID != userID && chat.TutorID != userID {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not a chat participant"})
		return nil, false
	}
	return chat, true
}

// participantSession loads the session from the :id param and rejects
// non-participants.
func (h *Handlers) participantSession(c *gin.Context) (*Session, bool) {
	session, err := h.store.SessionByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "lookup session")
		return nil, false
	}
	if session == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "session not found"})
		return nil, false
	}
	userID, _, _ := caller(c)
	if session.StudentID != userID && session.TutorID != userID {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not a session participant"})
		return nil, false
	}
	return session, true
}

func (h *Handlers) fail(c *gin.Context, err error, msg string) {
	h.log.Error().Err(err).Str("path", c.Request.URL.Path).Msg(msg)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
}
