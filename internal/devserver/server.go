package devserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tutorlink/tutorlink-client/internal/auth"
	"github.com/tutorlink/tutorlink-client/internal/config"
)

// Server is the development backend emulator: REST API plus realtime push,
// backed by a local sqlite file.
type Server struct {
	httpServer *http.Server
	store      Store
	log        *zerolog.Logger
}

// New builds the emulator from its configuration.
func New(cfg config.DevServer, logger *zerolog.Logger) (*Server, error) {
	store, err := NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	jwtConfig := &auth.JWTConfig{
		Secret: []byte(cfg.JWTSecret),
		Issuer: "tutorlink-dev",
		TTL:    24 * time.Hour,
	}
	hub := NewHub(logger)
	tokens := NewCallTokenIssuer(cfg.LiveKitAPIKey, cfg.LiveKitAPISecret, cfg.LiveKitURL)
	handlers := NewHandlers(store, hub, tokens, jwtConfig, logger)

	router := NewRouter(handlers, hub, jwtConfig, logger)
	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		store: store,
		log:   logger,
	}, nil
}

// NewRouter assembles the gin router with every route the client consumes.
func NewRouter(h *Handlers, hub *Hub, jwt *auth.JWTConfig, logger *zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	router.GET("/ws", gin.WrapH(newWSHandler(hub, jwt, logger)))

	api := router.Group("/api")
	api.POST("/register", h.Register)
	api.POST("/login", h.Login)

	authed := api.Group("", AuthMiddleware(jwt, logger))
	authed.GET("/chats", h.ListChats)
	authed.GET("/chats/:id/messages", h.ListMessages)
	authed.POST("/chats/:id/messages", h.SendMessage)
	authed.POST("/chats/:id/proposals", h.SendProposal)
	authed.POST("/proposals/:messageID", h.UpdateProposal)

	authed.GET("/trial-requests/current", h.CurrentTrialRequest)
	authed.GET("/trial-requests/mine", h.MyTrialRequests)
	authed.GET("/trial-requests/matching", h.MatchingTrialRequests)
	authed.GET("/trial-requests/available", h.AvailableTrialRequests)
	authed.POST("/trial-requests", h.CreateTrialRequest)
	authed.POST("/trial-requests/accept", h.AcceptTrialRequest)

	authed.GET("/sessions", h.ListSessions)
	authed.GET("/trial-sessions/:requestID", h.TrialSession)
	authed.POST("/sessions/:id/complete", h.CompleteSession)
	authed.GET("/sessions/:id/feedback", h.SessionFeedback)
	authed.POST("/sessions/:id/feedback", h.SubmitFeedback)
	authed.GET("/sessions/:id/review", h.SessionReview)
	authed.POST("/sessions/:id/review", h.SubmitReview)
	authed.GET("/sessions/:id/call-token", h.SessionCallToken)

	return router
}

// Run serves until the context is cancelled or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.httpServer.Addr).Msg("devserver listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		s.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.log.Info().Msg("shutting down devserver")
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.cleanup()
			return err
		}
		s.cleanup()
		return <-serverErr
	}
}

func (s *Server) cleanup() {
	if err := s.store.Close(); err != nil {
		s.log.Warn().Err(err).Msg("failed to close store")
	}
}
