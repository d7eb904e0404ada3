// Package server provides the HTTP API for Kindred: chat (plain and SSE
// streaming), user management, and conversation access.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kindred-finance/kindred/internal/auth"
	"github.com/kindred-finance/kindred/internal/config"
	"github.com/kindred-finance/kindred/internal/index"
	"github.com/kindred-finance/kindred/internal/rag"
	"github.com/kindred-finance/kindred/internal/storage"
	"github.com/kindred-finance/kindred/internal/websearch"
)

// requestTimeout bounds non-streaming handlers. Streaming chat is exempt by
// construction: the middleware timeout is generous enough for a full turn.
const requestTimeout = 300 * time.Second

// Server is the HTTP server for the Kindred API.
type Server struct {
	orchestrator *rag.Orchestrator
	index        *index.Index
	storage      storage.Storage
	verifier     auth.Verifier
	searcher     websearch.Searcher
	config       *config.Config
	logger       *zap.Logger
	server       *http.Server
}

// NewServer creates a server with the given dependencies. verifier and
// searcher may be nil; token auth and the web-search supplement are then
// disabled.
func NewServer(
	orchestrator *rag.Orchestrator,
	ix *index.Index,
	store storage.Storage,
	verifier auth.Verifier,
	searcher websearch.Searcher,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		orchestrator: orchestrator,
		index:        ix,
		storage:      store,
		verifier:     verifier,
		searcher:     searcher,
		config:       cfg,
		logger:       logger,
	}
}

// Router builds the chi router with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.Compress(5))

	r.Post("/api/chat", s.handleChat)
	r.Post("/api/chat/stream", s.handleChatStream)
	r.Post("/api/register", s.handleRegister)
	r.Post("/api/auth/callback", s.handleAuthCallback)
	r.Get("/api/user/me", s.handleCurrentUser)
	r.Get("/api/user/{id}", s.handleGetUser)
	r.Get("/api/conversation/{userID}/{conversationID}", s.handleGetConversation)
	r.Delete("/api/conversation/{userID}/{conversationID}", s.handleDeleteConversation)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)

	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
