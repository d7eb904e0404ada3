package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kindred-finance/kindred/internal/models"
	"github.com/kindred-finance/kindred/internal/rag"
	"github.com/kindred-finance/kindred/internal/storage"
	"github.com/kindred-finance/kindred/internal/websearch"
)

// resolveUser identifies the caller: a valid bearer token wins, otherwise
// the user id carried in the request body is trusted (fallback mode for
// clients without auth).
func (s *Server) resolveUser(r *http.Request, requestUserID string) (*models.User, error) {
	if bearer := r.Header.Get("Authorization"); bearer != "" && s.verifier != nil {
		if identity, err := s.verifier.Verify(r.Context(), bearer); err == nil {
			if user, err := s.storage.GetUserByAuthSubject(r.Context(), identity.Subject); err == nil {
				return user, nil
			}
		}
		// Invalid token or unknown subject falls through to the id check.
	}

	id, err := strconv.ParseInt(requestUserID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid user_id %q", requestUserID)
	}
	user, err := s.storage.GetUser(r.Context(), id)
	if err != nil {
		return nil, fmt.Errorf("user %d: %w", id, err)
	}
	return user, nil
}

// buildTurn loads the stored history and assembles the turn for a chat
// request.
func (s *Server) buildTurn(r *http.Request, user *models.User, req *models.ChatRequest) rag.Turn {
	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.New().String()
	}
	userID := strconv.FormatInt(user.ID, 10)

	history, err := s.storage.GetConversation(r.Context(), conversationID, userID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.logger.Warn("load conversation failed", zap.Error(err))
	}

	var profile *models.UserProfile
	if !user.Profile.Empty() {
		p := user.Profile
		profile = &p
	}

	return rag.Turn{
		UserID:         userID,
		ConversationID: conversationID,
		Query:          req.Message,
		History:        history,
		Profile:        profile,
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := s.resolveUser(r, req.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "user not found")
		} else {
			s.respondError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	turn := s.buildTurn(r, user, &req)
	result := s.orchestrator.Respond(r.Context(), turn)

	// The knowledge base came up short: supplement with a web search and run
	// the turn once more with the formatted results.
	if result.RequiresWebSearch && s.searcher != nil && s.config.WebSearch.Enabled {
		s.logger.Info("supplementing with web search", zap.String("conversation_id", turn.ConversationID))
		if results := s.searcher.Search(r.Context(), req.Message, s.config.WebSearch.ResultCount); len(results) > 0 {
			turn.WebResults = websearch.FormatResults(results)
			result = s.orchestrator.Respond(r.Context(), turn)
		}
	}

	if result.Escalate {
		s.logger.Warn("escalation",
			zap.String("type", string(result.EscalationType)),
			zap.Int64("user_id", user.ID))
	}

	s.respondJSON(w, http.StatusOK, models.ChatResponse{
		Response:       result.Response,
		ConversationID: turn.ConversationID,
		Escalate:       result.Escalate,
		EscalationType: string(result.EscalationType),
	})
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := s.resolveUser(r, req.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "user not found")
		} else {
			s.respondError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	turn := s.buildTurn(r, user, &req)
	result := s.orchestrator.RespondStream(r.Context(), turn, func(chunk string) {
		s.writeEvent(w, flusher, models.StreamChunk{Chunk: chunk, Done: false})
	})

	if result.Escalate {
		s.logger.Warn("escalation",
			zap.String("type", string(result.EscalationType)),
			zap.Int64("user_id", user.ID))
	}

	escalate := result.Escalate
	s.writeEvent(w, flusher, models.StreamChunk{
		Done:           true,
		ConversationID: turn.ConversationID,
		Escalate:       &escalate,
		EscalationType: string(result.EscalationType),
	})
}

func (s *Server) writeEvent(w http.ResponseWriter, flusher http.Flusher, chunk models.StreamChunk) {
	payload, err := json.Marshal(chunk)
	if err != nil {
		s.logger.Error("marshal stream chunk", zap.Error(err))
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", payload)
	flusher.Flush()
}

type registerRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.Email == "" {
		s.respondError(w, http.StatusBadRequest, "name and email are required")
		return
	}

	id, err := s.storage.CreateUser(r.Context(), req.Name, req.Email, req.Phone)
	if err != nil {
		s.respondError(w, http.StatusConflict, "user already exists")
		return
	}
	user, err := s.storage.GetUser(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to load user")
		return
	}
	s.respondJSON(w, http.StatusOK, user)
}

type authCallbackRequest struct {
	Profile *models.UserProfile `json:"profile,omitempty"`
}

func (s *Server) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	if s.verifier == nil {
		s.respondError(w, http.StatusNotImplemented, "auth disabled")
		return
	}
	identity, err := s.verifier.Verify(r.Context(), r.Header.Get("Authorization"))
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	var req authCallbackRequest
	if r.Body != nil {
		// Body is optional; ignore decode errors for an empty body.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	id, err := s.storage.UpsertUserFromIdentity(r.Context(), identity.Subject, identity.Name, identity.Email)
	if err != nil {
		s.logger.Error("upsert user failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to save user")
		return
	}
	if req.Profile != nil && !req.Profile.Empty() {
		if err := s.storage.UpdateUserProfile(r.Context(), id, *req.Profile); err != nil {
			s.logger.Error("update profile failed", zap.Error(err))
		}
	}

	user, err := s.storage.GetUser(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to load user")
		return
	}
	s.respondJSON(w, http.StatusOK, user)
}

func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	if s.verifier == nil {
		s.respondError(w, http.StatusNotImplemented, "auth disabled")
		return
	}
	identity, err := s.verifier.Verify(r.Context(), r.Header.Get("Authorization"))
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	user, err := s.storage.GetUserByAuthSubject(r.Context(), identity.Subject)
	if errors.Is(err, storage.ErrNotFound) {
		// First sight of this identity: create the account on the fly.
		id, err := s.storage.UpsertUserFromIdentity(r.Context(), identity.Subject, identity.Name, identity.Email)
		if err != nil {
			s.respondError(w, http.StatusInternalServerError, "failed to save user")
			return
		}
		user, err = s.storage.GetUser(r.Context(), id)
		if err != nil {
			s.respondError(w, http.StatusInternalServerError, "failed to load user")
			return
		}
	} else if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to load user")
		return
	}
	s.respondJSON(w, http.StatusOK, user)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	user, err := s.storage.GetUser(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "user not found")
		return
	}
	s.respondJSON(w, http.StatusOK, user)
}

// authorizeConversationAccess checks that the bearer token belongs to the
// user in the path.
func (s *Server) authorizeConversationAccess(r *http.Request, pathUserID string) error {
	if s.verifier == nil {
		return errors.New("auth disabled")
	}
	identity, err := s.verifier.Verify(r.Context(), r.Header.Get("Authorization"))
	if err != nil {
		return err
	}
	user, err := s.storage.GetUserByAuthSubject(r.Context(), identity.Subject)
	if err != nil {
		return err
	}
	if strconv.FormatInt(user.ID, 10) != pathUserID {
		return errors.New("forbidden")
	}
	return nil
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	conversationID := chi.URLParam(r, "conversationID")

	if err := s.authorizeConversationAccess(r, userID); err != nil {
		s.respondError(w, http.StatusUnauthorized, "not authorized")
		return
	}

	messages, err := s.storage.GetConversation(r.Context(), conversationID, userID)
	if errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to load conversation")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"conversation_id": conversationID,
		"messages":        messages,
	})
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	conversationID := chi.URLParam(r, "conversationID")

	if err := s.authorizeConversationAccess(r, userID); err != nil {
		s.respondError(w, http.StatusUnauthorized, "not authorized")
		return
	}

	if err := s.storage.DeleteConversation(r.Context(), conversationID, userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "conversation not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, "failed to delete conversation")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	conversations, err := s.storage.CountConversations(r.Context())
	if err != nil {
		s.logger.Error("status: count conversations failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"passages":      s.index.Count(),
		"conversations": conversations,
		"chunk_size":    s.config.Chunking.Size,
		"chunk_overlap": s.config.Chunking.Overlap,
		"embedding":     s.config.Embedding.Provider,
		"generation":    s.config.Generation.Provider,
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
