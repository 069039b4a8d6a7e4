// ABOUTME: REST API server for the staff dashboard and admin tooling
// ABOUTME: Route registration, auth middleware and JSON helpers

package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bosar/bosar-gateway/internal/auth"
	"github.com/bosar/bosar-gateway/internal/knowledge"
	"github.com/bosar/bosar-gateway/internal/store"
)

// Escalations is the takeover surface the API drives.
type Escalations interface {
	Takeover(ctx context.Context, conversationID, agentID, reason string) error
}

// Knowledge is the retrieval surface the API exposes.
type Knowledge interface {
	Search(ctx context.Context, botConfigID, query string, limit int, threshold float64) []knowledge.Result
	Rebuild(ctx context.Context, botConfigID string) (*knowledge.RebuildStats, error)
}

// Conversations is the lifecycle surface the API drives.
type Conversations interface {
	MarkPending(ctx context.Context, id string) error
}

// Options tunes API behavior.
type Options struct {
	TokenTTL           time.Duration
	RetrievalLimit     int
	RetrievalThreshold float64
}

// Server serves the REST API.
type Server struct {
	store         store.Store
	conversations Conversations
	escalations   Escalations
	knowledge     Knowledge
	verifier      *auth.JWTVerifier
	opts          Options
	logger        *slog.Logger
}

// NewServer creates the API server.
func NewServer(st store.Store, convs Conversations, esc Escalations, kn Knowledge, verifier *auth.JWTVerifier, opts Options, logger *slog.Logger) *Server {
	return &Server{
		store:         st,
		conversations: convs,
		escalations:   esc,
		knowledge:     kn,
		verifier:      verifier,
		opts:          opts,
		logger:        logger.With("component", "httpapi"),
	}
}

// RegisterRoutes attaches all API routes to the mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)

	mux.HandleFunc("GET /api/conversations", s.requireAuth(s.handleListConversations))
	mux.HandleFunc("GET /api/conversations/{id}", s.requireAuth(s.handleGetConversation))
	mux.HandleFunc("PATCH /api/conversations/{id}", s.requireAuth(s.handlePatchConversation))
	mux.HandleFunc("POST /api/conversations/{id}/takeover", s.requireAuth(s.handleTakeover))
	mux.HandleFunc("GET /api/conversations/{id}/messages", s.requireAuth(s.handleListMessages))
	mux.HandleFunc("DELETE /api/messages/{id}", s.requireAuth(s.handleDeleteMessage))

	mux.HandleFunc("GET /api/bot-configs", s.requireAuth(s.handleListBotConfigs))
	mux.HandleFunc("GET /api/bot-configs/{id}", s.requireAuth(s.handleGetBotConfig))
	mux.HandleFunc("POST /api/knowledge/search", s.requireAuth(s.handleKnowledgeSearch))
	mux.HandleFunc("POST /api/knowledge/rebuild/{botConfigId}", s.requireAuth(s.handleKnowledgeRebuild))
}

type contextKey string

const identityKey contextKey = "identity"

// requireAuth validates the bearer token and stashes the identity in the
// request context.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			s.sendError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		identity, err := s.verifier.Verify(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			s.sendError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, identity)
		next(w, r.WithContext(ctx))
	}
}

// identityFrom returns the authenticated identity set by requireAuth.
func identityFrom(r *http.Request) *auth.Identity {
	identity, _ := r.Context().Value(identityKey).(*auth.Identity)
	return identity
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encoding response failed", "error", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
