// Package app exposes the orchestration core over HTTP for the desktop
// shell: turn streaming via SSE, plus plain JSON endpoints for auth,
// memories, knowledge, and conversations. It is pure plumbing; it never
// executes tools.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	oni "github.com/onios/oni"
	"github.com/onios/oni/auth"
)

// TurnEngine is the slice of the engine the server needs.
type TurnEngine interface {
	StartTurn(ctx context.Context, conversationID, userMessage string, tools []oni.ToolDefinition, env string, ch chan<- oni.Event) (oni.TurnResult, error)
	ContinueTurn(ctx context.Context, conversationID string, results []oni.ToolResult, tools []oni.ToolDefinition, env string, ch chan<- oni.Event) (oni.TurnResult, error)
}

// MemoryStore is the memory surface exposed over HTTP.
type MemoryStore interface {
	Store(ctx context.Context, content, category string, tags []string, metadata map[string]string) (oni.Memory, error)
	Search(ctx context.Context, query string, k int, category string) ([]oni.ScoredMemory, error)
	List(ctx context.Context, category string) ([]oni.Memory, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// KnowledgeStore is the knowledge surface exposed over HTTP.
type KnowledgeStore interface {
	Upsert(ctx context.Context, key, value, category, source string) (oni.KnowledgeEntry, error)
	List(ctx context.Context, category string) ([]oni.KnowledgeEntry, error)
	Delete(ctx context.Context, id string) (bool, error)
	Personality(ctx context.Context) (oni.PersonalityConfig, error)
	SetPersonality(ctx context.Context, p oni.PersonalityConfig) error
}

// ConversationStore is the conversation surface exposed over HTTP.
type ConversationStore interface {
	Create(ctx context.Context, title string) (oni.Conversation, error)
	List(ctx context.Context) ([]oni.Conversation, error)
	Get(ctx context.Context, id string) (oni.Conversation, bool, error)
	Messages(ctx context.Context, conversationID string) ([]oni.Message, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// AuthManager is the credential surface exposed over HTTP.
type AuthManager interface {
	BeginAuth(ctx context.Context) (auth.BeginAuthResult, error)
	CompleteAuth(ctx context.Context, callbackURL string) (oni.Account, error)
	SetAPIKey(ctx context.Context, key string) error
	Refresh(ctx context.Context) (oni.Credential, error)
	Logout(ctx context.Context) error
	Status(ctx context.Context) (auth.Status, error)
}

// Deps holds injected dependencies for the Server.
type Deps struct {
	Engine        TurnEngine
	Memory        MemoryStore
	Knowledge     KnowledgeStore
	Conversations ConversationStore
	Auth          AuthManager
	Logger        *slog.Logger
}

// Server is the oni HTTP API.
type Server struct {
	engine    TurnEngine
	memory    MemoryStore
	knowledge KnowledgeStore
	convos    ConversationStore
	auth      AuthManager
	logger    *slog.Logger
}

// New creates a Server.
func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		engine:    deps.Engine,
		memory:    deps.Memory,
		knowledge: deps.Knowledge,
		convos:    deps.Conversations,
		auth:      deps.Auth,
		logger:    logger,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/oni/status", s.handleStatus)

	mux.HandleFunc("POST /api/oni/turn", s.handleTurn)
	mux.HandleFunc("POST /api/oni/turn/continue", s.handleContinue)

	mux.HandleFunc("POST /api/oni/auth/begin", s.handleAuthBegin)
	mux.HandleFunc("POST /api/oni/auth/complete", s.handleAuthComplete)
	mux.HandleFunc("POST /api/oni/auth/apikey", s.handleAuthAPIKey)
	mux.HandleFunc("POST /api/oni/auth/refresh", s.handleAuthRefresh)
	mux.HandleFunc("POST /api/oni/auth/logout", s.handleAuthLogout)
	mux.HandleFunc("GET /api/oni/auth/status", s.handleAuthStatus)

	mux.HandleFunc("POST /api/oni/memories", s.handleMemoryStore)
	mux.HandleFunc("GET /api/oni/memories", s.handleMemoryList)
	mux.HandleFunc("POST /api/oni/memories/search", s.handleMemorySearch)
	mux.HandleFunc("DELETE /api/oni/memories/{id}", s.handleMemoryDelete)

	mux.HandleFunc("PUT /api/oni/knowledge", s.handleKnowledgeUpsert)
	mux.HandleFunc("GET /api/oni/knowledge", s.handleKnowledgeList)
	mux.HandleFunc("DELETE /api/oni/knowledge/{id}", s.handleKnowledgeDelete)

	mux.HandleFunc("GET /api/oni/personality", s.handlePersonalityGet)
	mux.HandleFunc("PUT /api/oni/personality", s.handlePersonalitySet)

	mux.HandleFunc("POST /api/oni/conversations", s.handleConvoCreate)
	mux.HandleFunc("GET /api/oni/conversations", s.handleConvoList)
	mux.HandleFunc("GET /api/oni/conversations/{id}", s.handleConvoGet)
	mux.HandleFunc("GET /api/oni/conversations/{id}/messages", s.handleConvoMessages)
	mux.HandleFunc("DELETE /api/oni/conversations/{id}", s.handleConvoDelete)

	return mux
}

// Run serves the API until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler()}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("oni api listening", "addr", addr)

	select {
	case <-ctx.Done():
		sdCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sdCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if s.auth != nil {
		if st, err := s.auth.Status(r.Context()); err == nil {
			resp["auth"] = st
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func readJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
