// Package api is the request/response surface: wiki reads and writes, agent
// creation, world state and operational endpoints.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"clawverse.ai/internal/persistence/mirror"
	"clawverse.ai/internal/protocol"
	"clawverse.ai/internal/sim/world"
	"clawverse.ai/internal/wiki"
)

const maxBodyBytes = 1 << 20

type Options struct {
	Store  wiki.Store
	World  *world.World
	Logger *zap.Logger
	// Mirror is optional; its counters are exported on /metrics when set.
	Mirror *mirror.Mirror
	// PublicURL prefixes the links in agent registration documents.
	PublicURL string
}

type Server struct {
	store     wiki.Store
	world     *world.World
	log       *zap.Logger
	mirror    *mirror.Mirror
	publicURL string
}

func NewServer(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		store:     opts.Store,
		world:     opts.World,
		log:       log.Named("api"),
		mirror:    opts.Mirror,
		publicURL: strings.TrimRight(opts.PublicURL, "/"),
	}
}

// Register mounts every route on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("GET /api/state", s.handleState)

	mux.HandleFunc("GET /api/wiki", s.handleListWiki)
	mux.HandleFunc("POST /api/wiki", s.handleCreateArticle)
	mux.HandleFunc("GET /api/wiki/leaderboard", s.handleLeaderboard)
	mux.HandleFunc("GET /api/wiki/categories", s.handleCategories)
	mux.HandleFunc("GET /api/wiki/activity", s.handleActivity)
	mux.HandleFunc("GET /api/wiki/agent/{agentId}", s.handleAgentArticles)
	mux.HandleFunc("GET /api/wiki/{slug}", s.handleGetArticle)
	mux.HandleFunc("PUT /api/wiki/{slug}", s.handleUpdateArticle)
	mux.HandleFunc("POST /api/wiki/{slug}/comments", s.handleAddComment)

	mux.HandleFunc("POST /api/agents", s.handleCreateAgent)
	mux.HandleFunc("GET /api/agents/recent", s.handleRecentAgents)
	mux.HandleFunc("GET /api/agents/{id}/registration", s.handleRegistration)
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func writeError(rw http.ResponseWriter, status int, code, msg string) {
	writeJSON(rw, status, errorBody{Error: msg, Code: code})
}

// writeStoreError maps wiki sentinels onto HTTP statuses. Anything unrecognised
// is logged and reported as a 500.
func (s *Server) writeStoreError(rw http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, wiki.ErrNotFound):
		writeError(rw, http.StatusNotFound, protocol.ErrNotFound, "Article not found")
	case errors.Is(err, wiki.ErrValidation):
		writeError(rw, http.StatusBadRequest, protocol.ErrBadRequest, err.Error())
	case errors.Is(err, wiki.ErrDuplicate):
		writeError(rw, http.StatusConflict, protocol.ErrConflict, err.Error())
	default:
		s.log.Error("store request failed", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
		writeError(rw, http.StatusInternalServerError, protocol.ErrInternal, "internal error")
	}
}

func decodeBody(rw http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(rw, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(rw, http.StatusBadRequest, protocol.ErrBadRequest, "invalid JSON body")
		return false
	}
	return true
}
