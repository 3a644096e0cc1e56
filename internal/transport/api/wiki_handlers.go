package api

import (
	"net/http"
	"strconv"
	"strings"

	"clawverse.ai/internal/protocol"
	"clawverse.ai/internal/wiki"
)

const anonymousAuthor = "anonymous"

func (s *Server) handleListWiki(rw http.ResponseWriter, r *http.Request) {
	var (
		arts []wiki.Article
		err  error
	)
	if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
		arts, err = s.store.Search(r.Context(), q)
	} else {
		arts, err = s.store.List(r.Context())
	}
	if err != nil {
		s.writeStoreError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, nonNil(arts))
}

func (s *Server) handleGetArticle(rw http.ResponseWriter, r *http.Request) {
	a, err := s.store.Get(r.Context(), r.PathValue("slug"))
	if err != nil {
		s.writeStoreError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, a)
}

func (s *Server) handleCreateArticle(rw http.ResponseWriter, r *http.Request) {
	var in wiki.NewArticle
	if !decodeBody(rw, r, &in) {
		return
	}
	if strings.TrimSpace(in.Slug) == "" || strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Content) == "" {
		writeError(rw, http.StatusBadRequest, protocol.ErrBadRequest, "Missing required fields")
		return
	}
	if strings.TrimSpace(in.AuthorID) == "" {
		in.AuthorID = anonymousAuthor
	}
	a, err := s.store.Create(r.Context(), in)
	if err != nil {
		s.writeStoreError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusCreated, a)
}

type updateRequest struct {
	Content  string `json:"content"`
	EditorID string `json:"editorId"`
}

func (s *Server) handleUpdateArticle(rw http.ResponseWriter, r *http.Request) {
	var in updateRequest
	if !decodeBody(rw, r, &in) {
		return
	}
	if strings.TrimSpace(in.Content) == "" || strings.TrimSpace(in.EditorID) == "" {
		writeError(rw, http.StatusBadRequest, protocol.ErrBadRequest, "Missing content or editorId")
		return
	}
	a, err := s.store.Update(r.Context(), r.PathValue("slug"), in.Content, in.EditorID)
	if err != nil {
		s.writeStoreError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, a)
}

type commentRequest struct {
	Content  string `json:"content"`
	AuthorID string `json:"authorId"`
}

func (s *Server) handleAddComment(rw http.ResponseWriter, r *http.Request) {
	var in commentRequest
	if !decodeBody(rw, r, &in) {
		return
	}
	if strings.TrimSpace(in.Content) == "" {
		writeError(rw, http.StatusBadRequest, protocol.ErrBadRequest, "Missing content")
		return
	}
	if strings.TrimSpace(in.AuthorID) == "" {
		in.AuthorID = anonymousAuthor
	}
	c, err := s.store.AddComment(r.Context(), r.PathValue("slug"), in.Content, in.AuthorID)
	if err != nil {
		s.writeStoreError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusCreated, c)
}

func (s *Server) handleAgentArticles(rw http.ResponseWriter, r *http.Request) {
	out, err := s.store.AgentArticles(r.Context(), r.PathValue("agentId"))
	if err != nil {
		s.writeStoreError(rw, r, err)
		return
	}
	out.Created = nonNil(out.Created)
	out.Edited = nonNil(out.Edited)
	writeJSON(rw, http.StatusOK, out)
}

func (s *Server) handleCategories(rw http.ResponseWriter, r *http.Request) {
	cats, err := s.store.Categories(r.Context())
	if err != nil {
		s.writeStoreError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, nonNil(cats))
}

func (s *Server) handleLeaderboard(rw http.ResponseWriter, r *http.Request) {
	lb, err := s.store.Leaderboard(r.Context())
	if err != nil {
		s.writeStoreError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, nonNil(lb))
}

func (s *Server) handleActivity(rw http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(rw, http.StatusBadRequest, protocol.ErrBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}
	feed, err := s.store.RecentActivity(r.Context(), limit)
	if err != nil {
		s.writeStoreError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, nonNil(feed))
}

// nonNil makes empty results encode as [] rather than null.
func nonNil[T any](xs []T) []T {
	if xs == nil {
		return []T{}
	}
	return xs
}
