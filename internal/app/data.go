package app

import (
	"errors"
	"net/http"
	"strconv"

	oni "github.com/onios/oni"
)

// --- memories ---

func (s *Server) handleMemoryStore(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content  string            `json:"content"`
		Category string            `json:"category"`
		Tags     []string          `json:"tags"`
		Metadata map[string]string `json:"metadata"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, errors.New("content is required"))
		return
	}

	mem, err := s.memory.Store(r.Context(), req.Content, req.Category, req.Tags, req.Metadata)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, mem)
}

func (s *Server) handleMemoryList(w http.ResponseWriter, r *http.Request) {
	mems, err := s.memory.List(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, mems)
}

func (s *Server) handleMemorySearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query    string `json:"query"`
		K        int    `json:"k"`
		Category string `json:"category"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, errors.New("query is required"))
		return
	}
	if req.K <= 0 {
		req.K = 5
	}

	hits, err := s.memory.Search(r.Context(), req.Query, req.K, req.Category)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, hits)
}

func (s *Server) handleMemoryDelete(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.memory.Delete(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, errors.New("memory not found"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// --- knowledge ---

func (s *Server) handleKnowledgeUpsert(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key      string `json:"key"`
		Value    string `json:"value"`
		Category string `json:"category"`
		Source   string `json:"source"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Key == "" {
		writeError(w, http.StatusBadRequest, errors.New("key is required"))
		return
	}

	entry, err := s.knowledge.Upsert(r.Context(), req.Key, req.Value, req.Category, req.Source)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleKnowledgeList(w http.ResponseWriter, r *http.Request) {
	entries, err := s.knowledge.List(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleKnowledgeDelete(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.knowledge.Delete(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, errors.New("knowledge entry not found"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// --- personality ---

func (s *Server) handlePersonalityGet(w http.ResponseWriter, r *http.Request) {
	p, err := s.knowledge.Personality(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handlePersonalitySet(w http.ResponseWriter, r *http.Request) {
	var p oni.PersonalityConfig
	if err := readJSON(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.knowledge.SetPersonality(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- conversations ---

func (s *Server) handleConvoCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	conv, err := s.convos.Create(r.Context(), req.Title)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (s *Server) handleConvoList(w http.ResponseWriter, r *http.Request) {
	convs, err := s.convos.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, convs)
}

func (s *Server) handleConvoGet(w http.ResponseWriter, r *http.Request) {
	conv, found, err := s.convos.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, errors.New("conversation not found"))
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleConvoMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.convos.Messages(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	// Optional tail limit.
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 && n < len(msgs) {
		msgs = msgs[len(msgs)-n:]
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleConvoDelete(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.convos.Delete(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, errors.New("conversation not found"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
