package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xhad/readaloud/internal/models"
	"github.com/xhad/readaloud/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
}

type articlesResponse struct {
	Articles []models.ArticleSummary `json:"articles"`
}

type searchResponse struct {
	Matches []models.ChunkMatch `json:"matches"`
}

var audioTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".opus": "audio/ogg",
	".flac": "audio/flac",
	".aac":  "audio/aac",
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		s.writeError(w, r, fmt.Errorf("%w: url", types.ErrMissingParameter))
		return
	}

	record, err := s.converter.Convert(r.Context(), url, nil)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleListArticles(w http.ResponseWriter, r *http.Request) {
	articles, err := s.retriever.List()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if articles == nil {
		articles = []models.ArticleSummary{}
	}
	writeJSON(w, http.StatusOK, articlesResponse{Articles: articles})
}

func (s *Server) handleArticleMetadata(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Query().Get("path")
	if p == "" {
		s.writeError(w, r, fmt.Errorf("%w: path", types.ErrMissingParameter))
		return
	}

	record, err := s.retriever.Metadata(p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	title := q.Get("title")
	rawIndex := q.Get("chunk_index")
	if title == "" || rawIndex == "" {
		s.writeError(w, r, fmt.Errorf("%w: title and chunk_index", types.ErrMissingParameter))
		return
	}
	index, err := strconv.Atoi(rawIndex)
	if err != nil || index < 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "chunk_index must be a non-negative integer"})
		return
	}

	f, err := s.retriever.OpenAudio(title, index)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", audioContentType(f.Name()))
	http.ServeContent(w, r, filepath.Base(f.Name()), info.ModTime(), f)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := strings.TrimSpace(q.Get("q"))
	if query == "" {
		s.writeError(w, r, fmt.Errorf("%w: q", types.ErrMissingParameter))
		return
	}
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be between 1 and 100"})
			return
		}
		limit = n
	}

	matches, err := s.retriever.Search(r.Context(), query, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if matches == nil {
		matches = []models.ChunkMatch{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Matches: matches})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrMissingParameter):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrIndexDisabled):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func audioContentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if t, ok := audioTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
