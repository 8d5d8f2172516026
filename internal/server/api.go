package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/feedmeta/feedmeta/internal/core"
	"github.com/feedmeta/feedmeta/internal/core/engine"
	apperrors "github.com/feedmeta/feedmeta/internal/errors"
)

// maxBodyBytes bounds request bodies; imports of MaxImportEntries entries fit well below it.
const maxBodyBytes = 8 << 20

// API is the scheduler surface the HTTP layer serves. *engine.Scheduler
// satisfies it.
type API interface {
	GetStatus(ctx context.Context) (engine.Status, error)
	RequestEntities(ctx context.Context, keys []string) (map[string]engine.EntityResult, error)
	SaveSettings(ctx context.Context, patch map[string]any) (core.Settings, error)
	ClearCache(ctx context.Context) error
	ImportCache(ctx context.Context, payload any) (int, error)
	ExportCache(ctx context.Context) (map[string]core.CacheEntry, error)
	Notifier() *engine.Notifier
}

var _ API = (*engine.Scheduler)(nil)

type entitiesRequest struct {
	Keys []string `json:"keys"`
}

type entitiesResponse struct {
	Results map[string]engine.EntityResult `json:"results"`
}

type settingsResponse struct {
	Settings core.Settings `json:"settings"`
}

type importRequest struct {
	Users any `json:"users"`
}

type importResponse struct {
	Imported int `json:"imported"`
}

type exportResponse struct {
	Users map[string]core.CacheEntry `json:"users"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.api.GetStatus(r.Context())
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request) {
	var req entitiesRequest
	if !decodeBody(w, r, &req) {
		return
	}
	results, err := s.api.RequestEntities(r.Context(), req.Keys)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if results == nil {
		results = map[string]engine.EntityResult{}
	}
	writeJSON(w, http.StatusOK, entitiesResponse{Results: results})
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	var patch map[string]any
	if !decodeBody(w, r, &patch) {
		return
	}
	settings, err := s.api.SaveSettings(r.Context(), patch)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settingsResponse{Settings: settings})
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	if err := s.api.ClearCache(r.Context()); err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if !decodeBody(w, r, &req) {
		return
	}
	n, err := s.api.ImportCache(r.Context(), req.Users)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, importResponse{Imported: n})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	users, err := s.api.ExportCache(r.Context())
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if users == nil {
		users = map[string]core.CacheEntry{}
	}
	writeJSON(w, http.StatusOK, exportResponse{Users: users})
}

// decodeBody reports false after answering the request with an
// INVALID_INPUT envelope.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(body).Decode(dst)
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) {
		HandleError(w, r, apperrors.NewInvalidInputError("Request body is required"))
		return false
	}
	HandleError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "Request body is not valid JSON"))
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
