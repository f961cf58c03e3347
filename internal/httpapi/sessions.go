package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"deepresearch/internal/session"

	"github.com/go-chi/chi/v5"
)

type createSessionRequest struct {
	Title string `json:"title"`
}

func (h Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
	}

	created, err := h.sessions.CreateSession(r.Context(), req.Title)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to create session")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"session": created})
}

func (h Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	includeArchived := r.URL.Query().Get("includeArchived") == "true"

	sessions, err := h.sessions.ListSessions(r.Context(), includeArchived)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to list sessions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (h Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	found, err := h.sessions.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if errors.Is(err, session.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "session does not exist")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to read session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": found})
}

type updateSessionRequest struct {
	Title      *string `json:"title"`
	IsArchived *bool   `json:"isArchived"`
}

func (h Handler) UpdateSession(w http.ResponseWriter, r *http.Request) {
	var req updateSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.Title == nil && req.IsArchived == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "nothing to update")
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	var (
		updated session.Session
		err     error
	)
	if req.Title != nil {
		if strings.TrimSpace(*req.Title) == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "title must not be blank")
			return
		}
		updated, err = h.sessions.RenameSession(r.Context(), sessionID, *req.Title)
	}
	if err == nil && req.IsArchived != nil {
		updated, err = h.sessions.SetArchived(r.Context(), sessionID, *req.IsArchived)
	}
	if errors.Is(err, session.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "session does not exist")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to update session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": updated})
}

func (h Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	err := h.sessions.DeleteSession(r.Context(), chi.URLParam(r, "sessionID"))
	if errors.Is(err, session.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "session does not exist")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to delete session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.sessions.ListMessages(r.Context(), chi.URLParam(r, "sessionID"))
	if errors.Is(err, session.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "session does not exist")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to list messages")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}
