package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"deepresearch/internal/research"
	"deepresearch/internal/session"

	"github.com/go-chi/chi/v5"
)

type chatRequest struct {
	Message string `json:"message"`
	Source  string `json:"source"`
}

func parseRoute(raw string) (research.Route, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "auto":
		return research.RouteAuto, nil
	case "rag", "local", "documents":
		return research.RouteRAG, nil
	case "web":
		return research.RouteWeb, nil
	case "both", "all":
		return research.RouteBoth, nil
	default:
		return "", fmt.Errorf("unknown source %q", raw)
	}
}

func (h Handler) researchTimeout() time.Duration {
	if h.cfg.ResearchTimeoutSeconds <= 0 {
		return 3 * time.Minute
	}
	return time.Duration(h.cfg.ResearchTimeoutSeconds) * time.Second
}

// chatHistory converts prior messages into planner/synthesis context.
func chatHistory(messages []session.Message) []research.Turn {
	history := make([]research.Turn, 0, len(messages))
	for _, message := range messages {
		history = append(history, research.Turn{Role: message.Role, Content: message.Content})
	}
	return history
}

// PostMessage runs research synchronously and returns the persisted
// assistant message.
func (h Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "message is required")
		return
	}
	route, err := parseRoute(req.Source)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	history, err := h.sessions.ListMessages(r.Context(), sessionID)
	if errors.Is(err, session.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "session does not exist")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to load history")
		return
	}

	userMessage, err := h.sessions.InsertMessage(r.Context(), session.Message{
		SessionID: sessionID,
		Role:      "user",
		Content:   strings.TrimSpace(req.Message),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to persist message")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.researchTimeout())
	defer cancel()

	result, err := h.researcher.Run(ctx, research.Request{
		Query:      userMessage.Content,
		History:    chatHistory(history),
		SourceHint: route,
	})
	if err != nil {
		log.Printf("research run failed: session_id=%s err=%v", sessionID, err)
		writeError(w, http.StatusBadGateway, "research_failed", "research run failed")
		return
	}

	assistantMessage, err := h.sessions.InsertMessage(r.Context(), session.Message{
		SessionID:      sessionID,
		Role:           "assistant",
		Content:        result.Answer,
		Sources:        result.Sources,
		DocumentsUsed:  result.DocumentsUsed,
		RelevanceScore: result.RelevanceScore,
		Iterations:     result.Iterations,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to persist answer")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"userMessage": userMessage,
		"message":     assistantMessage,
	})
}

// StreamMessage relays the research event stream as SSE and finishes
// with a complete event carrying the persisted assistant message id.
func (h Handler) StreamMessage(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "query parameter is required")
		return
	}
	route, err := parseRoute(r.URL.Query().Get("source"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	history, err := h.sessions.ListMessages(r.Context(), sessionID)
	if errors.Is(err, session.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "session does not exist")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to load history")
		return
	}

	if _, err := h.sessions.InsertMessage(r.Context(), session.Message{
		SessionID: sessionID,
		Role:      "user",
		Content:   query,
	}); err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to persist message")
		return
	}

	sse, ok := newSSEWriter(w)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported", "server does not support streaming")
		return
	}
	w.WriteHeader(http.StatusOK)

	ctx, cancel := context.WithTimeout(r.Context(), h.researchTimeout())
	defer cancel()

	for event := range h.researcher.Stream(ctx, research.Request{
		Query:      query,
		History:    chatHistory(history),
		SourceHint: route,
	}) {
		if err := sse.writeEvent(event.Type, event); err != nil {
			// Client went away; drain the run so it can finish cleanly.
			cancel()
			continue
		}

		if event.Type != research.EventSynthesisComplete {
			continue
		}

		// Persist off the request context so a disconnect after the
		// final token does not lose the answer.
		persistCtx, persistCancel := context.WithTimeout(context.Background(), 10*time.Second)
		assistantMessage, persistErr := h.sessions.InsertMessage(persistCtx, session.Message{
			SessionID:      sessionID,
			Role:           "assistant",
			Content:        event.Content,
			Sources:        event.Sources,
			DocumentsUsed:  event.DocumentsUsed,
			RelevanceScore: event.RelevanceScore,
			Iterations:     event.Iterations,
		})
		persistCancel()
		if persistErr != nil {
			log.Printf("persist assistant message failed: session_id=%s err=%v", sessionID, persistErr)
			_ = sse.writeEvent("error", map[string]string{"error": "failed to persist answer"})
			continue
		}
		_ = sse.writeEvent("complete", map[string]string{"message_id": assistantMessage.ID})
	}
}
