package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/isabella-tue/retrofit/internal/chat"
	"github.com/isabella-tue/retrofit/internal/log"
)

// ChatHandler handles assistant endpoints.
//
// Endpoints:
//   - POST   /api/chat                      - chat (JSON or SSE stream)
//   - POST   /api/chat/feedback             - response ratings
//   - GET    /api/chat/session/{id}         - session state
//   - DELETE /api/chat/session/{id}         - clear session
//   - POST   /api/chat/session/{id}/context - merge UI state into session
//   - GET    /api/chat/start                - conversation starter
//   - GET    /api/chat/health               - service + cache status
//
// Both streaming and non-streaming requests go through the same Genkit
// Flow for consistent tracing.
type ChatHandler struct {
	flow     *chat.Flow
	sessions *chat.SessionStore
	feedback *chat.FeedbackStore
	logger   log.Logger
}

// NewChatHandler creates a new chat handler with the given Flow.
// The Flow should be obtained from chat.NewFlow().
func NewChatHandler(flow *chat.Flow, sessions *chat.SessionStore, feedback *chat.FeedbackStore, logger log.Logger) *ChatHandler {
	return &ChatHandler{flow: flow, sessions: sessions, feedback: feedback, logger: logger}
}

// RegisterRoutes registers chat routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	if h.flow != nil {
		mux.HandleFunc("POST /api/chat", h.handleChat)
	} else {
		h.logger.Warn("chat flow not configured, assistant endpoint disabled")
	}
	mux.HandleFunc("POST /api/chat/feedback", h.handleFeedback)

	if h.sessions != nil {
		mux.HandleFunc("GET /api/chat/session/{id}", h.getSession)
		mux.HandleFunc("DELETE /api/chat/session/{id}", h.deleteSession)
		mux.HandleFunc("POST /api/chat/session/{id}/context", h.updateContext)
		mux.HandleFunc("GET /api/chat/start", h.starter)
		mux.HandleFunc("GET /api/chat/health", h.health)
	}
}

// handleChat processes a chat request, streaming over SSE when the
// request asks for it and returning a single JSON response otherwise.
func (h *ChatHandler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chat.Request
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	if err := req.Validate(); err != nil {
		h.writeChatError(w, err)
		return
	}

	if req.Stream {
		h.streamChat(w, r, req)
		return
	}

	resp, err := h.flow.Run(r.Context(), req)
	if err != nil {
		h.writeChatError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// streamChat serves one chat completion as Server-Sent Events.
//
// Event types:
//   - chunk: partial text {"content": "...", "response_id": "...", "done": false}
//   - done:  the complete final response
//   - error: {"code": "...", "message": "..."}
func (h *ChatHandler) streamChat(w http.ResponseWriter, r *http.Request, req chat.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error("streaming not supported")
		writeError(w, http.StatusInternalServerError, "STREAMING_UNSUPPORTED", "streaming not supported")
		return
	}

	ctx := r.Context()
	h.logger.Info("SSE stream started", "session_id", req.SessionID)

	var final chat.Response
	var streamErr error
	for value, err := range h.flow.Stream(ctx, req) {
		// Check if client disconnected
		select {
		case <-ctx.Done():
			h.logger.Info("client disconnected", "session_id", req.SessionID)
			return
		default:
		}

		if err != nil {
			streamErr = err
			break
		}
		if value.Done {
			final = value.Output
			break
		}
		if value.Stream.Content != "" || value.Stream.Done {
			h.writeSSE(w, flusher, "chunk", value.Stream)
		}
	}

	if streamErr != nil {
		h.logger.Error("stream failed", "error", streamErr, "session_id", req.SessionID)
		h.writeSSE(w, flusher, "error", ErrorBody{Code: "STREAM_ERROR", Message: streamErr.Error()})
		return
	}

	h.writeSSE(w, flusher, "done", final)
	h.logger.Info("SSE stream completed",
		"session_id", req.SessionID,
		"response_id", final.ResponseID,
		"model", final.Model)
}

// writeSSE writes one named event to the SSE stream.
func (h *ChatHandler) writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("failed to encode SSE payload", "event", event, "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	flusher.Flush()
}

// writeChatError maps chat errors onto HTTP status codes.
func (h *ChatHandler) writeChatError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrNoMessages),
		errors.Is(err, chat.ErrBadRole),
		errors.Is(err, chat.ErrBadMode):
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, chat.ErrSessionLimit):
		writeError(w, http.StatusTooManyRequests, "SESSION_LIMIT", err.Error())
	default:
		h.logger.Error("chat failed", "error", err)
		writeError(w, http.StatusInternalServerError, "CHAT_FAILED", "chat request failed")
	}
}

// handleFeedback records a response rating. Feedback always lands in the
// log; the database row is skipped when no store is configured.
func (h *ChatHandler) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var fb chat.Feedback
	if err := decodeJSON(w, r, &fb); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	if err := fb.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	if h.feedback != nil {
		if err := h.feedback.Record(r.Context(), fb); err != nil {
			h.logger.Error("failed to record feedback", "error", err)
			writeError(w, http.StatusInternalServerError, "FEEDBACK_FAILED", "failed to record feedback")
			return
		}
	} else {
		h.logger.Info("feedback received",
			"session_id", fb.SessionID,
			"response_id", fb.ResponseID,
			"rating", fb.Rating,
			"comment", fb.Comment)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "Thank you for your feedback!",
	})
}

// getSession returns the current session state, or an empty state when
// the session is unknown or expired.
func (h *ChatHandler) getSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, ok := h.sessions.Get(id)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{
			"session_id": id,
			"context":    nil,
			"message":    "Session not found or expired",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":           id,
		"context":              sess.Context,
		"message_count":        len(sess.Messages),
		"has_pareto_solutions": len(sess.Context.ParetoSolutions) > 0,
		"current_stage":        sess.Context.CurrentStage,
	})
}

// deleteSession clears a session.
func (h *ChatHandler) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	h.sessions.Delete(id)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": fmt.Sprintf("Session %s cleared", id),
	})
}

// updateContext merges new UI state into a session, creating the session
// when it does not exist yet. The frontend calls this after each pipeline
// stage so the assistant stays aware of what the user is looking at.
func (h *ChatHandler) updateContext(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var update chat.SessionContext
	if err := decodeJSON(w, r, &update); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	if _, err := h.sessions.GetOrCreate(id); err != nil {
		if errors.Is(err, chat.ErrSessionLimit) {
			writeError(w, http.StatusTooManyRequests, "SESSION_LIMIT", err.Error())
			return
		}
		h.logger.Error("failed to create session", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "SESSION_FAILED", "failed to create session")
		return
	}

	merged, err := h.sessions.MergeContext(id, update)
	if err != nil {
		h.logger.Error("failed to merge context", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "SESSION_FAILED", "failed to update session context")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "success",
		"session_id": id,
		"context":    merged,
	})
}

// starter returns the conversation opener matching the session's state.
func (h *ChatHandler) starter(w http.ResponseWriter, r *http.Request) {
	var sctx *chat.SessionContext
	if id := r.URL.Query().Get("session_id"); id != "" {
		if sess, ok := h.sessions.Get(id); ok {
			sctx = &sess.Context
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":     chat.ConversationStarter(sctx),
		"has_context": sctx != nil,
	})
}

// health reports assistant service status and session cache stats.
func (h *ChatHandler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"service": "retrofit-chat",
		"cache":   h.sessions.Stats(),
	})
}
