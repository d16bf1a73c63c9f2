package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mailtide/mailtide/internal/transport"
)

// SandboxListResponse is the response for GET /api/v1/sandbox/messages.
type SandboxListResponse struct {
	Total    int                          `json:"total"`
	Messages []*transport.CapturedMessage `json:"messages"`
}

// handleSandboxList handles GET /api/v1/sandbox/messages.
func (s *Server) handleSandboxList(w http.ResponseWriter, r *http.Request) {
	messages, err := s.sandbox.List(50)
	if err != nil {
		s.logger.Error("failed to list sandbox messages", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list sandbox messages")
		return
	}

	total, err := s.sandbox.Count()
	if err != nil {
		s.logger.Error("failed to count sandbox messages", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to count sandbox messages")
		return
	}

	s.sendJSON(w, http.StatusOK, SandboxListResponse{Total: total, Messages: messages})
}

// handleSandboxGet handles GET /api/v1/sandbox/messages/{id}.
func (s *Server) handleSandboxGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	msg, err := s.sandbox.Get(id)
	if err != nil {
		s.logger.Error("failed to get sandbox message", "id", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get sandbox message")
		return
	}
	if msg == nil {
		s.sendError(w, http.StatusNotFound, "Message not found")
		return
	}

	s.sendJSON(w, http.StatusOK, msg)
}
