package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mailtide/mailtide/internal/engine"
	"github.com/mailtide/mailtide/internal/models"
)

// CreateCampaignRequest is the request body for POST /campaigns.
type CreateCampaignRequest struct {
	UserID       string    `json:"user_id"`
	ListID       string    `json:"list_id"`
	TemplateID   string    `json:"template_id"`
	ScheduleDate time.Time `json:"schedule_date"`
	SendLimit    int       `json:"send_limit,omitempty"`
}

// BatchRequest is the request body for POST /campaigns/{id}/batch.
type BatchRequest struct {
	BatchSize int `json:"batch_size,omitempty"`
}

// TestSendRequest is the request body for POST /test-send.
type TestSendRequest struct {
	TemplateID string `json:"template_id"`
	Recipient  string `json:"recipient"`
	UserID     string `json:"user_id"`
}

// StatusResponse acknowledges a lifecycle transition.
type StatusResponse struct {
	ID     string                `json:"id"`
	Status models.CampaignStatus `json:"status"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// ErrorResponse is the error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// handleCreateCampaign handles POST /api/v1/campaigns.
func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req CreateCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.UserID == "" || req.ListID == "" || req.TemplateID == "" {
		s.sendError(w, http.StatusBadRequest, "user_id, list_id and template_id are required")
		return
	}
	if req.ScheduleDate.IsZero() {
		s.sendError(w, http.StatusBadRequest, "schedule_date is required")
		return
	}

	c := &models.Campaign{
		UserID:       req.UserID,
		ListID:       req.ListID,
		TemplateID:   req.TemplateID,
		ScheduleDate: req.ScheduleDate,
		SendLimit:    req.SendLimit,
	}
	if err := s.campaigns.Create(r.Context(), c); err != nil {
		s.logger.Error("failed to create campaign", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to create campaign")
		return
	}

	s.logger.Info("campaign created", "campaign_id", c.ID, "list_id", c.ListID)
	s.sendJSON(w, http.StatusCreated, c)
}

// handleGetCampaign handles GET /api/v1/campaigns/{id}.
func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	c, err := s.campaigns.Get(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to get campaign", "campaign_id", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get campaign")
		return
	}
	if c == nil {
		s.sendError(w, http.StatusNotFound, "Campaign not found")
		return
	}

	s.sendJSON(w, http.StatusOK, c)
}

// handleScheduleCampaign handles POST /api/v1/campaigns/{id}/schedule.
func (s *Server) handleScheduleCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.engine.ScheduleCampaign(r.Context(), id); err != nil {
		s.sendEngineError(w, id, "schedule", err)
		return
	}

	c, err := s.campaigns.Get(r.Context(), id)
	if err != nil || c == nil {
		// The transition went through; report it even if the re-read failed.
		s.sendJSON(w, http.StatusOK, StatusResponse{ID: id, Status: models.StatusScheduled})
		return
	}
	s.sendJSON(w, http.StatusOK, StatusResponse{ID: c.ID, Status: c.Status})
}

// handleCancelCampaign handles POST /api/v1/campaigns/{id}/cancel.
func (s *Server) handleCancelCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.engine.CancelCampaign(r.Context(), id); err != nil {
		s.sendEngineError(w, id, "cancel", err)
		return
	}

	s.sendJSON(w, http.StatusOK, StatusResponse{ID: id, Status: models.StatusCanceled})
}

// handleProcessBatch handles POST /api/v1/campaigns/{id}/batch. It triggers
// one delivery batch immediately, independent of the campaign's timer.
func (s *Server) handleProcessBatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req BatchRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.sendError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	res, err := s.engine.ProcessBatch(r.Context(), id, req.BatchSize)
	if err != nil {
		s.sendEngineError(w, id, "batch", err)
		return
	}

	s.sendJSON(w, http.StatusOK, res)
}

// handleTestSend handles POST /api/v1/test-send.
func (s *Server) handleTestSend(w http.ResponseWriter, r *http.Request) {
	var req TestSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.TemplateID == "" || req.Recipient == "" || req.UserID == "" {
		s.sendError(w, http.StatusBadRequest, "template_id, recipient and user_id are required")
		return
	}

	res, err := s.engine.SendTestEmail(r.Context(), req.TemplateID, req.Recipient, req.UserID)
	if err != nil {
		s.sendEngineError(w, req.TemplateID, "test-send", err)
		return
	}

	s.sendJSON(w, http.StatusOK, res)
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: "0.1.0",
		Uptime:  time.Since(s.startTime).String(),
	})
}

// sendEngineError maps engine errors onto HTTP statuses.
func (s *Server) sendEngineError(w http.ResponseWriter, id, op string, err error) {
	switch {
	case errors.Is(err, engine.ErrNotFound):
		s.sendError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, engine.ErrInvalidStatus):
		s.sendError(w, http.StatusConflict, err.Error())
	case errors.Is(err, engine.ErrBatchInFlight):
		s.sendError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("engine operation failed", "op", op, "id", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Operation failed")
	}
}

// sendJSON sends a JSON response.
func (s *Server) sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// sendError sends an error response.
func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, ErrorResponse{Error: message})
}
