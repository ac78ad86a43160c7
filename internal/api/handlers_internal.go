package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/rbrinkke/userprofile-api/internal/models"
)

// handleIncrementVerification handles POST /api/v1/internal/users/{id}/verification
func (s *Server) handleIncrementVerification(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]
	n, err := s.engine.IncrementVerification(r.Context(), userID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	s.invalidate(r.Context(), userID)
	respondJSON(w, http.StatusOK, map[string]int{"verificationCount": n})
}

// handleIncrementNoShow handles POST /api/v1/internal/users/{id}/no-show
func (s *Server) handleIncrementNoShow(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]
	res, err := s.engine.IncrementNoShow(r.Context(), userID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	s.invalidate(r.Context(), userID)
	respondJSON(w, http.StatusOK, res)
}

// handleActivityCounters handles POST /api/v1/internal/users/{id}/activity-counters
func (s *Server) handleActivityCounters(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CreatedDelta  int `json:"createdDelta"`
		AttendedDelta int `json:"attendedDelta"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}

	userID := mux.Vars(r)["id"]
	c, err := s.engine.UpdateActivityCounters(r.Context(), userID, req.CreatedDelta, req.AttendedDelta)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	s.invalidate(r.Context(), userID)
	respondJSON(w, http.StatusOK, c)
}

// handleUpdateSubscription handles PUT /api/v1/internal/users/{id}/subscription
func (s *Server) handleUpdateSubscription(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Level     models.SubscriptionLevel `json:"subscriptionLevel"`
		ExpiresAt *time.Time               `json:"subscriptionExpiresAt"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}
	if req.Level == "" {
		respondServiceError(w, r, errMissingField("subscriptionLevel"))
		return
	}

	userID := mux.Vars(r)["id"]
	info, err := s.engine.UpdateSubscription(r.Context(), userID, req.Level, req.ExpiresAt)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	s.invalidate(r.Context(), userID)
	respondJSON(w, http.StatusOK, info)
}
