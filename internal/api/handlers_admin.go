package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/rbrinkke/userprofile-api/internal/models"
)

type accountStatusResponse struct {
	UserID       string               `json:"userId"`
	Status       models.AccountStatus `json:"status"`
	BanReason    *string              `json:"banReason,omitempty"`
	BanExpiresAt *time.Time           `json:"banExpiresAt,omitempty"`
}

func newAccountStatusResponse(u *models.User) accountStatusResponse {
	return accountStatusResponse{
		UserID:       u.ID,
		Status:       u.Status,
		BanReason:    u.BanReason,
		BanExpiresAt: u.BanExpiresAt,
	}
}

// handleBan handles POST /api/v1/admin/users/{id}/ban
func (s *Server) handleBan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason    string     `json:"reason"`
		ExpiresAt *time.Time `json:"expiresAt"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}

	userID := mux.Vars(r)["id"]
	u, err := s.engine.BanUser(r.Context(), userID, req.Reason, req.ExpiresAt)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	s.invalidate(r.Context(), userID)
	respondJSON(w, http.StatusOK, newAccountStatusResponse(u))
}

// handleUnban handles DELETE /api/v1/admin/users/{id}/ban
func (s *Server) handleUnban(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]
	u, err := s.engine.UnbanUser(r.Context(), userID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	s.invalidate(r.Context(), userID)
	respondJSON(w, http.StatusOK, newAccountStatusResponse(u))
}

// handleGrantCaptain handles PUT /api/v1/admin/users/{id}/captain
func (s *Server) handleGrantCaptain(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]
	info, err := s.engine.GrantCaptain(r.Context(), userID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	s.invalidate(r.Context(), userID)
	respondJSON(w, http.StatusOK, info)
}

// handleRevokeCaptain handles DELETE /api/v1/admin/users/{id}/captain
func (s *Server) handleRevokeCaptain(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]
	info, err := s.engine.RevokeCaptain(r.Context(), userID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	s.invalidate(r.Context(), userID)
	respondJSON(w, http.StatusOK, info)
}
