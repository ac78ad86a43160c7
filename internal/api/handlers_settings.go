package api

import (
	"net/http"

	"github.com/rbrinkke/userprofile-api/internal/models"
	"github.com/rbrinkke/userprofile-api/internal/storage"
)

// handleGetSettings handles GET /api/v1/users/me/settings
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	me := actor(r)
	s.serveCached(w, r, storage.CacheKeySettings, me, func() (interface{}, error) {
		return s.engine.GetSettings(r.Context(), me)
	})
}

// handleUpdateSettings handles PATCH /api/v1/users/me/settings
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch models.SettingsPatch
	if err := parseJSONBody(r, &patch); err != nil {
		respondServiceError(w, r, err)
		return
	}

	me := actor(r)
	settings, err := s.engine.UpdateSettings(r.Context(), me, patch)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	s.invalidate(r.Context(), me)
	respondJSON(w, http.StatusOK, settings)
}
