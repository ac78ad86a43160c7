package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/rbrinkke/userprofile-api/internal/models"
)

type photoRequest struct {
	URL string `json:"url"`
}

func (p *photoRequest) parse(r *http.Request) error {
	if err := parseJSONBody(r, p); err != nil {
		return err
	}
	if p.URL == "" {
		return errMissingField("url")
	}
	return nil
}

// handleSetMainPhoto handles PUT /api/v1/users/me/photos/main
func (s *Server) handleSetMainPhoto(w http.ResponseWriter, r *http.Request) {
	var req photoRequest
	if err := req.parse(r); err != nil {
		respondServiceError(w, r, err)
		return
	}

	me := actor(r)
	u, err := s.engine.SetMainPhoto(r.Context(), me, req.URL)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	s.invalidate(r.Context(), me)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"mainPhotoUrl":              u.MainPhotoURL,
		"mainPhotoModerationStatus": u.MainPhotoModerationStatus,
		"mainPhotoUploadedAt":       u.MainPhotoUploadedAt,
	})
}

// handleAddPhoto handles POST /api/v1/users/me/photos
func (s *Server) handleAddPhoto(w http.ResponseWriter, r *http.Request) {
	var req photoRequest
	if err := req.parse(r); err != nil {
		respondServiceError(w, r, err)
		return
	}

	me := actor(r)
	photos, err := s.engine.AddExtraPhoto(r.Context(), me, req.URL)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	s.invalidate(r.Context(), me)
	respondJSON(w, http.StatusCreated, map[string][]string{"profilePhotosExtra": photos})
}

// handleRemovePhoto handles DELETE /api/v1/users/me/photos
func (s *Server) handleRemovePhoto(w http.ResponseWriter, r *http.Request) {
	var req photoRequest
	if err := req.parse(r); err != nil {
		respondServiceError(w, r, err)
		return
	}

	me := actor(r)
	photos, err := s.engine.RemoveExtraPhoto(r.Context(), me, req.URL)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	s.invalidate(r.Context(), me)
	respondJSON(w, http.StatusOK, map[string][]string{"profilePhotosExtra": photos})
}

// handlePendingPhotos handles GET /api/v1/admin/moderation/photos
func (s *Server) handlePendingPhotos(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	photos, err := s.engine.PendingModerations(r.Context(), limit, offset)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if photos == nil {
		photos = []models.PendingPhoto{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"photos": photos})
}

// handleModeratePhoto handles POST /api/v1/admin/moderation/photos/{id}
func (s *Server) handleModeratePhoto(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status models.ModerationStatus `json:"status"`
		Reason *string                 `json:"reason"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}

	userID := mux.Vars(r)["id"]
	d, err := s.engine.ModeratePhoto(r.Context(), userID, actor(r), req.Status, req.Reason)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	s.invalidate(r.Context(), userID)
	respondJSON(w, http.StatusOK, d)
}
