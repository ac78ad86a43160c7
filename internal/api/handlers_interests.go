package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/rbrinkke/userprofile-api/internal/models"
	"github.com/rbrinkke/userprofile-api/internal/storage"
)

type interestsResponse struct {
	Interests []models.UserInterest `json:"interests"`
}

func newInterestsResponse(in []models.UserInterest) interestsResponse {
	if in == nil {
		in = []models.UserInterest{}
	}
	return interestsResponse{Interests: in}
}

// handleGetInterests handles GET /api/v1/users/me/interests
func (s *Server) handleGetInterests(w http.ResponseWriter, r *http.Request) {
	me := actor(r)
	s.serveCached(w, r, storage.CacheKeyInterests, me, func() (interface{}, error) {
		in, err := s.engine.GetInterests(r.Context(), me)
		if err != nil {
			return nil, err
		}
		return newInterestsResponse(in), nil
	})
}

// handleReplaceInterests handles PUT /api/v1/users/me/interests
func (s *Server) handleReplaceInterests(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Interests []models.InterestInput `json:"interests"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}

	me := actor(r)
	in, err := s.engine.ReplaceInterests(r.Context(), me, req.Interests)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	s.invalidate(r.Context(), me)
	respondJSON(w, http.StatusOK, newInterestsResponse(in))
}

// handleAddInterest handles POST /api/v1/users/me/interests
func (s *Server) handleAddInterest(w http.ResponseWriter, r *http.Request) {
	var req models.InterestInput
	if err := parseJSONBody(r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}

	me := actor(r)
	in, err := s.engine.AddInterest(r.Context(), me, req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	s.invalidate(r.Context(), me)
	respondJSON(w, http.StatusOK, newInterestsResponse(in))
}

// handleRemoveInterest handles DELETE /api/v1/users/me/interests/{tag}
func (s *Server) handleRemoveInterest(w http.ResponseWriter, r *http.Request) {
	me := actor(r)
	in, err := s.engine.RemoveInterest(r.Context(), me, mux.Vars(r)["tag"])
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	s.invalidate(r.Context(), me)
	respondJSON(w, http.StatusOK, newInterestsResponse(in))
}
