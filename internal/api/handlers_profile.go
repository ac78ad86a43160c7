package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	apperrors "github.com/rbrinkke/userprofile-api/internal/errors"
	"github.com/rbrinkke/userprofile-api/internal/logging"
	"github.com/rbrinkke/userprofile-api/internal/models"
	"github.com/rbrinkke/userprofile-api/internal/storage"
)

// DeleteConfirmation must be sent verbatim to delete an account
const DeleteConfirmation = "DELETE MY ACCOUNT"

// viewRecordTimeout bounds the analytics write on the profile read path
const viewRecordTimeout = 2 * time.Second

// actor returns the authenticated user id
func actor(r *http.Request) string {
	p, _ := principalFrom(r.Context())
	return p.UserID
}

// handleGetMe handles GET /api/v1/users/me
func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	me := actor(r)
	s.serveCached(w, r, storage.CacheKeyProfile, me, func() (interface{}, error) {
		return s.engine.GetProfile(r.Context(), me, me)
	})
}

// handleUpdateMe handles PATCH /api/v1/users/me
func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var patch models.ProfilePatch
	if err := parseJSONBody(r, &patch); err != nil {
		respondServiceError(w, r, err)
		return
	}

	me := actor(r)
	u, err := s.engine.UpdateProfile(r.Context(), me, patch)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	s.invalidate(r.Context(), me)
	respondJSON(w, http.StatusOK, u)
}

// handleUpdateUsername handles PATCH /api/v1/users/me/username
func (s *Server) handleUpdateUsername(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}

	me := actor(r)
	u, err := s.engine.UpdateUsername(r.Context(), me, req.Username)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	s.invalidate(r.Context(), me)
	respondJSON(w, http.StatusOK, map[string]string{"username": u.Username})
}

// handleDeleteMe handles DELETE /api/v1/users/me
func (s *Server) handleDeleteMe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Confirmation string `json:"confirmation"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}
	if req.Confirmation != DeleteConfirmation {
		respondServiceError(w, r, apperrors.NewValidationError("confirmation", "must be "+DeleteConfirmation))
		return
	}

	me := actor(r)
	if err := s.engine.AnonymizeAccount(r.Context(), me); err != nil {
		respondServiceError(w, r, err)
		return
	}
	s.invalidate(r.Context(), me)
	w.WriteHeader(http.StatusNoContent)
}

// handleHeartbeat handles POST /api/v1/users/me/heartbeat
func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	at, err := s.engine.UpdateLastSeen(r.Context(), actor(r))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]time.Time{"lastSeenAt": at})
}

// handleGetUser handles GET /api/v1/users/{id}. A successful read of
// someone else's profile is logged as a view unless the viewer is a ghost.
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	me := actor(r)
	view, err := s.engine.GetProfile(r.Context(), mux.Vars(r)["id"], me)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if !view.IsOwner() {
		s.recordView(r.Context(), view.Public.ID, me)
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) recordView(ctx context.Context, subjectID, viewerID string) {
	log := logging.FromContext(ctx)
	ghost, err := s.engine.IsGhost(ctx, viewerID)
	if err != nil {
		log.WithError(err).Warn("ghost mode lookup failed, view not recorded")
		return
	}
	if ghost {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), viewRecordTimeout)
	defer cancel()
	err = s.views.RecordView(ctx, storage.ProfileView{
		ViewedUserID: subjectID,
		ViewerUserID: strings.ToLower(viewerID),
		ViewedAt:     time.Now().UTC(),
	})
	if err != nil {
		log.WithError(err).Warn("failed to record profile view")
	}
}

// handleGetVerification handles GET /api/v1/users/{id}/verification
func (s *Server) handleGetVerification(w http.ResponseWriter, r *http.Request) {
	m, err := s.engine.GetVerificationMetrics(r.Context(), mux.Vars(r)["id"], actor(r))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}

// handleGetSubscription handles GET /api/v1/users/me/subscription
func (s *Server) handleGetSubscription(w http.ResponseWriter, r *http.Request) {
	info, err := s.engine.GetSubscription(r.Context(), actor(r))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, info)
}

// handleSearch handles GET /api/v1/users/search?q=&limit=&offset=&total=
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := models.SearchQuery{Text: r.URL.Query().Get("q")}
	var err error
	if q.Limit, err = queryInt(r, "limit"); err != nil {
		respondServiceError(w, r, err)
		return
	}
	if q.Offset, err = queryInt(r, "offset"); err != nil {
		respondServiceError(w, r, err)
		return
	}
	if q.WithTotal, err = queryBool(r, "total"); err != nil {
		respondServiceError(w, r, err)
		return
	}

	res, err := s.engine.SearchUsers(r.Context(), actor(r), q)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}
