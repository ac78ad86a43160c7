package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rbrinkke/userprofile-api/internal/logging"
	"github.com/rbrinkke/userprofile-api/internal/storage"
)

// serveCached answers a read of userID's own data from the cache, falling
// back to load and populating the cache on a miss. Cache faults only
// degrade to the uncached path.
func (s *Server) serveCached(w http.ResponseWriter, r *http.Request, keyType storage.CacheKeyType, userID string, load func() (interface{}, error)) {
	ctx := r.Context()
	if s.cache != nil {
		var raw json.RawMessage
		hit, err := s.cache.Get(ctx, keyType, userID, &raw)
		if err != nil {
			logging.FromContext(ctx).WithError(err).Warn("cache read failed")
		} else if hit {
			w.Header().Set("X-Cache", "HIT")
			respondJSON(w, http.StatusOK, raw)
			return
		}
	}

	v, err := load()
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, keyType, userID, v); err != nil {
			logging.FromContext(ctx).WithError(err).Warn("cache write failed")
		}
		w.Header().Set("X-Cache", "MISS")
	}
	respondJSON(w, http.StatusOK, v)
}

// invalidate drops every cached read model of userID after a mutation
func (s *Server) invalidate(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateUser(ctx, userID); err != nil {
		logging.FromContext(ctx).WithField("user_id", userID).WithError(err).Warn("cache invalidation failed")
	}
}
