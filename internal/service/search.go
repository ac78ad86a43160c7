package service

import (
	"context"

	apperrors "github.com/rbrinkke/userprofile-api/internal/errors"
	"github.com/rbrinkke/userprofile-api/internal/models"
	"github.com/rbrinkke/userprofile-api/internal/validation"
)

// SearchUsers matches q.Text case-insensitively against username, first
// and last name. Users connected to the requester by a block edge in
// either direction, and banned users, never appear, so a result count is
// consistent with what direct lookups would reveal. The total is only
// computed when q.WithTotal is set.
func (e *Engine) SearchUsers(ctx context.Context, requesterID string, q models.SearchQuery) (*models.SearchResult, error) {
	if err := canonical(&requesterID); err != nil {
		return nil, err
	}
	q, err := validation.NormalizeSearch(q)
	if err != nil {
		return nil, err
	}

	users, err := e.store.SearchUsers(ctx, requesterID, q)
	if err != nil {
		return nil, apperrors.FromStorage("search users", err)
	}

	res := &models.SearchResult{
		Users:  make([]*models.PublicProfile, 0, len(users)),
		Limit:  q.Limit,
		Offset: q.Offset,
	}
	for _, u := range users {
		res.Users = append(res.Users, u.ToPublic())
	}

	if q.WithTotal {
		total, err := e.store.CountSearch(ctx, requesterID, q.Text)
		if err != nil {
			return nil, apperrors.FromStorage("count search results", err)
		}
		res.Total = &total
	}
	return res, nil
}
