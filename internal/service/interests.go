package service

import (
	"context"

	apperrors "github.com/rbrinkke/userprofile-api/internal/errors"
	"github.com/rbrinkke/userprofile-api/internal/models"
	"github.com/rbrinkke/userprofile-api/internal/storage"
	"github.com/rbrinkke/userprofile-api/internal/validation"
)

func interestLimitError() error {
	err := apperrors.NewValidationError("interests", "at most 20 interests allowed")
	err.Code = apperrors.CodeInterestLimit
	return err
}

// AddInterest upserts one tag. A new tag is refused once the set holds
// MaxInterests tags; reweighting an existing tag always succeeds.
func (e *Engine) AddInterest(ctx context.Context, userID string, in models.InterestInput) ([]models.UserInterest, error) {
	if err := canonical(&userID); err != nil {
		return nil, err
	}
	in, err := validation.ValidateInterest(in)
	if err != nil {
		return nil, err
	}

	var out []models.UserInterest
	err = e.owned(ctx, "add interest", userID, func(q storage.Querier, _ *models.User) error {
		exists, err := q.InterestExists(ctx, userID, in.Tag)
		if err != nil {
			return err
		}
		if !exists {
			n, err := q.CountInterests(ctx, userID)
			if err != nil {
				return err
			}
			if n >= models.MaxInterests {
				return interestLimitError()
			}
		}
		if err := q.UpsertInterest(ctx, userID, in.Tag, in.Weight); err != nil {
			return err
		}
		out, err = q.ListInterests(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.event("interest_added", userID, map[string]interface{}{"tag": in.Tag})
	return out, nil
}

// RemoveInterest deletes one tag. Removing an absent tag succeeds.
func (e *Engine) RemoveInterest(ctx context.Context, userID, tag string) ([]models.UserInterest, error) {
	if err := canonical(&userID); err != nil {
		return nil, err
	}
	tag, err := validation.NormalizeTag(tag)
	if err != nil {
		return nil, err
	}

	var out []models.UserInterest
	err = e.owned(ctx, "remove interest", userID, func(q storage.Querier, _ *models.User) error {
		if err := q.DeleteInterest(ctx, userID, tag); err != nil {
			return err
		}
		out, err = q.ListInterests(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.event("interest_removed", userID, map[string]interface{}{"tag": tag})
	return out, nil
}

// ReplaceInterests swaps the whole set. The new set is validated before
// anything is written, and delete plus insert share one transaction, so a
// failure leaves the previous set intact.
func (e *Engine) ReplaceInterests(ctx context.Context, userID string, set []models.InterestInput) ([]models.UserInterest, error) {
	if err := canonical(&userID); err != nil {
		return nil, err
	}
	if len(set) > models.MaxInterests {
		return nil, interestLimitError()
	}
	set, err := validation.ValidateInterestSet(set)
	if err != nil {
		return nil, err
	}

	var out []models.UserInterest
	err = e.owned(ctx, "replace interests", userID, func(q storage.Querier, _ *models.User) error {
		if err := q.DeleteInterests(ctx, userID); err != nil {
			return err
		}
		if err := q.InsertInterests(ctx, userID, set); err != nil {
			return err
		}
		out, err = q.ListInterests(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.event("interests_replaced", userID, map[string]interface{}{"count": len(set)})
	return out, nil
}

// GetInterests returns userID's interests, heaviest first
func (e *Engine) GetInterests(ctx context.Context, userID string) ([]models.UserInterest, error) {
	if err := canonical(&userID); err != nil {
		return nil, err
	}
	if _, err := e.store.GetUser(ctx, userID); err != nil {
		return nil, apperrors.FromStorage("get interests", err)
	}
	interests, err := e.store.ListInterests(ctx, userID)
	if err != nil {
		return nil, apperrors.FromStorage("list interests", err)
	}
	return interests, nil
}
