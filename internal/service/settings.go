package service

import (
	"context"

	apperrors "github.com/rbrinkke/userprofile-api/internal/errors"
	"github.com/rbrinkke/userprofile-api/internal/models"
	"github.com/rbrinkke/userprofile-api/internal/storage"
	"github.com/rbrinkke/userprofile-api/internal/validation"
)

// GetSettings returns userID's settings, creating the default row on
// first access.
func (e *Engine) GetSettings(ctx context.Context, userID string) (*models.UserSettings, error) {
	if err := canonical(&userID); err != nil {
		return nil, err
	}
	s, err := e.store.GetSettings(ctx, userID)
	if err != nil {
		return nil, apperrors.FromStorage("get settings", err)
	}
	if s != nil {
		return s, nil
	}

	err = e.owned(ctx, "create settings", userID, func(q storage.Querier, _ *models.User) error {
		var err error
		s, err = q.EnsureSettings(ctx, models.DefaultSettings(userID, e.clock()))
		return err
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// UpdateSettings applies a sparse patch. Turning ghost mode on requires a
// premium subscription at the time of the write; the user row is locked
// so a concurrent downgrade cannot interleave.
func (e *Engine) UpdateSettings(ctx context.Context, userID string, patch models.SettingsPatch) (*models.UserSettings, error) {
	if err := canonical(&userID); err != nil {
		return nil, err
	}
	if err := validation.ValidateSettingsFormat(patch); err != nil {
		return nil, err
	}

	var out *models.UserSettings
	err := e.owned(ctx, "update settings", userID, func(q storage.Querier, u *models.User) error {
		if patch.GhostMode != nil && *patch.GhostMode && u.SubscriptionLevel != models.SubscriptionPremium {
			return apperrors.NewPremiumRequiredError("ghostMode")
		}
		s, err := q.EnsureSettings(ctx, models.DefaultSettings(userID, e.clock()))
		if err != nil {
			return err
		}
		patch.Apply(s)
		if err := q.SaveSettings(ctx, s); err != nil {
			return err
		}
		s.UpdatedAt = e.clock()
		out = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.event("settings_updated", userID, nil)
	return out, nil
}

// IsGhost reports whether userID browses in ghost mode. A user without a
// settings row is not a ghost.
func (e *Engine) IsGhost(ctx context.Context, userID string) (bool, error) {
	if err := canonical(&userID); err != nil {
		return false, err
	}
	s, err := e.store.GetSettings(ctx, userID)
	if err != nil {
		return false, apperrors.FromStorage("get settings", err)
	}
	return s != nil && s.GhostMode, nil
}
