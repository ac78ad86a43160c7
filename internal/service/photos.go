package service

import (
	"context"
	"slices"
	"strings"

	apperrors "github.com/rbrinkke/userprofile-api/internal/errors"
	"github.com/rbrinkke/userprofile-api/internal/models"
	"github.com/rbrinkke/userprofile-api/internal/statemachine"
	"github.com/rbrinkke/userprofile-api/internal/storage"
	"github.com/rbrinkke/userprofile-api/internal/validation"
)

// SetMainPhoto stores url as the main photo. Every write lands in pending,
// whatever the previous moderation state was.
func (e *Engine) SetMainPhoto(ctx context.Context, userID, url string) (*models.User, error) {
	if err := canonical(&userID); err != nil {
		return nil, err
	}
	url = strings.TrimSpace(url)
	if err := validation.ValidatePhotoURL(url); err != nil {
		return nil, err
	}

	var out *models.User
	err := e.owned(ctx, "set main photo", userID, func(q storage.Querier, u *models.User) error {
		now := e.clock()
		if err := q.SetMainPhoto(ctx, userID, url, statemachine.ResetOnPhotoWrite, now); err != nil {
			return err
		}
		u.MainPhotoURL = &url
		u.MainPhotoModerationStatus = statemachine.ResetOnPhotoWrite
		u.MainPhotoUploadedAt = &now
		out = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.event("main_photo_set", userID, nil)
	return out, nil
}

// ModeratePhoto records a moderator decision on the pending main photo.
// Rejection only flags the photo; the URL stays in place.
func (e *Engine) ModeratePhoto(ctx context.Context, userID, moderatorID string, decision models.ModerationStatus, reason *string) (*models.ModerationDecision, error) {
	if err := canonical(&userID, &moderatorID); err != nil {
		return nil, err
	}
	// a decision is any state a pending photo may move to
	if !slices.Contains(statemachine.PhotoModeration.NextStates(models.ModerationPending), decision) {
		return nil, apperrors.NewValidationError("status", "must be approved or rejected")
	}
	if reason != nil {
		trimmed := strings.TrimSpace(*reason)
		if len([]rune(trimmed)) > validation.BanReasonMaxLength {
			return nil, apperrors.NewValidationError("reason", "must be at most 1000 characters")
		}
		if trimmed == "" {
			reason = nil
		} else {
			reason = &trimmed
		}
	}

	var out *models.ModerationDecision
	err := e.locked(ctx, "moderate photo", userID, func(q storage.Querier, u *models.User) error {
		if u.MainPhotoURL == nil {
			return apperrors.NewValidationError("mainPhotoUrl", "user has no main photo")
		}
		if err := statemachine.PhotoModeration.Validate(u.MainPhotoModerationStatus, decision); err != nil {
			msg := "photo is not awaiting moderation"
			if statemachine.PhotoModeration.IsTerminal(u.MainPhotoModerationStatus) {
				msg = "photo has already been " + string(u.MainPhotoModerationStatus)
			}
			return apperrors.NewStateConflictError(apperrors.CodeInvalidTransition, msg, u.MainPhotoModerationStatus, decision)
		}
		if err := q.SetModerationStatus(ctx, userID, decision); err != nil {
			return err
		}
		d := models.ModerationDecision{
			UserID:      userID,
			Status:      decision,
			ModeratorID: moderatorID,
			Reason:      reason,
			DecidedAt:   e.clock(),
		}
		if err := q.InsertModerationDecision(ctx, d); err != nil {
			return err
		}
		out = &d
		return nil
	})
	if apperrors.Is(err, apperrors.CategoryStateConflict) {
		e.rejected("photo_moderated", userID, err)
	}
	if err != nil {
		return nil, err
	}
	e.event("photo_moderated", userID, map[string]interface{}{"status": decision, "moderator_id": moderatorID})
	return out, nil
}

// PendingModerations returns the moderation worklist, oldest upload first
func (e *Engine) PendingModerations(ctx context.Context, limit, offset int) ([]models.PendingPhoto, error) {
	limit, offset = validation.NormalizePage(limit, offset)
	photos, err := e.store.ListPendingPhotos(ctx, limit, offset)
	if err != nil {
		return nil, apperrors.FromStorage("list pending photos", err)
	}
	return photos, nil
}

// AddExtraPhoto appends url to the unmoderated extra photos
func (e *Engine) AddExtraPhoto(ctx context.Context, userID, url string) ([]string, error) {
	if err := canonical(&userID); err != nil {
		return nil, err
	}
	url = strings.TrimSpace(url)
	if err := validation.ValidatePhotoURL(url); err != nil {
		return nil, err
	}

	var out []string
	err := e.owned(ctx, "add extra photo", userID, func(q storage.Querier, u *models.User) error {
		if slices.Contains(u.ProfilePhotosExtra, url) {
			return apperrors.NewConstraintConflictError(apperrors.CodeDuplicatePhoto, "photo already added")
		}
		if len(u.ProfilePhotosExtra) >= models.MaxExtraPhotos {
			limitErr := apperrors.NewValidationError("profilePhotosExtra", "at most 8 extra photos allowed")
			limitErr.Code = apperrors.CodePhotoLimit
			return limitErr
		}
		out = append(slices.Clone(u.ProfilePhotosExtra), url)
		return q.SetExtraPhotos(ctx, userID, out)
	})
	if err != nil {
		return nil, err
	}
	e.event("extra_photo_added", userID, map[string]interface{}{"count": len(out)})
	return out, nil
}

// RemoveExtraPhoto deletes url from the extra photos
func (e *Engine) RemoveExtraPhoto(ctx context.Context, userID, url string) ([]string, error) {
	if err := canonical(&userID); err != nil {
		return nil, err
	}
	url = strings.TrimSpace(url)

	var out []string
	err := e.owned(ctx, "remove extra photo", userID, func(q storage.Querier, u *models.User) error {
		i := slices.Index(u.ProfilePhotosExtra, url)
		if i < 0 {
			return apperrors.NewNotFoundOrHidden("photo")
		}
		out = slices.Delete(slices.Clone(u.ProfilePhotosExtra), i, i+1)
		return q.SetExtraPhotos(ctx, userID, out)
	})
	if err != nil {
		return nil, err
	}
	e.event("extra_photo_removed", userID, map[string]interface{}{"count": len(out)})
	return out, nil
}

// GetExtraPhotos returns the owner's extra photos
func (e *Engine) GetExtraPhotos(ctx context.Context, userID string) ([]string, error) {
	if err := canonical(&userID); err != nil {
		return nil, err
	}
	u, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return nil, apperrors.FromStorage("get extra photos", err)
	}
	return u.ProfilePhotosExtra, nil
}
