package service

import (
	"context"
	"strings"
	"time"

	apperrors "github.com/rbrinkke/userprofile-api/internal/errors"
	"github.com/rbrinkke/userprofile-api/internal/models"
	"github.com/rbrinkke/userprofile-api/internal/statemachine"
	"github.com/rbrinkke/userprofile-api/internal/storage"
	"github.com/rbrinkke/userprofile-api/internal/validation"
)

// Tombstone values written by AnonymizeAccount
const (
	tombstoneDomain = "@deleted.local"
	tombstonePrefix = "deleted_"
)

// TombstoneEmail is the deterministic email of an anonymized account
func TombstoneEmail(userID string) string {
	return tombstonePrefix + userID + tombstoneDomain
}

// TombstoneUsername is the deterministic username of an anonymized account
func TombstoneUsername(userID string) string {
	return tombstonePrefix + userID
}

// IsTombstoned reports an anonymized account: both identity fields carry
// the values AnonymizeAccount derives from the id.
func IsTombstoned(u *models.User) bool {
	return u.Email == TombstoneEmail(u.ID) && u.Username == TombstoneUsername(u.ID)
}

func accountDeleted(u *models.User) error {
	return apperrors.NewStateConflictError(apperrors.CodeAccountDeleted, "account has been deleted", u.Status, models.StatusActive)
}

func usernameTaken() error {
	return apperrors.NewConstraintConflictError(apperrors.CodeUsernameTaken, "username already taken")
}

// UpdateUsername renames userID. Uniqueness ignores case and the user's
// own row, so changing only the casing succeeds. A concurrent rename that
// slips past the check is caught by the unique index and reported the
// same way.
func (e *Engine) UpdateUsername(ctx context.Context, userID, username string) (*models.User, error) {
	if err := canonical(&userID); err != nil {
		return nil, err
	}
	username = strings.TrimSpace(username)
	if err := validation.ValidateUsername(username); err != nil {
		return nil, err
	}

	var out *models.User
	err := e.owned(ctx, "update username", userID, func(q storage.Querier, u *models.User) error {
		taken, err := q.UsernameTaken(ctx, username, userID)
		if err != nil {
			return err
		}
		if taken {
			return usernameTaken()
		}
		if err := q.UpdateUsername(ctx, userID, username); err != nil {
			return err
		}
		u.Username = username
		out = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.event("username_updated", userID, nil)
	return out, nil
}

// AnonymizeAccount tombstones userID: identity replaced, personal fields
// nulled, interests and settings deleted, status forced to banned. The row
// stays so historical references remain valid. Running it again re-applies
// the same state.
func (e *Engine) AnonymizeAccount(ctx context.Context, userID string) error {
	if err := canonical(&userID); err != nil {
		return err
	}
	err := e.locked(ctx, "anonymize account", userID, func(q storage.Querier, _ *models.User) error {
		if err := q.Anonymize(ctx, userID, TombstoneEmail(userID), TombstoneUsername(userID)); err != nil {
			return err
		}
		if err := q.DeleteInterests(ctx, userID); err != nil {
			return err
		}
		return q.DeleteSettings(ctx, userID)
	})
	if err != nil {
		return err
	}
	e.event("account_anonymized", userID, nil)
	return nil
}

// UpdateProfile applies a sparse patch to the owner-editable fields
func (e *Engine) UpdateProfile(ctx context.Context, userID string, patch models.ProfilePatch) (*models.User, error) {
	if err := canonical(&userID); err != nil {
		return nil, err
	}
	if err := validation.ValidateProfilePatch(patch, e.clock()); err != nil {
		return nil, err
	}

	var out *models.User
	err := e.owned(ctx, "update profile", userID, func(q storage.Querier, u *models.User) error {
		patch.Apply(u)
		if err := q.SaveProfile(ctx, u); err != nil {
			return err
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.event("profile_updated", userID, nil)
	return out, nil
}

// UpdateLastSeen records a heartbeat
func (e *Engine) UpdateLastSeen(ctx context.Context, userID string) (time.Time, error) {
	if err := canonical(&userID); err != nil {
		return time.Time{}, err
	}
	now := e.clock()
	err := e.inTx(ctx, "update last seen", func(q storage.Querier) error {
		return q.TouchLastSeen(ctx, userID, now)
	})
	if err != nil {
		return time.Time{}, err
	}
	return now, nil
}

// BanUser bans userID. A nil expiresAt is a permanent ban, otherwise a
// temporary one that lapses at expiresAt.
func (e *Engine) BanUser(ctx context.Context, userID, reason string, expiresAt *time.Time) (*models.User, error) {
	if err := canonical(&userID); err != nil {
		return nil, err
	}
	now := e.clock()
	reason = strings.TrimSpace(reason)
	if err := validation.ValidateBan(reason, expiresAt, now); err != nil {
		return nil, err
	}
	target := models.StatusBanned
	if expiresAt != nil {
		target = models.StatusTemporaryBan
	}

	var out *models.User
	err := e.locked(ctx, "ban user", userID, func(q storage.Querier, u *models.User) error {
		if u.Status.IsBanned() {
			return apperrors.NewStateConflictError(apperrors.CodeAlreadyBanned, "user is already banned", u.Status, target)
		}
		if err := statemachine.AccountStatus.Validate(u.Status, target); err != nil {
			return apperrors.NewStateConflictError(apperrors.CodeInvalidTransition, err.Error(), u.Status, target)
		}
		if err := q.SetStatus(ctx, userID, target, &reason, expiresAt); err != nil {
			return err
		}
		u.Status = target
		u.BanReason = &reason
		u.BanExpiresAt = expiresAt
		out = u
		return nil
	})
	if apperrors.Is(err, apperrors.CategoryStateConflict) {
		e.rejected("user_banned", userID, err)
	}
	if err != nil {
		return nil, err
	}
	e.event("user_banned", userID, map[string]interface{}{"status": target})
	return out, nil
}

// UnbanUser lifts any ban. Anonymized accounts stay banned.
func (e *Engine) UnbanUser(ctx context.Context, userID string) (*models.User, error) {
	if err := canonical(&userID); err != nil {
		return nil, err
	}

	var out *models.User
	err := e.locked(ctx, "unban user", userID, func(q storage.Querier, u *models.User) error {
		if err := e.lift(ctx, q, u); err != nil {
			return err
		}
		out = u
		return nil
	})
	if apperrors.Is(err, apperrors.CategoryStateConflict) {
		e.rejected("user_unbanned", userID, err)
	}
	if err != nil {
		return nil, err
	}
	e.event("user_unbanned", userID, nil)
	return out, nil
}

// lift moves a locked user back to active
func (e *Engine) lift(ctx context.Context, q storage.Querier, u *models.User) error {
	if !u.Status.IsBanned() {
		return apperrors.NewStateConflictError(apperrors.CodeNotBanned, "user is not banned", u.Status, models.StatusActive)
	}
	if IsTombstoned(u) {
		return accountDeleted(u)
	}
	if err := statemachine.AccountStatus.Validate(u.Status, models.StatusActive); err != nil {
		return apperrors.NewStateConflictError(apperrors.CodeInvalidTransition, err.Error(), u.Status, models.StatusActive)
	}
	if err := q.SetStatus(ctx, u.ID, models.StatusActive, nil, nil); err != nil {
		return err
	}
	u.Status = models.StatusActive
	u.BanReason = nil
	u.BanExpiresAt = nil
	return nil
}

// ExpireBans lifts up to limit lapsed temporary bans, one transaction per
// user, and returns how many were lifted.
func (e *Engine) ExpireBans(ctx context.Context, now time.Time, limit int) (int, error) {
	ids, err := e.store.ListExpiredBans(ctx, now, limit)
	if err != nil {
		return 0, apperrors.FromStorage("list expired bans", err)
	}

	done := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		lifted := false
		err := e.locked(ctx, "expire ban", id, func(q storage.Querier, u *models.User) error {
			// extended or made permanent between listing and locking
			if u.Status != models.StatusTemporaryBan || u.BanExpiresAt == nil || u.BanExpiresAt.After(now) {
				return nil
			}
			lifted = true
			return e.lift(ctx, q, u)
		})
		if err != nil {
			e.logger.WithField("user_id", id).WithError(err).Error("failed to expire ban")
			continue
		}
		if lifted {
			done++
			e.event("ban_expired", id, nil)
		}
	}
	return done, nil
}
