package service

import (
	"context"
	"math"
	"time"

	apperrors "github.com/rbrinkke/userprofile-api/internal/errors"
	"github.com/rbrinkke/userprofile-api/internal/models"
	"github.com/rbrinkke/userprofile-api/internal/storage"
	"github.com/rbrinkke/userprofile-api/internal/validation"
)

// NoShowWarningThreshold is the count from which a no-show increment
// reports a warning. Nothing is enforced at the threshold.
const NoShowWarningThreshold = 5

// CaptainTerm is the premium period a captain grant confers
const CaptainTerm = 365 * 24 * time.Hour

// IncrementVerification adds exactly one verification. The increment is a
// single UPDATE so concurrent callers never lose updates.
func (e *Engine) IncrementVerification(ctx context.Context, userID string) (int, error) {
	if err := canonical(&userID); err != nil {
		return 0, err
	}
	var n int
	err := e.inTx(ctx, "increment verification", func(q storage.Querier) error {
		var err error
		n, err = q.IncrementVerification(ctx, userID)
		return err
	})
	if err != nil {
		return 0, err
	}
	e.event("verification_incremented", userID, map[string]interface{}{"count": n})
	return n, nil
}

// IncrementNoShow adds exactly one no-show and reports whether the user
// has reached the warning threshold.
func (e *Engine) IncrementNoShow(ctx context.Context, userID string) (*models.NoShowResult, error) {
	if err := canonical(&userID); err != nil {
		return nil, err
	}
	var n int
	err := e.inTx(ctx, "increment no-show", func(q storage.Querier) error {
		var err error
		n, err = q.IncrementNoShow(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	res := &models.NoShowResult{Count: n, Warning: n >= NoShowWarningThreshold}
	e.event("no_show_incremented", userID, map[string]interface{}{"count": n, "warning": res.Warning})
	return res, nil
}

// UpdateActivityCounters applies signed deltas, each in [-100, 100], to
// the activity counters. Results are floored at zero, never rejected.
func (e *Engine) UpdateActivityCounters(ctx context.Context, userID string, createdDelta, attendedDelta int) (models.ActivityCounters, error) {
	if err := canonical(&userID); err != nil {
		return models.ActivityCounters{}, err
	}
	if err := validation.ValidateCounterDelta("createdDelta", createdDelta); err != nil {
		return models.ActivityCounters{}, err
	}
	if err := validation.ValidateCounterDelta("attendedDelta", attendedDelta); err != nil {
		return models.ActivityCounters{}, err
	}

	var c models.ActivityCounters
	err := e.inTx(ctx, "update activity counters", func(q storage.Querier) error {
		var err error
		c, err = q.ApplyActivityDeltas(ctx, userID, createdDelta, attendedDelta)
		return err
	})
	if err != nil {
		return models.ActivityCounters{}, err
	}
	e.event("activity_counters_updated", userID, map[string]interface{}{
		"created_delta":  createdDelta,
		"attended_delta": attendedDelta,
	})
	return c, nil
}

// UpdateSubscription records a level change from the payment authority.
// Leaving premium clears ghost mode in the same transaction.
func (e *Engine) UpdateSubscription(ctx context.Context, userID string, level models.SubscriptionLevel, expiresAt *time.Time) (*models.SubscriptionInfo, error) {
	if err := canonical(&userID); err != nil {
		return nil, err
	}
	now := e.clock()
	if err := validation.ValidateSubscription(level, expiresAt, now); err != nil {
		return nil, err
	}

	var (
		info        *models.SubscriptionInfo
		ghostClosed bool
	)
	err := e.locked(ctx, "update subscription", userID, func(q storage.Querier, u *models.User) error {
		if err := q.UpdateSubscription(ctx, userID, level, expiresAt); err != nil {
			return err
		}
		var err error
		if ghostClosed, err = clearGhostUnlessPremium(ctx, q, userID, level); err != nil {
			return err
		}
		u.SubscriptionLevel = level
		u.SubscriptionExpiresAt = expiresAt
		info = subscriptionInfo(u, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.event("subscription_updated", userID, map[string]interface{}{"level": level, "ghost_mode_cleared": ghostClosed})
	return info, nil
}

// clearGhostUnlessPremium is the ghost-mode cascade of every subscription write
func clearGhostUnlessPremium(ctx context.Context, q storage.Querier, userID string, level models.SubscriptionLevel) (bool, error) {
	if level == models.SubscriptionPremium {
		return false, nil
	}
	return q.ClearGhostMode(ctx, userID)
}

// GrantCaptain promotes userID to captain with a one-year premium term.
// Granting to an existing captain restarts both.
func (e *Engine) GrantCaptain(ctx context.Context, userID string) (*models.SubscriptionInfo, error) {
	if err := canonical(&userID); err != nil {
		return nil, err
	}
	now := e.clock()
	expires := now.Add(CaptainTerm)

	var info *models.SubscriptionInfo
	err := e.locked(ctx, "grant captain", userID, func(q storage.Querier, u *models.User) error {
		if err := q.SetCaptain(ctx, userID, true, &now, models.SubscriptionPremium, &expires); err != nil {
			return err
		}
		u.IsCaptain = true
		u.CaptainSince = &now
		u.SubscriptionLevel = models.SubscriptionPremium
		u.SubscriptionExpiresAt = &expires
		info = subscriptionInfo(u, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.event("captain_granted", userID, nil)
	return info, nil
}

// RevokeCaptain resets the captain flag, its timestamp and the subscription
// to free in one write.
func (e *Engine) RevokeCaptain(ctx context.Context, userID string) (*models.SubscriptionInfo, error) {
	if err := canonical(&userID); err != nil {
		return nil, err
	}
	now := e.clock()

	var info *models.SubscriptionInfo
	err := e.locked(ctx, "revoke captain", userID, func(q storage.Querier, u *models.User) error {
		if !u.IsCaptain {
			return apperrors.NewStateConflictError(apperrors.CodeInvalidTransition,
				"user is not a captain", "not_captain", "not_captain")
		}
		if err := q.SetCaptain(ctx, userID, false, nil, models.SubscriptionFree, nil); err != nil {
			return err
		}
		if _, err := q.ClearGhostMode(ctx, userID); err != nil {
			return err
		}
		u.IsCaptain = false
		u.CaptainSince = nil
		u.SubscriptionLevel = models.SubscriptionFree
		u.SubscriptionExpiresAt = nil
		info = subscriptionInfo(u, now)
		return nil
	})
	if apperrors.Is(err, apperrors.CategoryStateConflict) {
		e.rejected("captain_revoked", userID, err)
	}
	if err != nil {
		return nil, err
	}
	e.event("captain_revoked", userID, nil)
	return info, nil
}

// GetSubscription returns the billing summary of userID
func (e *Engine) GetSubscription(ctx context.Context, userID string) (*models.SubscriptionInfo, error) {
	if err := canonical(&userID); err != nil {
		return nil, err
	}
	u, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return nil, apperrors.FromStorage("get subscription", err)
	}
	return subscriptionInfo(u, e.clock()), nil
}

func subscriptionInfo(u *models.User, now time.Time) *models.SubscriptionInfo {
	info := &models.SubscriptionInfo{
		Level:        u.SubscriptionLevel,
		ExpiresAt:    u.SubscriptionExpiresAt,
		IsCaptain:    u.IsCaptain,
		CaptainSince: u.CaptainSince,
	}
	if u.SubscriptionExpiresAt != nil {
		days := int(math.Ceil(u.SubscriptionExpiresAt.Sub(now).Hours() / 24))
		days = max(0, days)
		info.DaysRemaining = &days
	}
	return info
}

// ExpireSubscriptions downgrades up to limit lapsed paid subscriptions to
// free, one transaction per user, and returns how many were downgraded.
func (e *Engine) ExpireSubscriptions(ctx context.Context, now time.Time, limit int) (int, error) {
	ids, err := e.store.ListExpiredSubscriptions(ctx, now, limit)
	if err != nil {
		return 0, apperrors.FromStorage("list expired subscriptions", err)
	}

	done := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		expired := false
		err := e.locked(ctx, "expire subscription", id, func(q storage.Querier, u *models.User) error {
			// renewed between listing and locking
			if u.SubscriptionExpiresAt == nil || u.SubscriptionExpiresAt.After(now) {
				return nil
			}
			expired = true
			if u.IsCaptain {
				if err := q.SetCaptain(ctx, id, false, nil, models.SubscriptionFree, nil); err != nil {
					return err
				}
			} else if err := q.UpdateSubscription(ctx, id, models.SubscriptionFree, nil); err != nil {
				return err
			}
			_, err := q.ClearGhostMode(ctx, id)
			return err
		})
		if err != nil {
			e.logger.WithField("user_id", id).WithError(err).Error("failed to expire subscription")
			continue
		}
		if expired {
			done++
			e.event("subscription_expired", id, nil)
		}
	}
	return done, nil
}
