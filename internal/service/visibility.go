package service

import (
	"context"
	"encoding/json"
	"math"

	apperrors "github.com/rbrinkke/userprofile-api/internal/errors"
	"github.com/rbrinkke/userprofile-api/internal/models"
	"github.com/rbrinkke/userprofile-api/internal/storage"
)

// visibleTo reports whether viewerID may read subject. Owners always see
// themselves. Anyone else is shut out by a block edge in either direction
// or a permanent ban.
func visibleTo(ctx context.Context, q storage.Querier, subject *models.User, viewerID string) (bool, error) {
	if subject.ID == viewerID {
		return true, nil
	}
	if subject.Status == models.StatusBanned {
		return false, nil
	}
	blocked, err := q.BlockExists(ctx, subject.ID, viewerID)
	if err != nil {
		return false, err
	}
	return !blocked, nil
}

// Resolve loads subjectID as seen by viewerID. A hidden profile is not an
// error: visible is false and the user is nil, exactly like a missing one
// would look to a caller that only checks visible.
func (e *Engine) Resolve(ctx context.Context, subjectID, viewerID string) (*models.User, bool, error) {
	if err := canonical(&subjectID, &viewerID); err != nil {
		return nil, false, nil
	}
	u, err := e.store.GetUser(ctx, subjectID)
	if apperrors.IsNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperrors.FromStorage("resolve profile", err)
	}
	ok, err := visibleTo(ctx, e.store, u, viewerID)
	if err != nil {
		return nil, false, apperrors.FromStorage("resolve profile", err)
	}
	if !ok {
		return nil, false, nil
	}
	return u, true, nil
}

// resolveOrHide is Resolve with hidden collapsed into NotFoundOrHidden
func (e *Engine) resolveOrHide(ctx context.Context, subjectID, viewerID string) (*models.User, error) {
	u, ok, err := e.Resolve(ctx, subjectID, viewerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.NewNotFoundOrHidden("user")
	}
	return u, nil
}

// ProfileView is either the owner's full profile or another viewer's
// public projection. Exactly one field is set.
type ProfileView struct {
	Full   *models.Profile
	Public *models.PublicProfile
}

// MarshalJSON encodes whichever projection is set
func (v ProfileView) MarshalJSON() ([]byte, error) {
	if v.Full != nil {
		return json.Marshal(v.Full)
	}
	return json.Marshal(v.Public)
}

// IsOwner reports the full projection
func (v ProfileView) IsOwner() bool {
	return v.Full != nil
}

// GetProfile returns subjectID's profile as viewerID may see it
func (e *Engine) GetProfile(ctx context.Context, subjectID, viewerID string) (*ProfileView, error) {
	u, err := e.resolveOrHide(ctx, subjectID, viewerID)
	if err != nil {
		return nil, err
	}
	interests, err := e.store.ListInterests(ctx, u.ID)
	if err != nil {
		return nil, apperrors.FromStorage("list interests", err)
	}

	if u.ID != viewerID {
		p := u.ToPublic()
		p.Interests = interests
		return &ProfileView{Public: p}, nil
	}

	settings, err := e.store.GetSettings(ctx, u.ID)
	if err != nil {
		return nil, apperrors.FromStorage("get settings", err)
	}
	if settings == nil {
		settings = models.DefaultSettings(u.ID, e.clock())
	}
	return &ProfileView{Full: &models.Profile{User: u, Interests: interests, Settings: settings}}, nil
}

// GetVerificationMetrics returns the trust summary of subjectID
func (e *Engine) GetVerificationMetrics(ctx context.Context, subjectID, viewerID string) (*models.VerificationMetrics, error) {
	u, err := e.resolveOrHide(ctx, subjectID, viewerID)
	if err != nil {
		return nil, err
	}
	return &models.VerificationMetrics{
		UserID:                  u.ID,
		VerificationCount:       u.VerificationCount,
		NoShowCount:             u.NoShowCount,
		ActivitiesCreatedCount:  u.ActivitiesCreatedCount,
		ActivitiesAttendedCount: u.ActivitiesAttendedCount,
		IsVerified:              u.IsVerified,
		TrustScore:              TrustScore(u.VerificationCount, u.NoShowCount, u.ActivitiesAttendedCount),
	}, nil
}

// TrustScore is clamp(0, 100, 10*verifications - 20*noShows + 0.5*attended)
// rounded to one decimal.
func TrustScore(verifications, noShows, attended int) float64 {
	raw := 10*float64(verifications) - 20*float64(noShows) + 0.5*float64(attended)
	clamped := math.Min(100, math.Max(0, raw))
	return math.Round(clamped*10) / 10
}
