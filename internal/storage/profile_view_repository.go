package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/rbrinkke/userprofile-api/internal/circuitbreaker"
)

// ProfileView is one row of the profile_views log
type ProfileView struct {
	ViewedUserID string    `json:"viewedUserId"`
	ViewerUserID string    `json:"viewerUserId"`
	ViewedAt     time.Time `json:"viewedAt"`
}

// ProfileViewRecorder accepts profile view events. Implementations must
// not block the request path for long.
type ProfileViewRecorder interface {
	RecordView(ctx context.Context, v ProfileView) error
}

// ProfileViewRepository appends profile views to ClickHouse
type ProfileViewRepository struct {
	db *ClickHouseDB
}

// NewProfileViewRepository creates a repository over db
func NewProfileViewRepository(db *ClickHouseDB) *ProfileViewRepository {
	return &ProfileViewRepository{db: db}
}

// RecordView inserts a single view
func (r *ProfileViewRepository) RecordView(ctx context.Context, v ProfileView) error {
	err := r.db.Exec(ctx,
		`INSERT INTO profile_views (viewed_user_id, viewer_user_id, viewed_at) VALUES (?, ?, ?)`,
		v.ViewedUserID, v.ViewerUserID, v.ViewedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to record profile view: %w", err)
	}
	return nil
}

// NopViewRecorder drops every view. Used when ClickHouse is disabled.
type NopViewRecorder struct{}

func (NopViewRecorder) RecordView(context.Context, ProfileView) error { return nil }

// GuardedViewRecorder stops writing views while the wrapped recorder keeps
// failing, so a ClickHouse outage costs profile reads nothing.
type GuardedViewRecorder struct {
	next    ProfileViewRecorder
	breaker *circuitbreaker.CircuitBreaker
}

// NewGuardedViewRecorder wraps next with breaker
func NewGuardedViewRecorder(next ProfileViewRecorder, breaker *circuitbreaker.CircuitBreaker) *GuardedViewRecorder {
	return &GuardedViewRecorder{next: next, breaker: breaker}
}

// RecordView forwards v unless the circuit is open
func (g *GuardedViewRecorder) RecordView(ctx context.Context, v ProfileView) error {
	return g.breaker.Execute(ctx, func(ctx context.Context) error {
		return g.next.RecordView(ctx, v)
	})
}
