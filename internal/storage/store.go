package storage

import (
	"context"
	"time"

	"github.com/rbrinkke/userprofile-api/internal/models"
)

// UserQueries reads and mutates the users table. Counter methods are a
// single UPDATE ... RETURNING so concurrent callers never lose updates.
type UserQueries interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
	GetUserForUpdate(ctx context.Context, userID string) (*models.User, error)
	UsernameTaken(ctx context.Context, username, excludeUserID string) (bool, error)
	UpdateUsername(ctx context.Context, userID, username string) error
	SaveProfile(ctx context.Context, user *models.User) error
	TouchLastSeen(ctx context.Context, userID string, at time.Time) error

	SetMainPhoto(ctx context.Context, userID, url string, status models.ModerationStatus, uploadedAt time.Time) error
	SetModerationStatus(ctx context.Context, userID string, status models.ModerationStatus) error
	InsertModerationDecision(ctx context.Context, d models.ModerationDecision) error
	ListPendingPhotos(ctx context.Context, limit, offset int) ([]models.PendingPhoto, error)
	SetExtraPhotos(ctx context.Context, userID string, photos []string) error

	IncrementVerification(ctx context.Context, userID string) (int, error)
	IncrementNoShow(ctx context.Context, userID string) (int, error)
	ApplyActivityDeltas(ctx context.Context, userID string, createdDelta, attendedDelta int) (models.ActivityCounters, error)

	UpdateSubscription(ctx context.Context, userID string, level models.SubscriptionLevel, expiresAt *time.Time) error
	SetCaptain(ctx context.Context, userID string, isCaptain bool, since *time.Time, level models.SubscriptionLevel, expiresAt *time.Time) error
	SetStatus(ctx context.Context, userID string, status models.AccountStatus, reason *string, expiresAt *time.Time) error
	Anonymize(ctx context.Context, userID, email, username string) error

	ListExpiredBans(ctx context.Context, now time.Time, limit int) ([]string, error)
	ListExpiredSubscriptions(ctx context.Context, now time.Time, limit int) ([]string, error)
}

// BlockQueries reads the directed blocking relation
type BlockQueries interface {
	// BlockExists reports an edge between a and b in either direction
	BlockExists(ctx context.Context, a, b string) (bool, error)
}

// InterestQueries manages user_interests rows
type InterestQueries interface {
	ListInterests(ctx context.Context, userID string) ([]models.UserInterest, error)
	InterestExists(ctx context.Context, userID, tag string) (bool, error)
	CountInterests(ctx context.Context, userID string) (int, error)
	UpsertInterest(ctx context.Context, userID, tag string, weight float64) error
	DeleteInterest(ctx context.Context, userID, tag string) error
	DeleteInterests(ctx context.Context, userID string) error
	InsertInterests(ctx context.Context, userID string, set []models.InterestInput) error
}

// SettingsQueries manages user_settings rows
type SettingsQueries interface {
	// GetSettings returns nil, nil when no row exists yet
	GetSettings(ctx context.Context, userID string) (*models.UserSettings, error)
	// EnsureSettings inserts defaults if missing and returns the row locked
	EnsureSettings(ctx context.Context, defaults *models.UserSettings) (*models.UserSettings, error)
	SaveSettings(ctx context.Context, s *models.UserSettings) error
	// ClearGhostMode reports whether ghost mode was on
	ClearGhostMode(ctx context.Context, userID string) (bool, error)
	DeleteSettings(ctx context.Context, userID string) error
}

// SearchQueries is the fuzzy profile search, already filtered by blocking
type SearchQueries interface {
	SearchUsers(ctx context.Context, requesterID string, q models.SearchQuery) ([]*models.User, error)
	CountSearch(ctx context.Context, requesterID, text string) (int, error)
}

// Querier is everything a unit of work can do
type Querier interface {
	UserQueries
	BlockQueries
	InterestQueries
	SettingsQueries
	SearchQueries
}

// Store runs units of work. Querier methods called on the store itself
// run outside any transaction.
type Store interface {
	Querier
	WithTx(ctx context.Context, fn func(q Querier) error) error
}
