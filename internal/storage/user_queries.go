package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/rbrinkke/userprofile-api/internal/errors"
	"github.com/rbrinkke/userprofile-api/internal/models"
)

// Queries implements Querier against a pool or a transaction
type Queries struct {
	db DBTX
}

var _ Querier = (*Queries)(nil)

// NewQueries binds queries to db
func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

const userColumns = `
	user_id, email, username, first_name, last_name, profile_description,
	main_photo_url, main_photo_moderation_status, main_photo_uploaded_at,
	profile_photos_extra, date_of_birth, gender,
	subscription_level, subscription_expires_at, is_captain, captain_since,
	status, ban_reason, ban_expires_at,
	verification_count, no_show_count, activities_created_count, activities_attended_count,
	is_verified, last_seen_at, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Username,
		&u.FirstName,
		&u.LastName,
		&u.ProfileDescription,
		&u.MainPhotoURL,
		&u.MainPhotoModerationStatus,
		&u.MainPhotoUploadedAt,
		&u.ProfilePhotosExtra,
		&u.DateOfBirth,
		&u.Gender,
		&u.SubscriptionLevel,
		&u.SubscriptionExpiresAt,
		&u.IsCaptain,
		&u.CaptainSince,
		&u.Status,
		&u.BanReason,
		&u.BanExpiresAt,
		&u.VerificationCount,
		&u.NoShowCount,
		&u.ActivitiesCreatedCount,
		&u.ActivitiesAttendedCount,
		&u.IsVerified,
		&u.LastSeenAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if u.ProfilePhotosExtra == nil {
		u.ProfilePhotosExtra = []string{}
	}
	return &u, nil
}

func userNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewNotFoundOrHidden("user")
	}
	return err
}

// expectRow turns a zero-row UPDATE into NotFoundOrHidden
func expectRow(op string, tag interface{ RowsAffected() int64 }, err error) error {
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFoundOrHidden("user")
	}
	return nil
}

// GetUser retrieves a user by ID
func (q *Queries) GetUser(ctx context.Context, userID string) (*models.User, error) {
	u, err := scanUser(q.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = $1`, userID))
	if err != nil {
		return nil, userNotFound(fmt.Errorf("failed to get user: %w", err))
	}
	return u, nil
}

// GetUserForUpdate retrieves a user and locks the row until the transaction ends
func (q *Queries) GetUserForUpdate(ctx context.Context, userID string) (*models.User, error) {
	u, err := scanUser(q.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = $1 FOR UPDATE`, userID))
	if err != nil {
		return nil, userNotFound(fmt.Errorf("failed to lock user: %w", err))
	}
	return u, nil
}

// UsernameTaken checks case-insensitively, ignoring excludeUserID's own row
func (q *Queries) UsernameTaken(ctx context.Context, username, excludeUserID string) (bool, error) {
	var taken bool
	err := q.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM users
			WHERE lower(username) = lower($1) AND user_id <> $2
		)`, username, excludeUserID).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("failed to check username: %w", err)
	}
	return taken, nil
}

func (q *Queries) UpdateUsername(ctx context.Context, userID, username string) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE users SET username = $2, updated_at = NOW() WHERE user_id = $1`,
		userID, username)
	return expectRow("update username", tag, err)
}

// SaveProfile writes the owner-editable profile fields of user
func (q *Queries) SaveProfile(ctx context.Context, user *models.User) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE users SET
			first_name = $2,
			last_name = $3,
			profile_description = $4,
			date_of_birth = $5,
			gender = $6,
			updated_at = NOW()
		WHERE user_id = $1`,
		user.ID, user.FirstName, user.LastName, user.ProfileDescription, user.DateOfBirth, user.Gender)
	return expectRow("save profile", tag, err)
}

func (q *Queries) TouchLastSeen(ctx context.Context, userID string, at time.Time) error {
	tag, err := q.db.Exec(ctx, `UPDATE users SET last_seen_at = $2 WHERE user_id = $1`, userID, at)
	return expectRow("update last seen", tag, err)
}

func (q *Queries) SetMainPhoto(ctx context.Context, userID, url string, status models.ModerationStatus, uploadedAt time.Time) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE users SET
			main_photo_url = $2,
			main_photo_moderation_status = $3,
			main_photo_uploaded_at = $4,
			updated_at = NOW()
		WHERE user_id = $1`,
		userID, url, status, uploadedAt)
	return expectRow("set main photo", tag, err)
}

func (q *Queries) SetModerationStatus(ctx context.Context, userID string, status models.ModerationStatus) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE users SET main_photo_moderation_status = $2, updated_at = NOW()
		WHERE user_id = $1`,
		userID, status)
	return expectRow("set moderation status", tag, err)
}

func (q *Queries) InsertModerationDecision(ctx context.Context, d models.ModerationDecision) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO photo_moderation_decisions (user_id, status, moderator_id, reason, decided_at)
		VALUES ($1, $2, $3, $4, $5)`,
		d.UserID, d.Status, d.ModeratorID, d.Reason, d.DecidedAt)
	if err != nil {
		return fmt.Errorf("failed to record moderation decision: %w", err)
	}
	return nil
}

// ListPendingPhotos returns the FIFO moderation worklist, oldest upload first
func (q *Queries) ListPendingPhotos(ctx context.Context, limit, offset int) ([]models.PendingPhoto, error) {
	rows, err := q.db.Query(ctx, `
		SELECT user_id, username, main_photo_url, main_photo_uploaded_at
		FROM users
		WHERE main_photo_moderation_status = 'pending'
		  AND main_photo_url IS NOT NULL
		ORDER BY main_photo_uploaded_at ASC, user_id ASC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending photos: %w", err)
	}
	defer rows.Close()

	out := make([]models.PendingPhoto, 0, limit)
	for rows.Next() {
		var p models.PendingPhoto
		if err := rows.Scan(&p.UserID, &p.Username, &p.MainPhotoURL, &p.UploadedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pending photo: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (q *Queries) SetExtraPhotos(ctx context.Context, userID string, photos []string) error {
	if photos == nil {
		photos = []string{}
	}
	tag, err := q.db.Exec(ctx,
		`UPDATE users SET profile_photos_extra = $2, updated_at = NOW() WHERE user_id = $1`,
		userID, photos)
	return expectRow("set extra photos", tag, err)
}

func (q *Queries) incrementCounter(ctx context.Context, column, userID string) (int, error) {
	var count int
	err := q.db.QueryRow(ctx, fmt.Sprintf(`
		UPDATE users SET %[1]s = %[1]s + 1, updated_at = NOW()
		WHERE user_id = $1
		RETURNING %[1]s`, column), userID).Scan(&count)
	if err != nil {
		return 0, userNotFound(fmt.Errorf("failed to increment %s: %w", column, err))
	}
	return count, nil
}

// IncrementVerification adds exactly one to verification_count
func (q *Queries) IncrementVerification(ctx context.Context, userID string) (int, error) {
	return q.incrementCounter(ctx, "verification_count", userID)
}

// IncrementNoShow adds exactly one to no_show_count
func (q *Queries) IncrementNoShow(ctx context.Context, userID string) (int, error) {
	return q.incrementCounter(ctx, "no_show_count", userID)
}

// ApplyActivityDeltas adds both deltas, floored at zero, in one statement
func (q *Queries) ApplyActivityDeltas(ctx context.Context, userID string, createdDelta, attendedDelta int) (models.ActivityCounters, error) {
	var c models.ActivityCounters
	err := q.db.QueryRow(ctx, `
		UPDATE users SET
			activities_created_count = GREATEST(0, activities_created_count + $2),
			activities_attended_count = GREATEST(0, activities_attended_count + $3),
			updated_at = NOW()
		WHERE user_id = $1
		RETURNING activities_created_count, activities_attended_count`,
		userID, createdDelta, attendedDelta).Scan(&c.Created, &c.Attended)
	if err != nil {
		return c, userNotFound(fmt.Errorf("failed to update activity counters: %w", err))
	}
	return c, nil
}

func (q *Queries) UpdateSubscription(ctx context.Context, userID string, level models.SubscriptionLevel, expiresAt *time.Time) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE users SET subscription_level = $2, subscription_expires_at = $3, updated_at = NOW()
		WHERE user_id = $1`,
		userID, level, expiresAt)
	return expectRow("update subscription", tag, err)
}

func (q *Queries) SetCaptain(ctx context.Context, userID string, isCaptain bool, since *time.Time, level models.SubscriptionLevel, expiresAt *time.Time) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE users SET
			is_captain = $2,
			captain_since = $3,
			subscription_level = $4,
			subscription_expires_at = $5,
			updated_at = NOW()
		WHERE user_id = $1`,
		userID, isCaptain, since, level, expiresAt)
	return expectRow("set captain", tag, err)
}

func (q *Queries) SetStatus(ctx context.Context, userID string, status models.AccountStatus, reason *string, expiresAt *time.Time) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE users SET status = $2, ban_reason = $3, ban_expires_at = $4, updated_at = NOW()
		WHERE user_id = $1`,
		userID, status, reason, expiresAt)
	return expectRow("set account status", tag, err)
}

// Anonymize overwrites identity and PII columns with tombstone values
func (q *Queries) Anonymize(ctx context.Context, userID, email, username string) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE users SET
			email = $2,
			username = $3,
			first_name = NULL,
			last_name = NULL,
			profile_description = NULL,
			main_photo_url = NULL,
			main_photo_uploaded_at = NULL,
			profile_photos_extra = '{}',
			date_of_birth = NULL,
			gender = NULL,
			status = 'banned',
			ban_reason = 'account deleted',
			ban_expires_at = NULL,
			updated_at = NOW()
		WHERE user_id = $1`,
		userID, email, username)
	return expectRow("anonymize user", tag, err)
}

func (q *Queries) listIDs(ctx context.Context, op, sql string, args ...any) ([]string, error) {
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	return ids, nil
}

// ListExpiredBans returns temporarily banned users whose ban has lapsed
func (q *Queries) ListExpiredBans(ctx context.Context, now time.Time, limit int) ([]string, error) {
	return q.listIDs(ctx, "list expired bans", `
		SELECT user_id::text FROM users
		WHERE status = 'temporary_ban' AND ban_expires_at <= $1
		ORDER BY ban_expires_at
		LIMIT $2`, now, limit)
}

// ListExpiredSubscriptions returns paid users whose expiry has lapsed
func (q *Queries) ListExpiredSubscriptions(ctx context.Context, now time.Time, limit int) ([]string, error) {
	return q.listIDs(ctx, "list expired subscriptions", `
		SELECT user_id::text FROM users
		WHERE subscription_level <> 'free' AND subscription_expires_at <= $1
		ORDER BY subscription_expires_at
		LIMIT $2`, now, limit)
}

// BlockExists reports an edge between a and b in either direction
func (q *Queries) BlockExists(ctx context.Context, a, b string) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM user_blocks
			WHERE (blocker_user_id = $1 AND blocked_user_id = $2)
			   OR (blocker_user_id = $2 AND blocked_user_id = $1)
		)`, a, b).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check block: %w", err)
	}
	return exists, nil
}
