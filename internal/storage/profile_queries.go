package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/rbrinkke/userprofile-api/internal/models"
)

// ListInterests returns a user's interests, heaviest first
func (q *Queries) ListInterests(ctx context.Context, userID string) ([]models.UserInterest, error) {
	rows, err := q.db.Query(ctx, `
		SELECT user_id::text, interest_tag, weight, created_at
		FROM user_interests
		WHERE user_id = $1
		ORDER BY weight DESC, interest_tag ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list interests: %w", err)
	}
	interests, err := pgx.CollectRows(rows, pgx.RowToStructByPos[models.UserInterest])
	if err != nil {
		return nil, fmt.Errorf("failed to scan interests: %w", err)
	}
	return interests, nil
}

func (q *Queries) InterestExists(ctx context.Context, userID, tag string) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM user_interests WHERE user_id = $1 AND interest_tag = $2)`,
		userID, tag).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check interest: %w", err)
	}
	return exists, nil
}

func (q *Queries) CountInterests(ctx context.Context, userID string) (int, error) {
	var n int
	if err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM user_interests WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count interests: %w", err)
	}
	return n, nil
}

// UpsertInterest inserts tag or replaces its weight
func (q *Queries) UpsertInterest(ctx context.Context, userID, tag string, weight float64) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO user_interests (user_id, interest_tag, weight)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, interest_tag) DO UPDATE SET weight = EXCLUDED.weight`,
		userID, tag, weight)
	if err != nil {
		return fmt.Errorf("failed to upsert interest: %w", err)
	}
	return nil
}

// DeleteInterest is a no-op for an absent tag
func (q *Queries) DeleteInterest(ctx context.Context, userID, tag string) error {
	if _, err := q.db.Exec(ctx, `DELETE FROM user_interests WHERE user_id = $1 AND interest_tag = $2`, userID, tag); err != nil {
		return fmt.Errorf("failed to delete interest: %w", err)
	}
	return nil
}

func (q *Queries) DeleteInterests(ctx context.Context, userID string) error {
	if _, err := q.db.Exec(ctx, `DELETE FROM user_interests WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete interests: %w", err)
	}
	return nil
}

// InsertInterests inserts set in one round trip
func (q *Queries) InsertInterests(ctx context.Context, userID string, set []models.InterestInput) error {
	if len(set) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, in := range set {
		batch.Queue(`INSERT INTO user_interests (user_id, interest_tag, weight) VALUES ($1, $2, $3)`,
			userID, in.Tag, in.Weight)
	}
	if err := q.db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert interests: %w", err)
	}
	return nil
}

const settingsColumns = `
	user_id::text, email_notifications, push_notifications, activity_reminders,
	community_updates, friend_requests, marketing_emails, ghost_mode,
	language_preference, timezone, created_at, updated_at`

func scanSettings(row pgx.Row) (*models.UserSettings, error) {
	var s models.UserSettings
	err := row.Scan(
		&s.UserID,
		&s.EmailNotifications,
		&s.PushNotifications,
		&s.ActivityReminders,
		&s.CommunityUpdates,
		&s.FriendRequests,
		&s.MarketingEmails,
		&s.GhostMode,
		&s.LanguagePreference,
		&s.Timezone,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSettings returns nil, nil when no row exists yet
func (q *Queries) GetSettings(ctx context.Context, userID string) (*models.UserSettings, error) {
	s, err := scanSettings(q.db.QueryRow(ctx, `SELECT `+settingsColumns+` FROM user_settings WHERE user_id = $1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	return s, nil
}

// EnsureSettings inserts defaults if missing and returns the row locked
func (q *Queries) EnsureSettings(ctx context.Context, d *models.UserSettings) (*models.UserSettings, error) {
	_, err := q.db.Exec(ctx, `
		INSERT INTO user_settings (
			user_id, email_notifications, push_notifications, activity_reminders,
			community_updates, friend_requests, marketing_emails, ghost_mode,
			language_preference, timezone
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id) DO NOTHING`,
		d.UserID, d.EmailNotifications, d.PushNotifications, d.ActivityReminders,
		d.CommunityUpdates, d.FriendRequests, d.MarketingEmails, d.GhostMode,
		d.LanguagePreference, d.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to create settings: %w", err)
	}

	s, err := scanSettings(q.db.QueryRow(ctx,
		`SELECT `+settingsColumns+` FROM user_settings WHERE user_id = $1 FOR UPDATE`, d.UserID))
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	return s, nil
}

func (q *Queries) SaveSettings(ctx context.Context, s *models.UserSettings) error {
	_, err := q.db.Exec(ctx, `
		UPDATE user_settings SET
			email_notifications = $2,
			push_notifications = $3,
			activity_reminders = $4,
			community_updates = $5,
			friend_requests = $6,
			marketing_emails = $7,
			ghost_mode = $8,
			language_preference = $9,
			timezone = $10,
			updated_at = NOW()
		WHERE user_id = $1`,
		s.UserID, s.EmailNotifications, s.PushNotifications, s.ActivityReminders,
		s.CommunityUpdates, s.FriendRequests, s.MarketingEmails, s.GhostMode,
		s.LanguagePreference, s.Timezone)
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// ClearGhostMode reports whether ghost mode was on
func (q *Queries) ClearGhostMode(ctx context.Context, userID string) (bool, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE user_settings SET ghost_mode = FALSE, updated_at = NOW()
		WHERE user_id = $1 AND ghost_mode`, userID)
	if err != nil {
		return false, fmt.Errorf("failed to clear ghost mode: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (q *Queries) DeleteSettings(ctx context.Context, userID string) error {
	if _, err := q.db.Exec(ctx, `DELETE FROM user_settings WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete settings: %w", err)
	}
	return nil
}

// visibleMatch is the search predicate shared by SearchUsers and CountSearch.
// $1 is the requester, $2 the LIKE pattern.
const visibleMatch = `
	(u.username ILIKE $2 OR u.first_name ILIKE $2 OR u.last_name ILIKE $2)
	AND u.status <> 'banned'
	AND NOT EXISTS (
		SELECT 1 FROM user_blocks b
		WHERE (b.blocker_user_id = $1 AND b.blocked_user_id = u.user_id)
		   OR (b.blocker_user_id = u.user_id AND b.blocked_user_id = $1)
	)`

// likePattern wraps text for a substring ILIKE, escaping wildcards
func likePattern(text string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(text) + "%"
}

// SearchUsers ranks visible matches by verification_count then username
func (q *Queries) SearchUsers(ctx context.Context, requesterID string, sq models.SearchQuery) ([]*models.User, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+prefixed("u", userColumns)+`
		FROM users u
		WHERE `+visibleMatch+`
		ORDER BY u.verification_count DESC, u.username ASC
		LIMIT $3 OFFSET $4`,
		requesterID, likePattern(sq.Text), sq.Limit, sq.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	defer rows.Close()

	users := make([]*models.User, 0, sq.Limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan search row: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (q *Queries) CountSearch(ctx context.Context, requesterID, text string) (int, error) {
	var n int
	err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM users u WHERE `+visibleMatch,
		requesterID, likePattern(text)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count search results: %w", err)
	}
	return n, nil
}

// prefixed qualifies every column of a comma separated list with alias
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
