package models

import "time"

// Defaults applied when a settings row is created lazily
const (
	DefaultLanguage = "en"
	DefaultTimezone = "UTC"
)

// UserSettings is one-to-one with User
type UserSettings struct {
	UserID             string    `json:"userId" db:"user_id"`
	EmailNotifications bool      `json:"emailNotifications" db:"email_notifications"`
	PushNotifications  bool      `json:"pushNotifications" db:"push_notifications"`
	ActivityReminders  bool      `json:"activityReminders" db:"activity_reminders"`
	CommunityUpdates   bool      `json:"communityUpdates" db:"community_updates"`
	FriendRequests     bool      `json:"friendRequests" db:"friend_requests"`
	MarketingEmails    bool      `json:"marketingEmails" db:"marketing_emails"`
	GhostMode          bool      `json:"ghostMode" db:"ghost_mode"`
	LanguagePreference string    `json:"languagePreference" db:"language_preference"`
	Timezone           string    `json:"timezone" db:"timezone"`
	CreatedAt          time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt          time.Time `json:"updatedAt" db:"updated_at"`
}

// DefaultSettings returns the row inserted on first access
func DefaultSettings(userID string, now time.Time) *UserSettings {
	return &UserSettings{
		UserID:             userID,
		EmailNotifications: true,
		PushNotifications:  true,
		ActivityReminders:  true,
		CommunityUpdates:   true,
		FriendRequests:     true,
		MarketingEmails:    false,
		GhostMode:          false,
		LanguagePreference: DefaultLanguage,
		Timezone:           DefaultTimezone,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// SettingsPatch is a sparse update; nil fields are left untouched
type SettingsPatch struct {
	EmailNotifications *bool   `json:"emailNotifications,omitempty"`
	PushNotifications  *bool   `json:"pushNotifications,omitempty"`
	ActivityReminders  *bool   `json:"activityReminders,omitempty"`
	CommunityUpdates   *bool   `json:"communityUpdates,omitempty"`
	FriendRequests     *bool   `json:"friendRequests,omitempty"`
	MarketingEmails    *bool   `json:"marketingEmails,omitempty"`
	GhostMode          *bool   `json:"ghostMode,omitempty"`
	LanguagePreference *string `json:"languagePreference,omitempty"`
	Timezone           *string `json:"timezone,omitempty"`
}

// IsEmpty reports a patch with no fields set
func (p SettingsPatch) IsEmpty() bool {
	return p.EmailNotifications == nil && p.PushNotifications == nil &&
		p.ActivityReminders == nil && p.CommunityUpdates == nil &&
		p.FriendRequests == nil && p.MarketingEmails == nil &&
		p.GhostMode == nil && p.LanguagePreference == nil && p.Timezone == nil
}

// Apply copies every present field onto s
func (p SettingsPatch) Apply(s *UserSettings) {
	if p.EmailNotifications != nil {
		s.EmailNotifications = *p.EmailNotifications
	}
	if p.PushNotifications != nil {
		s.PushNotifications = *p.PushNotifications
	}
	if p.ActivityReminders != nil {
		s.ActivityReminders = *p.ActivityReminders
	}
	if p.CommunityUpdates != nil {
		s.CommunityUpdates = *p.CommunityUpdates
	}
	if p.FriendRequests != nil {
		s.FriendRequests = *p.FriendRequests
	}
	if p.MarketingEmails != nil {
		s.MarketingEmails = *p.MarketingEmails
	}
	if p.GhostMode != nil {
		s.GhostMode = *p.GhostMode
	}
	if p.LanguagePreference != nil {
		s.LanguagePreference = *p.LanguagePreference
	}
	if p.Timezone != nil {
		s.Timezone = *p.Timezone
	}
}
