// Package models provides data models for the user profile service.
package models

import (
	"time"
)

// SubscriptionLevel is the paid tier of an account
type SubscriptionLevel string

const (
	SubscriptionFree    SubscriptionLevel = "free"
	SubscriptionClub    SubscriptionLevel = "club"
	SubscriptionPremium SubscriptionLevel = "premium"
)

// Valid reports whether l is a known level
func (l SubscriptionLevel) Valid() bool {
	switch l {
	case SubscriptionFree, SubscriptionClub, SubscriptionPremium:
		return true
	}
	return false
}

// AccountStatus is the ban state of an account
type AccountStatus string

const (
	StatusActive       AccountStatus = "active"
	StatusTemporaryBan AccountStatus = "temporary_ban"
	StatusBanned       AccountStatus = "banned"
)

// IsBanned reports either ban state
func (s AccountStatus) IsBanned() bool {
	return s == StatusBanned || s == StatusTemporaryBan
}

// ModerationStatus is the review state of the main photo
type ModerationStatus string

const (
	ModerationPending  ModerationStatus = "pending"
	ModerationApproved ModerationStatus = "approved"
	ModerationRejected ModerationStatus = "rejected"
)

// MaxExtraPhotos bounds ProfilePhotosExtra
const MaxExtraPhotos = 8

// User is the identity and profile record
type User struct {
	ID                        string            `json:"id" db:"user_id"`
	Email                     string            `json:"email" db:"email"`
	Username                  string            `json:"username" db:"username"`
	FirstName                 *string           `json:"firstName,omitempty" db:"first_name"`
	LastName                  *string           `json:"lastName,omitempty" db:"last_name"`
	ProfileDescription        *string           `json:"profileDescription,omitempty" db:"profile_description"`
	MainPhotoURL              *string           `json:"mainPhotoUrl,omitempty" db:"main_photo_url"`
	MainPhotoModerationStatus ModerationStatus  `json:"mainPhotoModerationStatus" db:"main_photo_moderation_status"`
	MainPhotoUploadedAt       *time.Time        `json:"mainPhotoUploadedAt,omitempty" db:"main_photo_uploaded_at"`
	ProfilePhotosExtra        []string          `json:"profilePhotosExtra" db:"profile_photos_extra"`
	DateOfBirth               *time.Time        `json:"dateOfBirth,omitempty" db:"date_of_birth"`
	Gender                    *string           `json:"gender,omitempty" db:"gender"`
	SubscriptionLevel         SubscriptionLevel `json:"subscriptionLevel" db:"subscription_level"`
	SubscriptionExpiresAt     *time.Time        `json:"subscriptionExpiresAt,omitempty" db:"subscription_expires_at"`
	IsCaptain                 bool              `json:"isCaptain" db:"is_captain"`
	CaptainSince              *time.Time        `json:"captainSince,omitempty" db:"captain_since"`
	Status                    AccountStatus     `json:"status" db:"status"`
	BanReason                 *string           `json:"banReason,omitempty" db:"ban_reason"`
	BanExpiresAt              *time.Time        `json:"banExpiresAt,omitempty" db:"ban_expires_at"`
	VerificationCount         int               `json:"verificationCount" db:"verification_count"`
	NoShowCount               int               `json:"noShowCount" db:"no_show_count"`
	ActivitiesCreatedCount    int               `json:"activitiesCreatedCount" db:"activities_created_count"`
	ActivitiesAttendedCount   int               `json:"activitiesAttendedCount" db:"activities_attended_count"`
	IsVerified                bool              `json:"isVerified" db:"is_verified"`
	LastSeenAt                *time.Time        `json:"lastSeenAt,omitempty" db:"last_seen_at"`
	CreatedAt                 time.Time         `json:"createdAt" db:"created_at"`
	UpdatedAt                 time.Time         `json:"updatedAt" db:"updated_at"`
}

// Clone returns a deep copy of u
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.FirstName = cloneString(u.FirstName)
	c.LastName = cloneString(u.LastName)
	c.ProfileDescription = cloneString(u.ProfileDescription)
	c.MainPhotoURL = cloneString(u.MainPhotoURL)
	c.Gender = cloneString(u.Gender)
	c.BanReason = cloneString(u.BanReason)
	c.MainPhotoUploadedAt = cloneTime(u.MainPhotoUploadedAt)
	c.DateOfBirth = cloneTime(u.DateOfBirth)
	c.SubscriptionExpiresAt = cloneTime(u.SubscriptionExpiresAt)
	c.CaptainSince = cloneTime(u.CaptainSince)
	c.BanExpiresAt = cloneTime(u.BanExpiresAt)
	c.LastSeenAt = cloneTime(u.LastSeenAt)
	c.ProfilePhotosExtra = append([]string{}, u.ProfilePhotosExtra...)
	return &c
}

// Block is a directed edge: BlockerID hides BlockedID and vice versa for reads
type Block struct {
	BlockerID string    `json:"blockerId" db:"blocker_user_id"`
	BlockedID string    `json:"blockedId" db:"blocked_user_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
