package models

import "time"

// ProfilePatch is a sparse update of the owner-editable profile fields
type ProfilePatch struct {
	FirstName          *string `json:"firstName,omitempty"`
	LastName           *string `json:"lastName,omitempty"`
	ProfileDescription *string `json:"profileDescription,omitempty"`
	DateOfBirth        *Date   `json:"dateOfBirth,omitempty"`
	Gender             *string `json:"gender,omitempty"`
}

// IsEmpty reports a patch with no fields set
func (p ProfilePatch) IsEmpty() bool {
	return p.FirstName == nil && p.LastName == nil && p.ProfileDescription == nil &&
		p.DateOfBirth == nil && p.Gender == nil
}

// Apply copies every present field onto u
func (p ProfilePatch) Apply(u *User) {
	if p.FirstName != nil {
		u.FirstName = cloneString(p.FirstName)
	}
	if p.LastName != nil {
		u.LastName = cloneString(p.LastName)
	}
	if p.ProfileDescription != nil {
		u.ProfileDescription = cloneString(p.ProfileDescription)
	}
	if p.DateOfBirth != nil {
		dob := p.DateOfBirth.Time
		u.DateOfBirth = &dob
	}
	if p.Gender != nil {
		u.Gender = cloneString(p.Gender)
	}
}

// Profile is the owner's full view of their own account
type Profile struct {
	*User
	Interests []UserInterest `json:"interests"`
	Settings  *UserSettings  `json:"settings"`
}

// PublicProfile is what another viewer may see. It never carries email,
// date of birth, subscription expiry, ban details or settings.
type PublicProfile struct {
	ID                      string         `json:"id"`
	Username                string         `json:"username"`
	FirstName               *string        `json:"firstName,omitempty"`
	LastName                *string        `json:"lastName,omitempty"`
	ProfileDescription      *string        `json:"profileDescription,omitempty"`
	MainPhotoURL            *string        `json:"mainPhotoUrl,omitempty"`
	ProfilePhotosExtra      []string       `json:"profilePhotosExtra"`
	Gender                  *string        `json:"gender,omitempty"`
	IsCaptain               bool           `json:"isCaptain"`
	IsVerified              bool           `json:"isVerified"`
	VerificationCount       int            `json:"verificationCount"`
	ActivitiesCreatedCount  int            `json:"activitiesCreatedCount"`
	ActivitiesAttendedCount int            `json:"activitiesAttendedCount"`
	Interests               []UserInterest `json:"interests,omitempty"`
	CreatedAt               time.Time      `json:"createdAt"`
}

// ToPublic projects u for a viewer other than its owner. A main photo is
// only shown once approved.
func (u *User) ToPublic() *PublicProfile {
	p := &PublicProfile{
		ID:                      u.ID,
		Username:                u.Username,
		FirstName:               u.FirstName,
		LastName:                u.LastName,
		ProfileDescription:      u.ProfileDescription,
		ProfilePhotosExtra:      append([]string{}, u.ProfilePhotosExtra...),
		Gender:                  u.Gender,
		IsCaptain:               u.IsCaptain,
		IsVerified:              u.IsVerified,
		VerificationCount:       u.VerificationCount,
		ActivitiesCreatedCount:  u.ActivitiesCreatedCount,
		ActivitiesAttendedCount: u.ActivitiesAttendedCount,
		CreatedAt:               u.CreatedAt,
	}
	if u.MainPhotoModerationStatus == ModerationApproved {
		p.MainPhotoURL = u.MainPhotoURL
	}
	return p
}

// PendingPhoto is one entry of the moderation worklist
type PendingPhoto struct {
	UserID       string    `json:"userId"`
	Username     string    `json:"username"`
	MainPhotoURL string    `json:"mainPhotoUrl"`
	UploadedAt   time.Time `json:"uploadedAt"`
}

// ModerationDecision is the outcome of a moderator review
type ModerationDecision struct {
	UserID      string           `json:"userId"`
	Status      ModerationStatus `json:"status"`
	ModeratorID string           `json:"moderatorId"`
	Reason      *string          `json:"reason,omitempty"`
	DecidedAt   time.Time        `json:"decidedAt"`
}

// SubscriptionInfo summarizes the billing state of a user
type SubscriptionInfo struct {
	Level         SubscriptionLevel `json:"subscriptionLevel"`
	ExpiresAt     *time.Time        `json:"subscriptionExpiresAt,omitempty"`
	IsCaptain     bool              `json:"isCaptain"`
	CaptainSince  *time.Time        `json:"captainSince,omitempty"`
	DaysRemaining *int              `json:"daysRemaining,omitempty"`
}

// ActivityCounters holds the display aggregates after an update
type ActivityCounters struct {
	Created  int `json:"activitiesCreatedCount"`
	Attended int `json:"activitiesAttendedCount"`
}

// NoShowResult is returned by a no-show increment
type NoShowResult struct {
	Count   int  `json:"noShowCount"`
	Warning bool `json:"warning"`
}

// VerificationMetrics is the trust summary of a user
type VerificationMetrics struct {
	UserID                  string  `json:"userId"`
	VerificationCount       int     `json:"verificationCount"`
	NoShowCount             int     `json:"noShowCount"`
	ActivitiesCreatedCount  int     `json:"activitiesCreatedCount"`
	ActivitiesAttendedCount int     `json:"activitiesAttendedCount"`
	IsVerified              bool    `json:"isVerified"`
	TrustScore              float64 `json:"trustScore"`
}

// SearchQuery parameterizes a user search
type SearchQuery struct {
	Text      string
	Limit     int
	Offset    int
	WithTotal bool
}

// SearchResult is a page of visible matches
type SearchResult struct {
	Users  []*PublicProfile `json:"users"`
	Total  *int             `json:"total,omitempty"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}
