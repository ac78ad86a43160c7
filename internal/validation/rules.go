// Package validation holds the pure business rules applied before any
// storage mutation. Nothing here touches storage.
package validation

import (
	"math"
	"net/url"
	"regexp"
	"strings"
	"time"
	_ "time/tzdata" // IANA zones without relying on the host

	"github.com/google/uuid"

	apperrors "github.com/rbrinkke/userprofile-api/internal/errors"
	"github.com/rbrinkke/userprofile-api/internal/models"
)

// Limits enforced by the rules below
const (
	MinimumAge           = 18
	UsernameMinLength    = 3
	UsernameMaxLength    = 30
	InterestTagMaxLength = 100
	MaxCounterDelta      = 100
	PhotoURLMaxLength    = 500
	NameMaxLength        = 100
	DescriptionMaxLength = 5000
	GenderMaxLength      = 50
	BanReasonMaxLength   = 1000
	SearchMinLength      = 2
	SearchMaxLength      = 100
	SearchMaxLimit       = 100
	SearchDefaultLimit   = 20
)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,30}$`)
	languagePattern = regexp.MustCompile(`^[a-z]{2}([-_][A-Za-z]{2})?$`)
)

// CanonicalUserID parses id as a UUID and returns its canonical form. A
// malformed id cannot name any user, so it is reported as not found.
func CanonicalUserID(id string) (string, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return "", apperrors.NewNotFoundOrHidden("user")
	}
	return parsed.String(), nil
}

// AgeAt returns the completed years between two calendar dates, each read
// in its own location.
func AgeAt(dob, now time.Time) int {
	by, bm, bd := dob.Date()
	ny, nm, nd := now.Date()
	age := ny - by
	if nm < bm || (nm == bm && nd < bd) {
		age--
	}
	return age
}

// ValidateAge requires dob not in the future and at least MinimumAge years before now
func ValidateAge(dob, now time.Time) error {
	if models.DateOf(dob).After(models.DateOf(now).Time) {
		return apperrors.NewValidationError("dateOfBirth", "cannot be in the future")
	}
	if AgeAt(dob, now) < MinimumAge {
		return apperrors.NewValidationError("dateOfBirth", "user must be at least 18 years old")
	}
	return nil
}

// ValidateUsername checks format only; uniqueness is a storage question
func ValidateUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return apperrors.NewValidationError("username", "must be 3-30 characters of letters, digits or underscore")
	}
	return nil
}

// ValidateWeight requires a finite weight in [0,1]
func ValidateWeight(weight float64) error {
	if math.IsNaN(weight) || weight < 0 || weight > 1 {
		return apperrors.NewValidationError("weight", "must be between 0 and 1")
	}
	return nil
}

// NormalizeTag trims tag and checks its length
func NormalizeTag(tag string) (string, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return "", apperrors.NewValidationError("tag", "must not be empty")
	}
	if len([]rune(tag)) > InterestTagMaxLength {
		return "", apperrors.NewValidationError("tag", "must be at most 100 characters")
	}
	return tag, nil
}

// ValidateInterest normalizes a single tag/weight pair
func ValidateInterest(in models.InterestInput) (models.InterestInput, error) {
	tag, err := NormalizeTag(in.Tag)
	if err != nil {
		return models.InterestInput{}, err
	}
	if err := ValidateWeight(in.Weight); err != nil {
		return models.InterestInput{}, err
	}
	return models.InterestInput{Tag: tag, Weight: in.Weight}, nil
}

// ValidateInterestSet normalizes a full replacement set. It rejects more
// than MaxInterests entries and tags that repeat ignoring case.
func ValidateInterestSet(set []models.InterestInput) ([]models.InterestInput, error) {
	if len(set) > models.MaxInterests {
		return nil, apperrors.NewValidationError("interests", "at most 20 interests allowed")
	}
	seen := make(map[string]struct{}, len(set))
	out := make([]models.InterestInput, 0, len(set))
	for _, in := range set {
		norm, err := ValidateInterest(in)
		if err != nil {
			return nil, err
		}
		key := strings.ToLower(norm.Tag)
		if _, dup := seen[key]; dup {
			return nil, apperrors.NewValidationError("interests", "duplicate tag "+norm.Tag)
		}
		seen[key] = struct{}{}
		out = append(out, norm)
	}
	return out, nil
}

// ValidateCounterDelta bounds an activity counter delta to [-100, 100]
func ValidateCounterDelta(field string, delta int) error {
	if delta < -MaxCounterDelta || delta > MaxCounterDelta {
		return apperrors.NewValidationError(field, "delta must be between -100 and 100")
	}
	return nil
}

// ApplyDelta floors current+delta at zero
func ApplyDelta(current, delta int) int {
	return max(0, current+delta)
}

// ValidateSubscription enforces the expiry rule for each level: free has
// none, club and premium need one in the future.
func ValidateSubscription(level models.SubscriptionLevel, expiresAt *time.Time, now time.Time) error {
	if !level.Valid() {
		return apperrors.NewValidationError("subscriptionLevel", "must be one of free, club, premium")
	}
	if level == models.SubscriptionFree {
		if expiresAt != nil {
			return apperrors.NewValidationError("subscriptionExpiresAt", "free subscription cannot have an expiry")
		}
		return nil
	}
	if expiresAt == nil {
		return apperrors.NewValidationError("subscriptionExpiresAt", "required for club and premium")
	}
	if !expiresAt.After(now) {
		return apperrors.NewValidationError("subscriptionExpiresAt", "must be in the future")
	}
	return nil
}

// ValidatePhotoURL requires an absolute https URL of bounded length
func ValidatePhotoURL(raw string) error {
	if raw == "" {
		return apperrors.NewValidationError("photoUrl", "must not be empty")
	}
	if len(raw) > PhotoURLMaxLength {
		return apperrors.NewValidationError("photoUrl", "must be at most 500 characters")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return apperrors.NewValidationError("photoUrl", "must be an https URL")
	}
	return nil
}

// ValidateLanguage accepts "en" or "en-US" style codes
func ValidateLanguage(lang string) error {
	if !languagePattern.MatchString(lang) {
		return apperrors.NewValidationError("languagePreference", "must be a 2 or 5 character language code")
	}
	return nil
}

// ValidateTimezone requires an IANA zone name
func ValidateTimezone(tz string) error {
	if tz == "" || tz == "Local" {
		return apperrors.NewValidationError("timezone", "must be an IANA timezone")
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return apperrors.NewValidationError("timezone", "must be an IANA timezone")
	}
	return nil
}

// ValidateBan checks the reason and, for temporary bans, that expiry is in the future
func ValidateBan(reason string, expiresAt *time.Time, now time.Time) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return apperrors.NewValidationError("reason", "must not be empty")
	}
	if len([]rune(reason)) > BanReasonMaxLength {
		return apperrors.NewValidationError("reason", "must be at most 1000 characters")
	}
	if expiresAt != nil && !expiresAt.After(now) {
		return apperrors.NewValidationError("expiresAt", "must be in the future")
	}
	return nil
}

// ValidateProfilePatch checks every present field of p
func ValidateProfilePatch(p models.ProfilePatch, now time.Time) error {
	if p.IsEmpty() {
		return apperrors.NewValidationError("profile", "no fields to update")
	}
	if err := maxLen("firstName", p.FirstName, NameMaxLength); err != nil {
		return err
	}
	if err := maxLen("lastName", p.LastName, NameMaxLength); err != nil {
		return err
	}
	if err := maxLen("profileDescription", p.ProfileDescription, DescriptionMaxLength); err != nil {
		return err
	}
	if err := maxLen("gender", p.Gender, GenderMaxLength); err != nil {
		return err
	}
	if p.DateOfBirth != nil {
		if err := ValidateAge(p.DateOfBirth.Time, now); err != nil {
			return err
		}
	}
	return nil
}

// ValidateSettingsFormat checks the free-form settings fields. The ghost
// mode premium gate needs the subscription and is applied by the engine.
func ValidateSettingsFormat(p models.SettingsPatch) error {
	if p.IsEmpty() {
		return apperrors.NewValidationError("settings", "no fields to update")
	}
	if p.LanguagePreference != nil {
		if err := ValidateLanguage(*p.LanguagePreference); err != nil {
			return err
		}
	}
	if p.Timezone != nil {
		if err := ValidateTimezone(*p.Timezone); err != nil {
			return err
		}
	}
	return nil
}

// NormalizeSearch trims the query and clamps paging
func NormalizeSearch(q models.SearchQuery) (models.SearchQuery, error) {
	q.Text = strings.TrimSpace(q.Text)
	n := len([]rune(q.Text))
	if n < SearchMinLength {
		return q, apperrors.NewValidationError("q", "must be at least 2 characters")
	}
	if n > SearchMaxLength {
		return q, apperrors.NewValidationError("q", "must be at most 100 characters")
	}
	q.Limit, q.Offset = NormalizePage(q.Limit, q.Offset)
	return q, nil
}

// NormalizePage defaults a non-positive limit, caps it and floors offset at zero
func NormalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = SearchDefaultLimit
	}
	return min(limit, SearchMaxLimit), max(offset, 0)
}

func maxLen(field string, v *string, limit int) error {
	if v != nil && len([]rune(*v)) > limit {
		return apperrors.NewValidationError(field, "too long")
	}
	return nil
}
