package validation

import (
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/rbrinkke/userprofile-api/internal/errors"
	"github.com/rbrinkke/userprofile-api/internal/models"
)

var now = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

func ptrTime(t time.Time) *time.Time { return &t }
func ptrStr(s string) *string { return &s }

func ptrDate(t time.Time) *models.Date {
	d := models.DateOf(t)
	return &d
}

func assertValidation(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CategoryValidation), "got %v", err)
}

func TestValidateAge(t *testing.T) {
	tests := []struct {
		name    string
		dob     time.Time
		wantErr bool
	}{
		{"exactly eighteen today", time.Date(2008, 6, 15, 0, 0, 0, 0, time.UTC), false},
		{"eighteen tomorrow", time.Date(2008, 6, 16, 0, 0, 0, 0, time.UTC), true},
		{"well over", time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC), false},
		{"in the future", now.Add(24 * time.Hour), true},
		{"eighteen tomorrow written with a positive offset", time.Date(2008, 6, 16, 0, 0, 0, 0, time.FixedZone("CEST", 2*3600)), true},
		{"eighteen today written with a negative offset", time.Date(2008, 6, 15, 23, 0, 0, 0, time.FixedZone("EDT", -4*3600)), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAge(tt.dob, now)
			if tt.wantErr {
				assertValidation(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAgeAt_UsesCalendarDates(t *testing.T) {
	dob := time.Date(2008, 10, 15, 0, 0, 0, 0, time.FixedZone("", 2*3600))
	at := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 17, AgeAt(dob, at))
	assertValidation(t, ValidateAge(dob, at))
	assert.Equal(t, 18, AgeAt(dob, at.Add(24*time.Hour)))
}

func TestValidateUsername(t *testing.T) {
	valid := []string{"abc", "John_Doe", "user_123", strings.Repeat("a", 30)}
	for _, u := range valid {
		assert.NoError(t, ValidateUsername(u), u)
	}
	invalid := []string{"", "ab", strings.Repeat("a", 31), "has space", "dash-ed", "émile", "dot.name"}
	for _, u := range invalid {
		assertValidation(t, ValidateUsername(u))
	}
}

func TestValidateWeight(t *testing.T) {
	assert.NoError(t, ValidateWeight(0))
	assert.NoError(t, ValidateWeight(1))
	assert.NoError(t, ValidateWeight(0.5))
	assertValidation(t, ValidateWeight(-0.01))
	assertValidation(t, ValidateWeight(1.01))
	assertValidation(t, ValidateWeight(math.NaN()))
}

func TestValidateInterestSet(t *testing.T) {
	t.Run("twenty is allowed", func(t *testing.T) {
		set := make([]models.InterestInput, 20)
		for i := range set {
			set[i] = models.InterestInput{Tag: fmt.Sprintf("tag%d", i), Weight: 1}
		}
		out, err := ValidateInterestSet(set)
		require.NoError(t, err)
		assert.Len(t, out, 20)
	})

	t.Run("twenty one is rejected", func(t *testing.T) {
		set := make([]models.InterestInput, 21)
		for i := range set {
			set[i] = models.InterestInput{Tag: fmt.Sprintf("tag%d", i), Weight: 1}
		}
		_, err := ValidateInterestSet(set)
		assertValidation(t, err)
	})

	t.Run("duplicate after trim", func(t *testing.T) {
		_, err := ValidateInterestSet([]models.InterestInput{
			{Tag: "hiking", Weight: 1},
			{Tag: "  hiking ", Weight: 0.5},
		})
		assertValidation(t, err)
	})

	t.Run("duplicate ignoring case", func(t *testing.T) {
		_, err := ValidateInterestSet([]models.InterestInput{
			{Tag: "Hiking", Weight: 1},
			{Tag: "hiking", Weight: 0.5},
		})
		assertValidation(t, err)
	})

	t.Run("out of range weight", func(t *testing.T) {
		_, err := ValidateInterestSet([]models.InterestInput{{Tag: "x", Weight: 2}})
		assertValidation(t, err)
	})

	t.Run("empty set clears", func(t *testing.T) {
		out, err := ValidateInterestSet(nil)
		require.NoError(t, err)
		assert.Empty(t, out)
	})
}

func TestNormalizeTag(t *testing.T) {
	tag, err := NormalizeTag("  board games ")
	require.NoError(t, err)
	assert.Equal(t, "board games", tag)

	_, err = NormalizeTag("   ")
	assertValidation(t, err)
	_, err = NormalizeTag(strings.Repeat("x", 101))
	assertValidation(t, err)
}

func TestValidateSubscription(t *testing.T) {
	future := ptrTime(now.Add(30 * 24 * time.Hour))
	past := ptrTime(now.Add(-time.Hour))

	assert.NoError(t, ValidateSubscription(models.SubscriptionFree, nil, now))
	assertValidation(t, ValidateSubscription(models.SubscriptionFree, future, now))
	assert.NoError(t, ValidateSubscription(models.SubscriptionClub, future, now))
	assert.NoError(t, ValidateSubscription(models.SubscriptionPremium, future, now))
	assertValidation(t, ValidateSubscription(models.SubscriptionPremium, nil, now))
	assertValidation(t, ValidateSubscription(models.SubscriptionClub, past, now))
	assertValidation(t, ValidateSubscription("gold", future, now))
}

func TestValidatePhotoURL(t *testing.T) {
	assert.NoError(t, ValidatePhotoURL("https://cdn.example.com/p/1.jpg"))
	assertValidation(t, ValidatePhotoURL("http://cdn.example.com/p/1.jpg"))
	assertValidation(t, ValidatePhotoURL("https:///nohost.jpg"))
	assertValidation(t, ValidatePhotoURL(""))
	assertValidation(t, ValidatePhotoURL("https://cdn.example.com/"+strings.Repeat("a", 500)))
}

func TestValidateLanguageAndTimezone(t *testing.T) {
	assert.NoError(t, ValidateLanguage("en"))
	assert.NoError(t, ValidateLanguage("nl-NL"))
	assertValidation(t, ValidateLanguage("english"))
	assertValidation(t, ValidateLanguage("e"))

	assert.NoError(t, ValidateTimezone("Europe/Amsterdam"))
	assert.NoError(t, ValidateTimezone("UTC"))
	assertValidation(t, ValidateTimezone("Mars/Olympus"))
	assertValidation(t, ValidateTimezone(""))
}

func TestValidateBan(t *testing.T) {
	assert.NoError(t, ValidateBan("spam", nil, now))
	assert.NoError(t, ValidateBan("spam", ptrTime(now.Add(time.Hour)), now))
	assertValidation(t, ValidateBan("  ", nil, now))
	assertValidation(t, ValidateBan("spam", ptrTime(now.Add(-time.Hour)), now))
	assertValidation(t, ValidateBan(strings.Repeat("r", 1001), nil, now))
}

func TestValidateProfilePatch(t *testing.T) {
	assertValidation(t, ValidateProfilePatch(models.ProfilePatch{}, now))
	assert.NoError(t, ValidateProfilePatch(models.ProfilePatch{FirstName: ptrStr("Ann")}, now))
	assertValidation(t, ValidateProfilePatch(models.ProfilePatch{FirstName: ptrStr(strings.Repeat("a", 101))}, now))
	assertValidation(t, ValidateProfilePatch(models.ProfilePatch{DateOfBirth: ptrDate(now.AddDate(-17, 0, 0))}, now))
	assert.NoError(t, ValidateProfilePatch(models.ProfilePatch{DateOfBirth: ptrDate(now.AddDate(-18, 0, 0))}, now))
}

func TestValidateSettingsFormat(t *testing.T) {
	assertValidation(t, ValidateSettingsFormat(models.SettingsPatch{}))
	assert.NoError(t, ValidateSettingsFormat(models.SettingsPatch{Timezone: ptrStr("Asia/Tokyo")}))
	assertValidation(t, ValidateSettingsFormat(models.SettingsPatch{LanguagePreference: ptrStr("xxx")}))
}

func TestNormalizeSearch(t *testing.T) {
	q, err := NormalizeSearch(models.SearchQuery{Text: "  jo ", Limit: 0, Offset: -4})
	require.NoError(t, err)
	assert.Equal(t, "jo", q.Text)
	assert.Equal(t, SearchDefaultLimit, q.Limit)
	assert.Equal(t, 0, q.Offset)

	q, err = NormalizeSearch(models.SearchQuery{Text: "john", Limit: 500})
	require.NoError(t, err)
	assert.Equal(t, SearchMaxLimit, q.Limit)

	_, err = NormalizeSearch(models.SearchQuery{Text: " j "})
	assertValidation(t, err)
}

func TestCanonicalUserID(t *testing.T) {
	id, err := CanonicalUserID(" 3F2504E0-4F89-11D3-9A0C-0305E82C3301 ")
	require.NoError(t, err)
	assert.Equal(t, "3f2504e0-4f89-11d3-9a0c-0305e82c3301", id)

	_, err = CanonicalUserID("not-a-uuid")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestNormalizePage(t *testing.T) {
	tests := []struct {
		limit, offset         int
		wantLimit, wantOffset int
	}{
		{0, 0, SearchDefaultLimit, 0},
		{-3, -1, SearchDefaultLimit, 0},
		{50, 10, 50, 10},
		{101, 0, SearchMaxLimit, 0},
	}
	for _, tt := range tests {
		l, o := NormalizePage(tt.limit, tt.offset)
		assert.Equal(t, tt.wantLimit, l)
		assert.Equal(t, tt.wantOffset, o)
	}
}
