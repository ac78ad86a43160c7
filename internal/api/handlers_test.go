package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/rbrinkke/userprofile-api/internal/errors"
	"github.com/rbrinkke/userprofile-api/internal/models"
	"github.com/rbrinkke/userprofile-api/internal/service"
)

func publicView(id string) *service.ProfileView {
	return &service.ProfileView{Public: &models.PublicProfile{ID: id, Username: "other"}}
}

func TestGetMe_Cache(t *testing.T) {
	var loads int32
	engine := &mockEngine{
		getProfileFunc: func(_ context.Context, subjectID, _ string) (*service.ProfileView, error) {
			atomic.AddInt32(&loads, 1)
			return &service.ProfileView{Full: &models.Profile{User: &models.User{ID: subjectID, Username: "me_user"}}}, nil
		},
		getSettingsFunc: func(_ context.Context, userID string) (*models.UserSettings, error) {
			return models.DefaultSettings(userID, time.Now()), nil
		},
		updateUsernameFunc: func(_ context.Context, userID, username string) (*models.User, error) {
			return &models.User{ID: userID, Username: username}, nil
		},
	}
	s := newTestServer(t, engine, nil)
	me := asUser(t, meID)

	w := s.do(t, http.MethodGet, "/api/v1/users/me", nil, me)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	first := w.Body.String()

	w = s.do(t, http.MethodGet, "/api/v1/users/me", nil, me)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
	assert.JSONEq(t, first, w.Body.String())
	assert.Equal(t, int32(1), atomic.LoadInt32(&loads))

	w = s.do(t, http.MethodGet, "/api/v1/users/me/settings", nil, me)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, s.redis.Keys(), 2)

	// any mutation drops every read model of the user
	w = s.do(t, http.MethodPatch, "/api/v1/users/me/username", map[string]string{"username": "renamed"}, me)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"username":"renamed"}`, w.Body.String())
	assert.Empty(t, s.redis.Keys())

	w = s.do(t, http.MethodGet, "/api/v1/users/me", nil, me)
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	assert.Equal(t, int32(2), atomic.LoadInt32(&loads))
}

func TestGetMe_CacheDown(t *testing.T) {
	engine := &mockEngine{
		getProfileFunc: func(_ context.Context, subjectID, _ string) (*service.ProfileView, error) {
			return &service.ProfileView{Full: &models.Profile{User: &models.User{ID: subjectID}}}, nil
		},
	}
	s := newTestServer(t, engine, nil)
	s.redis.Close()

	w := s.do(t, http.MethodGet, "/api/v1/users/me", nil, asUser(t, meID))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{
			name:     "not found is generic",
			err:      apperrors.NewNotFoundOrHidden("user"),
			wantCode: http.StatusNotFound,
			wantBody: apperrors.CodeNotFound,
		},
		{
			name:     "transient",
			err:      apperrors.NewTransientError("get user", context.DeadlineExceeded),
			wantCode: http.StatusServiceUnavailable,
			wantBody: apperrors.CodeTransient,
		},
		{
			name:     "internal is masked",
			err:      apperrors.NewInternalError("get user", errors.New("pq: relation users missing")),
			wantCode: http.StatusInternalServerError,
			wantBody: apperrors.CodeInternal,
		},
		{
			name:     "unclassified",
			err:      errors.New("boom"),
			wantCode: http.StatusInternalServerError,
			wantBody: apperrors.CodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &mockEngine{
				getProfileFunc: func(context.Context, string, string) (*service.ProfileView, error) {
					return nil, tt.err
				},
			}
			s := newTestServer(t, engine, nil)

			w := s.do(t, http.MethodGet, "/api/v1/users/"+otherID, nil, asUser(t, meID))
			require.Equal(t, tt.wantCode, w.Code)
			body := decodeError(t, w)
			assert.Equal(t, tt.wantBody, body.Code)
			assert.NotContains(t, w.Body.String(), "relation users")
			if tt.wantCode == http.StatusServiceUnavailable {
				assert.NotEmpty(t, w.Header().Get("Retry-After"))
			}
		})
	}
}

func TestUpdateUsername_Taken(t *testing.T) {
	engine := &mockEngine{
		updateUsernameFunc: func(context.Context, string, string) (*models.User, error) {
			return nil, apperrors.NewConstraintConflictError(apperrors.CodeUsernameTaken, "username already taken")
		},
	}
	s := newTestServer(t, engine, nil)

	w := s.do(t, http.MethodPatch, "/api/v1/users/me/username", map[string]string{"username": "taken"}, asUser(t, meID))
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, apperrors.CodeUsernameTaken, decodeError(t, w).Code)
}

func TestInvalidBody(t *testing.T) {
	s := newTestServer(t, &mockEngine{}, nil)
	me := asUser(t, meID)

	w := s.do(t, http.MethodPatch, "/api/v1/users/me/username", map[string]string{"nickname": "x"}, me)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperrors.CodeInvalidRequestBody, decodeError(t, w).Code)

	w = s.do(t, http.MethodGet, "/api/v1/users/search?q=ab&limit=ten", nil, me)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateMe_CalendarDateOfBirth(t *testing.T) {
	var got models.ProfilePatch
	engine := &mockEngine{
		updateProfileFunc: func(_ context.Context, userID string, patch models.ProfilePatch) (*models.User, error) {
			got = patch
			return &models.User{ID: userID, Username: "me"}, nil
		},
	}
	s := newTestServer(t, engine, nil)
	me := asUser(t, meID)

	w := s.do(t, http.MethodPatch, "/api/v1/users/me", map[string]string{"dateOfBirth": "1990-05-15"}, me)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NotNil(t, got.DateOfBirth)
	assert.Equal(t, models.NewDate(1990, time.May, 15), *got.DateOfBirth)

	w = s.do(t, http.MethodPatch, "/api/v1/users/me", map[string]string{"dateOfBirth": "15/05/1990"}, me)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperrors.CodeInvalidRequestBody, decodeError(t, w).Code)
}

func TestDeleteMe(t *testing.T) {
	var deleted string
	engine := &mockEngine{
		anonymizeFunc: func(_ context.Context, userID string) error {
			deleted = userID
			return nil
		},
	}
	s := newTestServer(t, engine, nil)
	me := asUser(t, meID)

	w := s.do(t, http.MethodDelete, "/api/v1/users/me", map[string]string{"confirmation": "yes"}, me)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, deleted)

	w = s.do(t, http.MethodDelete, "/api/v1/users/me", map[string]string{"confirmation": DeleteConfirmation}, me)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, meID, deleted)
}

func TestGetUser_RecordsView(t *testing.T) {
	engine := &mockEngine{
		getProfileFunc: func(_ context.Context, subjectID, viewerID string) (*service.ProfileView, error) {
			if subjectID == viewerID {
				return &service.ProfileView{Full: &models.Profile{User: &models.User{ID: subjectID}}}, nil
			}
			return publicView(subjectID), nil
		},
	}
	s := newTestServer(t, engine, nil)

	w := s.do(t, http.MethodGet, "/api/v1/users/"+otherID, nil, asUser(t, strings.ToUpper(meID)))
	require.Equal(t, http.StatusOK, w.Code)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.NotContains(t, got, "email")

	views := s.views.recorded()
	require.Len(t, views, 1)
	assert.Equal(t, otherID, views[0].ViewedUserID)
	assert.Equal(t, meID, views[0].ViewerUserID)

	// own profile is not a view
	w = s.do(t, http.MethodGet, "/api/v1/users/"+meID, nil, asUser(t, meID))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, s.views.recorded(), 1)
}

func TestGetUser_GhostViewerLeavesNoTrace(t *testing.T) {
	engine := &mockEngine{
		getProfileFunc: func(_ context.Context, subjectID, _ string) (*service.ProfileView, error) {
			return publicView(subjectID), nil
		},
		isGhostFunc: func(context.Context, string) (bool, error) { return true, nil },
	}
	s := newTestServer(t, engine, nil)

	w := s.do(t, http.MethodGet, "/api/v1/users/"+otherID, nil, asUser(t, meID))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, s.views.recorded())
}

func TestGetUser_ViewFailureDoesNotFailRead(t *testing.T) {
	engine := &mockEngine{
		getProfileFunc: func(_ context.Context, subjectID, _ string) (*service.ProfileView, error) {
			return publicView(subjectID), nil
		},
	}
	s := newTestServer(t, engine, nil)
	s.views.err = errors.New("clickhouse unavailable")

	w := s.do(t, http.MethodGet, "/api/v1/users/"+otherID, nil, asUser(t, meID))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUpdateSettings_GhostNeedsPremium(t *testing.T) {
	engine := &mockEngine{
		updateSettingsFunc: func(context.Context, string, models.SettingsPatch) (*models.UserSettings, error) {
			return nil, apperrors.NewPremiumRequiredError("ghost mode")
		},
	}
	s := newTestServer(t, engine, nil)

	w := s.do(t, http.MethodPatch, "/api/v1/users/me/settings", map[string]bool{"ghostMode": true}, asUser(t, meID))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperrors.CodePremiumRequired, decodeError(t, w).Code)
}

func TestSearch_PassesQuery(t *testing.T) {
	var got models.SearchQuery
	engine := &mockEngine{
		searchFunc: func(_ context.Context, requesterID string, q models.SearchQuery) (*models.SearchResult, error) {
			got = q
			total := 0
			return &models.SearchResult{Users: []*models.PublicProfile{}, Total: &total, Limit: q.Limit, Offset: q.Offset}, nil
		},
	}
	s := newTestServer(t, engine, nil)

	w := s.do(t, http.MethodGet, "/api/v1/users/search?q=ann&limit=5&offset=10&total=true", nil, asUser(t, meID))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.SearchQuery{Text: "ann", Limit: 5, Offset: 10, WithTotal: true}, got)
	assert.Contains(t, w.Body.String(), `"total":0`)
}

func TestBan(t *testing.T) {
	var gotExpiry *time.Time
	engine := &mockEngine{
		banFunc: func(_ context.Context, userID, reason string, expiresAt *time.Time) (*models.User, error) {
			gotExpiry = expiresAt
			status := models.StatusBanned
			if expiresAt != nil {
				status = models.StatusTemporaryBan
			}
			return &models.User{ID: userID, Status: status, BanReason: &reason, BanExpiresAt: expiresAt}, nil
		},
	}
	s := newTestServer(t, engine, nil)
	admin := asAdmin(t, meID)

	w := s.do(t, http.MethodPost, "/api/v1/admin/users/"+otherID+"/ban", map[string]interface{}{
		"reason":    "spam",
		"expiresAt": "2026-12-01T00:00:00Z",
	}, admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NotNil(t, gotExpiry)

	var resp accountStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.StatusTemporaryBan, resp.Status)
	assert.Equal(t, "spam", *resp.BanReason)
}
