package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	apperrors "github.com/rbrinkke/userprofile-api/internal/errors"
	"github.com/rbrinkke/userprofile-api/internal/models"
	"github.com/rbrinkke/userprofile-api/internal/storage"
)

// fakeState is everything the fake store persists
type fakeState struct {
	users     map[string]*models.User
	interests map[string]map[string]models.UserInterest
	settings  map[string]*models.UserSettings
	blocks    map[[2]string]bool
	decisions []models.ModerationDecision
}

func (s *fakeState) clone() *fakeState {
	c := &fakeState{
		users:     make(map[string]*models.User, len(s.users)),
		interests: make(map[string]map[string]models.UserInterest, len(s.interests)),
		settings:  make(map[string]*models.UserSettings, len(s.settings)),
		blocks:    make(map[[2]string]bool, len(s.blocks)),
		decisions: append([]models.ModerationDecision(nil), s.decisions...),
	}
	for k, u := range s.users {
		c.users[k] = u.Clone()
	}
	for k, set := range s.interests {
		m := make(map[string]models.UserInterest, len(set))
		for tag, in := range set {
			m[tag] = in
		}
		c.interests[k] = m
	}
	for k, v := range s.settings {
		cp := *v
		c.settings[k] = &cp
	}
	for k, v := range s.blocks {
		c.blocks[k] = v
	}
	return c
}

// fakeQueries implements storage.Querier over fakeState. Callers hold the
// store mutex, which stands in for row locks: a transaction holds it from
// begin to commit.
type fakeQueries struct {
	st    *fakeState
	fails map[string]error
}

var _ storage.Querier = (*fakeQueries)(nil)

func (f *fakeQueries) fail(op string) error {
	return f.fails[op]
}

func (f *fakeQueries) user(id string) (*models.User, error) {
	u, ok := f.st.users[id]
	if !ok {
		return nil, apperrors.NewNotFoundOrHidden("user")
	}
	return u, nil
}

func (f *fakeQueries) GetUser(_ context.Context, id string) (*models.User, error) {
	if err := f.fail("GetUser"); err != nil {
		return nil, err
	}
	u, err := f.user(id)
	if err != nil {
		return nil, err
	}
	return u.Clone(), nil
}

func (f *fakeQueries) GetUserForUpdate(ctx context.Context, id string) (*models.User, error) {
	if err := f.fail("GetUserForUpdate"); err != nil {
		return nil, err
	}
	return f.GetUser(ctx, id)
}

func (f *fakeQueries) UsernameTaken(_ context.Context, username, exclude string) (bool, error) {
	for id, u := range f.st.users {
		if id != exclude && strings.EqualFold(u.Username, username) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeQueries) UpdateUsername(_ context.Context, id, username string) error {
	if err := f.fail("UpdateUsername"); err != nil {
		return err
	}
	u, err := f.user(id)
	if err != nil {
		return err
	}
	for other, o := range f.st.users {
		if other != id && strings.EqualFold(o.Username, username) {
			return &pgconn.PgError{Code: "23505", ConstraintName: "users_username_lower_key"}
		}
	}
	u.Username = username
	return nil
}

func (f *fakeQueries) SaveProfile(_ context.Context, in *models.User) error {
	u, err := f.user(in.ID)
	if err != nil {
		return err
	}
	u.FirstName = in.FirstName
	u.LastName = in.LastName
	u.ProfileDescription = in.ProfileDescription
	u.DateOfBirth = in.DateOfBirth
	u.Gender = in.Gender
	return nil
}

func (f *fakeQueries) TouchLastSeen(_ context.Context, id string, at time.Time) error {
	u, err := f.user(id)
	if err != nil {
		return err
	}
	u.LastSeenAt = &at
	return nil
}

func (f *fakeQueries) SetMainPhoto(_ context.Context, id, url string, status models.ModerationStatus, at time.Time) error {
	u, err := f.user(id)
	if err != nil {
		return err
	}
	u.MainPhotoURL = &url
	u.MainPhotoModerationStatus = status
	u.MainPhotoUploadedAt = &at
	return nil
}

func (f *fakeQueries) SetModerationStatus(_ context.Context, id string, status models.ModerationStatus) error {
	u, err := f.user(id)
	if err != nil {
		return err
	}
	u.MainPhotoModerationStatus = status
	return nil
}

func (f *fakeQueries) InsertModerationDecision(_ context.Context, d models.ModerationDecision) error {
	if err := f.fail("InsertModerationDecision"); err != nil {
		return err
	}
	f.st.decisions = append(f.st.decisions, d)
	return nil
}

func (f *fakeQueries) ListPendingPhotos(_ context.Context, limit, offset int) ([]models.PendingPhoto, error) {
	var out []models.PendingPhoto
	for _, u := range f.st.users {
		if u.MainPhotoModerationStatus == models.ModerationPending && u.MainPhotoURL != nil {
			out = append(out, models.PendingPhoto{
				UserID:       u.ID,
				Username:     u.Username,
				MainPhotoURL: *u.MainPhotoURL,
				UploadedAt:   *u.MainPhotoUploadedAt,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].UploadedAt.Before(out[j].UploadedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return page(out, limit, offset), nil
}

func (f *fakeQueries) SetExtraPhotos(_ context.Context, id string, photos []string) error {
	u, err := f.user(id)
	if err != nil {
		return err
	}
	u.ProfilePhotosExtra = append([]string{}, photos...)
	return nil
}

func (f *fakeQueries) IncrementVerification(_ context.Context, id string) (int, error) {
	u, err := f.user(id)
	if err != nil {
		return 0, err
	}
	u.VerificationCount++
	return u.VerificationCount, nil
}

func (f *fakeQueries) IncrementNoShow(_ context.Context, id string) (int, error) {
	if err := f.fail("IncrementNoShow"); err != nil {
		return 0, err
	}
	u, err := f.user(id)
	if err != nil {
		return 0, err
	}
	u.NoShowCount++
	return u.NoShowCount, nil
}

func (f *fakeQueries) ApplyActivityDeltas(_ context.Context, id string, created, attended int) (models.ActivityCounters, error) {
	u, err := f.user(id)
	if err != nil {
		return models.ActivityCounters{}, err
	}
	u.ActivitiesCreatedCount = max(0, u.ActivitiesCreatedCount+created)
	u.ActivitiesAttendedCount = max(0, u.ActivitiesAttendedCount+attended)
	return models.ActivityCounters{Created: u.ActivitiesCreatedCount, Attended: u.ActivitiesAttendedCount}, nil
}

func (f *fakeQueries) UpdateSubscription(_ context.Context, id string, level models.SubscriptionLevel, expires *time.Time) error {
	u, err := f.user(id)
	if err != nil {
		return err
	}
	u.SubscriptionLevel = level
	u.SubscriptionExpiresAt = expires
	return nil
}

func (f *fakeQueries) SetCaptain(_ context.Context, id string, captain bool, since *time.Time, level models.SubscriptionLevel, expires *time.Time) error {
	u, err := f.user(id)
	if err != nil {
		return err
	}
	u.IsCaptain = captain
	u.CaptainSince = since
	u.SubscriptionLevel = level
	u.SubscriptionExpiresAt = expires
	return nil
}

func (f *fakeQueries) SetStatus(_ context.Context, id string, status models.AccountStatus, reason *string, expires *time.Time) error {
	u, err := f.user(id)
	if err != nil {
		return err
	}
	u.Status = status
	u.BanReason = reason
	u.BanExpiresAt = expires
	return nil
}

func (f *fakeQueries) Anonymize(_ context.Context, id, email, username string) error {
	u, err := f.user(id)
	if err != nil {
		return err
	}
	reason := "account deleted"
	u.Email = email
	u.Username = username
	u.FirstName = nil
	u.LastName = nil
	u.ProfileDescription = nil
	u.MainPhotoURL = nil
	u.MainPhotoUploadedAt = nil
	u.ProfilePhotosExtra = []string{}
	u.DateOfBirth = nil
	u.Gender = nil
	u.Status = models.StatusBanned
	u.BanReason = &reason
	u.BanExpiresAt = nil
	return nil
}

func (f *fakeQueries) ListExpiredBans(_ context.Context, now time.Time, limit int) ([]string, error) {
	var ids []string
	for id, u := range f.st.users {
		if u.Status == models.StatusTemporaryBan && u.BanExpiresAt != nil && !u.BanExpiresAt.After(now) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return page(ids, limit, 0), nil
}

func (f *fakeQueries) ListExpiredSubscriptions(_ context.Context, now time.Time, limit int) ([]string, error) {
	var ids []string
	for id, u := range f.st.users {
		if u.SubscriptionLevel != models.SubscriptionFree && u.SubscriptionExpiresAt != nil && !u.SubscriptionExpiresAt.After(now) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return page(ids, limit, 0), nil
}

func (f *fakeQueries) BlockExists(_ context.Context, a, b string) (bool, error) {
	return f.st.blocks[[2]string{a, b}] || f.st.blocks[[2]string{b, a}], nil
}

func (f *fakeQueries) ListInterests(_ context.Context, id string) ([]models.UserInterest, error) {
	out := make([]models.UserInterest, 0, len(f.st.interests[id]))
	for _, in := range f.st.interests[id] {
		out = append(out, in)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].Tag < out[j].Tag
	})
	return out, nil
}

func (f *fakeQueries) InterestExists(_ context.Context, id, tag string) (bool, error) {
	_, ok := f.st.interests[id][tag]
	return ok, nil
}

func (f *fakeQueries) CountInterests(_ context.Context, id string) (int, error) {
	return len(f.st.interests[id]), nil
}

func (f *fakeQueries) UpsertInterest(_ context.Context, id, tag string, weight float64) error {
	set := f.st.interests[id]
	if set == nil {
		set = map[string]models.UserInterest{}
		f.st.interests[id] = set
	}
	in, ok := set[tag]
	if !ok {
		in = models.UserInterest{UserID: id, Tag: tag, CreatedAt: time.Now()}
	}
	in.Weight = weight
	set[tag] = in
	return nil
}

func (f *fakeQueries) DeleteInterest(_ context.Context, id, tag string) error {
	delete(f.st.interests[id], tag)
	return nil
}

func (f *fakeQueries) DeleteInterests(_ context.Context, id string) error {
	delete(f.st.interests, id)
	return nil
}

func (f *fakeQueries) InsertInterests(ctx context.Context, id string, set []models.InterestInput) error {
	if err := f.fail("InsertInterests"); err != nil {
		return err
	}
	for _, in := range set {
		if err := f.UpsertInterest(ctx, id, in.Tag, in.Weight); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeQueries) GetSettings(_ context.Context, id string) (*models.UserSettings, error) {
	s, ok := f.st.settings[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (f *fakeQueries) EnsureSettings(ctx context.Context, d *models.UserSettings) (*models.UserSettings, error) {
	if _, ok := f.st.settings[d.UserID]; !ok {
		cp := *d
		f.st.settings[d.UserID] = &cp
	}
	return f.GetSettings(ctx, d.UserID)
}

func (f *fakeQueries) SaveSettings(_ context.Context, s *models.UserSettings) error {
	if err := f.fail("SaveSettings"); err != nil {
		return err
	}
	cp := *s
	f.st.settings[s.UserID] = &cp
	return nil
}

func (f *fakeQueries) ClearGhostMode(_ context.Context, id string) (bool, error) {
	s, ok := f.st.settings[id]
	if !ok || !s.GhostMode {
		return false, nil
	}
	s.GhostMode = false
	return true, nil
}

func (f *fakeQueries) DeleteSettings(_ context.Context, id string) error {
	delete(f.st.settings, id)
	return nil
}

func (f *fakeQueries) matches(requester, text string) []*models.User {
	text = strings.ToLower(text)
	contains := func(p *string) bool { return p != nil && strings.Contains(strings.ToLower(*p), text) }
	var out []*models.User
	for id, u := range f.st.users {
		if u.Status == models.StatusBanned || f.st.blocks[[2]string{requester, id}] || f.st.blocks[[2]string{id, requester}] {
			continue
		}
		if strings.Contains(strings.ToLower(u.Username), text) || contains(u.FirstName) || contains(u.LastName) {
			out = append(out, u.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].VerificationCount != out[j].VerificationCount {
			return out[i].VerificationCount > out[j].VerificationCount
		}
		return out[i].Username < out[j].Username
	})
	return out
}

func (f *fakeQueries) SearchUsers(_ context.Context, requester string, q models.SearchQuery) ([]*models.User, error) {
	return page(f.matches(requester, q.Text), q.Limit, q.Offset), nil
}

func (f *fakeQueries) CountSearch(_ context.Context, requester, text string) (int, error) {
	return len(f.matches(requester, text)), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit < len(items) {
		items = items[:limit]
	}
	return items
}

// fakeStore is an in-memory storage.Store. WithTx snapshots the state and
// restores it when fn fails, which models rollback.
type fakeStore struct {
	mu sync.Mutex
	q  *fakeQueries
	// txCount counts committed and rolled back units of work
	txCount int
}

var _ storage.Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{q: &fakeQueries{
		st: &fakeState{
			users:     map[string]*models.User{},
			interests: map[string]map[string]models.UserInterest{},
			settings:  map[string]*models.UserSettings{},
			blocks:    map[[2]string]bool{},
		},
		fails: map[string]error{},
	}}
}

func (s *fakeStore) WithTx(ctx context.Context, fn func(q storage.Querier) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txCount++
	snapshot := s.q.st.clone()
	if err := fn(s.q); err != nil {
		s.q.st = snapshot
		return err
	}
	return nil
}

func (s *fakeStore) failOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.q.fails[op] = err
}

func (s *fakeStore) addUser(u *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ProfilePhotosExtra == nil {
		u.ProfilePhotosExtra = []string{}
	}
	if u.SubscriptionLevel == "" {
		u.SubscriptionLevel = models.SubscriptionFree
	}
	if u.Status == "" {
		u.Status = models.StatusActive
	}
	if u.MainPhotoModerationStatus == "" {
		u.MainPhotoModerationStatus = models.ModerationPending
	}
	s.q.st.users[u.ID] = u.Clone()
}

func (s *fakeStore) block(blocker, blocked string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.q.st.blocks[[2]string{blocker, blocked}] = true
}

// snapshotUser reads a user outside the engine
func (s *fakeStore) snapshotUser(id string) *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.st.users[id].Clone()
}

func (s *fakeStore) snapshotSettings(id string) *models.UserSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.q.st.settings[id]
	if !ok {
		return nil
	}
	cp := *st
	return &cp
}

// setGhost writes a settings row directly, bypassing the premium gate
func (s *fakeStore) setGhost(id string, on bool, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := models.DefaultSettings(id, now)
	st.GhostMode = on
	s.q.st.settings[id] = st
}

func (s *fakeStore) decisions() []models.ModerationDecision {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ModerationDecision(nil), s.q.st.decisions...)
}

// Non-transactional calls take the lock for a single statement

func (s *fakeStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.GetUser(ctx, id)
}

func (s *fakeStore) GetUserForUpdate(ctx context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.GetUserForUpdate(ctx, id)
}

func (s *fakeStore) UsernameTaken(ctx context.Context, username, exclude string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.UsernameTaken(ctx, username, exclude)
}

func (s *fakeStore) UpdateUsername(ctx context.Context, id, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.UpdateUsername(ctx, id, username)
}

func (s *fakeStore) SaveProfile(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.SaveProfile(ctx, u)
}

func (s *fakeStore) TouchLastSeen(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.TouchLastSeen(ctx, id, at)
}

func (s *fakeStore) SetMainPhoto(ctx context.Context, id, url string, status models.ModerationStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.SetMainPhoto(ctx, id, url, status, at)
}

func (s *fakeStore) SetModerationStatus(ctx context.Context, id string, status models.ModerationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.SetModerationStatus(ctx, id, status)
}

func (s *fakeStore) InsertModerationDecision(ctx context.Context, d models.ModerationDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.InsertModerationDecision(ctx, d)
}

func (s *fakeStore) ListPendingPhotos(ctx context.Context, limit, offset int) ([]models.PendingPhoto, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.ListPendingPhotos(ctx, limit, offset)
}

func (s *fakeStore) SetExtraPhotos(ctx context.Context, id string, photos []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.SetExtraPhotos(ctx, id, photos)
}

func (s *fakeStore) IncrementVerification(ctx context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.IncrementVerification(ctx, id)
}

func (s *fakeStore) IncrementNoShow(ctx context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.IncrementNoShow(ctx, id)
}

func (s *fakeStore) ApplyActivityDeltas(ctx context.Context, id string, created, attended int) (models.ActivityCounters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.ApplyActivityDeltas(ctx, id, created, attended)
}

func (s *fakeStore) UpdateSubscription(ctx context.Context, id string, level models.SubscriptionLevel, expires *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.UpdateSubscription(ctx, id, level, expires)
}

func (s *fakeStore) SetCaptain(ctx context.Context, id string, captain bool, since *time.Time, level models.SubscriptionLevel, expires *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.SetCaptain(ctx, id, captain, since, level, expires)
}

func (s *fakeStore) SetStatus(ctx context.Context, id string, status models.AccountStatus, reason *string, expires *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.SetStatus(ctx, id, status, reason, expires)
}

func (s *fakeStore) Anonymize(ctx context.Context, id, email, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.Anonymize(ctx, id, email, username)
}

func (s *fakeStore) ListExpiredBans(ctx context.Context, now time.Time, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.ListExpiredBans(ctx, now, limit)
}

func (s *fakeStore) ListExpiredSubscriptions(ctx context.Context, now time.Time, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.ListExpiredSubscriptions(ctx, now, limit)
}

func (s *fakeStore) BlockExists(ctx context.Context, a, b string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.BlockExists(ctx, a, b)
}

func (s *fakeStore) ListInterests(ctx context.Context, id string) ([]models.UserInterest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.ListInterests(ctx, id)
}

func (s *fakeStore) InterestExists(ctx context.Context, id, tag string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.InterestExists(ctx, id, tag)
}

func (s *fakeStore) CountInterests(ctx context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.CountInterests(ctx, id)
}

func (s *fakeStore) UpsertInterest(ctx context.Context, id, tag string, weight float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.UpsertInterest(ctx, id, tag, weight)
}

func (s *fakeStore) DeleteInterest(ctx context.Context, id, tag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.DeleteInterest(ctx, id, tag)
}

func (s *fakeStore) DeleteInterests(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.DeleteInterests(ctx, id)
}

func (s *fakeStore) InsertInterests(ctx context.Context, id string, set []models.InterestInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.InsertInterests(ctx, id, set)
}

func (s *fakeStore) GetSettings(ctx context.Context, id string) (*models.UserSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.GetSettings(ctx, id)
}

func (s *fakeStore) EnsureSettings(ctx context.Context, d *models.UserSettings) (*models.UserSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.EnsureSettings(ctx, d)
}

func (s *fakeStore) SaveSettings(ctx context.Context, st *models.UserSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.SaveSettings(ctx, st)
}

func (s *fakeStore) ClearGhostMode(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.ClearGhostMode(ctx, id)
}

func (s *fakeStore) DeleteSettings(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.DeleteSettings(ctx, id)
}

func (s *fakeStore) SearchUsers(ctx context.Context, requester string, q models.SearchQuery) ([]*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.SearchUsers(ctx, requester, q)
}

func (s *fakeStore) CountSearch(ctx context.Context, requester, text string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.CountSearch(ctx, requester, text)
}
