package auth

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/idevgames/internal/apperror"
	"github.com/sakif/idevgames/internal/metrics"
	"github.com/sakif/idevgames/internal/model"
	"github.com/sakif/idevgames/internal/session"
)

// fakeStore is an in-memory IdentityReader.
type fakeStore struct {
	mu     sync.Mutex
	users  map[int64]model.User
	exts   map[int64]model.ExternalIdentity // by user id
	grants map[int64][]model.PermissionGrant
	err    error // returned by every call when set
	calls  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:  map[int64]model.User{},
		exts:   map[int64]model.ExternalIdentity{},
		grants: map[int64][]model.PermissionGrant{},
	}
}

func (f *fakeStore) addUser(id, externalID int64, login string, perms ...string) {
	f.users[id] = model.User{ID: id, PreferredName: "Bob"}
	f.exts[id] = model.ExternalIdentity{ExternalID: externalID, UserID: id, Login: login}
	for i, p := range perms {
		f.grants[id] = append(f.grants[id], model.PermissionGrant{ID: int64(i + 1), UserID: id, Name: p})
	}
}

func (f *fakeStore) FindUserByID(_ context.Context, id int64) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (f *fakeStore) FindExternalIdentityByUserID(_ context.Context, userID int64) (*model.ExternalIdentity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	e, ok := f.exts[userID]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (f *fakeStore) FindPermissionsByUserID(_ context.Context, userID int64) ([]model.PermissionGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.grants[userID], nil
}

func sessionWith(userID string) *session.Session {
	s := session.New()
	if userID != "" {
		s.Set(SessionUserKey, userID)
	}
	return s
}

func newTestResolver(store IdentityReader) (*Resolver, *metrics.Metrics) {
	m := metrics.New()
	return NewResolver(store, nil, m), m
}

func resolutions(t *testing.T, m *metrics.Metrics, outcome string) float64 {
	t.Helper()
	mfs, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != "idevgames_identity_resolutions_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, l := range metric.GetLabel() {
				if l.GetName() == "outcome" && l.GetValue() == outcome {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

// =========================================================================
// RESOLVE TESTS
// =========================================================================

func TestResolve_NoCredentialIsAnonymous(t *testing.T) {
	store := newFakeStore()
	r, m := newTestResolver(store)

	id, err := r.Resolve(context.Background(), session.New())
	require.NoError(t, err)
	assert.Nil(t, id)
	assert.Zero(t, store.calls, "no credential means no store access")
	assert.Equal(t, 1.0, resolutions(t, m, metrics.OutcomeAnonymous))
}

func TestResolve_ReturnsExactPermissionSet(t *testing.T) {
	store := newFakeStore()
	store.addUser(7, 42, "ed", "editor", "admin", "editor")
	r, _ := newTestResolver(store)

	id, err := r.Resolve(context.Background(), sessionWith("7"))
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, int64(7), id.User.ID)
	assert.Equal(t, int64(42), id.External.ExternalID)
	assert.ElementsMatch(t, []string{"admin", "editor"}, id.Permissions)
}

func TestResolve_HealsStaleCredentials(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"deleted user", "99"},
		{"not a number", "seven"},
		{"negative", "-3"},
		{"zero", "0"},
		{"overflow", "99999999999999999999999"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			store.addUser(7, 42, "ed")
			r, m := newTestResolver(store)

			sess := session.New()
			sess.Set(SessionUserKey, tt.value)

			id, err := r.Resolve(context.Background(), sess)
			require.NoError(t, err)
			assert.Nil(t, id)

			_, still := sess.Get(SessionUserKey)
			assert.False(t, still, "stale credential must be removed")
			assert.True(t, sess.Modified())
			assert.Equal(t, 1.0, resolutions(t, m, metrics.OutcomeHealed))
		})
	}
}

func TestResolve_StaleCredentialStaysAnonymousOnReplay(t *testing.T) {
	store := newFakeStore()
	r, _ := newTestResolver(store)

	// Two requests carrying the same pre-removal cookie.
	for range 2 {
		id, err := r.Resolve(context.Background(), sessionWith("99"))
		require.NoError(t, err)
		assert.Nil(t, id)
	}
}

func TestResolve_UserWithoutExternalIdentityIsInconsistent(t *testing.T) {
	store := newFakeStore()
	store.users[7] = model.User{ID: 7}
	r, _ := newTestResolver(store)

	sess := sessionWith("7")
	id, err := r.Resolve(context.Background(), sess)
	assert.Nil(t, id)
	assert.ErrorIs(t, err, apperror.ErrIdentityInconsistent)

	_, kept := sess.Get(SessionUserKey)
	assert.True(t, kept, "an inconsistent identity is surfaced, not healed")
}

func TestResolve_StoreErrorPropagates(t *testing.T) {
	store := newFakeStore()
	store.err = apperror.Store("finding user 7", errors.New("database is locked"))
	r, m := newTestResolver(store)

	sess := sessionWith("7")
	_, err := r.Resolve(context.Background(), sess)
	assert.ErrorIs(t, err, apperror.ErrStore)

	_, kept := sess.Get(SessionUserKey)
	assert.True(t, kept, "a store failure must not log the user out")
	assert.Equal(t, 1.0, resolutions(t, m, metrics.OutcomeError))
}

// =========================================================================
// GUARD TESTS
// =========================================================================

func TestOptional(t *testing.T) {
	store := newFakeStore()
	store.addUser(7, 42, "ed", "admin")
	store.addUser(8, 43, "ann")
	r, _ := newTestResolver(store)
	ctx := context.Background()

	anon, err := r.Optional(ctx, session.New())
	require.NoError(t, err)
	assert.True(t, anon.Anonymous())
	assert.False(t, anon.IsAdmin())

	stale, err := r.Optional(ctx, sessionWith("404"))
	require.NoError(t, err)
	assert.True(t, stale.Anonymous())

	admin, err := r.Optional(ctx, sessionWith("7"))
	require.NoError(t, err)
	assert.True(t, admin.IsAdmin())

	user, err := r.Optional(ctx, sessionWith("8"))
	require.NoError(t, err)
	assert.False(t, user.Anonymous())
	assert.False(t, user.IsAdmin())
}

func TestAdminOnly(t *testing.T) {
	store := newFakeStore()
	store.addUser(7, 42, "ed", "admin")
	store.addUser(8, 43, "ann", "Admin")

	tests := []struct {
		name    string
		sess    *session.Session
		wantErr error
		reason  string
	}{
		{"anonymous", session.New(), apperror.ErrUnauthorized, "unauthorized"},
		{"stale credential", sessionWith("404"), apperror.ErrUnauthorized, "unauthorized"},
		{"not admin (names are case-sensitive)", sessionWith("8"), apperror.ErrForbidden, "forbidden"},
		{"admin", sessionWith("7"), nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, m := newTestResolver(store)

			id, err := r.AdminOnly(context.Background(), tt.sess)
			if tt.wantErr == nil {
				require.NoError(t, err)
				require.NotNil(t, id)
				assert.Equal(t, int64(7), id.User.ID)
				return
			}

			assert.Nil(t, id)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.NotErrorIs(t, err, apperror.ErrNotFound)
			assert.True(t, IsRejection(err))
			n, err := testutil.GatherAndCount(m.Registry(), "idevgames_guard_rejections_total")
			require.NoError(t, err)
			assert.Equal(t, 1, n)
		})
	}
}

func TestAdminOnly_StoreErrorIsNotARejection(t *testing.T) {
	store := newFakeStore()
	store.err = apperror.Store("finding user 7", errors.New("disk I/O error"))
	r, _ := newTestResolver(store)

	_, err := r.AdminOnly(context.Background(), sessionWith("7"))
	assert.ErrorIs(t, err, apperror.ErrStore)
	assert.False(t, IsRejection(err))
}
