package service

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/sakif/idevgames/internal/apperror"
	"github.com/sakif/idevgames/internal/github"
	"github.com/sakif/idevgames/internal/model"
	"github.com/sakif/idevgames/internal/repository"
)

var discardLogger = slog.New(slog.DiscardHandler)

// =========================================================================
// FAKE IDENTITY STORE
// =========================================================================

var _ repository.IdentityStore = (*fakeIdentityStore)(nil)

type fakeIdentityStore struct {
	mu        sync.Mutex
	users     map[int64]model.User
	exts      map[int64]model.ExternalIdentity // by external id
	grants    []model.PermissionGrant
	nextUser  int64
	nextGrant int64

	upserts int   // writes performed by UpsertExternalIdentity
	err     error // returned by every call when set
}

func newFakeIdentityStore() *fakeIdentityStore {
	return &fakeIdentityStore{
		users: map[int64]model.User{},
		exts:  map[int64]model.ExternalIdentity{},
	}
}

// seed adds a user with a linked identity and permissions.
func (f *fakeIdentityStore) seed(userID, externalID int64, login string, perms ...string) {
	f.users[userID] = model.User{ID: userID, PreferredName: "Bob"}
	f.exts[externalID] = model.ExternalIdentity{ExternalID: externalID, UserID: userID, Login: login}
	f.nextUser = max(f.nextUser, userID)
	for _, p := range perms {
		f.nextGrant++
		f.grants = append(f.grants, model.PermissionGrant{ID: f.nextGrant, UserID: userID, Name: p})
	}
}

func (f *fakeIdentityStore) FindUserByID(_ context.Context, id int64) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if u, ok := f.users[id]; ok {
		return &u, nil
	}
	return nil, nil
}

func (f *fakeIdentityStore) CreateUser(_ context.Context) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.nextUser++
	u := model.User{ID: f.nextUser, PreferredName: "Bob"}
	f.users[u.ID] = u
	return &u, nil
}

func (f *fakeIdentityStore) find(match func(model.ExternalIdentity) bool) *model.ExternalIdentity {
	for _, e := range f.exts {
		if match(e) {
			return &e
		}
	}
	return nil
}

func (f *fakeIdentityStore) FindExternalIdentityByExternalID(_ context.Context, externalID int64) (*model.ExternalIdentity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.find(func(e model.ExternalIdentity) bool { return e.ExternalID == externalID }), nil
}

func (f *fakeIdentityStore) FindExternalIdentityByUserID(_ context.Context, userID int64) (*model.ExternalIdentity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.find(func(e model.ExternalIdentity) bool { return e.UserID == userID }), nil
}

func (f *fakeIdentityStore) FindExternalIdentityByLogin(_ context.Context, login string) (*model.ExternalIdentity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.find(func(e model.ExternalIdentity) bool { return e.Login == login }), nil
}

func (f *fakeIdentityStore) upsertLocked(ext model.ExternalIdentity) *model.ExternalIdentity {
	cur, ok := f.exts[ext.ExternalID]
	switch {
	case !ok:
		f.exts[ext.ExternalID] = ext
		f.upserts++
	case cur.Login != ext.Login || cur.AvatarURL != ext.AvatarURL || cur.ProfileURL != ext.ProfileURL:
		ext.UserID = cur.UserID
		f.exts[ext.ExternalID] = ext
		f.upserts++
	}
	out := f.exts[ext.ExternalID]
	return &out
}

func (f *fakeIdentityStore) UpsertExternalIdentity(_ context.Context, ext model.ExternalIdentity) (*model.ExternalIdentity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.upsertLocked(ext), nil
}

func (f *fakeIdentityStore) ProvisionUser(_ context.Context, ext model.ExternalIdentity) (*model.User, *model.ExternalIdentity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, nil, f.err
	}
	if cur, ok := f.exts[ext.ExternalID]; ok {
		u := f.users[cur.UserID]
		return &u, f.upsertLocked(ext), nil
	}
	f.nextUser++
	u := model.User{ID: f.nextUser, PreferredName: "Bob"}
	f.users[u.ID] = u
	ext.UserID = u.ID
	return &u, f.upsertLocked(ext), nil
}

func (f *fakeIdentityStore) filterGrants(match func(model.PermissionGrant) bool) []model.PermissionGrant {
	out := []model.PermissionGrant{}
	for _, g := range f.grants {
		if match(g) {
			out = append(out, g)
		}
	}
	slices.SortFunc(out, func(a, b model.PermissionGrant) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.UserID, b.UserID))
	})
	return out
}

func (f *fakeIdentityStore) FindPermissionsByUserID(_ context.Context, userID int64) ([]model.PermissionGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.filterGrants(func(g model.PermissionGrant) bool { return g.UserID == userID }), nil
}

func (f *fakeIdentityStore) FindPermissionsByName(_ context.Context, name string) ([]model.PermissionGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.filterGrants(func(g model.PermissionGrant) bool { return g.Name == name }), nil
}

func (f *fakeIdentityStore) GrantPermission(_ context.Context, userID int64, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	for _, g := range f.grants {
		if g.UserID == userID && g.Name == name {
			return nil
		}
	}
	f.nextGrant++
	f.grants = append(f.grants, model.PermissionGrant{ID: f.nextGrant, UserID: userID, Name: name})
	return nil
}

func (f *fakeIdentityStore) RevokePermission(_ context.Context, userID int64, name string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	before := len(f.grants)
	f.grants = slices.DeleteFunc(f.grants, func(g model.PermissionGrant) bool {
		return g.UserID == userID && g.Name == name
	})
	return int64(before - len(f.grants)), nil
}

// =========================================================================
// FAKE GITHUB
// =========================================================================

type fakeGitHub struct {
	codes    map[string]string // code → token value
	tokens   map[string]github.ExternalProfile
	logins   map[string]github.ExternalProfile
	remote   error // returned by every call when set
	byLogins int
}

func newFakeGitHub() *fakeGitHub {
	return &fakeGitHub{
		codes:  map[string]string{},
		tokens: map[string]github.ExternalProfile{},
		logins: map[string]github.ExternalProfile{},
	}
}

func (f *fakeGitHub) ExchangeCodeForToken(_ context.Context, code string) (github.AccessToken, error) {
	if f.remote != nil {
		return github.AccessToken{}, f.remote
	}
	tok, ok := f.codes[code]
	if !ok {
		return github.AccessToken{}, apperror.Remote("exchanging authorization code", nil)
	}
	return github.NewAccessToken(tok), nil
}

func (f *fakeGitHub) FetchProfileByToken(_ context.Context, tok github.AccessToken) (*github.ExternalProfile, error) {
	if f.remote != nil {
		return nil, f.remote
	}
	for value, p := range f.tokens {
		if github.NewAccessToken(value) == tok {
			return &p, nil
		}
	}
	return nil, apperror.Remote("fetching profile", nil)
}

func (f *fakeGitHub) FetchProfileByLogin(_ context.Context, login string) (*github.ExternalProfile, error) {
	f.byLogins++
	if f.remote != nil {
		return nil, f.remote
	}
	p, ok := f.logins[login]
	if !ok {
		return nil, apperror.NotFound("github user", login)
	}
	return &p, nil
}
