package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/idevgames/internal/apperror"
	"github.com/sakif/idevgames/internal/auth"
	"github.com/sakif/idevgames/internal/github"
	"github.com/sakif/idevgames/internal/metrics"
	"github.com/sakif/idevgames/internal/model"
	"github.com/sakif/idevgames/internal/session"
)

// loginFixture wires the scenario: code "abc" → token "tok1" → GitHub user
// 42 "ed", stored as user 7 with the admin permission.
func loginFixture(t *testing.T) (*LoginService, *fakeIdentityStore, *fakeGitHub) {
	t.Helper()
	store := newFakeIdentityStore()
	store.seed(7, 42, "ed", model.PermissionAdmin)

	gh := newFakeGitHub()
	gh.codes["abc"] = "tok1"
	gh.tokens["tok1"] = github.ExternalProfile{ExternalID: 42, Login: "ed"}

	return NewLoginService(gh, store, discardLogger, metrics.New()), store, gh
}

func TestCompleteLogin_EndToEnd(t *testing.T) {
	svc, _, _ := loginFixture(t)
	sess := session.New()

	id, err := svc.CompleteLogin(context.Background(), "abc", sess)
	require.NoError(t, err)

	v, ok := sess.Get(auth.SessionUserKey)
	assert.True(t, ok)
	assert.Equal(t, "7", v)

	assert.Equal(t, model.SessionView{
		User:        &model.SessionUser{ID: 7, ExternalID: 42, Login: "ed"},
		Permissions: []string{"admin"},
	}, id.View())
}

func TestCompleteLogin_UnknownExternalIdentity(t *testing.T) {
	svc, store, gh := loginFixture(t)
	gh.codes["new"] = "tok2"
	gh.tokens["tok2"] = github.ExternalProfile{ExternalID: 999, Login: "stranger"}
	sess := session.New()

	id, err := svc.CompleteLogin(context.Background(), "new", sess)
	assert.Nil(t, id)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, written := sess.Get(auth.SessionUserKey)
	assert.False(t, written, "no session credential on failure")
	assert.False(t, sess.Modified())
	assert.Len(t, store.users, 1, "ordinary login never creates users")
}

func TestCompleteLogin_IdentityPointsAtMissingUser(t *testing.T) {
	svc, store, _ := loginFixture(t)
	delete(store.users, 7)
	sess := session.New()

	_, err := svc.CompleteLogin(context.Background(), "abc", sess)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.False(t, sess.Modified())
}

func TestCompleteLogin_RefreshesChangedProfileOnly(t *testing.T) {
	svc, store, gh := loginFixture(t)

	// Same profile as stored: no write.
	_, err := svc.CompleteLogin(context.Background(), "abc", session.New())
	require.NoError(t, err)
	assert.Equal(t, 0, store.upserts)

	// Renamed on GitHub: one write, user id kept.
	gh.tokens["tok1"] = github.ExternalProfile{ExternalID: 42, Login: "edward"}
	id, err := svc.CompleteLogin(context.Background(), "abc", session.New())
	require.NoError(t, err)
	assert.Equal(t, 1, store.upserts)
	assert.Equal(t, "edward", id.External.Login)
	assert.Equal(t, int64(7), store.exts[42].UserID)
}

func TestCompleteLogin_RemoteErrorsPropagate(t *testing.T) {
	svc, _, gh := loginFixture(t)
	sess := session.New()

	_, err := svc.CompleteLogin(context.Background(), "wrong-code", sess)
	assert.ErrorIs(t, err, apperror.ErrRemote)

	gh.remote = apperror.Remote("fetching profile", errors.New("connection reset"))
	_, err = svc.CompleteLogin(context.Background(), "abc", sess)
	assert.ErrorIs(t, err, apperror.ErrRemote)
	assert.False(t, sess.Modified())
}

func TestCompleteLogin_StoreErrorPropagates(t *testing.T) {
	svc, store, _ := loginFixture(t)
	store.err = apperror.Store("finding external identity 42", errors.New("database is locked"))

	_, err := svc.CompleteLogin(context.Background(), "abc", session.New())
	assert.ErrorIs(t, err, apperror.ErrStore)
}

func TestLoginOutcome(t *testing.T) {
	assert.Equal(t, loginSuccess, loginOutcome(nil))
	assert.Equal(t, loginUnknownIdentity, loginOutcome(apperror.NotFound("github user", "1")))
	assert.Equal(t, loginRemoteError, loginOutcome(apperror.Remote("x", nil)))
	assert.Equal(t, loginError, loginOutcome(apperror.Store("x", errors.New("y"))))
}

func TestLogout(t *testing.T) {
	svc, _, _ := loginFixture(t)
	sess := session.New()
	sess.Set(auth.SessionUserKey, "7")

	svc.Logout(sess)
	svc.Logout(sess)

	_, ok := sess.Get(auth.SessionUserKey)
	assert.False(t, ok)
}
