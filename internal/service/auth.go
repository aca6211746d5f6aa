// Package service holds the business logic behind the HTTP and CLI surfaces.
//
// LoginService is the Login Callback Orchestrator. It sits between the HTTP
// callback handler and its two collaborators:
//
//	SessionHandler (HTTP) → LoginService → OAuthClient (GitHub)
//	                                     ↘ IdentityStore (DB)
//
// NO SELF-SERVICE SIGNUP:
// A GitHub account that has never been pre-provisioned by an administrator
// (see PermissionService.Grant) cannot log in: the callback answers NotFound
// and nothing is written. This is a product rule, kept as an explicit branch
// in CompleteLogin.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/sakif/idevgames/internal/apperror"
	"github.com/sakif/idevgames/internal/auth"
	"github.com/sakif/idevgames/internal/github"
	"github.com/sakif/idevgames/internal/metrics"
	"github.com/sakif/idevgames/internal/model"
	"github.com/sakif/idevgames/internal/repository"
)

// OAuthClient is the request-path half of the OAuth Exchange Client.
// *github.Client satisfies it.
type OAuthClient interface {
	ExchangeCodeForToken(ctx context.Context, code string) (github.AccessToken, error)
	FetchProfileByToken(ctx context.Context, tok github.AccessToken) (*github.ExternalProfile, error)
}

// Login outcomes recorded in metrics.
const (
	loginSuccess         = "success"
	loginUnknownIdentity = "unknown_identity"
	loginRemoteError     = "remote_error"
	loginError           = "error"
)

type LoginService struct {
	oauth   OAuthClient
	store   repository.IdentityStore
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewLoginService(oauth OAuthClient, store repository.IdentityStore, logger *slog.Logger, m *metrics.Metrics) *LoginService {
	return &LoginService{oauth: oauth, store: store, logger: logger, metrics: m}
}

// CompleteLogin finishes the OAuth callback for code and, on success, writes
// the user's id into sess.
//
// Sequence:
//  1. exchange code for an access token        (RemoteError propagates)
//  2. fetch the profile behind the token        (RemoteError propagates)
//  3. look up the ExternalIdentity by GitHub id (absent → NotFound)
//  4. refresh the cached login/avatar/profile   (writes only on change)
//  5. load the linked User                      (absent → NotFound)
//  6. load permissions and set session "user_id"
//
// Both GitHub calls finish before the store is touched, so no database
// connection is held while waiting on the network. The token is dropped as
// soon as step 2 returns. sess is only written on full success.
func (s *LoginService) CompleteLogin(ctx context.Context, code string, sess auth.SessionValues) (*model.Identity, error) {
	id, err := s.completeLogin(ctx, code, sess)
	s.metrics.Login(loginOutcome(err))
	return id, err
}

func (s *LoginService) completeLogin(ctx context.Context, code string, sess auth.SessionValues) (*model.Identity, error) {
	tok, err := s.oauth.ExchangeCodeForToken(ctx, code)
	if err != nil {
		return nil, err
	}

	profile, err := s.oauth.FetchProfileByToken(ctx, tok)
	if err != nil {
		return nil, err
	}

	existing, err := s.store.FindExternalIdentityByExternalID(ctx, profile.ExternalID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		// Never logged in and never pre-provisioned.
		s.logger.Info("login refused for unknown GitHub account",
			slog.Int64("external_id", profile.ExternalID),
			slog.String("login", profile.Login),
		)
		return nil, apperror.NotFound("github user", strconv.FormatInt(profile.ExternalID, 10))
	}

	ext, err := s.store.UpsertExternalIdentity(ctx, model.ExternalIdentity{
		ExternalID: profile.ExternalID,
		UserID:     existing.UserID,
		Login:      profile.Login,
		AvatarURL:  profile.AvatarURL,
		ProfileURL: profile.ProfileURL,
	})
	if err != nil {
		return nil, err
	}

	user, err := s.store.FindUserByID(ctx, ext.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		s.logger.Error("external identity points at a missing user",
			slog.Int64("external_id", ext.ExternalID),
			slog.Int64("user_id", ext.UserID),
		)
		return nil, apperror.NotFound("user", strconv.FormatInt(ext.UserID, 10))
	}

	grants, err := s.store.FindPermissionsByUserID(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	sess.Set(auth.SessionUserKey, strconv.FormatInt(user.ID, 10))

	s.logger.Info("user logged in via GitHub",
		slog.Int64("user_id", user.ID),
		slog.String("login", ext.Login),
	)
	return model.NewIdentity(*user, *ext, grants), nil
}

func loginOutcome(err error) string {
	switch {
	case err == nil:
		return loginSuccess
	case errors.Is(err, apperror.ErrNotFound):
		return loginUnknownIdentity
	case errors.Is(err, apperror.ErrRemote):
		return loginRemoteError
	default:
		return loginError
	}
}

// Logout removes the credential from sess. Logging out twice is harmless.
func (s *LoginService) Logout(sess auth.SessionValues) {
	sess.Delete(auth.SessionUserKey)
}

// describeUser is shared by the admin paths for log and output lines.
func describeUser(user *model.User, ext *model.ExternalIdentity) string {
	if ext == nil {
		return fmt.Sprintf("user %d", user.ID)
	}
	return fmt.Sprintf("%s (user %d)", ext.Login, user.ID)
}
