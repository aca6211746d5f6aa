package service

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/sakif/idevgames/internal/apperror"
	"github.com/sakif/idevgames/internal/github"
	"github.com/sakif/idevgames/internal/model"
	"github.com/sakif/idevgames/internal/repository"
)

// ProfileLookup is the administrative half of the OAuth Exchange Client.
type ProfileLookup interface {
	FetchProfileByLogin(ctx context.Context, login string) (*github.ExternalProfile, error)
}

// MissingUser is what ShowPermission prints for a grant whose user has no
// linked identity.
const MissingUser = "missing user"

// PermissionService grants, revokes and lists permissions by user reference.
// It backs both the admin CLI and the /api/admin/permissions routes.
//
// A user reference is a GitHub login ("ed" or "@ed") or a decimal local user
// id ("7"). Logins are matched exactly, as GitHub reports them.
type PermissionService struct {
	store    repository.IdentityStore
	profiles ProfileLookup
	logger   *slog.Logger
}

func NewPermissionService(store repository.IdentityStore, profiles ProfileLookup, logger *slog.Logger) *PermissionService {
	return &PermissionService{store: store, profiles: profiles, logger: logger}
}

// UserPermissions is one user and the names of what they hold.
type UserPermissions struct {
	UserID      int64    `json:"userId"`
	Login       string   `json:"login,omitempty"`
	Permissions []string `json:"permissions"`
}

type userRef struct {
	id    int64
	login string
}

func parseUserRef(ref string) (userRef, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return userRef{}, apperror.ValidationFailed("user", "user reference is required")
	}
	if strings.HasPrefix(ref, "@") {
		login := strings.TrimPrefix(ref, "@")
		if login == "" {
			return userRef{}, apperror.ValidationFailed("user", "login is required after @")
		}
		return userRef{login: login}, nil
	}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		if id <= 0 {
			return userRef{}, apperror.ValidationFailed("user", "user id must be positive")
		}
		return userRef{id: id}, nil
	}
	return userRef{login: ref}, nil
}

func validatePermissionName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperror.ValidationFailed("permission", "permission name is required")
	}
	return name, nil
}

// findUser resolves ref to a local user. Absence is (nil, nil, nil).
func (s *PermissionService) findUser(ctx context.Context, ref userRef) (*model.User, *model.ExternalIdentity, error) {
	if ref.login != "" {
		ext, err := s.store.FindExternalIdentityByLogin(ctx, ref.login)
		if err != nil || ext == nil {
			return nil, nil, err
		}
		user, err := s.store.FindUserByID(ctx, ext.UserID)
		if err != nil || user == nil {
			return nil, nil, err
		}
		return user, ext, nil
	}

	user, err := s.store.FindUserByID(ctx, ref.id)
	if err != nil || user == nil {
		return nil, nil, err
	}
	ext, err := s.store.FindExternalIdentityByUserID(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return user, ext, nil
}

func (s *PermissionService) requireUser(ctx context.Context, rawRef string) (*model.User, *model.ExternalIdentity, error) {
	ref, err := parseUserRef(rawRef)
	if err != nil {
		return nil, nil, err
	}
	user, ext, err := s.findUser(ctx, ref)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		return nil, nil, apperror.NotFound("user", rawRef)
	}
	return user, ext, nil
}

// Grant gives name to the referenced user.
//
// PRE-PROVISIONING:
// When a login is not known locally, the GitHub profile is fetched by login
// and a User plus its ExternalIdentity are created in one store transaction
// before the grant. This is the only way an account comes into existence;
// that person can log in from then on. Numeric ids are never provisioned.
func (s *PermissionService) Grant(ctx context.Context, rawRef, name string) (*UserPermissions, error) {
	name, err := validatePermissionName(name)
	if err != nil {
		return nil, err
	}
	ref, err := parseUserRef(rawRef)
	if err != nil {
		return nil, err
	}

	user, ext, err := s.findUser(ctx, ref)
	if err != nil {
		return nil, err
	}
	if user == nil {
		if ref.login == "" {
			return nil, apperror.NotFound("user", rawRef)
		}
		user, ext, err = s.provision(ctx, ref.login)
		if err != nil {
			return nil, err
		}
	}

	if err := s.store.GrantPermission(ctx, user.ID, name); err != nil {
		return nil, err
	}
	s.logger.Info("permission granted",
		slog.String("permission", name),
		slog.String("user", describeUser(user, ext)),
	)
	return s.permissionsOf(ctx, user, ext)
}

func (s *PermissionService) provision(ctx context.Context, login string) (*model.User, *model.ExternalIdentity, error) {
	// The network call happens before any store work.
	profile, err := s.profiles.FetchProfileByLogin(ctx, login)
	if err != nil {
		return nil, nil, err
	}

	user, ext, err := s.store.ProvisionUser(ctx, model.ExternalIdentity{
		ExternalID: profile.ExternalID,
		Login:      profile.Login,
		AvatarURL:  profile.AvatarURL,
		ProfileURL: profile.ProfileURL,
	})
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info("pre-provisioned user from GitHub",
		slog.Int64("user_id", user.ID),
		slog.Int64("external_id", ext.ExternalID),
		slog.String("login", ext.Login),
	)
	return user, ext, nil
}

// Revoke removes name from the referenced user and returns how many grants
// went away (0 when it was never granted). An unknown user is NotFound.
func (s *PermissionService) Revoke(ctx context.Context, rawRef, name string) (int64, error) {
	name, err := validatePermissionName(name)
	if err != nil {
		return 0, err
	}
	user, ext, err := s.requireUser(ctx, rawRef)
	if err != nil {
		return 0, err
	}

	n, err := s.store.RevokePermission(ctx, user.ID, name)
	if err != nil {
		return 0, err
	}
	s.logger.Info("permission revoked",
		slog.String("permission", name),
		slog.String("user", describeUser(user, ext)),
		slog.Int64("removed", n),
	)
	return n, nil
}

// ShowUser lists the referenced user's permissions.
func (s *PermissionService) ShowUser(ctx context.Context, rawRef string) (*UserPermissions, error) {
	user, ext, err := s.requireUser(ctx, rawRef)
	if err != nil {
		return nil, err
	}
	return s.permissionsOf(ctx, user, ext)
}

// ShowPermission lists the login of every holder of name, or MissingUser for
// a grant whose user has no linked identity.
func (s *PermissionService) ShowPermission(ctx context.Context, name string) ([]string, error) {
	name, err := validatePermissionName(name)
	if err != nil {
		return nil, err
	}
	grants, err := s.store.FindPermissionsByName(ctx, name)
	if err != nil {
		return nil, err
	}

	holders := make([]string, 0, len(grants))
	for _, g := range grants {
		ext, err := s.store.FindExternalIdentityByUserID(ctx, g.UserID)
		if err != nil {
			return nil, err
		}
		if ext == nil {
			holders = append(holders, MissingUser)
			continue
		}
		holders = append(holders, ext.Login)
	}
	return holders, nil
}

func (s *PermissionService) permissionsOf(ctx context.Context, user *model.User, ext *model.ExternalIdentity) (*UserPermissions, error) {
	grants, err := s.store.FindPermissionsByUserID(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(grants))
	for _, g := range grants {
		names = append(names, g.Name)
	}
	out := &UserPermissions{UserID: user.ID, Permissions: names}
	if ext != nil {
		out.Login = ext.Login
	}
	return out, nil
}
