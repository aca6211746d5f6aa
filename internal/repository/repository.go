// Package repository declares the storage contracts the services depend on.
//
// ABSENCE IS NOT AN ERROR:
// Every Find* method reports a missing row as (nil, nil) or an empty slice.
// Only connectivity or query failures come back as errors, and those always
// wrap apperror.ErrStore. Callers rely on this to tell "log the user out"
// or "404" apart from a 500.
package repository

import (
	"context"

	"github.com/sakif/idevgames/internal/model"
)

type ListOptions struct {
	Limit       int
	Offset      int
	Taxonomy    string // empty means every taxonomy
	VisibleOnly bool   // exclude hidden snippets
}

// UserStore reads and creates local users.
type UserStore interface {
	FindUserByID(ctx context.Context, id int64) (*model.User, error)
	CreateUser(ctx context.Context) (*model.User, error)
}

// ExternalIdentityStore reads and writes cached GitHub identities.
type ExternalIdentityStore interface {
	FindExternalIdentityByExternalID(ctx context.Context, externalID int64) (*model.ExternalIdentity, error)
	FindExternalIdentityByUserID(ctx context.Context, userID int64) (*model.ExternalIdentity, error)
	FindExternalIdentityByLogin(ctx context.Context, login string) (*model.ExternalIdentity, error)

	// UpsertExternalIdentity inserts a row for externalID, or updates the
	// existing row only when login, avatarURL or profileURL differ. The
	// returned row is re-read from the store.
	UpsertExternalIdentity(ctx context.Context, ext model.ExternalIdentity) (*model.ExternalIdentity, error)
}

// PermissionStore manages permission grants.
type PermissionStore interface {
	FindPermissionsByUserID(ctx context.Context, userID int64) ([]model.PermissionGrant, error)
	FindPermissionsByName(ctx context.Context, name string) ([]model.PermissionGrant, error)

	// GrantPermission is idempotent: granting an existing pair is a no-op.
	GrantPermission(ctx context.Context, userID int64, name string) error

	// RevokePermission returns how many grants were removed (0 or 1).
	RevokePermission(ctx context.Context, userID int64, name string) (int64, error)
}

// IdentityStore is the full Identity Store.
type IdentityStore interface {
	UserStore
	ExternalIdentityStore
	PermissionStore

	// ProvisionUser creates a User and links ext to it in one transaction.
	// ext.UserID is ignored. Used by the administrative pre-provisioning path.
	ProvisionUser(ctx context.Context, ext model.ExternalIdentity) (*model.User, *model.ExternalIdentity, error)
}

type SnippetRepository interface {
	Create(ctx context.Context, snippet *model.Snippet) error
	GetByID(ctx context.Context, id int64) (*model.Snippet, error)
	List(ctx context.Context, opts ListOptions) ([]model.Snippet, error)
	Count(ctx context.Context, opts ListOptions) (int64, error)
	Update(ctx context.Context, snippet *model.Snippet) error
	Delete(ctx context.Context, id int64) error
}
