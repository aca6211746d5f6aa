package auth

import (
	"context"
	"errors"

	"github.com/sakif/idevgames/internal/apperror"
	"github.com/sakif/idevgames/internal/model"
)

const guardAdminOnly = "admin_only"

// OptionalIdentity is the result of the "optional user" guard.
// Identity is nil for anonymous callers.
type OptionalIdentity struct {
	Identity *model.Identity
}

// IsAdmin is false for anonymous callers.
func (o OptionalIdentity) IsAdmin() bool {
	return o.Identity.IsAdmin()
}

// Anonymous reports whether nobody is logged in.
func (o OptionalIdentity) Anonymous() bool {
	return o.Identity == nil
}

// Optional never rejects a caller for authorization reasons. The only errors
// it returns are the resolver's: store failures and inconsistent identities.
func (r *Resolver) Optional(ctx context.Context, sess SessionValues) (OptionalIdentity, error) {
	id, err := r.Resolve(ctx, sess)
	if err != nil {
		return OptionalIdentity{}, err
	}
	return OptionalIdentity{Identity: id}, nil
}

// AdminOnly fails closed:
//
//	anonymous               → apperror.ErrUnauthorized
//	logged in, not admin    → apperror.ErrForbidden
//	logged in with "admin"  → the identity
//
// It never answers NotFound; hiding a resource is the resource handler's call.
func (r *Resolver) AdminOnly(ctx context.Context, sess SessionValues) (*model.Identity, error) {
	id, err := r.Resolve(ctx, sess)
	if err != nil {
		r.rejected("error")
		return nil, err
	}
	if id == nil {
		r.rejected("unauthorized")
		return nil, apperror.Unauthorized("you must be logged in")
	}
	if !id.IsAdmin() {
		r.rejected("forbidden")
		return nil, apperror.Forbidden("admin permission required")
	}
	return id, nil
}

func (r *Resolver) rejected(reason string) {
	r.metrics.GuardRejection(guardAdminOnly, reason)
}

// IsRejection reports whether err came from a guard refusing the caller, as
// opposed to a failure while resolving them.
func IsRejection(err error) bool {
	return errors.Is(err, apperror.ErrUnauthorized) || errors.Is(err, apperror.ErrForbidden)
}
