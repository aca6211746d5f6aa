// Package auth turns a session credential into a resolved identity and
// enforces the two authorization policies built on top of it.
//
// RESOLUTION STATE MACHINE (evaluated in order):
//  1. No "user_id" in the session → anonymous.
//  2. "user_id" does not parse, or names a user that no longer exists →
//     the key is removed (self-healing) and the caller is anonymous.
//  3. The user exists → load its ExternalIdentity and permissions. A user
//     without an ExternalIdentity is an apperror.IdentityInconsistent, never
//     a silent downgrade to anonymous.
//
// Nothing here knows about HTTP. Handlers pass in the request's session and
// get back an identity or an error; internal/handler turns that into
// middleware.
package auth

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/sakif/idevgames/internal/apperror"
	"github.com/sakif/idevgames/internal/metrics"
	"github.com/sakif/idevgames/internal/model"
)

// SessionUserKey is the one session key the core reads and writes. Its value
// is the decimal local user id.
const SessionUserKey = "user_id"

// SessionValues is the slice of a session the resolver needs.
// *session.Session satisfies it.
type SessionValues interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Delete(key string)
}

// IdentityReader is the read side of the Identity Store used per request.
type IdentityReader interface {
	FindUserByID(ctx context.Context, id int64) (*model.User, error)
	FindExternalIdentityByUserID(ctx context.Context, userID int64) (*model.ExternalIdentity, error)
	FindPermissionsByUserID(ctx context.Context, userID int64) ([]model.PermissionGrant, error)
}

// Resolver is the Session Identity Resolver. Safe for concurrent use.
type Resolver struct {
	store   IdentityReader
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewResolver(store IdentityReader, logger *slog.Logger, m *metrics.Metrics) *Resolver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{store: store, logger: logger, metrics: m}
}

// Resolve returns the identity behind sess, or nil for an anonymous caller.
//
// Errors are only ever store failures (apperror.ErrStore) or
// apperror.ErrIdentityInconsistent. A stale or garbled credential is not an
// error; it is removed from sess and the caller is anonymous.
func (r *Resolver) Resolve(ctx context.Context, sess SessionValues) (*model.Identity, error) {
	raw, ok := sess.Get(SessionUserKey)
	if !ok {
		r.metrics.Resolution(metrics.OutcomeAnonymous)
		return nil, nil
	}

	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		r.heal(sess, slog.String("reason", "unparseable user id"))
		return nil, nil
	}

	user, err := r.store.FindUserByID(ctx, userID)
	if err != nil {
		r.metrics.Resolution(metrics.OutcomeError)
		return nil, err
	}
	if user == nil {
		r.heal(sess, slog.String("reason", "user no longer exists"), slog.Int64("user_id", userID))
		return nil, nil
	}

	ext, err := r.store.FindExternalIdentityByUserID(ctx, user.ID)
	if err != nil {
		r.metrics.Resolution(metrics.OutcomeError)
		return nil, err
	}
	if ext == nil {
		r.metrics.Resolution(metrics.OutcomeError)
		r.logger.Error("user has no linked external identity", slog.Int64("user_id", user.ID))
		return nil, apperror.IdentityInconsistent(user.ID)
	}

	grants, err := r.store.FindPermissionsByUserID(ctx, user.ID)
	if err != nil {
		r.metrics.Resolution(metrics.OutcomeError)
		return nil, err
	}

	r.metrics.Resolution(metrics.OutcomeResolved)
	return model.NewIdentity(*user, *ext, grants), nil
}

func (r *Resolver) heal(sess SessionValues, attrs ...any) {
	sess.Delete(SessionUserKey)
	r.metrics.Resolution(metrics.OutcomeHealed)
	r.logger.Info("dropped stale session credential", attrs...)
}
