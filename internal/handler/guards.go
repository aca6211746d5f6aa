package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/idevgames/internal/auth"
	"github.com/sakif/idevgames/internal/model"
	"github.com/sakif/idevgames/internal/session"
)

type contextKey string

const identityKey contextKey = "identity"

// Guards turns the explicit guard functions in package auth into chi
// middleware. A guard that rejects writes the error and the wrapped handler
// never runs.
//
// Guards expect session.Store.Middleware to have run first.
type Guards struct {
	resolver *auth.Resolver
	sessions *session.Store
	logger   *slog.Logger
}

func NewGuards(resolver *auth.Resolver, sessions *session.Store, logger *slog.Logger) *Guards {
	return &Guards{resolver: resolver, sessions: sessions, logger: logger}
}

// Optional attaches the caller's identity, or an anonymous one, and always
// continues unless resolution itself failed.
func (g *Guards) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := session.FromContext(r.Context())
		opt, err := g.resolver.Optional(r.Context(), sess)
		g.persist(w, sess)
		if err != nil {
			writeError(w, g.logger, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), opt)))
	})
}

// AdminOnly lets only callers holding "admin" through: 401 for anonymous
// callers, 403 for everyone else.
func (g *Guards) AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := session.FromContext(r.Context())
		id, err := g.resolver.AdminOnly(r.Context(), sess)
		g.persist(w, sess)
		if err != nil {
			writeError(w, g.logger, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), auth.OptionalIdentity{Identity: id})))
	})
}

// persist writes the session cookie when resolution changed it, which is how
// a healed session reaches the browser.
func (g *Guards) persist(w http.ResponseWriter, sess *session.Session) {
	if !sess.Modified() {
		return
	}
	if err := g.sessions.Save(w, sess); err != nil {
		g.logger.Error("failed to save session", slog.String("error", err.Error()))
	}
}

func withIdentity(ctx context.Context, opt auth.OptionalIdentity) context.Context {
	return context.WithValue(ctx, identityKey, opt)
}

// identityFrom returns what a guard attached, or an anonymous identity on
// routes without one.
func identityFrom(ctx context.Context) auth.OptionalIdentity {
	opt, _ := ctx.Value(identityKey).(auth.OptionalIdentity)
	return opt
}

// adminFrom returns the identity AdminOnly let through.
func adminFrom(ctx context.Context) *model.Identity {
	return identityFrom(ctx).Identity
}
