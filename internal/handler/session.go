package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/rs/xid"

	"github.com/sakif/idevgames/internal/apperror"
	"github.com/sakif/idevgames/internal/auth"
	"github.com/sakif/idevgames/internal/model"
	"github.com/sakif/idevgames/internal/session"
)

const (
	stateCookieName = "idevgames_oauth_state"
	stateCookieAge  = 600 // seconds
)

// AuthorizationURLs builds GitHub's authorize redirect. *github.Client
// satisfies it.
type AuthorizationURLs interface {
	AuthorizationURL() string
	AuthorizationURLWithState(state string) string
}

// LoginCompleter finishes an OAuth callback. *service.LoginService
// satisfies it.
type LoginCompleter interface {
	CompleteLogin(ctx context.Context, code string, sess auth.SessionValues) (*model.Identity, error)
	Logout(sess auth.SessionValues)
}

// SessionHandler serves the session endpoints and the GitHub login round trip.
//
// HTTP:
//
//	GET    /api/session                          → {user, permissions}
//	DELETE /api/session                          → {}
//	GET    /api/session/github_authorization_url → {url}
//	GET    /auth/github/login                    → 307 to GitHub
//	GET    /auth/github/callback?code=&state=    → 303 to the post-login page
type SessionHandler struct {
	login        LoginCompleter
	urls         AuthorizationURLs
	sessions     *session.Store
	postLoginURL string
	secure       bool
	logger       *slog.Logger
}

func NewSessionHandler(
	login LoginCompleter,
	urls AuthorizationURLs,
	sessions *session.Store,
	postLoginURL string,
	secure bool,
	logger *slog.Logger,
) *SessionHandler {
	if postLoginURL == "" {
		postLoginURL = "/"
	}
	return &SessionHandler{
		login:        login,
		urls:         urls,
		sessions:     sessions,
		postLoginURL: postLoginURL,
		secure:       secure,
		logger:       logger,
	}
}

// HandleGet reports who is logged in. Mounted behind Guards.Optional, so a
// stale credential has already been healed into an anonymous answer.
func (h *SessionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, identityFrom(r.Context()).Identity.View())
}

// HandleDelete logs out. Logging out twice is fine.
func (h *SessionHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	h.login.Logout(sess)
	if !h.save(w, sess) {
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

// HandleAuthorizationURL returns the URL a client should open to log in.
func (h *SessionHandler) HandleAuthorizationURL(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"url": h.urls.AuthorizationURL()})
}

// HandleGitHubLogin redirects the browser to GitHub with a single-use state
// value that the callback checks.
func (h *SessionHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   stateCookieAge,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.urls.AuthorizationURLWithState(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes login.
//
// When the login started at /auth/github/login the state must match the
// cookie set there. A callback with no state cookie came from the bare
// authorization URL and is accepted without one.
func (h *SessionHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if c, err := r.Cookie(stateCookieName); err == nil && c.Value != "" {
		http.SetCookie(w, &http.Cookie{Name: stateCookieName, Path: "/", MaxAge: -1})
		if query.Get("state") != c.Value {
			h.logger.Warn("auth callback: state mismatch")
			writeError(w, h.logger, apperror.ValidationFailed("state", "invalid OAuth state"))
			return
		}
	}

	if denied := query.Get("error"); denied != "" {
		h.logger.Info("auth callback: authorization denied", slog.String("error", denied))
		http.Redirect(w, r, h.postLoginURL, http.StatusSeeOther)
		return
	}

	code := query.Get("code")
	if code == "" {
		writeError(w, h.logger, apperror.ValidationFailed("code", "authorization code is required"))
		return
	}

	sess := session.FromContext(r.Context())
	if _, err := h.login.CompleteLogin(r.Context(), code, sess); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if !h.save(w, sess) {
		return
	}
	http.Redirect(w, r, h.postLoginURL, http.StatusSeeOther)
}

func (h *SessionHandler) save(w http.ResponseWriter, sess *session.Session) bool {
	if err := h.sessions.Save(w, sess); err != nil {
		writeError(w, h.logger, err)
		return false
	}
	return true
}
