// Package github is the OAuth Exchange Client: it trades an authorization
// code for an access token and fetches GitHub profiles.
//
// OAUTH 2.0 AUTHORIZATION CODE FLOW:
//  1. The browser is sent to AuthorizationURL() and the person approves the app.
//  2. GitHub redirects back to our callback with a short-lived "code".
//  3. ExchangeCodeForToken trades code + client secret for an access token
//     (server to server; the token never reaches the browser).
//  4. FetchProfileByToken uses that token exactly once, to ask "who am I?".
//
// No scopes are requested: the public profile is all we need.
//
// The token leg goes through golang.org/x/oauth2 (AuthStyleInParams, so
// client_id and client_secret travel in the form body as GitHub expects).
// The profile calls are plain REST requests on the same *http.Client, whose
// transport adds the Accept and User-Agent headers GitHub requires.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/sakif/idevgames/internal/apperror"
	"github.com/sakif/idevgames/internal/metrics"
)

const (
	DefaultWebURL  = "https://github.com"
	DefaultAPIURL  = "https://api.github.com"
	defaultTimeout = 10 * time.Second
	userAgent      = "Go/idevgames"

	// cap on profile response bodies
	maxBodyBytes = 1 << 20
)

// Metric labels for the three outbound calls.
const (
	callExchange       = "exchange_code"
	callProfileByToken = "profile_by_token"
	callProfileByLogin = "profile_by_login"
)

// Config holds the OAuth application credentials and endpoints.
// WebURL and APIURL are overridable so tests can point them at httptest servers.
type Config struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string // optional; GitHub falls back to the app's registered URL
	WebURL       string
	APIURL       string
	Timeout      time.Duration
}

// ExternalProfile is the part of a GitHub user we keep.
// ExternalID is durable across renames; Login is not.
type ExternalProfile struct {
	ExternalID int64  `json:"id"`
	Login      string `json:"login"`
	AvatarURL  string `json:"avatar_url"`
	ProfileURL string `json:"html_url"`
}

// AccessToken carries a GitHub OAuth token between the two halves of a login.
//
// The value is unexported and every formatting path (fmt, slog, JSON) prints
// [REDACTED], so the token cannot leak through logs or responses by accident.
// Only this package reads it.
type AccessToken struct {
	value string
}

const redacted = "[REDACTED]"

// NewAccessToken wraps a raw token value.
func NewAccessToken(v string) AccessToken { return AccessToken{value: v} }

func (t AccessToken) IsZero() bool                 { return t.value == "" }
func (t AccessToken) String() string               { return redacted }
func (t AccessToken) GoString() string             { return redacted }
func (t AccessToken) LogValue() slog.Value         { return slog.StringValue(redacted) }
func (t AccessToken) MarshalJSON() ([]byte, error) { return json.Marshal(redacted) }

// Client talks to GitHub. It is safe for concurrent use.
type Client struct {
	oauth   *oauth2.Config
	http    *http.Client
	apiURL  string
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewClient builds a Client. m may be nil.
func NewClient(cfg Config, logger *slog.Logger, m *metrics.Metrics) *Client {
	webURL := strings.TrimRight(cfg.WebURL, "/")
	if webURL == "" {
		webURL = DefaultWebURL
	}
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:   webURL + "/login/oauth/authorize",
				TokenURL:  webURL + "/login/oauth/access_token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		http: &http.Client{
			Timeout:   timeout,
			Transport: &headerTransport{base: http.DefaultTransport},
		},
		apiURL:  apiURL,
		logger:  logger,
		metrics: m,
	}
}

// headerTransport sets the headers GitHub wants on every request.
type headerTransport struct {
	base http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	return t.base.RoundTrip(req)
}

// AuthorizationURL is where to send a browser to start logging in.
// It is built from configuration only and makes no network call.
func (c *Client) AuthorizationURL() string {
	return c.oauth.AuthCodeURL("")
}

// AuthorizationURLWithState is AuthorizationURL plus a CSRF state value that
// GitHub echoes back to the callback.
func (c *Client) AuthorizationURLWithState(state string) string {
	return c.oauth.AuthCodeURL(state)
}

// ExchangeCodeForToken trades the callback's code for an access token.
// Any transport failure, non-2xx answer or token-less body is an apperror.Remote.
func (c *Client) ExchangeCodeForToken(ctx context.Context, code string) (tok AccessToken, err error) {
	defer c.observe(callExchange, time.Now(), &err)

	if code == "" {
		return AccessToken{}, apperror.ValidationFailed("code", "authorization code is required")
	}

	// oauth2 picks the HTTP client up from the context.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	t, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return AccessToken{}, apperror.Remote("exchanging authorization code", scrubRetrieveError(err))
	}
	if t.AccessToken == "" {
		return AccessToken{}, apperror.Remote("exchanging authorization code", errors.New("response carried no access token"))
	}
	return AccessToken{value: t.AccessToken}, nil
}

// scrubRetrieveError drops the raw response body from oauth2 errors so the
// logged cause never contains anything GitHub echoed back.
func scrubRetrieveError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		if re.ErrorCode != "" {
			return fmt.Errorf("token endpoint returned status %d: %s", status, re.ErrorCode)
		}
		return fmt.Errorf("token endpoint returned status %d", status)
	}
	return err
}

// FetchProfileByToken asks GitHub who the token belongs to.
func (c *Client) FetchProfileByToken(ctx context.Context, tok AccessToken) (p *ExternalProfile, err error) {
	defer c.observe(callProfileByToken, time.Now(), &err)

	if tok.IsZero() {
		return nil, apperror.Remote("fetching profile", errors.New("empty access token"))
	}
	p, err = c.getProfile(ctx, c.apiURL+"/user", "token "+tok.value)
	if errors.Is(err, errProfileNotFound) {
		return nil, apperror.Remote("fetching profile", err)
	}
	return p, err
}

// FetchProfileByLogin looks a user up by handle without authenticating.
// Used by administrative tooling to pre-provision someone who has never
// logged in. An unknown login is an apperror.NotFound.
func (c *Client) FetchProfileByLogin(ctx context.Context, login string) (p *ExternalProfile, err error) {
	defer c.observe(callProfileByLogin, time.Now(), &err)

	login = strings.TrimPrefix(login, "@")
	if login == "" {
		return nil, apperror.ValidationFailed("login", "login is required")
	}
	p, err = c.getProfile(ctx, c.apiURL+"/users/"+url.PathEscape(login), "")
	if errors.Is(err, errProfileNotFound) {
		return nil, apperror.NotFound("github user", login)
	}
	return p, err
}

var errProfileNotFound = errors.New("profile not found")

func (c *Client) getProfile(ctx context.Context, endpoint, authorization string) (*ExternalProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, apperror.Remote("building profile request", err)
	}
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperror.Remote("fetching profile", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errProfileNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, apperror.Remote("fetching profile", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var p ExternalProfile
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&p); err != nil {
		return nil, apperror.Remote("decoding profile", err)
	}
	if p.ExternalID == 0 || p.Login == "" {
		return nil, apperror.Remote("decoding profile", errors.New("profile is missing id or login"))
	}
	return &p, nil
}

func (c *Client) observe(call string, started time.Time, errp *error) {
	err := *errp
	c.metrics.OAuthRequest(call, started, err)
	if err != nil && c.logger != nil {
		c.logger.Warn("github call failed",
			slog.String("call", call),
			slog.Duration("duration", time.Since(started)),
			slog.String("error", err.Error()),
		)
	}
}
