// Package session provides the signed, tamper-evident key-value store that
// carries the logged-in user between requests.
//
// COOKIE FORMAT:
// The whole session is one HttpOnly cookie holding an HS256 JWT:
//
//	HEADER.PAYLOAD.SIGNATURE
//	payload → {"vals":{"user_id":"7"},"iss":"idevgames","iat":1700000000}
//
// The values are readable by anyone holding the cookie (base64, not
// encrypted) but cannot be changed without the signing key. Nothing secret
// goes in a session.
//
// KEY DERIVATION:
// The signing key is derived from SESSION_SECRET with HKDF-SHA256 instead of
// using the secret bytes directly, so the same secret can safely seed other
// keys later under a different info label.
//
// There is no server-side session table and no expiry claim: a session lives
// until the cookie's Max-Age runs out or the user logs out.
package session

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

const (
	DefaultCookieName = "idevgames_session"
	DefaultMaxAge     = 30 * 24 * time.Hour

	// MinSecretLength is the shortest SESSION_SECRET NewStore accepts.
	MinSecretLength = 16

	issuer  = "idevgames"
	hkdfKey = "idevgames session signing v1"
)

// Session is one request's view of the cookie values.
// It is not safe for concurrent use; each request gets its own.
type Session struct {
	values   map[string]string
	modified bool
}

// New returns an empty session.
func New() *Session {
	return &Session{values: map[string]string{}}
}

// Get returns the value for key and whether it was present.
func (s *Session) Get(key string) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

func (s *Session) Set(key, value string) {
	if cur, ok := s.values[key]; ok && cur == value {
		return
	}
	s.values[key] = value
	s.modified = true
}

func (s *Session) Delete(key string) {
	if _, ok := s.values[key]; !ok {
		return
	}
	delete(s.values, key)
	s.modified = true
}

// Modified reports whether Set or Delete changed anything since load or the
// last Save.
func (s *Session) Modified() bool { return s.modified }

// Len is the number of keys in the session.
func (s *Session) Len() int { return len(s.values) }

// Config configures a Store.
type Config struct {
	Secret     string
	CookieName string
	Secure     bool
	MaxAge     time.Duration
}

// Store loads sessions from requests and writes them back as cookies.
type Store struct {
	key    []byte
	name   string
	secure bool
	maxAge time.Duration
	now    func() time.Time
}

type claims struct {
	Values map[string]string `json:"vals"`
	jwt.RegisteredClaims
}

// NewStore derives the signing key and returns a Store.
func NewStore(cfg Config) (*Store, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, fmt.Errorf("session: secret must be at least %d characters", MinSecretLength)
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(cfg.Secret), nil, []byte(hkdfKey)), key); err != nil {
		return nil, fmt.Errorf("session: deriving signing key: %w", err)
	}

	s := &Store{
		key:    key,
		name:   cfg.CookieName,
		secure: cfg.Secure,
		maxAge: cfg.MaxAge,
		now:    time.Now,
	}
	if s.name == "" {
		s.name = DefaultCookieName
	}
	if s.maxAge <= 0 {
		s.maxAge = DefaultMaxAge
	}
	return s, nil
}

// CookieName is the name of the session cookie.
func (s *Store) CookieName() string { return s.name }

// Load reads the session cookie from r.
//
// A missing, malformed, wrongly signed or foreign-issuer cookie loads as an
// empty session, never an error: the caller sees an anonymous visitor and the
// next Save overwrites the bad cookie.
func (s *Store) Load(r *http.Request) *Session {
	c, err := r.Cookie(s.name)
	if err != nil || c.Value == "" {
		return New()
	}

	vals, err := s.decode(c.Value)
	if err != nil {
		sess := New()
		// Force a Save so the unusable cookie gets replaced.
		sess.modified = true
		return sess
	}
	return &Session{values: vals}
}

// Save writes sess as a Set-Cookie header. An empty session deletes the cookie.
// Save must be called before the response body is written.
func (s *Store) Save(w http.ResponseWriter, sess *Session) error {
	cookie := &http.Cookie{
		Name:     s.name,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	}

	if sess.Len() == 0 {
		cookie.MaxAge = -1
		http.SetCookie(w, cookie)
		sess.modified = false
		return nil
	}

	value, err := s.encode(sess.values)
	if err != nil {
		return err
	}
	cookie.Value = value
	cookie.MaxAge = int(s.maxAge.Seconds())
	http.SetCookie(w, cookie)
	sess.modified = false
	return nil
}

func (s *Store) encode(vals map[string]string) (string, error) {
	c := claims{
		Values: maps.Clone(vals),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   issuer,
			IssuedAt: jwt.NewNumericDate(s.now()),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("session: signing cookie: %w", err)
	}
	return signed, nil
}

// decode verifies the signature, algorithm and issuer.
//
// jwt.WithValidMethods pins HS256 so a token claiming "alg":"none" or an
// asymmetric algorithm is rejected before the key is ever consulted.
func (s *Store) decode(raw string) (map[string]string, error) {
	var c claims
	_, err := jwt.ParseWithClaims(raw, &c,
		func(*jwt.Token) (any, error) { return s.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("session: invalid cookie: %w", err)
	}
	if c.Values == nil {
		return nil, errors.New("session: cookie has no values")
	}
	return c.Values, nil
}

type contextKey string

const sessionKey contextKey = "session"

// Middleware loads the session once per request and stores it in the context.
func (s *Store) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := NewContext(r.Context(), s.Load(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func NewContext(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionKey, sess)
}

// FromContext returns the request's session. Outside Middleware it returns
// a fresh empty session so callers never need a nil check.
func FromContext(ctx context.Context) *Session {
	if sess, ok := ctx.Value(sessionKey).(*Session); ok {
		return sess
	}
	return New()
}
