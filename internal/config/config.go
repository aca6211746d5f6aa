// Package config loads runtime configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/sakif/idevgames/internal/session"
)

// Config is every setting the server and the admin CLI read. Defaults make a
// local checkout runnable with only SESSION_SECRET and the GitHub app
// credentials set.
type Config struct {
	Port            int           `env:"PORT"              envDefault:"8080"`
	DBPath          string        `env:"DB_PATH"           envDefault:"data/idevgames.db"`
	DBMaxOpenConns  int           `env:"DB_MAX_OPEN_CONNS" envDefault:"8"`
	StoreTimeout    time.Duration `env:"STORE_TIMEOUT"     envDefault:"5s"`
	LogLevel        slog.Level    `env:"LOG_LEVEL"         envDefault:"info"`
	PostLoginURL    string        `env:"POST_LOGIN_REDIRECT" envDefault:"/"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT"  envDefault:"30s"`

	Session SessionConfig
	GitHub  GitHubConfig
}

type SessionConfig struct {
	Secret     string        `env:"SESSION_SECRET"`
	CookieName string        `env:"SESSION_COOKIE_NAME" envDefault:"idevgames_session"`
	Secure     bool          `env:"SESSION_SECURE"      envDefault:"false"`
	MaxAge     time.Duration `env:"SESSION_MAX_AGE"     envDefault:"720h"`
}

type GitHubConfig struct {
	ClientID     string        `env:"GITHUB_CLIENT_ID"`
	ClientSecret string        `env:"GITHUB_CLIENT_SECRET"`
	CallbackURL  string        `env:"GITHUB_CALLBACK_URL"`
	WebURL       string        `env:"GITHUB_WEB_URL" envDefault:"https://github.com"`
	APIURL       string        `env:"GITHUB_API_URL" envDefault:"https://api.github.com"`
	Timeout      time.Duration `env:"OAUTH_TIMEOUT"  envDefault:"10s"`
}

// Load reads the process environment.
func Load() (Config, error) {
	return parse(env.Options{})
}

// LoadFrom reads the given variables instead of the process environment.
func LoadFrom(vars map[string]string) (Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.GitHub.CallbackURL == "" {
		cfg.GitHub.CallbackURL = fmt.Sprintf("http://localhost:%d/auth/github/callback", cfg.Port)
	}
	return cfg, nil
}

// Validate checks the settings every command needs.
func (c Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("DB_PATH is required"))
	}
	if c.DBMaxOpenConns < 1 {
		errs = append(errs, errors.New("DB_MAX_OPEN_CONNS must be at least 1"))
	}
	if c.StoreTimeout <= 0 {
		errs = append(errs, errors.New("STORE_TIMEOUT must be positive"))
	}
	if c.GitHub.Timeout <= 0 {
		errs = append(errs, errors.New("OAUTH_TIMEOUT must be positive"))
	}
	return errors.Join(errs...)
}

// ValidateServer adds what only the HTTP server needs: a session secret and
// GitHub app credentials.
func (c Config) ValidateServer() error {
	errs := []error{c.Validate()}
	if len(c.Session.Secret) < session.MinSecretLength {
		errs = append(errs, fmt.Errorf("SESSION_SECRET must be at least %d characters", session.MinSecretLength))
	}
	if c.GitHub.ClientID == "" || c.GitHub.ClientSecret == "" {
		errs = append(errs, errors.New("GITHUB_CLIENT_ID and GITHUB_CLIENT_SECRET are required"))
	}
	return errors.Join(errs...)
}
