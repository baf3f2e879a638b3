// Package config loads the server configuration.
//
// SOURCES, lowest priority first:
//  1. Default()                       compiled-in defaults
//  2. YAML file (--config path.yaml)  optional
//  3. command-line flags              only flags the user actually set
//  4. USER_AUTH_SESSION_SECRET        keeps the secret off the command line
//
// Keys are dotted paths matching the koanf struct tags, e.g. store.driver or
// session.idle_timeout, and flags use the same names:
//
//	store:
//	  driver: postgres
//	  dsn: postgres://auth@localhost/auth
//	session:
//	  idle_timeout: 30m
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// SecretEnv names the environment variable that overrides session.secret.
const SecretEnv = "USER_AUTH_SESSION_SECRET"

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds the whole server configuration.
type Config struct {
	Port    int           `koanf:"port"`
	Log     LogConfig     `koanf:"log"`
	Store   StoreConfig   `koanf:"store"`
	Session SessionConfig `koanf:"session"`
	Auth    AuthConfig    `koanf:"auth"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // text or json
}

// StoreConfig selects the credential store.
type StoreConfig struct {
	Driver string `koanf:"driver"` // sqlite or postgres
	// DSN is a file path (or ":memory:") for sqlite and a connection URL for
	// postgres.
	DSN string `koanf:"dsn"`
}

// SessionConfig controls session lifetime and the session cookie.
type SessionConfig struct {
	// Secret signs session cookies. Empty means a random per-process secret.
	Secret        string        `koanf:"secret"`
	CookieName    string        `koanf:"cookie_name"`
	Secure        bool          `koanf:"secure"`
	IdleTimeout   time.Duration `koanf:"idle_timeout"`
	MaxLifetime   time.Duration `koanf:"max_lifetime"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// AuthConfig tunes password hashing.
type AuthConfig struct {
	BcryptCost int `koanf:"bcrypt_cost"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port: 8080,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Store: StoreConfig{
			Driver: DriverSQLite,
			DSN:    "data/users.db",
		},
		Session: SessionConfig{
			CookieName:    "session",
			IdleTimeout:   30 * time.Minute,
			MaxLifetime:   24 * time.Hour,
			SweepInterval: time.Minute,
		},
		Auth: AuthConfig{
			BcryptCost: 12,
		},
	}
}

// RegisterFlags adds one flag per configuration key to fs. Flag defaults
// mirror Default(), so an unset flag never overrides the file.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.Int("port", d.Port, "HTTP listen port")
	fs.String("log.level", d.Log.Level, "log level (debug, info, warn, error)")
	fs.String("log.format", d.Log.Format, "log format (text or json)")
	fs.String("store.driver", d.Store.Driver, "credential store (sqlite or postgres)")
	fs.String("store.dsn", d.Store.DSN, "sqlite path or postgres URL")
	fs.String("session.cookie_name", d.Session.CookieName, "session cookie name")
	fs.Bool("session.secure", d.Session.Secure, "mark the session cookie Secure (HTTPS only)")
	fs.Duration("session.idle_timeout", d.Session.IdleTimeout, "expire sessions idle for this long")
	fs.Duration("session.max_lifetime", d.Session.MaxLifetime, "expire sessions this long after creation")
	fs.Duration("session.sweep_interval", d.Session.SweepInterval, "how often expired sessions are reclaimed")
	fs.Int("auth.bcrypt_cost", d.Auth.BcryptCost, "bcrypt work factor (4-31)")
}

// Load builds the configuration from the defaults, the optional YAML file at
// path, the flags in fs (may be nil) and the environment.
func Load(path string, fs *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("config: loading %s: %w", path, err)
		}
	}

	if fs != nil {
		// With k passed in, posflag only applies a flag's default when the
		// key is missing from the file; flags the user set always win.
		if err := k.Load(posflag.Provider(fs, ".", k), nil); err != nil {
			return Config{}, fmt.Errorf("config: loading flags: %w", err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: decoding: %w", err)
	}

	if secret := os.Getenv(SecretEnv); secret != "" {
		cfg.Session.Secret = secret
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the server cannot run with.
func (c Config) Validate() error {
	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}
	switch c.Store.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("store.driver %q must be %s or %s", c.Store.Driver, DriverSQLite, DriverPostgres))
	}
	if c.Store.DSN == "" {
		errs = append(errs, errors.New("store.dsn is required"))
	}
	if c.Session.Secret != "" && len(c.Session.Secret) < 16 {
		errs = append(errs, errors.New("session.secret must be at least 16 characters"))
	}
	if c.Session.CookieName == "" {
		errs = append(errs, errors.New("session.cookie_name is required"))
	}
	if c.Session.IdleTimeout <= 0 {
		errs = append(errs, errors.New("session.idle_timeout must be positive"))
	}
	if c.Session.MaxLifetime < c.Session.IdleTimeout {
		errs = append(errs, errors.New("session.max_lifetime must not be shorter than session.idle_timeout"))
	}
	if c.Session.SweepInterval <= 0 {
		errs = append(errs, errors.New("session.sweep_interval must be positive"))
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("auth.bcrypt_cost %d must be between 4 and 31", c.Auth.BcryptCost))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
