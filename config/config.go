// Package config loads the service configuration from the environment.
package config

import (
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/kelseyhightower/envconfig"

	"github.com/goliatone/go-auth-service/logging"
)

// DefaultSecretKey is only acceptable for local development.
const DefaultSecretKey = "super-secret"

type Config struct {
	SecretKey        string        `envconfig:"SECRET_KEY" default:"super-secret"`
	DatabaseURL      string        `envconfig:"DATABASE_URL" default:"file:authd.db?cache=shared"`
	APIKeys          []string      `envconfig:"API_KEYS"`
	AdminUsername    string        `envconfig:"ADMIN_USERNAME" default:"admin"`
	AdminPassword    string        `envconfig:"ADMIN_PASSWORD" default:"adminpass"`
	APIPrefix        string        `envconfig:"API_PREFIX" default:"/api"`
	AdminPrefix      string        `envconfig:"ADMIN_PREFIX" default:"/admin"`
	LogLevel         string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFile          string        `envconfig:"LOG_FILE"`
	SQLSlowMS        int           `envconfig:"SQL_SLOW_MS" default:"300"`
	TokenTTL         time.Duration `envconfig:"TOKEN_TTL" default:"2h"`
	ResetTokenMaxAge time.Duration `envconfig:"RESET_TOKEN_MAX_AGE" default:"1h"`
	ListenAddr       string        `envconfig:"LISTEN_ADDR" default:":8080"`
	PublicURL        string        `envconfig:"PUBLIC_URL" default:"http://localhost:8080"`
	SecureCookies    bool          `envconfig:"SECURE_COOKIES" default:"false"`
	AuditChannel     string        `envconfig:"AUDIT_CHANNEL" default:"auth"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to load configuration")
	}

	c.normalize()

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return &c, nil
}

func (c *Config) normalize() {
	keys := c.APIKeys[:0]
	for _, k := range c.APIKeys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	c.APIKeys = keys

	c.APIPrefix = normalizePrefix(c.APIPrefix)
	c.AdminPrefix = normalizePrefix(c.AdminPrefix)
	c.PublicURL = strings.TrimRight(strings.TrimSpace(c.PublicURL), "/")
}

// Validate checks values envconfig cannot.
func (c Config) Validate() error {
	if strings.TrimSpace(c.SecretKey) == "" {
		return goerrors.New("SECRET_KEY must not be empty", goerrors.CategoryValidation)
	}
	if c.TokenTTL <= 0 || c.ResetTokenMaxAge <= 0 {
		return goerrors.New("token lifetimes must be positive", goerrors.CategoryValidation).
			WithMetadata(map[string]any{
				"token_ttl":           c.TokenTTL.String(),
				"reset_token_max_age": c.ResetTokenMaxAge.String(),
			})
	}
	if c.APIPrefix == c.AdminPrefix {
		return goerrors.New("API_PREFIX and ADMIN_PREFIX must differ", goerrors.CategoryValidation)
	}
	return nil
}

// UsesDefaultSecret reports whether SECRET_KEY was left at its default.
func (c Config) UsesDefaultSecret() bool {
	return c.SecretKey == DefaultSecretKey
}

// GetSlowQueryThreshold returns SQL_SLOW_MS as a duration.
func (c Config) GetSlowQueryThreshold() time.Duration {
	return time.Duration(c.SQLSlowMS) * time.Millisecond
}

// ResetURL returns the absolute link for a password reset token.
func (c Config) ResetURL(token string) string {
	return c.PublicURL + c.AdminPrefix + "/reset/" + token
}

// Redacted returns the configuration as a map with secrets masked.
func (c Config) Redacted() map[string]any {
	keys := make([]string, 0, len(c.APIKeys))
	for _, k := range c.APIKeys {
		keys = append(keys, logging.MaskKey(k))
	}

	return map[string]any{
		"secret_key":          logging.Mask,
		"database_url":        redactURL(c.DatabaseURL),
		"api_keys":            keys,
		"admin_username":      c.AdminUsername,
		"admin_password":      logging.Mask,
		"api_prefix":          c.APIPrefix,
		"admin_prefix":        c.AdminPrefix,
		"log_level":           c.LogLevel,
		"log_file":            c.LogFile,
		"sql_slow_ms":         c.SQLSlowMS,
		"token_ttl":           c.TokenTTL.String(),
		"reset_token_max_age": c.ResetTokenMaxAge.String(),
		"listen_addr":         c.ListenAddr,
		"public_url":          c.PublicURL,
		"secure_cookies":      c.SecureCookies,
	}
}

// Dump renders the redacted configuration as indented JSON.
func (c Config) Dump() string {
	return print.MaybePrettyJSON(c.Redacted())
}

func normalizePrefix(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	return "/" + strings.Trim(p, "/")
}

// redactURL hides the password of a database url.
func redactURL(raw string) string {
	at := strings.LastIndex(raw, "@")
	scheme := strings.Index(raw, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return raw
	}
	creds := raw[scheme+3 : at]
	if user, _, ok := strings.Cut(creds, ":"); ok {
		return raw[:scheme+3] + user + ":" + logging.Mask + raw[at:]
	}
	return raw
}
