package core

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultPageSize        = 50
	DefaultStorageKey      = "token"
	DefaultLoginURL        = "https://sso.v2.agus.dev/oauth2/login"
	DefaultHTTPTimeout     = "30s"
	DefaultRedirectAfter   = "5s"
	DefaultCacheTTL        = "5m"
	DefaultMaxResponseBody = int64(10 << 20)
	DefaultCallbackPath    = "/sso/callback"
)

const (
	SessionBackendMemory = "memory"
	SessionBackendFile   = "file"
	SessionBackendSQL    = "sql"
)

type HTTPConfig struct {
	Timeout              string `koanf:"timeout" mapstructure:"timeout"`
	MaxResponseBodyBytes int64  `koanf:"max_response_body_bytes" mapstructure:"max_response_body_bytes"`
}

type SSOConfig struct {
	LoginURL     string `koanf:"login_url" mapstructure:"login_url"`
	ClientID     string `koanf:"client_id" mapstructure:"client_id"`
	RedirectURI  string `koanf:"redirect_uri" mapstructure:"redirect_uri"`
	CallbackPath string `koanf:"callback_path" mapstructure:"callback_path"`
}

type SessionConfig struct {
	StorageKey    string `koanf:"storage_key" mapstructure:"storage_key"`
	Backend       string `koanf:"backend" mapstructure:"backend"`
	Path          string `koanf:"path" mapstructure:"path"`
	EncryptionKey string `koanf:"encryption_key" mapstructure:"encryption_key"`
	Watch         bool   `koanf:"watch" mapstructure:"watch"`
}

type RecoveryConfig struct {
	RedirectAfter string `koanf:"redirect_after" mapstructure:"redirect_after"`
}

type PersistenceConfig struct {
	Driver   string `koanf:"driver" mapstructure:"driver"`
	DSN      string `koanf:"dsn" mapstructure:"dsn"`
	CacheTTL string `koanf:"cache_ttl" mapstructure:"cache_ttl"`
	Debug    bool   `koanf:"debug" mapstructure:"debug"`
}

type Config struct {
	APIURL          string            `koanf:"api_url" mapstructure:"api_url"`
	RedirectBaseURL string            `koanf:"redirect_base_url" mapstructure:"redirect_base_url"`
	PageSize        int               `koanf:"page_size" mapstructure:"page_size"`
	HTTP            HTTPConfig        `koanf:"http" mapstructure:"http"`
	SSO             SSOConfig         `koanf:"sso" mapstructure:"sso"`
	Session         SessionConfig     `koanf:"session" mapstructure:"session"`
	Recovery        RecoveryConfig    `koanf:"recovery" mapstructure:"recovery"`
	Persistence     PersistenceConfig `koanf:"persistence" mapstructure:"persistence"`
}

func DefaultConfig() Config {
	return Config{
		PageSize: DefaultPageSize,
		HTTP: HTTPConfig{
			Timeout:              DefaultHTTPTimeout,
			MaxResponseBodyBytes: DefaultMaxResponseBody,
		},
		SSO: SSOConfig{
			LoginURL:     DefaultLoginURL,
			CallbackPath: DefaultCallbackPath,
		},
		Session: SessionConfig{
			StorageKey: DefaultStorageKey,
			Backend:    SessionBackendMemory,
		},
		Recovery: RecoveryConfig{
			RedirectAfter: DefaultRedirectAfter,
		},
		Persistence: PersistenceConfig{
			Driver:   "sqlite3",
			CacheTTL: DefaultCacheTTL,
		},
	}
}

func (c Config) Validate() error {
	if raw := strings.TrimSpace(c.APIURL); raw != "" {
		parsed, err := url.Parse(raw)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("core: api_url must be an absolute url, got %q", raw)
		}
	}
	if c.PageSize < 0 {
		return fmt.Errorf("core: page_size must be positive")
	}
	if c.HTTP.MaxResponseBodyBytes < 0 {
		return fmt.Errorf("core: http.max_response_body_bytes must be positive")
	}
	for key, value := range map[string]string{
		"http.timeout":            c.HTTP.Timeout,
		"recovery.redirect_after": c.Recovery.RedirectAfter,
		"persistence.cache_ttl":   c.Persistence.CacheTTL,
	} {
		if _, err := parseDuration(value); err != nil {
			return fmt.Errorf("core: %s: %w", key, err)
		}
	}
	switch strings.ToLower(strings.TrimSpace(c.Session.Backend)) {
	case "", SessionBackendMemory, SessionBackendFile:
	case SessionBackendSQL:
		if strings.TrimSpace(c.Persistence.DSN) == "" {
			return fmt.Errorf("core: persistence.dsn is required for the sql session backend")
		}
	default:
		return fmt.Errorf("core: unsupported session.backend %q", c.Session.Backend)
	}
	return nil
}

// HTTPTimeout returns the per request timeout, falling back to the default
// when the configured value is empty.
func (c Config) HTTPTimeout() time.Duration {
	return durationOr(c.HTTP.Timeout, DefaultHTTPTimeout)
}

func (c Config) RedirectAfter() time.Duration {
	return durationOr(c.Recovery.RedirectAfter, DefaultRedirectAfter)
}

func (c Config) CacheTTL() time.Duration {
	return durationOr(c.Persistence.CacheTTL, DefaultCacheTTL)
}

func (c Config) EffectivePageSize() int {
	if c.PageSize <= 0 {
		return DefaultPageSize
	}
	return c.PageSize
}

func (c Config) StorageKey() string {
	if key := strings.TrimSpace(c.Session.StorageKey); key != "" {
		return key
	}
	return DefaultStorageKey
}

func parseDuration(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if parsed < 0 {
		return 0, fmt.Errorf("duration must not be negative")
	}
	return parsed, nil
}

func durationOr(value string, fallback string) time.Duration {
	parsed, err := parseDuration(value)
	if err != nil || parsed == 0 {
		parsed, _ = parseDuration(fallback)
	}
	return parsed
}
