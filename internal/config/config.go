// Package config holds the settings that shape a gaming-sdk client: API
// version, credentials, proxy and rate limit policy.
package config

import (
	"errors"
	"fmt"
	"net/http/httptrace"
	"os"
	"strings"
	"time"
)

// Supported API versions.
const (
	APIVersion9  = 9
	APIVersion10 = 10

	DefaultAPIVersion = APIVersion10
)

// DefaultAPIBaseURLFormat is formatted with the API version to produce the
// base URL when none is configured.
const DefaultAPIBaseURLFormat = "https://gaming-sdk.com/api/v%d"

// MinRatelimitTimeout is the smallest non-zero maximum rate limit wait.
const MinRatelimitTimeout = 30 * time.Second

// Proxy modes.
const (
	ProxyModeNone   = "no-proxy"
	ProxyModeSystem = "system"
	ProxyModeBasic  = "basic"
	ProxyModeNTLM   = "ntlm"
)

// Environment overrides.
const (
	EnvToken  = "GAMINGSDK_TOKEN"
	EnvAPIURL = "GAMINGSDK_API_URL"
)

// Validation errors
var (
	ErrInvalidAPIVersion      = errors.New("api_version must be 9 or 10")
	ErrInvalidProxyMode       = errors.New("proxy mode must be no-proxy, system, basic or ntlm")
	ErrMissingProxyHost       = errors.New("proxy host is required for basic and ntlm modes")
	ErrInvalidProxyPort       = errors.New("proxy port must be between 0 and 65535")
	ErrNegativeRatelimitLimit = errors.New("max_ratelimit_timeout must not be negative")
)

// Config is the client configuration. It is read once when a client is built;
// changing it afterwards has no effect on that client.
type Config struct {
	// API settings
	APIVersion int
	APIBaseURL string // derived from APIVersion when empty
	Token      string

	// Proxy settings
	ProxyMode     string // "no-proxy", "system", "basic", "ntlm"
	ProxyHost     string
	ProxyPort     int
	ProxyUser     string
	ProxyPassword string // never written to disk
	NoProxy       string // comma-separated hosts/CIDRs that bypass the proxy
	ProxyWarmup   bool

	// Rate limit policy.
	//
	// MaxRatelimitTimeout caps how long a request may be held back by a rate
	// limit before failing with a RateLimitedError. Zero waits as long as the
	// server asks.
	MaxRatelimitTimeout time.Duration

	// UnsyncClock assumes the local clock disagrees with the server's, so
	// bucket windows are taken from X-Ratelimit-Reset-After. When false the
	// absolute X-Ratelimit-Reset timestamp is compared with the local clock.
	UnsyncClock bool

	// Transport settings
	UserAgent    string // overrides the identity User-Agent when set
	DisableHTTP2 bool

	// HTTPTrace, when set, is called for every HTTP attempt and the returned
	// trace is attached to the request context.
	HTTPTrace func() *httptrace.ClientTrace
}

// NewConfig returns a Config with default values.
func NewConfig() *Config {
	return &Config{
		APIVersion:  DefaultAPIVersion,
		ProxyMode:   ProxyModeNone,
		UnsyncClock: true,
	}
}

// BaseURL returns the configured API base URL without a trailing slash.
func (c *Config) BaseURL() string {
	if c.APIBaseURL != "" {
		return strings.TrimSuffix(c.APIBaseURL, "/")
	}
	version := c.APIVersion
	if version == 0 {
		version = DefaultAPIVersion
	}
	return fmt.Sprintf(DefaultAPIBaseURLFormat, version)
}

// UseClock reports whether bucket windows are computed from the absolute
// reset timestamp and the local clock.
func (c *Config) UseClock() bool {
	return !c.UnsyncClock
}

// EffectiveRatelimitTimeout returns MaxRatelimitTimeout raised to
// MinRatelimitTimeout. Zero stays zero.
func (c *Config) EffectiveRatelimitTimeout() time.Duration {
	if c.MaxRatelimitTimeout <= 0 {
		return 0
	}
	return max(c.MaxRatelimitTimeout, MinRatelimitTimeout)
}

// Validate checks the configuration for values no client can be built from.
func (c *Config) Validate() error {
	if c.APIVersion != APIVersion9 && c.APIVersion != APIVersion10 {
		return fmt.Errorf("%w: got %d", ErrInvalidAPIVersion, c.APIVersion)
	}
	switch strings.ToLower(c.ProxyMode) {
	case "", ProxyModeNone, ProxyModeSystem:
	case ProxyModeBasic, ProxyModeNTLM:
		if strings.TrimSpace(c.ProxyHost) == "" {
			return ErrMissingProxyHost
		}
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidProxyMode, c.ProxyMode)
	}
	if c.ProxyPort < 0 || c.ProxyPort > 65535 {
		return ErrInvalidProxyPort
	}
	if c.MaxRatelimitTimeout < 0 {
		return ErrNegativeRatelimitLimit
	}
	return nil
}

// ApplyEnv overlays GAMINGSDK_TOKEN and GAMINGSDK_API_URL when they are set.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvToken); v != "" {
		c.Token = v
	}
	if v := os.Getenv(EnvAPIURL); v != "" {
		c.APIBaseURL = v
	}
}

// NeedsProxyPassword reports whether an authenticating proxy mode has a user
// but no password, so the caller should prompt for one.
func (c *Config) NeedsProxyPassword() bool {
	mode := strings.ToLower(c.ProxyMode)
	if mode != ProxyModeBasic && mode != ProxyModeNTLM {
		return false
	}
	return c.ProxyUser != "" && c.ProxyPassword == ""
}
