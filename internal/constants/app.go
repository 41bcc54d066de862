// Package constants holds tuning values shared across packages.
package constants

import (
	"time"
)

// HTTP Client Timeouts
const (
	// HTTPIdleConnTimeout - how long to keep idle connections open (90 seconds)
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPTLSHandshakeTimeout - timeout for TLS handshake (60 seconds)
	HTTPTLSHandshakeTimeout = 60 * time.Second

	// HTTPExpectContinueTimeout - timeout for 100-continue response (1 second)
	HTTPExpectContinueTimeout = 1 * time.Second

	// HTTPDialTimeout - timeout for establishing connection (30 seconds)
	HTTPDialTimeout = 30 * time.Second

	// HTTPDialKeepAlive - keep-alive period for dialer (30 seconds)
	HTTPDialKeepAlive = 30 * time.Second

	// HTTPClientTimeout - overall deadline for one HTTP attempt (300 seconds)
	HTTPClientTimeout = 300 * time.Second

	// WebsocketHandshakeTimeout - deadline for the websocket upgrade (45 seconds)
	WebsocketHandshakeTimeout = 45 * time.Second
)

// Request executor limits
const (
	// MaxAttempts - attempts per logical request, shared by 429, 5xx and
	// connection-reset retries
	MaxAttempts = 5

	// WarmupTimeout - deadline for the optional proxy warmup request
	WarmupTimeout = 15 * time.Second

	// CDNMaxRetries - retries for CDN asset downloads, which carry no rate
	// limit headers
	CDNMaxRetries = 3
)
