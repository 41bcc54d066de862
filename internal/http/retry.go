package http

import (
	"errors"
	nethttp "net/http"
	"syscall"
	"time"
)

// ErrorType represents different classes of response outcome for retry strategy
type ErrorType int

const (
	// ErrorTypeSuccess indicates a 2xx response
	ErrorTypeSuccess ErrorType = iota
	// ErrorTypeRateLimited indicates a 429 response, handled by the rate limiter
	ErrorTypeRateLimited
	// ErrorTypeNetwork indicates the connection was reset before a response arrived
	ErrorTypeNetwork
	// ErrorTypeRetryable indicates gateway/server errors that are retried unconditionally (500, 502, 504, 524)
	ErrorTypeRetryable
	// ErrorTypeFatal indicates every other status; the request fails without retry
	ErrorTypeFatal
)

// StatusCloudflareTimeout is the non-standard status an edge proxy returns when
// the origin took too long to answer.
const StatusCloudflareTimeout = 524

// ClassifyStatus determines the retry strategy for an HTTP status code.
func ClassifyStatus(code int) ErrorType {
	switch {
	case code >= 200 && code < 300:
		return ErrorTypeSuccess
	case code == nethttp.StatusTooManyRequests:
		return ErrorTypeRateLimited
	case code == nethttp.StatusInternalServerError,
		code == nethttp.StatusBadGateway,
		code == nethttp.StatusGatewayTimeout,
		code == StatusCloudflareTimeout:
		return ErrorTypeRetryable
	default:
		return ErrorTypeFatal
	}
}

// wsaECONNRESET is WSAECONNRESET, the Windows spelling of ECONNRESET.
const wsaECONNRESET syscall.Errno = 10054

// IsConnectionReset reports whether err was caused by the peer resetting the
// connection. Those are the only transport errors retried.
func IsConnectionReset(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var errno syscall.Errno
	return errors.As(err, &errno) && errno == wsaECONNRESET
}

// Backoff returns the pause before retrying after attempt (zero-based):
// 1s, 3s, 5s, 7s, ...
func Backoff(attempt int) time.Duration {
	return time.Duration(1+2*attempt) * time.Second
}

// ErrorTypeName returns a human-readable name for an ErrorType
func ErrorTypeName(errType ErrorType) string {
	switch errType {
	case ErrorTypeSuccess:
		return "success"
	case ErrorTypeRateLimited:
		return "rate-limited"
	case ErrorTypeNetwork:
		return "network"
	case ErrorTypeRetryable:
		return "retryable"
	case ErrorTypeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}
