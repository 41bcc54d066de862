// Package api is the gaming-sdk REST client: a rate limited request executor
// plus a handful of endpoint helpers built on it.
package api

import (
	"errors"
	"fmt"
	nethttp "net/http"
	"sort"
	"strings"

	"github.com/gamingsdk/sdk-go/internal/ratelimit"
)

// RateLimitedError is returned when a rate limit wait would exceed the
// configured maximum. It is never retried by the client.
type RateLimitedError = ratelimit.RateLimitedError

// ErrLoginFailure indicates the server rejected the token passed to
// StaticLogin.
var ErrLoginFailure = errors.New("improper token has been passed")

// ErrGatewayNotFound indicates the realtime gateway URL could not be fetched.
var ErrGatewayNotFound = errors.New("the gateway to connect to was not found")

// HTTPError is a non-success response from the API.
//
// When the body is a JSON error object its code and message are extracted;
// nested field errors are flattened into Message one per line.
type HTTPError struct {
	StatusCode int
	Status     string // reason phrase, e.g. "Forbidden"
	Code       int    // API error code, 0 when absent
	Message    string
	Body       any // decoded JSON or raw text
	Method     string
	URL        string
}

func (e *HTTPError) Error() string {
	s := fmt.Sprintf("%d %s (error code: %d)", e.StatusCode, e.Status, e.Code)
	if e.Message != "" {
		s += ": " + e.Message
	}
	return s
}

// ForbiddenError is a 403 response.
type ForbiddenError struct{ *HTTPError }

func (e *ForbiddenError) Unwrap() error { return e.HTTPError }

// NotFoundError is a 404 response.
type NotFoundError struct{ *HTTPError }

func (e *NotFoundError) Unwrap() error { return e.HTTPError }

// ServerError is a 5xx response, returned immediately for statuses that are
// not retried and after the last attempt for those that are.
type ServerError struct{ *HTTPError }

func (e *ServerError) Unwrap() error { return e.HTTPError }

// newHTTPError builds the error for a response with the given decoded body.
func newHTTPError(method, url string, statusCode int, body any) *HTTPError {
	e := &HTTPError{
		StatusCode: statusCode,
		Status:     nethttp.StatusText(statusCode),
		Body:       body,
		Method:     method,
		URL:        url,
	}
	if e.Status == "" {
		e.Status = "Unknown"
	}

	switch v := body.(type) {
	case map[string]any:
		if code, ok := v["code"].(float64); ok {
			e.Code = int(code)
		}
		msg, _ := v["message"].(string)
		if errs, ok := v["errors"].(map[string]any); ok {
			if flat := flattenErrors(errs, ""); len(flat) > 0 {
				msg += "\n" + strings.Join(flat, "\n")
			}
		}
		e.Message = msg
	case string:
		e.Message = v
	}
	return e
}

// flattenErrors turns the API's nested field error tree into
// "In field.path: message" lines, sorted by path.
func flattenErrors(tree map[string]any, prefix string) []string {
	var lines []string
	for key, value := range tree {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		node, ok := value.(map[string]any)
		if !ok {
			lines = append(lines, fmt.Sprintf("In %s: %v", path, value))
			continue
		}
		if list, ok := node["_errors"].([]any); ok {
			var msgs []string
			for _, item := range list {
				if m, ok := item.(map[string]any); ok {
					if s, ok := m["message"].(string); ok {
						msgs = append(msgs, s)
					}
				}
			}
			lines = append(lines, fmt.Sprintf("In %s: %s", path, strings.Join(msgs, " ")))
			continue
		}
		lines = append(lines, flattenErrors(node, path)...)
	}
	sort.Strings(lines)
	return lines
}

// statusError wraps e in the type matching its status code.
func statusError(e *HTTPError) error {
	switch {
	case e.StatusCode == nethttp.StatusForbidden:
		return &ForbiddenError{e}
	case e.StatusCode == nethttp.StatusNotFound:
		return &NotFoundError{e}
	case e.StatusCode >= 500:
		return &ServerError{e}
	default:
		return e
	}
}

// IsForbidden reports whether err is, or wraps, a ForbiddenError.
func IsForbidden(err error) bool {
	var fe *ForbiddenError
	return errors.As(err, &fe)
}

// IsNotFound reports whether err is, or wraps, a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsServerError reports whether err is, or wraps, a ServerError.
func IsServerError(err error) bool {
	var se *ServerError
	return errors.As(err, &se)
}

// IsRateLimited reports whether err is, or wraps, a RateLimitedError.
func IsRateLimited(err error) bool {
	return ratelimit.IsRateLimited(err)
}

// StatusCode returns the HTTP status carried by err, or 0 when err is not an
// API response error.
func StatusCode(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode
	}
	return 0
}
