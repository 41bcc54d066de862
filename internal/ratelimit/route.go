package ratelimit

import (
	"fmt"
	"net/url"
	"strings"
)

// Major parameter names. When present in a route's parameters they scope an
// otherwise shared bucket to one resource instance.
const (
	ParamChannelID    = "channel_id"
	ParamGuildID      = "guild_id"
	ParamWebhookID    = "webhook_id"
	ParamWebhookToken = "webhook_token"
)

var majorParams = []string{ParamChannelID, ParamGuildID, ParamWebhookID, ParamWebhookToken}

// url.PathEscape leaves sub-delims alone; the API expects every reserved
// character in a substituted segment to be escaped.
var segmentEscaper = strings.NewReplacer(
	"+", "%2B", ":", "%3A", "@", "%40", "&", "%26",
	"=", "%3D", "$", "%24", ",", "%2C", ";", "%3B",
)

// Route describes one API endpoint call: the method, the path template and
// the values substituted into it. A Route is immutable once built.
type Route struct {
	method   string
	path     string
	metadata string
	params   map[string]any
}

// RouteOption configures a Route.
type RouteOption func(*Route)

// WithParam sets a path parameter. Values are formatted with %v; strings are
// percent-encoded when the URL is built.
func WithParam(name string, value any) RouteOption {
	return func(r *Route) {
		r.params[name] = value
	}
}

// WithMetadata tags the route with a known sub-rate-limit so requests that
// share a method and path but are limited separately by the server (for
// example deleting a very recent message versus a very old one) get
// separate buckets.
func WithMetadata(metadata string) RouteOption {
	return func(r *Route) {
		r.metadata = metadata
	}
}

// NewRoute builds a route for method and a path template such as
// "/channels/{channel_id}/messages".
func NewRoute(method, path string, opts ...RouteOption) *Route {
	r := &Route{
		method: strings.ToUpper(method),
		path:   path,
		params: make(map[string]any),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Method returns the HTTP method.
func (r *Route) Method() string { return r.method }

// Path returns the unexpanded path template.
func (r *Route) Path() string { return r.path }

// Metadata returns the sub-rate-limit tag, if any.
func (r *Route) Metadata() string { return r.metadata }

// Param returns a path parameter and whether it was set.
func (r *Route) Param(name string) (any, bool) {
	v, ok := r.params[name]
	return v, ok
}

// Key identifies the endpoint class independent of the resource it touches.
func (r *Route) Key() string {
	if r.metadata != "" {
		return r.method + " " + r.path + ":" + r.metadata
	}
	return r.method + " " + r.path
}

// MajorParameters joins the present major parameter values with "+". The
// result is appended to a bucket hash to form the full bucket key.
func (r *Route) MajorParameters() string {
	parts := make([]string, 0, len(majorParams))
	for _, name := range majorParams {
		if v, ok := r.params[name]; ok && v != nil {
			parts = append(parts, fmt.Sprint(v))
		}
	}
	return strings.Join(parts, "+")
}

// URL expands the path template against base. Placeholders without a value
// are left untouched.
func (r *Route) URL(base string) string {
	path := r.path
	for name, v := range r.params {
		var s string
		if str, ok := v.(string); ok {
			s = segmentEscaper.Replace(url.PathEscape(str))
		} else {
			s = fmt.Sprint(v)
		}
		path = strings.ReplaceAll(path, "{"+name+"}", s)
	}
	return strings.TrimSuffix(base, "/") + path
}

func (r *Route) String() string {
	return r.Key()
}
