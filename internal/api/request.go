package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"strings"

	"github.com/gamingsdk/sdk-go/internal/http"
)

// RequestOption configures one call to Client.Request.
type RequestOption func(*requestOptions) error

type requestOptions struct {
	jsonBody []byte
	form     *http.MultipartBuilder
	reason   string
	header   nethttp.Header
	query    url.Values
}

// WithJSON sends v encoded as JSON. The encoding happens once; every attempt
// sends the same bytes.
func WithJSON(v any) RequestOption {
	return func(o *requestOptions) error {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		o.jsonBody = raw
		return nil
	}
}

// WithForm sends a multipart/form-data body. The form is rebuilt for every
// attempt, rewinding file readers.
func WithForm(form *http.MultipartBuilder) RequestOption {
	return func(o *requestOptions) error {
		o.form = form
		return nil
	}
}

// WithReason records reason in the audit log of the affected resource.
func WithReason(reason string) RequestOption {
	return func(o *requestOptions) error {
		o.reason = reason
		return nil
	}
}

// WithHeader adds a supplemental header. It is applied after the client's
// own headers and may override them.
func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) error {
		if o.header == nil {
			o.header = make(nethttp.Header)
		}
		o.header.Add(key, value)
		return nil
	}
}

// WithQuery appends query parameters to the request URL.
func WithQuery(query url.Values) RequestOption {
	return func(o *requestOptions) error {
		o.query = query
		return nil
	}
}

func newRequestOptions(opts []RequestOption) (*requestOptions, error) {
	o := &requestOptions{}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	if o.jsonBody != nil && o.form != nil {
		return nil, fmt.Errorf("request cannot carry both a JSON body and a form")
	}
	return o, nil
}

// body returns the payload for one attempt and its content type.
func (o *requestOptions) body() (io.Reader, string, error) {
	switch {
	case o.form != nil:
		raw, contentType, err := o.form.Build()
		if err != nil {
			return nil, "", fmt.Errorf("failed to build form: %w", err)
		}
		return bytes.NewReader(raw), contentType, nil
	case o.jsonBody != nil:
		return bytes.NewReader(o.jsonBody), "application/json", nil
	default:
		return nil, "", nil
	}
}

func (o *requestOptions) url(base string) string {
	if len(o.query) == 0 {
		return base
	}
	return base + "?" + o.query.Encode()
}

// escapeReason percent-encodes an audit log reason. Unreserved characters,
// "/" and the space are kept as is.
func escapeReason(reason string) string {
	var sb strings.Builder
	for i := 0; i < len(reason); i++ {
		c := reason[i]
		if keepInReason(c) {
			sb.WriteByte(c)
			continue
		}
		fmt.Fprintf(&sb, "%%%02X", c)
	}
	return sb.String()
}

func keepInReason(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("-_.~/ ", c) >= 0
}
