package api

import (
	"encoding/json"
	"io"
	"mime"
	nethttp "net/http"
)

// jsonOrText reads a response body and decodes it as JSON when the server
// labels it application/json. Anything else, including a JSON label on a
// body that fails to parse, comes back as the raw text: edge proxies answer
// with HTML or plain text and omit the header.
func jsonOrText(resp *nethttp.Response) (any, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	text := string(raw)

	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return text, nil
	}

	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return text, nil
	}
	return data, nil
}

// rateLimitBody is the 429 payload.
type rateLimitBody struct {
	RetryAfter float64 `json:"retry_after"`
	Global     bool    `json:"global"`
}

// parseRateLimit extracts retry_after and global from a decoded 429 body.
func parseRateLimit(data any) (rateLimitBody, bool) {
	m, ok := data.(map[string]any)
	if !ok {
		return rateLimitBody{}, false
	}
	var body rateLimitBody
	retryAfter, ok := m["retry_after"].(float64)
	if !ok {
		return body, false
	}
	body.RetryAfter = retryAfter
	body.Global, _ = m["global"].(bool)
	return body, true
}
