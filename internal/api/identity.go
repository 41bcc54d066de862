package api

import (
	"encoding/base64"
	"encoding/json"
	"runtime"

	"github.com/google/uuid"
)

// Identity values sent with every request.
const (
	DefaultUserAgent     = "GamingSDK Embedded/0.0.8"
	WebsocketUserAgent   = "WebSocket++/0.8.3-dev"
	clientBrowser        = "GamingSDK Embedded"
	clientBrowserVersion = "0.0.8"
	clientBuildNumber    = 304683
)

// Identity describes the client to the API: the User-Agent and the base64
// encoded client properties sent as X-Super-Properties.
type Identity struct {
	UserAgent  string
	Properties map[string]any

	encoded string
}

// NewIdentity returns the identity of an embedded SDK client running on the
// current operating system. Every identity carries a fresh launch id. An empty
// userAgent selects DefaultUserAgent.
func NewIdentity(userAgent string) *Identity {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	id := &Identity{
		UserAgent: userAgent,
		Properties: map[string]any{
			"browser":             clientBrowser,
			"browser_user_agent":  userAgent,
			"browser_version":     clientBrowserVersion,
			"client_build_number": clientBuildNumber,
			"client_launch_id":    uuid.NewString(),
			"design_id":           0,
			"os":                  operatingSystem(runtime.GOOS),
			"release_channel":     "unknown",
		},
	}
	// Map values are plain JSON types; Marshal cannot fail.
	raw, _ := json.Marshal(id.Properties)
	id.encoded = base64.StdEncoding.EncodeToString(raw)
	return id
}

// SuperProperties returns the X-Super-Properties header value.
func (id *Identity) SuperProperties() string {
	return id.encoded
}

// GatewayProperties returns the properties sent when identifying on the
// realtime gateway.
func (id *Identity) GatewayProperties() map[string]any {
	return map[string]any{
		"browser":             clientBrowser,
		"client_build_number": clientBuildNumber,
		"device":              "console",
		"os":                  id.Properties["os"],
		"version":             1,
	}
}

func operatingSystem(goos string) string {
	switch goos {
	case "windows":
		return "Windows"
	case "darwin":
		return "Mac OS X"
	case "android":
		return "Android"
	case "ios":
		return "iOS"
	default:
		return "Linux"
	}
}
