package http

import (
	"crypto/tls"
	nethttp "net/http"
	"os"
	"strings"

	"golang.org/x/net/http2"

	"github.com/gamingsdk/sdk-go/internal/config"
)

// CreateClient creates the HTTP client used for API and CDN requests.
//
// It starts from ConfigureHTTPClient and, when the transport is a plain
// *nethttp.Transport, enables HTTP/2. HTTP/2 is turned off when
// cfg.DisableHTTP2 or DISABLE_HTTP2=true is set, and whenever a proxy is
// active unless FORCE_HTTP2=true: proxies often break HTTP/2 streams.
//
// A nil cfg yields a direct client with default settings.
func CreateClient(cfg *config.Config) (*nethttp.Client, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}

	client, err := ConfigureHTTPClient(cfg)
	if err != nil {
		return nil, err
	}

	tr, ok := client.Transport.(*nethttp.Transport)
	if !ok {
		// NTLM wraps the transport; leave it as configured.
		return client, nil
	}

	tr.ForceAttemptHTTP2 = true
	_ = http2.ConfigureTransport(tr)

	if cfg.DisableHTTP2 || os.Getenv("DISABLE_HTTP2") == "true" {
		disableHTTP2(tr)
	}

	if proxyActive(cfg) && os.Getenv("FORCE_HTTP2") != "true" {
		disableHTTP2(tr)
	}

	client.Transport = tr
	return client, nil
}

func disableHTTP2(tr *nethttp.Transport) {
	tr.ForceAttemptHTTP2 = false
	tr.TLSNextProto = make(map[string]func(string, *tls.Conn) nethttp.RoundTripper)
}

// proxyActive trusts the configured mode first and only consults the
// environment in system mode.
func proxyActive(cfg *config.Config) bool {
	switch strings.ToLower(cfg.ProxyMode) {
	case config.ProxyModeNone, "":
		return false
	case config.ProxyModeSystem:
		return os.Getenv("HTTP_PROXY") != "" || os.Getenv("HTTPS_PROXY") != "" ||
			os.Getenv("http_proxy") != "" || os.Getenv("https_proxy") != ""
	default:
		return cfg.ProxyHost != ""
	}
}
