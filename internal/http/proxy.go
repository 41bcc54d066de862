// Package http builds the transports the SDK talks to the API through: a
// proxy-aware REST client, a multipart body builder and a websocket dialer
// that shares the REST client's proxy settings.
package http

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	nethttp "net/http"
	"net/url"
	"strings"

	ntlmssp "github.com/Azure/go-ntlmssp"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http/httpproxy"

	"github.com/gamingsdk/sdk-go/internal/config"
	"github.com/gamingsdk/sdk-go/internal/constants"
)

// ProxyFunc is the signature shared by nethttp.Transport.Proxy and
// websocket.Dialer.Proxy.
type ProxyFunc func(*nethttp.Request) (*url.URL, error)

// newTransport returns the base transport every client starts from.
func newTransport() *nethttp.Transport {
	return &nethttp.Transport{
		DialContext: (&net.Dialer{
			Timeout:   constants.HTTPDialTimeout,
			KeepAlive: constants.HTTPDialKeepAlive,
		}).DialContext,
		TLSClientConfig:       tlsConfig(),
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		MaxConnsPerHost:       100,
		IdleConnTimeout:       constants.HTTPIdleConnTimeout,
		TLSHandshakeTimeout:   constants.HTTPTLSHandshakeTimeout,
		ExpectContinueTimeout: constants.HTTPExpectContinueTimeout,
	}
}

func tlsConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
	}
}

// ResolveProxy returns the proxy function for cfg, or nil for a direct
// connection. Basic and NTLM modes require a proxy host.
func ResolveProxy(cfg *config.Config) (ProxyFunc, error) {
	switch mode := strings.ToLower(cfg.ProxyMode); mode {
	case config.ProxyModeNone, "":
		return nil, nil

	case config.ProxyModeSystem:
		return nethttp.ProxyFromEnvironment, nil

	case config.ProxyModeBasic, config.ProxyModeNTLM:
		if strings.TrimSpace(cfg.ProxyHost) == "" {
			return nil, fmt.Errorf("%s proxy: %w", mode, config.ErrMissingProxyHost)
		}
		if cfg.NeedsProxyPassword() {
			log.Warn().Msg("Proxy user configured but password missing - proxy auth disabled until password is set")
		}
		return proxyFuncWithBypass(buildProxyURL(cfg), cfg.NoProxy), nil

	default:
		return nil, fmt.Errorf("unsupported proxy mode: %s", cfg.ProxyMode)
	}
}

// ConfigureHTTPClient configures an HTTP client with proxy settings.
//
// The client has no cookie jar: cookies set by the API are never sent back.
// In NTLM mode the transport is wrapped in an ntlmssp.Negotiator, so callers
// must not assume Transport is a *nethttp.Transport.
func ConfigureHTTPClient(cfg *config.Config) (*nethttp.Client, error) {
	transport := newTransport()

	proxy, err := ResolveProxy(cfg)
	if err != nil {
		return nil, err
	}
	transport.Proxy = proxy

	client := &nethttp.Client{
		Transport: transport,
		Timeout:   constants.HTTPClientTimeout,
		Jar:       nil,
	}

	mode := strings.ToLower(cfg.ProxyMode)
	if mode == config.ProxyModeNTLM && proxy != nil {
		client.Transport = ntlmssp.Negotiator{
			RoundTripper: transport,
		}
	}

	// Only warm up when there is a proxy to warm up and, for authenticating
	// modes, the credentials are complete.
	if cfg.ProxyWarmup && proxy != nil {
		authenticating := mode == config.ProxyModeBasic || mode == config.ProxyModeNTLM
		if !authenticating || (cfg.ProxyUser != "" && cfg.ProxyPassword != "") {
			if err := warmupProxy(client, cfg); err != nil {
				return nil, fmt.Errorf("proxy warmup failed: %w", err)
			}
		}
	}

	return client, nil
}

// buildProxyURL constructs a proxy URL from config
func buildProxyURL(cfg *config.Config) *url.URL {
	port := cfg.ProxyPort
	if port == 0 {
		port = 8080
	}

	proxyURL := &url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(cfg.ProxyHost, fmt.Sprint(port)),
	}

	// An empty password in the URL makes some proxies reject the request.
	if cfg.ProxyUser != "" && cfg.ProxyPassword != "" {
		proxyURL.User = url.UserPassword(cfg.ProxyUser, cfg.ProxyPassword)
	}

	return proxyURL
}

// warmupProxy performs a warmup request to establish the proxy connection.
func warmupProxy(client *nethttp.Client, cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), constants.WarmupTimeout)
	defer cancel()

	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, cfg.BaseURL()+"/gateway", nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("warmup request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("warmup request returned server error: %d", resp.StatusCode)
	}

	return nil
}

// proxyFuncWithBypass returns a proxy function that respects the NoProxy bypass list.
// If noProxy is empty, behaves identically to nethttp.ProxyURL.
// When noProxy is set, uses golang.org/x/net/http/httpproxy to match hosts/CIDRs.
func proxyFuncWithBypass(proxyURL *url.URL, noProxy string) ProxyFunc {
	if noProxy == "" {
		return nethttp.ProxyURL(proxyURL)
	}
	cfg := httpproxy.Config{
		HTTPProxy:  proxyURL.String(),
		HTTPSProxy: proxyURL.String(),
		NoProxy:    noProxy,
	}
	proxyFunc := cfg.ProxyFunc()
	return func(req *nethttp.Request) (*url.URL, error) {
		result, err := proxyFunc(req.URL)
		if result == nil {
			log.Debug().Str("host", req.URL.Host).Msg("Proxy bypass (direct connection)")
		} else {
			log.Debug().Str("host", req.URL.Host).Str("proxy", result.Host).Msg("Proxied")
		}
		return result, err
	}
}
