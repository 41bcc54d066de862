package http

import (
	"context"
	"fmt"
	nethttp "net/http"

	"github.com/gorilla/websocket"

	"github.com/gamingsdk/sdk-go/internal/config"
	"github.com/gamingsdk/sdk-go/internal/constants"
)

// NewWebsocketDialer returns a dialer that reaches the realtime gateway
// through the same proxy and TLS settings as the REST client.
//
// gorilla/websocket authenticates to proxies with Basic credentials taken
// from the proxy URL; NTLM proxies are dialled with those credentials too and
// will reject the CONNECT unless they also accept Basic.
func NewWebsocketDialer(cfg *config.Config) (*websocket.Dialer, error) {
	proxy, err := ResolveProxy(cfg)
	if err != nil {
		return nil, err
	}
	return &websocket.Dialer{
		Proxy:             proxy,
		TLSClientConfig:   tlsConfig(),
		HandshakeTimeout:  constants.WebsocketHandshakeTimeout,
		EnableCompression: false,
		Jar:               nil,
	}, nil
}

// DialWebsocket opens a websocket connection to rawURL. header carries extra
// handshake headers such as User-Agent.
func DialWebsocket(ctx context.Context, cfg *config.Config, rawURL string, header nethttp.Header) (*websocket.Conn, error) {
	dialer, err := NewWebsocketDialer(cfg)
	if err != nil {
		return nil, err
	}
	conn, resp, err := dialer.DialContext(ctx, rawURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}
