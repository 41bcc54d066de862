package api

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"net/url"
	"strconv"

	"github.com/gorilla/websocket"

	"github.com/gamingsdk/sdk-go/internal/http"
	"github.com/gamingsdk/sdk-go/internal/ratelimit"
)

// GatewayURL returns the URL of the realtime gateway.
func (c *Client) GatewayURL(ctx context.Context) (string, error) {
	data, err := c.Request(ctx, ratelimit.NewRoute(nethttp.MethodGet, "/gateway"))
	if err != nil {
		var he *HTTPError
		if errors.As(err, &he) {
			return "", fmt.Errorf("%w: %w", ErrGatewayNotFound, err)
		}
		return "", err
	}

	m, _ := data.(map[string]any)
	gatewayURL, _ := m["url"].(string)
	if gatewayURL == "" {
		return "", ErrGatewayNotFound
	}
	return gatewayURL, nil
}

// GatewayConnectURL returns the gateway URL with the encoding, API version
// and optional transport compression selected.
func (c *Client) GatewayConnectURL(ctx context.Context, encoding string, compress bool) (string, error) {
	base, err := c.GatewayURL(ctx)
	if err != nil {
		return "", err
	}
	if encoding == "" {
		encoding = "json"
	}
	query := url.Values{}
	query.Set("encoding", encoding)
	query.Set("v", strconv.Itoa(c.cfg.APIVersion))
	if compress {
		query.Set("compress", "zlib-stream")
	}
	return base + "?" + query.Encode(), nil
}

// DialGateway opens the websocket to the gateway through the client's proxy
// settings. The caller owns the connection; the session protocol is not
// handled here.
func (c *Client) DialGateway(ctx context.Context, encoding string, compress bool) (*websocket.Conn, error) {
	target, err := c.GatewayConnectURL(ctx, encoding, compress)
	if err != nil {
		return nil, err
	}
	header := nethttp.Header{}
	header.Set("User-Agent", WebsocketUserAgent)
	c.logger.Debug().Str("url", target).Msg("Connecting to gateway")
	return http.DialWebsocket(ctx, c.cfg, target, header)
}
