package api

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
)

// StaticLogin switches the client to token and verifies it by fetching the
// current user. If the server rejects the request the previous token is
// restored; a 401 is reported as ErrLoginFailure.
func (c *Client) StaticLogin(ctx context.Context, token string) (any, error) {
	old := c.SetToken(token)

	data, err := c.GetMe(ctx)
	if err != nil {
		var he *HTTPError
		if errors.As(err, &he) {
			c.SetToken(old)
			if he.StatusCode == nethttp.StatusUnauthorized {
				return nil, fmt.Errorf("%w: %w", ErrLoginFailure, err)
			}
		}
		return nil, err
	}
	return data, nil
}
