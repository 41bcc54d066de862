package api

import (
	"context"
	"fmt"
	"io"
	nethttp "net/http"

	"github.com/hashicorp/go-retryablehttp"
)

// GetFromCDN downloads an asset. CDN requests bypass the bucket registry;
// transient failures are retried by the library's default policy.
func (c *Client) GetFromCDN(ctx context.Context, assetURL string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, nethttp.MethodGet, assetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.identity.UserAgent)

	resp, err := c.cdn.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read asset: %w", err)
	}

	switch resp.StatusCode {
	case nethttp.StatusOK:
		return body, nil
	case nethttp.StatusNotFound:
		return nil, &NotFoundError{newHTTPError(nethttp.MethodGet, assetURL, resp.StatusCode, "asset not found")}
	case nethttp.StatusForbidden:
		return nil, &ForbiddenError{newHTTPError(nethttp.MethodGet, assetURL, resp.StatusCode, "cannot retrieve asset")}
	default:
		return nil, newHTTPError(nethttp.MethodGet, assetURL, resp.StatusCode, "failed to get asset")
	}
}
