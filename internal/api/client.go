package api

import (
	"context"
	"fmt"
	nethttp "net/http"
	"net/http/httptrace"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gamingsdk/sdk-go/internal/config"
	"github.com/gamingsdk/sdk-go/internal/constants"
	"github.com/gamingsdk/sdk-go/internal/http"
	"github.com/gamingsdk/sdk-go/internal/logging"
	"github.com/gamingsdk/sdk-go/internal/ratelimit"
)

const tracerName = "github.com/gamingsdk/sdk-go/internal/api"

// Doer performs a single HTTP attempt. Retry policy belongs to the Client;
// a Doer must not retry on its own.
type Doer interface {
	Do(*retryablehttp.Request) (*nethttp.Response, error)
}

// retryLogger implements the retryablehttp.LeveledLogger interface
type retryLogger struct {
	logger *logging.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Fields(keysAndValues).Msg(msg)
}

// noRetry hands every outcome straight back to the caller.
func noRetry(ctx context.Context, _ *nethttp.Response, _ error) (bool, error) {
	return false, ctx.Err()
}

// Client is the rate limited REST client.
//
// Every request is routed to a bucket in the client's registry and waits on
// the client's global gate, so all requests made through one Client share
// the same view of the server's rate limits. A Client is safe for concurrent
// use.
type Client struct {
	cfg        *config.Config
	baseURL    string
	identity   *Identity
	doer       Doer
	httpClient *nethttp.Client
	cdn        *retryablehttp.Client
	registry   *ratelimit.Registry
	gate       *ratelimit.GlobalGate
	clock      ratelimit.Clock
	logger     *logging.Logger
	tracer     trace.Tracer
	maxTimeout time.Duration
	useClock   bool

	mu    sync.RWMutex
	token string
}

// ClientOption customises a Client.
type ClientOption func(*Client)

// WithDoer replaces the transport used for API requests.
func WithDoer(d Doer) ClientOption {
	return func(c *Client) { c.doer = d }
}

// WithClock replaces the clock used for rate limit windows and retry sleeps.
func WithClock(clock ratelimit.Clock) ClientOption {
	return func(c *Client) { c.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithTracerProvider sets where request spans are reported. The global
// provider is used by default.
func WithTracerProvider(tp trace.TracerProvider) ClientOption {
	return func(c *Client) { c.tracer = tp.Tracer(tracerName) }
}

// NewClient creates a new API client
func NewClient(cfg *config.Config, opts ...ClientOption) (*Client, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Configure HTTP client with proxy support
	httpClient, err := http.CreateClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to configure HTTP client: %w", err)
	}

	c := &Client{
		cfg:        cfg,
		baseURL:    cfg.BaseURL(),
		identity:   NewIdentity(cfg.UserAgent),
		httpClient: httpClient,
		gate:       ratelimit.NewGlobalGate(),
		clock:      ratelimit.SystemClock{},
		logger:     logging.NewLogger(),
		tracer:     otel.GetTracerProvider().Tracer(tracerName),
		maxTimeout: cfg.EffectiveRatelimitTimeout(),
		useClock:   cfg.UseClock(),
		token:      cfg.Token,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.doer == nil {
		retryClient := retryablehttp.NewClient()
		retryClient.HTTPClient = httpClient
		retryClient.RetryMax = 0
		retryClient.CheckRetry = noRetry
		retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
		retryClient.Logger = &retryLogger{logger: c.logger}
		c.doer = retryClient
	}

	// CDN assets carry no rate limit headers; the library's own policy
	// retries them.
	cdn := retryablehttp.NewClient()
	cdn.HTTPClient = httpClient
	cdn.RetryMax = constants.CDNMaxRetries
	cdn.RetryWaitMin = 1 * time.Second
	cdn.RetryWaitMax = 30 * time.Second
	cdn.ErrorHandler = retryablehttp.PassthroughErrorHandler
	cdn.Logger = &retryLogger{logger: c.logger}
	c.cdn = cdn

	c.registry = ratelimit.NewRegistry(c.maxTimeout, c.clock)
	return c, nil
}

// Config returns the configuration the client was built from.
func (c *Client) Config() *config.Config {
	return c.cfg
}

// Identity returns the client identity sent with every request.
func (c *Client) Identity() *Identity {
	return c.identity
}

// Registry returns the client's bucket registry.
func (c *Client) Registry() *ratelimit.Registry {
	return c.registry
}

// Gate returns the client's global rate limit gate.
func (c *Client) Gate() *ratelimit.GlobalGate {
	return c.gate
}

// Token returns the token sent in the Authorization header.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetToken replaces the token and returns the previous one.
func (c *Client) SetToken(token string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.token
	c.token = token
	return old
}

// Close forgets every bucket and closes idle connections. The client stays
// usable; new requests start with fresh buckets.
func (c *Client) Close() {
	c.registry.Clear()
	c.httpClient.CloseIdleConnections()
}

// Request performs one logical API call and returns the decoded response
// body: JSON values as produced by encoding/json, anything else as a string.
//
// The call waits for the global gate and a token from the route's bucket and
// is retried up to five attempts in total on 429, on 500, 502, 504 and 524,
// and on connection resets. Other failures are returned as typed errors; see
// HTTPError and its wrappers.
func (c *Client) Request(ctx context.Context, route *ratelimit.Route, opts ...RequestOption) (any, error) {
	o, err := newRequestOptions(opts)
	if err != nil {
		return nil, err
	}

	method := route.Method()
	target := o.url(route.URL(c.baseURL))
	requestID := uuid.NewString()
	logger := c.logger.WithFields(func(zc zerolog.Context) zerolog.Context {
		return zc.Str("request_id", requestID).Str("method", method).Str("url", target)
	})

	ctx, span := c.tracer.Start(ctx, "gamingsdk.request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("gamingsdk.route", route.Key()),
			attribute.String("gamingsdk.request_id", requestID),
		))
	defer span.End()

	data, err := c.execute(ctx, route, o, target, logger, span)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return data, nil
}

func (c *Client) execute(ctx context.Context, route *ratelimit.Route, o *requestOptions, target string, logger *logging.Logger, span trace.Span) (any, error) {
	method := route.Method()
	key, hash, bucket := c.registry.Resolve(route)

	span.AddEvent("bucket.acquire", trace.WithAttributes(attribute.String("gamingsdk.bucket", key)))
	if err := bucket.Acquire(ctx); err != nil {
		return nil, err
	}
	defer bucket.Release()

	var last *HTTPError
	for attempt := 0; attempt < constants.MaxAttempts; attempt++ {
		final := attempt == constants.MaxAttempts-1

		if !c.gate.IsOpen() {
			span.AddEvent("global.wait")
			logger.Debug().Msg("Waiting for global rate limit to clear")
		}
		if err := c.gate.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := c.newRequest(ctx, method, target, o)
		if err != nil {
			return nil, err
		}

		resp, data, err := c.send(req)
		if err != nil {
			if final || !http.IsConnectionReset(err) {
				return nil, err
			}
			wait := http.Backoff(attempt)
			logger.Warn().Err(err).Int("attempt", attempt+1).Dur("backoff", wait).Msg("Connection reset, retrying")
			span.AddEvent("retry", trace.WithAttributes(
				attribute.String("gamingsdk.reason", http.ErrorTypeName(http.ErrorTypeNetwork)),
				attribute.Int("gamingsdk.attempt", attempt+1)))
			if err := c.clock.Sleep(ctx, wait); err != nil {
				return nil, err
			}
			continue
		}

		if observed := resp.Header.Get(ratelimit.HeaderBucket); observed != "" {
			if newKey, moved := c.registry.Observe(route, hash, observed, key, bucket); moved {
				if hash == "" {
					logger.Debug().Str("bucket", observed).Str("route", route.Key()).Msg("Bucket hash discovered")
				} else {
					logger.Debug().Str("bucket", observed).Str("previous", hash).Str("route", route.Key()).Msg("Bucket hash changed")
				}
				key, hash = newKey, observed
			}
		}

		if resp.Header.Get(ratelimit.HeaderRemaining) != "" && resp.StatusCode != nethttp.StatusTooManyRequests {
			bucket.Update(resp.Header, c.useClock)
			if bucket.Remaining() <= 0 {
				logger.Debug().Str("bucket", key).Msg("Bucket exhausted, requests will wait for the window to reset")
			}
		}

		errType := http.ClassifyStatus(resp.StatusCode)
		switch errType {
		case http.ErrorTypeSuccess:
			logger.Debug().Int("status", resp.StatusCode).Int("attempt", attempt+1).Msg("Request completed")
			return data, nil

		case http.ErrorTypeRateLimited:
			// Rate limits from the edge proxy carry no Via header and are
			// not JSON; waiting them out is not worth it.
			if _, isText := data.(string); isText || resp.Header.Get("Via") == "" {
				logger.Warn().Int("status", resp.StatusCode).Msg("Rate limited by the edge, not retrying")
				return nil, newHTTPError(method, target, resp.StatusCode, data)
			}

			limit := parseRetryAfter(data, resp.Header)
			retryAfter := ratelimit.Seconds(limit.RetryAfter)
			if c.maxTimeout > 0 && retryAfter > c.maxTimeout {
				return nil, &RateLimitedError{RetryAfter: retryAfter}
			}

			switch {
			case limit.Global:
				logger.Warn().Dur("retry_after", retryAfter).Msg("Global rate limit hit")
			case isSubRateLimit(bucket):
				logger.Debug().Str("bucket", key).Dur("retry_after", retryAfter).Msg("Sub rate limit hit")
			default:
				logger.Warn().Str("bucket", key).Dur("retry_after", retryAfter).Msg("Rate limited")
			}
			span.AddEvent("retry", trace.WithAttributes(
				attribute.String("gamingsdk.reason", http.ErrorTypeName(errType)),
				attribute.Bool("gamingsdk.global", limit.Global),
				attribute.Int("gamingsdk.attempt", attempt+1)))

			last = newHTTPError(method, target, resp.StatusCode, data)
			if err := c.sleepRateLimit(ctx, retryAfter, limit.Global); err != nil {
				return nil, err
			}

		case http.ErrorTypeRetryable:
			last = newHTTPError(method, target, resp.StatusCode, data)
			if final {
				break
			}
			wait := http.Backoff(attempt)
			logger.Warn().Int("status", resp.StatusCode).Int("attempt", attempt+1).Dur("backoff", wait).Msg("Server error, retrying")
			span.AddEvent("retry", trace.WithAttributes(
				attribute.String("gamingsdk.reason", http.ErrorTypeName(errType)),
				attribute.Int("http.response.status_code", resp.StatusCode),
				attribute.Int("gamingsdk.attempt", attempt+1)))
			if err := c.clock.Sleep(ctx, wait); err != nil {
				return nil, err
			}

		default:
			return nil, statusError(newHTTPError(method, target, resp.StatusCode, data))
		}
	}

	logger.Error().Int("status", last.StatusCode).Msg("Request failed after all attempts")
	return nil, statusError(last)
}

// sleepRateLimit waits out a 429. A global limit closes the gate for the
// duration so no other request is sent meanwhile.
func (c *Client) sleepRateLimit(ctx context.Context, d time.Duration, global bool) error {
	if global {
		c.gate.Close()
		defer c.gate.Open()
	}
	return c.clock.Sleep(ctx, d)
}

func (c *Client) newRequest(ctx context.Context, method, target string, o *requestOptions) (*retryablehttp.Request, error) {
	body, contentType, err := o.body()
	if err != nil {
		return nil, err
	}

	if c.cfg.HTTPTrace != nil {
		if tr := c.cfg.HTTPTrace(); tr != nil {
			ctx = httptrace.WithClientTrace(ctx, tr)
		}
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", c.identity.UserAgent)
	req.Header.Set("X-Super-Properties", c.identity.SuperProperties())
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if o.reason != "" {
		req.Header.Set("X-Audit-Log-Reason", escapeReason(o.reason))
	}
	for k, vs := range o.header {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return req, nil
}

// send performs one attempt and decodes the body.
func (c *Client) send(req *retryablehttp.Request) (*nethttp.Response, any, error) {
	resp, err := c.doer.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, nil, err
	}
	defer resp.Body.Close()

	data, err := jsonOrText(resp)
	if err != nil {
		return nil, nil, err
	}
	return resp, data, nil
}

// parseRetryAfter reads the wait from a 429 body, falling back to the
// Retry-After header.
func parseRetryAfter(data any, h nethttp.Header) rateLimitBody {
	if body, ok := parseRateLimit(data); ok {
		return body
	}
	var body rateLimitBody
	if m, ok := data.(map[string]any); ok {
		body.Global, _ = m["global"].(bool)
	}
	if v, err := strconv.ParseFloat(h.Get("Retry-After"), 64); err == nil {
		body.RetryAfter = v
	}
	return body
}

// isSubRateLimit reports a 429 that arrived while the bucket still had
// tokens: the server limits this resource more tightly than its bucket says.
func isSubRateLimit(b *ratelimit.Bucket) bool {
	return b.Remaining() > 0
}
