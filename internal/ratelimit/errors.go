package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

// RateLimitedError is returned when honouring a rate limit would mean waiting
// longer than the configured maximum. It is never retried by this package.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("too many requests, retry after %.2fs", e.RetryAfter.Seconds())
}

// IsRateLimited reports whether err is, or wraps, a RateLimitedError.
func IsRateLimited(err error) bool {
	var rl *RateLimitedError
	return errors.As(err, &rl)
}
