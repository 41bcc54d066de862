// Package ratelimit implements the bucket model used to pace requests against
// the gaming-sdk REST API.
package ratelimit

import "time"

// Rate limit response headers.
//
// The API never publishes bucket identities up front. A route's bucket is
// discovered from X-Ratelimit-Bucket on the first response that carries it,
// and X-Ratelimit-Remaining is the header that reliably signals a metered
// route at all.
const (
	HeaderLimit      = "X-Ratelimit-Limit"
	HeaderRemaining  = "X-Ratelimit-Remaining"
	HeaderReset      = "X-Ratelimit-Reset"
	HeaderResetAfter = "X-Ratelimit-Reset-After"
	HeaderBucket     = "X-Ratelimit-Bucket"
)

// Registry housekeeping.
const (
	// SweepThreshold is the bucket count at which inserting a new bucket
	// triggers an eviction sweep of inactive buckets.
	SweepThreshold = 256

	// InactiveAfter is how long a bucket must go without an Acquire before it
	// may be evicted. Buckets with in-flight requests or queued waiters are
	// never evicted regardless of age.
	InactiveAfter = 300 * time.Second
)

// DefaultLimit is the capacity assumed for a bucket that has not yet seen a
// server response. A single token serialises the first request on a route
// so the real limit can be learned from its headers.
const DefaultLimit = 1
