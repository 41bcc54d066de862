package ratelimit

import (
	"sync"
	"time"
)

// Registry maps routes to buckets for one client.
//
// Buckets are keyed by a composite of the server-assigned bucket hash and the
// route's major parameters. Until a route's hash has been observed the route
// key stands in for it, so the first requests on a route share a provisional
// bucket that is rehomed under the hash key once the server names it.
//
// Lock order is Registry.mu before Bucket.mu.
type Registry struct {
	mu      sync.Mutex
	hashes  map[string]string  // route key -> bucket hash
	buckets map[string]*Bucket // composite key -> bucket

	maxTimeout time.Duration
	clock      Clock
}

// NewRegistry returns an empty registry whose buckets use maxTimeout and
// clock.
func NewRegistry(maxTimeout time.Duration, clock Clock) *Registry {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Registry{
		hashes:     make(map[string]string),
		buckets:    make(map[string]*Bucket),
		maxTimeout: maxTimeout,
		clock:      clock,
	}
}

// CompositeKey returns the bucket key for route given its known hash, or the
// provisional route-scoped key when hash is empty.
func CompositeKey(route *Route, hash string) string {
	if hash != "" {
		return hash + ":" + route.MajorParameters()
	}
	return route.Key() + ":" + route.MajorParameters()
}

// Resolve returns the bucket for route, creating it if needed. It also
// returns the composite key the bucket was found under and the route's hash
// at the time of the lookup, both of which Observe needs later.
//
// An insertion that brings the registry to SweepThreshold or more buckets
// evicts every inactive bucket. A new bucket is never inactive.
func (r *Registry) Resolve(route *Route) (key, hash string, b *Bucket) {
	r.mu.Lock()
	defer r.mu.Unlock()

	hash = r.hashes[route.Key()]
	key = CompositeKey(route, hash)
	if b, ok := r.buckets[key]; ok {
		return key, hash, b
	}

	b = NewBucket(r.maxTimeout, r.clock)
	r.buckets[key] = b
	if len(r.buckets) >= SweepThreshold {
		r.sweep()
	}
	return key, hash, b
}

// Observe records the bucket hash reported by a response.
//
// prevHash and key are the values Resolve returned for the request. A newly
// discovered hash moves b from its provisional key to the hash key. A hash
// that differs from a previously known one is treated as a reassignment: the
// mapping is replaced and b follows it. The server does not distinguish a
// reassignment from a sub-rate-limit, so this is best effort.
//
// Observe returns the key b is registered under afterwards and whether it
// moved.
func (r *Registry) Observe(route *Route, prevHash, observed, key string, b *Bucket) (string, bool) {
	if observed == "" || observed == prevHash {
		return key, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	routeKey := route.Key()
	if prevHash == "" {
		if known, ok := r.hashes[routeKey]; ok {
			if known != observed {
				return key, false
			}
			// Another request discovered the same hash first. Nothing looks
			// up the provisional key any more, so b joins the hash key
			// unless a bucket already lives there.
			newKey := CompositeKey(route, observed)
			if _, taken := r.buckets[newKey]; taken {
				if r.buckets[key] == b {
					delete(r.buckets, key)
				}
				return key, false
			}
			r.rehome(b, key, newKey)
			return newKey, true
		}
	}
	r.hashes[routeKey] = observed
	newKey := CompositeKey(route, observed)
	r.rehome(b, key, newKey)
	return newKey, true
}

// Rehome moves b from oldKey to newKey. Lookups never see b under neither
// key. Whatever was registered under newKey is replaced.
func (r *Registry) Rehome(b *Bucket, oldKey, newKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rehome(b, oldKey, newKey)
}

func (r *Registry) rehome(b *Bucket, oldKey, newKey string) {
	r.buckets[newKey] = b
	if oldKey != newKey && r.buckets[oldKey] == b {
		delete(r.buckets, oldKey)
	}
}

// sweep drops inactive buckets. Requires mu.
func (r *Registry) sweep() {
	for k, b := range r.buckets {
		if b.IsInactive() {
			delete(r.buckets, k)
		}
	}
}

// Hash returns the hash recorded for a route key.
func (r *Registry) Hash(routeKey string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.hashes[routeKey]
	return h, ok
}

// Bucket returns the bucket registered under a composite key.
func (r *Registry) Bucket(key string) (*Bucket, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.buckets[key]
	return b, ok
}

// Len returns the number of registered buckets.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buckets)
}

// Clear forgets every hash and bucket. Requests already holding a bucket keep
// using it.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.hashes)
	clear(r.buckets)
}
