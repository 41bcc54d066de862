package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Bucket tracks one server-side rate limit bucket.
//
// It behaves like a semaphore whose capacity is learned from response
// headers. Acquire reserves a token, Update records what the server says
// about the window, and Release returns the reservation and, when the window
// is exhausted, sleeps until it resets before waking queued callers. Many
// requests can therefore share one bucket up to its real capacity instead of
// being serialised one per window.
//
// Counters are guarded by mu, which is never held across a blocking call.
// The sleeping mutex ensures at most one refresh sleep is in progress; the
// goroutine holding it is responsible for waking the queued callers.
type Bucket struct {
	mu          sync.Mutex
	limit       int
	remaining   int
	outgoing    int
	resetAfter  time.Duration
	expires     time.Time
	dirty       bool
	lastRequest time.Time
	pending     []*waiter

	sleeping sync.Mutex

	maxTimeout time.Duration
	clock      Clock
}

// waiter is a caller parked in Acquire. Its fields other than ch are guarded
// by the owning Bucket's mu.
type waiter struct {
	ch      chan error
	done    bool // woken or abandoned
	granted bool // woken without an error
}

// NewBucket returns a bucket with the default capacity of one token.
// maxTimeout caps how long any caller is allowed to be held back by this
// bucket; zero means no cap. A nil clock uses SystemClock.
func NewBucket(maxTimeout time.Duration, clock Clock) *Bucket {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Bucket{
		limit:       DefaultLimit,
		remaining:   DefaultLimit,
		maxTimeout:  maxTimeout,
		clock:       clock,
		lastRequest: clock.Now(),
	}
}

func (b *Bucket) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return fmt.Sprintf("<Bucket limit=%d remaining=%d outgoing=%d pending=%d>",
		b.limit, b.remaining, b.outgoing, len(b.pending))
}

// reset starts a fresh window. Requires mu.
func (b *Bucket) reset() {
	b.remaining = b.limit - b.outgoing
	b.expires = time.Time{}
	b.resetAfter = 0
	b.dirty = false
}

// Acquire reserves a token, blocking while none are available.
//
// If a maximum timeout is configured and the current window will not reset
// within it, Acquire fails immediately with a *RateLimitedError instead of
// waiting. A cancelled ctx returns ctx.Err(); a token that was handed to the
// caller just before cancellation is passed on to the next waiter.
func (b *Bucket) Acquire(ctx context.Context) error {
	b.mu.Lock()
	now := b.clock.Now()
	b.lastRequest = now
	if b.expiredAt(now) {
		b.reset()
	}

	if b.maxTimeout > 0 && !b.expires.IsZero() {
		if wait := b.expires.Sub(now); wait > b.maxTimeout {
			b.mu.Unlock()
			return &RateLimitedError{RetryAfter: wait}
		}
	}

	for b.remaining <= 0 {
		w := &waiter{ch: make(chan error, 1)}
		b.pending = append(b.pending, w)
		b.mu.Unlock()

		select {
		case err := <-w.ch:
			if err != nil {
				return err
			}
			b.mu.Lock()
		case <-ctx.Done():
			b.mu.Lock()
			if !w.done {
				w.done = true
				b.removeWaiter(w)
			} else if w.granted && b.remaining > 0 {
				b.wake(1, nil)
			}
			b.mu.Unlock()
			return ctx.Err()
		}
	}

	b.remaining--
	b.outgoing++
	b.mu.Unlock()
	return nil
}

// Release returns a reservation taken by Acquire. It must be called exactly
// once for every successful Acquire.
//
// When no tokens are left for other callers the bucket sleeps out the rest
// of the window on a background goroutine and then wakes the queue;
// otherwise up to the number of free tokens are handed to queued callers
// right away.
func (b *Bucket) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.outgoing--
	tokens := b.remaining - b.outgoing

	if !b.sleeping.TryLock() {
		// Whoever is sleeping will wake the queue.
		return
	}
	if tokens <= 0 {
		go b.refresh()
		return
	}
	if len(b.pending) > 0 {
		b.wake(tokens, b.timeoutError())
	}
	b.sleeping.Unlock()
}

// refresh waits out the current window and wakes the queue. The caller must
// hold b.sleeping; refresh releases it.
func (b *Bucket) refresh() {
	b.mu.Lock()
	resetAfter := b.resetAfter
	err := b.timeoutError()
	b.mu.Unlock()

	if err == nil {
		_ = b.clock.Sleep(context.Background(), resetAfter)
	}

	b.mu.Lock()
	b.reset()
	b.wake(b.remaining, err)
	b.sleeping.Unlock()
	b.mu.Unlock()
}

// timeoutError returns the error queued callers receive instead of a token
// when the window is longer than the configured maximum. Requires mu.
func (b *Bucket) timeoutError() error {
	if b.maxTimeout > 0 && b.resetAfter > b.maxTimeout {
		return &RateLimitedError{RetryAfter: b.resetAfter}
	}
	return nil
}

// wake resolves up to count queued callers in FIFO order. Requires mu.
func (b *Bucket) wake(count int, err error) {
	awoken := 0
	for awoken < count && len(b.pending) > 0 {
		w := b.pending[0]
		b.pending[0] = nil
		b.pending = b.pending[1:]
		if w.done {
			continue
		}
		w.done = true
		w.granted = err == nil
		w.ch <- err
		awoken++
	}
}

// removeWaiter drops an abandoned waiter from the queue. Requires mu.
func (b *Bucket) removeWaiter(w *waiter) {
	for i, p := range b.pending {
		if p == w {
			b.pending = append(b.pending[:i], b.pending[i+1:]...)
			return
		}
	}
}

// Update records the server's view of the bucket from a response's rate
// limit headers.
//
// The first update takes X-Ratelimit-Remaining verbatim. Later updates clamp
// it to limit minus the requests still in flight, since those have already
// been counted against the local remaining value.
//
// With useClock set, or when X-Ratelimit-Reset-After is missing, the window
// length is derived from the absolute X-Ratelimit-Reset timestamp and the
// local wall clock instead.
func (b *Bucket) Update(h http.Header, useClock bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.limit = headerInt(h, HeaderLimit, DefaultLimit)
	remaining := headerInt(h, HeaderRemaining, 0)
	if b.dirty {
		b.remaining = min(remaining, b.limit-b.outgoing)
	} else {
		b.remaining = remaining
		b.dirty = true
	}

	now := b.clock.Now()
	resetAfter, ok := headerFloat(h, HeaderResetAfter)
	if useClock || !ok {
		if reset, ok := headerFloat(h, HeaderReset); ok {
			resetAt := time.UnixMicro(int64(reset * 1e6))
			b.resetAfter = resetAt.Sub(now.Round(0))
		} else {
			b.resetAfter = 0
		}
	} else {
		b.resetAfter = Seconds(resetAfter)
	}
	b.expires = now.Add(b.resetAfter)
}

// Remaining returns the number of tokens currently available.
func (b *Bucket) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remaining
}

// IsExpired reports whether the bucket's window has passed.
func (b *Bucket) IsExpired() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.expiredAt(b.clock.Now())
}

func (b *Bucket) expiredAt(now time.Time) bool {
	return !b.expires.IsZero() && now.After(b.expires)
}

// IsInactive reports whether the bucket can be evicted: untouched for
// InactiveAfter with nothing in flight and nobody waiting.
func (b *Bucket) IsInactive() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	idle := b.clock.Now().Sub(b.lastRequest)
	return idle >= InactiveAfter && b.outgoing == 0 && len(b.pending) == 0
}

// Snapshot is a point-in-time copy of a bucket's counters.
type Snapshot struct {
	Limit      int
	Remaining  int
	Outgoing   int
	Pending    int
	ResetAfter time.Duration
	Expires    time.Time
	Dirty      bool
}

// Snapshot returns the current counters.
func (b *Bucket) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Limit:      b.limit,
		Remaining:  b.remaining,
		Outgoing:   b.outgoing,
		Pending:    len(b.pending),
		ResetAfter: b.resetAfter,
		Expires:    b.expires,
		Dirty:      b.dirty,
	}
}

func headerInt(h http.Header, name string, def int) int {
	v := h.Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		// Some edges send "5.0".
		f, ferr := strconv.ParseFloat(v, 64)
		if ferr != nil {
			return def
		}
		return int(f)
	}
	return n
}

func headerFloat(h http.Header, name string) (float64, bool) {
	v := h.Get(name)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
