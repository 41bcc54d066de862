package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gamingsdk/sdk-go/internal/ratelimit/clocktest"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func headers(kv ...string) http.Header {
	h := http.Header{}
	for i := 0; i+1 < len(kv); i += 2 {
		h.Set(kv[i], kv[i+1])
	}
	return h
}

// acquireAsync starts Acquire on a goroutine and returns a channel that
// receives its result.
func acquireAsync(ctx context.Context, b *Bucket) <-chan error {
	done := make(chan error, 1)
	go func() { done <- b.Acquire(ctx) }()
	return done
}

// waitPending polls until n callers are queued on b.
func waitPending(t *testing.T, b *Bucket, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if b.Snapshot().Pending == n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d pending waiters, have %d", n, b.Snapshot().Pending)
}

func receive(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Acquire to return")
		return nil
	}
}

// TestNewBucketDefaults verifies a fresh bucket admits exactly one request.
func TestNewBucketDefaults(t *testing.T) {
	b := NewBucket(0, clocktest.New(epoch))
	s := b.Snapshot()
	if s.Limit != 1 || s.Remaining != 1 || s.Outgoing != 0 || s.Dirty {
		t.Errorf("unexpected initial state: %+v", s)
	}
	if b.IsExpired() {
		t.Error("fresh bucket should not be expired")
	}
}

// TestBucketAdmitsUpToLimit verifies that with limit 5 five callers proceed
// without waiting and a sixth waits for a release.
func TestBucketAdmitsUpToLimit(t *testing.T) {
	clock := clocktest.New(epoch)
	b := NewBucket(0, clock)
	b.Update(headers(HeaderLimit, "5", HeaderRemaining, "5", HeaderResetAfter, "1"), false)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := receive(t, acquireAsync(ctx, b)); err != nil {
			t.Fatalf("Acquire %d failed: %v", i+1, err)
		}
	}

	sixth := acquireAsync(ctx, b)
	waitPending(t, b, 1)
	select {
	case err := <-sixth:
		t.Fatalf("sixth Acquire returned early: %v", err)
	default:
	}

	b.Release()
	if err := receive(t, sixth); err != nil {
		t.Fatalf("sixth Acquire failed: %v", err)
	}
	if s := b.Snapshot(); s.Outgoing != 5 || s.Remaining < 0 {
		t.Errorf("after handoff: %+v", s)
	}
}

// TestBucketSleepsResetAfterBeforeWaking verifies an exhausted bucket sleeps
// for reset_after and then refills to limit minus outgoing.
func TestBucketSleepsResetAfterBeforeWaking(t *testing.T) {
	clock := clocktest.New(epoch)
	b := NewBucket(0, clock)
	ctx := context.Background()

	if err := b.Acquire(ctx); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	b.Update(headers(HeaderLimit, "3", HeaderRemaining, "0", HeaderResetAfter, "5"), false)

	waiter := acquireAsync(ctx, b)
	waitPending(t, b, 1)

	b.Release()
	if err := receive(t, waiter); err != nil {
		t.Fatalf("waiter: %v", err)
	}

	sleeps := clock.Sleeps()
	if len(sleeps) != 1 || sleeps[0] != 5*time.Second {
		t.Errorf("sleeps = %v, want [5s]", sleeps)
	}
	s := b.Snapshot()
	if s.Remaining != s.Limit-s.Outgoing {
		t.Errorf("remaining = %d, want limit-outgoing = %d", s.Remaining, s.Limit-s.Outgoing)
	}
	if s.Outgoing != 1 || s.Remaining != 2 {
		t.Errorf("unexpected state after wake: %+v", s)
	}
}

// TestBucketUpdateClampsAfterFirst verifies the first update is taken
// verbatim and later ones are clamped to limit minus outgoing.
func TestBucketUpdateClampsAfterFirst(t *testing.T) {
	b := NewBucket(0, clocktest.New(epoch))
	ctx := context.Background()

	if err := b.Acquire(ctx); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	b.Update(headers(HeaderLimit, "10", HeaderRemaining, "10"), false)
	if got := b.Remaining(); got != 10 {
		t.Fatalf("first update: remaining = %d, want 10", got)
	}
	if !b.Snapshot().Dirty {
		t.Fatal("bucket should be dirty after first update")
	}

	for i := 0; i < 2; i++ {
		if err := b.Acquire(ctx); err != nil {
			t.Fatalf("Acquire: %v", err)
		}
	}
	// outgoing is now 3
	b.Update(headers(HeaderLimit, "10", HeaderRemaining, "9"), false)
	if got := b.Remaining(); got != 7 {
		t.Errorf("second update: remaining = %d, want 7", got)
	}
}

// TestBucketUpdateDefaults verifies missing or malformed headers degrade to
// defaults instead of failing.
func TestBucketUpdateDefaults(t *testing.T) {
	b := NewBucket(0, clocktest.New(epoch))
	b.Update(headers(HeaderLimit, "bogus", HeaderResetAfter, "nan?"), false)

	s := b.Snapshot()
	if s.Limit != 1 {
		t.Errorf("limit = %d, want 1", s.Limit)
	}
	if s.Remaining != 0 {
		t.Errorf("remaining = %d, want 0", s.Remaining)
	}
	if s.ResetAfter != 0 {
		t.Errorf("resetAfter = %v, want 0", s.ResetAfter)
	}
}

// TestBucketUpdateUseClock verifies the absolute reset header is used when
// requested or when reset-after is missing.
func TestBucketUpdateUseClock(t *testing.T) {
	tests := []struct {
		name     string
		h        http.Header
		useClock bool
		want     time.Duration
	}{
		{
			name:     "relative header",
			h:        headers(HeaderRemaining, "1", HeaderResetAfter, "2.5", HeaderReset, "1704067210"),
			useClock: false,
			want:     2500 * time.Millisecond,
		},
		{
			name:     "use clock",
			h:        headers(HeaderRemaining, "1", HeaderResetAfter, "2.5", HeaderReset, "1704067210"),
			useClock: true,
			want:     10 * time.Second,
		},
		{
			name:     "reset-after missing",
			h:        headers(HeaderRemaining, "1", HeaderReset, "1704067204.5"),
			useClock: false,
			want:     4500 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := clocktest.New(epoch)
			b := NewBucket(0, clock)
			b.Update(tt.h, tt.useClock)
			s := b.Snapshot()
			if s.ResetAfter != tt.want {
				t.Errorf("resetAfter = %v, want %v", s.ResetAfter, tt.want)
			}
			if !s.Expires.Equal(epoch.Add(tt.want)) {
				t.Errorf("expires = %v, want %v", s.Expires, epoch.Add(tt.want))
			}
		})
	}
}

// TestBucketAcquireExceedsMaxTimeout verifies Acquire fails fast when the
// window would outlast the configured maximum.
func TestBucketAcquireExceedsMaxTimeout(t *testing.T) {
	b := NewBucket(30*time.Second, clocktest.New(epoch))
	b.Update(headers(HeaderLimit, "1", HeaderRemaining, "0", HeaderResetAfter, "45"), false)

	err := b.Acquire(context.Background())
	var rl *RateLimitedError
	if !errors.As(err, &rl) {
		t.Fatalf("Acquire error = %v, want RateLimitedError", err)
	}
	if rl.RetryAfter != 45*time.Second {
		t.Errorf("RetryAfter = %v, want 45s", rl.RetryAfter)
	}
	if s := b.Snapshot(); s.Outgoing != 0 || s.Pending != 0 {
		t.Errorf("failed Acquire left state behind: %+v", s)
	}
}

// TestBucketRefreshExceedsMaxTimeout verifies queued callers fail instead of
// sleeping when the window is longer than the maximum.
func TestBucketRefreshExceedsMaxTimeout(t *testing.T) {
	clock := clocktest.New(epoch)
	b := NewBucket(30*time.Second, clock)
	ctx := context.Background()

	if err := b.Acquire(ctx); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	waiter := acquireAsync(ctx, b)
	waitPending(t, b, 1)

	b.Update(headers(HeaderLimit, "1", HeaderRemaining, "0", HeaderResetAfter, "60"), false)
	b.Release()

	if err := receive(t, waiter); !IsRateLimited(err) {
		t.Errorf("waiter error = %v, want RateLimitedError", err)
	}
	if len(clock.Sleeps()) != 0 {
		t.Errorf("bucket slept %v, want no sleep", clock.Sleeps())
	}
}

// TestBucketExpiredWindowResets verifies Acquire starts a new window once the
// old one has passed.
func TestBucketExpiredWindowResets(t *testing.T) {
	clock := clocktest.New(epoch)
	b := NewBucket(0, clock)
	b.Update(headers(HeaderLimit, "2", HeaderRemaining, "0", HeaderResetAfter, "1"), false)

	clock.Advance(2 * time.Second)
	if !b.IsExpired() {
		t.Fatal("bucket should be expired")
	}
	if err := receive(t, acquireAsync(context.Background(), b)); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	s := b.Snapshot()
	if s.Remaining != 1 || s.Outgoing != 1 || s.Dirty || !s.Expires.IsZero() {
		t.Errorf("unexpected state after reset: %+v", s)
	}
}

// TestBucketCancelQueuedWaiter verifies a cancelled waiter leaves the queue.
func TestBucketCancelQueuedWaiter(t *testing.T) {
	b := NewBucket(0, clocktest.New(epoch))
	if err := b.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	waiter := acquireAsync(ctx, b)
	waitPending(t, b, 1)
	cancel()

	if err := receive(t, waiter); !errors.Is(err, context.Canceled) {
		t.Errorf("waiter error = %v, want context.Canceled", err)
	}
	if s := b.Snapshot(); s.Pending != 0 || s.Outgoing != 1 {
		t.Errorf("unexpected state: %+v", s)
	}
}

// TestBucketCancelledWaiterPassesToken verifies a token handed to a waiter
// that was cancelled at the same moment goes to the next waiter.
func TestBucketCancelledWaiterPassesToken(t *testing.T) {
	b := NewBucket(0, clocktest.New(epoch))
	if err := b.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	ctxA, cancelA := context.WithCancel(context.Background())
	first := acquireAsync(ctxA, b)
	waitPending(t, b, 1)
	second := acquireAsync(context.Background(), b)
	waitPending(t, b, 2)

	// Cancel the first waiter while it cannot take the lock, then grant it
	// a token before it gets the chance to see the cancellation.
	b.mu.Lock()
	cancelA()
	time.Sleep(50 * time.Millisecond)
	b.remaining = 1
	b.wake(1, nil)
	b.mu.Unlock()

	if err := receive(t, first); !errors.Is(err, context.Canceled) {
		t.Errorf("first waiter error = %v, want context.Canceled", err)
	}
	if err := receive(t, second); err != nil {
		t.Errorf("second waiter error = %v, want nil", err)
	}
	if s := b.Snapshot(); s.Remaining != 0 || s.Outgoing != 2 || s.Pending != 0 {
		t.Errorf("unexpected state: %+v", s)
	}
}

// TestBucketCountersNeverNegative runs many acquire/release pairs
// concurrently and checks the counters stay in range.
func TestBucketCountersNeverNegative(t *testing.T) {
	b := NewBucket(0, clocktest.New(epoch))
	b.Update(headers(HeaderLimit, "3", HeaderRemaining, "3", HeaderResetAfter, "0"), false)

	var wg sync.WaitGroup
	errs := make(chan error, 200)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if err := b.Acquire(context.Background()); err != nil {
					errs <- err
					return
				}
				s := b.Snapshot()
				if s.Remaining < 0 || s.Outgoing < 0 {
					errs <- errors.New("negative counter")
				}
				b.Release()
			}
		}()
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("acquire/release pairs stalled")
	}
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	// A refresh may still be finishing.
	deadline := time.Now().Add(time.Second)
	for b.Snapshot().Outgoing != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if s := b.Snapshot(); s.Outgoing != 0 || s.Remaining < 0 {
		t.Errorf("final state: %+v", s)
	}
}

// TestBucketIsInactive verifies the eviction predicate.
func TestBucketIsInactive(t *testing.T) {
	clock := clocktest.New(epoch)
	b := NewBucket(0, clock)
	ctx := context.Background()

	if b.IsInactive() {
		t.Fatal("fresh bucket should be active")
	}
	clock.Advance(InactiveAfter)
	if !b.IsInactive() {
		t.Fatal("idle bucket should be inactive")
	}

	if err := b.Acquire(ctx); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	clock.Advance(InactiveAfter)
	if b.IsInactive() {
		t.Error("bucket with an outgoing request should be active")
	}
}
