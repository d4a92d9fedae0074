package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// instantTimer fires immediately and records the requested waits.
type instantTimer struct {
	waits *[]time.Duration
	c     chan time.Time
}

func (t *instantTimer) Start(d time.Duration) {
	*t.waits = append(*t.waits, d)
	t.c <- time.Now()
}
func (t *instantTimer) Stop()               {}
func (t *instantTimer) C() <-chan time.Time { return t.c }

func newTestRetrier(p Policy, waits *[]time.Duration, opts ...Option) *Retrier {
	opts = append(opts, WithTimer(func() backoff.Timer {
		return &instantTimer{waits: waits, c: make(chan time.Time, 1)}
	}))
	return New(p, opts...)
}

type statusErr struct{ code int }

func (e statusErr) Error() string   { return fmt.Sprintf("status %d", e.code) }
func (e statusErr) Retryable() bool { return e.code >= 500 || e.code == 429 || e.code == 499 }

func TestDoRetriesRetryableUntilExhausted(t *testing.T) {
	var waits []time.Duration
	r := newTestRetrier(DefaultPolicy, &waits)

	calls := 0
	want := statusErr{503}
	_, err := Do(context.Background(), r, "op", func(context.Context) (string, error) {
		calls++
		return "", want
	})

	assert.Equal(t, 5, calls)
	assert.Equal(t, want, err)
	assert.Len(t, waits, 4)
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	var waits []time.Duration
	r := newTestRetrier(DefaultPolicy, &waits)

	calls := 0
	want := statusErr{400}
	_, err := Do(context.Background(), r, "op", func(context.Context) (int, error) {
		calls++
		return 0, want
	})

	assert.Equal(t, 1, calls)
	assert.Equal(t, want, err)
	assert.Empty(t, waits)
}

func TestDoReturnsValueAfterTransientFailures(t *testing.T) {
	var waits []time.Duration
	r := newTestRetrier(DefaultPolicy, &waits)

	calls := 0
	v, err := Do(context.Background(), r, "op", func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", fmt.Errorf("dial: %w", syscall.ECONNRESET)
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 3, calls)
}

func TestDoWaitsGrowWithinJitterBounds(t *testing.T) {
	var waits []time.Duration
	p := Policy{MaxAttempts: 6, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second}
	r := newTestRetrier(p, &waits)

	_, _ = Do(context.Background(), r, "op", func(context.Context) (struct{}, error) {
		return struct{}{}, statusErr{429}
	})

	require.Len(t, waits, 5)
	for k, w := range waits {
		full := p.BaseDelay * time.Duration(1<<k)
		lo, hi := full/2, full
		if hi > p.MaxDelay {
			hi = p.MaxDelay
		}
		if lo > p.MaxDelay {
			lo = p.MaxDelay
		}
		assert.GreaterOrEqual(t, w, lo, "wait %d", k)
		assert.LessOrEqual(t, w, hi, "wait %d", k)
	}
}

func TestDoWaitsAtJitterExtremes(t *testing.T) {
	p := Policy{MaxAttempts: 4, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second}
	for _, tc := range []struct {
		jitter float64
		want   []time.Duration
	}{
		{0, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}},
		{1, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}},
	} {
		var waits []time.Duration
		r := newTestRetrier(p, &waits, WithRand(func() float64 { return tc.jitter }))

		_, _ = Do(context.Background(), r, "op", func(context.Context) (int, error) {
			return 0, statusErr{503}
		})
		assert.Equal(t, tc.want, waits, "jitter %v", tc.jitter)
	}
}

func TestDoNotifiesEachRetry(t *testing.T) {
	var (
		waits    []time.Duration
		attempts []int
	)
	r := newTestRetrier(Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Second}, &waits,
		WithNotify(func(op string, attempt int, err error, wait time.Duration) {
			assert.Equal(t, "transcribe", op)
			attempts = append(attempts, attempt)
		}))

	_, _ = Do(context.Background(), r, "transcribe", func(context.Context) (int, error) {
		return 0, statusErr{500}
	})

	assert.Equal(t, []int{1, 2}, attempts)
}

func TestDoHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := New(Policy{MaxAttempts: 5, BaseDelay: time.Hour, MaxDelay: time.Hour})

	calls := 0
	_, err := Do(ctx, r, "op", func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, statusErr{503}
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestSingleAttemptPolicy(t *testing.T) {
	var waits []time.Duration
	r := newTestRetrier(Policy{MaxAttempts: 1}, &waits)

	calls := 0
	_, err := Do(context.Background(), r, "op", func(context.Context) (int, error) {
		calls++
		return 0, statusErr{503}
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDelayCapsAtCeiling(t *testing.T) {
	assert.Equal(t, 30*time.Second, Delay(2*time.Second, 30*time.Second, 10, 0.99))
	assert.Equal(t, time.Second, Delay(2*time.Second, 30*time.Second, 0, 0))
	assert.Equal(t, 4*time.Second, Delay(2*time.Second, 30*time.Second, 1, 1))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(statusErr{502}))
	assert.True(t, IsRetryable(statusErr{429}))
	assert.True(t, IsRetryable(statusErr{499}))
	assert.False(t, IsRetryable(statusErr{401}))
	assert.True(t, IsRetryable(fmt.Errorf("read: %w", syscall.ECONNREFUSED)))
	assert.True(t, IsRetryable(context.DeadlineExceeded))
	assert.False(t, IsRetryable(context.Canceled))
	assert.False(t, IsRetryable(errors.New("bad input")))
	assert.False(t, IsRetryable(nil))
}

func TestUnknownHostIsPermanent(t *testing.T) {
	lookup := &url.Error{Op: "Post", URL: "https://llm.invalid/v1", Err: &net.OpError{
		Op:  "dial",
		Net: "tcp",
		Err: &net.DNSError{Err: "no such host", Name: "llm.invalid", IsNotFound: true},
	}}
	assert.False(t, IsRetryable(lookup))

	refused := &url.Error{Op: "Post", URL: "http://127.0.0.1:1", Err: &net.OpError{
		Op:  "dial",
		Net: "tcp",
		Err: &os.SyscallError{Syscall: "connect", Err: syscall.ECONNREFUSED},
	}}
	assert.True(t, IsRetryable(refused))

	var waits []time.Duration
	r := newTestRetrier(DefaultPolicy, &waits)
	calls := 0
	_, err := Do(context.Background(), r, "op", func(context.Context) (int, error) {
		calls++
		return 0, lookup
	})
	assert.ErrorIs(t, err, lookup)
	assert.Equal(t, 1, calls)
	assert.Empty(t, waits)
}
