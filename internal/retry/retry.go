package retry

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand"
	"net"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds a retried call.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy is what every provider call uses unless configured otherwise.
var DefaultPolicy = Policy{MaxAttempts: 5, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second}

// NotifyFunc is called before each scheduled wait.
type NotifyFunc func(operation string, attempt int, err error, wait time.Duration)

// Retrier holds the policy and hooks. It keeps no per-call state, so one
// Retrier is shared by every stage.
type Retrier struct {
	policy   Policy
	notify   NotifyFunc
	newTimer func() backoff.Timer
	rand     func() float64
}

type Option func(*Retrier)

// WithNotify registers a hook observing every retry.
func WithNotify(fn NotifyFunc) Option {
	return func(r *Retrier) { r.notify = fn }
}

// WithTimer replaces the wall-clock timer used between attempts.
func WithTimer(fn func() backoff.Timer) Option {
	return func(r *Retrier) { r.newTimer = fn }
}

// WithRand replaces the jitter source; fn must return values in [0, 1).
func WithRand(fn func() float64) Option {
	return func(r *Retrier) { r.rand = fn }
}

func New(p Policy, opts ...Option) *Retrier {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	r := &Retrier{policy: p, rand: rand.Float64}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Do runs op until it succeeds, returns a non-retryable error, or the
// attempts run out. The last error is returned unchanged; a cancelled ctx
// yields ctx.Err().
func Do[T any](ctx context.Context, r *Retrier, operation string, op func(ctx context.Context) (T, error)) (T, error) {
	jb := &jitterBackOff{base: r.policy.BaseDelay, ceiling: r.policy.MaxDelay, rand: r.rand}
	b := backoff.WithContext(backoff.WithMaxRetries(jb, uint64(r.policy.MaxAttempts-1)), ctx)

	attempt := 0
	wrapped := func() (T, error) {
		attempt++
		v, err := op(ctx)
		if err != nil && !IsRetryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	notify := func(err error, wait time.Duration) {
		if r.notify != nil {
			r.notify(operation, attempt, err, wait)
		}
	}

	var timer backoff.Timer
	if r.newTimer != nil {
		timer = r.newTimer()
	}
	return backoff.RetryNotifyWithTimerAndData(wrapped, b, notify, timer)
}

// jitterBackOff yields base*2^n scaled by a factor in [0.5, 1.0], capped at ceiling.
type jitterBackOff struct {
	base    time.Duration
	ceiling time.Duration
	rand    func() float64
	n       int
}

func (b *jitterBackOff) Reset() { b.n = 0 }

func (b *jitterBackOff) NextBackOff() time.Duration {
	d := Delay(b.base, b.ceiling, b.n, b.rand())
	b.n++
	return d
}

// Delay computes the wait after the given zero-based retry number.
func Delay(base, ceiling time.Duration, retry int, r float64) time.Duration {
	d := float64(base) * math.Pow(2, float64(retry)) * (0.5 + 0.5*r)
	if ceiling > 0 && d > float64(ceiling) {
		return ceiling
	}
	return time.Duration(d)
}

type retryable interface {
	Retryable() bool
}

// IsRetryable reports whether err is transient: connection resets and
// refusals, timeouts, truncated bodies, and errors that say so themselves
// (provider 5xx, 429 and 499). Unknown hosts are permanent.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var re retryable
	if errors.As(err, &re) {
		return re.Retryable()
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return false
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var oe *net.OpError
	return errors.As(err, &oe)
}
