// Package retry holds the single retry policy applied to every external call:
// fetch adapters, embedding providers and the workspace API.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"contentflow/internal/config"

	"go.temporal.io/sdk/temporal"
)

type Policy struct {
	MaxAttempts        int
	InitialInterval    time.Duration
	BackoffCoefficient float64
	MaxInterval        time.Duration
	// Timeout bounds the whole Do call, sleeps included. Zero means no ceiling.
	Timeout         time.Duration
	HonorRetryAfter bool

	// Sleep is swapped in tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

func FromConfig(c config.PolicyConfig) Policy {
	return Policy{
		MaxAttempts:        c.MaxAttempts,
		InitialInterval:    c.InitialInterval(),
		BackoffCoefficient: c.BackoffCoefficient,
		MaxInterval:        c.MaxInterval(),
		Timeout:            c.Timeout(),
		HonorRetryAfter:    c.HonorRetryAfter,
	}
}

// Constant returns a policy that waits the same delay between attempts.
func Constant(attempts int, delay, timeout time.Duration) Policy {
	return Policy{
		MaxAttempts:        attempts,
		InitialInterval:    delay,
		BackoffCoefficient: 1,
		MaxInterval:        delay,
		Timeout:            timeout,
	}
}

// Delay is the wait before attempt n+1 after attempt n (1-based) failed with err.
func (p Policy) Delay(attempt int, err error) time.Duration {
	coef := p.BackoffCoefficient
	if coef < 1 {
		coef = 1
	}
	d := time.Duration(float64(p.InitialInterval) * math.Pow(coef, float64(attempt-1)))
	if p.MaxInterval > 0 && d > p.MaxInterval {
		d = p.MaxInterval
	}
	if p.HonorRetryAfter {
		var rl *RateLimitError
		if errors.As(err, &rl) && rl.RetryAfter > d {
			d = rl.RetryAfter
		}
	}
	return d
}

// Do runs fn until it succeeds, returns a permanent error, or the policy is
// exhausted. The last error is returned wrapped with the attempt count.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		if serr := sleep(ctx, p.Delay(attempt, err)); serr != nil {
			return &ExhaustedError{Attempts: attempt, Err: errors.Join(err, serr), Interrupted: true}
		}
	}
	return &ExhaustedError{Attempts: attempts, Err: err}
}

// ExhaustedError is returned by Do once no attempts or time remain.
type ExhaustedError struct {
	Attempts    int
	Err         error
	Interrupted bool
}

func (e *ExhaustedError) Error() string {
	if e.Interrupted {
		return fmt.Sprintf("retry interrupted after %d attempts: %v", e.Attempts, e.Err)
	}
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

func IsExhausted(err error) bool {
	var ex *ExhaustedError
	return errors.As(err, &ex)
}

// ActivityRetryPolicy expresses the same policy for a Temporal activity step.
func (p Policy) ActivityRetryPolicy(nonRetryable ...string) *temporal.RetryPolicy {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	coef := p.BackoffCoefficient
	if coef < 1 {
		coef = 1
	}
	initial := p.InitialInterval
	if initial <= 0 {
		initial = time.Second
	}
	return &temporal.RetryPolicy{
		InitialInterval:        initial,
		BackoffCoefficient:     coef,
		MaximumInterval:        p.MaxInterval,
		MaximumAttempts:        int32(attempts),
		NonRetryableErrorTypes: nonRetryable,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
