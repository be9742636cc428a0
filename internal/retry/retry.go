package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/upb/rag-gateway/internal/gateway"
)

const (
	// DefaultMaxAttempts bounds the total tries, first attempt included.
	DefaultMaxAttempts = 3

	// DefaultBaseDelay seeds the exponential backoff and the jitter window.
	DefaultBaseDelay = 500 * time.Millisecond

	// DefaultMaxDelay caps any single backoff wait.
	DefaultMaxDelay = 8 * time.Second
)

// Class is the outcome of classifying a failure.
type Class int

const (
	// Terminal failures stop immediately without consuming attempts.
	Terminal Class = iota

	// Retryable failures are retried until the attempt budget runs out.
	Retryable
)

// Classifier maps an operation error to Terminal or Retryable.
type Classifier func(error) Class

// Operation is the single outbound call being retried. Results are passed
// back through closure capture.
type Operation func(ctx context.Context) error

// Policy configures one retry loop. Zero values fall back to defaults.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	return p
}

// ExhaustedError reports that every attempt failed with a retryable error.
// It unwraps to the last underlying failure.
type ExhaustedError struct {
	Attempts int
	Elapsed  time.Duration
	Err      error
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts (%s): %v", e.Attempts, e.Elapsed.Round(time.Millisecond), e.Err)
}

// Unwrap implements errors.Unwrap.
func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Do runs op under the policy: the first attempt fires immediately, each
// retryable failure waits base*2^(n-1) plus jitter in [0, base), capped at
// MaxDelay. Terminal failures short-circuit and are rethrown with attempt
// metadata; a consumed budget yields *ExhaustedError wrapping the last
// failure.
func Do(ctx context.Context, p Policy, classify Classifier, op Operation) error {
	p = p.withDefaults()
	if classify == nil {
		classify = DefaultClassifier
	}

	backoff := retry.NewExponential(p.BaseDelay)
	backoff = retry.WithCappedDuration(p.MaxDelay, backoff)
	backoff = withAdditiveJitter(p.BaseDelay, backoff)
	backoff = retry.WithMaxRetries(uint64(p.MaxAttempts-1), backoff)

	start := time.Now()
	attempts := 0
	var lastErr error

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		callErr := op(ctx)
		if callErr == nil {
			return nil
		}
		lastErr = callErr
		if classify(callErr) == Retryable {
			return retry.RetryableError(callErr)
		}
		return callErr
	})
	if err == nil {
		return nil
	}

	// Context death during a backoff wait is neither terminal nor exhausted;
	// propagate it untouched so callers see the cancellation.
	if lastErr == nil {
		return err
	}
	if err != lastErr && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return err
	}

	if classify(lastErr) == Terminal {
		return fmt.Errorf("terminal failure on attempt %d: %w", attempts, lastErr)
	}
	return &ExhaustedError{Attempts: attempts, Elapsed: time.Since(start), Err: lastErr}
}

// DefaultClassifier treats timeouts, transport failures and 429/5xx upstream
// statuses as retryable; everything else (auth failures, malformed requests,
// response schema violations) is terminal.
func DefaultClassifier(err error) Class {
	var timeoutErr *gateway.TimeoutError
	if errors.As(err, &timeoutErr) {
		return Retryable
	}
	var netErr *gateway.NetworkError
	if errors.As(err, &netErr) {
		switch {
		case netErr.Status == 0:
			// transport-level failure (connection reset, DNS, ...)
			return Retryable
		case netErr.Status == http.StatusTooManyRequests:
			return Retryable
		case netErr.Status >= 500:
			return Retryable
		}
	}
	return Terminal
}

// withAdditiveJitter adds a uniform random delay in [0, window) on top of
// the wrapped backoff so concurrent retries spread out.
func withAdditiveJitter(window time.Duration, next retry.Backoff) retry.Backoff {
	return retry.BackoffFunc(func() (time.Duration, bool) {
		val, stop := next.Next()
		if stop {
			return 0, true
		}
		if window > 0 {
			val += time.Duration(rand.Int63n(int64(window)))
		}
		return val, false
	})
}
