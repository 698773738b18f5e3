package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/anime-shed/microscan-go/internal/logger"
)

// Config holds the backoff settings for one upstream
type Config struct {
	MaxRetries      int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	BackoffMultiple float64
}

// DefaultConfig returns the backoff used for the assessor and embedding services
func DefaultConfig() Config {
	return Config{
		MaxRetries:      2,
		BaseDelay:       250 * time.Millisecond,
		MaxDelay:        4 * time.Second,
		BackoffMultiple: 2.0,
	}
}

// ErrorChecker decides whether an attempt should be retried
type ErrorChecker func(err error, statusCode int) bool

// Func is one attempt. It reports the HTTP status it saw, or 0 when no
// response arrived.
type Func[T any] func(ctx context.Context, attempt int) (result T, statusCode int, err error)

// Options configures retry behavior
type Options struct {
	Config       Config
	ErrorChecker ErrorChecker
	Upstream     string
}

// delay computes the backoff before the given retry
func (c Config) delay(attempt int) time.Duration {
	d := time.Duration(float64(c.BaseDelay) * math.Pow(c.BackoffMultiple, float64(attempt)))
	if d > c.MaxDelay {
		d = c.MaxDelay
	}
	return d
}

// Execute runs fn until it succeeds, returns a non-retryable error, or the
// retry budget is spent. Context cancellation stops waiting immediately.
func Execute[T any](ctx context.Context, opts Options, fn Func[T]) (T, error) {
	var zero T
	checker := opts.ErrorChecker
	if checker == nil {
		checker = IsRetryable
	}

	var lastErr error
	for attempt := 0; attempt <= opts.Config.MaxRetries; attempt++ {
		if attempt > 0 {
			d := opts.Config.delay(attempt - 1)
			logger.WithFields(logrus.Fields{
				"upstream": opts.Upstream,
				"attempt":  attempt + 1,
				"delay":    d.String(),
			}).Debug("Retrying upstream call")

			timer := time.NewTimer(d)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
		}

		result, status, err := fn(ctx, attempt)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, fmt.Errorf("%w: %v", ctx.Err(), err)
		}
		if !checker(err, status) {
			return zero, err
		}
		logger.WithError(err).WithFields(logrus.Fields{
			"upstream":    opts.Upstream,
			"attempt":     attempt + 1,
			"status_code": status,
		}).Warn("Upstream call failed, will retry")
	}

	return zero, &ExhaustedError{
		Upstream:    opts.Upstream,
		MaxAttempts: opts.Config.MaxRetries + 1,
		Last:        lastErr,
	}
}

// IsRetryable retries network errors, 429 and 5xx responses
func IsRetryable(err error, statusCode int) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if statusCode == 0 {
		return err != nil
	}
	return statusCode == http.StatusTooManyRequests || statusCode >= 500
}

// ExhaustedError is returned when every attempt failed with a retryable error
type ExhaustedError struct {
	Upstream    string
	MaxAttempts int
	Last        error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry attempts exhausted for %s after %d attempts: %v", e.Upstream, e.MaxAttempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// StatusError carries a non-2xx upstream response
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Body)
}
