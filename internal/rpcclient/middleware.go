package rpcclient

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/rikublock/xquery2/internal/metrics"
)

// RetryConfig parameterizes the backoff middleware, matching the
// reference's http_backoff_retry_request_middleware(retries=5, max_delay=60).
type RetryConfig struct {
	Retries  int
	Base     float64
	Factor   float64
	MaxDelay time.Duration
}

// DefaultRetryConfig mirrors the reference's defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{Retries: 5, Base: 2, Factor: 1, MaxDelay: 60 * time.Second}
}

// transientError marks a connection-level failure (timeout, reset,
// too-many-redirects) eligible for retry.
type transientError struct{ cause error }

func (e *transientError) Error() string { return e.cause.Error() }
func (e *transientError) Unwrap() error { return e.cause }

// throttleError marks an HTTP 429 response, carrying the raw
// Retry-After header value for delay computation.
type throttleError struct{ retryAfter string }

func (e *throttleError) Error() string { return "rpcclient: throttled (429)" }

// newBackOff builds a cenkalti/backoff ExponentialBackOff tuned to the
// reference's _backoff(base=2, factor=1, max_value) generator: an
// initial interval of factor*base seconds, doubling multiplier, capped
// at MaxDelay, bounded to cfg.Retries attempts.
func newBackOff(cfg RetryConfig) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = time.Duration(cfg.Factor*cfg.Base) * time.Second
	eb.Multiplier = cfg.Base
	eb.MaxInterval = cfg.MaxDelay
	eb.MaxElapsedTime = 0 // bounded by WithMaxRetries instead
	return backoff.WithMaxRetries(eb, uint64(cfg.Retries))
}

// parseRetryAfter parses an HTTP Retry-After header value: an integer
// number of seconds, or an HTTP-date. Any parse failure, or a negative
// result, yields 0, matching the reference's _parse_retry_after.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if n, err := strconv.Atoi(value); err == nil {
		if n < 0 {
			return 0
		}
		return time.Duration(n) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		d := time.Since(t)
		if d < 0 {
			return 0
		}
		return d
	}
	return 0
}

// withBackoffRetry retries fn on transientError or throttleError using
// a cenkalti/backoff exponential schedule bounded to cfg.Retries
// attempts, matching the reference's http_backoff_retry_request_
// middleware. A throttleError additionally honors Retry-After: the
// operation itself sleeps the full Retry-After delay (capped at
// cfg.MaxDelay), then lets the library apply its own computed interval
// on top. A non-retriable error aborts
// immediately via backoff.Permanent.
func withBackoffRetry(ctx context.Context, cfg RetryConfig, fn func() ([]Response, error), lastErr *error) ([]Response, error) {
	var resp []Response

	operation := func() error {
		r, err := fn()
		if err == nil {
			resp = r
			return nil
		}

		switch e := err.(type) {
		case *throttleError:
			metrics.ThrottleCount.Update(metrics.ThrottleCount.Value() + 1)
			retryAfter := parseRetryAfter(e.retryAfter)
			if retryAfter > cfg.MaxDelay {
				retryAfter = cfg.MaxDelay
			}
			if retryAfter > 0 {
				select {
				case <-ctx.Done():
					return backoff.Permanent(ctx.Err())
				case <-time.After(retryAfter):
				}
			}
			*lastErr = err
			return err
		case *transientError:
			metrics.RetryCount.Update(metrics.RetryCount.Value() + 1)
			*lastErr = err
			return err
		default:
			return backoff.Permanent(err)
		}
	}

	err := backoff.Retry(operation, backoff.WithContext(newBackOff(cfg), ctx))
	if err != nil {
		if *lastErr != nil {
			return nil, *lastErr
		}
		return nil, err
	}
	return resp, nil
}
