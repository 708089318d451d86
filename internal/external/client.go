// Package external contains clients for upstream services: the
// OpenAI-compatible chat completions API used by the assistant and the
// CloudWatch metrics publisher. All outbound HTTP goes through BaseClient,
// which wraps a circuit breaker and bounded retries so a slow or failing
// upstream degrades the platform gracefully instead of cascading.
package external

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"

	"aidflow/internal/types"
)

// RetryPolicy controls the retry behavior for transient upstream failures.
type RetryPolicy struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

// DefaultRetryPolicy retries up to 3 times with exponential backoff
// between 500ms and 10s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		MinWait:    500 * time.Millisecond,
		MaxWait:    10 * time.Second,
	}
}

// BaseClient wraps an *http.Client with a circuit breaker and a retry
// policy. Retries apply only to transport errors, 429s, and 5xx responses;
// 4xx responses other than 429 are returned to the caller immediately.
type BaseClient struct {
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*http.Response]
	retry      RetryPolicy
	logger     *slog.Logger
	name       string

	// sleepFn is swapped out in tests to avoid real backoff waits.
	sleepFn func(time.Duration)
}

// NewBaseClient creates a BaseClient for the named upstream. The breaker
// opens after five consecutive failures and probes with a single request
// after 30 seconds.
func NewBaseClient(httpClient *http.Client, name string, retry RetryPolicy, logger *slog.Logger) *BaseClient {
	if logger == nil {
		logger = slog.Default()
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"client", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	}

	return &BaseClient{
		httpClient: httpClient,
		breaker:    gobreaker.NewCircuitBreaker[*http.Response](settings),
		retry:      retry,
		logger:     logger,
		name:       name,
		sleepFn:    time.Sleep,
	}
}

// Do executes the request through the circuit breaker with retries.
// The request body, if any, is snapshotted up front so it can be replayed
// on each attempt. The caller owns the response body.
func (c *BaseClient) Do(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalUnexpected,
				"failed to read request body", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := c.computeBackoff(attempt, lastErr)
			c.logger.Debug("retrying upstream request",
				"client", c.name,
				"attempt", attempt,
				"wait", wait.String(),
			)
			c.sleepFn(wait)
		}

		if err := req.Context().Err(); err != nil {
			return nil, c.mapError(err)
		}

		attemptReq := req.Clone(req.Context())
		if body != nil {
			attemptReq.Body = io.NopCloser(bytes.NewReader(body))
			attemptReq.ContentLength = int64(len(body))
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			resp, err := c.httpClient.Do(attemptReq)
			if err != nil {
				return nil, err
			}
			if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
				resp.Body.Close()
				return nil, &httpStatusError{status: resp.StatusCode, header: resp.Header}
			}
			return resp, nil
		})
		if err == nil {
			return resp, nil
		}

		lastErr = err
		if !c.retryable(err) {
			break
		}
	}

	return nil, c.mapError(lastErr)
}

// httpStatusError carries a retryable HTTP status through the breaker,
// which only sees Go errors as failures.
type httpStatusError struct {
	status int
	header http.Header
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.status)
}

func (c *BaseClient) retryable(err error) bool {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return true
	}
	// Transport errors (timeouts, connection resets) are retryable.
	return true
}

// computeBackoff returns the wait before the given attempt: exponential
// growth from MinWait with full jitter, capped at MaxWait. A Retry-After
// header from a 429 takes precedence when it fits under the cap.
func (c *BaseClient) computeBackoff(attempt int, lastErr error) time.Duration {
	var statusErr *httpStatusError
	if errors.As(lastErr, &statusErr) && statusErr.status == http.StatusTooManyRequests {
		if ra := statusErr.header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
				wait := time.Duration(secs) * time.Second
				if wait <= c.retry.MaxWait {
					return wait
				}
				return c.retry.MaxWait
			}
		}
	}

	wait := c.retry.MinWait << (attempt - 1)
	if wait > c.retry.MaxWait || wait <= 0 {
		wait = c.retry.MaxWait
	}
	return time.Duration(rand.Int63n(int64(wait)) + 1)
}

// mapError converts transport and breaker failures into AppErrors.
func (c *BaseClient) mapError(err error) error {
	if err == nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected,
			"upstream request failed with no error recorded", nil)
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return types.NewAppError(types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("%s circuit breaker open", c.name), err)
	}

	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		if statusErr.status == http.StatusTooManyRequests {
			return types.NewAppError(types.ErrCodeUpstreamRateLimited,
				fmt.Sprintf("%s rate limited the request", c.name), err)
		}
		return types.NewAppError(types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("%s returned status %d", c.name, statusErr.status), err)
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return types.NewAppError(types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("%s request timed out", c.name), err)
	}

	return types.NewAppError(types.ErrCodeUpstreamUnavailable,
		fmt.Sprintf("%s request failed", c.name), err)
}
