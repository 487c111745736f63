package engine

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"strings"
	"time"

	"github.com/aws/smithy-go"

	"github.com/stackform-io/stackform/internal/logging"
)

// DefaultTimeout bounds a single resource operation when the declaration
// does not set its own timeout.
const DefaultTimeout = 5 * time.Minute

// RetryPolicy controls how transient API failures are retried.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy retries three times with exponential backoff starting
// at one second, capped at thirty seconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// RetryWithBackoff runs fn, retrying transient failures with exponential
// backoff and jitter. Permanent errors and context cancellation return
// immediately; an exhausted transient error comes back wrapped in
// TransientAPIError.
func (p RetryPolicy) RetryWithBackoff(ctx context.Context, addr string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsTransientError(lastErr) || attempt >= p.MaxRetries {
			break
		}

		delay := p.BaseDelay << attempt
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
		if half := int64(delay) / 2; half > 0 {
			delay += time.Duration(rand.Int63n(half))
		}
		logging.Warn("transient error, retrying",
			"resource", addr,
			"attempt", attempt+1,
			"delay", delay.String(),
			"error", lastErr)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if IsTransientError(lastErr) {
		return &TransientAPIError{Err: lastErr}
	}
	return lastErr
}

// transientCodes are remote API error codes worth retrying.
var transientCodes = map[string]bool{
	"Throttling":                true,
	"ThrottlingException":       true,
	"RequestLimitExceeded":      true,
	"TooManyRequestsException":  true,
	"ServiceUnavailable":        true,
	"InternalError":             true,
	"InternalFailure":           true,
	"RequestTimeout":            true,
	"DependencyViolation":       true,
	"ProvisionedThroughputExceededException": true,
}

// IsTransientError reports whether err looks like a temporary remote
// failure: throttling, 5xx-class API errors, or network timeouts.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	var tr *TransientAPIError
	if errors.As(err, &tr) {
		return true
	}
	// An exceeded per-resource timeout satisfies net.Error's Timeout but is
	// a permanent failure for that node.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return transientCodes[apiErr.ErrorCode()] || apiErr.ErrorFault() == smithy.FaultServer
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := err.Error()
	for _, pat := range []string{"connection refused", "connection reset", "rate limit", "status 429", "status 500", "status 502", "status 503"} {
		if strings.Contains(msg, pat) {
			return true
		}
	}
	return false
}
