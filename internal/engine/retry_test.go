package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTransientError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"throttling code", &smithy.GenericAPIError{Code: "Throttling", Message: "slow down"}, true},
		{"request limit", &smithy.GenericAPIError{Code: "RequestLimitExceeded", Message: ""}, true},
		{"server fault", &smithy.GenericAPIError{Code: "Whatever", Fault: smithy.FaultServer}, true},
		{"client fault", &smithy.GenericAPIError{Code: "ValidationError", Fault: smithy.FaultClient}, false},
		{"rate limit text", fmt.Errorf("got rate limit from registry"), true},
		{"status 503 text", fmt.Errorf("push failed with status 503"), true},
		{"permanent", fmt.Errorf("no such image"), false},
		{"wrapped transient", fmt.Errorf("apply: %w", &TransientAPIError{Err: fmt.Errorf("x")}), true},
		{"deadline exceeded", context.DeadlineExceeded, false},
		{"wrapped deadline", fmt.Errorf("apply test_object.slow: %w", context.DeadlineExceeded), false},
		{"cancelled", context.Canceled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransientError(tt.err))
		})
	}
}

func TestRetryWithBackoff_PermanentFailsImmediately(t *testing.T) {
	p := RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}

	calls := 0
	err := p.RetryWithBackoff(context.Background(), "test_object.a", func(ctx context.Context) error {
		calls++
		return fmt.Errorf("invalid configuration")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.NotErrorAs(t, err, new(*TransientAPIError))
}

func TestRetryWithBackoff_TransientRetriesThenSucceeds(t *testing.T) {
	p := RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}

	calls := 0
	err := p.RetryWithBackoff(context.Background(), "test_object.a", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &smithy.GenericAPIError{Code: "Throttling"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryWithBackoff_ExhaustionWrapsTransient(t *testing.T) {
	p := RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}

	calls := 0
	err := p.RetryWithBackoff(context.Background(), "test_object.a", func(ctx context.Context) error {
		calls++
		return &smithy.GenericAPIError{Code: "Throttling"}
	})
	assert.Equal(t, 3, calls)

	var tr *TransientAPIError
	require.ErrorAs(t, err, &tr)
}

func TestRetryWithBackoff_TimeoutFailsWithoutRetry(t *testing.T) {
	p := RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}

	calls := 0
	err := p.RetryWithBackoff(context.Background(), "test_object.slow", func(ctx context.Context) error {
		calls++
		return fmt.Errorf("apply timed out: %w", context.DeadlineExceeded)
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, calls, "an exceeded operation timeout must not be retried")
}

func TestRetryWithBackoff_ZeroBaseDelay(t *testing.T) {
	p := RetryPolicy{MaxRetries: 2}

	calls := 0
	err := p.RetryWithBackoff(context.Background(), "test_object.a", func(ctx context.Context) error {
		calls++
		return &smithy.GenericAPIError{Code: "Throttling"}
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	p := RetryPolicy{MaxRetries: 5, BaseDelay: time.Minute, MaxDelay: time.Minute}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- p.RetryWithBackoff(ctx, "test_object.a", func(ctx context.Context) error {
			return &smithy.GenericAPIError{Code: "Throttling"}
		})
	}()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("retry did not observe cancellation")
	}
}
