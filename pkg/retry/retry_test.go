package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fledgehq/fledge/pkg/retry"
)

type retryableErr struct{ retryable bool }

func (e *retryableErr) Error() string     { return "boom" }
func (e *retryableErr) IsRetryable() bool { return e.retryable }

func TestDo_SucceedsFirstTry(t *testing.T) {
	calls := 0
	_, attempts, err := retry.Do(context.Background(), retry.Param{MaxAttempts: 3}, func(attempt int) (int, error) {
		calls++
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 || attempts != 1 {
		t.Fatalf("expected 1 call, got calls=%d attempts=%d", calls, attempts)
	}
}

func TestDo_RetriesThenSucceeds(t *testing.T) {
	calls := 0
	_, attempts, err := retry.Do(context.Background(), retry.Param{
		MaxAttempts: 3,
		Delays:      []time.Duration{time.Millisecond, time.Millisecond},
	}, func(attempt int) (int, error) {
		calls++
		if attempt < 3 {
			return 0, &retryableErr{retryable: true}
		}
		return 7, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 || attempts != 3 {
		t.Fatalf("expected 3 calls, got calls=%d attempts=%d", calls, attempts)
	}
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	calls := 0
	_, attempts, err := retry.Do(context.Background(), retry.Param{MaxAttempts: 3}, func(attempt int) (int, error) {
		calls++
		return 0, &retryableErr{retryable: false}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 || attempts != 1 {
		t.Fatalf("expected 1 call for non-retryable error, got calls=%d attempts=%d", calls, attempts)
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	_, attempts, err := retry.Do(context.Background(), retry.Param{
		MaxAttempts: 3,
		Delays:      []time.Duration{time.Millisecond},
	}, func(attempt int) (int, error) {
		calls++
		return 0, &retryableErr{retryable: true}
	})
	if err == nil {
		t.Fatal("expected exhausted error")
	}
	var re *retry.Error
	if !errors.As(err, &re) {
		t.Fatalf("expected *retry.Error, got %T", err)
	}
	if calls != 3 || attempts != 3 {
		t.Fatalf("expected 3 calls, got calls=%d attempts=%d", calls, attempts)
	}
}

func TestDo_ContextCancelDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := retry.Do(ctx, retry.Param{
		MaxAttempts: 2,
		Delays:      []time.Duration{time.Second},
	}, func(attempt int) (int, error) {
		return 0, &retryableErr{retryable: true}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
