package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetrierRetriesUntilSuccess(t *testing.T) {
	r := NewRetrier(RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, BackoffFactor: 2})
	var attempts []int
	r.OnRetry(func(attempt int, err error) { attempts = append(attempts, attempt) })
	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if calls != 3 || len(attempts) != 2 {
		t.Fatalf("calls=%d retries=%v", calls, attempts)
	}
}

func TestRetrierPermanent(t *testing.T) {
	r := NewRetrier(RetryConfig{MaxRetries: 5, InitialDelay: time.Millisecond})
	boom := errors.New("bad request")
	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		return Permanent(boom)
	})
	if !errors.Is(err, boom) || calls != 1 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestRetrierContextCanceled(t *testing.T) {
	r := NewRetrier(RetryConfig{MaxRetries: 5, InitialDelay: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := r.Do(ctx, func() error { return errors.New("fail") })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}
