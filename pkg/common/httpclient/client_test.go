package httpclient

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type flakyErr struct{}

func (flakyErr) Error() string   { return "upstream hiccup" }
func (flakyErr) Retriable() bool { return true }

func TestRetryRecoversFromTransientFailure(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 5, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("status refresh: %w", flakyErr{})
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected retry to recover, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestRetryExhaustsTransientFailure(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		return flakyErr{}
	})
	var target flakyErr
	if !errors.As(err, &target) {
		t.Fatalf("expected last transient error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestRetryStopsOnRejection(t *testing.T) {
	rejection := errors.New("executor rejected request (422): bad image")
	calls := 0
	err := Retry(context.Background(), 5, time.Millisecond, func() error {
		calls++
		return rejection
	})
	if !errors.Is(err, rejection) {
		t.Fatalf("expected rejection returned as-is, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("rejections must not be retried, got %d attempts", calls)
	}
}

func TestIsRetriable(t *testing.T) {
	if !IsRetriable(fmt.Errorf("wrapped: %w", flakyErr{})) {
		t.Fatal("expected wrapped retriable error to qualify")
	}
	if !IsRetriable(context.DeadlineExceeded) {
		t.Fatal("expected deadline exceeded to qualify")
	}
	if IsRetriable(errors.New("validation failed")) {
		t.Fatal("plain errors must not qualify")
	}
}
