package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	pkgerrors "apexflow/pkg/errors"
	"apexflow/pkg/log"
)

func testLogger(t *testing.T) *log.Logger {
	t.Helper()
	logger, err := log.NewLogger(&log.Config{Level: "error"})
	if err != nil {
		t.Fatalf("logger init failed: %v", err)
	}
	return logger
}

func TestRetryRecoversFromTransient(t *testing.T) {
	calls := 0
	result, err := RetryWithBackoff(context.Background(), testLogger(t), 3, time.Millisecond, func() (string, error) {
		calls++
		if calls < 3 {
			return "", pkgerrors.ErrTimeout
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	if result != "ok" || calls != 3 {
		t.Errorf("result=%q calls=%d", result, calls)
	}
}

func TestRetryNonTransientFailsFast(t *testing.T) {
	permanent := errors.New("bad request")
	calls := 0
	_, err := RetryWithBackoff(context.Background(), testLogger(t), 3, time.Millisecond, func() (int, error) {
		calls++
		return 0, permanent
	})
	if !errors.Is(err, permanent) {
		t.Errorf("expected permanent error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("non-transient error should not retry, got %d calls", calls)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := RetryWithBackoff(context.Background(), testLogger(t), 3, time.Millisecond, func() (int, error) {
		calls++
		return 0, pkgerrors.ErrConnection
	})
	if !errors.Is(err, pkgerrors.ErrConnection) {
		t.Errorf("expected last error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestRetryHonorsContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := RetryWithBackoff(ctx, testLogger(t), 3, time.Hour, func() (int, error) {
		return 0, pkgerrors.ErrTimeout
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
