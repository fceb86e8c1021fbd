package retry

import (
	"context"
	stderr "errors"
	"testing"
	"time"

	"github.com/objectfs/cloudtable/pkg/errors"
)

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxAttempts = 5
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = 5 * time.Millisecond
	cfg.Jitter = false
	return cfg
}

func TestRetryer_SucceedsImmediately(t *testing.T) {
	attempts := 0
	err := New(fastConfig()).DoWithContext(context.Background(), func(context.Context) error {
		attempts++
		return nil
	})

	if err != nil {
		t.Errorf("Expected nil error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestRetryer_PollsWhilePending(t *testing.T) {
	attempts := 0
	err := New(fastConfig()).DoWithContext(context.Background(), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return Pending("blob", "rename", "copy pending")
		}
		return nil
	})

	if err != nil {
		t.Errorf("Expected nil error, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestRetryer_DoesNotRetryTransient(t *testing.T) {
	attempts := 0
	err := New(fastConfig()).DoWithContext(context.Background(), func(context.Context) error {
		attempts++
		return errors.NewError(errors.ErrCodeTransient, "connection reset")
	})

	if errors.CodeOf(err) != errors.ErrCodeTransient {
		t.Errorf("Expected transient error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt (no retry), got %d", attempts)
	}
}

func TestRetryer_DoesNotRetryPlainErrors(t *testing.T) {
	attempts := 0
	plain := stderr.New("boom")
	err := New(fastConfig()).DoWithContext(context.Background(), func(context.Context) error {
		attempts++
		return plain
	})

	if !stderr.Is(err, plain) || attempts != 1 {
		t.Errorf("got err=%v attempts=%d", err, attempts)
	}
}

func TestRetryer_MaxAttemptsExceeded(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxAttempts = 3

	attempts := 0
	err := New(cfg).DoWithContext(context.Background(), func(context.Context) error {
		attempts++
		return Pending("dropbox", "deleteBatch", "in_progress")
	})

	if err == nil {
		t.Fatal("Expected error after max attempts")
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
	if !stderr.Is(err, errors.ErrOperationPending) {
		t.Errorf("last pending error should be wrapped, got %v", err)
	}
}

func TestRetryer_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastConfig()
	cfg.InitialDelay = time.Second
	cfg.MaxDelay = time.Second

	attempts := 0
	err := New(cfg).DoWithContext(ctx, func(context.Context) error {
		attempts++
		cancel()
		return Pending("blob", "rename", "pending")
	})

	if !stderr.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestRetryer_OnRetryCallback(t *testing.T) {
	var delays []time.Duration
	r := New(fastConfig()).WithOnRetry(func(attempt int, err error, delay time.Duration) {
		delays = append(delays, delay)
	})

	attempts := 0
	_ = r.DoWithContext(context.Background(), func(context.Context) error {
		attempts++
		if attempts < 4 {
			return Pending("blob", "rename", "pending")
		}
		return nil
	})

	if len(delays) != 3 {
		t.Fatalf("Expected 3 callbacks, got %d", len(delays))
	}
	if delays[0] != time.Millisecond || delays[1] != 2*time.Millisecond || delays[2] != 4*time.Millisecond {
		t.Errorf("unexpected backoff sequence %v", delays)
	}
}

func TestRetryer_DelayCapped(t *testing.T) {
	r := New(fastConfig())
	if d := r.calculateDelay(10); d != 5*time.Millisecond {
		t.Errorf("delay = %v, want cap 5ms", d)
	}
}

func TestNew_AppliesDefaults(t *testing.T) {
	r := New(Config{})
	if r.config.MaxAttempts != 20 || r.config.Multiplier != 2.0 {
		t.Errorf("defaults not applied: %+v", r.config)
	}
	if len(r.config.RetryOn) != 1 || r.config.RetryOn[0] != errors.ErrCodeOperationPending {
		t.Errorf("RetryOn default = %v", r.config.RetryOn)
	}
}
