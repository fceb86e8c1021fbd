// Package retry polls asynchronous backend jobs with exponential backoff.
//
// Adapters never retry a failed network call on their own. Some backends,
// however, acknowledge a request before finishing it (a Blob server-side copy,
// a Dropbox batch delete). The Retryer re-invokes a status check while it
// reports an error whose code is listed in RetryOn, which by default is only
// ErrCodeOperationPending.
package retry

import (
	"context"
	stderr "errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/objectfs/cloudtable/pkg/errors"
)

// Config defines polling behavior
type Config struct {
	// MaxAttempts is the maximum number of status checks (including the first)
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts"`

	// InitialDelay is the delay before the second check
	InitialDelay time.Duration `yaml:"initial_delay" json:"initial_delay"`

	// MaxDelay caps the delay between checks
	MaxDelay time.Duration `yaml:"max_delay" json:"max_delay"`

	// Multiplier is the factor by which delay increases after each check
	Multiplier float64 `yaml:"multiplier" json:"multiplier"`

	// Jitter adds ±20% randomness to each delay
	Jitter bool `yaml:"jitter" json:"jitter"`

	// RetryOn lists the error codes that mean "not done yet"
	RetryOn []errors.ErrorCode `yaml:"retry_on" json:"retry_on"`

	// OnRetry is called before each wait
	OnRetry func(attempt int, err error, delay time.Duration) `yaml:"-" json:"-"`
}

// DefaultConfig returns the poll configuration used for async backend jobs.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  20,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
		RetryOn:      []errors.ErrorCode{errors.ErrCodeOperationPending},
	}
}

// Retryer re-invokes a status check with exponential backoff
type Retryer struct {
	config Config
}

// New creates a new Retryer with the given configuration
func New(config Config) *Retryer {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 20
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 100 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 5 * time.Second
	}
	if config.Multiplier <= 0 {
		config.Multiplier = 2.0
	}
	if len(config.RetryOn) == 0 {
		config.RetryOn = []errors.ErrorCode{errors.ErrCodeOperationPending}
	}

	return &Retryer{config: config}
}

// DoWithContext calls fn until it returns nil, returns an error whose code is
// not in RetryOn, the attempts run out, or ctx is done.
func (r *Retryer) DoWithContext(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("poll canceled: %w", ctx.Err())
		default:
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !r.shouldRetry(err, attempt) {
			return err
		}

		delay := r.calculateDelay(attempt)
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("poll canceled after %d attempts: %w", attempt, ctx.Err())
		case <-timer.C:
		}
	}

	return fmt.Errorf("max poll attempts (%d) exceeded: %w", r.config.MaxAttempts, lastErr)
}

// shouldRetry only looks at codes; the Retryable flag is not consulted and
// failed network calls are never re-sent.
func (r *Retryer) shouldRetry(err error, attempt int) bool {
	if attempt >= r.config.MaxAttempts {
		return false
	}

	var se *errors.StoreError
	if !stderr.As(err, &se) {
		return false
	}
	for _, code := range r.config.RetryOn {
		if se.Code == code {
			return true
		}
	}
	return false
}

// calculateDelay: initialDelay * multiplier^(attempt-1), capped, with jitter
func (r *Retryer) calculateDelay(attempt int) time.Duration {
	delay := float64(r.config.InitialDelay) * math.Pow(r.config.Multiplier, float64(attempt-1))

	if delay > float64(r.config.MaxDelay) {
		delay = float64(r.config.MaxDelay)
	}

	if r.config.Jitter {
		jitter := delay * 0.2 * (rand.Float64()*2 - 1)
		delay += jitter
	}

	return time.Duration(delay)
}

// WithOnRetry returns a new Retryer with a callback run before each wait
func (r *Retryer) WithOnRetry(callback func(attempt int, err error, delay time.Duration)) *Retryer {
	newConfig := r.config
	newConfig.OnRetry = callback
	return New(newConfig)
}

// Pending builds the error a status check returns while a job is running.
func Pending(component, operation, detail string) error {
	return errors.NewError(errors.ErrCodeOperationPending, detail).
		WithComponent(component).
		WithOperation(operation)
}
