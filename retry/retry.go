// Package retry provides exponential backoff retry logic with jitter.
//
// The backoff for retry k (1-based) is a uniformly random duration in
// [0, 2^k * BaseDelay), optionally capped by MaxBackoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// DefaultMaxRetries is the retry cap used by DefaultConfig.
const DefaultMaxRetries = 10

// Config holds retry configuration.
type Config struct {
	// MaxRetries is the maximum number of retry attempts.
	MaxRetries int
	// BaseDelay is the unit multiplied by 2^retry to form the backoff ceiling.
	BaseDelay time.Duration
	// MaxBackoff caps a single sleep. Zero means uncapped.
	MaxBackoff time.Duration

	// Rand returns a value in [0,1). Defaults to math/rand.Float64.
	Rand func() float64
	// Sleep blocks for d or until ctx is done. Defaults to a timer select.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  1 * time.Second,
	}
}

// ErrorClassifier determines if an error is retryable.
type ErrorClassifier func(error) bool

// ErrExhausted is matched by errors.Is for every *ExhaustedError.
var ErrExhausted = errors.New("retries exhausted")

// IsRetryable is a default error classifier. Context errors and errors marked
// with Permanent are not retried; everything else is.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var p *permanentError
	return !errors.As(err, &p)
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err so that IsRetryable reports false for it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Ceiling returns the upper bound of the backoff for the given retry count.
func (c Config) Ceiling(retry int) time.Duration {
	base := c.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	ceiling := time.Duration(float64(base) * math.Pow(2, float64(retry)))
	if c.MaxBackoff > 0 && ceiling > c.MaxBackoff {
		ceiling = c.MaxBackoff
	}
	return ceiling
}

// Delay returns the jittered sleep for the given retry count: random() * 2^retry.
func (c Config) Delay(retry int) time.Duration {
	rnd := c.Rand
	if rnd == nil {
		rnd = rand.Float64
	}
	return time.Duration(rnd() * float64(c.Ceiling(retry)))
}

// Wait sleeps for d honouring ctx, using the configured Sleep hook if any.
func (c Config) Wait(ctx context.Context, d time.Duration) error {
	if c.Sleep != nil {
		return c.Sleep(ctx, d)
	}
	return Sleep(ctx, d)
}

// Sleep blocks for d or returns ctx.Err() if ctx is done first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do executes fn with retry logic, using the provided classifier to determine
// if errors are retryable. fn runs at most MaxRetries+1 times.
func Do(ctx context.Context, cfg Config, classifier ErrorClassifier, fn func(context.Context) error) error {
	if classifier == nil {
		classifier = IsRetryable
	}

	retries := 0
	for {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !classifier(err) {
			return err
		}

		retries++
		if retries > cfg.MaxRetries {
			return &ExhaustedError{Err: err, Retries: retries - 1}
		}

		if werr := cfg.Wait(ctx, cfg.Delay(retries)); werr != nil {
			return werr
		}
	}
}

// ExhaustedError is returned once a retryable error persisted past the cap.
// Err is the last error observed.
type ExhaustedError struct {
	Err     error
	Retries int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("failed after %d retries: %v", e.Retries, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrExhausted.
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExhausted
}
