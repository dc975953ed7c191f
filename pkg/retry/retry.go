package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// RetryIf decides whether an error is worth another attempt. Nil retries every error.
	RetryIf func(error) bool
}

type Option func(*Config)

func WithMaxAttempts(attempts int) Option {
	return func(c *Config) {
		c.MaxAttempts = attempts
	}
}

func WithBaseDelay(d time.Duration) Option {
	return func(c *Config) {
		c.BaseDelay = d
	}
}

func WithMaxDelay(d time.Duration) Option {
	return func(c *Config) {
		c.MaxDelay = d
	}
}

func WithRetryIf(fn func(error) bool) Option {
	return func(c *Config) {
		c.RetryIf = fn
	}
}

// Do runs fn until it succeeds, returns a non-retryable error, the attempts are
// exhausted, or ctx is done. Delays grow exponentially from BaseDelay up to MaxDelay.
func Do(ctx context.Context, fn func() error, opts ...Option) error {
	cfg := &Config{
		MaxAttempts: 5,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = cfg.BaseDelay
	expo.MaxInterval = cfg.MaxDelay
	expo.Multiplier = 2
	expo.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(cfg.MaxAttempts-1)), ctx)

	attempts := 0
	exhausted := false
	err := backoff.Retry(func() error {
		attempts++
		err := fn()
		if err == nil {
			return nil
		}
		if cfg.RetryIf != nil && !cfg.RetryIf(err) {
			return backoff.Permanent(err)
		}
		exhausted = attempts >= cfg.MaxAttempts
		return err
	}, policy)

	if err != nil && exhausted && cfg.MaxAttempts > 1 {
		return fmt.Errorf("max retries (%d) exceeded: %w", cfg.MaxAttempts, err)
	}

	return err
}
