package llm

import (
	"context"
	"math"
	"time"
)

// RetryConfig controls retry behavior for network/provider errors.
type RetryConfig struct {
	MaxRetries    int           `json:"max_retries" mapstructure:"max_retries"`
	InitialDelay  time.Duration `json:"initial_delay" mapstructure:"initial_delay"`
	MaxDelay      time.Duration `json:"max_delay" mapstructure:"max_delay"`
	BackoffFactor float64       `json:"backoff_factor" mapstructure:"backoff_factor"`
}

// DefaultRetryConfig returns sane defaults for provider retries.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		InitialDelay:  1 * time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
	}
}

// Retrier performs bounded exponential backoff retries for a function.
type Retrier struct {
	cfg     RetryConfig
	onRetry func(attempt int, err error)
}

// NewRetrier creates a new Retrier with the given config (or defaults if zero values).
func NewRetrier(cfg RetryConfig) *Retrier {
	def := DefaultRetryConfig()
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = def.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.BackoffFactor <= 0 {
		cfg.BackoffFactor = def.BackoffFactor
	}
	return &Retrier{cfg: cfg}
}

// OnRetry registers fn to run before every retry.
func (r *Retrier) OnRetry(fn func(attempt int, err error)) *Retrier {
	r.onRetry = fn
	return r
}

// Do runs fn and retries on error up to MaxRetries with exponential backoff.
// Errors marked with Permanent are returned without retrying.
func (r *Retrier) Do(ctx context.Context, fn func() error) error {
	var attempt int
	delay := r.cfg.InitialDelay
	for {
		err := fn()
		if err == nil {
			return nil
		}
		if p, ok := err.(permanentError); ok {
			return p.err
		}
		if attempt >= r.cfg.MaxRetries {
			return err
		}
		attempt++
		if r.onRetry != nil {
			r.onRetry(attempt, err)
		}
		// Sleep with backoff or until context canceled
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		next := time.Duration(float64(delay) * r.cfg.BackoffFactor)
		// Guard against overflow
		if next > r.cfg.MaxDelay || next < 0 || float64(delay)*r.cfg.BackoffFactor > math.MaxInt64 {
			next = r.cfg.MaxDelay
		}
		delay = next
	}
}

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}
