package retry

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64
	// Retryable decides whether an error is worth another attempt. Nil means
	// every error is retried.
	Retryable func(error) bool
	Logger    *zap.Logger
	// sleep is swapped in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.2,
		Logger:       zap.NewNop(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = d.InitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.Multiplier < 1 {
		c.Multiplier = d.Multiplier
	}
	if c.Logger == nil {
		c.Logger = d.Logger
	}
	if c.sleep == nil {
		c.sleep = sleepCtx
	}
	return c
}

// Do runs op until it succeeds, returns a non-retryable error, the attempts
// run out, or ctx is done.
func Do(ctx context.Context, cfg Config, op func(ctx context.Context) error) error {
	cfg = cfg.withDefaults()

	var err error
	delay := cfg.InitialDelay
	for attempt := 1; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if err = op(ctx); err == nil {
			if attempt > 1 {
				cfg.Logger.Debug("Operation succeeded after retry", zap.Int("attempt", attempt))
			}
			return nil
		}

		if cfg.Retryable != nil && !cfg.Retryable(err) {
			return err
		}
		if attempt >= cfg.MaxAttempts {
			return err
		}

		wait := jitter(delay, cfg.Jitter)
		cfg.Logger.Warn("Operation failed, retrying",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", cfg.MaxAttempts),
			zap.Duration("delay", wait),
		)
		if sleepErr := cfg.sleep(ctx, wait); sleepErr != nil {
			return sleepErr
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, cfg Config, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := Do(ctx, cfg, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func jitter(d time.Duration, fraction float64) time.Duration {
	if fraction <= 0 {
		return d
	}
	spread := float64(d) * fraction
	return d + time.Duration(spread*(2*rand.Float64()-1))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
