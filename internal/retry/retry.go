// Package retry wraps fallible I/O calls with bounded attempts and
// exponential backoff, logging every failed attempt.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	wbfretry "github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"
)

// ErrExhausted is returned when every attempt failed.
var ErrExhausted = errors.New("retry attempts exhausted")

// DefaultStrategy is three attempts with 1s and 2s pauses between them.
var DefaultStrategy = wbfretry.Strategy{
	Attempts: 3,
	Delay:    time.Second,
	Backoff:  2,
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// Retrier executes operations under a retry strategy.
type Retrier struct {
	strategy wbfretry.Strategy
	sleep    func(ctx context.Context, d time.Duration) error
}

// New creates a Retrier. A strategy with no attempts falls back to DefaultStrategy.
func New(s wbfretry.Strategy) *Retrier {
	if s.Attempts <= 0 {
		s = DefaultStrategy
	}
	if s.Backoff <= 0 {
		s.Backoff = 1
	}

	return &Retrier{strategy: s, sleep: sleepContext}
}

// Strategy returns the policy the retrier runs with.
func (r *Retrier) Strategy() wbfretry.Strategy { return r.strategy }

// Do runs op until it succeeds, fails permanently, ctx is done or the
// attempts run out. After failed attempt i (0-based) it waits
// Delay*Backoff^i; there is no wait after the last attempt.
func (r *Retrier) Do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	delay := r.strategy.Delay
	var err error

	for attempt := 0; attempt < r.strategy.Attempts; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}

		zlog.Logger.Error().
			Err(err).
			Str("op", name).
			Int("attempt", attempt+1).
			Int("attempts", r.strategy.Attempts).
			Msg("attempt failed")

		if IsPermanent(err) {
			return fmt.Errorf("%s: %w", name, err)
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w (last error: %v)", name, ctx.Err(), err)
		}
		if attempt == r.strategy.Attempts-1 {
			break
		}

		if serr := r.sleep(ctx, delay); serr != nil {
			return fmt.Errorf("%s: %w", name, serr)
		}
		delay = time.Duration(float64(delay) * r.strategy.Backoff)
	}

	return fmt.Errorf("%s: %w after %d attempts: %w", name, ErrExhausted, r.strategy.Attempts, err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
