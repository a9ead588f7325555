// Package supervisor restarts long-lived channel pollers with exponential
// backoff.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"commhub/internal/metrics"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

// Task is a long-lived poller. It calls connected once it has established its
// session so that the retry counter starts over.
type Task func(ctx context.Context, connected func()) error

// Policy configures the restart schedule
type Policy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxAttempts     int
	// Sleep waits between attempts; tests replace it
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy retries after 5s, 10s, 20s, 40s, 60s... up to 10 times
var DefaultPolicy = Policy{
	InitialInterval: 5 * time.Second,
	MaxInterval:     60 * time.Second,
	Multiplier:      2,
	MaxAttempts:     10,
}

// ErrGaveUp is returned once the attempt budget is exhausted
var ErrGaveUp = errors.New("supervisor: too many consecutive failures")

func (p Policy) backoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
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

// Run executes task until ctx is cancelled, restarting it after every return.
// It gives up after MaxAttempts consecutive failures without a connect.
func Run(ctx context.Context, name string, p Policy, task Task) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	b := p.backoff()
	attempts := 0

	for {
		var connected atomic.Bool
		err := task(ctx, func() { connected.Store(true) })
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected.Load() {
			attempts = 0
			b.Reset()
		}
		attempts++
		if p.MaxAttempts > 0 && attempts > p.MaxAttempts {
			log.Error().Err(err).Str("poller", name).Int("attempts", attempts-1).Msg("Poller gave up")
			return fmt.Errorf("%w: %s: %v", ErrGaveUp, name, err)
		}

		wait := b.NextBackOff()
		metrics.PollerRestarts.WithLabelValues(name).Inc()
		log.Warn().Err(err).
			Str("poller", name).
			Int("attempt", attempts).
			Dur("retry_in", wait).
			Msg("Poller stopped, restarting")

		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}
