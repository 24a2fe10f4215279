package app

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/cenkalti/backoff/v5"

	"mirrorml/internal/config"
	"mirrorml/internal/logger"
	"mirrorml/internal/metrics"
)

// Loop is a long-running task that only returns on failure or cancellation.
type Loop func(ctx context.Context) error

// Supervisor restarts failed loops with exponential backoff.
type Supervisor struct {
	logger         *logger.Logger
	initialBackoff time.Duration
	maxBackoff     time.Duration
	maxRestarts    int           // consecutive failures before giving up, 0 for never
	stableAfter    time.Duration // a run this long resets the backoff
}

func NewSupervisor(cfg *config.Config, logger *logger.Logger) *Supervisor {
	return &Supervisor{
		logger:         logger,
		initialBackoff: cfg.RestartInitialBackoff,
		maxBackoff:     cfg.RestartMaxBackoff,
		maxRestarts:    cfg.MaxRestarts,
		stableAfter:    cfg.RestartMaxBackoff,
	}
}

// Run executes loop until ctx is cancelled, restarting it after errors and panics.
// It returns nil on cancellation and an error once maxRestarts is exceeded.
func (s *Supervisor) Run(ctx context.Context, name string, loop Loop) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.initialBackoff
	b.MaxInterval = s.maxBackoff
	b.Reset()

	failures := 0
	for {
		started := time.Now()
		err := runProtected(ctx, loop)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			err = errors.New("exited unexpectedly")
		}

		if time.Since(started) >= s.stableAfter {
			b.Reset()
			failures = 0
		}
		failures++
		if s.maxRestarts > 0 && failures > s.maxRestarts {
			return fmt.Errorf("%s loop gave up after %d restarts: %w", name, s.maxRestarts, err)
		}

		delay := b.NextBackOff()
		s.logger.Error("%s loop failed: %v (restarting in %s)", name, err, delay)
		metrics.RecordRestart(name)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil
		}
	}
}

func runProtected(ctx context.Context, loop Loop) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return loop(ctx)
}
