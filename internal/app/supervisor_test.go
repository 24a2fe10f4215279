package app

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mirrorml/internal/logger"
)

func testSupervisor(maxRestarts int) *Supervisor {
	return &Supervisor{
		logger:         logger.New(io.Discard, io.Discard, logger.LevelDebug),
		initialBackoff: time.Millisecond,
		maxBackoff:     5 * time.Millisecond,
		maxRestarts:    maxRestarts,
		stableAfter:    time.Minute,
	}
}

func TestSupervisor_RestartsFailedLoop(t *testing.T) {
	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := testSupervisor(0).Run(ctx, "test", func(ctx context.Context) error {
		if calls.Add(1) < 3 {
			return errors.New("socket gone")
		}
		cancel()
		<-ctx.Done()
		return ctx.Err()
	})

	assert.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSupervisor_RecoversPanics(t *testing.T) {
	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := testSupervisor(0).Run(ctx, "test", func(ctx context.Context) error {
		if calls.Add(1) == 1 {
			panic("nil map")
		}
		cancel()
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSupervisor_GivesUpAfterMaxRestarts(t *testing.T) {
	var calls atomic.Int32
	boom := errors.New("boom")

	err := testSupervisor(2).Run(context.Background(), "test", func(ctx context.Context) error {
		calls.Add(1)
		return boom
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(3), calls.Load(), "initial run plus two restarts")
}

func TestSupervisor_StopsDuringBackoff(t *testing.T) {
	s := testSupervisor(0)
	s.initialBackoff = time.Hour
	s.maxBackoff = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, "test", func(ctx context.Context) error { return errors.New("fail") })
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor ignored cancellation")
	}
}

func TestRunProtected(t *testing.T) {
	err := runProtected(context.Background(), func(ctx context.Context) error {
		var m map[string]int
		m["x"] = 1
		return nil
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic")
}
