package executor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestRuntime_BlockOn(t *testing.T) {
	rt := New("test")
	defer rt.Shutdown(time.Second)

	var ran int32
	err := rt.BlockOn(func(ctx context.Context) error {
		atomic.StoreInt32(&ran, 1)
		return nil
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, atomic.LoadInt32(&ran))

	errBoom := errors.New("boom")
	err = rt.BlockOn(func(ctx context.Context) error { return errBoom })
	require.Equal(t, errBoom, err)
}

func TestRuntime_SpawnCancelledOnShutdown(t *testing.T) {
	rt := New("test")

	started := make(chan struct{})
	require.NoError(t, rt.Spawn("server", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return nil
	}))
	<-started
	require.Equal(t, 1, rt.Tasks())

	require.NoError(t, rt.Shutdown(time.Second))
	require.True(t, rt.Closed())
	require.Equal(t, 0, rt.Tasks())

	// shutdown twice is fine
	require.NoError(t, rt.Shutdown(time.Second))
}

func TestRuntime_ClosedRejectsTasks(t *testing.T) {
	rt := New("test")
	require.NoError(t, rt.Shutdown(time.Second))

	err := rt.Spawn("late", func(ctx context.Context) error { return nil })
	require.True(t, errors.Is(err, ErrClosed))

	err = rt.BlockOn(func(ctx context.Context) error { return nil })
	require.True(t, errors.Is(err, ErrClosed))
}

func TestRuntime_ShutdownTimeout(t *testing.T) {
	rt := New("test")

	release := make(chan struct{})
	defer close(release)
	require.NoError(t, rt.Spawn("stuck", func(ctx context.Context) error {
		<-release
		return nil
	}))

	err := rt.Shutdown(50 * time.Millisecond)
	require.Error(t, err)
}

func TestRuntime_ShutdownReportsTaskError(t *testing.T) {
	rt := New("test")
	require.NoError(t, rt.Spawn("failing", func(ctx context.Context) error {
		return errors.New("listener closed unexpectedly")
	}))
	err := rt.Shutdown(time.Second)
	require.Error(t, err)
	require.Contains(t, err.Error(), "failing")
}
