// Package executor provides the shared task runtime every network server runs on.
//
// A Runtime is created once per process. Servers are scheduled on it with Spawn, and
// synchronous callers bridge into it with BlockOn, which waits for the task to finish.
package executor

import (
	"context"
	"sync"
	"time"

	"github.com/harmony-one/metachain/internal/utils"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// ErrClosed is returned when a task is submitted to a runtime that was shut down.
var ErrClosed = errors.New("runtime is shut down")

// Runtime is a shared set of goroutines with a common cancellation context.
type Runtime struct {
	name string

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	group  errgroup.Group
	closed bool
	tasks  int
}

// New creates a runtime. name is used in log lines only.
func New(name string) *Runtime {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runtime{
		name:   name,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Spawn schedules fn on the runtime. A task error is logged and reported by Shutdown.
func (r *Runtime) Spawn(name string, fn func(ctx context.Context) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	r.tasks++
	r.group.Go(func() error {
		defer r.taskDone()
		if err := fn(r.ctx); err != nil {
			utils.Logger().Warn().Err(err).
				Str("runtime", r.name).
				Str("task", name).
				Msg("runtime task finished with error")
			return errors.Wrapf(err, "task %v", name)
		}
		return nil
	})
	return nil
}

// BlockOn runs fn as a runtime task and blocks the calling goroutine until it returns.
// Unlike Spawn, the task error is returned to the caller.
func (r *Runtime) BlockOn(fn func(ctx context.Context) error) error {
	done := make(chan error, 1)
	err := r.Spawn("block_on", func(ctx context.Context) error {
		done <- fn(ctx)
		return nil
	})
	if err != nil {
		return err
	}
	return <-done
}

// Tasks returns the number of tasks currently running.
func (r *Runtime) Tasks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tasks
}

// Closed reports whether Shutdown was called.
func (r *Runtime) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Shutdown cancels the runtime context and waits up to timeout for the running tasks.
// Calling Shutdown more than once is safe.
func (r *Runtime) Shutdown(timeout time.Duration) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.cancel()

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- r.group.Wait()
	}()
	select {
	case err := <-waitErr:
		return err
	case <-time.After(timeout):
		return errors.Errorf("runtime %v: %d tasks still running after %v", r.name, r.Tasks(), timeout)
	}
}

func (r *Runtime) taskDone() {
	r.mu.Lock()
	r.tasks--
	r.mu.Unlock()
}
