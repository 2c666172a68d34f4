package backtest

import (
	"context"
	"errors"
	"sync"

	"tradesim/pkg/model"
)

// ErrPending is returned by Task.Result before the task completes
var ErrPending = errors.New("backtest still running")

// CompletionFunc receives the outcome of a task
type CompletionFunc func(results []model.BacktestResult, err error)

// Task is a handle to a submitted backtest
type Task struct {
	done   chan struct{}
	cancel context.CancelFunc

	mu       sync.Mutex
	finished bool
	results  []model.BacktestResult
	err      error
	callback CompletionFunc
}

func newTask(cancel context.CancelFunc) *Task {
	return &Task{
		done:   make(chan struct{}),
		cancel: cancel,
	}
}

// Done is closed when the task completes
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task completes or ctx ends
func (t *Task) Wait(ctx context.Context) ([]model.BacktestResult, error) {
	select {
	case <-t.done:
		return t.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result returns the outcome without blocking
func (t *Task) Result() ([]model.BacktestResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.finished {
		return nil, ErrPending
	}
	return t.results, t.err
}

// OnComplete registers the completion callback, replacing any earlier one.
// If the task already completed fn runs immediately.
func (t *Task) OnComplete(fn CompletionFunc) {
	t.mu.Lock()
	if !t.finished {
		t.callback = fn
		t.mu.Unlock()
		return
	}
	results, err := t.results, t.err
	t.mu.Unlock()

	fn(results, err)
}

// Cancel stops the task if it has not started simulating yet
func (t *Task) Cancel() {
	t.cancel()
}

// complete publishes the outcome, then runs release before Done is closed
// and the callback fires.
func (t *Task) complete(results []model.BacktestResult, err error, release func()) {
	t.mu.Lock()
	if t.finished {
		t.mu.Unlock()
		return
	}
	t.finished = true
	t.results = results
	t.err = err
	cb := t.callback
	t.callback = nil
	t.mu.Unlock()

	if release != nil {
		release()
	}
	close(t.done)

	if cb != nil {
		cb(results, err)
	}
}
