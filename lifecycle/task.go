package lifecycle

import (
	"context"
	"deckhost/supervisor"
	"sync"
)

// Task is a scheduled start. It finishes exactly once: after the start
// attempt, when skipped because a server already runs, or when canceled.
type Task struct {
	done   chan struct{}
	cancel context.CancelFunc

	mu      sync.Mutex
	err     error
	status  supervisor.Status
	started bool
}

func newTask(cancel context.CancelFunc) *Task {
	return &Task{
		done:   make(chan struct{}),
		cancel: cancel,
	}
}

// finishedTask is a task with nothing left to do.
func finishedTask(status supervisor.Status, err error) *Task {
	t := newTask(func() {})
	t.finish(status, false, err)
	return t
}

func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Cancel stops the task if its delay has not elapsed yet. It does not undo
// a start that already happened.
func (t *Task) Cancel() {
	t.cancel()
}

// Err is nil until Done is closed. Afterwards it holds the start error or the
// context error if the task was canceled before firing.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Status is the supervisor status observed when the task fired.
func (t *Task) Status() supervisor.Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Started reports whether the task called Start.
func (t *Task) Started() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.started
}

func (t *Task) finish(status supervisor.Status, started bool, err error) {
	t.mu.Lock()
	t.status = status
	t.started = started
	t.err = err
	t.mu.Unlock()
	close(t.done)
}
