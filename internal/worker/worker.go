package worker

import (
	"context"
	"fmt"
)

// Task runs one function on its own goroutine and holds its result until
// the caller collects it.
type Task[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Go starts fn in the background. A panic in fn is recovered and reported
// as the task's error.
func Go[T any](fn func() (T, error)) *Task[T] {
	t := &Task[T]{done: make(chan struct{})}
	go func() {
		defer close(t.done)
		defer func() {
			if r := recover(); r != nil {
				t.err = fmt.Errorf("worker panicked: %v", r)
			}
		}()
		t.value, t.err = fn()
	}()
	return t
}

// Done is closed once the function has returned.
func (t *Task[T]) Done() <-chan struct{} { return t.done }

// Wait blocks until the task finishes or ctx is done. Giving up on ctx only
// stops the wait: the task keeps running and can be waited on again.
func (t *Task[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-t.done:
		return t.value, t.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
