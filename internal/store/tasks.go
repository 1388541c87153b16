package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
)

// ErrTaskFailed wraps the error of a mutation task that did not apply.
var ErrTaskFailed = errors.New("index task failed")

// TaskStatus is the lifecycle state of a mutation task.
type TaskStatus string

const (
	TaskEnqueued   TaskStatus = "enqueued"
	TaskProcessing TaskStatus = "processing"
	TaskSucceeded  TaskStatus = "succeeded"
	TaskFailed     TaskStatus = "failed"
)

// TaskType names the mutation a task performs.
type TaskType string

const (
	TaskDocumentAddition TaskType = "documentAddition"
	TaskDocumentDeletion TaskType = "documentDeletion"
)

// Task is an asynchronous index mutation. Tasks on the same index are
// applied in submission order.
type Task struct {
	UID   uint64
	Index IndexName
	Type  TaskType

	apply func(bleve.Index) error

	mu     sync.Mutex
	status TaskStatus
	err    error
	done   chan struct{}
}

func newTask(uid uint64, index IndexName, typ TaskType, apply func(bleve.Index) error) *Task {
	return &Task{
		UID:    uid,
		Index:  index,
		Type:   typ,
		apply:  apply,
		status: TaskEnqueued,
		done:   make(chan struct{}),
	}
}

// Status returns the current task status.
func (t *Task) Status() TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Wait blocks until the task finished or ctx is done. It returns an error
// wrapping ErrTaskFailed when the mutation failed.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return fmt.Errorf("%w: task %d (%s on %s): %w", ErrTaskFailed, t.UID, t.Type, t.Index, t.err)
	}
	return nil
}

func (t *Task) run(index bleve.Index) {
	t.setStatus(TaskProcessing)
	err := t.apply(index)

	t.mu.Lock()
	t.err = err
	t.status = TaskSucceeded
	if err != nil {
		t.status = TaskFailed
	}
	t.mu.Unlock()
	close(t.done)
}

func (t *Task) setStatus(s TaskStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = s
}

// TaskFilter selects in-flight tasks. Empty fields match everything.
type TaskFilter struct {
	Indexes  []IndexName
	Statuses []TaskStatus
}

func (f TaskFilter) matches(t *Task) bool {
	if len(f.Indexes) > 0 && !slices.Contains(f.Indexes, t.Index) {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, t.Status()) {
		return false
	}
	return true
}

// PendingTasks counts the in-flight tasks matching filter.
func (s *Store) PendingTasks(filter TaskFilter) int {
	n := 0
	s.tasks.Range(func(_ uint64, t *Task) bool {
		if filter.matches(t) {
			n++
		}
		return true
	})
	return n
}

// WaitForTasks blocks until no in-flight task matches filter or ctx is done.
func (s *Store) WaitForTasks(ctx context.Context, filter TaskFilter) error {
	// Poll interval - start small and increase
	pollInterval := 10 * time.Millisecond
	maxPollInterval := 500 * time.Millisecond

	for {
		if s.PendingTasks(filter) == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
			pollInterval = min(pollInterval*2, maxPollInterval)
		}
	}
}

// worker applies the tasks of one index in order.
func (s *Store) worker(ix *index) {
	defer close(ix.stopped)
	for t := range ix.queue {
		t.run(ix.engine)
		s.tasks.Delete(t.UID)
	}
}
