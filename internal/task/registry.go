package task

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mediaforge/mediaforge/internal/event"
	"github.com/mediaforge/mediaforge/pkg/logger"
)

var log = logger.Get("TaskRegistry")

// Registry is the single in-memory store of task records. It is the only
// structure in the pipeline touched from multiple call sites; all access
// goes through the RWMutex so that status pollers can read freely while
// each task's single worker mutates its record.
//
// Registry entries are ephemeral. Nothing survives a restart and that is
// deliberate: callers re-submit rather than resume.
type Registry struct {
	mutex    sync.RWMutex
	tasks    map[uuid.UUID]*Task
	eventBus event.EventCoordinator
}

func NewRegistry(eventBus event.EventCoordinator) *Registry {
	return &Registry{
		tasks:    make(map[uuid.UUID]*Task),
		eventBus: eventBus,
	}
}

// Create inserts a fresh QUEUED record and returns a snapshot of it. The
// returned ID is the only handle the caller ever receives; it is an
// unguessable v4 UUID so a task cannot be found by id enumeration.
func (registry *Registry) Create(kind Kind, owner *uuid.UUID) Task {
	record := &Task{
		ID:        uuid.New(),
		Kind:      kind,
		Status:    QUEUED,
		Progress:  0,
		Message:   "queued",
		CreatedAt: time.Now(),
		OwnerID:   owner,
	}

	registry.mutex.Lock()
	registry.tasks[record.ID] = record
	snapshot := *record
	registry.mutex.Unlock()

	log.Emit(logger.NEW, "Created %s\n", &snapshot)
	registry.eventBus.Dispatch(event.TaskUpdateEvent, snapshot.ID)

	return snapshot
}

// Start transitions a QUEUED task to RUNNING. Only the worker dispatched
// for the task may call this.
func (registry *Registry) Start(id uuid.UUID) error {
	return registry.mutate(id, event.TaskUpdateEvent, func(record *Task) error {
		if record.Status != QUEUED {
			return fmt.Errorf("cannot start task in status %s", record.Status)
		}

		record.Status = RUNNING
		record.Message = "running"

		return nil
	})
}

// Update records mid-flight progress for a live task. Progress is clamped
// so that the value observed by pollers is monotonic non-decreasing, and is
// capped below 100; only Complete may assert full progress.
func (registry *Registry) Update(id uuid.UUID, progress int, message string) error {
	return registry.mutate(id, event.TaskProgressEvent, func(record *Task) error {
		if record.Terminal() {
			return fmt.Errorf("cannot update task in terminal status %s", record.Status)
		}

		if progress > 99 {
			progress = 99
		}
		if progress > record.Progress {
			record.Progress = progress
		}
		if message != "" {
			record.Message = message
		}

		return nil
	})
}

// Complete marks the task READY, carrying the finished artifact. A task is
// READY xor ERRORED once terminal, never both, and progress=100 holds if
// and only if the task is READY.
func (registry *Registry) Complete(id uuid.UUID, result Result) error {
	return registry.mutate(id, event.TaskCompleteEvent, func(record *Task) error {
		if record.Terminal() {
			return fmt.Errorf("cannot complete task in terminal status %s", record.Status)
		}

		record.Status = READY
		record.Progress = 100
		record.Message = "completed"
		record.Result = &result

		log.Emit(logger.SUCCESS, "Completed %s -> %s\n", record, result.Path)
		return nil
	})
}

// Fail marks the task ERRORED with the classified error provided.
func (registry *Registry) Fail(id uuid.UUID, taskErr *Error) error {
	return registry.mutate(id, event.TaskCompleteEvent, func(record *Task) error {
		if record.Terminal() {
			return fmt.Errorf("cannot fail task in terminal status %s", record.Status)
		}

		record.Status = ERRORED
		record.Message = taskErr.Detail
		record.Error = taskErr

		log.Emit(logger.WARNING, "Failed %s: %s\n", record, taskErr)
		return nil
	})
}

// Get returns a snapshot of the record with the matching ID, or ErrNotFound.
// Safe under unlimited concurrent readers.
func (registry *Registry) Get(id uuid.UUID) (Task, error) {
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()

	record, ok := registry.tasks[id]
	if !ok {
		return Task{}, ErrNotFound
	}

	return *record, nil
}

// All returns snapshots of every record currently held by the registry.
func (registry *Registry) All() []Task {
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()

	records := make([]Task, 0, len(registry.tasks))
	for _, record := range registry.tasks {
		records = append(records, *record)
	}

	return records
}

// Delete removes the record with the matching ID. Deleting an unknown ID
// succeeds silently, tolerating duplicate client cleanup calls.
func (registry *Registry) Delete(id uuid.UUID) {
	registry.mutex.Lock()
	_, ok := registry.tasks[id]
	if ok {
		delete(registry.tasks, id)
	}
	registry.mutex.Unlock()

	if ok {
		log.Emit(logger.REMOVE, "Deleted task %s\n", id)
		registry.eventBus.Dispatch(event.TaskDeleteEvent, id)
	}
}

// mutate applies the mutation under the write lock and, if it succeeded,
// dispatches the lifecycle event after the lock is released so that
// synchronous event handlers are free to read the registry.
func (registry *Registry) mutate(id uuid.UUID, happened event.Event, apply func(*Task) error) error {
	registry.mutex.Lock()
	record, ok := registry.tasks[id]
	if !ok {
		registry.mutex.Unlock()
		return ErrNotFound
	}

	err := apply(record)
	registry.mutex.Unlock()

	if err == nil {
		registry.eventBus.Dispatch(happened, id)
	}

	return err
}
