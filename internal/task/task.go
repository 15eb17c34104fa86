package task

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type (
	Kind   string
	Status int

	// Result describes the finished artifact of a READY task.
	Result struct {
		Path         string
		Ext          string
		Size         int64
		DownloadName string
	}

	// Task is a snapshot of one unit of asynchronous fetch-or-edit work. The
	// registry owns the authoritative record; all reads receive copies, so a
	// snapshot held by a poller is never mutated underneath it.
	Task struct {
		ID        uuid.UUID
		Kind      Kind
		Status    Status
		Progress  int
		Message   string
		CreatedAt time.Time
		Result    *Result
		Error     *Error
		OwnerID   *uuid.UUID
	}
)

const (
	KindFetch     Kind = "fetch"
	KindAudioEdit Kind = "audio-edit"
)

const (
	QUEUED Status = iota
	RUNNING
	READY
	ERRORED
)

func (s Status) String() string {
	switch s {
	case QUEUED:
		return "queued"
	case RUNNING:
		return "running"
	case READY:
		return "ready"
	case ERRORED:
		return "error"
	}

	return fmt.Sprintf("unknown[%d]", s)
}

// Terminal reports whether the task has concluded; a terminal task is
// exactly one of READY or ERRORED and will never change status again.
func (t *Task) Terminal() bool {
	return t.Status == READY || t.Status == ERRORED
}

func (t *Task) String() string {
	return fmt.Sprintf("Task{ID=%s kind=%s status=%s progress=%d}", t.ID, t.Kind, t.Status, t.Progress)
}
