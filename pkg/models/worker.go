package models

import "time"

type WorkerStatus string

const (
	IdleWorkerStatus    WorkerStatus = "idle"
	WorkingWorkerStatus WorkerStatus = "working"
	ErrorWorkerStatus   WorkerStatus = "error"
	OfflineWorkerStatus WorkerStatus = "offline"
)

// Available reports whether the worker may take new assignments at all;
// capacity is checked separately against its active-assignment count.
func (s WorkerStatus) Available() bool {
	return s == IdleWorkerStatus || s == WorkingWorkerStatus
}

// Worker represents an autonomous bot that executes task assignments.
// Its active-assignment count is derived from non-terminal assignments,
// never stored on the row.
type Worker struct {
	ID            string       `json:"id" db:"id"`
	ProjectID     string       `json:"project_id" db:"project_id"`
	Name          string       `json:"name" db:"name"`
	Status        WorkerStatus `json:"status" db:"status"`
	MaxConcurrent int          `json:"max_concurrent" db:"max_concurrent"`
	Capabilities  []string     `json:"capabilities,omitempty" db:"-"` // persisted as a JSON column by the store
	CreatedAt     time.Time    `json:"created_at" db:"created_at"`
}
