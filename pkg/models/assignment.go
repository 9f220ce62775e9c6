package models

import "time"

type AssignmentStatus string

const (
	PendingAssignmentStatus   AssignmentStatus = "pending"
	RunningAssignmentStatus   AssignmentStatus = "running"
	CompletedAssignmentStatus AssignmentStatus = "completed"
	FailedAssignmentStatus    AssignmentStatus = "failed"
)

// Terminal reports whether the assignment reached a final status.
func (s AssignmentStatus) Terminal() bool {
	return s == CompletedAssignmentStatus || s == FailedAssignmentStatus
}

// BotTaskAssignment represents one worker's attempt at a task. Created by the
// scheduler or by explicit assignment; the worker reports progress through the
// boundary layer. Timeout enforcement is an external collaborator's concern.
type BotTaskAssignment struct {
	ID             string           `json:"id" db:"id"`
	WorkerID       string           `json:"worker_id" db:"worker_id"`
	TaskID         string           `json:"task_id" db:"task_id"`
	Status         AssignmentStatus `json:"status" db:"status"`
	RetryCount     int              `json:"retry_count" db:"retry_count"`
	MaxRetries     int              `json:"max_retries" db:"max_retries"`
	TimeoutMinutes int              `json:"timeout_minutes" db:"timeout_minutes"`
	ErrorMsg       string           `json:"error,omitempty" db:"error_msg"`
	CreatedAt      time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at" db:"updated_at"`
}
