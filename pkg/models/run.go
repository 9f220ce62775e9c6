package models

import "time"

type RunStatus string

const (
	RunningRunStatus   RunStatus = "running"
	CompletedRunStatus RunStatus = "completed"
	FailedRunStatus    RunStatus = "failed"
)

type StepStatus string

const (
	PendingStepStatus   StepStatus = "pending"
	RunningStepStatus   StepStatus = "running"
	CompletedStepStatus StepStatus = "completed"
	FailedStepStatus    StepStatus = "failed"
	SkippedStepStatus   StepStatus = "skipped"
)

// Terminal reports whether the step status admits no further transition.
// Step status transitions are monotonic: once terminal, a step never changes
// status again within its run.
func (s StepStatus) Terminal() bool {
	return s == CompletedStepStatus || s == FailedStepStatus || s == SkippedStepStatus
}

// WorkflowRun is one execution instance of a definition.
type WorkflowRun struct {
	ID           string     `json:"id" db:"id"`
	DefinitionID string     `json:"definition_id" db:"definition_id"`
	Status       RunStatus  `json:"status" db:"status"`
	StartedAt    time.Time  `json:"started_at" db:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// WorkflowRunStep is the per-step execution record within a run. The step
// type is denormalized from the definition at run start so monitors can scan
// run steps without re-reading definitions.
type WorkflowRunStep struct {
	RunID       string                 `json:"run_id" db:"run_id"`
	StepID      string                 `json:"step_id" db:"step_id"`
	Type        StepType               `json:"type" db:"type"`
	Status      StepStatus             `json:"status" db:"status"`
	Result      map[string]interface{} `json:"result,omitempty" db:"-"` // persisted as a JSON column by the store
	StartedAt   *time.Time             `json:"started_at,omitempty" db:"started_at"`
	CompletedAt *time.Time             `json:"completed_at,omitempty" db:"completed_at"`
}
