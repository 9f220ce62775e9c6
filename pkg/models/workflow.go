package models

import "time"

type StepType string

const (
	BotTaskStepType  StepType = "bot_task"
	ApprovalStepType StepType = "approval"
	WaitStepType     StepType = "wait"
	ParallelStepType StepType = "parallel"
)

type FailurePolicy string

const (
	StopFailurePolicy     FailurePolicy = "stop"
	ContinueFailurePolicy FailurePolicy = "continue"
	RetryFailurePolicy    FailurePolicy = "retry"
)

// WorkflowStep is a single node in a definition's step graph.
// Step IDs are unique within a definition; DependsOn references step IDs.
type WorkflowStep struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	Type       StepType               `json:"type"`
	Capability string                 `json:"capability,omitempty"`
	DependsOn  []string               `json:"depends_on,omitempty"`
	Config     map[string]interface{} `json:"config,omitempty"`
}

// WorkflowDefinition is an ordered set of steps forming a DAG. The failure
// policy applies to the whole definition.
type WorkflowDefinition struct {
	ID            string         `json:"id" db:"id"`
	ProjectID     string         `json:"project_id" db:"project_id"`
	Name          string         `json:"name" db:"name"`
	FailurePolicy FailurePolicy  `json:"failure_policy" db:"failure_policy"`
	Steps         []WorkflowStep `json:"steps" db:"-"` // persisted as a JSON column by the store
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
}

// Step returns the step with the given ID, if present.
func (d WorkflowDefinition) Step(id string) (WorkflowStep, bool) {
	for _, s := range d.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return WorkflowStep{}, false
}
