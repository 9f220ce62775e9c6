package models

import "time"

type EscalationTrigger string

const (
	BotFailureTrigger      EscalationTrigger = "bot_failure"
	TaskOverdueTrigger     EscalationTrigger = "task_overdue"
	ApprovalTimeoutTrigger EscalationTrigger = "approval_timeout"
)

// EscalationRule raises alerts when an aggregate crosses its threshold.
// For bot_failure the threshold is a failed-assignment count per worker;
// for task_overdue and approval_timeout it is an age in hours.
type EscalationRule struct {
	ID           string            `json:"id" db:"id"`
	ProjectID    string            `json:"project_id" db:"project_id"`
	Trigger      EscalationTrigger `json:"trigger" db:"trigger_name"`
	Threshold    float64           `json:"threshold" db:"threshold"`
	NotifyUserID string            `json:"notify_user_id,omitempty" db:"notify_user_id"`
	CreatedAt    time.Time         `json:"created_at" db:"created_at"`
}
