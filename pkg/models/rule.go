package models

import "time"

type ConditionOperator string

const (
	EqOperator       ConditionOperator = "eq"
	NeqOperator      ConditionOperator = "neq"
	GtOperator       ConditionOperator = "gt"
	LtOperator       ConditionOperator = "lt"
	ContainsOperator ConditionOperator = "contains"
	InOperator       ConditionOperator = "in"
)

// RuleCondition compares one payload field against a value.
type RuleCondition struct {
	Field    string            `json:"field"`
	Operator ConditionOperator `json:"operator"`
	Value    interface{}       `json:"value"`
}

type ActionType string

const (
	UpdateStatusAction  ActionType = "update_status"
	AddTagAction        ActionType = "add_tag"
	NotifyAction        ActionType = "notify"
	CreateSubtaskAction ActionType = "create_subtask"
	EscalateAction      ActionType = "escalate"
	SendToChannelAction ActionType = "send_to_channel"
)

// RuleAction is a typed action with a parameter bag. The action vocabulary is
// closed; the executor treats unknown types as not-executed rather than errors.
type RuleAction struct {
	Type   ActionType             `json:"type"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// AutomationRule reacts to a trigger category: if every condition matches the
// event payload, its actions run in order.
type AutomationRule struct {
	ID         string          `json:"id" db:"id"`
	ProjectID  string          `json:"project_id" db:"project_id"`
	Name       string          `json:"name" db:"name"`
	Trigger    string          `json:"trigger" db:"trigger_name"`
	Conditions []RuleCondition `json:"conditions" db:"-"` // persisted as a JSON column by the store
	Actions    []RuleAction    `json:"actions" db:"-"`    // persisted as a JSON column by the store
	Active     bool            `json:"active" db:"active"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}
