package models

import "time"

type TaskStatus string

const (
	TodoTaskStatus       TaskStatus = "todo"
	InProgressTaskStatus TaskStatus = "in_progress"
	DoneTaskStatus       TaskStatus = "done"
	CancelledTaskStatus  TaskStatus = "cancelled"
)

type TaskPriority string

const (
	UrgentTaskPriority TaskPriority = "urgent"
	HighTaskPriority   TaskPriority = "high"
	MediumTaskPriority TaskPriority = "medium"
	LowTaskPriority    TaskPriority = "low"
)

// Rank maps a priority to its scheduling rank; lower runs first.
// Unknown priorities sort after "low".
func (p TaskPriority) Rank() int {
	switch p {
	case UrgentTaskPriority:
		return 0
	case HighTaskPriority:
		return 1
	case MediumTaskPriority:
		return 2
	case LowTaskPriority:
		return 3
	}
	return 4
}

// Task represents a unit of work owned by a project.
type Task struct {
	ID        string       `json:"id" db:"id"`
	ProjectID string       `json:"project_id" db:"project_id"`
	ParentID  string       `json:"parent_id,omitempty" db:"parent_id"` // set for subtasks created by automation actions
	Title     string       `json:"title" db:"title"`
	Status    TaskStatus   `json:"status" db:"status"`
	Priority  TaskPriority `json:"priority" db:"priority"`
	Tags      []string     `json:"tags,omitempty" db:"-"` // persisted as a JSON column by the store
	DueAt     *time.Time   `json:"due_at,omitempty" db:"due_at"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt time.Time    `json:"updated_at" db:"updated_at"`
}

// HasTag reports whether the task already carries the given tag.
func (t Task) HasTag(tag string) bool {
	for _, existing := range t.Tags {
		if existing == tag {
			return true
		}
	}
	return false
}
