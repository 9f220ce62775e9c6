package models

// TaskDependency defines a relationship where one task depends on another.
// Edges are read at resolution time only; insertion does not check for cycles.
type TaskDependency struct {
	TaskID    string `json:"task_id" db:"task_id"`       // Task that depends on another
	DependsOn string `json:"depends_on" db:"depends_on"` // Prerequisite task
	ProjectID string `json:"project_id" db:"project_id"` // Owning project
}
