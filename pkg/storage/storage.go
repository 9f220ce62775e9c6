package storage

import (
	"time"

	"github.com/fleetworks/botflow/pkg/models"
	"github.com/pkg/errors"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Store defines the persistence operations for botflow. The backing engine is
// assumed to serialize individual writes (single-writer semantics); it does
// not provide isolation across read-then-decide-then-write sequences, so
// scheduling and run-advancement passes must be serialized by the caller.
type Store interface {
	Begin() (Store, error)
	Commit() error
	Rollback() error
	Close() error

	// Task operations
	SaveTask(t models.Task) error
	GetTask(id string) (models.Task, error)
	ListTasks(projectID string) ([]models.Task, error)
	ListTasksByStatus(projectID string, status models.TaskStatus) ([]models.Task, error)
	UpdateTaskStatus(id string, status models.TaskStatus) error
	UpdateTaskTags(id string, tags []string) error

	// Task dependency operations
	SaveTaskDependency(d models.TaskDependency) error
	ListTaskDependencies(projectID string) ([]models.TaskDependency, error)

	// Worker operations
	SaveWorker(w models.Worker) error
	GetWorker(id string) (models.Worker, error)
	ListWorkers(projectID string) ([]models.Worker, error)
	UpdateWorkerStatus(id string, status models.WorkerStatus) error

	// Assignment operations
	SaveAssignment(a models.BotTaskAssignment) error
	GetAssignment(id string) (models.BotTaskAssignment, error)
	UpdateAssignmentStatus(id string, status models.AssignmentStatus, errorMsg string) error
	ListAssignmentsByWorker(workerID string) ([]models.BotTaskAssignment, error)
	ListAssignmentsByStatus(projectID string, status models.AssignmentStatus) ([]models.BotTaskAssignment, error)

	// Workflow definition operations
	SaveWorkflowDefinition(def models.WorkflowDefinition) error
	GetWorkflowDefinition(id string) (models.WorkflowDefinition, error)
	ListWorkflowDefinitions(projectID string) ([]models.WorkflowDefinition, error)

	// Workflow run operations
	SaveWorkflowRun(run models.WorkflowRun) error
	GetWorkflowRun(id string) (models.WorkflowRun, error)
	UpdateWorkflowRunStatus(id string, status models.RunStatus, completedAt *time.Time) error
	SaveRunStep(step models.WorkflowRunStep) error
	GetRunStep(runID, stepID string) (models.WorkflowRunStep, error)
	ListRunSteps(runID string) ([]models.WorkflowRunStep, error)
	UpdateRunStepStatus(runID, stepID string, status models.StepStatus, result map[string]interface{}) error
	ListRunStepsByTypeAndStatus(stepType models.StepType, status models.StepStatus) ([]models.WorkflowRunStep, error)

	// Rule operations
	SaveAutomationRule(r models.AutomationRule) error
	ListAutomationRules(projectID, trigger string) ([]models.AutomationRule, error)
	SaveEscalationRule(r models.EscalationRule) error
	ListEscalationRules(projectID string) ([]models.EscalationRule, error)

	// Alert/notification sinks
	SaveAlert(a models.Alert) error
	ListAlerts(projectID string) ([]models.Alert, error)
	SaveNotification(n models.Notification) error
	ListNotifications(userID string) ([]models.Notification, error)
}
