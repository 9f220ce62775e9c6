package service

import (
	"time"

	"github.com/fleetworks/botflow/pkg/models"
	"github.com/fleetworks/botflow/pkg/storage"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// TaskService covers the task mutations the orchestration core reacts to:
// creation, dependency edges and completion.
type TaskService struct {
	store  storage.Store
	logger Logger
}

func NewTaskService(store storage.Store, logger Logger) *TaskService {
	return &TaskService{store: store, logger: logger}
}

func (ts *TaskService) CreateTask(projectID, title string, priority models.TaskPriority, dueAt *time.Time) (models.Task, error) {
	if title == "" {
		return models.Task{}, errors.New("task title cannot be empty")
	}
	if priority == "" {
		priority = models.MediumTaskPriority
	}
	task := models.Task{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		Title:     title,
		Status:    models.TodoTaskStatus,
		Priority:  priority,
		DueAt:     dueAt,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := ts.store.SaveTask(task); err != nil {
		return models.Task{}, errors.Wrap(err, "failed to save task")
	}
	ts.logger.Infof("Created task %s (%s) in project %s", task.ID, title, projectID)
	return task, nil
}

// AddDependency records that taskID depends on dependsOn. Both tasks must
// exist; the edge set is not checked for cycles, only read at resolution
// time.
func (ts *TaskService) AddDependency(taskID, dependsOn string) error {
	task, err := ts.store.GetTask(taskID)
	if err != nil {
		return errors.Wrapf(err, "task %s not found", taskID)
	}
	if _, err := ts.store.GetTask(dependsOn); err != nil {
		return errors.Wrapf(err, "dependency task %s not found", dependsOn)
	}
	if taskID == dependsOn {
		return errors.New("a task cannot depend on itself")
	}
	dep := models.TaskDependency{
		TaskID:    taskID,
		DependsOn: dependsOn,
		ProjectID: task.ProjectID,
	}
	if err := ts.store.SaveTaskDependency(dep); err != nil {
		return errors.Wrap(err, "failed to save dependency")
	}
	return nil
}

// CompleteTask flips a task to done. Used by boundary callers for manual
// completion; worker-driven completion goes through ReportAssignment.
func (ts *TaskService) CompleteTask(id string) error {
	task, err := ts.store.GetTask(id)
	if err != nil {
		return errors.Wrapf(err, "task %s not found", id)
	}
	if task.Status == models.DoneTaskStatus {
		return nil
	}
	if err := ts.store.UpdateTaskStatus(id, models.DoneTaskStatus); err != nil {
		return err
	}
	ts.logger.Infof("Task %s marked done", id)
	return nil
}

func (ts *TaskService) ListTasks(projectID string) ([]models.Task, error) {
	return ts.store.ListTasks(projectID)
}
