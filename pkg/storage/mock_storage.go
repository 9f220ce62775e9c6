package storage

import (
	"time"

	"github.com/fleetworks/botflow/pkg/models"
	"github.com/pkg/errors"
)

// mockStore implements Store with in-memory slices. It is shared by service
// tests; like the real store it serializes nothing across calls.
type mockStore struct {
	tasks         []models.Task
	taskDeps      []models.TaskDependency
	workers       []models.Worker
	assignments   []models.BotTaskAssignment
	definitions   []models.WorkflowDefinition
	runs          []models.WorkflowRun
	runSteps      []models.WorkflowRunStep
	rules         []models.AutomationRule
	escalations   []models.EscalationRule
	alerts        []models.Alert
	notifications []models.Notification
}

// NewMockStore returns an empty in-memory Store.
func NewMockStore() Store {
	return &mockStore{}
}

// Begin returns the store itself: mock transactions are not isolated, they
// only satisfy the transactional call shape of the services.
func (m *mockStore) Begin() (Store, error) { return m, nil }
func (m *mockStore) Commit() error         { return nil }
func (m *mockStore) Rollback() error       { return nil }
func (m *mockStore) Close() error          { return nil }

func (m *mockStore) SaveTask(t models.Task) error {
	for _, existing := range m.tasks {
		if existing.ID == t.ID {
			return errors.New("task already exists")
		}
	}
	m.tasks = append(m.tasks, t)
	return nil
}

func (m *mockStore) GetTask(id string) (models.Task, error) {
	for _, t := range m.tasks {
		if t.ID == id {
			return t, nil
		}
	}
	return models.Task{}, ErrNotFound
}

func (m *mockStore) ListTasks(projectID string) ([]models.Task, error) {
	var out []models.Task
	for _, t := range m.tasks {
		if t.ProjectID == projectID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *mockStore) ListTasksByStatus(projectID string, status models.TaskStatus) ([]models.Task, error) {
	var out []models.Task
	for _, t := range m.tasks {
		if t.ProjectID == projectID && t.Status == status {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *mockStore) UpdateTaskStatus(id string, status models.TaskStatus) error {
	for i, t := range m.tasks {
		if t.ID == id {
			m.tasks[i].Status = status
			m.tasks[i].UpdatedAt = time.Now()
			return nil
		}
	}
	return ErrNotFound
}

func (m *mockStore) UpdateTaskTags(id string, tags []string) error {
	for i, t := range m.tasks {
		if t.ID == id {
			m.tasks[i].Tags = append([]string(nil), tags...)
			m.tasks[i].UpdatedAt = time.Now()
			return nil
		}
	}
	return ErrNotFound
}

func (m *mockStore) SaveTaskDependency(d models.TaskDependency) error {
	for _, existing := range m.taskDeps {
		if existing.TaskID == d.TaskID && existing.DependsOn == d.DependsOn {
			return errors.New("dependency already exists")
		}
	}
	m.taskDeps = append(m.taskDeps, d)
	return nil
}

func (m *mockStore) ListTaskDependencies(projectID string) ([]models.TaskDependency, error) {
	var out []models.TaskDependency
	for _, d := range m.taskDeps {
		if d.ProjectID == projectID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *mockStore) SaveWorker(w models.Worker) error {
	for _, existing := range m.workers {
		if existing.ID == w.ID {
			return errors.New("worker already exists")
		}
	}
	m.workers = append(m.workers, w)
	return nil
}

func (m *mockStore) GetWorker(id string) (models.Worker, error) {
	for _, w := range m.workers {
		if w.ID == id {
			return w, nil
		}
	}
	return models.Worker{}, ErrNotFound
}

func (m *mockStore) ListWorkers(projectID string) ([]models.Worker, error) {
	var out []models.Worker
	for _, w := range m.workers {
		if w.ProjectID == projectID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (m *mockStore) UpdateWorkerStatus(id string, status models.WorkerStatus) error {
	for i, w := range m.workers {
		if w.ID == id {
			m.workers[i].Status = status
			return nil
		}
	}
	return ErrNotFound
}

func (m *mockStore) SaveAssignment(a models.BotTaskAssignment) error {
	for _, existing := range m.assignments {
		if existing.ID == a.ID {
			return errors.New("assignment already exists")
		}
	}
	m.assignments = append(m.assignments, a)
	return nil
}

func (m *mockStore) GetAssignment(id string) (models.BotTaskAssignment, error) {
	for _, a := range m.assignments {
		if a.ID == id {
			return a, nil
		}
	}
	return models.BotTaskAssignment{}, ErrNotFound
}

func (m *mockStore) UpdateAssignmentStatus(id string, status models.AssignmentStatus, errorMsg string) error {
	for i, a := range m.assignments {
		if a.ID == id {
			m.assignments[i].Status = status
			m.assignments[i].ErrorMsg = errorMsg
			m.assignments[i].UpdatedAt = time.Now()
			return nil
		}
	}
	return ErrNotFound
}

func (m *mockStore) ListAssignmentsByWorker(workerID string) ([]models.BotTaskAssignment, error) {
	var out []models.BotTaskAssignment
	for _, a := range m.assignments {
		if a.WorkerID == workerID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockStore) ListAssignmentsByStatus(projectID string, status models.AssignmentStatus) ([]models.BotTaskAssignment, error) {
	var out []models.BotTaskAssignment
	for _, a := range m.assignments {
		if a.Status != status {
			continue
		}
		task, err := m.GetTask(a.TaskID)
		if err != nil || task.ProjectID != projectID {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (m *mockStore) SaveWorkflowDefinition(def models.WorkflowDefinition) error {
	for i, existing := range m.definitions {
		if existing.ID == def.ID {
			m.definitions[i] = def
			return nil
		}
	}
	m.definitions = append(m.definitions, def)
	return nil
}

func (m *mockStore) GetWorkflowDefinition(id string) (models.WorkflowDefinition, error) {
	for _, def := range m.definitions {
		if def.ID == id {
			return def, nil
		}
	}
	return models.WorkflowDefinition{}, ErrNotFound
}

func (m *mockStore) ListWorkflowDefinitions(projectID string) ([]models.WorkflowDefinition, error) {
	var out []models.WorkflowDefinition
	for _, def := range m.definitions {
		if def.ProjectID == projectID {
			out = append(out, def)
		}
	}
	return out, nil
}

func (m *mockStore) SaveWorkflowRun(run models.WorkflowRun) error {
	for _, existing := range m.runs {
		if existing.ID == run.ID {
			return errors.New("run already exists")
		}
	}
	m.runs = append(m.runs, run)
	return nil
}

func (m *mockStore) GetWorkflowRun(id string) (models.WorkflowRun, error) {
	for _, run := range m.runs {
		if run.ID == id {
			return run, nil
		}
	}
	return models.WorkflowRun{}, ErrNotFound
}

func (m *mockStore) UpdateWorkflowRunStatus(id string, status models.RunStatus, completedAt *time.Time) error {
	for i, run := range m.runs {
		if run.ID == id {
			m.runs[i].Status = status
			m.runs[i].CompletedAt = completedAt
			return nil
		}
	}
	return ErrNotFound
}

func (m *mockStore) SaveRunStep(step models.WorkflowRunStep) error {
	for _, existing := range m.runSteps {
		if existing.RunID == step.RunID && existing.StepID == step.StepID {
			return errors.New("run step already exists")
		}
	}
	m.runSteps = append(m.runSteps, step)
	return nil
}

func (m *mockStore) GetRunStep(runID, stepID string) (models.WorkflowRunStep, error) {
	for _, s := range m.runSteps {
		if s.RunID == runID && s.StepID == stepID {
			return s, nil
		}
	}
	return models.WorkflowRunStep{}, ErrNotFound
}

func (m *mockStore) ListRunSteps(runID string) ([]models.WorkflowRunStep, error) {
	var out []models.WorkflowRunStep
	for _, s := range m.runSteps {
		if s.RunID == runID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockStore) UpdateRunStepStatus(runID, stepID string, status models.StepStatus, result map[string]interface{}) error {
	for i, s := range m.runSteps {
		if s.RunID != runID || s.StepID != stepID {
			continue
		}
		now := time.Now()
		m.runSteps[i].Status = status
		if result != nil {
			m.runSteps[i].Result = result
		}
		if status == models.RunningStepStatus && s.StartedAt == nil {
			m.runSteps[i].StartedAt = &now
		}
		if status.Terminal() {
			m.runSteps[i].CompletedAt = &now
		}
		return nil
	}
	return ErrNotFound
}

func (m *mockStore) ListRunStepsByTypeAndStatus(stepType models.StepType, status models.StepStatus) ([]models.WorkflowRunStep, error) {
	var out []models.WorkflowRunStep
	for _, s := range m.runSteps {
		if s.Type == stepType && s.Status == status {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockStore) SaveAutomationRule(r models.AutomationRule) error {
	for i, existing := range m.rules {
		if existing.ID == r.ID {
			m.rules[i] = r
			return nil
		}
	}
	m.rules = append(m.rules, r)
	return nil
}

func (m *mockStore) ListAutomationRules(projectID, trigger string) ([]models.AutomationRule, error) {
	var out []models.AutomationRule
	for _, r := range m.rules {
		if r.ProjectID == projectID && r.Trigger == trigger {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockStore) SaveEscalationRule(r models.EscalationRule) error {
	for i, existing := range m.escalations {
		if existing.ID == r.ID {
			m.escalations[i] = r
			return nil
		}
	}
	m.escalations = append(m.escalations, r)
	return nil
}

func (m *mockStore) ListEscalationRules(projectID string) ([]models.EscalationRule, error) {
	var out []models.EscalationRule
	for _, r := range m.escalations {
		if r.ProjectID == projectID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockStore) SaveAlert(a models.Alert) error {
	m.alerts = append(m.alerts, a)
	return nil
}

func (m *mockStore) ListAlerts(projectID string) ([]models.Alert, error) {
	var out []models.Alert
	for _, a := range m.alerts {
		if a.ProjectID == projectID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockStore) SaveNotification(n models.Notification) error {
	m.notifications = append(m.notifications, n)
	return nil
}

func (m *mockStore) ListNotifications(userID string) ([]models.Notification, error) {
	var out []models.Notification
	for _, n := range m.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}
