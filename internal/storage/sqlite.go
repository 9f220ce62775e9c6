package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fleetworks/botflow/pkg/models"
	"github.com/fleetworks/botflow/pkg/storage"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// DBInterface is the subset of sqlx shared by *sqlx.DB and *sqlx.Tx, so the
// same store type serves both connection and transaction scope.
type DBInterface interface {
	Get(dest interface{}, query string, args ...interface{}) error
	Select(dest interface{}, query string, args ...interface{}) error
	QueryRowx(query string, args ...interface{}) *sqlx.Row
	Exec(query string, args ...interface{}) (sql.Result, error)
}

// SQLiteStore implements storage.Store over an embedded sqlite database.
// The database is opened single-writer (one connection, WAL journal), which
// serializes individual writes but provides no isolation across the
// read-then-decide-then-write sequences of the services.
type SQLiteStore struct {
	db DBInterface
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, err
	}
	// sqlite supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Begin() (storage.Store, error) {
	if db, ok := s.db.(*sqlx.DB); ok {
		tx, err := db.Beginx()
		if err != nil {
			return nil, err
		}
		return &SQLiteStore{db: tx}, nil
	}
	return nil, fmt.Errorf("cannot begin transaction on unknown type")
}

func (s *SQLiteStore) Commit() error {
	if tx, ok := s.db.(*sqlx.Tx); ok {
		return tx.Commit()
	}
	return fmt.Errorf("cannot commit: not a transaction")
}

func (s *SQLiteStore) Rollback() error {
	if tx, ok := s.db.(*sqlx.Tx); ok {
		return tx.Rollback()
	}
	return fmt.Errorf("cannot rollback: not a transaction")
}

func (s *SQLiteStore) Close() error {
	if db, ok := s.db.(*sqlx.DB); ok {
		return db.Close()
	}
	return nil // no-op for *sqlx.Tx
}

type taskRow struct {
	models.Task
	TagsJSON sql.NullString `db:"tags"`
}

func (r taskRow) toModel() models.Task {
	t := r.Task
	t.Tags = decodeStrings(r.TagsJSON)
	return t
}

func (s *SQLiteStore) SaveTask(t models.Task) error {
	_, err := s.db.Exec(`INSERT INTO tasks (id, project_id, parent_id, title, status, priority, tags, due_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ProjectID, t.ParentID, t.Title, t.Status, t.Priority, encodeJSON(t.Tags), t.DueAt, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetTask(id string) (models.Task, error) {
	var row taskRow
	err := s.db.Get(&row, "SELECT * FROM tasks WHERE id = ?", id)
	if err == sql.ErrNoRows {
		return models.Task{}, storage.ErrNotFound
	}
	if err != nil {
		return models.Task{}, err
	}
	return row.toModel(), nil
}

func (s *SQLiteStore) ListTasks(projectID string) ([]models.Task, error) {
	var rows []taskRow
	err := s.db.Select(&rows, "SELECT * FROM tasks WHERE project_id = ? ORDER BY created_at", projectID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	tasks := make([]models.Task, 0, len(rows))
	for _, r := range rows {
		tasks = append(tasks, r.toModel())
	}
	return tasks, nil
}

func (s *SQLiteStore) ListTasksByStatus(projectID string, status models.TaskStatus) ([]models.Task, error) {
	var rows []taskRow
	err := s.db.Select(&rows, "SELECT * FROM tasks WHERE project_id = ? AND status = ? ORDER BY created_at", projectID, status)
	if err != nil {
		return nil, fmt.Errorf("list tasks by status: %w", err)
	}
	tasks := make([]models.Task, 0, len(rows))
	for _, r := range rows {
		tasks = append(tasks, r.toModel())
	}
	return tasks, nil
}

func (s *SQLiteStore) UpdateTaskStatus(id string, status models.TaskStatus) error {
	res, err := s.db.Exec("UPDATE tasks SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?", status, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *SQLiteStore) UpdateTaskTags(id string, tags []string) error {
	res, err := s.db.Exec("UPDATE tasks SET tags = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?", encodeJSON(tags), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *SQLiteStore) SaveTaskDependency(d models.TaskDependency) error {
	_, err := s.db.Exec("INSERT INTO task_dependencies (task_id, depends_on, project_id) VALUES (?, ?, ?)",
		d.TaskID, d.DependsOn, d.ProjectID)
	if err != nil {
		return fmt.Errorf("save dependency: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListTaskDependencies(projectID string) ([]models.TaskDependency, error) {
	var deps []models.TaskDependency
	err := s.db.Select(&deps, "SELECT task_id, depends_on, project_id FROM task_dependencies WHERE project_id = ?", projectID)
	if err != nil {
		return nil, err
	}
	return deps, nil
}

type workerRow struct {
	models.Worker
	CapabilitiesJSON sql.NullString `db:"capabilities"`
}

func (r workerRow) toModel() models.Worker {
	w := r.Worker
	w.Capabilities = decodeStrings(r.CapabilitiesJSON)
	return w
}

func (s *SQLiteStore) SaveWorker(w models.Worker) error {
	_, err := s.db.Exec(`INSERT INTO workers (id, project_id, name, status, max_concurrent, capabilities, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.ProjectID, w.Name, w.Status, w.MaxConcurrent, encodeJSON(w.Capabilities), w.CreatedAt)
	if err != nil {
		return fmt.Errorf("save worker: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetWorker(id string) (models.Worker, error) {
	var row workerRow
	err := s.db.Get(&row, "SELECT * FROM workers WHERE id = ?", id)
	if err == sql.ErrNoRows {
		return models.Worker{}, storage.ErrNotFound
	}
	if err != nil {
		return models.Worker{}, err
	}
	return row.toModel(), nil
}

func (s *SQLiteStore) ListWorkers(projectID string) ([]models.Worker, error) {
	var rows []workerRow
	err := s.db.Select(&rows, "SELECT * FROM workers WHERE project_id = ? ORDER BY created_at", projectID)
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	workers := make([]models.Worker, 0, len(rows))
	for _, r := range rows {
		workers = append(workers, r.toModel())
	}
	return workers, nil
}

func (s *SQLiteStore) UpdateWorkerStatus(id string, status models.WorkerStatus) error {
	res, err := s.db.Exec("UPDATE workers SET status = ? WHERE id = ?", status, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *SQLiteStore) SaveAssignment(a models.BotTaskAssignment) error {
	_, err := s.db.Exec(`INSERT INTO assignments (id, worker_id, task_id, status, retry_count, max_retries, timeout_minutes, error_msg, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.WorkerID, a.TaskID, a.Status, a.RetryCount, a.MaxRetries, a.TimeoutMinutes, a.ErrorMsg, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save assignment: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetAssignment(id string) (models.BotTaskAssignment, error) {
	var a models.BotTaskAssignment
	err := s.db.Get(&a, "SELECT * FROM assignments WHERE id = ?", id)
	if err == sql.ErrNoRows {
		return models.BotTaskAssignment{}, storage.ErrNotFound
	}
	if err != nil {
		return models.BotTaskAssignment{}, err
	}
	return a, nil
}

func (s *SQLiteStore) UpdateAssignmentStatus(id string, status models.AssignmentStatus, errorMsg string) error {
	res, err := s.db.Exec("UPDATE assignments SET status = ?, error_msg = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		status, errorMsg, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *SQLiteStore) ListAssignmentsByWorker(workerID string) ([]models.BotTaskAssignment, error) {
	var out []models.BotTaskAssignment
	err := s.db.Select(&out, "SELECT * FROM assignments WHERE worker_id = ? ORDER BY created_at", workerID)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLiteStore) ListAssignmentsByStatus(projectID string, status models.AssignmentStatus) ([]models.BotTaskAssignment, error) {
	var out []models.BotTaskAssignment
	err := s.db.Select(&out, `SELECT a.* FROM assignments a
		JOIN tasks t ON t.id = a.task_id
		WHERE t.project_id = ? AND a.status = ? ORDER BY a.created_at`, projectID, status)
	if err != nil {
		return nil, err
	}
	return out, nil
}

type definitionRow struct {
	models.WorkflowDefinition
	StepsJSON sql.NullString `db:"steps"`
}

func (r definitionRow) toModel() (models.WorkflowDefinition, error) {
	def := r.WorkflowDefinition
	if r.StepsJSON.Valid && r.StepsJSON.String != "" {
		if err := json.Unmarshal([]byte(r.StepsJSON.String), &def.Steps); err != nil {
			return models.WorkflowDefinition{}, fmt.Errorf("decode steps for definition %s: %w", def.ID, err)
		}
	}
	return def, nil
}

func (s *SQLiteStore) SaveWorkflowDefinition(def models.WorkflowDefinition) error {
	steps, err := json.Marshal(def.Steps)
	if err != nil {
		return fmt.Errorf("encode steps: %w", err)
	}
	_, err = s.db.Exec(`INSERT INTO workflow_definitions (id, project_id, name, failure_policy, steps, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, failure_policy = excluded.failure_policy, steps = excluded.steps`,
		def.ID, def.ProjectID, def.Name, def.FailurePolicy, string(steps), def.CreatedAt)
	if err != nil {
		return fmt.Errorf("save workflow definition: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetWorkflowDefinition(id string) (models.WorkflowDefinition, error) {
	var row definitionRow
	err := s.db.Get(&row, "SELECT * FROM workflow_definitions WHERE id = ?", id)
	if err == sql.ErrNoRows {
		return models.WorkflowDefinition{}, storage.ErrNotFound
	}
	if err != nil {
		return models.WorkflowDefinition{}, err
	}
	return row.toModel()
}

func (s *SQLiteStore) ListWorkflowDefinitions(projectID string) ([]models.WorkflowDefinition, error) {
	var rows []definitionRow
	err := s.db.Select(&rows, "SELECT * FROM workflow_definitions WHERE project_id = ? ORDER BY created_at", projectID)
	if err != nil {
		return nil, err
	}
	defs := make([]models.WorkflowDefinition, 0, len(rows))
	for _, r := range rows {
		def, err := r.toModel()
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func (s *SQLiteStore) SaveWorkflowRun(run models.WorkflowRun) error {
	_, err := s.db.Exec("INSERT INTO workflow_runs (id, definition_id, status, started_at, completed_at) VALUES (?, ?, ?, ?, ?)",
		run.ID, run.DefinitionID, run.Status, run.StartedAt, run.CompletedAt)
	if err != nil {
		return fmt.Errorf("save workflow run: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetWorkflowRun(id string) (models.WorkflowRun, error) {
	var run models.WorkflowRun
	err := s.db.Get(&run, "SELECT * FROM workflow_runs WHERE id = ?", id)
	if err == sql.ErrNoRows {
		return models.WorkflowRun{}, storage.ErrNotFound
	}
	if err != nil {
		return models.WorkflowRun{}, err
	}
	return run, nil
}

func (s *SQLiteStore) UpdateWorkflowRunStatus(id string, status models.RunStatus, completedAt *time.Time) error {
	res, err := s.db.Exec("UPDATE workflow_runs SET status = ?, completed_at = ? WHERE id = ?", status, completedAt, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

type runStepRow struct {
	models.WorkflowRunStep
	ResultJSON sql.NullString `db:"result"`
}

func (r runStepRow) toModel() (models.WorkflowRunStep, error) {
	step := r.WorkflowRunStep
	if r.ResultJSON.Valid && r.ResultJSON.String != "" {
		if err := json.Unmarshal([]byte(r.ResultJSON.String), &step.Result); err != nil {
			return models.WorkflowRunStep{}, fmt.Errorf("decode result for step %s: %w", step.StepID, err)
		}
	}
	return step, nil
}

func (s *SQLiteStore) SaveRunStep(step models.WorkflowRunStep) error {
	var result interface{}
	if step.Result != nil {
		encoded, err := json.Marshal(step.Result)
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		result = string(encoded)
	}
	_, err := s.db.Exec(`INSERT INTO workflow_run_steps (run_id, step_id, type, status, result, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		step.RunID, step.StepID, step.Type, step.Status, result, step.StartedAt, step.CompletedAt)
	if err != nil {
		return fmt.Errorf("save run step: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetRunStep(runID, stepID string) (models.WorkflowRunStep, error) {
	var row runStepRow
	err := s.db.Get(&row, "SELECT * FROM workflow_run_steps WHERE run_id = ? AND step_id = ?", runID, stepID)
	if err == sql.ErrNoRows {
		return models.WorkflowRunStep{}, storage.ErrNotFound
	}
	if err != nil {
		return models.WorkflowRunStep{}, err
	}
	return row.toModel()
}

func (s *SQLiteStore) ListRunSteps(runID string) ([]models.WorkflowRunStep, error) {
	var rows []runStepRow
	err := s.db.Select(&rows, "SELECT * FROM workflow_run_steps WHERE run_id = ? ORDER BY rowid", runID)
	if err != nil {
		return nil, err
	}
	steps := make([]models.WorkflowRunStep, 0, len(rows))
	for _, r := range rows {
		step, err := r.toModel()
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func (s *SQLiteStore) UpdateRunStepStatus(runID, stepID string, status models.StepStatus, result map[string]interface{}) error {
	var encoded interface{}
	if result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		encoded = string(raw)
	}
	// The status parameter repeats because sqlite binds each placeholder in
	// the CASE clauses separately.
	res, err := s.db.Exec(`
		UPDATE workflow_run_steps
		SET status = ?,
		result = COALESCE(?, result),
		started_at = CASE WHEN ? = 'running' AND started_at IS NULL THEN CURRENT_TIMESTAMP ELSE started_at END,
		completed_at = CASE WHEN ? IN ('completed', 'failed', 'skipped') THEN CURRENT_TIMESTAMP ELSE completed_at END
		WHERE run_id = ? AND step_id = ?`,
		status, encoded, status, status, runID, stepID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *SQLiteStore) ListRunStepsByTypeAndStatus(stepType models.StepType, status models.StepStatus) ([]models.WorkflowRunStep, error) {
	var rows []runStepRow
	err := s.db.Select(&rows, "SELECT * FROM workflow_run_steps WHERE type = ? AND status = ? ORDER BY rowid", stepType, status)
	if err != nil {
		return nil, err
	}
	steps := make([]models.WorkflowRunStep, 0, len(rows))
	for _, r := range rows {
		step, err := r.toModel()
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, nil
}

type ruleRow struct {
	models.AutomationRule
	ConditionsJSON sql.NullString `db:"conditions"`
	ActionsJSON    sql.NullString `db:"actions"`
}

func (r ruleRow) toModel() (models.AutomationRule, error) {
	rule := r.AutomationRule
	if r.ConditionsJSON.Valid && r.ConditionsJSON.String != "" {
		if err := json.Unmarshal([]byte(r.ConditionsJSON.String), &rule.Conditions); err != nil {
			return models.AutomationRule{}, fmt.Errorf("decode conditions for rule %s: %w", rule.ID, err)
		}
	}
	if r.ActionsJSON.Valid && r.ActionsJSON.String != "" {
		if err := json.Unmarshal([]byte(r.ActionsJSON.String), &rule.Actions); err != nil {
			return models.AutomationRule{}, fmt.Errorf("decode actions for rule %s: %w", rule.ID, err)
		}
	}
	return rule, nil
}

func (s *SQLiteStore) SaveAutomationRule(r models.AutomationRule) error {
	conditions, err := json.Marshal(r.Conditions)
	if err != nil {
		return fmt.Errorf("encode conditions: %w", err)
	}
	actions, err := json.Marshal(r.Actions)
	if err != nil {
		return fmt.Errorf("encode actions: %w", err)
	}
	_, err = s.db.Exec(`INSERT INTO automation_rules (id, project_id, name, trigger_name, conditions, actions, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, trigger_name = excluded.trigger_name,
		conditions = excluded.conditions, actions = excluded.actions, active = excluded.active`,
		r.ID, r.ProjectID, r.Name, r.Trigger, string(conditions), string(actions), r.Active, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("save automation rule: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListAutomationRules(projectID, trigger string) ([]models.AutomationRule, error) {
	var rows []ruleRow
	err := s.db.Select(&rows, "SELECT * FROM automation_rules WHERE project_id = ? AND trigger_name = ? ORDER BY created_at", projectID, trigger)
	if err != nil {
		return nil, err
	}
	rules := make([]models.AutomationRule, 0, len(rows))
	for _, r := range rows {
		rule, err := r.toModel()
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func (s *SQLiteStore) SaveEscalationRule(r models.EscalationRule) error {
	_, err := s.db.Exec(`INSERT INTO escalation_rules (id, project_id, trigger_name, threshold, notify_user_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET trigger_name = excluded.trigger_name, threshold = excluded.threshold, notify_user_id = excluded.notify_user_id`,
		r.ID, r.ProjectID, r.Trigger, r.Threshold, r.NotifyUserID, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("save escalation rule: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListEscalationRules(projectID string) ([]models.EscalationRule, error) {
	var rules []models.EscalationRule
	err := s.db.Select(&rules, "SELECT * FROM escalation_rules WHERE project_id = ? ORDER BY created_at", projectID)
	if err != nil {
		return nil, err
	}
	return rules, nil
}

func (s *SQLiteStore) SaveAlert(a models.Alert) error {
	_, err := s.db.Exec("INSERT INTO alerts (id, project_id, severity, title, body, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		a.ID, a.ProjectID, a.Severity, a.Title, a.Body, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("save alert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListAlerts(projectID string) ([]models.Alert, error) {
	var alerts []models.Alert
	err := s.db.Select(&alerts, "SELECT * FROM alerts WHERE project_id = ? ORDER BY created_at", projectID)
	if err != nil {
		return nil, err
	}
	return alerts, nil
}

func (s *SQLiteStore) SaveNotification(n models.Notification) error {
	_, err := s.db.Exec("INSERT INTO notifications (id, user_id, message, created_at) VALUES (?, ?, ?, ?)",
		n.ID, n.UserID, n.Message, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("save notification: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListNotifications(userID string) ([]models.Notification, error) {
	var notifications []models.Notification
	err := s.db.Select(&notifications, "SELECT * FROM notifications WHERE user_id = ? ORDER BY created_at", userID)
	if err != nil {
		return nil, err
	}
	return notifications, nil
}

// encodeJSON marshals a string slice for a TEXT column; nil slices store as
// NULL so empty and absent stay distinguishable.
func encodeJSON(values []string) interface{} {
	if values == nil {
		return nil
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return nil
	}
	return string(raw)
}

func decodeStrings(column sql.NullString) []string {
	if !column.Valid || column.String == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(column.String), &out); err != nil {
		return nil
	}
	return out
}

func requireRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}
