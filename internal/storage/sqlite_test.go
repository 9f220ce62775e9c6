package storage_test

import (
	"testing"
	"time"

	internal_storage "github.com/fleetworks/botflow/internal/storage"
	"github.com/fleetworks/botflow/internal/testutil"
	"github.com/fleetworks/botflow/pkg/models"
	"github.com/fleetworks/botflow/pkg/storage"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *internal_storage.SQLiteStore {
	testDB := testutil.SetupTestDB(t)
	t.Cleanup(func() { testDB.Teardown(t) })
	return testDB.Store
}

func TestTaskPersistence(t *testing.T) {
	store := newTestStore(t)
	due := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second)
	task := models.Task{
		ID: "t1", ProjectID: "p1", Title: "fix login flow",
		Status: models.TodoTaskStatus, Priority: models.HighTaskPriority,
		Tags: []string{"auth", "frontend"}, DueAt: &due,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	require.NoError(t, store.SaveTask(task))

	got, err := store.GetTask("t1")
	require.NoError(t, err)
	assert.Equal(t, "fix login flow", got.Title)
	assert.Equal(t, models.HighTaskPriority, got.Priority)
	assert.Equal(t, []string{"auth", "frontend"}, got.Tags)
	require.NotNil(t, got.DueAt)
	assert.WithinDuration(t, due, *got.DueAt, time.Second)

	t.Run("ListByStatus", func(t *testing.T) {
		require.NoError(t, store.SaveTask(models.Task{
			ID: "t2", ProjectID: "p1", Title: "done already",
			Status: models.DoneTaskStatus, Priority: models.LowTaskPriority,
			CreatedAt: time.Now(), UpdatedAt: time.Now(),
		}))
		todo, err := store.ListTasksByStatus("p1", models.TodoTaskStatus)
		require.NoError(t, err)
		require.Len(t, todo, 1)
		assert.Equal(t, "t1", todo[0].ID)
	})

	t.Run("UpdateStatus", func(t *testing.T) {
		require.NoError(t, store.UpdateTaskStatus("t1", models.InProgressTaskStatus))
		got, err := store.GetTask("t1")
		require.NoError(t, err)
		assert.Equal(t, models.InProgressTaskStatus, got.Status)
	})

	t.Run("UpdateTags", func(t *testing.T) {
		require.NoError(t, store.UpdateTaskTags("t1", []string{"auth", "frontend", "urgent"}))
		got, err := store.GetTask("t1")
		require.NoError(t, err)
		assert.Contains(t, got.Tags, "urgent")
	})

	t.Run("UnknownIDIsNotFound", func(t *testing.T) {
		_, err := store.GetTask("missing")
		assert.True(t, errors.Is(err, storage.ErrNotFound))
		assert.True(t, errors.Is(store.UpdateTaskStatus("missing", models.DoneTaskStatus), storage.ErrNotFound))
	})
}

func TestDependencyPersistence(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SaveTaskDependency(models.TaskDependency{TaskID: "b", DependsOn: "a", ProjectID: "p1"}))
	require.NoError(t, store.SaveTaskDependency(models.TaskDependency{TaskID: "c", DependsOn: "a", ProjectID: "p1"}))
	require.NoError(t, store.SaveTaskDependency(models.TaskDependency{TaskID: "z", DependsOn: "y", ProjectID: "other"}))

	edges, err := store.ListTaskDependencies("p1")
	require.NoError(t, err)
	assert.Len(t, edges, 2)
}

func TestWorkerAndAssignmentPersistence(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SaveWorker(models.Worker{
		ID: "w1", ProjectID: "p1", Name: "crawler",
		Status: models.IdleWorkerStatus, MaxConcurrent: 2,
		Capabilities: []string{"scrape", "summarize"}, CreatedAt: time.Now(),
	}))

	worker, err := store.GetWorker("w1")
	require.NoError(t, err)
	assert.Equal(t, 2, worker.MaxConcurrent)
	assert.Equal(t, []string{"scrape", "summarize"}, worker.Capabilities)

	require.NoError(t, store.UpdateWorkerStatus("w1", models.WorkingWorkerStatus))
	worker, err = store.GetWorker("w1")
	require.NoError(t, err)
	assert.Equal(t, models.WorkingWorkerStatus, worker.Status)

	require.NoError(t, store.SaveTask(models.Task{
		ID: "t1", ProjectID: "p1", Title: "t1",
		Status: models.InProgressTaskStatus, Priority: models.MediumTaskPriority,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}))
	require.NoError(t, store.SaveAssignment(models.BotTaskAssignment{
		ID: "a1", WorkerID: "w1", TaskID: "t1",
		Status: models.PendingAssignmentStatus, MaxRetries: 3, TimeoutMinutes: 30,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}))

	byWorker, err := store.ListAssignmentsByWorker("w1")
	require.NoError(t, err)
	require.Len(t, byWorker, 1)
	assert.Equal(t, "t1", byWorker[0].TaskID)

	require.NoError(t, store.UpdateAssignmentStatus("a1", models.FailedAssignmentStatus, "timeout"))
	failed, err := store.ListAssignmentsByStatus("p1", models.FailedAssignmentStatus)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "timeout", failed[0].ErrorMsg)
}

func TestWorkflowDefinitionPersistence(t *testing.T) {
	store := newTestStore(t)
	def := models.WorkflowDefinition{
		ID: "wf1", ProjectID: "p1", Name: "release",
		FailurePolicy: models.ContinueFailurePolicy,
		Steps: []models.WorkflowStep{
			{ID: "build", Name: "Build", Type: models.BotTaskStepType, Capability: "ci"},
			{ID: "approve", Name: "Approve", Type: models.ApprovalStepType, DependsOn: []string{"build"}},
		},
		CreatedAt: time.Now(),
	}
	require.NoError(t, store.SaveWorkflowDefinition(def))

	got, err := store.GetWorkflowDefinition("wf1")
	require.NoError(t, err)
	assert.Equal(t, models.ContinueFailurePolicy, got.FailurePolicy)
	require.Len(t, got.Steps, 2)
	assert.Equal(t, []string{"build"}, got.Steps[1].DependsOn)

	// Saving the same ID again replaces the definition.
	def.Name = "release-v2"
	require.NoError(t, store.SaveWorkflowDefinition(def))
	got, err = store.GetWorkflowDefinition("wf1")
	require.NoError(t, err)
	assert.Equal(t, "release-v2", got.Name)

	defs, err := store.ListWorkflowDefinitions("p1")
	require.NoError(t, err)
	assert.Len(t, defs, 1)
}

func TestRunAndStepPersistence(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SaveWorkflowRun(models.WorkflowRun{
		ID: "r1", DefinitionID: "wf1", Status: models.RunningRunStatus, StartedAt: time.Now(),
	}))
	require.NoError(t, store.SaveRunStep(models.WorkflowRunStep{
		RunID: "r1", StepID: "build", Type: models.BotTaskStepType, Status: models.PendingStepStatus,
	}))
	require.NoError(t, store.SaveRunStep(models.WorkflowRunStep{
		RunID: "r1", StepID: "approve", Type: models.ApprovalStepType, Status: models.PendingStepStatus,
	}))

	t.Run("PromoteToRunningSetsStartedAt", func(t *testing.T) {
		require.NoError(t, store.UpdateRunStepStatus("r1", "build", models.RunningStepStatus, nil))
		step, err := store.GetRunStep("r1", "build")
		require.NoError(t, err)
		assert.Equal(t, models.RunningStepStatus, step.Status)
		assert.NotNil(t, step.StartedAt)
		assert.Nil(t, step.CompletedAt)
	})

	t.Run("CompleteSetsCompletedAtAndResult", func(t *testing.T) {
		result := map[string]interface{}{"artifact": "v1.2.3"}
		require.NoError(t, store.UpdateRunStepStatus("r1", "build", models.CompletedStepStatus, result))
		step, err := store.GetRunStep("r1", "build")
		require.NoError(t, err)
		assert.Equal(t, models.CompletedStepStatus, step.Status)
		assert.NotNil(t, step.CompletedAt)
		assert.Equal(t, "v1.2.3", step.Result["artifact"])
	})

	t.Run("ListByTypeAndStatus", func(t *testing.T) {
		require.NoError(t, store.UpdateRunStepStatus("r1", "approve", models.RunningStepStatus, nil))
		steps, err := store.ListRunStepsByTypeAndStatus(models.ApprovalStepType, models.RunningStepStatus)
		require.NoError(t, err)
		require.Len(t, steps, 1)
		assert.Equal(t, "approve", steps[0].StepID)
	})

	t.Run("FinalizeRun", func(t *testing.T) {
		now := time.Now()
		require.NoError(t, store.UpdateWorkflowRunStatus("r1", models.CompletedRunStatus, &now))
		run, err := store.GetWorkflowRun("r1")
		require.NoError(t, err)
		assert.Equal(t, models.CompletedRunStatus, run.Status)
		assert.NotNil(t, run.CompletedAt)
	})

	t.Run("StepsKeptInInsertionOrder", func(t *testing.T) {
		steps, err := store.ListRunSteps("r1")
		require.NoError(t, err)
		require.Len(t, steps, 2)
		assert.Equal(t, "build", steps[0].StepID)
		assert.Equal(t, "approve", steps[1].StepID)
	})
}

func TestRulePersistence(t *testing.T) {
	store := newTestStore(t)
	rule := models.AutomationRule{
		ID: "rule1", ProjectID: "p1", Name: "escalate failures", Trigger: "task_failed",
		Conditions: []models.RuleCondition{{Field: "retries", Operator: models.GtOperator, Value: float64(2)}},
		Actions:    []models.RuleAction{{Type: models.EscalateAction, Params: map[string]interface{}{"reason": "too many retries"}}},
		Active:     true, CreatedAt: time.Now(),
	}
	require.NoError(t, store.SaveAutomationRule(rule))

	rules, err := store.ListAutomationRules("p1", "task_failed")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.True(t, rules[0].Active)
	require.Len(t, rules[0].Conditions, 1)
	assert.Equal(t, models.GtOperator, rules[0].Conditions[0].Operator)
	require.Len(t, rules[0].Actions, 1)
	assert.Equal(t, "too many retries", rules[0].Actions[0].Params["reason"])

	other, err := store.ListAutomationRules("p1", "task_created")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestEscalationRuleAndAlertPersistence(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SaveEscalationRule(models.EscalationRule{
		ID: "e1", ProjectID: "p1", Trigger: models.BotFailureTrigger,
		Threshold: 3, NotifyUserID: "lead", CreatedAt: time.Now(),
	}))

	rules, err := store.ListEscalationRules("p1")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, models.BotFailureTrigger, rules[0].Trigger)
	assert.Equal(t, float64(3), rules[0].Threshold)

	require.NoError(t, store.SaveAlert(models.Alert{
		ID: "al1", ProjectID: "p1", Severity: models.CriticalAlertSeverity,
		Title: "worker flaky is failing", CreatedAt: time.Now(),
	}))
	alerts, err := store.ListAlerts("p1")
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.CriticalAlertSeverity, alerts[0].Severity)

	require.NoError(t, store.SaveNotification(models.Notification{
		ID: "n1", UserID: "lead", Message: "worker flaky is failing", CreatedAt: time.Now(),
	}))
	notifications, err := store.ListNotifications("lead")
	require.NoError(t, err)
	assert.Len(t, notifications, 1)
}

func TestTransactionSemantics(t *testing.T) {
	store := newTestStore(t)

	t.Run("CommitPersists", func(t *testing.T) {
		tx, err := store.Begin()
		require.NoError(t, err)
		require.NoError(t, tx.SaveTask(models.Task{
			ID: "committed", ProjectID: "p1", Title: "committed",
			Status: models.TodoTaskStatus, Priority: models.MediumTaskPriority,
			CreatedAt: time.Now(), UpdatedAt: time.Now(),
		}))
		require.NoError(t, tx.Commit())

		_, err = store.GetTask("committed")
		assert.NoError(t, err)
	})

	t.Run("RollbackDiscards", func(t *testing.T) {
		tx, err := store.Begin()
		require.NoError(t, err)
		require.NoError(t, tx.SaveTask(models.Task{
			ID: "discarded", ProjectID: "p1", Title: "discarded",
			Status: models.TodoTaskStatus, Priority: models.MediumTaskPriority,
			CreatedAt: time.Now(), UpdatedAt: time.Now(),
		}))
		require.NoError(t, tx.Rollback())

		_, err = store.GetTask("discarded")
		assert.True(t, errors.Is(err, storage.ErrNotFound))
	})
}
