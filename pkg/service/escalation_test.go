package service_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/fleetworks/botflow/pkg/models"
	"github.com/fleetworks/botflow/pkg/service"
	"github.com/fleetworks/botflow/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckEscalations(t *testing.T) {
	saveFailedAssignments := func(t *testing.T, store storage.Store, workerID string, count int) {
		for i := 0; i < count; i++ {
			taskID := fmt.Sprintf("%s-task-%d", workerID, i)
			require.NoError(t, store.SaveTask(models.Task{
				ID: taskID, ProjectID: "p1", Title: taskID,
				Status: models.InProgressTaskStatus, Priority: models.MediumTaskPriority,
			}))
			require.NoError(t, store.SaveAssignment(models.BotTaskAssignment{
				ID: fmt.Sprintf("%s-a-%d", workerID, i), WorkerID: workerID, TaskID: taskID,
				Status: models.FailedAssignmentStatus,
			}))
		}
	}

	t.Run("BotFailureThreshold", func(t *testing.T) {
		store := storage.NewMockStore()
		dispatcher := &fakeDispatcher{}
		saveFailedAssignments(t, store, "flaky", 3)
		saveFailedAssignments(t, store, "steady", 1)
		require.NoError(t, store.SaveEscalationRule(models.EscalationRule{
			ID: "e1", ProjectID: "p1", Trigger: models.BotFailureTrigger, Threshold: 3, NotifyUserID: "lead",
		}))

		svc := service.NewEscalationService(store, logger{}, dispatcher)
		result, err := svc.CheckEscalations("p1")
		assert.NoError(t, err)
		assert.Equal(t, 1, result.RulesChecked)
		require.Len(t, result.Results, 1)
		assert.Contains(t, result.Results[0], "flaky")
		assert.Contains(t, result.Results[0], "3 failed assignments")

		alerts, err := store.ListAlerts("p1")
		require.NoError(t, err)
		require.Len(t, alerts, 1)
		assert.Equal(t, models.CriticalAlertSeverity, alerts[0].Severity)

		notifications, err := store.ListNotifications("lead")
		require.NoError(t, err)
		assert.Len(t, notifications, 1)

		require.Len(t, dispatcher.events, 1)
		assert.Equal(t, "bot_failure", dispatcher.events[0].Event)
	})

	t.Run("BotFailureBelowThreshold", func(t *testing.T) {
		store := storage.NewMockStore()
		saveFailedAssignments(t, store, "flaky", 2)
		require.NoError(t, store.SaveEscalationRule(models.EscalationRule{
			ID: "e1", ProjectID: "p1", Trigger: models.BotFailureTrigger, Threshold: 3,
		}))

		svc := service.NewEscalationService(store, logger{}, nil)
		result, err := svc.CheckEscalations("p1")
		assert.NoError(t, err)
		require.Len(t, result.Results, 1)
		assert.Contains(t, result.Results[0], "no worker at threshold")

		alerts, err := store.ListAlerts("p1")
		require.NoError(t, err)
		assert.Empty(t, alerts)
	})

	t.Run("TaskOverdue", func(t *testing.T) {
		store := storage.NewMockStore()
		dispatcher := &fakeDispatcher{}
		overdue := time.Now().Add(-3 * time.Hour)
		recent := time.Now().Add(-30 * time.Minute)
		finished := time.Now().Add(-5 * time.Hour)
		require.NoError(t, store.SaveTask(models.Task{
			ID: "late", ProjectID: "p1", Title: "late", Status: models.InProgressTaskStatus,
			Priority: models.MediumTaskPriority, DueAt: &overdue,
		}))
		require.NoError(t, store.SaveTask(models.Task{
			ID: "fresh", ProjectID: "p1", Title: "fresh", Status: models.TodoTaskStatus,
			Priority: models.MediumTaskPriority, DueAt: &recent,
		}))
		require.NoError(t, store.SaveTask(models.Task{
			ID: "shipped", ProjectID: "p1", Title: "shipped", Status: models.DoneTaskStatus,
			Priority: models.MediumTaskPriority, DueAt: &finished,
		}))
		require.NoError(t, store.SaveEscalationRule(models.EscalationRule{
			ID: "e1", ProjectID: "p1", Trigger: models.TaskOverdueTrigger, Threshold: 2,
		}))

		svc := service.NewEscalationService(store, logger{}, dispatcher)
		result, err := svc.CheckEscalations("p1")
		assert.NoError(t, err)
		require.Len(t, result.Results, 1)
		assert.Contains(t, result.Results[0], `"late" overdue`)

		alerts, err := store.ListAlerts("p1")
		require.NoError(t, err)
		require.Len(t, alerts, 1)
		assert.Equal(t, models.WarningAlertSeverity, alerts[0].Severity)
	})

	t.Run("ApprovalTimeout", func(t *testing.T) {
		store := storage.NewMockStore()
		dispatcher := &fakeDispatcher{}
		stale := time.Now().Add(-26 * time.Hour)
		fresh := time.Now().Add(-1 * time.Hour)
		require.NoError(t, store.SaveRunStep(models.WorkflowRunStep{
			RunID: "r1", StepID: "sign-off", Type: models.ApprovalStepType,
			Status: models.RunningStepStatus, StartedAt: &stale,
		}))
		require.NoError(t, store.SaveRunStep(models.WorkflowRunStep{
			RunID: "r1", StepID: "review", Type: models.ApprovalStepType,
			Status: models.RunningStepStatus, StartedAt: &fresh,
		}))
		require.NoError(t, store.SaveRunStep(models.WorkflowRunStep{
			RunID: "r1", StepID: "build", Type: models.BotTaskStepType,
			Status: models.RunningStepStatus, StartedAt: &stale,
		}))
		require.NoError(t, store.SaveEscalationRule(models.EscalationRule{
			ID: "e1", ProjectID: "p1", Trigger: models.ApprovalTimeoutTrigger, Threshold: 24,
		}))

		svc := service.NewEscalationService(store, logger{}, dispatcher)
		result, err := svc.CheckEscalations("p1")
		assert.NoError(t, err)
		require.Len(t, result.Results, 1)
		assert.Contains(t, result.Results[0], "sign-off")

		require.Len(t, dispatcher.events, 1)
		assert.Equal(t, "approval_timeout", dispatcher.events[0].Event)
	})

	t.Run("UnknownTriggerReported", func(t *testing.T) {
		store := storage.NewMockStore()
		require.NoError(t, store.SaveEscalationRule(models.EscalationRule{
			ID: "e1", ProjectID: "p1", Trigger: models.EscalationTrigger("full_moon"), Threshold: 1,
		}))

		svc := service.NewEscalationService(store, logger{}, nil)
		result, err := svc.CheckEscalations("p1")
		assert.NoError(t, err)
		assert.Equal(t, 1, result.RulesChecked)
		require.Len(t, result.Results, 1)
		assert.Contains(t, result.Results[0], "unknown trigger")
	})

	t.Run("MultipleRulesAllChecked", func(t *testing.T) {
		store := storage.NewMockStore()
		require.NoError(t, store.SaveEscalationRule(models.EscalationRule{
			ID: "e1", ProjectID: "p1", Trigger: models.BotFailureTrigger, Threshold: 3,
		}))
		require.NoError(t, store.SaveEscalationRule(models.EscalationRule{
			ID: "e2", ProjectID: "p1", Trigger: models.TaskOverdueTrigger, Threshold: 24,
		}))

		svc := service.NewEscalationService(store, logger{}, nil)
		result, err := svc.CheckEscalations("p1")
		assert.NoError(t, err)
		assert.Equal(t, 2, result.RulesChecked)
	})
}
