package service_test

import (
	"testing"
	"time"

	"github.com/fleetworks/botflow/pkg/models"
	"github.com/fleetworks/botflow/pkg/service"
	"github.com/fleetworks/botflow/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskService(t *testing.T) {
	t.Run("CreateTaskDefaults", func(t *testing.T) {
		store := storage.NewMockStore()
		svc := service.NewTaskService(store, logger{})

		task, err := svc.CreateTask("p1", "ship it", "", nil)
		assert.NoError(t, err)
		assert.Equal(t, models.TodoTaskStatus, task.Status)
		assert.Equal(t, models.MediumTaskPriority, task.Priority)
		assert.NotEmpty(t, task.ID)
	})

	t.Run("CreateTaskRequiresTitle", func(t *testing.T) {
		svc := service.NewTaskService(storage.NewMockStore(), logger{})
		_, err := svc.CreateTask("p1", "", models.HighTaskPriority, nil)
		assert.Error(t, err)
	})

	t.Run("CreateTaskWithDueDate", func(t *testing.T) {
		store := storage.NewMockStore()
		svc := service.NewTaskService(store, logger{})
		due := time.Now().Add(48 * time.Hour)

		task, err := svc.CreateTask("p1", "review release notes", models.LowTaskPriority, &due)
		assert.NoError(t, err)
		require.NotNil(t, task.DueAt)
		assert.True(t, task.DueAt.Equal(due))
	})

	t.Run("AddDependency", func(t *testing.T) {
		store := storage.NewMockStore()
		svc := service.NewTaskService(store, logger{})
		a, err := svc.CreateTask("p1", "a", "", nil)
		require.NoError(t, err)
		b, err := svc.CreateTask("p1", "b", "", nil)
		require.NoError(t, err)

		assert.NoError(t, svc.AddDependency(b.ID, a.ID))

		edges, err := store.ListTaskDependencies("p1")
		require.NoError(t, err)
		require.Len(t, edges, 1)
		assert.Equal(t, b.ID, edges[0].TaskID)
		assert.Equal(t, a.ID, edges[0].DependsOn)
	})

	t.Run("AddDependencyRejectsSelf", func(t *testing.T) {
		store := storage.NewMockStore()
		svc := service.NewTaskService(store, logger{})
		a, err := svc.CreateTask("p1", "a", "", nil)
		require.NoError(t, err)

		assert.Error(t, svc.AddDependency(a.ID, a.ID))
	})

	t.Run("AddDependencyRequiresBothTasks", func(t *testing.T) {
		store := storage.NewMockStore()
		svc := service.NewTaskService(store, logger{})
		a, err := svc.CreateTask("p1", "a", "", nil)
		require.NoError(t, err)

		assert.Error(t, svc.AddDependency(a.ID, "ghost"))
		assert.Error(t, svc.AddDependency("ghost", a.ID))
	})

	t.Run("CompleteTaskIdempotent", func(t *testing.T) {
		store := storage.NewMockStore()
		svc := service.NewTaskService(store, logger{})
		task, err := svc.CreateTask("p1", "a", "", nil)
		require.NoError(t, err)

		assert.NoError(t, svc.CompleteTask(task.ID))
		assert.NoError(t, svc.CompleteTask(task.ID))

		got, err := store.GetTask(task.ID)
		require.NoError(t, err)
		assert.Equal(t, models.DoneTaskStatus, got.Status)
	})
}

func TestWorkerService(t *testing.T) {
	t.Run("RegisterWorkerDefaults", func(t *testing.T) {
		store := storage.NewMockStore()
		svc := service.NewWorkerService(store, logger{})

		worker, err := svc.RegisterWorker("p1", "crawler", 0, []string{"scrape"})
		assert.NoError(t, err)
		assert.Equal(t, models.IdleWorkerStatus, worker.Status)
		assert.Equal(t, 1, worker.MaxConcurrent)
	})

	t.Run("UpdateWorkerStatusValidatesEnum", func(t *testing.T) {
		store := storage.NewMockStore()
		svc := service.NewWorkerService(store, logger{})
		worker, err := svc.RegisterWorker("p1", "crawler", 2, nil)
		require.NoError(t, err)

		assert.NoError(t, svc.UpdateWorkerStatus(worker.ID, models.OfflineWorkerStatus))
		assert.Error(t, svc.UpdateWorkerStatus(worker.ID, models.WorkerStatus("napping")))
	})

	t.Run("ActiveAssignmentsCountsNonTerminal", func(t *testing.T) {
		store := storage.NewMockStore()
		svc := service.NewWorkerService(store, logger{})
		worker, err := svc.RegisterWorker("p1", "crawler", 2, nil)
		require.NoError(t, err)

		require.NoError(t, store.SaveAssignment(models.BotTaskAssignment{
			ID: "a1", WorkerID: worker.ID, TaskID: "t1", Status: models.RunningAssignmentStatus,
		}))
		require.NoError(t, store.SaveAssignment(models.BotTaskAssignment{
			ID: "a2", WorkerID: worker.ID, TaskID: "t2", Status: models.CompletedAssignmentStatus,
		}))

		active, err := svc.ActiveAssignments(worker.ID)
		assert.NoError(t, err)
		assert.Equal(t, 1, active)
	})
}

func TestDefinitionService(t *testing.T) {
	steps := []models.WorkflowStep{
		{ID: "a", Name: "a", Type: models.BotTaskStepType},
		{ID: "b", Name: "b", Type: models.ApprovalStepType, DependsOn: []string{"a"}},
	}

	t.Run("SaveAndGet", func(t *testing.T) {
		store := storage.NewMockStore()
		svc := service.NewDefinitionService(store, logger{})

		def, err := svc.SaveDefinition("p1", "release", models.ContinueFailurePolicy, steps)
		assert.NoError(t, err)

		got, err := svc.GetDefinition(def.ID)
		assert.NoError(t, err)
		assert.Equal(t, "release", got.Name)
		assert.Equal(t, models.ContinueFailurePolicy, got.FailurePolicy)
		assert.Len(t, got.Steps, 2)
	})

	t.Run("EmptyPolicyDefaultsToStop", func(t *testing.T) {
		svc := service.NewDefinitionService(storage.NewMockStore(), logger{})
		def, err := svc.SaveDefinition("p1", "release", "", steps)
		assert.NoError(t, err)
		assert.Equal(t, models.StopFailurePolicy, def.FailurePolicy)
	})

	t.Run("InvalidPolicyRejected", func(t *testing.T) {
		svc := service.NewDefinitionService(storage.NewMockStore(), logger{})
		_, err := svc.SaveDefinition("p1", "release", models.FailurePolicy("shrug"), steps)
		assert.Error(t, err)
	})

	t.Run("InvalidGraphRejected", func(t *testing.T) {
		svc := service.NewDefinitionService(storage.NewMockStore(), logger{})
		_, err := svc.SaveDefinition("p1", "release", models.StopFailurePolicy, []models.WorkflowStep{
			{ID: "a", Type: models.BotTaskStepType, DependsOn: []string{"a"}},
		})
		assert.Error(t, err)
	})
}
