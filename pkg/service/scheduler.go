package service

import (
	"sync"
	"time"

	"github.com/fleetworks/botflow/pkg/models"
	"github.com/fleetworks/botflow/pkg/storage"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const defaultAssignmentTimeoutMinutes = 30

// ScheduledAssignment describes one task-to-worker match produced by a
// scheduling pass.
type ScheduledAssignment struct {
	TaskID       string `json:"task_id"`
	WorkerID     string `json:"worker_id"`
	AssignmentID string `json:"assignment_id"`
}

// SchedulerService assigns ready tasks to workers with spare capacity.
type SchedulerService struct {
	store  storage.Store
	logger Logger
	mu     sync.Mutex
}

func NewSchedulerService(store storage.Store, logger Logger) *SchedulerService {
	return &SchedulerService{store: store, logger: logger}
}

// ScheduleReadyTasks runs one scheduling pass for a project: it resolves
// ready tasks, then greedily assigns them to available workers round-robin,
// tracking capacity locally within the pass. Safe to call repeatedly; a pass
// with no capacity or no ready tasks is a no-op. Passes within one process
// serialize on the service mutex; cross-process callers must ensure only one
// scheduling pass runs at a time, since the capacity count is read once per
// pass.
func (s *SchedulerService) ScheduleReadyTasks(projectID string) (scheduled []ScheduledAssignment, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	txStore, err := s.store.Begin()
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				s.logger.Errorf("Failed to rollback after error: %v (original error: %v)", rollbackErr, err)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			s.logger.Errorf("Failed to commit: %v", commitErr)
			err = commitErr
		}
	}()

	ready, err := s.loadReadyTasks(txStore, projectID)
	if err != nil {
		return nil, err
	}
	if len(ready) == 0 {
		return nil, nil
	}

	workers, capacity, err := s.loadAvailableWorkers(txStore, projectID)
	if err != nil {
		return nil, err
	}
	if len(workers) == 0 {
		s.logger.Infof("No workers with spare capacity in project %s, %d ready tasks left pending", projectID, len(ready))
		return nil, nil
	}

	// Greedy, single-pass, deterministic: fill the current worker up to its
	// maximum before advancing the pointer.
	current := 0
	for _, task := range ready {
		for current < len(workers) && capacity[workers[current].ID] <= 0 {
			current++
		}
		if current >= len(workers) {
			break
		}
		worker := workers[current]

		assignment := models.BotTaskAssignment{
			ID:             uuid.New().String(),
			WorkerID:       worker.ID,
			TaskID:         task.ID,
			Status:         models.PendingAssignmentStatus,
			MaxRetries:     3,
			TimeoutMinutes: defaultAssignmentTimeoutMinutes,
			CreatedAt:      time.Now(),
			UpdatedAt:      time.Now(),
		}
		if err = txStore.SaveAssignment(assignment); err != nil {
			return nil, errors.Wrapf(err, "failed to save assignment for task %s", task.ID)
		}
		if err = txStore.UpdateTaskStatus(task.ID, models.InProgressTaskStatus); err != nil {
			return nil, errors.Wrapf(err, "failed to mark task %s in progress", task.ID)
		}
		capacity[worker.ID]--

		scheduled = append(scheduled, ScheduledAssignment{
			TaskID:       task.ID,
			WorkerID:     worker.ID,
			AssignmentID: assignment.ID,
		})
	}

	s.logger.Infof("Scheduled %d of %d ready tasks in project %s", len(scheduled), len(ready), projectID)
	return scheduled, nil
}

// ReportAssignment is the re-entry point for a worker reporting the outcome
// of an assignment. Success flips the task to done; failure records the error
// on the assignment and leaves retry handling to an external collaborator.
func (s *SchedulerService) ReportAssignment(assignmentID string, succeeded bool, errorMsg string) (err error) {
	assignment, err := s.store.GetAssignment(assignmentID)
	if err != nil {
		return errors.Wrapf(err, "assignment %s not found", assignmentID)
	}
	if assignment.Status.Terminal() {
		s.logger.Infof("Assignment %s already %s, ignoring report", assignmentID, assignment.Status)
		return nil
	}

	txStore, err := s.store.Begin()
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				s.logger.Errorf("Failed to rollback after error: %v (original error: %v)", rollbackErr, err)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			s.logger.Errorf("Failed to commit: %v", commitErr)
			err = commitErr
		}
	}()

	if succeeded {
		if err = txStore.UpdateAssignmentStatus(assignmentID, models.CompletedAssignmentStatus, ""); err != nil {
			return err
		}
		if err = txStore.UpdateTaskStatus(assignment.TaskID, models.DoneTaskStatus); err != nil {
			return err
		}
		s.logger.Infof("Assignment %s completed, task %s done", assignmentID, assignment.TaskID)
		return nil
	}

	if err = txStore.UpdateAssignmentStatus(assignmentID, models.FailedAssignmentStatus, errorMsg); err != nil {
		return err
	}
	s.logger.Infof("Assignment %s failed: %s", assignmentID, errorMsg)
	return nil
}

// loadReadyTasks snapshots pending tasks, dependency edges and done IDs,
// then resolves readiness.
func (s *SchedulerService) loadReadyTasks(txStore storage.Store, projectID string) ([]models.Task, error) {
	pending, err := txStore.ListTasksByStatus(projectID, models.TodoTaskStatus)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list pending tasks")
	}
	edges, err := txStore.ListTaskDependencies(projectID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list task dependencies")
	}
	done, err := txStore.ListTasksByStatus(projectID, models.DoneTaskStatus)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list done tasks")
	}
	doneIDs := make(map[string]struct{}, len(done))
	for _, t := range done {
		doneIDs[t.ID] = struct{}{}
	}
	return FindReadyTasks(pending, edges, doneIDs), nil
}

// loadAvailableWorkers returns workers in an assignable status with spare
// capacity, plus each worker's remaining slots as observed now. The counts
// are tracked locally for the rest of the pass.
func (s *SchedulerService) loadAvailableWorkers(txStore storage.Store, projectID string) ([]models.Worker, map[string]int, error) {
	workers, err := txStore.ListWorkers(projectID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to list workers")
	}

	var available []models.Worker
	capacity := make(map[string]int)
	for _, w := range workers {
		if !w.Status.Available() {
			continue
		}
		active, err := activeAssignmentCount(txStore, w.ID)
		if err != nil {
			return nil, nil, err
		}
		if active >= w.MaxConcurrent {
			continue
		}
		available = append(available, w)
		capacity[w.ID] = w.MaxConcurrent - active
	}
	return available, capacity, nil
}

// activeAssignmentCount derives a worker's load from its non-terminal
// assignment rows.
func activeAssignmentCount(txStore storage.Store, workerID string) (int, error) {
	assignments, err := txStore.ListAssignmentsByWorker(workerID)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to list assignments for worker %s", workerID)
	}
	active := 0
	for _, a := range assignments {
		if !a.Status.Terminal() {
			active++
		}
	}
	return active, nil
}
