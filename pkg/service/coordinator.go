package service

import (
	"sync"
	"time"

	"github.com/fleetworks/botflow/pkg/models"
	"github.com/fleetworks/botflow/pkg/storage"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// AdvanceResult reports the outcome of one advancement pass.
type AdvanceResult struct {
	AdvancedStepIDs []string         `json:"advanced_step_ids"`
	Completed       bool             `json:"completed"` // run reached a terminal status
	RunStatus       models.RunStatus `json:"run_status"`
}

// CoordinatorService creates workflow runs from validated definitions and
// advances them to completion by promoting steps whose dependencies are all
// complete.
type CoordinatorService struct {
	store  storage.Store
	logger Logger
	mu     sync.Mutex
}

func NewCoordinatorService(store storage.Store, logger Logger) *CoordinatorService {
	return &CoordinatorService{store: store, logger: logger}
}

// StartRun validates the definition and creates a run in running status with
// one pending run step per definition step. If validation fails no run is
// created.
func (c *CoordinatorService) StartRun(definitionID string) (runID string, stepsInitialized int, err error) {
	def, err := c.store.GetWorkflowDefinition(definitionID)
	if err != nil {
		return "", 0, errors.Wrapf(err, "workflow definition %s not found", definitionID)
	}
	ordered, err := ValidateSteps(def.Steps)
	if err != nil {
		return "", 0, errors.Wrapf(err, "invalid workflow definition %s", definitionID)
	}

	txStore, err := c.store.Begin()
	if err != nil {
		return "", 0, errors.Wrap(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				c.logger.Errorf("Failed to rollback after error: %v (original error: %v)", rollbackErr, err)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			c.logger.Errorf("Failed to commit: %v", commitErr)
			err = commitErr
		}
	}()

	run := models.WorkflowRun{
		ID:           uuid.New().String(),
		DefinitionID: definitionID,
		Status:       models.RunningRunStatus,
		StartedAt:    time.Now(),
	}
	if err = txStore.SaveWorkflowRun(run); err != nil {
		return "", 0, errors.Wrap(err, "failed to save workflow run")
	}
	for _, step := range ordered {
		runStep := models.WorkflowRunStep{
			RunID:  run.ID,
			StepID: step.ID,
			Type:   step.Type,
			Status: models.PendingStepStatus,
		}
		if err = txStore.SaveRunStep(runStep); err != nil {
			return "", 0, errors.Wrapf(err, "failed to save run step %s", step.ID)
		}
	}

	c.logger.Infof("Started run %s of definition %s with %d steps", run.ID, definitionID, len(ordered))
	return run.ID, len(ordered), nil
}

// AdvanceRun promotes every ready step to running and, once all steps are
// terminal, finalizes the run. A step is ready iff it is pending and every
// step it depends on is completed. Calling this repeatedly on a stable run is
// a no-op. Advancement passes within one process serialize on the service
// mutex; cross-process callers must not advance the same run concurrently.
func (c *CoordinatorService) AdvanceRun(runID string) (result AdvanceResult, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	txStore, err := c.store.Begin()
	if err != nil {
		return AdvanceResult{}, errors.Wrap(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				c.logger.Errorf("Failed to rollback after error: %v (original error: %v)", rollbackErr, err)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			c.logger.Errorf("Failed to commit: %v", commitErr)
			err = commitErr
		}
	}()

	run, err := txStore.GetWorkflowRun(runID)
	if err != nil {
		return AdvanceResult{}, errors.Wrapf(err, "workflow run %s not found", runID)
	}
	if run.Status != models.RunningRunStatus {
		return AdvanceResult{Completed: true, RunStatus: run.Status}, nil
	}

	def, err := txStore.GetWorkflowDefinition(run.DefinitionID)
	if err != nil {
		return AdvanceResult{}, errors.Wrapf(err, "definition %s for run %s not found", run.DefinitionID, runID)
	}
	steps, err := txStore.ListRunSteps(runID)
	if err != nil {
		return AdvanceResult{}, errors.Wrapf(err, "failed to list steps for run %s", runID)
	}

	statusByID := make(map[string]models.StepStatus, len(steps))
	for _, s := range steps {
		statusByID[s.StepID] = s.Status
	}

	anyFailed := false
	for _, s := range steps {
		if s.Status == models.FailedStepStatus {
			anyFailed = true
			break
		}
	}

	policy := def.FailurePolicy
	if policy == "" {
		policy = models.StopFailurePolicy
	}
	if policy == models.RetryFailurePolicy {
		// Re-attempt bookkeeping lives on assignments, not run steps; the run
		// itself propagates failures like stop.
		c.logger.Infof("Run %s uses retry policy, treating failure propagation as stop", runID)
		policy = models.StopFailurePolicy
	}

	var advanced []string
	if anyFailed && policy == models.StopFailurePolicy {
		// Stop propagation: nothing new starts, the remainder of the graph is
		// skipped so the run can reach a terminal state.
		for _, s := range steps {
			if statusByID[s.StepID] != models.PendingStepStatus {
				continue
			}
			if err = txStore.UpdateRunStepStatus(runID, s.StepID, models.SkippedStepStatus, nil); err != nil {
				return AdvanceResult{}, errors.Wrapf(err, "failed to skip step %s", s.StepID)
			}
			statusByID[s.StepID] = models.SkippedStepStatus
		}
	} else {
		// Under continue, branches downstream of a failure are skipped while
		// independent branches keep advancing. Sweep to a fixpoint so skips
		// propagate through chains within one pass.
		if policy == models.ContinueFailurePolicy {
			for changed := true; changed; {
				changed = false
				for _, s := range steps {
					if statusByID[s.StepID] != models.PendingStepStatus {
						continue
					}
					step, _ := def.Step(s.StepID)
					for _, dep := range step.DependsOn {
						if statusByID[dep] == models.FailedStepStatus || statusByID[dep] == models.SkippedStepStatus {
							if err = txStore.UpdateRunStepStatus(runID, s.StepID, models.SkippedStepStatus, nil); err != nil {
								return AdvanceResult{}, errors.Wrapf(err, "failed to skip step %s", s.StepID)
							}
							statusByID[s.StepID] = models.SkippedStepStatus
							changed = true
							break
						}
					}
				}
			}
		}

		for _, s := range steps {
			if statusByID[s.StepID] != models.PendingStepStatus {
				continue
			}
			step, ok := def.Step(s.StepID)
			if !ok {
				return AdvanceResult{}, errors.Errorf("run step %s has no definition step", s.StepID)
			}
			ready := true
			for _, dep := range step.DependsOn {
				if statusByID[dep] != models.CompletedStepStatus {
					ready = false
					break
				}
			}
			if !ready {
				continue
			}
			if err = txStore.UpdateRunStepStatus(runID, s.StepID, models.RunningStepStatus, nil); err != nil {
				return AdvanceResult{}, errors.Wrapf(err, "failed to start step %s", s.StepID)
			}
			statusByID[s.StepID] = models.RunningStepStatus
			advanced = append(advanced, s.StepID)
			if step.Type == models.BotTaskStepType {
				// Assignment of the step's work to a bot goes through the
				// capacity scheduler; here the step is only bookkept as running
				// until the external collaborator reports back.
				c.logger.Infof("Run %s step %s (bot_task) started, awaiting worker completion", runID, s.StepID)
			}
		}
	}

	// Terminal check over the updated statuses.
	allTerminal := true
	for _, status := range statusByID {
		if !status.Terminal() {
			allTerminal = false
			break
		}
	}
	runStatus := models.RunningRunStatus
	if allTerminal {
		runStatus = models.CompletedRunStatus
		if anyFailed {
			runStatus = models.FailedRunStatus
		}
		now := time.Now()
		if err = txStore.UpdateWorkflowRunStatus(runID, runStatus, &now); err != nil {
			return AdvanceResult{}, errors.Wrapf(err, "failed to finalize run %s", runID)
		}
		c.logger.Infof("Run %s finished with status %s", runID, runStatus)
	}

	return AdvanceResult{
		AdvancedStepIDs: advanced,
		Completed:       runStatus != models.RunningRunStatus,
		RunStatus:       runStatus,
	}, nil
}

// CompleteStep marks one step completed with an optional result payload and
// propagates by advancing the run. This is the re-entry point used when an
// external collaborator finishes its portion of a step. Completing an
// already-terminal step is a no-op, keeping redelivery idempotent.
func (c *CoordinatorService) CompleteStep(runID, stepID string, result map[string]interface{}) (AdvanceResult, error) {
	return c.finishStep(runID, stepID, models.CompletedStepStatus, result)
}

// FailStep marks one step failed with the reported error. The failure is
// recorded as state, not surfaced as an error; the subsequent advancement
// applies the definition's failure policy.
func (c *CoordinatorService) FailStep(runID, stepID, errorMsg string) (AdvanceResult, error) {
	result := map[string]interface{}{"error": errorMsg}
	return c.finishStep(runID, stepID, models.FailedStepStatus, result)
}

func (c *CoordinatorService) finishStep(runID, stepID string, status models.StepStatus, result map[string]interface{}) (AdvanceResult, error) {
	step, err := c.store.GetRunStep(runID, stepID)
	if err != nil {
		return AdvanceResult{}, errors.Wrapf(err, "step %s of run %s not found", stepID, runID)
	}
	if step.Status.Terminal() {
		c.logger.Infof("Step %s of run %s already %s, ignoring %s report", stepID, runID, step.Status, status)
		run, err := c.store.GetWorkflowRun(runID)
		if err != nil {
			return AdvanceResult{}, err
		}
		return AdvanceResult{Completed: run.Status != models.RunningRunStatus, RunStatus: run.Status}, nil
	}
	if err := c.store.UpdateRunStepStatus(runID, stepID, status, result); err != nil {
		return AdvanceResult{}, errors.Wrapf(err, "failed to mark step %s %s", stepID, status)
	}
	c.logger.Infof("Step %s of run %s reported %s", stepID, runID, status)
	return c.AdvanceRun(runID)
}

// GetRun fetches a run with its step records.
func (c *CoordinatorService) GetRun(runID string) (models.WorkflowRun, []models.WorkflowRunStep, error) {
	run, err := c.store.GetWorkflowRun(runID)
	if err != nil {
		return models.WorkflowRun{}, nil, errors.Wrapf(err, "workflow run %s not found", runID)
	}
	steps, err := c.store.ListRunSteps(runID)
	if err != nil {
		return models.WorkflowRun{}, nil, err
	}
	return run, steps, nil
}
