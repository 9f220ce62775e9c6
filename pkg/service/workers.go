package service

import (
	"time"

	"github.com/fleetworks/botflow/pkg/models"
	"github.com/fleetworks/botflow/pkg/storage"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// WorkerService manages the bot fleet's worker records.
type WorkerService struct {
	store  storage.Store
	logger Logger
}

func NewWorkerService(store storage.Store, logger Logger) *WorkerService {
	return &WorkerService{store: store, logger: logger}
}

func (ws *WorkerService) RegisterWorker(projectID, name string, maxConcurrent int, capabilities []string) (models.Worker, error) {
	if name == "" {
		return models.Worker{}, errors.New("worker name cannot be empty")
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	worker := models.Worker{
		ID:            uuid.New().String(),
		ProjectID:     projectID,
		Name:          name,
		Status:        models.IdleWorkerStatus,
		MaxConcurrent: maxConcurrent,
		Capabilities:  capabilities,
		CreatedAt:     time.Now(),
	}
	if err := ws.store.SaveWorker(worker); err != nil {
		return models.Worker{}, errors.Wrap(err, "failed to save worker")
	}
	ws.logger.Infof("Registered worker %s (%s) with capacity %d", worker.ID, name, maxConcurrent)
	return worker, nil
}

func (ws *WorkerService) UpdateWorkerStatus(id string, status models.WorkerStatus) error {
	switch status {
	case models.IdleWorkerStatus, models.WorkingWorkerStatus, models.ErrorWorkerStatus, models.OfflineWorkerStatus:
	default:
		return errors.Errorf("invalid worker status %q", status)
	}
	if err := ws.store.UpdateWorkerStatus(id, status); err != nil {
		return errors.Wrapf(err, "failed to update worker %s", id)
	}
	return nil
}

// ActiveAssignments derives the worker's current load from its non-terminal
// assignment rows.
func (ws *WorkerService) ActiveAssignments(workerID string) (int, error) {
	return activeAssignmentCount(ws.store, workerID)
}

func (ws *WorkerService) ListWorkers(projectID string) ([]models.Worker, error) {
	return ws.store.ListWorkers(projectID)
}
