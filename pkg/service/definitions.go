package service

import (
	"time"

	"github.com/fleetworks/botflow/pkg/models"
	"github.com/fleetworks/botflow/pkg/storage"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// DefinitionService manages workflow definitions. Definitions are validated
// at save time as well as at run start, so a malformed graph is rejected as
// early as possible.
type DefinitionService struct {
	store  storage.Store
	logger Logger
}

func NewDefinitionService(store storage.Store, logger Logger) *DefinitionService {
	return &DefinitionService{store: store, logger: logger}
}

func (ds *DefinitionService) SaveDefinition(projectID, name string, policy models.FailurePolicy, steps []models.WorkflowStep) (models.WorkflowDefinition, error) {
	if name == "" {
		return models.WorkflowDefinition{}, errors.New("workflow name cannot be empty")
	}
	switch policy {
	case "":
		policy = models.StopFailurePolicy
	case models.StopFailurePolicy, models.ContinueFailurePolicy, models.RetryFailurePolicy:
	default:
		return models.WorkflowDefinition{}, errors.Errorf("invalid failure policy %q", policy)
	}
	if _, err := ValidateSteps(steps); err != nil {
		return models.WorkflowDefinition{}, errors.Wrap(err, "invalid step graph")
	}
	def := models.WorkflowDefinition{
		ID:            uuid.New().String(),
		ProjectID:     projectID,
		Name:          name,
		FailurePolicy: policy,
		Steps:         steps,
		CreatedAt:     time.Now(),
	}
	if err := ds.store.SaveWorkflowDefinition(def); err != nil {
		return models.WorkflowDefinition{}, errors.Wrap(err, "failed to save workflow definition")
	}
	ds.logger.Infof("Saved workflow definition %s (%s) with %d steps", def.ID, name, len(steps))
	return def, nil
}

func (ds *DefinitionService) GetDefinition(id string) (models.WorkflowDefinition, error) {
	def, err := ds.store.GetWorkflowDefinition(id)
	if err != nil {
		return models.WorkflowDefinition{}, errors.Wrapf(err, "workflow definition %s not found", id)
	}
	return def, nil
}

func (ds *DefinitionService) ListDefinitions(projectID string) ([]models.WorkflowDefinition, error) {
	return ds.store.ListWorkflowDefinitions(projectID)
}
