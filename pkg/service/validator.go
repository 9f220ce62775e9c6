package service

import (
	"github.com/fleetworks/botflow/pkg/models"
	"github.com/pkg/errors"
)

// ValidateSteps checks a definition's step list as a directed acyclic graph
// and returns the steps in topological order (dependencies first). It rejects
// cycles, naming the offending step, and dependsOn references to step IDs not
// present in the definition. Must run before any run is created from the
// definition.
func ValidateSteps(steps []models.WorkflowStep) ([]models.WorkflowStep, error) {
	if len(steps) == 0 {
		return nil, errors.New("workflow definition has no steps")
	}

	byID := make(map[string]models.WorkflowStep, len(steps))
	for _, s := range steps {
		if s.ID == "" {
			return nil, errors.New("workflow step with empty id")
		}
		if _, dup := byID[s.ID]; dup {
			return nil, errors.Errorf("duplicate step id %q", s.ID)
		}
		byID[s.ID] = s
	}

	const (
		unvisited = iota
		visiting
		visited
	)
	color := make(map[string]int, len(steps))
	ordered := make([]models.WorkflowStep, 0, len(steps))

	var visit func(id string) error
	visit = func(id string) error {
		switch color[id] {
		case visited:
			return nil
		case visiting:
			return errors.Errorf("cycle detected at step %q", id)
		}
		color[id] = visiting
		for _, dep := range byID[id].DependsOn {
			if _, ok := byID[dep]; !ok {
				return errors.Errorf("step %q depends on unknown step %q", id, dep)
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		color[id] = visited
		ordered = append(ordered, byID[id])
		return nil
	}

	// Iterate in definition order so the output is deterministic.
	for _, s := range steps {
		if err := visit(s.ID); err != nil {
			return nil, err
		}
	}
	return ordered, nil
}
