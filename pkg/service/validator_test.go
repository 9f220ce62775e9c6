package service_test

import (
	"testing"

	"github.com/fleetworks/botflow/pkg/models"
	"github.com/fleetworks/botflow/pkg/service"
	"github.com/stretchr/testify/assert"
)

func TestValidateSteps(t *testing.T) {
	step := func(id string, deps ...string) models.WorkflowStep {
		return models.WorkflowStep{ID: id, Name: id, Type: models.BotTaskStepType, DependsOn: deps}
	}

	t.Run("DiamondGraphTopologicalOrder", func(t *testing.T) {
		steps := []models.WorkflowStep{
			step("d", "b", "c"),
			step("b", "a"),
			step("c", "a"),
			step("a"),
		}
		ordered, err := service.ValidateSteps(steps)
		assert.NoError(t, err)
		assert.Len(t, ordered, 4)

		position := make(map[string]int)
		for i, s := range ordered {
			position[s.ID] = i
		}
		for _, s := range steps {
			for _, dep := range s.DependsOn {
				assert.Less(t, position[dep], position[s.ID], "dependency %s must precede %s", dep, s.ID)
			}
		}
	})

	t.Run("DeterministicOrder", func(t *testing.T) {
		steps := []models.WorkflowStep{step("a"), step("b"), step("c")}
		first, err := service.ValidateSteps(steps)
		assert.NoError(t, err)
		second, err := service.ValidateSteps(steps)
		assert.NoError(t, err)
		assert.Equal(t, first, second)
		assert.Equal(t, "a", first[0].ID)
	})

	t.Run("CycleRejected", func(t *testing.T) {
		steps := []models.WorkflowStep{
			step("a", "c"),
			step("b", "a"),
			step("c", "b"),
		}
		_, err := service.ValidateSteps(steps)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "cycle detected at step")
	})

	t.Run("SelfCycleRejected", func(t *testing.T) {
		_, err := service.ValidateSteps([]models.WorkflowStep{step("a", "a")})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "cycle detected at step \"a\"")
	})

	t.Run("UnknownDependencyRejected", func(t *testing.T) {
		_, err := service.ValidateSteps([]models.WorkflowStep{step("a", "ghost")})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), `step "a" depends on unknown step "ghost"`)
	})

	t.Run("DuplicateStepIDRejected", func(t *testing.T) {
		_, err := service.ValidateSteps([]models.WorkflowStep{step("a"), step("a")})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate step id")
	})

	t.Run("EmptyDefinitionRejected", func(t *testing.T) {
		_, err := service.ValidateSteps(nil)
		assert.Error(t, err)
	})
}
