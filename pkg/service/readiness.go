package service

import (
	"sort"

	"github.com/fleetworks/botflow/pkg/models"
)

// FindReadyTasks determines which pending tasks have every dependency
// satisfied, given a snapshot of dependency edges and the set of done task
// IDs. A task with no dependencies is ready; a task depending on an unknown
// task ID is never ready (the edge can only be satisfied by a task that is
// actually done). Output is ordered by priority rank, stable for ties.
// Pure function over the snapshot; no side effects.
func FindReadyTasks(pending []models.Task, edges []models.TaskDependency, doneIDs map[string]struct{}) []models.Task {
	depsByTask := make(map[string][]string)
	for _, e := range edges {
		depsByTask[e.TaskID] = append(depsByTask[e.TaskID], e.DependsOn)
	}

	var ready []models.Task
	for _, t := range pending {
		satisfied := true
		for _, dep := range depsByTask[t.ID] {
			if _, done := doneIDs[dep]; !done {
				satisfied = false
				break
			}
		}
		if satisfied {
			ready = append(ready, t)
		}
	}

	sort.SliceStable(ready, func(i, j int) bool {
		return ready[i].Priority.Rank() < ready[j].Priority.Rank()
	})
	return ready
}
