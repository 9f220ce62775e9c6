package service

import (
	"fmt"
	"time"

	"github.com/fleetworks/botflow/pkg/models"
	"github.com/fleetworks/botflow/pkg/storage"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// EscalationResult summarizes one checkEscalations invocation.
type EscalationResult struct {
	Results      []string `json:"results"`
	RulesChecked int      `json:"rules_checked"`
}

// EscalationService scans aggregate state for threshold breaches and raises
// alerts and notifications.
type EscalationService struct {
	store      storage.Store
	logger     Logger
	dispatcher ChannelDispatcher
	now        func() time.Time // injectable for tests
}

func NewEscalationService(store storage.Store, logger Logger, dispatcher ChannelDispatcher) *EscalationService {
	return &EscalationService{store: store, logger: logger, dispatcher: dispatcher, now: time.Now}
}

// CheckEscalations evaluates every escalation rule in the project scope.
// Raised alerts, notifications and channel events are side effects; the
// per-rule outcome is returned as a trace.
func (s *EscalationService) CheckEscalations(projectID string) (EscalationResult, error) {
	rules, err := s.store.ListEscalationRules(projectID)
	if err != nil {
		return EscalationResult{}, errors.Wrapf(err, "failed to load escalation rules for project %s", projectID)
	}

	var out EscalationResult
	for _, rule := range rules {
		out.RulesChecked++
		var results []string
		switch rule.Trigger {
		case models.BotFailureTrigger:
			results, err = s.checkBotFailures(projectID, rule)
		case models.TaskOverdueTrigger:
			results, err = s.checkOverdueTasks(projectID, rule)
		case models.ApprovalTimeoutTrigger:
			results, err = s.checkApprovalTimeouts(projectID, rule)
		default:
			results = []string{fmt.Sprintf("rule %s: unknown trigger %q", rule.ID, rule.Trigger)}
		}
		if err != nil {
			return EscalationResult{}, err
		}
		out.Results = append(out.Results, results...)
	}
	s.logger.Infof("Checked %d escalation rules in project %s", out.RulesChecked, projectID)
	return out, nil
}

// checkBotFailures aggregates failed-assignment counts per worker and raises
// a critical alert for every worker at or above the rule threshold.
func (s *EscalationService) checkBotFailures(projectID string, rule models.EscalationRule) ([]string, error) {
	failed, err := s.store.ListAssignmentsByStatus(projectID, models.FailedAssignmentStatus)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list failed assignments")
	}
	counts := make(map[string]int)
	for _, a := range failed {
		counts[a.WorkerID]++
	}

	var results []string
	for workerID, count := range counts {
		if float64(count) < rule.Threshold {
			continue
		}
		title := fmt.Sprintf("Worker %s has %d failed assignments", workerID, count)
		if err := s.raise(projectID, rule, models.CriticalAlertSeverity, "bot_failure", title); err != nil {
			return nil, err
		}
		results = append(results, title)
	}
	if results == nil {
		results = []string{fmt.Sprintf("bot_failure rule %s: no worker at threshold %.0f", rule.ID, rule.Threshold)}
	}
	return results, nil
}

// checkOverdueTasks raises a warning alert for every non-done task whose due
// time is older than the threshold in hours.
func (s *EscalationService) checkOverdueTasks(projectID string, rule models.EscalationRule) ([]string, error) {
	tasks, err := s.store.ListTasks(projectID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list tasks")
	}
	cutoff := s.now().Add(-time.Duration(rule.Threshold * float64(time.Hour)))

	var results []string
	for _, t := range tasks {
		if t.Status == models.DoneTaskStatus || t.DueAt == nil || !t.DueAt.Before(cutoff) {
			continue
		}
		title := fmt.Sprintf("Task %q overdue since %s", t.Title, t.DueAt.Format(time.RFC3339))
		if err := s.raise(projectID, rule, models.WarningAlertSeverity, "task_overdue", title); err != nil {
			return nil, err
		}
		results = append(results, title)
	}
	if results == nil {
		results = []string{fmt.Sprintf("task_overdue rule %s: no task overdue past %.0fh", rule.ID, rule.Threshold)}
	}
	return results, nil
}

// checkApprovalTimeouts raises a warning alert for every approval step that
// has been running longer than the threshold in hours.
func (s *EscalationService) checkApprovalTimeouts(projectID string, rule models.EscalationRule) ([]string, error) {
	steps, err := s.store.ListRunStepsByTypeAndStatus(models.ApprovalStepType, models.RunningStepStatus)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list running approval steps")
	}
	cutoff := s.now().Add(-time.Duration(rule.Threshold * float64(time.Hour)))

	var results []string
	for _, step := range steps {
		if step.StartedAt == nil || !step.StartedAt.Before(cutoff) {
			continue
		}
		title := fmt.Sprintf("Approval step %s of run %s pending since %s", step.StepID, step.RunID, step.StartedAt.Format(time.RFC3339))
		if err := s.raise(projectID, rule, models.WarningAlertSeverity, "approval_timeout", title); err != nil {
			return nil, err
		}
		results = append(results, title)
	}
	if results == nil {
		results = []string{fmt.Sprintf("approval_timeout rule %s: no approval older than %.0fh", rule.ID, rule.Threshold)}
	}
	return results, nil
}

// raise persists the alert, notifies the rule's user if one is configured and
// forwards the event to channel dispatch.
func (s *EscalationService) raise(projectID string, rule models.EscalationRule, severity models.AlertSeverity, event, title string) error {
	alert := models.Alert{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		Severity:  severity,
		Title:     title,
		CreatedAt: s.now(),
	}
	if err := s.store.SaveAlert(alert); err != nil {
		return errors.Wrap(err, "failed to save alert")
	}
	if rule.NotifyUserID != "" {
		notification := models.Notification{
			ID:        uuid.New().String(),
			UserID:    rule.NotifyUserID,
			Message:   title,
			CreatedAt: s.now(),
		}
		if err := s.store.SaveNotification(notification); err != nil {
			return errors.Wrap(err, "failed to save notification")
		}
	}
	dispatchEvent(s.dispatcher, s.logger, ChannelEvent{
		Event:     event,
		Severity:  string(severity),
		Title:     title,
		ProjectID: projectID,
	})
	return nil
}
