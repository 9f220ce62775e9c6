package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/fleetworks/botflow/pkg/models"
	"github.com/fleetworks/botflow/pkg/storage"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ActionContext carries the references an action may need. Actions missing a
// requisite reference report executed=false instead of failing the rule.
type ActionContext struct {
	ProjectID string
	TaskID    string
	UserID    string
}

// ActionResult is the structured outcome of one action execution.
type ActionResult struct {
	Executed bool   `json:"executed"`
	Detail   string `json:"detail,omitempty"`
}

// RuleEvalResult summarizes one evaluateRules invocation.
type RuleEvalResult struct {
	Matched         int      `json:"matched"`
	ActionsExecuted int      `json:"actions_executed"`
	Results         []string `json:"results"`
}

// RuleEngineService evaluates automation rules against event payloads and
// executes their actions.
type RuleEngineService struct {
	store      storage.Store
	logger     Logger
	dispatcher ChannelDispatcher
}

func NewRuleEngineService(store storage.Store, logger Logger, dispatcher ChannelDispatcher) *RuleEngineService {
	return &RuleEngineService{store: store, logger: logger, dispatcher: dispatcher}
}

// EvaluateConditions evaluates a condition list conjunctively against an
// event payload. Type mismatches fail closed: a numeric operator on a
// non-numeric payload value makes the condition false, never an error.
func EvaluateConditions(conditions []models.RuleCondition, payload map[string]interface{}) bool {
	for _, cond := range conditions {
		if !evaluateCondition(cond, payload) {
			return false
		}
	}
	return true
}

func evaluateCondition(cond models.RuleCondition, payload map[string]interface{}) bool {
	value, present := payload[cond.Field]

	switch cond.Operator {
	case models.EqOperator:
		return present && looseEqual(value, cond.Value)
	case models.NeqOperator:
		return !present || !looseEqual(value, cond.Value)
	case models.GtOperator:
		lhs, lok := asNumber(value)
		rhs, rok := asNumber(cond.Value)
		return lok && rok && lhs > rhs
	case models.LtOperator:
		lhs, lok := asNumber(value)
		rhs, rok := asNumber(cond.Value)
		return lok && rok && lhs < rhs
	case models.ContainsOperator:
		str, ok := value.(string)
		if !ok {
			return false
		}
		return strings.Contains(str, fmt.Sprintf("%v", cond.Value))
	case models.InOperator:
		list, ok := cond.Value.([]interface{})
		if !ok {
			return false
		}
		for _, candidate := range list {
			if looseEqual(value, candidate) {
				return true
			}
		}
		return false
	}
	return false
}

// looseEqual compares numerically when both sides are numbers, otherwise by
// string form. Rule payloads arrive through JSON, so ints and float64s must
// compare equal.
func looseEqual(a, b interface{}) bool {
	if na, ok := asNumber(a); ok {
		if nb, ok := asNumber(b); ok {
			return na == nb
		}
		return false
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func asNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// ExecuteAction dispatches on the action type and performs its side effects.
// A misconfigured action returns executed=false rather than an error so one
// bad action never aborts the rest of a rule's action list.
func (s *RuleEngineService) ExecuteAction(action models.RuleAction, actx ActionContext) ActionResult {
	switch action.Type {
	case models.UpdateStatusAction:
		return s.executeUpdateStatus(action, actx)
	case models.AddTagAction:
		return s.executeAddTag(action, actx)
	case models.NotifyAction:
		return s.executeNotify(action, actx)
	case models.CreateSubtaskAction:
		return s.executeCreateSubtask(action, actx)
	case models.EscalateAction:
		return s.executeEscalate(action, actx)
	case models.SendToChannelAction:
		return s.executeSendToChannel(action, actx)
	}
	return ActionResult{Executed: false, Detail: fmt.Sprintf("unknown action type %q", action.Type)}
}

func (s *RuleEngineService) executeUpdateStatus(action models.RuleAction, actx ActionContext) ActionResult {
	if actx.TaskID == "" {
		return ActionResult{Executed: false, Detail: "update_status requires a task reference"}
	}
	status, ok := stringParam(action, "status")
	if !ok {
		return ActionResult{Executed: false, Detail: "update_status requires a status param"}
	}
	if err := s.store.UpdateTaskStatus(actx.TaskID, models.TaskStatus(status)); err != nil {
		return ActionResult{Executed: false, Detail: fmt.Sprintf("update_status failed: %v", err)}
	}
	return ActionResult{Executed: true, Detail: fmt.Sprintf("task %s status set to %s", actx.TaskID, status)}
}

func (s *RuleEngineService) executeAddTag(action models.RuleAction, actx ActionContext) ActionResult {
	if actx.TaskID == "" {
		return ActionResult{Executed: false, Detail: "add_tag requires a task reference"}
	}
	tag, ok := stringParam(action, "tag")
	if !ok {
		return ActionResult{Executed: false, Detail: "add_tag requires a tag param"}
	}
	task, err := s.store.GetTask(actx.TaskID)
	if err != nil {
		return ActionResult{Executed: false, Detail: fmt.Sprintf("add_tag failed: %v", err)}
	}
	if task.HasTag(tag) {
		return ActionResult{Executed: true, Detail: fmt.Sprintf("task %s already tagged %q", actx.TaskID, tag)}
	}
	if err := s.store.UpdateTaskTags(actx.TaskID, append(task.Tags, tag)); err != nil {
		return ActionResult{Executed: false, Detail: fmt.Sprintf("add_tag failed: %v", err)}
	}
	return ActionResult{Executed: true, Detail: fmt.Sprintf("task %s tagged %q", actx.TaskID, tag)}
}

func (s *RuleEngineService) executeNotify(action models.RuleAction, actx ActionContext) ActionResult {
	message, ok := stringParam(action, "message")
	if !ok {
		return ActionResult{Executed: false, Detail: "notify requires a message param"}
	}
	userID, _ := stringParam(action, "user_id")
	if userID == "" {
		userID = actx.UserID
	}
	if userID != "" {
		notification := models.Notification{
			ID:        uuid.New().String(),
			UserID:    userID,
			Message:   message,
			CreatedAt: time.Now(),
		}
		if err := s.store.SaveNotification(notification); err != nil {
			return ActionResult{Executed: false, Detail: fmt.Sprintf("notify failed: %v", err)}
		}
	}
	dispatchEvent(s.dispatcher, s.logger, ChannelEvent{
		Event:     "notify",
		Severity:  string(models.InfoAlertSeverity),
		Title:     "Notification",
		Body:      message,
		ProjectID: actx.ProjectID,
	})
	return ActionResult{Executed: true, Detail: "notification sent"}
}

func (s *RuleEngineService) executeCreateSubtask(action models.RuleAction, actx ActionContext) ActionResult {
	if actx.TaskID == "" {
		return ActionResult{Executed: false, Detail: "create_subtask requires a task reference"}
	}
	title, ok := stringParam(action, "title")
	if !ok {
		return ActionResult{Executed: false, Detail: "create_subtask requires a title param"}
	}
	parent, err := s.store.GetTask(actx.TaskID)
	if err != nil {
		return ActionResult{Executed: false, Detail: fmt.Sprintf("create_subtask failed: %v", err)}
	}
	subtask := models.Task{
		ID:        uuid.New().String(),
		ProjectID: parent.ProjectID,
		ParentID:  parent.ID,
		Title:     title,
		Status:    models.TodoTaskStatus,
		Priority:  parent.Priority,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := s.store.SaveTask(subtask); err != nil {
		return ActionResult{Executed: false, Detail: fmt.Sprintf("create_subtask failed: %v", err)}
	}
	return ActionResult{Executed: true, Detail: fmt.Sprintf("subtask %s created under %s", subtask.ID, parent.ID)}
}

func (s *RuleEngineService) executeEscalate(action models.RuleAction, actx ActionContext) ActionResult {
	reason, _ := stringParam(action, "reason")
	if reason == "" {
		reason = "escalated by automation rule"
	}
	alert := models.Alert{
		ID:        uuid.New().String(),
		ProjectID: actx.ProjectID,
		Severity:  models.WarningAlertSeverity,
		Title:     "Automation escalation",
		Body:      reason,
		CreatedAt: time.Now(),
	}
	if err := s.store.SaveAlert(alert); err != nil {
		return ActionResult{Executed: false, Detail: fmt.Sprintf("escalate failed: %v", err)}
	}
	dispatchEvent(s.dispatcher, s.logger, ChannelEvent{
		Event:     "escalate",
		Severity:  string(models.WarningAlertSeverity),
		Title:     alert.Title,
		Body:      reason,
		ProjectID: actx.ProjectID,
	})
	return ActionResult{Executed: true, Detail: fmt.Sprintf("alert %s raised", alert.ID)}
}

func (s *RuleEngineService) executeSendToChannel(action models.RuleAction, actx ActionContext) ActionResult {
	event, _ := stringParam(action, "event")
	severity, _ := stringParam(action, "severity")
	title, _ := stringParam(action, "title")
	body, _ := stringParam(action, "body")
	if event == "" {
		event = "send_to_channel"
	}
	dispatchEvent(s.dispatcher, s.logger, ChannelEvent{
		Event:     event,
		Severity:  severity,
		Title:     title,
		Body:      body,
		ProjectID: actx.ProjectID,
	})
	return ActionResult{Executed: true, Detail: "event forwarded to channel"}
}

// EvaluateRules loads all active rules for the trigger category, evaluates
// each against the payload and executes the action lists of matching rules in
// order, accumulating a per-rule trace.
func (s *RuleEngineService) EvaluateRules(trigger string, payload map[string]interface{}, actx ActionContext) (RuleEvalResult, error) {
	rules, err := s.store.ListAutomationRules(actx.ProjectID, trigger)
	if err != nil {
		return RuleEvalResult{}, errors.Wrapf(err, "failed to load rules for trigger %s", trigger)
	}

	var out RuleEvalResult
	for _, rule := range rules {
		if !rule.Active {
			continue
		}
		if !EvaluateConditions(rule.Conditions, payload) {
			continue
		}
		out.Matched++
		executed := 0
		for _, action := range rule.Actions {
			result := s.ExecuteAction(action, actx)
			if result.Executed {
				executed++
			} else {
				s.logger.Infof("Rule %s action %s not executed: %s", rule.ID, action.Type, result.Detail)
			}
		}
		out.ActionsExecuted += executed
		out.Results = append(out.Results, fmt.Sprintf("rule %q matched, %d/%d actions executed", rule.Name, executed, len(rule.Actions)))
	}
	s.logger.Infof("Trigger %s: %d rules matched, %d actions executed", trigger, out.Matched, out.ActionsExecuted)
	return out, nil
}

func stringParam(action models.RuleAction, key string) (string, bool) {
	if action.Params == nil {
		return "", false
	}
	value, ok := action.Params[key].(string)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}
