package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/fleetworks/botflow/internal/log"
	"github.com/fleetworks/botflow/pkg/service"
	"github.com/fleetworks/botflow/pkg/storage"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

// Server exposes the orchestration operations over HTTP. It is a thin
// boundary: request decoding, one service call, response encoding.
type Server struct {
	coordinator *service.CoordinatorService
	scheduler   *service.SchedulerService
	rules       *service.RuleEngineService
	escalations *service.EscalationService
	tasks       *service.TaskService
}

func NewServer(store storage.Store, dispatcher service.ChannelDispatcher) *Server {
	logger := log.GetLogger()
	return &Server{
		coordinator: service.NewCoordinatorService(store, logger),
		scheduler:   service.NewSchedulerService(store, logger),
		rules:       service.NewRuleEngineService(store, logger, dispatcher),
		escalations: service.NewEscalationService(store, logger, dispatcher),
		tasks:       service.NewTaskService(store, logger),
	}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", s.handleHealth)
	r.Post("/workflows/{definitionID}/run", s.handleRunWorkflow)
	r.Get("/runs/{runID}", s.handleGetRun)
	r.Post("/runs/{runID}/advance", s.handleAdvanceRun)
	r.Post("/runs/{runID}/steps/{stepID}/complete", s.handleCompleteStep)
	r.Post("/runs/{runID}/steps/{stepID}/fail", s.handleFailStep)
	r.Post("/projects/{projectID}/schedule", s.handleSchedule)
	r.Post("/projects/{projectID}/rules/evaluate", s.handleEvaluateRules)
	r.Post("/projects/{projectID}/escalations/check", s.handleCheckEscalations)
	r.Get("/projects/{projectID}/tasks", s.handleListTasks)
	return r
}

// StartServer runs the boundary HTTP server on the given port.
func StartServer(port string, store storage.Store, dispatcher service.ChannelDispatcher) error {
	srv := NewServer(store, dispatcher)
	log.GetLogger().Infof("Starting botflow server on :%s", port)
	return http.ListenAndServe(":"+port, srv.Router())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "botflow server is running")
}

// handleRunWorkflow is the documented boundary pattern: start a run, advance
// it once, return both results.
func (s *Server) handleRunWorkflow(w http.ResponseWriter, r *http.Request) {
	definitionID := chi.URLParam(r, "definitionID")
	runID, stepsInitialized, err := s.coordinator.StartRun(definitionID)
	if err != nil {
		writeError(w, err)
		return
	}
	advance, err := s.coordinator.AdvanceRun(runID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"run_id":            runID,
		"steps_initialized": stepsInitialized,
		"advance":           advance,
	})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, steps, err := s.coordinator.GetRun(chi.URLParam(r, "runID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"run": run, "steps": steps})
}

func (s *Server) handleAdvanceRun(w http.ResponseWriter, r *http.Request) {
	result, err := s.coordinator.AdvanceRun(chi.URLParam(r, "runID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCompleteStep(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Result map[string]interface{} `json:"result"`
	}
	if r.Body != nil {
		// An empty body means no result payload.
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	result, err := s.coordinator.CompleteStep(chi.URLParam(r, "runID"), chi.URLParam(r, "stepID"), body.Result)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleFailStep(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Error string `json:"error"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	result, err := s.coordinator.FailStep(chi.URLParam(r, "runID"), chi.URLParam(r, "stepID"), body.Error)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	scheduled, err := s.scheduler.ScheduleReadyTasks(chi.URLParam(r, "projectID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"scheduled": scheduled})
}

func (s *Server) handleEvaluateRules(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Trigger string                 `json:"trigger"`
		Payload map[string]interface{} `json:"payload"`
		TaskID  string                 `json:"task_id"`
		UserID  string                 `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.Trigger == "" {
		http.Error(w, "missing trigger", http.StatusBadRequest)
		return
	}
	actx := service.ActionContext{
		ProjectID: chi.URLParam(r, "projectID"),
		TaskID:    body.TaskID,
		UserID:    body.UserID,
	}
	result, err := s.rules.EvaluateRules(body.Trigger, body.Payload, actx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCheckEscalations(w http.ResponseWriter, r *http.Request) {
	result, err := s.escalations.CheckEscalations(chi.URLParam(r, "projectID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.tasks.ListTasks(chi.URLParam(r, "projectID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tasks": tasks})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.GetLogger().Errorf("Failed to encode response: %v", err)
	}
}

// writeError maps the error taxonomy onto status codes: not-found to 404,
// validation rejections to 422, everything else to 500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case isValidationError(err):
		status = http.StatusUnprocessableEntity
	}
	log.GetLogger().Errorf("Request failed: %v", err)
	http.Error(w, err.Error(), status)
}

func isValidationError(err error) bool {
	msg := err.Error()
	for _, marker := range []string{"cycle detected", "unknown step", "invalid workflow definition", "duplicate step", "no steps"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
